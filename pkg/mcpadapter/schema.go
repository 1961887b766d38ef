package mcpadapter

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
)

// ExecScriptParams is exec_script's input schema source struct.
type ExecScriptParams struct {
	TracePath      string `json:"trace_path" jsonschema:"required,description=Absolute path to a loaded trace directory"`
	Script         string `json:"script" jsonschema:"required,description=Script source to execute against the trace"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"description=Timeout override in seconds (default 120)"`
	SessionID      string `json:"session_id,omitempty" jsonschema:"description=Calls sharing this id reuse the trace bound on its first use; breakpoint and cursor state is not kept between calls"`
}

// TraceInfoParams is trace_info's input schema source struct.
type TraceInfoParams struct {
	TracePath string `json:"trace_path" jsonschema:"required,description=Absolute path to a trace directory"`
}

// ListSourceFilesParams is list_source_files's input schema source struct.
type ListSourceFilesParams struct {
	TracePath string `json:"trace_path" jsonschema:"required,description=Absolute path to a trace directory"`
}

// ReadSourceFileParams is read_source_file's input schema source struct.
type ReadSourceFileParams struct {
	TracePath string `json:"trace_path" jsonschema:"required,description=Absolute path to a trace directory"`
	FilePath  string `json:"file_path" jsonschema:"required,description=Source file path, as recorded in the trace"`
}

// reflectSchema derives a Draft 2020-12 JSON Schema from v's type with
// invopop/jsonschema and returns it ready to feed into
// mcp.NewToolWithRawSchema.
func reflectSchema(v any) json.RawMessage {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false
	s := r.Reflect(v)
	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("mcpadapter: reflect schema for %T: %v", v, err))
	}
	return data
}

func newTool(name, description string, paramsStruct any) mcp.Tool {
	return mcp.NewToolWithRawSchema(name, description, reflectSchema(paramsStruct))
}
