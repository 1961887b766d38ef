package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const metadataSchemaDoc = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["workdir", "program"],
  "properties": {
    "workdir": {"type": "string", "minLength": 1},
    "program": {"type": "string", "minLength": 1},
    "args": {"type": "array", "items": {"type": "string"}},
    "lang": {"type": "string"}
  }
}`

var metadataSchema = mustCompileMetadataSchema()

func mustCompileMetadataSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(metadataSchemaDoc)))
	if err != nil {
		panic(fmt.Sprintf("trace: invalid embedded metadata schema: %v", err))
	}
	const url = "mem://trace_metadata.schema.json"
	if err := c.AddResource(url, doc); err != nil {
		panic(fmt.Sprintf("trace: add metadata schema resource: %v", err))
	}
	sch, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("trace: compile metadata schema: %v", err))
	}
	return sch
}

// loadMetadata reads trace_metadata.json, falling back to
// trace_db_metadata.json, and validates it against
// metadataSchema so malformed metadata fails with a precise reason
// instead of a bare unmarshal error.
func loadMetadata(dir string) (Metadata, error) {
	path := filepath.Join(dir, "trace_metadata.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Metadata{}, newLoadError("read trace_metadata.json", err)
		}
		path = filepath.Join(dir, "trace_db_metadata.json")
		raw, err = os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return Metadata{}, fmt.Errorf("%w: neither trace_metadata.json nor trace_db_metadata.json in %s", ErrTraceNotFound, dir)
			}
			return Metadata{}, newLoadError("read trace_db_metadata.json", err)
		}
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return Metadata{}, fmt.Errorf("%w: %s: %v", ErrInvalidTrace, filepath.Base(path), err)
	}
	if err := metadataSchema.Validate(instance); err != nil {
		return Metadata{}, fmt.Errorf("%w: %s: %v", ErrInvalidTrace, filepath.Base(path), err)
	}

	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return Metadata{}, fmt.Errorf("%w: %s: %v", ErrInvalidTrace, filepath.Base(path), err)
	}
	return md, nil
}
