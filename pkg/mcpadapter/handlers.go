package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// handleExecScript implements exec_script: call daemon ct/exec-script and
// surface stdout/stderr/exitCode, including stderr in the text so
// tracebacks are visible even on success.
func (a *Adapter) handleExecScript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	tracePath := stringArg(args, "trace_path")
	script := stringArg(args, "script")
	if tracePath == "" || script == "" {
		return errorResult("trace_path and script are required"), nil
	}

	c, err := a.client(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	start := time.Now()
	resp, err := c.Request(ctx, "ct/exec-script", struct {
		TracePath string `json:"tracePath"`
		Script    string `json:"script"`
		Timeout   int    `json:"timeout,omitempty"`
		SessionID string `json:"sessionId,omitempty"`
	}{tracePath, script, intArg(args, "timeout_seconds"), stringArg(args, "session_id")})
	if err != nil {
		return errorResult(err.Error()), nil
	}
	durationMs := time.Since(start).Milliseconds()

	if !resp.Success {
		return errorResult(resp.Message), nil
	}

	var body struct {
		Stdout   string `json:"stdout"`
		Stderr   string `json:"stderr"`
		ExitCode int    `json:"exitCode"`
		TimedOut bool   `json:"timedOut"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return errorResult(fmt.Sprintf("decode exec-script response: %v", err)), nil
	}

	output := map[string]any{
		"stdout":   body.Stdout,
		"exitCode": body.ExitCode,
		"timedOut": body.TimedOut,
	}
	if body.Stderr != "" {
		output["stderr"] = body.Stderr
	}
	data, _ := json.MarshalIndent(output, "", "  ")

	result := &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: body.ExitCode != 0 || body.TimedOut,
	}
	result.Meta = map[string]any{"duration_ms": durationMs}
	return result, nil
}

// handleTraceInfo implements trace_info: open the trace if needed, then
// format the cached metadata as human-readable text.
func (a *Adapter) handleTraceInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	tracePath := stringArg(args, "trace_path")
	if tracePath == "" {
		return errorResult("trace_path is required"), nil
	}

	tc, err := a.ensureSession(ctx, tracePath)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	text := fmt.Sprintf(
		"language: %s\nprogram: %s\nworkdir: %s\nsourceFiles: %d\ntotalEvents: %d",
		tc.info.Language, tc.info.Program, tc.info.Workdir, tc.info.SourceFiles, tc.info.TotalEvents,
	)
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(text)}}, nil
}

// handleListSourceFiles implements list_source_files.
func (a *Adapter) handleListSourceFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	tracePath := stringArg(args, "trace_path")
	if tracePath == "" {
		return errorResult("trace_path is required"), nil
	}

	tc, err := a.ensureSession(ctx, tracePath)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	data, _ := json.MarshalIndent(tc.sourceFiles, "", "  ")
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(data))}}, nil
}

// handleReadSourceFile implements read_source_file.
func (a *Adapter) handleReadSourceFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	tracePath := stringArg(args, "trace_path")
	filePath := stringArg(args, "file_path")
	if tracePath == "" || filePath == "" {
		return errorResult("trace_path and file_path are required"), nil
	}

	text, err := a.readSource(ctx, tracePath, filePath)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(text)}}, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(msg)},
		IsError: true,
	}
}
