package mcpadapter

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

const traceQueryAPIPrompt = `You are querying a recorded program trace through exec_script. Scripts run as
Python against a preloaded query object named "trace".

Available trace methods:
  trace.functions() -> list of function names that were called
  trace.calls(name=None) -> list of call records, optionally filtered by function name
  trace.locals(call_id) -> dict of local variable values at a call's entry
  trace.steps(call_id) -> list of line numbers executed within a call, in order
  trace.source(path) -> full text of a recorded source file
  trace.return_value(call_id) -> the value the call returned, or None

Rules:
  - Scripts must be self-contained; there is no access to the filesystem or network.
  - Print whatever you want returned; stdout is the tool result.
  - A script that raises an exception returns a non-zero exit code and the
    traceback on stderr, which exec_script includes in its output.
  - Call trace_info first if you don't already know the trace's language and
    source-file count.

Example:
  for call in trace.calls("parse_config"):
      print(call["line"], trace.locals(call["id"]))
`

func (a *Adapter) registerPrompts() {
	a.mcp.AddPrompt(
		mcp.NewPrompt("trace_query_api",
			mcp.WithPromptDescription("Reference for the trace query API available inside exec_script"),
		),
		a.handleTraceQueryAPIPrompt,
	)
}

func (a *Adapter) handleTraceQueryAPIPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "trace query API reference",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(traceQueryAPIPrompt),
			},
		},
	}, nil
}
