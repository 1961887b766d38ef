// Package mcpadapter exposes a codetracer daemon over the Model Context
// Protocol: an LLM-facing stdio server whose tools, resources and prompts
// are thin wrappers around daemon requests, with the daemon auto-started
// on first use if it isn't already running.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/codetracer/pkg/daemonclient"
	"github.com/ormasoftchile/codetracer/pkg/dap"
)

func unmarshalBody(resp *dap.Message, v any) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("mcpadapter: decode response body: %w", err)
	}
	return nil
}

// traceInfo mirrors the daemon's ct/trace-info response body.
type traceInfo struct {
	Language    string `json:"language"`
	TotalEvents int    `json:"totalEvents"`
	SourceFiles int    `json:"sourceFiles"`
	Program     string `json:"program"`
	Workdir     string `json:"workdir"`
	TracePath   string `json:"tracePath"`
}

// traceCache holds everything the adapter learned about a trace the first
// time it was opened, so later tool calls and resource reads against the
// same trace_path skip the round trip to ct/trace-info and ct/list-source-files.
type traceCache struct {
	sessionID   string
	info        traceInfo
	sourceFiles []string
}

// Adapter owns the MCP server and the lazily-established daemon
// connection it dispatches tool calls, resource reads and prompts through.
type Adapter struct {
	socketPath string
	startCmd   []string

	mu   sync.Mutex
	conn *daemonclient.Client

	tracesMu sync.Mutex
	traces   map[string]*traceCache

	mcp *server.MCPServer
}

// New builds an Adapter and registers its full tool/resource/prompt set.
// socketPath is the daemon's domain socket; startCmd, if non-empty, is the
// argv used to auto-start the daemon when the socket isn't reachable yet.
func New(version, socketPath string, startCmd []string) *Adapter {
	a := &Adapter{
		socketPath: socketPath,
		startCmd:   startCmd,
		traces:     make(map[string]*traceCache),
	}

	a.mcp = server.NewMCPServer(
		"codetracer",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	a.mcp.AddTool(
		newTool("exec_script",
			"Execute a Python script against a loaded trace, with full time-travel query access",
			ExecScriptParams{},
		),
		a.handleExecScript,
	)
	a.mcp.AddTool(
		newTool("trace_info",
			"Return metadata (language, program, workdir, event and source-file counts) for a trace",
			TraceInfoParams{},
		),
		a.handleTraceInfo,
	)
	a.mcp.AddTool(
		newTool("list_source_files",
			"List every source file path recorded in a trace",
			ListSourceFilesParams{},
		),
		a.handleListSourceFiles,
	)
	a.mcp.AddTool(
		newTool("read_source_file",
			"Read the full text of one source file recorded in a trace",
			ReadSourceFileParams{},
		),
		a.handleReadSourceFile,
	)

	a.registerPrompts()
	a.registerResourceTemplates()

	return a
}

// Server returns the underlying MCP server, ready for server.ServeStdio.
func (a *Adapter) Server() *server.MCPServer { return a.mcp }

// client returns the adapter's daemon connection, dialing (and
// auto-starting the daemon if configured) on first use.
func (a *Adapter) client(ctx context.Context) (*daemonclient.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return a.conn, nil
	}
	c, err := daemonclient.Connect(ctx, a.socketPath, a.startCmd)
	if err != nil {
		return nil, fmt.Errorf("mcpadapter: connect to daemon: %w", err)
	}
	a.conn = c
	return c, nil
}

// ensureSession opens tracePath on the daemon if needed and populates the
// cached traceCache used by trace_info, list_source_files and resource
// enumeration.
func (a *Adapter) ensureSession(ctx context.Context, tracePath string) (*traceCache, error) {
	a.tracesMu.Lock()
	if tc, ok := a.traces[tracePath]; ok {
		a.tracesMu.Unlock()
		return tc, nil
	}
	a.tracesMu.Unlock()

	c, err := a.client(ctx)
	if err != nil {
		return nil, err
	}

	openResp, err := c.Request(ctx, "ct/open-trace", struct {
		TracePath string `json:"tracePath"`
	}{tracePath})
	if err != nil {
		return nil, fmt.Errorf("mcpadapter: ct/open-trace: %w", err)
	}
	if !openResp.Success {
		return nil, fmt.Errorf("mcpadapter: ct/open-trace: %s", openResp.Message)
	}
	var opened struct {
		SessionID string `json:"sessionId"`
	}
	if err := unmarshalBody(openResp, &opened); err != nil {
		return nil, err
	}

	infoResp, err := c.Request(ctx, "ct/trace-info", struct {
		SessionID string `json:"sessionId"`
	}{opened.SessionID})
	if err != nil {
		return nil, fmt.Errorf("mcpadapter: ct/trace-info: %w", err)
	}
	if !infoResp.Success {
		return nil, fmt.Errorf("mcpadapter: ct/trace-info: %s", infoResp.Message)
	}
	var info traceInfo
	if err := unmarshalBody(infoResp, &info); err != nil {
		return nil, err
	}

	filesResp, err := c.Request(ctx, "ct/list-source-files", struct {
		SessionID string `json:"sessionId"`
	}{opened.SessionID})
	if err != nil {
		return nil, fmt.Errorf("mcpadapter: ct/list-source-files: %w", err)
	}
	if !filesResp.Success {
		return nil, fmt.Errorf("mcpadapter: ct/list-source-files: %s", filesResp.Message)
	}
	var files struct {
		Paths []string `json:"paths"`
	}
	if err := unmarshalBody(filesResp, &files); err != nil {
		return nil, err
	}

	tc := &traceCache{sessionID: opened.SessionID, info: info, sourceFiles: files.Paths}

	a.tracesMu.Lock()
	a.traces[tracePath] = tc
	a.tracesMu.Unlock()

	a.registerTraceResources(tracePath, tc)
	return tc, nil
}

// registerTraceResources adds concrete trace://<path>/info and
// trace://<path>/source/<file> resources once a trace's file list is
// known, so resources/list reflects real, readable entries instead of
// just the two URI templates.
func (a *Adapter) registerTraceResources(tracePath string, tc *traceCache) {
	infoURI := fmt.Sprintf("trace://%s/info", tracePath)
	a.mcp.AddResource(
		mcp.NewResource(infoURI, fmt.Sprintf("Trace info: %s", tracePath), mcp.WithMIMEType("application/json")),
		a.resourceHandler,
	)
	for _, f := range tc.sourceFiles {
		uri := fmt.Sprintf("trace://%s/source/%s", tracePath, f)
		a.mcp.AddResource(
			mcp.NewResource(uri, fmt.Sprintf("Source: %s", f), mcp.WithMIMEType("text/plain")),
			a.resourceHandler,
		)
	}
}

func (a *Adapter) registerResourceTemplates() {
	a.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate("trace://{path}/info", "Trace metadata"),
		a.resourceTemplateHandler,
	)
	a.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate("trace://{path}/source/{file}", "Trace source file"),
		a.resourceTemplateHandler,
	)
}
