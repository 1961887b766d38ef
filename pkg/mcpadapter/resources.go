package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// resourceHandler backs concrete trace:// resources registered once a
// trace is known (registerTraceResources); resourceTemplateHandler backs
// the two trace://{path}/... templates for traces that haven't been
// opened through a tool call yet. Both funnel through resolveResource.
func (a *Adapter) resourceHandler(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return a.resolveResource(ctx, req.Params.URI)
}

func (a *Adapter) resourceTemplateHandler(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return a.resolveResource(ctx, req.Params.URI)
}

// resolveResource parses a trace://<path>/info or trace://<path>/source/<file>
// URI and answers it, opening the trace session on demand.
func (a *Adapter) resolveResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	const prefix = "trace://"
	if !strings.HasPrefix(uri, prefix) {
		return nil, fmt.Errorf("mcpadapter: unrecognized resource uri %q", uri)
	}
	rest := strings.TrimPrefix(uri, prefix)

	switch {
	case strings.HasSuffix(rest, "/info"):
		tracePath := strings.TrimSuffix(rest, "/info")
		tc, err := a.ensureSession(ctx, tracePath)
		if err != nil {
			return nil, err
		}
		data, err := json.MarshalIndent(tc.info, "", "  ")
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)},
		}, nil

	case strings.Contains(rest, "/source/"):
		idx := strings.Index(rest, "/source/")
		tracePath := rest[:idx]
		filePath := rest[idx+len("/source/"):]
		text, err := a.readSource(ctx, tracePath, filePath)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: uri, MIMEType: "text/plain", Text: text},
		}, nil
	}

	return nil, fmt.Errorf("mcpadapter: unrecognized resource uri %q", uri)
}

// readSource answers read_source_file and the /source/ resource case: ask
// the daemon first (it has the session's workdir and can serve the
// trace's embedded copy), and fall back to the same four-candidate
// resolution pkg/daemon uses, directly against disk, whenever the daemon
// path returns no content (no daemon, no session, or a failed read).
func (a *Adapter) readSource(ctx context.Context, tracePath, filePath string) (string, error) {
	tc, err := a.ensureSession(ctx, tracePath)
	if err == nil {
		c, cerr := a.client(ctx)
		if cerr == nil {
			resp, rerr := c.Request(ctx, "ct/py-read-source", struct {
				SessionID string `json:"sessionId"`
				FilePath  string `json:"filePath"`
			}{tc.sessionID, filePath})
			if rerr == nil && resp.Success {
				var body struct {
					Content string `json:"content"`
				}
				if jerr := json.Unmarshal(resp.Body, &body); jerr == nil {
					return body.Content, nil
				}
			}
		}
	}

	path, rerr := resolveSourceFallback(tracePath, filePath)
	if rerr != nil {
		return "", rerr
	}
	content, rerr := os.ReadFile(path)
	if rerr != nil {
		return "", fmt.Errorf("mcpadapter: read %s: %w", path, rerr)
	}
	return string(content), nil
}

// resolveSourceFallback mirrors pkg/daemon's resolveSourcePath: the
// trace's embedded files/ copy, the absolute path as recorded, a path
// relative to the workdir read from the trace's trace_metadata.json, a
// path relative to the trace directory's parent.
func resolveSourceFallback(traceDir, filePath string) (string, error) {
	candidates := []string{
		filepath.Join(traceDir, "files", strings.TrimPrefix(filePath, "/")),
	}
	if filepath.IsAbs(filePath) {
		candidates = append(candidates, filePath)
	}
	if data, err := os.ReadFile(filepath.Join(traceDir, "trace_metadata.json")); err == nil {
		var meta struct {
			Workdir string `json:"workdir"`
		}
		if json.Unmarshal(data, &meta) == nil && meta.Workdir != "" {
			candidates = append(candidates, filepath.Join(meta.Workdir, filePath))
		}
	}
	candidates = append(candidates, filepath.Join(filepath.Dir(traceDir), filePath))

	for _, c := range candidates {
		info, err := os.Stat(c)
		if err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("source file not found in trace: %s", filePath)
}
