package replclient

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/codetracer/pkg/config"
	"github.com/ormasoftchile/codetracer/pkg/ctlog"
	"github.com/ormasoftchile/codetracer/pkg/daemon"
	"github.com/ormasoftchile/codetracer/pkg/daemonclient"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func startTestDaemon(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.SocketPath = filepath.Join(dir, "daemon.sock")
	cfg.PidFile = filepath.Join(dir, "daemon.pid")

	s := daemon.New(cfg, ctlog.New("replclient-test").WithOutput(&discard{}))
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go s.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		s.Shutdown()
	})
	return cfg.SocketPath
}

func writeMiniTrace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "trace_metadata.json"), map[string]any{
		"workdir": "/tmp/proj", "program": "/tmp/proj/main", "args": []string{}, "lang": "nim",
	})
	writeJSON(t, filepath.Join(dir, "trace_paths.json"), []string{"main.nim"})
	events := []map[string]any{
		{"kind": "path", "path": "main.nim"},
		{"kind": "function", "path_id": 0, "line": 1, "name": "main"},
		{"kind": "call", "function_id": 0},
		{"kind": "step", "path_id": 0, "line": 1},
		{"kind": "call_end", "return_value": map[string]any{"kind": "None"}},
	}
	writeJSON(t, filepath.Join(dir, "trace.json"), events)
	return dir
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func openSession(t *testing.T, sock, traceDir string) *repl {
	t.Helper()
	c, err := daemonclient.Dial(sock)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Request(ctx, "ct/open-trace", struct {
		TracePath string `json:"tracePath"`
	}{traceDir})
	if err != nil || !resp.Success {
		t.Fatalf("ct/open-trace: %v %v", err, resp)
	}
	var opened struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(resp.Body, &opened); err != nil {
		t.Fatalf("decode sessionId: %v", err)
	}

	var out bytes.Buffer
	return &repl{ctx: context.Background(), client: c, sessionID: opened.SessionID, traceDir: traceDir, output: &out}
}

func TestHandleInfo_PrintsTraceMetadata(t *testing.T) {
	sock := startTestDaemon(t)
	traceDir := writeMiniTrace(t)
	r := openSession(t, sock, traceDir)

	r.handleInfo()

	out := r.output.(*bytes.Buffer).String()
	if !strings.Contains(out, "language: nim") {
		t.Fatalf("expected language in output, got %q", out)
	}
}

func TestHandleFiles_ListsSourcePaths(t *testing.T) {
	sock := startTestDaemon(t)
	traceDir := writeMiniTrace(t)
	r := openSession(t, sock, traceDir)

	r.handleFiles()

	out := r.output.(*bytes.Buffer).String()
	if !strings.Contains(out, "main.nim") {
		t.Fatalf("expected main.nim in output, got %q", out)
	}
}

func TestHandleCat_RequiresArgument(t *testing.T) {
	sock := startTestDaemon(t)
	traceDir := writeMiniTrace(t)
	r := openSession(t, sock, traceDir)

	r.handleCat("")

	out := r.output.(*bytes.Buffer).String()
	if !strings.Contains(out, "usage: cat") {
		t.Fatalf("expected usage message, got %q", out)
	}
}
