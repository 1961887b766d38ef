package daemonclient

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ormasoftchile/codetracer/pkg/config"
	"github.com/ormasoftchile/codetracer/pkg/ctlog"
	"github.com/ormasoftchile/codetracer/pkg/daemon"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func startTestDaemon(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.SocketPath = filepath.Join(dir, "daemon.sock")
	cfg.PidFile = filepath.Join(dir, "daemon.pid")

	s := daemon.New(cfg, ctlog.New("daemon-test").WithOutput(&discard{}))
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

func TestRequest_OpenTraceAndTraceInfo(t *testing.T) {
	sock := startTestDaemon(t)
	c, err := Dial(sock)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	traceDir := writeMiniTrace(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.Request(ctx, "ct/open-trace", struct {
		TracePath string `json:"tracePath"`
	}{traceDir})
	if err != nil {
		t.Fatalf("ct/open-trace: %v", err)
	}
	if !resp.Success {
		t.Fatalf("ct/open-trace failed: %s", resp.Message)
	}

	var body struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	infoResp, err := c.Request(ctx, "ct/trace-info", struct {
		SessionID string `json:"sessionId"`
	}{body.SessionID})
	if err != nil {
		t.Fatalf("ct/trace-info: %v", err)
	}
	if !infoResp.Success {
		t.Fatalf("ct/trace-info failed: %s", infoResp.Message)
	}
}

func TestRequest_ConcurrentCallsDoNotCrossWires(t *testing.T) {
	sock := startTestDaemon(t)
	c, err := Dial(sock)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, err := c.Request(ctx, "ct/list-sessions", nil)
			errs <- err
		}()
	}
	for i := 0; i < 4; i++ {
		if err := <-errs; err != nil {
			t.Errorf("concurrent ct/list-sessions: %v", err)
		}
	}
}

func TestDial_NoDaemonFails(t *testing.T) {
	dir := t.TempDir()
	if _, err := Dial(filepath.Join(dir, "nonexistent.sock")); err == nil {
		t.Fatal("expected Dial to fail against a nonexistent socket")
	}
}

func TestConnect_AutoStartDisabledWithoutCommand(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := Connect(ctx, filepath.Join(dir, "nonexistent.sock"), nil); err == nil {
		t.Fatal("expected Connect to fail with no startCmd and no running daemon")
	}
}
