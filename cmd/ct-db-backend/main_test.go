package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ormasoftchile/codetracer/pkg/dap"
)

// syncBuffer is bytes.Buffer plus a mutex: the dispatcher's output drain
// goroutine keeps writing after run() returns (it blocks on the next
// message forever, since the dispatcher never closes its out channel),
// so reading it from the test goroutine needs to be synchronized.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
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

func TestRun_MissingTraceDirFails(t *testing.T) {
	in := bytes.NewReader(nil)
	var out bytes.Buffer
	if err := run(filepath.Join(t.TempDir(), "nonexistent"), in, &out); err == nil {
		t.Fatal("expected an error for a missing trace directory")
	}
}

func TestRun_InitializeRoundTrip(t *testing.T) {
	traceDir := writeMiniTrace(t)

	var in bytes.Buffer
	if err := dap.WriteMessage(&in, &dap.Message{Seq: 1, Type: "request", Command: "initialize"}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	out := &syncBuffer{}
	if err := run(traceDir, &in, out); err != nil {
		t.Fatalf("run: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for out.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	reader := dap.NewReader(bytes.NewReader(out.Bytes()))
	msg, err := reader.ReadMessage()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if msg.Type != "response" || !msg.Success {
		t.Fatalf("unexpected first message: %+v", msg)
	}
}
