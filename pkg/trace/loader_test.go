package trace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// writeTestTrace materializes a minimal trace directory: a 3-statement
// program, one call, one local variable that changes once via the cell log.
func writeTestTrace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	metadata := map[string]any{
		"workdir": "/tmp/proj",
		"program": "/tmp/proj/main",
		"args":    []string{},
		"lang":    "nim",
	}
	writeJSON(t, filepath.Join(dir, "trace_metadata.json"), metadata)
	writeJSON(t, filepath.Join(dir, "trace_paths.json"), []string{"src/main.nim", "src/lib.nim"})

	events := []map[string]any{
		{"kind": "path", "path": "src/main.nim"},
		{"kind": "function", "path_id": 0, "line": 1, "name": "main"},
		{"kind": "variable_name", "name": "x"},
		{"kind": "call", "function_id": 0},
		{"kind": "step", "path_id": 0, "line": 1},
		{"kind": "variable_cell", "variable_id": 0, "place": 0},
		{"kind": "cell_change", "place": 0, "value": map[string]any{"kind": "Int", "int": 1}},
		{"kind": "step", "path_id": 0, "line": 2},
		{"kind": "cell_change", "place": 0, "value": map[string]any{"kind": "Int", "int": 2}},
		{"kind": "stdout", "content": "hello\n"},
		{"kind": "step", "path_id": 0, "line": 3},
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

func TestLoad_Scenario1(t *testing.T) {
	dir := writeTestTrace(t)
	db, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := len(db.Steps); got != 3 {
		t.Fatalf("steps = %d, want 3", got)
	}
	if db.Metadata.Language != "nim" {
		t.Errorf("language = %q", db.Metadata.Language)
	}
	if got := len(db.Events); got != 1 {
		t.Fatalf("events = %d, want 1", got)
	}
}

func TestLoad_TraceNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestLoad_DepthInvariant(t *testing.T) {
	dir := writeTestTrace(t)
	db, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var prevDepth = -1
	for i, s := range db.Steps {
		call, ok := db.Call(s.CallKey)
		if !ok {
			t.Fatalf("step %d: call %d not found", i, s.CallKey)
		}
		if prevDepth != -1 {
			diff := call.Depth - prevDepth
			if diff < -1 || diff > 1 {
				t.Errorf("step %d: depth delta %d out of {-1,0,1}", i, diff)
			}
		}
		prevDepth = call.Depth
	}
}

func TestLoadValueForPlace(t *testing.T) {
	dir := writeTestTrace(t)
	db, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	v := db.LoadValueForPlace(0, 0)
	iv, ok := v.(IntValue)
	if !ok || iv.I != 1 {
		t.Fatalf("value at step 0 = %#v, want Int(1)", v)
	}

	v = db.LoadValueForPlace(0, 1)
	iv, ok = v.(IntValue)
	if !ok || iv.I != 2 {
		t.Fatalf("value at step 1 = %#v, want Int(2)", v)
	}

	// Greatest change with step_id <= step still applies at step 2 (no
	// new write at step 2).
	v = db.LoadValueForPlace(0, 2)
	iv, ok = v.(IntValue)
	if !ok || iv.I != 2 {
		t.Fatalf("value at step 2 = %#v, want Int(2)", v)
	}

	v = db.LoadValueForPlace(99, 0)
	if _, ok := v.(ErrorValue); !ok {
		t.Fatalf("value for unknown place = %#v, want ErrorValue", v)
	}
}

func TestLoad_MissingMetadataFallback(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "trace_db_metadata.json"), map[string]any{
		"workdir": "/tmp", "program": "/tmp/a",
	})
	writeJSON(t, filepath.Join(dir, "trace.json"), []map[string]any{})
	db, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if db.Metadata.Program != "/tmp/a" {
		t.Errorf("program = %q", db.Metadata.Program)
	}
}

func TestLoad_InvalidMetadataSchema(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "trace_metadata.json"), map[string]any{
		"workdir": "/tmp", // missing required "program"
	})
	writeJSON(t, filepath.Join(dir, "trace.json"), []map[string]any{})
	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected schema validation error")
	}
}
