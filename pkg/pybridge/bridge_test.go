package pybridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ormasoftchile/codetracer/pkg/dap"
	"github.com/ormasoftchile/codetracer/pkg/trace"
)

func build3StepDb() *trace.Db {
	return &trace.Db{
		Paths:     []trace.PathEntry{{Raw: "main.nim", Abs: "main.nim"}},
		Functions: []trace.FunctionEntry{{PathId: 0, Line: 1, Name: "main"}},
		Calls: []trace.Call{
			{CallKey: 0, FunctionId: 0, StepId: 0, Depth: 0, ParentKey: trace.NoCall},
		},
		Steps: []trace.Step{
			{StepId: 0, PathId: 0, Line: 1, CallKey: 0},
			{StepId: 1, PathId: 0, Line: 2, CallKey: 0},
			{StepId: 2, PathId: 0, Line: 3, CallKey: 0},
		},
		VariableCells: make([]map[trace.VariableId]trace.Place, 3),
		FullValues:    make([]map[trace.VariableId]trace.ValueRecord, 3),
		CellLog:       map[trace.Place][]trace.CellChange{},
	}
}

// newTestBridge starts a real dispatcher (not a mock) so the bridge's
// request/event-matching logic is exercised end to end, mirroring the
// dispatcher package's own tests.
func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	d := dap.New(build3StepDb())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d.Start(ctx)
	return New(d, time.Second)
}

func TestNavigate_StepOver(t *testing.T) {
	b := newTestBridge(t)
	resp := b.Navigate(context.Background(), "step_over", 0)
	if !resp.Success {
		t.Fatalf("navigate failed: %s", resp.Message)
	}
	var nav NavResult
	if err := json.Unmarshal(resp.Body, &nav); err != nil {
		t.Fatalf("decode nav result: %v", err)
	}
	if nav.Line != 2 {
		t.Errorf("got line %d, want 2", nav.Line)
	}
}

func TestNavigate_UnknownMethod(t *testing.T) {
	b := newTestBridge(t)
	resp := b.Navigate(context.Background(), "sideways", 0)
	if resp.Success {
		t.Fatal("expected failure for unknown navigate method")
	}
}

func TestFlow_WaitsForUpdatedFlowEvent(t *testing.T) {
	b := newTestBridge(t)
	resp := b.Flow(context.Background(), "main.nim", 1)
	if !resp.Success {
		t.Fatalf("flow failed: %s", resp.Message)
	}
}

func TestCalltrace_WaitsForUpdatedCalltraceEvent(t *testing.T) {
	b := newTestBridge(t)
	resp := b.Calltrace(context.Background(), 0, 50, 0)
	if !resp.Success {
		t.Fatalf("calltrace failed: %s", resp.Message)
	}
}

func TestEvents_WaitsForUpdatedEventsEvent(t *testing.T) {
	b := newTestBridge(t)
	resp := b.Events(context.Background())
	if !resp.Success {
		t.Fatalf("events failed: %s", resp.Message)
	}
}

func TestTerminal_WaitsForLoadedTerminalEvent(t *testing.T) {
	b := newTestBridge(t)
	resp := b.Terminal(context.Background())
	if !resp.Success {
		t.Fatalf("terminal failed: %s", resp.Message)
	}
}

func TestProcesses_ReturnsErrorOnSingleProcessTrace(t *testing.T) {
	b := newTestBridge(t)
	resp := b.Processes(context.Background())
	if resp.Success {
		t.Fatal("expected processes to fail: replay engine only models one trace")
	}
}

func TestBreakpoints_AddAndRemove(t *testing.T) {
	b := newTestBridge(t)
	resp := b.AddBreakpoint(context.Background(), "main.nim", 2)
	if !resp.Success {
		t.Fatalf("add breakpoint failed: %s", resp.Message)
	}
	var added struct {
		BreakpointID int64 `json:"breakpointId"`
	}
	if err := json.Unmarshal(resp.Body, &added); err != nil {
		t.Fatalf("decode breakpointId: %v", err)
	}

	resp = b.RemoveBreakpoint(context.Background(), added.BreakpointID)
	if !resp.Success {
		t.Fatalf("remove breakpoint failed: %s", resp.Message)
	}
}

func TestWatchpoints_AddAndRemovePushesFullSet(t *testing.T) {
	b := newTestBridge(t)
	resp := b.AddWatchpoint(context.Background(), "x")
	if !resp.Success {
		t.Fatalf("add watchpoint failed: %s", resp.Message)
	}
	var added struct {
		WatchpointID int64 `json:"watchpointId"`
	}
	if err := json.Unmarshal(resp.Body, &added); err != nil {
		t.Fatalf("decode watchpointId: %v", err)
	}

	resp = b.AddWatchpoint(context.Background(), "y")
	if !resp.Success {
		t.Fatalf("add second watchpoint failed: %s", resp.Message)
	}

	resp = b.RemoveWatchpoint(context.Background(), added.WatchpointID)
	if !resp.Success {
		t.Fatalf("remove watchpoint failed: %s", resp.Message)
	}
}
