package replay

import (
	"testing"

	"github.com/ormasoftchile/codetracer/pkg/trace"
)

// build3StepDb constructs a 3-step trace: one function, one call,
// three sequential lines.
func build3StepDb() *trace.Db {
	db := &trace.Db{
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
	return db
}

func TestStepIn_BoundedScenario2(t *testing.T) {
	db := build3StepDb()
	e := New(db)

	want := []struct {
		ticks    int64
		boundary bool
	}{
		{1, false},
		{2, false},
		{2, true},
		{2, true},
	}
	for i, w := range want {
		loc := e.StepIn(true)
		if loc.Ticks != w.ticks {
			t.Errorf("call %d: ticks = %d, want %d", i+1, loc.Ticks, w.ticks)
		}
		if loc.EndOfTrace != w.boundary {
			t.Errorf("call %d: boundary = %v, want %v", i+1, loc.EndOfTrace, w.boundary)
		}
	}
}

func TestStepIn_RoundTrip(t *testing.T) {
	db := build3StepDb()
	e := New(db)
	e.StepIn(true)
	before := e.CurrentStep()
	e.StepIn(true)
	e.StepIn(false)
	if e.CurrentStep() != before {
		t.Errorf("step_in(fwd) then step_in(!fwd) not a no-op: got %d, want %d", e.CurrentStep(), before)
	}
}

// buildBreakpointDb constructs a trace that revisits a line:
// (main.nim,1),(main.nim,2),(main.nim,3),(main.nim,2).
func buildBreakpointDb() *trace.Db {
	db := &trace.Db{
		Paths:     []trace.PathEntry{{Raw: "main.nim", Abs: "main.nim"}},
		Functions: []trace.FunctionEntry{{PathId: 0, Line: 1, Name: "main"}},
		Calls: []trace.Call{
			{CallKey: 0, FunctionId: 0, StepId: 0, Depth: 0, ParentKey: trace.NoCall},
		},
		Steps: []trace.Step{
			{StepId: 0, PathId: 0, Line: 1, CallKey: 0},
			{StepId: 1, PathId: 0, Line: 2, CallKey: 0},
			{StepId: 2, PathId: 0, Line: 3, CallKey: 0},
			{StepId: 3, PathId: 0, Line: 2, CallKey: 0},
		},
		VariableCells: make([]map[trace.VariableId]trace.Place, 4),
		FullValues:    make([]map[trace.VariableId]trace.ValueRecord, 4),
		CellLog:       map[trace.Place][]trace.CellChange{},
	}
	return db
}

func TestContinue_BreakpointScenario3(t *testing.T) {
	db := buildBreakpointDb()
	e := New(db)

	id := e.AddBreakpoint("main.nim", 3)
	if id != 1 {
		t.Fatalf("breakpoint id = %d, want 1", id)
	}

	res := e.Continue(true)
	if res.Location.Ticks != 2 {
		t.Fatalf("continue landed on ticks %d, want 2", res.Location.Ticks)
	}
	if res.Note != "hit breakpoint 1" {
		t.Errorf("note = %q, want %q", res.Note, "hit breakpoint 1")
	}

	res = e.Continue(true)
	if res.Note != "no breakpoint hit" {
		t.Errorf("note = %q, want %q", res.Note, "no breakpoint hit")
	}
	if res.Location.Ticks != 3 {
		t.Errorf("clamped to ticks %d, want 3", res.Location.Ticks)
	}
}

func TestBreakpoints_MonotonicAndIsolatedRemoval(t *testing.T) {
	db := build3StepDb()
	e := New(db)

	id1 := e.AddBreakpoint("main.nim", 1)
	id2 := e.AddBreakpoint("main.nim", 2)
	if id2 <= id1 {
		t.Fatalf("ids not monotonic: %d, %d", id1, id2)
	}

	if err := e.RemoveBreakpoint(BreakpointId(9999)); err == nil {
		t.Fatal("expected error removing unknown breakpoint")
	}

	if err := e.RemoveBreakpoint(id1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	bps := e.Breakpoints()
	if len(bps) != 1 || bps[0].Id != id2 {
		t.Fatalf("breakpoints after removal = %+v, want only id %d", bps, id2)
	}
}

func TestNext_NeverExceedsStartingDepth(t *testing.T) {
	db := &trace.Db{
		Paths:     []trace.PathEntry{{Raw: "a.nim", Abs: "a.nim"}},
		Functions: []trace.FunctionEntry{{PathId: 0, Line: 1, Name: "outer"}, {PathId: 0, Line: 5, Name: "inner"}},
		Calls: []trace.Call{
			{CallKey: 0, FunctionId: 0, StepId: 0, Depth: 0, ParentKey: trace.NoCall, ChildrenKeys: []trace.CallKey{1}},
			{CallKey: 1, FunctionId: 1, StepId: 1, Depth: 1, ParentKey: 0},
		},
		Steps: []trace.Step{
			{StepId: 0, PathId: 0, Line: 1, CallKey: 0},
			{StepId: 1, PathId: 0, Line: 5, CallKey: 1},
			{StepId: 2, PathId: 0, Line: 6, CallKey: 1},
			{StepId: 3, PathId: 0, Line: 2, CallKey: 0},
		},
		VariableCells: make([]map[trace.VariableId]trace.Place, 4),
		FullValues:    make([]map[trace.VariableId]trace.ValueRecord, 4),
		CellLog:       map[trace.Place][]trace.CellChange{},
	}
	e := New(db)
	res := e.Next(true)
	if res.Location.Depth > 0 && !res.Location.EndOfTrace {
		t.Errorf("next() landed at depth %d > starting depth 0", res.Location.Depth)
	}
	if res.Location.Ticks != 3 {
		t.Errorf("next() landed on ticks %d, want 3", res.Location.Ticks)
	}
}

func TestEvaluate_UnknownVariable(t *testing.T) {
	db := build3StepDb()
	e := New(db)
	if _, err := e.Evaluate("nonexistent_var_xyz"); err == nil {
		t.Fatal("expected ExpressionError/UnknownVariable")
	}
}

func TestWatchpoint_UnsupportedOnDBTrace(t *testing.T) {
	db := build3StepDb()
	e := New(db)
	id := e.AddWatchpoint("x > 0")
	_, err := e.ContinueToWatchpoint(id, true)
	if err == nil {
		t.Fatal("expected ErrUnsupported")
	}
}
