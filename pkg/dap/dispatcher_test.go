package dap

import (
	"context"
	"encoding/json"
	"testing"
	"time"

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

// TestInitializeHandshake drives the initialize -> initialized ->
// launch -> configurationDone -> stopped -> complete-move sequence.
func TestInitializeHandshake(t *testing.T) {
	d := New(build3StepDb())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Dispatch(&Message{Seq: 1, Type: "request", Command: "initialize"})
	initResp := recvWithin(t, d)
	if !initResp.Success {
		t.Fatalf("initialize failed: %s", initResp.Message)
	}
	var caps Capabilities
	if err := json.Unmarshal(initResp.Body, &caps); err != nil {
		t.Fatalf("decode capabilities: %v", err)
	}
	if !caps.SupportsStepBack {
		t.Error("expected SupportsStepBack")
	}

	initializedEvt := recvWithin(t, d)
	if initializedEvt.Type != "event" || initializedEvt.Event != "initialized" {
		t.Fatalf("expected initialized event, got %+v", initializedEvt)
	}

	d.Dispatch(&Message{Seq: 2, Type: "request", Command: "launch"})
	launchResp := recvWithin(t, d)
	if !launchResp.Success {
		t.Fatalf("launch failed: %s", launchResp.Message)
	}

	d.Dispatch(&Message{Seq: 3, Type: "request", Command: "configurationDone"})
	cfgResp := recvWithin(t, d)
	if !cfgResp.Success {
		t.Fatalf("configurationDone failed: %s", cfgResp.Message)
	}
	stoppedEvt := recvWithin(t, d)
	if stoppedEvt.Event != "stopped" {
		t.Fatalf("expected stopped event, got %+v", stoppedEvt)
	}
	moveEvt := recvWithin(t, d)
	if moveEvt.Type != "event" || moveEvt.Event != "complete-move" {
		t.Fatalf("expected complete-move event, got %+v", moveEvt)
	}
	var move completeMoveBody
	if err := json.Unmarshal(moveEvt.Body, &move); err != nil {
		t.Fatalf("decode complete-move body: %v", err)
	}
	if move.Location.Line != 1 {
		t.Errorf("entry complete-move location line = %d, want 1", move.Location.Line)
	}
}

// TestDispatch_StableCommand exercises a routed navigation command.
func TestDispatch_StableCommand(t *testing.T) {
	d := New(build3StepDb())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	args, _ := json.Marshal(stepArgs{Forward: true})
	d.Dispatch(&Message{Seq: 1, Type: "request", Command: "stepIn", Arguments: args})
	resp := recvWithin(t, d)
	if !resp.Success {
		t.Fatalf("stepIn failed: %s", resp.Message)
	}
	stoppedEvt := recvWithin(t, d)
	if stoppedEvt.Event != "stopped" {
		t.Fatalf("expected stopped event, got %+v", stoppedEvt)
	}
	moveEvt := recvWithin(t, d)
	if moveEvt.Event != "complete-move" {
		t.Fatalf("expected complete-move event, got %+v", moveEvt)
	}
}

// TestDispatch_UnknownCommand verifies the immediate-failure path.
func TestDispatch_UnknownCommand(t *testing.T) {
	d := New(build3StepDb())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Dispatch(&Message{Seq: 1, Type: "request", Command: "bogus"})
	resp := recvWithin(t, d)
	if resp.Success {
		t.Fatal("expected failure for unknown command")
	}
}

// TestDispatch_SeqReStamped checks every outbound message gets a fresh,
// monotonically increasing seq regardless of the inbound request's seq.
func TestDispatch_SeqReStamped(t *testing.T) {
	d := New(build3StepDb())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Dispatch(&Message{Seq: 999, Type: "request", Command: "initialize"})
	first := recvWithin(t, d)
	second := recvWithin(t, d)
	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("seq not re-stamped monotonically: got %d, %d", first.Seq, second.Seq)
	}
}

// TestDispatch_Calltrace exercises the request-then-event shape the
// calltrace commands share with ct/load-flow.
func TestDispatch_Calltrace(t *testing.T) {
	d := New(build3StepDb())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Dispatch(&Message{Seq: 1, Type: "request", Command: "ct/load-calltrace-section"})
	resp := recvWithin(t, d)
	if !resp.Success {
		t.Fatalf("ct/load-calltrace-section failed: %s", resp.Message)
	}
	evt := recvWithin(t, d)
	if evt.Type != "event" || evt.Event != "ct/updated-calltrace" {
		t.Fatalf("expected ct/updated-calltrace event, got %+v", evt)
	}
}

// TestDispatch_MultiProcessUnsupported verifies the documented gap: the
// replay engine only models a single trace/process.
func TestDispatch_MultiProcessUnsupported(t *testing.T) {
	d := New(build3StepDb())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Dispatch(&Message{Seq: 1, Type: "request", Command: "ct/list-processes"})
	resp := recvWithin(t, d)
	if resp.Success {
		t.Fatal("expected ct/list-processes to fail on a single-process trace")
	}
}

func recvWithin(t *testing.T, d *Dispatcher) *Message {
	t.Helper()
	select {
	case m := <-d.Out():
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatcher output")
		return nil
	}
}
