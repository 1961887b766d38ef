package dap

import (
	"encoding/json"
	"fmt"

	"github.com/ormasoftchile/codetracer/pkg/replay"
	"github.com/ormasoftchile/codetracer/pkg/trace"
)

// handleCommand executes one request against a worker's own engine and
// builds the response message. It never touches d.out directly so it can
// be unit tested without a running dispatcher. The returned *replay.Location
// is non-nil only for navigation commands (see dispatchCommand), letting
// the worker loop attach it to the complete-move event it co-publishes
// with stopped.
func (d *Dispatcher) handleCommand(w Worker, e *replay.Engine, msg *Message) (*Message, *replay.Location) {
	body, loc, err := dispatchCommand(e, msg.Command, msg.Arguments)
	if err != nil {
		return &Message{
			Type:       "response",
			RequestSeq: msg.Seq,
			Success:    false,
			Message:    err.Error(),
		}, nil
	}
	return &Message{
		Type:       "response",
		RequestSeq: msg.Seq,
		Success:    true,
		Body:       body,
	}, loc
}

// eventAfterCommand names the event the dispatcher emits after a
// successful response to certain commands, mirroring DAP's own
// request-then-event shape for anything that moves the cursor or
// recomputes a view asynchronously. The python bridge's state machines
// wait for exactly these events before issuing their
// follow-up internal requests. Every command mapped to "stopped" here is
// a navigation command, so the worker loop also co-publishes complete-move
// with the new Location for each of them.
var eventAfterCommand = map[string]string{
	"next":            "stopped",
	"stepIn":          "stopped",
	"stepOut":         "stopped",
	"stepBack":        "stopped",
	"continue":        "stopped",
	"reverseContinue": "stopped",
	"gotoTicks":       "stopped",
	"ct/load-flow":    "ct/updated-flow",

	"ct/load-calltrace-section": "ct/updated-calltrace",
	"ct/search-calltrace":       "ct/calltrace-search-res",
	"ct/event-load":             "ct/updated-events",
	"ct/load-terminal":          "ct/loaded-terminal",
}

// completeMoveBody is the complete-move event's body shape: the new
// Location reached by a navigation command.
type completeMoveBody struct {
	Location replay.Location `json:"location"`
}

type stepArgs struct {
	Forward bool `json:"forward"`
}

type gotoArgs struct {
	Ticks int64 `json:"ticks"`
}

type evaluateArgs struct {
	Expression string `json:"expression"`
}

type setBreakpointsArgs struct {
	Path  string `json:"path"`
	Lines []int  `json:"lines"`
}

type toggleBreakpointArgs struct {
	Id int64 `json:"id"`
}

type dataBreakpointArgs struct {
	Expressions []string `json:"expressions"`
}

type continueToWatchArgs struct {
	Id      int64 `json:"id"`
	Forward bool  `json:"forward"`
}

type loadLocalsArgs struct {
	DepthLimit  int `json:"depthLimit"`
	CountBudget int `json:"countBudget"`
}

type loadHistoryArgs struct {
	Variable string `json:"variable"`
}

type loadFlowArgs struct {
	Path string `json:"path"`
	Line int    `json:"line"`
}

type tracepointArgs struct {
	Path       string `json:"path"`
	Line       int    `json:"line"`
	Expression string `json:"expression"`
}

type removeTracepointArgs struct {
	Id int64 `json:"id"`
}

type runTracepointsArgs struct {
	StopAfter int `json:"stopAfter"`
}

type calltraceLoadArgs struct {
	Start int `json:"start"`
	Count int `json:"count"`
	Depth int `json:"depth"`
}

type callSearchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// dispatchCommand is the command table's implementation side: it decodes
// arguments, calls the matching replay.Engine method, and marshals the
// result body. Unknown commands are rejected by the caller before this is
// reached (see commandTable), so the default case here only guards against
// a table/implementation drift. The *replay.Location return is non-nil
// only for the navigation commands (the ones eventAfterCommand maps to
// "stopped"), so the caller can co-publish complete-move with it.
func dispatchCommand(e *replay.Engine, command string, args json.RawMessage) (json.RawMessage, *replay.Location, error) {
	switch command {
	case "next":
		var a stepArgs
		decode(args, &a)
		res := e.Next(a.Forward)
		body, err := marshal(res)
		return body, &res.Location, err
	case "stepIn":
		var a stepArgs
		decode(args, &a)
		loc := e.StepIn(a.Forward)
		body, err := marshal(loc)
		return body, &loc, err
	case "stepOut":
		var a stepArgs
		decode(args, &a)
		res := e.StepOut(a.Forward)
		body, err := marshal(res)
		return body, &res.Location, err
	case "stepBack":
		loc := e.StepIn(false)
		body, err := marshal(loc)
		return body, &loc, err
	case "continue":
		var a stepArgs
		decode(args, &a)
		res := e.Continue(a.Forward)
		body, err := marshal(res)
		return body, &res.Location, err
	case "reverseContinue":
		res := e.Continue(false)
		body, err := marshal(res)
		return body, &res.Location, err
	case "gotoTicks":
		var a gotoArgs
		decode(args, &a)
		loc := e.JumpTo(trace.StepId(a.Ticks))
		body, err := marshal(loc)
		return body, &loc, err
	case "stackTrace":
		body, err := marshal(e.StackTrace())
		return body, nil, err
	case "ct/load-locals":
		var a loadLocalsArgs
		decode(args, &a)
		body, err := marshal(e.LoadLocals(a.DepthLimit, a.CountBudget))
		return body, nil, err
	case "evaluate":
		var a evaluateArgs
		decode(args, &a)
		result, err := e.Evaluate(a.Expression)
		if err != nil {
			return nil, nil, err
		}
		body, err := marshal(result)
		return body, nil, err
	case "setBreakpoints":
		var a setBreakpointsArgs
		decode(args, &a)
		for _, bp := range e.Breakpoints() {
			if bp.Path == a.Path {
				_ = e.RemoveBreakpoint(bp.Id)
			}
		}
		ids := make([]replay.BreakpointId, 0, len(a.Lines))
		for _, line := range a.Lines {
			ids = append(ids, e.AddBreakpoint(a.Path, line))
		}
		body, err := marshal(struct {
			Breakpoints []replay.BreakpointId `json:"breakpoints"`
		}{ids})
		return body, nil, err
	case "ct/toggle-breakpoint":
		var a toggleBreakpointArgs
		decode(args, &a)
		if err := e.ToggleBreakpoint(replay.BreakpointId(a.Id)); err != nil {
			return nil, nil, err
		}
		body, err := marshal(e.Breakpoints())
		return body, nil, err
	case "setDataBreakpoints":
		var a dataBreakpointArgs
		decode(args, &a)
		body, err := marshal(e.ReplaceWatchpoints(a.Expressions))
		return body, nil, err
	case "ct/remove-watchpoint":
		var a toggleBreakpointArgs
		decode(args, &a)
		if err := e.RemoveWatchpoint(replay.WatchpointId(a.Id)); err != nil {
			return nil, nil, err
		}
		body, err := marshal(e.Watchpoints())
		return body, nil, err
	case "ct/continue-to-watch":
		var a continueToWatchArgs
		decode(args, &a)
		res, err := e.ContinueToWatchpoint(replay.WatchpointId(a.Id), a.Forward)
		if err != nil {
			return nil, nil, err
		}
		body, err := marshal(res)
		return body, nil, err
	case "ct/load-history":
		var a loadHistoryArgs
		decode(args, &a)
		body, err := marshal(e.ValueHistory(a.Variable, e.CurrentStep()))
		return body, nil, err

	case "ct/load-flow":
		var a loadFlowArgs
		decode(args, &a)
		body, err := marshal(e.ValueTrace(a.Path, a.Line))
		return body, nil, err

	case "ct/add-tracepoint":
		var a tracepointArgs
		decode(args, &a)
		id := e.AddTracepoint(a.Path, a.Line, a.Expression)
		body, err := marshal(struct {
			Id replay.TracepointId `json:"id"`
		}{id})
		return body, nil, err
	case "ct/remove-tracepoint":
		var a removeTracepointArgs
		decode(args, &a)
		if err := e.RemoveTracepoint(replay.TracepointId(a.Id)); err != nil {
			return nil, nil, err
		}
		body, err := marshal(e.Tracepoints())
		return body, nil, err
	case "ct/load-tracepoints":
		body, err := marshal(e.Tracepoints())
		return body, nil, err

	case "ct/load-calltrace-section":
		var a calltraceLoadArgs
		decode(args, &a)
		body, err := marshal(e.LoadCalltrace(a.Start, a.Count, a.Depth))
		return body, nil, err
	case "ct/search-calltrace":
		var a callSearchArgs
		decode(args, &a)
		body, err := marshal(e.SearchCalltrace(a.Query, a.Limit))
		return body, nil, err
	case "ct/event-load":
		body, err := marshal(e.LoadEvents())
		return body, nil, err
	case "ct/load-terminal":
		body, err := marshal(struct {
			Output string `json:"output"`
		}{e.LoadTerminal()})
		return body, nil, err
	case "ct/list-processes", "ct/select-replay":
		return nil, nil, fmt.Errorf("%w: multi-process support", replay.ErrUnsupported)
	case "ct/run-tracepoints":
		var a runTracepointsArgs
		decode(args, &a)
		hits, compileErrs := e.RunTracepoints(a.StopAfter)
		body, err := marshal(struct {
			Hits        []replay.TracepointHit `json:"hits"`
			CompileErrs map[string]string      `json:"compileErrors,omitempty"`
		}{hits, stringifyErrs(compileErrs)})
		return body, nil, err

	default:
		return nil, nil, fmt.Errorf("unimplemented command: %s", command)
	}
}

// decode ignores malformed/absent arguments rather than failing the
// request: every argument struct's zero value is a usable default (e.g.
// forward=false steps backward, which navigation.go treats the same as
// any other explicit direction).
func decode(args json.RawMessage, v any) {
	if len(args) == 0 {
		return
	}
	_ = json.Unmarshal(args, v)
}

func marshal(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal response body: %w", err)
	}
	return b, nil
}

func stringifyErrs(errs map[replay.TracepointId]error) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	out := make(map[string]string, len(errs))
	for id, err := range errs {
		out[fmt.Sprintf("%d", int64(id))] = err.Error()
	}
	return out
}
