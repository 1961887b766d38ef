// Package pybridge translates the simplified "navigate / locals /
// evaluate / flow / breakpoint" command surface into the backend's DAP
// dialect, including the navigation pending-request state
// machine and the breakpoint/watchpoint shadow maps.
package pybridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ormasoftchile/codetracer/pkg/dap"
)

// internalSeqFloor keeps the bridge's own internal requests (stackTrace
// after a nav command, for instance) from ever colliding with a seq a
// client chose itself.
const internalSeqFloor = 1_000_000

// Response is the bridge's uniform reply shape: exactly one of Body or
// Message is set, mirroring the backend's error contract.
type Response struct {
	Success bool            `json:"success"`
	Body    json.RawMessage `json:"body,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Bridge owns one navigation/breakpoint/watchpoint session against a
// single backend dispatcher. It reads the dispatcher's Out() channel
// directly and drops messages it is not waiting for, so it assumes no
// other reader of that channel. pkg/daemon does not create Bridges: the
// daemon answers ct/py-read-source itself and passes other ct/py-*
// commands to the session's dispatcher unchanged.
type Bridge struct {
	d           *dap.Dispatcher
	seq         int64
	internalSeq int64

	breakpoints *shadowMap
	watchpoints *shadowMap

	timeout time.Duration
}

// New creates a Bridge fronting d. timeout bounds every internal DAP
// round trip; zero selects a 5 second default.
func New(d *dap.Dispatcher, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bridge{
		d:           d,
		internalSeq: internalSeqFloor,
		breakpoints: newShadowMap(),
		watchpoints: newShadowMap(),
		timeout:     timeout,
	}
}

func (b *Bridge) nextSeq() int64         { return atomic.AddInt64(&b.seq, 1) }
func (b *Bridge) nextInternalSeq() int64 { return atomic.AddInt64(&b.internalSeq, 1) }

// navigateMethods maps each py-navigate method to its DAP command and
// fixed `forward` argument.
var navigateMethods = map[string]struct {
	command string
	forward bool
}{
	"step_over":         {"next", true},
	"step_in":           {"stepIn", true},
	"step_out":          {"stepOut", true},
	"step_back":         {"stepBack", false},
	"reverse_step_in":   {"stepIn", false},
	"reverse_step_out":  {"stepOut", false},
	"continue_forward":  {"continue", true},
	"continue_reverse":  {"continue", false},
	"goto_ticks":        {"gotoTicks", true},
}

// NavResult is the simplified py-navigate response body.
type NavResult struct {
	Path       string `json:"path"`
	Line       int    `json:"line"`
	Column     int    `json:"column"`
	Ticks      int64  `json:"ticks"`
	EndOfTrace bool   `json:"endOfTrace"`
}

// Navigate drives the AwaitingStopped -> AwaitingStackTrace -> Done state
// machine for one py-navigate request. ticks is only meaningful for
// goto_ticks.
func (b *Bridge) Navigate(ctx context.Context, method string, ticks int64) Response {
	mapping, ok := navigateMethods[method]
	if !ok {
		return errorResponse(ErrUnknownMethod)
	}

	var args json.RawMessage
	if mapping.command == "gotoTicks" {
		args, _ = json.Marshal(struct {
			Ticks int64 `json:"ticks"`
		}{ticks})
	} else {
		args, _ = json.Marshal(struct {
			Forward bool `json:"forward"`
		}{mapping.forward})
	}

	navSeq := b.nextSeq()
	b.d.Dispatch(&dap.Message{Seq: navSeq, Type: "request", Command: mapping.command, Arguments: args})

	// AwaitingStopped: the nav command's own response is silently
	// consumed; only the follow-on `stopped` event advances the
	// machine.
	if _, err := b.awaitEvent(ctx, "stopped"); err != nil {
		return errorResponse(err)
	}

	// AwaitingStackTrace
	stSeq := b.nextInternalSeq()
	b.d.Dispatch(&dap.Message{Seq: stSeq, Type: "request", Command: "stackTrace"})
	resp, err := b.awaitResponse(ctx, stSeq)
	if err != nil {
		return errorResponse(err)
	}
	if !resp.Success {
		return errorResponse(fmt.Errorf("%s", translateBackendError(resp.Message)))
	}

	var frames []struct {
		Location struct {
			Path       string `json:"path"`
			Line       int    `json:"line"`
			Column     int    `json:"column"`
			Ticks      int64  `json:"ticks"`
			EndOfTrace bool   `json:"endOfTrace"`
		} `json:"location"`
	}
	if err := json.Unmarshal(resp.Body, &frames); err != nil {
		return errorResponse(fmt.Errorf("pybridge: decode stackTrace response: %w", err))
	}
	if len(frames) == 0 {
		return errorResponse(fmt.Errorf("pybridge: empty stack trace after navigation"))
	}
	top := frames[0].Location
	return bodyResponse(NavResult{
		Path: top.Path, Line: top.Line, Column: top.Column,
		Ticks: top.Ticks, EndOfTrace: top.EndOfTrace,
	})
}

// Locals implements py-locals.
func (b *Bridge) Locals(ctx context.Context, depthLimit, countBudget int) Response {
	args, _ := json.Marshal(struct {
		DepthLimit  int `json:"depthLimit"`
		CountBudget int `json:"countBudget"`
	}{depthLimit, countBudget})
	resp, err := b.request(ctx, "ct/load-locals", args)
	if err != nil {
		return errorResponse(err)
	}
	if !resp.Success {
		return errorResponse(fmt.Errorf("%s", translateBackendError(resp.Message)))
	}
	return bodyResponse(struct {
		Variables json.RawMessage `json:"variables"`
	}{resp.Body})
}

// Evaluate implements py-evaluate.
func (b *Bridge) Evaluate(ctx context.Context, expression string) Response {
	args, _ := json.Marshal(struct {
		Expression string `json:"expression"`
	}{expression})
	resp, err := b.request(ctx, "evaluate", args)
	if err != nil {
		return errorResponse(err)
	}
	if !resp.Success {
		return errorResponse(fmt.Errorf("%s", translateBackendError(resp.Message)))
	}
	return bodyResponse(json.RawMessage(resp.Body))
}

// StackTrace implements py-stack-trace.
func (b *Bridge) StackTrace(ctx context.Context) Response {
	resp, err := b.request(ctx, "stackTrace", nil)
	if err != nil {
		return errorResponse(err)
	}
	if !resp.Success {
		return errorResponse(fmt.Errorf("%s", translateBackendError(resp.Message)))
	}
	return bodyResponse(struct {
		Frames json.RawMessage `json:"frames"`
	}{resp.Body})
}

// Flow implements py-flow: issue ct/load-flow, then wait for the
// ct/updated-flow event before returning the result the command's own
// response already carries.
func (b *Bridge) Flow(ctx context.Context, path string, line int) Response {
	args, _ := json.Marshal(struct {
		Path string `json:"path"`
		Line int    `json:"line"`
	}{path, line})
	return b.requestThenEvent(ctx, "ct/load-flow", args, "ct/updated-flow")
}

// request sends one request and waits for its matching response,
// without any event in between.
func (b *Bridge) request(ctx context.Context, command string, args json.RawMessage) (*dap.Message, error) {
	seq := b.nextSeq()
	b.d.Dispatch(&dap.Message{Seq: seq, Type: "request", Command: command, Arguments: args})
	return b.awaitResponse(ctx, seq)
}

func (b *Bridge) awaitResponse(ctx context.Context, seq int64) (*dap.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	for {
		select {
		case msg := <-b.d.Out():
			if msg.Type == "response" && msg.RequestSeq == seq {
				return msg, nil
			}
		case <-ctx.Done():
			return nil, ErrTimeout
		}
	}
}

func (b *Bridge) awaitEvent(ctx context.Context, event string) (*dap.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	for {
		select {
		case msg := <-b.d.Out():
			if msg.Type == "event" && msg.Event == event {
				return msg, nil
			}
		case <-ctx.Done():
			return nil, ErrTimeout
		}
	}
}

func bodyResponse(v any) Response {
	body, err := json.Marshal(v)
	if err != nil {
		return errorResponse(fmt.Errorf("pybridge: marshal response: %w", err))
	}
	return Response{Success: true, Body: body}
}

func errorResponse(err error) Response {
	return Response{Success: false, Message: err.Error()}
}
