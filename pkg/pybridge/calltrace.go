package pybridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ormasoftchile/codetracer/pkg/dap"
)

// Calltrace implements py-calltrace: ct/load-calltrace-section, then wait
// for the ct/updated-calltrace event, mirroring Flow's request-then-event
// shape.
func (b *Bridge) Calltrace(ctx context.Context, start, count, depth int) Response {
	args, _ := json.Marshal(struct {
		Start int `json:"start"`
		Count int `json:"count"`
		Depth int `json:"depth"`
	}{start, count, depth})
	return b.requestThenEvent(ctx, "ct/load-calltrace-section", args, "ct/updated-calltrace")
}

// SearchCalltrace implements py-search-calltrace.
func (b *Bridge) SearchCalltrace(ctx context.Context, query string, limit int) Response {
	args, _ := json.Marshal(struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}{query, limit})
	return b.requestThenEvent(ctx, "ct/search-calltrace", args, "ct/calltrace-search-res")
}

// Events implements py-events.
func (b *Bridge) Events(ctx context.Context) Response {
	return b.requestThenEvent(ctx, "ct/event-load", nil, "ct/updated-events")
}

// Terminal implements py-terminal.
func (b *Bridge) Terminal(ctx context.Context) Response {
	return b.requestThenEvent(ctx, "ct/load-terminal", nil, "ct/loaded-terminal")
}

// Processes implements py-processes. The underlying replay engine only
// models a single trace/process, so this always returns an error response —
// matching the real backend's own current behavior rather than papering
// over the gap with a fake single-entry process list.
func (b *Bridge) Processes(ctx context.Context) Response {
	resp, err := b.request(ctx, "ct/list-processes", nil)
	if err != nil {
		return errorResponse(err)
	}
	if !resp.Success {
		return errorResponse(fmt.Errorf("%s", translateBackendError(resp.Message)))
	}
	return bodyResponse(json.RawMessage(resp.Body))
}

// SelectProcess implements py-select-process; see Processes.
func (b *Bridge) SelectProcess(ctx context.Context, pid int64) Response {
	args, _ := json.Marshal(struct {
		Pid int64 `json:"pid"`
	}{pid})
	resp, err := b.request(ctx, "ct/select-replay", args)
	if err != nil {
		return errorResponse(err)
	}
	if !resp.Success {
		return errorResponse(fmt.Errorf("%s", translateBackendError(resp.Message)))
	}
	return bodyResponse(json.RawMessage(resp.Body))
}

// requestThenEvent sends command, waits for its own response, and then
// (only on success) waits for the named follow-up event before returning
// the response body. For these commands the result is the response body;
// the follow-up event carries no body and only signals that the backend
// has finished the command.
func (b *Bridge) requestThenEvent(ctx context.Context, command string, args json.RawMessage, event string) Response {
	seq := b.nextSeq()
	b.d.Dispatch(&dap.Message{Seq: seq, Type: "request", Command: command, Arguments: args})
	resp, err := b.awaitResponse(ctx, seq)
	if err != nil {
		return errorResponse(err)
	}
	if !resp.Success {
		return errorResponse(fmt.Errorf("%s", translateBackendError(resp.Message)))
	}
	if _, err := b.awaitEvent(ctx, event); err != nil {
		return errorResponse(err)
	}
	return bodyResponse(json.RawMessage(resp.Body))
}
