package pybridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// AddBreakpoint implements py-add-breakpoint: register the line, then
// regenerate the full DAP `setBreakpoints` list for that file — DAP's
// setBreakpoints replaces a file's whole set, so the shadow map is what
// lets a single add/remove produce the right full list.
func (b *Bridge) AddBreakpoint(ctx context.Context, path string, line int) Response {
	id := b.breakpoints.add(path, strconv.Itoa(line))
	if resp := b.pushBreakpoints(ctx, path); !resp.Success {
		return resp
	}
	return bodyResponse(struct {
		BreakpointID int64 `json:"breakpointId"`
	}{id})
}

// RemoveBreakpoint implements py-remove-breakpoint.
func (b *Bridge) RemoveBreakpoint(ctx context.Context, id int64) Response {
	file, ok := b.breakpoints.remove(id)
	if !ok {
		return errorResponse(fmt.Errorf("no such breakpoint"))
	}
	return b.pushBreakpoints(ctx, file)
}

func (b *Bridge) pushBreakpoints(ctx context.Context, file string) Response {
	lines := make([]int, 0)
	for _, v := range b.breakpoints.valuesForFile(file) {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		lines = append(lines, n)
	}
	args, _ := json.Marshal(struct {
		Path  string `json:"path"`
		Lines []int  `json:"lines"`
	}{file, lines})
	resp, err := b.request(ctx, "setBreakpoints", args)
	if err != nil {
		return errorResponse(err)
	}
	if !resp.Success {
		return errorResponse(fmt.Errorf("%s", translateBackendError(resp.Message)))
	}
	return Response{Success: true}
}

// AddWatchpoint implements py-add-watchpoint: register the expression,
// then push the full current watchpoint set via setDataBreakpoints.
func (b *Bridge) AddWatchpoint(ctx context.Context, expression string) Response {
	id := b.watchpoints.add("", expression)
	if resp := b.pushWatchpoints(ctx); !resp.Success {
		return resp
	}
	return bodyResponse(struct {
		WatchpointID int64 `json:"watchpointId"`
	}{id})
}

// RemoveWatchpoint implements py-remove-watchpoint.
func (b *Bridge) RemoveWatchpoint(ctx context.Context, id int64) Response {
	if _, ok := b.watchpoints.remove(id); !ok {
		return errorResponse(fmt.Errorf("no such watchpoint"))
	}
	return b.pushWatchpoints(ctx)
}

func (b *Bridge) pushWatchpoints(ctx context.Context) Response {
	args, _ := json.Marshal(struct {
		Expressions []string `json:"expressions"`
	}{b.watchpoints.allValues()})
	resp, err := b.request(ctx, "setDataBreakpoints", args)
	if err != nil {
		return errorResponse(err)
	}
	if !resp.Success {
		return errorResponse(fmt.Errorf("%s", translateBackendError(resp.Message)))
	}
	return Response{Success: true}
}
