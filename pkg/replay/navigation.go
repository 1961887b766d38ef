package replay

import (
	"strconv"

	"github.com/ormasoftchile/codetracer/pkg/trace"
)

// innerSafetyCap bounds Next's inner scan so a pathological trace (e.g. a
// call that never returns at depth+1 for the remaining trace) cannot spin
// forever.
const innerSafetyCap = 1000

// NavigationResult carries a Location plus a human-readable note for
// operations that can report something beyond plain position (hit
// breakpoint N / no breakpoint hit / beginning or end of record reached),
// an informational notification for boundaries.
type NavigationResult struct {
	Location Location `json:"location"`
	Note     string   `json:"note"`
}

func step(cur trace.StepId, forward bool) trace.StepId {
	if forward {
		return cur + 1
	}
	return cur - 1
}

// Next implements "step over": advance past any step nested deeper than
// the starting depth, stopping at the first step at depth <= start on a
// different (path,line,call), at a trace boundary, or after
// innerSafetyCap inner iterations.
func (e *Engine) Next(forward bool) NavigationResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.current
	startDepth := e.depthAt(start)
	startStep := e.db.Steps[start]

	cur := start
	for i := 0; i < innerSafetyCap; i++ {
		next, boundary := e.clamp(step(cur, forward))
		if boundary {
			e.current = next
			loc := e.locationAt(e.current)
			loc.EndOfTrace = true
			return NavigationResult{Location: loc, Note: "beginning or end of record reached"}
		}
		cur = next
		depth := e.depthAt(cur)
		if depth > startDepth {
			continue
		}
		s := e.db.Steps[cur]
		if depth <= startDepth && (s.PathId != startStep.PathId || s.Line != startStep.Line || s.CallKey != startStep.CallKey) {
			e.current = cur
			return NavigationResult{Location: e.locationAt(e.current)}
		}
	}
	// Safety cap exceeded: stop where we are rather than spinning.
	e.current = cur
	return NavigationResult{Location: e.locationAt(e.current), Note: "step-over safety cap reached"}
}

// StepOut moves until the first step whose depth is strictly less than
// the starting depth, or a trace boundary.
func (e *Engine) StepOut(forward bool) NavigationResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	startDepth := e.depthAt(e.current)
	cur := e.current
	for {
		next, boundary := e.clamp(step(cur, forward))
		if boundary {
			e.current = next
			loc := e.locationAt(e.current)
			loc.EndOfTrace = true
			return NavigationResult{Location: loc, Note: "beginning or end of record reached"}
		}
		cur = next
		if e.depthAt(cur) < startDepth {
			e.current = cur
			return NavigationResult{Location: e.locationAt(e.current)}
		}
	}
}

// Continue moves in the given direction, stopping at the first step whose
// (path,line) matches an enabled breakpoint, else clamps to the trace
// boundary and reports "no breakpoint hit".
func (e *Engine) Continue(forward bool) NavigationResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.current
	for {
		next, boundary := e.clamp(step(cur, forward))
		if boundary {
			e.current = next
			loc := e.locationAt(e.current)
			loc.EndOfTrace = true
			return NavigationResult{Location: loc, Note: "no breakpoint hit"}
		}
		cur = next
		if bp := e.breakpointAt(cur); bp != nil {
			e.current = cur
			return NavigationResult{
				Location: e.locationAt(e.current),
				Note:     noteHitBreakpoint(bp.Id),
			}
		}
	}
}

func (e *Engine) breakpointAt(step trace.StepId) *Breakpoint {
	s := e.db.Steps[step]
	path := e.db.PathString(s.PathId)
	for _, bp := range e.breakpoints {
		if bp.Enabled && bp.Path == path && bp.Line == s.Line {
			return bp
		}
	}
	return nil
}

func noteHitBreakpoint(id BreakpointId) string {
	return "hit breakpoint " + strconv.FormatInt(int64(id), 10)
}
