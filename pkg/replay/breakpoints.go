package replay

import "fmt"

// AddBreakpoint allocates a new monotonic id for (path,line), enabled by
// default.
func (e *Engine) AddBreakpoint(path string, line int) BreakpointId {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextBpId++
	id := e.nextBpId
	e.breakpoints[id] = &Breakpoint{Id: id, Path: path, Line: line, Enabled: true}
	return id
}

// RemoveBreakpoint removes exactly the named breakpoint, leaving all
// others untouched.
func (e *Engine) RemoveBreakpoint(id BreakpointId) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.breakpoints[id]; !ok {
		return fmt.Errorf("%w: breakpoint %d", ErrUnknownID, id)
	}
	delete(e.breakpoints, id)
	return nil
}

// ToggleBreakpoint flips Enabled on one breakpoint.
func (e *Engine) ToggleBreakpoint(id BreakpointId) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	bp, ok := e.breakpoints[id]
	if !ok {
		return fmt.Errorf("%w: breakpoint %d", ErrUnknownID, id)
	}
	bp.Enabled = !bp.Enabled
	return nil
}

// EnableAllBreakpoints enables every breakpoint in the session.
func (e *Engine) EnableAllBreakpoints() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, bp := range e.breakpoints {
		bp.Enabled = true
	}
}

// DisableAllBreakpoints disables every breakpoint in the session.
func (e *Engine) DisableAllBreakpoints() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, bp := range e.breakpoints {
		bp.Enabled = false
	}
}

// Breakpoints returns a snapshot of all breakpoints, sorted by id.
func (e *Engine) Breakpoints() []Breakpoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Breakpoint, 0, len(e.breakpoints))
	for _, bp := range e.breakpoints {
		out = append(out, *bp)
	}
	sortBreakpoints(out)
	return out
}

// BreakpointsForPath returns the line numbers of every breakpoint set on
// path, regardless of enabled state, in no particular order.
func (e *Engine) BreakpointsForPath(path string) []int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var lines []int
	for _, bp := range e.breakpoints {
		if bp.Path == path {
			lines = append(lines, bp.Line)
		}
	}
	return lines
}

func sortBreakpoints(bps []Breakpoint) {
	for i := 1; i < len(bps); i++ {
		for j := i; j > 0 && bps[j-1].Id > bps[j].Id; j-- {
			bps[j-1], bps[j] = bps[j], bps[j-1]
		}
	}
}
