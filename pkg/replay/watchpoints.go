package replay

import "fmt"

// AddWatchpoint allocates a monotonic id for a value-based watch
// expression.
func (e *Engine) AddWatchpoint(expression string) WatchpointId {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextWpId++
	id := e.nextWpId
	e.watchpoints[id] = &Watchpoint{Id: id, Expression: expression}
	return id
}

// RemoveWatchpoint removes exactly the named watchpoint.
func (e *Engine) RemoveWatchpoint(id WatchpointId) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.watchpoints[id]; !ok {
		return fmt.Errorf("%w: watchpoint %d", ErrUnknownID, id)
	}
	delete(e.watchpoints, id)
	return nil
}

// Watchpoints returns every registered expression, in no particular
// order; the dispatcher returns it as the body of setDataBreakpoints and
// ct/remove-watchpoint.
func (e *Engine) Watchpoints() []Watchpoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Watchpoint, 0, len(e.watchpoints))
	for _, wp := range e.watchpoints {
		out = append(out, *wp)
	}
	return out
}

// ReplaceWatchpoints discards every registered watchpoint and re-adds
// expressions fresh, mirroring DAP's setDataBreakpoints semantics of
// replacing the whole set in one call rather than mutating it
// incrementally.
func (e *Engine) ReplaceWatchpoints(expressions []string) []Watchpoint {
	e.mu.Lock()
	e.watchpoints = make(map[WatchpointId]*Watchpoint, len(expressions))
	for _, expr := range expressions {
		e.nextWpId++
		e.watchpoints[e.nextWpId] = &Watchpoint{Id: e.nextWpId, Expression: expr}
	}
	e.mu.Unlock()
	return e.Watchpoints()
}

// ContinueToWatchpoint would scan backward/forward for the next step
// where a watched expression's value changes. DB traces do not implement
// this scan; the interface exists so callers fail cleanly
// rather than silently doing nothing.
func (e *Engine) ContinueToWatchpoint(id WatchpointId, forward bool) (NavigationResult, error) {
	e.mu.RLock()
	_, ok := e.watchpoints[id]
	e.mu.RUnlock()
	if !ok {
		return NavigationResult{}, fmt.Errorf("%w: watchpoint %d", ErrUnknownID, id)
	}
	return NavigationResult{}, fmt.Errorf("%w: watchpoint scanning on DB traces", ErrUnsupported)
}
