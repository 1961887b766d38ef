package replay

import (
	"sync"

	"github.com/ormasoftchile/codetracer/pkg/trace"
)

// BreakpointId identifies one breakpoint within a session. Monotonic.
type BreakpointId int64

// WatchpointId identifies one watchpoint within a session. Monotonic.
type WatchpointId int64

// TracepointId identifies one tracepoint within a session. Monotonic.
type TracepointId int64

// Breakpoint is a location-based halt condition.
type Breakpoint struct {
	Id      BreakpointId `json:"id"`
	Path    string       `json:"path"`
	Line    int          `json:"line"`
	Enabled bool         `json:"enabled"`
}

// Watchpoint is a value-based halt condition. DB traces do not
// implement backward scanning; see ContinueToWatchpoint / ErrUnsupported.
type Watchpoint struct {
	Id         WatchpointId `json:"id"`
	Expression string       `json:"expression"`
}

// Tracepoint is a conditional logger attached to a source line.
type Tracepoint struct {
	Id         TracepointId `json:"id"`
	Path       string       `json:"path"`
	Line       int          `json:"line"`
	Expression string       `json:"expression"`
}

// Engine is one replay instance over one immutable trace.Db. Each backend
// worker thread owns its own Engine instance; Engine itself is not safe
// for concurrent use by multiple goroutines. The mutex here guards only
// the rare case of a read-only snapshot being taken from another
// goroutine.
type Engine struct {
	db      *trace.Db
	current trace.StepId

	mu sync.RWMutex

	breakpoints   map[BreakpointId]*Breakpoint
	nextBpId      BreakpointId
	watchpoints   map[WatchpointId]*Watchpoint
	nextWpId      WatchpointId
	tracepoints   map[TracepointId]*Tracepoint
	nextTpId      TracepointId
}

// New creates a replay engine positioned at the first step of db.
func New(db *trace.Db) *Engine {
	return &Engine{
		db:          db,
		current:     0,
		breakpoints: make(map[BreakpointId]*Breakpoint),
		watchpoints: make(map[WatchpointId]*Watchpoint),
		tracepoints: make(map[TracepointId]*Tracepoint),
	}
}

// Db exposes the underlying trace database (read-only).
func (e *Engine) Db() *trace.Db { return e.db }

// CurrentStep returns the cursor's current step id.
func (e *Engine) CurrentStep() trace.StepId {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// CurrentLocation returns the Location at the cursor without moving it.
func (e *Engine) CurrentLocation() Location {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.locationAt(e.current)
}

func (e *Engine) depthAt(step trace.StepId) int {
	call, ok := e.db.Call(e.db.CallKeyForStep(step))
	if !ok {
		return 0
	}
	return call.Depth
}

func (e *Engine) lastStep() trace.StepId {
	return trace.StepId(len(e.db.Steps) - 1)
}

// clamp returns step bounded to [0, lastStep], and whether it was
// out of range before clamping (the boundary indicator).
func (e *Engine) clamp(step trace.StepId) (trace.StepId, bool) {
	last := e.lastStep()
	if step < 0 {
		return 0, true
	}
	if step > last {
		return last, true
	}
	return step, false
}

// JumpTo sets the cursor directly.
func (e *Engine) JumpTo(step trace.StepId) Location {
	e.mu.Lock()
	defer e.mu.Unlock()
	clamped, _ := e.clamp(step)
	e.current = clamped
	return e.locationAt(e.current)
}

// StepIn moves exactly one step in the given direction, clamping at a
// trace boundary (step_in(fwd) then step_in(!fwd) is a no-op except at
// boundaries).
func (e *Engine) StepIn(forward bool) Location {
	e.mu.Lock()
	defer e.mu.Unlock()
	delta := trace.StepId(1)
	if !forward {
		delta = -1
	}
	next, boundary := e.clamp(e.current + delta)
	e.current = next
	loc := e.locationAt(e.current)
	loc.EndOfTrace = boundary
	return loc
}
