package replay

import (
	"fmt"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/ormasoftchile/codetracer/pkg/trace"
)

// TracepointHit is one recorded evaluation of a tracepoint.
type TracepointHit struct {
	TracepointId TracepointId `json:"tracepointId"`
	Path         string       `json:"path"`
	Line         int          `json:"line"`
	Ticks        int64        `json:"ticks"`
	Iteration    int          `json:"iteration"`
	Values       []Variable   `json:"values"`
}

// AddTracepoint registers a conditional logger on path:line.
func (e *Engine) AddTracepoint(path string, line int, expression string) TracepointId {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextTpId++
	id := e.nextTpId
	e.tracepoints[id] = &Tracepoint{Id: id, Path: path, Line: line, Expression: expression}
	return id
}

// RemoveTracepoint removes exactly the named tracepoint.
func (e *Engine) RemoveTracepoint(id TracepointId) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tracepoints[id]; !ok {
		return fmt.Errorf("%w: tracepoint %d", ErrUnknownID, id)
	}
	delete(e.tracepoints, id)
	return nil
}

// Tracepoints returns a snapshot of all registered tracepoints.
func (e *Engine) Tracepoints() []Tracepoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Tracepoint, 0, len(e.tracepoints))
	for _, tp := range e.tracepoints {
		out = append(out, *tp)
	}
	return out
}

// RunTracepoints walks the whole trace once, evaluating each tracepoint's
// expression at its line. stopAfter bounds
// the number of hits per tracepoint (0 = unbounded). A tracepoint whose
// expression fails to compile is skipped for every hit but never aborts
// evaluation of the others — compileErrs carries those failures keyed by
// TracepointId so the caller can surface them per tracepoint.
func (e *Engine) RunTracepoints(stopAfter int) (hits []TracepointHit, compileErrs map[TracepointId]error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	compileErrs = make(map[TracepointId]error)
	programs := make(map[TracepointId]*vm.Program)
	byLocation := make(map[string][]*Tracepoint)
	for _, tp := range e.tracepoints {
		prog, err := expr.Compile(tp.Expression)
		if err != nil {
			compileErrs[tp.Id] = fmt.Errorf("%w: %v", ErrExpressionError, err)
			continue
		}
		programs[tp.Id] = prog
		key := tp.Path + ":" + strconv.Itoa(tp.Line)
		byLocation[key] = append(byLocation[key], tp)
	}
	if len(byLocation) == 0 {
		return nil, compileErrs
	}

	iteration := make(map[TracepointId]int)
	for i, s := range e.db.Steps {
		path := e.db.PathString(s.PathId)
		key := path + ":" + strconv.Itoa(s.Line)
		tps, ok := byLocation[key]
		if !ok {
			continue
		}
		step := trace.StepId(i)
		locals := e.localsAtUnlocked(step, 1<<30, 0)
		env := make(map[string]any, len(locals))
		for _, v := range locals {
			env[v.Name] = valueToNative(v.Value)
		}
		for _, tp := range tps {
			if stopAfter > 0 && iteration[tp.Id] >= stopAfter {
				continue
			}
			prog := programs[tp.Id]
			if _, err := expr.Run(prog, env); err != nil {
				compileErrs[tp.Id] = fmt.Errorf("%w: %v", ErrExpressionError, err)
				continue
			}
			hits = append(hits, TracepointHit{
				TracepointId: tp.Id,
				Path:         path,
				Line:         s.Line,
				Ticks:        int64(step),
				Iteration:    iteration[tp.Id],
				Values:       locals,
			})
			iteration[tp.Id]++
		}
	}
	return hits, compileErrs
}
