package replay

import "github.com/ormasoftchile/codetracer/pkg/trace"

// FlowStep is one execution of a watched line.
type FlowStep struct {
	Step         trace.StepId `json:"step"`
	LoopId       int          `json:"loopId"`
	Iteration    int          `json:"iteration"`
	ValuesBefore []Variable   `json:"valuesBefore"`
	ValuesAfter  []Variable   `json:"valuesAfter"`
}

// FlowLoop describes one discovered loop over the watched line.
type FlowLoop struct {
	Id         int           `json:"id"`
	CallKey    trace.CallKey `json:"callKey"`
	Iterations int           `json:"iterations"`
}

// FlowResult is the reconstructed per-line flow.
type FlowResult struct {
	Steps []FlowStep `json:"steps"`
	Loops []FlowLoop `json:"loops"`
}

// ValueTrace reconstructs per-line flow for path:line: every execution of
// that line, grouped into loops by enclosing call (each distinct call_key
// visiting the line is treated as one loop instance, consecutive visits
// within it as iterations), with before/after locals snapshots.
// Intended to run on the dedicated flow worker thread since a hot line
// in a long trace can make this scan expensive.
func (e *Engine) ValueTrace(path string, line int) FlowResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	loopIdByCall := make(map[trace.CallKey]int)
	iterByCall := make(map[trace.CallKey]int)
	var loops []FlowLoop
	var steps []FlowStep

	for i, s := range e.db.Steps {
		if e.db.PathString(s.PathId) != path || s.Line != line {
			continue
		}
		step := trace.StepId(i)
		loopId, ok := loopIdByCall[s.CallKey]
		if !ok {
			loopId = len(loops)
			loopIdByCall[s.CallKey] = loopId
			loops = append(loops, FlowLoop{Id: loopId, CallKey: s.CallKey})
		}
		iter := iterByCall[s.CallKey]
		iterByCall[s.CallKey] = iter + 1
		loops[loopId].Iterations = iter + 1

		var before []Variable
		if step > 0 {
			before = e.localsAtUnlocked(step-1, 0, 0)
		}
		after := e.localsAtUnlocked(step, 0, 0)

		steps = append(steps, FlowStep{
			Step:         step,
			LoopId:       loopId,
			Iteration:    iter,
			ValuesBefore: before,
			ValuesAfter:  after,
		})
	}
	return FlowResult{Steps: steps, Loops: loops}
}

// localsAtUnlocked computes locals for an arbitrary step without taking
// e.mu (callers must already hold it) and without moving the cursor.
func (e *Engine) localsAtUnlocked(step trace.StepId, depthLimit, countBudget int) []Variable {
	saved := e.current
	e.current = step
	defer func() { e.current = saved }()

	byName := make(map[string]trace.ValueRecord)
	var order []string
	if int(step) < len(e.db.FullValues) {
		for vid, v := range e.db.FullValues[step] {
			name := e.db.VariableName(vid)
			if _, seen := byName[name]; !seen {
				order = append(order, name)
			}
			byName[name] = v
		}
	}
	if int(step) < len(e.db.VariableCells) {
		for vid, place := range e.db.VariableCells[step] {
			name := e.db.VariableName(vid)
			if _, seen := byName[name]; !seen {
				order = append(order, name)
			}
			byName[name] = e.db.LoadValueForPlace(place, step)
		}
	}
	vars := make([]Variable, len(order))
	for i, name := range order {
		vars[i] = Variable{Name: name, Value: byName[name]}
	}
	return vars
}
