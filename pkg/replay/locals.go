package replay

import (
	"sort"

	"github.com/ormasoftchile/codetracer/pkg/trace"
)

// Variable is one named local as returned by LoadLocals.
type Variable struct {
	Name  string            `json:"name"`
	Value trace.ValueRecord `json:"value"`
}

// LoadLocals merges two locals views:
// View A ("full-value") is read directly from the step's recorded
// complete value records; View B ("value-tracking") resolves cell
// references through the cell-change log. depthLimit bounds how many
// enclosing call frames (0 = current frame only) contribute variables;
// countBudget caps the number of variables returned (0 = unbounded).
func (e *Engine) LoadLocals(depthLimit, countBudget int) []Variable {
	e.mu.RLock()
	defer e.mu.RUnlock()

	byName := make(map[string]trace.ValueRecord)
	var order []string

	addAll := func(names map[string]trace.ValueRecord) {
		for name, v := range names {
			if _, seen := byName[name]; !seen {
				order = append(order, name)
				byName[name] = v // later frames are outer scopes; keep innermost wins
			}
		}
	}

	step := e.current
	frame := 0
	for step >= 0 && frame <= depthLimit {
		full := make(map[string]trace.ValueRecord)
		if int(step) < len(e.db.FullValues) {
			for vid, v := range e.db.FullValues[step] {
				full[e.db.VariableName(vid)] = v
			}
		}
		cells := make(map[string]trace.ValueRecord)
		if int(step) < len(e.db.VariableCells) {
			for vid, place := range e.db.VariableCells[step] {
				cells[e.db.VariableName(vid)] = e.db.LoadValueForPlace(place, e.current)
			}
		}
		// View A populated first so callers can tell which view a
		// duplicate name came from by precedence, then View B; within one
		// frame neither should overwrite the other's distinct names.
		addAll(full)
		addAll(cells)

		parentStep, ok := e.entryStepOfParent(step)
		if !ok {
			break
		}
		step = parentStep
		frame++
	}

	sort.Strings(order)
	// dedupe by name (order is already name-sorted, so dupes are adjacent)
	vars := make([]Variable, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		if seen[name] {
			continue
		}
		seen[name] = true
		vars = append(vars, Variable{Name: name, Value: byName[name]})
	}
	if countBudget > 0 && len(vars) > countBudget {
		vars = vars[:countBudget]
	}
	return vars
}

// entryStepOfParent returns the entry step of the call enclosing the
// call active at step, for locals-view frame walking.
func (e *Engine) entryStepOfParent(step trace.StepId) (trace.StepId, bool) {
	call, ok := e.db.Call(e.db.CallKeyForStep(step))
	if !ok || call.ParentKey == trace.NoCall {
		return 0, false
	}
	parent, ok := e.db.Call(call.ParentKey)
	if !ok {
		return 0, false
	}
	return parent.StepId, true
}
