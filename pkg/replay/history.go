package replay

import (
	"reflect"

	"github.com/ormasoftchile/codetracer/pkg/trace"
)

// HistoryEntry is one change record for a watched variable.
type HistoryEntry struct {
	Location    Location          `json:"location"`
	Value       trace.ValueRecord `json:"value"`
	Time        int64             `json:"time"`
	Description string            `json:"description"`
}

// ValueHistory scans steps within the call active at atStep, emitting a
// record every time variableName's value changes. Restricting to the
// call boundary avoids cross-frame confusion between unrelated locals
// that happen to share a name.
func (e *Engine) ValueHistory(variableName string, atStep trace.StepId) []HistoryEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	callKey := e.db.CallKeyForStep(atStep)
	var history []HistoryEntry
	var prev trace.ValueRecord

	for step := range e.db.Steps {
		s := e.db.Steps[step]
		if s.CallKey != callKey {
			continue
		}
		v, ok := e.valueOfNamedAt(trace.StepId(step), variableName)
		if !ok {
			continue
		}
		if prev != nil && sameValue(prev, v) {
			continue
		}
		prev = v
		loc := e.locationAt(trace.StepId(step))
		history = append(history, HistoryEntry{
			Location:    loc,
			Value:       v,
			Time:        int64(step),
			Description: describeChange(variableName, v),
		})
	}
	return history
}

func (e *Engine) valueOfNamedAt(step trace.StepId, name string) (trace.ValueRecord, bool) {
	if int(step) < len(e.db.FullValues) {
		for vid, v := range e.db.FullValues[step] {
			if e.db.VariableName(vid) == name {
				return v, true
			}
		}
	}
	if int(step) < len(e.db.VariableCells) {
		for vid, place := range e.db.VariableCells[step] {
			if e.db.VariableName(vid) == name {
				return e.db.LoadValueForPlace(place, step), true
			}
		}
	}
	return nil, false
}

func sameValue(a, b trace.ValueRecord) bool {
	return reflect.DeepEqual(valueToNative(a), valueToNative(b))
}

func describeChange(name string, v trace.ValueRecord) string {
	return name + " changed"
}
