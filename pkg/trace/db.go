package trace

import "sort"

// Db is the immutable, indexed in-memory trace database produced by Load.
// It is read-only after construction and safely shared across the
// stable/flow/tracepoint worker threads of the owning backend.
//
// Grounded in original_source/src/db-backend/src/db.rs's Db struct, with
// the same tables but expressed as plain Go slices/maps instead of a
// handwritten arena.
type Db struct {
	Metadata Metadata

	Paths     []PathEntry
	Functions []FunctionEntry
	Types     []TypeEntry
	Variables []string // VariableId -> name

	Steps []Step
	Calls []Call

	// VariableCells[stepId][variableId] = Place, written by the loader,
	// read by locals queries.
	VariableCells []map[VariableId]Place

	// CellLog[place] is ordered by StepId ascending.
	CellLog map[Place][]CellChange

	Events []Event

	// FullValues[stepId] holds the "full-value" locals view: variables
	// recorded at that step as complete value records rather than cell
	// references.
	FullValues []map[VariableId]ValueRecord
}

// PathString returns the raw recorded path for id.
func (db *Db) PathString(id PathId) string {
	if int(id) < 0 || int(id) >= len(db.Paths) {
		return ""
	}
	return db.Paths[id].Raw
}

// VariableName returns the name bound to a VariableId.
func (db *Db) VariableName(id VariableId) string {
	if int(id) < 0 || int(id) >= len(db.Variables) {
		return ""
	}
	return db.Variables[id]
}

// CallKeyForStep returns the call owning a step.
func (db *Db) CallKeyForStep(stepId StepId) CallKey {
	if int(stepId) < 0 || int(stepId) >= len(db.Steps) {
		return NoCall
	}
	return db.Steps[stepId].CallKey
}

// Call looks up a call record by key.
func (db *Db) Call(key CallKey) (*Call, bool) {
	if int(key) < 0 || int(key) >= len(db.Calls) {
		return nil, false
	}
	return &db.Calls[key], true
}

// LoadValueForPlace implements the cell-change invariant: the value
// at Place p when the current step is s is the value written by the
// greatest change with step_id <= s, or an ErrorValue if none exists.
func (db *Db) LoadValueForPlace(p Place, step StepId) ValueRecord {
	changes := db.CellLog[p]
	if len(changes) == 0 {
		return ErrorValue{Message: "no cell change recorded for place"}
	}
	// changes is ordered by StepId ascending; binary-search the greatest
	// index whose StepId <= step.
	i := sort.Search(len(changes), func(i int) bool { return changes[i].StepId > step })
	if i == 0 {
		return ErrorValue{Message: "place not yet written at this step"}
	}
	return changes[i-1].Value
}

// ResolveValue fully resolves a ValueRecord at a given step, following a
// single Cell indirection if present. Non-cell variants are returned
// unchanged (they are self-contained).
func (db *Db) ResolveValue(v ValueRecord, step StepId) ValueRecord {
	if cell, ok := v.(CellValue); ok {
		return db.LoadValueForPlace(cell.P, step)
	}
	return v
}

// StepEvents returns events tied to a given step; if exact is false,
// events up to and including that step are returned (used for the
// terminal/events views that accumulate output as the trace advances).
func (db *Db) StepEvents(step StepId, exact bool) []Event {
	var out []Event
	for _, e := range db.Events {
		if exact {
			if e.StepId == step {
				out = append(out, e)
			}
			continue
		}
		if e.StepId <= step {
			out = append(out, e)
		}
	}
	return out
}
