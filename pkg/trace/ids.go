// Package trace loads a recorded execution trace into an in-memory,
// indexed, queryable database. See Load.
package trace

// PathId, FunctionId, TypeId, VariableId, Place, CallKey and StepId are
// dense integer ids, following the recorder's own id scheme
// (original_source/src/db-backend/src/types.rs): small newtypes over
// int rather than strings, so tables can be plain slices.

// PathId indexes the path table.
type PathId int64

// FunctionId indexes the function table.
type FunctionId int64

// TypeId indexes the type table. A handful of slots are predefined.
type TypeId int64

const (
	TypeIdNone TypeId = iota
	TypeIdInt
	TypeIdBool
)

// VariableId indexes the variable-name table.
type VariableId int64

// Place names a value-storage slot referenced by Cell value records.
type Place int64

// CallKey identifies one call-forest node.
type CallKey int64

// NoCall is the CallKey used for steps outside any call (should not occur
// in a well-formed trace, but kept as a sentinel for defensive checks).
const NoCall CallKey = -1

// StepId is the logical clock: steps are totally ordered 0..N and
// step_id doubles as "ticks".
type StepId int64
