// Package replay implements the replay engine: given an immutable
// trace.Db, it owns a step cursor and answers navigation, inspection,
// breakpoint, history, flow-reconstruction and tracepoint queries.
package replay

import "errors"

var (
	// ErrExpressionError is returned by Evaluate/tracepoint compilation on
	// a malformed or unsupported expression.
	ErrExpressionError = errors.New("expression error")
	// ErrUnknownVariable is returned when Evaluate can't find a matching
	// local.
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrUnsupported is returned by operations the DB-trace backend does
	// not implement (e.g. backward watchpoint scanning).
	ErrUnsupported = errors.New("unsupported")
	// ErrUnknownID is returned by breakpoint/watchpoint mutation on an id
	// that was never allocated, or already removed.
	ErrUnknownID = errors.New("unknown id")
)
