package replay

import (
	"fmt"

	"github.com/ormasoftchile/codetracer/pkg/trace"
)

// EvalResult is the result of Evaluate.
type EvalResult struct {
	Result trace.ValueRecord `json:"result"`
	Type   string            `json:"type"`
}

// Evaluate matches exprStr against local variable names only: DB traces
// carry no interpreter to fall back on, so anything beyond a bare local
// name (an operator, a call, a field access) fails with ErrExpressionError
// rather than being partially evaluated against whatever locals happen to
// appear in the text.
func (e *Engine) Evaluate(exprStr string) (EvalResult, error) {
	locals := e.LoadLocals(1<<30, 0)
	if v, ok := lookupLocal(locals, exprStr); ok {
		return EvalResult{Result: v, Type: v.Kind()}, nil
	}
	if isIdentifier(exprStr) {
		return EvalResult{}, fmt.Errorf("%w: %s", ErrUnknownVariable, exprStr)
	}
	return EvalResult{}, fmt.Errorf("%w: only bare local variable names are supported for this trace kind", ErrExpressionError)
}

func lookupLocal(locals []Variable, name string) (trace.ValueRecord, bool) {
	for _, v := range locals {
		if v.Name == name {
			return v.Value, true
		}
	}
	return trace.ValueRecord(nil), false
}

// isIdentifier reports whether s looks like a single bare variable name
// (letters, digits, underscore, not starting with a digit), distinguishing
// "no local named x" from "not even a candidate local name" in the error
// returned by Evaluate.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func valueToNative(v trace.ValueRecord) any {
	switch t := v.(type) {
	case trace.IntValue:
		return t.I
	case trace.FloatValue:
		return t.F
	case trace.BoolValue:
		return t.B
	case trace.StringValue:
		return t.S
	case trace.BigIntValue:
		return t.Digits
	case trace.NoneValue:
		return nil
	case trace.SequenceValue:
		out := make([]any, len(t.Elements))
		for i, e := range t.Elements {
			out[i] = valueToNative(e)
		}
		return out
	case trace.StructValue:
		out := make(map[string]any, len(t.Fields))
		for _, f := range t.Fields {
			out[f.Name] = valueToNative(f.Value)
		}
		return out
	default:
		return fmt.Sprintf("%v", v)
	}
}
