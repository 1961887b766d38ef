package replay

import "github.com/ormasoftchile/codetracer/pkg/trace"

// Location is the result of every navigation operation.
type Location struct {
	Path         string        `json:"path"`
	Line         int           `json:"line"`
	Column       int           `json:"column"`
	Ticks        int64         `json:"ticks"`
	FunctionName string        `json:"functionName"`
	CallKey      trace.CallKey `json:"callKey"`
	Depth        int           `json:"depth"`
	EndOfTrace   bool          `json:"endOfTrace"`
}

// locationAt builds a Location for a given step, clamping/annotating
// EndOfTrace when step is out of range.
func (e *Engine) locationAt(step trace.StepId) Location {
	n := trace.StepId(len(e.db.Steps))
	if step < 0 {
		step = 0
	}
	endOfTrace := false
	if step >= n {
		step = n - 1
		endOfTrace = true
	}
	s := e.db.Steps[step]
	call, _ := e.db.Call(s.CallKey)
	name := ""
	depth := 0
	if call != nil {
		depth = call.Depth
		if int(call.FunctionId) < len(e.db.Functions) {
			name = e.db.Functions[call.FunctionId].Name
		}
	}
	return Location{
		Path:         e.db.PathString(s.PathId),
		Line:         s.Line,
		Column:       1,
		Ticks:        int64(step),
		FunctionName: name,
		CallKey:      s.CallKey,
		Depth:        depth,
		EndOfTrace:   endOfTrace,
	}
}
