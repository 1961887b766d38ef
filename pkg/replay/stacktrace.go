package replay

import "github.com/ormasoftchile/codetracer/pkg/trace"

// Frame is one stack frame as returned by StackTrace.
type Frame struct {
	Id       trace.CallKey `json:"id"`
	Name     string        `json:"name"`
	Location Location      `json:"location"`
}

// StackTrace walks parent links from the current call, innermost first
//.
func (e *Engine) StackTrace() []Frame {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var frames []Frame
	key := e.db.CallKeyForStep(e.current)
	cur := e.current
	for key != trace.NoCall {
		call, ok := e.db.Call(key)
		if !ok {
			break
		}
		name := ""
		if int(call.FunctionId) < len(e.db.Functions) {
			name = e.db.Functions[call.FunctionId].Name
		}
		loc := e.locationAt(cur)
		frames = append(frames, Frame{Id: key, Name: name, Location: loc})
		if call.ParentKey == trace.NoCall {
			break
		}
		parent, ok := e.db.Call(call.ParentKey)
		if !ok {
			break
		}
		key = call.ParentKey
		cur = parent.StepId
	}
	return frames
}
