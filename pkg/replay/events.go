package replay

import "github.com/ormasoftchile/codetracer/pkg/trace"

// EventRecord is one recorded stdout/stderr/write-file/error entry. It
// mirrors trace.Event with string tags suitable for direct JSON exposure.
type EventRecord struct {
	Kind    string       `json:"kind"`
	Step    trace.StepId `json:"step"`
	Index   int          `json:"index"`
	Content string       `json:"content"`
	Path    string       `json:"path,omitempty"`
}

// LoadEvents returns the trace's full recorded event log. DB traces record
// the whole log up front, so unlike locals/flow there is no cursor-relative
// view to take here.
func (e *Engine) LoadEvents() []EventRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]EventRecord, 0, len(e.db.Events))
	for _, ev := range e.db.Events {
		out = append(out, EventRecord{
			Kind:    string(ev.Kind),
			Step:    ev.StepId,
			Index:   ev.Index,
			Content: ev.Content,
			Path:    ev.Path,
		})
	}
	return out
}

// LoadTerminal concatenates every recorded stdout/stderr event's content
// in step order, approximating the process's combined terminal output.
func (e *Engine) LoadTerminal() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var sb []byte
	for _, ev := range e.db.Events {
		if ev.Kind != trace.EventStdout && ev.Kind != trace.EventStderr {
			continue
		}
		sb = append(sb, ev.Content...)
	}
	return string(sb)
}
