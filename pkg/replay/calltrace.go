package replay

import (
	"strings"

	"github.com/ormasoftchile/codetracer/pkg/trace"
)

// CallLine is one row of a browsable call-trace listing, built directly
// from the call forest trace.Db.Calls already assembles during loading.
type CallLine struct {
	Key      trace.CallKey `json:"key"`
	Name     string        `json:"name"`
	Depth    int           `json:"depth"`
	Location Location      `json:"location"`
}

func (e *Engine) callLine(call *trace.Call) CallLine {
	name := ""
	if int(call.FunctionId) < len(e.db.Functions) {
		name = e.db.Functions[call.FunctionId].Name
	}
	return CallLine{Key: call.CallKey, Name: name, Depth: call.Depth, Location: e.locationAt(call.StepId)}
}

// LoadCalltrace returns a depth-limited, paginated slice of the call
// forest. Calls are listed in recording order, which for a single-threaded
// trace coincides with pre-order forest traversal: a call's children are
// always recorded before its next sibling. depth <= 0 means unlimited;
// count <= 0 defaults to 50, matching the Python API's own default.
func (e *Engine) LoadCalltrace(start, count, depth int) []CallLine {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if count <= 0 {
		count = 50
	}
	maxDepth := depth
	if maxDepth <= 0 {
		maxDepth = 1<<31 - 1
	}

	var lines []CallLine
	for i := range e.db.Calls {
		call := &e.db.Calls[i]
		if call.Depth > maxDepth {
			continue
		}
		lines = append(lines, e.callLine(call))
	}
	if start < 0 {
		start = 0
	}
	if start >= len(lines) {
		return nil
	}
	end := start + count
	if end > len(lines) {
		end = len(lines)
	}
	return lines[start:end]
}

// SearchCalltrace returns every call whose function name contains query
// (case-insensitive), up to limit matches. limit <= 0 defaults to 100.
func (e *Engine) SearchCalltrace(query string, limit int) []CallLine {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	q := strings.ToLower(query)
	var out []CallLine
	for i := range e.db.Calls {
		call := &e.db.Calls[i]
		name := ""
		if int(call.FunctionId) < len(e.db.Functions) {
			name = e.db.Functions[call.FunctionId].Name
		}
		if !strings.Contains(strings.ToLower(name), q) {
			continue
		}
		out = append(out, e.callLine(call))
		if len(out) >= limit {
			break
		}
	}
	return out
}
