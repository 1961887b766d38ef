package pybridge

import "sync"

// shadowMap tracks per-trace breakpoint or watchpoint bookkeeping
//: monotonic ids, keyed against the value the frontend cares
// about (the line number as a string, under its file, for breakpoints; an expression for
// watchpoints). On every mutation it can report the full current set for
// one file, which is what the DAP `setBreakpoints` call needs — that
// request replaces the whole file's breakpoint list, not one entry.
type shadowMap struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]entry
}

type entry struct {
	file  string // empty for watchpoints
	value string
}

func newShadowMap() *shadowMap {
	return &shadowMap{byID: make(map[int64]entry)}
}

// add registers value under file (breakpoints) or "" (watchpoints) and
// returns its new id.
func (m *shadowMap) add(file, value string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.byID[m.nextID] = entry{file: file, value: value}
	return m.nextID
}

// remove deletes id, reporting the file it belonged to (for breakpoints)
// so the caller can regenerate that file's list.
func (m *shadowMap) remove(id int64) (file string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, found := m.byID[id]
	if !found {
		return "", false
	}
	delete(m.byID, id)
	return e.file, true
}

// valuesForFile returns every still-registered value for file, in
// insertion order (ascending id).
func (m *shadowMap) valuesForFile(file string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, e := range m.byID {
		if e.file == file {
			ids = append(ids, id)
		}
	}
	sortInt64s(ids)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.byID[id].value)
	}
	return out
}

// allValues returns every still-registered value regardless of file, in
// insertion order — used for watchpoints, which have no file grouping.
func (m *shadowMap) allValues() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	sortInt64s(ids)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.byID[id].value)
	}
	return out
}

func sortInt64s(ids []int64) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
