package trace

import (
	"fmt"
	"path/filepath"
)

// loaderState accumulates tables across the single forward pass,
// maintaining a running callstack so each step's call_key and depth are
// correct, and assigning global_call_key as the most recently started
// call as of that step.
type loaderState struct {
	db Db

	pathIndex     map[string]PathId
	variableIndex map[string]VariableId

	// callStack holds the currently-open calls, outermost first.
	callStack []CallKey
	// mostRecentlyStarted is updated on every call entry, independent of
	// returns, to compute global_call_key.
	mostRecentlyStarted CallKey

	pendingFullValues map[VariableId]ValueRecord
}

func newLoaderState(md Metadata, sourcePaths []string) *loaderState {
	l := &loaderState{
		db: Db{
			Metadata: md,
			CellLog:  make(map[Place][]CellChange),
		},
		pathIndex:           make(map[string]PathId),
		variableIndex:       make(map[string]VariableId),
		mostRecentlyStarted: NoCall,
		pendingFullValues:   make(map[VariableId]ValueRecord),
	}
	l.db.Types = append(l.db.Types,
		TypeEntry{Kind: "none", LangName: "None"},
		TypeEntry{Kind: "int", LangName: "Int"},
		TypeEntry{Kind: "bool", LangName: "Bool"},
	)
	for _, p := range sourcePaths {
		l.internPath(p)
	}
	return l
}

func (l *loaderState) internPath(raw string) PathId {
	if id, ok := l.pathIndex[raw]; ok {
		return id
	}
	abs := raw
	if !filepath.IsAbs(abs) {
		if a, err := filepath.Abs(abs); err == nil {
			abs = a
		}
	}
	id := PathId(len(l.db.Paths))
	l.db.Paths = append(l.db.Paths, PathEntry{Raw: raw, Abs: filepath.Clean(abs)})
	l.pathIndex[raw] = id
	return id
}

func (l *loaderState) internVariable(name string) VariableId {
	if id, ok := l.variableIndex[name]; ok {
		return id
	}
	id := VariableId(len(l.db.Variables))
	l.db.Variables = append(l.db.Variables, name)
	l.variableIndex[name] = id
	return id
}

func (l *loaderState) currentCall() CallKey {
	if len(l.callStack) == 0 {
		return NoCall
	}
	return l.callStack[len(l.callStack)-1]
}

func (l *loaderState) currentDepth() int {
	return len(l.callStack)
}

// apply folds one raw event into the accumulating tables.
func (l *loaderState) apply(ev rawEvent) error {
	switch ev.Kind {
	case "path":
		l.internPath(ev.Path)

	case "function":
		if int(ev.PathId) >= len(l.db.Paths) {
			return fmt.Errorf("function references unknown path_id %d", ev.PathId)
		}
		l.db.Functions = append(l.db.Functions, FunctionEntry{PathId: ev.PathId, Line: ev.Line, Name: ev.Name})

	case "type":
		l.db.Types = append(l.db.Types, TypeEntry{
			Kind:     ev.TypeKind,
			LangName: ev.LangName,
			Specifics: TypeSpecifics{
				Fields:        ev.Fields,
				Discriminants: ev.Variants,
			},
		})

	case "variable_name":
		l.internVariable(ev.Name)

	case "call":
		if int(ev.FunctionId) >= len(l.db.Functions) {
			return fmt.Errorf("call references unknown function_id %d", ev.FunctionId)
		}
		key := CallKey(len(l.db.Calls))
		parent := l.currentCall()
		args := make([]CallArg, len(ev.Args))
		for i, a := range ev.Args {
			args[i] = CallArg{Name: a.Name, Value: toValueRecord(a.Value)}
		}
		stepId := StepId(len(l.db.Steps))
		l.db.Calls = append(l.db.Calls, Call{
			CallKey:    key,
			FunctionId: ev.FunctionId,
			Args:       args,
			StepId:     stepId,
			Depth:      l.currentDepth(),
			ParentKey:  parent,
		})
		if parent != NoCall {
			p, ok := l.db.Call(parent)
			if !ok {
				return fmt.Errorf("call parent %d not found", parent)
			}
			p.ChildrenKeys = append(p.ChildrenKeys, key)
		}
		l.callStack = append(l.callStack, key)
		l.mostRecentlyStarted = key

	case "call_end":
		if len(l.callStack) == 0 {
			return fmt.Errorf("call_end with no open call")
		}
		key := l.callStack[len(l.callStack)-1]
		l.callStack = l.callStack[:len(l.callStack)-1]
		c, _ := l.db.Call(key)
		c.ReturnValue = toValueRecord(ev.ReturnValue)

	case "step":
		if int(ev.PathId) >= len(l.db.Paths) {
			return fmt.Errorf("step references unknown path_id %d", ev.PathId)
		}
		l.db.Steps = append(l.db.Steps, Step{
			StepId:        StepId(len(l.db.Steps)),
			PathId:        ev.PathId,
			Line:          ev.Line,
			CallKey:       l.currentCall(),
			GlobalCallKey: l.mostRecentlyStarted,
		})
		l.db.VariableCells = append(l.db.VariableCells, nil)
		l.db.FullValues = append(l.db.FullValues, nil)

	case "variable_cell":
		if len(l.db.Steps) == 0 {
			return fmt.Errorf("variable_cell before any step")
		}
		idx := len(l.db.Steps) - 1
		if l.db.VariableCells[idx] == nil {
			l.db.VariableCells[idx] = make(map[VariableId]Place)
		}
		l.db.VariableCells[idx][ev.VariableId] = ev.Place

	case "full_value":
		if len(l.db.Steps) == 0 {
			return fmt.Errorf("full_value before any step")
		}
		idx := len(l.db.Steps) - 1
		if l.db.FullValues[idx] == nil {
			l.db.FullValues[idx] = make(map[VariableId]ValueRecord)
		}
		l.db.FullValues[idx][ev.VariableId] = toValueRecord(ev.FullValue)

	case "cell_change":
		if len(l.db.Steps) == 0 {
			return fmt.Errorf("cell_change before any step")
		}
		step := l.db.Steps[len(l.db.Steps)-1].StepId
		l.db.CellLog[ev.Place] = append(l.db.CellLog[ev.Place], CellChange{
			StepId:    step,
			ItemCount: ev.ItemCount,
			TypeId:    ev.ValueType,
			Index:     ev.Index,
			ItemPlace: ev.ItemPlace,
			Value:     toValueRecord(ev.Value),
		})

	case "stdout", "stderr", "write_file", "error":
		if len(l.db.Steps) == 0 {
			return fmt.Errorf("%s event before any step", ev.Kind)
		}
		step := l.db.Steps[len(l.db.Steps)-1].StepId
		kind := map[string]EventKind{
			"stdout":     EventStdout,
			"stderr":     EventStderr,
			"write_file": EventWriteFile,
			"error":      EventError,
		}[ev.Kind]
		l.db.Events = append(l.db.Events, Event{
			Kind:    kind,
			StepId:  step,
			Index:   len(l.db.Events),
			Content: ev.Content,
			Path:    ev.Path,
		})

	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return nil
}

// finish validates cross-references and returns the completed database.
func (l *loaderState) finish() (*Db, error) {
	if len(l.callStack) != 0 {
		return nil, fmt.Errorf("%w: %d call(s) never returned", ErrInvalidTrace, len(l.callStack))
	}
	for _, s := range l.db.Steps {
		if int(s.PathId) >= len(l.db.Paths) {
			return nil, fmt.Errorf("%w: step references unknown path_id %d", ErrInvalidTrace, s.PathId)
		}
	}
	db := l.db
	return &db, nil
}
