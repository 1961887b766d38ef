package trace

// PathEntry is one row of the path table: the bijection between source
// path strings and dense PathId.
type PathEntry struct {
	// Raw is the path exactly as recorded.
	Raw string
	// Abs is Raw resolved to an absolute, cleaned form (relative paths
	// against the loading process's working directory). No source
	// lookup in this module reads it.
	Abs string
}

// FunctionEntry is one row of the function table.
type FunctionEntry struct {
	PathId PathId
	Line   int
	Name   string
}

// TypeSpecifics carries the variant-specific payload for a TypeEntry.
type TypeSpecifics struct {
	Fields       []string // struct field names, in declaration order
	Discriminants []string // variant discriminant names
}

// TypeEntry is one row of the type table.
type TypeEntry struct {
	Kind      string // "none", "int", "bool", "struct", "variant", ...
	LangName  string
	Specifics TypeSpecifics
}

// Step is one unit of execution; the atomic unit of navigation.
type Step struct {
	StepId        StepId
	PathId        PathId
	Line          int
	CallKey       CallKey
	GlobalCallKey CallKey
}

// Call is one function invocation node in the call forest.
type Call struct {
	CallKey      CallKey
	FunctionId   FunctionId
	Args         []CallArg
	ReturnValue  ValueRecord
	StepId       StepId // entry step
	Depth        int
	ParentKey    CallKey // NoCall for roots
	ChildrenKeys []CallKey
}

// CallArg is one named argument value recorded at a call's entry step.
type CallArg struct {
	Name  string
	Value ValueRecord
}

// CellChange is one write to a Place, ordered by StepId within the log
// for that place.
type CellChange struct {
	StepId    StepId
	ItemCount int
	TypeId    *TypeId
	Index     *int
	ItemPlace *Place
	Value     ValueRecord
}

// EventKind enumerates the recorded event kinds.
type EventKind string

const (
	EventStdout    EventKind = "Stdout"
	EventStderr    EventKind = "Stderr"
	EventWriteFile EventKind = "WriteFile"
	EventError     EventKind = "Error"
)

// Event is one recorded stdout/stderr/write-file/error entry.
type Event struct {
	Kind    EventKind
	StepId  StepId
	Index   int
	Content string
	Path    string // set for WriteFile
}

// Metadata is the trace_metadata.json / trace_db_metadata.json descriptor.
type Metadata struct {
	Workdir  string   `json:"workdir"`
	Program  string   `json:"program"`
	Args     []string `json:"args"`
	Language string   `json:"lang,omitempty"`
}
