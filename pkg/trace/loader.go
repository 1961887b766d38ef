package trace

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// rawEvent is one low-level recorded event, read from trace.json (one
// array) or trace.bin (length-prefixed records of the same JSON shape).
// The field set is a union over all event kinds the loader understands;
// Kind selects which fields are meaningful, mirroring the recorder's own
// tagged-event wire format, consumed as-is.
type rawEvent struct {
	Kind string `json:"kind"`

	// path / function / type / variable registration
	Path     string   `json:"path,omitempty"`
	Line     int      `json:"line,omitempty"`
	Name     string   `json:"name,omitempty"`
	TypeKind string   `json:"type_kind,omitempty"`
	LangName string   `json:"lang_name,omitempty"`
	Fields   []string `json:"fields,omitempty"`
	Variants []string `json:"variants,omitempty"`

	// step
	PathId PathId `json:"path_id,omitempty"`

	// call / call_end
	FunctionId  FunctionId    `json:"function_id,omitempty"`
	Args        []rawCallArg `json:"args,omitempty"`
	ReturnValue *rawValue     `json:"return_value,omitempty"`

	// variable_cell
	VariableId VariableId `json:"variable_id,omitempty"`
	Place      Place      `json:"place,omitempty"`

	// cell_change
	ItemCount int     `json:"item_count,omitempty"`
	ValueType *TypeId `json:"value_type_id,omitempty"`
	Index     *int    `json:"index,omitempty"`
	ItemPlace *Place  `json:"item_place,omitempty"`
	Value     *rawValue `json:"value,omitempty"`

	// full_value
	FullValue *rawValue `json:"full_value,omitempty"`

	// output / error event
	Content string `json:"content,omitempty"`
}

type rawCallArg struct {
	Name  string    `json:"name"`
	Value *rawValue `json:"value"`
}

// rawValue mirrors ValueRecord as a tagged JSON object: {"kind": "...", ...}.
type rawValue struct {
	Kind         string      `json:"kind"`
	Int          int64       `json:"int,omitempty"`
	Float        float64     `json:"float,omitempty"`
	Bool         bool        `json:"bool,omitempty"`
	Str          string      `json:"str,omitempty"`
	Digits       string      `json:"digits,omitempty"`
	Repr         string      `json:"repr,omitempty"`
	Message      string      `json:"message,omitempty"`
	Place        Place       `json:"place,omitempty"`
	TypeId       TypeId      `json:"type_id,omitempty"`
	Discriminant string      `json:"discriminant,omitempty"`
	Mutable      bool        `json:"mutable,omitempty"`
	Truncated    bool        `json:"truncated,omitempty"`
	FieldNames   []string    `json:"field_names,omitempty"`
	Elements     []*rawValue `json:"elements,omitempty"`
	Target       *rawValue   `json:"target,omitempty"`
}

func toValueRecord(v *rawValue) ValueRecord {
	if v == nil {
		return NoneValue{}
	}
	switch v.Kind {
	case "Int":
		return IntValue{I: v.Int}
	case "Float":
		return FloatValue{F: v.Float}
	case "Bool":
		return BoolValue{B: v.Bool}
	case "String":
		return StringValue{S: v.Str}
	case "BigInt":
		return BigIntValue{Digits: v.Digits}
	case "Raw":
		return RawValue{Repr: v.Repr}
	case "Error":
		return ErrorValue{Message: v.Message}
	case "Cell":
		return CellValue{P: v.Place}
	case "Reference":
		return ReferenceValue{Target: toValueRecord(v.Target), Mutable: v.Mutable}
	case "Sequence":
		elems := make([]ValueRecord, len(v.Elements))
		for i, e := range v.Elements {
			elems[i] = toValueRecord(e)
		}
		return SequenceValue{ElementTypeId: v.TypeId, Elements: elems, IsTruncated: v.Truncated}
	case "Tuple":
		elems := make([]ValueRecord, len(v.Elements))
		for i, e := range v.Elements {
			elems[i] = toValueRecord(e)
		}
		return TupleValue{Elements: elems}
	case "Struct":
		fields := make([]StructField, len(v.Elements))
		for i, e := range v.Elements {
			name := ""
			if i < len(v.FieldNames) {
				name = v.FieldNames[i]
			}
			fields[i] = StructField{Name: name, Value: toValueRecord(e)}
		}
		return StructValue{TypeId: v.TypeId, Fields: fields}
	case "Variant":
		elems := make([]ValueRecord, len(v.Elements))
		for i, e := range v.Elements {
			elems[i] = toValueRecord(e)
		}
		return VariantValue{TypeId: v.TypeId, Discriminant: v.Discriminant, Fields: elems}
	case "None", "":
		return NoneValue{}
	default:
		return RawValue{Repr: v.Kind}
	}
}

// Load reads a trace directory and returns the fully
// populated, indexed in-memory database, or ErrTraceNotFound /
// ErrInvalidTrace / *LoadError on failure. It never returns a partially
// populated Db.
func Load(dir string) (*Db, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrTraceNotFound, dir)
	}

	md, err := loadMetadata(dir)
	if err != nil {
		return nil, err
	}

	var sourcePaths []string
	if raw, err := os.ReadFile(filepath.Join(dir, "trace_paths.json")); err == nil {
		if jerr := json.Unmarshal(raw, &sourcePaths); jerr != nil {
			return nil, fmt.Errorf("%w: trace_paths.json: %v", ErrInvalidTrace, jerr)
		}
	}

	events, err := readEvents(dir)
	if err != nil {
		return nil, err
	}

	l := newLoaderState(md, sourcePaths)
	for i, ev := range events {
		if err := l.apply(ev); err != nil {
			return nil, newLoadError(fmt.Sprintf("event %d (%s)", i, ev.Kind), fmt.Errorf("%w: %v", ErrInvalidTrace, err))
		}
	}
	return l.finish()
}

// readEvents chooses trace.bin or trace.json by extension.
func readEvents(dir string) ([]rawEvent, error) {
	jsonPath := filepath.Join(dir, "trace.json")
	if _, err := os.Stat(jsonPath); err == nil {
		raw, err := os.ReadFile(jsonPath)
		if err != nil {
			return nil, newLoadError("read trace.json", err)
		}
		var events []rawEvent
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, fmt.Errorf("%w: trace.json: %v", ErrInvalidTrace, err)
		}
		return events, nil
	}

	binPath := filepath.Join(dir, "trace.bin")
	f, err := os.Open(binPath)
	if err != nil {
		return nil, fmt.Errorf("%w: neither trace.json nor trace.bin in %s", ErrTraceNotFound, dir)
	}
	defer f.Close()

	// One uvarint-length-prefixed JSON record per event. This is a
	// separate codec from pkg/dap's text Content-Length framing.
	r := bufio.NewReader(f)
	var events []rawEvent
	for {
		n, err := binary.ReadUvarint(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newLoadError("trace.bin length prefix", err)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, newLoadError("trace.bin record body", err)
		}
		var ev rawEvent
		if err := json.Unmarshal(buf, &ev); err != nil {
			return nil, fmt.Errorf("%w: trace.bin record: %v", ErrInvalidTrace, err)
		}
		events = append(events, ev)
	}
	return events, nil
}
