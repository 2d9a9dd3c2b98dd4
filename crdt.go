package riak

// CrdtKind identifies the server-side CRDT type a dt-fetch/dt-update
// targets, and — for map entries — the kind of each field.
type CrdtKind int

const (
	CrdtCounter CrdtKind = iota + 1
	CrdtSet
	CrdtMap
	CrdtRegister
	CrdtFlag
)

// MapEntryKey names one field of a CRDT map: a name plus its kind,
// since a map may hold a counter and a register both named "total"
// without collision.
type MapEntryKey struct {
	Name string
	Kind CrdtKind
}

// MapValue is the materialized value of a fetched CRDT map: each field
// resolved to its own Go-native representation. Nested maps recurse.
type MapValue struct {
	Counters  map[string]int64
	Sets      map[string][][]byte
	Registers map[string][]byte
	Flags     map[string]bool
	Maps      map[string]MapValue
}

func newMapValue() MapValue {
	return MapValue{
		Counters:  map[string]int64{},
		Sets:      map[string][][]byte{},
		Registers: map[string][]byte{},
		Flags:     map[string]bool{},
		Maps:      map[string]MapValue{},
	}
}

// CrdtValue is the façade-level result of a DtFetch: the resolved value
// for whichever kind was fetched, plus the opaque context the server
// attaches. Exactly one of Counter/Set/Map is meaningful, selected by
// Kind.
type CrdtValue struct {
	Kind    CrdtKind
	Counter int64
	Set     [][]byte
	Map     MapValue
	// Context is required on any subsequent update that removes
	// elements from a set or map (spec §3 "CRDT value").
	Context []byte
}

// MapOp describes one mutation to apply to a CRDT map in a dt-update:
// add or remove a field, or recurse into a nested map/counter/set/
// register/flag update. Exactly the operations a caller can express
// against a map field.
type MapOp struct {
	Field MapEntryKey

	// Remove, if true, removes Field; Context must carry the most
	// recent fetch's context per spec §3 invariant.
	Remove bool

	// For Kind == CrdtCounter
	CounterIncrement int64

	// For Kind == CrdtSet
	SetAdds   [][]byte
	SetRemoves [][]byte

	// For Kind == CrdtRegister
	RegisterValue []byte

	// For Kind == CrdtFlag
	FlagValue bool

	// For Kind == CrdtMap, nested ops
	MapOps []MapOp
}

// DtUpdate describes a single dt-update request: which kind of CRDT,
// and the corresponding mutation. The whole struct is sent as the
// request's op; fields not relevant to Kind are sent as their zero
// values rather than filtered out.
type DtUpdate struct {
	Kind CrdtKind

	CounterIncrement int64

	SetAdds    [][]byte
	SetRemoves [][]byte

	MapOps []MapOp

	// Context must echo the most recent fetch's context when the
	// update removes set or map elements (spec §3).
	Context []byte
}
