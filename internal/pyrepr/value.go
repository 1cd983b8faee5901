// Package pyrepr models the values a Python probe can produce and renders
// them in the canonical text form used for grading comparisons.
package pyrepr

import "math/big"

// Kind identifies the shape of a Value
type Kind int

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindStr
	KindBytes
	KindList
	KindTuple
	KindSet
	KindFrozenSet
	KindDict
	KindOpaque
	KindCycle
)

var kindNames = [...]string{
	KindNone:      "none",
	KindBool:      "bool",
	KindInt:       "int",
	KindFloat:     "float",
	KindStr:       "str",
	KindBytes:     "bytes",
	KindList:      "list",
	KindTuple:     "tuple",
	KindSet:       "set",
	KindFrozenSet: "frozenset",
	KindDict:      "dict",
	KindOpaque:    "repr",
	KindCycle:     "cycle",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

func kindFromName(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// Value is a tagged tree mirroring a Python object graph.
// Only the fields relevant to Kind are meaningful.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   *big.Int
	Float float64
	Str   string // str contents, or the repr text of an opaque object
	Bytes []byte
	Items []Value // list, tuple, set, frozenset
	Pairs []Pair  // dict, insertion order
	Of    Kind    // container kind a cycle re-enters
}

// Pair is one dict entry
type Pair struct {
	Key   Value
	Value Value
}

func None() Value { return Value{Kind: KindNone} }

func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

func Int(i int64) Value { return Value{Kind: KindInt, Int: big.NewInt(i)} }

func BigInt(i *big.Int) Value { return Value{Kind: KindInt, Int: i} }

func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }

func Str(s string) Value { return Value{Kind: KindStr, Str: s} }

func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

func List(items ...Value) Value { return Value{Kind: KindList, Items: items} }

func Tuple(items ...Value) Value { return Value{Kind: KindTuple, Items: items} }

func Set(items ...Value) Value { return Value{Kind: KindSet, Items: items} }

func FrozenSet(items ...Value) Value { return Value{Kind: KindFrozenSet, Items: items} }

func Dict(pairs ...Pair) Value { return Value{Kind: KindDict, Pairs: pairs} }

// Opaque wraps the repr text of an object with no literal form
func Opaque(repr string) Value { return Value{Kind: KindOpaque, Str: repr} }

// Cycle marks a container that refers back to one of its ancestors
func Cycle(of Kind) Value { return Value{Kind: KindCycle, Of: of} }
