// Package types implements the tagged Scalar value and the closed OpAction
// sum that an Op carries. Grounded on tur/pkg/types/value.go's tagged-union
// Value (typ + one field per variant), extended from the SQL value domain
// (Null/Int/Float/Text/Blob/Vector) to the CRDT scalar domain named in
// spec.md §3.
package types

import "fmt"

// ScalarKind tags the variant held by a Scalar.
type ScalarKind int

const (
	KindNull ScalarKind = iota
	KindBool
	KindInt
	KindUint
	KindF64
	KindStr
	KindBytes
	KindTimestamp
	KindCounter
)

func (k ScalarKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindF64:
		return "f64"
	case KindStr:
		return "str"
	case KindBytes:
		return "bytes"
	case KindTimestamp:
		return "timestamp"
	case KindCounter:
		return "counter"
	default:
		return "unknown"
	}
}

// TypeTag parses the `type?` argument documented in spec.md §6.
func TypeTag(s string) (ScalarKind, bool) {
	switch s {
	case "int":
		return KindInt, true
	case "uint":
		return KindUint, true
	case "f64":
		return KindF64, true
	case "str":
		return KindStr, true
	case "bytes":
		return KindBytes, true
	case "boolean":
		return KindBool, true
	case "null":
		return KindNull, true
	case "counter":
		return KindCounter, true
	case "timestamp":
		return KindTimestamp, true
	default:
		return KindNull, false
	}
}

// Scalar is a tagged immutable value, spec.md §3. A Scalar is a value type:
// copying it copies the tag and its payload.
type Scalar struct {
	kind   ScalarKind
	b      bool
	i      int64  // Int, Timestamp (ms), Counter
	u      uint64 // Uint
	f      float64
	s      string
	blob   []byte
}

// Null is the Scalar null value.
func Null() Scalar { return Scalar{kind: KindNull} }

// Bool builds a boolean Scalar.
func Bool(v bool) Scalar { return Scalar{kind: KindBool, b: v} }

// Int builds a signed-integer Scalar.
func Int(v int64) Scalar { return Scalar{kind: KindInt, i: v} }

// Uint builds an unsigned-integer Scalar.
func Uint(v uint64) Scalar { return Scalar{kind: KindUint, u: v} }

// F64 builds a floating-point Scalar.
func F64(v float64) Scalar { return Scalar{kind: KindF64, f: v} }

// Str builds a UTF-8 string Scalar.
func Str(v string) Scalar { return Scalar{kind: KindStr, s: v} }

// Bytes builds a byte-string Scalar; the slice is copied.
func Bytes(v []byte) Scalar {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Scalar{kind: KindBytes, blob: cp}
}

// Timestamp builds a Scalar holding milliseconds since the Unix epoch.
func Timestamp(msSinceEpoch int64) Scalar { return Scalar{kind: KindTimestamp, i: msSinceEpoch} }

// Counter builds a Scalar holding a counter's displayed value; Increment
// ops targeting the Op that carries this Scalar sum into it (spec.md §3).
func Counter(v int64) Scalar { return Scalar{kind: KindCounter, i: v} }

// Kind reports the Scalar's variant.
func (s Scalar) Kind() ScalarKind { return s.kind }

// AsBool returns the boolean payload; valid only when Kind() == KindBool.
func (s Scalar) AsBool() bool { return s.b }

// AsInt returns the signed-integer-shaped payload (Int, Timestamp, Counter).
func (s Scalar) AsInt() int64 { return s.i }

// AsUint returns the unsigned-integer payload; valid only when Kind() == KindUint.
func (s Scalar) AsUint() uint64 { return s.u }

// AsF64 returns the float payload; valid only when Kind() == KindF64.
func (s Scalar) AsF64() float64 { return s.f }

// AsStr returns the string payload; valid only when Kind() == KindStr.
func (s Scalar) AsStr() string { return s.s }

// AsBytes returns a copy of the byte-string payload.
func (s Scalar) AsBytes() []byte {
	cp := make([]byte, len(s.blob))
	copy(cp, s.blob)
	return cp
}

// Equal reports deep equality between two scalars.
func (s Scalar) Equal(o Scalar) bool {
	if s.kind != o.kind {
		return false
	}
	switch s.kind {
	case KindNull:
		return true
	case KindBool:
		return s.b == o.b
	case KindInt, KindTimestamp, KindCounter:
		return s.i == o.i
	case KindUint:
		return s.u == o.u
	case KindF64:
		return s.f == o.f
	case KindStr:
		return s.s == o.s
	case KindBytes:
		return string(s.blob) == string(o.blob)
	default:
		return false
	}
}

// GoValue renders the Scalar as a plain Go value suitable for
// materialize()/diff payloads.
func (s Scalar) GoValue() interface{} {
	switch s.kind {
	case KindNull:
		return nil
	case KindBool:
		return s.b
	case KindInt, KindTimestamp, KindCounter:
		return s.i
	case KindUint:
		return s.u
	case KindF64:
		return s.f
	case KindStr:
		return s.s
	case KindBytes:
		return s.AsBytes()
	default:
		return nil
	}
}

func (s Scalar) String() string {
	return fmt.Sprintf("%s(%v)", s.kind, s.GoValue())
}
