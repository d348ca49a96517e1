package automerge

import (
	"automerge/internal/change"
	"automerge/internal/clock"
	"automerge/internal/marks"
	"automerge/internal/types"
)

// Scalar is a tagged immutable value (spec.md §3).
type Scalar = types.Scalar

// ScalarKind tags the variant held by a Scalar.
type ScalarKind = types.ScalarKind

// Value constructors, re-exported from internal/types so callers never
// need to import an internal package to build a Put/Insert argument.
var (
	Null      = types.Null
	Bool      = types.Bool
	Int       = types.Int
	Uint      = types.Uint
	F64       = types.F64
	Str       = types.Str
	Bytes     = types.Bytes
	Timestamp = types.Timestamp
	Counter   = types.Counter
)

// TypeTag parses the `type?` argument documented in spec.md §6.
func TypeTag(s string) (ScalarKind, bool) { return types.TypeTag(s) }

// ObjType names the kind of container an object is.
type ObjType = types.ObjType

const (
	ObjMap  = types.ObjMap
	ObjList = types.ObjList
	ObjText = types.ObjText
)

// ExpandPolicy governs whether text inserted at a mark's boundary
// inherits the mark (spec.md §4.7).
type ExpandPolicy = types.ExpandPolicy

const (
	ExpandNone   = types.ExpandNone
	ExpandBefore = types.ExpandBefore
	ExpandAfter  = types.ExpandAfter
	ExpandBoth   = types.ExpandBoth
)

// ObjId names a container: the root map, or the OpId of the op that
// created it.
type ObjId = clock.ObjId

// Root is the implicit root map every document starts with.
var Root = clock.Root

// OpId is a Lamport timestamp (counter, actor), the identity half of
// spec.md §6's conflict-set entries (get_all's "id_A"/"id_B").
type OpId = clock.OpId

// Hash is a 32-byte content hash identifying one Change.
type Hash = change.Hash

// Entry is one entry of a map key's or sequence index's conflict set, as
// returned by GetAll (spec.md §8 scenario S1, "[(\"magpie\", id_A),
// (\"crow\", id_B)]").
type Entry struct {
	Value Scalar
	ID    OpId
}

// MarkRange is one coalesced, currently-active rich-text mark range
// (spec.md §4.7).
type MarkRange = marks.Range
