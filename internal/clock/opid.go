// Package clock implements the Lamport-timestamp identifiers (OpId, ObjId,
// Key) and the per-actor VectorClock used to order operations and gate
// historical reads. Grounded on the visibility/ordering rules of
// tur/pkg/mvcc (RowVersion/Transaction ordering by commit timestamp),
// retargeted from commit-timestamp order to (counter, actor) Lamport order.
package clock

import "automerge/internal/actor"

// ActorIdx is a document-local index into the actor dictionary. Ops carry
// this compact index rather than the full ActorId, per spec.md §9.
type ActorIdx uint32

// ActorTable resolves a compact actor index back to the actor's raw bytes,
// needed to break OpId ties since a document's actor dictionary assigns
// indices in first-seen order, not byte order.
type ActorTable interface {
	ActorAt(idx ActorIdx) actor.ID
}

// OpId is a Lamport timestamp: (counter, actor). The sentinel OpId{} (counter
// 0) denotes the head-of-list position for sequences and the root object.
type OpId struct {
	Counter uint64
	Actor   ActorIdx
}

// IsNull reports whether id is the (0, _) sentinel.
func (id OpId) IsNull() bool { return id.Counter == 0 }

// Compare orders two OpIds per spec.md §3: higher counter sorts first
// (greater); counter ties are broken by actor byte-lexicographic order
// (the actor with lexicographically greater bytes is greater). Returns a
// positive number if a > b, negative if a < b, zero if equal.
func Compare(a, b OpId, table ActorTable) int {
	if a.Counter != b.Counter {
		if a.Counter > b.Counter {
			return 1
		}
		return -1
	}
	if a.Actor == b.Actor {
		return 0
	}
	return actor.Compare(table.ActorAt(a.Actor), table.ActorAt(b.Actor))
}

// Greater reports whether a sorts after b under Compare — i.e. a is the
// op that would win a conflict against b.
func Greater(a, b OpId, table ActorTable) bool { return Compare(a, b, table) > 0 }

// ObjId names the container an op targets: the OpId of the op that created
// it. Root is the implicit root map, OpId{0,0}.
type ObjId struct {
	Id OpId
}

// Root is the implicit root map object id, spec.md §3.
var Root = ObjId{}

// IsRoot reports whether o refers to the implicit root map.
func (o ObjId) IsRoot() bool { return o.Id.IsNull() }

// Key identifies a position within a container: either a UTF-8 map key or
// a sequence key (the OpId of a preceding sibling insert, or the
// head-of-list sentinel).
type Key struct {
	isMap  bool
	mapKey string
	elemID OpId
}

// MapKey builds a map-container key.
func MapKey(k string) Key { return Key{isMap: true, mapKey: k} }

// ElemKey builds a sequence-container key naming the reference element.
func ElemKey(id OpId) Key { return Key{elemID: id} }

// Head is the sequence sentinel meaning "insert at the front of the list".
func Head() Key { return Key{elemID: OpId{}} }

// IsMapKey reports whether k is a map key.
func (k Key) IsMapKey() bool { return k.isMap }

// MapKeyString returns the map key string; valid only if IsMapKey is true.
func (k Key) MapKeyString() string { return k.mapKey }

// ElemID returns the reference element OpId; valid only if IsMapKey is
// false. The zero OpId denotes head-of-list.
func (k Key) ElemID() OpId { return k.elemID }

// IsHead reports whether k is the head-of-list sequence sentinel.
func (k Key) IsHead() bool { return !k.isMap && k.elemID.IsNull() }
