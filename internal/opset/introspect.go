package opset

import (
	"automerge/internal/change"
	"automerge/internal/clock"
	"automerge/internal/types"
)

// AllMapKeys returns every map key an object has ever had a Put/MakeX op
// written to, live or tombstoned — the union diff needs to notice deleted
// keys too, not just currently-visible ones.
func (os *OpSet) AllMapKeys(obj clock.ObjId) []string {
	st, ok := os.objects[obj]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(st.mapEntries))
	for k := range st.mapEntries {
		out = append(out, k)
	}
	return out
}

// RawMapOps returns every op ever written to a map key, regardless of
// current visibility, in arrival order.
func (os *OpSet) RawMapOps(obj clock.ObjId, key string) []*change.Op {
	st, ok := os.objects[obj]
	if !ok {
		return nil
	}
	slot, ok := st.mapEntries[key]
	if !ok {
		return nil
	}
	return slot.ops
}

// AllElements returns the backing element id of every position in a
// list/text object, in document order, live or tombstoned.
func (os *OpSet) AllElements(obj clock.ObjId) []clock.OpId {
	st, ok := os.objects[obj]
	if !ok {
		return nil
	}
	els := st.elementsInOrder()
	out := make([]clock.OpId, len(els))
	for i, el := range els {
		out[i] = el.id
	}
	return out
}

// ElementOps returns every value op (excluding mark/unmark) ever written
// at elemID, regardless of current visibility.
func (os *OpSet) ElementOps(obj clock.ObjId, elemID clock.OpId) []*change.Op {
	st, ok := os.objects[obj]
	if !ok {
		return nil
	}
	node, ok := st.byElem[elemID]
	if !ok {
		return nil
	}
	return node.el.valueOps()
}

// RawElementOps returns every op ever anchored to elemID — value ops and
// mark/unmark annotations alike — in arrival order, regardless of
// visibility. Used by mark-range resolution, which needs to see
// mark/unmark ops that ElementOps deliberately excludes.
func (os *OpSet) RawElementOps(obj clock.ObjId, elemID clock.OpId) []*change.Op {
	st, ok := os.objects[obj]
	if !ok {
		return nil
	}
	node, ok := st.byElem[elemID]
	if !ok {
		return nil
	}
	return node.el.ops
}

// VisibleAt exposes visibleAt so packages building on historical reads
// (the diff builder) can test an individual op's membership without
// re-deriving the ancestry/increment-skip logic.
func (os *OpSet) VisibleAt(op *change.Op, anc Ancestry) bool {
	return os.visibleAt(op, anc)
}

// ResolveValueAt exposes resolveValueAt for the same reason.
func (os *OpSet) ResolveValueAt(op *change.Op, anc Ancestry) types.Scalar {
	return os.resolveValueAt(op, anc)
}

// KeysAt is Keys as the document stood at a historical ancestry set.
func (os *OpSet) KeysAt(obj clock.ObjId, anc Ancestry) []string {
	var out []string
	for _, k := range os.AllMapKeys(obj) {
		if len(os.GetAllAt(obj, k, anc)) > 0 {
			out = append(out, k)
		}
	}
	return out
}

// NextCounter returns one more than the highest op counter this OpSet has
// ever integrated (from any actor), the value a new transaction must begin
// numbering its own ops from (spec.md §4.3, "a transaction opens knowing
// the document's next unused op counter").
func (os *OpSet) NextCounter() uint64 {
	var max uint64
	for id := range os.allOps {
		if id.Counter > max {
			max = id.Counter
		}
	}
	return max + 1
}
