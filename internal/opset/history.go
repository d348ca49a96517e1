package opset

import (
	"automerge/internal/change"
	"automerge/internal/clock"
	"automerge/internal/types"
)

// Ancestry answers "is h part of the causal history I am reading at",
// i.e. membership in the transitive closure of some set of heads. The
// opset package does not own the change graph, so callers (the root
// document facade) supply this as a closure built by walking
// change.Graph.Heads()/Deps backwards (spec.md §6, historical reads "do
// not mutate state").
type Ancestry func(h change.Hash) bool

// origin records which change introduced each op, needed to test an op's
// membership in an arbitrary historical ancestry set.
type origin struct {
	byOp map[clock.OpId]change.Hash
}

func newOrigin() *origin { return &origin{byOp: make(map[clock.OpId]change.Hash)} }

// IntegrateChange integrates every op in ch, recording ch's hash as each
// op's origin so historical (at-heads) reads can later test visibility
// against an arbitrary ancestry set rather than only "now".
func (os *OpSet) IntegrateChange(ch *change.Change) error {
	h := ch.Hash()
	for i := range ch.Ops {
		op := &ch.Ops[i]
		if err := os.Integrate(op); err != nil {
			return err
		}
		if _, seen := os.origin.byOp[op.ID]; !seen {
			os.origin.byOp[op.ID] = h
		}
	}
	return nil
}

// visibleAt reports whether op is visible under ancestry: op's own change
// must be in the ancestry set, and none of its successors whose change is
// also in the ancestry set may exist.
func (os *OpSet) visibleAt(op *change.Op, anc Ancestry) bool {
	if h, ok := os.origin.byOp[op.ID]; ok && !anc(h) {
		return false
	}
	for _, s := range op.Succ {
		succOp, ok := os.allOps[s]
		if !ok {
			continue
		}
		if succOp.Action.Kind == types.ActionIncrement {
			continue // increments never hide their target, live or historical
		}
		if h, ok := os.origin.byOp[s]; !ok || anc(h) {
			return false
		}
	}
	return true
}

func (os *OpSet) visibleOpsAt(ops []*change.Op, anc Ancestry) []*change.Op {
	var out []*change.Op
	for _, op := range ops {
		if os.visibleAt(op, anc) {
			out = append(out, op)
		}
	}
	return out
}

// GetAllAt is GetAll as the document stood at a historical ancestry set.
func (os *OpSet) GetAllAt(obj clock.ObjId, key string, anc Ancestry) []*change.Op {
	st, ok := os.objects[obj]
	if !ok {
		return nil
	}
	slot, ok := st.mapEntries[key]
	if !ok {
		return nil
	}
	vis := os.visibleOpsAt(slot.ops, anc)
	os.sortByOpIdDesc(vis)
	return vis
}

// GetAt is Get as the document stood at a historical ancestry set.
func (os *OpSet) GetAt(obj clock.ObjId, key string, anc Ancestry) (types.Scalar, bool) {
	vis := os.GetAllAt(obj, key, anc)
	if len(vis) == 0 {
		return types.Scalar{}, false
	}
	return os.resolveValueAt(vis[0], anc), true
}

func (os *OpSet) resolveValueAt(op *change.Op, anc Ancestry) types.Scalar {
	v := op.Action.Value
	if v.Kind() != types.KindCounter {
		return v
	}
	total := v.AsInt()
	for _, inc := range os.increments[op.ID] {
		if h, ok := os.origin.byOp[inc.ID]; ok && anc(h) {
			total += inc.Action.Delta
		}
	}
	return types.Counter(total)
}

// AllLiveElementsAt is AllLiveElements as the document stood at a
// historical ancestry set. O(n): a historical view is visible under an
// arbitrary caller-supplied Ancestry predicate the treap's liveSize
// aggregate was never built against (that aggregate only tracks "now"),
// so there is no subtree count to reuse here; every element must be
// tested individually.
func (os *OpSet) AllLiveElementsAt(obj clock.ObjId, anc Ancestry) (ops []*change.Op, ids []clock.OpId) {
	st, ok := os.objects[obj]
	if !ok {
		return nil, nil
	}
	for _, el := range st.elementsInOrder() {
		vis := os.visibleOpsAt(el.valueOps(), anc)
		if len(vis) == 0 {
			continue
		}
		os.sortByOpIdDesc(vis)
		ops = append(ops, vis[0])
		ids = append(ids, el.id)
	}
	return ops, ids
}

// LengthAt is Length as the document stood at a historical ancestry set.
// O(n), for the same reason as AllLiveElementsAt; Length itself (the "now"
// case) is O(1).
func (os *OpSet) LengthAt(obj clock.ObjId, anc Ancestry) int {
	ops, _ := os.AllLiveElementsAt(obj, anc)
	return len(ops)
}
