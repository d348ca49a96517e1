package opset

import (
	"sort"

	"automerge/internal/change"
	"automerge/internal/clock"
	"automerge/internal/types"
)

// mapSlot holds every op ever written to one map key, in arrival order.
// Visible ops (those with no successor) are the key's current value or,
// when more than one remains visible, its conflict set (spec.md §3).
type mapSlot struct {
	ops []*change.Op
}

// element is one position in a list/text sequence, named forever by the
// OpId of the op that first inserted it (spec.md §3, "RGA"). It is never
// removed from the sequence once created — deleting its value leaves a
// tombstone so later concurrent inserts can still anchor to its id.
type element struct {
	id  clock.OpId
	ops []*change.Op // value ops (Insert/Put overwrites) and mark anchors, arrival order
}

// valueOps returns the subset of el.ops that can hold a displayable value
// (excluding mark/unmark annotations).
func (el *element) valueOps() []*change.Op {
	var out []*change.Op
	for _, op := range el.ops {
		if op.Action.Kind != types.ActionMark && op.Action.Kind != types.ActionUnmark {
			out = append(out, op)
		}
	}
	return out
}

func visibleOps(ops []*change.Op) []*change.Op {
	var out []*change.Op
	for _, op := range ops {
		if op.Visible() {
			out = append(out, op)
		}
	}
	return out
}

// objectState is the per-object index: either map entries or an ordered
// element sequence, never both. A sequence's elements live in a seqNode
// treap (seqtree.go) rather than a flat slice, so insert/rank/live-count
// queries run in expected O(log n) with subtree-aggregated counters
// instead of a linear scan (spec.md §4.1).
type objectState struct {
	objType types.ObjType

	mapEntries map[string]*mapSlot

	root   *seqNode
	byElem map[clock.OpId]*seqNode // element id -> its node, for O(1) anchor lookup
}

func newObjectState(t types.ObjType) *objectState {
	return &objectState{
		objType:    t,
		mapEntries: make(map[string]*mapSlot),
		byElem:     make(map[clock.OpId]*seqNode),
	}
}

// elementsInOrder returns every element of st in document order, including
// tombstoned ones. O(n): used only by callers that must enumerate the full
// sequence (historical reads under an arbitrary ancestry set can't reuse
// the live-count aggregate, since that aggregate only tracks "now").
func (st *objectState) elementsInOrder() []*element {
	var out []*element
	inorder(st.root, &out)
	return out
}

// OpSet is the document's full operation index: one objectState per live
// object, a flat id->Op index for pred/succ resolution, and the per-target
// increment ledger (spec.md §3, counters accumulate rather than conflict).
type OpSet struct {
	Actors *ActorRegistry

	objects     map[clock.ObjId]*objectState
	allOps      map[clock.OpId]*change.Op
	increments  map[clock.OpId][]*change.Op // target counter op id -> increments applied to it
	childObjIDs map[clock.ObjId]struct{}    // every ObjId that has ever been created, for InvalidObject checks
	origin      *origin
}

// New returns an empty OpSet with the implicit root map registered.
func New() *OpSet {
	os := &OpSet{
		Actors:      NewActorRegistry(),
		objects:     make(map[clock.ObjId]*objectState),
		allOps:      make(map[clock.OpId]*change.Op),
		increments:  make(map[clock.OpId][]*change.Op),
		childObjIDs: make(map[clock.ObjId]struct{}),
		origin:      newOrigin(),
	}
	os.objects[clock.Root] = newObjectState(types.ObjMap)
	os.childObjIDs[clock.Root] = struct{}{}
	return os
}

// ErrUnknownObject is returned when an op targets an object this OpSet has
// never seen created.
type ErrUnknownObject struct{ Obj clock.ObjId }

func (e ErrUnknownObject) Error() string { return "opset: unknown object" }

// Integrate applies op to the document: it supersedes the ops named in
// op.Pred (unless op is an Increment, which accumulates instead), then
// records op's own value in the object/key/element it targets. Integrate
// is idempotent: re-integrating an op already seen by ID is a no-op.
func (os *OpSet) Integrate(op *change.Op) error {
	if _, seen := os.allOps[op.ID]; seen {
		return nil
	}
	os.allOps[op.ID] = op

	if op.Action.Kind != types.ActionIncrement {
		for _, p := range op.Pred {
			if target, ok := os.allOps[p]; ok {
				target.AddSuccessor(op.ID)
			}
		}
	}

	switch op.Action.Kind {
	case types.ActionDelete:
		if !op.Key.IsMapKey() {
			if obj, ok := os.objects[op.Obj]; ok {
				if node, ok := obj.byElem[op.Key.ElemID()]; ok {
					setLive(node, len(visibleOps(node.el.valueOps())) > 0)
				}
			}
		}
		return nil
	case types.ActionIncrement:
		if len(op.Pred) > 0 {
			target := op.Pred[0]
			os.increments[target] = append(os.increments[target], op)
		}
		return nil
	case types.ActionMakeMap, types.ActionMakeList, types.ActionMakeText:
		os.ensureChildObject(op)
	}

	obj, ok := os.objects[op.Obj]
	if !ok {
		return ErrUnknownObject{Obj: op.Obj}
	}

	if op.Key.IsMapKey() {
		slot, ok := obj.mapEntries[op.Key.MapKeyString()]
		if !ok {
			slot = &mapSlot{}
			obj.mapEntries[op.Key.MapKeyString()] = slot
		}
		slot.ops = append(slot.ops, op)
		return nil
	}

	if op.Insert {
		pos := os.insertPosition(obj, op.Key.ElemID(), op.ID)
		el := &element{id: op.ID, ops: []*change.Op{op}}
		node := newSeqNode(el)
		node.live = len(visibleOps(el.valueOps())) > 0
		node.update()
		obj.root = insertAt(obj.root, pos, node)
		obj.byElem[op.ID] = node
		return nil
	}

	node, ok := obj.byElem[op.Key.ElemID()]
	if !ok {
		return ErrUnknownObject{Obj: op.Obj}
	}
	node.el.ops = append(node.el.ops, op)
	setLive(node, len(visibleOps(node.el.valueOps())) > 0)
	return nil
}

// ensureChildObject registers the container a MakeMap/MakeList/MakeText op
// creates, if it has not already been registered (re-integration safety).
func (os *OpSet) ensureChildObject(op *change.Op) {
	id := clock.ObjId{Id: op.ID}
	if _, ok := os.objects[id]; ok {
		return
	}
	os.objects[id] = newObjectState(op.Action.ObjType)
	os.childObjIDs[id] = struct{}{}
}

// HasObject reports whether obj has ever been created (or is the root).
func (os *OpSet) HasObject(obj clock.ObjId) bool {
	_, ok := os.childObjIDs[obj]
	return ok
}

// ObjectType reports the container kind of obj.
func (os *OpSet) ObjectType(obj clock.ObjId) (types.ObjType, bool) {
	st, ok := os.objects[obj]
	if !ok {
		return 0, false
	}
	return st.objType, true
}

// insertPosition implements the RGA placement rule (spec.md §3, §9): a new
// insert referencing ref is placed immediately after ref (or at the front,
// for Head), but advances past any run of elements whose id sorts greater
// than the new op's id — those were inserted concurrently at the same
// reference point and outrank it under the total OpId order. Locating ref
// and walking forward through the (typically short) concurrent run is
// O(log n + k) via the treap's rank/successor operations rather than a
// linear scan of the whole sequence.
func (os *OpSet) insertPosition(obj *objectState, ref clock.OpId, newID clock.OpId) int {
	start := 0
	if !ref.IsNull() {
		if refNode, ok := obj.byElem[ref]; ok {
			start = rank(refNode) + 1
		}
	}
	pos := start
	n := nthNode(obj.root, start)
	for n != nil && clock.Greater(n.el.id, newID, os.Actors) {
		pos++
		n = successor(n)
	}
	return pos
}

// Get returns the winning visible value at a map key: the visible op with
// the greatest OpId (spec.md §3's tie-break), or ok=false if the key is
// absent or its only writes are now tombstoned.
func (os *OpSet) Get(obj clock.ObjId, key string) (types.Scalar, bool) {
	op := os.winningOp(obj, key)
	if op == nil {
		return types.Scalar{}, false
	}
	return os.resolveValue(op), true
}

// GetAll returns every currently-visible op at a map key (the full
// conflict set), sorted with the winner first.
func (os *OpSet) GetAll(obj clock.ObjId, key string) []*change.Op {
	st, ok := os.objects[obj]
	if !ok {
		return nil
	}
	slot, ok := st.mapEntries[key]
	if !ok {
		return nil
	}
	vis := visibleOps(slot.ops)
	os.sortByOpIdDesc(vis)
	return vis
}

func (os *OpSet) winningOp(obj clock.ObjId, key string) *change.Op {
	vis := os.GetAll(obj, key)
	if len(vis) == 0 {
		return nil
	}
	return vis[0]
}

func (os *OpSet) sortByOpIdDesc(ops []*change.Op) {
	sort.Slice(ops, func(i, j int) bool {
		return clock.Greater(ops[i].ID, ops[j].ID, os.Actors)
	})
}

// resolveValue turns a value-carrying op into its displayed Scalar,
// summing in any visible increments if it holds a Counter (spec.md §3).
func (os *OpSet) resolveValue(op *change.Op) types.Scalar {
	v := op.Action.Value
	if v.Kind() != types.KindCounter {
		return v
	}
	total := v.AsInt()
	for _, inc := range os.increments[op.ID] {
		total += inc.Action.Delta
	}
	return types.Counter(total)
}

// Keys returns the map keys at obj that currently have at least one
// visible op.
func (os *OpSet) Keys(obj clock.ObjId) []string {
	st, ok := os.objects[obj]
	if !ok {
		return nil
	}
	var out []string
	for k, slot := range st.mapEntries {
		if len(visibleOps(slot.ops)) > 0 {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Length returns the number of live (non-tombstoned) elements in a
// list/text object: the root node's aggregated liveSize counter, O(1)
// rather than a scan (spec.md §4.1).
func (os *OpSet) Length(obj clock.ObjId) int {
	st, ok := os.objects[obj]
	if !ok {
		return 0
	}
	return liveSizeOf(st.root)
}

// ElementAt returns the winning op for the i'th live element (0-based,
// tombstones skipped), and its backing element id (stable cursor handle).
// O(log n) via the treap's order-statistics rank.
func (os *OpSet) ElementAt(obj clock.ObjId, i int) (op *change.Op, elemID clock.OpId, ok bool) {
	st, okObj := os.objects[obj]
	if !okObj {
		return nil, clock.OpId{}, false
	}
	n := nthLive(st.root, i)
	if n == nil {
		return nil, clock.OpId{}, false
	}
	vis := visibleOps(n.el.valueOps())
	os.sortByOpIdDesc(vis)
	return vis[0], n.el.id, true
}

// AllLiveElements returns the winning op of every live element, in
// document order, together with the stable element id of each. O(n) in
// the result size, which is unavoidable for a method that must return
// every element.
func (os *OpSet) AllLiveElements(obj clock.ObjId) (ops []*change.Op, ids []clock.OpId) {
	st, ok := os.objects[obj]
	if !ok {
		return nil, nil
	}
	for _, el := range st.elementsInOrder() {
		vis := visibleOps(el.valueOps())
		if len(vis) == 0 {
			continue
		}
		os.sortByOpIdDesc(vis)
		ops = append(ops, vis[0])
		ids = append(ids, el.id)
	}
	return ops, ids
}

// IndexOfElement returns the live-element index of elemID, or ok=false if
// elemID does not exist or is currently tombstoned. O(log n) via the
// treap's parent-chain live-rank walk.
func (os *OpSet) IndexOfElement(obj clock.ObjId, elemID clock.OpId) (idx int, ok bool) {
	st, okObj := os.objects[obj]
	if !okObj {
		return 0, false
	}
	n, ok := st.byElem[elemID]
	if !ok {
		return 0, false
	}
	return liveRank(n)
}
