// Package txn implements the mutation transaction: a batch of ops
// accumulated against a document's OpSet and, on Commit, sealed into a
// change.Change whose deps are the heads the transaction started from
// (spec.md §4.3). Grounded on tur/pkg/mvcc/transaction.go's begin/commit/
// rollback shape (a transaction buffers writes and is either sealed into
// a committed version or discarded), retargeted from row writes to CRDT
// ops.
package txn

import (
	"errors"
	"strconv"
	"strings"

	"automerge/internal/actor"
	"automerge/internal/change"
	"automerge/internal/clock"
	"automerge/internal/opset"
	"automerge/internal/types"
)

// ErrInvalidPath is returned when a "/a/b/0"-style path does not resolve
// to a live object (spec.md §7).
var ErrInvalidPath = errors.New("txn: invalid path")

// ErrInvalidKeyOrIndex is returned when a key is absent or an index is
// out of bounds.
var ErrInvalidKeyOrIndex = errors.New("txn: invalid key or index")

// ErrInvalidObject is returned when an operation targets an ObjId the
// document has never created.
var ErrInvalidObject = errors.New("txn: invalid object")

// ErrNotSequence / ErrNotMap guard obviously mistyped API usage (e.g.
// Push on a map).
var (
	ErrNotSequence = errors.New("txn: object is not a list or text")
	ErrNotMap      = errors.New("txn: object is not a map")
)

// Txn accumulates ops against a document's OpSet for one causally atomic
// change. It is not safe for concurrent use.
type Txn struct {
	os       *opset.OpSet
	actor    actor.ID
	actorIdx clock.ActorIdx
	next     uint64 // next free op counter
	startOp  uint64
	message  string
	deps     []change.Hash
	ops      []*change.Op // pointers: Integrate mutates Succ on these as later ops in this txn supersede earlier ones
}

// Begin opens a transaction. nextCounter is the document's next unused op
// counter (i.e. one more than the highest counter any actor has used so
// far); heads are the document's current heads, recorded as the sealed
// change's Deps.
func Begin(os *opset.OpSet, a actor.ID, nextCounter uint64, heads []change.Hash) *Txn {
	return &Txn{
		os:       os,
		actor:    a,
		actorIdx: os.Actors.Intern(a),
		next:     nextCounter,
		startOp:  nextCounter,
		deps:     change.SortHashes(heads),
	}
}

// SetMessage attaches a human-readable commit message, mirrored into the
// sealed Change (spec.md §3).
func (t *Txn) SetMessage(msg string) { t.message = msg }

// PendingOps returns the ops accumulated so far, not yet committed.
func (t *Txn) PendingOps() []change.Op {
	out := make([]change.Op, len(t.ops))
	for i, op := range t.ops {
		out[i] = *op
	}
	return out
}

func (t *Txn) nextID() clock.OpId {
	id := clock.OpId{Counter: t.next, Actor: t.actorIdx}
	t.next++
	return id
}

func (t *Txn) apply(op change.Op) *change.Op {
	stored := &op
	t.ops = append(t.ops, stored)
	t.os.Integrate(stored)
	return stored
}

func (t *Txn) currentPred(obj clock.ObjId, key clock.Key) []clock.OpId {
	var pred []clock.OpId
	if key.IsMapKey() {
		for _, op := range t.os.GetAll(obj, key.MapKeyString()) {
			pred = append(pred, op.ID)
		}
		return pred
	}
	if idx, ok := t.os.IndexOfElement(obj, key.ElemID()); ok {
		op, _, _ := t.os.ElementAt(obj, idx)
		pred = append(pred, op.ID)
	}
	return pred
}

// Put sets a map key to a scalar value, superseding whatever is currently
// there (spec.md §4.1).
func (t *Txn) Put(obj clock.ObjId, key string, v types.Scalar) (clock.OpId, error) {
	if !t.os.HasObject(obj) {
		return clock.OpId{}, ErrInvalidObject
	}
	k := clock.MapKey(key)
	pred := t.currentPred(obj, k)
	id := t.nextID()
	t.apply(change.Op{ID: id, Action: types.Put(v), Obj: obj, Key: k, Pred: pred})
	return id, nil
}

// PutObject creates a nested map/list/text at a map key, superseding
// whatever is currently there, and returns the new object's id.
func (t *Txn) PutObject(obj clock.ObjId, key string, ot types.ObjType) (clock.ObjId, error) {
	if !t.os.HasObject(obj) {
		return clock.ObjId{}, ErrInvalidObject
	}
	k := clock.MapKey(key)
	pred := t.currentPred(obj, k)
	id := t.nextID()
	t.apply(change.Op{ID: id, Action: makeAction(ot), Obj: obj, Key: k, Pred: pred})
	return clock.ObjId{Id: id}, nil
}

func makeAction(ot types.ObjType) types.Action {
	switch ot {
	case types.ObjList:
		return types.MakeList()
	case types.ObjText:
		return types.MakeText()
	default:
		return types.MakeMap()
	}
}

// Insert inserts a new scalar element at position index (0 meaning the
// front of the sequence, the length meaning the end) in a list/text
// object.
func (t *Txn) Insert(obj clock.ObjId, index int, v types.Scalar) (clock.OpId, error) {
	ref, err := t.refFor(obj, index)
	if err != nil {
		return clock.OpId{}, err
	}
	id := t.nextID()
	t.apply(change.Op{ID: id, Action: types.Insert(v), Obj: obj, Key: ref, Insert: true})
	return id, nil
}

// InsertObject is Insert for a nested map/list/text element.
func (t *Txn) InsertObject(obj clock.ObjId, index int, ot types.ObjType) (clock.ObjId, error) {
	ref, err := t.refFor(obj, index)
	if err != nil {
		return clock.ObjId{}, err
	}
	id := t.nextID()
	t.apply(change.Op{ID: id, Action: makeAction(ot), Obj: obj, Key: ref, Insert: true})
	return clock.ObjId{Id: id}, nil
}

// Push appends v to the end of a list/text object.
func (t *Txn) Push(obj clock.ObjId, v types.Scalar) (clock.OpId, error) {
	return t.Insert(obj, t.os.Length(obj), v)
}

// refFor returns the ElemKey ops should insert after for a 0-based
// insertion index (index == length means "append at the end").
func (t *Txn) refFor(obj clock.ObjId, index int) (clock.Key, error) {
	if !t.os.HasObject(obj) {
		return clock.Key{}, ErrInvalidObject
	}
	if index == 0 {
		return clock.Head(), nil
	}
	op, elemID, ok := t.os.ElementAt(obj, index-1)
	if !ok || op == nil {
		return clock.Key{}, ErrInvalidKeyOrIndex
	}
	return clock.ElemKey(elemID), nil
}

// Delete removes a map key; sequence elements are removed with DeleteAt.
func (t *Txn) Delete(obj clock.ObjId, key string) error {
	if !t.os.HasObject(obj) {
		return ErrInvalidObject
	}
	k := clock.MapKey(key)
	pred := t.currentPred(obj, k)
	if len(pred) == 0 {
		return ErrInvalidKeyOrIndex
	}
	id := t.nextID()
	t.apply(change.Op{ID: id, Action: types.Delete(), Obj: obj, Key: k, Pred: pred})
	return nil
}

// DeleteAt removes the live element at a sequence index.
func (t *Txn) DeleteAt(obj clock.ObjId, index int) error {
	op, elemID, ok := t.os.ElementAt(obj, index)
	if !ok {
		return ErrInvalidKeyOrIndex
	}
	k := clock.ElemKey(elemID)
	id := t.nextID()
	t.apply(change.Op{ID: id, Action: types.Delete(), Obj: obj, Key: k, Pred: []clock.OpId{op.ID}})
	return nil
}

// Increment adds delta to the counter at a map key. It targets the
// current winning op at that key, which must hold a Counter scalar.
func (t *Txn) Increment(obj clock.ObjId, key string, delta int64) error {
	target := t.os.GetAll(obj, key)
	if len(target) == 0 {
		return ErrInvalidKeyOrIndex
	}
	id := t.nextID()
	t.apply(change.Op{ID: id, Action: types.Increment(delta), Obj: obj, Key: clock.MapKey(key), Pred: []clock.OpId{target[0].ID}})
	return nil
}

// Mark applies a rich-text mark starting at a sequence index.
func (t *Txn) Mark(obj clock.ObjId, startIndex int, name string, v types.Scalar, expand types.ExpandPolicy) error {
	_, elemID, ok := t.os.ElementAt(obj, startIndex)
	if !ok {
		return ErrInvalidKeyOrIndex
	}
	id := t.nextID()
	t.apply(change.Op{ID: id, Action: types.Mark(name, v, expand), Obj: obj, Key: clock.ElemKey(elemID)})
	return nil
}

// Unmark closes a previously applied mark at a sequence index.
func (t *Txn) Unmark(obj clock.ObjId, atIndex int, name string, expand types.ExpandPolicy) error {
	_, elemID, ok := t.os.ElementAt(obj, atIndex)
	if !ok {
		return ErrInvalidKeyOrIndex
	}
	id := t.nextID()
	t.apply(change.Op{ID: id, Action: types.Unmark(name, expand), Obj: obj, Key: clock.ElemKey(elemID)})
	return nil
}

// UpdateText replaces a text object's content with next, emitting the
// minimal prefix-kept / suffix-kept insert+delete diff rather than a
// full clear-and-retype (spec.md §4.2, "update_text diffs against the
// current content").
func (t *Txn) UpdateText(obj clock.ObjId, next string) error {
	current := t.textRunes(obj)
	nextRunes := []rune(next)

	prefix := 0
	for prefix < len(current) && prefix < len(nextRunes) && current[prefix] == nextRunes[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(current)-prefix && suffix < len(nextRunes)-prefix &&
		current[len(current)-1-suffix] == nextRunes[len(nextRunes)-1-suffix] {
		suffix++
	}

	deleteCount := len(current) - prefix - suffix
	for i := 0; i < deleteCount; i++ {
		if err := t.DeleteAt(obj, prefix); err != nil {
			return err
		}
	}
	insertRunes := nextRunes[prefix : len(nextRunes)-suffix]
	for i, r := range insertRunes {
		if _, err := t.Insert(obj, prefix+i, types.Str(string(r))); err != nil {
			return err
		}
	}
	return nil
}

// textRunes indexes text content by rune (Unicode code point), the
// canonical internal text unit this package uses throughout — not
// grapheme cluster, not UTF-16 code unit (spec.md §9). One element id
// anchors one rune, so no secondary index is needed to translate
// between the RGA sequence and a text offset.
func (t *Txn) textRunes(obj clock.ObjId) []rune {
	ops, _ := t.os.AllLiveElements(obj)
	out := make([]rune, 0, len(ops))
	for _, op := range ops {
		s := op.Action.Value.AsStr()
		for _, r := range s {
			out = append(out, r)
		}
	}
	return out
}

// Splice is the general sequence edit primitive: delete deleteCount live
// elements starting at index, then insert values at that position.
func (t *Txn) Splice(obj clock.ObjId, index, deleteCount int, values []types.Scalar) error {
	for i := 0; i < deleteCount; i++ {
		if err := t.DeleteAt(obj, index); err != nil {
			return err
		}
	}
	for i, v := range values {
		if _, err := t.Insert(obj, index+i, v); err != nil {
			return err
		}
	}
	return nil
}

// Commit seals the accumulated ops into a change.Change with Deps set to
// the heads the transaction began from, returning nil (and leaving the
// txn's ops already integrated) if there is nothing to commit.
func (t *Txn) Commit(seq uint64, timeMillis int64) *change.Change {
	if len(t.ops) == 0 {
		return nil
	}
	c := change.New(t.actor, seq, t.startOp, timeMillis, t.message, t.deps, t.PendingOps())
	c.Seal(t.os.Actors)
	// The ops were already integrated live (apply, above) so later ops in
	// this same transaction could see earlier ones; IntegrateChange's own
	// Integrate calls are therefore no-ops here, but it is the only thing
	// that records each op's origin hash for historical (at-heads) reads.
	t.os.IntegrateChange(c)
	return c
}

// Rollback undoes every op this transaction integrated, restoring the
// OpSet to its pre-transaction state. Since ops are applied to a live
// OpSet as they are created (so later ops in the same transaction can see
// earlier ones), rollback must unwind them in reverse order: clear
// increments, drop element/map-slot entries, and remove the successor
// edges they added to their preds.
func (t *Txn) Rollback() {
	for i := len(t.ops) - 1; i >= 0; i-- {
		t.os.Unintegrate(t.ops[i])
	}
	t.ops = nil
}

// ResolvePath walks a "/a/b/0" style path from root, alternating map-key
// and sequence-index segments as each object's type dictates (spec.md
// §6). Path segments are split on "/"; a leading slash is optional.
func ResolvePath(os *opset.OpSet, path string) (clock.ObjId, error) {
	obj := clock.Root
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return obj, nil
	}
	for _, seg := range strings.Split(path, "/") {
		ot, ok := os.ObjectType(obj)
		if !ok {
			return clock.ObjId{}, ErrInvalidPath
		}
		if ot == types.ObjMap {
			op := winningMapOp(os, obj, seg)
			if op == nil || !op.Action.IsContainerMake() {
				return clock.ObjId{}, ErrInvalidPath
			}
			obj = clock.ObjId{Id: op.ID}
			continue
		}
		idx, err := strconv.Atoi(seg)
		if err != nil {
			return clock.ObjId{}, ErrInvalidPath
		}
		op, _, ok := os.ElementAt(obj, idx)
		if !ok || !op.Action.IsContainerMake() {
			return clock.ObjId{}, ErrInvalidPath
		}
		obj = clock.ObjId{Id: op.ID}
	}
	return obj, nil
}

func winningMapOp(os *opset.OpSet, obj clock.ObjId, key string) *change.Op {
	all := os.GetAll(obj, key)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}
