package opset

import (
	"testing"

	"automerge/internal/actor"
	"automerge/internal/change"
	"automerge/internal/clock"
	"automerge/internal/types"
)

func newDoc(t *testing.T) (*OpSet, clock.ActorIdx, clock.ActorIdx) {
	t.Helper()
	os := New()
	a1, err := actor.New([]byte{1})
	if err != nil {
		t.Fatalf("actor.New: %v", err)
	}
	a2, err := actor.New([]byte{2})
	if err != nil {
		t.Fatalf("actor.New: %v", err)
	}
	return os, os.Actors.Intern(a1), os.Actors.Intern(a2)
}

func putOp(counter uint64, a clock.ActorIdx, key string, v types.Scalar, pred ...clock.OpId) *change.Op {
	return &change.Op{
		ID:     clock.OpId{Counter: counter, Actor: a},
		Action: types.Put(v),
		Obj:    clock.Root,
		Key:    clock.MapKey(key),
		Pred:   pred,
	}
}

func TestMapPutAndOverwrite(t *testing.T) {
	os, a1, _ := newDoc(t)

	op1 := putOp(1, a1, "name", types.Str("alice"))
	if err := os.Integrate(op1); err != nil {
		t.Fatalf("Integrate op1: %v", err)
	}
	got, ok := os.Get(clock.Root, "name")
	if !ok || got.AsStr() != "alice" {
		t.Fatalf("Get = (%v, %v), want (alice, true)", got, ok)
	}

	op2 := putOp(2, a1, "name", types.Str("alicia"), op1.ID)
	if err := os.Integrate(op2); err != nil {
		t.Fatalf("Integrate op2: %v", err)
	}
	got, ok = os.Get(clock.Root, "name")
	if !ok || got.AsStr() != "alicia" {
		t.Fatalf("Get after overwrite = (%v, %v), want (alicia, true)", got, ok)
	}
	if op1.Visible() {
		t.Fatalf("superseded op1 should no longer be visible")
	}
}

func TestMapConcurrentPutIsConflict(t *testing.T) {
	os, a1, a2 := newDoc(t)
	op1 := putOp(1, a1, "color", types.Str("red"))
	op2 := putOp(1, a2, "color", types.Str("blue"))
	os.Integrate(op1)
	os.Integrate(op2)

	all := os.GetAll(clock.Root, "color")
	if len(all) != 2 {
		t.Fatalf("expected a 2-way conflict, got %d visible ops", len(all))
	}
	// a2 > a1 lexicographically (byte 2 > byte 1), so op2 should win ties on
	// equal counters.
	got, ok := os.Get(clock.Root, "color")
	if !ok || got.AsStr() != "blue" {
		t.Fatalf("Get = (%v, %v), want (blue, true)", got, ok)
	}
}

func TestCounterIncrementsAccumulate(t *testing.T) {
	os, a1, a2 := newDoc(t)
	base := putOp(1, a1, "score", types.Counter(10))
	os.Integrate(base)

	inc1 := &change.Op{
		ID:     clock.OpId{Counter: 2, Actor: a1},
		Action: types.Increment(5),
		Obj:    clock.Root,
		Key:    clock.MapKey("score"),
		Pred:   []clock.OpId{base.ID},
	}
	inc2 := &change.Op{
		ID:     clock.OpId{Counter: 2, Actor: a2},
		Action: types.Increment(-3),
		Obj:    clock.Root,
		Key:    clock.MapKey("score"),
		Pred:   []clock.OpId{base.ID},
	}
	os.Integrate(inc1)
	os.Integrate(inc2)

	got, ok := os.Get(clock.Root, "score")
	if !ok {
		t.Fatalf("expected score to be present")
	}
	if got.AsInt() != 12 {
		t.Fatalf("score = %d, want 12 (10+5-3)", got.AsInt())
	}
	if !base.Visible() {
		t.Fatalf("increments must not hide their target counter op")
	}
}

func TestListInsertOrderingAndConflictResolution(t *testing.T) {
	os, a1, a2 := newDoc(t)
	listID := clock.OpId{Counter: 1, Actor: a1}
	mkList := &change.Op{ID: listID, Action: types.MakeList(), Obj: clock.Root, Key: clock.MapKey("items")}
	os.Integrate(mkList)
	obj := clock.ObjId{Id: listID}

	ins1 := &change.Op{ID: clock.OpId{Counter: 2, Actor: a1}, Action: types.Insert(types.Str("a")), Obj: obj, Key: clock.Head(), Insert: true}
	os.Integrate(ins1)
	ins2 := &change.Op{ID: clock.OpId{Counter: 3, Actor: a1}, Action: types.Insert(types.Str("b")), Obj: obj, Key: clock.ElemKey(ins1.ID), Insert: true}
	os.Integrate(ins2)

	if n := os.Length(obj); n != 2 {
		t.Fatalf("Length = %d, want 2", n)
	}
	op0, _, ok := os.ElementAt(obj, 0)
	if !ok || op0.Action.Value.AsStr() != "a" {
		t.Fatalf("element 0 = %v, want a", op0)
	}
	op1, _, ok := os.ElementAt(obj, 1)
	if !ok || op1.Action.Value.AsStr() != "b" {
		t.Fatalf("element 1 = %v, want b", op1)
	}

	// Two actors concurrently insert after the head; the op with the
	// greater id must end up first among the two.
	c1 := &change.Op{ID: clock.OpId{Counter: 4, Actor: a1}, Action: types.Insert(types.Str("c1")), Obj: obj, Key: clock.Head(), Insert: true}
	c2 := &change.Op{ID: clock.OpId{Counter: 4, Actor: a2}, Action: types.Insert(types.Str("c2")), Obj: obj, Key: clock.Head(), Insert: true}
	os.Integrate(c1)
	os.Integrate(c2)

	first, _, _ := os.ElementAt(obj, 0)
	winner := "c1"
	if clock.Greater(c2.ID, c1.ID, os.Actors) {
		winner = "c2"
	}
	if first.Action.Value.AsStr() != winner {
		t.Fatalf("first element after concurrent inserts = %v, want %v", first.Action.Value.AsStr(), winner)
	}
}

func TestDeleteTombstonesElement(t *testing.T) {
	os, a1, _ := newDoc(t)
	listID := clock.OpId{Counter: 1, Actor: a1}
	os.Integrate(&change.Op{ID: listID, Action: types.MakeList(), Obj: clock.Root, Key: clock.MapKey("items")})
	obj := clock.ObjId{Id: listID}

	ins := &change.Op{ID: clock.OpId{Counter: 2, Actor: a1}, Action: types.Insert(types.Str("x")), Obj: obj, Key: clock.Head(), Insert: true}
	os.Integrate(ins)
	if n := os.Length(obj); n != 1 {
		t.Fatalf("Length before delete = %d, want 1", n)
	}

	del := &change.Op{ID: clock.OpId{Counter: 3, Actor: a1}, Action: types.Delete(), Obj: obj, Key: clock.ElemKey(ins.ID), Pred: []clock.OpId{ins.ID}}
	os.Integrate(del)
	if n := os.Length(obj); n != 0 {
		t.Fatalf("Length after delete = %d, want 0", n)
	}
	if ins.Visible() {
		t.Fatalf("deleted element's op should no longer be visible")
	}
}

func TestKeysOnlyListsVisibleKeys(t *testing.T) {
	os, a1, _ := newDoc(t)
	op1 := putOp(1, a1, "a", types.Int(1))
	op2 := putOp(2, a1, "b", types.Int(2))
	os.Integrate(op1)
	os.Integrate(op2)
	del := &change.Op{
		ID:     clock.OpId{Counter: 3, Actor: a1},
		Action: types.Delete(),
		Obj:    clock.Root,
		Key:    clock.MapKey("a"),
		Pred:   []clock.OpId{op1.ID},
	}
	os.Integrate(del)

	keys := os.Keys(clock.Root)
	if len(keys) != 1 || keys[0] != "b" {
		t.Fatalf("Keys = %v, want [b]", keys)
	}
}
