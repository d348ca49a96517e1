package patch

import (
	"testing"

	"automerge/internal/actor"
	"automerge/internal/change"
	"automerge/internal/clock"
	"automerge/internal/opset"
	"automerge/internal/txn"
	"automerge/internal/types"
)

func ancestryUpTo(heads ...change.Hash) opset.Ancestry {
	set := make(map[change.Hash]bool, len(heads))
	for _, h := range heads {
		set[h] = true
	}
	return func(h change.Hash) bool { return set[h] }
}

func TestDiffReportsNewMapKey(t *testing.T) {
	os := opset.New()
	a, _ := actor.New([]byte{1})

	empty := ancestryUpTo()

	tx := txn.Begin(os, a, 1, nil)
	if _, err := tx.Put(clock.Root, "name", types.Str("bob")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	c1 := tx.Commit(1, 100)
	if c1 == nil {
		t.Fatalf("expected a sealed change")
	}

	after := ancestryUpTo(c1.Hash())

	patches := Diff(os, empty, after)
	if len(patches) != 1 {
		t.Fatalf("patches = %v, want 1 Put", patches)
	}
	if patches[0].Kind != KindPut || patches[0].Key != "name" || patches[0].Value.AsStr() != "bob" {
		t.Fatalf("unexpected patch: %+v", patches[0])
	}
}

func TestDiffReportsOverwriteAndDelete(t *testing.T) {
	os := opset.New()
	a, _ := actor.New([]byte{1})

	tx1 := txn.Begin(os, a, 1, nil)
	if _, err := tx1.Put(clock.Root, "x", types.Int(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	c1 := tx1.Commit(1, 100)
	mid := ancestryUpTo(c1.Hash())

	tx2 := txn.Begin(os, a, 2, []change.Hash{c1.Hash()})
	if _, err := tx2.Put(clock.Root, "x", types.Int(2)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := tx2.Delete(clock.Root, "x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	c2 := tx2.Commit(2, 200)
	end := ancestryUpTo(c1.Hash(), c2.Hash())

	patches := Diff(os, mid, end)
	if len(patches) != 1 || patches[0].Kind != KindDelete || patches[0].Key != "x" {
		t.Fatalf("patches = %+v, want a single Delete(x)", patches)
	}
}

func TestDiffReportsListInsertsAndDeletes(t *testing.T) {
	os := opset.New()
	a, _ := actor.New([]byte{1})
	empty := ancestryUpTo()

	tx := txn.Begin(os, a, 1, nil)
	listID, err := tx.PutObject(clock.Root, "items", types.ObjList)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	for _, v := range []string{"a", "b", "c"} {
		if _, err := tx.Push(listID, types.Str(v)); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	c1 := tx.Commit(1, 100)
	afterCreate := ancestryUpTo(c1.Hash())

	createPatches := Diff(os, empty, afterCreate)
	// The three adjacent list inserts coalesce into one Insert patch.
	wantKinds := []Kind{KindPut, KindInsert}
	if len(createPatches) != len(wantKinds) || len(createPatches[1].Values) != 3 {
		t.Fatalf("create patches = %+v, want a Put and one Insert carrying 3 values", createPatches)
	}
	for i, k := range wantKinds {
		if createPatches[i].Kind != k {
			t.Fatalf("patch %d kind = %v, want %v", i, createPatches[i].Kind, k)
		}
	}

	tx2 := txn.Begin(os, a, 2, []change.Hash{c1.Hash()})
	if err := tx2.DeleteAt(listID, 1); err != nil {
		t.Fatalf("DeleteAt: %v", err)
	}
	c2 := tx2.Commit(2, 200)
	afterDelete := ancestryUpTo(c1.Hash(), c2.Hash())

	deletePatches := Diff(os, afterCreate, afterDelete)
	if len(deletePatches) != 1 || deletePatches[0].Kind != KindDelete || deletePatches[0].Obj != listID || deletePatches[0].Index != 1 {
		t.Fatalf("delete patches = %+v, want a single Delete at index 1", deletePatches)
	}
}

func TestDiffReportsConflictOnConcurrentPut(t *testing.T) {
	// Each actor writes "k" against its own empty document, unaware of the
	// other, so neither op is the other's Pred: a genuine concurrent
	// conflict, only visible once both changes are merged into one OpSet.
	a1, _ := actor.New([]byte{1})
	a2, _ := actor.New([]byte{2})

	doc1 := opset.New()
	tx1 := txn.Begin(doc1, a1, 1, nil)
	if _, err := tx1.Put(clock.Root, "k", types.Str("from1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	c1 := tx1.Commit(1, 100)

	doc2 := opset.New()
	tx2 := txn.Begin(doc2, a2, 1, nil)
	if _, err := tx2.Put(clock.Root, "k", types.Str("from2")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	c2 := tx2.Commit(1, 100)

	// c1/c2's op ids carry ActorIdx values local to their own originating
	// registry; merging them into one OpSet means re-decoding through that
	// OpSet's own actor dictionary, exactly as a receiving replica would.
	os := opset.New()
	empty := ancestryUpTo()
	d1, err := change.DecodeChange(c1.Encoded(), os.Actors.Intern)
	if err != nil {
		t.Fatalf("DecodeChange c1: %v", err)
	}
	if err := os.IntegrateChange(d1); err != nil {
		t.Fatalf("IntegrateChange c1: %v", err)
	}
	d2, err := change.DecodeChange(c2.Encoded(), os.Actors.Intern)
	if err != nil {
		t.Fatalf("DecodeChange c2: %v", err)
	}
	if err := os.IntegrateChange(d2); err != nil {
		t.Fatalf("IntegrateChange c2: %v", err)
	}

	end := ancestryUpTo(d1.Hash(), d2.Hash())
	patches := Diff(os, empty, end)

	var sawConflict bool
	for _, p := range patches {
		if p.Kind == KindConflict && p.Key == "k" {
			sawConflict = true
		}
	}
	if !sawConflict {
		t.Fatalf("patches = %+v, want a Conflict patch on key k", patches)
	}
}
