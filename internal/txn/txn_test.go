package txn

import (
	"testing"

	"automerge/internal/actor"
	"automerge/internal/clock"
	"automerge/internal/opset"
	"automerge/internal/types"
)

func newDoc(t *testing.T) (*opset.OpSet, actor.ID) {
	t.Helper()
	a, err := actor.New([]byte{9})
	if err != nil {
		t.Fatalf("actor.New: %v", err)
	}
	return opset.New(), a
}

func TestPutAndGet(t *testing.T) {
	os, a := newDoc(t)
	tx := Begin(os, a, 1, nil)
	if _, err := tx.Put(clock.Root, "name", types.Str("bob")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := os.Get(clock.Root, "name")
	if !ok || got.AsStr() != "bob" {
		t.Fatalf("Get = (%v, %v), want (bob, true)", got, ok)
	}
	if c := tx.Commit(1, 1000); c == nil {
		t.Fatalf("expected a non-nil sealed change")
	}
}

func TestCommitWithNoOpsReturnsNil(t *testing.T) {
	os, a := newDoc(t)
	tx := Begin(os, a, 1, nil)
	if c := tx.Commit(1, 0); c != nil {
		t.Fatalf("expected nil commit for an empty transaction")
	}
}

func TestPushAndSplice(t *testing.T) {
	os, a := newDoc(t)
	tx := Begin(os, a, 1, nil)
	listID, err := tx.PutObject(clock.Root, "items", types.ObjList)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	for _, v := range []string{"a", "b", "c"} {
		if _, err := tx.Push(listID, types.Str(v)); err != nil {
			t.Fatalf("Push(%q): %v", v, err)
		}
	}
	if n := os.Length(listID); n != 3 {
		t.Fatalf("Length = %d, want 3", n)
	}

	if err := tx.Splice(listID, 1, 1, []types.Scalar{types.Str("x"), types.Str("y")}); err != nil {
		t.Fatalf("Splice: %v", err)
	}
	if n := os.Length(listID); n != 4 {
		t.Fatalf("Length after splice = %d, want 4", n)
	}
	want := []string{"a", "x", "y", "c"}
	for i, w := range want {
		op, _, ok := os.ElementAt(listID, i)
		if !ok || op.Action.Value.AsStr() != w {
			t.Fatalf("element %d = %v, want %v", i, op, w)
		}
	}
}

func TestIncrementRequiresExistingCounter(t *testing.T) {
	os, a := newDoc(t)
	tx := Begin(os, a, 1, nil)
	if err := tx.Increment(clock.Root, "missing", 1); err == nil {
		t.Fatalf("expected an error incrementing a key that does not exist")
	}
	if _, err := tx.Put(clock.Root, "score", types.Counter(10)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := tx.Increment(clock.Root, "score", 4); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	got, _ := os.Get(clock.Root, "score")
	if got.AsInt() != 14 {
		t.Fatalf("score = %d, want 14", got.AsInt())
	}
}

func TestUpdateTextMinimalDiff(t *testing.T) {
	os, a := newDoc(t)
	tx := Begin(os, a, 1, nil)
	textID, err := tx.PutObject(clock.Root, "body", types.ObjText)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := tx.UpdateText(textID, "hello"); err != nil {
		t.Fatalf("UpdateText: %v", err)
	}
	if got := renderText(os, textID); got != "hello" {
		t.Fatalf("text = %q, want hello", got)
	}

	if err := tx.UpdateText(textID, "help"); err != nil {
		t.Fatalf("UpdateText: %v", err)
	}
	if got := renderText(os, textID); got != "help" {
		t.Fatalf("text = %q, want help", got)
	}
}

func renderText(os *opset.OpSet, obj clock.ObjId) string {
	ops, _ := os.AllLiveElements(obj)
	out := ""
	for _, op := range ops {
		out += op.Action.Value.AsStr()
	}
	return out
}

func TestRollbackUndoesPendingOps(t *testing.T) {
	os, a := newDoc(t)
	tx := Begin(os, a, 1, nil)
	if _, err := tx.Put(clock.Root, "x", types.Int(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := os.Get(clock.Root, "x"); !ok {
		t.Fatalf("expected x to be visible before rollback")
	}
	tx.Rollback()
	if _, ok := os.Get(clock.Root, "x"); ok {
		t.Fatalf("expected x to be gone after rollback")
	}
	if keys := os.Keys(clock.Root); len(keys) != 0 {
		t.Fatalf("expected no keys after rollback, got %v", keys)
	}
}

func TestResolvePath(t *testing.T) {
	os, a := newDoc(t)
	tx := Begin(os, a, 1, nil)
	listID, err := tx.PutObject(clock.Root, "items", types.ObjList)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	nestedID, err := tx.InsertObject(listID, 0, types.ObjMap)
	if err != nil {
		t.Fatalf("InsertObject: %v", err)
	}
	if _, err := tx.Put(nestedID, "k", types.Str("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := ResolvePath(os, "/items/0")
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}
	if got != nestedID {
		t.Fatalf("ResolvePath = %v, want %v", got, nestedID)
	}

	if _, err := ResolvePath(os, "/items/9"); err == nil {
		t.Fatalf("expected an error resolving an out-of-range index")
	}
}
