package change

import (
	"testing"

	"automerge/internal/actor"
	"automerge/internal/clock"
	"automerge/internal/types"
)

// fakeTable implements clock.ActorTable over a fixed slice, for tests that
// build Ops/Changes without a full document.
type fakeTable []actor.ID

func (t fakeTable) ActorAt(idx clock.ActorIdx) actor.ID { return t[idx] }

func mustActor(t *testing.T, b byte) actor.ID {
	t.Helper()
	id, err := actor.New([]byte{b})
	if err != nil {
		t.Fatalf("actor.New: %v", err)
	}
	return id
}

func TestOpVisibleAndAddSuccessor(t *testing.T) {
	op := Op{ID: clock.OpId{Counter: 1, Actor: 0}}
	if !op.Visible() {
		t.Fatalf("fresh op should be visible")
	}
	s := clock.OpId{Counter: 2, Actor: 0}
	if became := op.AddSuccessor(s); !became {
		t.Fatalf("expected transition to invisible")
	}
	if op.Visible() {
		t.Fatalf("op with a successor should not be visible")
	}
	if became := op.AddSuccessor(s); became {
		t.Fatalf("re-adding the same successor should not report a new transition")
	}
}

func TestOpHasPred(t *testing.T) {
	p := clock.OpId{Counter: 1, Actor: 0}
	op := Op{Pred: []clock.OpId{p}}
	if !op.HasPred(p) {
		t.Fatalf("expected HasPred to find %v", p)
	}
	if op.HasPred(clock.OpId{Counter: 9, Actor: 0}) {
		t.Fatalf("HasPred should not find an absent id")
	}
}

func TestChangeMaxOp(t *testing.T) {
	a := mustActor(t, 1)
	empty := New(a, 1, 5, 0, "", nil, nil)
	if got := empty.MaxOp(); got != 4 {
		t.Fatalf("empty change MaxOp = %d, want 4", got)
	}
	withOps := New(a, 1, 5, 0, "", nil, []Op{{}, {}, {}})
	if got := withOps.MaxOp(); got != 7 {
		t.Fatalf("3-op change starting at 5: MaxOp = %d, want 7", got)
	}
}

func TestChangeDependsOn(t *testing.T) {
	h1 := ComputeHash([]byte("one"))
	h2 := ComputeHash([]byte("two"))
	c := New(mustActor(t, 1), 1, 1, 0, "", []Hash{h1}, nil)
	if !c.DependsOn(h1) {
		t.Fatalf("expected DependsOn(h1)")
	}
	if c.DependsOn(h2) {
		t.Fatalf("did not expect DependsOn(h2)")
	}
}

func TestSealIsDeterministic(t *testing.T) {
	a := mustActor(t, 1)
	table := fakeTable{a}
	ops := []Op{{
		ID:     clock.OpId{Counter: 1, Actor: 0},
		Action: types.Put(types.Str("hello")),
		Obj:    clock.Root,
		Key:    clock.MapKey("greeting"),
	}}
	c1 := New(a, 1, 1, 1000, "init", nil, ops)
	c1.Seal(table)
	c2 := New(a, 1, 1, 1000, "init", nil, ops)
	c2.Seal(table)

	if c1.Hash() != c2.Hash() {
		t.Fatalf("sealing the same logical change twice produced different hashes")
	}
	if c1.Hash().IsZero() {
		t.Fatalf("sealed hash should not be zero")
	}
}

func TestSealDifferentMessageDifferentHash(t *testing.T) {
	a := mustActor(t, 1)
	table := fakeTable{a}
	c1 := New(a, 1, 1, 1000, "a", nil, nil)
	c1.Seal(table)
	c2 := New(a, 1, 1, 1000, "b", nil, nil)
	c2.Seal(table)
	if c1.Hash() == c2.Hash() {
		t.Fatalf("different messages should not collide")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	a1 := mustActor(t, 1)
	a2 := mustActor(t, 2)
	table := fakeTable{a1, a2}

	dep := ComputeHash([]byte("parent"))
	ops := []Op{
		{
			ID:     clock.OpId{Counter: 1, Actor: 0},
			Action: types.MakeList(),
			Obj:    clock.Root,
			Key:    clock.MapKey("todos"),
		},
		{
			ID:     clock.OpId{Counter: 2, Actor: 0},
			Action: types.Insert(types.Str("buy milk")),
			Obj:    clock.ObjId{Id: clock.OpId{Counter: 1, Actor: 0}},
			Key:    clock.Head(),
			Insert: true,
		},
		{
			ID:     clock.OpId{Counter: 3, Actor: 1},
			Action: types.Increment(5),
			Obj:    clock.Root,
			Key:    clock.MapKey("counter"),
			Pred:   []clock.OpId{{Counter: 1, Actor: 1}},
		},
		{
			ID:     clock.OpId{Counter: 4, Actor: 1},
			Action: types.Mark("bold", types.Bool(true), types.ExpandBoth),
			Obj:    clock.ObjId{Id: clock.OpId{Counter: 1, Actor: 0}},
			Key:    clock.ElemKey(clock.OpId{Counter: 2, Actor: 0}),
		},
	}

	c := New(a1, 3, 1, 1700000000000, "seed todos", []Hash{dep}, ops)
	c.Seal(table)

	blob := c.Encoded()
	if len(blob) == 0 {
		t.Fatalf("expected non-empty encoding")
	}

	var interned []actor.ID
	intern := func(a actor.ID) clock.ActorIdx {
		for i, existing := range interned {
			if actor.Equal(existing, a) {
				return clock.ActorIdx(i)
			}
		}
		interned = append(interned, a)
		return clock.ActorIdx(len(interned) - 1)
	}

	decoded, err := DecodeChange(blob, intern)
	if err != nil {
		t.Fatalf("DecodeChange: %v", err)
	}

	if decoded.Hash() != c.Hash() {
		t.Fatalf("decoded hash %v != original %v", decoded.Hash(), c.Hash())
	}
	if decoded.Seq != c.Seq || decoded.StartOp != c.StartOp || decoded.Time != c.Time {
		t.Fatalf("decoded scalar fields mismatch: %+v", decoded)
	}
	if decoded.Message != c.Message {
		t.Fatalf("decoded message = %q, want %q", decoded.Message, c.Message)
	}
	if !actor.Equal(decoded.Actor, c.Actor) {
		t.Fatalf("decoded actor mismatch")
	}
	if len(decoded.Deps) != 1 || decoded.Deps[0] != dep {
		t.Fatalf("decoded deps = %v, want [%v]", decoded.Deps, dep)
	}
	if len(decoded.Ops) != len(ops) {
		t.Fatalf("decoded %d ops, want %d", len(decoded.Ops), len(ops))
	}

	decodedTable := fakeTable(interned)
	for i, op := range decoded.Ops {
		want := ops[i]
		if op.ID.Counter != want.ID.Counter {
			t.Fatalf("op %d: counter = %d, want %d", i, op.ID.Counter, want.ID.Counter)
		}
		if !actor.Equal(decodedTable.ActorAt(op.ID.Actor), table.ActorAt(want.ID.Actor)) {
			t.Fatalf("op %d: actor mismatch", i)
		}
		if op.Insert != want.Insert {
			t.Fatalf("op %d: insert = %v, want %v", i, op.Insert, want.Insert)
		}
		if op.Action.Kind != want.Action.Kind {
			t.Fatalf("op %d: action kind = %v, want %v", i, op.Action.Kind, want.Action.Kind)
		}
	}

	// Spot-check a couple of decoded payloads by value.
	if got := decoded.Ops[1].Action.Value.AsStr(); got != "buy milk" {
		t.Fatalf("decoded insert value = %q, want %q", got, "buy milk")
	}
	if got := decoded.Ops[2].Action.Delta; got != 5 {
		t.Fatalf("decoded increment delta = %d, want 5", got)
	}
	if got := decoded.Ops[3].Action.MarkName; got != "bold" {
		t.Fatalf("decoded mark name = %q, want %q", got, "bold")
	}
	if len(decoded.Ops[2].Pred) != 1 || decoded.Ops[2].Pred[0].Counter != 1 {
		t.Fatalf("decoded pred mismatch: %+v", decoded.Ops[2].Pred)
	}
}

func TestDecodeChangeRejectsBadMagic(t *testing.T) {
	if _, err := DecodeChange([]byte("not a change blob"), func(actor.ID) clock.ActorIdx { return 0 }); err == nil {
		t.Fatalf("expected an error decoding garbage input")
	}
}
