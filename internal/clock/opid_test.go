package clock

import (
	"testing"

	"automerge/internal/actor"
)

type fakeTable []actor.ID

func (t fakeTable) ActorAt(idx ActorIdx) actor.ID { return t[idx] }

func newTable(t *testing.T) fakeTable {
	a1, err := actor.New([]byte{0x01})
	if err != nil {
		t.Fatalf("actor.New: %v", err)
	}
	a2, err := actor.New([]byte{0x02})
	if err != nil {
		t.Fatalf("actor.New: %v", err)
	}
	return fakeTable{a1, a2}
}

func TestCompareByCounter(t *testing.T) {
	table := newTable(t)
	a := OpId{Counter: 5, Actor: 0}
	b := OpId{Counter: 6, Actor: 0}
	if Compare(a, b, table) >= 0 {
		t.Fatalf("expected a < b when counters differ")
	}
	if !Greater(b, a, table) {
		t.Fatalf("expected b > a")
	}
}

func TestCompareTieBreaksOnActorBytes(t *testing.T) {
	table := newTable(t)
	// actor index 0 has bytes {0x01}, actor index 1 has bytes {0x02}.
	a := OpId{Counter: 5, Actor: 0}
	b := OpId{Counter: 5, Actor: 1}
	if !Greater(b, a, table) {
		t.Fatalf("expected actor-index-1 (bytes 0x02) to be greater on a counter tie")
	}
}

func TestKeyConstructors(t *testing.T) {
	k := MapKey("bird")
	if !k.IsMapKey() || k.MapKeyString() != "bird" {
		t.Fatalf("MapKey round-trip failed: %+v", k)
	}

	h := Head()
	if h.IsMapKey() || !h.IsHead() {
		t.Fatalf("Head() should be a non-map head sentinel: %+v", h)
	}

	e := ElemKey(OpId{Counter: 3, Actor: 1})
	if e.IsMapKey() || e.IsHead() {
		t.Fatalf("ElemKey should be neither map nor head: %+v", e)
	}
}

func TestObjIdRoot(t *testing.T) {
	if !Root.IsRoot() {
		t.Fatalf("Root should report IsRoot() == true")
	}
}
