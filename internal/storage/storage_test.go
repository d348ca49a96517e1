package storage

import (
	"testing"

	"automerge/internal/actor"
	"automerge/internal/change"
	"automerge/internal/clock"
	"automerge/internal/opset"
	"automerge/internal/txn"
	"automerge/internal/types"
)

func buildDoc(t *testing.T) (*opset.OpSet, *change.Graph, []*change.Change) {
	t.Helper()
	os := opset.New()
	g := change.NewGraph()
	a, err := actor.New([]byte{5})
	if err != nil {
		t.Fatalf("actor.New: %v", err)
	}

	var changes []*change.Change
	next := uint64(1)

	tx1 := txn.Begin(os, a, next, g.Heads())
	if _, err := tx1.Put(clock.Root, "name", types.Str("bob")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	c1 := tx1.Commit(1, 100)
	next = c1.MaxOp() + 1
	if _, missing := g.Add(c1); len(missing) != 0 {
		t.Fatalf("unexpected missing: %v", missing)
	}
	changes = append(changes, c1)

	tx2 := txn.Begin(os, a, next, g.Heads())
	if _, err := tx2.Put(clock.Root, "age", types.Int(30)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	c2 := tx2.Commit(2, 200)
	if _, missing := g.Add(c2); len(missing) != 0 {
		t.Fatalf("unexpected missing: %v", missing)
	}
	changes = append(changes, c2)

	return os, g, changes
}

func TestSaveLoadRoundTrip(t *testing.T) {
	_, g, changes := buildDoc(t)

	blob := Save(g)

	loadOS := opset.New()
	loaded, err := Load(blob, loadOS.Actors.Intern)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != len(changes) {
		t.Fatalf("loaded %d changes, want %d", len(loaded), len(changes))
	}

	loadGraph := change.NewGraph()
	for _, c := range loaded {
		if _, missing := loadGraph.Add(c); len(missing) != 0 {
			t.Fatalf("unexpected missing deps on load: %v", missing)
		}
		if err := loadOS.IntegrateChange(c); err != nil {
			t.Fatalf("IntegrateChange: %v", err)
		}
	}

	if got, ok := loadOS.Get(clock.Root, "name"); !ok || got.AsStr() != "bob" {
		t.Fatalf("name = (%v, %v), want (bob, true)", got, ok)
	}
	if got, ok := loadOS.Get(clock.Root, "age"); !ok || got.AsInt() != 30 {
		t.Fatalf("age = (%v, %v), want (30, true)", got, ok)
	}

	origHeads := change.SortHashes(g.Heads())
	loadHeads := change.SortHashes(loadGraph.Heads())
	if len(origHeads) != len(loadHeads) || origHeads[0] != loadHeads[0] {
		t.Fatalf("heads mismatch: orig=%v loaded=%v", origHeads, loadHeads)
	}
}

func TestSaveIsDeterministic(t *testing.T) {
	_, g, _ := buildDoc(t)
	b1 := Save(g)
	b2 := Save(g)
	if len(b1) != len(b2) {
		t.Fatalf("Save produced different lengths across calls: %d vs %d", len(b1), len(b2))
	}
	for i := range b1 {
		if b1[i] != b2[i] {
			t.Fatalf("Save is not deterministic at byte %d", i)
		}
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	blob := []byte{0, 0, 0, 0, 1}
	blob = append(blob, make([]byte, 32)...)
	if _, err := Load(blob, opset.New().Actors.Intern); err == nil {
		t.Fatalf("expected an error decoding a blob with bad magic")
	}
}

func TestSaveSinceOnlyEmitsNewChanges(t *testing.T) {
	_, g, changes := buildDoc(t)
	firstHeads := []change.Hash{changes[0].Hash()}

	blob := SaveSince(g, firstHeads)
	loadOS := opset.New()
	loaded, err := Load(blob, loadOS.Actors.Intern)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Hash() != changes[1].Hash() {
		t.Fatalf("SaveSince loaded = %v, want only the second change", loaded)
	}
}
