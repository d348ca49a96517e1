package change

import "testing"

func seedChange(t *testing.T, seq uint64, deps []Hash, tag string) *Change {
	t.Helper()
	a := mustActor(t, byte(seq))
	c := New(a, seq, 1, int64(seq), tag, deps, nil)
	c.Seal(fakeTable{a})
	return c
}

func TestGraphAppliesWhenDepsPresent(t *testing.T) {
	g := NewGraph()
	root := seedChange(t, 1, nil, "root")

	applied, missing := g.Add(root)
	if !applied || len(missing) != 0 {
		t.Fatalf("expected root to apply cleanly, got applied=%v missing=%v", applied, missing)
	}
	if !g.Has(root.Hash()) {
		t.Fatalf("expected graph to contain root")
	}
	if heads := g.Heads(); len(heads) != 1 || heads[0] != root.Hash() {
		t.Fatalf("heads = %v, want [%v]", heads, root.Hash())
	}
}

func TestGraphQueuesOnMissingDep(t *testing.T) {
	g := NewGraph()
	root := seedChange(t, 1, nil, "root")
	child := seedChange(t, 2, []Hash{root.Hash()}, "child")

	applied, missing := g.Add(child)
	if applied {
		t.Fatalf("child should not apply before its dep arrives")
	}
	if len(missing) != 1 || missing[0] != root.Hash() {
		t.Fatalf("missing = %v, want [%v]", missing, root.Hash())
	}
	if !g.IsPending(child.Hash()) {
		t.Fatalf("expected child to be queued as pending")
	}

	applied, missing = g.Add(root)
	if !applied || len(missing) != 0 {
		t.Fatalf("root should apply cleanly: applied=%v missing=%v", applied, missing)
	}
	if g.IsPending(child.Hash()) {
		t.Fatalf("child should have been promoted out of pending once root arrived")
	}
	if !g.Has(child.Hash()) {
		t.Fatalf("expected child to be applied after its dep landed")
	}

	heads := g.Heads()
	if len(heads) != 1 || heads[0] != child.Hash() {
		t.Fatalf("heads = %v, want [%v] (root should no longer be a head)", heads, child.Hash())
	}
}

func TestGraphAddIsIdempotent(t *testing.T) {
	g := NewGraph()
	root := seedChange(t, 1, nil, "root")
	g.Add(root)
	applied, missing := g.Add(root)
	if !applied || len(missing) != 0 {
		t.Fatalf("re-adding an applied change should report applied with no missing deps")
	}
	if g.Len() != 1 {
		t.Fatalf("expected exactly one applied change, got %d", g.Len())
	}
}

func TestGraphMultipleHeadsConverge(t *testing.T) {
	g := NewGraph()
	root := seedChange(t, 1, nil, "root")
	g.Add(root)

	left := seedChange(t, 2, []Hash{root.Hash()}, "left")
	right := seedChange(t, 3, []Hash{root.Hash()}, "right")
	g.Add(left)
	g.Add(right)

	heads := g.Heads()
	if len(heads) != 2 {
		t.Fatalf("expected two concurrent heads, got %v", heads)
	}

	merge := seedChange(t, 4, SortHashes([]Hash{left.Hash(), right.Hash()}), "merge")
	applied, missing := g.Add(merge)
	if !applied || len(missing) != 0 {
		t.Fatalf("merge should apply once both parents are present: applied=%v missing=%v", applied, missing)
	}
	heads = g.Heads()
	if len(heads) != 1 || heads[0] != merge.Hash() {
		t.Fatalf("heads after merge = %v, want [%v]", heads, merge.Hash())
	}
}

func TestGraphMissingDepsFromPendingQueue(t *testing.T) {
	g := NewGraph()
	root := seedChange(t, 1, nil, "root")
	child := seedChange(t, 2, []Hash{root.Hash()}, "child")
	g.Add(child)

	missing := g.MissingDeps(nil)
	if len(missing) != 1 || missing[0] != root.Hash() {
		t.Fatalf("MissingDeps = %v, want [%v]", missing, root.Hash())
	}
}

func TestGraphActorSeqsOrdered(t *testing.T) {
	g := NewGraph()
	a := mustActor(t, 7)
	c1 := New(a, 1, 1, 1, "", nil, nil)
	c1.Seal(fakeTable{a})
	g.Add(c1)
	c2 := New(a, 2, 1, 2, "", []Hash{c1.Hash()}, nil)
	c2.Seal(fakeTable{a})
	g.Add(c2)

	seqs := g.ActorSeqs(a.String())
	if len(seqs) != 2 || seqs[0] != c1.Hash() || seqs[1] != c2.Hash() {
		t.Fatalf("ActorSeqs = %v, want [%v %v]", seqs, c1.Hash(), c2.Hash())
	}
	if got := g.LastSeq(a.String()); got != 2 {
		t.Fatalf("LastSeq = %d, want 2", got)
	}
}
