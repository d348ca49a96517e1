package syncproto

import (
	"testing"

	"automerge/internal/actor"
	"automerge/internal/change"
	"automerge/internal/clock"
	"automerge/internal/opset"
	"automerge/internal/txn"
	"automerge/internal/types"
)

// replica bundles the three pieces of state one side of a sync exchange
// owns: the document's op index, its change DAG, and its view of the peer.
type replica struct {
	os     *opset.OpSet
	graph  *change.Graph
	actor  actor.ID
	seq    uint64
	nextOp uint64
	state  *State
}

func newReplica(t *testing.T, seed byte) *replica {
	t.Helper()
	a, err := actor.New([]byte{seed})
	if err != nil {
		t.Fatalf("actor.New: %v", err)
	}
	return &replica{
		os:     opset.New(),
		graph:  change.NewGraph(),
		actor:  a,
		nextOp: 1,
		state:  Init(),
	}
}

func (r *replica) commit(t *testing.T, fn func(tx *txn.Txn)) *change.Change {
	t.Helper()
	r.seq++
	tx := txn.Begin(r.os, r.actor, r.nextOp, r.graph.Heads())
	fn(tx)
	c := tx.Commit(r.seq, int64(r.seq)*1000)
	if c == nil {
		t.Fatalf("expected a non-nil commit")
	}
	r.nextOp = c.MaxOp() + 1
	if _, missing := r.graph.Add(c); len(missing) != 0 {
		t.Fatalf("unexpected missing deps: %v", missing)
	}
	return c
}

func syncUntilConverged(t *testing.T, a, b *replica) {
	t.Helper()
	for round := 0; round < 20; round++ {
		msgAtoB, okA := GenerateMessage(a.graph, a.state)
		msgBtoA, okB := GenerateMessage(b.graph, b.state)

		if okA && msgAtoB != nil {
			if err := ReceiveMessage(b.graph, b.state, msgAtoB, b.os.Actors.Intern, b.os.IntegrateChange); err != nil {
				t.Fatalf("round %d: B receive: %v", round, err)
			}
		}
		if okB && msgBtoA != nil {
			if err := ReceiveMessage(a.graph, a.state, msgBtoA, a.os.Actors.Intern, a.os.IntegrateChange); err != nil {
				t.Fatalf("round %d: A receive: %v", round, err)
			}
		}

		idle := (!okA || (len(msgAtoB.Changes) == 0 && len(msgAtoB.Need) == 0)) &&
			(!okB || (len(msgBtoA.Changes) == 0 && len(msgBtoA.Need) == 0))
		if idle && headsEqual(a.graph.Heads(), b.graph.Heads()) {
			return
		}
	}
	t.Fatalf("sync did not converge within 20 rounds: A heads=%v B heads=%v", a.graph.Heads(), b.graph.Heads())
}

func TestSyncConvergesSimplePut(t *testing.T) {
	a := newReplica(t, 1)
	b := newReplica(t, 2)

	a.commit(t, func(tx *txn.Txn) {
		if _, err := tx.Put(clock.Root, "bird", types.Str("magpie")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	})
	b.commit(t, func(tx *txn.Txn) {
		if _, err := tx.Put(clock.Root, "bird", types.Str("crow")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	})

	syncUntilConverged(t, a, b)

	if !headsEqual(a.graph.Heads(), b.graph.Heads()) {
		t.Fatalf("heads diverged: A=%v B=%v", a.graph.Heads(), b.graph.Heads())
	}
	if !HasOurChanges(a.state, a.graph.Heads()) || !HasOurChanges(b.state, b.graph.Heads()) {
		t.Fatalf("expected both sides to report HasOurChanges true after convergence")
	}
}

func TestHasOurChangesFalseBeforeSync(t *testing.T) {
	s := Init()
	s.SharedHeads = nil
	if HasOurChanges(s, []change.Hash{{1, 2, 3}}) {
		t.Fatalf("expected HasOurChanges to be false with no shared heads")
	}
}
