// Package opset implements the in-memory operation store: the indexed,
// per-object op sets that track visibility and conflicts, the RGA
// list-ordering rule for sequences, and historical (read-at-heads) views.
// Grounded on the version-chain/visibility split of tur/pkg/mvcc (a
// RowVersion chain per row, IsVersionVisible gating reads), retargeted
// from commit-timestamp visibility to the Lamport/Succ visibility rule of
// spec.md §3.
package opset

import (
	"automerge/internal/actor"
	"automerge/internal/clock"
)

// ActorRegistry is a document's actor dictionary: a bijection between
// ActorId and the compact ActorIdx ops carry, built up in first-seen
// order (spec.md §9).
type ActorRegistry struct {
	byIdx []actor.ID
	toIdx map[string]clock.ActorIdx
}

// NewActorRegistry returns an empty registry.
func NewActorRegistry() *ActorRegistry {
	return &ActorRegistry{toIdx: make(map[string]clock.ActorIdx)}
}

// Intern returns a's index, assigning a fresh one on first sight.
func (r *ActorRegistry) Intern(a actor.ID) clock.ActorIdx {
	key := a.String()
	if idx, ok := r.toIdx[key]; ok {
		return idx
	}
	idx := clock.ActorIdx(len(r.byIdx))
	r.byIdx = append(r.byIdx, a)
	r.toIdx[key] = idx
	return idx
}

// ActorAt implements clock.ActorTable.
func (r *ActorRegistry) ActorAt(idx clock.ActorIdx) actor.ID { return r.byIdx[idx] }

// Len reports how many distinct actors have been interned.
func (r *ActorRegistry) Len() int { return len(r.byIdx) }

// All returns every interned actor in index order.
func (r *ActorRegistry) All() []actor.ID {
	out := make([]actor.ID, len(r.byIdx))
	copy(out, r.byIdx)
	return out
}
