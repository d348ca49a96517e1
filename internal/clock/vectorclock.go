package clock

import "automerge/internal/actor"

// VectorClock maps an actor to the highest change seq (spec.md §3: 1-based,
// per actor) known to be present. It induces the causal version V(H) of a
// set of heads: every change transitively reachable from H is ≤ V(H).
type VectorClock map[string]uint64

// NewVectorClock returns an empty clock.
func NewVectorClock() VectorClock { return make(VectorClock) }

// Get returns the highest seq known for a, or 0 if a is unseen.
func (v VectorClock) Get(a actor.ID) uint64 { return v[a.String()] }

// Observe records that seq (1-based) from actor a is included, keeping the
// running maximum.
func (v VectorClock) Observe(a actor.ID, seq uint64) {
	key := a.String()
	if seq > v[key] {
		v[key] = seq
	}
}

// Covers reports whether every (actor, seq) pair in other is already
// included in v — i.e. v ⊇ other.
func (v VectorClock) Covers(other VectorClock) bool {
	for a, seq := range other {
		if v[a] < seq {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (v VectorClock) Clone() VectorClock {
	c := make(VectorClock, len(v))
	for k, val := range v {
		c[k] = val
	}
	return c
}

// Merge returns the component-wise maximum of a and b, leaving both
// inputs untouched.
func Merge(a, b VectorClock) VectorClock {
	out := a.Clone()
	for actorHex, seq := range b {
		if seq > out[actorHex] {
			out[actorHex] = seq
		}
	}
	return out
}
