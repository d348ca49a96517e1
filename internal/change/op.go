// Package change implements the Change (a causally atomic batch of ops by
// one actor), its content-addressed hash, canonical columnar encoding, and
// the change graph (DAG of changes keyed by hash, with a pending-deps
// queue). Grounded on tur/pkg/wal.go's framed binary format (magic +
// version + checksum header preceding a body) for the blob shape, and on
// tur/pkg/record.go's serial-type column discipline for the op columns.
package change

import (
	"automerge/internal/clock"
	"automerge/internal/types"
)

// Op is one immutable operation. Pred is fixed at creation; Succ starts
// empty and is appended to by the OpSet as later ops supersede this one
// (spec.md §3) — the OpSet is the sole owner of the Op values it indexes,
// so only it ever mutates Succ (spec.md §9, "OpSet owns all Ops").
type Op struct {
	ID     clock.OpId
	Action types.Action
	Obj    clock.ObjId
	Key    clock.Key
	Insert bool
	Pred   []clock.OpId
	Succ   []clock.OpId
}

// Visible reports whether o currently has no active successor — i.e. no
// later op has superseded it (spec.md §3, invariant 5).
func (o *Op) Visible() bool { return len(o.Succ) == 0 }

// AddSuccessor records that s supersedes o. Returns true if this is the
// transition from visible to non-visible (o.Succ was empty beforehand),
// which callers use to adjust aggregate visibility counters.
func (o *Op) AddSuccessor(s clock.OpId) (becameInvisible bool) {
	wasVisible := o.Visible()
	for _, existing := range o.Succ {
		if existing == s {
			return false
		}
	}
	o.Succ = append(o.Succ, s)
	return wasVisible
}

// RemoveSuccessor undoes AddSuccessor, used when a transaction is rolled
// back before its ops are ever shared (spec.md §4.3).
func (o *Op) RemoveSuccessor(s clock.OpId) {
	for i, existing := range o.Succ {
		if existing == s {
			o.Succ = append(o.Succ[:i], o.Succ[i+1:]...)
			return
		}
	}
}

// HasPred reports whether id appears in o.Pred.
func (o *Op) HasPred(id clock.OpId) bool {
	for _, p := range o.Pred {
		if p == id {
			return true
		}
	}
	return false
}
