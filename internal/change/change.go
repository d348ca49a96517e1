package change

import "automerge/internal/actor"

// Change is a causally atomic batch of ops from one actor, spec.md §3.
type Change struct {
	Actor   actor.ID
	Seq     uint64 // 1-based, strictly increasing per actor
	StartOp uint64 // counter of the first op in Ops
	Time    int64  // unix millis
	Message string // empty means "no message"
	Deps    []Hash
	Ops     []Op

	hash    Hash
	encoded []byte // cached canonical encoding, set once by Seal
}

// New builds an unsealed Change. Call Seal to compute its canonical
// encoding and hash before it is stored.
func New(actorID actor.ID, seq, startOp uint64, timeMillis int64, message string, deps []Hash, ops []Op) *Change {
	return &Change{
		Actor:   actorID,
		Seq:     seq,
		StartOp: startOp,
		Time:    timeMillis,
		Message: message,
		Deps:    SortHashes(deps),
		Ops:     ops,
	}
}

// Hash returns the change's content hash. Valid only after Seal.
func (c *Change) Hash() Hash { return c.hash }

// MaxOp returns the counter of the last op in this change (StartOp + len(Ops) - 1),
// or StartOp-1 if the change has no ops.
func (c *Change) MaxOp() uint64 {
	if len(c.Ops) == 0 {
		if c.StartOp == 0 {
			return 0
		}
		return c.StartOp - 1
	}
	return c.StartOp + uint64(len(c.Ops)) - 1
}

// DependsOn reports whether h appears in c.Deps.
func (c *Change) DependsOn(h Hash) bool {
	for _, d := range c.Deps {
		if d == h {
			return true
		}
	}
	return false
}
