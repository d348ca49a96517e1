package change

// Graph is the DAG of changes a document has accepted, keyed by hash. It
// tracks per-actor sequence order, successor edges, the current heads, and
// changes whose dependencies have not all arrived yet (spec.md §4.3,
// "applying a change whose deps are not all present queues it"). Grounded
// on the commit/visibility bookkeeping shape of tur/pkg/mvcc's transaction
// table, retargeted from a single commit-order list to a hash-keyed DAG.
type Graph struct {
	byHash     map[Hash]*Change
	byActor    map[string][]Hash // actor hex -> hashes ordered by Seq
	successors map[Hash]map[Hash]struct{}
	heads      map[Hash]struct{}
	pending    map[Hash]*Change // changes seen but missing a dep
	waitingOn  map[Hash][]Hash  // missing dep hash -> pending changes that need it
}

// NewGraph returns an empty change graph.
func NewGraph() *Graph {
	return &Graph{
		byHash:     make(map[Hash]*Change),
		byActor:    make(map[string][]Hash),
		successors: make(map[Hash]map[Hash]struct{}),
		heads:      make(map[Hash]struct{}),
		pending:    make(map[Hash]*Change),
		waitingOn:  make(map[Hash][]Hash),
	}
}

// Has reports whether h is already applied (not merely pending).
func (g *Graph) Has(h Hash) bool {
	_, ok := g.byHash[h]
	return ok
}

// IsPending reports whether h has been seen but is blocked on missing deps.
func (g *Graph) IsPending(h Hash) bool {
	_, ok := g.pending[h]
	return ok
}

// Get returns the applied change with hash h, or nil.
func (g *Graph) Get(h Hash) *Change {
	return g.byHash[h]
}

// Heads returns the current set of changes with no applied successor,
// sorted for determinism (spec.md §3, "heads: the current set of changes
// with no child").
func (g *Graph) Heads() []Hash {
	out := make([]Hash, 0, len(g.heads))
	for h := range g.heads {
		out = append(out, h)
	}
	return SortHashes(out)
}

// Add tries to apply c. If all of c.Deps are already applied, c is applied
// immediately, its successor edges recorded, and any pending change that
// was only waiting on c is retried (recursively). If a dep is missing, c
// is queued; applied is false and missing lists every unmet dependency
// hash so the caller can request them from a peer.
//
// Add is idempotent: re-adding an already-applied or already-pending
// change (by hash) is a no-op.
func (g *Graph) Add(c *Change) (applied bool, missing []Hash) {
	h := c.Hash()
	if g.Has(h) || g.IsPending(h) {
		return g.Has(h), nil
	}

	for _, d := range c.Deps {
		if !g.Has(d) {
			missing = append(missing, d)
		}
	}
	if len(missing) > 0 {
		g.pending[h] = c
		for _, d := range missing {
			g.waitingOn[d] = append(g.waitingOn[d], h)
		}
		return false, missing
	}

	g.apply(c)
	g.retryWaiters(h)
	return true, nil
}

func (g *Graph) apply(c *Change) {
	h := c.Hash()
	g.byHash[h] = c
	actorKey := c.Actor.String()
	g.byActor[actorKey] = append(g.byActor[actorKey], h)
	g.heads[h] = struct{}{}

	for _, d := range c.Deps {
		delete(g.heads, d)
		if g.successors[d] == nil {
			g.successors[d] = make(map[Hash]struct{})
		}
		g.successors[d][h] = struct{}{}
	}
}

// retryWaiters re-attempts every pending change that was blocked on h,
// after h itself (or one of its own waiters, transitively) has just been
// applied.
func (g *Graph) retryWaiters(h Hash) {
	waiters := g.waitingOn[h]
	delete(g.waitingOn, h)
	for _, wh := range waiters {
		c, ok := g.pending[wh]
		if !ok {
			continue // already resolved via a different dep path
		}
		stillMissing := false
		for _, d := range c.Deps {
			if !g.Has(d) {
				stillMissing = true
				break
			}
		}
		if stillMissing {
			continue
		}
		delete(g.pending, wh)
		g.apply(c)
		g.retryWaiters(wh)
	}
}

// Successors returns the hashes of changes that directly depend on h.
func (g *Graph) Successors(h Hash) []Hash {
	set := g.successors[h]
	out := make([]Hash, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return SortHashes(out)
}

// MissingDeps returns every hash referenced (directly or transitively,
// through pending changes) as a dependency but not yet applied, starting
// the search from the given extra heads (e.g. a peer's advertised heads)
// in addition to the graph's own pending queue. Used to build MissingDeps
// errors and sync "need" lists (spec.md §7, §4.5).
func (g *Graph) MissingDeps(extraHeads []Hash) []Hash {
	seen := make(map[Hash]struct{})
	var missing []Hash
	add := func(h Hash) {
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		if !g.Has(h) {
			missing = append(missing, h)
		}
	}
	for _, h := range extraHeads {
		add(h)
	}
	for _, c := range g.pending {
		for _, d := range c.Deps {
			add(d)
		}
	}
	return SortHashes(missing)
}

// ActorSeqs returns the hashes contributed by actorHex in increasing Seq
// order.
func (g *Graph) ActorSeqs(actorHex string) []Hash {
	return g.byActor[actorHex]
}

// LastSeq returns the highest Seq this graph has applied for actorHex, or
// 0 if none.
func (g *Graph) LastSeq(actorHex string) uint64 {
	hashes := g.byActor[actorHex]
	if len(hashes) == 0 {
		return 0
	}
	return g.byHash[hashes[len(hashes)-1]].Seq
}

// Ancestors returns a membership predicate for the transitive closure of
// heads under Deps (heads included), suitable as an opset.Ancestry for
// historical reads "as of" a particular set of heads (spec.md §6).
func (g *Graph) Ancestors(heads []Hash) func(Hash) bool {
	seen := make(map[Hash]struct{})
	var walk func(h Hash)
	walk = func(h Hash) {
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		c, ok := g.byHash[h]
		if !ok {
			return
		}
		for _, d := range c.Deps {
			walk(d)
		}
	}
	for _, h := range heads {
		walk(h)
	}
	return func(h Hash) bool {
		_, ok := seen[h]
		return ok
	}
}

// ChangesAfter returns every applied change not in the ancestry closure of
// heads, i.e. the changes a peer holding heads does not yet have (spec.md
// §4.5, "change_graph.changes_after(P.shared_heads)").
func (g *Graph) ChangesAfter(heads []Hash) []*Change {
	known := g.Ancestors(heads)
	var out []*Change
	for h, c := range g.byHash {
		if !known(h) {
			out = append(out, c)
		}
	}
	return out
}

// Len reports how many changes are fully applied.
func (g *Graph) Len() int { return len(g.byHash) }

// All returns every applied change, order unspecified.
func (g *Graph) All() []*Change {
	out := make([]*Change, 0, len(g.byHash))
	for _, c := range g.byHash {
		out = append(out, c)
	}
	return out
}
