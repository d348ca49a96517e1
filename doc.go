package automerge

import (
	"fmt"

	"automerge/internal/actor"
	"automerge/internal/change"
	"automerge/internal/opset"
	"automerge/internal/patch"
	"automerge/internal/storage"
	"automerge/internal/syncproto"
	"automerge/internal/txn"
)

// ActorID identifies one writer contributing changes to a document.
type ActorID = actor.ID

// NewActorID wraps raw bytes as an ActorID.
func NewActorID(b []byte) (ActorID, error) { return actor.New(b) }

// Change is one causally atomic batch of ops from one actor (spec.md §3).
type Change = change.Change

// Op is one immutable operation inside a Change.
type Op = change.Op

// Patch describes one observed difference between two historical views of
// a document (spec.md §4.4).
type Patch = patch.Patch

// PatchKind tags the variant of change a Patch reports.
type PatchKind = patch.Kind

const (
	KindPut       = patch.KindPut
	KindInsert    = patch.KindInsert
	KindDelete    = patch.KindDelete
	KindIncrement = patch.KindIncrement
	KindConflict  = patch.KindConflict
	KindSplice    = patch.KindSplice
	KindMark      = patch.KindMark
)

// Doc is a CRDT document: an indexed operation store (internal/opset), its
// change DAG (internal/change.Graph), and at most one open transaction
// accumulating local edits before Commit seals them (spec.md §2, §4.3).
// A Doc is not safe for concurrent use.
type Doc struct {
	os      *opset.OpSet
	graph   *change.Graph
	actorID actor.ID
	tx      *txn.Txn

	lastSaveHeads []change.Hash // cursor for SaveIncremental
	diffHeads     []change.Hash // cursor for DiffIncremental
}

// Create returns a new empty document with a freshly generated random
// actor id (spec.md §6, "create(actor?) -> Doc").
func Create() *Doc { return CreateWithActor(actor.Random()) }

// CreateWithActor is Create with an explicit actor identity.
func CreateWithActor(a ActorID) *Doc {
	return &Doc{
		os:      opset.New(),
		graph:   change.NewGraph(),
		actorID: a,
	}
}

// Load decodes a document blob produced by Save (spec.md §6, "load(bytes,
// opts?) -> Doc"), assigning a freshly generated actor id for any future
// local edits.
func Load(blob []byte) (*Doc, error) { return LoadWithActor(blob, actor.Random()) }

// LoadWithActor is Load with an explicit actor identity for future edits.
func LoadWithActor(blob []byte, a ActorID) (*Doc, error) {
	d := CreateWithActor(a)
	missing, err := d.applyBlob(blob)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, &MissingDepsError{Hashes: missing}
	}
	return d, nil
}

// applyBlob decodes and integrates every change in blob, returning the
// hashes that remain unresolved (a caller with allow_missing_deps
// semantics may tolerate a non-empty result; Load itself does not, since a
// freshly saved document is expected to be self-contained).
func (d *Doc) applyBlob(blob []byte) ([]change.Hash, error) {
	changes, err := storage.Load(blob, d.os.Actors.Intern)
	if err != nil {
		return nil, &DecodeError{Offset: -1, Err: err}
	}
	return d.applyChanges(changes), nil
}

// Clone returns an independent document with identical content and the
// same actor id, built by a save/load round trip (spec.md §6, "clone()
// -> Doc").
func (d *Doc) Clone() *Doc {
	out, err := LoadWithActor(d.Save(), d.actorID)
	if err != nil {
		panic(fmt.Sprintf("automerge: Clone: %v", err))
	}
	return out
}

// Fork returns an independent document containing only the history
// reachable from heads (the whole document if heads is omitted), under a
// freshly generated actor id (spec.md §6, "fork(actor?, heads?) -> Doc").
func (d *Doc) Fork(heads ...Hash) *Doc { return d.ForkWithActor(actor.Random(), heads...) }

// ForkWithActor is Fork with an explicit actor identity.
func (d *Doc) ForkWithActor(a ActorID, heads ...Hash) *Doc {
	var subset []*change.Change
	if len(heads) == 0 {
		subset = d.graph.All()
	} else {
		anc := d.graph.Ancestors(heads)
		for _, c := range d.graph.All() {
			if anc(c.Hash()) {
				subset = append(subset, c)
			}
		}
	}
	tmp := change.NewGraph()
	for _, c := range storage.TopoSort(subset) {
		tmp.Add(c)
	}
	out, err := LoadWithActor(storage.Save(tmp), a)
	if err != nil {
		panic(fmt.Sprintf("automerge: Fork: %v", err))
	}
	return out
}

// Actor returns the actor identity this document uses for new edits.
func (d *Doc) Actor() ActorID { return d.actorID }

func (d *Doc) ensureTxn() *txn.Txn {
	if d.tx == nil {
		d.tx = txn.Begin(d.os, d.actorID, d.os.NextCounter(), d.graph.Heads())
	}
	return d.tx
}

// --- Mutation API (spec.md §6) ---

// Put sets a map key to a scalar value.
func (d *Doc) Put(obj ObjId, key string, v Scalar) (OpId, error) { return d.ensureTxn().Put(obj, key, v) }

// PutObject creates a nested map/list/text at a map key.
func (d *Doc) PutObject(obj ObjId, key string, initial ObjType) (ObjId, error) {
	return d.ensureTxn().PutObject(obj, key, initial)
}

// Insert inserts a scalar element into a list/text at index.
func (d *Doc) Insert(obj ObjId, index int, v Scalar) (OpId, error) {
	return d.ensureTxn().Insert(obj, index, v)
}

// InsertObject is Insert for a nested map/list/text element.
func (d *Doc) InsertObject(obj ObjId, index int, initial ObjType) (ObjId, error) {
	return d.ensureTxn().InsertObject(obj, index, initial)
}

// Push appends v to the end of a list/text object.
func (d *Doc) Push(obj ObjId, v Scalar) (OpId, error) { return d.ensureTxn().Push(obj, v) }

// Splice deletes deleteCount live elements starting at index, then
// inserts values at that position.
func (d *Doc) Splice(obj ObjId, index, deleteCount int, values []Scalar) error {
	return d.ensureTxn().Splice(obj, index, deleteCount, values)
}

// Delete removes a map key.
func (d *Doc) Delete(obj ObjId, key string) error { return d.ensureTxn().Delete(obj, key) }

// DeleteAt removes the live sequence element at index.
func (d *Doc) DeleteAt(obj ObjId, index int) error { return d.ensureTxn().DeleteAt(obj, index) }

// Increment adds delta to the counter at a map key.
func (d *Doc) Increment(obj ObjId, key string, delta int64) error {
	return d.ensureTxn().Increment(obj, key, delta)
}

// Mark applies a rich-text mark starting at a sequence index.
func (d *Doc) Mark(obj ObjId, startIndex int, name string, v Scalar, expand ExpandPolicy) error {
	return d.ensureTxn().Mark(obj, startIndex, name, v, expand)
}

// Unmark closes a previously applied mark at a sequence index.
func (d *Doc) Unmark(obj ObjId, atIndex int, name string, expand ExpandPolicy) error {
	return d.ensureTxn().Unmark(obj, atIndex, name, expand)
}

// UpdateText replaces a text object's content with next, as a minimal
// insert/delete diff against the current content.
func (d *Doc) UpdateText(obj ObjId, next string) error { return d.ensureTxn().UpdateText(obj, next) }

// ResolvePath walks a "/a/b/0" style path from the root, per spec.md §6.
func (d *Doc) ResolvePath(path string) (ObjId, error) { return txn.ResolvePath(d.os, path) }

// --- Transaction lifecycle (spec.md §6) ---

// Commit seals the accumulated ops into a Change and adds it to the
// change graph, returning the document's new heads. If no ops were
// accumulated since the last Commit/Rollback, heads are returned
// unchanged and no Change is created.
func (d *Doc) Commit(message string, timeMillis int64) []Hash {
	if d.tx == nil {
		return d.graph.Heads()
	}
	d.tx.SetMessage(message)
	seq := d.graph.LastSeq(d.actorID.String()) + 1
	c := d.tx.Commit(seq, timeMillis)
	d.tx = nil
	if c == nil {
		return d.graph.Heads()
	}
	if _, missing := d.graph.Add(c); len(missing) != 0 {
		panic(fmt.Sprintf("automerge: Commit: %v", &MissingDepsError{Hashes: missing}))
	}
	return d.graph.Heads()
}

// Rollback discards every op accumulated in the open transaction.
func (d *Doc) Rollback() {
	if d.tx == nil {
		return
	}
	d.tx.Rollback()
	d.tx = nil
}

// PendingOps returns the ops accumulated in the open transaction, not yet
// committed.
func (d *Doc) PendingOps() []Op {
	if d.tx == nil {
		return nil
	}
	return d.tx.PendingOps()
}

// --- Save / Load (spec.md §4.6, §6) ---

// Save encodes the full document, every change in topological order.
func (d *Doc) Save() []byte {
	d.lastSaveHeads = d.graph.Heads()
	return storage.Save(d.graph)
}

// SaveIncremental encodes only the changes added since the last Save or
// SaveIncremental call.
func (d *Doc) SaveIncremental() []byte {
	blob := storage.SaveSince(d.graph, d.lastSaveHeads)
	d.lastSaveHeads = d.graph.Heads()
	return blob
}

// SaveSince encodes only the changes not reachable from heads.
func (d *Doc) SaveSince(heads []Hash) []byte { return storage.SaveSince(d.graph, heads) }

// LoadIncremental merges a document blob into this document (spec.md
// §4.6, "a second blob into an existing document is the same decode,
// handed to the existing change graph"), tolerating (rather than
// erroring on) changes whose deps have not yet arrived.
func (d *Doc) LoadIncremental(blob []byte) (stillMissing []Hash, err error) {
	changes, err := storage.LoadIncremental(blob, d.os.Actors.Intern)
	if err != nil {
		return nil, &DecodeError{Offset: -1, Err: err}
	}
	return d.applyChanges(changes), nil
}

func (d *Doc) applyChanges(changes []*change.Change) []Hash {
	for _, c := range storage.TopoSort(changes) {
		applied, _ := d.graph.Add(c)
		if applied {
			d.os.IntegrateChange(c)
		}
	}
	return d.graph.MissingDeps(nil)
}

// --- Change graph queries (spec.md §6) ---

// Heads returns the document's current heads.
func (d *Doc) Heads() []Hash { return d.graph.Heads() }

// Changes returns every change not reachable from haveDeps.
func (d *Doc) Changes(haveDeps []Hash) []*Change { return d.graph.ChangesAfter(haveDeps) }

// ChangesAdded returns the changes present in this document but absent
// from other, i.e. what a sync or save would need to send other.
func (d *Doc) ChangesAdded(other *Doc) []*Change {
	return d.graph.ChangesAfter(other.graph.Heads())
}

// ChangeByHash returns the change with the given hash, or ok=false.
func (d *Doc) ChangeByHash(h Hash) (c *Change, ok bool) {
	c = d.graph.Get(h)
	return c, c != nil
}

// ApplyChanges decodes and integrates each change blob, returning the
// hashes that remain unresolved because a dependency has not arrived.
func (d *Doc) ApplyChanges(blobs [][]byte) (stillMissing []Hash, err error) {
	changes := make([]*change.Change, len(blobs))
	for i, blob := range blobs {
		c, err := change.DecodeChange(blob, d.os.Actors.Intern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
		}
		changes[i] = c
	}
	return d.applyChanges(changes), nil
}

// MissingDeps reports every hash referenced as a dependency (directly or
// transitively) but not yet applied, starting from extraHeads in addition
// to the document's own pending queue.
func (d *Doc) MissingDeps(extraHeads ...Hash) []Hash { return d.graph.MissingDeps(extraHeads) }

// --- Sync (spec.md §4.5, §6) ---

// GenerateSyncMessage runs one step of the sync protocol, returning the
// wire-encoded message to send to the peer state describes, or ok=false
// if there is nothing new to say.
func (d *Doc) GenerateSyncMessage(state *SyncState) (msg []byte, ok bool) {
	m, ok := syncproto.GenerateMessage(d.graph, state)
	if !ok {
		return nil, false
	}
	return m.Encode(), true
}

// ReceiveSyncMessage decodes and applies a peer's sync message, updating
// state and integrating any changes it carried.
func (d *Doc) ReceiveSyncMessage(state *SyncState, msg []byte) error {
	m, err := syncproto.DecodeMessage(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSyncDecode, err)
	}
	return syncproto.ReceiveMessage(d.graph, state, m, d.os.Actors.Intern, d.os.IntegrateChange)
}

// HasOurChanges reports whether state's peer is known to already have
// every change this document holds.
func (d *Doc) HasOurChanges(state *SyncState) bool {
	return syncproto.HasOurChanges(state, d.graph.Heads())
}

// --- Diff (spec.md §4.4, §6) ---

// Diff returns the patches that turn materialize(before) into
// materialize(after).
func (d *Doc) Diff(before, after []Hash) []Patch {
	return patch.Diff(d.os, d.graph.Ancestors(before), d.graph.Ancestors(after))
}

// UpdateDiffCursor moves the incremental-diff cursor to the document's
// current heads without returning any patches, e.g. after a caller has
// separately materialized the current state by other means.
func (d *Doc) UpdateDiffCursor() { d.diffHeads = d.graph.Heads() }

// ResetDiffCursor moves the incremental-diff cursor back to the empty
// document, so the next DiffIncremental call reports the full document as
// patches from the empty document (Put patches for map keys, Insert and
// Splice patches for sequence contents).
func (d *Doc) ResetDiffCursor() { d.diffHeads = nil }

// DiffIncremental returns the patches since the last DiffIncremental /
// UpdateDiffCursor / ResetDiffCursor call (initially, since document
// creation), then advances the cursor to the current heads.
func (d *Doc) DiffIncremental() []Patch {
	before := d.diffHeads
	after := d.graph.Heads()
	d.diffHeads = after
	return patch.Diff(d.os, d.graph.Ancestors(before), d.graph.Ancestors(after))
}
