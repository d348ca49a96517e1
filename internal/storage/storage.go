// Package storage implements the document save/load blob format: a framed
// header (magic, version, content hash) followed by every change the
// document holds, topologically ordered, each still in its own
// self-contained columnar encoding (spec.md §4.6, §6 "each change blob and
// the document blob begin with a 4-byte magic, a 1-byte version, a 32-byte
// hash, then a length-prefixed column-encoded body"). Grounded on
// tur/pkg/dbfile/header.go's fixed magic+version file-header discipline,
// retargeted from a 100-byte page-0 header to a small streaming preamble
// in front of a sequence of already-columnar change blobs.
package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"automerge/internal/actor"
	"automerge/internal/change"
	"automerge/internal/clock"
)

// Magic identifies a document blob, distinct from change.Magic so the two
// framings are never confused.
var Magic = [4]byte{'A', 'D', 'O', 'C'}

const wireVersion = 1

// ErrDecode wraps every structural failure decoding a document blob.
var ErrDecode = errors.New("storage: malformed document blob")

// Save encodes every change in g, topologically ordered (deps before
// dependents), into one document blob (spec.md §4.6, "save() ... every
// change in topological order").
func Save(g *change.Graph) []byte {
	return encodeChanges(topoSortAll(g))
}

// SaveSince encodes only the changes not reachable from heads (spec.md
// §4.6, "save_since(heads) emits the changes not reachable from heads").
func SaveSince(g *change.Graph, heads []change.Hash) []byte {
	return encodeChanges(topoSort(g.ChangesAfter(heads)))
}

func encodeChanges(changes []*change.Change) []byte {
	body := make([]byte, 0, 64*len(changes))
	body = appendUvarint(body, uint64(len(changes)))
	for _, c := range changes {
		blob := c.Encoded()
		body = appendUvarint(body, uint64(len(blob)))
		body = append(body, blob...)
	}

	out := make([]byte, 0, len(body)+37)
	out = append(out, Magic[:]...)
	out = append(out, wireVersion)
	h := change.ComputeHash(body)
	out = append(out, h[:]...)
	out = append(out, body...)
	return out
}

// Load decodes a document blob into its changes, applying intern to
// resolve each change's local actor dictionary into the caller's own
// document-wide actor table. Changes are returned in the order they were
// saved (already topological); the caller is expected to feed them
// through a change.Graph (which tolerates out-of-order arrival via its own
// pending-deps queue, so strict ordering here is a courtesy, not a
// requirement).
func Load(blob []byte, intern func(actor.ID) clock.ActorIdx) ([]*change.Change, error) {
	if len(blob) < 37 {
		return nil, fmt.Errorf("%w: too short", ErrDecode)
	}
	if [4]byte{blob[0], blob[1], blob[2], blob[3]} != Magic {
		return nil, fmt.Errorf("%w: bad magic", ErrDecode)
	}
	if blob[4] != wireVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDecode, blob[4])
	}
	wantHash := blob[5:37]
	body := blob[37:]
	gotHash := change.ComputeHash(body)
	if string(gotHash[:]) != string(wantHash) {
		return nil, fmt.Errorf("%w: hash mismatch", ErrDecode)
	}

	n, rest, err := getUvarint(body)
	if err != nil {
		return nil, fmt.Errorf("%w: change count: %v", ErrDecode, err)
	}

	changes := make([]*change.Change, 0, n)
	for i := uint64(0); i < n; i++ {
		l, after, err := getUvarint(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: change %d length: %v", ErrDecode, i, err)
		}
		if uint64(len(after)) < l {
			return nil, fmt.Errorf("%w: change %d: truncated", ErrDecode, i)
		}
		c, err := change.DecodeChange(after[:l], intern)
		if err != nil {
			return nil, fmt.Errorf("%w: change %d: %v", ErrDecode, i, err)
		}
		changes = append(changes, c)
		rest = after[l:]
	}
	return changes, nil
}

// LoadIncremental is Load under another name: every document blob is a
// self-contained set of changes, so merging a second blob into an existing
// document is the same decode, handed to the existing change.Graph (which
// skips already-applied hashes and queues any whose deps have not arrived
// — see AllowMissingDeps) (spec.md §4.6).
func LoadIncremental(blob []byte, intern func(actor.ID) clock.ActorIdx) ([]*change.Change, error) {
	return Load(blob, intern)
}

// AllowMissingDeps applies every change to g, tolerating (rather than
// erroring on) changes whose dependencies have not arrived yet — they are
// left in g's own pending queue. It returns the hashes that remain
// unresolved after every change has been offered once.
func AllowMissingDeps(g *change.Graph, changes []*change.Change) (stillMissing []change.Hash) {
	for _, c := range changes {
		g.Add(c)
	}
	return g.MissingDeps(nil)
}

func topoSortAll(g *change.Graph) []*change.Change {
	return topoSort(g.All())
}

// TopoSort orders changes so every dep present in the set precedes its
// dependent, exported so callers outside this package (the root document
// facade's Fork, which rebuilds an OpSet from a change subset) can
// integrate in an order that resolves every Pred reference correctly.
func TopoSort(changes []*change.Change) []*change.Change {
	return topoSort(changes)
}

// topoSort orders changes so every dep present in the set precedes its
// dependent, via a DFS postorder pass over the changes pre-sorted by hash
// — canonical encoding requires that two changes with no dependency
// relation between them (concurrent changes) still land in the same
// relative order every time, regardless of map iteration order upstream
// (spec.md §4.6, "bit-identical reserialization").
func topoSort(changes []*change.Change) []*change.Change {
	sorted := make([]*change.Change, len(changes))
	copy(sorted, changes)
	sort.Slice(sorted, func(i, j int) bool {
		hi, hj := sorted[i].Hash(), sorted[j].Hash()
		return bytes.Compare(hi[:], hj[:]) < 0
	})

	byHash := make(map[change.Hash]*change.Change, len(sorted))
	for _, c := range sorted {
		byHash[c.Hash()] = c
	}
	var out []*change.Change
	visited := make(map[change.Hash]bool)
	var visit func(c *change.Change)
	visit = func(c *change.Change) {
		h := c.Hash()
		if visited[h] {
			return
		}
		visited[h] = true
		for _, d := range c.Deps {
			if dc, ok := byHash[d]; ok {
				visit(dc)
			}
		}
		out = append(out, c)
	}
	for _, c := range sorted {
		visit(c)
	}
	return out
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func getUvarint(buf []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, nil, errors.New("bad uvarint")
	}
	return v, buf[n:], nil
}
