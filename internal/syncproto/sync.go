// Package syncproto implements the pairwise change-exchange protocol: each
// side keeps a SyncState about the other and calls GenerateMessage/
// ReceiveMessage in a loop until both converge on the same heads. Grounded
// on tur/pkg/mvcc's read-then-reconcile shape (compare two views of the
// same index, act on the delta), retargeted from row versions to change
// hashes, with github.com/bits-and-blooms/bitset (via internal/bloom)
// supplying the probabilistic "have" payload.
package syncproto

import (
	"encoding/binary"
	"errors"
	"fmt"

	"automerge/internal/actor"
	"automerge/internal/bloom"
	"automerge/internal/change"
	"automerge/internal/clock"
)

// wireVersion is a leading schema-version byte on every encoded Message
// and State, so a future incompatible layout can be rejected rather than
// misparsed (spec.md §9 design note on SyncState encoding).
const wireVersion = 1

// ErrDecode wraps every structural failure decoding an encoded Message or
// State.
var ErrDecode = errors.New("syncproto: malformed sync state")

// Have is one {last_sync, bloom} entry in a sync message's have list,
// describing what the sender believes the receiver already holds as of
// last_sync.
type Have struct {
	LastSync []change.Hash
	Bloom    *bloom.Filter
}

// Message is one sync message exchanged between two peers (spec.md §4.5).
type Message struct {
	Heads   []change.Hash
	Need    []change.Hash
	Have    []Have
	Changes [][]byte // each entry is one change's Seal-encoded blob
}

// State is a peer's view of one other replica (spec.md §4.5). A State is
// exclusively owned by its caller; there is no internal synchronization.
type State struct {
	SharedHeads   []change.Hash
	LastSentHeads []change.Hash
	TheirHeads    []change.Hash
	TheirNeed     []change.Hash
	TheirHave     []Have
	SentHashes    map[change.Hash]struct{}
	InFlight      bool
}

// Init returns a fresh SyncState with no prior knowledge of the peer.
func Init() *State {
	return &State{SentHashes: make(map[change.Hash]struct{})}
}

// Clone returns a deep copy of state.
func (s *State) Clone() *State {
	out := &State{
		SharedHeads:   append([]change.Hash(nil), s.SharedHeads...),
		LastSentHeads: append([]change.Hash(nil), s.LastSentHeads...),
		TheirHeads:    append([]change.Hash(nil), s.TheirHeads...),
		TheirNeed:     append([]change.Hash(nil), s.TheirNeed...),
		SentHashes:    make(map[change.Hash]struct{}, len(s.SentHashes)),
		InFlight:      s.InFlight,
	}
	for h := range s.SentHashes {
		out.SentHashes[h] = struct{}{}
	}
	out.TheirHave = make([]Have, len(s.TheirHave))
	copy(out.TheirHave, s.TheirHave)
	return out
}

// HasOurChanges reports whether state.SharedHeads already covers every one
// of ourHeads, i.e. the peer is known to have everything we do.
func HasOurChanges(state *State, ourHeads []change.Hash) bool {
	shared := make(map[change.Hash]struct{}, len(state.SharedHeads))
	for _, h := range state.SharedHeads {
		shared[h] = struct{}{}
	}
	for _, h := range ourHeads {
		if _, ok := shared[h]; !ok {
			return false
		}
	}
	return true
}

// GenerateMessage runs one step of the algorithm (spec.md §4.5) from local
// state: if our heads already equal state.SharedHeads and nothing is in
// flight, there is nothing new to say and ok is false (callers send a
// bare heads-only message only on the very first exchange, handled by
// passing a State with a nil LastSentHeads).
func GenerateMessage(g *change.Graph, state *State) (msg *Message, ok bool) {
	localHeads := g.Heads()

	if headsEqual(localHeads, state.SharedHeads) && !state.InFlight && state.LastSentHeads != nil {
		return nil, false
	}

	localSince := g.ChangesAfter(state.SharedHeads)
	have := Have{LastSync: append([]change.Hash(nil), state.SharedHeads...), Bloom: bloomOf(localSince)}

	peerBloom := latestBloom(state.TheirHave)
	var toSend []*change.Change
	for _, c := range localSince {
		h := c.Hash()
		if _, sent := state.SentHashes[h]; sent {
			continue
		}
		if peerBloom != nil && peerBloom.Has(h) {
			continue
		}
		toSend = append(toSend, c)
	}
	toSend = withTransitiveDeps(g, toSend)
	toSend = topoSort(toSend)

	need := missingFrom(g, union(state.TheirHeads, state.TheirNeed))

	msg = &Message{
		Heads: localHeads,
		Need:  need,
		Have:  []Have{have},
	}
	for _, c := range toSend {
		msg.Changes = append(msg.Changes, c.Encoded())
		state.SentHashes[c.Hash()] = struct{}{}
	}
	state.LastSentHeads = localHeads
	state.InFlight = len(msg.Changes) > 0 || len(msg.Need) > 0
	return msg, true
}

// ReceiveMessage applies msg's changes (queuing any with unmet deps via the
// graph's own pending machinery), then updates state from msg's heads/
// need/have (spec.md §4.5, "Receiving").
func ReceiveMessage(g *change.Graph, state *State, msg *Message, intern func(actor.ID) clock.ActorIdx, onApply func(*change.Change) error) error {
	for _, blob := range msg.Changes {
		c, err := change.DecodeChange(blob, intern)
		if err != nil {
			return err
		}
		applied, _ := g.Add(c)
		if applied && onApply != nil {
			if err := onApply(c); err != nil {
				return err
			}
		}
	}

	state.SharedHeads = greatestCommonAncestors(g, msg.Heads, g.Heads())
	state.TheirHeads = msg.Heads
	state.TheirNeed = msg.Need
	state.TheirHave = msg.Have
	state.InFlight = false
	return nil
}

func bloomOf(changes []*change.Change) *bloom.Filter {
	hashes := make([]change.Hash, len(changes))
	for i, c := range changes {
		hashes[i] = c.Hash()
	}
	return bloom.New(hashes)
}

func latestBloom(haves []Have) *bloom.Filter {
	if len(haves) == 0 {
		return nil
	}
	return haves[len(haves)-1].Bloom
}

// withTransitiveDeps extends changes with every dep (recursively) that the
// graph has applied, so a receiver is never sent a change whose
// dependency it might be missing because a Bloom false positive hid it
// (spec.md §4.5 step 4, "always include every transitive dep").
func withTransitiveDeps(g *change.Graph, changes []*change.Change) []*change.Change {
	seen := make(map[change.Hash]struct{}, len(changes))
	var out []*change.Change
	var walk func(c *change.Change)
	walk = func(c *change.Change) {
		h := c.Hash()
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		for _, d := range c.Deps {
			if dc := g.Get(d); dc != nil {
				walk(dc)
			}
		}
		out = append(out, c)
	}
	for _, c := range changes {
		walk(c)
	}
	return out
}

// topoSort orders changes so every dep precedes its dependents, using a
// depth-first postorder pass restricted to the given set.
func topoSort(changes []*change.Change) []*change.Change {
	byHash := make(map[change.Hash]*change.Change, len(changes))
	for _, c := range changes {
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
	for _, c := range changes {
		visit(c)
	}
	return out
}

func missingFrom(g *change.Graph, hashes []change.Hash) []change.Hash {
	var out []change.Hash
	for _, h := range hashes {
		if !g.Has(h) && !g.IsPending(h) {
			out = append(out, h)
		}
	}
	return change.SortHashes(out)
}

func union(a, b []change.Hash) []change.Hash {
	seen := make(map[change.Hash]struct{}, len(a)+len(b))
	var out []change.Hash
	for _, h := range append(append([]change.Hash(nil), a...), b...) {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

func headsEqual(a, b []change.Hash) bool {
	a, b = change.SortHashes(a), change.SortHashes(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// greatestCommonAncestors approximates shared_heads as the set of applied
// hashes reachable from both theirHeads and ourHeads, restricted to the
// maximal (no-successor-within-the-set) elements — the largest set of
// changes both sides are now known to share.
func greatestCommonAncestors(g *change.Graph, theirHeads, ourHeads []change.Hash) []change.Hash {
	theirs := g.Ancestors(theirHeads)
	ours := g.Ancestors(ourHeads)
	var shared []change.Hash
	for _, c := range g.All() {
		h := c.Hash()
		if theirs(h) && ours(h) {
			shared = append(shared, h)
		}
	}
	return maximal(g, shared)
}

// maximal filters hashes down to those with no successor also in hashes,
// i.e. the heads of the shared sub-DAG.
func maximal(g *change.Graph, hashes []change.Hash) []change.Hash {
	set := make(map[change.Hash]struct{}, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	var out []change.Hash
	for h := range set {
		hasSuccessorInSet := false
		for _, s := range g.Successors(h) {
			if _, ok := set[s]; ok {
				hasSuccessorInSet = true
				break
			}
		}
		if !hasSuccessorInSet {
			out = append(out, h)
		}
	}
	return change.SortHashes(out)
}

// Encode serializes msg to wire bytes (spec.md §6, "generate_sync_message
// (state) -> bytes").
func (m *Message) Encode() []byte {
	var out []byte
	out = append(out, wireVersion)
	out = appendHashes(out, m.Heads)
	out = appendHashes(out, m.Need)

	out = appendUvarint(out, uint64(len(m.Have)))
	for _, h := range m.Have {
		out = appendHashes(out, h.LastSync)
		var bloomBytes []byte
		if h.Bloom != nil {
			bloomBytes = h.Bloom.Encode()
		}
		out = appendUvarint(out, uint64(len(bloomBytes)))
		out = append(out, bloomBytes...)
	}

	out = appendUvarint(out, uint64(len(m.Changes)))
	for _, c := range m.Changes {
		out = appendUvarint(out, uint64(len(c)))
		out = append(out, c...)
	}
	return out
}

// DecodeMessage reverses Message.Encode (spec.md §6, "receive_sync_message
// (state, bytes)").
func DecodeMessage(buf []byte) (*Message, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("%w: empty", ErrDecode)
	}
	if buf[0] != wireVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDecode, buf[0])
	}
	buf = buf[1:]

	m := &Message{}
	var err error
	if m.Heads, buf, err = readHashes(buf); err != nil {
		return nil, fmt.Errorf("%w: heads: %v", ErrDecode, err)
	}
	if m.Need, buf, err = readHashes(buf); err != nil {
		return nil, fmt.Errorf("%w: need: %v", ErrDecode, err)
	}

	n, buf, err := readUvarint(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: have count: %v", ErrDecode, err)
	}
	m.Have = make([]Have, n)
	for i := uint64(0); i < n; i++ {
		var have Have
		if have.LastSync, buf, err = readHashes(buf); err != nil {
			return nil, fmt.Errorf("%w: have %d: %v", ErrDecode, i, err)
		}
		blen, rest, err := readUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: have %d bloom length: %v", ErrDecode, i, err)
		}
		if uint64(len(rest)) < blen {
			return nil, fmt.Errorf("%w: have %d: truncated bloom", ErrDecode, i)
		}
		if blen > 0 {
			f, err := bloom.Decode(rest[:blen])
			if err != nil {
				return nil, fmt.Errorf("%w: have %d bloom: %v", ErrDecode, i, err)
			}
			have.Bloom = f
		}
		buf = rest[blen:]
		m.Have[i] = have
	}

	cn, buf, err := readUvarint(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: change count: %v", ErrDecode, err)
	}
	m.Changes = make([][]byte, cn)
	for i := uint64(0); i < cn; i++ {
		clen, rest, err := readUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: change %d length: %v", ErrDecode, i, err)
		}
		if uint64(len(rest)) < clen {
			return nil, fmt.Errorf("%w: change %d: truncated", ErrDecode, i)
		}
		m.Changes[i] = append([]byte(nil), rest[:clen]...)
		buf = rest[clen:]
	}
	return m, nil
}

// Encode serializes state to bytes (spec.md §6, "encode_sync_state(state)
// -> bytes"). The Bloom filters inside TheirHave ride along via
// bloom.Filter.Encode so a decoded state can resume exactly where it left
// off without re-deriving anything from a change graph.
func (s *State) Encode() []byte {
	var out []byte
	out = append(out, wireVersion)
	out = appendHashes(out, s.SharedHeads)
	out = appendHashes(out, s.LastSentHeads)
	out = appendHashes(out, s.TheirHeads)
	out = appendHashes(out, s.TheirNeed)

	out = appendUvarint(out, uint64(len(s.TheirHave)))
	for _, h := range s.TheirHave {
		out = appendHashes(out, h.LastSync)
		var bloomBytes []byte
		if h.Bloom != nil {
			bloomBytes = h.Bloom.Encode()
		}
		out = appendUvarint(out, uint64(len(bloomBytes)))
		out = append(out, bloomBytes...)
	}

	sent := make([]change.Hash, 0, len(s.SentHashes))
	for h := range s.SentHashes {
		sent = append(sent, h)
	}
	out = appendHashes(out, change.SortHashes(sent))

	if s.InFlight {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return out
}

// DecodeState reverses Encode (spec.md §6, "decode_sync_state(bytes) ->
// state").
func DecodeState(buf []byte) (*State, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("%w: empty", ErrDecode)
	}
	if buf[0] != wireVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDecode, buf[0])
	}
	buf = buf[1:]

	s := &State{SentHashes: make(map[change.Hash]struct{})}
	var err error
	if s.SharedHeads, buf, err = readHashes(buf); err != nil {
		return nil, fmt.Errorf("%w: shared heads: %v", ErrDecode, err)
	}
	if s.LastSentHeads, buf, err = readHashes(buf); err != nil {
		return nil, fmt.Errorf("%w: last sent heads: %v", ErrDecode, err)
	}
	if s.TheirHeads, buf, err = readHashes(buf); err != nil {
		return nil, fmt.Errorf("%w: their heads: %v", ErrDecode, err)
	}
	if s.TheirNeed, buf, err = readHashes(buf); err != nil {
		return nil, fmt.Errorf("%w: their need: %v", ErrDecode, err)
	}

	n, buf, err := readUvarint(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: have count: %v", ErrDecode, err)
	}
	s.TheirHave = make([]Have, n)
	for i := uint64(0); i < n; i++ {
		var have Have
		if have.LastSync, buf, err = readHashes(buf); err != nil {
			return nil, fmt.Errorf("%w: have %d: %v", ErrDecode, i, err)
		}
		blen, rest, err := readUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: have %d bloom length: %v", ErrDecode, i, err)
		}
		if uint64(len(rest)) < blen {
			return nil, fmt.Errorf("%w: have %d: truncated bloom", ErrDecode, i)
		}
		if blen > 0 {
			f, err := bloom.Decode(rest[:blen])
			if err != nil {
				return nil, fmt.Errorf("%w: have %d bloom: %v", ErrDecode, i, err)
			}
			have.Bloom = f
		}
		buf = rest[blen:]
		s.TheirHave[i] = have
	}

	sent, buf, err := readHashes(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: sent hashes: %v", ErrDecode, err)
	}
	for _, h := range sent {
		s.SentHashes[h] = struct{}{}
	}

	if len(buf) < 1 {
		return nil, fmt.Errorf("%w: missing in-flight flag", ErrDecode)
	}
	s.InFlight = buf[0] != 0
	return s, nil
}

func appendHashes(buf []byte, hs []change.Hash) []byte {
	buf = appendUvarint(buf, uint64(len(hs)))
	for _, h := range hs {
		buf = append(buf, h[:]...)
	}
	return buf
}

func readHashes(buf []byte) ([]change.Hash, []byte, error) {
	n, rest, err := readUvarint(buf)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n*32 {
		return nil, nil, fmt.Errorf("truncated hash list")
	}
	out := make([]change.Hash, n)
	for i := uint64(0); i < n; i++ {
		copy(out[i][:], rest[i*32:i*32+32])
	}
	return out, rest[n*32:], nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func readUvarint(buf []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, nil, fmt.Errorf("bad uvarint")
	}
	return v, buf[n:], nil
}
