// Package bloom implements the deterministic Bloom filter the sync
// protocol uses to advertise "changes I probably have" without sending
// every hash (spec.md §4.5). Grounded on github.com/bits-and-blooms/bitset,
// already part of the retrieved dependency pack, which supplies the
// underlying bit-vector; this package adds the hash-derivation and sizing
// policy spec.md's sync algorithm requires.
package bloom

import (
	"encoding/binary"
	"math"

	"github.com/bits-and-blooms/bitset"

	"automerge/internal/change"
)

// falsePositiveRate is the target rate the filter is sized for, matching
// automerge-rs's sync Bloom filter tuning (spec.md §4.5, "tuned for a low
// false-positive rate").
const falsePositiveRate = 0.01

// Filter is a deterministic Bloom filter over a set of change hashes: the
// same hash set always produces the same bits, so two peers independently
// building a filter from the same heads agree on its contents (spec.md
// §8 property, sync convergence must not depend on insertion order).
type Filter struct {
	bits   *bitset.BitSet
	m      uint32 // bit count
	k      uint32 // hash function count
}

// New builds a filter sized for len(hashes) entries at the target
// false-positive rate, then inserts every hash. An empty hash set still
// produces a (degenerate, always-empty) filter rather than panicking, so
// an initial sync with no shared history works.
func New(hashes []change.Hash) *Filter {
	n := len(hashes)
	m, k := size(n)
	f := &Filter{bits: bitset.New(uint(m)), m: m, k: k}
	for _, h := range hashes {
		f.Add(h)
	}
	return f
}

// size computes (m bits, k hash functions) for n entries at
// falsePositiveRate, using the standard formulas m = -n*ln(p)/(ln2)^2 and
// k = (m/n)*ln2, with floors to keep tiny/empty sets well-defined.
func size(n int) (m uint32, k uint32) {
	if n == 0 {
		return 8, 1
	}
	mf := -float64(n) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)
	m = uint32(mf) + 1
	if m < 8 {
		m = 8
	}
	kf := (float64(m) / float64(n)) * math.Ln2
	k = uint32(kf + 0.5)
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	return m, k
}

// hashSeeds derives f.k independent 32-bit seeds from a change hash by
// reading successive little-endian 4-byte windows, wrapping around the
// 32-byte digest as needed (spec.md §4.5, "k hash functions derived from
// windows of the change hash").
func hashSeeds(h change.Hash, k uint32) []uint32 {
	seeds := make([]uint32, k)
	for i := uint32(0); i < k; i++ {
		off := (i * 4) % uint32(len(h)-3)
		seeds[i] = binary.LittleEndian.Uint32(h[off : off+4])
	}
	return seeds
}

// Add inserts h into the filter.
func (f *Filter) Add(h change.Hash) {
	for _, seed := range hashSeeds(h, f.k) {
		f.bits.Set(uint(seed % f.m))
	}
}

// Has reports whether h is possibly in the filter: false means
// definitely absent, true means present or a false positive.
func (f *Filter) Has(h change.Hash) bool {
	for _, seed := range hashSeeds(h, f.k) {
		if !f.bits.Test(uint(seed % f.m)) {
			return false
		}
	}
	return true
}

// Encode serializes the filter for wire transmission: m, k, the word
// count, then the raw bit words.
func (f *Filter) Encode() []byte {
	words := f.bits.Bytes()
	out := make([]byte, 0, 8+len(words)*8)
	out = appendU32(out, f.m)
	out = appendU32(out, f.k)
	out = appendU32(out, uint32(len(words)))
	for _, w := range words {
		out = appendU64(out, w)
	}
	return out
}

// Decode reverses Encode.
func Decode(buf []byte) (*Filter, error) {
	if len(buf) < 12 {
		return nil, errShort
	}
	m := binary.LittleEndian.Uint32(buf[0:4])
	k := binary.LittleEndian.Uint32(buf[4:8])
	n := binary.LittleEndian.Uint32(buf[8:12])
	buf = buf[12:]
	if uint64(len(buf)) < uint64(n)*8 {
		return nil, errShort
	}
	words := make([]uint64, n)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	bs := bitset.From(words)
	return &Filter{bits: bs, m: m, k: k}, nil
}

var errShort = shortBufError{}

type shortBufError struct{}

func (shortBufError) Error() string { return "bloom: truncated filter encoding" }

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}
