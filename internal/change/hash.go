package change

import (
	"bytes"
	"encoding/hex"
	"sort"

	"lukechampine.com/blake3"
)

// Hash is a 32-byte BLAKE3 digest of a change's canonical encoding,
// spec.md §3. Grounded on lukechampine.com/blake3, already a transitive
// dependency in the pack (AKJUS-bsc-erigon/go.mod) for exactly this
// "32-byte content hash" role.
type Hash [32]byte

// ZeroHash is the all-zero sentinel; no real change ever hashes to it.
var ZeroHash Hash

// ComputeHash returns BLAKE3(encoded), spec.md §8 property 2.
func ComputeHash(encoded []byte) Hash {
	sum := blake3.Sum256(encoded)
	return Hash(sum)
}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the unset sentinel.
func (h Hash) IsZero() bool { return h == ZeroHash }

// HashFromHex parses a hex-printed hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != len(h) {
		return h, errShortHash
	}
	copy(h[:], b)
	return h, nil
}

var errShortHash = hashLenError{}

type hashLenError struct{}

func (hashLenError) Error() string { return "change: hash must be exactly 32 bytes" }

// SortHashes returns a new, lexicographically sorted copy of hs — used
// wherever a canonical, deterministic ordering of a hash set is required
// (dep lists in encoding, heads in sync messages).
func SortHashes(hs []Hash) []Hash {
	out := make([]Hash, len(hs))
	copy(out, hs)
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
