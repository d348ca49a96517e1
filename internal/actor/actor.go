// Package actor identifies the writers that contribute ops to a document.
package actor

import (
	"bytes"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
)

// ErrEmptyActor is returned when an ActorId is constructed from zero bytes.
var ErrEmptyActor = errors.New("actor: id must be non-empty")

// ID is an opaque byte string unique to one writer. Two actors are compared
// lexicographically by their raw bytes, never by their hex text.
type ID struct {
	b []byte
}

// New wraps raw bytes as an ActorId. The slice is copied so the caller may
// reuse or mutate the original.
func New(b []byte) (ID, error) {
	if len(b) == 0 {
		return ID{}, ErrEmptyActor
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return ID{b: cp}, nil
}

// Random generates a fresh actor id from a random UUID, for callers that
// invoke create() without supplying their own actor identity.
func Random() ID {
	u := uuid.New()
	return ID{b: u[:]}
}

// FromHex parses the lowercase-hex printed form of an actor id.
func FromHex(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, err
	}
	return New(b)
}

// Bytes returns the raw actor bytes. The returned slice must not be mutated.
func (a ID) Bytes() []byte { return a.b }

// String prints the actor as lowercase hex, per spec.md §3.
func (a ID) String() string { return hex.EncodeToString(a.b) }

// IsZero reports whether a is the unset value.
func (a ID) IsZero() bool { return len(a.b) == 0 }

// Compare orders two actors lexicographically by raw bytes, breaking OpId
// ties per spec.md §3.
func Compare(a, b ID) int { return bytes.Compare(a.b, b.b) }

// Equal reports whether a and b name the same actor.
func Equal(a, b ID) bool { return bytes.Equal(a.b, b.b) }
