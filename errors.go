// Package automerge is the document facade: it wires internal/opset,
// internal/change, internal/txn, internal/patch, internal/syncproto and
// internal/storage behind the stable Doc API of spec.md §6.
package automerge

import (
	"errors"
	"fmt"

	"automerge/internal/change"
	"automerge/internal/storage"
	"automerge/internal/txn"
)

// Sentinel errors a caller can test with errors.Is, mirroring spec.md §7's
// taxonomy. Several wrap the underlying internal/txn or internal/change
// error a layer down so both the facade name and the original cause
// survive unwrapping.
var (
	// ErrInvalidPath is returned when a "/a/b/0"-style path does not
	// resolve to a live object.
	ErrInvalidPath = txn.ErrInvalidPath
	// ErrInvalidObject is returned when an operation targets an ObjId the
	// document has never created.
	ErrInvalidObject = txn.ErrInvalidObject
	// ErrInvalidKeyOrIndex is returned when a key is absent or an index is
	// out of bounds.
	ErrInvalidKeyOrIndex = txn.ErrInvalidKeyOrIndex
	// ErrInvalidValue is returned when a value's requested type tag does
	// not match the value supplied.
	ErrInvalidValue = errors.New("automerge: invalid value")
	// ErrInvalidChange is returned when ApplyChanges is handed a change
	// blob that does not decode, with the decode failure attached.
	// ApplyChanges does not check a decoded change's seq, preds or hash
	// against the document.
	ErrInvalidChange = errors.New("automerge: invalid change")
	// ErrDecode wraps malformed bytes handed to Load/LoadIncremental, with
	// the underlying decode failure attached.
	ErrDecode = storage.ErrDecode
	// ErrSyncDecode wraps a malformed sync message.
	ErrSyncDecode = errors.New("automerge: malformed sync message")
	// ErrFatal marks an invariant violation that should be unreachable;
	// callers that see this should treat the Doc as unusable.
	ErrFatal = errors.New("automerge: internal invariant violated")
)

// MissingDepsError reports the change hashes a load or apply could not
// resolve (spec.md §7, "not an error... unless allow_missing_deps=false").
type MissingDepsError struct {
	Hashes []change.Hash
}

func (e *MissingDepsError) Error() string {
	return fmt.Sprintf("automerge: %d missing dependencies", len(e.Hashes))
}

// DecodeError reports a malformed-bytes failure. Offset is always -1: the
// decoders do not report the byte offset at which decoding failed.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("automerge: decode error at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
