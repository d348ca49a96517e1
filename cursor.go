package automerge

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"automerge/internal/clock"
)

// Cursor is a stable handle to a sequence position: the OpId of the
// element it names, which keeps naming the same position across
// concurrent edits elsewhere in the sequence (spec.md §4.1, §8 property
// 7, "cursor stability"). A Cursor is an opaque value; compare it with
// ==, print it with String, and persist it outside a Doc with String/
// ParseCursor.
type Cursor struct {
	obj clock.ObjId
	elem clock.OpId
}

// String renders c as hex-encoded wire bytes (spec.md §6, "persisted
// state... opaque byte blobs" extended to the single-cursor case).
func (c Cursor) String() string {
	buf := encodeOpID(c.obj.Id)
	buf = append(buf, encodeOpID(c.elem)...)
	return hex.EncodeToString(buf)
}

// ParseCursor reverses Cursor.String.
func ParseCursor(s string) (Cursor, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("automerge: parse cursor: %w", err)
	}
	obj, rest, err := decodeOpID(raw)
	if err != nil {
		return Cursor{}, fmt.Errorf("automerge: parse cursor: %w", err)
	}
	elem, rest, err := decodeOpID(rest)
	if err != nil {
		return Cursor{}, fmt.Errorf("automerge: parse cursor: %w", err)
	}
	if len(rest) != 0 {
		return Cursor{}, fmt.Errorf("automerge: parse cursor: trailing bytes")
	}
	return Cursor{obj: clock.ObjId{Id: obj}, elem: elem}, nil
}

func encodeOpID(id clock.OpId) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], id.Counter)
	out := append([]byte(nil), tmp[:n]...)
	n = binary.PutUvarint(tmp[:], uint64(id.Actor))
	return append(out, tmp[:n]...)
}

func decodeOpID(buf []byte) (clock.OpId, []byte, error) {
	counter, n := binary.Uvarint(buf)
	if n <= 0 {
		return clock.OpId{}, nil, fmt.Errorf("truncated opid")
	}
	buf = buf[n:]
	actorIdx, n := binary.Uvarint(buf)
	if n <= 0 {
		return clock.OpId{}, nil, fmt.Errorf("truncated opid")
	}
	buf = buf[n:]
	return clock.OpId{Counter: counter, Actor: clock.ActorIdx(actorIdx)}, buf, nil
}
