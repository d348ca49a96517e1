// Package encoding implements the columnar codec spec.md §4.6 requires for
// change and document blobs: ULEB128 varints, delta encoding, run-length
// encoding, and string dictionaries. Grounded on tur/internal/encoding's
// varint reader/writer shape (PutX/GetX pairs returning bytes written/read)
// and on tur/pkg/record's serial-type tagging discipline for columns, but
// rewritten to standard little-endian-group ULEB128 (spec.md §6 names
// ULEB128 explicitly) rather than the teacher's SQLite big-endian varint.
package encoding

// PutUvarint encodes v into buf as a ULEB128 varint (least-significant
// 7-bit group first, continuation bit in the high bit of every byte but
// the last) and returns the number of bytes written. buf must have at
// least UvarintSize(v) bytes available.
func PutUvarint(buf []byte, v uint64) int {
	n := 0
	for v >= 0x80 {
		buf[n] = byte(v) | 0x80
		v >>= 7
		n++
	}
	buf[n] = byte(v)
	return n + 1
}

// AppendUvarint appends the ULEB128 encoding of v to buf.
func AppendUvarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// GetUvarint decodes a ULEB128 varint from the front of buf, returning the
// value and the number of bytes consumed. Returns (0, 0) if buf does not
// contain a complete, well-formed varint.
func GetUvarint(buf []byte) (uint64, int) {
	var v uint64
	var shift uint
	for i := 0; i < len(buf) && i < 10; i++ {
		b := buf[i]
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return 0, 0
}

// UvarintSize reports how many bytes PutUvarint would write for v.
func UvarintSize(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// zigzag maps a signed integer to an unsigned one so that small-magnitude
// values (positive or negative) encode to few bytes: 0,-1,1,-2,2 -> 0,1,2,3,4.
func zigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func unzigzag(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// AppendVarint appends the zigzag-ULEB128 encoding of a signed integer.
func AppendVarint(buf []byte, v int64) []byte {
	return AppendUvarint(buf, zigzag(v))
}

// GetVarint decodes a zigzag-ULEB128-encoded signed integer.
func GetVarint(buf []byte) (int64, int) {
	u, n := GetUvarint(buf)
	return unzigzag(u), n
}
