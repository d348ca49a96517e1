package encoding

// RLE run-length-encodes a []uint64 column. Each run is prefixed by a
// signed (zigzag-ULEB128) control value:
//   - control > 0: the next value repeats `control` times (a repeat run).
//   - control < 0: `-control` distinct literal values follow, one each.
//
// This mirrors the two-kind-of-run scheme spec.md §4.6 calls for ("ULEB128-
// delta-RLE" integer columns / "dictionary-encoded with RLE run lengths"
// string columns), grounded on the run/serial-type discipline of
// tur/pkg/record.go adapted from per-value tags to per-run tags.
func RLEEncode(values []uint64) []byte {
	var out []byte
	i := 0
	for i < len(values) {
		j := i + 1
		for j < len(values) && values[j] == values[i] {
			j++
		}
		runLen := j - i
		if runLen >= 2 {
			out = AppendVarint(out, int64(runLen))
			out = AppendUvarint(out, values[i])
			i = j
			continue
		}
		// Collect a literal run: consecutive singleton values.
		litStart := i
		for i < len(values) {
			next := i + 1
			if next < len(values) && values[next] == values[i] {
				break
			}
			i++
		}
		litLen := i - litStart
		out = AppendVarint(out, -int64(litLen))
		for _, v := range values[litStart:i] {
			out = AppendUvarint(out, v)
		}
	}
	return out
}

// RLEDecode reverses RLEEncode.
func RLEDecode(buf []byte) []uint64 {
	var out []uint64
	for len(buf) > 0 {
		control, n := GetVarint(buf)
		buf = buf[n:]
		if control > 0 {
			v, n := GetUvarint(buf)
			buf = buf[n:]
			for k := int64(0); k < control; k++ {
				out = append(out, v)
			}
		} else if control < 0 {
			for k := int64(0); k < -control; k++ {
				v, n := GetUvarint(buf)
				buf = buf[n:]
				out = append(out, v)
			}
		}
		// control == 0 denotes an empty column; nothing to do.
	}
	return out
}

// DeltaEncode converts a []int64 sequence into deltas from the previous
// value (first delta is from 0), then RLE-encodes the zigzagged deltas.
// This is the "ULEB128-delta-RLE" scheme spec.md §4.6 and §9 name for
// integer columns such as OpId counters and timestamps.
func DeltaEncode(values []int64) []byte {
	deltas := make([]uint64, len(values))
	var prev int64
	for idx, v := range values {
		deltas[idx] = zigzag(v - prev)
		prev = v
	}
	return RLEEncode(deltas)
}

// DeltaDecode reverses DeltaEncode.
func DeltaDecode(buf []byte) []int64 {
	deltas := RLEDecode(buf)
	out := make([]int64, len(deltas))
	var prev int64
	for idx, d := range deltas {
		prev += unzigzag(d)
		out[idx] = prev
	}
	return out
}
