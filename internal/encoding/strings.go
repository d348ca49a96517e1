package encoding

// StringDict dictionary-encodes a column of strings: a table of the
// distinct strings in first-appearance order, plus an RLE column of indices into that
// table, per spec.md §4.6 ("string columns dictionary-encoded with RLE run
// lengths"). Grounded on tur/pkg/record.go's length-prefixed TEXT serial
// encoding, adapted from per-value inline strings to an indirect dictionary
// since CRDT key/actor columns repeat heavily across a long op history.
type StringDict struct {
	Table   []string
	Indices []uint64
}

// EncodeStringColumn builds a StringDict for values, preserving order.
func EncodeStringColumn(values []string) StringDict {
	index := make(map[string]int)
	var table []string
	indices := make([]uint64, len(values))
	for i, v := range values {
		idx, ok := index[v]
		if !ok {
			idx = len(table)
			table = append(table, v)
			index[v] = idx
		}
		indices[i] = uint64(idx)
	}
	return StringDict{Table: table, Indices: indices}
}

// Values reconstructs the original string sequence.
func (d StringDict) Values() []string {
	out := make([]string, len(d.Indices))
	for i, idx := range d.Indices {
		out[i] = d.Table[idx]
	}
	return out
}

// Encode serializes the dictionary: table length, then each entry
// length-prefixed UTF-8, then the RLE-encoded index column.
func (d StringDict) Encode() []byte {
	var out []byte
	out = AppendUvarint(out, uint64(len(d.Table)))
	for _, s := range d.Table {
		out = AppendUvarint(out, uint64(len(s)))
		out = append(out, s...)
	}
	rle := RLEEncode(d.Indices)
	out = AppendUvarint(out, uint64(len(rle)))
	out = append(out, rle...)
	return out
}

// DecodeStringColumn reverses Encode, returning the reconstructed values
// and the number of bytes consumed from buf.
func DecodeStringColumn(buf []byte) (StringDict, int) {
	orig := buf
	tableLen, n := GetUvarint(buf)
	buf = buf[n:]
	table := make([]string, tableLen)
	for i := range table {
		strLen, n := GetUvarint(buf)
		buf = buf[n:]
		table[i] = string(buf[:strLen])
		buf = buf[strLen:]
	}
	rleLen, n := GetUvarint(buf)
	buf = buf[n:]
	rleBytes := buf[:rleLen]
	buf = buf[rleLen:]
	indices := RLEDecode(rleBytes)
	consumed := len(orig) - len(buf)
	return StringDict{Table: table, Indices: indices}, consumed
}
