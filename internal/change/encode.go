package change

import (
	"errors"
	"math"

	"automerge/internal/actor"
	"automerge/internal/clock"
	"automerge/internal/encoding"
	"automerge/internal/types"
)

// Magic identifies a change blob, spec.md §6 ("each change blob ... begin
// with a 4-byte magic, a 1-byte version"). Grounded on tur/pkg/wal.go's
// framed-header convention (magic + version preceding a body).
var Magic = [4]byte{'A', 'M', 'C', 'H'}

const wireVersion = 1

// ErrDecode is returned, wrapped with context, when a change blob is
// malformed. Surfaced to callers as DecodeError per spec.md §7.
var ErrDecode = errors.New("change: malformed encoding")

// actorTable is the self-contained per-change actor dictionary embedded in
// the wire format, built fresh on every Seal so the blob can be decoded
// without any external state (spec.md §9: "actor-index is rewritten on
// load if needed").
type actorTable struct {
	byIdx []actor.ID
	toIdx map[string]int
}

func newActorTable() *actorTable {
	return &actorTable{toIdx: make(map[string]int)}
}

func (t *actorTable) intern(a actor.ID) int {
	key := a.String()
	if idx, ok := t.toIdx[key]; ok {
		return idx
	}
	idx := len(t.byIdx)
	t.byIdx = append(t.byIdx, a)
	t.toIdx[key] = idx
	return idx
}

// Seal computes c's canonical encoding and hash. It must be called exactly
// once, after Ops/Deps/etc are finalized and before the change is inserted
// into a ChangeGraph (spec.md §4.3: "Commit seals the transaction... encodes
// it canonically, computes the hash").
//
// resolve converts the document-global actor index an Op's OpIds carry into
// the actual ActorId, since a Change's wire encoding carries its own local
// dictionary independent of any one document's index assignment.
func (c *Change) Seal(resolve clock.ActorTable) {
	c.encoded = encodeChange(c, resolve)
	c.hash = ComputeHash(c.encoded)
}

// Encoded returns the cached canonical encoding computed by Seal.
func (c *Change) Encoded() []byte { return c.encoded }

func encodeChange(c *Change, resolve clock.ActorTable) []byte {
	table := newActorTable()
	authorIdx := table.intern(c.Actor)

	n := len(c.Ops)
	objActor := make([]uint64, n)
	objCounter := make([]int64, n)
	keyType := make([]uint64, n) // 0=map 1=elem 2=head
	keyMapStr := make([]string, n)
	keyElemActor := make([]uint64, n)
	keyElemCounter := make([]int64, n)
	insertFlag := make([]uint64, n)
	actionKind := make([]uint64, n)
	objType := make([]uint64, n)
	markName := make([]string, n)
	expand := make([]uint64, n)
	delta := make([]int64, n)
	opCounter := make([]int64, n)
	opActor := make([]uint64, n)

	var valuesBlob []byte
	valueLen := make([]int64, n)

	var predCount []uint64
	var predActor []uint64
	var predCounter []int64

	resolveActor := func(idx clock.ActorIdx) actor.ID { return resolve.ActorAt(idx) }

	for i, op := range c.Ops {
		opCounter[i] = int64(op.ID.Counter)
		opActor[i] = uint64(table.intern(resolveActor(op.ID.Actor)))

		if op.Obj.IsRoot() {
			objActor[i] = 0
			objCounter[i] = 0
		} else {
			objActor[i] = uint64(table.intern(resolveActor(op.Obj.Id.Actor)))
			objCounter[i] = int64(op.Obj.Id.Counter)
		}

		switch {
		case op.Key.IsMapKey():
			keyType[i] = 0
			keyMapStr[i] = op.Key.MapKeyString()
		case op.Key.IsHead():
			keyType[i] = 2
		default:
			keyType[i] = 1
			elem := op.Key.ElemID()
			keyElemActor[i] = uint64(table.intern(resolveActor(elem.Actor)))
			keyElemCounter[i] = int64(elem.Counter)
		}

		if op.Insert {
			insertFlag[i] = 1
		}
		actionKind[i] = uint64(op.Action.Kind)
		if op.Action.IsContainerMake() {
			objType[i] = uint64(op.Action.ObjType)
		}
		if op.Action.Kind == types.ActionMark || op.Action.Kind == types.ActionUnmark {
			markName[i] = op.Action.MarkName
			expand[i] = uint64(op.Action.Expand)
		}
		if op.Action.Kind == types.ActionIncrement {
			delta[i] = op.Action.Delta
		}

		valBlob := encodeScalarForAction(op.Action)
		valueLen[i] = int64(len(valBlob))
		valuesBlob = append(valuesBlob, valBlob...)

		predCount = append(predCount, uint64(len(op.Pred)))
		for _, p := range op.Pred {
			predActor = append(predActor, uint64(table.intern(resolveActor(p.Actor))))
			predCounter = append(predCounter, int64(p.Counter))
		}
	}

	var out []byte
	out = append(out, Magic[:]...)
	out = append(out, wireVersion)

	// The blob carries no hash field: the body follows the magic and
	// version directly, and Seal hashes the whole blob, magic and version
	// included.
	body := encodeChangeBody(c, table, authorIdx, n,
		opActor, opCounter, objActor, objCounter,
		keyType, keyMapStr, keyElemActor, keyElemCounter,
		insertFlag, actionKind, objType, markName, expand, delta,
		valueLen, valuesBlob, predCount, predActor, predCounter)
	out = append(out, encoding.AppendUvarint(nil, uint64(len(body)))...)
	out = append(out, body...)
	return out
}

func encodeChangeBody(c *Change, table *actorTable, authorIdx, n int,
	opActor []uint64, opCounter []int64,
	objActor []uint64, objCounter []int64,
	keyType []uint64, keyMapStr []string, keyElemActor []uint64, keyElemCounter []int64,
	insertFlag, actionKind, objType []uint64, markName []string, expand []uint64, delta []int64,
	valueLen []int64, valuesBlob []byte,
	predCount, predActor []uint64, predCounter []int64) []byte {

	var b []byte
	appendBytes := func(col []byte) {
		b = encoding.AppendUvarint(b, uint64(len(col)))
		b = append(b, col...)
	}

	b = encoding.AppendUvarint(b, uint64(len(table.byIdx)))
	for _, a := range table.byIdx {
		raw := a.Bytes()
		b = encoding.AppendUvarint(b, uint64(len(raw)))
		b = append(b, raw...)
	}
	b = encoding.AppendUvarint(b, uint64(authorIdx))
	b = encoding.AppendUvarint(b, c.Seq)
	b = encoding.AppendUvarint(b, c.StartOp)
	b = encoding.AppendVarint(b, c.Time)
	b = encoding.AppendUvarint(b, uint64(len(c.Message)))
	b = append(b, c.Message...)

	b = encoding.AppendUvarint(b, uint64(len(c.Deps)))
	for _, d := range c.Deps {
		b = append(b, d[:]...)
	}

	b = encoding.AppendUvarint(b, uint64(n))
	appendBytes(encoding.RLEEncode(opActor))
	appendBytes(encoding.DeltaEncode(opCounter))
	appendBytes(encoding.RLEEncode(objActor))
	appendBytes(encoding.DeltaEncode(objCounter))
	appendBytes(encoding.RLEEncode(keyType))
	appendBytes(encoding.EncodeStringColumn(keyMapStr).Encode())
	appendBytes(encoding.RLEEncode(keyElemActor))
	appendBytes(encoding.DeltaEncode(keyElemCounter))
	appendBytes(encoding.RLEEncode(insertFlag))
	appendBytes(encoding.RLEEncode(actionKind))
	appendBytes(encoding.RLEEncode(objType))
	appendBytes(encoding.EncodeStringColumn(markName).Encode())
	appendBytes(encoding.RLEEncode(expand))
	appendBytes(encoding.DeltaEncode(delta))
	appendBytes(encoding.DeltaEncode(valueLen))
	appendBytes(valuesBlob)
	appendBytes(encoding.RLEEncode(predCount))
	appendBytes(encoding.RLEEncode(predActor))
	appendBytes(encoding.DeltaEncode(predCounter))
	return b
}

// encodeScalarForAction encodes the scalar payload relevant to an action
// (Put/Insert value, or Mark value) as a self-describing kind-tagged blob.
// Actions with no scalar payload (Delete, Increment, container-make,
// Unmark) encode to zero bytes.
func encodeScalarForAction(a types.Action) []byte {
	switch a.Kind {
	case types.ActionPut, types.ActionInsert:
		return encodeScalar(a.Value)
	case types.ActionMark:
		return encodeScalar(a.MarkValue)
	default:
		return nil
	}
}

func encodeScalar(s types.Scalar) []byte {
	var out []byte
	out = append(out, byte(s.Kind()))
	switch s.Kind() {
	case types.KindNull:
	case types.KindBool:
		if s.AsBool() {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	case types.KindInt, types.KindTimestamp, types.KindCounter:
		out = encoding.AppendVarint(out, s.AsInt())
	case types.KindUint:
		out = encoding.AppendUvarint(out, s.AsUint())
	case types.KindF64:
		out = encoding.AppendUvarint(out, math.Float64bits(s.AsF64()))
	case types.KindStr:
		str := s.AsStr()
		out = encoding.AppendUvarint(out, uint64(len(str)))
		out = append(out, str...)
	case types.KindBytes:
		raw := s.AsBytes()
		out = encoding.AppendUvarint(out, uint64(len(raw)))
		out = append(out, raw...)
	}
	return out
}

func decodeScalar(buf []byte) (types.Scalar, int) {
	if len(buf) == 0 {
		return types.Null(), 0
	}
	kind := types.ScalarKind(buf[0])
	rest := buf[1:]
	switch kind {
	case types.KindNull:
		return types.Null(), 1
	case types.KindBool:
		return types.Bool(rest[0] != 0), 2
	case types.KindInt:
		v, n := encoding.GetVarint(rest)
		return types.Int(v), 1 + n
	case types.KindTimestamp:
		v, n := encoding.GetVarint(rest)
		return types.Timestamp(v), 1 + n
	case types.KindCounter:
		v, n := encoding.GetVarint(rest)
		return types.Counter(v), 1 + n
	case types.KindUint:
		v, n := encoding.GetUvarint(rest)
		return types.Uint(v), 1 + n
	case types.KindF64:
		v, n := encoding.GetUvarint(rest)
		return types.F64(math.Float64frombits(v)), 1 + n
	case types.KindStr:
		l, n := encoding.GetUvarint(rest)
		rest = rest[n:]
		return types.Str(string(rest[:l])), 1 + n + int(l)
	case types.KindBytes:
		l, n := encoding.GetUvarint(rest)
		rest = rest[n:]
		return types.Bytes(rest[:l]), 1 + n + int(l)
	default:
		return types.Null(), 1
	}
}
