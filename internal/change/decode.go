package change

import (
	"fmt"

	"automerge/internal/actor"
	"automerge/internal/clock"
	"automerge/internal/encoding"
	"automerge/internal/types"
)

// DecodeChange parses a blob produced by Seal. intern resolves each actor
// appearing in the blob's local dictionary to the caller's own document-
// global ActorIdx, interning previously-unseen actors as needed — this is
// how a Change travels between documents whose actor dictionaries were
// built up in different orders (spec.md §9).
func DecodeChange(blob []byte, intern func(actor.ID) clock.ActorIdx) (*Change, error) {
	if len(blob) < 5 || [4]byte{blob[0], blob[1], blob[2], blob[3]} != Magic {
		return nil, fmt.Errorf("%w: bad magic", ErrDecode)
	}
	if blob[4] != wireVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDecode, blob[4])
	}
	rest := blob[5:]

	bodyLen, n, err := uvarintChecked(rest)
	if err != nil {
		return nil, err
	}
	rest = rest[n:]
	if uint64(len(rest)) < bodyLen {
		return nil, fmt.Errorf("%w: truncated body", ErrDecode)
	}
	body := rest[:bodyLen]

	d := &decoder{buf: body}

	tableLen := d.uvarint()
	localActors := make([]actor.ID, tableLen)
	localIdx := make([]clock.ActorIdx, tableLen)
	for i := range localActors {
		raw := d.col()
		a, err := actor.New(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: actor table entry %d: %v", ErrDecode, i, err)
		}
		localActors[i] = a
		localIdx[i] = intern(a)
	}
	authorIdx := d.uvarint()
	seq := d.uvarint()
	startOp := d.uvarint()
	timeMillis := d.varint()
	msgLen := d.uvarint()
	message := string(d.take(int(msgLen)))

	depCount := d.uvarint()
	deps := make([]Hash, depCount)
	for i := range deps {
		copy(deps[i][:], d.take(32))
	}

	nOps := int(d.uvarint())

	opActor := encoding.RLEDecode(d.col())
	opCounter := encoding.DeltaDecode(d.col())
	objActor := encoding.RLEDecode(d.col())
	objCounter := encoding.DeltaDecode(d.col())
	keyType := encoding.RLEDecode(d.col())
	keyMapDict, _ := encoding.DecodeStringColumn(d.col())
	keyElemActor := encoding.RLEDecode(d.col())
	keyElemCounter := encoding.DeltaDecode(d.col())
	insertFlag := encoding.RLEDecode(d.col())
	actionKind := encoding.RLEDecode(d.col())
	objType := encoding.RLEDecode(d.col())
	markNameDict, _ := encoding.DecodeStringColumn(d.col())
	expand := encoding.RLEDecode(d.col())
	delta := encoding.DeltaDecode(d.col())
	valueLen := encoding.DeltaDecode(d.col())
	valuesBlob := d.col()
	predCount := encoding.RLEDecode(d.col())
	predActor := encoding.RLEDecode(d.col())
	predCounter := encoding.DeltaDecode(d.col())

	if d.err != nil {
		return nil, d.err
	}

	keyMapStr := keyMapDict.Values()
	markName := markNameDict.Values()

	resolveIdx := func(localActorIdx uint64) clock.ActorIdx {
		if int(localActorIdx) >= len(localIdx) {
			return 0
		}
		return localIdx[localActorIdx]
	}

	ops := make([]Op, nOps)
	valOff := 0
	predOff := 0
	for i := 0; i < nOps; i++ {
		op := Op{
			ID: clock.OpId{
				Counter: uint64(opCounter[i]),
				Actor:   resolveIdx(opActor[i]),
			},
			Insert: insertFlag[i] == 1,
		}
		if objCounter[i] == 0 {
			op.Obj = clock.Root
		} else {
			op.Obj = clock.ObjId{Id: clock.OpId{
				Counter: uint64(objCounter[i]),
				Actor:   resolveIdx(objActor[i]),
			}}
		}

		switch keyType[i] {
		case 0:
			op.Key = clock.MapKey(keyMapStr[i])
		case 2:
			op.Key = clock.Head()
		default:
			op.Key = clock.ElemKey(clock.OpId{
				Counter: uint64(keyElemCounter[i]),
				Actor:   resolveIdx(keyElemActor[i]),
			})
		}

		vlen := int(valueLen[i])
		if valOff+vlen > len(valuesBlob) {
			return nil, fmt.Errorf("%w: value column overrun at op %d", ErrDecode, i)
		}
		valBuf := valuesBlob[valOff : valOff+vlen]
		valOff += vlen

		op.Action = decodeAction(types.ActionKind(actionKind[i]), types.ObjType(objType[i]),
			markName[i], types.ExpandPolicy(expand[i]), delta[i], valBuf)

		pc := int(predCount[i])
		if predOff+pc > len(predActor) || predOff+pc > len(predCounter) {
			return nil, fmt.Errorf("%w: pred column overrun at op %d", ErrDecode, i)
		}
		if pc > 0 {
			op.Pred = make([]clock.OpId, pc)
			for k := 0; k < pc; k++ {
				op.Pred[k] = clock.OpId{
					Counter: uint64(predCounter[predOff+k]),
					Actor:   resolveIdx(predActor[predOff+k]),
				}
			}
		}
		predOff += pc

		ops[i] = op
	}

	c := &Change{
		Actor:   localActors[authorIdx],
		Seq:     seq,
		StartOp: startOp,
		Time:    timeMillis,
		Message: message,
		Deps:    deps,
		Ops:     ops,
		encoded: blob,
		hash:    ComputeHash(blob),
	}
	return c, nil
}

func decodeAction(kind types.ActionKind, objType types.ObjType, markName string, expand types.ExpandPolicy, delta int64, valBuf []byte) types.Action {
	switch kind {
	case types.ActionMakeMap:
		return types.MakeMap()
	case types.ActionMakeList:
		return types.MakeList()
	case types.ActionMakeText:
		return types.MakeText()
	case types.ActionPut:
		v, _ := decodeScalar(valBuf)
		return types.Put(v)
	case types.ActionInsert:
		v, _ := decodeScalar(valBuf)
		return types.Insert(v)
	case types.ActionDelete:
		return types.Delete()
	case types.ActionIncrement:
		return types.Increment(delta)
	case types.ActionMark:
		v, _ := decodeScalar(valBuf)
		return types.Mark(markName, v, expand)
	case types.ActionUnmark:
		return types.Unmark(markName, expand)
	default:
		return types.Action{Kind: kind, ObjType: objType}
	}
}

// decoder walks a body buffer sequentially, recording the first error
// encountered so callers can check it once at the end rather than after
// every field.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := encoding.GetUvarint(d.buf)
	if n == 0 && len(d.buf) > 0 {
		d.err = fmt.Errorf("%w: bad uvarint", ErrDecode)
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) varint() int64 {
	if d.err != nil {
		return 0
	}
	v, n := encoding.GetVarint(d.buf)
	if n == 0 && len(d.buf) > 0 {
		d.err = fmt.Errorf("%w: bad varint", ErrDecode)
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.buf) {
		d.err = fmt.Errorf("%w: buffer underrun", ErrDecode)
		return nil
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out
}

// col reads a length-prefixed column blob.
func (d *decoder) col() []byte {
	l := d.uvarint()
	return d.take(int(l))
}

func uvarintChecked(buf []byte) (uint64, int, error) {
	v, n := encoding.GetUvarint(buf)
	if n == 0 && len(buf) > 0 {
		return 0, 0, fmt.Errorf("%w: bad length prefix", ErrDecode)
	}
	return v, n, nil
}
