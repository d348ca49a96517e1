package automerge

import (
	"fmt"

	"automerge/internal/marks"
	"automerge/internal/opset"
	"automerge/internal/patch"
	"automerge/internal/types"
)

// ancestryFor builds the Ancestry predicate a historical read should use:
// the transitive closure of heads, or (heads omitted) the closure of the
// document's current heads, which is exactly the set of every change
// applied so far (every applied change is, by construction, an ancestor
// of some head) — i.e. "now" expressed as an Ancestry rather than as a
// special case.
func (d *Doc) ancestryFor(heads []Hash) opset.Ancestry {
	if len(heads) > 0 {
		return d.graph.Ancestors(heads)
	}
	return d.graph.Ancestors(d.graph.Heads())
}

// Get returns the winning value at a map key (spec.md §6, "get(obj,
// key|index, heads?)").
func (d *Doc) Get(obj ObjId, key string, heads ...Hash) (Scalar, bool) {
	return d.os.GetAt(obj, key, d.ancestryFor(heads))
}

// GetWithType is Get, additionally reporting the value's scalar kind.
func (d *Doc) GetWithType(obj ObjId, key string, heads ...Hash) (Scalar, ScalarKind, bool) {
	v, ok := d.Get(obj, key, heads...)
	if !ok {
		return Scalar{}, types.KindNull, false
	}
	return v, v.Kind(), true
}

// GetAll returns the full conflict set at a map key, winner first
// (spec.md §8 scenario S1).
func (d *Doc) GetAll(obj ObjId, key string, heads ...Hash) []Entry {
	anc := d.ancestryFor(heads)
	ops := d.os.GetAllAt(obj, key, anc)
	out := make([]Entry, len(ops))
	for i, op := range ops {
		out[i] = Entry{Value: d.os.ResolveValueAt(op, anc), ID: op.ID}
	}
	return out
}

// GetIndex returns the winning value at a sequence index.
func (d *Doc) GetIndex(obj ObjId, index int, heads ...Hash) (Scalar, bool) {
	anc := d.ancestryFor(heads)
	ops, _ := d.os.AllLiveElementsAt(obj, anc)
	if index < 0 || index >= len(ops) {
		return Scalar{}, false
	}
	return d.os.ResolveValueAt(ops[index], anc), true
}

// Keys returns the map keys at obj that currently have at least one
// visible op.
func (d *Doc) Keys(obj ObjId, heads ...Hash) []string {
	return d.os.KeysAt(obj, d.ancestryFor(heads))
}

// Length returns the number of live elements in a list/text object.
func (d *Doc) Length(obj ObjId, heads ...Hash) int {
	return d.os.LengthAt(obj, d.ancestryFor(heads))
}

// Text returns the string content of a text object.
func (d *Doc) Text(obj ObjId, heads ...Hash) string {
	return d.textAt(obj, d.ancestryFor(heads))
}

// textAt renders text content by rune, matching the indexing unit
// internal/txn uses for Splice/Insert: one element per Unicode code
// point, not grapheme cluster or UTF-16 code unit (spec.md §9).
func (d *Doc) textAt(obj ObjId, anc opset.Ancestry) string {
	ops, _ := d.os.AllLiveElementsAt(obj, anc)
	out := make([]rune, 0, len(ops))
	for _, op := range ops {
		for _, r := range op.Action.Value.AsStr() {
			out = append(out, r)
		}
	}
	return string(out)
}

// Marks returns the coalesced, currently-active rich-text mark ranges
// over a text object (spec.md §4.7).
func (d *Doc) Marks(obj ObjId, heads ...Hash) []MarkRange {
	anc := d.ancestryFor(heads)
	return marks.Resolve(patch.AnnotationsAt(d.os, obj, anc), d.os.LengthAt(obj, anc))
}

// MarksAt returns the marks active at a single live-element index.
func (d *Doc) MarksAt(obj ObjId, index int, heads ...Hash) map[string]Scalar {
	return marks.At(d.Marks(obj, heads...), index)
}

// Materialize renders the object named by path (the whole document if
// path is empty) as plain Go values: map[string]interface{} for a map,
// []interface{} for a list, string for text, or a Scalar.GoValue() for a
// leaf (spec.md §6, "materialize(path?, heads?)").
func (d *Doc) Materialize(path string, heads ...Hash) (interface{}, error) {
	obj, err := d.ResolvePath(path)
	if err != nil {
		return nil, err
	}
	anc := d.ancestryFor(heads)
	return d.materializeObj(obj, anc), nil
}

func (d *Doc) materializeObj(obj ObjId, anc opset.Ancestry) interface{} {
	t, ok := d.os.ObjectType(obj)
	if !ok {
		return nil
	}
	switch t {
	case types.ObjMap:
		out := make(map[string]interface{})
		for _, k := range d.os.KeysAt(obj, anc) {
			vis := d.os.GetAllAt(obj, k, anc)
			if len(vis) == 0 {
				continue
			}
			winner := vis[0]
			if winner.Action.IsContainerMake() {
				out[k] = d.materializeObj(ObjId{Id: winner.ID}, anc)
			} else {
				out[k] = d.os.ResolveValueAt(winner, anc).GoValue()
			}
		}
		return out
	case types.ObjText:
		return d.textAt(obj, anc)
	default: // ObjList
		ops, _ := d.os.AllLiveElementsAt(obj, anc)
		out := make([]interface{}, len(ops))
		for i, op := range ops {
			if op.Action.IsContainerMake() {
				out[i] = d.materializeObj(ObjId{Id: op.ID}, anc)
			} else {
				out[i] = d.os.ResolveValueAt(op, anc).GoValue()
			}
		}
		return out
	}
}

// GetCursor returns a stable handle to the live element at index. The
// handle names the element, not the index, so inserts and deletes of other
// elements do not move it; GetCursorPosition reports an error under heads
// where the element is not live (spec.md §6, §8 property 7).
func (d *Doc) GetCursor(obj ObjId, index int, heads ...Hash) (Cursor, error) {
	anc := d.ancestryFor(heads)
	_, ids := d.os.AllLiveElementsAt(obj, anc)
	if index < 0 || index >= len(ids) {
		return Cursor{}, ErrInvalidKeyOrIndex
	}
	return Cursor{obj: obj, elem: ids[index]}, nil
}

// GetCursorPosition returns the live index c's element currently occupies
// under heads, or an error if it has no live position there (it may have
// been deleted).
func (d *Doc) GetCursorPosition(c Cursor, heads ...Hash) (int, error) {
	anc := d.ancestryFor(heads)
	_, ids := d.os.AllLiveElementsAt(c.obj, anc)
	for i, id := range ids {
		if id == c.elem {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: cursor element not live", ErrInvalidKeyOrIndex)
}
