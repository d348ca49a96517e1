// Package patch turns two historical ancestry snapshots of the same OpSet
// into an ordered list of Patch events describing how the document changed
// between them. Grounded on tur/pkg/mvcc/visibility.go's pattern of reading
// the same index twice under different visibility predicates and diffing
// the results, retargeted here from commit-timestamp visibility to the
// opset package's Ancestry-based historical reads.
package patch

import (
	"sort"

	"automerge/internal/change"
	"automerge/internal/clock"
	"automerge/internal/marks"
	"automerge/internal/opset"
	"automerge/internal/types"
)

// Kind tags the variant of a Patch.
type Kind int

const (
	KindPut Kind = iota
	KindInsert
	KindDelete
	KindIncrement
	KindConflict
	KindSplice
	KindMark
)

func (k Kind) String() string {
	switch k {
	case KindPut:
		return "put"
	case KindInsert:
		return "insert"
	case KindDelete:
		return "delete"
	case KindIncrement:
		return "increment"
	case KindConflict:
		return "conflict"
	case KindSplice:
		return "splice"
	case KindMark:
		return "mark"
	default:
		return "unknown"
	}
}

// Patch is one observable change to a single map key or sequence range.
// Which fields are meaningful depends on Kind: Key for map patches, Index
// (and End, for Mark) for sequence patches; Values holds a run of coalesced
// list inserts, Text a run of coalesced text-character inserts, MarkName/
// Value the name and value of a coalesced mark range.
type Patch struct {
	Kind     Kind
	Obj      clock.ObjId
	Key      string
	Index    int
	End      int // exclusive, KindMark only
	Value    types.Scalar
	Values   []types.Scalar // KindInsert, one or more adjacent list elements
	Text     string         // KindSplice, one or more adjacent text characters
	MarkName string         // KindMark
}

// alwaysFalse is the ancestry of a point before any change existed, used to
// diff a freshly created object's full contents as all-inserts.
func alwaysFalse(clock.ObjId) opset.Ancestry {
	return func(h change.Hash) bool { return false }
}

// Diff walks the document reachable from the root object and reports every
// patch needed to go from the state visible under before to the state
// visible under after. Objects that exist only in before (deleted
// wholesale) are reported as a single Delete on their parent key/index;
// their own contents are not individually walked, matching how a consumer
// rebuilding a materialized view only needs to drop the subtree once.
func Diff(os *opset.OpSet, before, after opset.Ancestry) []Patch {
	var out []Patch
	diffObject(os, clock.Root, before, after, &out)
	return out
}

func diffObject(os *opset.OpSet, obj clock.ObjId, before, after opset.Ancestry, out *[]Patch) {
	t, ok := os.ObjectType(obj)
	if !ok {
		return
	}
	if t == types.ObjMap {
		diffMap(os, obj, before, after, out)
		return
	}
	diffSequence(os, obj, t == types.ObjText, before, after, out)
}

func diffMap(os *opset.OpSet, obj clock.ObjId, before, after opset.Ancestry, out *[]Patch) {
	for _, key := range os.AllMapKeys(obj) {
		beforeVis := os.GetAllAt(obj, key, before)
		afterVis := os.GetAllAt(obj, key, after)

		switch {
		case len(afterVis) == 0 && len(beforeVis) > 0:
			*out = append(*out, Patch{Kind: KindDelete, Obj: obj, Key: key})
			continue
		case len(afterVis) == 0:
			continue
		}

		winner := afterVis[0]
		aVal := os.ResolveValueAt(winner, after)
		sameWinner := len(beforeVis) > 0 && beforeVis[0].ID == winner.ID
		var bVal types.Scalar
		if sameWinner {
			bVal = os.ResolveValueAt(beforeVis[0], before)
		}

		switch {
		case sameWinner && aVal.Kind() == types.KindCounter && !bVal.Equal(aVal):
			*out = append(*out, Patch{Kind: KindIncrement, Obj: obj, Key: key, Value: types.Int(aVal.AsInt() - bVal.AsInt())})
		case !sameWinner || !bVal.Equal(aVal):
			*out = append(*out, Patch{Kind: KindPut, Obj: obj, Key: key, Value: aVal})
		}
		if len(afterVis) > 1 {
			*out = append(*out, Patch{Kind: KindConflict, Obj: obj, Key: key})
		}

		if winner.Action.IsContainerMake() {
			child := clock.ObjId{Id: winner.ID}
			childBefore := before
			if !sameWinner {
				childBefore = alwaysFalse(child)
			}
			diffObject(os, child, childBefore, after, out)
		}
	}
}

// insertRun accumulates a contiguous span of plain (non-container) inserts
// so diffSequence can report them as one coalesced Insert/Splice patch
// rather than one patch per element.
type insertRun struct {
	start  int
	text   string
	values []types.Scalar
}

func diffSequence(os *opset.OpSet, obj clock.ObjId, isText bool, before, after opset.Ancestry, out *[]Patch) {
	var run *insertRun
	flush := func() {
		if run == nil {
			return
		}
		if isText {
			*out = append(*out, Patch{Kind: KindSplice, Obj: obj, Index: run.start, Text: run.text})
		} else {
			*out = append(*out, Patch{Kind: KindInsert, Obj: obj, Index: run.start, Values: run.values})
		}
		run = nil
	}

	afterIdx := 0
	for _, elemID := range os.AllElements(obj) {
		ops := os.ElementOps(obj, elemID)
		beforeVis := visibleValueOps(os, ops, before)
		afterVis := visibleValueOps(os, ops, after)

		wasVisible := len(beforeVis) > 0
		isVisible := len(afterVis) > 0

		switch {
		case !wasVisible && !isVisible:
			continue
		case !wasVisible && isVisible:
			winner := afterVis[0]
			val := os.ResolveValueAt(winner, after)
			switch {
			case winner.Action.IsContainerMake():
				flush()
				*out = append(*out, Patch{Kind: KindInsert, Obj: obj, Index: afterIdx, Values: []types.Scalar{val}})
				diffObject(os, clock.ObjId{Id: winner.ID}, alwaysFalse(obj), after, out)
			case isText && val.Kind() == types.KindStr:
				if run == nil {
					run = &insertRun{start: afterIdx}
				}
				run.text += val.AsStr()
			default:
				if run == nil {
					run = &insertRun{start: afterIdx}
				}
				run.values = append(run.values, val)
			}
			afterIdx++
		case wasVisible && !isVisible:
			flush()
			*out = append(*out, Patch{Kind: KindDelete, Obj: obj, Index: afterIdx})
		default:
			flush()
			bWinner, aWinner := beforeVis[0], afterVis[0]
			bVal := os.ResolveValueAt(bWinner, before)
			aVal := os.ResolveValueAt(aWinner, after)
			sameWinner := bWinner.ID == aWinner.ID

			switch {
			case sameWinner && aVal.Kind() == types.KindCounter && !bVal.Equal(aVal):
				*out = append(*out, Patch{Kind: KindIncrement, Obj: obj, Index: afterIdx, Value: types.Int(aVal.AsInt() - bVal.AsInt())})
			case !sameWinner || !bVal.Equal(aVal):
				*out = append(*out, Patch{Kind: KindPut, Obj: obj, Index: afterIdx, Value: aVal})
			}
			if len(afterVis) > 1 {
				*out = append(*out, Patch{Kind: KindConflict, Obj: obj, Index: afterIdx})
			}
			if aWinner.Action.IsContainerMake() {
				childBefore := before
				if !sameWinner {
					childBefore = alwaysFalse(obj)
				}
				diffObject(os, clock.ObjId{Id: aWinner.ID}, childBefore, after, out)
			}
			afterIdx++
		}
	}
	flush()

	if isText {
		diffMarks(os, obj, before, after, out)
	}
}

// diffMarks reports one KindMark patch per coalesced mark range present
// under after but absent (by name/span/value) under before. marks.Resolve
// already coalesces overlapping or adjacent same-name ranges with equal
// values, so an edit spanning several such underlying Mark ops surfaces
// as one patch per coalesced range rather than one per op.
func diffMarks(os *opset.OpSet, obj clock.ObjId, before, after opset.Ancestry, out *[]Patch) {
	beforeRanges := marks.Resolve(AnnotationsAt(os, obj, before), os.LengthAt(obj, before))
	afterRanges := marks.Resolve(AnnotationsAt(os, obj, after), os.LengthAt(obj, after))

	for _, a := range afterRanges {
		if rangeIn(a, beforeRanges) {
			continue
		}
		*out = append(*out, Patch{
			Kind:     KindMark,
			Obj:      obj,
			Index:    a.Start,
			End:      a.End,
			MarkName: a.Name,
			Value:    a.Value,
		})
	}
}

func rangeIn(r marks.Range, set []marks.Range) bool {
	for _, o := range set {
		if o.Name == r.Name && o.Start == r.Start && o.End == r.End && o.Value.Equal(r.Value) {
			return true
		}
	}
	return false
}

// AnnotationsAt gathers every element's live-index and raw (value +
// mark/unmark) op list under anc, the shape marks.Resolve needs. Exported
// so the document facade's read path can share this walk instead of
// re-deriving it.
func AnnotationsAt(os *opset.OpSet, obj clock.ObjId, anc opset.Ancestry) []marks.ElementAnnotations {
	elemIDs := os.AllElements(obj)
	anns := make([]marks.ElementAnnotations, len(elemIDs))
	liveIdx := 0
	for i, elemID := range elemIDs {
		ops := os.ElementOps(obj, elemID)
		visible := false
		for _, op := range ops {
			if os.VisibleAt(op, anc) {
				visible = true
				break
			}
		}
		index := -1
		if visible {
			index = liveIdx
			liveIdx++
		}
		anns[i] = marks.ElementAnnotations{Index: index, Ops: os.RawElementOps(obj, elemID)}
	}
	return anns
}

func visibleValueOps(os *opset.OpSet, ops []*change.Op, anc opset.Ancestry) []*change.Op {
	var out []*change.Op
	for _, op := range ops {
		if os.VisibleAt(op, anc) {
			out = append(out, op)
		}
	}
	if len(out) > 1 {
		sort.Slice(out, func(i, j int) bool {
			return clock.Greater(out[i].ID, out[j].ID, os.Actors)
		})
	}
	return out
}
