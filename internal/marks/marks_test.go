package marks

import (
	"testing"

	"automerge/internal/change"
	"automerge/internal/types"
)

func visible(kind types.ActionKind, name string, value types.Scalar) *change.Op {
	return &change.Op{Action: types.Action{Kind: kind, MarkName: name, MarkValue: value}}
}

func TestResolveSimpleRange(t *testing.T) {
	annotations := []ElementAnnotations{
		{Index: 0, Ops: []*change.Op{visible(types.ActionMark, "bold", types.Bool(true))}},
		{Index: 1},
		{Index: 2, Ops: []*change.Op{visible(types.ActionUnmark, "bold", types.Scalar{})}},
		{Index: 3},
	}
	ranges := Resolve(annotations, 4)
	if len(ranges) != 1 {
		t.Fatalf("expected 1 range, got %v", ranges)
	}
	r := ranges[0]
	if r.Name != "bold" || r.Start != 0 || r.End != 2 {
		t.Fatalf("range = %+v, want bold [0,2)", r)
	}
}

func TestResolveOpenRangeExtendsToEnd(t *testing.T) {
	annotations := []ElementAnnotations{
		{Index: 0, Ops: []*change.Op{visible(types.ActionMark, "italic", types.Bool(true))}},
		{Index: 1},
	}
	ranges := Resolve(annotations, 2)
	if len(ranges) != 1 || ranges[0].End != 2 {
		t.Fatalf("expected open range to extend to length, got %v", ranges)
	}
}

func TestAtFiltersByIndex(t *testing.T) {
	ranges := []Range{{Name: "bold", Start: 0, End: 2, Value: types.Bool(true)}}
	if m := At(ranges, 1); len(m) != 1 {
		t.Fatalf("expected mark active at index 1, got %v", m)
	}
	if m := At(ranges, 2); len(m) != 0 {
		t.Fatalf("expected no mark active at index 2 (exclusive end), got %v", m)
	}
}
