// Package marks computes the active rich-text mark ranges over a
// sequence object from its ordered, already-resolved element list
// (spec.md §4.7). Grounded on tur/pkg/mvcc/conflict.go's scan-forward
// resolution style, retargeted from row-conflict detection to range
// detection over a linear element sequence.
package marks

import (
	"sort"

	"automerge/internal/change"
	"automerge/internal/types"
)

// Range is one coalesced, currently-active mark over [Start, End) element
// positions (document-order indices at the time of the scan).
type Range struct {
	Name  string
	Value types.Scalar
	Start int
	End   int // exclusive
}

// ElementAnnotations pairs each live element's position with the mark and
// unmark ops anchored there, in arrival order, as produced by a walk of
// the sequence's full element list (including tombstones, since a mark
// can anchor to an element later deleted).
type ElementAnnotations struct {
	Index int // live-element index, or -1 if this position is tombstoned
	Ops   []*change.Op
}

// Resolve scans annotations in element order and returns the coalesced,
// currently-visible ranges for every mark name. A Mark op opens a range at
// its element's index; the next visible Unmark op for the same name
// closes it, exclusive of the closing element. A Mark op for a name that
// is already open restarts that name's range at its own index. An open
// range with no following Unmark extends to the end of the sequence.
// Overlapping or adjacent ranges with the same name and an equal value
// are coalesced into one. The ops' ExpandPolicy is not consulted.
func Resolve(annotations []ElementAnnotations, length int) []Range {
	type openMark struct {
		value types.Scalar
		start int
	}
	open := make(map[string]openMark)
	var ranges []Range

	for _, a := range annotations {
		for _, op := range a.Ops {
			if !op.Visible() {
				continue
			}
			switch op.Action.Kind {
			case types.ActionMark:
				if a.Index < 0 {
					continue
				}
				open[op.Action.MarkName] = openMark{value: op.Action.MarkValue, start: a.Index}
			case types.ActionUnmark:
				if om, ok := open[op.Action.MarkName]; ok {
					end := a.Index
					if end < 0 {
						end = length
					}
					if end > om.start {
						ranges = append(ranges, Range{Name: op.Action.MarkName, Value: om.value, Start: om.start, End: end})
					}
					delete(open, op.Action.MarkName)
				}
			}
		}
	}
	for name, om := range open {
		if length > om.start {
			ranges = append(ranges, Range{Name: name, Value: om.value, Start: om.start, End: length})
		}
	}

	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Start != ranges[j].Start {
			return ranges[i].Start < ranges[j].Start
		}
		return ranges[i].Name < ranges[j].Name
	})
	last := make(map[string]int)
	var merged []Range
	for _, r := range ranges {
		if i, ok := last[r.Name]; ok && merged[i].Value.Equal(r.Value) && r.Start <= merged[i].End {
			if r.End > merged[i].End {
				merged[i].End = r.End
			}
			continue
		}
		last[r.Name] = len(merged)
		merged = append(merged, r)
	}
	return merged
}

// At returns the marks active at a single live-element index, name ->
// value, by filtering Resolve's output to ranges that contain it.
func At(ranges []Range, index int) map[string]types.Scalar {
	out := make(map[string]types.Scalar)
	for _, r := range ranges {
		if index >= r.Start && index < r.End {
			out[r.Name] = r.Value
		}
	}
	return out
}
