package types

// ObjType names the kind of container an op creates.
type ObjType int

const (
	ObjMap ObjType = iota
	ObjList
	ObjText
)

func (t ObjType) String() string {
	switch t {
	case ObjMap:
		return "map"
	case ObjList:
		return "list"
	case ObjText:
		return "text"
	default:
		return "unknown"
	}
}

// ExpandPolicy governs whether text inserted at a mark's boundary inherits
// the mark, spec.md §4.7.
type ExpandPolicy int

const (
	ExpandNone ExpandPolicy = iota
	ExpandBefore
	ExpandAfter
	ExpandBoth
)

func (e ExpandPolicy) String() string {
	switch e {
	case ExpandNone:
		return "none"
	case ExpandBefore:
		return "before"
	case ExpandAfter:
		return "after"
	case ExpandBoth:
		return "both"
	default:
		return "unknown"
	}
}

// ActionKind is the closed tag of an Op's action, spec.md §3. Modeled as a
// small tagged sum rather than an interface, per spec.md §9 ("the Op action
// set is closed and small").
type ActionKind int

const (
	ActionMakeMap ActionKind = iota
	ActionMakeList
	ActionMakeText
	ActionPut
	ActionInsert
	ActionDelete
	ActionIncrement
	ActionMark
	ActionUnmark
)

func (a ActionKind) String() string {
	switch a {
	case ActionMakeMap:
		return "makeMap"
	case ActionMakeList:
		return "makeList"
	case ActionMakeText:
		return "makeText"
	case ActionPut:
		return "put"
	case ActionInsert:
		return "insert"
	case ActionDelete:
		return "delete"
	case ActionIncrement:
		return "increment"
	case ActionMark:
		return "mark"
	case ActionUnmark:
		return "unmark"
	default:
		return "unknown"
	}
}

// Action is the payload of an Op: exactly one of its fields is meaningful,
// selected by Kind.
type Action struct {
	Kind ActionKind

	// ActionPut, ActionInsert
	Value Scalar

	// ActionIncrement
	Delta int64

	// ActionMark, ActionUnmark
	MarkName  string
	MarkValue Scalar
	Expand    ExpandPolicy

	// ActionMakeMap, ActionMakeList, ActionMakeText
	ObjType ObjType
}

// MakeMap builds the action for creating a nested map.
func MakeMap() Action { return Action{Kind: ActionMakeMap, ObjType: ObjMap} }

// MakeList builds the action for creating a nested list.
func MakeList() Action { return Action{Kind: ActionMakeList, ObjType: ObjList} }

// MakeText builds the action for creating a nested text sequence.
func MakeText() Action { return Action{Kind: ActionMakeText, ObjType: ObjText} }

// Put builds the action for overwriting a map key (or, with insert=true at
// the op level, is unused — Put always targets insert=false positions).
func Put(v Scalar) Action { return Action{Kind: ActionPut, Value: v} }

// Insert builds the action for inserting a new sequence element.
func Insert(v Scalar) Action { return Action{Kind: ActionInsert, Value: v} }

// Delete builds the tombstoning action.
func Delete() Action { return Action{Kind: ActionDelete} }

// Increment builds the counter-increment action.
func Increment(delta int64) Action { return Action{Kind: ActionIncrement, Delta: delta} }

// Mark builds a range-mark action.
func Mark(name string, value Scalar, expand ExpandPolicy) Action {
	return Action{Kind: ActionMark, MarkName: name, MarkValue: value, Expand: expand}
}

// Unmark builds the action that clears a previously applied mark.
func Unmark(name string, expand ExpandPolicy) Action {
	return Action{Kind: ActionUnmark, MarkName: name, Expand: expand}
}

// IsContainerMake reports whether a creates a new object (map/list/text).
func (a Action) IsContainerMake() bool {
	switch a.Kind {
	case ActionMakeMap, ActionMakeList, ActionMakeText:
		return true
	default:
		return false
	}
}
