package opset

import (
	"automerge/internal/change"
	"automerge/internal/clock"
	"automerge/internal/types"
)

// Unintegrate reverses a prior call to Integrate(op). It is only valid
// when op is the most recently integrated op touching whatever pred/slot
// it affected — i.e. callers unwind a run of Integrate calls in strict
// reverse order, as txn.Rollback does for one uncommitted transaction's
// ops. Calling it out of order, or on an op that has since been shared
// with another replica, corrupts the index.
func (os *OpSet) Unintegrate(op *change.Op) {
	if op.Action.Kind != types.ActionIncrement {
		for _, p := range op.Pred {
			if target, ok := os.allOps[p]; ok {
				target.RemoveSuccessor(op.ID)
			}
		}
	}

	switch op.Action.Kind {
	case types.ActionDelete:
		// Delete never occupied a slot of its own; a deleted sequence
		// element only needs its live flag recomputed now the successor
		// edge is gone.
		if !op.Key.IsMapKey() {
			if obj, ok := os.objects[op.Obj]; ok {
				if node, ok := obj.byElem[op.Key.ElemID()]; ok {
					setLive(node, len(visibleOps(node.el.valueOps())) > 0)
				}
			}
		}
	case types.ActionIncrement:
		if len(op.Pred) > 0 {
			target := op.Pred[0]
			list := os.increments[target]
			for i, inc := range list {
				if inc.ID == op.ID {
					os.increments[target] = append(list[:i], list[i+1:]...)
					break
				}
			}
		}
	default:
		os.removeFromSlot(op)
		if op.Action.IsContainerMake() {
			id := clock.ObjId{Id: op.ID}
			delete(os.objects, id)
			delete(os.childObjIDs, id)
		}
	}

	delete(os.allOps, op.ID)
	delete(os.origin.byOp, op.ID)
}

func (os *OpSet) removeFromSlot(op *change.Op) {
	obj, ok := os.objects[op.Obj]
	if !ok {
		return
	}
	if op.Key.IsMapKey() {
		slot, ok := obj.mapEntries[op.Key.MapKeyString()]
		if !ok || len(slot.ops) == 0 {
			return
		}
		slot.ops = slot.ops[:len(slot.ops)-1]
		return
	}
	if op.Insert {
		node, ok := obj.byElem[op.ID]
		if !ok {
			return
		}
		obj.root = deleteNode(obj.root, node)
		delete(obj.byElem, op.ID)
		return
	}
	node, ok := obj.byElem[op.Key.ElemID()]
	if !ok || len(node.el.ops) == 0 {
		return
	}
	node.el.ops = node.el.ops[:len(node.el.ops)-1]
	setLive(node, len(visibleOps(node.el.valueOps())) > 0)
}
