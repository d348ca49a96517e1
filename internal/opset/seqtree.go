package opset

import "math/rand"

// seqNode is one node of an implicit-key treap ordering a sequence
// object's elements by document position (spec.md §4.1: "an ordered
// associative structure that supports O(log n) splits, range scans, and
// cursor advance", with interior nodes aggregating per-subtree counts so
// index-based lookup never scans tombstones). A treap gives the same
// expected-O(log n) split/merge/rank bounds as a B-tree's node-splitting
// technique (tur/pkg/btree, tur/pkg/cowbtree) without that technique's
// page-width/disk-block parameters, which have no meaning for a pure
// in-memory linked sequence; what's adapted from it is the idea of an
// interior node carrying aggregate subtree counters rather than the
// multi-way page layout itself.
type seqNode struct {
	el       *element
	live     bool // el currently has at least one visible value op
	priority uint32

	left, right, parent *seqNode

	size     int // 1 + size(left) + size(right): total elements in subtree
	liveSize int // live count of this node + liveSize(left) + liveSize(right)
}

func newSeqNode(el *element) *seqNode {
	return &seqNode{el: el, priority: rand.Uint32(), size: 1}
}

func (n *seqNode) update() {
	n.size, n.liveSize = 1, 0
	if n.live {
		n.liveSize = 1
	}
	if n.left != nil {
		n.size += n.left.size
		n.liveSize += n.left.liveSize
	}
	if n.right != nil {
		n.size += n.right.size
		n.liveSize += n.right.liveSize
	}
}

func sizeOf(n *seqNode) int {
	if n == nil {
		return 0
	}
	return n.size
}

func liveSizeOf(n *seqNode) int {
	if n == nil {
		return 0
	}
	return n.liveSize
}

// split divides the tree rooted at n into (left, right) so left holds
// exactly the first k elements in document order and right holds the
// rest. Both results have parent == nil; the caller reattaches them.
func split(n *seqNode, k int) (*seqNode, *seqNode) {
	if n == nil {
		return nil, nil
	}
	leftSize := sizeOf(n.left)
	if k <= leftSize {
		l, r := split(n.left, k)
		n.left = r
		if r != nil {
			r.parent = n
		}
		if l != nil {
			l.parent = nil
		}
		n.parent = nil
		n.update()
		return l, n
	}
	l, r := split(n.right, k-leftSize-1)
	n.right = l
	if l != nil {
		l.parent = n
	}
	if r != nil {
		r.parent = nil
	}
	n.parent = nil
	n.update()
	return n, r
}

// merge joins two trees where every element of l precedes every element
// of r in document order, returning the new root (parent == nil).
func merge(l, r *seqNode) *seqNode {
	if l == nil {
		if r != nil {
			r.parent = nil
		}
		return r
	}
	if r == nil {
		l.parent = nil
		return l
	}
	if l.priority > r.priority {
		l.right = merge(l.right, r)
		if l.right != nil {
			l.right.parent = l
		}
		l.parent = nil
		l.update()
		return l
	}
	r.left = merge(l, r.left)
	if r.left != nil {
		r.left.parent = r
	}
	r.parent = nil
	r.update()
	return r
}

// insertAt inserts node as the new k'th element (0-based, document order)
// of the tree rooted at root, returning the new root.
func insertAt(root *seqNode, k int, node *seqNode) *seqNode {
	l, r := split(root, k)
	return merge(merge(l, node), r)
}

// deleteNode removes n from the tree rooted at root, returning the new
// root. n must belong to this tree.
func deleteNode(root *seqNode, n *seqNode) *seqNode {
	merged := merge(n.left, n.right)
	p := n.parent
	n.left, n.right, n.parent = nil, nil, nil
	if merged != nil {
		merged.parent = p
	}
	if p == nil {
		return merged
	}
	if p.left == n {
		p.left = merged
	} else {
		p.right = merged
	}
	for c := p; c != nil; c = c.parent {
		c.update()
	}
	return root
}

// rank returns n's 0-based document-order position, by walking its parent
// chain and summing left-subtree sizes passed on the way up.
func rank(n *seqNode) int {
	pos := sizeOf(n.left)
	for c, p := n, n.parent; p != nil; c, p = p, p.parent {
		if p.right == c {
			pos += sizeOf(p.left) + 1
		}
	}
	return pos
}

// liveRank returns n's 0-based live-element position, or ok=false if n is
// not itself currently live.
func liveRank(n *seqNode) (int, bool) {
	if !n.live {
		return 0, false
	}
	pos := liveSizeOf(n.left)
	for c, p := n, n.parent; p != nil; c, p = p, p.parent {
		if p.right == c {
			pos += liveSizeOf(p.left)
			if p.live {
				pos++
			}
		}
	}
	return pos, true
}

// setLive updates n's live flag and propagates the aggregate change up to
// the root.
func setLive(n *seqNode, live bool) {
	if n.live == live {
		return
	}
	n.live = live
	for c := n; c != nil; c = c.parent {
		c.update()
	}
}

// nthNode returns the k'th (0-based) node in document order under root.
func nthNode(root *seqNode, k int) *seqNode {
	n := root
	for n != nil {
		l := sizeOf(n.left)
		switch {
		case k < l:
			n = n.left
		case k == l:
			return n
		default:
			k -= l + 1
			n = n.right
		}
	}
	return nil
}

// nthLive returns the k'th (0-based) live node under root, or nil if there
// are fewer than k+1 live elements.
func nthLive(root *seqNode, k int) *seqNode {
	n := root
	for n != nil {
		ll := liveSizeOf(n.left)
		switch {
		case k < ll:
			n = n.left
		case k == ll && n.live:
			return n
		default:
			if n.live {
				k--
			}
			k -= ll
			n = n.right
		}
	}
	return nil
}

// successor returns the node immediately after n in document order, or nil
// if n is last.
func successor(n *seqNode) *seqNode {
	if n.right != nil {
		n = n.right
		for n.left != nil {
			n = n.left
		}
		return n
	}
	for c, p := n, n.parent; p != nil; c, p = p, p.parent {
		if p.left == c {
			return p
		}
	}
	return nil
}

// inorder appends every node's element to out in document order.
func inorder(n *seqNode, out *[]*element) {
	if n == nil {
		return
	}
	inorder(n.left, out)
	*out = append(*out, n.el)
	inorder(n.right, out)
}
