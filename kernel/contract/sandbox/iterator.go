package sandbox

import (
	"github.com/emirpasic/gods/trees/redblacktree"
)

// treeIterator walks the keys of a tree in [start, end). A nil end means
// unbounded.
type treeIterator struct {
	tree  *redblacktree.Tree
	iter  *redblacktree.Iterator
	end   []byte
	first bool
}

func newTreeIterator(tree *redblacktree.Tree, start, end []byte) *treeIterator {
	startNode, ok := tree.Ceiling(start)
	if !ok {
		return new(treeIterator)
	}
	iter := tree.IteratorAt(startNode)
	return &treeIterator{
		tree:  tree,
		iter:  &iter,
		end:   end,
		first: true,
	}
}

func (t *treeIterator) Next() bool {
	if t.iter == nil {
		return false
	}
	if t.first {
		// IteratorAt is already positioned on the start node
		t.first = false
	} else if !t.iter.Next() {
		t.iter = nil
		return false
	}
	if t.end == nil {
		return true
	}
	if compareBytes(t.iter.Key().([]byte), t.end) >= 0 {
		t.iter = nil
		return false
	}
	return true
}

func (t *treeIterator) Key() []byte {
	if t.iter == nil {
		return nil
	}
	return t.iter.Key().([]byte)
}

func (t *treeIterator) Value() interface{} {
	if t.iter == nil {
		return nil
	}
	return t.iter.Value()
}

func (t *treeIterator) Close() {
	t.iter = nil
}
