package btree

import (
	"github.com/ryogrid/sharkfin/internal/page"
	"github.com/ryogrid/sharkfin/internal/types"
)

// Iterator walks leaf entries in ascending key order by following
// next_leaf_pid links, read-latching one leaf at a time.
type Iterator struct {
	t    *Tree
	page leafHandle
	idx  int
	done bool
}

type leafHandle struct {
	id types.PageID
}

// Begin returns an iterator positioned at the tree's first entry.
func (t *Tree) Begin() *Iterator {
	if t.IsEmpty() {
		return &Iterator{t: t, done: true}
	}
	leaf := t.leftmostLeafShared()
	it := &Iterator{t: t, page: leafHandle{id: leaf.ID()}, idx: 0}
	if asLeaf(leaf).size() == 0 {
		it.done = true
	}
	leaf.RUnlatch()
	t.pool.UnpinPage(leaf.ID(), false)
	return it
}

// BeginAt returns an iterator positioned at the first entry with key >= k.
func (t *Tree) BeginAt(k Key) *Iterator {
	if t.IsEmpty() {
		return &Iterator{t: t, done: true}
	}
	leaf := t.findLeafShared(k)
	lv := asLeaf(leaf)
	idx := lv.find(k)
	it := &Iterator{t: t, page: leafHandle{id: leaf.ID()}, idx: idx}
	for idx >= lv.size() {
		next := lv.nextLeaf()
		leaf.RUnlatch()
		t.pool.UnpinPage(leaf.ID(), false)
		if next == types.InvalidPageID {
			it.done = true
			return it
		}
		leaf = t.pool.FetchPage(next)
		leaf.RLatch()
		lv = asLeaf(leaf)
		it.page = leafHandle{id: leaf.ID()}
		idx = 0
	}
	it.idx = idx
	leaf.RUnlatch()
	t.pool.UnpinPage(leaf.ID(), false)
	return it
}

func (t *Tree) leftmostLeafShared() *page.Page {
	cur := t.pool.FetchPage(t.root())
	cur.RLatch()
	for cur.PageType() == page.InternalPageType {
		iv := asInternal(cur)
		child := t.pool.FetchPage(iv.childAt(0))
		child.RLatch()
		cur.RUnlatch()
		t.pool.UnpinPage(cur.ID(), false)
		cur = child
	}
	return cur
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool { return !it.done }

// Next returns the current (key, rid) and advances, fetching the next
// leaf in the chain as needed. It returns false once exhausted.
func (it *Iterator) Next() (Key, types.RID, bool) {
	if it.done {
		return 0, types.RID{}, false
	}

	leaf := it.t.pool.FetchPage(it.page.id)
	leaf.RLatch()
	lv := asLeaf(leaf)

	for it.idx >= lv.size() {
		next := lv.nextLeaf()
		leaf.RUnlatch()
		it.t.pool.UnpinPage(leaf.ID(), false)
		if next == types.InvalidPageID {
			it.done = true
			return 0, types.RID{}, false
		}
		it.page = leafHandle{id: next}
		it.idx = 0
		leaf = it.t.pool.FetchPage(next)
		leaf.RLatch()
		lv = asLeaf(leaf)
	}

	k, rid := lv.keyAt(it.idx), lv.ridAt(it.idx)
	it.idx++
	leaf.RUnlatch()
	it.t.pool.UnpinPage(leaf.ID(), false)
	return k, rid, true
}
