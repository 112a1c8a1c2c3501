// Package btree implements the concurrent B+tree index described in
// spec.md §4.6: a root-to-leaf descent that latch-crabs its way down,
// releasing an ancestor's latch once its child is proven "safe" (an insert
// into a child that won't overflow, or a delete from a child that won't
// underflow), with structural changes (split, merge, redistribute)
// confined to the ancestors still held.
package btree

import (
	"encoding/binary"
	"math"

	"github.com/ryogrid/sharkfin/internal/common"
	"github.com/ryogrid/sharkfin/internal/page"
	"github.com/ryogrid/sharkfin/internal/types"
)

// Key is the index's sort key. Tuple-to-Key extraction belongs to the
// table-heap/catalog external collaborator named in spec.md §1; the index
// itself only ever compares and stores Keys.
type Key int64

const (
	leafEntrySize     = 8 + types.SizeOfRID // key + RID
	internalEntrySize = 8 + 4               // key + child page id

	leafDataSize     = common.PageSize - page.HeaderSize - 4 // minus next_leaf_pid
	internalDataSize = common.PageSize - page.HeaderSize     // entry 0 holds the leftmost pointer behind a sentinel key

	leafMaxSize     = leafDataSize / leafEntrySize
	internalMaxSize = internalDataSize/internalEntrySize - 1 // one spare entry holds the overflow child before a split
)

// leafView reads and writes a leaf page's entries. Index 0..size-1 holds
// (key, rid) pairs in ascending key order.
type leafView struct{ p *page.Page }

func asLeaf(p *page.Page) leafView {
	return leafView{p: p}
}

func initLeaf(p *page.Page, parent types.PageID) leafView {
	p.SetPageType(page.LeafPageType)
	p.SetSize(0)
	p.SetMaxSize(leafMaxSize)
	p.SetParentPageID(parent)
	p.SetHeaderPageID(p.ID())
	p.SetNextLeafPageID(types.InvalidPageID)
	return leafView{p: p}
}

func (l leafView) size() int       { return int(l.p.Size()) }
func (l leafView) maxSize() int    { return leafMaxSize }
func (l leafView) isFull() bool    { return l.size() >= l.maxSize() }

// minSize is the floor of half capacity: splitting a node holding exactly
// maxSize entries always leaves both halves at or above this, which a
// ceil-based minimum cannot guarantee for odd maxSize.
func (l leafView) minSize() int { return l.maxSize() / 2 }
func (l leafView) nextLeaf() types.PageID { return l.p.NextLeafPageID() }
func (l leafView) setNextLeaf(id types.PageID) { l.p.SetNextLeafPageID(id) }

func (l leafView) entryOffset(i int) int {
	return page.OffsetNextLeafPID + 4 + i*leafEntrySize
}

func (l leafView) keyAt(i int) Key {
	off := l.entryOffset(i)
	return Key(int64(binary.LittleEndian.Uint64(l.p.Data()[off:])))
}

func (l leafView) ridAt(i int) types.RID {
	off := l.entryOffset(i) + 8
	return types.NewRIDFromBytes(l.p.Data()[off:])
}

func (l leafView) setEntry(i int, k Key, rid types.RID) {
	off := l.entryOffset(i)
	binary.LittleEndian.PutUint64(l.p.Data()[off:], uint64(k))
	copy(l.p.Data()[off+8:], rid.Serialize())
}

// find returns the index of the first entry with key >= k (lower bound).
func (l leafView) find(k Key) int {
	lo, hi := 0, l.size()
	for lo < hi {
		mid := (lo + hi) / 2
		if l.keyAt(mid) < k {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// insertAt shifts entries right to make room at i.
func (l leafView) insertAt(i int, k Key, rid types.RID) {
	n := l.size()
	for j := n; j > i; j-- {
		prevOff := l.entryOffset(j - 1)
		curOff := l.entryOffset(j)
		copy(l.p.Data()[curOff:curOff+leafEntrySize], l.p.Data()[prevOff:prevOff+leafEntrySize])
	}
	l.setEntry(i, k, rid)
	l.p.SetSize(int16(n + 1))
}

func (l leafView) removeAt(i int) {
	n := l.size()
	for j := i; j < n-1; j++ {
		nextOff := l.entryOffset(j + 1)
		curOff := l.entryOffset(j)
		copy(l.p.Data()[curOff:curOff+leafEntrySize], l.p.Data()[nextOff:nextOff+leafEntrySize])
	}
	l.p.SetSize(int16(n - 1))
}

// moveHalfTo copies this leaf's second half into sibling (a fresh leaf),
// for a split.
func (l leafView) moveHalfTo(sibling leafView) {
	n := l.size()
	start := n / 2
	for i := start; i < n; i++ {
		sibling.insertAt(sibling.size(), l.keyAt(i), l.ridAt(i))
	}
	l.p.SetSize(int16(start))
}

// moveAllTo appends all of this leaf's entries onto sibling, for a merge.
func (l leafView) moveAllTo(sibling leafView) {
	for i := 0; i < l.size(); i++ {
		sibling.insertAt(sibling.size(), l.keyAt(i), l.ridAt(i))
	}
	l.p.SetSize(0)
}

// internalView reads and writes an internal page. It holds size+1
// children: children[0..size-1] precede key[i] is confusingly indexed, so
// the convention here is pointers[0] is the leftmost child and, for
// i in [1, size], key[i]/pointers[i] route to the child holding keys >=
// key[i]. Index 0's key field is an unused sentinel.
type internalView struct{ p *page.Page }

func asInternal(p *page.Page) internalView { return internalView{p: p} }

func initInternal(p *page.Page, parent types.PageID) internalView {
	p.SetPageType(page.InternalPageType)
	p.SetSize(0)
	p.SetMaxSize(internalMaxSize)
	p.SetParentPageID(parent)
	p.SetHeaderPageID(p.ID())
	return internalView{p: p}
}

func (n internalView) size() int    { return int(n.p.Size()) } // number of keys; children = size+1
func (n internalView) maxSize() int { return internalMaxSize }
func (n internalView) isFull() bool { return n.size()+1 > n.maxSize() }
func (n internalView) minSize() int { return n.maxSize() / 2 }

func (n internalView) entryOffset(i int) int {
	return page.HeaderSize + i*internalEntrySize
}

func (n internalView) keyAt(i int) Key {
	off := n.entryOffset(i)
	return Key(int64(binary.LittleEndian.Uint64(n.p.Data()[off:])))
}

func (n internalView) childAt(i int) types.PageID {
	off := n.entryOffset(i) + 8
	return types.PageID(int32(binary.LittleEndian.Uint32(n.p.Data()[off:])))
}

func (n internalView) setEntry(i int, k Key, child types.PageID) {
	off := n.entryOffset(i)
	binary.LittleEndian.PutUint64(n.p.Data()[off:], uint64(k))
	binary.LittleEndian.PutUint32(n.p.Data()[off+8:], uint32(child))
}

// setOnlyChild initializes a brand-new root with a single child and no keys.
func (n internalView) setOnlyChild(child types.PageID) {
	n.setEntry(0, Key(math.MinInt64), child)
	n.p.SetSize(0)
}

// childIndexFor returns the index of the child pointer to descend into for
// key k.
func (n internalView) childIndexFor(k Key) int {
	lo, hi := 1, n.size()+1
	for lo < hi {
		mid := (lo + hi) / 2
		if n.keyAt(mid) <= k {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

func (n internalView) indexOfChild(child types.PageID) int {
	for i := 0; i <= n.size(); i++ {
		if n.childAt(i) == child {
			return i
		}
	}
	return -1
}

// insertAfter inserts (k, child) immediately after the pointer at index i,
// shifting everything from i+1 on rightward.
func (n internalView) insertAfter(i int, k Key, child types.PageID) {
	size := n.size()
	for j := size; j > i; j-- {
		srcOff := n.entryOffset(j)
		dstOff := n.entryOffset(j + 1)
		copy(n.p.Data()[dstOff:dstOff+internalEntrySize], n.p.Data()[srcOff:srcOff+internalEntrySize])
	}
	n.setEntry(i+1, k, child)
	n.p.SetSize(int16(size + 1))
}

// prependChild inserts newLeftmost as the new child at index 0, pushing
// the old leftmost child to index 1 routed by sep (the separator key
// donated by the parent), for a left-sibling borrow.
func (n internalView) prependChild(sep Key, newLeftmost types.PageID) {
	size := n.size()
	oldLeftmost := n.childAt(0)
	for j := size; j >= 1; j-- {
		srcOff := n.entryOffset(j)
		dstOff := n.entryOffset(j + 1)
		copy(n.p.Data()[dstOff:dstOff+internalEntrySize], n.p.Data()[srcOff:srcOff+internalEntrySize])
	}
	n.setEntry(1, sep, oldLeftmost)
	n.setEntry(0, Key(math.MinInt64), newLeftmost)
	n.p.SetSize(int16(size + 1))
}

func (n internalView) removeAt(i int) {
	size := n.size()
	for j := i; j < size; j++ {
		srcOff := n.entryOffset(j + 1)
		dstOff := n.entryOffset(j)
		copy(n.p.Data()[dstOff:dstOff+internalEntrySize], n.p.Data()[srcOff:srcOff+internalEntrySize])
	}
	n.p.SetSize(int16(size - 1))
}

// moveHalfTo copies this node's second half (by pointer count) into
// sibling (a fresh internal node), for a split. The caller is responsible
// for reparenting the moved children.
func (n internalView) moveHalfTo(sibling internalView) (firstMovedKey Key) {
	total := n.size() + 1 // pointer count
	start := total / 2

	firstMovedKey = n.keyAt(start)
	sibling.setEntry(0, Key(math.MinInt64), n.childAt(start))
	for i := start + 1; i <= n.size(); i++ {
		sibling.insertAfter(sibling.size(), n.keyAt(i), n.childAt(i))
	}
	n.p.SetSize(int16(start - 1))
	return firstMovedKey
}

// moveAllTo appends all of this node's pointers onto sibling with
// separatorKey routing to this node's former leftmost child, for a merge.
func (n internalView) moveAllTo(sibling internalView, separatorKey Key) {
	sibling.insertAfter(sibling.size(), separatorKey, n.childAt(0))
	for i := 1; i <= n.size(); i++ {
		sibling.insertAfter(sibling.size(), n.keyAt(i), n.childAt(i))
	}
	n.p.SetSize(0)
}
