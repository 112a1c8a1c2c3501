package btree

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/ryogrid/sharkfin/internal/buffer"
	"github.com/ryogrid/sharkfin/internal/page"
	"github.com/ryogrid/sharkfin/internal/types"
)

// Compare orders two keys, mirroring spec.md's key-comparator collaborator.
type Compare func(a, b Key) int

func defaultCompare(a, b Key) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Tree is a concurrent, disk-resident B+tree index (spec.md §4.6). The
// root page id is cached in memory and mirrored into headerPageID's first
// four bytes so a restart can find the root again.
type Tree struct {
	pool       *buffer.Manager
	headerPID  types.PageID
	cmp        Compare
	rootMu     sync.Mutex // serialises the very first insert (creating the root); a root split or collapse happens under the old root's write latch
	rootPageID int32       // atomic; types.InvalidPageID when empty
}

// New opens (or, if headerPID's root slot is InvalidPageID, prepares to
// lazily create) a tree rooted via the pointer stored at headerPID.
func New(pool *buffer.Manager, headerPID types.PageID) *Tree {
	t := &Tree{pool: pool, headerPID: headerPID, cmp: defaultCompare}
	t.rootPageID = int32(t.loadRootFromHeader())
	return t
}

// InitHeaderPage stamps a freshly allocated page as an empty root slot
// (InvalidPageID). Callers must do this exactly once, right after
// allocating the page that will back a brand-new tree's header.
func InitHeaderPage(pool *buffer.Manager, headerPID types.PageID) {
	hp := pool.FetchPage(headerPID)
	hp.WLatch()
	invalid := types.InvalidPageID
	binary.LittleEndian.PutUint32(hp.Data(), uint32(invalid))
	hp.WUnlatch()
	pool.UnpinPage(headerPID, true)
}

func (t *Tree) loadRootFromHeader() types.PageID {
	hp := t.pool.FetchPage(t.headerPID)
	if hp == nil {
		return types.InvalidPageID
	}
	hp.RLatch()
	id := types.PageID(int32(binary.LittleEndian.Uint32(hp.Data())))
	hp.RUnlatch()
	t.pool.UnpinPage(t.headerPID, false)
	return id
}

func (t *Tree) persistRoot(id types.PageID) {
	hp := t.pool.FetchPage(t.headerPID)
	hp.WLatch()
	binary.LittleEndian.PutUint32(hp.Data(), uint32(id))
	hp.WUnlatch()
	t.pool.UnpinPage(t.headerPID, true)
}

func (t *Tree) root() types.PageID      { return types.PageID(atomic.LoadInt32(&t.rootPageID)) }
func (t *Tree) setRoot(id types.PageID) { atomic.StoreInt32(&t.rootPageID, int32(id)); t.persistRoot(id) }

// IsEmpty reports whether the tree has no root yet.
func (t *Tree) IsEmpty() bool { return t.root() == types.InvalidPageID }

// Get returns the RID stored for k, if present.
func (t *Tree) Get(k Key) (types.RID, bool) {
	if t.IsEmpty() {
		return types.RID{}, false
	}

	leaf := t.findLeafShared(k)
	defer t.unlatchAndUnpin(leaf, false, false)

	view := asLeaf(leaf)
	i := view.find(k)
	if i < view.size() && view.keyAt(i) == k {
		return view.ridAt(i), true
	}
	return types.RID{}, false
}

// findLeafShared descends latch-crabbing with read latches, always safe
// since nothing it passes through is ever mutated.
func (t *Tree) findLeafShared(k Key) *page.Page {
	cur := t.pool.FetchPage(t.root())
	cur.RLatch()
	for cur.PageType() == page.InternalPageType {
		in := asInternal(cur)
		idx := in.childIndexFor(k)
		childID := in.childAt(idx)
		child := t.pool.FetchPage(childID)
		child.RLatch()
		cur.RUnlatch()
		t.pool.UnpinPage(cur.ID(), false)
		cur = child
	}
	return cur
}

func (t *Tree) unlatchAndUnpin(p *page.Page, write, dirty bool) {
	if write {
		p.WUnlatch()
	} else {
		p.RUnlatch()
	}
	t.pool.UnpinPage(p.ID(), dirty)
}

// Insert adds (k, rid) to the tree, creating the root on the first call.
func (t *Tree) Insert(k Key, rid types.RID) bool {
	t.rootMu.Lock()
	if t.IsEmpty() {
		root := t.pool.NewPage()
		lv := initLeaf(root, types.InvalidPageID)
		lv.insertAt(0, k, rid)
		t.setRoot(root.ID())
		t.pool.UnpinPage(root.ID(), true)
		t.rootMu.Unlock()
		return true
	}
	t.rootMu.Unlock()

	path := t.descendExclusive(k, func(p *page.Page) bool {
		// A node is safe to pass through (ancestors can be released) for
		// insert when it has room for one more entry without splitting.
		if p.PageType() == page.LeafPageType {
			lv := asLeaf(p)
			return lv.size()+1 < lv.maxSize()
		}
		iv := asInternal(p)
		return iv.size()+2 <= iv.maxSize()
	})
	defer t.releasePath(path, true)

	leaf := path[len(path)-1]
	lv := asLeaf(leaf)
	i := lv.find(k)
	if i < lv.size() && lv.keyAt(i) == k {
		return false // duplicate key
	}
	lv.insertAt(i, k, rid)
	leaf.SetDirty(true)

	if !lv.isFull() {
		return true
	}
	t.splitLeaf(path)
	return true
}

// descendExclusive root-to-leaf latch-crabs with write latches, releasing
// every ancestor once the newly-latched child is safe per isSafe. It
// returns the full surviving path (root-ward ancestors that were NOT
// released, followed by the leaf), which is always at least length 1.
func (t *Tree) descendExclusive(k Key, isSafe func(*page.Page) bool) []*page.Page {
	var path []*page.Page
	var cur *page.Page
	for {
		// The root only changes under its own write latch, so once latched
		// it is still the root iff the cached id has not moved on.
		rootID := t.root()
		cur = t.pool.FetchPage(rootID)
		cur.WLatch()
		if rootID == t.root() {
			break
		}
		cur.WUnlatch()
		t.pool.UnpinPage(rootID, false)
	}
	path = append(path, cur)

	for cur.PageType() == page.InternalPageType {
		in := asInternal(cur)
		idx := in.childIndexFor(k)
		childID := in.childAt(idx)
		child := t.pool.FetchPage(childID)
		child.WLatch()

		if isSafe(child) {
			t.releasePath(path, false)
			path = path[:0]
		}
		path = append(path, child)
		cur = child
	}
	return path
}

// releasePath unlatches and unpins every page in path. markDirty dirties
// only the leaf (the last entry); ancestors are only ever dirtied by the
// split/merge helpers directly.
func (t *Tree) releasePath(path []*page.Page, markDirty bool) {
	for i, p := range path {
		dirty := markDirty && i == len(path)-1
		p.WUnlatch()
		t.pool.UnpinPage(p.ID(), dirty || p.IsDirty())
	}
}

// splitLeaf splits an overflowing leaf (the tail of path) and propagates
// the new separator key up through path's ancestors, growing the tree by
// one level if path has no ancestor left (i.e. the leaf was the root).
func (t *Tree) splitLeaf(path []*page.Page) {
	leaf := path[len(path)-1]
	lv := asLeaf(leaf)

	sibling := t.pool.NewPage()
	sv := initLeaf(sibling, leaf.ParentPageID())
	lv.moveHalfTo(sv)
	sv.setNextLeaf(lv.nextLeaf())
	lv.setNextLeaf(sibling.ID())
	sibling.SetDirty(true)

	separator := sv.keyAt(0)
	t.insertIntoParent(path[:len(path)-1], leaf, sibling.ID(), separator)
	t.pool.UnpinPage(sibling.ID(), true)
}

// insertIntoParent inserts (separator, newChild) into ancestors' tail
// (the parent of leftChild), growing a new root if ancestors is empty.
// newChild is not yet latched by the caller; ancestors are already
// write-latched and will be released by the caller's deferred
// releasePath.
func (t *Tree) insertIntoParent(ancestors []*page.Page, leftChild *page.Page, newChild types.PageID, separator Key) {
	if len(ancestors) == 0 {
		// leftChild was the root; grow the tree by one level.
		newRoot := t.pool.NewPage()
		rv := initInternal(newRoot, types.InvalidPageID)
		rv.setOnlyChild(leftChild.ID())
		rv.insertAfter(0, separator, newChild)
		leftChild.SetParentPageID(newRoot.ID())
		t.setParentOf(newChild, newRoot.ID())
		t.setRoot(newRoot.ID())
		newRoot.SetDirty(true)
		t.pool.UnpinPage(newRoot.ID(), true)
		return
	}

	parent := ancestors[len(ancestors)-1]
	pv := asInternal(parent)
	idx := pv.indexOfChild(leftChild.ID())
	pv.insertAfter(idx, separator, newChild)
	t.setParentOf(newChild, parent.ID())
	parent.SetDirty(true)

	if !pv.isFull() {
		return
	}
	t.splitInternal(ancestors)
}

// splitInternal splits an overflowing internal node (the tail of
// ancestors) and propagates upward exactly as splitLeaf does for leaves.
func (t *Tree) splitInternal(ancestors []*page.Page) {
	node := ancestors[len(ancestors)-1]
	nv := asInternal(node)

	sibling := t.pool.NewPage()
	sv := initInternal(sibling, node.ParentPageID())
	separator := nv.moveHalfTo(sv)
	sibling.SetDirty(true)

	for i := 0; i <= sv.size(); i++ {
		t.setParentOf(sv.childAt(i), sibling.ID())
	}

	t.insertIntoParent(ancestors[:len(ancestors)-1], node, sibling.ID(), separator)
	t.pool.UnpinPage(sibling.ID(), true)
}

func (t *Tree) setParentOf(childID types.PageID, parentID types.PageID) {
	child := t.pool.FetchPage(childID)
	child.WLatch()
	child.SetParentPageID(parentID)
	child.WUnlatch()
	t.pool.UnpinPage(childID, true)
}

// Remove deletes k from the tree, rebalancing (redistribute, else
// coalesce) any node left under-full, per spec.md §4.6.
func (t *Tree) Remove(k Key) bool {
	if t.IsEmpty() {
		return false
	}

	path := t.descendExclusive(k, func(p *page.Page) bool {
		// Safe for delete when removing one entry still leaves the node
		// at or above its minimum occupancy (root is exempt: it may shrink
		// to a single child without underflowing).
		if p.PageType() == page.LeafPageType {
			lv := asLeaf(p)
			return lv.size() > lv.minSize() || p.ParentPageID() == types.InvalidPageID
		}
		iv := asInternal(p)
		return iv.size() > iv.minSize() || p.ParentPageID() == types.InvalidPageID
	})
	defer t.releasePath(path, true)

	leaf := path[len(path)-1]
	lv := asLeaf(leaf)
	i := lv.find(k)
	if i >= lv.size() || lv.keyAt(i) != k {
		return false
	}
	lv.removeAt(i)
	leaf.SetDirty(true)

	if len(path) == 1 {
		if lv.size() == 0 {
			t.setRoot(types.InvalidPageID)
			t.pool.DeletePage(leaf.ID())
		}
		return true
	}

	if lv.size() >= lv.minSize() {
		return true
	}
	t.rebalanceLeaf(path)
	return true
}

// rebalanceLeaf redistributes from one sibling (the right one, or the left
// one for the last child) if it has slack, else coalesces with that same
// sibling and recurses up to fix the parent's own
// occupancy (spec.md §4.6's coalesce-or-redistribute step).
func (t *Tree) rebalanceLeaf(path []*page.Page) {
	leaf := path[len(path)-1]
	parent := path[len(path)-2]
	lv := asLeaf(leaf)
	pv := asInternal(parent)

	idx := pv.indexOfChild(leaf.ID())

	if idx < pv.size() {
		// Right sibling is preferred for redistribution; left sibling is
		// used only when the node is the last child (spec.md §4.6).
		rightID := pv.childAt(idx + 1)
		right := t.pool.FetchPage(rightID)
		right.WLatch()
		rlv := asLeaf(right)
		if rlv.size() > rlv.minSize() {
			k, rid := rlv.keyAt(0), rlv.ridAt(0)
			rlv.removeAt(0)
			lv.insertAt(lv.size(), k, rid)
			pv.setEntry(idx+1, rlv.keyAt(0), rightID)
			right.SetDirty(true)
			parent.SetDirty(true)
			right.WUnlatch()
			t.pool.UnpinPage(rightID, true)
			return
		}
		// Coalesce right into leaf.
		rlv.moveAllTo(lv)
		lv.setNextLeaf(rlv.nextLeaf())
		right.WUnlatch()
		t.pool.UnpinPage(rightID, true)
		pv.removeAt(idx + 1)
		parent.SetDirty(true)
		t.pool.DeletePage(rightID)
		t.rebalanceInternalIfNeeded(path[:len(path)-1])
		return
	}

	leftID := pv.childAt(idx - 1)
	left := t.pool.FetchPage(leftID)
	left.WLatch()
	llv := asLeaf(left)
	if llv.size() > llv.minSize() {
		// Borrow the left sibling's last entry.
		n := llv.size() - 1
		k, rid := llv.keyAt(n), llv.ridAt(n)
		llv.removeAt(n)
		lv.insertAt(0, k, rid)
		pv.setEntry(idx, k, leaf.ID())
		left.SetDirty(true)
		parent.SetDirty(true)
		left.WUnlatch()
		t.pool.UnpinPage(leftID, true)
		return
	}
	// Coalesce leaf into left.
	lv.moveAllTo(llv)
	llv.setNextLeaf(lv.nextLeaf())
	left.WUnlatch()
	t.pool.UnpinPage(leftID, true)
	pv.removeAt(idx)
	parent.SetDirty(true)
	t.pool.DeletePage(leaf.ID())
	t.rebalanceInternalIfNeeded(path[:len(path)-1])
}

// rebalanceInternalIfNeeded checks whether the tail of path (an internal
// node whose child count just shrank) is still at or above its minimum,
// collapsing the root or recursing up through redistribute/coalesce if
// not.
func (t *Tree) rebalanceInternalIfNeeded(path []*page.Page) {
	node := path[len(path)-1]
	iv := asInternal(node)

	if len(path) == 1 {
		if iv.size() == 0 {
			// Root has a single remaining child; make it the new root.
			onlyChild := iv.childAt(0)
			t.setParentOf(onlyChild, types.InvalidPageID)
			t.setRoot(onlyChild)
			t.pool.DeletePage(node.ID())
		}
		return
	}

	if iv.size() >= iv.minSize() {
		return
	}

	parent := path[len(path)-2]
	pv := asInternal(parent)
	idx := pv.indexOfChild(node.ID())

	if idx < pv.size() {
		// Right sibling is preferred for redistribution; left sibling is
		// used only when the node is the last child (spec.md §4.6).
		rightID := pv.childAt(idx + 1)
		right := t.pool.FetchPage(rightID)
		right.WLatch()
		riv := asInternal(right)
		if riv.size() > riv.minSize() {
			k, child := riv.keyAt(1), riv.childAt(0)
			riv.removeAt(0)
			// riv's old index-0 had sentinel key; after removeAt(0), its former
			// index-1 is now index-0, already in place as the new leftmost.
			iv.insertAfter(iv.size(), pv.keyAt(idx+1), child)
			t.setParentOf(child, node.ID())
			pv.setEntry(idx+1, k, rightID)
			right.SetDirty(true)
			parent.SetDirty(true)
			right.WUnlatch()
			t.pool.UnpinPage(rightID, true)
			return
		}
		separator := pv.keyAt(idx + 1)
		riv.moveAllTo(iv, separator)
		for i := 0; i <= iv.size(); i++ {
			t.setParentOf(iv.childAt(i), node.ID())
		}
		right.WUnlatch()
		t.pool.UnpinPage(rightID, true)
		pv.removeAt(idx + 1)
		parent.SetDirty(true)
		t.pool.DeletePage(rightID)
		t.rebalanceInternalIfNeeded(path[:len(path)-1])
		return
	}

	leftID := pv.childAt(idx - 1)
	left := t.pool.FetchPage(leftID)
	left.WLatch()
	liv := asInternal(left)
	if liv.size() > liv.minSize() {
		n := liv.size()
		k, child := liv.keyAt(n), liv.childAt(n)
		liv.removeAt(n)
		iv.prependChild(pv.keyAt(idx), child)
		t.setParentOf(child, node.ID())
		pv.setEntry(idx, k, node.ID())
		left.SetDirty(true)
		parent.SetDirty(true)
		left.WUnlatch()
		t.pool.UnpinPage(leftID, true)
		return
	}
	separator := pv.keyAt(idx)
	iv.moveAllTo(liv, separator)
	for i := 0; i <= liv.size(); i++ {
		t.setParentOf(liv.childAt(i), leftID)
	}
	left.SetDirty(true)
	left.WUnlatch()
	t.pool.UnpinPage(leftID, true)
	pv.removeAt(idx)
	parent.SetDirty(true)
	t.pool.DeletePage(node.ID())
	t.rebalanceInternalIfNeeded(path[:len(path)-1])
}
