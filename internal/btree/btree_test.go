package btree

import (
	"sync"
	"testing"

	"github.com/ryogrid/sharkfin/internal/buffer"
	"github.com/ryogrid/sharkfin/internal/common"
	"github.com/ryogrid/sharkfin/internal/disk"
	"github.com/ryogrid/sharkfin/internal/page"
	"github.com/ryogrid/sharkfin/internal/recovery"
	"github.com/ryogrid/sharkfin/internal/types"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	dm := disk.NewVirtualManager()
	lm := recovery.NewLogManager(dm)
	lm.RunFlushThread()
	t.Cleanup(lm.StopFlushThread)
	pool := buffer.NewManager(common.BufferPoolSize, dm, lm)

	header := pool.NewPage()
	headerID := header.ID()
	pool.UnpinPage(headerID, true)
	InitHeaderPage(pool, headerID)

	return New(pool, headerID)
}

func TestInsertAndGet(t *testing.T) {
	tr := newTestTree(t)

	for i := Key(0); i < 50; i++ {
		if !tr.Insert(i, types.NewRID(types.PageID(i), 0)) {
			t.Fatalf("Insert(%d) failed", i)
		}
	}

	for i := Key(0); i < 50; i++ {
		rid, ok := tr.Get(i)
		if !ok {
			t.Fatalf("Get(%d) missing", i)
		}
		if rid.PageID != types.PageID(i) {
			t.Fatalf("Get(%d) = %+v, want PageID %d", i, rid, i)
		}
	}

	if _, ok := tr.Get(999); ok {
		t.Fatal("Get(999) should miss")
	}
}

func TestInsertRejectsDuplicateKey(t *testing.T) {
	tr := newTestTree(t)
	tr.Insert(1, types.NewRID(1, 0))
	if tr.Insert(1, types.NewRID(2, 0)) {
		t.Fatal("Insert should reject a duplicate key")
	}
}

func TestIteratorWalksInOrder(t *testing.T) {
	tr := newTestTree(t)
	for i := Key(20); i > 0; i-- {
		tr.Insert(i, types.NewRID(types.PageID(i), 0))
	}

	it := tr.Begin()
	var prev Key = -1
	count := 0
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		if k <= prev {
			t.Fatalf("iterator out of order: %d after %d", k, prev)
		}
		prev = k
		count++
	}
	if count != 20 {
		t.Fatalf("iterated %d entries, want 20", count)
	}
}

// TestConcurrentSplitAcrossGoroutines is spec.md §8's "Concurrent split"
// scenario: two goroutines insert the 1..999 range partitioned by key mod 2,
// driving splits under latch-crabbing from both sides at once. After join,
// every key must be present exactly once and invariants 2-4 must hold.
func TestConcurrentSplitAcrossGoroutines(t *testing.T) {
	tr := newTestTree(t)

	var wg sync.WaitGroup
	insertEvery2 := func(start Key) {
		defer wg.Done()
		for k := start; k <= 999; k += 2 {
			if !tr.Insert(k, types.NewRID(types.PageID(k), 0)) {
				t.Errorf("Insert(%d) failed", k)
			}
		}
	}
	wg.Add(2)
	go insertEvery2(1)
	go insertEvery2(2)
	wg.Wait()

	for k := Key(1); k <= 999; k++ {
		rid, ok := tr.Get(k)
		if !ok {
			t.Fatalf("Get(%d) missing after concurrent insert", k)
		}
		if rid.PageID != types.PageID(k) {
			t.Fatalf("Get(%d) = %+v, want PageID %d", k, rid, k)
		}
	}

	verifyStructuralInvariants(t, tr)
}

// verifyStructuralInvariants walks every page reachable from the root and
// checks spec.md §8 invariants 2-4: every non-root node's occupancy sits
// within [minSize, maxSize], and keys are strictly increasing within both
// internal nodes and the leaf chain.
func verifyStructuralInvariants(t *testing.T, tr *Tree) {
	t.Helper()

	root := tr.pool.FetchPage(tr.root())
	root.RLatch()
	checkNodeInvariants(t, tr, root, true)
	root.RUnlatch()
	tr.pool.UnpinPage(root.ID(), false)

	it := tr.Begin()
	var prev Key = -1
	first := true
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		if !first && k <= prev {
			t.Fatalf("leaf chain out of order: %d after %d", k, prev)
		}
		prev, first = k, false
	}
}

func checkNodeInvariants(t *testing.T, tr *Tree, p *page.Page, isRoot bool) {
	t.Helper()

	if p.PageType() == page.LeafPageType {
		lv := asLeaf(p)
		if !isRoot && (lv.size() < lv.minSize() || lv.size() > lv.maxSize()) {
			t.Errorf("leaf %d size %d out of bounds [%d,%d]", p.ID(), lv.size(), lv.minSize(), lv.maxSize())
		}
		for i := 1; i < lv.size(); i++ {
			if lv.keyAt(i-1) >= lv.keyAt(i) {
				t.Errorf("leaf %d keys not strictly increasing at index %d", p.ID(), i)
			}
		}
		return
	}

	iv := asInternal(p)
	if isRoot {
		if iv.size()+1 < 2 {
			t.Errorf("root internal node %d has fewer than 2 children", p.ID())
		}
	} else if iv.size() < iv.minSize() || iv.size() > iv.maxSize() {
		t.Errorf("internal node %d size %d out of bounds [%d,%d]", p.ID(), iv.size(), iv.minSize(), iv.maxSize())
	}
	for i := 2; i <= iv.size(); i++ {
		if iv.keyAt(i-1) >= iv.keyAt(i) {
			t.Errorf("internal node %d keys not strictly increasing at index %d", p.ID(), i)
		}
	}

	for i := 0; i <= iv.size(); i++ {
		child := tr.pool.FetchPage(iv.childAt(i))
		child.RLatch()
		checkNodeInvariants(t, tr, child, false)
		child.RUnlatch()
		tr.pool.UnpinPage(child.ID(), false)
	}
}

func TestRemove(t *testing.T) {
	tr := newTestTree(t)
	for i := Key(0); i < 30; i++ {
		tr.Insert(i, types.NewRID(types.PageID(i), 0))
	}

	for i := Key(0); i < 30; i += 2 {
		if !tr.Remove(i) {
			t.Fatalf("Remove(%d) failed", i)
		}
	}

	for i := Key(0); i < 30; i++ {
		_, ok := tr.Get(i)
		wantOK := i%2 == 1
		if ok != wantOK {
			t.Fatalf("Get(%d) ok = %v, want %v", i, ok, wantOK)
		}
	}
}
