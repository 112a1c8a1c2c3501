package buffer

import (
	"testing"

	"github.com/ryogrid/sharkfin/internal/disk"
	"github.com/ryogrid/sharkfin/internal/recovery"
)

func newTestPool(t *testing.T, poolSize int) (*Manager, *recovery.LogManager) {
	t.Helper()
	dm := disk.NewVirtualManager()
	lm := recovery.NewLogManager(dm)
	lm.RunFlushThread()
	t.Cleanup(lm.StopFlushThread)
	return NewManager(poolSize, dm, lm), lm
}

func TestNewPageFetchRoundTrip(t *testing.T) {
	pool, _ := newTestPool(t, 4)

	p := pool.NewPage()
	if p == nil {
		t.Fatal("NewPage returned nil")
	}
	id := p.ID()
	copy(p.Data(), []byte("hello"))
	pool.UnpinPage(id, true)

	if !pool.FlushPage(id) {
		t.Fatal("FlushPage should succeed")
	}

	fetched := pool.FetchPage(id)
	if fetched == nil {
		t.Fatal("FetchPage returned nil")
	}
	if string(fetched.Data()[:5]) != "hello" {
		t.Fatalf("Data() = %q, want %q", fetched.Data()[:5], "hello")
	}
	pool.UnpinPage(id, false)
}

func TestEvictionWritesBackDirtyPage(t *testing.T) {
	pool, _ := newTestPool(t, 2)

	p0 := pool.NewPage()
	id0 := p0.ID()
	copy(p0.Data(), []byte("page0"))
	pool.UnpinPage(id0, true)

	p1 := pool.NewPage()
	id1 := p1.ID()
	pool.UnpinPage(id1, false)

	// A third page forces an eviction since the pool only has 2 frames and
	// both existing pages are unpinned.
	p2 := pool.NewPage()
	id2 := p2.ID()
	pool.UnpinPage(id2, false)

	refetched := pool.FetchPage(id0)
	if string(refetched.Data()[:5]) != "page0" {
		t.Fatalf("evicted dirty page did not survive round trip, got %q", refetched.Data()[:5])
	}
	pool.UnpinPage(id0, false)
}

func TestDeletePageFailsWhilePinned(t *testing.T) {
	pool, _ := newTestPool(t, 4)

	p := pool.NewPage()
	id := p.ID()

	if pool.DeletePage(id) {
		t.Fatal("DeletePage should fail while the page is still pinned")
	}
	pool.UnpinPage(id, false)
	if !pool.DeletePage(id) {
		t.Fatal("DeletePage should succeed once unpinned")
	}
}

func TestFetchPageAfterFlushReturnsSamePage(t *testing.T) {
	pool, _ := newTestPool(t, 4)
	p := pool.NewPage()
	id := p.ID()
	pool.UnpinPage(id, true)
	pool.FlushPage(id)

	again := pool.FetchPage(id)
	if again.ID() != id {
		t.Fatalf("FetchPage id = %d, want %d", again.ID(), id)
	}
	pool.UnpinPage(id, false)
}
