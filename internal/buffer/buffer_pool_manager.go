package buffer

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ryogrid/sharkfin/internal/common"
	"github.com/ryogrid/sharkfin/internal/disk"
	"github.com/ryogrid/sharkfin/internal/exhash"
	"github.com/ryogrid/sharkfin/internal/page"
	"github.com/ryogrid/sharkfin/internal/recovery"
	"github.com/ryogrid/sharkfin/internal/types"
)

// Manager is the buffer pool: a fixed array of frames fronting the disk
// manager, backed by an extendible-hash page table and a clock replacer
// (spec.md §4.4). A single mutex serializes fetch/unpin/flush/new_page/
// delete_page; callers still must hold a page's own latch before reading
// or writing through Data().
type Manager struct {
	mu sync.Mutex

	disk       disk.Manager
	logManager *recovery.LogManager

	frames     []*page.Page
	pageTable  *exhash.Table[types.PageID, FrameID]
	freeList   []FrameID
	replacer   *ClockReplacer
	dirtyPages mapset.Set[types.PageID]
}

// NewManager constructs a pool of poolSize frames.
func NewManager(poolSize int, d disk.Manager, lm *recovery.LogManager) *Manager {
	frames := make([]*page.Page, poolSize)
	free := make([]FrameID, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = page.NewEmpty(types.InvalidPageID)
		free[i] = FrameID(i)
	}

	return &Manager{
		disk:       d,
		logManager: lm,
		frames:     frames,
		freeList:   free,
		replacer:   NewClockReplacer(uint32(poolSize)),
		dirtyPages: mapset.NewSet[types.PageID](),
		pageTable: exhash.New[types.PageID, FrameID](common.DefaultHashBucketSize, func(pid types.PageID) uint32 {
			return exhash.HashInt32(int32(pid))
		}),
	}
}

// FetchPage pins and returns the page identified by id, reading it from
// disk on a page-table miss. Callers must call UnpinPage exactly once for
// each successful FetchPage.
func (m *Manager) FetchPage(id types.PageID) *page.Page {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fid, ok := m.pageTable.Find(id); ok {
		p := m.frames[fid]
		p.IncPinCount()
		m.replacer.Pin(FrameID(fid))
		return p
	}

	fid, ok := m.victimLocked()
	if !ok {
		return nil
	}

	p := m.frames[fid]
	var buf [common.PageSize]byte
	if err := m.disk.ReadPage(id, buf[:]); err != nil {
		common.SHAssert(false, "read page failed: "+err.Error())
	}
	p.LoadForReuse(id, buf[:])
	m.pageTable.Insert(id, fid)
	return p
}

// NewPage allocates a fresh page id from the disk manager, binds it to a
// free frame, and returns it pinned and dirty (its header is not yet
// written).
func (m *Manager) NewPage() *page.Page {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.victimLocked()
	if !ok {
		return nil
	}

	id := m.disk.AllocatePage()
	p := m.frames[fid]
	p.ResetForReuse(id)
	p.SetDirty(true)
	m.dirtyPages.Add(id)
	m.pageTable.Insert(id, fid)
	return p
}

// pageStoreAdapter adapts Manager to recovery.PageStore: FetchPage's
// concrete *page.Page return doesn't itself satisfy the interface method
// signature, so the adapter narrows it to recovery.RecoverablePage.
type pageStoreAdapter struct{ m *Manager }

func (a pageStoreAdapter) FetchPage(id types.PageID) recovery.RecoverablePage {
	return a.m.FetchPage(id)
}
func (a pageStoreAdapter) NewPageAt(id types.PageID) recovery.RecoverablePage {
	return a.m.NewPageAt(id)
}
func (a pageStoreAdapter) UnpinPage(id types.PageID, isDirty bool) {
	a.m.UnpinPage(id, isDirty)
}

// AsPageStore exposes m as a recovery.PageStore for the redo engine.
func (m *Manager) AsPageStore() recovery.PageStore { return pageStoreAdapter{m: m} }

// NewPageAt binds a frame to a caller-supplied page id, for recovery's
// redo pass (which must reconstruct pages at their original ids rather
// than allocate new ones). It satisfies recovery.PageStore.
func (m *Manager) NewPageAt(id types.PageID) recovery.RecoverablePage {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fid, ok := m.pageTable.Find(id); ok {
		p := m.frames[fid]
		p.IncPinCount()
		m.replacer.Pin(FrameID(fid))
		return p
	}

	fid, ok := m.victimLocked()
	if !ok {
		return nil
	}
	p := m.frames[fid]
	p.ResetForReuse(id)
	m.pageTable.Insert(id, fid)
	return p
}

// victimLocked returns a free or evictable frame id, flushing it first if
// dirty. Callers must hold mu.
func (m *Manager) victimLocked() (FrameID, bool) {
	if n := len(m.freeList); n > 0 {
		fid := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return fid, true
	}

	fid, ok := m.replacer.Victim()
	if !ok {
		return 0, false
	}

	victim := m.frames[fid]
	oldID := victim.ID()
	m.pageTable.Remove(oldID)
	if victim.IsDirty() {
		m.flushLocked(oldID, fid)
	}
	return fid, true
}

// UnpinPage decrements the pin count for id, marking it dirty if isDirty is
// set, and makes it eligible for eviction once the pin count reaches zero.
func (m *Manager) UnpinPage(id types.PageID, isDirty bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable.Find(id)
	if !ok {
		return
	}
	p := m.frames[fid]
	common.SHAssert(p.PinCount() > 0, "unpin of a page whose pin count is already zero")
	if isDirty {
		p.SetDirty(true)
		m.dirtyPages.Add(id)
	}
	p.DecPinCount()
	if p.PinCount() <= 0 {
		m.replacer.Unpin(FrameID(fid))
	}
}

// FlushPage forces id to disk regardless of its dirty flag, honoring the
// write-ahead-log protocol: it first waits for the log manager to make the
// page's LSN durable.
func (m *Manager) FlushPage(id types.PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable.Find(id)
	if !ok {
		return false
	}
	m.flushLocked(id, fid)
	return true
}

func (m *Manager) flushLocked(id types.PageID, fid FrameID) {
	p := m.frames[fid]
	if m.logManager != nil {
		m.logManager.WaitFlushed(p.LSN())
	}
	if err := m.disk.WritePage(id, p.Data()); err != nil {
		common.SHAssert(false, "write page failed: "+err.Error())
	}
	p.MarkClean()
	m.dirtyPages.Remove(id)
}

// FlushAllPages forces every currently dirty page to disk.
func (m *Manager) FlushAllPages() {
	m.mu.Lock()
	ids := m.dirtyPages.ToSlice()
	m.mu.Unlock()

	for _, id := range ids {
		m.FlushPage(id)
	}
}

// DeletePage removes id from the pool, returning it to the disk manager's
// free list. It fails if the page is still pinned.
func (m *Manager) DeletePage(id types.PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable.Find(id)
	if !ok {
		m.disk.DeallocatePage(id)
		return true
	}

	p := m.frames[fid]
	if p.PinCount() > 0 {
		return false
	}

	m.replacer.Pin(FrameID(fid))
	m.pageTable.Remove(id)
	m.dirtyPages.Remove(id)
	m.disk.DeallocatePage(id)
	p.ResetForReuse(types.InvalidPageID)
	m.freeList = append(m.freeList, fid)
	return true
}
