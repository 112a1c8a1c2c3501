package table

import (
	"github.com/ryogrid/sharkfin/internal/buffer"
	"github.com/ryogrid/sharkfin/internal/common"
	"github.com/ryogrid/sharkfin/internal/types"
)

// Heap is a forward-chained sequence of slotted pages. Tuple identity is
// (page id, slot) — exactly types.RID. It implements
// concurrency.TableHeap, the replay surface the transaction manager needs
// on abort.
type Heap struct {
	pool        *buffer.Manager
	firstPageID types.PageID
}

// New creates an empty heap with its first page already allocated.
func New(pool *buffer.Manager) *Heap {
	p := pool.NewPage()
	initHeapPage(p)
	id := p.ID()
	pool.UnpinPage(id, true)
	return &Heap{pool: pool, firstPageID: id}
}

// Open reopens a heap whose first page is already on disk.
func Open(pool *buffer.Manager, firstPageID types.PageID) *Heap {
	return &Heap{pool: pool, firstPageID: firstPageID}
}

// InsertTuple appends data to whichever page in the chain has room,
// allocating a new page at the tail if every existing page is full.
func (h *Heap) InsertTuple(data []byte) (types.RID, bool) {
	pid := h.firstPageID
	for {
		p := h.pool.FetchPage(pid)
		p.WLatch()
		hp := asHeapPage(p)
		if slot, ok := hp.insert(data); ok {
			p.WUnlatch()
			h.pool.UnpinPage(pid, true)
			return types.NewRID(pid, uint32(slot)), true
		}
		next := hp.nextPageID()
		if next == types.InvalidPageID {
			newPage := h.pool.NewPage()
			newPage.WLatch()
			newHp := initHeapPage(newPage)
			hp.setNextPageID(newPage.ID())
			p.WUnlatch()
			h.pool.UnpinPage(pid, true)

			slot, ok := newHp.insert(data)
			newPage.WUnlatch()
			h.pool.UnpinPage(newPage.ID(), true)
			if !ok {
				return types.RID{}, false // data too large for an empty page
			}
			return types.NewRID(newPage.ID(), uint32(slot)), true
		}
		p.WUnlatch()
		h.pool.UnpinPage(pid, false)
		pid = next
	}
}

// InsertTupleAt puts data back into the slot at rid after DeleteTuple
// tombstoned it, used only to undo an aborted delete. Deletion keeps the
// slot's offset and the page never compacts, so the bytes are written back
// at that offset; it fails if data does not fit in the space the slot
// occupied. On a live slot it behaves like UpdateTuple.
func (h *Heap) InsertTupleAt(rid types.RID, data []byte) bool {
	p := h.pool.FetchPage(rid.PageID)
	p.WLatch()
	hp := asHeapPage(p)
	slot := int(rid.Slot)
	ok := hp.update(slot, data)
	if !ok && slot >= 0 && slot < hp.slotCount() {
		offset, size := hp.slotAt(slot)
		// Tuple bytes grow downward, so this slot's space ends where the
		// previous slot's begins.
		end := common.PageSize
		if slot > 0 {
			end, _ = hp.slotAt(slot - 1)
		}
		if size == 0 && offset+len(data) <= end {
			copy(p.Data()[offset:offset+len(data)], data)
			hp.setSlot(slot, offset, len(data))
			ok = true
		}
	}
	p.WUnlatch()
	h.pool.UnpinPage(rid.PageID, true)
	return ok
}

// GetTuple returns the tuple stored at rid.
func (h *Heap) GetTuple(rid types.RID) ([]byte, bool) {
	p := h.pool.FetchPage(rid.PageID)
	p.RLatch()
	hp := asHeapPage(p)
	data, ok := hp.get(int(rid.Slot))
	p.RUnlatch()
	h.pool.UnpinPage(rid.PageID, false)
	return data, ok
}

// UpdateTuple overwrites rid in place; it fails if the new value is
// larger than the slot's current capacity (this page format never
// compacts to grow a slot).
func (h *Heap) UpdateTuple(rid types.RID, data []byte) bool {
	p := h.pool.FetchPage(rid.PageID)
	p.WLatch()
	hp := asHeapPage(p)
	ok := hp.update(int(rid.Slot), data)
	p.WUnlatch()
	h.pool.UnpinPage(rid.PageID, ok)
	return ok
}

// DeleteTuple tombstones rid.
func (h *Heap) DeleteTuple(rid types.RID) bool {
	p := h.pool.FetchPage(rid.PageID)
	p.WLatch()
	hp := asHeapPage(p)
	ok := hp.delete(int(rid.Slot))
	p.WUnlatch()
	h.pool.UnpinPage(rid.PageID, ok)
	return ok
}

// FirstPageID exposes the heap's head, for persisting into a catalog.
func (h *Heap) FirstPageID() types.PageID { return h.firstPageID }
