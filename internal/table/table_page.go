// Package table implements a minimal slotted-page table heap: the
// external collaborator spec.md §1 assumes for tuple storage, whose only
// contract this codebase actually depends on is the write-set replay
// surface the transaction manager needs for abort (SPEC_FULL.md §C).
package table

import (
	"encoding/binary"

	"github.com/ryogrid/sharkfin/internal/common"
	"github.com/ryogrid/sharkfin/internal/page"
	"github.com/ryogrid/sharkfin/internal/types"
)

// Heap page layout, appended after the common 24-byte page header:
//
//	[24:28]  next page id (heap pages chain forward-only)
//	[28:30]  free space pointer (tuple bytes grow downward from PageSize)
//	[30:  ]  slot directory: 4 bytes/slot, (offset uint16, size uint16);
//	         size == 0 marks a tombstoned (deleted) slot.
const (
	offsetNextPageID = page.HeaderSize
	offsetFreeSpace  = offsetNextPageID + 4
	slotDirStart     = offsetFreeSpace + 2
	slotEntrySize    = 4
)

type heapPage struct{ p *page.Page }

func asHeapPage(p *page.Page) heapPage { return heapPage{p: p} }

func initHeapPage(p *page.Page) heapPage {
	p.SetSize(0)
	p.SetHeaderPageID(p.ID())
	hp := heapPage{p: p}
	hp.setNextPageID(types.InvalidPageID)
	hp.setFreeSpace(common.PageSize)
	return hp
}

func (h heapPage) nextPageID() types.PageID {
	return types.PageID(int32(binary.LittleEndian.Uint32(h.p.Data()[offsetNextPageID:])))
}

func (h heapPage) setNextPageID(id types.PageID) {
	binary.LittleEndian.PutUint32(h.p.Data()[offsetNextPageID:], uint32(id))
}

func (h heapPage) freeSpace() int {
	return int(binary.LittleEndian.Uint16(h.p.Data()[offsetFreeSpace:]))
}

func (h heapPage) setFreeSpace(n int) {
	binary.LittleEndian.PutUint16(h.p.Data()[offsetFreeSpace:], uint16(n))
}

func (h heapPage) slotCount() int { return int(h.p.Size()) }

func (h heapPage) slotOffset(i int) int { return slotDirStart + i*slotEntrySize }

func (h heapPage) slotAt(i int) (offset, size int) {
	so := h.slotOffset(i)
	return int(binary.LittleEndian.Uint16(h.p.Data()[so:])), int(binary.LittleEndian.Uint16(h.p.Data()[so+2:]))
}

func (h heapPage) setSlot(i, offset, size int) {
	so := h.slotOffset(i)
	binary.LittleEndian.PutUint16(h.p.Data()[so:], uint16(offset))
	binary.LittleEndian.PutUint16(h.p.Data()[so+2:], uint16(size))
}

// insert appends data as a new slot, returning its slot index, or false if
// the page has no room.
func (h heapPage) insert(data []byte) (int, bool) {
	need := len(data) + slotEntrySize
	if h.freeSpace()-len(data) < h.slotOffset(h.slotCount())+slotEntrySize || need > h.freeSpace() {
		return 0, false
	}
	newOffset := h.freeSpace() - len(data)
	copy(h.p.Data()[newOffset:newOffset+len(data)], data)
	slot := h.slotCount()
	h.setSlot(slot, newOffset, len(data))
	h.p.SetSize(int16(slot + 1))
	h.setFreeSpace(newOffset)
	return slot, true
}

func (h heapPage) get(slot int) ([]byte, bool) {
	if slot < 0 || slot >= h.slotCount() {
		return nil, false
	}
	offset, size := h.slotAt(slot)
	if size == 0 {
		return nil, false
	}
	out := make([]byte, size)
	copy(out, h.p.Data()[offset:offset+size])
	return out, true
}

// update overwrites an existing slot in place when the new value is no
// larger than the old one; otherwise the caller must delete and
// re-insert, since this page format never compacts.
func (h heapPage) update(slot int, data []byte) bool {
	if slot < 0 || slot >= h.slotCount() {
		return false
	}
	offset, size := h.slotAt(slot)
	if size == 0 || len(data) > size {
		return false
	}
	copy(h.p.Data()[offset:offset+len(data)], data)
	h.setSlot(slot, offset, len(data))
	return true
}

func (h heapPage) delete(slot int) bool {
	if slot < 0 || slot >= h.slotCount() {
		return false
	}
	offset, _ := h.slotAt(slot)
	h.setSlot(slot, offset, 0)
	return true
}
