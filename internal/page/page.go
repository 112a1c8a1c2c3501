// Package page defines the in-memory representation of a database page —
// the unit the buffer pool pins, latches and evicts — plus the 24-byte
// fixed header every on-disk page begins with (spec.md §3).
package page

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/ryogrid/sharkfin/internal/common"
	"github.com/ryogrid/sharkfin/internal/types"
)

// Header field byte offsets, per spec.md §3:
//
//	(page_lsn, page_type, size, max_size, parent_pid, page_id) + next_leaf_pid
//
// 8-byte aligned, 24 bytes for the common prefix every page type shares.
const (
	OffsetLSN          = 0
	OffsetPageType     = 4
	OffsetSize         = 6
	OffsetMaxSize      = 8
	OffsetParentPageID = 10
	OffsetPageID       = 14
	// bytes 18-23 are reserved padding so the common header lands on an
	// 8-byte boundary.
	HeaderSize = 24
	// OffsetNextLeafPID is leaf-specific; leaf pages append it right after
	// the common header.
	OffsetNextLeafPID = HeaderSize
)

// Type tags the page's content; it is the discriminant the B+tree's
// page-view capability interface switches on.
type Type int16

const (
	InvalidPageType Type = iota
	LeafPageType
	InternalPageType
)

// Page is the in-memory frame content: a fixed PageSize byte buffer plus
// the buffer-pool bookkeeping (pid, pin count, dirty flag) and the
// reader-writer latch callers acquire before reading or mutating the byte
// buffer. The buffer pool is the sole owner of a Page's lifetime; every
// other component reaches it only via a pinned, latched reference (design
// note in spec.md §9).
type Page struct {
	id       types.PageID
	pinCount int32 // atomic
	dirty    bool  // sticky: only cleared by Flush
	data     [common.PageSize]byte
	latch    common.ReaderWriterLatch
}

// New wraps data read from disk as a pinned (pin count 1), clean page.
func New(id types.PageID, data []byte) *Page {
	p := &Page{id: id, pinCount: 1, latch: common.NewRWLatch()}
	copy(p.data[:], data)
	return p
}

// NewEmpty allocates a fresh, zeroed, pinned page for a newly allocated pid.
func NewEmpty(id types.PageID) *Page {
	return &Page{id: id, pinCount: 1, latch: common.NewRWLatch()}
}

func (p *Page) ID() types.PageID { return p.id }

// ResetForReuse rebinds a frame to a different page id after eviction, per
// the buffer pool's fetch/new_page flow.
func (p *Page) ResetForReuse(id types.PageID) {
	p.id = id
	p.dirty = false
	for i := range p.data {
		p.data[i] = 0
	}
	atomic.StoreInt32(&p.pinCount, 1)
}

// LoadForReuse rebinds a frame to pid with data just read from disk.
func (p *Page) LoadForReuse(id types.PageID, data []byte) {
	p.id = id
	p.dirty = false
	copy(p.data[:], data)
	atomic.StoreInt32(&p.pinCount, 1)
}

func (p *Page) IncPinCount() { atomic.AddInt32(&p.pinCount, 1) }

// DecPinCount decrements the pin count. It is a programming error to call
// this with a pin count already at zero; the buffer pool guards the call,
// so this just does the arithmetic.
func (p *Page) DecPinCount() { atomic.AddInt32(&p.pinCount, -1) }

func (p *Page) PinCount() int32 { return atomic.LoadInt32(&p.pinCount) }

func (p *Page) IsDirty() bool { return p.dirty }

// SetDirty merges isDirty into the sticky dirty flag: once true it only
// clears via MarkClean (called by Flush), per spec.md §3.
func (p *Page) SetDirty(isDirty bool) {
	if isDirty {
		p.dirty = true
	}
}

// MarkClean clears the dirty flag; only the buffer pool's Flush path calls
// this, immediately after a successful write-back.
func (p *Page) MarkClean() { p.dirty = false }

// Data returns the page's raw byte buffer. Callers must hold the
// appropriate latch before reading or writing through this slice.
func (p *Page) Data() []byte { return p.data[:] }

func (p *Page) WLatch() { p.latch.WLock() }
func (p *Page) WUnlatch() { p.latch.WUnlock() }
func (p *Page) RLatch() { p.latch.RLock() }
func (p *Page) RUnlatch() { p.latch.RUnlock() }

// LSN returns the header's page_lsn field.
func (p *Page) LSN() types.LSN {
	return types.LSN(int32(binary.LittleEndian.Uint32(p.data[OffsetLSN:])))
}

// SetLSN writes the header's page_lsn field.
func (p *Page) SetLSN(lsn types.LSN) {
	binary.LittleEndian.PutUint32(p.data[OffsetLSN:], uint32(lsn))
}

func (p *Page) PageType() Type {
	return Type(int16(binary.LittleEndian.Uint16(p.data[OffsetPageType:])))
}

func (p *Page) SetPageType(t Type) {
	binary.LittleEndian.PutUint16(p.data[OffsetPageType:], uint16(t))
}

// Size returns the node's current entry count (the B+tree page header's
// "size" field — not to be confused with the package-level HeaderSize
// constant).
func (p *Page) Size() int16 {
	return int16(binary.LittleEndian.Uint16(p.data[OffsetSize:]))
}

func (p *Page) SetSize(n int16) {
	binary.LittleEndian.PutUint16(p.data[OffsetSize:], uint16(n))
}

func (p *Page) MaxSize() int16 {
	return int16(binary.LittleEndian.Uint16(p.data[OffsetMaxSize:]))
}

func (p *Page) SetMaxSize(n int16) {
	binary.LittleEndian.PutUint16(p.data[OffsetMaxSize:], uint16(n))
}

func (p *Page) ParentPageID() types.PageID {
	return types.PageID(int32(binary.LittleEndian.Uint32(p.data[OffsetParentPageID:])))
}

func (p *Page) SetParentPageID(id types.PageID) {
	binary.LittleEndian.PutUint32(p.data[OffsetParentPageID:], uint32(id))
}

func (p *Page) HeaderPageID() types.PageID {
	return types.PageID(int32(binary.LittleEndian.Uint32(p.data[OffsetPageID:])))
}

func (p *Page) SetHeaderPageID(id types.PageID) {
	binary.LittleEndian.PutUint32(p.data[OffsetPageID:], uint32(id))
}

func (p *Page) NextLeafPageID() types.PageID {
	return types.PageID(int32(binary.LittleEndian.Uint32(p.data[OffsetNextLeafPID:])))
}

func (p *Page) SetNextLeafPageID(id types.PageID) {
	binary.LittleEndian.PutUint32(p.data[OffsetNextLeafPID:], uint32(id))
}
