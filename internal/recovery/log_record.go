// Package recovery implements write-ahead logging (the log manager, spec.md
// §4.5) and crash recovery (the redo engine, spec.md §4.9).
package recovery

import (
	"encoding/binary"

	"github.com/ryogrid/sharkfin/internal/tuple"
	"github.com/ryogrid/sharkfin/internal/types"
)

// HeaderSize is the 20-byte fixed prefix every log record begins with:
// (size, lsn, txn_id, prev_lsn, type), per spec.md §3.
const HeaderSize uint32 = 20

// RecordType discriminates a log record's payload.
type RecordType int32

const (
	Invalid RecordType = iota
	Begin
	Commit
	Abort
	Insert
	Update
	MarkDelete
	ApplyDelete
	RollbackDelete
	NewPage
	DeallocatePage
	ReusePage
	GracefulShutdown
)

// Record is a single write-ahead log entry. Only the fields relevant to
// Type are populated; Size is computed by the New* constructors.
type Record struct {
	Size    uint32
	LSN     types.LSN
	TxnID   types.TxnID
	PrevLSN types.LSN
	Type    RecordType

	// INSERT
	InsertRID   types.RID
	InsertTuple tuple.Tuple

	// MARKDELETE / APPLYDELETE / ROLLBACKDELETE
	DeleteRID   types.RID
	DeleteTuple tuple.Tuple

	// UPDATE
	UpdateRID types.RID
	OldTuple  tuple.Tuple
	NewTuple  tuple.Tuple

	// NEWPAGE
	PrevPageID types.PageID
	PageID     types.PageID

	// DEALLOCATEPAGE / REUSEPAGE
	TargetPageID types.PageID
}

// NewTxnRecord builds a BEGIN/COMMIT/ABORT record.
func NewTxnRecord(txnID types.TxnID, prevLSN types.LSN, t RecordType) *Record {
	return &Record{Size: HeaderSize, TxnID: txnID, PrevLSN: prevLSN, Type: t}
}

// NewInsertRecord builds an INSERT record.
func NewInsertRecord(txnID types.TxnID, prevLSN types.LSN, rid types.RID, tup *tuple.Tuple) *Record {
	r := &Record{TxnID: txnID, PrevLSN: prevLSN, Type: Insert, InsertRID: rid, InsertTuple: *tup}
	r.Size = HeaderSize + types.SizeOfRID + tup.Size()
	return r
}

// NewDeleteRecord builds a MARKDELETE/APPLYDELETE/ROLLBACKDELETE record.
func NewDeleteRecord(txnID types.TxnID, prevLSN types.LSN, t RecordType, rid types.RID, tup *tuple.Tuple) *Record {
	r := &Record{TxnID: txnID, PrevLSN: prevLSN, Type: t, DeleteRID: rid, DeleteTuple: *tup}
	r.Size = HeaderSize + types.SizeOfRID + tup.Size()
	return r
}

// NewUpdateRecord builds an UPDATE record.
func NewUpdateRecord(txnID types.TxnID, prevLSN types.LSN, rid types.RID, oldTup, newTup *tuple.Tuple) *Record {
	r := &Record{TxnID: txnID, PrevLSN: prevLSN, Type: Update, UpdateRID: rid, OldTuple: *oldTup, NewTuple: *newTup}
	r.Size = HeaderSize + types.SizeOfRID + oldTup.Size() + newTup.Size()
	return r
}

// NewNewPageRecord builds a NEWPAGE record.
func NewNewPageRecord(txnID types.TxnID, prevLSN types.LSN, prevPageID, pageID types.PageID) *Record {
	r := &Record{TxnID: txnID, PrevLSN: prevLSN, Type: NewPage, PrevPageID: prevPageID, PageID: pageID}
	r.Size = HeaderSize + 4 + 4
	return r
}

// NewDeallocatePageRecord builds a redo-only DEALLOCATE_PAGE record: it has
// no owning transaction (spec.md §4.9 treats allocator bookkeeping as
// outside normal transactional undo).
func NewDeallocatePageRecord(pageID types.PageID) *Record {
	return &Record{Size: HeaderSize + 4, TxnID: types.InvalidTxnID, PrevLSN: types.InvalidLSN, Type: DeallocatePage, TargetPageID: pageID}
}

// NewReusePageRecord builds a redo-only REUSE_PAGE record describing an id
// drawn back out of the free pool (SPEC_FULL.md §C). AllocatePage does not
// emit it; redo treats it as bookkeeping only.
func NewReusePageRecord(pageID types.PageID) *Record {
	return &Record{Size: HeaderSize + 4, TxnID: types.InvalidTxnID, PrevLSN: types.InvalidLSN, Type: ReusePage, TargetPageID: pageID}
}

// NewGracefulShutdownRecord marks a clean shutdown point in the log
// (SPEC_FULL.md §C).
func NewGracefulShutdownRecord() *Record {
	return &Record{Size: HeaderSize, TxnID: types.InvalidTxnID, PrevLSN: types.InvalidLSN, Type: GracefulShutdown}
}

// headerBytes serializes the 20-byte fixed prefix.
func (r *Record) headerBytes() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], r.Size)
	binary.LittleEndian.PutUint32(buf[4:], uint32(r.LSN))
	binary.LittleEndian.PutUint32(buf[8:], uint32(r.TxnID))
	binary.LittleEndian.PutUint32(buf[12:], uint32(r.PrevLSN))
	binary.LittleEndian.PutUint32(buf[16:], uint32(r.Type))
	return buf
}

// SerializeTo writes the full record (header + payload) into buf, which
// must be at least r.Size bytes.
func (r *Record) SerializeTo(buf []byte) {
	copy(buf, r.headerBytes())
	pos := HeaderSize

	switch r.Type {
	case Insert:
		copy(buf[pos:], r.InsertRID.Serialize())
		pos += types.SizeOfRID
		r.InsertTuple.SerializeTo(buf[pos:])
	case ApplyDelete, MarkDelete, RollbackDelete:
		copy(buf[pos:], r.DeleteRID.Serialize())
		pos += types.SizeOfRID
		r.DeleteTuple.SerializeTo(buf[pos:])
	case Update:
		copy(buf[pos:], r.UpdateRID.Serialize())
		pos += types.SizeOfRID
		r.OldTuple.SerializeTo(buf[pos:])
		pos += r.OldTuple.Size()
		r.NewTuple.SerializeTo(buf[pos:])
	case NewPage:
		binary.LittleEndian.PutUint32(buf[pos:], uint32(r.PrevPageID))
		binary.LittleEndian.PutUint32(buf[pos+4:], uint32(r.PageID))
	case DeallocatePage:
		binary.LittleEndian.PutUint32(buf[pos:], uint32(r.TargetPageID))
	case ReusePage:
		binary.LittleEndian.PutUint32(buf[pos:], uint32(r.TargetPageID))
	}
}

// Deserialize reads a record (header + payload) from data, returning false
// if data does not contain a complete record (used to detect a torn write
// at the tail of the log when splicing across read-buffer boundaries).
func Deserialize(data []byte) (*Record, bool) {
	if uint32(len(data)) < HeaderSize {
		return nil, false
	}
	r := &Record{
		Size:    binary.LittleEndian.Uint32(data[0:]),
		LSN:     types.LSN(int32(binary.LittleEndian.Uint32(data[4:]))),
		TxnID:   types.TxnID(int32(binary.LittleEndian.Uint32(data[8:]))),
		PrevLSN: types.LSN(int32(binary.LittleEndian.Uint32(data[12:]))),
		Type:    RecordType(int32(binary.LittleEndian.Uint32(data[16:]))),
	}
	if r.Size == 0 || uint32(len(data)) < r.Size {
		return nil, false
	}

	pos := HeaderSize
	switch r.Type {
	case Insert:
		r.InsertRID = types.NewRIDFromBytes(data[pos:])
		pos += types.SizeOfRID
		r.InsertTuple.DeserializeFrom(data[pos:])
	case ApplyDelete, MarkDelete, RollbackDelete:
		r.DeleteRID = types.NewRIDFromBytes(data[pos:])
		pos += types.SizeOfRID
		r.DeleteTuple.DeserializeFrom(data[pos:])
	case Update:
		r.UpdateRID = types.NewRIDFromBytes(data[pos:])
		pos += types.SizeOfRID
		r.OldTuple.DeserializeFrom(data[pos:])
		pos += r.OldTuple.Size()
		r.NewTuple.DeserializeFrom(data[pos:])
	case NewPage:
		r.PrevPageID = types.PageID(int32(binary.LittleEndian.Uint32(data[pos:])))
		r.PageID = types.PageID(int32(binary.LittleEndian.Uint32(data[pos+4:])))
	case DeallocatePage:
		r.TargetPageID = types.PageID(int32(binary.LittleEndian.Uint32(data[pos:])))
	case ReusePage:
		r.TargetPageID = types.PageID(int32(binary.LittleEndian.Uint32(data[pos:])))
	}
	return r, true
}
