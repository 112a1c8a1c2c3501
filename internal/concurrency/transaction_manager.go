package concurrency

import (
	"sync"
	"sync/atomic"

	"github.com/ryogrid/sharkfin/internal/recovery"
	"github.com/ryogrid/sharkfin/internal/types"
)

// TableHeap is the external collaborator the transaction manager replays
// a write set against on abort (SPEC_FULL.md §C): schema-aware tuple
// storage belongs to a table-heap/catalog layer outside this package's
// scope, so only the replay surface is declared here.
type TableHeap interface {
	DeleteTuple(rid types.RID) bool
	InsertTupleAt(rid types.RID, data []byte) bool
	UpdateTuple(rid types.RID, data []byte) bool
}

// Manager begins, commits and aborts transactions: it emits the
// corresponding log record, waits for it to reach disk on commit (group
// commit), and on abort walks the transaction's write set in reverse to
// undo it before releasing every lock it held (spec.md §4.8).
type Manager struct {
	mu      sync.Mutex
	nextID  int32
	lockMgr *LockManager
	logMgr  *recovery.LogManager
	heap    TableHeap

	active map[types.TxnID]*Transaction
}

// NewManager constructs a transaction manager. heap may be nil if the
// caller never intends to abort a transaction with a non-empty write set
// (e.g. tests exercising only the lock manager).
func NewManager(lockMgr *LockManager, logMgr *recovery.LogManager, heap TableHeap) *Manager {
	return &Manager{
		lockMgr: lockMgr,
		logMgr:  logMgr,
		heap:    heap,
		active:  make(map[types.TxnID]*Transaction),
	}
}

// Begin starts a new transaction and logs a BEGIN record.
func (m *Manager) Begin() *Transaction {
	id := types.TxnID(atomic.AddInt32(&m.nextID, 1))
	txn := NewTransaction(id)

	if m.logMgr != nil {
		rec := recovery.NewTxnRecord(id, types.InvalidLSN, recovery.Begin)
		lsn := m.logMgr.AppendLogRecord(rec)
		txn.SetPrevLSN(lsn)
	}

	m.mu.Lock()
	m.active[id] = txn
	m.mu.Unlock()
	return txn
}

// Commit logs a COMMIT record, waits for it (and every prior record of
// this transaction) to become durable, then releases every lock the
// transaction held.
func (m *Manager) Commit(txn *Transaction) {
	if m.logMgr != nil {
		rec := recovery.NewTxnRecord(txn.ID(), txn.PrevLSN(), recovery.Commit)
		lsn := m.logMgr.AppendLogRecord(rec)
		txn.SetPrevLSN(lsn)
		m.logMgr.WaitFlushed(lsn)
	}

	txn.SetState(Committed)
	m.releaseAllLocks(txn)
	m.forget(txn)
}

// Abort undoes txn's write set in reverse order, logs an ABORT record, and
// releases every lock it held.
func (m *Manager) Abort(txn *Transaction) {
	for _, w := range reverse(txn.WriteSet()) {
		if m.heap == nil {
			continue
		}
		switch w.Type {
		case WriteInsert:
			m.heap.DeleteTuple(w.RID)
		case WriteDelete:
			m.heap.InsertTupleAt(w.RID, w.Tuple)
		case WriteUpdate:
			m.heap.UpdateTuple(w.RID, w.Tuple)
		}
	}

	if m.logMgr != nil {
		rec := recovery.NewTxnRecord(txn.ID(), txn.PrevLSN(), recovery.Abort)
		lsn := m.logMgr.AppendLogRecord(rec)
		txn.SetPrevLSN(lsn)
		m.logMgr.WaitFlushed(lsn)
	}

	txn.SetState(Aborted)
	m.releaseAllLocks(txn)
	m.forget(txn)
}

func (m *Manager) releaseAllLocks(txn *Transaction) {
	txn.mu.Lock()
	rids := make([]types.RID, 0, len(txn.sharedLocks)+len(txn.exclusiveLocks))
	for rid := range txn.sharedLocks {
		rids = append(rids, rid)
	}
	for rid := range txn.exclusiveLocks {
		rids = append(rids, rid)
	}
	txn.mu.Unlock()

	for _, rid := range rids {
		m.lockMgr.Unlock(txn, rid)
	}
}

func (m *Manager) forget(txn *Transaction) {
	m.mu.Lock()
	delete(m.active, txn.ID())
	m.mu.Unlock()
}

// Get returns the active transaction for id, if any.
func (m *Manager) Get(id types.TxnID) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.active[id]
	return t, ok
}

func reverse(w []WriteRecord) []WriteRecord {
	out := make([]WriteRecord, len(w))
	for i, r := range w {
		out[len(w)-1-i] = r
	}
	return out
}
