package concurrency

import (
	"errors"
	"sync"

	"github.com/ryogrid/sharkfin/internal/types"
)

// ErrTransactionAborted is returned by a lock request that loses a
// wait-die conflict, or that is still pending when another goroutine
// aborts its owning transaction.
var ErrTransactionAborted = errors.New("concurrency: transaction aborted")

// ErrLockOnShrinking is returned when a transaction past its shrinking
// point (here: any point after it starts releasing locks) requests a new
// lock, violating two-phase locking.
var ErrLockOnShrinking = errors.New("concurrency: cannot acquire new lock after shrinking")

type request struct {
	txnID   types.TxnID
	mode    LockMode
	granted bool
}

type queue struct {
	requests []*request
	cond     *sync.Cond
}

// LockManager grants and revokes RID-granular shared/exclusive locks using
// wait-die deadlock prevention (spec.md §4.7): a requester that conflicts
// with a granted holder waits when it is older than that holder and dies
// (is aborted) when it is younger. Younger means a numerically larger
// TxnID, since ids are assigned in increasing order at Begin.
type LockManager struct {
	mu     sync.Mutex
	queues map[types.RID]*queue
}

// NewLockManager returns an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{queues: make(map[types.RID]*queue)}
}

func (lm *LockManager) queueFor(rid types.RID) *queue {
	q, ok := lm.queues[rid]
	if !ok {
		q = &queue{cond: sync.NewCond(&lm.mu)}
		lm.queues[rid] = q
	}
	return q
}

func conflicts(a, b LockMode) bool { return a == Exclusive || b == Exclusive }

// LockShared acquires a shared lock on rid for txn, blocking if necessary.
func (lm *LockManager) LockShared(txn *Transaction, rid types.RID) error {
	if txn.HasSharedLock(rid) || txn.HasExclusiveLock(rid) {
		return nil
	}
	return lm.acquire(txn, rid, Shared)
}

// LockExclusive acquires an exclusive lock on rid for txn, blocking if
// necessary.
func (lm *LockManager) LockExclusive(txn *Transaction, rid types.RID) error {
	if txn.HasExclusiveLock(rid) {
		return nil
	}
	return lm.acquire(txn, rid, Exclusive)
}

func (lm *LockManager) acquire(txn *Transaction, rid types.RID, mode LockMode) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if txn.State() == Shrinking {
		txn.SetState(Aborted)
		return ErrLockOnShrinking
	}

	q := lm.queueFor(rid)
	me := &request{txnID: txn.ID(), mode: mode}
	q.requests = append(q.requests, me)

	for {
		if txn.State() == Aborted {
			lm.removeRequest(q, me)
			q.cond.Broadcast()
			return ErrTransactionAborted
		}

		blocker, found := lm.conflictingGrantedHolder(q, me)
		if !found {
			me.granted = true
			if mode == Shared {
				txn.grantShared(rid)
			} else {
				txn.grantExclusive(rid)
			}
			return nil
		}

		if me.txnID < blocker {
			// Requester is older than the conflicting holder: wait-die says
			// wait for it to release.
			q.cond.Wait()
			continue
		}

		// Requester is younger: die rather than wait on an older holder.
		lm.removeRequest(q, me)
		txn.SetState(Aborted)
		q.cond.Broadcast()
		return ErrTransactionAborted
	}
}

// conflictingGrantedHolder returns the TxnID of a granted request in q that
// conflicts with me's mode, if any (excluding me's own prior grants).
func (lm *LockManager) conflictingGrantedHolder(q *queue, me *request) (types.TxnID, bool) {
	for _, r := range q.requests {
		if r == me || !r.granted || r.txnID == me.txnID {
			continue
		}
		if conflicts(r.mode, me.mode) {
			return r.txnID, true
		}
	}
	return 0, false
}

func (lm *LockManager) removeRequest(q *queue, target *request) {
	for i, r := range q.requests {
		if r == target {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return
		}
	}
}

// LockUpgrade upgrades txn's shared lock on rid to exclusive. Only one
// upgrade may be pending per RID; a second concurrent upgrader loses to
// wait-die just as a fresh exclusive request would.
func (lm *LockManager) LockUpgrade(txn *Transaction, rid types.RID) error {
	if txn.HasExclusiveLock(rid) {
		return nil
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	q := lm.queueFor(rid)
	var held *request
	for _, r := range q.requests {
		if r.txnID == txn.ID() && r.granted {
			held = r
			break
		}
	}
	if held == nil {
		return ErrTransactionAborted
	}
	// The shared grant stays in place while the upgrade waits, so another
	// upgrader still sees it as a conflicting holder.
	me := &request{txnID: txn.ID(), mode: Exclusive}
	q.requests = append(q.requests, me)

	for {
		if txn.State() == Aborted {
			lm.removeRequest(q, me)
			q.cond.Broadcast()
			return ErrTransactionAborted
		}
		blocker, found := lm.conflictingGrantedHolder(q, me)
		if !found {
			lm.removeRequest(q, held)
			me.granted = true
			txn.grantExclusive(rid)
			return nil
		}
		if me.txnID < blocker {
			q.cond.Wait()
			continue
		}
		lm.removeRequest(q, me)
		txn.SetState(Aborted)
		q.cond.Broadcast()
		return ErrTransactionAborted
	}
}

// Unlock releases txn's lock on rid. Under strict two-phase locking the
// transaction manager calls this only at commit/abort time, never earlier.
func (lm *LockManager) Unlock(txn *Transaction, rid types.RID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	q, ok := lm.queues[rid]
	if !ok {
		return
	}
	for i, r := range q.requests {
		if r.txnID == txn.ID() && r.granted {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			break
		}
	}
	txn.releaseLock(rid)
	if txn.State() == Growing {
		txn.SetState(Shrinking)
	}
	q.cond.Broadcast()
}
