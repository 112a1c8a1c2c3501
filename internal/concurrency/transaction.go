// Package concurrency implements the RID-granular lock manager and the
// transaction lifecycle it serializes (spec.md §4.7/§4.8): two-phase
// locking with wait-die deadlock prevention, and write-set-driven abort.
package concurrency

import (
	"sync"

	"github.com/ryogrid/sharkfin/internal/types"
)

// State tracks a transaction's position in strict two-phase locking.
type State int

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

// LockMode is the granted or requested mode for an RID.
type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

// WriteRecord remembers one write this transaction made, in order, so
// Abort can undo it by replaying the list in reverse.
type WriteRecord struct {
	Type WriteType
	RID  types.RID
	// Tuple holds the pre-image for UPDATE/DELETE undo, and is nil for
	// INSERT (whose undo is simply a delete).
	Tuple []byte
}

// WriteType discriminates a WriteRecord.
type WriteType int

const (
	WriteInsert WriteType = iota
	WriteUpdate
	WriteDelete
)

// Transaction is one unit of work: its lock sets and write set. It does not
// track latched pages; the B+tree keeps its own latch path during a
// descent. Field access is guarded by mu since the lock
// manager and transaction manager touch a transaction from whichever
// goroutine is running its caller's operation.
type Transaction struct {
	mu sync.Mutex

	id      types.TxnID
	state   State
	prevLSN types.LSN

	sharedLocks    map[types.RID]struct{}
	exclusiveLocks map[types.RID]struct{}
	writeSet       []WriteRecord
}

// NewTransaction starts a transaction in the Growing phase.
func NewTransaction(id types.TxnID) *Transaction {
	return &Transaction{
		id:             id,
		state:          Growing,
		prevLSN:        types.InvalidLSN,
		sharedLocks:    make(map[types.RID]struct{}),
		exclusiveLocks: make(map[types.RID]struct{}),
	}
}

func (t *Transaction) ID() types.TxnID { return t.id }

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *Transaction) PrevLSN() types.LSN {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prevLSN
}

func (t *Transaction) SetPrevLSN(lsn types.LSN) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prevLSN = lsn
}

func (t *Transaction) HasSharedLock(rid types.RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sharedLocks[rid]
	return ok
}

func (t *Transaction) HasExclusiveLock(rid types.RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.exclusiveLocks[rid]
	return ok
}

func (t *Transaction) grantShared(rid types.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sharedLocks[rid] = struct{}{}
}

func (t *Transaction) grantExclusive(rid types.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sharedLocks, rid)
	t.exclusiveLocks[rid] = struct{}{}
}

func (t *Transaction) releaseLock(rid types.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sharedLocks, rid)
	delete(t.exclusiveLocks, rid)
}

// AppendWrite records a write for later undo.
func (t *Transaction) AppendWrite(w WriteRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeSet = append(t.writeSet, w)
}

// WriteSet returns a snapshot of writes recorded so far, oldest first.
func (t *Transaction) WriteSet() []WriteRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]WriteRecord, len(t.writeSet))
	copy(out, t.writeSet)
	return out
}
