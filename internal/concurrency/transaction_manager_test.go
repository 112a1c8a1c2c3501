package concurrency

import (
	"testing"

	"github.com/ryogrid/sharkfin/internal/disk"
	"github.com/ryogrid/sharkfin/internal/recovery"
	"github.com/ryogrid/sharkfin/internal/types"
)

type fakeHeap struct {
	inserted map[types.RID][]byte
	updated  map[types.RID][]byte
	deleted  map[types.RID]bool
}

func newFakeHeap() *fakeHeap {
	return &fakeHeap{
		inserted: map[types.RID][]byte{},
		updated:  map[types.RID][]byte{},
		deleted:  map[types.RID]bool{},
	}
}

func (h *fakeHeap) DeleteTuple(rid types.RID) bool       { h.deleted[rid] = true; return true }
func (h *fakeHeap) InsertTupleAt(rid types.RID, d []byte) bool { h.inserted[rid] = d; return true }
func (h *fakeHeap) UpdateTuple(rid types.RID, d []byte) bool   { h.updated[rid] = d; return true }

func newTestManager(t *testing.T, heap TableHeap) *Manager {
	t.Helper()
	dm := disk.NewVirtualManager()
	lm := recovery.NewLogManager(dm)
	lm.RunFlushThread()
	t.Cleanup(lm.StopFlushThread)
	return NewManager(NewLockManager(), lm, heap)
}

func TestCommitReleasesLocks(t *testing.T) {
	m := newTestManager(t, nil)
	txn := m.Begin()
	rid := types.NewRID(0, 0)

	if err := m.lockMgr.LockExclusive(txn, rid); err != nil {
		t.Fatalf("LockExclusive: %v", err)
	}
	m.Commit(txn)

	if txn.State() != Committed {
		t.Fatalf("State() = %v, want Committed", txn.State())
	}
	if txn.HasExclusiveLock(rid) {
		t.Fatal("commit should have released the exclusive lock")
	}
}

func TestAbortUndoesWriteSet(t *testing.T) {
	heap := newFakeHeap()
	m := newTestManager(t, heap)
	txn := m.Begin()

	ridA := types.NewRID(0, 0)
	ridB := types.NewRID(0, 1)
	txn.AppendWrite(WriteRecord{Type: WriteInsert, RID: ridA})
	txn.AppendWrite(WriteRecord{Type: WriteDelete, RID: ridB, Tuple: []byte("old")})

	m.Abort(txn)

	if !heap.deleted[ridA] {
		t.Fatal("abort should delete an inserted row")
	}
	if string(heap.inserted[ridB]) != "old" {
		t.Fatal("abort should reinsert a deleted row's pre-image")
	}
	if txn.State() != Aborted {
		t.Fatalf("State() = %v, want Aborted", txn.State())
	}
}
