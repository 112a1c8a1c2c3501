package concurrency

import (
	"testing"
	"time"

	"github.com/ryogrid/sharkfin/internal/types"
)

func TestSharedLocksAreCompatible(t *testing.T) {
	lm := NewLockManager()
	t1 := NewTransaction(1)
	t2 := NewTransaction(2)
	rid := types.NewRID(0, 0)

	if err := lm.LockShared(t1, rid); err != nil {
		t.Fatalf("t1 LockShared: %v", err)
	}
	if err := lm.LockShared(t2, rid); err != nil {
		t.Fatalf("t2 LockShared: %v", err)
	}
}

func TestExclusiveBlocksUntilReleased(t *testing.T) {
	lm := NewLockManager()
	older := NewTransaction(1)
	rid := types.NewRID(0, 0)

	if err := lm.LockExclusive(older, rid); err != nil {
		t.Fatalf("older LockExclusive: %v", err)
	}

	// A requester numerically older than the current holder waits under
	// wait-die rather than dying.
	oldest := NewTransaction(0)
	done := make(chan error, 1)
	go func() { done <- lm.LockExclusive(oldest, rid) }()

	select {
	case <-done:
		t.Fatal("oldest's LockExclusive should block while older holds the lock")
	case <-time.After(50 * time.Millisecond):
	}

	lm.Unlock(older, rid)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("oldest's LockExclusive returned %v after release", err)
		}
	case <-time.After(time.Second):
		t.Fatal("oldest's LockExclusive never returned after older released")
	}
}

func TestYoungerRequesterDiesRatherThanWaits(t *testing.T) {
	lm := NewLockManager()
	older := NewTransaction(1)
	younger := NewTransaction(2)
	rid := types.NewRID(0, 0)

	if err := lm.LockExclusive(older, rid); err != nil {
		t.Fatalf("older LockExclusive: %v", err)
	}

	err := lm.LockExclusive(younger, rid)
	if err != ErrTransactionAborted {
		t.Fatalf("younger LockExclusive = %v, want ErrTransactionAborted", err)
	}
	if younger.State() != Aborted {
		t.Fatalf("younger.State() = %v, want Aborted", younger.State())
	}
}

func TestUnlockMovesToShrinking(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(1)
	rid := types.NewRID(0, 0)

	lm.LockShared(txn, rid)
	lm.Unlock(txn, rid)

	if txn.State() != Shrinking {
		t.Fatalf("State() = %v, want Shrinking", txn.State())
	}

	if err := lm.LockShared(txn, types.NewRID(0, 1)); err != ErrLockOnShrinking {
		t.Fatalf("locking after shrinking = %v, want ErrLockOnShrinking", err)
	}
}
