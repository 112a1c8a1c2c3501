//go:build deadlock_debug

package common

import "github.com/sasha-s/go-deadlock"

// Build this package with -tags deadlock_debug to replace every page latch
// with go-deadlock's instrumented RWMutex. go-deadlock records acquisition
// stacks and panics (instead of hanging forever) when it detects a lock
// acquired out of the order §5 requires: the buffer pool mutex, a page
// latch, the log manager's mutex, and a per-RID condition variable must
// never be held two-at-a-time across goroutines in conflicting orders.

// ReaderWriterLatch is the same page-latch interface rwlatch.go declares
// for the default build.
type ReaderWriterLatch interface {
	WLock()
	WUnlock()
	RLock()
	RUnlock()
}

type deadlockLatch struct {
	mu deadlock.RWMutex
}

// NewRWLatch returns the deadlock-detecting reader-writer latch when built
// with the deadlock_debug tag.
func NewRWLatch() ReaderWriterLatch {
	return &deadlockLatch{}
}

func (l *deadlockLatch) WLock()   { l.mu.Lock() }
func (l *deadlockLatch) WUnlock() { l.mu.Unlock() }
func (l *deadlockLatch) RLock()   { l.mu.RLock() }
func (l *deadlockLatch) RUnlock() { l.mu.RUnlock() }
