package recovery

import (
	"sync"
	"time"

	"github.com/ryogrid/sharkfin/internal/common"
	"github.com/ryogrid/sharkfin/internal/disk"
	"github.com/ryogrid/sharkfin/internal/types"
)

// waiter is a one-shot notification: the log manager closes ch once
// persistentLSN has advanced to at least lsn.
type waiter struct {
	lsn types.LSN
	ch  chan struct{}
}

// LogManager buffers serialized log records and hands them to the disk
// manager in the background, implementing group commit: many transactions
// that call AppendLogRecord between two flushes share a single write. A
// caller that must know a record is durable (commit, or the buffer pool
// about to evict a dirty page) calls WaitFlushed with that record's LSN and
// blocks until persistentLSN has caught up.
//
// Buffering is double: AppendLogRecord always writes into activeBuffer;
// flushBuffer holds the bytes currently being written to disk. The two are
// swapped under mu so producers are never blocked by the disk write itself.
type LogManager struct {
	disk disk.Manager

	mu            sync.Mutex
	roomAvailable *sync.Cond
	activeBuffer  []byte
	activeLen     int
	flushBuffer   []byte
	flushLen      int
	nextLSN       types.LSN
	persistentLSN types.LSN
	waiters       []waiter

	flushSignal chan struct{}
	stop        chan struct{}
	stopped     chan struct{}
}

// NewLogManager constructs a log manager over disk. The background flush
// goroutine is started by RunFlushThread.
func NewLogManager(d disk.Manager) *LogManager {
	lm := &LogManager{
		disk:          d,
		activeBuffer:  make([]byte, common.LogBufferSize),
		flushBuffer:   make([]byte, common.LogBufferSize),
		persistentLSN: types.InvalidLSN,
		flushSignal:   make(chan struct{}, 1),
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	lm.roomAvailable = sync.NewCond(&lm.mu)
	return lm
}

// AppendLogRecord assigns the next LSN to r, serializes it into the active
// buffer, and returns the assigned LSN. If the active buffer has no room,
// it signals the flush thread and blocks until the swap completes.
func (lm *LogManager) AppendLogRecord(r *Record) types.LSN {
	lm.mu.Lock()
	for lm.activeLen+int(r.Size) > len(lm.activeBuffer) {
		lm.triggerFlush()
		lm.roomAvailable.Wait()
	}

	lm.nextLSN++
	r.LSN = lm.nextLSN
	r.SerializeTo(lm.activeBuffer[lm.activeLen : lm.activeLen+int(r.Size)])
	lm.activeLen += int(r.Size)
	lsn := r.LSN
	lm.mu.Unlock()
	return lsn
}

// triggerFlush asks the background flush goroutine to run a pass without
// waiting for its timeout.
func (lm *LogManager) triggerFlush() {
	select {
	case lm.flushSignal <- struct{}{}:
	default:
	}
}

// WaitFlushed blocks until persistentLSN has advanced to at least lsn. An
// lsn that no appended record carries is already satisfied: InvalidLSN, 0
// (LSNs start at 1), or anything past the last assigned LSN — the caller
// has nothing to wait for, e.g. a page that has never been logged.
func (lm *LogManager) WaitFlushed(lsn types.LSN) {
	lm.mu.Lock()
	if lsn <= 0 || lsn > lm.nextLSN || lm.persistentLSN >= lsn {
		lm.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	lm.waiters = append(lm.waiters, waiter{lsn: lsn, ch: ch})
	lm.mu.Unlock()

	lm.triggerFlush()
	<-ch
}

// PersistentLSN reports the highest LSN known to be durable on disk.
func (lm *LogManager) PersistentLSN() types.LSN {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.persistentLSN
}

// RunFlushThread starts the background goroutine that periodically (or on
// explicit signal via triggerFlush/WaitFlushed) swaps the active and flush
// buffers and writes the flush buffer to the log file.
func (lm *LogManager) RunFlushThread() {
	go func() {
		defer close(lm.stopped)
		timer := time.NewTimer(common.LogTimeout)
		defer timer.Stop()
		for {
			select {
			case <-lm.stop:
				lm.flushOnce()
				return
			case <-timer.C:
				lm.flushOnce()
				timer.Reset(common.LogTimeout)
			case <-lm.flushSignal:
				lm.flushOnce()
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(common.LogTimeout)
			}
		}
	}()
}

// StopFlushThread signals the flush goroutine to perform one final flush
// and exit, then waits for it to do so.
func (lm *LogManager) StopFlushThread() {
	close(lm.stop)
	<-lm.stopped
}

// flushOnce swaps the active buffer into the flush buffer (if non-empty),
// writes it to disk, advances persistentLSN, and wakes every satisfied
// waiter.
func (lm *LogManager) flushOnce() {
	lm.mu.Lock()
	if lm.activeLen == 0 {
		lm.mu.Unlock()
		return
	}
	lm.activeBuffer, lm.flushBuffer = lm.flushBuffer, lm.activeBuffer
	lm.flushLen, lm.activeLen = lm.activeLen, 0
	flushed := lm.nextLSN
	data := lm.flushBuffer[:lm.flushLen]
	lm.roomAvailable.Broadcast()
	lm.mu.Unlock()

	if err := lm.disk.WriteLog(data); err != nil {
		common.SHAssert(false, "log write failed: "+err.Error())
	}

	lm.mu.Lock()
	lm.persistentLSN = flushed
	remaining := lm.waiters[:0]
	var toNotify []chan struct{}
	for _, w := range lm.waiters {
		if w.lsn <= lm.persistentLSN {
			toNotify = append(toNotify, w.ch)
		} else {
			remaining = append(remaining, w)
		}
	}
	lm.waiters = remaining
	lm.mu.Unlock()

	for _, ch := range toNotify {
		close(ch)
	}
}
