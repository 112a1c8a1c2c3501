// Package buffer implements the buffer pool manager (spec.md §4.4) and its
// clock replacement policy (spec.md §4.3).
package buffer

import (
	"sync"

	"github.com/ryogrid/sharkfin/internal/exhash"
)

// FrameID indexes the buffer pool's fixed frame array.
type FrameID uint32

type clockNode struct {
	frame    FrameID
	ref      bool
	next     *clockNode
	prev     *clockNode
}

// ClockReplacer maintains unpinned-page victim order using the clock
// (second-chance) policy: insert marks a frame as a replacement candidate
// (or refreshes its reference bit if already present); Victim advances a
// circulating hand, clearing reference bits until it finds one already
// clear, which it evicts. Its internal frame -> node index is an
// extendible hash, as spec.md §4.3 requires. Serialised by its own mutex.
type ClockReplacer struct {
	mu sync.Mutex

	head, tail *clockNode
	hand       *clockNode
	size       uint32
	index      *exhash.Table[FrameID, *clockNode]
}

// NewClockReplacer returns a replacer sized for capacity frames.
func NewClockReplacer(capacity uint32) *ClockReplacer {
	bucketSize := 16
	if capacity < 16 {
		bucketSize = int(capacity) + 1
	}
	return &ClockReplacer{
		index: exhash.New[FrameID, *clockNode](bucketSize, func(f FrameID) uint32 {
			return exhash.HashUint32(uint32(f))
		}),
	}
}

// Unpin marks frame id as eligible for eviction (called when a frame's pin
// count drops to zero). A frame already tracked only has its reference bit
// set again.
func (c *ClockReplacer) Unpin(id FrameID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.index.Find(id); ok {
		existing.ref = true
		return
	}

	node := &clockNode{frame: id, ref: true}
	if c.size == 0 {
		node.next = node
		node.prev = node
		c.head, c.tail, c.hand = node, node, node
	} else {
		node.next = c.head
		node.prev = c.tail
		c.tail.next = node
		c.head.prev = node
		c.tail = node
	}
	c.size++
	c.index.Insert(id, node)
}

// Pin removes frame id from the replacer unconditionally (called when a
// frame's pin count rises from zero, or when the frame is handed out as a
// victim).
func (c *ClockReplacer) Pin(id FrameID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(id)
}

func (c *ClockReplacer) removeLocked(id FrameID) {
	node, ok := c.index.Find(id)
	if !ok {
		return
	}

	if c.hand == node {
		c.hand = node.next
	}
	if c.size == 1 {
		c.head, c.tail, c.hand = nil, nil, nil
	} else {
		if node == c.head {
			c.head = c.head.next
		}
		if node == c.tail {
			c.tail = c.tail.prev
		}
		node.next.prev = node.prev
		node.prev.next = node.next
	}
	c.size--
	c.index.Remove(id)
}

// Victim advances the clock hand: a frame with its reference bit set is
// spared (the bit is cleared instead) and the hand moves on; a frame whose
// bit is already clear is evicted and returned. After one full revolution
// without an eviction every bit has been cleared, so the next pass is
// guaranteed to evict.
func (c *ClockReplacer) Victim() (FrameID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.size == 0 {
		return 0, false
	}

	node := c.hand
	for {
		if node.ref {
			node.ref = false
			node = node.next
			continue
		}
		victim := node.frame
		c.hand = node.next
		c.removeLocked(victim)
		return victim, true
	}
}

// Size returns the number of frames currently tracked as victim candidates.
func (c *ClockReplacer) Size() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *ClockReplacer) contains(id FrameID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index.Find(id)
	return ok
}
