// Package exhash implements the extendible hash directory described in
// spec.md §4.2: an in-memory key-to-value associative container that grows
// by splitting a single overflowing bucket, rather than rehashing the
// entire table. It backs both the buffer pool's page table (pid -> frame)
// and the clock replacer's internal index (frame -> list node), per
// spec.md §4.3/§4.4.
package exhash

import "sync"

// HashFunc computes the full hash of a key; Table consults only its low
// bits, selected by the current global/local depth.
type HashFunc[K comparable] func(key K) uint32

type entry[K comparable, V any] struct {
	key K
	val V
}

type bucket[K comparable, V any] struct {
	localDepth uint32
	entries    []entry[K, V]
}

func (b *bucket[K, V]) isFull(capacity int) bool { return len(b.entries) >= capacity }

func (b *bucket[K, V]) find(k K) (V, bool) {
	for _, e := range b.entries {
		if e.key == k {
			return e.val, true
		}
	}
	var zero V
	return zero, false
}

// Table is an extendible hash table. All public methods are serialised by
// a single mutex (spec.md §4.2).
type Table[K comparable, V any] struct {
	mu          sync.Mutex
	globalDepth uint32
	bucketSize  int
	hash        HashFunc[K]
	directory   []*bucket[K, V]
}

// New returns an empty table whose buckets hold up to bucketSize entries
// before splitting.
func New[K comparable, V any](bucketSize int, hash HashFunc[K]) *Table[K, V] {
	return &Table[K, V]{
		bucketSize: bucketSize,
		hash:       hash,
		directory:  []*bucket[K, V]{{localDepth: 0}},
	}
}

func dirIndex(h uint32, depth uint32) uint32 {
	if depth == 0 {
		return 0
	}
	return h & ((1 << depth) - 1)
}

// Find returns the value associated with k, if present.
func (t *Table[K, V]) Find(k K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.bucketFor(k)
	return b.find(k)
}

func (t *Table[K, V]) bucketFor(k K) *bucket[K, V] {
	idx := dirIndex(t.hash(k), t.globalDepth)
	return t.directory[idx]
}

// Insert updates k's value in place if k is already present; otherwise it
// appends if the owning bucket has room, or splits and retries.
func (t *Table[K, V]) Insert(k K, v V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insertLocked(k, v)
}

func (t *Table[K, V]) insertLocked(k K, v V) {
	for {
		idx := dirIndex(t.hash(k), t.globalDepth)
		b := t.directory[idx]

		for i := range b.entries {
			if b.entries[i].key == k {
				b.entries[i].val = v
				return
			}
		}

		if !b.isFull(t.bucketSize) {
			b.entries = append(b.entries, entry[K, V]{key: k, val: v})
			return
		}

		t.splitBucket(idx)
		// retry: the overflowing bucket has been split, so the directory
		// slot for k now points at a bucket with room (or, in the rare
		// case every entry still collides, the loop splits again).
	}
}

// splitBucket splits the bucket at directory index idx, doubling the
// directory first if the bucket's local depth has caught up to the global
// depth (spec.md §4.2).
func (t *Table[K, V]) splitBucket(idx uint32) {
	old := t.directory[idx]

	if old.localDepth == t.globalDepth {
		t.doubleDirectory()
	}

	newLocalDepth := old.localDepth + 1
	splitBit := uint32(1) << old.localDepth

	sibling := &bucket[K, V]{localDepth: newLocalDepth}
	old.localDepth = newLocalDepth

	// Every directory slot currently pointing at old whose index has
	// splitBit set is repointed at the new sibling bucket.
	for i := range t.directory {
		if t.directory[i] == old && uint32(i)&splitBit != 0 {
			t.directory[i] = sibling
		}
	}

	kept := old.entries[:0:0]
	for _, e := range old.entries {
		if t.hash(e.key)&splitBit != 0 {
			sibling.entries = append(sibling.entries, e)
		} else {
			kept = append(kept, e)
		}
	}
	old.entries = kept
}

func (t *Table[K, V]) doubleDirectory() {
	newDir := make([]*bucket[K, V], len(t.directory)*2)
	copy(newDir, t.directory)
	copy(newDir[len(t.directory):], t.directory)
	t.directory = newDir
	t.globalDepth++
}

// Remove deletes k, compacting the owning bucket by swapping with its last
// slot (spec.md §4.2). It returns whether k was present.
func (t *Table[K, V]) Remove(k K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.bucketFor(k)
	for i := range b.entries {
		if b.entries[i].key == k {
			last := len(b.entries) - 1
			b.entries[i] = b.entries[last]
			b.entries = b.entries[:last]
			return true
		}
	}
	return false
}

// GlobalDepth reports the directory's current global depth, for tests.
func (t *Table[K, V]) GlobalDepth() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.globalDepth
}

// NumBuckets reports the number of distinct buckets currently allocated
// (directory slots may alias), for tests.
func (t *Table[K, V]) NumBuckets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := make(map[*bucket[K, V]]struct{})
	for _, b := range t.directory {
		seen[b] = struct{}{}
	}
	return len(seen)
}

// Len reports the total number of (key, value) pairs stored.
func (t *Table[K, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := make(map[*bucket[K, V]]struct{})
	n := 0
	for _, b := range t.directory {
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		n += len(b.entries)
	}
	return n
}
