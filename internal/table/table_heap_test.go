package table

import (
	"testing"

	"github.com/ryogrid/sharkfin/internal/buffer"
	"github.com/ryogrid/sharkfin/internal/common"
	"github.com/ryogrid/sharkfin/internal/disk"
	"github.com/ryogrid/sharkfin/internal/recovery"
)

func newTestHeap(t *testing.T) *Heap {
	t.Helper()
	dm := disk.NewVirtualManager()
	lm := recovery.NewLogManager(dm)
	lm.RunFlushThread()
	t.Cleanup(lm.StopFlushThread)
	pool := buffer.NewManager(common.BufferPoolSize, dm, lm)
	return New(pool)
}

func TestInsertGetDelete(t *testing.T) {
	h := newTestHeap(t)

	rid, ok := h.InsertTuple([]byte("hello world"))
	if !ok {
		t.Fatal("InsertTuple failed")
	}

	got, ok := h.GetTuple(rid)
	if !ok || string(got) != "hello world" {
		t.Fatalf("GetTuple = %q, %v", got, ok)
	}

	if !h.DeleteTuple(rid) {
		t.Fatal("DeleteTuple failed")
	}
	if _, ok := h.GetTuple(rid); ok {
		t.Fatal("GetTuple should miss a deleted slot")
	}
}

func TestUpdateInPlace(t *testing.T) {
	h := newTestHeap(t)
	rid, _ := h.InsertTuple([]byte("0123456789"))

	if !h.UpdateTuple(rid, []byte("short")) {
		t.Fatal("UpdateTuple with a shorter value should succeed")
	}
	got, _ := h.GetTuple(rid)
	if string(got) != "short" {
		t.Fatalf("GetTuple = %q, want %q", got, "short")
	}

	if h.UpdateTuple(rid, []byte("this value is far too long to fit")) {
		t.Fatal("UpdateTuple with a larger value should fail in this slot format")
	}
}

func TestInsertSpansMultiplePages(t *testing.T) {
	h := newTestHeap(t)

	const n = 2000
	rids := make([]bool, 0, n)
	big := make([]byte, 100)
	for i := 0; i < n; i++ {
		_, ok := h.InsertTuple(big)
		if !ok {
			t.Fatalf("InsertTuple #%d failed", i)
		}
		rids = append(rids, ok)
	}
	if len(rids) != n {
		t.Fatalf("inserted %d tuples, want %d", len(rids), n)
	}
	if h.FirstPageID() < 0 {
		t.Fatal("FirstPageID should be valid")
	}
}
