package exhash

import "testing"

func TestInsertFindRemove(t *testing.T) {
	tbl := New[int32, string](2, HashInt32)

	tbl.Insert(1, "one")
	tbl.Insert(2, "two")
	tbl.Insert(3, "three")

	if v, ok := tbl.Find(1); !ok || v != "one" {
		t.Fatalf("Find(1) = %q, %v", v, ok)
	}
	if v, ok := tbl.Find(2); !ok || v != "two" {
		t.Fatalf("Find(2) = %q, %v", v, ok)
	}
	if !tbl.Remove(2) {
		t.Fatal("Remove(2) should report true")
	}
	if _, ok := tbl.Find(2); ok {
		t.Fatal("Find(2) should miss after Remove")
	}
	if tbl.Remove(2) {
		t.Fatal("Remove(2) twice should report false")
	}
}

func TestSplitGrowsDirectoryUnderLoad(t *testing.T) {
	tbl := New[int32, int32](2, HashInt32)

	const n = 500
	for i := int32(0); i < n; i++ {
		tbl.Insert(i, i*10)
	}

	if got := tbl.Len(); got != n {
		t.Fatalf("Len() = %d, want %d", got, n)
	}
	for i := int32(0); i < n; i++ {
		v, ok := tbl.Find(i)
		if !ok || v != i*10 {
			t.Fatalf("Find(%d) = %d, %v, want %d, true", i, v, ok, i*10)
		}
	}
	if tbl.GlobalDepth() == 0 {
		t.Fatal("global depth should have grown past zero under this much load")
	}
}

func TestInsertUpdatesInPlace(t *testing.T) {
	tbl := New[int32, int32](4, HashInt32)
	tbl.Insert(7, 1)
	tbl.Insert(7, 2)
	if v, _ := tbl.Find(7); v != 2 {
		t.Fatalf("Find(7) = %d, want 2", v)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}
}
