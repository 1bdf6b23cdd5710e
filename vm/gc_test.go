package vm

import "testing"

// ---------------------------------------------------------------------------
// Garbage collector tests
// ---------------------------------------------------------------------------

// Test that unreachable nodes are returned to the free list.
func TestCollectFreesGarbage(t *testing.T) {
	m, _, _ := newTestMachine(4096, 4096)
	m.Collect()
	before := m.FreeNodes()

	for i := 0; i < 1000; i++ {
		m.Cons(Nil, Nil)
	}
	if m.FreeNodes() != before-1000 {
		t.Fatalf("free nodes = %d, want %d", m.FreeNodes(), before-1000)
	}
	stats := m.Collect()
	if m.FreeNodes() != before {
		t.Errorf("free nodes after collect = %d, want %d", m.FreeNodes(), before)
	}
	if stats.NodesFreed != 1000 {
		t.Errorf("nodes freed = %d, want 1000", stats.NodesFreed)
	}
}

// Test that pinned structures and global bindings survive collection
// unchanged.
func TestCollectKeepsReachable(t *testing.T) {
	m, _, _ := newTestMachine(4096, 4096)
	lst := m.List(m.MkFixnum(1), m.MkString("two"), m.MkChar('3'))
	m.Pin(lst)
	m.Define("kept", m.List(m.MkFixnum(42)))

	for i := 0; i < 2000; i++ {
		m.Cons(Nil, Nil)
	}
	m.Collect()

	if got := m.Sprint(lst, true); got != `(1 "two" #\3)` {
		t.Errorf("pinned list = %s", got)
	}
	v, ok := m.Global("kept")
	if !ok || m.Sprint(v, true) != "(42)" {
		t.Errorf("global = %s", m.Sprint(v, true))
	}
	m.Unpin(1)
}

// Test that the marker handles lists longer than any recursion limit.
func TestCollectLongList(t *testing.T) {
	m, _, _ := newTestMachine(300000, 4096)
	lst := Nil
	m.Pin(lst)
	for i := 0; i < 200000; i++ {
		lst = m.Cons(True, lst)
		m.Repin(lst)
	}
	m.Collect()
	if n := m.Length(lst); n != 200000 {
		t.Errorf("length after collect = %d, want 200000", n)
	}
	m.Unpin(1)
}

// Test that compaction slides live vectors down and keeps their contents.
func TestCompaction(t *testing.T) {
	m, _, _ := newTestMachine(4096, 4096)
	m.Collect()
	usedBefore := m.VectorCapacity() - m.FreeVCells()

	m.AllocVector(TVector, 100) // garbage
	keep := m.MkString("survivor")
	m.Pin(keep)
	m.AllocVector(TVector, 50) // garbage
	oldOffset := m.cdr[keep]

	stats := m.Collect()
	if stats.VCellsFreed != 100+50+2*vecHeaderSize {
		t.Errorf("vcells freed = %d, want %d", stats.VCellsFreed, 150+2*vecHeaderSize)
	}
	if m.cdr[keep] >= oldOffset {
		t.Errorf("vector not moved: offset %d, was %d", m.cdr[keep], oldOffset)
	}
	if m.StringValue(keep) != "survivor" {
		t.Errorf("string after compaction = %q", m.StringValue(keep))
	}
	if m.vecOwner(keep) != keep {
		t.Error("region link does not point back to its owner")
	}
	used := m.VectorCapacity() - m.FreeVCells()
	if want := usedBefore + len("survivor") + vecHeaderSize; used != want {
		t.Errorf("vector cells in use = %d, want %d", used, want)
	}
	m.Unpin(1)
}

// Test that a failed allocation collects and retries before giving up.
func TestAllocationTriggersCollection(t *testing.T) {
	m, _, _ := newTestMachine(2048, 4096)
	before := m.Collections()
	for i := 0; i < 10000; i++ {
		m.Cons(Nil, Nil)
	}
	if m.Collections() == before {
		t.Error("expected at least one collection")
	}
}

// Test that vector elements are traced as roots of their contents.
func TestCollectVectorContents(t *testing.T) {
	m, _, _ := newTestMachine(4096, 4096)
	v := m.AllocVector(TVector, 2)
	m.Pin(v)
	m.VecSet(v, 0, m.MkString("a"))
	m.VecSet(v, 1, m.List(m.MkFixnum(7)))
	for i := 0; i < 3000; i++ {
		m.Cons(Nil, Nil)
	}
	m.Collect()
	if got := m.Sprint(v, true); got != `#("a" (7))` {
		t.Errorf("vector after collect = %s", got)
	}
	m.Unpin(1)
}
