package vm

import "fmt"

// ---------------------------------------------------------------------------
// Heap: node pool and vector pool
// ---------------------------------------------------------------------------

// Default pool capacities.
const (
	DefaultNodes  = 262144
	DefaultVCells = 262144
)

// Vector regions are prefixed by a link to the owning node and a length.
const (
	vecHeaderSize = 2
	vecLink       = -2 // offset of the link cell relative to the data
	vecLen        = -1 // offset of the length cell relative to the data
)

// deadRegion marks a vector region whose owner was swept.
const deadRegion Cell = -1

// Heap holds the two fixed-capacity pools. All inter-object references are
// indices into these pools.
type Heap struct {
	car []Cell
	cdr []Cell
	tag []uint8

	freeList Cell // head of the node free list, threaded through cdr
	nfree    int  // number of nodes on the free list

	vec     []Cell
	freeVec int // start of the free region of the vector pool

	// pins protects cells held by Go code across allocations.
	pins []Cell

	// roots enumerates the root set during a collection.
	roots func(mark func(Cell))

	// vecWork queues vectors whose contents still need marking.
	vecWork []Cell

	// afterGC is called with the statistics of every collection.
	afterGC func(GCStats)

	collections int
}

// NewHeap creates a heap with the given node and vector capacities.
func NewHeap(nodes, vcells int) *Heap {
	if nodes <= 0 {
		nodes = DefaultNodes
	}
	if vcells <= 0 {
		vcells = DefaultVCells
	}
	h := &Heap{
		car: make([]Cell, nodes),
		cdr: make([]Cell, nodes),
		tag: make([]uint8, nodes),
		vec: make([]Cell, vcells),
	}
	h.resetFreeList()
	return h
}

// resetFreeList links every node onto the free list.
func (h *Heap) resetFreeList() {
	h.freeList = Nil
	for i := len(h.car) - 1; i >= 0; i-- {
		h.car[i] = Nil
		h.cdr[i] = h.freeList
		h.tag[i] = 0
		h.freeList = Cell(i)
	}
	h.nfree = len(h.car)
	h.freeVec = 0
}

// SetRoots installs the root enumerator used by the collector.
func (h *Heap) SetRoots(fn func(mark func(Cell))) {
	h.roots = fn
}

// NodeCapacity returns the size of the node pool.
func (h *Heap) NodeCapacity() int { return len(h.car) }

// VectorCapacity returns the size of the vector pool.
func (h *Heap) VectorCapacity() int { return len(h.vec) }

// FreeNodes returns the number of nodes on the free list.
func (h *Heap) FreeNodes() int { return h.nfree }

// FreeVCells returns the number of unused vector pool cells.
func (h *Heap) FreeVCells() int { return len(h.vec) - h.freeVec }

// Collections returns the number of collections run so far.
func (h *Heap) Collections() int { return h.collections }

// ---------------------------------------------------------------------------
// Pinning
// ---------------------------------------------------------------------------

// Pin protects c from collection until the matching Unpin.
func (h *Heap) Pin(c Cell) {
	h.pins = append(h.pins, c)
}

// Unpin releases the n most recent pins.
func (h *Heap) Unpin(n int) {
	h.pins = h.pins[:len(h.pins)-n]
}

// Repin replaces the most recent pin with c.
func (h *Heap) Repin(c Cell) {
	h.pins[len(h.pins)-1] = c
}

// Pinned returns a copy of the n most recent pins, oldest first.
func (h *Heap) Pinned(n int) []Cell {
	return append([]Cell(nil), h.pins[len(h.pins)-n:]...)
}

// ---------------------------------------------------------------------------
// Node accessors
// ---------------------------------------------------------------------------

// Car returns the car field of node c.
func (h *Heap) Car(c Cell) Cell { return h.car[c] }

// Cdr returns the cdr field of node c.
func (h *Heap) Cdr(c Cell) Cell { return h.cdr[c] }

// Tag returns the tag bits of node c.
func (h *Heap) Tag(c Cell) uint8 { return h.tag[c] }

// SetCar overwrites the car of node c without any checks.
func (h *Heap) SetCar(c, v Cell) { h.car[c] = v }

// SetCdr overwrites the cdr of node c without any checks.
func (h *Heap) SetCdr(c, v Cell) { h.cdr[c] = v }

// SetTag overwrites the tag bits of node c.
func (h *Heap) SetTag(c Cell, t uint8) { h.tag[c] = t }

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// Cons3 allocates a node with the given fields. When the free list is
// empty it runs one collection and retries; a second failure is fatal.
func (h *Heap) Cons3(a, d Cell, tag uint8) Cell {
	if h.freeList == Nil {
		pinned := 1
		h.Pin(d)
		if tag&(AtomTag|VectorTag) == 0 {
			h.Pin(a)
			pinned++
		}
		h.Collect()
		h.Unpin(pinned)
		if h.freeList == Nil {
			panic(&FatalError{Message: "out of nodes", Detail: fmt.Sprintf("%d nodes in use", len(h.car))})
		}
	}
	n := h.freeList
	h.freeList = h.cdr[n]
	h.nfree--
	h.car[n] = a
	h.cdr[n] = d
	h.tag[n] = tag
	return n
}

// Cons allocates a pair.
func (h *Heap) Cons(a, d Cell) Cell {
	return h.Cons3(a, d, 0)
}

// MkAtom allocates an atom.
func (h *Heap) MkAtom(a, d Cell) Cell {
	return h.Cons3(a, d, AtomTag)
}

// AllocVector allocates a vector of the given type with n elements. The
// elements are initialised to Nil for vectors and to 0 otherwise. If the
// vector pool has no room, a collection (which compacts the pool) is run
// and the allocation retried once.
func (h *Heap) AllocVector(typ Cell, n int) Cell {
	if n < 0 {
		panic(&FatalError{Message: "negative vector size", Detail: fmt.Sprint(n)})
	}
	v := h.Cons3(typ, Nil, VectorTag)
	size := n + vecHeaderSize
	if h.freeVec+size > len(h.vec) {
		h.Pin(v)
		h.Collect()
		h.Unpin(1)
		if h.freeVec+size > len(h.vec) {
			panic(&FatalError{Message: "out of vector space", Detail: fmt.Sprintf("need %d cells, %d free", size, len(h.vec)-h.freeVec)})
		}
	}
	base := h.freeVec
	h.freeVec += size
	h.vec[base] = v
	h.vec[base+1] = Cell(n)
	fill := Cell(0)
	if typ == TVector {
		fill = Nil
	}
	for i := base + vecHeaderSize; i < h.freeVec; i++ {
		h.vec[i] = fill
	}
	h.cdr[v] = Cell(base + vecHeaderSize)
	return v
}

// ---------------------------------------------------------------------------
// Vector accessors
// ---------------------------------------------------------------------------

// VecLen returns the element count of a vector, string, symbol or bytecode
// vector, read from the region header.
func (h *Heap) VecLen(c Cell) int {
	return int(h.vec[int(h.cdr[c])+vecLen])
}

// VecRef returns element i of a vector.
func (h *Heap) VecRef(c Cell, i int) Cell {
	return h.vec[int(h.cdr[c])+i]
}

// VecSet stores v into element i of a vector.
func (h *Heap) VecSet(c Cell, i int, v Cell) {
	h.vec[int(h.cdr[c])+i] = v
}

// VecData returns a view of the elements of a vector. The view is only
// valid until the next allocation, which may compact the pool.
func (h *Heap) VecData(c Cell) []Cell {
	base := int(h.cdr[c])
	return h.vec[base : base+h.VecLen(c)]
}

// vecOwner returns the link cell of the region backing c.
func (h *Heap) vecOwner(c Cell) Cell {
	return h.vec[int(h.cdr[c])+vecLink]
}
