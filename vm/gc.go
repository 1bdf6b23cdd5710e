package vm

import "time"

// ---------------------------------------------------------------------------
// Garbage collector: mark, sweep, compact
// ---------------------------------------------------------------------------

// GCStats describes a single collection.
type GCStats struct {
	Nodes       int // live nodes after the collection
	FreeNodes   int // nodes on the free list after the collection
	VCells      int // vector pool cells in use after compaction
	FreeVCells  int // vector pool cells free after compaction
	NodesFreed  int // nodes reclaimed by this collection
	VCellsFreed int // vector cells reclaimed by this collection
	Duration    time.Duration
}

// Collect runs a full stop-the-world collection.
func (h *Heap) Collect() GCStats {
	start := time.Now()
	freeBefore := h.nfree
	vusedBefore := h.freeVec

	if h.roots != nil {
		h.roots(h.markRoot)
	}
	for _, c := range h.pins {
		h.markRoot(c)
	}
	h.sweep()
	h.compact()
	h.collections++

	stats := GCStats{
		Nodes:       len(h.car) - h.nfree,
		FreeNodes:   h.nfree,
		VCells:      h.freeVec,
		FreeVCells:  len(h.vec) - h.freeVec,
		NodesFreed:  h.nfree - freeBefore,
		VCellsFreed: vusedBefore - h.freeVec,
		Duration:    time.Since(start),
	}
	if h.afterGC != nil {
		h.afterGC(stats)
	}
	return stats
}

// markRoot marks everything reachable from c, including the contents of
// vectors found along the way.
func (h *Heap) markRoot(c Cell) {
	h.mark(c)
	for len(h.vecWork) > 0 {
		v := h.vecWork[len(h.vecWork)-1]
		h.vecWork = h.vecWork[:len(h.vecWork)-1]
		base := int(h.cdr[v])
		switch h.car[v] {
		case TVector:
			n := h.VecLen(v)
			for i := 0; i < n; i++ {
				h.mark(h.vec[base+i])
			}
		case TBytecode:
			// element 0 is the literal vector, the rest are raw words
			if h.VecLen(v) > 0 {
				h.mark(h.vec[base])
			}
		}
	}
}

// mark traverses the graph rooted at n using pointer reversal, so the
// auxiliary space is constant regardless of the depth of the structure.
// TravTag on a pair means its car is being traversed and the car field
// currently holds the parent link; otherwise the cdr does.
func (h *Heap) mark(n Cell) {
	p := Nil
	for {
		switch {
		case n.IsSpecial() || h.tag[n]&MarkTag != 0:
			// retreat
			if p == Nil {
				return
			}
			if h.tag[p]&TravTag != 0 {
				// finished car of p, continue with its cdr
				x := h.cdr[p]
				h.cdr[p] = h.car[p]
				h.car[p] = n
				h.tag[p] &^= TravTag
				n = x
			} else {
				// finished cdr of p, climb up
				x := p
				p = h.cdr[x]
				h.cdr[x] = n
				n = x
			}
		case h.tag[n]&VectorTag != 0:
			h.tag[n] |= MarkTag
			if h.cdr[n] >= 0 && (h.car[n] == TVector || h.car[n] == TBytecode) {
				h.vecWork = append(h.vecWork, n)
			}
		case h.tag[n]&AtomTag != 0:
			h.tag[n] |= MarkTag
			x := h.cdr[n]
			h.cdr[n] = p
			p = n
			n = x
		default:
			h.tag[n] |= MarkTag | TravTag
			x := h.car[n]
			h.car[n] = p
			p = n
			n = x
		}
	}
}

// sweep links unmarked nodes onto the free list and clears marks. Regions
// owned by unmarked vector headers are flagged dead for compaction.
func (h *Heap) sweep() {
	h.freeList = Nil
	h.nfree = 0
	for i := len(h.car) - 1; i >= 0; i-- {
		t := h.tag[i]
		if t&MarkTag != 0 {
			h.tag[i] = t &^ MarkTag
			continue
		}
		if t&VectorTag != 0 && h.cdr[i] >= 0 && h.vec[int(h.cdr[i])+vecLink] == Cell(i) {
			h.vec[int(h.cdr[i])+vecLink] = deadRegion
		}
		h.car[i] = Nil
		h.cdr[i] = h.freeList
		h.tag[i] = 0
		h.freeList = Cell(i)
		h.nfree++
	}
}

// compact slides live vector regions toward the start of the pool in
// address order and updates their owners.
func (h *Heap) compact() {
	from, to := 0, 0
	for from < h.freeVec {
		owner := h.vec[from]
		size := int(h.vec[from+1]) + vecHeaderSize
		if owner != deadRegion {
			if from != to {
				copy(h.vec[to:to+size], h.vec[from:from+size])
			}
			h.cdr[owner] = Cell(to + vecHeaderSize)
			to += size
		}
		from += size
	}
	h.freeVec = to
}
