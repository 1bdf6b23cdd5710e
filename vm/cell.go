package vm

// ---------------------------------------------------------------------------
// Cell: tagged handle into the node pool
// ---------------------------------------------------------------------------

// Cell is the universal value handle of the machine.
//
// Negative cells are immediate singletons. Non-negative cells index the
// node pool, where every compound or atomic object lives:
//   - pair: car and cdr are cells, no kind bits set
//   - atom: AtomTag set, car holds a type tag (or a raw value), cdr a cell
//   - vector: VectorTag set, car holds a type tag, cdr the offset of the
//     backing storage in the vector pool
type Cell int32

// Immediate singletons.
const (
	Nil    Cell = -1 // empty list, false
	True   Cell = -2 // canonical truth
	EOF    Cell = -3 // end of file
	Undef  Cell = -4 // unbound / unspecified
	RParen Cell = -5 // reader-internal: closing parenthesis
	Dot    Cell = -6 // reader-internal: dotted pair marker
)

// Type tags, stored in the car of atoms and vector headers.
const (
	TBytecode Cell = -10
	TCatchTag Cell = -11
	TChar     Cell = -12
	TClosure  Cell = -13
	TFixnum   Cell = -14
	TInport   Cell = -15
	TOutport  Cell = -16
	TString   Cell = -17
	TSymbol   Cell = -18
	TVector   Cell = -19
)

// Tag bits of a node-pool slot.
const (
	AtomTag   uint8 = 0x01 // atom: car = type, cdr = next
	MarkTag   uint8 = 0x02 // GC: reachable
	TravTag   uint8 = 0x04 // GC: car subtree being traversed
	VectorTag uint8 = 0x08 // vector: car = type, cdr = pool offset
	PortTag   uint8 = 0x10 // atom is an I/O port
	UsedTag   uint8 = 0x20 // port: slot in use
	LockTag   uint8 = 0x40 // port: survives close-all-ports
	ConstTag  uint8 = 0x80 // node is immutable
)

// Fixnum range. Fixnums are stored as raw 32-bit values inside atoms.
const (
	MaxFixnum int64 = 1<<31 - 1
	MinFixnum int64 = -(1 << 31)
)

// IsSpecial reports whether c is an immediate singleton.
func (c Cell) IsSpecial() bool {
	return c < 0
}

// typeName returns the printable name of a type tag.
func typeName(t Cell) string {
	switch t {
	case TBytecode:
		return "bytecode"
	case TCatchTag:
		return "catch-tag"
	case TChar:
		return "char"
	case TClosure:
		return "function"
	case TFixnum:
		return "fixnum"
	case TInport:
		return "inport"
	case TOutport:
		return "outport"
	case TString:
		return "string"
	case TSymbol:
		return "symbol"
	case TVector:
		return "vector"
	}
	return "unknown"
}

// ---------------------------------------------------------------------------
// Type predicates
// ---------------------------------------------------------------------------

// IsAtom reports whether c is not a pair. Immediates count as atoms.
func (h *Heap) IsAtom(c Cell) bool {
	return c.IsSpecial() || h.tag[c]&(AtomTag|VectorTag) != 0
}

// IsPair reports whether c is a cons cell.
func (h *Heap) IsPair(c Cell) bool {
	return !c.IsSpecial() && h.tag[c]&(AtomTag|VectorTag) == 0
}

// TypeOf returns the type tag of a typed atom or vector, or 0 for pairs and
// immediates.
func (h *Heap) TypeOf(c Cell) Cell {
	if c.IsSpecial() || h.tag[c]&(AtomTag|VectorTag) == 0 {
		return 0
	}
	return h.car[c]
}

func (h *Heap) isType(c Cell, t Cell) bool {
	return !c.IsSpecial() && h.tag[c]&(AtomTag|VectorTag) != 0 && h.car[c] == t
}

// IsFixnum reports whether c is a fixnum.
func (h *Heap) IsFixnum(c Cell) bool { return h.isType(c, TFixnum) }

// IsChar reports whether c is a character.
func (h *Heap) IsChar(c Cell) bool { return h.isType(c, TChar) }

// IsString reports whether c is a string.
func (h *Heap) IsString(c Cell) bool { return h.isType(c, TString) }

// IsSymbol reports whether c is a symbol.
func (h *Heap) IsSymbol(c Cell) bool { return h.isType(c, TSymbol) }

// IsVector reports whether c is a vector.
func (h *Heap) IsVector(c Cell) bool { return h.isType(c, TVector) }

// IsClosure reports whether c is a closure.
func (h *Heap) IsClosure(c Cell) bool { return h.isType(c, TClosure) }

// IsBytecode reports whether c is a bytecode vector.
func (h *Heap) IsBytecode(c Cell) bool { return h.isType(c, TBytecode) }

// IsCatchTag reports whether c is a catch tag.
func (h *Heap) IsCatchTag(c Cell) bool { return h.isType(c, TCatchTag) }

// IsInport reports whether c is an input port.
func (h *Heap) IsInport(c Cell) bool {
	return h.isType(c, TInport) && h.tag[c]&PortTag != 0
}

// IsOutport reports whether c is an output port.
func (h *Heap) IsOutport(c Cell) bool {
	return h.isType(c, TOutport) && h.tag[c]&PortTag != 0
}

// IsConst reports whether c is tagged immutable.
func (h *Heap) IsConst(c Cell) bool {
	return !c.IsSpecial() && h.tag[c]&ConstTag != 0
}

// ---------------------------------------------------------------------------
// Constructors for atomic values
// ---------------------------------------------------------------------------

// MkFixnum boxes a 32-bit integer.
func (h *Heap) MkFixnum(n int32) Cell {
	inner := h.MkAtom(Cell(n), Nil)
	return h.MkAtom(TFixnum, inner)
}

// FixnumValue unboxes a fixnum. The caller must have checked the type.
func (h *Heap) FixnumValue(c Cell) int32 {
	return int32(h.car[h.cdr[c]])
}

// MkChar boxes a character.
func (h *Heap) MkChar(r rune) Cell {
	inner := h.MkAtom(Cell(r), Nil)
	return h.MkAtom(TChar, inner)
}

// CharValue unboxes a character. The caller must have checked the type.
func (h *Heap) CharValue(c Cell) rune {
	return rune(h.car[h.cdr[c]])
}

// MkString allocates a string holding s.
func (h *Heap) MkString(s string) Cell {
	rs := []rune(s)
	c := h.AllocVector(TString, len(rs))
	base := h.cdr[c]
	for i, r := range rs {
		h.vec[int(base)+i] = Cell(r)
	}
	return c
}

// StringValue returns the contents of a string or symbol as a Go string.
func (h *Heap) StringValue(c Cell) string {
	base := int(h.cdr[c])
	n := h.VecLen(c)
	rs := make([]rune, n)
	for i := 0; i < n; i++ {
		rs[i] = rune(h.vec[base+i])
	}
	return string(rs)
}

// MkCatchTag allocates a fresh catch tag carrying a user tag.
func (h *Heap) MkCatchTag(user Cell) Cell {
	return h.MkAtom(TCatchTag, user)
}

// ---------------------------------------------------------------------------
// List helpers
// ---------------------------------------------------------------------------

// List builds a proper list from cells. Elements are protected while the
// spine is being allocated.
func (h *Heap) List(elems ...Cell) Cell {
	for _, e := range elems {
		h.Pin(e)
	}
	lst := Nil
	h.Pin(lst)
	for i := len(elems) - 1; i >= 0; i-- {
		lst = h.Cons(elems[i], lst)
		h.pins[len(h.pins)-1] = lst
	}
	h.Unpin(len(elems) + 1)
	return lst
}

// ListToSlice collects the elements of a proper list. It stops at the
// first non-pair cdr.
func (h *Heap) ListToSlice(lst Cell) []Cell {
	var out []Cell
	for h.IsPair(lst) {
		out = append(out, h.car[lst])
		lst = h.cdr[lst]
	}
	return out
}

// Length returns the length of a proper list, or -1 for dotted or
// circular lists.
func (h *Heap) Length(lst Cell) int {
	n := 0
	slow := lst
	for lst != Nil {
		if !h.IsPair(lst) {
			return -1
		}
		lst = h.cdr[lst]
		n++
		if n%2 == 0 {
			slow = h.cdr[slow]
			if slow == lst && lst != Nil {
				return -1
			}
		}
	}
	return n
}
