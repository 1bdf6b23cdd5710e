package vm

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// String primitives
// ---------------------------------------------------------------------------

func primMkstr(m *Machine, a []Cell) (Cell, error) {
	n, err := m.fixnumArg(a[0], "mkstr")
	if err != nil {
		return Undef, err
	}
	if n < 0 {
		return Undef, m.rangeError(a[0], "mkstr")
	}
	fill := ' '
	if a[1] != Nil {
		r, err := m.charArg(a[1], "mkstr")
		if err != nil {
			return Undef, err
		}
		fill = r
	}
	s := m.AllocVector(TString, int(n))
	for i := 0; i < int(n); i++ {
		m.VecSet(s, i, Cell(fill))
	}
	return s, nil
}

func primSref(m *Machine, a []Cell) (Cell, error) {
	if !m.IsString(a[0]) {
		return Undef, m.typeError(a[0], "sref", "string")
	}
	i, err := m.indexArg(a[1], m.VecLen(a[0]), "sref")
	if err != nil {
		return Undef, err
	}
	return m.MkChar(rune(m.VecRef(a[0], i))), nil
}

func primSset(m *Machine, a []Cell) (Cell, error) {
	if !m.IsString(a[0]) {
		return Undef, m.typeError(a[0], "sset", "string")
	}
	if err := m.mutableArg(a[0], "sset"); err != nil {
		return Undef, err
	}
	i, err := m.indexArg(a[1], m.VecLen(a[0]), "sset")
	if err != nil {
		return Undef, err
	}
	r, err := m.charArg(a[2], "sset")
	if err != nil {
		return Undef, err
	}
	m.VecSet(a[0], i, Cell(r))
	return a[0], nil
}

func primSsize(m *Machine, a []Cell) (Cell, error) {
	if !m.IsString(a[0]) {
		return Undef, m.typeError(a[0], "ssize", "string")
	}
	return m.MkFixnum(int32(m.VecLen(a[0]))), nil
}

func primSubstr(m *Machine, a []Cell) (Cell, error) {
	if !m.IsString(a[0]) {
		return Undef, m.typeError(a[0], "substr", "string")
	}
	n := m.VecLen(a[0])
	from, err := m.indexArg(a[1], n+1, "substr")
	if err != nil {
		return Undef, err
	}
	to, err := m.indexArg(a[2], n+1, "substr")
	if err != nil {
		return Undef, err
	}
	if to < from {
		return Undef, m.rangeError(a[2], "substr")
	}
	s := m.AllocVector(TString, to-from)
	for i := from; i < to; i++ {
		m.VecSet(s, i-from, m.VecRef(a[0], i))
	}
	return s, nil
}

func primStringAppend(m *Machine, a []Cell) (Cell, error) {
	var b strings.Builder
	for _, c := range a {
		s, err := m.stringArg(c, "string-append")
		if err != nil {
			return Undef, err
		}
		b.WriteString(s)
	}
	return m.MkString(b.String()), nil
}

func primString(m *Machine, a []Cell) (Cell, error) {
	rs := make([]rune, len(a))
	for i, c := range a {
		r, err := m.charArg(c, "string")
		if err != nil {
			return Undef, err
		}
		rs[i] = r
	}
	return m.MkString(string(rs)), nil
}

func (m *Machine) strings2(a []Cell, prim string) (string, string, *Error) {
	x, err := m.stringArg(a[0], prim)
	if err != nil {
		return "", "", err
	}
	y, err := m.stringArg(a[1], prim)
	if err != nil {
		return "", "", err
	}
	return x, y, nil
}

func primStringLess(m *Machine, a []Cell) (Cell, error) {
	x, y, err := m.strings2(a, "s<")
	if err != nil {
		return Undef, err
	}
	return boolCell(x < y), nil
}

func primStringEq(m *Machine, a []Cell) (Cell, error) {
	x, y, err := m.strings2(a, "s=")
	if err != nil {
		return Undef, err
	}
	return boolCell(x == y), nil
}

func primSymname(m *Machine, a []Cell) (Cell, error) {
	if !m.IsSymbol(a[0]) {
		return Undef, m.typeError(a[0], "symname", "symbol")
	}
	return m.MkString(m.SymbolName(a[0])), nil
}

func primSymbol(m *Machine, a []Cell) (Cell, error) {
	s, err := m.stringArg(a[0], "symbol")
	if err != nil {
		return Undef, err
	}
	if s == "" {
		return Undef, m.rangeError(a[0], "symbol")
	}
	return m.Intern(s), nil
}

// radixArg returns the radix argument, defaulting to 10.
func (m *Machine) radixArg(c Cell, prim string) (int, *Error) {
	if c == Nil {
		return 10, nil
	}
	r, err := m.fixnumArg(c, prim)
	if err != nil {
		return 0, err
	}
	if r < 2 || r > 36 {
		return 0, m.rangeError(c, prim)
	}
	return int(r), nil
}

func primNtoa(m *Machine, a []Cell) (Cell, error) {
	n, err := m.fixnumArg(a[0], "ntoa")
	if err != nil {
		return Undef, err
	}
	radix, err := m.radixArg(a[1], "ntoa")
	if err != nil {
		return Undef, err
	}
	return m.MkString(strconv.FormatInt(int64(n), radix)), nil
}

// primAton converts a string to a fixnum, or nil when it is not a valid
// number in the given radix.
func primAton(m *Machine, a []Cell) (Cell, error) {
	s, err := m.stringArg(a[0], "aton")
	if err != nil {
		return Undef, err
	}
	radix, err := m.radixArg(a[1], "aton")
	if err != nil {
		return Undef, err
	}
	n, perr := strconv.ParseInt(s, radix, 32)
	if perr != nil {
		return Nil, nil
	}
	return m.MkFixnum(int32(n)), nil
}

func primStrlist(m *Machine, a []Cell) (Cell, error) {
	s, err := m.stringArg(a[0], "strlist")
	if err != nil {
		return Undef, err
	}
	rs := []rune(s)
	lst := Nil
	m.Pin(lst)
	for i := len(rs) - 1; i >= 0; i-- {
		ch := m.MkChar(rs[i])
		lst = m.Cons(ch, lst)
		m.pins[len(m.pins)-1] = lst
	}
	m.Unpin(1)
	return lst, nil
}

func primListstr(m *Machine, a []Cell) (Cell, error) {
	if _, err := m.listArg(a[0], "liststr"); err != nil {
		return Undef, err
	}
	var rs []rune
	for p := a[0]; p != Nil; p = m.cdr[p] {
		r, err := m.charArg(m.car[p], "liststr")
		if err != nil {
			return Undef, err
		}
		rs = append(rs, r)
	}
	return m.MkString(string(rs)), nil
}

// ---------------------------------------------------------------------------
// Vector primitives
// ---------------------------------------------------------------------------

func (m *Machine) vectorArg(c Cell, prim string) *Error {
	if !m.IsVector(c) {
		return m.typeError(c, prim, "vector")
	}
	return nil
}

func primMkvec(m *Machine, a []Cell) (Cell, error) {
	n, err := m.fixnumArg(a[0], "mkvec")
	if err != nil {
		return Undef, err
	}
	if n < 0 {
		return Undef, m.rangeError(a[0], "mkvec")
	}
	v := m.AllocVector(TVector, int(n))
	if a[1] != Nil {
		for i := 0; i < int(n); i++ {
			m.VecSet(v, i, a[1])
		}
	}
	return v, nil
}

func primVref(m *Machine, a []Cell) (Cell, error) {
	if err := m.vectorArg(a[0], "vref"); err != nil {
		return Undef, err
	}
	i, err := m.indexArg(a[1], m.VecLen(a[0]), "vref")
	if err != nil {
		return Undef, err
	}
	return m.VecRef(a[0], i), nil
}

func primVset(m *Machine, a []Cell) (Cell, error) {
	if err := m.vectorArg(a[0], "vset"); err != nil {
		return Undef, err
	}
	if err := m.mutableArg(a[0], "vset"); err != nil {
		return Undef, err
	}
	i, err := m.indexArg(a[1], m.VecLen(a[0]), "vset")
	if err != nil {
		return Undef, err
	}
	m.VecSet(a[0], i, a[2])
	return a[0], nil
}

func primVsize(m *Machine, a []Cell) (Cell, error) {
	if err := m.vectorArg(a[0], "vsize"); err != nil {
		return Undef, err
	}
	return m.MkFixnum(int32(m.VecLen(a[0]))), nil
}

func primVector(m *Machine, a []Cell) (Cell, error) {
	v := m.AllocVector(TVector, len(a))
	for i, c := range a {
		m.VecSet(v, i, c)
	}
	return v, nil
}

func primListvec(m *Machine, a []Cell) (Cell, error) {
	n, err := m.listArg(a[0], "listvec")
	if err != nil {
		return Undef, err
	}
	v := m.AllocVector(TVector, n)
	i := 0
	for p := a[0]; p != Nil; p = m.cdr[p] {
		m.VecSet(v, i, m.car[p])
		i++
	}
	return v, nil
}

func primVeclist(m *Machine, a []Cell) (Cell, error) {
	if err := m.vectorArg(a[0], "veclist"); err != nil {
		return Undef, err
	}
	lst := Nil
	m.Pin(lst)
	for i := m.VecLen(a[0]) - 1; i >= 0; i-- {
		lst = m.Cons(m.VecRef(a[0], i), lst)
		m.pins[len(m.pins)-1] = lst
	}
	m.Unpin(1)
	return lst, nil
}

func primVfill(m *Machine, a []Cell) (Cell, error) {
	if err := m.vectorArg(a[0], "vfill"); err != nil {
		return Undef, err
	}
	if err := m.mutableArg(a[0], "vfill"); err != nil {
		return Undef, err
	}
	n := m.VecLen(a[0])
	for i := 0; i < n; i++ {
		m.VecSet(a[0], i, a[1])
	}
	return a[0], nil
}
