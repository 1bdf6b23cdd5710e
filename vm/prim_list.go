package vm

// ---------------------------------------------------------------------------
// Pair and list primitives
// ---------------------------------------------------------------------------

func primCons(m *Machine, a []Cell) (Cell, error) {
	return m.Cons(a[0], a[1]), nil
}

func primCar(m *Machine, a []Cell) (Cell, error) {
	if err := m.pairArg(a[0], "car"); err != nil {
		return Undef, err
	}
	return m.car[a[0]], nil
}

func primCdr(m *Machine, a []Cell) (Cell, error) {
	if err := m.pairArg(a[0], "cdr"); err != nil {
		return Undef, err
	}
	return m.cdr[a[0]], nil
}

// cxr applies a path of car (true) and cdr (false) steps, innermost last.
func (m *Machine) cxr(x Cell, prim string, path ...bool) (Cell, error) {
	for i := len(path) - 1; i >= 0; i-- {
		if !m.IsPair(x) {
			return Undef, m.typeError(x, prim, "pair")
		}
		if path[i] {
			x = m.car[x]
		} else {
			x = m.cdr[x]
		}
	}
	return x, nil
}

func primCaar(m *Machine, a []Cell) (Cell, error) { return m.cxr(a[0], "caar", true, true) }
func primCadr(m *Machine, a []Cell) (Cell, error) { return m.cxr(a[0], "cadr", true, false) }
func primCdar(m *Machine, a []Cell) (Cell, error) { return m.cxr(a[0], "cdar", false, true) }
func primCddr(m *Machine, a []Cell) (Cell, error) { return m.cxr(a[0], "cddr", false, false) }

func primSetCar(m *Machine, a []Cell) (Cell, error) {
	if err := m.pairArg(a[0], "setcar"); err != nil {
		return Undef, err
	}
	if err := m.mutableArg(a[0], "setcar"); err != nil {
		return Undef, err
	}
	m.car[a[0]] = a[1]
	return a[0], nil
}

func primSetCdr(m *Machine, a []Cell) (Cell, error) {
	if err := m.pairArg(a[0], "setcdr"); err != nil {
		return Undef, err
	}
	if err := m.mutableArg(a[0], "setcdr"); err != nil {
		return Undef, err
	}
	m.cdr[a[0]] = a[1]
	return a[0], nil
}

func primList(m *Machine, a []Cell) (Cell, error) {
	return m.List(a...), nil
}

func primLength(m *Machine, a []Cell) (Cell, error) {
	n, err := m.listArg(a[0], "length")
	if err != nil {
		return Undef, err
	}
	return m.MkFixnum(int32(n)), nil
}

func primReverse(m *Machine, a []Cell) (Cell, error) {
	if _, err := m.listArg(a[0], "reverse"); err != nil {
		return Undef, err
	}
	r := Nil
	m.Pin(r)
	for p := a[0]; p != Nil; p = m.cdr[p] {
		r = m.Cons(m.car[p], r)
		m.pins[len(m.pins)-1] = r
	}
	m.Unpin(1)
	return r, nil
}

// ---------------------------------------------------------------------------
// Predicates
// ---------------------------------------------------------------------------

func primAtom(m *Machine, a []Cell) (Cell, error) { return boolCell(m.IsAtom(a[0])), nil }
func primPair(m *Machine, a []Cell) (Cell, error) { return boolCell(m.IsPair(a[0])), nil }
func primNull(m *Machine, a []Cell) (Cell, error) { return boolCell(a[0] == Nil), nil }
func primEq(m *Machine, a []Cell) (Cell, error)   { return boolCell(a[0] == a[1]), nil }
func primEofp(m *Machine, a []Cell) (Cell, error) { return boolCell(a[0] == EOF), nil }

func primConstp(m *Machine, a []Cell) (Cell, error) {
	return boolCell(m.IsConst(a[0])), nil
}

func primInportp(m *Machine, a []Cell) (Cell, error) {
	return boolCell(m.IsInport(a[0])), nil
}

func primOutportp(m *Machine, a []Cell) (Cell, error) {
	return boolCell(m.IsOutport(a[0])), nil
}

// Eqv reports whether a and b are identical, or equal fixnums or
// characters.
func (m *Machine) Eqv(a, b Cell) bool {
	if a == b {
		return true
	}
	switch {
	case m.IsFixnum(a) && m.IsFixnum(b):
		return m.FixnumValue(a) == m.FixnumValue(b)
	case m.IsChar(a) && m.IsChar(b):
		return m.CharValue(a) == m.CharValue(b)
	}
	return false
}

func primEqv(m *Machine, a []Cell) (Cell, error) {
	return boolCell(m.Eqv(a[0], a[1])), nil
}

func typePredicate(t Cell) func(*Machine, []Cell) (Cell, error) {
	return func(m *Machine, a []Cell) (Cell, error) {
		return boolCell(m.isType(a[0], t)), nil
	}
}
