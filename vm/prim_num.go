package vm

import "unicode"

// ---------------------------------------------------------------------------
// Arithmetic primitives
// ---------------------------------------------------------------------------

// fixnums2 unboxes two fixnum arguments.
func (m *Machine) fixnums2(a []Cell, prim string) (int64, int64, *Error) {
	x, err := m.fixnumArg(a[0], prim)
	if err != nil {
		return 0, 0, err
	}
	y, err := m.fixnumArg(a[1], prim)
	if err != nil {
		return 0, 0, err
	}
	return int64(x), int64(y), nil
}

func primPlus(m *Machine, a []Cell) (Cell, error) {
	x, y, err := m.fixnums2(a, "+")
	if err != nil {
		return Undef, err
	}
	return m.mkFixnum(x+y, "+")
}

func primMinus(m *Machine, a []Cell) (Cell, error) {
	x, y, err := m.fixnums2(a, "-")
	if err != nil {
		return Undef, err
	}
	return m.mkFixnum(x-y, "-")
}

func primTimes(m *Machine, a []Cell) (Cell, error) {
	x, y, err := m.fixnums2(a, "*")
	if err != nil {
		return Undef, err
	}
	return m.mkFixnum(x*y, "*")
}

// divisor rejects a zero divisor.
func (m *Machine) divisor(y int64, prim string) *Error {
	if y == 0 {
		return m.newError(TagDivZero, Undef, "%s: division by zero", prim)
	}
	return nil
}

func primDiv(m *Machine, a []Cell) (Cell, error) {
	x, y, err := m.fixnums2(a, "/")
	if err != nil {
		return Undef, err
	}
	if err := m.divisor(y, "/"); err != nil {
		return Undef, err
	}
	return m.mkFixnum(x/y, "/")
}

func primRem(m *Machine, a []Cell) (Cell, error) {
	x, y, err := m.fixnums2(a, "rem")
	if err != nil {
		return Undef, err
	}
	if err := m.divisor(y, "rem"); err != nil {
		return Undef, err
	}
	return m.mkFixnum(x%y, "rem")
}

func primMod(m *Machine, a []Cell) (Cell, error) {
	x, y, err := m.fixnums2(a, "mod")
	if err != nil {
		return Undef, err
	}
	if err := m.divisor(y, "mod"); err != nil {
		return Undef, err
	}
	r := x % y
	if r != 0 && (r < 0) != (y < 0) {
		r += y
	}
	return m.mkFixnum(r, "mod")
}

func primAbs(m *Machine, a []Cell) (Cell, error) {
	x, err := m.fixnumArg(a[0], "abs")
	if err != nil {
		return Undef, err
	}
	n := int64(x)
	if n < 0 {
		n = -n
	}
	return m.mkFixnum(n, "abs")
}

func primNeg(m *Machine, a []Cell) (Cell, error) {
	x, err := m.fixnumArg(a[0], "neg")
	if err != nil {
		return Undef, err
	}
	return m.mkFixnum(-int64(x), "neg")
}

func numCompare(prim string, cmp func(a, b int32) bool) func(*Machine, []Cell) (Cell, error) {
	return func(m *Machine, a []Cell) (Cell, error) {
		x, y, err := m.fixnums2(a, prim)
		if err != nil {
			return Undef, err
		}
		return boolCell(cmp(int32(x), int32(y))), nil
	}
}

// ---------------------------------------------------------------------------
// Character primitives
// ---------------------------------------------------------------------------

func primChar(m *Machine, a []Cell) (Cell, error) {
	n, err := m.fixnumArg(a[0], "char")
	if err != nil {
		return Undef, err
	}
	if n < 0 || n > unicode.MaxRune {
		return Undef, m.rangeError(a[0], "char")
	}
	return m.MkChar(rune(n)), nil
}

func primCharval(m *Machine, a []Cell) (Cell, error) {
	r, err := m.charArg(a[0], "charval")
	if err != nil {
		return Undef, err
	}
	return m.MkFixnum(int32(r)), nil
}

func (m *Machine) chars2(a []Cell, prim string) (rune, rune, *Error) {
	x, err := m.charArg(a[0], prim)
	if err != nil {
		return 0, 0, err
	}
	y, err := m.charArg(a[1], prim)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func primCharLess(m *Machine, a []Cell) (Cell, error) {
	x, y, err := m.chars2(a, "c<")
	if err != nil {
		return Undef, err
	}
	return boolCell(x < y), nil
}

func primCharEq(m *Machine, a []Cell) (Cell, error) {
	x, y, err := m.chars2(a, "c=")
	if err != nil {
		return Undef, err
	}
	return boolCell(x == y), nil
}

func charTest(prim string, test func(rune) bool) func(*Machine, []Cell) (Cell, error) {
	return func(m *Machine, a []Cell) (Cell, error) {
		r, err := m.charArg(a[0], prim)
		if err != nil {
			return Undef, err
		}
		return boolCell(test(r)), nil
	}
}

var (
	primAlphac   = charTest("alphac", unicode.IsLetter)
	primNumericc = charTest("numericc", unicode.IsDigit)
	primWhitec   = charTest("whitec", unicode.IsSpace)
)

func charMap(prim string, f func(rune) rune) func(*Machine, []Cell) (Cell, error) {
	return func(m *Machine, a []Cell) (Cell, error) {
		r, err := m.charArg(a[0], prim)
		if err != nil {
			return Undef, err
		}
		return m.MkChar(f(r)), nil
	}
}

var (
	primUpcase   = charMap("upcase", unicode.ToUpper)
	primDowncase = charMap("downcase", unicode.ToLower)
)
