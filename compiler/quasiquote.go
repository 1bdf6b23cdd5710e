package compiler

import "github.com/dspearson/lisp9/vm"

// quasiquote rewrites a quasiquoted template into an expression built from
// cons and append. Nested quasiquotes are taken literally.
func (c *Compiler) quasiquote(x vm.Cell) (vm.Cell, error) {
	m := c.m
	if !m.IsPair(x) {
		if m.IsSymbol(x) {
			return m.List(c.sym.quote, x), nil
		}
		return x, nil
	}
	head := m.Car(x)
	switch head {
	case c.sym.unquote:
		if m.Length(x) != 2 {
			return vm.Undef, c.syntaxError(x, "unquote: expected one argument")
		}
		return m.Car(m.Cdr(x)), nil
	case c.sym.unquoteSplicing:
		return vm.Undef, c.syntaxError(x, "unquote-splicing outside of list")
	case c.sym.quasiquote:
		return m.List(c.sym.quote, x), nil
	}

	rest, err := c.quasiquote(m.Cdr(x))
	if err != nil {
		return vm.Undef, err
	}
	m.Pin(rest)
	defer m.Unpin(1)

	if m.IsPair(head) && m.Car(head) == c.sym.unquoteSplicing {
		if m.Length(head) != 2 {
			return vm.Undef, c.syntaxError(head, "unquote-splicing: expected one argument")
		}
		return m.List(c.sym.append, m.Car(m.Cdr(head)), rest), nil
	}
	first, err := c.quasiquote(head)
	if err != nil {
		return vm.Undef, err
	}
	m.Pin(first)
	defer m.Unpin(1)
	return m.List(c.sym.cons, first, rest), nil
}
