package vm

import "fmt"

// ---------------------------------------------------------------------------
// Symbol table
// ---------------------------------------------------------------------------

// Intern returns the unique symbol with the given name, creating it on
// first use. Symbol names are immutable.
func (m *Machine) Intern(name string) Cell {
	if s, ok := m.symIndex[name]; ok {
		return s
	}
	s := m.MkString(name)
	m.car[s] = TSymbol
	m.tag[s] |= ConstTag
	m.Pin(s)
	m.symbols = m.Cons(s, m.symbols)
	m.Unpin(1)
	m.symIndex[name] = s
	return s
}

// LookupSymbol returns the symbol with the given name if it has been
// interned.
func (m *Machine) LookupSymbol(name string) (Cell, bool) {
	s, ok := m.symIndex[name]
	return s, ok
}

// SymbolName returns the name of a symbol.
func (m *Machine) SymbolName(s Cell) string {
	return m.StringValue(s)
}

// Symbols returns a list of all interned symbols.
func (m *Machine) Symbols() Cell {
	return m.symbols
}

// Gensym creates a fresh uninterned symbol.
func (m *Machine) Gensym() Cell {
	m.gensymCounter++
	s := m.MkString(fmt.Sprintf("G%d", m.gensymCounter))
	m.car[s] = TSymbol
	m.tag[s] |= ConstTag
	return s
}

// rebuildSymbolIndex recreates the Go index from the symbol list.
func (m *Machine) rebuildSymbolIndex() {
	m.symIndex = make(map[string]Cell)
	for p := m.symbols; p != Nil; p = m.cdr[p] {
		s := m.car[p]
		m.symIndex[m.StringValue(s)] = s
	}
}

// ---------------------------------------------------------------------------
// Global bindings
// ---------------------------------------------------------------------------

// Binding returns the global binding pair (sym . value) of sym, creating an
// unbound one if necessary. Compiled code refers to the pair directly.
func (m *Machine) Binding(sym Cell) Cell {
	if b, ok := m.globIndex[sym]; ok {
		return b
	}
	b := m.Cons(sym, Undef)
	m.Pin(b)
	m.globals = m.Cons(b, m.globals)
	m.Unpin(1)
	m.globIndex[sym] = b
	return b
}

// Define binds a global variable.
func (m *Machine) Define(name string, val Cell) {
	m.Pin(val)
	b := m.Binding(m.Intern(name))
	m.Unpin(1)
	m.cdr[b] = val
}

// Global returns the value of a global variable and whether it is bound.
func (m *Machine) Global(name string) (Cell, bool) {
	s, ok := m.symIndex[name]
	if !ok {
		return Undef, false
	}
	b, ok := m.globIndex[s]
	if !ok || m.cdr[b] == Undef {
		return Undef, false
	}
	return m.cdr[b], true
}

// ---------------------------------------------------------------------------
// Macros
// ---------------------------------------------------------------------------

// DefineMacro binds a macro expander closure to sym.
func (m *Machine) DefineMacro(sym, fn Cell) {
	if b, ok := m.macroIndex[sym]; ok {
		m.cdr[b] = fn
		return
	}
	m.Pin(fn)
	b := m.Cons(sym, fn)
	m.Pin(b)
	m.macros = m.Cons(b, m.macros)
	m.Unpin(2)
	m.macroIndex[sym] = b
}

// Macro returns the expander bound to sym, if any.
func (m *Machine) Macro(sym Cell) (Cell, bool) {
	b, ok := m.macroIndex[sym]
	if !ok {
		return Nil, false
	}
	return m.cdr[b], true
}

// rebuildBindingIndexes recreates the Go indexes of the global and macro
// association lists.
func (m *Machine) rebuildBindingIndexes() {
	m.globIndex = make(map[Cell]Cell)
	for p := m.globals; p != Nil; p = m.cdr[p] {
		b := m.car[p]
		m.globIndex[m.car[b]] = b
	}
	m.macroIndex = make(map[Cell]Cell)
	for p := m.macros; p != Nil; p = m.cdr[p] {
		b := m.car[p]
		m.macroIndex[m.car[b]] = b
	}
}
