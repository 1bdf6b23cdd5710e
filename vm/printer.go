package vm

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Printer
// ---------------------------------------------------------------------------

// Sprint renders c as text. When readable is set, strings and characters
// are printed in a form the reader accepts.
func (m *Machine) Sprint(c Cell, readable bool) string {
	var b strings.Builder
	m.print(&b, c, readable, 0)
	return b.String()
}

// Print writes the printed form of c to an output port.
func (m *Machine) Print(port, c Cell, readable bool) error {
	return m.WriteString(port, m.Sprint(c, readable))
}

func (m *Machine) print(b *strings.Builder, c Cell, readable bool, depth int) {
	if depth > m.cfg.PrintDepth {
		b.WriteString("...")
		return
	}
	switch c {
	case Nil:
		b.WriteString("nil")
		return
	case True:
		b.WriteString("t")
		return
	case EOF:
		b.WriteString("#<eof>")
		return
	case Undef:
		b.WriteString("#<undef>")
		return
	}
	if c.IsSpecial() {
		b.WriteString("#<special ")
		b.WriteString(strconv.Itoa(int(c)))
		b.WriteByte('>')
		return
	}
	if m.IsPair(c) {
		m.printList(b, c, readable, depth)
		return
	}
	if m.tag[c]&VectorTag != 0 {
		m.printVector(b, c, readable, depth)
		return
	}
	switch m.car[c] {
	case TFixnum:
		b.WriteString(strconv.Itoa(int(m.FixnumValue(c))))
	case TChar:
		printChar(b, m.CharValue(c), readable)
	case TClosure:
		b.WriteString("#<function")
		if name := m.ClosureName(c); name != Nil {
			b.WriteByte(' ')
			b.WriteString(m.SymbolName(name))
		}
		b.WriteByte('>')
	case TInport, TOutport:
		if m.tag[c]&PortTag != 0 {
			b.WriteString("#<")
			b.WriteString(typeName(m.car[c]))
			b.WriteByte(' ')
			b.WriteString(strconv.Itoa(m.PortNumber(c)))
			b.WriteByte('>')
			return
		}
		b.WriteString("#<atom>")
	case TCatchTag:
		b.WriteString("#<catch-tag>")
	default:
		b.WriteString("#<atom>")
	}
}

func (m *Machine) printList(b *strings.Builder, c Cell, readable bool, depth int) {
	if q, ok := m.symIndex["quote"]; ok && m.car[c] == q && m.IsPair(m.cdr[c]) && m.cdr[m.cdr[c]] == Nil {
		b.WriteByte('\'')
		m.print(b, m.car[m.cdr[c]], readable, depth+1)
		return
	}
	b.WriteByte('(')
	n := 0
	for {
		if n > m.cfg.PrintDepth {
			b.WriteString("...")
			break
		}
		m.print(b, m.car[c], readable, depth+1)
		n++
		c = m.cdr[c]
		if c == Nil {
			break
		}
		if !m.IsPair(c) {
			b.WriteString(" . ")
			m.print(b, c, readable, depth+1)
			break
		}
		b.WriteByte(' ')
	}
	b.WriteByte(')')
}

func (m *Machine) printVector(b *strings.Builder, c Cell, readable bool, depth int) {
	switch m.car[c] {
	case TString:
		s := m.StringValue(c)
		if !readable {
			b.WriteString(s)
			return
		}
		b.WriteByte('"')
		for _, r := range s {
			switch r {
			case '"':
				b.WriteString(`\"`)
			case '\\':
				b.WriteString(`\\`)
			case '\n':
				b.WriteString(`\n`)
			case '\t':
				b.WriteString(`\t`)
			default:
				b.WriteRune(r)
			}
		}
		b.WriteByte('"')
	case TSymbol:
		b.WriteString(m.StringValue(c))
	case TBytecode:
		b.WriteString("#<bytecode>")
	case TVector:
		b.WriteString("#(")
		n := m.VecLen(c)
		for i := 0; i < n; i++ {
			if i > m.cfg.PrintDepth {
				b.WriteString("...")
				break
			}
			if i > 0 {
				b.WriteByte(' ')
			}
			m.print(b, m.VecRef(c, i), readable, depth+1)
		}
		b.WriteByte(')')
	default:
		b.WriteString("#<vector>")
	}
}

func printChar(b *strings.Builder, r rune, readable bool) {
	if !readable {
		b.WriteRune(r)
		return
	}
	b.WriteString(`#\`)
	switch r {
	case ' ':
		b.WriteString("space")
	case '\n':
		b.WriteString("newline")
	case '\t':
		b.WriteString("tab")
	default:
		b.WriteRune(r)
	}
}
