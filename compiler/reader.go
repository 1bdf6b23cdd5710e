package compiler

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/dspearson/lisp9/vm"
)

// ---------------------------------------------------------------------------
// Reader: characters to cells
// ---------------------------------------------------------------------------

// reader parses one datum at a time from an input port.
type reader struct {
	m    *vm.Machine
	port vm.Cell
}

// Read reads one datum from port. It returns vm.EOF at the end of the
// input. It has the signature expected by Machine.UseReader.
func Read(m *vm.Machine, port vm.Cell) (vm.Cell, error) {
	r := &reader{m: m, port: port}
	x, err := r.read()
	if err != nil {
		return vm.Undef, err
	}
	switch x {
	case vm.RParen:
		return vm.Undef, r.syntaxError("unexpected ')'")
	case vm.Dot:
		return vm.Undef, r.syntaxError("unexpected '.'")
	}
	return x, nil
}

func (r *reader) syntaxError(format string, args ...any) error {
	return r.m.Errorf(vm.TagSyntax, vm.Undef, format, args...)
}

// next returns the next character, or -1 at the end of the input.
func (r *reader) next() (rune, error) {
	c, err := r.m.ReadRune(r.port)
	if errors.Is(err, io.EOF) {
		return -1, nil
	}
	return c, err
}

func (r *reader) peek() (rune, error) {
	c, err := r.m.PeekRune(r.port)
	if errors.Is(err, io.EOF) {
		return -1, nil
	}
	return c, err
}

// skip consumes white space and comments and returns the next character.
func (r *reader) skip() (rune, error) {
	for {
		c, err := r.next()
		if err != nil || c < 0 {
			return c, err
		}
		if c == ';' {
			for c != '\n' && c >= 0 {
				if c, err = r.next(); err != nil {
					return c, err
				}
			}
			continue
		}
		if !unicode.IsSpace(c) {
			return c, nil
		}
	}
}

func isDelimiter(c rune) bool {
	return c < 0 || unicode.IsSpace(c) || strings.ContainsRune("()\";'`,", c)
}

// read returns the next datum, or one of the markers RParen and Dot.
func (r *reader) read() (vm.Cell, error) {
	c, err := r.skip()
	if err != nil {
		return vm.Undef, err
	}
	switch c {
	case -1:
		return vm.EOF, nil
	case '(':
		return r.readList()
	case ')':
		return vm.RParen, nil
	case '\'':
		return r.readQuoted("quote")
	case '`':
		return r.readQuoted("quasiquote")
	case ',':
		p, err := r.peek()
		if err != nil {
			return vm.Undef, err
		}
		if p == '@' {
			r.next()
			return r.readQuoted("unquote-splicing")
		}
		return r.readQuoted("unquote")
	case '"':
		return r.readString()
	case '#':
		return r.readHash()
	}
	return r.readAtom(c)
}

// readDatum reads a datum where markers are not allowed.
func (r *reader) readDatum() (vm.Cell, error) {
	x, err := r.read()
	if err != nil {
		return vm.Undef, err
	}
	switch x {
	case vm.EOF:
		return vm.Undef, r.syntaxError("unexpected end of file")
	case vm.RParen:
		return vm.Undef, r.syntaxError("unexpected ')'")
	case vm.Dot:
		return vm.Undef, r.syntaxError("unexpected '.'")
	}
	return x, nil
}

// readList reads the elements of a list up to the closing parenthesis.
// Elements are pinned until the list has been built.
func (r *reader) readList() (vm.Cell, error) {
	m := r.m
	n := 0
	defer func() { m.Unpin(n) }()
	for {
		x, err := r.read()
		if err != nil {
			return vm.Undef, err
		}
		switch x {
		case vm.EOF:
			return vm.Undef, r.syntaxError("unexpected end of file in list")
		case vm.RParen:
			return r.buildList(m.Pinned(n), vm.Nil), nil
		case vm.Dot:
			if n == 0 {
				return vm.Undef, r.syntaxError("'.' at start of list")
			}
			tail, err := r.readDatum()
			if err != nil {
				return vm.Undef, err
			}
			m.Pin(tail)
			n++
			end, err := r.read()
			if err != nil {
				return vm.Undef, err
			}
			if end != vm.RParen {
				return vm.Undef, r.syntaxError("expected ')' after dotted tail")
			}
			return r.buildList(m.Pinned(n)[:n-1], tail), nil
		}
		m.Pin(x)
		n++
	}
}

// buildList conses elems onto tail. The caller keeps elems and tail
// pinned.
func (r *reader) buildList(elems []vm.Cell, tail vm.Cell) vm.Cell {
	m := r.m
	lst := tail
	m.Pin(lst)
	for i := len(elems) - 1; i >= 0; i-- {
		lst = m.Cons(elems[i], lst)
		m.Repin(lst)
	}
	m.Unpin(1)
	return lst
}

func (r *reader) readQuoted(name string) (vm.Cell, error) {
	x, err := r.readDatum()
	if err != nil {
		return vm.Undef, err
	}
	r.m.Pin(x)
	defer r.m.Unpin(1)
	return r.m.List(r.m.Intern(name), x), nil
}

func (r *reader) readString() (vm.Cell, error) {
	var b strings.Builder
	for {
		c, err := r.next()
		if err != nil {
			return vm.Undef, err
		}
		switch c {
		case -1:
			return vm.Undef, r.syntaxError("unterminated string")
		case '"':
			return r.m.MkString(b.String()), nil
		case '\\':
			e, err := r.next()
			if err != nil {
				return vm.Undef, err
			}
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '"', '\\':
				b.WriteRune(e)
			case -1:
				return vm.Undef, r.syntaxError("unterminated string")
			default:
				return vm.Undef, r.syntaxError("unknown escape \\%c in string", e)
			}
		default:
			b.WriteRune(c)
		}
	}
}

var charNames = map[string]rune{
	"space":   ' ',
	"newline": '\n',
	"tab":     '\t',
}

func (r *reader) readHash() (vm.Cell, error) {
	c, err := r.next()
	if err != nil {
		return vm.Undef, err
	}
	switch c {
	case '\\':
		first, err := r.next()
		if err != nil {
			return vm.Undef, err
		}
		if first < 0 {
			return vm.Undef, r.syntaxError("unexpected end of file in character")
		}
		tok, err := r.token(first)
		if err != nil {
			return vm.Undef, err
		}
		rs := []rune(tok)
		if len(rs) == 1 {
			return r.m.MkChar(rs[0]), nil
		}
		if ch, ok := charNames[strings.ToLower(tok)]; ok {
			return r.m.MkChar(ch), nil
		}
		return vm.Undef, r.syntaxError("unknown character #\\%s", tok)
	case '(':
		lst, err := r.readList()
		if err != nil {
			return vm.Undef, err
		}
		if r.m.Length(lst) < 0 {
			return vm.Undef, r.syntaxError("dotted vector literal")
		}
		r.m.Pin(lst)
		v := r.m.AllocVector(vm.TVector, r.m.Length(lst))
		r.m.Unpin(1)
		for i := 0; lst != vm.Nil; i++ {
			r.m.VecSet(v, i, r.m.Car(lst))
			lst = r.m.Cdr(lst)
		}
		return v, nil
	}
	return vm.Undef, r.syntaxError("unknown syntax #%c", c)
}

// token collects characters up to the next delimiter, starting with
// first.
func (r *reader) token(first rune) (string, error) {
	var b strings.Builder
	b.WriteRune(first)
	n := 1
	for {
		c, err := r.peek()
		if err != nil {
			return "", err
		}
		if isDelimiter(c) {
			return b.String(), nil
		}
		r.next()
		b.WriteRune(c)
		n++
		if n > r.m.Config().TokenLength {
			return "", r.syntaxError("token too long: %s...", b.String())
		}
	}
}

// readAtom reads a number, a symbol, or the dot marker.
func (r *reader) readAtom(first rune) (vm.Cell, error) {
	tok, err := r.token(first)
	if err != nil {
		return vm.Undef, err
	}
	switch tok {
	case ".":
		return vm.Dot, nil
	case "t":
		return vm.True, nil
	case "nil":
		return vm.Nil, nil
	}
	if isNumber(tok) {
		n, err := strconv.ParseInt(strings.TrimPrefix(tok, "+"), 10, 32)
		if err != nil {
			return vm.Undef, r.syntaxError("fixnum out of range: %s", tok)
		}
		return r.m.MkFixnum(int32(n)), nil
	}
	return r.m.Intern(tok), nil
}

func isNumber(tok string) bool {
	if tok[0] == '+' || tok[0] == '-' {
		tok = tok[1:]
	}
	if tok == "" {
		return false
	}
	for _, c := range tok {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
