package vm

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strconv"
)

// ---------------------------------------------------------------------------
// Port table
// ---------------------------------------------------------------------------

// Console port numbers.
const (
	StdinPort  = 0
	StdoutPort = 1
	StderrPort = 2
)

// chunkSize is the buffer size of file ports.
const chunkSize = 1024

type port struct {
	cell   Cell // port atom, Nil when the slot is free
	name   string
	r      *bufio.Reader
	w      *bufio.Writer
	closer io.Closer
	line   int
	locked bool
}

func (p *port) open() bool {
	return p.cell != Nil
}

// initPorts creates the port table and the locked console ports.
func (m *Machine) initPorts() {
	m.ports = make([]port, m.cfg.Ports)
	for i := range m.ports {
		m.ports[i].cell = Nil
	}
	m.bindConsole()
}

// bindConsole (re)creates the console port atoms in slots 0 to 2.
func (m *Machine) bindConsole() {
	m.installPort(StdinPort, TInport, port{name: "stdin", r: bufio.NewReader(m.cfg.Stdin), line: 1, locked: true})
	m.installPort(StdoutPort, TOutport, port{name: "stdout", w: bufio.NewWriter(m.cfg.Stdout), locked: true})
	m.installPort(StderrPort, TOutport, port{name: "stderr", w: bufio.NewWriter(m.cfg.Stderr), locked: true})
	m.inp = StdinPort
	m.outp = StdoutPort
	m.errp = StderrPort
}

// installPort allocates the port atom for slot i and stores p there.
func (m *Machine) installPort(i int, kind Cell, p port) Cell {
	tag := AtomTag | PortTag | UsedTag
	if p.locked {
		tag |= LockTag
	}
	inner := m.MkAtom(Cell(i), Nil)
	p.cell = m.Cons3(kind, inner, tag)
	m.ports[i] = p
	return p.cell
}

// freeSlot returns an unused port number.
func (m *Machine) freeSlot() (int, *Error) {
	for i := range m.ports {
		if !m.ports[i].open() {
			return i, nil
		}
	}
	return -1, m.newError(TagResource, Undef, "too many open ports (%d)", len(m.ports))
}

// PortNumber returns the slot number of a port atom.
func (m *Machine) PortNumber(c Cell) int {
	return int(m.car[m.cdr[c]])
}

// PortName returns the name a port was opened with.
func (m *Machine) PortName(c Cell) string {
	return m.ports[m.PortNumber(c)].name
}

// PortLine returns the current line of an input port.
func (m *Machine) PortLine(c Cell) int {
	return m.ports[m.PortNumber(c)].line
}

// lookupPort validates c as an open port of the given kind.
func (m *Machine) lookupPort(c Cell, kind Cell, prim string) (*port, *Error) {
	if !m.isType(c, kind) || m.tag[c]&PortTag == 0 {
		return nil, m.typeError(c, prim, typeName(kind))
	}
	p := &m.ports[m.PortNumber(c)]
	if p.cell != c || m.tag[c]&UsedTag == 0 {
		return nil, m.newError(TagIO, c, "%s: port is closed", prim)
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Opening and closing
// ---------------------------------------------------------------------------

// OpenPort opens a file for input (kind TInport) or output (TOutport,
// truncating).
func (m *Machine) OpenPort(kind Cell, name string) (Cell, error) {
	if kind == TInport {
		return m.OpenInputFile(name)
	}
	return m.OpenOutputFile(name, false)
}

// OpenInputFile opens a file for reading.
func (m *Machine) OpenInputFile(name string) (Cell, error) {
	i, e := m.freeSlot()
	if e != nil {
		return Undef, e
	}
	f, err := os.Open(name)
	if err != nil {
		return Undef, m.newError(TagIO, Undef, "open-infile: %v", err)
	}
	return m.installPort(i, TInport, port{name: name, r: bufio.NewReaderSize(f, chunkSize), closer: f, line: 1}), nil
}

// OpenOutputFile opens a file for writing, truncating it unless app is
// set.
func (m *Machine) OpenOutputFile(name string, app bool) (Cell, error) {
	i, e := m.freeSlot()
	if e != nil {
		return Undef, e
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if app {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(name, flags, 0o644)
	if err != nil {
		return Undef, m.newError(TagIO, Undef, "open-outfile: %v", err)
	}
	return m.installPort(i, TOutport, port{name: name, w: bufio.NewWriterSize(f, chunkSize), closer: f}), nil
}

// OpenReader opens an input port reading from r.
func (m *Machine) OpenReader(name string, r io.Reader) (Cell, error) {
	i, e := m.freeSlot()
	if e != nil {
		return Undef, e
	}
	return m.installPort(i, TInport, port{name: name, r: bufio.NewReader(r), line: 1}), nil
}

// OpenWriter opens an output port writing to w.
func (m *Machine) OpenWriter(name string, w io.Writer) (Cell, error) {
	i, e := m.freeSlot()
	if e != nil {
		return Undef, e
	}
	return m.installPort(i, TOutport, port{name: name, w: bufio.NewWriter(w)}), nil
}

// ClosePort flushes and closes a port. Closing a locked port only flushes
// it.
func (m *Machine) ClosePort(c Cell) error {
	if c.IsSpecial() || m.tag[c]&PortTag == 0 {
		return m.typeError(c, "close-port", "port")
	}
	p := &m.ports[m.PortNumber(c)]
	if p.cell != c {
		return nil
	}
	if p.locked {
		if p.w != nil {
			p.w.Flush()
		}
		return nil
	}
	return m.closeSlot(p)
}

func (m *Machine) closeSlot(p *port) error {
	var err error
	if p.w != nil {
		err = p.w.Flush()
	}
	if p.closer != nil {
		if cerr := p.closer.Close(); err == nil {
			err = cerr
		}
	}
	m.tag[p.cell] &^= UsedTag
	if m.inp == m.PortNumber(p.cell) {
		m.inp = StdinPort
	}
	if m.outp == m.PortNumber(p.cell) {
		m.outp = StdoutPort
	}
	*p = port{cell: Nil}
	if err != nil {
		return m.newError(TagIO, Undef, "close-port: %v", err)
	}
	return nil
}

// CloseAllPorts closes every open port except the locked console ports.
func (m *Machine) CloseAllPorts() {
	for i := range m.ports {
		p := &m.ports[i]
		if p.open() && !p.locked {
			m.closeSlot(p)
		}
	}
}

// flushOutput flushes every open output port.
func (m *Machine) flushOutput() {
	for i := range m.ports {
		if p := &m.ports[i]; p.open() && p.w != nil {
			p.w.Flush()
		}
	}
}

// ---------------------------------------------------------------------------
// Current ports
// ---------------------------------------------------------------------------

// Inport returns the current input port.
func (m *Machine) Inport() Cell { return m.ports[m.inp].cell }

// Outport returns the current output port.
func (m *Machine) Outport() Cell { return m.ports[m.outp].cell }

// Errport returns the error port.
func (m *Machine) Errport() Cell { return m.ports[m.errp].cell }

// SetInport makes c the current input port.
func (m *Machine) SetInport(c Cell) error {
	if _, err := m.lookupPort(c, TInport, "set-inport"); err != nil {
		return err
	}
	m.inp = m.PortNumber(c)
	return nil
}

// SetOutport makes c the current output port.
func (m *Machine) SetOutport(c Cell) error {
	if _, err := m.lookupPort(c, TOutport, "set-outport"); err != nil {
		return err
	}
	m.outp = m.PortNumber(c)
	return nil
}

// ---------------------------------------------------------------------------
// Character I/O
// ---------------------------------------------------------------------------

// ReadRune reads one character from an input port. It returns io.EOF at
// the end of the input.
func (m *Machine) ReadRune(c Cell) (rune, error) {
	p, e := m.lookupPort(c, TInport, "readc")
	if e != nil {
		return 0, e
	}
	if c == m.ports[StdinPort].cell {
		m.ports[StdoutPort].w.Flush()
	}
	r, _, err := p.r.ReadRune()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, m.newError(TagIO, c, "readc: %v", err)
	}
	if r == '\n' {
		p.line++
	}
	return r, nil
}

// PeekRune returns the next character of an input port without consuming
// it.
func (m *Machine) PeekRune(c Cell) (rune, error) {
	p, e := m.lookupPort(c, TInport, "peekc")
	if e != nil {
		return 0, e
	}
	r, _, err := p.r.ReadRune()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, m.newError(TagIO, c, "peekc: %v", err)
	}
	p.r.UnreadRune()
	return r, nil
}

// ReadChar reads a character cell from a port, or EOF.
func (m *Machine) ReadChar(c Cell) (Cell, error) {
	r, err := m.ReadRune(c)
	if errors.Is(err, io.EOF) {
		return EOF, nil
	}
	if err != nil {
		return Undef, err
	}
	return m.MkChar(r), nil
}

// PeekChar returns the next character cell of a port, or EOF.
func (m *Machine) PeekChar(c Cell) (Cell, error) {
	r, err := m.PeekRune(c)
	if errors.Is(err, io.EOF) {
		return EOF, nil
	}
	if err != nil {
		return Undef, err
	}
	return m.MkChar(r), nil
}

// WriteChar writes a character cell to an output port.
func (m *Machine) WriteChar(c Cell, ch Cell) error {
	if !m.IsChar(ch) {
		return m.typeError(ch, "writec", "char")
	}
	return m.WriteString(c, string(m.CharValue(ch)))
}

// WriteString writes s to an output port. Console ports are flushed at
// every newline.
func (m *Machine) WriteString(c Cell, s string) error {
	p, e := m.lookupPort(c, TOutport, "write")
	if e != nil {
		return e
	}
	if _, err := p.w.WriteString(s); err != nil {
		return m.newError(TagIO, c, "write: %v", err)
	}
	if p.locked {
		for i := 0; i < len(s); i++ {
			if s[i] == '\n' {
				p.w.Flush()
				break
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Load context
// ---------------------------------------------------------------------------

type loadFrame struct {
	name string
	port Cell
}

// loadContext returns "file:line" for the innermost active load.
func (m *Machine) loadContext() string {
	if len(m.loads) == 0 {
		return ""
	}
	l := m.loads[len(m.loads)-1]
	p := &m.ports[m.PortNumber(l.port)]
	if p.cell != l.port {
		return l.name
	}
	return l.name + ":" + strconv.Itoa(p.line)
}

// LoadPort reads and evaluates every expression from an input port and
// closes it afterwards. name is used in diagnostics.
func (m *Machine) LoadPort(name string, c Cell) error {
	depth := len(m.loads)
	m.loads = append(m.loads, loadFrame{name: name, port: c})
	defer func() {
		if len(m.loads) > depth {
			m.loads = m.loads[:depth]
		}
		m.ClosePort(c)
	}()
	for {
		top := m.atTopLevel()
		x, err := m.Read(c)
		if err != nil {
			if top {
				return m.abort(err)
			}
			return err
		}
		if x == EOF {
			return nil
		}
		if _, err := m.Eval(x); err != nil {
			return err
		}
	}
}

// Load evaluates a source file.
func (m *Machine) Load(path string) error {
	c, err := m.OpenInputFile(path)
	if err != nil {
		return err
	}
	m.log.Debugf("loading %s", path)
	return m.LoadPort(path, c)
}
