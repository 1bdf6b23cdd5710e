package vm

import (
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config holds the capacities and limits of a machine.
type Config struct {
	Nodes       int // node pool capacity
	VCells      int // vector pool capacity
	Ports       int // port table size
	Trace       int // trace ring size
	PrintDepth  int // printer nesting limit
	TokenLength int // reader symbol length limit
	MacroDepth  int // macro expansion depth limit
	MaxFrames   int // non-tail call depth limit
	MaxStack    int // value stack limit

	// GCVerbose logs every collection at info level.
	GCVerbose bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultConfig returns the standard capacities, using the process's
// standard streams for the console ports.
func DefaultConfig() Config {
	return Config{
		Nodes:       DefaultNodes,
		VCells:      DefaultVCells,
		Ports:       20,
		Trace:       10,
		PrintDepth:  1024,
		TokenLength: 80,
		MacroDepth:  2000,
		MaxFrames:   100000,
		MaxStack:    1000000,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Nodes <= 0 {
		c.Nodes = d.Nodes
	}
	if c.VCells <= 0 {
		c.VCells = d.VCells
	}
	if c.Ports < 3 {
		c.Ports = d.Ports
	}
	if c.Trace <= 0 {
		c.Trace = d.Trace
	}
	if c.PrintDepth <= 0 {
		c.PrintDepth = d.PrintDepth
	}
	if c.TokenLength <= 0 {
		c.TokenLength = d.TokenLength
	}
	if c.MacroDepth <= 0 {
		c.MacroDepth = d.MacroDepth
	}
	if c.MaxFrames <= 0 {
		c.MaxFrames = d.MaxFrames
	}
	if c.MaxStack <= 0 {
		c.MaxStack = d.MaxStack
	}
	if c.Stdin == nil {
		c.Stdin = d.Stdin
	}
	if c.Stdout == nil {
		c.Stdout = d.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = d.Stderr
	}
	return c
}

// ---------------------------------------------------------------------------
// Machine
// ---------------------------------------------------------------------------

// CompileFunc compiles one expression into a program closure taking no
// arguments.
type CompileFunc func(m *Machine, expr Cell) (Cell, error)

// ReadFunc reads one expression from an input port. It returns EOF at the
// end of the input.
type ReadFunc func(m *Machine, port Cell) (Cell, error)

// callFrame is a saved return context.
type callFrame struct {
	code Cell
	env  Cell
	pc   int
	stop bool // returning through this frame ends the current activation
}

// catchFrame is the snapshot restored by throw and by error handlers.
type catchFrame struct {
	ctag    Cell // fresh catch tag
	handler Cell // handler closure, Nil for plain catch frames
	pc      int  // landing address
	code    Cell
	env     Cell
	sp      int
	fp      int // return-frame depth
	errtab  Cell
}

// Machine is a complete LS9 runtime: the heap plus the interpreter state.
// A Machine must only be used by one goroutine at a time.
type Machine struct {
	*Heap
	cfg Config

	// Registers
	acc  Cell
	code Cell
	pc   int
	env  Cell
	argc int
	fn   Cell // closure being entered

	stack   []Cell
	sp      int
	frames  []callFrame
	catches []catchFrame

	// catchBase is the first catch frame owned by the innermost activation.
	catchBase int

	symbols    Cell
	symIndex   map[string]Cell
	globals    Cell
	globIndex  map[Cell]Cell
	macros     Cell
	macroIndex map[Cell]Cell
	errtab     Cell

	gensymCounter int

	trace *traceRing
	ports []port
	inp   int
	outp  int
	errp  int
	loads []loadFrame

	compile CompileFunc
	read    ReadFunc

	imageID uuid.UUID

	// well-known symbols
	symT      Cell
	symErrval Cell
	symErrtag Cell

	log   commonlog.Logger
	gclog commonlog.Logger
}

// New creates a machine with the given configuration. Zero fields take
// their defaults.
func New(cfg Config) *Machine {
	cfg = cfg.withDefaults()
	m := &Machine{
		Heap:  NewHeap(cfg.Nodes, cfg.VCells),
		cfg:   cfg,
		log:   commonlog.GetLogger("ls9.vm"),
		gclog: commonlog.GetLogger("ls9.gc"),
	}
	m.initState()
	m.symbols = Nil
	m.globals = Nil
	m.macros = Nil
	m.symIndex = make(map[string]Cell)
	m.globIndex = make(map[Cell]Cell)
	m.macroIndex = make(map[Cell]Cell)
	m.attachHeap()
	m.initPorts()
	m.initSymbols()
	m.log.Debugf("machine created: %d nodes, %d vector cells", cfg.Nodes, cfg.VCells)
	return m
}

// initState clears the registers and control stacks.
func (m *Machine) initState() {
	m.acc = Nil
	m.code = Nil
	m.pc = 0
	m.env = Nil
	m.argc = 0
	m.fn = Nil
	if m.stack == nil {
		m.stack = make([]Cell, 1024)
	}
	m.sp = 0
	m.frames = m.frames[:0]
	m.catches = m.catches[:0]
	m.catchBase = 0
	m.errtab = Nil
	m.loads = m.loads[:0]
	m.trace = newTraceRing(m.cfg.Trace)
}

// attachHeap registers the root enumerator and the collection hook.
func (m *Machine) attachHeap() {
	m.SetRoots(m.markRoots)
	m.afterGC = m.logCollection
}

// initSymbols interns the symbols the machine itself refers to.
func (m *Machine) initSymbols() {
	m.symT = m.Intern("t")
	m.symErrval = m.Intern("*errval*")
	m.symErrtag = m.Intern("*errtag*")
	m.Binding(m.symErrval)
	m.Binding(m.symErrtag)
}

// Config returns the machine's configuration.
func (m *Machine) Config() Config {
	return m.cfg
}

// UseCompiler installs the expression compiler.
func (m *Machine) UseCompiler(fn CompileFunc) {
	m.compile = fn
}

// UseReader installs the reader.
func (m *Machine) UseReader(fn ReadFunc) {
	m.read = fn
}

// markRoots enumerates the root set.
func (m *Machine) markRoots(mark func(Cell)) {
	mark(m.acc)
	mark(m.code)
	mark(m.env)
	mark(m.fn)
	for _, c := range m.stack[:m.sp] {
		mark(c)
	}
	for _, f := range m.frames {
		mark(f.code)
		mark(f.env)
	}
	for _, c := range m.catches {
		mark(c.ctag)
		mark(c.handler)
		mark(c.code)
		mark(c.env)
		mark(c.errtab)
	}
	mark(m.symbols)
	mark(m.globals)
	mark(m.macros)
	mark(m.errtab)
	for _, c := range m.trace.slots {
		mark(c)
	}
	for _, p := range m.ports {
		if p.open() {
			mark(p.cell)
		}
	}
}

func (m *Machine) logCollection(s GCStats) {
	if m.cfg.GCVerbose {
		m.gclog.Infof("gc: %d nodes freed, %d vcells freed, %d/%d nodes free, %d/%d vcells free (%s)",
			s.NodesFreed, s.VCellsFreed, s.FreeNodes, len(m.car), s.FreeVCells, len(m.vec), s.Duration)
		return
	}
	m.gclog.Debugf("gc: %d nodes freed, %d vcells freed in %s", s.NodesFreed, s.VCellsFreed, s.Duration)
}

// ---------------------------------------------------------------------------
// Evaluation entry points
// ---------------------------------------------------------------------------

// Compile compiles expr with the installed compiler.
func (m *Machine) Compile(expr Cell) (Cell, error) {
	if m.compile == nil {
		return Undef, ErrNoCompiler
	}
	return m.compile(m, expr)
}

// Read reads one expression from port with the installed reader.
func (m *Machine) Read(port Cell) (Cell, error) {
	if m.read == nil {
		return Undef, ErrNoReader
	}
	return m.read(m, port)
}

// Eval compiles and runs expr. When called at the top level, an error
// leaves the machine reset and ready for the next evaluation.
func (m *Machine) Eval(expr Cell) (Cell, error) {
	top := m.atTopLevel()
	prog, err := m.Compile(expr)
	if err == nil {
		var v Cell
		v, err = m.Apply(prog)
		if err == nil {
			if top {
				m.flushOutput()
			}
			return v, nil
		}
	}
	if top {
		return Undef, m.abort(err)
	}
	return Undef, err
}

// Apply calls fn with args in a new interpreter activation and returns its
// result.
func (m *Machine) Apply(fn Cell, args ...Cell) (Cell, error) {
	if !m.IsClosure(fn) {
		return Undef, m.typeError(fn, "apply", "function")
	}
	top := m.atTopLevel()
	saved := catchFrame{code: m.code, env: m.env, pc: m.pc, sp: m.sp, fp: len(m.frames), errtab: m.errtab}
	depth := len(m.catches)
	for _, a := range args {
		m.push(a)
	}
	m.acc = fn
	m.frames = append(m.frames, callFrame{code: m.code, env: m.env, pc: m.pc, stop: true})
	m.enterClosure(fn, len(args))
	v, err := m.execute()
	if err != nil {
		m.unwind(saved, depth)
		if top {
			m.flushOutput()
		}
		return Undef, err
	}
	return v, nil
}

// unwind drops the frames of a failed activation and restores the state
// saved on entry.
func (m *Machine) unwind(saved catchFrame, depth int) {
	if len(m.catches) > depth {
		m.catches = m.catches[:depth]
	}
	if len(m.frames) > saved.fp {
		m.frames = m.frames[:saved.fp]
	}
	if m.sp > saved.sp {
		m.sp = saved.sp
	}
	m.code = saved.code
	m.env = saved.env
	m.pc = saved.pc
	m.errtab = saved.errtab
}

// atTopLevel reports whether no activation is running.
func (m *Machine) atTopLevel() bool {
	return len(m.frames) == 0 && len(m.catches) == 0
}

// Abort handles an error raised outside of Eval, such as a read error. At
// the top level it is reported and the machine is reset.
func (m *Machine) Abort(err error) error {
	if m.atTopLevel() {
		return m.abort(err)
	}
	return err
}

// abort reports err if it has not been reported yet and resets the
// machine.
func (m *Machine) abort(err error) error {
	m.report(err)
	m.Reset()
	return err
}

// Reset clears the registers, the control stacks and the error table, and
// flushes the output ports. Heap contents and bindings are kept.
func (m *Machine) Reset() {
	m.initState()
	m.flushOutput()
}
