package vm

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (m *Machine) push(c Cell) {
	if m.sp >= len(m.stack) {
		// Grow the stack dynamically; the hard limit is checked by the loop
		newStack := make([]Cell, len(m.stack)*2)
		copy(newStack, m.stack)
		m.stack = newStack
	}
	m.stack[m.sp] = c
	m.sp++
}

func (m *Machine) pop() Cell {
	if m.sp <= 0 {
		panic(&FatalError{Message: "stack underflow"})
	}
	m.sp--
	return m.stack[m.sp]
}

// ---------------------------------------------------------------------------
// Closures and frames
// ---------------------------------------------------------------------------

// mkClosure allocates a closure over code and env, entering at pc.
func (m *Machine) mkClosure(code, env Cell, pc int, name Cell) Cell {
	m.Pin(code)
	m.Pin(env)
	m.Pin(name)
	pcf := m.MkFixnum(int32(pc))
	body := m.List(code, env, pcf, name)
	m.Unpin(3)
	return m.MkAtom(TClosure, body)
}

// MakeClosure creates a closure entering bytecode vector code at pc, with
// env as its environment.
func (m *Machine) MakeClosure(code, env Cell, pc int, name Cell) Cell {
	return m.mkClosure(code, env, pc, name)
}

func (m *Machine) closureCode(c Cell) Cell { return m.car[m.cdr[c]] }
func (m *Machine) closureEnv(c Cell) Cell  { return m.car[m.cdr[m.cdr[c]]] }
func (m *Machine) closurePC(c Cell) int {
	return int(m.FixnumValue(m.car[m.cdr[m.cdr[m.cdr[c]]]]))
}

// ClosureName returns the name a closure was defined with, or Nil.
func (m *Machine) ClosureName(c Cell) Cell {
	return m.car[m.cdr[m.cdr[m.cdr[m.cdr[c]]]]]
}

// enterClosure transfers control to fn with argc arguments on the stack.
func (m *Machine) enterClosure(fn Cell, argc int) {
	m.fn = fn
	m.code = m.closureCode(fn)
	m.env = m.closureEnv(fn)
	m.pc = m.closurePC(fn)
	m.argc = argc
	name := m.ClosureName(fn)
	if name == Nil {
		name = fn
	}
	m.trace.record(name)
}

// bindFrame pops n arguments into a new environment frame. When rest is
// set the surplus arguments are collected into a list in the last slot.
func (m *Machine) bindFrame(n int, rest bool) *Error {
	if m.argc < n || (!rest && m.argc != n) {
		return m.arityError(m.procName(m.fn), m.argc)
	}
	size := n + 1
	extra := Nil
	if rest {
		size++
		m.Pin(extra)
		for i := m.sp - 1; i >= m.sp-(m.argc-n); i-- {
			extra = m.Cons(m.stack[i], extra)
			m.pins[len(m.pins)-1] = extra
		}
	} else {
		m.Pin(extra)
	}
	frame := m.AllocVector(TVector, size)
	m.Unpin(1)
	base := int(m.cdr[frame])
	m.vec[base] = m.env
	first := m.sp - m.argc
	for i := 0; i < n; i++ {
		m.vec[base+1+i] = m.stack[first+i]
	}
	if rest {
		m.vec[base+1+n] = extra
	}
	m.sp = first
	m.env = frame
	return nil
}

// frameAt walks d parent links up from the current frame.
func (m *Machine) frameAt(d int) Cell {
	e := m.env
	for ; d > 0; d-- {
		e = m.VecRef(e, 0)
	}
	return e
}

// procName returns a printable name for a procedure.
func (m *Machine) procName(fn Cell) string {
	if m.IsClosure(fn) {
		if name := m.ClosureName(fn); name != Nil {
			return m.SymbolName(name)
		}
		return "lambda"
	}
	return m.Sprint(fn, true)
}

// spread pushes the elements of the list on top of the stack in place of
// the list and returns their number.
func (m *Machine) spread() (int, *Error) {
	lst := m.pop()
	n := m.Length(lst)
	if n < 0 {
		return 0, m.typeError(lst, "apply", "list")
	}
	for ; lst != Nil; lst = m.cdr[lst] {
		m.push(m.car[lst])
	}
	return n, nil
}

// call performs a non-tail or tail application of the procedure in acc
// with n stacked arguments.
func (m *Machine) call(n int, tail bool) *Error {
	fn := m.acc
	if !m.IsClosure(fn) {
		return m.newError(TagTypeError, fn, "application of non-function")
	}
	if !tail {
		if len(m.frames) >= m.cfg.MaxFrames {
			return m.newError(TagStackOverflow, Undef, "stack overflow: more than %d nested calls", m.cfg.MaxFrames)
		}
		m.frames = append(m.frames, callFrame{code: m.code, env: m.env, pc: m.pc})
	}
	m.enterClosure(fn, n)
	return nil
}

// ---------------------------------------------------------------------------
// Main interpreter loop
// ---------------------------------------------------------------------------

// execute runs the current activation until its stop frame is popped,
// resolving errors and non-local exits along the way.
func (m *Machine) execute() (Cell, error) {
	savedBase := m.catchBase
	m.catchBase = len(m.catches)
	defer func() { m.catchBase = savedBase }()
	for {
		err := m.run()
		if err == nil {
			return m.acc, nil
		}
		if err = m.resolve(err); err != nil {
			return Undef, err
		}
	}
}

// run is the dispatch loop. It returns nil when the stop frame of the
// current activation has been popped, with the result in acc.
func (m *Machine) run() error {
	for {
		base := int(m.cdr[m.code])
		op := Opcode(m.vec[base+m.pc])
		m.pc++

		switch op {
		case OpHalt:
			return nil

		case OpQuote:
			k := int(m.vec[base+m.pc])
			m.pc++
			m.acc = m.VecRef(m.vec[base], k)

		case OpNil:
			m.acc = Nil

		case OpTrue:
			m.acc = True

		case OpPush:
			if m.sp >= m.cfg.MaxStack {
				return m.newError(TagStackOverflow, Undef, "value stack overflow")
			}
			m.push(m.acc)

		case OpPop:
			m.acc = m.pop()

		case OpDrop:
			m.pop()

		// --- Variables ---
		case OpArg:
			i := int(m.vec[base+m.pc])
			m.pc++
			m.acc = m.VecRef(m.env, i+1)

		case OpRef:
			d := int(m.vec[base+m.pc])
			i := int(m.vec[base+m.pc+1])
			m.pc += 2
			m.acc = m.VecRef(m.frameAt(d), i+1)

		case OpSetArg:
			i := int(m.vec[base+m.pc])
			m.pc++
			m.VecSet(m.env, i+1, m.acc)

		case OpSetRef:
			d := int(m.vec[base+m.pc])
			i := int(m.vec[base+m.pc+1])
			m.pc += 2
			m.VecSet(m.frameAt(d), i+1, m.acc)

		case OpGref:
			k := int(m.vec[base+m.pc])
			m.pc++
			b := m.VecRef(m.vec[base], k)
			v := m.cdr[b]
			if v == Undef {
				return m.newError(TagUndefined, m.car[b], "undefined symbol")
			}
			m.acc = v

		case OpGset:
			k := int(m.vec[base+m.pc])
			m.pc++
			b := m.VecRef(m.vec[base], k)
			m.cdr[b] = m.acc

		// --- Control flow ---
		case OpJmp:
			m.pc = int(m.vec[base+m.pc])

		case OpBrf:
			if m.acc == Nil {
				m.pc = int(m.vec[base+m.pc])
			} else {
				m.pc++
			}

		case OpBrt:
			if m.acc != Nil {
				m.pc = int(m.vec[base+m.pc])
			} else {
				m.pc++
			}

		case OpClosure:
			a := int(m.vec[base+m.pc])
			k := int(m.vec[base+m.pc+1])
			m.pc += 2
			name := m.VecRef(m.vec[base], k)
			m.acc = m.mkClosure(m.code, m.env, a, name)

		case OpEnter:
			n := int(m.vec[base+m.pc])
			m.pc++
			if err := m.bindFrame(n, false); err != nil {
				return err
			}

		case OpEntcol:
			n := int(m.vec[base+m.pc])
			m.pc++
			if err := m.bindFrame(n, true); err != nil {
				return err
			}

		case OpApply, OpTailApp:
			n := int(m.vec[base+m.pc])
			m.pc++
			if err := m.call(n, op == OpTailApp); err != nil {
				return err
			}

		case OpApplis, OpTailApplis:
			n, err := m.spread()
			if err != nil {
				return err
			}
			if err := m.call(n, op == OpTailApplis); err != nil {
				return err
			}

		case OpReturn:
			f := m.frames[len(m.frames)-1]
			m.frames = m.frames[:len(m.frames)-1]
			m.code = f.code
			m.env = f.env
			m.pc = f.pc
			if f.stop {
				return nil
			}

		// --- Non-local control ---
		case OpCatch:
			a := int(m.vec[base+m.pc])
			m.pc++
			m.pushCatch(m.acc, Nil, a)

		case OpUncatch, OpUnhandle:
			m.popCatch()

		case OpHandle:
			a := int(m.vec[base+m.pc])
			m.pc++
			tag := m.pop()
			m.pushCatch(tag, m.acc, a)

		case OpThrow:
			tag := m.pop()
			if err := m.throw(tag, m.acc); err != nil {
				return err
			}

		case OpDefMac:
			k := int(m.vec[base+m.pc])
			m.pc++
			m.DefineMacro(m.VecRef(m.vec[base], k), m.acc)
			m.acc = m.VecRef(m.vec[base], k)

		default:
			if !op.IsPrimitive() {
				return m.newError(TagIllegal, Undef, "illegal instruction %d at pc %d", int32(op), m.pc-1)
			}
			if err := m.primitive(op, base); err != nil {
				return err
			}
		}
	}
}

// primitive collects the arguments of a primitive opcode, runs it and
// pops the arguments. The arguments stay on the stack while it runs.
func (m *Machine) primitive(op Opcode, base int) error {
	p := primByOp[op]
	// calls omitting optional arguments are padded with Nil by the compiler
	n := p.Max
	if n < 0 {
		n = int(m.vec[base+m.pc])
		m.pc++
	}
	var buf [4]Cell
	args := buf[:0]
	if n > 0 {
		args = append(args, m.stack[m.sp-(n-1):m.sp]...)
		args = append(args, m.acc)
	}
	v, err := p.Fn(m, args)
	if err != nil {
		return err
	}
	if n > 1 {
		m.sp -= n - 1
	}
	m.acc = v
	return nil
}
