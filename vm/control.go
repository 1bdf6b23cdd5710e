package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Catch frames
// ---------------------------------------------------------------------------

// pushCatch saves the machine state for a later throw or error transfer.
// A frame with a handler also installs an error table entry for tag.
func (m *Machine) pushCatch(tag, handler Cell, landing int) {
	m.Pin(tag)
	m.Pin(handler)
	user := tag
	if handler != Nil {
		user = Undef
	}
	ctag := m.MkCatchTag(user)
	m.catches = append(m.catches, catchFrame{
		ctag:    ctag,
		handler: handler,
		pc:      landing,
		code:    m.code,
		env:     m.env,
		sp:      m.sp,
		fp:      len(m.frames),
		errtab:  m.errtab,
	})
	if handler != Nil {
		entry := m.Cons(tag, ctag)
		m.errtab = m.Cons(entry, m.errtab)
	}
	m.Unpin(2)
}

// popCatch removes the innermost catch frame on normal exit of its body.
func (m *Machine) popCatch() {
	f := m.catches[len(m.catches)-1]
	m.catches = m.catches[:len(m.catches)-1]
	m.errtab = f.errtab
}

// throw transfers val to the innermost catch frame matching tag. A frame
// matches when its catch tag is tag itself or its user tag is eq to tag.
func (m *Machine) throw(tag, val Cell) error {
	for i := len(m.catches) - 1; i >= 0; i-- {
		c := m.catches[i]
		if c.handler != Nil {
			continue
		}
		if c.ctag == tag || m.cdr[c.ctag] == tag {
			return m.transferTo(i, val, false)
		}
	}
	return m.newError(TagUncaughtThrow, tag, "throw: no catch for tag")
}

// transferTo unwinds to catch frame i, or hands the transfer to an outer
// activation when the frame is not owned by the current one.
func (m *Machine) transferTo(i int, val Cell, handler bool) error {
	if i < m.catchBase {
		return &transfer{target: i, value: val, handler: handler}
	}
	m.resume(i, val, handler)
	return nil
}

// resume restores catch frame i. For handler frames the handler is called
// with val and returns to the landing address.
func (m *Machine) resume(i int, val Cell, handler bool) {
	c := m.catches[i]
	m.catches = m.catches[:i]
	m.sp = c.sp
	m.frames = m.frames[:c.fp]
	m.env = c.env
	m.code = c.code
	m.pc = c.pc
	m.errtab = c.errtab
	if !handler {
		m.acc = val
		return
	}
	m.push(val)
	m.acc = c.handler
	m.frames = append(m.frames, callFrame{code: m.code, env: m.env, pc: m.pc})
	m.enterClosure(c.handler, 1)
}

// ---------------------------------------------------------------------------
// Error resolution
// ---------------------------------------------------------------------------

// resolve handles an error returned by the dispatch loop. It returns nil
// when execution can continue in the current activation.
func (m *Machine) resolve(err error) error {
	var t *transfer
	if errors.As(err, &t) {
		if t.target >= m.catchBase {
			m.resume(t.target, t.value, t.handler)
			return nil
		}
		return t
	}
	var e *Error
	if errors.As(err, &e) {
		if e.reported {
			return e
		}
		return m.signal(e)
	}
	var x *ExitError
	if errors.As(err, &x) {
		return x
	}
	return m.signal(m.newError(TagUser, Undef, "%v", err))
}

// signal looks up a handler for e in the error table. With a handler, the
// datum is bound to *errval*, the tag to *errtag*, and control transfers
// to the handler. Without one, e is reported and returned.
func (m *Machine) signal(e *Error) error {
	tag := m.Intern(e.Tag)
	for p := m.errtab; p != Nil; p = m.cdr[p] {
		entry := m.car[p]
		if k := m.car[entry]; k != tag && k != m.symT && k != True {
			continue
		}
		idx := m.catchIndex(m.cdr[entry])
		if idx < 0 {
			continue
		}
		datum := e.Value
		if datum == Undef {
			datum = m.MkString(e.Message)
		}
		m.cdr[m.Binding(m.symErrval)] = datum
		m.cdr[m.Binding(m.symErrtag)] = tag
		m.log.Debugf("error %s handled by frame %d", e.Tag, idx)
		return m.transferTo(idx, datum, true)
	}
	e.Trace = m.TraceNames()
	m.report(e)
	return e
}

// catchIndex returns the position of the catch frame with the given
// catch tag, or -1.
func (m *Machine) catchIndex(ctag Cell) int {
	for i := len(m.catches) - 1; i >= 0; i-- {
		if m.catches[i].ctag == ctag {
			return i
		}
	}
	return -1
}

// report prints an unhandled error to the error port, once.
func (m *Machine) report(err error) {
	var e *Error
	if !errors.As(err, &e) {
		var x *ExitError
		if errors.As(err, &x) {
			return
		}
		m.writeDiagnostic(fmt.Sprintf("error: %v\n", err))
		return
	}
	if e.reported {
		return
	}
	e.reported = true
	m.writeDiagnostic(FormatError(e))
}

// FormatError renders an error diagnostic the way it is printed to the
// error port.
func FormatError(e *Error) string {
	var b strings.Builder
	b.WriteString("error: ")
	if e.Context != "" {
		b.WriteString(e.Context)
		b.WriteString(": ")
	}
	b.WriteString(e.Error())
	b.WriteByte('\n')
	if len(e.Trace) > 0 {
		b.WriteString("trace: ")
		b.WriteString(strings.Join(e.Trace, " "))
		b.WriteByte('\n')
	}
	return b.String()
}

func (m *Machine) writeDiagnostic(s string) {
	p := &m.ports[m.errp]
	if p.w == nil {
		return
	}
	p.w.WriteString(s)
	p.w.Flush()
}
