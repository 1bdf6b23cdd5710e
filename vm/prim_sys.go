package vm

import (
	"errors"
	"os/exec"
)

// ---------------------------------------------------------------------------
// Control primitives
// ---------------------------------------------------------------------------

func primCatchTag(m *Machine, a []Cell) (Cell, error) {
	return m.MkCatchTag(Nil), nil
}

func primEval(m *Machine, a []Cell) (Cell, error) {
	return m.Eval(a[0])
}

// primError raises a user error with a message and an optional datum.
func primError(m *Machine, a []Cell) (Cell, error) {
	msg, err := m.stringArg(a[0], "error")
	if err != nil {
		return Undef, err
	}
	val := a[1]
	if val == Nil {
		val = Undef
	}
	return Undef, m.newError(TagUser, val, "%s", msg)
}

// ---------------------------------------------------------------------------
// System primitives
// ---------------------------------------------------------------------------

// primSyscmd runs a shell command and returns its exit status.
func primSyscmd(m *Machine, a []Cell) (Cell, error) {
	cmdline, err := m.stringArg(a[0], "syscmd")
	if err != nil {
		return Undef, err
	}
	m.flushOutput()
	cmd := exec.Command("/bin/sh", "-c", cmdline)
	cmd.Stdin = m.cfg.Stdin
	if p := &m.ports[StdinPort]; p.open() && p.r != nil {
		// bytes already buffered by the console port go to the command first
		cmd.Stdin = p.r
	}
	cmd.Stdout = m.cfg.Stdout
	cmd.Stderr = m.cfg.Stderr
	if rerr := cmd.Run(); rerr != nil {
		var exit *exec.ExitError
		if errors.As(rerr, &exit) {
			return m.MkFixnum(int32(exit.ExitCode())), nil
		}
		return Undef, m.newError(TagIO, a[0], "syscmd: %v", rerr)
	}
	return m.MkFixnum(0), nil
}

// primGC runs a collection and returns the free node and vector cell
// counts.
func primGC(m *Machine, a []Cell) (Cell, error) {
	s := m.Collect()
	nodes := m.MkFixnum(int32(s.FreeNodes))
	m.Pin(nodes)
	vcells := m.MkFixnum(int32(s.FreeVCells))
	m.Unpin(1)
	return m.List(nodes, vcells), nil
}

func primGensym(m *Machine, a []Cell) (Cell, error) {
	return m.Gensym(), nil
}

func primSymbols(m *Machine, a []Cell) (Cell, error) {
	return m.List(m.ListToSlice(m.symbols)...), nil
}

func primTrace(m *Machine, a []Cell) (Cell, error) {
	return m.Trace(), nil
}

func primQuit(m *Machine, a []Cell) (Cell, error) {
	code := 0
	if a[0] != Nil {
		n, err := m.fixnumArg(a[0], "quit")
		if err != nil {
			return Undef, err
		}
		code = int(n)
	}
	m.flushOutput()
	return Undef, &ExitError{Code: code}
}

func primDumpImage(m *Machine, a []Cell) (Cell, error) {
	path, err := m.stringArg(a[0], "dump-image")
	if err != nil {
		return Undef, err
	}
	if err := m.SaveImageFile(path); err != nil {
		return Undef, m.newError(TagIO, a[0], "dump-image: %v", err)
	}
	return True, nil
}
