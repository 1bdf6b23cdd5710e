package vm

// ---------------------------------------------------------------------------
// I/O primitives
// ---------------------------------------------------------------------------

func primReadc(m *Machine, a []Cell) (Cell, error) {
	return m.ReadChar(m.optionalPort(a[0], false))
}

func primPeekc(m *Machine, a []Cell) (Cell, error) {
	return m.PeekChar(m.optionalPort(a[0], false))
}

func primWritec(m *Machine, a []Cell) (Cell, error) {
	if err := m.WriteChar(m.optionalPort(a[1], true), a[0]); err != nil {
		return Undef, err
	}
	return a[0], nil
}

func primRead(m *Machine, a []Cell) (Cell, error) {
	p := m.optionalPort(a[0], false)
	if !m.IsInport(p) {
		return Undef, m.typeError(p, "read", "inport")
	}
	return m.Read(p)
}

func primWrite(m *Machine, a []Cell) (Cell, error) {
	if err := m.Print(m.optionalPort(a[1], true), a[0], true); err != nil {
		return Undef, err
	}
	return a[0], nil
}

func primDisplay(m *Machine, a []Cell) (Cell, error) {
	if err := m.Print(m.optionalPort(a[1], true), a[0], false); err != nil {
		return Undef, err
	}
	return a[0], nil
}

func primOpenInfile(m *Machine, a []Cell) (Cell, error) {
	name, err := m.stringArg(a[0], "open-infile")
	if err != nil {
		return Undef, err
	}
	return m.OpenInputFile(name)
}

func primOpenOutfile(m *Machine, a []Cell) (Cell, error) {
	name, err := m.stringArg(a[0], "open-outfile")
	if err != nil {
		return Undef, err
	}
	return m.OpenOutputFile(name, a[1] != Nil)
}

func primClosePort(m *Machine, a []Cell) (Cell, error) {
	if err := m.ClosePort(a[0]); err != nil {
		return Undef, err
	}
	return True, nil
}

func primCloseAllPorts(m *Machine, a []Cell) (Cell, error) {
	m.CloseAllPorts()
	return Nil, nil
}

func primInport(m *Machine, a []Cell) (Cell, error)  { return m.Inport(), nil }
func primOutport(m *Machine, a []Cell) (Cell, error) { return m.Outport(), nil }

func primSetInport(m *Machine, a []Cell) (Cell, error) {
	if err := m.SetInport(a[0]); err != nil {
		return Undef, err
	}
	return a[0], nil
}

func primSetOutport(m *Machine, a []Cell) (Cell, error) {
	if err := m.SetOutport(a[0]); err != nil {
		return Undef, err
	}
	return a[0], nil
}

func primLoad(m *Machine, a []Cell) (Cell, error) {
	path, err := m.stringArg(a[0], "load")
	if err != nil {
		return Undef, err
	}
	if err := m.Load(path); err != nil {
		return Undef, err
	}
	return True, nil
}
