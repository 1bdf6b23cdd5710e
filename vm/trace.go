package vm

// traceRing remembers the most recently applied procedures, newest
// overwriting oldest. It is only read for diagnostics.
type traceRing struct {
	slots []Cell
	next  int
}

func newTraceRing(n int) *traceRing {
	t := &traceRing{slots: make([]Cell, n)}
	for i := range t.slots {
		t.slots[i] = Nil
	}
	return t
}

func (t *traceRing) record(c Cell) {
	t.slots[t.next] = c
	t.next = (t.next + 1) % len(t.slots)
}

// entries returns the recorded cells, newest first.
func (t *traceRing) entries() []Cell {
	var out []Cell
	for i := 1; i <= len(t.slots); i++ {
		c := t.slots[(t.next-i+len(t.slots))%len(t.slots)]
		if c == Nil {
			break
		}
		out = append(out, c)
	}
	return out
}

// Trace returns a list of the most recently applied procedures, newest
// first.
func (m *Machine) Trace() Cell {
	return m.List(m.trace.entries()...)
}

// TraceNames renders the trace ring for diagnostics.
func (m *Machine) TraceNames() []string {
	var out []string
	for _, c := range m.trace.entries() {
		if m.IsClosure(c) {
			out = append(out, m.procName(c))
			continue
		}
		out = append(out, m.Sprint(c, true))
	}
	return out
}
