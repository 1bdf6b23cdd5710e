package vm

import (
	"bytes"
	"testing"
)

// ---------------------------------------------------------------------------
// Printer tests
// ---------------------------------------------------------------------------

func TestSprint(t *testing.T) {
	m, _, _ := newTestMachine(4096, 4096)
	quote := m.Intern("quote")
	x := m.Intern("x")

	tests := []struct {
		name     string
		build    func() Cell
		readable bool
		want     string
	}{
		{"nil", func() Cell { return Nil }, true, "nil"},
		{"true", func() Cell { return True }, true, "t"},
		{"eof", func() Cell { return EOF }, true, "#<eof>"},
		{"fixnum", func() Cell { return m.MkFixnum(-17) }, true, "-17"},
		{"char", func() Cell { return m.MkChar('a') }, true, `#\a`},
		{"space", func() Cell { return m.MkChar(' ') }, true, `#\space`},
		{"char display", func() Cell { return m.MkChar('a') }, false, "a"},
		{"string", func() Cell { return m.MkString("say \"hi\"\n") }, true, `"say \"hi\"\n"`},
		{"string display", func() Cell { return m.MkString("plain") }, false, "plain"},
		{"symbol", func() Cell { return x }, true, "x"},
		{"list", func() Cell { return m.List(x, m.MkFixnum(2)) }, true, "(x 2)"},
		{"dotted", func() Cell { return m.Cons(x, m.MkFixnum(2)) }, true, "(x . 2)"},
		{"quote", func() Cell { return m.List(quote, x) }, true, "'x"},
		{"quote with extra", func() Cell { return m.List(quote, x, x) }, true, "(quote x x)"},
		{"catch tag", func() Cell { return m.MkCatchTag(Nil) }, true, "#<catch-tag>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Sprint(tt.build(), tt.readable); got != tt.want {
				t.Errorf("Sprint = %s, want %s", got, tt.want)
			}
		})
	}
}

// Test that vectors print their elements.
func TestSprintVector(t *testing.T) {
	m, _, _ := newTestMachine(4096, 4096)
	v := m.AllocVector(TVector, 3)
	m.Pin(v)
	defer m.Unpin(1)
	m.VecSet(v, 0, m.MkFixnum(1))
	m.VecSet(v, 1, m.MkString("s"))
	if got := m.Sprint(v, true); got != `#(1 "s" nil)` {
		t.Errorf("Sprint = %s", got)
	}
	if got := m.Sprint(m.AllocVector(TVector, 0), true); got != "#()" {
		t.Errorf("empty vector = %s", got)
	}
}

// Test that closures print with their names.
func TestSprintClosure(t *testing.T) {
	m, _, _ := newTestMachine(4096, 4096)
	b := NewBuilder()
	b.Emit(OpEnter, 0)
	b.Emit(OpNil)
	b.Emit(OpReturn)
	code := m.Assemble(b)
	m.Pin(code)
	defer m.Unpin(1)

	if got := m.Sprint(m.MakeClosure(code, Nil, 1, Nil), true); got != "#<function>" {
		t.Errorf("anonymous = %s", got)
	}
	if got := m.Sprint(m.MakeClosure(code, Nil, 1, m.Intern("square")), true); got != "#<function square>" {
		t.Errorf("named = %s", got)
	}
}

// Test that deep nesting is cut off at the configured depth.
func TestSprintDepthLimit(t *testing.T) {
	m := New(Config{Nodes: 4096, VCells: 4096, PrintDepth: 3, Stderr: &bytes.Buffer{}})
	deep := m.List(m.List(m.List(m.List(m.MkFixnum(1)))))
	if got := m.Sprint(deep, true); got != "((((...))))" {
		t.Errorf("Sprint = %s", got)
	}
	long := m.List(m.MkFixnum(1), m.MkFixnum(2), m.MkFixnum(3), m.MkFixnum(4), m.MkFixnum(5))
	if got := m.Sprint(long, true); got != "(1 2 3 4 ...)" {
		t.Errorf("Sprint = %s", got)
	}
}

// Test Print through an output port.
func TestPrintToPort(t *testing.T) {
	m, out, _ := newTestMachine(4096, 4096)
	if err := m.Print(m.Outport(), m.MkString("hi"), true); err != nil {
		t.Fatal(err)
	}
	m.WriteString(m.Outport(), "\n")
	if out.String() != "\"hi\"\n" {
		t.Errorf("output = %q", out.String())
	}
}
