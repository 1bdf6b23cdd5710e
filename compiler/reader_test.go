package compiler

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/dspearson/lisp9/vm"
)

// readAll reads every datum in src with a bare machine.
func readAll(t *testing.T, m *vm.Machine, src string) ([]vm.Cell, error) {
	t.Helper()
	port, err := m.OpenReader("test", strings.NewReader(src))
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer m.ClosePort(port)
	var out []vm.Cell
	for {
		x, err := Read(m, port)
		if err != nil {
			return out, err
		}
		if x == vm.EOF {
			return out, nil
		}
		m.Pin(x)
		out = append(out, x)
	}
}

func newReaderMachine() *vm.Machine {
	return vm.New(vm.Config{Nodes: 8192, VCells: 8192, Stderr: &bytes.Buffer{}})
}

// ---------------------------------------------------------------------------
// Reader tests
// ---------------------------------------------------------------------------

func TestReadPrint(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"(1 2 3)", "(1 2 3)"},
		{"()", "nil"},
		{"nil", "nil"},
		{"t", "t"},
		{"(a . b)", "(a . b)"},
		{"(a (b c) . d)", "(a (b c) . d)"},
		{"-42", "-42"},
		{"+7", "7"},
		{"-", "-"},
		{"1+", "1+"},
		{`"line\n\"q\""`, `"line\n\"q\""`},
		{`#\a`, `#\a`},
		{`#\space`, `#\space`},
		{`#\Newline`, `#\newline`},
		{"'x", "'x"},
		{"`(a ,b ,@c)", "(quasiquote (a (unquote b) (unquote-splicing c)))"},
		{"#(1 (2) \"s\")", `#(1 (2) "s")`},
		{"; comment\n  sym ; trailing", "sym"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			m := newReaderMachine()
			xs, err := readAll(t, m, tt.src)
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if len(xs) != 1 {
				t.Fatalf("read %d data, want 1", len(xs))
			}
			if got := m.Sprint(xs[0], true); got != tt.want {
				t.Errorf("Sprint = %s, want %s", got, tt.want)
			}
		})
	}
}

// Test that symbols are interned, so equal names read as the same cell.
func TestReadInterns(t *testing.T) {
	m := newReaderMachine()
	xs, err := readAll(t, m, "foo (foo)")
	if err != nil {
		t.Fatal(err)
	}
	if xs[0] != m.Car(xs[1]) {
		t.Error("two reads of foo gave different symbols")
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"close paren", ")"},
		{"unterminated list", "(1 2"},
		{"unterminated string", `"abc`},
		{"bad escape", `"a\qb"`},
		{"unknown character", `#\bogus`},
		{"leading dot", "(. 1)"},
		{"stray dot", "."},
		{"two tails", "(1 . 2 3)"},
		{"dotted vector", "#(1 . 2)"},
		{"unknown hash", "#x"},
		{"fixnum range", "99999999999"},
		{"quote at end", "'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newReaderMachine()
			_, err := readAll(t, m, tt.src)
			if !errors.Is(err, vm.ErrorTag(vm.TagSyntax)) {
				t.Errorf("err = %v, want syntax-error", err)
			}
		})
	}
}

// Test that symbols longer than the token limit are rejected.
func TestReadTokenLength(t *testing.T) {
	m := vm.New(vm.Config{Nodes: 8192, VCells: 8192, TokenLength: 8, Stderr: &bytes.Buffer{}})
	if _, err := readAll(t, m, "abcdefgh"); err != nil {
		t.Errorf("8 characters rejected: %v", err)
	}
	if _, err := readAll(t, m, "abcdefghi"); !errors.Is(err, vm.ErrorTag(vm.TagSyntax)) {
		t.Errorf("err = %v, want syntax-error", err)
	}
}

// Test that a large list survives collections triggered while reading.
func TestReadUnderPressure(t *testing.T) {
	m := vm.New(vm.Config{Nodes: 4096, VCells: 4096, Stderr: &bytes.Buffer{}})
	var b strings.Builder
	b.WriteString("(")
	for i := 0; i < 1000; i++ {
		b.WriteString(`"s" `)
	}
	b.WriteString(")")
	for round := 0; round < 5; round++ {
		xs, err := readAll(t, m, b.String())
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if n := m.Length(xs[0]); n != 1000 {
			t.Fatalf("length = %d, want 1000", n)
		}
		if s := m.StringValue(m.Car(xs[0])); s != "s" {
			t.Fatalf("element = %q", s)
		}
		m.Unpin(1)
	}
}
