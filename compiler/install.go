package compiler

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/dspearson/lisp9/vm"
)

//go:embed prelude.ls9
var prelude string

// Attach connects the reader and compiler to m. It is enough for a
// machine restored from an image.
func Attach(m *vm.Machine) {
	m.UseReader(Read)
	m.UseCompiler(Compile)
}

// Install attaches the reader and compiler to m, binds every primitive to
// a procedure of the same name and evaluates the prelude.
func Install(m *vm.Machine) error {
	Attach(m)
	if _, err := EvalString(m, wrappers()); err != nil {
		return fmt.Errorf("compiler: bind primitives: %w", err)
	}
	if _, err := EvalString(m, prelude); err != nil {
		return fmt.Errorf("compiler: prelude: %w", err)
	}
	log.Debugf("installed %d primitives and the prelude", len(vm.Primitives()))
	return nil
}

// wrappers generates a definition for every fixed-arity primitive, so that
// primitives can be passed as values. Variadic ones are defined in the
// prelude.
func wrappers() string {
	var b strings.Builder
	for _, name := range vm.Primitives() {
		p, _ := vm.LookupPrimitive(name)
		if p.Variadic() {
			continue
		}
		params := make([]string, p.Min)
		for i := range params {
			params[i] = fmt.Sprintf("a%d", i)
		}
		fixed := strings.Join(params, " ")
		if p.Max == p.Min {
			fmt.Fprintf(&b, "(def %s (lambda (%s) (%s %s)))\n", name, fixed, name, fixed)
			continue
		}
		// one optional argument
		formals := "r"
		if fixed != "" {
			formals = "(" + fixed + " . r)"
		}
		fmt.Fprintf(&b, "(def %s (lambda %s (if (null r) (%s %s) (%s %s (car r)))))\n",
			name, formals, name, fixed, name, fixed)
	}
	return b.String()
}

// EvalString reads and evaluates every expression in src and returns the
// value of the last one.
func EvalString(m *vm.Machine, src string) (vm.Cell, error) {
	port, err := m.OpenReader("string", strings.NewReader(src))
	if err != nil {
		return vm.Undef, err
	}
	defer m.ClosePort(port)
	result := vm.Nil
	for {
		x, err := m.Read(port)
		if err != nil {
			return vm.Undef, m.Abort(err)
		}
		if x == vm.EOF {
			return result, nil
		}
		if result, err = m.Eval(x); err != nil {
			return vm.Undef, err
		}
	}
}

// Load evaluates a source file in m.
func Load(m *vm.Machine, path string) error {
	return m.Load(path)
}
