package compiler

import (
	"github.com/dspearson/lisp9/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("ls9.compiler")

// ---------------------------------------------------------------------------
// Compiler: expressions to bytecode
// ---------------------------------------------------------------------------

// Compiler translates one top-level expression into a bytecode vector.
// Every cell the output refers to is pinned until the program closure
// exists.
type Compiler struct {
	m      *vm.Machine
	b      *vm.Builder
	pinned int // number of pins held
	depth  int // current macro expansion depth
	sym    forms
}

// forms holds the symbols of the special forms.
type forms struct {
	quote, quasiquote, unquote, unquoteSplicing vm.Cell
	lambda, def, setq, ifs, prog                vm.Cell
	let, letStar, letrec                        vm.Cell
	cond, and, or, when, unless                 vm.Cell
	macro, catch, withHandler, throw, apply     vm.Cell
	cons, append                                vm.Cell
}

// scope is one lexical frame. At run time every scope is one environment
// vector whose slot 0 links to the parent.
type scope struct {
	vars   []vm.Cell
	parent *scope
}

// lookup returns the frame distance and slot of a lexical variable.
func (s *scope) lookup(sym vm.Cell) (depth, index int, ok bool) {
	for d := 0; s != nil; d++ {
		for i := len(s.vars) - 1; i >= 0; i-- {
			if s.vars[i] == sym {
				return d, i, true
			}
		}
		s = s.parent
	}
	return 0, 0, false
}

func (s *scope) bound(sym vm.Cell) bool {
	_, _, ok := s.lookup(sym)
	return ok
}

// NewCompiler creates a compiler for one compilation unit.
func NewCompiler(m *vm.Machine) *Compiler {
	c := &Compiler{m: m, b: vm.NewBuilder()}
	in := m.Intern
	c.sym = forms{
		quote: in("quote"), quasiquote: in("quasiquote"),
		unquote: in("unquote"), unquoteSplicing: in("unquote-splicing"),
		lambda: in("lambda"), def: in("def"), setq: in("setq"), ifs: in("if"), prog: in("prog"),
		let: in("let"), letStar: in("let*"), letrec: in("letrec"),
		cond: in("cond"), and: in("and"), or: in("or"), when: in("when"), unless: in("unless"),
		macro: in("macro"), catch: in("catch"), withHandler: in("with-handler"),
		throw: in("throw"), apply: in("apply"),
		cons: in("cons"), append: in("append"),
	}
	return c
}

// Compile compiles expr into a closure taking no arguments. It has the
// signature expected by Machine.UseCompiler.
func Compile(m *vm.Machine, expr vm.Cell) (vm.Cell, error) {
	c := NewCompiler(m)
	defer c.release()
	c.pin(expr)
	c.b.Emit(vm.OpEnter, 0)
	if err := c.compile(expr, &scope{}, true); err != nil {
		return vm.Undef, err
	}
	c.b.Emit(vm.OpReturn)
	code := m.Assemble(c.b)
	c.pin(code)
	return m.MakeClosure(code, vm.Nil, 1, vm.Nil), nil
}

// Builder exposes the instruction stream, for disassembly in tests.
func (c *Compiler) Builder() *vm.Builder {
	return c.b
}

func (c *Compiler) pin(x vm.Cell) {
	c.m.Pin(x)
	c.pinned++
}

func (c *Compiler) release() {
	c.m.Unpin(c.pinned)
	c.pinned = 0
}

// lit adds a literal, keeping it alive until the code is assembled.
func (c *Compiler) lit(x vm.Cell) int {
	n := len(c.b.Literals())
	k := c.b.Literal(x)
	if len(c.b.Literals()) > n {
		c.pin(x)
	}
	return k
}

func (c *Compiler) syntaxError(x vm.Cell, format string, args ...any) error {
	return c.m.Errorf(vm.TagSyntax, x, format, args...)
}

// args returns the elements of a form after its head, rejecting dotted
// forms.
func (c *Compiler) args(x vm.Cell) ([]vm.Cell, error) {
	if c.m.Length(x) < 0 {
		return nil, c.syntaxError(x, "improper form")
	}
	return c.m.ListToSlice(c.m.Cdr(x)), nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *Compiler) compile(x vm.Cell, sc *scope, tail bool) error {
	m := c.m
	switch {
	case x == vm.Nil:
		c.b.Emit(vm.OpNil)
	case x == vm.True:
		c.b.Emit(vm.OpTrue)
	case m.IsSymbol(x):
		c.compileRef(x, sc)
	case m.IsPair(x):
		return c.compileForm(x, sc, tail)
	default:
		c.compileQuote(x)
	}
	return nil
}

// compileQuote loads a literal, marking it and everything it contains
// immutable.
func (c *Compiler) compileQuote(x vm.Cell) {
	switch x {
	case vm.Nil:
		c.b.Emit(vm.OpNil)
		return
	case vm.True:
		c.b.Emit(vm.OpTrue)
		return
	}
	c.markConst(x)
	c.b.Emit(vm.OpQuote, c.lit(x))
}

func (c *Compiler) markConst(x vm.Cell) {
	m := c.m
	for !x.IsSpecial() && !m.IsConst(x) {
		m.SetTag(x, m.Tag(x)|vm.ConstTag)
		switch {
		case m.IsPair(x):
			c.markConst(m.Car(x))
			x = m.Cdr(x)
		case m.IsVector(x):
			for i, n := 0, m.VecLen(x); i < n; i++ {
				c.markConst(m.VecRef(x, i))
			}
			return
		default:
			return
		}
	}
}

func (c *Compiler) compileRef(sym vm.Cell, sc *scope) {
	if d, i, ok := sc.lookup(sym); ok {
		if d == 0 {
			c.b.Emit(vm.OpArg, i)
		} else {
			c.b.Emit(vm.OpRef, d, i)
		}
		return
	}
	c.b.Emit(vm.OpGref, c.lit(c.m.Binding(sym)))
}

func (c *Compiler) compileSet(sym vm.Cell, sc *scope) {
	if d, i, ok := sc.lookup(sym); ok {
		if d == 0 {
			c.b.Emit(vm.OpSetArg, i)
		} else {
			c.b.Emit(vm.OpSetRef, d, i)
		}
		return
	}
	c.b.Emit(vm.OpGset, c.lit(c.m.Binding(sym)))
}

// compileSeq compiles a body; the last expression inherits tail.
func (c *Compiler) compileSeq(body []vm.Cell, sc *scope, tail bool) error {
	if len(body) == 0 {
		c.b.Emit(vm.OpNil)
		return nil
	}
	for i, x := range body {
		if err := c.compile(x, sc, tail && i == len(body)-1); err != nil {
			return err
		}
	}
	return nil
}

// compileArgs evaluates args left to right, pushing all but the last,
// which is left in acc.
func (c *Compiler) compileArgs(args []vm.Cell, sc *scope) error {
	for i, a := range args {
		if err := c.compile(a, sc, false); err != nil {
			return err
		}
		if i < len(args)-1 {
			c.b.Emit(vm.OpPush)
		}
	}
	return nil
}

// compileForm dispatches on the head of a compound form.
func (c *Compiler) compileForm(x vm.Cell, sc *scope, tail bool) error {
	m := c.m
	args, err := c.args(x)
	if err != nil {
		return err
	}
	head := m.Car(x)
	s := &c.sym
	switch head {
	case s.quote:
		if len(args) != 1 {
			return c.syntaxError(x, "quote: expected one argument")
		}
		c.compileQuote(args[0])
		return nil
	case s.quasiquote:
		if len(args) != 1 {
			return c.syntaxError(x, "quasiquote: expected one argument")
		}
		exp, err := c.quasiquote(args[0])
		if err != nil {
			return err
		}
		c.pin(exp)
		return c.compile(exp, sc, tail)
	case s.unquote, s.unquoteSplicing:
		return c.syntaxError(x, "unquote outside of quasiquote")
	case s.ifs:
		return c.compileIf(x, args, sc, tail)
	case s.lambda:
		if len(args) < 1 {
			return c.syntaxError(x, "lambda: missing parameters")
		}
		return c.compileLambda(args[0], args[1:], vm.Nil, sc)
	case s.def:
		return c.compileDef(x, args, sc)
	case s.setq:
		if len(args) != 2 || !m.IsSymbol(args[0]) {
			return c.syntaxError(x, "setq: expected a symbol and a value")
		}
		if err := c.compile(args[1], sc, false); err != nil {
			return err
		}
		c.compileSet(args[0], sc)
		return nil
	case s.prog:
		return c.compileSeq(args, sc, tail)
	case s.let:
		return c.compileLet(x, args, sc, tail)
	case s.letStar:
		return c.compileLetStar(x, args, sc, tail)
	case s.letrec:
		return c.compileLetrec(x, args, sc, tail)
	case s.cond:
		return c.compileCond(args, sc, tail)
	case s.and:
		return c.compileAndOr(args, sc, tail, true)
	case s.or:
		return c.compileAndOr(args, sc, tail, false)
	case s.when, s.unless:
		return c.compileWhen(x, args, sc, tail, head == s.when)
	case s.macro:
		return c.compileMacro(x, args, sc)
	case s.catch:
		return c.compileCatch(x, args, sc)
	case s.withHandler:
		return c.compileWithHandler(x, args, sc)
	}

	if m.IsSymbol(head) && !sc.bound(head) {
		switch head {
		case s.throw:
			return c.compileThrow(x, args, sc)
		case s.apply:
			return c.compileApply(x, args, sc, tail)
		}
		if fn, ok := m.Macro(head); ok {
			return c.compileMacroCall(fn, x, args, sc, tail)
		}
		if p, ok := vm.LookupPrimitive(m.SymbolName(head)); ok {
			return c.compilePrimitive(p, x, args, sc)
		}
	}
	return c.compileCall(head, args, sc, tail)
}

// compileCall applies an arbitrary procedure.
func (c *Compiler) compileCall(fn vm.Cell, args []vm.Cell, sc *scope, tail bool) error {
	for _, a := range args {
		if err := c.compile(a, sc, false); err != nil {
			return err
		}
		c.b.Emit(vm.OpPush)
	}
	if err := c.compile(fn, sc, false); err != nil {
		return err
	}
	if tail {
		c.b.Emit(vm.OpTailApp, len(args))
	} else {
		c.b.Emit(vm.OpApply, len(args))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

func (c *Compiler) arityError(x vm.Cell, name string, n int) error {
	return c.m.Errorf(vm.TagArityError, x, "%s: wrong number of arguments (%d)", name, n)
}

// compilePrimitive inlines a primitive call.
func (c *Compiler) compilePrimitive(p *vm.Primitive, x vm.Cell, args []vm.Cell, sc *scope) error {
	switch p.Op {
	case vm.OpPlus:
		return c.compileFold(p.Op, args, 0, sc)
	case vm.OpTimes:
		return c.compileFold(p.Op, args, 1, sc)
	case vm.OpMinus:
		switch len(args) {
		case 0:
			return c.arityError(x, p.Name, 0)
		case 1:
			if err := c.compile(args[0], sc, false); err != nil {
				return err
			}
			c.b.Emit(vm.OpNeg)
			return nil
		}
		return c.compileFold(p.Op, args, 0, sc)
	}

	n := len(args)
	if n < p.Min || (!p.Variadic() && n > p.Max) {
		return c.arityError(x, p.Name, n)
	}
	if p.Variadic() {
		if err := c.compileArgs(args, sc); err != nil {
			return err
		}
		c.b.Emit(p.Op, n)
		return nil
	}
	for len(args) < p.Max {
		args = append(args, vm.Nil)
	}
	if err := c.compileArgs(args, sc); err != nil {
		return err
	}
	c.b.Emit(p.Op)
	return nil
}

// compileFold expands an n-ary arithmetic call into binary operations.
func (c *Compiler) compileFold(op vm.Opcode, args []vm.Cell, identity int32, sc *scope) error {
	if len(args) < 2 {
		c.compileQuote(c.m.MkFixnum(identity))
		if len(args) == 0 {
			return nil
		}
	} else {
		if err := c.compile(args[0], sc, false); err != nil {
			return err
		}
		args = args[1:]
	}
	for _, a := range args {
		c.b.Emit(vm.OpPush)
		if err := c.compile(a, sc, false); err != nil {
			return err
		}
		c.b.Emit(op)
	}
	return nil
}

func (c *Compiler) compileThrow(x vm.Cell, args []vm.Cell, sc *scope) error {
	if len(args) != 2 {
		return c.arityError(x, "throw", len(args))
	}
	if err := c.compileArgs(args, sc); err != nil {
		return err
	}
	c.b.Emit(vm.OpThrow)
	return nil
}

// compileApply compiles (apply f a ... lst). Leading arguments are consed
// onto the list before it is spread.
func (c *Compiler) compileApply(x vm.Cell, args []vm.Cell, sc *scope, tail bool) error {
	if len(args) < 2 {
		return c.arityError(x, "apply", len(args))
	}
	spread := args[1:]
	if err := c.compileArgs(spread, sc); err != nil {
		return err
	}
	for range spread[:len(spread)-1] {
		c.b.Emit(vm.OpCons)
	}
	c.b.Emit(vm.OpPush)
	if err := c.compile(args[0], sc, false); err != nil {
		return err
	}
	if tail {
		c.b.Emit(vm.OpTailApplis)
	} else {
		c.b.Emit(vm.OpApplis)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Special forms
// ---------------------------------------------------------------------------

func (c *Compiler) compileIf(x vm.Cell, args []vm.Cell, sc *scope, tail bool) error {
	if len(args) < 2 || len(args) > 3 {
		return c.syntaxError(x, "if: expected two or three arguments")
	}
	if err := c.compile(args[0], sc, false); err != nil {
		return err
	}
	alt := c.b.EmitJump(vm.OpBrf)
	if err := c.compile(args[1], sc, tail); err != nil {
		return err
	}
	end := c.b.EmitJump(vm.OpJmp)
	c.b.Patch(alt, c.b.PC())
	if len(args) == 3 {
		if err := c.compile(args[2], sc, tail); err != nil {
			return err
		}
	} else {
		c.b.Emit(vm.OpNil)
	}
	c.b.Patch(end, c.b.PC())
	return nil
}

// params parses a parameter list: a proper list, a dotted list, or a
// single symbol collecting all arguments.
func (c *Compiler) params(ps vm.Cell) ([]vm.Cell, bool, error) {
	m := c.m
	var vars []vm.Cell
	for m.IsPair(ps) {
		if !m.IsSymbol(m.Car(ps)) {
			return nil, false, c.syntaxError(m.Car(ps), "lambda: parameter is not a symbol")
		}
		vars = append(vars, m.Car(ps))
		ps = m.Cdr(ps)
	}
	if ps == vm.Nil {
		return vars, false, nil
	}
	if !m.IsSymbol(ps) {
		return nil, false, c.syntaxError(ps, "lambda: parameter is not a symbol")
	}
	return append(vars, ps), true, nil
}

// compileClosure emits a closure whose body is generated by body. The
// closure code is laid out inline and jumped over.
func (c *Compiler) compileClosure(vars []vm.Cell, rest bool, name vm.Cell, sc *scope, body func(*scope) error) error {
	k := c.lit(name)
	at := c.b.PC()
	c.b.Emit(vm.OpClosure, 0, k)
	skip := c.b.EmitJump(vm.OpJmp)
	c.b.Patch(at+1, c.b.PC())
	if rest {
		c.b.Emit(vm.OpEntcol, len(vars)-1)
	} else {
		c.b.Emit(vm.OpEnter, len(vars))
	}
	if err := body(&scope{vars: vars, parent: sc}); err != nil {
		return err
	}
	c.b.Emit(vm.OpReturn)
	c.b.Patch(skip, c.b.PC())
	return nil
}

func (c *Compiler) compileLambda(ps vm.Cell, body []vm.Cell, name vm.Cell, sc *scope) error {
	vars, rest, err := c.params(ps)
	if err != nil {
		return err
	}
	return c.compileClosure(vars, rest, name, sc, func(inner *scope) error {
		return c.compileSeq(body, inner, true)
	})
}

// compileDef binds a global: (def name value) or (def (name . params) body...).
func (c *Compiler) compileDef(x vm.Cell, args []vm.Cell, sc *scope) error {
	m := c.m
	if len(args) < 1 {
		return c.syntaxError(x, "def: missing name")
	}
	target := args[0]
	var name vm.Cell
	switch {
	case m.IsPair(target):
		name = m.Car(target)
		if !m.IsSymbol(name) {
			return c.syntaxError(x, "def: name is not a symbol")
		}
		if err := c.compileLambda(m.Cdr(target), args[1:], name, sc); err != nil {
			return err
		}
	case m.IsSymbol(target):
		name = target
		if len(args) != 2 {
			return c.syntaxError(x, "def: expected a name and a value")
		}
		if err := c.compileNamed(args[1], name, sc); err != nil {
			return err
		}
	default:
		return c.syntaxError(x, "def: name is not a symbol")
	}
	c.b.Emit(vm.OpGset, c.lit(m.Binding(name)))
	c.b.Emit(vm.OpQuote, c.lit(name))
	return nil
}

// compileNamed compiles a value, naming it when it is a lambda form.
func (c *Compiler) compileNamed(x, name vm.Cell, sc *scope) error {
	m := c.m
	if m.IsPair(x) && m.Car(x) == c.sym.lambda && m.IsPair(m.Cdr(x)) && m.Length(x) > 0 {
		args := m.ListToSlice(m.Cdr(x))
		return c.compileLambda(args[0], args[1:], name, sc)
	}
	return c.compile(x, sc, false)
}

// bindings splits a let binding list into variables and value forms. A
// bare symbol binds nil.
func (c *Compiler) bindings(x, bs vm.Cell) ([]vm.Cell, []vm.Cell, error) {
	m := c.m
	if m.Length(bs) < 0 {
		return nil, nil, c.syntaxError(x, "bad binding list")
	}
	var vars, vals []vm.Cell
	for _, b := range m.ListToSlice(bs) {
		switch {
		case m.IsSymbol(b):
			vars = append(vars, b)
			vals = append(vals, vm.Nil)
		case m.IsPair(b) && m.IsSymbol(m.Car(b)) && m.Length(b) <= 2:
			vars = append(vars, m.Car(b))
			if m.Cdr(b) == vm.Nil {
				vals = append(vals, vm.Nil)
			} else {
				vals = append(vals, m.Car(m.Cdr(b)))
			}
		default:
			return nil, nil, c.syntaxError(b, "bad binding")
		}
	}
	return vars, vals, nil
}

// compileLet compiles (let ((v e) ...) body...) as the application of an
// anonymous closure.
func (c *Compiler) compileLet(x vm.Cell, args []vm.Cell, sc *scope, tail bool) error {
	if len(args) < 1 {
		return c.syntaxError(x, "let: missing bindings")
	}
	vars, vals, err := c.bindings(x, args[0])
	if err != nil {
		return err
	}
	for i, v := range vals {
		if err := c.compileNamed(v, vars[i], sc); err != nil {
			return err
		}
		c.b.Emit(vm.OpPush)
	}
	body := args[1:]
	if err := c.compileClosure(vars, false, vm.Nil, sc, func(inner *scope) error {
		return c.compileSeq(body, inner, true)
	}); err != nil {
		return err
	}
	c.emitApply(len(vars), tail)
	return nil
}

func (c *Compiler) emitApply(n int, tail bool) {
	if tail {
		c.b.Emit(vm.OpTailApp, n)
	} else {
		c.b.Emit(vm.OpApply, n)
	}
}

// compileLetStar nests one frame per binding.
func (c *Compiler) compileLetStar(x vm.Cell, args []vm.Cell, sc *scope, tail bool) error {
	if len(args) < 1 {
		return c.syntaxError(x, "let*: missing bindings")
	}
	vars, vals, err := c.bindings(x, args[0])
	if err != nil {
		return err
	}
	body := args[1:]
	var nest func(i int, sc *scope, tail bool) error
	nest = func(i int, sc *scope, tail bool) error {
		if i == len(vars) {
			return c.compileSeq(body, sc, tail)
		}
		if err := c.compileNamed(vals[i], vars[i], sc); err != nil {
			return err
		}
		c.b.Emit(vm.OpPush)
		if err := c.compileClosure(vars[i:i+1], false, vm.Nil, sc, func(inner *scope) error {
			return nest(i+1, inner, true)
		}); err != nil {
			return err
		}
		c.emitApply(1, tail)
		return nil
	}
	if len(vars) == 0 {
		return c.compileSeq(body, sc, tail)
	}
	return nest(0, sc, tail)
}

// compileLetrec binds all variables to nil in a new frame, then assigns
// the values inside it, so they can refer to each other.
func (c *Compiler) compileLetrec(x vm.Cell, args []vm.Cell, sc *scope, tail bool) error {
	if len(args) < 1 {
		return c.syntaxError(x, "letrec: missing bindings")
	}
	vars, vals, err := c.bindings(x, args[0])
	if err != nil {
		return err
	}
	for range vars {
		c.b.Emit(vm.OpNil)
		c.b.Emit(vm.OpPush)
	}
	body := args[1:]
	if err := c.compileClosure(vars, false, vm.Nil, sc, func(inner *scope) error {
		for i, v := range vals {
			if err := c.compileNamed(v, vars[i], inner); err != nil {
				return err
			}
			c.b.Emit(vm.OpSetArg, i)
		}
		return c.compileSeq(body, inner, true)
	}); err != nil {
		return err
	}
	c.emitApply(len(vars), tail)
	return nil
}

func (c *Compiler) compileCond(clauses []vm.Cell, sc *scope, tail bool) error {
	m := c.m
	var ends []int
	for _, cl := range clauses {
		if !m.IsPair(cl) || m.Length(cl) < 0 {
			return c.syntaxError(cl, "cond: bad clause")
		}
		parts := m.ListToSlice(cl)
		if err := c.compile(parts[0], sc, false); err != nil {
			return err
		}
		if len(parts) == 1 {
			ends = append(ends, c.b.EmitJump(vm.OpBrt))
			continue
		}
		next := c.b.EmitJump(vm.OpBrf)
		if err := c.compileSeq(parts[1:], sc, tail); err != nil {
			return err
		}
		ends = append(ends, c.b.EmitJump(vm.OpJmp))
		c.b.Patch(next, c.b.PC())
	}
	c.b.Emit(vm.OpNil)
	for _, e := range ends {
		c.b.Patch(e, c.b.PC())
	}
	return nil
}

func (c *Compiler) compileAndOr(args []vm.Cell, sc *scope, tail, and bool) error {
	if len(args) == 0 {
		if and {
			c.b.Emit(vm.OpTrue)
		} else {
			c.b.Emit(vm.OpNil)
		}
		return nil
	}
	branch := vm.OpBrt
	if and {
		branch = vm.OpBrf
	}
	var ends []int
	for i, a := range args {
		last := i == len(args)-1
		if err := c.compile(a, sc, tail && last); err != nil {
			return err
		}
		if !last {
			ends = append(ends, c.b.EmitJump(branch))
		}
	}
	for _, e := range ends {
		c.b.Patch(e, c.b.PC())
	}
	return nil
}

func (c *Compiler) compileWhen(x vm.Cell, args []vm.Cell, sc *scope, tail, when bool) error {
	if len(args) < 1 {
		return c.syntaxError(x, "missing condition")
	}
	if err := c.compile(args[0], sc, false); err != nil {
		return err
	}
	branch := vm.OpBrf
	if !when {
		branch = vm.OpBrt
	}
	skip := c.b.EmitJump(branch)
	if err := c.compileSeq(args[1:], sc, tail); err != nil {
		return err
	}
	end := c.b.EmitJump(vm.OpJmp)
	c.b.Patch(skip, c.b.PC())
	c.b.Emit(vm.OpNil)
	c.b.Patch(end, c.b.PC())
	return nil
}

// compileMacro compiles (macro name expander).
func (c *Compiler) compileMacro(x vm.Cell, args []vm.Cell, sc *scope) error {
	if len(args) != 2 || !c.m.IsSymbol(args[0]) {
		return c.syntaxError(x, "macro: expected a name and an expander")
	}
	if err := c.compileNamed(args[1], args[0], sc); err != nil {
		return err
	}
	c.b.Emit(vm.OpDefMac, c.lit(args[0]))
	return nil
}

// compileMacroCall expands a macro use at compile time and compiles the
// expansion.
func (c *Compiler) compileMacroCall(fn, x vm.Cell, args []vm.Cell, sc *scope, tail bool) error {
	m := c.m
	if c.depth >= m.Config().MacroDepth {
		return m.Errorf(vm.TagMacroDepth, m.Car(x), "macro expansion too deep")
	}
	exp, err := m.Apply(fn, args...)
	if err != nil {
		return err
	}
	c.pin(exp)
	log.Debugf("expanded %s", m.SymbolName(m.Car(x)))
	c.depth++
	defer func() { c.depth-- }()
	return c.compile(exp, sc, tail)
}

func (c *Compiler) compileCatch(x vm.Cell, args []vm.Cell, sc *scope) error {
	if len(args) < 1 {
		return c.syntaxError(x, "catch: missing tag")
	}
	if err := c.compile(args[0], sc, false); err != nil {
		return err
	}
	landing := c.b.EmitJump(vm.OpCatch)
	if err := c.compileSeq(args[1:], sc, false); err != nil {
		return err
	}
	c.b.Emit(vm.OpUncatch)
	c.b.Patch(landing, c.b.PC())
	return nil
}

func (c *Compiler) compileWithHandler(x vm.Cell, args []vm.Cell, sc *scope) error {
	if len(args) < 2 {
		return c.syntaxError(x, "with-handler: expected a tag and a handler")
	}
	if err := c.compile(args[0], sc, false); err != nil {
		return err
	}
	c.b.Emit(vm.OpPush)
	if err := c.compile(args[1], sc, false); err != nil {
		return err
	}
	landing := c.b.EmitJump(vm.OpHandle)
	if err := c.compileSeq(args[2:], sc, false); err != nil {
		return err
	}
	c.b.Emit(vm.OpUnhandle)
	c.b.Patch(landing, c.b.PC())
	return nil
}
