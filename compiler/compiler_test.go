package compiler

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dspearson/lisp9/vm"
)

// newMachine creates a machine with the prelude installed. Output and
// diagnostics go to the returned buffers.
func newMachine(t *testing.T, cfg vm.Config) (*vm.Machine, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	if cfg.Nodes == 0 {
		cfg.Nodes = 1 << 18
	}
	if cfg.VCells == 0 {
		cfg.VCells = 1 << 18
	}
	cfg.Stdin = strings.NewReader("")
	cfg.Stdout = &out
	cfg.Stderr = &errOut
	m := vm.New(cfg)
	if err := Install(m); err != nil {
		t.Fatalf("Install failed: %v\n%s", err, errOut.String())
	}
	return m, &out, &errOut
}

// eval evaluates src and returns the printed result.
func eval(t *testing.T, m *vm.Machine, src string) string {
	t.Helper()
	v, err := EvalString(m, src)
	if err != nil {
		t.Fatalf("%s: %v", src, err)
	}
	return m.Sprint(v, true)
}

// ---------------------------------------------------------------------------
// Evaluation tests
// ---------------------------------------------------------------------------

func TestEval(t *testing.T) {
	m, _, _ := newMachine(t, vm.Config{})
	tests := []struct {
		src  string
		want string
	}{
		// arithmetic
		{"(+ 1 2 3)", "6"},
		{"(+)", "0"},
		{"(*)", "1"},
		{"(* 2 3 4)", "24"},
		{"(- 10)", "-10"},
		{"(- 10 3 2)", "5"},
		{"(/ 7 2)", "3"},
		{"(rem -7 2)", "-1"},
		{"(max 3 9 2)", "9"},
		{"(min 3 9 2)", "2"},
		{"(< 1 2)", "t"},

		// binding forms
		{"(let ((x 2) (y 3)) (* x y))", "6"},
		{"(let* ((x 2) (y (+ x 1))) (list x y))", "(2 3)"},
		{"(letrec ((ev (lambda (n) (if (= n 0) t (od (- n 1))))) (od (lambda (n) (if (= n 0) nil (ev (- n 1)))))) (ev 100))", "t"},
		{"((lambda (x . r) r) 1 2 3)", "(2 3)"},
		{"((lambda r r))", "nil"},
		{"(let ((x 1)) (setq x (+ x 1)) x)", "2"},
		{"(let ((n 0)) (let ((inc (lambda () (setq n (+ n 1))))) (inc) (inc) n))", "2"},

		// control
		{"(if nil 1)", "nil"},
		{"(if 0 'yes 'no)", "yes"},
		{"(cond ((eq 'a 'b) 1) (t 2))", "2"},
		{"(cond (nil 1) (7))", "7"},
		{"(cond (nil 1))", "nil"},
		{"(and)", "t"},
		{"(and 1 2)", "2"},
		{"(and 1 nil 2)", "nil"},
		{"(or)", "nil"},
		{"(or nil 3)", "3"},
		{"(when nil 1)", "nil"},
		{"(when t 1 2)", "2"},
		{"(unless nil 1 2)", "2"},
		{"(prog 1 2 3)", "3"},

		// quotation
		{"'(a b)", "(a b)"},
		{"(quote x)", "x"},
		{"\"str\"", `"str"`},
		{"`(1 ,(+ 1 1) ,@(list 3 4))", "(1 2 3 4)"},
		{"`(a . ,(+ 1 2))", "(a . 3)"},
		{"`x", "x"},
		{"`(1 `(2 ,(3)))", "(1 (quasiquote (2 (unquote (3)))))"},

		// prelude
		{"(apply + 1 2 '(3 4))", "10"},
		{"(apply list '())", "nil"},
		{"(map + '(1 2) '(10 20))", "(11 22)"},
		{"(map car '((1) (2)))", "(1 2)"},
		{"(append '(1) '(2 3) nil '(4))", "(1 2 3 4)"},
		{"(append)", "nil"},
		{"(filter odd '(1 2 3 4 5))", "(1 3 5)"},
		{"(foldr cons nil '(1 2 3))", "(1 2 3)"},
		{`(assoc "b" '(("a" . 1) ("b" . 2)))`, `("b" . 2)`},
		{"(assq 'c '((a . 1)))", "nil"},
		{"(member '(2) '((1) (2) (3)))", "((2) (3))"},
		{"(nth '(a b c) 2)", "c"},
		{"(last '(a b c))", "c"},
		{`(string-append "ab" "cd")`, `"abcd"`},
		{"(vector 1 2)", "#(1 2)"},
		{"(equal '(1 (2 #(3))) (list 1 (list 2 (vector 3))))", "t"},
		{`(equal "a" "b")`, "nil"},
		{"(list? '(1 2))", "t"},
		{"(not nil)", "t"},

		// conversions
		{`(aton "42")`, "42"},
		{`(aton "+5")`, "5"},
		{`(aton "-5")`, "-5"},
		{`(aton "+-5")`, "nil"},
		{`(aton "-+5")`, "nil"},
		{`(aton "ff" 16)`, "255"},
		{`(aton "")`, "nil"},

		// primitives as values
		{"(functionp car)", "t"},
		{"((lambda (f) (f 3 4)) cons)", "(3 . 4)"},
		{`(mkstr 2 #\a)`, `"aa"`},
		{`(apply mkstr '(2 #\b))`, `"bb"`},
		{"(eval '(+ 1 2))", "3"},
	}
	for _, tt := range tests {
		if got := eval(t, m, tt.src); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.src, got, tt.want)
		}
	}
}

// Test named definitions and the value of def.
func TestDefine(t *testing.T) {
	m, _, _ := newMachine(t, vm.Config{})
	if got := eval(t, m, "(def (square x) (* x x))"); got != "square" {
		t.Errorf("def returned %s, want square", got)
	}
	if got := eval(t, m, "(square 7)"); got != "49" {
		t.Errorf("(square 7) = %s", got)
	}
	if got := eval(t, m, "square"); got != "#<function square>" {
		t.Errorf("square prints as %s", got)
	}
	eval(t, m, "(def counter 10)")
	if v, ok := m.Global("counter"); !ok || m.FixnumValue(v) != 10 {
		t.Error("counter not bound")
	}
}

// Test that a long loop in tail position runs in constant space. Both the
// frame stack and the value stack are kept small.
func TestTailCalls(t *testing.T) {
	m, _, _ := newMachine(t, vm.Config{MaxFrames: 1000, MaxStack: 2000})
	src := "(def (count n) (if (= n 0) 'done (count (- n 1)))) (count 1000000)"
	if got := eval(t, m, src); got != "done" {
		t.Errorf("loop = %s, want done", got)
	}
	src = "(let ((i 0)) (while (< i 100000) (setq i (+ i 1))) i)"
	if got := eval(t, m, src); got != "100000" {
		t.Errorf("while loop = %s, want 100000", got)
	}
	src = "(def (a n) (cond ((= n 0) 'a) (t (b (- n 1))))) (def (b n) (and t (a n))) (a 100000)"
	if got := eval(t, m, src); got != "a" {
		t.Errorf("mutual recursion = %s, want a", got)
	}
}

// Test that non-tail recursion past the frame limit is an error and the
// machine recovers.
func TestDeepRecursion(t *testing.T) {
	m, _, errOut := newMachine(t, vm.Config{MaxFrames: 1000})
	_, err := EvalString(m, "(def (deep n) (if (= n 0) 0 (+ 1 (deep (- n 1))))) (deep 5000)")
	if !errors.Is(err, vm.ErrorTag(vm.TagStackOverflow)) {
		t.Fatalf("err = %v, want stack-overflow", err)
	}
	if !strings.Contains(errOut.String(), "trace: deep") {
		t.Errorf("diagnostic lacks trace: %q", errOut.String())
	}
	if got := eval(t, m, "(deep 100)"); got != "100" {
		t.Errorf("(deep 100) = %s", got)
	}
}

// Test that a collection driven by the program does not disturb it.
func TestEvalUnderCollection(t *testing.T) {
	m, _, _ := newMachine(t, vm.Config{})
	src := `(def (build n acc) (if (= n 0) acc (build (- n 1) (cons (ntoa n) acc))))
	        (let ((l (build 20000 nil)))
	          (gc)
	          (list (length l) (car l) (last l)))`
	if got := eval(t, m, src); got != `(20000 "1" "20000")` {
		t.Errorf("result = %s", got)
	}
	if m.Collections() == 0 {
		t.Error("expected at least one collection")
	}
}

// ---------------------------------------------------------------------------
// Non-local exits and errors
// ---------------------------------------------------------------------------

func TestCatchThrow(t *testing.T) {
	m, _, _ := newMachine(t, vm.Config{})
	tests := []struct {
		src  string
		want string
	}{
		{"(catch 'done (throw 'done 42) 1)", "42"},
		{"(catch 'done 1)", "1"},
		{"(+ 1 (catch 'x 2))", "3"},
		{"(+ 1 (catch 'x (* 10 (throw 'x 2))))", "3"},
		{"(def (escape) (throw 'out 'escaped)) (catch 'out (escape) 'no)", "escaped"},
		{"(catch 'outer (catch 'inner (throw 'outer 'far)) 'near)", "far"},
		{"(let ((k (catch-tag))) (catch k (throw k 'ok)))", "ok"},
		{"(catch 'x (map (lambda (e) (if (= e 2) (throw 'x e) e)) '(1 2 3)))", "2"},
		{"(catch 'x (apply throw '(x via-apply)))", "via-apply"},
	}
	for _, tt := range tests {
		if got := eval(t, m, tt.src); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.src, got, tt.want)
		}
	}
}

// Test that a throw without a matching catch is an error.
func TestUncaughtThrow(t *testing.T) {
	m, _, errOut := newMachine(t, vm.Config{})
	_, err := EvalString(m, "(throw 'nowhere 1)")
	if !errors.Is(err, vm.ErrorTag(vm.TagUncaughtThrow)) {
		t.Fatalf("err = %v, want uncaught-throw", err)
	}
	if !strings.Contains(errOut.String(), "nowhere") {
		t.Errorf("diagnostic = %q", errOut.String())
	}

	// a catch with another tag does not stop the throw
	_, err = EvalString(m, "(catch 'tag1 (throw 'tag2 42))")
	if !errors.Is(err, vm.ErrorTag(vm.TagUncaughtThrow)) {
		t.Fatalf("err = %v, want uncaught-throw", err)
	}
	if !strings.Contains(errOut.String(), "tag2") {
		t.Errorf("diagnostic = %q", errOut.String())
	}
	if got := eval(t, m, "(catch 'tag1 (throw 'tag1 42))"); got != "42" {
		t.Errorf("matching catch = %s, want 42", got)
	}
}

func TestWithHandler(t *testing.T) {
	m, _, _ := newMachine(t, vm.Config{})
	tests := []struct {
		src  string
		want string
	}{
		{"(with-handler 'div0 (lambda (e) (list 'caught (stringp e))) (/ 1 0))", "(caught t)"},
		{"(with-handler 'type-error (lambda (e) e) (car 5))", "5"},
		{"(with-handler t (lambda (e) 'any) (vref (vector) 3))", "any"},
		{"(with-handler 'div0 (lambda (e) 'unused) (+ 1 2))", "3"},
		{`(with-handler 'error (lambda (e) e) (error "boom" 'datum))`, "datum"},
		{`(with-handler 'error (lambda (e) e) (error "boom"))`, `"boom"`},
		{"(with-handler 'undefined (lambda (e) 'fallback) no-such-variable)", "fallback"},
		{"(+ 1 (with-handler 'div0 (lambda (e) 10) (/ 1 0)))", "11"},
		{"(with-handler 'div0 (lambda (e) 'outer) (with-handler 'type-error (lambda (e) 'inner) (/ 1 0)))", "outer"},
		{"(def (divide a b) (/ a b)) (with-handler 'div0 (lambda (e) 'deep) (divide 1 0))", "deep"},
	}
	for _, tt := range tests {
		if got := eval(t, m, tt.src); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.src, got, tt.want)
		}
	}
	eval(t, m, "(with-handler 'div0 (lambda (e) e) (/ 1 0))")
	if tag, _ := m.Global("*errtag*"); m.Sprint(tag, true) != "div0" {
		t.Errorf("*errtag* = %s, want div0", m.Sprint(tag, true))
	}
	if val, _ := m.Global("*errval*"); !m.IsString(val) {
		t.Errorf("*errval* = %s, want a string", m.Sprint(val, true))
	}
}

// Test that quoted literals cannot be modified.
func TestImmutableLiterals(t *testing.T) {
	m, _, _ := newMachine(t, vm.Config{})
	for _, src := range []string{
		"(setcar '(1) 2)",
		"(setcdr '(1 2) nil)",
		`(sset "abc" 0 #\x)`,
		"(vset #(1 2) 0 3)",
		"(def (f) '(a b)) (setcar (f) 'z)",
	} {
		if _, err := EvalString(m, src); !errors.Is(err, vm.ErrorTag(vm.TagImmutable)) {
			t.Errorf("%s: err = %v, want immutable", src, err)
		}
	}
	if got := eval(t, m, "(f)"); got != "(a b)" {
		t.Errorf("literal after refused setcar = %s, want (a b)", got)
	}
	eval(t, m, "(def lit '(1 2))")
	if _, err := EvalString(m, "(setcar lit 9)"); !errors.Is(err, vm.ErrorTag(vm.TagImmutable)) {
		t.Errorf("err = %v, want immutable", err)
	}
	if got := eval(t, m, "lit"); got != "(1 2)" {
		t.Errorf("lit = %s, want (1 2)", got)
	}
	if got := eval(t, m, "(let ((l (list 1))) (setcar l 2) l)"); got != "(2)" {
		t.Errorf("mutable list = %s", got)
	}
	if got := eval(t, m, `(let ((s (mkstr 3 #\a))) (sset s 1 #\b) s)`); got != `"aba"` {
		t.Errorf("mutable string = %s", got)
	}
}

// Test the errors detected while compiling.
func TestCompileErrors(t *testing.T) {
	m, _, _ := newMachine(t, vm.Config{})
	tests := []struct {
		src string
		tag string
	}{
		{"(car 1 2)", vm.TagArityError},
		{"(cons 1)", vm.TagArityError},
		{"(-)", vm.TagArityError},
		{"(throw 'x)", vm.TagArityError},
		{"(apply car)", vm.TagArityError},
		{"(if)", vm.TagSyntax},
		{"(lambda)", vm.TagSyntax},
		{"(setq 1 2)", vm.TagSyntax},
		{"(let ((1 2)) 3)", vm.TagSyntax},
		{"(quote a b)", vm.TagSyntax},
		{",x", vm.TagSyntax},
		{"`,@x", vm.TagSyntax},
		{"(f . x)", vm.TagSyntax},
		{"(macro 1 2)", vm.TagSyntax},
	}
	for _, tt := range tests {
		if _, err := EvalString(m, tt.src); !errors.Is(err, vm.ErrorTag(tt.tag)) {
			t.Errorf("%s: err = %v, want %s", tt.src, err, tt.tag)
		}
	}
}

// Test runtime type and arity errors, and recovery afterwards.
func TestRuntimeErrors(t *testing.T) {
	m, _, errOut := newMachine(t, vm.Config{})
	tests := []struct {
		src string
		tag string
	}{
		{"(car 1)", vm.TagTypeError},
		{"(+ 1 'a)", vm.TagTypeError},
		{"(/ 1 0)", vm.TagDivZero},
		{"(+ 2147483647 1)", vm.TagOverflow},
		{"((lambda (x) x))", vm.TagArityError},
		{"(1 2)", vm.TagTypeError},
		{"undefined-thing", vm.TagUndefined},
		{`(error "custom")`, vm.TagUser},
		{"(vref (vector 1) 5)", vm.TagRange},
	}
	for _, tt := range tests {
		if _, err := EvalString(m, tt.src); !errors.Is(err, vm.ErrorTag(tt.tag)) {
			t.Errorf("%s: err = %v, want %s", tt.src, err, tt.tag)
		}
	}
	if !strings.Contains(errOut.String(), "undefined symbol: undefined-thing") {
		t.Errorf("diagnostics = %q", errOut.String())
	}
	if got := eval(t, m, "(+ 1 1)"); got != "2" {
		t.Errorf("machine unusable after errors: %s", got)
	}
}

// Test that a failed Apply from Go does not leave the machine inside an
// activation: later top-level evaluations still flush their output.
func TestApplyFailureRecovers(t *testing.T) {
	m, out, _ := newMachine(t, vm.Config{})
	fn, err := EvalString(m, "(lambda () (car 1))")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Apply(fn); !errors.Is(err, vm.ErrorTag(vm.TagTypeError)) {
		t.Fatalf("err = %v, want type-error", err)
	}
	eval(t, m, `(display "pending")`)
	if out.String() != "pending" {
		t.Errorf("output = %q, want pending", out.String())
	}
}

// ---------------------------------------------------------------------------
// Macros
// ---------------------------------------------------------------------------

func TestMacros(t *testing.T) {
	m, _, _ := newMachine(t, vm.Config{})
	eval(t, m, "(macro my-if (lambda (c a b) `(cond (,c ,a) (t ,b))))")
	if got := eval(t, m, "(my-if nil 1 2)"); got != "2" {
		t.Errorf("my-if = %s, want 2", got)
	}
	eval(t, m, "(macro swap! (lambda (a b) (let ((tmp (gensym))) `(let ((,tmp ,a)) (setq ,a ,b) (setq ,b ,tmp)))))")
	if got := eval(t, m, "(let ((x 1) (y 2)) (swap! x y) (list x y))"); got != "(2 1)" {
		t.Errorf("swap! = %s, want (2 1)", got)
	}
	// a local binding shadows the macro
	if got := eval(t, m, "(let ((my-if list)) (my-if 1 2 3))"); got != "(1 2 3)" {
		t.Errorf("shadowed macro = %s", got)
	}
	eval(t, m, "(macro my-or (lambda args (if (null args) nil `(let ((v ,(car args))) (if v v (my-or ,@(cdr args)))))))")
	if got := eval(t, m, "(my-or nil nil 5)"); got != "5" {
		t.Errorf("recursive macro = %s, want 5", got)
	}
}

// Test that runaway expansion is stopped.
func TestMacroDepth(t *testing.T) {
	m, _, _ := newMachine(t, vm.Config{MacroDepth: 50})
	eval(t, m, "(macro forever (lambda () '(forever)))")
	if _, err := EvalString(m, "(forever)"); !errors.Is(err, vm.ErrorTag(vm.TagMacroDepth)) {
		t.Errorf("err = %v, want macro-depth", err)
	}
}

// ---------------------------------------------------------------------------
// Input and output
// ---------------------------------------------------------------------------

func TestOutput(t *testing.T) {
	m, out, _ := newMachine(t, vm.Config{})
	eval(t, m, `(print "hi") (display "plain") (newline) (write #\a) (writec #\newline)`)
	want := "\"hi\"\nplain\n#\\a\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

// Test loading a source file, and the file and line in its diagnostics.
func TestLoad(t *testing.T) {
	m, _, errOut := newMachine(t, vm.Config{})
	dir := t.TempDir()
	good := filepath.Join(dir, "good.ls9")
	if err := os.WriteFile(good, []byte("(def loaded 7)\n(def (twice x) (* 2 x))\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Load(m, good); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := eval(t, m, "(twice loaded)"); got != "14" {
		t.Errorf("(twice loaded) = %s", got)
	}

	bad := filepath.Join(dir, "bad.ls9")
	if err := os.WriteFile(bad, []byte("(def ok 1)\n(car 1)\n(def never 2)\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Load(m, bad); !errors.Is(err, vm.ErrorTag(vm.TagTypeError)) {
		t.Fatalf("err = %v, want type-error", err)
	}
	if !strings.Contains(errOut.String(), bad+":2") {
		t.Errorf("diagnostic lacks location: %q", errOut.String())
	}
	if _, ok := m.Global("never"); ok {
		t.Error("loading continued after an error")
	}

	src := `(load "` + good + `")`
	if got := eval(t, m, src); got != "t" {
		t.Errorf("load primitive = %s", got)
	}
}

// Test that reading from a string port works inside programs.
func TestReadPrimitive(t *testing.T) {
	m, _, _ := newMachine(t, vm.Config{})
	path := filepath.Join(t.TempDir(), "data.ls9")
	if err := os.WriteFile(path, []byte("(1 2) sym"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := `(let ((p (open-infile "` + path + `")))
	          (let* ((a (read p)) (b (read p)) (c (read p)))
	            (close-port p)
	            (list a b (eofp c))))`
	if got := eval(t, m, src); got != "((1 2) sym t)" {
		t.Errorf("result = %s", got)
	}
}
