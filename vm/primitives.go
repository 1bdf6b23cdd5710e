package vm

// ---------------------------------------------------------------------------
// Primitive table
// ---------------------------------------------------------------------------

// Primitive describes a built-in procedure compiled to its own opcode.
// Calls supply Max arguments; the compiler pads omitted optional ones with
// nil. Variadic primitives (Max < 0) take an argument count operand.
type Primitive struct {
	Name string
	Op   Opcode
	Min  int
	Max  int
	Fn   func(m *Machine, args []Cell) (Cell, error)
}

// Variadic reports whether p takes any number of arguments.
func (p *Primitive) Variadic() bool {
	return p.Max < 0
}

var primitives = []Primitive{
	// pairs and lists
	{"cons", OpCons, 2, 2, primCons},
	{"car", OpCar, 1, 1, primCar},
	{"cdr", OpCdr, 1, 1, primCdr},
	{"caar", OpCaar, 1, 1, primCaar},
	{"cadr", OpCadr, 1, 1, primCadr},
	{"cdar", OpCdar, 1, 1, primCdar},
	{"cddr", OpCddr, 1, 1, primCddr},
	{"setcar", OpSetCar, 2, 2, primSetCar},
	{"setcdr", OpSetCdr, 2, 2, primSetCdr},
	{"list", OpList, 0, -1, primList},
	{"length", OpLength, 1, 1, primLength},
	{"reverse", OpReverse, 1, 1, primReverse},

	// predicates
	{"atom", OpAtom, 1, 1, primAtom},
	{"pair", OpPair, 1, 1, primPair},
	{"null", OpNull, 1, 1, primNull},
	{"eq", OpEq, 2, 2, primEq},
	{"eqv", OpEqv, 2, 2, primEqv},
	{"fixp", OpFixp, 1, 1, typePredicate(TFixnum)},
	{"charp", OpCharp, 1, 1, typePredicate(TChar)},
	{"stringp", OpStringp, 1, 1, typePredicate(TString)},
	{"symbolp", OpSymbolp, 1, 1, typePredicate(TSymbol)},
	{"vectorp", OpVectorp, 1, 1, typePredicate(TVector)},
	{"functionp", OpFunctionp, 1, 1, typePredicate(TClosure)},
	{"inportp", OpInportp, 1, 1, primInportp},
	{"outportp", OpOutportp, 1, 1, primOutportp},
	{"eofp", OpEofp, 1, 1, primEofp},
	{"ctagp", OpCtagp, 1, 1, typePredicate(TCatchTag)},
	{"constp", OpConstp, 1, 1, primConstp},

	// arithmetic
	{"+", OpPlus, 2, 2, primPlus},
	{"-", OpMinus, 2, 2, primMinus},
	{"*", OpTimes, 2, 2, primTimes},
	{"/", OpDiv, 2, 2, primDiv},
	{"div", OpDiv, 2, 2, primDiv},
	{"rem", OpRem, 2, 2, primRem},
	{"mod", OpMod, 2, 2, primMod},
	{"abs", OpAbs, 1, 1, primAbs},
	{"neg", OpNeg, 1, 1, primNeg},
	{"<", OpLess, 2, 2, numCompare("<", func(a, b int32) bool { return a < b })},
	{"<=", OpLessEq, 2, 2, numCompare("<=", func(a, b int32) bool { return a <= b })},
	{">", OpGreater, 2, 2, numCompare(">", func(a, b int32) bool { return a > b })},
	{">=", OpGreaterEq, 2, 2, numCompare(">=", func(a, b int32) bool { return a >= b })},
	{"=", OpNumEq, 2, 2, numCompare("=", func(a, b int32) bool { return a == b })},

	// characters
	{"char", OpChar, 1, 1, primChar},
	{"charval", OpCharval, 1, 1, primCharval},
	{"c<", OpCharLess, 2, 2, primCharLess},
	{"c=", OpCharEq, 2, 2, primCharEq},
	{"alphac", OpAlphac, 1, 1, primAlphac},
	{"numericc", OpNumericc, 1, 1, primNumericc},
	{"whitec", OpWhitec, 1, 1, primWhitec},
	{"upcase", OpUpcase, 1, 1, primUpcase},
	{"downcase", OpDowncase, 1, 1, primDowncase},

	// strings
	{"mkstr", OpMkstr, 1, 2, primMkstr},
	{"sref", OpSref, 2, 2, primSref},
	{"sset", OpSset, 3, 3, primSset},
	{"ssize", OpSsize, 1, 1, primSsize},
	{"substr", OpSubstr, 3, 3, primSubstr},
	{"string-append", OpStringAppend, 0, -1, primStringAppend},
	{"string", OpString, 0, -1, primString},
	{"s<", OpStringLess, 2, 2, primStringLess},
	{"s=", OpStringEq, 2, 2, primStringEq},
	{"symname", OpSymname, 1, 1, primSymname},
	{"symbol", OpSymbol, 1, 1, primSymbol},
	{"ntoa", OpNtoa, 1, 2, primNtoa},
	{"aton", OpAton, 1, 2, primAton},
	{"strlist", OpStrlist, 1, 1, primStrlist},
	{"liststr", OpListstr, 1, 1, primListstr},

	// vectors
	{"mkvec", OpMkvec, 1, 2, primMkvec},
	{"vref", OpVref, 2, 2, primVref},
	{"vset", OpVset, 3, 3, primVset},
	{"vsize", OpVsize, 1, 1, primVsize},
	{"vector", OpVector, 0, -1, primVector},
	{"listvec", OpListvec, 1, 1, primListvec},
	{"veclist", OpVeclist, 1, 1, primVeclist},
	{"vfill", OpVfill, 2, 2, primVfill},

	// control
	{"catch-tag", OpCatchTag, 0, 0, primCatchTag},
	{"eval", OpEval, 1, 1, primEval},
	{"error", OpError, 1, 2, primError},

	// I/O
	{"readc", OpReadc, 0, 1, primReadc},
	{"peekc", OpPeekc, 0, 1, primPeekc},
	{"writec", OpWritec, 1, 2, primWritec},
	{"read", OpRead, 0, 1, primRead},
	{"write", OpWrite, 1, 2, primWrite},
	{"display", OpDisplay, 1, 2, primDisplay},
	{"open-infile", OpOpenInfile, 1, 1, primOpenInfile},
	{"open-outfile", OpOpenOutfile, 1, 2, primOpenOutfile},
	{"close-port", OpClosePort, 1, 1, primClosePort},
	{"close-all-ports", OpCloseAllPorts, 0, 0, primCloseAllPorts},
	{"inport", OpInport, 0, 0, primInport},
	{"outport", OpOutport, 0, 0, primOutport},
	{"set-inport", OpSetInport, 1, 1, primSetInport},
	{"set-outport", OpSetOutport, 1, 1, primSetOutport},
	{"load", OpLoad, 1, 1, primLoad},

	// system
	{"syscmd", OpSyscmd, 1, 1, primSyscmd},
	{"gc", OpGC, 0, 0, primGC},
	{"gensym", OpGensym, 0, 0, primGensym},
	{"symbols", OpSymbols, 0, 0, primSymbols},
	{"trace", OpTrace, 0, 0, primTrace},
	{"quit", OpQuit, 0, 1, primQuit},
	{"dump-image", OpDumpImage, 1, 1, primDumpImage},
}

var (
	primByOp   [numOpcodes]*Primitive
	primByName = make(map[string]*Primitive)
)

func init() {
	for i := range primitives {
		p := &primitives[i]
		if primByOp[p.Op] == nil {
			primByOp[p.Op] = p
		}
		primByName[p.Name] = p
	}
}

// LookupPrimitive returns the primitive with the given name.
func LookupPrimitive(name string) (*Primitive, bool) {
	p, ok := primByName[name]
	return p, ok
}

// Primitives returns the names of all primitives in table order.
func Primitives() []string {
	names := make([]string, len(primitives))
	for i, p := range primitives {
		names[i] = p.Name
	}
	return names
}

// ---------------------------------------------------------------------------
// Argument checks
// ---------------------------------------------------------------------------

func boolCell(b bool) Cell {
	if b {
		return True
	}
	return Nil
}

func (m *Machine) fixnumArg(c Cell, prim string) (int32, *Error) {
	if !m.IsFixnum(c) {
		return 0, m.typeError(c, prim, "fixnum")
	}
	return m.FixnumValue(c), nil
}

func (m *Machine) charArg(c Cell, prim string) (rune, *Error) {
	if !m.IsChar(c) {
		return 0, m.typeError(c, prim, "char")
	}
	return m.CharValue(c), nil
}

func (m *Machine) stringArg(c Cell, prim string) (string, *Error) {
	if !m.IsString(c) {
		return "", m.typeError(c, prim, "string")
	}
	return m.StringValue(c), nil
}

func (m *Machine) pairArg(c Cell, prim string) *Error {
	if !m.IsPair(c) {
		return m.typeError(c, prim, "pair")
	}
	return nil
}

func (m *Machine) listArg(c Cell, prim string) (int, *Error) {
	n := m.Length(c)
	if n < 0 {
		return 0, m.typeError(c, prim, "list")
	}
	return n, nil
}

// indexArg checks that c is a fixnum in [0, limit).
func (m *Machine) indexArg(c Cell, limit int, prim string) (int, *Error) {
	i, err := m.fixnumArg(c, prim)
	if err != nil {
		return 0, err
	}
	if i < 0 || int(i) >= limit {
		return 0, m.rangeError(c, prim)
	}
	return int(i), nil
}

// mutableArg rejects constant objects.
func (m *Machine) mutableArg(c Cell, prim string) *Error {
	if m.IsConst(c) {
		return m.immutableError(c, prim)
	}
	return nil
}

// mkFixnum boxes an intermediate result, signalling overflow when it does
// not fit.
func (m *Machine) mkFixnum(n int64, prim string) (Cell, error) {
	if n > MaxFixnum || n < MinFixnum {
		return Undef, m.newError(TagOverflow, Undef, "%s: fixnum overflow", prim)
	}
	return m.MkFixnum(int32(n)), nil
}

// optionalPort returns the current port when c is nil.
func (m *Machine) optionalPort(c Cell, out bool) Cell {
	if c != Nil {
		return c
	}
	if out {
		return m.Outport()
	}
	return m.Inport()
}
