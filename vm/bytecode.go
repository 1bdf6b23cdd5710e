package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is a single instruction word. Operands follow the opcode as
// additional words in the bytecode vector.
type Opcode int32

// Control opcodes
const (
	OpIll        Opcode = iota // illegal instruction
	OpHalt                     // stop, result in acc
	OpQuote                    // acc = literal k
	OpNil                      // acc = nil
	OpTrue                     // acc = t
	OpPush                     // push acc
	OpPop                      // acc = pop
	OpDrop                     // discard top of stack
	OpArg                      // acc = argument i of the current frame
	OpRef                      // acc = argument i of frame d
	OpSetArg                   // argument i of the current frame = acc
	OpSetRef                   // argument i of frame d = acc
	OpGref                     // acc = value of global binding k
	OpGset                     // value of global binding k = acc
	OpJmp                      // pc = a
	OpBrf                      // if acc is nil, pc = a
	OpBrt                      // if acc is not nil, pc = a
	OpClosure                  // acc = closure(code, env, a, name k)
	OpEnter                    // bind exactly n arguments
	OpEntcol                   // bind n arguments and collect the rest
	OpApply                    // call acc with n arguments
	OpTailApp                  // tail-call acc with n arguments
	OpApplis                   // call acc with the list on the stack
	OpTailApplis               // tail-call acc with the list on the stack
	OpReturn                   // return acc to the caller
	OpCatch                    // install catch for tag acc, landing at a
	OpUncatch                  // remove the innermost catch
	OpHandle                   // install handler acc for tag pop(), landing at a
	OpUnhandle                 // remove the innermost handler
	OpThrow                    // throw acc to tag pop()
	OpDefMac                   // bind macro k to acc

	firstPrimitive // primitive opcodes start here
)

// Primitive opcodes
const (
	OpCons Opcode = firstPrimitive + iota
	OpCar
	OpCdr
	OpCaar
	OpCadr
	OpCdar
	OpCddr
	OpSetCar
	OpSetCdr
	OpList
	OpLength
	OpReverse
	OpAtom
	OpPair
	OpNull
	OpEq
	OpEqv
	OpFixp
	OpCharp
	OpStringp
	OpSymbolp
	OpVectorp
	OpFunctionp
	OpInportp
	OpOutportp
	OpEofp
	OpCtagp
	OpConstp
	OpPlus
	OpMinus
	OpTimes
	OpDiv
	OpRem
	OpMod
	OpAbs
	OpNeg
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
	OpNumEq
	OpChar
	OpCharval
	OpCharLess
	OpCharEq
	OpAlphac
	OpNumericc
	OpWhitec
	OpUpcase
	OpDowncase
	OpMkstr
	OpSref
	OpSset
	OpSsize
	OpSubstr
	OpStringAppend
	OpString
	OpStringLess
	OpStringEq
	OpSymname
	OpSymbol
	OpNtoa
	OpAton
	OpStrlist
	OpListstr
	OpMkvec
	OpVref
	OpVset
	OpVsize
	OpVector
	OpListvec
	OpVeclist
	OpVfill
	OpCatchTag
	OpEval
	OpError
	OpReadc
	OpPeekc
	OpWritec
	OpRead
	OpWrite
	OpDisplay
	OpOpenInfile
	OpOpenOutfile
	OpClosePort
	OpCloseAllPorts
	OpInport
	OpOutport
	OpSetInport
	OpSetOutport
	OpLoad
	OpSyscmd
	OpGC
	OpGensym
	OpSymbols
	OpTrace
	OpQuit
	OpDumpImage

	numOpcodes
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name     string // mnemonic, or the Lisp name for primitives
	Operands int    // number of operand words
}

// opcodeTable maps control opcodes to their metadata. Primitive entries are
// filled in from the primitive table.
var opcodeTable = [numOpcodes]OpcodeInfo{
	OpIll:        {"ill", 0},
	OpHalt:       {"halt", 0},
	OpQuote:      {"quote", 1},
	OpNil:        {"nil", 0},
	OpTrue:       {"true", 0},
	OpPush:       {"push", 0},
	OpPop:        {"pop", 0},
	OpDrop:       {"drop", 0},
	OpArg:        {"arg", 1},
	OpRef:        {"ref", 2},
	OpSetArg:     {"setarg", 1},
	OpSetRef:     {"setref", 2},
	OpGref:       {"gref", 1},
	OpGset:       {"gset", 1},
	OpJmp:        {"jmp", 1},
	OpBrf:        {"brf", 1},
	OpBrt:        {"brt", 1},
	OpClosure:    {"closure", 2},
	OpEnter:      {"enter", 1},
	OpEntcol:     {"entcol", 1},
	OpApply:      {"apply", 1},
	OpTailApp:    {"tailapp", 1},
	OpApplis:     {"applis", 0},
	OpTailApplis: {"tailapplis", 0},
	OpReturn:     {"return", 0},
	OpCatch:      {"catch", 1},
	OpUncatch:    {"uncatch", 0},
	OpHandle:     {"handle", 1},
	OpUnhandle:   {"unhandle", 0},
	OpThrow:      {"throw", 0},
	OpDefMac:     {"defmac", 1},
}

func init() {
	for _, p := range primitives {
		if opcodeTable[p.Op].Name != "" {
			continue // alias
		}
		operands := 0
		if p.Max < 0 {
			operands = 1
		}
		opcodeTable[p.Op] = OpcodeInfo{Name: p.Name, Operands: operands}
	}
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if op >= 0 && op < numOpcodes && opcodeTable[op].Name != "" {
		return opcodeTable[op]
	}
	return OpcodeInfo{Name: fmt.Sprintf("unknown_%d", int32(op))}
}

// IsPrimitive reports whether op is a primitive opcode.
func (op Opcode) IsPrimitive() bool {
	return op >= firstPrimitive && op < numOpcodes
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Info().Name
}

// ---------------------------------------------------------------------------
// Builder: helper for constructing bytecode
// ---------------------------------------------------------------------------

// Builder accumulates instruction words and literals for one compilation
// unit. Word 0 of the finished bytecode vector is reserved for the literal
// vector, so the first instruction is at pc 1.
type Builder struct {
	words    []int32
	literals []Cell
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{words: make([]int32, 1, 64)}
}

// PC returns the address of the next instruction.
func (b *Builder) PC() int {
	return len(b.words)
}

// Emit appends an opcode followed by its operands.
func (b *Builder) Emit(op Opcode, operands ...int) {
	b.words = append(b.words, int32(op))
	for _, o := range operands {
		b.words = append(b.words, int32(o))
	}
}

// EmitJump appends a jump with an unresolved target and returns the address
// of the operand, to be fixed with Patch.
func (b *Builder) EmitJump(op Opcode) int {
	b.words = append(b.words, int32(op), 0)
	return len(b.words) - 1
}

// Patch stores target at operand address at.
func (b *Builder) Patch(at, target int) {
	b.words[at] = int32(target)
}

// Literal adds a literal and returns its index. Identical cells share an
// index.
func (b *Builder) Literal(c Cell) int {
	for i, l := range b.literals {
		if l == c {
			return i
		}
	}
	b.literals = append(b.literals, c)
	return len(b.literals) - 1
}

// Literals returns the literal cells collected so far.
func (b *Builder) Literals() []Cell {
	return b.literals
}

// Words returns the instruction words, including the reserved word 0.
func (b *Builder) Words() []int32 {
	return b.words
}

// Assemble allocates the literal vector and the bytecode vector. The
// caller must keep the literals reachable until Assemble returns.
func (m *Machine) Assemble(b *Builder) Cell {
	lits := m.AllocVector(TVector, len(b.literals))
	for i, l := range b.literals {
		m.VecSet(lits, i, l)
	}
	m.Pin(lits)
	code := m.AllocVector(TBytecode, len(b.words))
	m.Unpin(1)
	m.VecSet(code, 0, lits)
	for i := 1; i < len(b.words); i++ {
		m.VecSet(code, i, Cell(b.words[i]))
	}
	return code
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Disassemble renders a bytecode vector, one instruction per line.
func (m *Machine) Disassemble(code Cell) string {
	var b strings.Builder
	lits := m.VecRef(code, 0)
	n := m.VecLen(code)
	for pc := 1; pc < n; {
		op := Opcode(m.VecRef(code, pc))
		info := op.Info()
		fmt.Fprintf(&b, "%04d  %s", pc, info.Name)
		for j := 1; j <= info.Operands && pc+j < n; j++ {
			fmt.Fprintf(&b, " %d", int32(m.VecRef(code, pc+j)))
		}
		switch op {
		case OpQuote, OpGref, OpGset, OpDefMac:
			k := int(m.VecRef(code, pc+1))
			if k >= 0 && k < m.VecLen(lits) {
				fmt.Fprintf(&b, "  ; %s", m.Sprint(m.VecRef(lits, k), true))
			}
		}
		b.WriteByte('\n')
		pc += 1 + info.Operands
	}
	return b.String()
}
