// Package linear flattens the AST of the output section into a single
// instruction stream. Every 'wr NAME' reference is replaced by the
// inlined instructions of NAME, bracketed by SectionStart/SectionEnd
// markers so section-relative offsets can be tracked later.
//
// The instruction order produced here — source order for statements,
// children before operator inside expressions — is the canonical
// order every later stage traverses.
package linear

import (
	"errors"
	"fmt"
	"io"

	"github.com/binlay/binlay/diag"
	"github.com/binlay/binlay/parser"
	"github.com/binlay/binlay/sema"
)

// MaxRecursionDepth caps section inlining depth.
const MaxRecursionDepth = 100

// Opcode identifies a linear instruction.
type Opcode int

const (
	OpSectionStart Opcode = iota
	OpSectionEnd
	OpWrs
	OpWr8
	OpWr16
	OpWr24
	OpWr32
	OpWr40
	OpWr48
	OpWr56
	OpWr64
	OpAssert
	OpPrint
	OpLabel
	OpSizeof
	OpAbs
	OpImg
	OpSec
	OpInt // untyped integer literal
	OpU64 // u64-typed literal
	OpI64 // i64-typed literal
	OpToU64
	OpToI64
	OpEqEq
	OpNEq
	OpGEq
	OpLEq
	OpLogicalAnd
	OpLogicalOr
	OpBitAnd
	OpBitOr
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpLeftShift
	OpRightShift
)

var opcodeNames = map[Opcode]string{
	OpSectionStart: "SectionStart",
	OpSectionEnd:   "SectionEnd",
	OpWrs:          "Wrs",
	OpWr8:          "Wr8",
	OpWr16:         "Wr16",
	OpWr24:         "Wr24",
	OpWr32:         "Wr32",
	OpWr40:         "Wr40",
	OpWr48:         "Wr48",
	OpWr56:         "Wr56",
	OpWr64:         "Wr64",
	OpAssert:       "Assert",
	OpPrint:        "Print",
	OpLabel:        "Label",
	OpSizeof:       "Sizeof",
	OpAbs:          "Abs",
	OpImg:          "Img",
	OpSec:          "Sec",
	OpInt:          "Int",
	OpU64:          "U64",
	OpI64:          "I64",
	OpToU64:        "ToU64",
	OpToI64:        "ToI64",
	OpEqEq:         "EqEq",
	OpNEq:          "NEq",
	OpGEq:          "GEq",
	OpLEq:          "LEq",
	OpLogicalAnd:   "LogicalAnd",
	OpLogicalOr:    "LogicalOr",
	OpBitAnd:       "BitAnd",
	OpBitOr:        "BitOr",
	OpAdd:          "Add",
	OpSubtract:     "Subtract",
	OpMultiply:     "Multiply",
	OpDivide:       "Divide",
	OpModulo:       "Modulo",
	OpLeftShift:    "LeftShift",
	OpRightShift:   "RightShift",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", int(op))
}

// Width returns the emitted byte width for WrN opcodes, 0 otherwise.
func (op Opcode) Width() uint64 {
	switch op {
	case OpWr8:
		return 1
	case OpWr16:
		return 2
	case OpWr24:
		return 3
	case OpWr32:
		return 4
	case OpWr40:
		return 5
	case OpWr48:
		return 6
	case OpWr56:
		return 7
	case OpWr64:
		return 8
	}
	return 0
}

// IsWrX returns true for the fixed-width write opcodes.
func (op Opcode) IsWrX() bool { return op.Width() != 0 }

// IsBinary returns true for two-input one-output operations.
func (op Opcode) IsBinary() bool {
	switch op {
	case OpEqEq, OpNEq, OpGEq, OpLEq, OpLogicalAnd, OpLogicalOr,
		OpBitAnd, OpBitOr, OpAdd, OpSubtract, OpMultiply, OpDivide,
		OpModulo, OpLeftShift, OpRightShift:
		return true
	}
	return false
}

// tokenOpcodes maps statement and operator tokens to opcodes.
var tokenOpcodes = map[parser.TokenType]Opcode{
	parser.TokenWrs:       OpWrs,
	parser.TokenWr8:       OpWr8,
	parser.TokenWr16:      OpWr16,
	parser.TokenWr24:      OpWr24,
	parser.TokenWr32:      OpWr32,
	parser.TokenWr40:      OpWr40,
	parser.TokenWr48:      OpWr48,
	parser.TokenWr56:      OpWr56,
	parser.TokenWr64:      OpWr64,
	parser.TokenAssert:    OpAssert,
	parser.TokenPrint:     OpPrint,
	parser.TokenLabel:     OpLabel,
	parser.TokenSizeof:    OpSizeof,
	parser.TokenAbs:       OpAbs,
	parser.TokenImg:       OpImg,
	parser.TokenSec:       OpSec,
	parser.TokenInteger:   OpInt,
	parser.TokenU64:       OpU64,
	parser.TokenI64:       OpI64,
	parser.TokenToU64:     OpToU64,
	parser.TokenToI64:     OpToI64,
	parser.TokenEqEq:      OpEqEq,
	parser.TokenNEq:       OpNEq,
	parser.TokenGEq:       OpGEq,
	parser.TokenLEq:       OpLEq,
	parser.TokenAndAnd:    OpLogicalAnd,
	parser.TokenOrOr:      OpLogicalOr,
	parser.TokenAmpersand: OpBitAnd,
	parser.TokenPipe:      OpBitOr,
	parser.TokenPlus:      OpAdd,
	parser.TokenMinus:     OpSubtract,
	parser.TokenStar:      OpMultiply,
	parser.TokenSlash:     OpDivide,
	parser.TokenPercent:   OpModulo,
	parser.TokenLShift:    OpLeftShift,
	parser.TokenRShift:    OpRightShift,
}

// NoLid marks an operand with no producing instruction: constants and
// identifiers.
const NoLid = -1

// Operand is an untyped linear operand: the source string form, its
// span, the token kind it came from, and the producing instruction if
// the operand is an output temporary.
type Operand struct {
	Tok   parser.TokenType
	Sval  string
	Span  diag.Span
	IrLid int // NoLid for constants and identifiers
}

// Instr is one untyped linear instruction. Operands holds indices
// into the database's operand table; for value-producing operations
// the last operand is the output temporary.
type Instr struct {
	Op       Opcode
	Operands []int
	Span     diag.Span
}

// DB is the flat linearized program.
type DB struct {
	Instrs   []Instr
	Operands []Operand

	OutputSec string
	AddrStr   string // starting address literal, "" if none
	AddrSpan  diag.Span

	maxDepth int
}

// Option adjusts linearization.
type Option func(*DB)

// WithMaxDepth overrides the inlining depth cap.
func WithMaxDepth(n int) Option {
	return func(db *DB) { db.maxDepth = n }
}

// New linearizes the output section of the program.
func New(tree *parser.Tree, sdb *sema.DB, d *diag.Diags, opts ...Option) (*DB, error) {
	if sdb.Output == nil {
		d.Err0("MAIN_1", "Missing output statement.")
		return nil, errors.New("linearization failed")
	}

	db := &DB{
		OutputSec: sdb.Output.SecName,
		AddrStr:   sdb.Output.AddrStr,
		AddrSpan:  sdb.Output.AddrSpan,
		maxDepth:  MaxRecursionDepth,
	}
	for _, opt := range opts {
		opt(db)
	}

	b := &builder{db: db, tree: tree, sdb: sdb, diags: d}
	sec := sdb.Sections[sdb.Output.SecName]
	if !b.section(1, sec) {
		return nil, errors.New("linearization failed")
	}
	return db, nil
}

type builder struct {
	db    *DB
	tree  *parser.Tree
	sdb   *sema.DB
	diags *diag.Diags
}

// newOperand appends an operand and returns its index.
func (b *builder) newOperand(op Operand) int {
	b.db.Operands = append(b.db.Operands, op)
	return len(b.db.Operands) - 1
}

// emit appends an instruction and returns its linear id.
func (b *builder) emit(op Opcode, operands []int, span diag.Span) int {
	b.db.Instrs = append(b.db.Instrs, Instr{Op: op, Operands: operands, Span: span})
	return len(b.db.Instrs) - 1
}

// nextLid is the linear id the next emitted instruction will get.
func (b *builder) nextLid() int { return len(b.db.Instrs) }

// section inlines one section between SectionStart/SectionEnd
// markers carrying the section name as operand 0.
func (b *builder) section(depth int, sec *sema.Section) bool {
	if depth > b.db.maxDepth {
		m := fmt.Sprintf("Maximum recursion depth (%d) exceeded when processing '%s'.", b.db.maxDepth, sec.Name)
		b.diags.Err1("MAIN_11", m, sec.NameSpan)
		return false
	}

	nameOpnd := b.newOperand(Operand{
		Tok: parser.TokenIdentifier, Sval: sec.Name, Span: sec.NameSpan, IrLid: NoLid,
	})
	b.emit(OpSectionStart, []int{nameOpnd}, sec.NameSpan)

	result := true
	for _, kid := range b.tree.Children(sec.Nid) {
		result = b.statement(depth, kid) && result
	}

	endOpnd := b.newOperand(Operand{
		Tok: parser.TokenIdentifier, Sval: sec.Name, Span: sec.NameSpan, IrLid: NoLid,
	})
	b.emit(OpSectionEnd, []int{endOpnd}, sec.NameSpan)
	return result
}

// statement linearizes one statement node of a section body.
// Punctuation leaves (braces, stray semicolons, the section's own
// name) produce nothing.
func (b *builder) statement(depth int, nid parser.NodeID) bool {
	tok := b.tree.Token(nid)
	switch tok.Type {
	case parser.TokenWr:
		name := b.tree.ChildLiteral(nid, 0)
		// Semantic analysis already validated the name.
		return b.section(depth+1, b.sdb.Sections[name])

	case parser.TokenWrs:
		strNid := b.tree.Child(nid, 0)
		strTok := b.tree.Token(strNid)
		opnd := b.newOperand(Operand{
			Tok: strTok.Type, Sval: strTok.Literal, Span: strTok.Span, IrLid: NoLid,
		})
		b.emit(OpWrs, []int{opnd}, tok.Span)
		return true

	case parser.TokenWr8, parser.TokenWr16, parser.TokenWr24, parser.TokenWr32,
		parser.TokenWr40, parser.TokenWr48, parser.TokenWr56, parser.TokenWr64:
		operands := []int{b.expr(b.tree.Child(nid, 0))}
		// Child 1, when present and not the terminating semicolon, is
		// the repeat count.
		if rep := b.exprChild(nid, 1); rep != -1 {
			operands = append(operands, rep)
		}
		b.emit(tokenOpcodes[tok.Type], operands, tok.Span)
		return true

	case parser.TokenAssert:
		opnd := b.expr(b.tree.Child(nid, 0))
		b.emit(OpAssert, []int{opnd}, tok.Span)
		return true

	case parser.TokenPrint:
		opnd := b.expr(b.tree.Child(nid, 0))
		b.emit(OpPrint, []int{opnd}, tok.Span)
		return true

	case parser.TokenLabel:
		nameNid := b.tree.Child(nid, 0)
		nameTok := b.tree.Token(nameNid)
		opnd := b.newOperand(Operand{
			Tok: parser.TokenIdentifier, Sval: nameTok.Literal, Span: nameTok.Span, IrLid: NoLid,
		})
		b.emit(OpLabel, []int{opnd}, tok.Span)
		return true
	}
	return true
}

// exprChild linearizes the n-th child of nid as an expression if it
// is one; returns -1 when the child is absent or punctuation.
func (b *builder) exprChild(nid parser.NodeID, n int) int {
	kid := b.tree.Child(nid, n)
	if kid == parser.NoNode {
		return -1
	}
	if b.tree.Token(kid).Type == parser.TokenSemicolon {
		return -1
	}
	return b.expr(kid)
}

// expr linearizes an expression subtree in evaluation order (children
// left-to-right, then the operation) and returns the operand index
// holding the expression's value.
func (b *builder) expr(nid parser.NodeID) int {
	tok := b.tree.Token(nid)
	switch tok.Type {
	case parser.TokenInteger, parser.TokenU64, parser.TokenI64:
		opnd := b.newOperand(Operand{
			Tok: tok.Type, Sval: tok.Literal, Span: tok.Span, IrLid: NoLid,
		})
		b.emit(tokenOpcodes[tok.Type], []int{opnd}, tok.Span)
		return opnd

	case parser.TokenQuotedString:
		return b.newOperand(Operand{
			Tok: tok.Type, Sval: tok.Literal, Span: tok.Span, IrLid: NoLid,
		})

	case parser.TokenSizeof:
		nameNid := b.tree.Child(nid, 0)
		nameTok := b.tree.Token(nameNid)
		ident := b.newOperand(Operand{
			Tok: parser.TokenIdentifier, Sval: nameTok.Literal, Span: nameTok.Span, IrLid: NoLid,
		})
		lid := b.nextLid()
		out := b.newOperand(Operand{Tok: tok.Type, Sval: tok.Literal, Span: tok.Span, IrLid: lid})
		b.emit(OpSizeof, []int{ident, out}, tok.Span)
		return out

	case parser.TokenAbs, parser.TokenImg, parser.TokenSec:
		lid := b.nextLid()
		out := b.newOperand(Operand{Tok: tok.Type, Sval: tok.Literal, Span: tok.Span, IrLid: lid})
		operands := []int{out}
		if nameNid := b.tree.Child(nid, 0); nameNid != parser.NoNode {
			nameTok := b.tree.Token(nameNid)
			ident := b.newOperand(Operand{
				Tok: parser.TokenIdentifier, Sval: nameTok.Literal, Span: nameTok.Span, IrLid: NoLid,
			})
			operands = []int{ident, out}
		}
		b.emit(tokenOpcodes[tok.Type], operands, tok.Span)
		return out

	case parser.TokenToU64, parser.TokenToI64:
		in := b.expr(b.tree.Child(nid, 0))
		lid := b.nextLid()
		out := b.newOperand(Operand{Tok: tok.Type, Sval: tok.Literal, Span: tok.Span, IrLid: lid})
		b.emit(tokenOpcodes[tok.Type], []int{in, out}, tok.Span)
		return out
	}

	// Binary operation: children first, then the operation itself.
	lhs := b.expr(b.tree.Child(nid, 0))
	rhs := b.expr(b.tree.Child(nid, 1))
	lid := b.nextLid()
	out := b.newOperand(Operand{Tok: tok.Type, Sval: tok.Literal, Span: tok.Span, IrLid: lid})
	b.emit(tokenOpcodes[tok.Type], []int{lhs, rhs, out}, tok.Span)
	return out
}

// Dump writes a readable listing of the linear stream for -verbose.
func (db *DB) Dump(w io.Writer) {
	for lid, instr := range db.Instrs {
		fmt.Fprintf(w, "linear %d: %s", lid, instr.Op)
		for i, opIdx := range instr.Operands {
			sep := " "
			if i > 0 {
				sep = ", "
			}
			opnd := db.Operands[opIdx]
			if opnd.IrLid != NoLid {
				fmt.Fprintf(w, "%stmp%d", sep, opIdx)
			} else {
				fmt.Fprintf(w, "%s%s", sep, opnd.Sval)
			}
		}
		fmt.Fprintln(w)
	}
}
