// Package ir converts the untyped linear stream into typed IR:
// every operand gets a data type and a decoded native value, every
// instruction's operand shape is validated, and the name tables the
// evaluation engine needs (section extents and addressable names)
// are built.
package ir

import (
	"errors"
	"fmt"
	"io"

	"github.com/binlay/binlay/diag"
	"github.com/binlay/binlay/linear"
	"github.com/binlay/binlay/parser"
)

// DataType classifies a typed operand. Integer is an abstract numeric
// literal that unifies with either I64 or U64.
type DataType int

const (
	U64 DataType = iota
	I64
	Integer
	QuotedString
	Identifier
)

func (dt DataType) String() string {
	switch dt {
	case U64:
		return "U64"
	case I64:
		return "I64"
	case Integer:
		return "Integer"
	case QuotedString:
		return "QuotedString"
	case Identifier:
		return "Identifier"
	}
	return fmt.Sprintf("DataType(%d)", int(dt))
}

// IsNumeric returns true for types usable in arithmetic.
func (dt DataType) IsNumeric() bool {
	return dt == U64 || dt == I64 || dt == Integer
}

// Value is the decoded native value of an operand: a tagged union of
// the unsigned, signed, and string payloads.
type Value struct {
	DT DataType
	U  uint64
	I  int64
	S  string // string, or identifier name
}

// AsU64 returns the value's unsigned interpretation.
func (v Value) AsU64() uint64 {
	if v.DT == I64 {
		return uint64(v.I)
	}
	return v.U
}

// AsI64 returns the value's signed interpretation.
func (v Value) AsI64() int64 {
	if v.DT == I64 {
		return v.I
	}
	return int64(v.U)
}

// AsBool treats any nonzero numeric value as true.
func (v Value) AsBool() bool { return v.AsU64() != 0 }

// String renders the value for dumps and diagnostics.
func (v Value) String() string {
	switch v.DT {
	case U64:
		return fmt.Sprintf("%d", v.U)
	case I64:
		return fmt.Sprintf("%d", v.I)
	case Integer:
		return fmt.Sprintf("%d", v.U)
	case QuotedString:
		return fmt.Sprintf("%q", v.S)
	case Identifier:
		return v.S
	}
	return "<invalid>"
}

// Operand is a typed operand: constant-or-variable, data type,
// decoded value, and the producing instruction when the operand is a
// temporary.
type Operand struct {
	IsConst bool
	DT      DataType
	Val     Value
	IrLid   int // linear.NoLid when no instruction produces this operand
	Span    diag.Span
}

// Instr mirrors a linear instruction, but operand indices now refer
// to the typed operand table.
type Instr struct {
	Op       linear.Opcode
	Operands []int
	Span     diag.Span
}

// Range is a half-open [Start,End) index range over the IR vector.
type Range struct {
	Start int
	End   int
}

// DB is the typed IR database. After construction the instruction
// vector, constant operands and name tables are read-only; only the
// engine's private copies of temporaries change.
type DB struct {
	Instrs   []Instr
	Operands []Operand

	// StartAddr is the absolute starting address from the output
	// statement, zero by default.
	StartAddr uint64

	// SizedLocs maps a section name to its [start,end) extent in the
	// IR vector.
	SizedLocs map[string]Range

	// AddressedLocs maps an addressable name (section or label) to
	// the instruction where its address is taken.
	AddressedLocs map[string]int
}

// New builds the typed IR from the linear database.
func New(lin *linear.DB, d *diag.Diags) (*DB, error) {
	db := &DB{
		SizedLocs:     make(map[string]Range),
		AddressedLocs: make(map[string]int),
	}

	if lin.AddrStr != "" {
		addr, err := parser.ParseInteger(lin.AddrStr)
		if err != nil {
			m := fmt.Sprintf("Malformed integer operand %s", lin.AddrStr)
			d.Err1("IRDB_3", m, lin.AddrSpan)
			return nil, errors.New("typed IR construction failed")
		}
		db.StartAddr = addr
	}

	tb := &typer{lin: lin, db: db, diags: d, memo: make([]DataType, len(lin.Operands)), done: make([]bool, len(lin.Operands))}
	if !tb.processOperands() {
		return nil, errors.New("typed IR construction failed")
	}
	if !tb.processInstrs() {
		return nil, errors.New("typed IR construction failed")
	}
	return db, nil
}

type typer struct {
	lin   *linear.DB
	db    *DB
	diags *diag.Diags
	memo  []DataType
	done  []bool
}

// tokenTypes maps source token kinds with a fixed result type.
var tokenTypes = map[parser.TokenType]DataType{
	parser.TokenEqEq:         U64,
	parser.TokenNEq:          U64,
	parser.TokenGEq:          U64,
	parser.TokenLEq:          U64,
	parser.TokenAndAnd:       U64,
	parser.TokenOrOr:         U64,
	parser.TokenAbs:          U64,
	parser.TokenImg:          U64,
	parser.TokenSec:          U64,
	parser.TokenSizeof:       U64,
	parser.TokenToU64:        U64,
	parser.TokenU64:          U64,
	parser.TokenToI64:        I64,
	parser.TokenI64:          I64,
	parser.TokenInteger:      Integer,
	parser.TokenQuotedString: QuotedString,
	parser.TokenIdentifier:   Identifier,
	parser.TokenLabel:        Identifier,
}

// operandType infers the data type of a linear operand, recursing
// through the producing instruction's inputs for arithmetic whose
// type depends on them.
func (t *typer) operandType(lopIdx int) (DataType, bool) {
	if t.done[lopIdx] {
		return t.memo[lopIdx], true
	}

	lop := &t.lin.Operands[lopIdx]
	if dt, fixed := tokenTypes[lop.Tok]; fixed {
		t.memo[lopIdx] = dt
		t.done[lopIdx] = true
		return dt, true
	}

	// Arithmetic, bitwise and shift results take the type of their
	// two inputs. The inputs must be numeric; Integer unifies with
	// either concrete width.
	instr := &t.lin.Instrs[lop.IrLid]
	lhsDT, ok := t.operandType(instr.Operands[0])
	if !ok {
		return 0, false
	}
	rhsDT, ok := t.operandType(instr.Operands[1])
	if !ok {
		return 0, false
	}

	var dt DataType
	switch {
	case lhsDT == rhsDT:
		if !lhsDT.IsNumeric() {
			m := fmt.Sprintf("Error, found data type '%s', but operation '%s' requires one of I64, U64, Integer.", lhsDT, instr.Op)
			t.diags.Err1("IRDB_2", m, instr.Span)
			return 0, false
		}
		dt = lhsDT
	case rhsDT == Integer && lhsDT.IsNumeric():
		dt = lhsDT
	case lhsDT == Integer && (rhsDT == I64 || rhsDT == U64):
		dt = rhsDT
	default:
		m := fmt.Sprintf("Error, data type mismatch in input operands.  Left is %s, right is %s.", lhsDT, rhsDT)
		t.diags.Err1("IRDB_1", m, instr.Span)
		return 0, false
	}

	t.memo[lopIdx] = dt
	t.done[lopIdx] = true
	return dt, true
}

// processOperands types and decodes every linear operand.
func (t *typer) processOperands() bool {
	result := true
	for lopIdx := range t.lin.Operands {
		dt, ok := t.operandType(lopIdx)
		if !ok {
			return false
		}

		lop := &t.lin.Operands[lopIdx]
		isConst := lop.IrLid == linear.NoLid

		opnd := Operand{IsConst: isConst, DT: dt, IrLid: lop.IrLid, Span: lop.Span}
		if isConst {
			val, ok := decodeConstant(lop.Sval, dt, lop.Span, t.diags)
			if !ok {
				// Keep processing to report more conversion errors.
				// A placeholder keeps operand indices aligned; the
				// stage fails before anything reads it.
				result = false
			}
			opnd.Val = val
		} else {
			opnd.Val = Value{DT: dt}
		}
		t.db.Operands = append(t.db.Operands, opnd)
	}
	return result
}

// decodeConstant converts the source string form to a native value.
func decodeConstant(sval string, dt DataType, span diag.Span, d *diag.Diags) (Value, bool) {
	switch dt {
	case U64, Integer:
		v, err := parser.ParseInteger(sval)
		if err != nil {
			d.Err1("IRDB_3", fmt.Sprintf("Malformed integer operand %s", sval), span)
			return Value{}, false
		}
		return Value{DT: dt, U: v}, true
	case I64:
		v, err := parser.ParseInteger(sval)
		if err != nil {
			d.Err1("IRDB_3", fmt.Sprintf("Malformed integer operand %s", sval), span)
			return Value{}, false
		}
		return Value{DT: dt, I: int64(v)}, true
	case QuotedString:
		s, err := parser.Unquote(sval)
		if err != nil {
			d.Err1("IRDB_3", fmt.Sprintf("Malformed string operand %s", sval), span)
			return Value{}, false
		}
		return Value{DT: dt, S: s}, true
	case Identifier:
		return Value{DT: dt, S: sval}, true
	}
	return Value{}, false
}

// processInstrs validates each instruction's operand shape and builds
// the name tables.
func (t *typer) processInstrs() bool {
	result := true
	for _, lir := range t.lin.Instrs {
		instr := Instr{Op: lir.Op, Operands: lir.Operands, Span: lir.Span}
		lid := len(t.db.Instrs)
		if !t.validate(&instr) {
			result = false
			continue
		}

		switch instr.Op {
		case linear.OpLabel:
			name := t.identOperand(&instr, 0)
			t.db.AddressedLocs[name] = lid
		case linear.OpSectionStart:
			name := t.identOperand(&instr, 0)
			t.db.SizedLocs[name] = Range{Start: lid}
			t.db.AddressedLocs[name] = lid
		case linear.OpSectionEnd:
			name := t.identOperand(&instr, 0)
			rng := t.db.SizedLocs[name]
			rng.End = lid
			t.db.SizedLocs[name] = rng
		}
		t.db.Instrs = append(t.db.Instrs, instr)
	}
	return result
}

// identOperand returns the identifier value of the given operand of
// the instruction. Construction guarantees the operand exists.
func (t *typer) identOperand(instr *Instr, n int) string {
	return t.db.Operands[instr.Operands[n]].Val.S
}

// OperandIrLid returns the producing instruction of an operand, or
// linear.NoLid for constants.
func (db *DB) OperandIrLid(opndIdx int) int {
	return db.Operands[opndIdx].IrLid
}

func (t *typer) validate(instr *Instr) bool {
	switch {
	case instr.Op.IsWrX():
		return t.validateWrX(instr)
	case instr.Op.IsBinary():
		return t.validateBinary(instr)
	}
	switch instr.Op {
	case linear.OpAssert:
		return t.validateNumeric1(instr)
	case linear.OpWrs:
		return t.validateWrs(instr)
	case linear.OpToU64, linear.OpToI64:
		return t.validateCast(instr)
	}
	// Print accepts most expressions without side effects;
	// declarators and markers pass through.
	return true
}

// validateNumeric1 expects exactly one numeric operand.
func (t *typer) validateNumeric1(instr *Instr) bool {
	if len(instr.Operands) != 1 {
		m := fmt.Sprintf("'%s' expressions must evaluate to one operand, but found %d.", instr.Op, len(instr.Operands))
		t.diags.Err1("IRDB_4", m, instr.Span)
		return false
	}
	opnd := &t.db.Operands[instr.Operands[0]]
	if !opnd.DT.IsNumeric() {
		m := fmt.Sprintf("'%s' expression requires an integer or boolean operand, found '%s'.", instr.Op, opnd.DT)
		t.diags.Err2("IRDB_5", m, instr.Span, opnd.Span)
		return false
	}
	return true
}

// validateBinary expects 2 numeric inputs plus 1 output.
func (t *typer) validateBinary(instr *Instr) bool {
	if len(instr.Operands) != 3 {
		m := fmt.Sprintf("'%s' expression requires 2 input and one output operands, but found %d total operands.", instr.Op, len(instr.Operands))
		t.diags.Err1("IRDB_6", m, instr.Span)
		return false
	}
	for opNum := 0; opNum < 2; opNum++ {
		opnd := &t.db.Operands[instr.Operands[opNum]]
		if !opnd.DT.IsNumeric() {
			m := fmt.Sprintf("'%s' expression requires an integer, found '%s'.", instr.Op, opnd.DT)
			t.diags.Err2("IRDB_7", m, instr.Span, opnd.Span)
			return false
		}
	}
	return true
}

// validateWrX expects one numeric value operand and an optional
// numeric repeat count.
func (t *typer) validateWrX(instr *Instr) bool {
	if len(instr.Operands) != 1 && len(instr.Operands) != 2 {
		m := fmt.Sprintf("'%s' requires 1 or 2 input operands, but found %d total operands.", instr.Op, len(instr.Operands))
		t.diags.Err1("IRDB_8", m, instr.Span)
		return false
	}
	for _, opIdx := range instr.Operands {
		opnd := &t.db.Operands[opIdx]
		if !opnd.DT.IsNumeric() {
			m := fmt.Sprintf("'%s' requires an integer for this operand, found '%s'.", instr.Op, opnd.DT)
			t.diags.Err2("IRDB_9", m, instr.Span, opnd.Span)
			return false
		}
	}
	return true
}

func (t *typer) validateWrs(instr *Instr) bool {
	if len(instr.Operands) != 1 {
		m := fmt.Sprintf("'%s' expressions must evaluate to one operand, but found %d.", instr.Op, len(instr.Operands))
		t.diags.Err1("IRDB_4", m, instr.Span)
		return false
	}
	opnd := &t.db.Operands[instr.Operands[0]]
	if opnd.DT != QuotedString {
		m := fmt.Sprintf("'%s' requires a quoted string operand, found '%s'.", instr.Op, opnd.DT)
		t.diags.Err2("IRDB_5", m, instr.Span, opnd.Span)
		return false
	}
	return true
}

// validateCast expects one numeric input and one output.
func (t *typer) validateCast(instr *Instr) bool {
	if len(instr.Operands) != 2 {
		m := fmt.Sprintf("'%s' requires 1 input operand, but found %d total operands.", instr.Op, len(instr.Operands))
		t.diags.Err1("IRDB_4", m, instr.Span)
		return false
	}
	opnd := &t.db.Operands[instr.Operands[0]]
	if !opnd.DT.IsNumeric() {
		m := fmt.Sprintf("'%s' requires an integer operand, found '%s'.", instr.Op, opnd.DT)
		t.diags.Err2("IRDB_5", m, instr.Span, opnd.Span)
		return false
	}
	return true
}

// Dump writes a readable listing of the typed IR for -verbose. U64
// constants display in hex.
func (db *DB) Dump(w io.Writer) {
	for lid, instr := range db.Instrs {
		fmt.Fprintf(w, "lid %d: is %s", lid, instr.Op)
		for i, opIdx := range instr.Operands {
			sep := " "
			if i > 0 {
				sep = ", "
			}
			opnd := &db.Operands[opIdx]
			if opnd.IrLid != linear.NoLid {
				fmt.Fprintf(w, "%s(%s)tmp%d, output of lid %d", sep, opnd.DT, opIdx, opnd.IrLid)
			} else if opnd.DT == U64 {
				fmt.Fprintf(w, "%s(%s)%#X", sep, opnd.DT, opnd.Val.U)
			} else {
				fmt.Fprintf(w, "%s(%s)%s", sep, opnd.DT, opnd.Val)
			}
		}
		fmt.Fprintln(w)
	}
}
