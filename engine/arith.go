package engine

import (
	"fmt"
	"math"

	"github.com/binlay/binlay/diag"
	"github.com/binlay/binlay/ir"
	"github.com/binlay/binlay/linear"
)

// iterateArithmetic computes a binary operation into its output
// temporary using checked arithmetic. The output operand's inferred
// type selects the signed or unsigned domain; comparisons and logical
// connectives always produce a U64 0/1.
func (e *Engine) iterateArithmetic(instr *ir.Instr, d *diag.Diags) bool {
	in0 := e.parms[instr.Operands[0]]
	in1 := e.parms[instr.Operands[1]]
	outIdx := instr.Operands[2]
	outDT := e.parms[outIdx].DT

	switch instr.Op {
	case linear.OpEqEq:
		e.setBool(outIdx, in0.AsU64() == in1.AsU64())
	case linear.OpNEq:
		e.setBool(outIdx, in0.AsU64() != in1.AsU64())
	case linear.OpGEq:
		e.setBool(outIdx, compareGEq(in0, in1))
	case linear.OpLEq:
		e.setBool(outIdx, compareGEq(in1, in0))
	case linear.OpLogicalAnd:
		e.setBool(outIdx, in0.AsU64() != 0 && in1.AsU64() != 0)
	case linear.OpLogicalOr:
		e.setBool(outIdx, in0.AsU64() != 0 || in1.AsU64() != 0)
	case linear.OpBitAnd:
		e.setNum(outIdx, outDT, in0.AsU64()&in1.AsU64())
	case linear.OpBitOr:
		e.setNum(outIdx, outDT, in0.AsU64()|in1.AsU64())
	case linear.OpAdd:
		return e.doAdd(instr, in0, in1, outIdx, outDT, d)
	case linear.OpSubtract:
		return e.doSub(instr, in0, in1, outIdx, outDT, d)
	case linear.OpMultiply:
		return e.doMul(instr, in0, in1, outIdx, outDT, d)
	case linear.OpDivide:
		return e.doDiv(instr, in0, in1, outIdx, outDT, d)
	case linear.OpModulo:
		return e.doMod(instr, in0, in1, outIdx, outDT, d)
	case linear.OpLeftShift:
		return e.doShl(instr, in0, in1, outIdx, outDT, d)
	case linear.OpRightShift:
		return e.doShr(instr, in0, in1, outIdx, outDT, d)
	}
	return true
}

func (e *Engine) setBool(outIdx int, b bool) {
	v := uint64(0)
	if b {
		v = 1
	}
	e.parms[outIdx] = ir.Value{DT: ir.U64, U: v}
}

func (e *Engine) setNum(outIdx int, dt ir.DataType, u uint64) {
	if dt == ir.I64 {
		e.parms[outIdx] = ir.Value{DT: ir.I64, I: int64(u)}
		return
	}
	e.parms[outIdx] = ir.Value{DT: dt, U: u}
}

// compareGEq compares in the signed domain when either side is
// signed, otherwise unsigned.
func compareGEq(a, b ir.Value) bool {
	if a.DT == ir.I64 || b.DT == ir.I64 {
		return a.AsI64() >= b.AsI64()
	}
	return a.AsU64() >= b.AsU64()
}

func (e *Engine) doAdd(instr *ir.Instr, in0, in1 ir.Value, outIdx int, outDT ir.DataType, d *diag.Diags) bool {
	if outDT == ir.I64 {
		a, b := in0.AsI64(), in1.AsI64()
		sum := a + b
		if (b > 0 && sum < a) || (b < 0 && sum > a) {
			msg := fmt.Sprintf("Add expression '%d + %d' will overflow", a, b)
			d.Err1("EXEC_1", msg, instr.Span)
			return false
		}
		e.parms[outIdx] = ir.Value{DT: ir.I64, I: sum}
		return true
	}
	a, b := in0.AsU64(), in1.AsU64()
	if a > math.MaxUint64-b {
		msg := fmt.Sprintf("Add expression '%d + %d' will overflow", a, b)
		d.Err1("EXEC_1", msg, instr.Span)
		return false
	}
	e.setNum(outIdx, outDT, a+b)
	return true
}

func (e *Engine) doSub(instr *ir.Instr, in0, in1 ir.Value, outIdx int, outDT ir.DataType, d *diag.Diags) bool {
	if outDT == ir.I64 {
		a, b := in0.AsI64(), in1.AsI64()
		diff := a - b
		if (b > 0 && diff > a) || (b < 0 && diff < a) {
			msg := fmt.Sprintf("Subtract expression '%d - %d' will underflow", a, b)
			d.Err1("EXEC_4", msg, instr.Span)
			return false
		}
		e.parms[outIdx] = ir.Value{DT: ir.I64, I: diff}
		return true
	}
	a, b := in0.AsU64(), in1.AsU64()
	if b > a {
		msg := fmt.Sprintf("Subtract expression '%d - %d' will underflow", a, b)
		d.Err1("EXEC_4", msg, instr.Span)
		return false
	}
	e.setNum(outIdx, outDT, a-b)
	return true
}

func (e *Engine) doMul(instr *ir.Instr, in0, in1 ir.Value, outIdx int, outDT ir.DataType, d *diag.Diags) bool {
	if outDT == ir.I64 {
		a, b := in0.AsI64(), in1.AsI64()
		if a != 0 && b != 0 {
			prod := a * b
			if prod/a != b {
				msg := fmt.Sprintf("Multiply expression '%d * %d' will overflow", a, b)
				d.Err1("EXEC_6", msg, instr.Span)
				return false
			}
			e.parms[outIdx] = ir.Value{DT: ir.I64, I: prod}
			return true
		}
		e.parms[outIdx] = ir.Value{DT: ir.I64, I: 0}
		return true
	}
	a, b := in0.AsU64(), in1.AsU64()
	if a != 0 && b > math.MaxUint64/a {
		msg := fmt.Sprintf("Multiply expression '%d * %d' will overflow", a, b)
		d.Err1("EXEC_6", msg, instr.Span)
		return false
	}
	e.setNum(outIdx, outDT, a*b)
	return true
}

func (e *Engine) doDiv(instr *ir.Instr, in0, in1 ir.Value, outIdx int, outDT ir.DataType, d *diag.Diags) bool {
	if in1.AsU64() == 0 {
		msg := fmt.Sprintf("Exception in divide expression '%s / %s'", in0, in1)
		d.Err1("EXEC_7", msg, instr.Span)
		return false
	}
	if outDT == ir.I64 {
		a, b := in0.AsI64(), in1.AsI64()
		if a == math.MinInt64 && b == -1 {
			msg := fmt.Sprintf("Exception in divide expression '%d / %d'", a, b)
			d.Err1("EXEC_7", msg, instr.Span)
			return false
		}
		e.parms[outIdx] = ir.Value{DT: ir.I64, I: a / b}
		return true
	}
	e.setNum(outIdx, outDT, in0.AsU64()/in1.AsU64())
	return true
}

func (e *Engine) doMod(instr *ir.Instr, in0, in1 ir.Value, outIdx int, outDT ir.DataType, d *diag.Diags) bool {
	if in1.AsU64() == 0 {
		msg := fmt.Sprintf("Exception in modulo expression '%s %% %s'", in0, in1)
		d.Err1("EXEC_7", msg, instr.Span)
		return false
	}
	if outDT == ir.I64 {
		a, b := in0.AsI64(), in1.AsI64()
		if a == math.MinInt64 && b == -1 {
			msg := fmt.Sprintf("Exception in modulo expression '%d %% %d'", a, b)
			d.Err1("EXEC_7", msg, instr.Span)
			return false
		}
		e.parms[outIdx] = ir.Value{DT: ir.I64, I: a % b}
		return true
	}
	e.setNum(outIdx, outDT, in0.AsU64()%in1.AsU64())
	return true
}

func (e *Engine) doShl(instr *ir.Instr, in0, in1 ir.Value, outIdx int, outDT ir.DataType, d *diag.Diags) bool {
	amount := in1.AsU64()
	if amount >= 64 {
		msg := fmt.Sprintf("Shift amount %d is too large in Left Shift expression '%d << %d'", amount, in0.AsU64(), amount)
		d.Err1("EXEC_9", msg, instr.Span)
		return false
	}
	e.setNum(outIdx, outDT, in0.AsU64()<<amount)
	return true
}

func (e *Engine) doShr(instr *ir.Instr, in0, in1 ir.Value, outIdx int, outDT ir.DataType, d *diag.Diags) bool {
	amount := in1.AsU64()
	if amount >= 64 {
		msg := fmt.Sprintf("Shift amount %d is too large in Right Shift expression '%d >> %d'", amount, in0.AsU64(), amount)
		d.Err1("EXEC_10", msg, instr.Span)
		return false
	}
	e.setNum(outIdx, outDT, in0.AsU64()>>amount)
	return true
}
