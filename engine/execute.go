package engine

import (
	"errors"
	"fmt"
	"io"

	"github.com/binlay/binlay/diag"
	"github.com/binlay/binlay/ir"
	"github.com/binlay/binlay/linear"
)

// MaxExecuteErrors caps accumulated execute-phase errors before the
// emitter gives up. A diagnostics ergonomics choice, not a
// correctness property.
const MaxExecuteErrors = 10

// Execute runs the single emission pass over the converged IR,
// writing output bytes to out. Print statements go to console.
func (e *Engine) Execute(irdb *ir.DB, d *diag.Diags, out io.Writer, console io.Writer) error {
	return e.ExecuteMax(irdb, d, out, console, MaxExecuteErrors)
}

// ExecuteMax is Execute with a caller-chosen error cap.
func (e *Engine) ExecuteMax(irdb *ir.DB, d *diag.Diags, out io.Writer, console io.Writer, maxErrors int) error {
	errorCount := 0
	for lid := range irdb.Instrs {
		instr := &irdb.Instrs[lid]

		var err error
		switch instr.Op {
		case linear.OpAssert:
			err = e.executeAssert(irdb, instr, d)
		case linear.OpWrs:
			err = e.executeWrs(instr, d, out)
		case linear.OpPrint:
			err = e.executePrint(instr, d, console)
		case linear.OpToU64, linear.OpToI64:
			e.evalCast(instr)
		default:
			if instr.Op.IsWrX() {
				err = e.executeWrX(instr, d, out)
			}
			// Everything else was computed during iteration.
		}

		if err != nil {
			errorCount++
			if errorCount >= maxErrors {
				break
			}
		}
	}

	if errorCount > 0 {
		return errors.New("error detected")
	}
	return nil
}

// executeAssert checks the operand's final boolean value. On failure
// it re-walks the producing instruction and reports the final value
// of every input operand.
func (e *Engine) executeAssert(irdb *ir.DB, instr *ir.Instr, d *diag.Diags) error {
	opndNum := instr.Operands[0]
	if e.parms[opndNum].AsBool() {
		return nil
	}

	d.Err1("EXEC_2", "Assert expression failed", instr.Span)

	// If the boolean came out of an operation, backtrack to show the
	// operand values that made it false.
	if srcLid := irdb.OperandIrLid(opndNum); srcLid != linear.NoLid {
		e.assertInfo(irdb, srcLid, d)
	}
	return errors.New("assert failed")
}

// assertInfo reports the final value of each input operand of the
// instruction that produced a failed assert's boolean.
func (e *Engine) assertInfo(irdb *ir.DB, srcLid int, d *diag.Diags) {
	operation := &irdb.Instrs[srcLid]
	numOperands := len(operation.Operands)
	// The last operand is the output we already know to be false.
	for idx, opnd := range operation.Operands {
		if idx < numOperands-1 {
			e.assertInfoOperand(irdb, opnd, d)
		}
	}
}

// assertInfoOperand shows an input operand's final computed value.
func (e *Engine) assertInfoOperand(irdb *ir.DB, opndNum int, d *diag.Diags) {
	val := e.parms[opndNum]
	msg := fmt.Sprintf("Operand has value %s", val)
	d.Note1("EXEC_8", msg, irdb.Operands[opndNum].Span)
}

func (e *Engine) executeWrs(instr *ir.Instr, d *diag.Diags, out io.Writer) error {
	buf := e.parms[instr.Operands[0]].S
	if _, err := out.Write([]byte(buf)); err != nil {
		d.Err1("EXEC_3", "Writing string failed", instr.Span)
		return err
	}
	return nil
}

// executeWrX writes the numeric operand little-endian, width bytes
// wide, truncating higher bits, repeated the requested number of
// times.
func (e *Engine) executeWrX(instr *ir.Instr, d *diag.Diags, out io.Writer) error {
	value := e.parms[instr.Operands[0]].AsU64()
	repeat := uint64(1)
	if len(instr.Operands) == 2 {
		repeat = e.parms[instr.Operands[1]].AsU64()
	}

	width := instr.Op.Width()
	buf := make([]byte, width)
	for i := uint64(0); i < width; i++ {
		buf[i] = byte(value >> (8 * i))
	}

	for i := uint64(0); i < repeat; i++ {
		if _, err := out.Write(buf); err != nil {
			d.Err1("EXEC_3", "Writing value failed", instr.Span)
			return err
		}
	}
	return nil
}

// executePrint writes the operand's final value to the console
// writer. Print never contributes to the output image.
func (e *Engine) executePrint(instr *ir.Instr, d *diag.Diags, console io.Writer) error {
	if console == nil {
		return nil
	}
	val := e.parms[instr.Operands[0]]
	var text string
	if val.DT == ir.QuotedString {
		text = val.S
	} else {
		text = val.String()
	}
	if _, err := fmt.Fprintln(console, text); err != nil {
		d.Err1("EXEC_3", "Writing to console failed", instr.Span)
		return err
	}
	return nil
}
