// Package engine resolves instruction locations to a fixed point and
// then emits the output bytes. Sizes and addresses may be consumed
// before their definition sites are settled (sizeof of a section that
// contains the assert reading it, a label address taken before the
// label), so the engine re-walks the instruction stream until no
// location changes, then executes the write and assert instructions
// in a single final pass.
package engine

import (
	"errors"
	"fmt"
	"io"

	"github.com/binlay/binlay/diag"
	"github.com/binlay/binlay/ir"
	"github.com/binlay/binlay/linear"
)

// MaxIterations bounds the fixed-point loop. A program whose emitted
// widths genuinely feed back into themselves never stabilizes; the
// cap turns that into a diagnostic instead of a hang.
const MaxIterations = 1024

// Location records where an instruction begins: the cumulative image
// offset and the offset within the enclosing section.
type Location struct {
	Img uint64
	Sec uint64
}

// Engine holds the mutable evaluation state: per-instruction
// locations, the working copies of all operand values, and the
// section offset stack.
type Engine struct {
	parms  []ir.Value
	irLocs []Location

	// Stack of section offsets. Entering a section pushes the old
	// section offset; leaving pops and folds it back.
	secOffsets []uint64

	// Stack of currently open section names, kept in step with
	// secOffsets.
	secNames []string

	// Starting absolute address, copied from the IR database.
	startAddr uint64

	maxIter int
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithMaxIterations overrides the fixed-point iteration cap.
func WithMaxIterations(n int) Option {
	return func(e *Engine) { e.maxIter = n }
}

// New creates an engine and runs location resolution to a fixed
// point. Returns an error if evaluation failed or diverged.
func New(irdb *ir.DB, d *diag.Diags, opts ...Option) (*Engine, error) {
	e := &Engine{
		irLocs:    make([]Location, len(irdb.Instrs)),
		startAddr: irdb.StartAddr,
		maxIter:   MaxIterations,
	}
	for _, opt := range opts {
		opt(e)
	}

	// Working copies of the operand values. Constants keep their
	// decoded values; temporaries start zeroed and are refined each
	// iteration.
	e.parms = make([]ir.Value, len(irdb.Operands))
	for i := range irdb.Operands {
		e.parms[i] = irdb.Operands[i].Val
	}

	if !e.iterate(irdb, d) {
		return nil, errors.New("evaluation failed")
	}
	return e, nil
}

// Locations returns the converged per-instruction locations.
func (e *Engine) Locations() []Location { return e.irLocs }

// iterate runs the instruction stream repeatedly until the location
// vector stops changing.
func (e *Engine) iterate(irdb *ir.DB, d *diag.Diags) bool {
	old := make([]Location, len(e.irLocs))

	for iterCount := 0; ; iterCount++ {
		if iterCount >= e.maxIter {
			lid := e.mostDivergent(old)
			m := fmt.Sprintf("Location resolution did not converge after %d iterations.", e.maxIter)
			d.Err1("EXEC_12", m, irdb.Instrs[lid].Span)
			return false
		}

		copy(old, e.irLocs)
		current := Location{}
		e.secOffsets = e.secOffsets[:0]
		e.secNames = e.secNames[:0]

		for lid := range irdb.Instrs {
			instr := &irdb.Instrs[lid]
			// Record our location before each instruction.
			e.irLocs[lid] = current

			ok := true
			switch {
			case instr.Op.IsBinary():
				ok = e.iterateArithmetic(instr, d)
			case instr.Op.IsWrX():
				e.iterateWrX(instr, &current)
			default:
				switch instr.Op {
				case linear.OpSectionStart:
					e.iterateSectionStart(irdb, instr, &current)
				case linear.OpSectionEnd:
					e.iterateSectionEnd(&current)
				case linear.OpWrs:
					e.iterateWrs(instr, &current)
				case linear.OpSizeof:
					ok = e.iterateSizeof(irdb, instr, d)
				case linear.OpAbs, linear.OpImg, linear.OpSec:
					ok = e.iterateAddress(irdb, instr, d, current)
				case linear.OpToU64, linear.OpToI64:
					// Casts have no location effect; refreshing their
					// temporary here keeps widths computed from casts
					// convergent.
					e.evalCast(instr)
				case linear.OpAssert, linear.OpPrint, linear.OpLabel,
					linear.OpInt, linear.OpU64, linear.OpI64:
					// No location effect during iteration. Constant
					// temporaries carry their values from the operand
					// table.
				}
			}
			if !ok {
				return false
			}
		}

		if locationsEqual(old, e.irLocs) {
			return true
		}
	}
}

func locationsEqual(a, b []Location) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// mostDivergent returns the instruction whose image offset moved the
// most between the last two passes.
func (e *Engine) mostDivergent(old []Location) int {
	best, bestDelta := 0, uint64(0)
	for i := range e.irLocs {
		delta := e.irLocs[i].Img - old[i].Img
		if old[i].Img > e.irLocs[i].Img {
			delta = old[i].Img - e.irLocs[i].Img
		}
		if delta >= bestDelta {
			best, bestDelta = i, delta
		}
	}
	return best
}

// iterateSectionStart pushes the old section offset and resets the
// current section offset to zero.
func (e *Engine) iterateSectionStart(irdb *ir.DB, instr *ir.Instr, current *Location) {
	e.secNames = append(e.secNames, irdb.Operands[instr.Operands[0]].Val.S)
	e.secOffsets = append(e.secOffsets, current.Sec)
	current.Sec = 0
}

// iterateSectionEnd pops the saved section offset and folds it back
// into the current offset.
func (e *Engine) iterateSectionEnd(current *Location) {
	n := len(e.secOffsets) - 1
	current.Sec += e.secOffsets[n]
	e.secOffsets = e.secOffsets[:n]
	e.secNames = e.secNames[:len(e.secNames)-1]
}

// iterateWrs advances both offsets by the decoded string's byte
// length.
func (e *Engine) iterateWrs(instr *ir.Instr, current *Location) {
	sz := uint64(len(e.parms[instr.Operands[0]].S))
	current.Img += sz
	current.Sec += sz
}

// iterateWrX advances both offsets by the opcode width times the
// repeat count. The repeat operand is read at its current value, so
// repeat counts derived from sizes participate in the fixed point.
func (e *Engine) iterateWrX(instr *ir.Instr, current *Location) {
	repeat := uint64(1)
	if len(instr.Operands) == 2 {
		repeat = e.parms[instr.Operands[1]].AsU64()
	}
	sz := instr.Op.Width() * repeat
	current.Img += sz
	current.Sec += sz
}

// iterateSizeof writes the current size of the named section into the
// output temporary.
func (e *Engine) iterateSizeof(irdb *ir.DB, instr *ir.Instr, d *diag.Diags) bool {
	secName := e.parms[instr.Operands[0]].S
	out := instr.Operands[1]

	// The section identifier is known to exist, but unless the
	// section actually got used in the output there is no location
	// info for it.
	rng, found := irdb.SizedLocs[secName]
	if !found {
		m := fmt.Sprintf("Can't take sizeof() section '%s' not used in output.", secName)
		d.Err1("EXEC_5", m, instr.Span)
		return false
	}
	sz := e.irLocs[rng.End].Img - e.irLocs[rng.Start].Img
	e.parms[out] = ir.Value{DT: ir.U64, U: sz}
	return true
}

// iterateAddress computes abs/img/sec, either of the current location
// (no identifier) or of a named section or label.
func (e *Engine) iterateAddress(irdb *ir.DB, instr *ir.Instr, d *diag.Diags, current Location) bool {
	loc := current
	out := instr.Operands[len(instr.Operands)-1]

	if len(instr.Operands) == 2 {
		name := e.parms[instr.Operands[0]].S
		lid, found := irdb.AddressedLocs[name]
		if !found {
			m := fmt.Sprintf("Address of section or label '%s' not reachable in output.", name)
			d.Err1("EXEC_11", m, instr.Span)
			return false
		}
		loc = e.irLocs[lid]
	}

	var v uint64
	switch instr.Op {
	case linear.OpAbs:
		v = loc.Img + e.startAddr
	case linear.OpImg:
		v = loc.Img
	case linear.OpSec:
		v = loc.Sec
	}
	e.parms[out] = ir.Value{DT: ir.U64, U: v}
	return true
}

// evalCast refreshes a cast's output temporary from its input.
func (e *Engine) evalCast(instr *ir.Instr) {
	in := e.parms[instr.Operands[0]]
	out := instr.Operands[1]
	switch instr.Op {
	case linear.OpToU64:
		e.parms[out] = ir.Value{DT: ir.U64, U: in.AsU64()}
	case linear.OpToI64:
		e.parms[out] = ir.Value{DT: ir.I64, I: in.AsI64()}
	}
}

// Dump writes the converged location of every instruction.
func (e *Engine) Dump(w io.Writer) {
	for lid, loc := range e.irLocs {
		fmt.Fprintf(w, "%d: img %d, sec %d\n", lid, loc.Img, loc.Sec)
	}
}
