// Package process runs the whole compilation pipeline over one
// source file: parse, semantic analysis, linearization, typed IR,
// location resolution and emission. Each stage that fails maps to a
// stable PROC code and a distinct process exit code.
package process

import (
	"fmt"
	"io"

	"github.com/binlay/binlay/diag"
	"github.com/binlay/binlay/engine"
	"github.com/binlay/binlay/ir"
	"github.com/binlay/binlay/linear"
	"github.com/binlay/binlay/parser"
	"github.com/binlay/binlay/sema"
)

// Stage identifies the pipeline stage that failed.
type Stage int

const (
	StageParse Stage = iota + 1
	StageLinearize
	StageTypedIR
	StageExecute
)

// stageCodes are the stable failure codes of the exit contract.
var stageCodes = map[Stage]string{
	StageParse:     "PROC_1",
	StageLinearize: "PROC_2",
	StageTypedIR:   "PROC_3",
	StageExecute:   "PROC_4",
}

// StageError reports which stage of the pipeline failed.
type StageError struct {
	Stage   Stage
	Message string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("[%s]: %s", stageCodes[e.Stage], e.Message)
}

// Code returns the stable PROC code for the failed stage.
func (e *StageError) Code() string { return stageCodes[e.Stage] }

// ExitCode returns the process exit code for the failed stage.
func (e *StageError) ExitCode() int { return int(e.Stage) }

// Options adjusts a pipeline run. The zero value uses the spec
// defaults everywhere.
type Options struct {
	// Console receives print statement output; nil discards it.
	Console io.Writer

	// Verbose enables stage dumps to Trace.
	Verbose bool

	// Trace receives stage dumps when Verbose is set; nil disables.
	Trace io.Writer

	// DumpAST receives a Graphviz rendering of the tree; nil disables.
	DumpAST io.Writer

	// MaxIterations overrides the fixed-point cap when > 0.
	MaxIterations int

	// MaxErrors overrides the emitter's error cap when > 0.
	MaxErrors int

	// MaxDepth overrides the recursion depth cap when > 0.
	MaxDepth int
}

// Run processes source through every stage, writing output bytes to
// out. Diagnostics go to the supplied sink; the returned error, if
// any, is a *StageError identifying the first stage that failed.
func Run(source string, d *diag.Diags, out io.Writer, opts Options) error {
	tree, ok := parser.Parse(source, d)
	if opts.DumpAST != nil {
		// Dump even a best-effort tree; it helps debug parse errors.
		if err := tree.DumpDot(opts.DumpAST); err != nil {
			return &StageError{Stage: StageParse, Message: "failed to dump the syntax tree."}
		}
	}
	if !ok {
		return &StageError{Stage: StageParse, Message: "Failed to construct the abstract syntax tree."}
	}

	var semaOpts []sema.Option
	if opts.MaxDepth > 0 {
		semaOpts = append(semaOpts, sema.WithMaxDepth(opts.MaxDepth))
	}
	sdb, err := sema.New(tree, d, semaOpts...)
	if err != nil {
		return &StageError{Stage: StageParse, Message: "Failed to construct the abstract syntax tree."}
	}

	var linOpts []linear.Option
	if opts.MaxDepth > 0 {
		linOpts = append(linOpts, linear.WithMaxDepth(opts.MaxDepth))
	}
	lindb, err := linear.New(tree, sdb, d, linOpts...)
	if err != nil {
		return &StageError{Stage: StageLinearize, Message: "Failed to construct the linear database."}
	}
	if opts.Verbose && opts.Trace != nil {
		lindb.Dump(opts.Trace)
	}

	irdb, err := ir.New(lindb, d)
	if err != nil {
		return &StageError{Stage: StageTypedIR, Message: "Failed to construct the IR database."}
	}
	if opts.Verbose && opts.Trace != nil {
		irdb.Dump(opts.Trace)
	}

	var engOpts []engine.Option
	if opts.MaxIterations > 0 {
		engOpts = append(engOpts, engine.WithMaxIterations(opts.MaxIterations))
	}
	eng, err := engine.New(irdb, d, engOpts...)
	if err != nil {
		return &StageError{Stage: StageExecute, Message: "Location resolution failed."}
	}
	if opts.Verbose && opts.Trace != nil {
		eng.Dump(opts.Trace)
	}

	maxErrors := opts.MaxErrors
	if maxErrors <= 0 {
		maxErrors = engine.MaxExecuteErrors
	}
	if err := eng.ExecuteMax(irdb, d, out, opts.Console, maxErrors); err != nil {
		return &StageError{Stage: StageExecute, Message: "output file creation failed."}
	}
	return nil
}
