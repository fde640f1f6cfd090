// Package diag provides diagnostic collection and rendering for the
// binlay compiler. Every pipeline stage reports through a *Diags; the
// sink accumulates records and renders them to a writer with source
// context as they arrive.
package diag

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Span is a half-open byte range [Start,End) into the source text.
type Span struct {
	Start int
	End   int
}

// Severity categorizes a diagnostic.
type Severity int

const (
	SevError Severity = iota
	SevWarning
	SevNote
)

func (s Severity) String() string {
	switch s {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	case SevNote:
		return "note"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Diagnostic is a single reported problem. Spans[0] is the primary
// location; any further spans point at related sites (e.g. the
// original declaration for a duplicate).
type Diagnostic struct {
	Severity Severity
	Code     string
	Message  string
	Spans    []Span
}

// Diags collects diagnostics for one source file and renders them.
type Diags struct {
	name       string
	source     string
	lineStarts []int

	diags    []Diagnostic
	errCount int

	out      io.Writer
	colorize bool
}

// New creates a diagnostics sink for the named source. Rendering goes
// to stderr by default; use SetWriter to redirect (tests do).
func New(name, source string) *Diags {
	return &Diags{
		name:       name,
		source:     source,
		lineStarts: indexLines(source),
		out:        os.Stderr,
		colorize:   false,
	}
}

// indexLines records the byte offset of the start of every line.
func indexLines(source string) []int {
	starts := []int{0}
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// SetWriter redirects rendered output.
func (d *Diags) SetWriter(w io.Writer) { d.out = w }

// SetColor enables ANSI coloring of rendered diagnostics.
func (d *Diags) SetColor(enabled bool) { d.colorize = enabled }

// Err0 reports an error with no source location.
func (d *Diags) Err0(code, msg string) {
	d.report(Diagnostic{Severity: SevError, Code: code, Message: msg})
}

// Err1 reports an error with a primary source location.
func (d *Diags) Err1(code, msg string, primary Span) {
	d.report(Diagnostic{Severity: SevError, Code: code, Message: msg, Spans: []Span{primary}})
}

// Err2 reports an error with primary and secondary source locations.
func (d *Diags) Err2(code, msg string, primary, secondary Span) {
	d.report(Diagnostic{Severity: SevError, Code: code, Message: msg, Spans: []Span{primary, secondary}})
}

// Warn0 reports a warning with no source location.
func (d *Diags) Warn0(code, msg string) {
	d.report(Diagnostic{Severity: SevWarning, Code: code, Message: msg})
}

// Warn1 reports a warning with a primary source location.
func (d *Diags) Warn1(code, msg string, primary Span) {
	d.report(Diagnostic{Severity: SevWarning, Code: code, Message: msg, Spans: []Span{primary}})
}

// Note1 reports a note attached to a primary source location. Notes
// supplement a preceding error (e.g. operand values for a failed
// assert) and do not count as errors.
func (d *Diags) Note1(code, msg string, primary Span) {
	d.report(Diagnostic{Severity: SevNote, Code: code, Message: msg, Spans: []Span{primary}})
}

func (d *Diags) report(diag Diagnostic) {
	d.diags = append(d.diags, diag)
	if diag.Severity == SevError {
		d.errCount++
	}
	d.render(diag)
}

// HasErrors returns true if any error-severity diagnostic was reported.
func (d *Diags) HasErrors() bool { return d.errCount > 0 }

// ErrorCount returns the number of error-severity diagnostics.
func (d *Diags) ErrorCount() int { return d.errCount }

// All returns every diagnostic reported so far, in report order.
func (d *Diags) All() []Diagnostic { return d.diags }

// HasCode returns true if a diagnostic with the given code was reported.
func (d *Diags) HasCode(code string) bool {
	for _, diag := range d.diags {
		if diag.Code == code {
			return true
		}
	}
	return false
}

// Position is a 1-based line/column pair resolved from a byte offset.
type Position struct {
	Line   int
	Column int
}

// Resolve converts a byte offset into a line/column position.
func (d *Diags) Resolve(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(d.source) {
		offset = len(d.source)
	}
	// Last line whose start is <= offset.
	idx := sort.Search(len(d.lineStarts), func(i int) bool {
		return d.lineStarts[i] > offset
	}) - 1
	return Position{Line: idx + 1, Column: offset - d.lineStarts[idx] + 1}
}

// lineText returns the text of the given 1-based line without the
// trailing newline.
func (d *Diags) lineText(line int) string {
	if line < 1 || line > len(d.lineStarts) {
		return ""
	}
	start := d.lineStarts[line-1]
	end := len(d.source)
	if line < len(d.lineStarts) {
		end = d.lineStarts[line] - 1
	}
	return strings.TrimSuffix(d.source[start:end], "\r")
}

// render writes a single diagnostic with source context and a caret
// under the primary span.
func (d *Diags) render(diag Diagnostic) {
	if d.out == nil {
		return
	}

	header := fmt.Sprintf("%s[%s]", diag.Severity, diag.Code)
	if d.colorize {
		switch diag.Severity {
		case SevError:
			header = color.New(color.FgRed, color.Bold).Sprint(header)
		case SevWarning:
			header = color.New(color.FgYellow, color.Bold).Sprint(header)
		case SevNote:
			header = color.New(color.FgCyan, color.Bold).Sprint(header)
		}
	}
	fmt.Fprintf(d.out, "%s: %s\n", header, diag.Message)

	for i, span := range diag.Spans {
		d.renderSpan(span, i > 0)
	}
}

func (d *Diags) renderSpan(span Span, secondary bool) {
	pos := d.Resolve(span.Start)
	marker := "-->"
	if secondary {
		marker = "   "
	}
	fmt.Fprintf(d.out, "  %s %s:%d:%d\n", marker, d.name, pos.Line, pos.Column)

	text := d.lineText(pos.Line)
	fmt.Fprintf(d.out, "   %d | %s\n", pos.Line, text)

	// Caret underline, clipped to the end of the line.
	width := span.End - span.Start
	lineRemaining := len(text) - (pos.Column - 1)
	if width > lineRemaining {
		width = lineRemaining
	}
	if width < 1 {
		width = 1
	}
	pad := strings.Repeat(" ", pos.Column-1)
	mark := strings.Repeat("^", width)
	if secondary {
		mark = strings.Repeat("-", width)
	}
	if d.colorize {
		if secondary {
			mark = color.New(color.FgBlue).Sprint(mark)
		} else {
			mark = color.New(color.FgRed).Sprint(mark)
		}
	}
	prefix := strings.Repeat(" ", len(fmt.Sprintf("   %d | ", pos.Line)))
	fmt.Fprintf(d.out, "%s%s%s\n", prefix, pad, mark)
}
