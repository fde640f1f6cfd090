// Package sema builds the semantic database over a parsed tree: the
// section table, the unique output statement, and the label table.
// It validates every name reference in the sections reachable from the
// output statement and rejects write cycles before the linearizer
// runs; sections never written into the output are not walked.
package sema

import (
	"errors"
	"fmt"

	"github.com/binlay/binlay/diag"
	"github.com/binlay/binlay/parser"
)

// MaxRecursionDepth caps the section nesting walk so pathological
// inputs fail with a diagnostic instead of exhausting the stack.
const MaxRecursionDepth = 100

// Section maps a section name to its defining AST node.
type Section struct {
	Name     string
	Nid      parser.NodeID
	NameSpan diag.Span
}

// Output is the program's single output statement: the root section
// name and an optional starting absolute address literal.
type Output struct {
	Nid      parser.NodeID
	SecName  string
	SecSpan  diag.Span
	AddrStr  string // "" when no starting address was given
	AddrSpan diag.Span
	Span     diag.Span
}

// DB is the semantic database. After construction it is never
// mutated.
type DB struct {
	Sections map[string]*Section
	Labels   map[string]diag.Span
	Output   *Output

	maxDepth int
}

// Option adjusts database construction.
type Option func(*DB)

// WithMaxDepth overrides the recursion depth cap.
func WithMaxDepth(n int) Option {
	return func(db *DB) { db.maxDepth = n }
}

// New builds the semantic database, reporting problems to the sink.
// Returns an error if the program is not semantically valid.
func New(tree *parser.Tree, d *diag.Diags, opts ...Option) (*DB, error) {
	db := &DB{
		Sections: make(map[string]*Section),
		Labels:   make(map[string]diag.Span),
		maxDepth: MaxRecursionDepth,
	}
	for _, opt := range opts {
		opt(db)
	}

	ok := true
	// First scan: record all sections.
	for _, nid := range tree.Children(tree.Root()) {
		if tree.Token(nid).Type == parser.TokenSection {
			ok = db.recordSection(tree, nid, d) && ok
		}
	}
	// Second scan: record the unique output.
	for _, nid := range tree.Children(tree.Root()) {
		if tree.Token(nid).Type == parser.TokenOutput {
			ok = db.recordOutput(tree, nid, d) && ok
		}
	}
	if !ok {
		return nil, errors.New("semantic analysis failed")
	}

	if db.Output == nil {
		d.Err0("AST_8", "Missing output statement")
		return nil, errors.New("semantic analysis failed")
	}

	db.collectLabels(tree)

	// Validate the output's root section and walk the reachable
	// section graph checking names and cycles.
	sec, found := db.Sections[db.Output.SecName]
	if !found {
		m := fmt.Sprintf("Unknown section name '%s'", db.Output.SecName)
		d.Err1("AST_16", m, db.Output.SecSpan)
		return nil, errors.New("semantic analysis failed")
	}

	nested := map[string]bool{sec.Name: true}
	for _, kid := range tree.Children(sec.Nid) {
		ok = db.walk(1, tree, kid, d, nested) && ok
	}
	if !ok {
		return nil, errors.New("semantic analysis failed")
	}
	return db, nil
}

func (db *DB) recordSection(tree *parser.Tree, nid parser.NodeID, d *diag.Diags) bool {
	nameNid := tree.Child(nid, 0)
	if nameNid == parser.NoNode {
		d.Err1("AST_23", "Missing section name", tree.Span(nid))
		return false
	}
	nameTok := tree.Token(nameNid)
	if orig, dup := db.Sections[nameTok.Literal]; dup {
		m := fmt.Sprintf("Duplicate section name '%s'", nameTok.Literal)
		d.Err2("AST_9", m, nameTok.Span, orig.NameSpan)
		return false
	}
	db.Sections[nameTok.Literal] = &Section{
		Name:     nameTok.Literal,
		Nid:      nid,
		NameSpan: nameTok.Span,
	}
	return true
}

func (db *DB) recordOutput(tree *parser.Tree, nid parser.NodeID, d *diag.Diags) bool {
	if db.Output != nil {
		d.Err2("AST_10", "Multiple output statements are not allowed.",
			db.Output.Span, tree.Span(nid))
		return false
	}

	nameNid := tree.Child(nid, 0)
	if nameNid == parser.NoNode {
		d.Err1("AST_11", "Missing section name", tree.Span(nid))
		return false
	}
	nameTok := tree.Token(nameNid)
	out := &Output{
		Nid:     nid,
		SecName: nameTok.Literal,
		SecSpan: nameTok.Span,
		Span:    tree.Span(nid),
	}
	// An optional integer literal is the starting absolute address.
	if addrNid := tree.Child(nid, 1); addrNid != parser.NoNode {
		addrTok := tree.Token(addrNid)
		switch addrTok.Type {
		case parser.TokenInteger, parser.TokenU64, parser.TokenI64:
			out.AddrStr = addrTok.Literal
			out.AddrSpan = addrTok.Span
		}
	}
	db.Output = out
	return true
}

// collectLabels records every label declaration in every section.
// Label names share the address namespace with section names.
func (db *DB) collectLabels(tree *parser.Tree) {
	for _, sec := range db.Sections {
		for _, kid := range tree.Children(sec.Nid) {
			if tree.Token(kid).Type == parser.TokenLabel {
				if nameNid := tree.Child(kid, 0); nameNid != parser.NoNode {
					tok := tree.Token(nameNid)
					db.Labels[tok.Literal] = tok.Span
				}
			}
		}
	}
}

// nameExists reports whether name is a declared section or label.
func (db *DB) nameExists(name string) bool {
	if _, found := db.Sections[name]; found {
		return true
	}
	_, found := db.Labels[name]
	return found
}

// walk recursively validates name references below nid. nested tracks
// the currently-open section names so write cycles are caught.
func (db *DB) walk(depth int, tree *parser.Tree, nid parser.NodeID, d *diag.Diags, nested map[string]bool) bool {
	if depth > db.maxDepth {
		tok := tree.Token(nid)
		m := fmt.Sprintf("Maximum recursion depth (%d) exceeded when processing '%s'.", db.maxDepth, tok.Literal)
		d.Err1("AST_5", m, tok.Span)
		return false
	}

	result := true
	switch tree.Token(nid).Type {
	case parser.TokenWr:
		nameNid := tree.Child(nid, 0)
		if nameNid == parser.NoNode {
			d.Err1("AST_11", "Missing section name", tree.Span(nid))
			return false
		}
		nameTok := tree.Token(nameNid)
		sec, found := db.Sections[nameTok.Literal]
		if !found {
			m := fmt.Sprintf("Unknown section name '%s'", nameTok.Literal)
			d.Err1("AST_16", m, nameTok.Span)
			return false
		}
		if nested[nameTok.Literal] {
			d.Err1("AST_6", "Writing section creates a cycle.", nameTok.Span)
			return false
		}
		nested[nameTok.Literal] = true
		for _, kid := range tree.Children(sec.Nid) {
			result = db.walk(depth+1, tree, kid, d, nested) && result
		}
		delete(nested, nameTok.Literal)

	case parser.TokenSizeof:
		nameNid := tree.Child(nid, 0)
		if nameNid == parser.NoNode {
			d.Err1("AST_11", "Missing section name", tree.Span(nid))
			return false
		}
		nameTok := tree.Token(nameNid)
		if _, found := db.Sections[nameTok.Literal]; !found {
			m := fmt.Sprintf("Unknown section name '%s'", nameTok.Literal)
			d.Err1("AST_16", m, nameTok.Span)
			return false
		}

	case parser.TokenAbs, parser.TokenImg, parser.TokenSec:
		// The optional identifier names a section or a label.
		if nameNid := tree.Child(nid, 0); nameNid != parser.NoNode {
			nameTok := tree.Token(nameNid)
			if nameTok.Type == parser.TokenIdentifier && !db.nameExists(nameTok.Literal) {
				m := fmt.Sprintf("Unknown section or label name '%s'", nameTok.Literal)
				d.Err1("AST_16", m, nameTok.Span)
				return false
			}
		}

	default:
		for _, kid := range tree.Children(nid) {
			result = db.walk(depth+1, tree, kid, d, nested) && result
		}
	}
	return result
}
