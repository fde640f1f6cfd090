// Package parser turns binlay source text into an arena-allocated
// abstract syntax tree. Statements are parsed by recursive descent;
// expressions by a Pratt parser with explicit binding powers.
package parser

import (
	"fmt"

	"github.com/binlay/binlay/diag"
)

// Parser parses the token stream into a Tree, reporting problems to
// the diagnostics sink. After an error inside a section body the
// parser skips to the next ';' (or the section's closing brace) and
// resumes, so users get more than one error per run.
type Parser struct {
	tokens []Token
	pos    int
	tree   *Tree
	diags  *diag.Diags
}

// Parse lexes and parses source. It always returns a best-effort
// tree; ok is false if any error diagnostic was reported.
func Parse(source string, d *diag.Diags) (tree *Tree, ok bool) {
	tokens := NewLexer(source).TokenizeAll()
	p := &Parser{tokens: tokens, tree: NewTree(tokens), diags: d}
	before := d.ErrorCount()
	p.parseProgram()
	return p.tree, d.ErrorCount() == before
}

// peek returns the current token, or nil at end of input. The EOF
// sentinel is treated as end of input.
func (p *Parser) peek() *Token {
	if p.pos >= len(p.tokens) || p.tokens[p.pos].Type == TokenEOF {
		return nil
	}
	return &p.tokens[p.pos]
}

// addLeaf adds the current token as a child of parent and advances.
func (p *Parser) addLeaf(parent NodeID) NodeID {
	nid := p.tree.newNode(p.pos)
	p.tree.append(parent, nid)
	p.pos++
	return nid
}

func (p *Parser) errExpectedAfter(code, msg string) {
	tok := p.peek()
	if tok == nil {
		p.errNoInput()
		return
	}
	m := fmt.Sprintf("%s, but found '%s'", msg, tok.Literal)
	prev := tok.Span
	if p.pos > 0 {
		prev = p.tokens[p.pos-1].Span
	}
	p.diags.Err2(code, m, tok.Span, prev)
}

func (p *Parser) errNoInput() {
	p.diags.Err0("AST_13", "Unexpected end of input")
}

// expectLeaf consumes a token of the expected type as a child of
// parent, or reports the given diagnostic.
func (p *Parser) expectLeaf(parent NodeID, expected TokenType, code, context string) bool {
	tok := p.peek()
	if tok == nil {
		p.errNoInput()
		return false
	}
	if tok.Type != expected {
		p.errExpectedAfter(code, context)
		return false
	}
	p.addLeaf(parent)
	return true
}

// expectNoAdd consumes a token of the expected type without recording
// it in the tree. Used for grouping punctuation the later stages
// never need.
func (p *Parser) expectNoAdd(expected TokenType) bool {
	tok := p.peek()
	if tok == nil {
		p.errNoInput()
		return false
	}
	if tok.Type != expected {
		p.errExpectedAfter("AST_22", fmt.Sprintf("Expected '%s'", expected))
		return false
	}
	p.pos++
	return true
}

func (p *Parser) expectSemi(parent NodeID) bool {
	tok := p.peek()
	if tok == nil {
		p.errNoInput()
		return false
	}
	if tok.Type != TokenSemicolon {
		p.errExpectedAfter("AST_17", "Expected ';'")
		return false
	}
	p.addLeaf(parent)
	return true
}

// advancePastSemicolon skips forward past the next ';' at the current
// brace depth, or stops before a closing '}' so the section parser
// can finish normally. Used to recover from statement errors.
func (p *Parser) advancePastSemicolon() {
	depth := 0
	for {
		tok := p.peek()
		if tok == nil {
			return
		}
		switch tok.Type {
		case TokenSemicolon:
			if depth == 0 {
				p.pos++
				return
			}
		case TokenLBrace:
			depth++
		case TokenRBrace:
			if depth == 0 {
				return
			}
			depth--
		}
		p.pos++
	}
}

func (p *Parser) parseProgram() {
	root := p.tree.Root()
	for {
		tok := p.peek()
		if tok == nil {
			return
		}
		switch tok.Type {
		case TokenSection:
			p.parseSection(root)
		case TokenOutput:
			p.parseOutput(root)
		default:
			// Unrecognized top level token. Report the error, but keep
			// going to give the user errors in batches.
			msg := fmt.Sprintf("Unrecognized token '%s' at top level scope", tok.Literal)
			p.diags.Err1("AST_18", msg, tok.Span)
			p.pos++
		}
	}
}

// parseSection parses 'section' IDENT '{' stmt* '}'.
func (p *Parser) parseSection(parent NodeID) bool {
	secNid := p.addLeaf(parent)

	if !p.expectLeaf(secNid, TokenIdentifier, "AST_1", "Expected an identifier after section") {
		return false
	}

	// Remember the opening brace to anchor the missing-brace error.
	braceTok := p.pos
	if !p.expectLeaf(secNid, TokenLBrace, "AST_2", "Expected { after identifier") {
		return false
	}
	return p.parseSectionContents(secNid, braceTok)
}

func (p *Parser) parseSectionContents(parent NodeID, braceTok int) bool {
	result := true
	for {
		tok := p.peek()
		if tok == nil {
			// Ran out of tokens before the close brace.
			m := "Missing '}'.  The following open brace is unmatched."
			p.diags.Err1("AST_14", m, p.tokens[braceTok].Span)
			return false
		}

		if tok.Type == TokenRBrace {
			p.addLeaf(parent)
			return result
		}

		parseOK := false
		switch tok.Type {
		case TokenWr:
			parseOK = p.parseWr(parent)
		case TokenWrs:
			parseOK = p.parseWrs(parent)
		case TokenWr8, TokenWr16, TokenWr24, TokenWr32,
			TokenWr40, TokenWr48, TokenWr56, TokenWr64:
			parseOK = p.parseWrX(parent)
		case TokenAssert:
			parseOK = p.parseAssert(parent)
		case TokenLabel:
			parseOK = p.parseLabel(parent)
		case TokenPrint:
			parseOK = p.parsePrint(parent)
		case TokenSemicolon:
			// Empty statement.
			p.addLeaf(parent)
			parseOK = true
		default:
			m := fmt.Sprintf("Invalid expression '%s'", tok.Literal)
			p.diags.Err1("AST_3", m, tok.Span)
		}

		if !parseOK {
			// Consume the offending token (unless it is the section's
			// closing brace) and skip to the next ';' to report as many
			// statement errors as possible.
			if tok := p.peek(); tok != nil && tok.Type != TokenRBrace {
				p.pos++
			}
			p.advancePastSemicolon()
			result = false
		}
	}
}

// parseWr parses 'wr' IDENT ';'.
func (p *Parser) parseWr(parent NodeID) bool {
	wrNid := p.addLeaf(parent)
	if !p.expectLeaf(wrNid, TokenIdentifier, "AST_15", "Expected a section name after 'wr'") {
		return false
	}
	return p.expectSemi(wrNid)
}

// parseWrs parses 'wrs' STRING ';'.
func (p *Parser) parseWrs(parent NodeID) bool {
	wrsNid := p.addLeaf(parent)
	if !p.expectLeaf(wrsNid, TokenQuotedString, "AST_4", "Expected a quoted string after 'wrs'") {
		return false
	}
	return p.expectSemi(wrsNid)
}

// parseWrX parses 'wrN' expr (',' expr)? ';'. The optional second
// expression is a repeat count.
func (p *Parser) parseWrX(parent NodeID) bool {
	wrNid := p.addLeaf(parent)

	value := p.parseExpr(0)
	if value == NoNode {
		return false
	}
	p.tree.append(wrNid, value)

	if tok := p.peek(); tok != nil && tok.Type == TokenComma {
		p.pos++
		repeat := p.parseExpr(0)
		if repeat == NoNode {
			return false
		}
		p.tree.append(wrNid, repeat)
	}
	return p.expectSemi(wrNid)
}

// parseAssert parses 'assert' expr ';'.
func (p *Parser) parseAssert(parent NodeID) bool {
	assertNid := p.addLeaf(parent)
	expr := p.parseExpr(0)
	if expr == NoNode {
		return false
	}
	p.tree.append(assertNid, expr)
	return p.expectSemi(assertNid)
}

// parseLabel parses 'label' IDENT ';'.
func (p *Parser) parseLabel(parent NodeID) bool {
	labelNid := p.addLeaf(parent)
	if !p.expectLeaf(labelNid, TokenIdentifier, "AST_12", "Expected an identifier after 'label'") {
		return false
	}
	return p.expectSemi(labelNid)
}

// parsePrint parses 'print' expr ';'. Unlike wrs, print accepts any
// expression; the value goes to the console, not the output image.
func (p *Parser) parsePrint(parent NodeID) bool {
	printNid := p.addLeaf(parent)
	var expr NodeID
	if tok := p.peek(); tok != nil && tok.Type == TokenQuotedString {
		expr = p.tree.newNode(p.pos)
		p.pos++
	} else {
		expr = p.parseExpr(0)
	}
	if expr == NoNode {
		return false
	}
	p.tree.append(printNid, expr)
	return p.expectSemi(printNid)
}

// parseOutput parses 'output' IDENT (INT)? ';'.
func (p *Parser) parseOutput(parent NodeID) bool {
	outputNid := p.addLeaf(parent)

	if !p.expectLeaf(outputNid, TokenIdentifier, "AST_7", "Expected a section name after output") {
		return false
	}

	tok := p.peek()
	if tok != nil {
		switch tok.Type {
		case TokenInteger, TokenU64, TokenI64:
			p.addLeaf(outputNid)
		case TokenQuotedString:
			// The old form carried the output file name here. The
			// path now comes from the command line.
			m := "Output file names in the output statement are no longer supported; use the -o flag"
			p.diags.Err1("AST_21", m, tok.Span)
			p.pos++
			p.expectSemi(outputNid)
			return false
		}
	}
	return p.expectSemi(outputNid)
}
