package parser

import (
	"fmt"
)

// bindingPower returns the (left,right) binding power for an infix
// operator. Higher numbers bind more tightly; all operators are
// left-associative.
func bindingPower(tt TokenType) (lbp, rbp uint8) {
	switch tt {
	case TokenEqEq, TokenNEq, TokenGEq, TokenLEq:
		return 1, 2
	case TokenLShift, TokenRShift:
		return 3, 4
	case TokenAmpersand, TokenPipe, TokenAndAnd, TokenOrOr:
		return 5, 6
	case TokenPlus, TokenMinus:
		return 7, 8
	case TokenStar, TokenSlash, TokenPercent:
		return 9, 10
	}
	return 0, 0
}

// parseExpr parses an expression with correct precedence up to the
// next semicolon, comma or closing paren. Returns the node at the top
// of the local subtree, or NoNode after reporting a diagnostic.
//
// Grouping parens are consumed but not materialized as nodes. The
// parens around sizeof(NAME) and abs/img/sec(NAME) are stripped too,
// so the identifier is the node's first child.
func (p *Parser) parseExpr(minBP uint8) NodeID {
	tok := p.peek()
	if tok == nil {
		p.errNoInput()
		return NoNode
	}

	var lhs NodeID
	switch tok.Type {
	case TokenLParen:
		p.pos++
		lhs = p.parseExpr(0)
		if lhs == NoNode {
			return NoNode
		}
		closer := p.peek()
		if closer == nil {
			p.errNoInput()
			return NoNode
		}
		if closer.Type != TokenRParen {
			msg := fmt.Sprintf("Expected a closing ')' but found '%s'", closer.Literal)
			p.diags.Err1("AST_20", msg, closer.Span)
			return NoNode
		}
		p.pos++

	case TokenInteger, TokenU64, TokenI64, TokenQuotedString:
		lhs = p.tree.newNode(p.pos)
		p.pos++

	case TokenSizeof:
		lhs = p.tree.newNode(p.pos)
		p.pos++
		if !p.expectNoAdd(TokenLParen) {
			return NoNode
		}
		if !p.expectLeaf(lhs, TokenIdentifier, "AST_22", "Expected a section name in sizeof()") {
			return NoNode
		}
		if !p.expectNoAdd(TokenRParen) {
			return NoNode
		}

	case TokenAbs, TokenImg, TokenSec:
		// abs()/img()/sec() take the current address; with an
		// identifier they take the address of a section or label.
		lhs = p.tree.newNode(p.pos)
		p.pos++
		if !p.expectNoAdd(TokenLParen) {
			return NoNode
		}
		if inner := p.peek(); inner != nil && inner.Type == TokenIdentifier {
			kid := p.tree.newNode(p.pos)
			p.tree.append(lhs, kid)
			p.pos++
		}
		if !p.expectNoAdd(TokenRParen) {
			return NoNode
		}

	case TokenToU64, TokenToI64:
		lhs = p.tree.newNode(p.pos)
		p.pos++
		if !p.expectNoAdd(TokenLParen) {
			return NoNode
		}
		inner := p.parseExpr(0)
		if inner == NoNode {
			return NoNode
		}
		p.tree.append(lhs, inner)
		if !p.expectNoAdd(TokenRParen) {
			return NoNode
		}

	default:
		msg := fmt.Sprintf("Invalid expression operand '%s'", tok.Literal)
		p.diags.Err1("AST_19", msg, tok.Span)
		return NoNode
	}

	for {
		op := p.peek()
		if op == nil {
			break
		}
		if op.Type == TokenSemicolon || op.Type == TokenRParen ||
			op.Type == TokenComma || op.Type == TokenRBrace {
			break
		}
		if !op.Type.IsBinaryOp() {
			msg := fmt.Sprintf("Invalid operation '%s'", op.Literal)
			p.diags.Err1("AST_18", msg, op.Span)
			return NoNode
		}

		lbp, rbp := bindingPower(op.Type)
		// A decrease in operator precedence ends the iteration.
		if lbp < minBP {
			break
		}

		opNid := p.tree.newNode(p.pos)
		p.pos++
		p.tree.append(opNid, lhs)
		lhs = opNid

		rhs := p.parseExpr(rbp)
		if rhs == NoNode {
			return NoNode
		}
		p.tree.append(opNid, rhs)
	}

	return lhs
}
