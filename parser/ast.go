package parser

import (
	"fmt"
	"io"

	"github.com/binlay/binlay/diag"
)

// NodeID identifies a node in the AST arena. All components outside
// the parser hold NodeIDs only; the arena owns the node storage.
type NodeID int

// NoNode is the invalid node identifier.
const NoNode NodeID = -1

// node is a single arena entry. Every node except the synthetic root
// is anchored to exactly one token.
type node struct {
	tokIdx int // index into the token vector, -1 for the root
	kids   []NodeID
}

// Tree is the abstract syntax tree: an arena of nodes plus the token
// vector they index into. Nodes are never deleted or re-parented
// after construction.
type Tree struct {
	nodes  []node
	tokens []Token
	root   NodeID
}

// NewTree creates a tree over the given token vector with an empty
// synthetic root.
func NewTree(tokens []Token) *Tree {
	t := &Tree{tokens: tokens}
	t.root = t.newNode(-1)
	return t
}

func (t *Tree) newNode(tokIdx int) NodeID {
	t.nodes = append(t.nodes, node{tokIdx: tokIdx})
	return NodeID(len(t.nodes) - 1)
}

func (t *Tree) append(parent, child NodeID) {
	t.nodes[parent].kids = append(t.nodes[parent].kids, child)
}

// Root returns the synthetic root node. Its children are the
// top-level declarations in source order.
func (t *Tree) Root() NodeID { return t.root }

// Children returns the child node identifiers of nid in order.
func (t *Tree) Children(nid NodeID) []NodeID { return t.nodes[nid].kids }

// Child returns the n-th child of nid, or NoNode.
func (t *Tree) Child(nid NodeID, n int) NodeID {
	kids := t.nodes[nid].kids
	if n < 0 || n >= len(kids) {
		return NoNode
	}
	return kids[n]
}

// NumChildren returns the number of children of nid.
func (t *Tree) NumChildren(nid NodeID) int { return len(t.nodes[nid].kids) }

// Token returns the token anchoring nid. The root has no token.
func (t *Tree) Token(nid NodeID) Token {
	idx := t.nodes[nid].tokIdx
	if idx < 0 {
		return Token{Type: TokenEOF}
	}
	return t.tokens[idx]
}

// TokenIndex returns the index of the token anchoring nid, or -1 for
// the root.
func (t *Tree) TokenIndex(nid NodeID) int { return t.nodes[nid].tokIdx }

// Span returns the source span of the token anchoring nid.
func (t *Tree) Span(nid NodeID) diag.Span { return t.Token(nid).Span }

// ChildLiteral returns the source text of the n-th child of nid.
func (t *Tree) ChildLiteral(nid NodeID, n int) string {
	c := t.Child(nid, n)
	if c == NoNode {
		return ""
	}
	return t.Token(c).Literal
}

// Tokens returns the underlying token vector.
func (t *Tree) Tokens() []Token { return t.tokens }

// NumNodes returns the total node count including the root.
func (t *Tree) NumNodes() int { return len(t.nodes) }

// DumpDot writes the tree in Graphviz dot format for debugging.
func (t *Tree) DumpDot(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph {"); err != nil {
		return err
	}
	fmt.Fprintln(w, `node [style=filled,fillcolor="#F2F2F2",color="#808080"]`)
	fmt.Fprintln(w, `edge [color="#808080"]`)
	fmt.Fprintf(w, "n%d [label=\"root\"]\n", t.root)
	for nid := range t.nodes {
		if NodeID(nid) != t.root {
			label := t.Token(NodeID(nid)).Literal
			if tok := t.Token(NodeID(nid)); tok.Type == TokenQuotedString && len(label) > 10 {
				label = "<string>"
			}
			fmt.Fprintf(w, "n%d [label=%q]\n", nid, label)
		}
		for _, kid := range t.nodes[nid].kids {
			fmt.Fprintf(w, "n%d -> n%d\n", nid, kid)
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}
