package parser

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binlay/binlay/diag"
)

func parseSource(t *testing.T, source string) (*Tree, bool, *diag.Diags) {
	t.Helper()
	d := diag.New("test.lay", source)
	d.SetWriter(io.Discard)
	tree, ok := Parse(source, d)
	return tree, ok, d
}

func TestParse_SimpleSection(t *testing.T) {
	tree, ok, d := parseSource(t, `section S { wrs "Wow!"; } output S;`)
	require.True(t, ok)
	assert.False(t, d.HasErrors())

	top := tree.Children(tree.Root())
	require.Len(t, top, 2)

	sec := top[0]
	assert.Equal(t, TokenSection, tree.Token(sec).Type)
	// Children: name, '{', wrs, '}'
	assert.Equal(t, "S", tree.ChildLiteral(sec, 0))
	assert.Equal(t, TokenLBrace, tree.Token(tree.Child(sec, 1)).Type)
	wrs := tree.Child(sec, 2)
	assert.Equal(t, TokenWrs, tree.Token(wrs).Type)
	assert.Equal(t, `"Wow!"`, tree.ChildLiteral(wrs, 0))

	out := top[1]
	assert.Equal(t, TokenOutput, tree.Token(out).Type)
	assert.Equal(t, "S", tree.ChildLiteral(out, 0))
}

func TestParse_OutputWithAddress(t *testing.T) {
	tree, ok, _ := parseSource(t, `section S { } output S 0x1000;`)
	require.True(t, ok)

	out := tree.Children(tree.Root())[1]
	require.GreaterOrEqual(t, tree.NumChildren(out), 2)
	addr := tree.Child(out, 1)
	assert.Equal(t, TokenInteger, tree.Token(addr).Type)
	assert.Equal(t, "0x1000", tree.Token(addr).Literal)
}

func TestParse_OutputFileNameRejected(t *testing.T) {
	_, ok, d := parseSource(t, `section S { } output S "image.bin";`)
	assert.False(t, ok)
	assert.True(t, d.HasCode("AST_21"))
}

func TestParse_EveryNodeAnchoredToOneToken(t *testing.T) {
	tree, ok, _ := parseSource(t,
		`section S { wr8 1 + 2 * 3, sizeof(S); assert img() == 0; } output S;`)
	require.True(t, ok)

	for nid := 0; nid < tree.NumNodes(); nid++ {
		if NodeID(nid) == tree.Root() {
			continue
		}
		idx := tree.TokenIndex(NodeID(nid))
		assert.GreaterOrEqual(t, idx, 0, "node %d has no token", nid)
		assert.Less(t, idx, len(tree.Tokens()), "node %d token out of range", nid)
	}
}

func TestParse_PrattPrecedence(t *testing.T) {
	// 1 + 2 * 3 must parse as 1 + (2 * 3).
	tree, ok, _ := parseSource(t, `section S { assert 1 + 2 * 3; } output S;`)
	require.True(t, ok)

	sec := tree.Children(tree.Root())[0]
	assertNid := tree.Child(sec, 2)
	require.Equal(t, TokenAssert, tree.Token(assertNid).Type)

	plus := tree.Child(assertNid, 0)
	require.Equal(t, TokenPlus, tree.Token(plus).Type)
	assert.Equal(t, "1", tree.ChildLiteral(plus, 0))

	times := tree.Child(plus, 1)
	require.Equal(t, TokenStar, tree.Token(times).Type)
	assert.Equal(t, "2", tree.ChildLiteral(times, 0))
	assert.Equal(t, "3", tree.ChildLiteral(times, 1))
}

func TestParse_PrattLeftAssociativity(t *testing.T) {
	// 8 - 4 - 2 must parse as (8 - 4) - 2.
	tree, ok, _ := parseSource(t, `section S { assert 8 - 4 - 2; } output S;`)
	require.True(t, ok)

	sec := tree.Children(tree.Root())[0]
	assertNid := tree.Child(sec, 2)
	outer := tree.Child(assertNid, 0)
	require.Equal(t, TokenMinus, tree.Token(outer).Type)
	assert.Equal(t, "2", tree.ChildLiteral(outer, 1))

	inner := tree.Child(outer, 0)
	require.Equal(t, TokenMinus, tree.Token(inner).Type)
	assert.Equal(t, "8", tree.ChildLiteral(inner, 0))
	assert.Equal(t, "4", tree.ChildLiteral(inner, 1))
}

func TestParse_ParensGroupWithoutNodes(t *testing.T) {
	// (1 + 2) * 3: the parens reorder but leave no nodes behind.
	tree, ok, _ := parseSource(t, `section S { assert (1 + 2) * 3; } output S;`)
	require.True(t, ok)

	sec := tree.Children(tree.Root())[0]
	assertNid := tree.Child(sec, 2)
	times := tree.Child(assertNid, 0)
	require.Equal(t, TokenStar, tree.Token(times).Type)

	plus := tree.Child(times, 0)
	assert.Equal(t, TokenPlus, tree.Token(plus).Type)
	assert.Equal(t, "3", tree.ChildLiteral(times, 1))
}

func TestParse_SizeofStripsParens(t *testing.T) {
	tree, ok, _ := parseSource(t, `section S { assert sizeof(S); } output S;`)
	require.True(t, ok)

	sec := tree.Children(tree.Root())[0]
	assertNid := tree.Child(sec, 2)
	sizeofNid := tree.Child(assertNid, 0)
	require.Equal(t, TokenSizeof, tree.Token(sizeofNid).Type)
	// The identifier is the first child; the parens are gone.
	assert.Equal(t, "S", tree.ChildLiteral(sizeofNid, 0))
	assert.Equal(t, TokenIdentifier, tree.Token(tree.Child(sizeofNid, 0)).Type)
}

func TestParse_AddressForms(t *testing.T) {
	tree, ok, _ := parseSource(t,
		`section S { assert abs() == img(S) + sec(); } output S;`)
	require.True(t, ok)

	sec := tree.Children(tree.Root())[0]
	assertNid := tree.Child(sec, 2)
	eq := tree.Child(assertNid, 0)
	require.Equal(t, TokenEqEq, tree.Token(eq).Type)

	absNid := tree.Child(eq, 0)
	assert.Equal(t, TokenAbs, tree.Token(absNid).Type)
	assert.Equal(t, 0, tree.NumChildren(absNid))

	plus := tree.Child(eq, 1)
	imgNid := tree.Child(plus, 0)
	require.Equal(t, TokenImg, tree.Token(imgNid).Type)
	assert.Equal(t, "S", tree.ChildLiteral(imgNid, 0))
}

func TestParse_Casts(t *testing.T) {
	tree, ok, _ := parseSource(t, `section S { assert toU64(1 + 2) == 3; } output S;`)
	require.True(t, ok)

	sec := tree.Children(tree.Root())[0]
	assertNid := tree.Child(sec, 2)
	eq := tree.Child(assertNid, 0)
	cast := tree.Child(eq, 0)
	require.Equal(t, TokenToU64, tree.Token(cast).Type)
	plus := tree.Child(cast, 0)
	assert.Equal(t, TokenPlus, tree.Token(plus).Type)
}

func TestParse_WrXRepeatCount(t *testing.T) {
	tree, ok, _ := parseSource(t, `section S { wr8 0xFF, 3; } output S;`)
	require.True(t, ok)

	sec := tree.Children(tree.Root())[0]
	wrNid := tree.Child(sec, 2)
	require.Equal(t, TokenWr8, tree.Token(wrNid).Type)
	// Children: value, repeat, ';'
	assert.Equal(t, "0xFF", tree.ChildLiteral(wrNid, 0))
	assert.Equal(t, "3", tree.ChildLiteral(wrNid, 1))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"missing identifier after section", `section { }`, "AST_1"},
		{"missing brace after name", `section S wrs;`, "AST_2"},
		{"invalid statement", `section S { bogus; } output S;`, "AST_3"},
		{"wrs without string", `section S { wrs 42; } output S;`, "AST_4"},
		{"output without name", `output;`, "AST_7"},
		{"label without name", `section S { label; } output S;`, "AST_12"},
		{"unexpected eof", `section S { wrs `, "AST_13"},
		{"missing close brace", `section S { wrs "a";`, "AST_14"},
		{"wr without name", `section S { wr; } output S;`, "AST_15"},
		{"missing semicolon", `section S { wr8 1 } output S;`, "AST_17"},
		{"top level junk", `fnord`, "AST_18"},
		{"invalid operand", `section S { assert ; } output S;`, "AST_19"},
		{"missing close paren", `section S { assert (1 + 2; } output S;`, "AST_20"},
		{"sizeof missing paren", `section S { assert sizeof S; } output S;`, "AST_22"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, d := parseSource(t, tt.src)
			assert.False(t, ok)
			assert.True(t, d.HasCode(tt.code), "expected %s, got %+v", tt.code, d.All())
		})
	}
}

func TestParse_RecoveryReportsMultipleErrors(t *testing.T) {
	src := `section S {
		bogus1;
		wrs "ok";
		bogus2;
	} output S;`
	_, ok, d := parseSource(t, src)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, d.ErrorCount(), 2)
}

func TestParse_EmptyStatementAllowed(t *testing.T) {
	_, ok, d := parseSource(t, `section S { ; ; } output S;`)
	assert.True(t, ok)
	assert.False(t, d.HasErrors())
}

func TestParse_UnmatchedBraceReportedOnce(t *testing.T) {
	_, _, d := parseSource(t, `section S { wrs "a";`)
	count := 0
	for _, diagRec := range d.All() {
		if diagRec.Code == "AST_14" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestTree_DumpDot(t *testing.T) {
	tree, ok, _ := parseSource(t, `section S { wrs "Wow!"; } output S;`)
	require.True(t, ok)

	var buf bytes.Buffer
	require.NoError(t, tree.DumpDot(&buf))
	dot := buf.String()
	assert.True(t, strings.HasPrefix(dot, "digraph {"))
	assert.Contains(t, dot, "root")
	assert.Contains(t, dot, "section")
}
