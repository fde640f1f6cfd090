// Package integration exercises the whole pipeline end to end against
// literal source programs, asserting exact output bytes and
// diagnostic codes.
package integration

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binlay/binlay/diag"
	"github.com/binlay/binlay/process"
)

func compile(t *testing.T, source string) ([]byte, error, *diag.Diags) {
	t.Helper()
	d := diag.New("test.lay", source)
	d.SetWriter(io.Discard)
	var out bytes.Buffer
	err := process.Run(source, d, &out, process.Options{})
	return out.Bytes(), err, d
}

func TestSimpleSection(t *testing.T) {
	out, err, _ := compile(t, `section S { wrs "Wow!"; } output S;`)
	require.NoError(t, err)
	assert.Equal(t, "Wow!", string(out))
}

func TestNestedSections(t *testing.T) {
	out, err, _ := compile(t,
		`section A { wrs "Wow!"; } section B { wr A; wrs "Bye"; } output B;`)
	require.NoError(t, err)
	assert.Equal(t, "Wow!Bye", string(out))
	assert.Len(t, out, 7)
}

func TestEscapedNewline(t *testing.T) {
	out, err, _ := compile(t, `section S { wrs "Wow!\nBye"; } output S;`)
	require.NoError(t, err)
	assert.Equal(t, "Wow!\nBye", string(out))
	assert.Len(t, out, 8)
}

func TestSelfSizeofAssert(t *testing.T) {
	out, err, _ := compile(t,
		`section S { assert sizeof(S) == 4; wrs "Wow!"; } output S;`)
	require.NoError(t, err)
	assert.Equal(t, "Wow!", string(out))
}

func TestSectionCycle(t *testing.T) {
	_, err, d := compile(t, `section A { wr B; } section B { wr A; } output A;`)
	require.Error(t, err)
	assert.True(t, d.HasCode("AST_6"))
}

func TestMultipleOutputs(t *testing.T) {
	_, err, d := compile(t, `section S { wrs "x"; } output S; output S;`)
	require.Error(t, err)
	assert.True(t, d.HasCode("AST_10"))
}

func TestRepeatedWrite(t *testing.T) {
	out, err, _ := compile(t, `section S { wr8 0xFF, 3; } output S;`)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, out)
}

func TestEmptySection(t *testing.T) {
	out, err, _ := compile(t, `section S { } output S;`)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMissingOutput(t *testing.T) {
	_, err, d := compile(t, `section S { wrs "x"; }`)
	require.Error(t, err)
	assert.True(t, d.HasCode("AST_8"))
}

func TestDeeplyNestedSections(t *testing.T) {
	out, err, _ := compile(t, `
		section d { wrs "boo!\n"; }
		section c { wrs "bar!\n"; wr d; }
		section b { wrs "Bye\n"; }
		section a { wrs "foo!\n"; wr b; wr c; }
		output a;`)
	require.NoError(t, err)
	assert.Equal(t, "foo!\nBye\nbar!\nboo!\n", string(out))
}

func TestHeaderWithSizes(t *testing.T) {
	// A header records the payload's size and a label address, the
	// way a real image layout would.
	src := `
	section header {
		wr32 0x1A2B3C4D;      // magic
		wr16 sizeof(payload); // payload length
		wr16 img(entry);      // entry offset in the image
	}
	section payload {
		wrs "CODE";
		label entry;
		wr8 0x90, 4;
	}
	section image {
		wr header;
		wr payload;
		assert sizeof(image) == 8 + 4 + 4;
	}
	output image;`
	out, err, _ := compile(t, src)
	require.NoError(t, err)

	expected := []byte{
		0x4D, 0x3C, 0x2B, 0x1A, // magic, little endian
		0x08, 0x00, // sizeof(payload) = 4 + 4
		0x0C, 0x00, // entry = 8 (header) + 4 ("CODE")
		'C', 'O', 'D', 'E',
		0x90, 0x90, 0x90, 0x90,
	}
	assert.Equal(t, expected, out)
}

func TestStartAddressFlowsIntoAbs(t *testing.T) {
	src := `
	section S {
		wr32 abs(target);
		wrs "pad";
		label target;
	}
	output S 0x8000;`
	out, err, _ := compile(t, src)
	require.NoError(t, err)
	// target sits at image offset 7; abs adds the start address.
	assert.Equal(t, []byte{0x07, 0x80, 0x00, 0x00, 'p', 'a', 'd'}, out)
}

func TestAssertFailureReportsOperands(t *testing.T) {
	_, err, d := compile(t,
		`section S { wrs "ab"; assert sizeof(S) == 3; } output S;`)
	require.Error(t, err)
	assert.True(t, d.HasCode("EXEC_2"))
	assert.True(t, d.HasCode("EXEC_8"))
}

func TestIdempotentCompilation(t *testing.T) {
	src := `section A { wrs "Wow!"; } section B { wr A; wr16 sizeof(A); } output B;`
	first, err1, _ := compile(t, src)
	second, err2, _ := compile(t, src)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first, second)
}

func TestCommentsAreSkipped(t *testing.T) {
	src := `
	// leading comment
	section S { /* inline */ wrs "ok"; } // trailing
	/* block
	   spanning lines */
	output S;`
	out, err, _ := compile(t, src)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(out))
}
