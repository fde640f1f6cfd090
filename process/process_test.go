package process_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binlay/binlay/diag"
	"github.com/binlay/binlay/process"
)

func run(t *testing.T, source string) ([]byte, error, *diag.Diags) {
	t.Helper()
	d := diag.New("test.lay", source)
	d.SetWriter(io.Discard)
	var out bytes.Buffer
	err := process.Run(source, d, &out, process.Options{})
	return out.Bytes(), err, d
}

func TestRun_Success(t *testing.T) {
	out, err, d := run(t, `section S { wrs "Wow!"; } output S;`)
	require.NoError(t, err)
	assert.False(t, d.HasErrors())
	assert.Equal(t, []byte("Wow!"), out)
}

func TestRun_StageExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		code     string
		exitCode int
	}{
		{"parse failure", `section { }`, "PROC_1", 1},
		{"semantic failure", `section S { } output S; output S;`, "PROC_1", 1},
		{"typed IR failure", `section S { wr8 "x"; } output S;`, "PROC_3", 3},
		{"execute failure", `section S { wr8 1 / 0; } output S;`, "PROC_4", 4},
		{"assert failure", `section S { assert 1 == 2; } output S;`, "PROC_4", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err, _ := run(t, tt.src)
			require.Error(t, err)
			var stageErr *process.StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, tt.code, stageErr.Code())
			assert.Equal(t, tt.exitCode, stageErr.ExitCode())
			assert.Contains(t, stageErr.Error(), tt.code)
		})
	}
}

func TestRun_PipelineHaltsAfterFailedStage(t *testing.T) {
	// A parse error stops the pipeline; no output bytes are written.
	out, err, _ := run(t, `section S { wrs } output S;`)
	require.Error(t, err)
	assert.Empty(t, out)
}

func TestRun_DumpAST(t *testing.T) {
	source := `section S { wrs "x"; } output S;`
	d := diag.New("test.lay", source)
	d.SetWriter(io.Discard)

	var out, dot bytes.Buffer
	err := process.Run(source, d, &out, process.Options{DumpAST: &dot})
	require.NoError(t, err)
	assert.Contains(t, dot.String(), "digraph {")
}

func TestRun_VerboseTrace(t *testing.T) {
	source := `section S { wrs "x"; } output S;`
	d := diag.New("test.lay", source)
	d.SetWriter(io.Discard)

	var out, trace bytes.Buffer
	err := process.Run(source, d, &out, process.Options{Verbose: true, Trace: &trace})
	require.NoError(t, err)
	assert.Contains(t, trace.String(), "SectionStart")
}

func TestRun_ConsoleOutput(t *testing.T) {
	source := `section S { print "building"; wrs "x"; } output S;`
	d := diag.New("test.lay", source)
	d.SetWriter(io.Discard)

	var out, console bytes.Buffer
	err := process.Run(source, d, &out, process.Options{Console: &console})
	require.NoError(t, err)
	assert.Equal(t, "building\n", console.String())
	assert.Equal(t, []byte("x"), out.Bytes())
}
