package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/redpiler/internal/backend"
	"github.com/roach88/redpiler/internal/graphio"
)

func TestCompileCircuit(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{repeaterLine})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ Compiled repeater-line (direct backend)")
	assert.Contains(t, output, "nodes:         3")
	assert.Contains(t, output, "edges:         2 (0 side)")
	assert.Contains(t, output, "io nodes:      2 (lever, lamp)")
	assert.Contains(t, output, "loops:         0")
}

func TestCompileCircuitJSON(t *testing.T) {
	demo := filepath.Join("..", "graphio", "testdata", "demo.yaml")
	out, err := execute(t, "compile", demo, "--format", "json")
	require.NoError(t, err)

	report := decodeData[CompileReport](t, out)
	assert.Equal(t, "demo", report.Circuit)
	assert.Equal(t, "direct", report.Backend)
	assert.Equal(t, graphio.Stats{Nodes: 6, Edges: 4, SideEdges: 1, IONodes: 2, Ticks: 1}, report.Stats)
	assert.Equal(t, []string{"lever", "lamp"}, report.IONodes)

	c, err := graphio.LoadFile(demo)
	require.NoError(t, err)
	hash, err := c.Hash()
	require.NoError(t, err)
	assert.Equal(t, hash, report.Hash)
}

func TestCompileLoadError(t *testing.T) {
	tests := []struct {
		name string
		path string
		code string
	}{
		{"missing", filepath.Join("testdata", "nope.yaml"), graphio.ErrCodeReadFailed},
		{"duplicate", filepath.Join("testdata", "duplicate.yaml"), graphio.ErrCodeDuplicateID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "compile", tt.path, "--format", "json")
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestCompileWireLoop(t *testing.T) {
	loop := filepath.Join("testdata", "wire_loop.yaml")

	out, err := execute(t, "compile", loop, "--format", "json")
	require.NoError(t, err)
	report := decodeData[CompileReport](t, out)
	assert.Equal(t, 1, report.Loops)

	out, err = execute(t, "compile", loop, "--strict", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, graphio.ErrCodeInvalidGraph, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "E207")
}

func TestCompileReferenceRejectsLoop(t *testing.T) {
	if len(backend.Available()) < 2 {
		t.Skip("reference backend not compiled in")
	}
	_, err := execute(t, "compile", filepath.Join("testdata", "wire_loop.yaml"), "--backend", "reference")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeCompile)
}
