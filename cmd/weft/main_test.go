package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestVersion(t *testing.T) {
	assert.Regexp(t, `^weft version \d+\.\d+\.\d+\n$`, run(t, "version"))
}

func TestDemoThenSessions(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "weft.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("store:\n  kind: bolt\n  bolt:\n    path: "+filepath.Join(dir, "weft.db")+"\n"), 0o644))

	out := run(t, "--config", cfgPath, "demo", "calculator")
	assert.Contains(t, out, "sum(2, 3) = 5")
	assert.Contains(t, out, "sum(40, 2) = 42")
	assert.Contains(t, out, `sum("two", 3) = fault TypeMismatch`)

	out = run(t, "--config", cfgPath, "session", "ls")
	assert.Contains(t, out, "Sessions:")
}

func TestServe_UnknownProgram(t *testing.T) {
	rootCmd.SetArgs([]string{"serve", "--program", "nope"})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	err := rootCmd.Execute()
	assert.ErrorContains(t, err, "program not found: nope")
	assert.ErrorContains(t, err, "calculator")
}

func TestDescribeAndGraph(t *testing.T) {
	out := run(t, "describe", "--raw", "counter")
	assert.Contains(t, out, "# counter")
	assert.Contains(t, out, "| `get` | request_response | void | int |  |")

	out = run(t, "graph", "calculator")
	assert.True(t, strings.HasPrefix(out, "graph TD\n"), out)
	assert.Contains(t, out, `n2[/"serve sum"/]`)
}
