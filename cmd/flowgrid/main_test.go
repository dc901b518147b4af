package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgrid/internal/cli"
	"github.com/vk/flowgrid/internal/isolation"
	"github.com/vk/flowgrid/internal/testutil"
)

func TestMain(m *testing.M) {
	if isolation.IsWorkerProcess() {
		os.Exit(serveWorker())
	}
	os.Exit(m.Run())
}

func TestRun_StartupError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A syntax error makes app.NewApp fail while loading the definition.
	invalidHCL := `
		source "static" "A" {
			data = {
		// Missing closing brace here
	`
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "main.hcl")
	err := os.WriteFile(filePath, []byte(invalidHCL), 0600)
	require.NoError(t, err, "failed to set up test file")

	// --- Act ---
	runErr := run(&bytes.Buffer{}, []string{filePath})

	// --- Assert ---
	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), "application startup failed")
	assert.Contains(t, runErr.Error(), "failed to parse")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(out, []string{"-h"})

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Act ---
	err := run(&bytes.Buffer{}, []string{"--this-is-not-a-valid-flag"})

	// --- Assert ---
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_ProcessIsolatedPipeline(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	output := filepath.Join(dir, "data.json")
	definition := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(definition, []byte(`
name: e2e
sources:
  - type: static
    id: first
    config:
      data: {value: 1}
  - type: static
    id: second
    config:
      data: {value: 2}
aggregators:
  - type: filter
    id: only-first
    config:
      include: [first]
sinks:
  - type: print
    id: file
    config:
      path: `+output+`
`), 0o600))
	logs := &testutil.SafeBuffer{}

	// --- Act ---
	err := run(logs, []string{"-journal-dir", filepath.Join(dir, "journals"), "-log-format", "json", "-log-level", "debug", definition})

	// --- Assert ---
	require.NoError(t, err, logs.String())
	raw, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.JSONEq(t, `{"first": {"value": 1}}`, string(raw))

	journals, err := filepath.Glob(filepath.Join(dir, "journals", "journal-*.json"))
	require.NoError(t, err)
	assert.Len(t, journals, 1)
	assert.Contains(t, logs.String(), `"msg":"✅ Worker finished."`)
}
