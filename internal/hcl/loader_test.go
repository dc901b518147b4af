package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgrid/internal/ctxlog"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func testCtx() context.Context {
	return ctxlog.WithLogger(context.Background(), ctxlog.Discard())
}

func TestLoader_SingleFile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := writeFiles(t, map[string]string{"main.hcl": `
pipeline {
  name = "weather"
}

schedule {
  frequency = "10s"
  samples   = 3
  start     = "2030-01-01T00:00:00Z"
}

source "timestamp" "ts" {
  epoch = true
}

source "static" "labels" {
  values = { region = "eu", replicas = 2, ratio = 0.5 }
  tags   = ["a", "b"]
}

aggregator "stats" "summary" {
  fields = ["ratio"]
}

sink "print" "stdout" {}
`})

	// --- Act ---
	def, err := NewLoader().Load(testCtx(), filepath.Join(dir, "main.hcl"))

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "weather", def.Name)
	require.NotNil(t, def.Schedule)
	assert.Equal(t, 10*time.Second, def.Schedule.Frequency)
	assert.Equal(t, 3, def.Schedule.Samples)
	require.NotNil(t, def.Schedule.Start)
	assert.Equal(t, 2030, def.Schedule.Start.Year())

	require.Len(t, def.Sources, 2)
	assert.Equal(t, "timestamp", def.Sources[0].Type)
	assert.Equal(t, "ts", def.Sources[0].ID)
	assert.Equal(t, true, def.Sources[0].Config["epoch"])

	values := def.Sources[1].Config["values"].(map[string]any)
	assert.Equal(t, "eu", values["region"])
	assert.Equal(t, int64(2), values["replicas"])
	assert.Equal(t, 0.5, values["ratio"])
	assert.Equal(t, []any{"a", "b"}, def.Sources[1].Config["tags"])

	require.Len(t, def.Aggregators, 1)
	assert.Equal(t, "summary", def.Aggregators[0].ID)
	require.Len(t, def.Sinks, 1)
	assert.Empty(t, def.Sinks[0].Config)
}

func TestLoader_Directory_KeepsFileOrder(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := writeFiles(t, map[string]string{
		"a.hcl":        `source "static" "first" {}`,
		"b.hcl":        `source "static" "second" {}`,
		"nested/c.hcl": `sink "print" "out" {}`,
		"ignored.txt":  `not hcl at all`,
	})

	// --- Act ---
	def, err := NewLoader().Load(testCtx(), dir)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, def.Sources, 2)
	assert.Equal(t, "first", def.Sources[0].ID)
	assert.Equal(t, "second", def.Sources[1].ID)
	require.Len(t, def.Sinks, 1)
	assert.Nil(t, def.Schedule)
}

func TestLoader_EnvVariable(t *testing.T) {
	// --- Arrange ---
	t.Setenv("FLOWGRID_HCL_TEST_TOKEN", "s3cret")
	dir := writeFiles(t, map[string]string{"main.hcl": `
source "static" "creds" {
  token = env.FLOWGRID_HCL_TEST_TOKEN
}
`})

	// --- Act ---
	def, err := NewLoader().Load(testCtx(), dir)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "s3cret", def.Sources[0].Config["token"])
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "syntax error",
			files:   map[string]string{"main.hcl": `source "static" {`},
			wantErr: "failed to parse HCL file",
		},
		{
			name:    "missing id label",
			files:   map[string]string{"main.hcl": `source "static" {}`},
			wantErr: "failed to decode HCL file",
		},
		{
			name: "duplicate schedule",
			files: map[string]string{
				"a.hcl": `schedule { frequency = "1s" }`,
				"b.hcl": `schedule { frequency = "2s" }`,
			},
			wantErr: "duplicate schedule block",
		},
		{
			name:    "bad frequency",
			files:   map[string]string{"main.hcl": `schedule { frequency = "often" }`},
			wantErr: "invalid frequency",
		},
		{
			name:    "no hcl files",
			files:   map[string]string{"readme.md": "# nothing"},
			wantErr: "no .hcl files found",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dir := writeFiles(t, tc.files)

			_, err := NewLoader().Load(testCtx(), dir)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
