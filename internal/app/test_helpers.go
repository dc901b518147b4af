package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/vk/flowgrid/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. The journal
// goes to a fresh temporary directory unless cfg names one.
func SetupAppTest(t *testing.T, cfg *Config, modules ...registry.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()

	logBuffer := &testutil.SafeBuffer{}
	cfg.LogLevel = "debug"
	if cfg.JournalDir == "" {
		cfg.JournalDir = t.TempDir()
	}
	validated, err := NewConfig(*cfg)
	require.NoError(t, err)

	testApp, err := NewApp(logBuffer, validated, modules...)
	t.Cleanup(func() {
		if os.Getenv("FLOWGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})
	require.NoError(t, err)

	return testApp, logBuffer
}

// WriteDefinition writes content to name inside a temporary directory and
// returns the file path.
func WriteDefinition(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
