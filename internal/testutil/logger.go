package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/vk/flowgrid/internal/ctxlog"
)

// Context returns a context carrying a debug logger that writes to the
// returned buffer. With FLOWGRID_TEST_LOGS=true the captured output is
// dumped when the test finishes.
func Context(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()
	buf := &SafeBuffer{}
	logger := ctxlog.New("debug", "text", buf)
	if os.Getenv("FLOWGRID_TEST_LOGS") == "true" {
		t.Cleanup(func() {
			t.Logf("--- CAPTURED LOGS ---\n%s", buf.String())
		})
	}
	return ctxlog.WithLogger(context.Background(), logger), buf
}
