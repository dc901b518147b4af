package isolation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/vmihailenco/msgpack/v5"
)

// Serve is the main function of a worker process. It reads one task from
// stdin, builds and executes its entity, writes the result to out and
// returns the exit status the process should terminate with. In a worker
// process out is ResultPipe().
func Serve(ctx context.Context, reg *registry.Registry, stdin io.Reader, out io.Writer, logger *slog.Logger) int {
	ctx = ctxlog.WithLogger(ctx, logger)

	dec := msgpack.NewDecoder(stdin)
	dec.UseLooseInterfaceDecoding(true)
	var task Task
	if err := dec.Decode(&task); err != nil {
		logger.Error("❌ Worker could not decode its task.", "error", err)
		return StatusError
	}
	logger = logger.With("kind", task.Kind, "index", task.Index, "id", task.ID)

	e, err := reg.Build(task.Kind, task.Base())
	if err != nil {
		logger.Error("❌ Worker could not build its entity.", "error", err)
		return StatusError
	}

	res, err := guardedExecute(ctx, e, task)
	if err != nil {
		var panicErr *PanicError
		if errors.As(err, &panicErr) {
			logger.Error("🔥 Worker panicked.", "error", err, "stack", string(panicErr.Stack))
			return StatusPanic
		}
		logger.Error("❌ Worker failed.", "error", err)
		return StatusError
	}

	raw, err := encodeResult(res)
	if err != nil {
		logger.Error("❌ Worker could not encode its result.", "error", err)
		return StatusError
	}
	if _, err := out.Write(raw); err != nil {
		logger.Error("❌ Worker could not write its result.", "error", fmt.Errorf("result pipe: %w", err))
		return StatusError
	}
	logger.Debug("✅ Worker finished.", "duration", res.Duration)
	return StatusOK
}
