package isolation

import (
	"context"
	"errors"
	"os"

	"github.com/vk/flowgrid/internal/ctxlog"
)

// GoroutineIsolator runs each task on its own goroutine. It gives no memory
// isolation, but keeps the worker contract: an entity error yields status 1
// and a panic yields status 2. Sinks decode their own copy of the snapshot.
type GoroutineIsolator struct{}

// NewGoroutineIsolator returns an in-process isolator.
func NewGoroutineIsolator() *GoroutineIsolator {
	return &GoroutineIsolator{}
}

type goroutineWorker struct {
	result chan Result
	done   chan struct{}
	status int
}

// Start launches task on a new goroutine.
func (g *GoroutineIsolator) Start(ctx context.Context, task Task) (Worker, error) {
	if task.Entity == nil {
		return nil, errors.New("goroutine isolator requires a built entity")
	}
	w := &goroutineWorker{
		result: make(chan Result, 1),
		done:   make(chan struct{}),
	}
	logger := ctxlog.FromContext(ctx)

	go func() {
		defer close(w.done)
		defer close(w.result)

		res, err := guardedExecute(ctx, task.Entity, task)
		w.status = statusOf(err)
		if err != nil {
			logger.Error("❌ Worker failed.", "kind", task.Kind, "index", task.Index, "id", task.ID, "error", err)
			return
		}
		w.result <- res
	}()
	return w, nil
}

func (w *goroutineWorker) PID() int { return os.Getpid() }

func (w *goroutineWorker) Result() <-chan Result { return w.result }

func (w *goroutineWorker) Wait() int {
	<-w.done
	return w.status
}

