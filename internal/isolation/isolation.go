// Package isolation runs source and sink entities in workers that cannot
// corrupt the coordinating process. A worker reports its data through a
// one-shot result channel, and its success or failure through an exit
// status.
//
// Two isolators are provided. ProcessIsolator re-executes the current
// binary as a worker process. The task travels as msgpack on stdin and the
// result comes back on a dedicated pipe.
// GoroutineIsolator honors the same contract inside the current process.
package isolation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
)

// WorkerEnv marks a process as a worker when set to "1".
const WorkerEnv = "FLOWGRID_WORKER"

// Exit statuses reported by workers.
const (
	StatusOK = 0
	// StatusError means the entity returned an error or could not be built.
	StatusError = 1
	// StatusPanic means the entity panicked.
	StatusPanic = 2
	// StatusBadResult means the worker exited cleanly but its result could
	// not be decoded, or a source reported no result at all.
	StatusBadResult = 3
)

// Task describes one unit of isolated work.
type Task struct {
	Kind     entity.Kind    `msgpack:"kind"`
	Index    int            `msgpack:"index"`
	Type     string         `msgpack:"type"`
	ID       string         `msgpack:"id"`
	Config   map[string]any `msgpack:"config"`
	Snapshot []byte         `msgpack:"snapshot,omitempty"`

	// Entity is the already built entity. It only travels in-process; a
	// worker process rebuilds it from Type and Config.
	Entity entity.Entity `msgpack:"-"`
}

// NewTask describes the execution of e. snapshot is the encoded DataMap a
// sink consumes and is ignored for sources.
func NewTask(kind entity.Kind, e entity.Entity, snapshot []byte) Task {
	base := e.Identity()
	return Task{
		Kind:     kind,
		Index:    base.Index,
		Type:     base.Type,
		ID:       base.ID,
		Config:   base.Config,
		Snapshot: snapshot,
		Entity:   e,
	}
}

// Base returns the entity attributes carried by the task.
func (t Task) Base() entity.Base {
	return entity.Base{Index: t.Index, Type: t.Type, ID: t.ID, Config: entity.Config(t.Config)}
}

// Result is what a worker reports back on success.
type Result struct {
	Data     *datamap.Map
	Duration time.Duration
}

// wireResult is the encoded form of Result on a worker's stdout.
type wireResult struct {
	Data     []byte `msgpack:"data"`
	Duration int64  `msgpack:"duration"`
}

// Worker is a handle on one running task.
type Worker interface {
	// PID is the process identifier executing the task.
	PID() int
	// Result yields at most one value and is then closed. It is closed
	// without a value when the worker died before reporting.
	Result() <-chan Result
	// Wait blocks until the worker terminated and returns its exit status.
	// It is safe to call more than once.
	Wait() int
}

// Isolator starts workers.
type Isolator interface {
	Start(ctx context.Context, task Task) (Worker, error)
}

// IsWorkerProcess reports whether the current process was started as a
// worker by ProcessIsolator.
func IsWorkerProcess() bool {
	return os.Getenv(WorkerEnv) == "1"
}

// execute invokes the role of e that matches the task kind.
func execute(ctx context.Context, e entity.Entity, task Task) (Result, error) {
	start := time.Now()
	switch task.Kind {
	case entity.SourceKind:
		src, ok := e.(entity.Source)
		if !ok {
			return Result{}, fmt.Errorf("%T is not a source", e)
		}
		data, err := src.Produce(ctx)
		if err != nil {
			return Result{}, err
		}
		if data == nil {
			data = datamap.New()
		}
		return Result{Data: data, Duration: time.Since(start)}, nil

	case entity.SinkKind:
		sink, ok := e.(entity.Sink)
		if !ok {
			return Result{}, fmt.Errorf("%T is not a sink", e)
		}
		snapshot, err := datamap.Decode(task.Snapshot)
		if err != nil {
			return Result{}, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		if err := sink.Consume(ctx, snapshot); err != nil {
			return Result{}, err
		}
		return Result{Duration: time.Since(start)}, nil

	default:
		return Result{}, errors.New("only sources and sinks run in isolated workers")
	}
}

// PanicError wraps a value recovered from a panicking entity.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// guardedExecute runs execute and converts a panic into a PanicError.
func guardedExecute(ctx context.Context, e entity.Entity, task Task) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return execute(ctx, e, task)
}

// statusOf maps an execution error to an exit status.
func statusOf(err error) int {
	if err == nil {
		return StatusOK
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return StatusPanic
	}
	return StatusError
}
