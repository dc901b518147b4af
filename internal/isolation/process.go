package isolation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vmihailenco/msgpack/v5"
)

// Environment variables that carry the parent's logging setup to workers.
const (
	LogLevelEnv  = "FLOWGRID_LOG_LEVEL"
	LogFormatEnv = "FLOWGRID_LOG_FORMAT"
)

// ResultFD is the file descriptor on which a worker process writes its
// result. Stdout and stderr stay free for the entity itself.
const ResultFD = 3

// ResultPipe returns the result channel of the current worker process.
func ResultPipe() *os.File {
	return os.NewFile(ResultFD, "flowgrid-result")
}

// ProcessIsolator runs every task in a fresh copy of the current binary.
// The binary must call Serve early in main when IsWorkerProcess is true.
type ProcessIsolator struct {
	// Executable defaults to os.Executable().
	Executable string
	// Env is appended to the inherited environment of every worker.
	Env []string
	// Stdout receives what entities print. Defaults to os.Stdout.
	Stdout io.Writer
	// Stderr receives the workers' log output. Defaults to os.Stderr.
	Stderr io.Writer
}

// NewProcessIsolator returns an isolator that forwards the given log
// settings to its workers.
func NewProcessIsolator(logLevel, logFormat string) *ProcessIsolator {
	return &ProcessIsolator{
		Env: []string{LogLevelEnv + "=" + logLevel, LogFormatEnv + "=" + logFormat},
	}
}

type processWorker struct {
	cmd    *exec.Cmd
	kind   entity.Kind
	result chan Result
	read   chan struct{}
	logger *slog.Logger

	badResult bool
	once      sync.Once
	status    int
}

// Start spawns the worker process and hands it the task. The worker is not
// tied to ctx: a run in progress is never interrupted.
func (p *ProcessIsolator) Start(ctx context.Context, task Task) (Worker, error) {
	logger := ctxlog.FromContext(ctx)

	exe := p.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve worker executable: %w", err)
		}
	}
	var payload bytes.Buffer
	if err := encodeTask(&payload, task); err != nil {
		return nil, fmt.Errorf("failed to encode task for %s #%d: %w", task.Kind, task.Index, err)
	}

	resultR, resultW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create result pipe: %w", err)
	}

	cmd := exec.Command(exe)
	cmd.Env = append(append(os.Environ(), WorkerEnv+"=1"), p.Env...)
	cmd.Stdin = &payload
	cmd.Stdout = p.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = p.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	// ExtraFiles[0] becomes ResultFD in the child.
	cmd.ExtraFiles = []*os.File{resultW}

	if err := cmd.Start(); err != nil {
		resultR.Close()
		resultW.Close()
		return nil, fmt.Errorf("failed to start worker for %s #%d: %w", task.Kind, task.Index, err)
	}
	// The child holds its own copy; EOF arrives when it exits.
	resultW.Close()
	logger.Debug("Worker process started.", "kind", task.Kind, "index", task.Index, "id", task.ID, "pid", cmd.Process.Pid)

	w := &processWorker{
		cmd:    cmd,
		kind:   task.Kind,
		result: make(chan Result, 1),
		read:   make(chan struct{}),
		logger: logger,
	}
	go w.collect(resultR)
	return w, nil
}

// collect reads the result pipe to EOF and publishes the decoded result.
func (w *processWorker) collect(pipe *os.File) {
	defer close(w.read)
	defer close(w.result)
	defer pipe.Close()

	raw, err := io.ReadAll(pipe)
	if err != nil {
		w.logger.Error("Failed to read worker output.", "pid", w.PID(), "error", err)
		w.badResult = true
		return
	}
	if len(raw) == 0 {
		// Serve always reports a successful source, so silence means the
		// entity left the process early.
		if w.kind == entity.SourceKind {
			w.logger.Error("Source worker exited without a result.", "pid", w.PID())
			w.badResult = true
		}
		return
	}
	res, err := decodeResult(raw)
	if err != nil {
		w.logger.Error("Failed to decode worker result.", "pid", w.PID(), "error", err)
		w.badResult = true
		return
	}
	w.result <- res
}

func (w *processWorker) PID() int { return w.cmd.Process.Pid }

func (w *processWorker) Result() <-chan Result { return w.result }

// Wait reads the whole result before reaping the process.
func (w *processWorker) Wait() int {
	w.once.Do(func() {
		<-w.read
		err := w.cmd.Wait()
		w.status = w.cmd.ProcessState.ExitCode()

		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			w.logger.Error("Failed to wait for worker.", "pid", w.PID(), "error", err)
			if w.status == 0 {
				w.status = StatusError
			}
		}
		if w.status == 0 && w.badResult {
			w.status = StatusBadResult
		}
	})
	return w.status
}

func encodeResult(res Result) ([]byte, error) {
	wire := wireResult{Duration: int64(res.Duration)}
	if res.Data != nil {
		raw, err := datamap.Encode(res.Data)
		if err != nil {
			return nil, err
		}
		wire.Data = raw
	}
	return msgpack.Marshal(&wire)
}

func decodeResult(raw []byte) (Result, error) {
	var wire wireResult
	if err := msgpack.Unmarshal(raw, &wire); err != nil {
		return Result{}, err
	}
	res := Result{Duration: time.Duration(wire.Duration)}
	if len(wire.Data) > 0 {
		data, err := datamap.Decode(wire.Data)
		if err != nil {
			return Result{}, err
		}
		res.Data = data
	}
	return res, nil
}

func encodeTask(w io.Writer, task Task) error {
	return msgpack.NewEncoder(w).Encode(&task)
}
