package pipeline

import (
	"fmt"

	"github.com/vk/flowgrid/internal/entity"
)

// ConfigurationError is returned by New when a definition cannot be turned
// into a pipeline. It is fatal before any run starts.
type ConfigurationError struct {
	Kind   entity.Kind
	Index  int
	Type   string
	ID     string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("invalid %s #%d %s:%s: %s", e.Kind, e.Index, e.Type, e.ID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// WorkerCrash reports a source or sink worker that terminated with a
// non-zero exit status.
type WorkerCrash struct {
	Kind     entity.Kind
	Index    int
	ID       string
	PID      int
	ExitCode int
}

func (e *WorkerCrash) Error() string {
	return fmt.Sprintf("%s #%d (%s) crashed: worker %d exited with status %d", e.Kind, e.Index, e.ID, e.PID, e.ExitCode)
}

// StageError reports a failed aggregator.
type StageError struct {
	Index int
	ID    string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("aggregator #%d (%s) failed: %v", e.Index, e.ID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
