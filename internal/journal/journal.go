// Package journal records the outcome of one pipeline run as a JSON document
// in a private, per-user directory.
package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
)

// Entry is the journal record of one executed entity.
type Entry struct {
	Index    int
	ID       string
	PID      int
	Name     string
	ExitCode int
	Duration time.Duration
}

// Journal is the per-run document. It is never mutated once written.
type Journal struct {
	Sources     []Entry
	Aggregators []Entry
	Sinks       []Entry
}

type workerRecord struct {
	Index    int     `json:"index"`
	ID       string  `json:"id"`
	PID      int     `json:"pid"`
	Source   string  `json:"source,omitempty"`
	Sink     string  `json:"sink,omitempty"`
	ExitCode int     `json:"exitcode"`
	Duration float64 `json:"duration"`
}

type aggregatorRecord struct {
	Index      int     `json:"index"`
	ID         string  `json:"id"`
	Aggregator string  `json:"aggregator"`
	Duration   float64 `json:"duration"`
}

type document struct {
	Sources     []workerRecord     `json:"sources"`
	Aggregators []aggregatorRecord `json:"aggregators"`
	Sinks       []workerRecord     `json:"sinks"`
}

// MarshalJSON renders the journal with per-stage key names. Durations are
// seconds as floating point numbers.
func (j *Journal) MarshalJSON() ([]byte, error) {
	doc := document{
		Sources:     make([]workerRecord, 0, len(j.Sources)),
		Aggregators: make([]aggregatorRecord, 0, len(j.Aggregators)),
		Sinks:       make([]workerRecord, 0, len(j.Sinks)),
	}
	for _, e := range j.Sources {
		doc.Sources = append(doc.Sources, workerRecord{
			Index: e.Index, ID: e.ID, PID: e.PID, Source: e.Name, ExitCode: e.ExitCode, Duration: e.Duration.Seconds(),
		})
	}
	for _, e := range j.Aggregators {
		doc.Aggregators = append(doc.Aggregators, aggregatorRecord{
			Index: e.Index, ID: e.ID, Aggregator: e.Name, Duration: e.Duration.Seconds(),
		})
	}
	for _, e := range j.Sinks {
		doc.Sinks = append(doc.Sinks, workerRecord{
			Index: e.Index, ID: e.ID, PID: e.PID, Sink: e.Name, ExitCode: e.ExitCode, Duration: e.Duration.Seconds(),
		})
	}
	return sonic.ConfigStd.MarshalIndent(doc, "", "  ")
}

// JournalWriteError reports that the journal file could not be written.
type JournalWriteError struct {
	Path string
	Err  error
}

func (e *JournalWriteError) Error() string {
	return fmt.Sprintf("failed to write journal %s: %v", e.Path, e.Err)
}

func (e *JournalWriteError) Unwrap() error { return e.Err }

// DefaultDir is the journal directory used when none is configured.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "flowgrid-journals")
}

// Writer persists journals under Dir.
type Writer struct {
	Dir string
}

// NewWriter returns a Writer for dir, or for DefaultDir when dir is empty.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Writer{Dir: dir}
}

// Write stores j as journal-<pid>-<runID>.json. The directory is created
// owner-only and the file is created exclusively, so an existing file with
// the same name is never overwritten.
func (w *Writer) Write(j *Journal, runID string) (string, error) {
	path := filepath.Join(w.Dir, fmt.Sprintf("journal-%d-%s.json", os.Getpid(), runID))

	if err := os.MkdirAll(w.Dir, 0o700); err != nil {
		return "", &JournalWriteError{Path: path, Err: err}
	}
	raw, err := j.MarshalJSON()
	if err != nil {
		return "", &JournalWriteError{Path: path, Err: err}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", &JournalWriteError{Path: path, Err: err}
	}
	if _, err := f.Write(append(raw, '\n')); err != nil {
		return "", &JournalWriteError{Path: path, Err: errors.Join(err, f.Close())}
	}
	if err := f.Close(); err != nil {
		return "", &JournalWriteError{Path: path, Err: err}
	}
	return path, nil
}
