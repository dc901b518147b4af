package pipeline

import (
	"time"

	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/isolation"
	"github.com/vk/flowgrid/internal/journal"
)

// JournalWriter persists the journal of a successful run.
type JournalWriter interface {
	Write(j *journal.Journal, runID string) (string, error)
}

// Observer is notified about every entity execution of a run.
type Observer interface {
	ObserveEntity(kind entity.Kind, id string, duration time.Duration)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithIsolator sets the isolator used for sources and sinks. The default
// re-executes the current binary for every worker.
func WithIsolator(iso isolation.Isolator) Option {
	return func(p *Pipeline) { p.isolator = iso }
}

// WithJournalWriter sets where journals are written. The default writes to
// journal.DefaultDir().
func WithJournalWriter(w JournalWriter) Option {
	return func(p *Pipeline) { p.journal = w }
}

// WithObserver registers an observer for entity executions.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}
