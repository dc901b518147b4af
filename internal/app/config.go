package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/vk/flowgrid/internal/config"
)

// Isolation modes.
const (
	IsolationProcess   = "process"
	IsolationGoroutine = "goroutine"
)

// Config holds all the necessary configuration for an App instance to run.
// Zero values of the schedule fields mean "keep what the definition says".
type Config struct {
	PipelinePath string // definition file or directory of .hcl files
	Name         string

	Frequency time.Duration
	Samples   *int
	Start     *time.Time

	JournalDir string
	Isolation  string
	StatusPort int
	LogFormat  string
	LogLevel   string
	DryRun     bool
}

// NewConfig validates cfg and returns a copy with defaults applied.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	if cfg.Isolation == "" {
		cfg.Isolation = IsolationProcess
	}
	if cfg.Isolation != IsolationProcess && cfg.Isolation != IsolationGoroutine {
		return nil, fmt.Errorf("invalid isolation %q: must be '%s' or '%s'", cfg.Isolation, IsolationProcess, IsolationGoroutine)
	}
	if cfg.Frequency < 0 {
		return nil, fmt.Errorf("frequency must be positive, got %s", cfg.Frequency)
	}
	if cfg.Samples != nil && *cfg.Samples < 0 {
		return nil, fmt.Errorf("samples cannot be negative, got %d", *cfg.Samples)
	}
	if cfg.StatusPort < 0 {
		return nil, fmt.Errorf("invalid status port %d", cfg.StatusPort)
	}
	return &cfg, nil
}

// schedule merges the command-line overrides into the definition's schedule.
// A nil result means a single run.
func (c *Config) schedule(def *config.Schedule) (*config.Schedule, error) {
	var s *config.Schedule
	if def != nil {
		copied := *def
		s = &copied
	}
	if c.Frequency > 0 {
		if s == nil {
			s = &config.Schedule{}
		}
		s.Frequency = c.Frequency
	}
	if s == nil {
		if c.Samples != nil || c.Start != nil {
			return nil, errors.New("samples and start require a frequency")
		}
		return nil, nil
	}
	if c.Samples != nil {
		s.Samples = *c.Samples
	}
	if c.Start != nil {
		start := *c.Start
		s.Start = &start
	}
	return s, nil
}
