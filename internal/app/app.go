package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/flowgrid/internal/config"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/isolation"
	"github.com/vk/flowgrid/internal/journal"
	"github.com/vk/flowgrid/internal/metrics"
	"github.com/vk/flowgrid/internal/pipeline"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/vk/flowgrid/internal/scheduler"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	config    *Config
	registry  *registry.Registry
	def       *config.Definition
	metrics   *metrics.Metrics
	pipeline  *pipeline.Pipeline
	scheduler *scheduler.Scheduler

	httpServer *http.Server
}

// NewApp is the constructor for the main application. It loads the
// definition, registers the modules (the core modules when none are given)
// and builds the pipeline. Definition problems are reported as errors.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger := ctxlog.New(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	def, err := loadDefinition(ctx, cfg.PipelinePath)
	if err != nil {
		return nil, err
	}
	logger.Debug("Pipeline definition loaded.", "path", cfg.PipelinePath)

	if len(modules) == 0 {
		modules = coreModules
	}
	reg := registry.New(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules))

	m := metrics.New()
	p, err := pipeline.New(ctx, def, cfg.Name, reg,
		pipeline.WithIsolator(newIsolator(cfg, outW)),
		pipeline.WithJournalWriter(journal.NewWriter(cfg.JournalDir)),
		pipeline.WithObserver(m),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	logger.Debug("Pipeline built.", "pipeline", p.String())

	sched, err := cfg.schedule(def.Schedule)
	if err != nil {
		return nil, err
	}
	a := &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		def:      def,
		metrics:  m,
		pipeline: p,
	}
	if sched != nil {
		opts := []scheduler.Option{scheduler.WithSamples(sched.Samples), scheduler.WithObserver(m)}
		if sched.Start != nil {
			opts = append(opts, scheduler.WithStart(*sched.Start))
		}
		a.scheduler = scheduler.New(p, sched.Frequency, opts...)
		logger.Debug("Scheduler configured.", "frequency", sched.Frequency, "samples", sched.Samples)
	}
	return a, nil
}

func newIsolator(cfg *Config, outW io.Writer) isolation.Isolator {
	if cfg.Isolation == IsolationGoroutine {
		return isolation.NewGoroutineIsolator()
	}
	iso := isolation.NewProcessIsolator(cfg.LogLevel, cfg.LogFormat)
	// Worker logs join the application's own log stream.
	iso.Stderr = outW
	return iso
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Pipeline returns the built pipeline.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Scheduler returns the scheduler, or nil for a single-run definition.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// Metrics returns the application's collectors.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}
