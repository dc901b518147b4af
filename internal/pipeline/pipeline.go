package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/flowgrid/internal/config"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/isolation"
	"github.com/vk/flowgrid/internal/journal"
	"github.com/vk/flowgrid/internal/registry"
)

// DefaultName is used when neither the caller nor the definition names the
// pipeline.
const DefaultName = "pipeline"

// Pipeline is a built, runnable pipeline definition. A Pipeline is not safe
// for concurrent runs; the scheduler never overlaps them.
type Pipeline struct {
	name        string
	sources     []entity.Source
	aggregators []entity.Aggregator
	sinks       []entity.Sink

	isolator  isolation.Isolator
	journal   JournalWriter
	observers []Observer

	data     *datamap.Map
	executed int
}

// New resolves every declared entity through the registry. Indexes are
// assigned in declaration order and ids must be unique within a stage.
func New(ctx context.Context, def *config.Definition, name string, reg *registry.Registry, opts ...Option) (*Pipeline, error) {
	logger := ctxlog.FromContext(ctx)

	if name == "" {
		name = def.Name
	}
	if name == "" {
		name = DefaultName
	}
	p := &Pipeline{
		name:     name,
		isolator: &isolation.ProcessIsolator{},
		journal:  journal.NewWriter(""),
		data:     datamap.New(),
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, kind := range entity.Kinds {
		seen := make(map[string]int)
		for i, decl := range def.Stage(kind) {
			if first, dup := seen[decl.ID]; dup {
				return nil, &ConfigurationError{
					Kind: kind, Index: i, Type: decl.Type, ID: decl.ID,
					Reason: fmt.Sprintf("duplicate id, already used by %s #%d", kind, first),
				}
			}
			seen[decl.ID] = i

			base := entity.Base{Index: i, Type: decl.Type, ID: decl.ID, Config: entity.Config(decl.Config)}
			e, err := reg.Build(kind, base)
			if err != nil {
				reason := "cannot be constructed"
				var unknown *registry.UnknownTypeError
				if errors.As(err, &unknown) {
					reason = "unknown type"
				}
				return nil, &ConfigurationError{Kind: kind, Index: i, Type: decl.Type, ID: decl.ID, Reason: reason, Err: err}
			}

			switch kind {
			case entity.SourceKind:
				p.sources = append(p.sources, e.(entity.Source))
			case entity.AggregatorKind:
				p.aggregators = append(p.aggregators, e.(entity.Aggregator))
			case entity.SinkKind:
				p.sinks = append(p.sinks, e.(entity.Sink))
			}
		}
	}

	logger.Debug("Pipeline built.", "pipeline", p.name, "sources", len(p.sources), "aggregators", len(p.aggregators), "sinks", len(p.sinks))
	return p, nil
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Data returns the shared DataMap of the most recent run.
func (p *Pipeline) Data() *datamap.Map { return p.data }

// Executed returns how many runs have been started.
func (p *Pipeline) Executed() int { return p.executed }

func (p *Pipeline) String() string {
	return fmt.Sprintf("%s (%d sources, %d aggregators, %d sinks)", p.name, len(p.sources), len(p.aggregators), len(p.sinks))
}
