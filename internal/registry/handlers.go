package registry

import (
	"fmt"
	"log/slog"

	"github.com/vk/flowgrid/internal/entity"
)

// RegisterSource registers the factory for a source type.
func (r *Registry) RegisterSource(name string, factory Factory) {
	r.register(entity.SourceKind, name, factory)
}

// RegisterAggregator registers the factory for an aggregator type.
func (r *Registry) RegisterAggregator(name string, factory Factory) {
	r.register(entity.AggregatorKind, name, factory)
}

// RegisterSink registers the factory for a sink type.
func (r *Registry) RegisterSink(name string, factory Factory) {
	r.register(entity.SinkKind, name, factory)
}

func (r *Registry) register(kind entity.Kind, name string, factory Factory) {
	if name == "" || factory == nil {
		panic(fmt.Sprintf("%s registration requires a name and a factory", kind))
	}
	if _, exists := r.factories[kind][name]; exists {
		panic(fmt.Sprintf("%s type with name '%s' already registered", kind, name))
	}
	slog.Debug("Registering entity type.", "kind", kind, "name", name)
	r.factories[kind][name] = factory
}
