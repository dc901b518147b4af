// Package static provides the "static" source, which emits fixed values
// from its definition. It is handy for labels and for testing sinks.
package static

import (
	"context"

	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// StaticSource emits its "data" option under its id.
type StaticSource struct {
	entity.Base
	data map[string]any
}

// Produce implements entity.Source.
func (s *StaticSource) Produce(ctx context.Context) (*datamap.Map, error) {
	out := datamap.New()
	out.Set(s.ID, datamap.FromMap(s.data))
	return out, nil
}

// Register registers the source with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterSource("static", func(base entity.Base) (entity.Entity, error) {
		data, err := base.Config.Map("data")
		if err != nil {
			return nil, err
		}
		return &StaticSource{Base: base, data: data}, nil
	})
}
