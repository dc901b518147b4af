// Package timestamp provides the "timestamp" source, which records when a
// run collected its data.
package timestamp

import (
	"context"
	"time"

	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// now is replaced in tests.
var now = time.Now

// TimestampSource emits {timestamp, epoch?, iso8601?} under its id.
type TimestampSource struct {
	entity.Base
	epoch   bool
	iso8601 bool
}

// New builds a TimestampSource from its options.
func New(base entity.Base) (entity.Entity, error) {
	epoch, err := base.Config.Bool("epoch", false)
	if err != nil {
		return nil, err
	}
	iso, err := base.Config.Bool("iso8601", false)
	if err != nil {
		return nil, err
	}
	return &TimestampSource{Base: base, epoch: epoch, iso8601: iso}, nil
}

// Produce implements entity.Source.
func (s *TimestampSource) Produce(ctx context.Context) (*datamap.Map, error) {
	t := now().UTC()

	stamp := datamap.New()
	stamp.Set("timestamp", t.Format(time.RFC3339))
	if s.epoch {
		stamp.Set("epoch", t.Unix())
	}
	if s.iso8601 {
		stamp.Set("iso8601", t.Format(time.RFC3339Nano))
	}

	out := datamap.New()
	out.Set(s.ID, stamp)
	return out, nil
}

// Register registers the source with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterSource("timestamp", New)
}
