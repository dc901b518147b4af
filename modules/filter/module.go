// Package filter provides the "filter" aggregator, which drops top-level
// keys from the collected data by glob pattern.
package filter

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// FilterAggregator keeps the keys matching any include pattern (all keys
// when none is given), then removes those matching an exclude pattern.
type FilterAggregator struct {
	entity.Base
	include []string
	exclude []string
}

// New builds a FilterAggregator from its options.
func New(base entity.Base) (entity.Entity, error) {
	include, err := base.Config.Strings("include")
	if err != nil {
		return nil, err
	}
	exclude, err := base.Config.Strings("exclude")
	if err != nil {
		return nil, err
	}
	if len(include) == 0 && len(exclude) == 0 {
		return nil, fmt.Errorf("filter aggregator needs 'include' or 'exclude'")
	}
	for _, p := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	return &FilterAggregator{Base: base, include: include, exclude: exclude}, nil
}

// Accumulate implements entity.Aggregator.
func (a *FilterAggregator) Accumulate(ctx context.Context, data *datamap.Map) error {
	var removed []string
	for _, key := range data.Keys() {
		keep := len(a.include) == 0 || matchAny(a.include, key)
		if keep && !matchAny(a.exclude, key) {
			continue
		}
		data.Delete(key)
		removed = append(removed, key)
	}
	ctxlog.FromContext(ctx).Debug("Filtered keys.", "aggregator", a.ID, "removed", removed)
	return nil
}

func matchAny(patterns []string, key string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, key); ok {
			return true
		}
	}
	return false
}

// Register registers the aggregator with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAggregator("filter", New)
}
