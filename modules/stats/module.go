// Package stats provides the "stats" aggregator, which summarizes numeric
// lists found in the collected data.
package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/registry"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// StatsAggregator stores {count, mean, stddev, min, max} next to every
// configured list. For the dotted path "api.latencies" the summary lands in
// "api" under "latencies_stats".
type StatsAggregator struct {
	entity.Base
	paths         []string
	ignoreMissing bool
}

// New builds a StatsAggregator. Options: keys (required), ignore_missing.
func New(base entity.Base) (entity.Entity, error) {
	paths, err := base.Config.Strings("keys")
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.New("stats aggregator requires 'keys'")
	}
	ignoreMissing, err := base.Config.Bool("ignore_missing", false)
	if err != nil {
		return nil, err
	}
	return &StatsAggregator{Base: base, paths: paths, ignoreMissing: ignoreMissing}, nil
}

// Accumulate implements entity.Aggregator.
func (a *StatsAggregator) Accumulate(ctx context.Context, data *datamap.Map) error {
	for _, path := range a.paths {
		parts := strings.Split(path, ".")
		v, ok := datamap.Lookup(data, parts)
		if !ok {
			if a.ignoreMissing {
				continue
			}
			return fmt.Errorf("key %q not found", path)
		}
		values, err := numbers(v)
		if err != nil {
			return fmt.Errorf("key %q: %w", path, err)
		}
		if err := store(data, parts, summarize(values)); err != nil {
			return fmt.Errorf("key %q: %w", path, err)
		}
	}
	return nil
}

// store sets summary beside the list the path points at.
func store(data *datamap.Map, parts []string, summary *datamap.Map) error {
	key := parts[len(parts)-1] + "_stats"
	if len(parts) == 1 {
		data.Set(key, summary)
		return nil
	}
	parent, _ := datamap.Lookup(data, parts[:len(parts)-1])
	switch node := parent.(type) {
	case *datamap.Map:
		node.Set(key, summary)
	case map[string]any:
		node[key] = summary
	default:
		return fmt.Errorf("cannot store summary in %T", parent)
	}
	return nil
}

func summarize(values []float64) *datamap.Map {
	summary := datamap.New()
	summary.Set("count", int64(len(values)))
	if len(values) == 0 {
		return summary
	}
	mean, std := stat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		std = 0
	}
	summary.Set("mean", mean)
	summary.Set("stddev", std)
	summary.Set("min", floats.Min(values))
	summary.Set("max", floats.Max(values))
	return summary
}

func numbers(v any) ([]float64, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of numbers, got %T", v)
	}
	out := make([]float64, 0, len(list))
	for i, item := range list {
		f, ok := entity.ToFloat(item)
		if !ok {
			return nil, fmt.Errorf("item %d: expected number, got %T", i, item)
		}
		out = append(out, f)
	}
	return out, nil
}

// Register registers the aggregator with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAggregator("stats", New)
}
