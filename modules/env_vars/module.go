// Package env_vars provides the "env" source, which collects environment
// variables selected by glob patterns.
package env_vars

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// EnvSource emits the selected variables, sorted by name, under its id.
// Without an include list every variable is a candidate.
type EnvSource struct {
	entity.Base
	include   []string
	exclude   []string
	lowercase bool
}

// New builds an EnvSource from its options, validating every pattern.
func New(base entity.Base) (entity.Entity, error) {
	include, err := base.Config.Strings("include")
	if err != nil {
		return nil, err
	}
	exclude, err := base.Config.Strings("exclude")
	if err != nil {
		return nil, err
	}
	lowercase, err := base.Config.Bool("lowercase", false)
	if err != nil {
		return nil, err
	}
	for _, p := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	return &EnvSource{Base: base, include: include, exclude: exclude, lowercase: lowercase}, nil
}

// Produce implements entity.Source.
func (s *EnvSource) Produce(ctx context.Context) (*datamap.Map, error) {
	envMap := make(map[string]string)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) != 2 || !s.selected(pair[0]) {
			continue
		}
		key := pair[0]
		if s.lowercase {
			key = strings.ToLower(key)
		}
		envMap[key] = pair[1]
	}

	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vars := datamap.New()
	for _, k := range keys {
		vars.Set(k, envMap[k])
	}
	out := datamap.New()
	out.Set(s.ID, vars)
	return out, nil
}

func (s *EnvSource) selected(name string) bool {
	if len(s.include) > 0 && !matchAny(s.include, name) {
		return false
	}
	return !matchAny(s.exclude, name)
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Register registers the source with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterSource("env", New)
}
