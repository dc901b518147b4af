package registry

import (
	"fmt"
	"sort"

	"github.com/vk/flowgrid/internal/entity"
)

// Module is the interface that all entity modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Factory constructs a concrete entity from its base attributes.
type Factory func(base entity.Base) (entity.Entity, error)

// Registry holds the factory tables for a single application instance.
type Registry struct {
	factories map[entity.Kind]map[string]Factory
}

// New creates and initializes a new Registry instance, optionally populated
// by the given modules.
func New(modules ...Module) *Registry {
	r := &Registry{factories: make(map[entity.Kind]map[string]Factory, len(entity.Kinds))}
	for _, kind := range entity.Kinds {
		r.factories[kind] = make(map[string]Factory)
	}
	for _, mod := range modules {
		mod.Register(r)
	}
	return r
}

// Types returns the registered type names for kind in sorted order.
func (r *Registry) Types(kind entity.Kind) []string {
	names := make([]string, 0, len(r.factories[kind]))
	for name := range r.factories[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the factory registered for kind and type name.
func (r *Registry) Lookup(kind entity.Kind, typeName string) (Factory, bool) {
	f, ok := r.factories[kind][typeName]
	return f, ok
}

// Build constructs an entity and checks that it implements the role its
// stage requires.
func (r *Registry) Build(kind entity.Kind, base entity.Base) (entity.Entity, error) {
	factory, ok := r.Lookup(kind, base.Type)
	if !ok {
		return nil, &UnknownTypeError{Kind: kind, Type: base.Type, Available: r.Types(kind)}
	}
	if base.Config == nil {
		base.Config = entity.Config{}
	}

	e, err := factory(base)
	if err != nil {
		return nil, fmt.Errorf("failed to construct %s %s: %w", kind, base.Label(), err)
	}

	var implements bool
	switch kind {
	case entity.SourceKind:
		_, implements = e.(entity.Source)
	case entity.AggregatorKind:
		_, implements = e.(entity.Aggregator)
	case entity.SinkKind:
		_, implements = e.(entity.Sink)
	}
	if !implements {
		return nil, fmt.Errorf("%s type '%s' constructs %T, which does not implement the %s role", kind, base.Type, e, kind)
	}
	return e, nil
}

// UnknownTypeError reports a definition that references an unregistered type.
type UnknownTypeError struct {
	Kind      entity.Kind
	Type      string
	Available []string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown %s type '%s' (available: %v)", e.Kind, e.Type, e.Available)
}
