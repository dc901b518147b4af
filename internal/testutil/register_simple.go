package testutil

import "github.com/vk/flowgrid/internal/registry"

// SimpleModule is a test helper for easily creating a mock module that
// registers individual factories per stage.
type SimpleModule struct {
	Sources     map[string]registry.Factory
	Aggregators map[string]registry.Factory
	Sinks       map[string]registry.Factory
}

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(r *registry.Registry) {
	for name, f := range m.Sources {
		r.RegisterSource(name, f)
	}
	for name, f := range m.Aggregators {
		r.RegisterAggregator(name, f)
	}
	for name, f := range m.Sinks {
		r.RegisterSink(name, f)
	}
}
