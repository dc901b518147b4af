package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/registry"
)

// MockSleeperModule is a shared, self-contained module for concurrency tests.
// Its "sleeper" source records the execution time of each entity using it.
// Records are kept in memory, so it only observes in-process workers.
type MockSleeperModule struct {
	ExecutionTimes map[string]*ExecutionRecord
	mu             sync.Mutex
	sleepDuration  time.Duration
}

// NewMockSleeperModule creates a new sleeper module for testing.
func NewMockSleeperModule(sleep time.Duration) *MockSleeperModule {
	return &MockSleeperModule{
		ExecutionTimes: make(map[string]*ExecutionRecord),
		sleepDuration:  sleep,
	}
}

type sleeperSource struct {
	entity.Base
	module *MockSleeperModule
}

func (s *sleeperSource) Produce(ctx context.Context) (*datamap.Map, error) {
	startTime := time.Now()
	time.Sleep(s.module.sleepDuration)
	endTime := time.Now()

	s.module.mu.Lock()
	s.module.ExecutionTimes[s.ID] = &ExecutionRecord{Start: startTime, End: endTime}
	s.module.mu.Unlock()

	out := datamap.New()
	out.Set(s.ID, endTime.Sub(startTime).Seconds())
	return out, nil
}

// Register registers the "sleeper" source.
func (m *MockSleeperModule) Register(r *registry.Registry) {
	r.RegisterSource("sleeper", func(base entity.Base) (entity.Entity, error) {
		return &sleeperSource{Base: base, module: m}, nil
	})
}

// Record returns the execution record of id.
func (m *MockSleeperModule) Record(id string) (ExecutionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.ExecutionTimes[id]
	if !ok {
		return ExecutionRecord{}, false
	}
	return *rec, true
}
