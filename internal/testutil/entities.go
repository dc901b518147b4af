package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/registry"
)

// EntitiesModule registers deterministic entities for pipeline tests. They
// only communicate through their config and the file system, so they behave
// the same in worker processes and in goroutines.
//
// Sources: const, sequence, fail, panic, exit. Aggregators: set, count, fail.
// Sinks: record, fail, panic, exit.
type EntitiesModule struct{}

// NewRegistry returns a registry holding only the test entities.
func NewRegistry() *registry.Registry {
	return registry.New(&EntitiesModule{})
}

// Register implements the registry.Module interface.
func (EntitiesModule) Register(r *registry.Registry) {
	r.RegisterSource("const", func(base entity.Base) (entity.Entity, error) {
		data, err := base.Config.Map("data")
		if err != nil {
			return nil, err
		}
		touch, err := base.Config.String("touch", "")
		if err != nil {
			return nil, err
		}
		delay, err := base.Config.Duration("delay", 0)
		if err != nil {
			return nil, err
		}
		echo, err := base.Config.String("echo", "")
		if err != nil {
			return nil, err
		}
		return &constSource{Base: base, data: data, touch: touch, delay: delay, echo: echo}, nil
	})
	r.RegisterSource("sequence", func(base entity.Base) (entity.Entity, error) {
		state, err := base.Config.String("state", "")
		if err != nil {
			return nil, err
		}
		if state == "" {
			return nil, errors.New("sequence source requires 'state'")
		}
		return &sequenceSource{Base: base, state: state}, nil
	})
	r.RegisterSource("fail", func(base entity.Base) (entity.Entity, error) {
		return &failing{Base: base}, nil
	})
	r.RegisterSource("panic", func(base entity.Base) (entity.Entity, error) {
		return &panicking{Base: base}, nil
	})
	r.RegisterSource("exit", newExiting)

	r.RegisterAggregator("set", func(base entity.Base) (entity.Entity, error) {
		key, err := base.Config.String("key", "")
		if err != nil {
			return nil, err
		}
		if key == "" {
			return nil, errors.New("set aggregator requires 'key'")
		}
		return &setAggregator{Base: base, key: key}, nil
	})
	r.RegisterAggregator("count", func(base entity.Base) (entity.Entity, error) {
		return &countAggregator{Base: base}, nil
	})
	r.RegisterAggregator("fail", func(base entity.Base) (entity.Entity, error) {
		return &failing{Base: base}, nil
	})

	r.RegisterSink("record", func(base entity.Base) (entity.Entity, error) {
		path, err := base.Config.String("path", "")
		if err != nil {
			return nil, err
		}
		if path == "" {
			return nil, errors.New("record sink requires 'path'")
		}
		return &recordSink{Base: base, path: path}, nil
	})
	r.RegisterSink("fail", func(base entity.Base) (entity.Entity, error) {
		return &failing{Base: base}, nil
	})
	r.RegisterSink("panic", func(base entity.Base) (entity.Entity, error) {
		return &panicking{Base: base}, nil
	})
	r.RegisterSink("exit", newExiting)
}

// constSource emits its "data" config map with sorted keys after an
// optional "delay". When "touch" is set, it also creates that file so tests
// can observe that it ran. "echo" is printed to stdout.
type constSource struct {
	entity.Base
	data  map[string]any
	touch string
	delay time.Duration
	echo  string
}

func (s *constSource) Produce(ctx context.Context) (*datamap.Map, error) {
	time.Sleep(s.delay)
	if s.echo != "" {
		fmt.Println(s.echo)
	}
	if s.touch != "" {
		if err := os.WriteFile(s.touch, []byte(s.ID), 0o600); err != nil {
			return nil, err
		}
	}
	return datamap.FromMap(s.data), nil
}

// sequenceSource counts its invocations in the "state" file and emits a key
// that differs on every run: run1, run2, ...
type sequenceSource struct {
	entity.Base
	state string
}

func (s *sequenceSource) Produce(ctx context.Context) (*datamap.Map, error) {
	n := 0
	if raw, err := os.ReadFile(s.state); err == nil {
		n, _ = strconv.Atoi(strings.TrimSpace(string(raw)))
	}
	n++
	if err := os.WriteFile(s.state, []byte(strconv.Itoa(n)), 0o600); err != nil {
		return nil, err
	}
	out := datamap.New()
	out.Set(fmt.Sprintf("run%d", n), int64(n))
	return out, nil
}

type setAggregator struct {
	entity.Base
	key string
}

func (a *setAggregator) Accumulate(ctx context.Context, data *datamap.Map) error {
	data.Set(a.key, a.Config["value"])
	return nil
}

type countAggregator struct {
	entity.Base
}

func (a *countAggregator) Accumulate(ctx context.Context, data *datamap.Map) error {
	data.Set("count", int64(data.Len()))
	return nil
}

// recordSink appends the JSON form of every consumed map as one line of
// the "path" file.
type recordSink struct {
	entity.Base
	path string
}

func (s *recordSink) Consume(ctx context.Context, data *datamap.Map) error {
	raw, err := data.MarshalJSON()
	if err != nil {
		return err
	}
	// Mutations must not leak to other sinks or to the pipeline.
	data.Set("mutated-by", s.ID)

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(raw, '\n'))
	return err
}

// failing returns an error from every role.
type failing struct {
	entity.Base
}

func (f *failing) Produce(ctx context.Context) (*datamap.Map, error) {
	return nil, fmt.Errorf("source %s failed on purpose", f.ID)
}

func (f *failing) Accumulate(ctx context.Context, data *datamap.Map) error {
	return fmt.Errorf("aggregator %s failed on purpose", f.ID)
}

func (f *failing) Consume(ctx context.Context, data *datamap.Map) error {
	return fmt.Errorf("sink %s failed on purpose", f.ID)
}

type panicking struct {
	entity.Base
}

func (p *panicking) Produce(ctx context.Context) (*datamap.Map, error) {
	panic("source " + p.ID + " panicked on purpose")
}

func (p *panicking) Consume(ctx context.Context, data *datamap.Map) error {
	panic("sink " + p.ID + " panicked on purpose")
}

// exiting terminates the whole process with the "code" config value. It is
// only meaningful inside a worker process.
type exiting struct {
	entity.Base
	code int
}

func newExiting(base entity.Base) (entity.Entity, error) {
	code, err := base.Config.Int("code", 1)
	if err != nil {
		return nil, err
	}
	return &exiting{Base: base, code: code}, nil
}

func (e *exiting) Produce(ctx context.Context) (*datamap.Map, error) {
	os.Exit(e.code)
	return nil, nil
}

func (e *exiting) Consume(ctx context.Context, data *datamap.Map) error {
	os.Exit(e.code)
	return nil
}

// ReadRecords returns the lines written by a record sink, or nil when the
// sink never ran.
func ReadRecords(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(raw)), "\n")
}
