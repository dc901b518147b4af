package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgrid/internal/config"
	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/isolation"
	"github.com/vk/flowgrid/internal/journal"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/vk/flowgrid/internal/testutil"
)

func isolators() map[string]isolation.Isolator {
	return map[string]isolation.Isolator{
		"process":   &isolation.ProcessIsolator{Stderr: &testutil.SafeBuffer{}},
		"goroutine": isolation.NewGoroutineIsolator(),
	}
}

func src(typ, id string, cfg map[string]any) *config.Entity {
	return &config.Entity{Type: typ, ID: id, Config: cfg}
}

func journalFiles(t *testing.T, dir string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "journal-*.json"))
	require.NoError(t, err)
	return files
}

func TestExecute_AllStagesJournaled(t *testing.T) {
	t.Parallel()

	for name, iso := range isolators() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			ctx, _ := testutil.Context(t)
			dir := t.TempDir()
			recA, recB := filepath.Join(dir, "a.jsonl"), filepath.Join(dir, "b.jsonl")
			def := &config.Definition{
				Sources: []*config.Entity{
					src("const", "first", map[string]any{"data": map[string]any{"a": int64(1)}}),
					src("const", "second", map[string]any{"data": map[string]any{"b": int64(2)}}),
					src("const", "third", map[string]any{"data": map[string]any{"c": int64(3)}}),
				},
				Aggregators: []*config.Entity{
					src("set", "mark", map[string]any{"key": "marked", "value": true}),
					src("count", "count", nil),
				},
				Sinks: []*config.Entity{
					src("record", "out-a", map[string]any{"path": recA}),
					src("record", "out-b", map[string]any{"path": recB}),
				},
			}
			journalDir := filepath.Join(dir, "journals")
			p, err := New(ctx, def, "test", testutil.NewRegistry(),
				WithIsolator(iso), WithJournalWriter(journal.NewWriter(journalDir)))
			require.NoError(t, err)

			// --- Act ---
			res, err := p.Execute(ctx)

			// --- Assert ---
			require.NoError(t, err)
			require.Len(t, res.Journal.Sources, 3)
			require.Len(t, res.Journal.Aggregators, 2)
			require.Len(t, res.Journal.Sinks, 2)
			for i, e := range res.Journal.Sources {
				assert.Equal(t, i, e.Index)
				assert.Equal(t, isolation.StatusOK, e.ExitCode)
				assert.Equal(t, "constSource", e.Name)
			}
			assert.Equal(t, "mark", res.Journal.Aggregators[0].ID)
			assert.Equal(t, "out-b", res.Journal.Sinks[1].ID)

			assert.Equal(t, []string{"a", "b", "c", "marked", "count"}, p.Data().Keys())
			want := []string{`{"a":1,"b":2,"c":3,"marked":true,"count":4}`}
			assert.Equal(t, want, testutil.ReadRecords(t, recA))
			assert.Equal(t, want, testutil.ReadRecords(t, recB))

			assert.Equal(t, []string{res.JournalPath}, journalFiles(t, journalDir))
			assert.NotEmpty(t, res.RunID)
		})
	}
}

func TestExecute_MergeFollowsDeclarationOrder(t *testing.T) {
	t.Parallel()

	for name, iso := range isolators() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			// A finishes last but is declared first, so B must still win.
			ctx, _ := testutil.Context(t)
			def := &config.Definition{Sources: []*config.Entity{
				src("const", "A", map[string]any{"data": map[string]any{"x": int64(1)}, "delay": "200ms"}),
				src("const", "B", map[string]any{"data": map[string]any{"x": int64(2), "y": int64(3)}}),
			}}
			p, err := New(ctx, def, "", testutil.NewRegistry(),
				WithIsolator(iso), WithJournalWriter(journal.NewWriter(t.TempDir())))
			require.NoError(t, err)

			// --- Act ---
			_, err = p.Execute(ctx)

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, []string{"x", "y"}, p.Data().Keys())
			x, _ := p.Data().Get("x")
			y, _ := p.Data().Get("y")
			assert.Equal(t, int64(2), x)
			assert.Equal(t, int64(3), y)
		})
	}
}

func TestExecute_SourceCrashAbortsRun(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		iso      isolation.Isolator
		crashing *config.Entity
		wantCode int
	}{
		{
			name:     "process exit code",
			iso:      &isolation.ProcessIsolator{Stderr: &testutil.SafeBuffer{}},
			crashing: src("exit", "broken", map[string]any{"code": int64(3)}),
			wantCode: 3,
		},
		{
			name:     "process exit without result",
			iso:      &isolation.ProcessIsolator{Stderr: &testutil.SafeBuffer{}},
			crashing: src("exit", "broken", map[string]any{"code": int64(0)}),
			wantCode: isolation.StatusBadResult,
		},
		{
			name:     "goroutine error",
			iso:      isolation.NewGoroutineIsolator(),
			crashing: src("fail", "broken", nil),
			wantCode: isolation.StatusError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			ctx, _ := testutil.Context(t)
			dir := t.TempDir()
			record := filepath.Join(dir, "sink.jsonl")
			journalDir := filepath.Join(dir, "journals")
			def := &config.Definition{
				Sources: []*config.Entity{
					src("const", "fine", map[string]any{"data": map[string]any{"k": "v"}}),
					tc.crashing,
				},
				Aggregators: []*config.Entity{src("set", "mark", map[string]any{"key": "aggregated"})},
				Sinks:       []*config.Entity{src("record", "out", map[string]any{"path": record})},
			}
			p, err := New(ctx, def, "", testutil.NewRegistry(),
				WithIsolator(tc.iso), WithJournalWriter(journal.NewWriter(journalDir)))
			require.NoError(t, err)

			// --- Act ---
			res, err := p.Execute(ctx)

			// --- Assert ---
			assert.Nil(t, res)
			var crash *WorkerCrash
			require.ErrorAs(t, err, &crash)
			assert.Equal(t, entity.SourceKind, crash.Kind)
			assert.Equal(t, 1, crash.Index)
			assert.Equal(t, "broken", crash.ID)
			assert.Equal(t, tc.wantCode, crash.ExitCode)

			_, aggregated := p.Data().Get("aggregated")
			assert.False(t, aggregated, "no aggregator may run after a source crash")
			assert.Nil(t, testutil.ReadRecords(t, record), "no sink may run after a source crash")
			assert.Empty(t, journalFiles(t, journalDir))
		})
	}
}

func TestExecute_AggregatorFailureStopsRun(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	dir := t.TempDir()
	record := filepath.Join(dir, "sink.jsonl")
	def := &config.Definition{
		Sources: []*config.Entity{src("const", "s", map[string]any{"data": map[string]any{"k": "v"}})},
		Aggregators: []*config.Entity{
			src("fail", "boom", nil),
			src("set", "never", map[string]any{"key": "after"}),
		},
		Sinks: []*config.Entity{src("record", "out", map[string]any{"path": record})},
	}
	p, err := New(ctx, def, "", testutil.NewRegistry(),
		WithIsolator(isolation.NewGoroutineIsolator()), WithJournalWriter(journal.NewWriter(dir)))
	require.NoError(t, err)

	// --- Act ---
	_, err = p.Execute(ctx)

	// --- Assert ---
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, 0, stageErr.Index)
	assert.Equal(t, "boom", stageErr.ID)
	assert.ErrorContains(t, err, "failed on purpose")
	_, ranAfter := p.Data().Get("after")
	assert.False(t, ranAfter)
	assert.Nil(t, testutil.ReadRecords(t, record))
	assert.Empty(t, journalFiles(t, dir))
}

func TestExecute_EverySinkRunsBeforeCrashIsReported(t *testing.T) {
	t.Parallel()

	for name, iso := range isolators() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			ctx, _ := testutil.Context(t)
			dir := t.TempDir()
			record := filepath.Join(dir, "sink.jsonl")
			def := &config.Definition{
				Sources: []*config.Entity{src("const", "s", map[string]any{"data": map[string]any{"k": "v"}})},
				Sinks: []*config.Entity{
					src("fail", "first", nil),
					src("record", "second", map[string]any{"path": record}),
				},
			}
			p, err := New(ctx, def, "", testutil.NewRegistry(),
				WithIsolator(iso), WithJournalWriter(journal.NewWriter(dir)))
			require.NoError(t, err)

			// --- Act ---
			_, err = p.Execute(ctx)

			// --- Assert ---
			var crash *WorkerCrash
			require.ErrorAs(t, err, &crash)
			assert.Equal(t, entity.SinkKind, crash.Kind)
			assert.Equal(t, 0, crash.Index)
			assert.Equal(t, isolation.StatusError, crash.ExitCode)
			assert.Equal(t, []string{`{"k":"v"}`}, testutil.ReadRecords(t, record))
		})
	}
}

func TestExecute_ResetsDataBetweenRuns(t *testing.T) {
	t.Parallel()

	for name, iso := range isolators() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			ctx, _ := testutil.Context(t)
			dir := t.TempDir()
			def := &config.Definition{Sources: []*config.Entity{
				src("sequence", "seq", map[string]any{"state": filepath.Join(dir, "state")}),
			}}
			p, err := New(ctx, def, "", testutil.NewRegistry(),
				WithIsolator(iso), WithJournalWriter(journal.NewWriter(dir)))
			require.NoError(t, err)

			// --- Act ---
			require.NoError(t, p.Run(ctx))
			first := p.Data().Keys()
			require.NoError(t, p.Run(ctx))

			// --- Assert ---
			assert.Equal(t, []string{"run1"}, first)
			assert.Equal(t, []string{"run2"}, p.Data().Keys())
			assert.Equal(t, 2, p.Executed())
			assert.Len(t, journalFiles(t, dir), 2)
		})
	}
}

func TestExecute_SourcesRunInParallel(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	sleeper := testutil.NewMockSleeperModule(150 * time.Millisecond)
	reg := registry.New(sleeper)
	def := &config.Definition{Sources: []*config.Entity{
		src("sleeper", "one", nil), src("sleeper", "two", nil), src("sleeper", "three", nil),
	}}
	p, err := New(ctx, def, "", reg,
		WithIsolator(isolation.NewGoroutineIsolator()), WithJournalWriter(journal.NewWriter(t.TempDir())))
	require.NoError(t, err)

	// --- Act ---
	_, err = p.Execute(ctx)

	// --- Assert ---
	require.NoError(t, err)
	one, ok := sleeper.Record("one")
	require.True(t, ok)
	for _, id := range []string{"two", "three"} {
		other, ok := sleeper.Record(id)
		require.True(t, ok)
		assert.True(t, one.Overlaps(other), "source %s should overlap source one", id)
	}
}

type failingWriter struct{}

func (failingWriter) Write(*journal.Journal, string) (string, error) {
	return "", &journal.JournalWriteError{Path: "nowhere", Err: os.ErrPermission}
}

func TestExecute_JournalWriteFailureFailsRun(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	def := &config.Definition{Sources: []*config.Entity{src("const", "s", nil)}}
	p, err := New(ctx, def, "", testutil.NewRegistry(),
		WithIsolator(isolation.NewGoroutineIsolator()), WithJournalWriter(failingWriter{}))
	require.NoError(t, err)

	// --- Act ---
	err = p.Run(ctx)

	// --- Assert ---
	var writeErr *journal.JournalWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.True(t, errors.Is(err, os.ErrPermission))
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []string
}

func (o *recordingObserver) ObserveEntity(kind entity.Kind, id string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, string(kind)+":"+id)
}

func TestExecute_NotifiesObservers(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	dir := t.TempDir()
	obs := &recordingObserver{}
	def := &config.Definition{
		Sources:     []*config.Entity{src("const", "s", nil)},
		Aggregators: []*config.Entity{src("count", "c", nil)},
		Sinks:       []*config.Entity{src("record", "r", map[string]any{"path": filepath.Join(dir, "r.jsonl")})},
	}
	p, err := New(ctx, def, "", testutil.NewRegistry(), WithObserver(obs),
		WithIsolator(isolation.NewGoroutineIsolator()), WithJournalWriter(journal.NewWriter(dir)))
	require.NoError(t, err)

	// --- Act ---
	require.NoError(t, p.Run(ctx))

	// --- Assert ---
	assert.Equal(t, []string{"source:s", "aggregator:c", "sink:r"}, obs.seen)
}

func TestNew_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		def        *config.Definition
		wantKind   entity.Kind
		wantReason string
	}{
		{
			name:       "unknown source type",
			def:        &config.Definition{Sources: []*config.Entity{src("nope", "n", nil)}},
			wantKind:   entity.SourceKind,
			wantReason: "unknown type",
		},
		{
			name: "duplicate sink id",
			def: &config.Definition{Sinks: []*config.Entity{
				src("fail", "same", nil), src("fail", "same", nil),
			}},
			wantKind:   entity.SinkKind,
			wantReason: "duplicate id",
		},
		{
			name:       "factory rejects config",
			def:        &config.Definition{Aggregators: []*config.Entity{src("set", "missing-key", nil)}},
			wantKind:   entity.AggregatorKind,
			wantReason: "cannot be constructed",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx, _ := testutil.Context(t)

			_, err := New(ctx, tc.def, "", testutil.NewRegistry())

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.wantKind, cfgErr.Kind)
			assert.Contains(t, cfgErr.Reason, tc.wantReason)
		})
	}
}

func TestNew_SameIDAcrossStagesIsAllowed(t *testing.T) {
	t.Parallel()

	ctx, _ := testutil.Context(t)
	def := &config.Definition{
		Name:    "named",
		Sources: []*config.Entity{src("const", "x", nil)},
		Sinks:   []*config.Entity{src("fail", "x", nil)},
	}

	p, err := New(ctx, def, "", testutil.NewRegistry())

	require.NoError(t, err)
	assert.Equal(t, "named", p.Name())
	assert.Equal(t, "named (1 sources, 0 aggregators, 1 sinks)", p.String())
	assert.Equal(t, 0, p.Executed())
}

// funcSource produces whatever its closure returns.
type funcSource struct {
	entity.Base
	produce func() *datamap.Map
}

func (s *funcSource) Produce(context.Context) (*datamap.Map, error) { return s.produce(), nil }

// bareEntity implements no role at all.
type bareEntity struct{ entity.Base }

func TestExecute_AdHocEntities(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	var consumed *datamap.Map
	module := &testutil.SimpleModule{
		Sources: map[string]registry.Factory{
			"hello": func(b entity.Base) (entity.Entity, error) {
				return &funcSource{Base: b, produce: func() *datamap.Map {
					m := datamap.New()
					m.Set(b.ID, "hello")
					return m
				}}, nil
			},
		},
		Aggregators: map[string]registry.Factory{
			"upper": func(b entity.Base) (entity.Entity, error) {
				return aggregatorFunc{Base: b, fn: func(m *datamap.Map) { m.Set("shout", "HELLO") }}, nil
			},
		},
		Sinks: map[string]registry.Factory{
			"capture": func(b entity.Base) (entity.Entity, error) {
				return sinkFunc{Base: b, fn: func(m *datamap.Map) { consumed = m }}, nil
			},
		},
	}
	def := &config.Definition{
		Sources:     []*config.Entity{src("hello", "greeting", nil)},
		Aggregators: []*config.Entity{src("upper", "u", nil)},
		Sinks:       []*config.Entity{src("capture", "c", nil)},
	}
	p, err := New(ctx, def, "", registry.New(module),
		WithIsolator(isolation.NewGoroutineIsolator()), WithJournalWriter(journal.NewWriter(t.TempDir())))
	require.NoError(t, err)

	// --- Act ---
	_, err = p.Execute(ctx)

	// --- Assert ---
	require.NoError(t, err)
	require.NotNil(t, consumed)
	assert.Equal(t, []string{"greeting", "shout"}, consumed.Keys())
}

func TestNew_EntityWithoutRoleIsRejected(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	module := &testutil.SimpleModule{Sinks: map[string]registry.Factory{
		"bare": func(b entity.Base) (entity.Entity, error) { return &bareEntity{b}, nil },
	}}
	def := &config.Definition{Sinks: []*config.Entity{src("bare", "b", nil)}}

	// --- Act ---
	_, err := New(ctx, def, "", registry.New(module))

	// --- Assert ---
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, entity.SinkKind, cfgErr.Kind)
	assert.Equal(t, "cannot be constructed", cfgErr.Reason)
}

type aggregatorFunc struct {
	entity.Base
	fn func(*datamap.Map)
}

func (a aggregatorFunc) Accumulate(_ context.Context, data *datamap.Map) error {
	a.fn(data)
	return nil
}

type sinkFunc struct {
	entity.Base
	fn func(*datamap.Map)
}

func (s sinkFunc) Consume(_ context.Context, data *datamap.Map) error {
	s.fn(data)
	return nil
}
