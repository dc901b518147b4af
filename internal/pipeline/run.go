package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/isolation"
	"github.com/vk/flowgrid/internal/journal"
)

// Result describes a successful run.
type Result struct {
	RunID       string
	Journal     *journal.Journal
	JournalPath string
	Duration    time.Duration
}

// Run executes the pipeline once. It satisfies the scheduler's runner
// contract.
func (p *Pipeline) Run(ctx context.Context) error {
	_, err := p.Execute(ctx)
	return err
}

// Execute performs one full run. The shared DataMap is recreated empty first
// and the journal is only written when every stage succeeded. Cancelling ctx
// does not interrupt a run in progress.
func (p *Pipeline) Execute(ctx context.Context) (*Result, error) {
	p.data = datamap.New()
	p.executed++

	runID := uuid.NewString()
	ctx = ctxlog.With(context.WithoutCancel(ctx), "pipeline", p.name, "run_id", runID)
	logger := ctxlog.FromContext(ctx)
	logger.Info("🚀 Starting pipeline run.", "run", p.executed)

	start := time.Now()
	j := &journal.Journal{}

	if err := p.runSources(ctx, j); err != nil {
		return nil, p.fail(ctx, err)
	}
	if err := p.runAggregators(ctx, j); err != nil {
		return nil, p.fail(ctx, err)
	}
	if err := p.runSinks(ctx, j); err != nil {
		return nil, p.fail(ctx, err)
	}

	path, err := p.journal.Write(j, runID)
	if err != nil {
		return nil, p.fail(ctx, err)
	}

	res := &Result{RunID: runID, Journal: j, JournalPath: path, Duration: time.Since(start)}
	logger.Info("🏁 Pipeline run finished.", "duration", res.Duration, "journal", path)
	return res, nil
}

func (p *Pipeline) fail(ctx context.Context, err error) error {
	ctxlog.FromContext(ctx).Error("❌ Pipeline run failed.", "error", err)
	return err
}

func (p *Pipeline) observe(kind entity.Kind, id string, d time.Duration) {
	for _, o := range p.observers {
		o.ObserveEntity(kind, id, d)
	}
}

// launch starts one worker per task. When a launch fails, the workers that
// already started are reaped before returning.
func (p *Pipeline) launch(ctx context.Context, tasks []isolation.Task) ([]isolation.Worker, error) {
	workers := make([]isolation.Worker, 0, len(tasks))
	for _, task := range tasks {
		w, err := p.isolator.Start(ctx, task)
		if err != nil {
			for _, started := range workers {
				started.Wait()
			}
			return nil, fmt.Errorf("failed to launch %s #%d (%s): %w", task.Kind, task.Index, task.ID, err)
		}
		workers = append(workers, w)
	}
	return workers, nil
}

func (p *Pipeline) runSources(ctx context.Context, j *journal.Journal) error {
	logger := ctxlog.FromContext(ctx).With("stage", entity.SourceKind.Plural())

	tasks := make([]isolation.Task, len(p.sources))
	for i, src := range p.sources {
		tasks[i] = isolation.NewTask(entity.SourceKind, src, nil)
	}
	logger.Debug("Launching source workers.", "count", len(tasks))
	workers, err := p.launch(ctx, tasks)
	if err != nil {
		return err
	}

	// Results are collected in declaration order, so a later source always
	// overwrites the keys of an earlier one.
	durations := make([]time.Duration, len(workers))
	for i, w := range workers {
		res, ok := <-w.Result()
		if !ok {
			continue
		}
		p.data.Merge(res.Data)
		durations[i] = res.Duration
	}

	var crash error
	for i, w := range workers {
		status := w.Wait()
		base := p.sources[i].Identity()
		j.Sources = append(j.Sources, journal.Entry{
			Index: base.Index, ID: base.ID, PID: w.PID(), Name: entity.DisplayName(p.sources[i]),
			ExitCode: status, Duration: durations[i],
		})
		if status != isolation.StatusOK {
			if crash == nil {
				crash = &WorkerCrash{Kind: entity.SourceKind, Index: base.Index, ID: base.ID, PID: w.PID(), ExitCode: status}
			}
			logger.Error("🔥 Source worker crashed.", "source", base.ID, "pid", w.PID(), "status", status)
			continue
		}
		p.observe(entity.SourceKind, base.ID, durations[i])
		logger.Info("✅ Finished source.", "source", base.ID, "pid", w.PID(), "duration", durations[i])
	}
	return crash
}

func (p *Pipeline) runAggregators(ctx context.Context, j *journal.Journal) error {
	logger := ctxlog.FromContext(ctx).With("stage", entity.AggregatorKind.Plural())

	for _, agg := range p.aggregators {
		base := agg.Identity()
		logger.Debug("▶️ Starting aggregator.", "aggregator", base.ID)

		start := time.Now()
		err := accumulate(ctx, agg, p.data)
		elapsed := time.Since(start)
		if err != nil {
			return &StageError{Index: base.Index, ID: base.ID, Err: err}
		}

		j.Aggregators = append(j.Aggregators, journal.Entry{
			Index: base.Index, ID: base.ID, Name: entity.DisplayName(agg), Duration: elapsed,
		})
		p.observe(entity.AggregatorKind, base.ID, elapsed)
		logger.Info("✅ Finished aggregator.", "aggregator", base.ID, "duration", elapsed)
	}
	return nil
}

// accumulate runs one aggregator and reports a panic as an error.
func accumulate(ctx context.Context, agg entity.Aggregator, data *datamap.Map) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return agg.Accumulate(ctx, data)
}

func (p *Pipeline) runSinks(ctx context.Context, j *journal.Journal) error {
	logger := ctxlog.FromContext(ctx).With("stage", entity.SinkKind.Plural())

	// One snapshot, encoded once, shared by every sink.
	snapshot, err := datamap.Encode(p.data)
	if err != nil {
		return fmt.Errorf("failed to snapshot data for sinks: %w", err)
	}
	tasks := make([]isolation.Task, len(p.sinks))
	for i, sink := range p.sinks {
		tasks[i] = isolation.NewTask(entity.SinkKind, sink, snapshot)
	}

	logger.Debug("Launching sink workers.", "count", len(tasks))
	start := time.Now()
	workers, err := p.launch(ctx, tasks)
	if err != nil {
		return err
	}

	// Every sink is joined before any status is judged. A sink that failed
	// reports no duration of its own; the wall time since launch is used.
	statuses := make([]int, len(workers))
	durations := make([]time.Duration, len(workers))
	for i, w := range workers {
		statuses[i] = w.Wait()
		if res, ok := <-w.Result(); ok {
			durations[i] = res.Duration
		} else {
			durations[i] = time.Since(start)
		}
	}

	var crash error
	for i, w := range workers {
		base := p.sinks[i].Identity()
		j.Sinks = append(j.Sinks, journal.Entry{
			Index: base.Index, ID: base.ID, PID: w.PID(), Name: entity.DisplayName(p.sinks[i]),
			ExitCode: statuses[i], Duration: durations[i],
		})
		if statuses[i] != isolation.StatusOK {
			if crash == nil {
				crash = &WorkerCrash{Kind: entity.SinkKind, Index: base.Index, ID: base.ID, PID: w.PID(), ExitCode: statuses[i]}
			}
			logger.Error("🔥 Sink worker crashed.", "sink", base.ID, "pid", w.PID(), "status", statuses[i])
			continue
		}
		p.observe(entity.SinkKind, base.ID, durations[i])
		logger.Info("✅ Finished sink.", "sink", base.ID, "pid", w.PID(), "duration", durations[i])
	}
	return crash
}
