package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vk/flowgrid/internal/ctxlog"
)

// ScheduleConfigError reports a schedule that cannot be started.
type ScheduleConfigError struct {
	Reason string
}

func (e *ScheduleConfigError) Error() string {
	return "invalid schedule: " + e.Reason
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSamples stops the scheduler after n passed runs. Zero means no cap.
func WithSamples(n int) Option {
	return func(s *Scheduler) { s.samples = n }
}

// WithStart delays the first tick until t, which must be in the future when
// Run is called.
func WithStart(t time.Time) Option {
	return func(s *Scheduler) { s.start = &t }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithObserver registers an observer for run outcomes.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, o) }
}

// Scheduler fires a Runner on a fixed frequency. Its counters are only
// mutated by its own loop; Stats may be read concurrently.
type Scheduler struct {
	runner    Runner
	frequency time.Duration
	samples   int
	start     *time.Time
	clock     Clock
	observers []Observer

	queue timerQueue

	mu            sync.Mutex
	state         State
	passed        int
	failed        int
	missed        int
	lastScheduled time.Time
}

// New creates an idle scheduler for runner.
func New(runner Runner, frequency time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:    runner,
		frequency: frequency,
		clock:     realClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Name:          s.runner.Name(),
		State:         s.state,
		Passed:        s.passed,
		Failed:        s.failed,
		Missed:        s.missed,
		LastScheduled: s.lastScheduled,
		Frequency:     s.frequency.String(),
		Samples:       s.samples,
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run arms the first tick and drives the event loop until the scheduler
// stops, returning nil. If ctx is cancelled while waiting for a tick, Run
// returns ctx.Err(). Configuration problems are reported before any tick is
// armed.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("pipeline", s.runner.Name())

	if s.State() != Idle {
		return errors.New("scheduler already started")
	}
	if s.frequency <= 0 {
		return &ScheduleConfigError{Reason: fmt.Sprintf("frequency must be positive, got %s", s.frequency)}
	}
	if s.samples < 0 {
		return &ScheduleConfigError{Reason: fmt.Sprintf("samples cannot be negative, got %d", s.samples)}
	}

	now := s.clock.Now()
	first := now
	if s.start != nil {
		if !s.start.After(now) {
			return &ScheduleConfigError{Reason: fmt.Sprintf("start time %s is not in the future", s.start.Format(time.RFC3339))}
		}
		first = *s.start
	}
	s.arm(ctx, first)

	for {
		next, ok := s.queue.pop()
		if !ok {
			s.setState(Stopped)
			st := s.Stats()
			logger.Info("🏁 Scheduler stopped.", "passed", st.Passed, "failed", st.Failed, "missed", st.Missed)
			return nil
		}
		if wait := next.at.Sub(s.clock.Now()); wait > 0 {
			if err := s.clock.Sleep(ctx, wait); err != nil {
				logger.Info("Scheduler interrupted while waiting.", "reason", err)
				return err
			}
		}
		s.tick(ctx, next.at)
	}
}

// arm queues a tick at t.
func (s *Scheduler) arm(ctx context.Context, t time.Time) {
	s.queue.push(t)
	s.setState(Waiting)
	ctxlog.FromContext(ctx).Debug("⏰ Tick armed.", "pipeline", s.runner.Name(), "at", t)
}

// tick executes one run and always schedules what comes next.
func (s *Scheduler) tick(ctx context.Context, scheduled time.Time) {
	logger := ctxlog.FromContext(ctx).With("pipeline", s.runner.Name())

	s.mu.Lock()
	s.lastScheduled = scheduled
	s.state = Running
	s.mu.Unlock()

	defer s.next(ctx)

	started := s.clock.Now()
	err := s.invoke(ctx)
	elapsed := s.clock.Now().Sub(started)

	s.mu.Lock()
	if err != nil {
		s.failed++
	} else {
		s.passed++
	}
	s.mu.Unlock()

	if err != nil {
		logger.Error("❌ Scheduled run failed.", "error", err, "duration", elapsed)
	} else {
		logger.Info("✅ Scheduled run passed.", "duration", elapsed)
	}
	for _, o := range s.observers {
		o.RunFinished(s.runner.Name(), err, elapsed)
	}
}

// invoke runs the pipeline and turns a panic into a failed run.
func (s *Scheduler) invoke(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	return s.runner.Run(ctx)
}

// next stops the scheduler once the sample cap is met, otherwise arms the
// next tick at the drift-free anchor or, when that already passed, now.
func (s *Scheduler) next(ctx context.Context) {
	logger := ctxlog.FromContext(ctx).With("pipeline", s.runner.Name())

	s.mu.Lock()
	if s.samples > 0 && s.passed >= s.samples {
		s.state = Stopped
		s.mu.Unlock()
		logger.Debug("Sample cap reached.", "samples", s.samples)
		return
	}
	anchor := s.lastScheduled.Add(s.frequency)
	now := s.clock.Now()
	missed := !anchor.After(now)
	if missed {
		s.missed++
	}
	s.mu.Unlock()

	if missed {
		logger.Warn("⏰ Tick missed, catching up immediately.", "anchor", anchor, "late_by", now.Sub(anchor))
		for _, o := range s.observers {
			o.RunMissed(s.runner.Name())
		}
		s.arm(ctx, now)
		return
	}
	s.arm(ctx, anchor)
}
