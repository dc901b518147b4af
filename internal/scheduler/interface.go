package scheduler

import (
	"context"
	"time"
)

// Runner is the unit of work fired on every tick.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// Clock abstracts time so that tests can drive the scheduler without
// sleeping.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// Observer is notified about run outcomes.
type Observer interface {
	RunFinished(name string, err error, duration time.Duration)
	RunMissed(name string)
}

// State is the lifecycle state of a Scheduler.
type State int

const (
	Idle State = iota
	Waiting
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stats is a point-in-time copy of the scheduler counters.
type Stats struct {
	Name          string    `json:"name"`
	State         State     `json:"state"`
	Passed        int       `json:"passed"`
	Failed        int       `json:"failed"`
	Missed        int       `json:"missed"`
	LastScheduled time.Time `json:"last_scheduled"`
	Frequency     string    `json:"frequency"`
	Samples       int       `json:"samples"`
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
