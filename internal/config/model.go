package config

import (
	"fmt"
	"time"

	"github.com/vk/flowgrid/internal/entity"
)

// Definition is the unified representation of one pipeline definition file.
type Definition struct {
	Name        string
	Schedule    *Schedule
	Sources     []*Entity
	Aggregators []*Entity
	Sinks       []*Entity
}

// Entity is one declared source, aggregator or sink.
type Entity struct {
	Type   string
	ID     string
	Config map[string]any
}

// Schedule holds the optional recurring-run settings of a definition.
// Samples of zero means unlimited.
type Schedule struct {
	Frequency time.Duration
	Samples   int
	Start     *time.Time
}

// Stage returns the declared entities of kind.
func (d *Definition) Stage(kind entity.Kind) []*Entity {
	switch kind {
	case entity.SourceKind:
		return d.Sources
	case entity.AggregatorKind:
		return d.Aggregators
	case entity.SinkKind:
		return d.Sinks
	default:
		return nil
	}
}

// Append adds a declared entity to the stage of kind.
func (d *Definition) Append(kind entity.Kind, e *Entity) {
	switch kind {
	case entity.SourceKind:
		d.Sources = append(d.Sources, e)
	case entity.AggregatorKind:
		d.Aggregators = append(d.Aggregators, e)
	case entity.SinkKind:
		d.Sinks = append(d.Sinks, e)
	}
}

// Validate performs the structural checks shared by every loader: every
// entity has a type and an id.
func (d *Definition) Validate() error {
	for _, kind := range entity.Kinds {
		for i, e := range d.Stage(kind) {
			if e.Type == "" {
				return fmt.Errorf("%s #%d: missing type", kind, i)
			}
			if e.ID == "" {
				return fmt.Errorf("%s #%d (%s): missing id", kind, i, e.Type)
			}
		}
	}
	if d.Schedule != nil {
		if d.Schedule.Frequency <= 0 {
			return fmt.Errorf("schedule: frequency must be positive, got %s", d.Schedule.Frequency)
		}
		if d.Schedule.Samples < 0 {
			return fmt.Errorf("schedule: samples cannot be negative, got %d", d.Schedule.Samples)
		}
	}
	return nil
}

// ParseSchedule builds a Schedule from its textual parts. An empty start
// means "run immediately".
func ParseSchedule(frequency string, samples int, start string) (*Schedule, error) {
	freq, err := time.ParseDuration(frequency)
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid frequency %q: %w", frequency, err)
	}
	s := &Schedule{Frequency: freq, Samples: samples}
	if start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return nil, fmt.Errorf("schedule: invalid start %q: %w", start, err)
		}
		s.Start = &t
	}
	return s, nil
}
