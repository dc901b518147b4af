// Package entity defines the three capability roles a pipeline is built from:
// sources produce data, aggregators transform the shared data in place, and
// sinks consume a read-only snapshot of it.
package entity

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vk/flowgrid/internal/datamap"
)

// Kind identifies the stage an entity belongs to.
type Kind string

const (
	SourceKind     Kind = "source"
	AggregatorKind Kind = "aggregator"
	SinkKind       Kind = "sink"
)

// Kinds lists every stage kind in execution order.
var Kinds = []Kind{SourceKind, AggregatorKind, SinkKind}

// Plural returns the stage name used in definitions and journals.
func (k Kind) Plural() string {
	return string(k) + "s"
}

// Base holds the attributes every entity is constructed with. Index and ID
// are used for logging and journal correlation only.
type Base struct {
	Index  int
	Type   string
	ID     string
	Config Config
}

// Identity returns the entity's Base. Embedding Base satisfies Entity.
func (b Base) Identity() Base {
	return b
}

// Entity is implemented by every concrete source, aggregator and sink.
type Entity interface {
	Identity() Base
}

// Source produces a data mapping once per run, with no input.
type Source interface {
	Entity
	Produce(ctx context.Context) (*datamap.Map, error)
}

// Aggregator reads and mutates the shared data mapping in place.
type Aggregator interface {
	Entity
	Accumulate(ctx context.Context, data *datamap.Map) error
}

// Sink consumes the final data mapping and returns nothing but an error.
type Sink interface {
	Entity
	Consume(ctx context.Context, data *datamap.Map) error
}

// DisplayName returns the human-readable name recorded in journals: the
// entity's String method when it has one, its concrete type name otherwise.
func DisplayName(e Entity) string {
	if s, ok := e.(fmt.Stringer); ok {
		return s.String()
	}
	t := reflect.TypeOf(e)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// Label renders the base as "#index type:id" for log lines.
func (b Base) Label() string {
	return fmt.Sprintf("#%d %s:%s", b.Index, b.Type, b.ID)
}
