// Package registry provides the central "glue" for the entity system.
//
// The Registry maps the type names used in pipeline definitions (e.g.,
// "timestamp") to the compiled Go factories that construct the concrete
// source, aggregator and sink implementations. It is populated once at
// process start by each Module and is read-only afterwards, which makes it
// safe to rebuild identical entities inside isolated worker processes.
package registry
