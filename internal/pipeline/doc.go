// Package pipeline orchestrates one full data-collection run: sources run in
// parallel isolated workers and are merged in declaration order, aggregators
// transform the merged data serially, sinks consume one shared snapshot in
// parallel isolated workers, and the outcome is persisted as a journal.
package pipeline
