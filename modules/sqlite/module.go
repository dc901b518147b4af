// Package sqlite provides the "sqlite" sink, which appends every run's data
// as a JSON row to a SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

const defaultTable = "flowgrid_runs"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteSink opens the database on every run; a sink lives for one run only
// when it is isolated in a worker process.
type SQLiteSink struct {
	entity.Base
	path  string
	table string
}

// New builds a SQLiteSink. Options: path (required), table.
func New(base entity.Base) (entity.Entity, error) {
	path, err := base.Config.String("path", "")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.New("sqlite sink requires 'path'")
	}
	table, err := base.Config.String("table", defaultTable)
	if err != nil {
		return nil, err
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SQLiteSink{Base: base, path: path, table: table}, nil
}

// Consume implements entity.Sink.
func (s *SQLiteSink) Consume(ctx context.Context, data *datamap.Map) error {
	logger := ctxlog.FromContext(ctx).With("sink", s.ID, "path", s.path, "table", s.table)

	raw, err := data.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	create := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		data TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`, s.table)
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (data, created_at) VALUES (?, ?)`, s.table)
	if _, err := db.ExecContext(ctx, insert, string(raw), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to insert row: %w", err)
	}
	logger.Debug("Stored data row", "bytes", len(raw))
	return nil
}

// Register registers the sink with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterSink("sqlite", New)
}
