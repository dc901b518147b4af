// Package print provides the "print" sink, which writes the collected data
// as indented JSON to stdout or to a file.
package print

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bytedance/sonic"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// PrintSink renders the snapshot it is given.
type PrintSink struct {
	entity.Base
	path   string
	append bool
	stdout io.Writer
}

// New builds a PrintSink. Options: path, append.
func New(base entity.Base) (entity.Entity, error) {
	path, err := base.Config.String("path", "")
	if err != nil {
		return nil, err
	}
	appendMode, err := base.Config.Bool("append", false)
	if err != nil {
		return nil, err
	}
	return &PrintSink{Base: base, path: path, append: appendMode}, nil
}

// Consume implements entity.Sink.
func (s *PrintSink) Consume(ctx context.Context, data *datamap.Map) error {
	logger := ctxlog.FromContext(ctx).With("sink", s.ID)

	out, err := sonic.ConfigStd.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render data: %w", err)
	}
	out = append(out, '\n')

	if s.path == "" {
		w := s.stdout
		if w == nil {
			w = os.Stdout
		}
		logger.Debug("Printing data", "keys", data.Len())
		_, err = w.Write(out)
		return err
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if s.append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(s.path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open output file '%s': %w", s.path, err)
	}
	if _, err := f.Write(out); err != nil {
		f.Close()
		return fmt.Errorf("failed to write output file '%s': %w", s.path, err)
	}
	logger.Debug("Wrote data to file", "path", s.path, "bytes", len(out))
	return f.Close()
}

// Register registers the sink with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterSink("print", New)
}
