// Package archive provides the "archive" sink, which stores the collected
// data as a compressed JSON file.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Supported compression codecs.
const (
	Gzip = "gzip"
	Zstd = "zstd"
	None = "none"
)

// ArchiveSink writes one file per run. The file is replaced atomically.
type ArchiveSink struct {
	entity.Base
	output   string
	compress string
	override bool
}

// New builds an ArchiveSink. Options: output (required), compress
// (gzip, zstd or none; default gzip), override.
func New(base entity.Base) (entity.Entity, error) {
	output, err := base.Config.String("output", "")
	if err != nil {
		return nil, err
	}
	if output == "" {
		return nil, errors.New("archive sink requires 'output'")
	}
	compress, err := base.Config.String("compress", Gzip)
	if err != nil {
		return nil, err
	}
	switch compress {
	case Gzip, Zstd, None:
	default:
		return nil, fmt.Errorf("unsupported compression %q", compress)
	}
	override, err := base.Config.Bool("override", false)
	if err != nil {
		return nil, err
	}
	return &ArchiveSink{Base: base, output: output, compress: compress, override: override}, nil
}

// Consume implements entity.Sink.
func (s *ArchiveSink) Consume(ctx context.Context, data *datamap.Map) error {
	logger := ctxlog.FromContext(ctx).With("sink", s.ID, "output", s.output)

	if !s.override {
		if _, err := os.Stat(s.output); err == nil {
			return fmt.Errorf("output file '%s' already exists", s.output)
		}
	}
	raw, err := data.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.output), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.output), ".archive-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := s.write(tmp, raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.output); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	logger.Debug("Archived data", "compress", s.compress, "bytes", len(raw))
	return nil
}

func (s *ArchiveSink) write(w io.Writer, raw []byte) error {
	var enc io.WriteCloser
	switch s.compress {
	case Gzip:
		enc = gzip.NewWriter(w)
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		enc = zw
	default:
		_, err := w.Write(raw)
		return err
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Register registers the sink with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterSink("archive", New)
}
