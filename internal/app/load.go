package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/flowgrid/internal/config"
	"github.com/vk/flowgrid/internal/docloader"
	"github.com/vk/flowgrid/internal/hcl"
)

// loaderFor picks the definition format from the path: a directory or a
// .hcl file is HCL, everything else is decided by its extension.
func loaderFor(path string) (config.Loader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access pipeline definition: %w", err)
	}
	if info.IsDir() || strings.EqualFold(filepath.Ext(path), ".hcl") {
		return hcl.NewLoader(), nil
	}
	if format, ok := docloader.FormatFor(path); ok {
		return docloader.NewLoader(format), nil
	}
	return nil, fmt.Errorf("unsupported pipeline definition %q: expected .hcl, .json, .toml, .yaml or .yml", path)
}

// loadDefinition reads and validates the pipeline definition at path.
func loadDefinition(ctx context.Context, path string) (*config.Definition, error) {
	loader, err := loaderFor(path)
	if err != nil {
		return nil, err
	}
	def, err := loader.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline definition: %w", err)
	}
	return def, nil
}
