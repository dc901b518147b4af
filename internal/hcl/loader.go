package hcl

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/flowgrid/internal/config"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL definition loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses a single .hcl file, or every .hcl file below a directory, and
// merges them into one definition. Stage entities keep file order, then
// block order.
func (l *Loader) Load(ctx context.Context, path string) (*config.Definition, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	files, err := fsutil.FindFiles(path, ".hcl")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %s", path)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	def := &config.Definition{}
	parser := hclparse.NewParser()
	evalCtx := newEvalContext()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		if err := l.mergeFile(def, &root); err != nil {
			return nil, fmt.Errorf("in %s: %w", file, err)
		}

		for kind, blocks := range map[entity.Kind][]*entityBlock{
			entity.SourceKind:     root.Sources,
			entity.AggregatorKind: root.Aggregators,
			entity.SinkKind:       root.Sinks,
		} {
			for _, block := range blocks {
				options, err := bodyOptions(block.Remain, evalCtx)
				if err != nil {
					return nil, fmt.Errorf("in %s, %s \"%s\" \"%s\": %w", file, kind, block.Type, block.ID, err)
				}
				def.Append(kind, &config.Entity{Type: block.Type, ID: block.ID, Config: options})
			}
		}
		logger.Debug("Successfully loaded definitions from HCL file", "file", file)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("HCL loading complete.", "sources", len(def.Sources), "aggregators", len(def.Aggregators), "sinks", len(def.Sinks))
	return def, nil
}

// mergeFile applies the singleton blocks of one file. A pipeline or schedule
// block may appear in only one file of a multi-file definition.
func (l *Loader) mergeFile(def *config.Definition, root *fileRoot) error {
	if root.Pipeline != nil {
		if def.Name != "" {
			return errors.New("duplicate pipeline block")
		}
		def.Name = root.Pipeline.Name
	}
	if root.Schedule != nil {
		if def.Schedule != nil {
			return errors.New("duplicate schedule block")
		}
		samples := 0
		if root.Schedule.Samples != nil {
			samples = *root.Schedule.Samples
		}
		start := ""
		if root.Schedule.Start != nil {
			start = *root.Schedule.Start
		}
		schedule, err := config.ParseSchedule(root.Schedule.Frequency, samples, start)
		if err != nil {
			return err
		}
		def.Schedule = schedule
	}
	return nil
}
