// Package docloader loads pipeline definitions written as JSON, TOML or YAML
// documents. All three formats share one document structure:
//
//	name = "example"
//
//	[schedule]
//	frequency = "10s"
//	samples = 3
//
//	[[sources]]
//	type = "timestamp"
//	id = "ts"
//	config = { epoch = true }
package docloader

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"github.com/vk/flowgrid/internal/config"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/entity"
)

// Format identifies a document syntax.
type Format string

const (
	JSON Format = "json"
	TOML Format = "toml"
	YAML Format = "yaml"
)

// jsonAPI keeps integral JSON numbers as int64 instead of float64.
var jsonAPI = sonic.Config{UseInt64: true}.Froze()

type document struct {
	Name        string       `json:"name" toml:"name" yaml:"name"`
	Schedule    *scheduleDoc `json:"schedule" toml:"schedule" yaml:"schedule"`
	Sources     []entityDoc  `json:"sources" toml:"sources" yaml:"sources"`
	Aggregators []entityDoc  `json:"aggregators" toml:"aggregators" yaml:"aggregators"`
	Sinks       []entityDoc  `json:"sinks" toml:"sinks" yaml:"sinks"`
}

type scheduleDoc struct {
	Frequency string `json:"frequency" toml:"frequency" yaml:"frequency"`
	Samples   int    `json:"samples" toml:"samples" yaml:"samples"`
	Start     string `json:"start" toml:"start" yaml:"start"`
}

type entityDoc struct {
	Type   string         `json:"type" toml:"type" yaml:"type"`
	ID     string         `json:"id" toml:"id" yaml:"id"`
	Config map[string]any `json:"config" toml:"config" yaml:"config"`
}

// Loader implements config.Loader for a single document format.
type Loader struct {
	format Format
}

// NewLoader returns a loader for format.
func NewLoader(format Format) *Loader {
	return &Loader{format: format}
}

// FormatFor maps a file extension to its document format.
func FormatFor(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, true
	case ".toml":
		return TOML, true
	case ".yaml", ".yml":
		return YAML, true
	default:
		return "", false
	}
}

// Load reads and decodes the document at path.
func (l *Loader) Load(ctx context.Context, path string) (*config.Definition, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Document loader started.", "path", path, "format", l.format)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition %s: %w", path, err)
	}
	def, err := l.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s definition %s: %w", l.format, path, err)
	}
	logger.Debug("Document loading complete.", "sources", len(def.Sources), "aggregators", len(def.Aggregators), "sinks", len(def.Sinks))
	return def, nil
}

// Decode parses raw document bytes into a validated definition.
func (l *Loader) Decode(raw []byte) (*config.Definition, error) {
	var doc document
	var err error
	switch l.format {
	case JSON:
		err = jsonAPI.Unmarshal(raw, &doc)
	case TOML:
		err = toml.Unmarshal(raw, &doc)
	case YAML:
		err = yaml.Unmarshal(raw, &doc)
	default:
		return nil, fmt.Errorf("unsupported document format %q", l.format)
	}
	if err != nil {
		return nil, err
	}

	def := &config.Definition{Name: doc.Name}
	if doc.Schedule != nil {
		def.Schedule, err = config.ParseSchedule(doc.Schedule.Frequency, doc.Schedule.Samples, doc.Schedule.Start)
		if err != nil {
			return nil, err
		}
	}
	for kind, entries := range map[entity.Kind][]entityDoc{
		entity.SourceKind:     doc.Sources,
		entity.AggregatorKind: doc.Aggregators,
		entity.SinkKind:       doc.Sinks,
	} {
		for _, e := range entries {
			cfg, _ := normalize(e.Config).(map[string]any)
			if cfg == nil {
				cfg = map[string]any{}
			}
			def.Append(kind, &config.Entity{Type: e.Type, ID: e.ID, Config: cfg})
		}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// normalize rewrites decoder-specific shapes into the value set every
// loader produces: map[string]any, []any, int64, float64, string and bool.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return normalizeUint(uint64(t))
	case uint32:
		return int64(t)
	case uint64:
		return normalizeUint(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

func normalizeUint(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return float64(u)
}
