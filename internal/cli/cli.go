package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/vk/flowgrid/internal/app"
)

// EnvPrefix is the prefix of the environment variables that provide
// defaults for the flags, e.g. FLOWGRID_LOG_LEVEL.
const EnvPrefix = "FLOWGRID"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// envDefaults are read from the environment before the flags are parsed.
type envDefaults struct {
	Pipeline   string `envconfig:"PIPELINE"`
	Name       string `envconfig:"NAME"`
	JournalDir string `envconfig:"JOURNAL_DIR"`
	Isolation  string `envconfig:"ISOLATION" default:"process"`
	StatusPort int    `envconfig:"STATUS_PORT" default:"0"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"text"`
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")

	var env envDefaults
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("invalid environment: %v", err)}
	}

	flagSet := flag.NewFlagSet("flowgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
flowgrid - Collect data from sources, aggregate it and deliver it to sinks.

Usage:
  flowgrid [options] [PIPELINE_PATH]

Arguments:
  PIPELINE_PATH
    Path to a .hcl, .json, .toml, .yaml or .yml pipeline definition,
    or a directory containing .hcl files.

Every option can also be set through a FLOWGRID_<NAME> environment
variable, e.g. FLOWGRID_LOG_LEVEL=debug.

Options:
`)
		flagSet.PrintDefaults()
	}

	pipelineFlag := flagSet.String("pipeline", env.Pipeline, "Path to the pipeline definition file or directory.")
	pFlag := flagSet.String("p", "", "Path to the pipeline definition file or directory (shorthand).")
	nameFlag := flagSet.String("name", env.Name, "Pipeline name used in logs, journals and metrics.")
	frequencyFlag := flagSet.Duration("frequency", 0, "Run the pipeline repeatedly at this interval, e.g. '30s'.")
	samplesFlag := flagSet.Int("samples", 0, "Stop after this many passing runs. 0 is unlimited.")
	startFlag := flagSet.String("start", "", "RFC 3339 time of the first scheduled run.")
	journalDirFlag := flagSet.String("journal-dir", env.JournalDir, "Directory for run journals. Defaults to a private temp directory.")
	isolationFlag := flagSet.String("isolation", env.Isolation, "Worker isolation. Options: 'process' or 'goroutine'.")
	statusPortFlag := flagSet.Int("status-port", env.StatusPort, "Port for the HTTP status server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", env.LogFormat, "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", env.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Load and validate the pipeline without running it.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *pipelineFlag != "" {
		path = *pipelineFlag
	} else if *pFlag != "" {
		path = *pFlag
	}
	if flagSet.NArg() > 0 && (path == "" || path == env.Pipeline) {
		path = flagSet.Arg(0)
	}
	slog.Debug("Pipeline path determined.", "path", path)

	if path == "" {
		slog.Debug("No pipeline path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	cfg := app.Config{
		PipelinePath: path,
		Name:         *nameFlag,
		Frequency:    *frequencyFlag,
		JournalDir:   *journalDirFlag,
		Isolation:    strings.ToLower(*isolationFlag),
		StatusPort:   *statusPortFlag,
		LogFormat:    logFormat,
		LogLevel:     logLevel,
		DryRun:       *dryRunFlag,
	}
	flagSet.Visit(func(f *flag.Flag) {
		if f.Name == "samples" {
			samples := *samplesFlag
			cfg.Samples = &samples
		}
	})
	if *startFlag != "" {
		start, err := time.Parse(time.RFC3339, *startFlag)
		if err != nil {
			return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("invalid start: %v", err)}
		}
		cfg.Start = &start
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
