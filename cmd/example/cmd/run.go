package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/psantana5/example/internal/example"
	"github.com/psantana5/example/pkg/logging"
	"github.com/psantana5/example/pkg/metrics"
	"github.com/psantana5/example/pkg/shutdown"
	"github.com/psantana5/example/pkg/tracing"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the example (same as running without a subcommand)",
	Args:  cobra.NoArgs,
	RunE:  runExample,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// session holds the collaborators built for one invocation
type session struct {
	logger  *logging.Logger
	hooks   *shutdown.Manager
	metrics *metrics.Collector
	tracer  *tracing.Provider
}

func runExample(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := newSession(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	exitHooks = s.hooks

	runner := example.NewRunner(s.logger, s.hooks,
		example.WithRecorder(s.metrics),
		example.WithTracer(s.tracer.Tracer()),
	)
	runner.Main(cmd.Context())
	return nil
}

// newSession builds the logger, exit hooks, metrics and tracer from cfg.
// Cleanups are deferred on the returned hooks so they run after every exit
// hook, with the log sink closed last.
func newSession(cfg Config, out io.Writer) (*session, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	var jsonFormat bool
	switch cfg.Log.Format {
	case "text", "":
	case "json":
		jsonFormat = true
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", cfg.Log.Format)
	}

	var base *logging.Logger
	if cfg.Log.File != "" {
		base, err = logging.NewFileLogger(cfg.Log.File, level, jsonFormat, out)
		if err != nil {
			return nil, err
		}
	} else {
		base = logging.NewLogger(level, jsonFormat)
		base.SetOutput(out)
	}

	logger := base.WithField("run_id", uuid.NewString())

	tracer, err := tracing.InitTracer(tracing.Config{
		ServiceName:    "example",
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		base.Close()
		return nil, err
	}

	timeout := cfg.Shutdown.Timeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	hooks := shutdown.New(timeout, logger)
	hooks.Defer("log file", shutdown.CloseResource(base, "log file"))
	hooks.Defer("tracer", tracer.Shutdown)

	collector := metrics.NewCollector()
	if path := cfg.Metrics.Textfile; path != "" {
		hooks.Defer("metrics textfile", func(ctx context.Context) error {
			return collector.WriteTextfile(path)
		})
	}

	return &session{
		logger:  logger,
		hooks:   hooks,
		metrics: collector,
		tracer:  tracer,
	}, nil
}
