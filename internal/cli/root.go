// Package cli wires configuration, adapters, and the pipeline into the etl
// command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	kafkaadapter "github.com/couchcryptid/brewery-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/brewery-data-etl/internal/adapter/openbrewery"
	"github.com/couchcryptid/brewery-data-etl/internal/adapter/parquet"
	"github.com/couchcryptid/brewery-data-etl/internal/adapter/rawstore"
	"github.com/couchcryptid/brewery-data-etl/internal/config"
	"github.com/couchcryptid/brewery-data-etl/internal/observability"
	"github.com/couchcryptid/brewery-data-etl/internal/pipeline"
)

var (
	version = "dev"
	commit  = "none"
)

// processMetrics registers the pipeline metrics with the default registry
// once, however many commands run in the process.
var processMetrics = sync.OnceValue(observability.NewMetrics)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(&app{})
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// stageFlags are the per-stage path and URL options. Names match the
// historical DAG parameters.
type stageFlags struct {
	apiURL      string
	rawPath     string
	rawFileName string
	silverPath  string
	goldPath    string
}

func (f *stageFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.apiURL, "url_api", "", "Brewery API endpoint (env API_URL)")
	flags.StringVar(&f.rawPath, "raw_final_path", "", "Directory for the raw layer (env RAW_PATH)")
	flags.StringVar(&f.rawFileName, "raw_file_name", "", "Raw file base name, without .json (env RAW_FILE_NAME)")
	flags.StringVar(&f.silverPath, "silver_path", "", "Directory for the silver layer (env SILVER_PATH)")
	flags.StringVar(&f.goldPath, "gold_path", "", "Directory for the gold layer (env GOLD_PATH)")
}

// apply overrides cfg with every flag set on the command line.
// Precedence: flag > env > default.
func (f *stageFlags) apply(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("url_api") {
		cfg.APIURL = f.apiURL
	}
	if flags.Changed("raw_final_path") {
		cfg.RawPath = f.rawPath
	}
	if flags.Changed("raw_file_name") {
		cfg.RawFileName = f.rawFileName
	}
	if flags.Changed("silver_path") {
		cfg.SilverPath = f.silverPath
	}
	if flags.Changed("gold_path") {
		cfg.GoldPath = f.goldPath
	}
}

// app holds what every command resolves before it runs.
type app struct {
	flags   stageFlags
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.flags.apply(cmd.Flags(), cfg)

	a.cfg = cfg
	a.logger = sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	a.metrics = processMetrics()
	return nil
}

// newPipeline builds the pipeline and its adapters. The returned func
// releases them.
func (a *app) newPipeline() (*pipeline.Pipeline, func(), error) {
	tables, err := parquet.Open(a.logger)
	if err != nil {
		return nil, nil, err
	}
	closers := []io.Closer{tables}

	var opts []pipeline.Option
	if a.cfg.PublishEnabled() {
		writer := kafkaadapter.NewWriter(a.cfg, a.logger)
		closers = append(closers, writer)
		opts = append(opts, pipeline.WithPublisher(writer))
		a.logger.Info("gold publishing enabled", "topic", a.cfg.KafkaGoldTopic, "brokers", a.cfg.KafkaBrokers)
	}

	p := pipeline.New(
		a.cfg,
		openbrewery.NewClient(a.cfg.APIURL, a.cfg.HTTPTimeout, a.logger),
		rawstore.NewStore(a.logger),
		tables,
		a.logger,
		a.metrics,
		opts...,
	)

	cleanup := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				a.logger.Error("close error", "error", err)
			}
		}
	}
	return p, cleanup, nil
}

// pushMetrics sends this invocation's metrics to the Pushgateway, if one is
// configured. Failures are logged only.
func (a *app) pushMetrics(ctx context.Context, command string) {
	if a.cfg.PushgatewayURL == "" {
		return
	}
	if err := a.metrics.Push(ctx, a.cfg.PushgatewayURL, observability.DefaultJob, command); err != nil {
		a.logger.Warn("metrics push failed", "url", a.cfg.PushgatewayURL, "error", err)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "etl",
		Short:         "Brewery data ETL",
		Long:          "Fetches breweries from the Open Brewery DB API and builds the raw, silver, and gold layers.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	a.flags.register(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newStageCmd(a, pipeline.StageExtract, "Fetch breweries and write the raw layer"))
	rootCmd.AddCommand(newStageCmd(a, pipeline.StageTransform, "Clean the raw layer into the silver layer"))
	rootCmd.AddCommand(newStageCmd(a, pipeline.StageAggregate, "Count breweries per location and type into the gold layer"))
	rootCmd.AddCommand(newStageCmd(a, pipeline.StageValidate, "Check the gold layer against the silver layer"))
	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newScheduleCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
