package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/histfill/internal/pipeline"
	"github.com/ajitpratap0/histfill/pkg/config"
	"github.com/ajitpratap0/histfill/pkg/errors"
	"github.com/ajitpratap0/histfill/pkg/events"
	"github.com/ajitpratap0/histfill/pkg/histogram"
	"github.com/ajitpratap0/histfill/pkg/logger"
	"github.com/ajitpratap0/histfill/pkg/metrics"
	"github.com/ajitpratap0/histfill/pkg/objstore"
	"github.com/ajitpratap0/histfill/pkg/observability"
	"github.com/ajitpratap0/histfill/pkg/output"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fill the histograms of an analysis",
		Long: `Fill every histogram booked in an analysis configuration from its input
files and write the results.

Example:
  histfill run --config zmumu.yaml --output results/zmumu.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if d := v.GetDuration("timeout"); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			return runAnalysis(ctx, cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringP("output", "o", "", "Result location; overrides output.path")
	flags.Bool("trace", false, "Export OpenTelemetry spans to stderr")
	flags.String("push-gateway", "", "Push metrics to this Prometheus Pushgateway when done")
	flags.Duration("timeout", 0, "Abort the run after this duration")
	for _, name := range []string{"output", "trace", "push-gateway", "timeout"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
	return cmd
}

// loadConfig reads the analysis named by the config flag and applies flag
// and environment overrides
func loadConfig(v *viper.Viper) (*config.AnalysisConfig, error) {
	path := v.GetString("config")
	if path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "--config is required")
	}
	cfg, err := config.LoadAnalysis(path)
	if err != nil {
		return nil, err
	}

	if l := v.GetString("log-level"); l != "" {
		cfg.Log.Level = l
	}
	if e := v.GetString("log-encoding"); e != "" {
		cfg.Log.Encoding = e
	}
	if o := v.GetString("output"); o != "" {
		cfg.Output.Path = o
	}
	if v.GetBool("trace") {
		cfg.Tracing.Enabled = true
	}
	if g := v.GetString("push-gateway"); g != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.PushGateway = g
	}

	if err := logger.Init(cfg.Log); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid log configuration")
	}
	return cfg, nil
}

func runAnalysis(ctx context.Context, cmd *cobra.Command, cfg *config.AnalysisConfig) error {
	ctx = logger.ContextWithRunID(ctx, logger.NewRunID())
	log := logger.WithContext(ctx).With(
		zap.String("component", "histfill-cli"),
		zap.String("analysis", cfg.Name),
	)
	defer func() { _ = logger.Sync() }()

	tracing, err := observability.New(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	store := objstore.New(cfg.ObjectStore, log)
	defer store.Close()

	col, err := histogram.BuildCollection(cfg, log)
	if err != nil {
		return err
	}
	if err := col.MakeHists(cfg.Channels); err != nil {
		return err
	}

	rdr, err := events.Open(ctx, cfg.Input, events.WithStore(store), events.WithLogger(log))
	if err != nil {
		return err
	}
	defer rdr.Release()

	mc := metrics.NewCollector(cfg.Name)
	runner := pipeline.NewRunner(col, pipeline.ConfigFrom(cfg),
		pipeline.WithLogger(log),
		pipeline.WithMetrics(mc),
		pipeline.WithTracer(tracing.Tracer()),
	)
	stats, err := runner.Run(ctx, rdr)
	if err != nil {
		return err
	}

	ft := observability.NewFillTracer(tracing.Tracer(), cfg.Name)
	wctx, span := ft.StartWrite(ctx, cfg.Output.Format)
	uris, err := output.Write(wctx, store, cfg.Output, cfg.Name, col, output.WithLogger(log))
	if err != nil {
		span.RecordError(err)
		span.End()
		return err
	}
	span.SetAttribute("uris", uris)
	span.End()

	if cfg.Metrics.Enabled && cfg.Metrics.PushGateway != "" {
		if err := mc.Push(ctx, cfg.Metrics.PushGateway, cfg.Metrics.Job); err != nil {
			log.Warn("failed to push metrics", zap.Error(err))
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "filled %d histograms from %d events in %d batches (%s, %.0f events/s)\n",
		col.Len(), stats.Events, stats.Batches, stats.Duration.Round(time.Millisecond), stats.EventsPerSecond())
	for _, uri := range uris {
		fmt.Fprintf(out, "wrote %s\n", uri)
	}
	return nil
}
