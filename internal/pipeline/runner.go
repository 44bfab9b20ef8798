// Package pipeline drives histogram filling from a stream of record
// batches.
//
// A Runner pulls batches from an array.RecordReader one at a time and fills
// every histogram of a collection from each. Per-event weights come from the
// configured weight column. Inputs without a channel column can be labelled
// with a constant channel.
//
//	r := pipeline.NewRunner(col, pipeline.Config{
//	    Analysis:    "zmumu",
//	    WeightField: "genWeight",
//	}, pipeline.WithLogger(log))
//	stats, err := r.Run(ctx, reader)
//
// Filling is sequential. The context is checked between batches, so a
// cancelled run stops after the batch in flight.
package pipeline

import (
	"context"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/ajitpratap0/histfill/pkg/columnar"
	"github.com/ajitpratap0/histfill/pkg/config"
	"github.com/ajitpratap0/histfill/pkg/errors"
	"github.com/ajitpratap0/histfill/pkg/hist"
	"github.com/ajitpratap0/histfill/pkg/histogram"
	"github.com/ajitpratap0/histfill/pkg/logger"
	"github.com/ajitpratap0/histfill/pkg/metrics"
	"github.com/ajitpratap0/histfill/pkg/observability"
)

// Config holds the per-run settings of a Runner
type Config struct {
	Analysis    string
	Dataset     string
	WeightField string
	// Channel is attached as the ch column of batches that lack one
	Channel string
}

// ConfigFrom extracts the runner settings of an analysis
func ConfigFrom(cfg *config.AnalysisConfig) Config {
	return Config{
		Analysis:    cfg.Name,
		Dataset:     cfg.Input.Dataset,
		WeightField: cfg.Input.WeightField,
		Channel:     cfg.Input.Channel,
	}
}

// Stats summarises a run
type Stats struct {
	Batches    int           `json:"batches"`
	Events     int64         `json:"events"`
	Entries    int64         `json:"entries"`
	SumWeights float64       `json:"sum_weights"`
	Duration   time.Duration `json:"duration"`
	PeakRSS    uint64        `json:"peak_rss"`
}

// EventsPerSecond returns the mean throughput of the run
func (s Stats) EventsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Events) / s.Duration.Seconds()
}

// Runner fills a collection batch by batch
type Runner struct {
	col     *histogram.Collection
	cfg     Config
	mem     memory.Allocator
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  *observability.FillTracer
	rss     *rssMonitor

	stats   Stats
	lastSum float64
}

// Option configures a Runner
type Option func(*Runner)

// WithAllocator sets the allocator used for derived columns
func WithAllocator(mem memory.Allocator) Option {
	return func(r *Runner) {
		r.mem = mem
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithMetrics records Prometheus metrics through c
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runner) {
		r.metrics = c
	}
}

// WithTracer emits a span per run and per batch
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = observability.NewFillTracer(t, r.cfg.Analysis)
	}
}

// NewRunner creates a runner over a collection whose histograms are made
func NewRunner(col *histogram.Collection, cfg Config, opts ...Option) *Runner {
	r := &Runner{
		col: col,
		cfg: cfg,
		mem: memory.DefaultAllocator,
		rss: newRSSMonitor(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get()
	}
	r.logger = r.logger.With(zap.String("analysis", cfg.Analysis), zap.String("dataset", cfg.Dataset))
	if r.metrics == nil {
		r.metrics = metrics.NewCollector(cfg.Analysis)
	}
	if r.tracer == nil {
		r.tracer = observability.NewFillTracer(noop.NewTracerProvider().Tracer("histfill"), cfg.Analysis)
	}
	return r
}

// Stats returns the totals accumulated so far
func (r *Runner) Stats() Stats { return r.stats }

// Run fills the collection from every batch of rdr. It stops at the first
// failing batch or when ctx is cancelled, returning the totals so far.
func (r *Runner) Run(ctx context.Context, rdr array.RecordReader) (Stats, error) {
	start := time.Now()
	ctx, span := r.tracer.StartRun(ctx, r.cfg.Dataset)
	defer span.End()

	r.logger.Info("fill started", zap.Strings("histograms", r.col.Names()))

	err := r.loop(ctx, rdr)
	r.stats.Duration += time.Since(start)
	r.stats.PeakRSS = r.rss.sample()
	r.metrics.RecordRSS(r.stats.PeakRSS)

	span.SetAttribute("batches", r.stats.Batches)
	span.SetAttribute("events", r.stats.Events)
	span.SetAttribute("entries", r.stats.Entries)
	if err != nil {
		span.RecordError(err)
		r.logger.Error("fill failed", append([]zap.Field{
			zap.Int("batches", r.stats.Batches),
			zap.Int64("events", r.stats.Events),
		}, logger.ErrorFields(err)...)...)
		return r.stats, err
	}

	r.logger.Info("fill completed",
		zap.Int("batches", r.stats.Batches),
		zap.Int64("events", r.stats.Events),
		zap.Int64("entries", r.stats.Entries),
		zap.Float64("sum_weights", r.stats.SumWeights),
		zap.Duration("duration", r.stats.Duration),
		zap.Float64("events_per_second", r.metrics.Throughput()),
		zap.Uint64("peak_rss", r.stats.PeakRSS))
	return r.stats, nil
}

func (r *Runner) loop(ctx context.Context, rdr array.RecordReader) error {
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeState, "fill cancelled")
		}
		if !rdr.Next() {
			break
		}
		if err := r.FillBatch(ctx, rdr.Record()); err != nil {
			return err
		}
	}
	if err := rdr.Err(); err != nil {
		return errors.Wrap(err, "", "cannot read batch").WithDetail("batch", r.stats.Batches)
	}
	return nil
}

// FillBatch fills every histogram from one batch
func (r *Runner) FillBatch(ctx context.Context, rec arrow.Record) error {
	batch := r.stats.Batches
	_, span := r.tracer.StartBatch(ctx, batch, rec.NumRows())
	defer span.End()
	timer := metrics.NewTimer()

	err := r.fill(rec)
	if err != nil {
		err = errors.Wrap(err, "", "cannot fill batch").WithDetail("batch", batch)
		span.RecordError(err)
		r.metrics.RecordError(err)
		return err
	}

	r.metrics.RecordBatch(rec.NumRows(), r.lastSum, timer.Stop())
	r.stats.Batches++
	r.stats.Events += rec.NumRows()
	r.stats.SumWeights += r.lastSum
	if batch%100 == 0 {
		r.stats.PeakRSS = r.rss.sample()
		r.metrics.RecordRSS(r.stats.PeakRSS)
	}
	span.SetAttribute("sum_weights", r.lastSum)
	r.logger.Debug("batch filled",
		zap.Int("batch", batch),
		zap.Int64("rows", rec.NumRows()),
		zap.Duration("duration", span.Duration()))
	return nil
}

func (r *Runner) fill(rec arrow.Record) error {
	if r.cfg.Channel != "" {
		rec = columnar.WithConstant(r.mem, rec, histogram.ChannelField, r.cfg.Channel)
		defer rec.Release()
	}

	var weights arrow.Array
	r.lastSum = float64(rec.NumRows())
	if r.cfg.WeightField != "" {
		w, err := columnar.Column(rec, r.cfg.WeightField)
		if err != nil {
			return errors.Wrap(err, "", "cannot read event weights").WithDetail("field", r.cfg.WeightField)
		}
		defer w.Release()
		if w.Len() != int(rec.NumRows()) {
			return errors.New(errors.ErrorTypeShape, "weight column does not hold one value per event").
				WithDetail("weights", w.Len()).
				WithDetail("events", rec.NumRows())
		}
		sum, err := sumWeights(w)
		if err != nil {
			return err
		}
		weights = w
		r.lastSum = sum
	}

	before := make(map[string]int64, r.col.Len())
	for _, name := range r.col.Names() {
		h, _ := r.col.Get(name)
		if h.Made() {
			before[name] = h.Hist().Entries()
		}
	}

	err := r.col.Fill(rec, weights)
	for _, name := range r.col.Names() {
		h, _ := r.col.Get(name)
		if !h.Made() {
			continue
		}
		n := h.Hist().Entries() - before[name]
		r.stats.Entries += n
		r.metrics.RecordEntries(name, n)
	}
	return err
}

func sumWeights(arr arrow.Array) (float64, error) {
	v, err := columnar.Flatten(arr)
	if err != nil {
		return 0, err
	}
	var sum float64
	switch c := v.(type) {
	case hist.Float64s:
		for _, w := range c {
			sum += w
		}
	case hist.Int64s:
		for _, w := range c {
			sum += float64(w)
		}
	default:
		return 0, errors.Newf(errors.ErrorTypeData, "weight column of type %s is not numeric", arr.DataType())
	}
	return sum, nil
}
