// Package metrics exposes Prometheus metrics for histogram filling.
//
// Collectors are registered with the default registry through promauto and
// labelled by analysis name. A Collector binds the labels of one run:
//
//	c := metrics.NewCollector("zmumu")
//	timer := metrics.NewTimer()
//	err := col.Fill(batch, weights)
//	c.RecordBatch(batch.NumRows(), sumw, timer.Stop())
//
// Batch jobs have no scrape window, so results can be pushed to a
// Pushgateway once the run finishes with Push.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/ajitpratap0/histfill/pkg/errors"
)

var (
	// EntriesFilled counts histogram entries.
	// Labels: analysis, histogram
	EntriesFilled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "histfill_entries_filled_total",
			Help: "Total number of histogram entries filled",
		},
		[]string{"analysis", "histogram"},
	)

	// WeightSum accumulates event weights, which may be negative
	WeightSum = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "histfill_event_weight_sum",
			Help: "Sum of event weights filled",
		},
		[]string{"analysis"},
	)

	// FillLatency tracks the time to fill every histogram from one batch in
	// nanoseconds
	FillLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "histfill_fill_latency_nanoseconds",
			Help: "Batch fill latency in nanoseconds",
			Buckets: []float64{
				1e4, // 10μs
				1e5, // 100μs
				1e6, // 1ms
				1e7, // 10ms
				1e8, // 100ms
				1e9, // 1s
				1e10,
			},
		},
		[]string{"analysis"},
	)

	// BatchesProcessed counts record batches filled
	BatchesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "histfill_batches_processed_total",
			Help: "Total number of record batches filled",
		},
		[]string{"analysis"},
	)

	// EventsProcessed counts events filled
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "histfill_events_processed_total",
			Help: "Total number of events filled",
		},
		[]string{"analysis"},
	)

	// FillErrors counts failed batches by error type
	FillErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "histfill_fill_errors_total",
			Help: "Total number of failed batch fills",
		},
		[]string{"analysis", "type"},
	)

	// Throughput tracks events per second
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "histfill_throughput_events_per_second",
			Help: "Current throughput in events per second",
		},
		[]string{"analysis"},
	)

	// PeakRSS tracks the largest resident set size seen during a run
	PeakRSS = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "histfill_peak_rss_bytes",
			Help: "Peak resident set size in bytes",
		},
		[]string{"analysis"},
	)
)

// Collector records the metrics of one analysis run
type Collector struct {
	analysis   string
	startTime  time.Time
	throughput *ThroughputTracker

	mu      sync.Mutex
	peakRSS uint64
}

// NewCollector creates a collector labelled with the analysis name
func NewCollector(analysis string) *Collector {
	return &Collector{
		analysis:   analysis,
		startTime:  time.Now(),
		throughput: NewThroughputTracker(analysis),
	}
}

// Analysis returns the analysis label
func (c *Collector) Analysis() string { return c.analysis }

// StartTime returns when the collector was created
func (c *Collector) StartTime() time.Time { return c.startTime }

// RecordBatch records one filled batch
func (c *Collector) RecordBatch(events int64, weightSum float64, d time.Duration) {
	BatchesProcessed.WithLabelValues(c.analysis).Inc()
	EventsProcessed.WithLabelValues(c.analysis).Add(float64(events))
	WeightSum.WithLabelValues(c.analysis).Add(weightSum)
	FillLatency.WithLabelValues(c.analysis).Observe(float64(d.Nanoseconds()))
	c.throughput.Increment(events)
}

// RecordEntries records n new entries of a histogram
func (c *Collector) RecordEntries(histogram string, n int64) {
	if n <= 0 {
		return
	}
	EntriesFilled.WithLabelValues(c.analysis, histogram).Add(float64(n))
}

// RecordError records a failed batch labelled with its error type.
// Foreign errors count as internal.
func (c *Collector) RecordError(err error) {
	FillErrors.WithLabelValues(c.analysis, string(errors.TypeOf(err))).Inc()
}

// RecordRSS raises the peak RSS gauge to rss when larger
func (c *Collector) RecordRSS(rss uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rss > c.peakRSS {
		c.peakRSS = rss
		PeakRSS.WithLabelValues(c.analysis).Set(float64(rss))
	}
}

// Throughput updates and returns the events per second since the last call
func (c *Collector) Throughput() float64 {
	return c.throughput.GetAndReset()
}

// Push sends every registered metric to a Pushgateway under job, grouped
// by analysis
func (c *Collector) Push(ctx context.Context, gateway, job string) error {
	err := push.New(gateway, job).
		Gatherer(prometheus.DefaultGatherer).
		Grouping("analysis", c.analysis).
		PushContext(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "cannot push metrics").WithDetail("gateway", gateway)
	}
	return nil
}

// Timer measures the duration of an operation from its creation
type Timer struct {
	start time.Time
}

// NewTimer creates a timer started now
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the time elapsed since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks events per second over time windows. Safe for
// concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	analysis  string
}

// NewThroughputTracker creates a tracker for an analysis
func NewThroughputTracker(analysis string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		analysis:  analysis,
	}
}

// Increment adds n to the event count
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset computes the throughput since the last reset, updates the
// gauge and starts a new window
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}
	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()
	Throughput.WithLabelValues(t.analysis).Set(throughput)
	return throughput
}
