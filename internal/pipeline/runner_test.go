package pipeline

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/histfill/pkg/config"
	"github.com/ajitpratap0/histfill/pkg/errors"
	"github.com/ajitpratap0/histfill/pkg/hist"
	"github.com/ajitpratap0/histfill/pkg/histogram"
	"github.com/ajitpratap0/histfill/pkg/metrics"
	"github.com/ajitpratap0/histfill/pkg/testutil"
)

var muonType = arrow.ListOf(arrow.StructOf(
	arrow.Field{Name: "pt", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
))

var eventSchema = arrow.NewSchema([]arrow.Field{
	{Name: "muon", Type: muonType, Nullable: true},
	{Name: "w", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "ch", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

// muonReader yields two batches: three muons over two events, then one
// event without muons
func muonReader(t *testing.T, mem memory.Allocator) array.RecordReader {
	return testutil.Reader(t, mem, eventSchema,
		`[{"muon": [{"pt": 10}, {"pt": 20}], "w": 2, "ch": "mumu"}, {"muon": [{"pt": 35}], "w": 0.5, "ch": "ee"}]`,
		`[{"muon": [], "w": 1, "ch": "mumu"}]`,
	)
}

func ptCollection(t *testing.T, field string, channels []string) *histogram.Collection {
	t.Helper()
	pt, err := hist.NewRegular("pt", 4, 0, 40)
	require.NoError(t, err)
	col := histogram.NewCollection()
	require.NoError(t, col.Add("pt", histogram.New(
		[]*histogram.Axis{histogram.NewAxis(pt, histogram.Field(field))},
		histogram.WithLogger(zaptest.NewLogger(t)),
	)))
	require.NoError(t, col.MakeHists(channels))
	return col
}

func TestRunFillsEveryBatch(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	rdr := muonReader(t, mem)
	defer rdr.Release()

	core, logs := observer.New(zap.InfoLevel)
	col := ptCollection(t, "muon.pt", []string{"ee", "mumu"})
	r := NewRunner(col, Config{Analysis: "test_run", Dataset: "dy", WeightField: "w"},
		WithAllocator(mem), WithLogger(zap.New(core)))

	stats, err := r.Run(context.Background(), rdr)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, int64(3), stats.Events)
	assert.Equal(t, int64(3), stats.Entries)
	assert.Equal(t, 3.5, stats.SumWeights)
	assert.Positive(t, stats.Duration)
	assert.Equal(t, stats, r.Stats())

	h, _ := col.Get("pt")
	assert.Equal(t, 2.0, h.Hist().Value(1, 1))
	assert.Equal(t, 2.0, h.Hist().Value(1, 2))
	assert.Equal(t, 0.5, h.Hist().Value(0, 3))
	assert.Equal(t, 4.0, h.Hist().Variance(1, 1))

	assert.Equal(t, 2.0, promtest.ToFloat64(metrics.BatchesProcessed.WithLabelValues("test_run")))
	assert.Equal(t, 3.0, promtest.ToFloat64(metrics.EntriesFilled.WithLabelValues("test_run", "pt")))

	done := logs.FilterMessage("fill completed").All()
	require.Len(t, done, 1)
	assert.Equal(t, int64(3), done[0].ContextMap()["entries"])
	assert.Equal(t, "dy", done[0].ContextMap()["dataset"])
}

func TestRunUnitWeights(t *testing.T) {
	rdr := muonReader(t, memory.DefaultAllocator)
	defer rdr.Release()

	col := ptCollection(t, "muon.pt", nil)
	stats, err := NewRunner(col, Config{Analysis: "test_unit"}, WithLogger(zaptest.NewLogger(t))).
		Run(context.Background(), rdr)
	require.NoError(t, err)
	assert.Equal(t, 3.0, stats.SumWeights)

	h, _ := col.Get("pt")
	assert.Equal(t, []float64{0, 1, 1, 1}, h.Hist().Values(false))
}

func TestRunConstantChannel(t *testing.T) {
	mem := testutil.CheckedAllocator(t)

	schema := arrow.NewSchema([]arrow.Field{{Name: "muon", Type: muonType, Nullable: true}}, nil)
	rdr := testutil.Reader(t, mem, schema, `[{"muon": [{"pt": 5}]}, {"muon": [{"pt": 15}, {"pt": 25}]}]`)
	defer rdr.Release()

	col := ptCollection(t, "muon.pt", []string{"ee", "mumu"})
	_, err := NewRunner(col, Config{Analysis: "test_channel", Channel: "ee"},
		WithAllocator(mem), WithLogger(zaptest.NewLogger(t))).
		Run(context.Background(), rdr)
	require.NoError(t, err)

	h, _ := col.Get("pt")
	assert.Equal(t, []float64{1, 1, 1, 0, 0, 0, 0, 0}, h.Hist().Values(false))
}

func TestRunCancelled(t *testing.T) {
	rdr := muonReader(t, memory.DefaultAllocator)
	defer rdr.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	col := ptCollection(t, "muon.pt", nil)
	stats, err := NewRunner(col, Config{Analysis: "test_cancel"}, WithLogger(zaptest.NewLogger(t))).Run(ctx, rdr)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Batches)

	h, _ := col.Get("pt")
	assert.Zero(t, h.Hist().Entries())
}

func TestRunStopsAtFailingBatch(t *testing.T) {
	rdr := muonReader(t, memory.DefaultAllocator)
	defer rdr.Release()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	col := ptCollection(t, "jet.pt", nil)
	stats, err := NewRunner(col, Config{Analysis: "test_fail"},
		WithLogger(zaptest.NewLogger(t)), WithTracer(tp.Tracer("test"))).
		Run(context.Background(), rdr)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	assert.Zero(t, stats.Batches)

	var herr *errors.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, 0, herr.Details["batch"])

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.FillErrors.WithLabelValues("test_fail", "data")))

	ended := sr.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "histfill.fill_batch", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "histfill.run", ended[1].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)
}

func TestRunSpans(t *testing.T) {
	rdr := muonReader(t, memory.DefaultAllocator)
	defer rdr.Release()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	col := ptCollection(t, "muon.pt", nil)
	_, err := NewRunner(col, Config{Analysis: "test_spans"},
		WithLogger(zaptest.NewLogger(t)), WithTracer(tp.Tracer("test"))).
		Run(context.Background(), rdr)
	require.NoError(t, err)

	ended := sr.Ended()
	require.Len(t, ended, 3)
	run := ended[2]
	assert.Equal(t, "histfill.run", run.Name())
	for _, batch := range ended[:2] {
		assert.Equal(t, "histfill.fill_batch", batch.Name())
		assert.Equal(t, run.SpanContext().SpanID(), batch.Parent().SpanID())
	}
}

func TestWeightErrors(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "muon", Type: muonType, Nullable: true},
		{Name: "w", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	tests := []struct {
		name  string
		field string
	}{
		{"missing column", "weight"},
		{"not numeric", "w"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rdr := testutil.Reader(t, memory.DefaultAllocator, schema, `[{"muon": [{"pt": 1}, {"pt": 2}], "w": "x"}]`)
			defer rdr.Release()

			col := ptCollection(t, "muon.pt", nil)
			_, err := NewRunner(col, Config{Analysis: "test_weights", WeightField: tt.field},
				WithLogger(zaptest.NewLogger(t))).Run(context.Background(), rdr)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeData))
		})
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := config.Defaults()
	cfg.Name = "zmumu"
	cfg.Input.Dataset = "dy"
	cfg.Input.WeightField = "genWeight"
	cfg.Input.Channel = "mumu"

	assert.Equal(t, Config{Analysis: "zmumu", Dataset: "dy", WeightField: "genWeight", Channel: "mumu"}, ConfigFrom(cfg))
}

func TestStatsEventsPerSecond(t *testing.T) {
	assert.Zero(t, Stats{Events: 10}.EventsPerSecond())
	assert.Equal(t, 5.0, Stats{Events: 10, Duration: 2e9}.EventsPerSecond())
}
