// Package observability provides OpenTelemetry tracing for histfill runs.
//
// A Provider owns the tracer provider of a run. When tracing is disabled
// it hands out a no-op tracer so callers never check for nil:
//
//	p, err := observability.New(cfg.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer p.Shutdown(ctx)
//	ft := observability.NewFillTracer(p.Tracer(), cfg.Name)
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ajitpratap0/histfill/pkg/config"
	"github.com/ajitpratap0/histfill/pkg/errors"
)

// Version is reported as the service version of every trace
var Version = "dev"

// Provider owns the tracer provider of a run
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

type options struct {
	writer io.Writer
	sync   bool
}

// Option configures a Provider
type Option func(*options)

// WithWriter sets where spans are exported. The default is stderr.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// WithSyncExport exports every span as it ends instead of batching
func WithSyncExport() Option {
	return func(o *options) {
		o.sync = true
	}
}

// New creates a provider and installs it as the global tracer provider
// when tracing is enabled
func New(cfg config.TracingConfig, opts ...Option) (*Provider, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "histfill"
	}
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer(name)}, nil
	}

	o := options{writer: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(Version),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create resource")
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(o.writer))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create stdout exporter")
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	export := sdktrace.WithBatcher(exporter)
	if o.sync {
		export = sdktrace.WithSyncer(exporter)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
		export,
	)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp, tracer: tp.Tracer(name)}, nil
}

// Tracer returns the tracer of the run
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Enabled reports whether spans are exported
func (p *Provider) Enabled() bool { return p.tp != nil }

// Shutdown flushes pending spans
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to shutdown tracer")
	}
	return nil
}

// Span wraps a trace span and batches its attributes until End
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// NewSpan starts a span on tracer
func NewSpan(ctx context.Context, tracer trace.Tracer, operationName string) (context.Context, *Span) {
	ctx, span := tracer.Start(ctx, operationName)
	return ctx, &Span{
		span:      span,
		startTime: time.Now(),
	}
}

// SetAttribute adds an attribute to the span
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	case []string:
		attr = attribute.StringSlice(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError marks the span failed
func (s *Span) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	if t := errors.TypeOf(err); t != "" {
		s.SetAttribute("error.type", string(t))
	}
}

// Duration returns the time since the span started
func (s *Span) Duration() time.Duration { return time.Since(s.startTime) }

// End sets the batched attributes and ends the span
func (s *Span) End() {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	s.span.End()
}

// FillTracer starts the spans of one analysis run
type FillTracer struct {
	analysis string
	tracer   trace.Tracer
}

// NewFillTracer creates a tracer for an analysis
func NewFillTracer(tracer trace.Tracer, analysis string) *FillTracer {
	return &FillTracer{analysis: analysis, tracer: tracer}
}

// StartRun starts the span covering a whole run
func (ft *FillTracer) StartRun(ctx context.Context, dataset string) (context.Context, *Span) {
	ctx, span := NewSpan(ctx, ft.tracer, "histfill.run")
	span.SetAttribute("analysis", ft.analysis)
	span.SetAttribute("dataset", dataset)
	return ctx, span
}

// StartBatch starts the span of one filled batch
func (ft *FillTracer) StartBatch(ctx context.Context, batch int, rows int64) (context.Context, *Span) {
	ctx, span := NewSpan(ctx, ft.tracer, "histfill.fill_batch")
	span.SetAttribute("analysis", ft.analysis)
	span.SetAttribute("batch.index", batch)
	span.SetAttribute("batch.rows", rows)
	return ctx, span
}

// StartWrite starts the span of writing results
func (ft *FillTracer) StartWrite(ctx context.Context, format string) (context.Context, *Span) {
	ctx, span := NewSpan(ctx, ft.tracer, "histfill.write")
	span.SetAttribute("analysis", ft.analysis)
	span.SetAttribute("output.format", format)
	return ctx, span
}
