// Package logger provides the process-wide zap logger for histfill.
//
// Init installs a logger built from Config; Get returns it, building an
// info-level JSON logger on first use when Init was never called.
// Run-scoped fields travel in the context:
//
//	ctx = logger.ContextWithRunID(ctx, logger.NewRunID())
//	ctx = logger.ContextWithDataset(ctx, "dy")
//	logger.WithContext(ctx).Info("fill started")
//
// Failures are logged with ErrorFields so the error type and details of
// typed errors become searchable fields.
package logger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/histfill/pkg/errors"
)

var (
	globalLogger *zap.Logger
	mu           sync.RWMutex
)

type contextKey string

// Context keys read by WithContext
const (
	RunIDKey     contextKey = "run_id"
	DatasetKey   contextKey = "dataset"
	HistogramKey contextKey = "histogram"
)

var contextKeys = []contextKey{RunIDKey, DatasetKey, HistogramKey}

// Config selects the level, encoding and sinks of a logger
type Config struct {
	Level       string   `yaml:"level"`
	Development bool     `yaml:"development"`
	Encoding    string   `yaml:"encoding"` // json or console
	OutputPaths []string `yaml:"output_paths"`
}

// Init builds a logger from cfg and installs it as the global logger
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	globalLogger = l
	mu.Unlock()
	return nil
}

// New builds a logger from cfg. Empty fields select info level, JSON
// encoding and stderr.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		var err error
		if level, err = zapcore.ParseLevel(cfg.Level); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder
	if cfg.Development {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zc := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         cfg.Encoding,
		EncoderConfig:    enc,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if zc.Encoding == "" {
		zc.Encoding = "json"
	}
	if len(zc.OutputPaths) == 0 {
		zc.OutputPaths = []string{"stderr"}
	}

	opts := []zap.Option{}
	if cfg.Development {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	l, err := zc.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l, nil
}

// Get returns the global logger
func Get() *zap.Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if globalLogger == nil {
		l, err := New(Config{})
		if err != nil {
			l = zap.NewNop()
		}
		globalLogger = l
	}
	return globalLogger
}

// NewRunID returns a fresh identifier for one histfill run
func NewRunID() string { return uuid.NewString() }

// ContextWithRunID returns a context carrying the run identifier
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

// ContextWithDataset returns a context carrying the dataset name
func ContextWithDataset(ctx context.Context, dataset string) context.Context {
	return context.WithValue(ctx, DatasetKey, dataset)
}

// ContextWithHistogram returns a context carrying the histogram name
func ContextWithHistogram(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, HistogramKey, name)
}

// WithContext returns the global logger with the run fields found in ctx
func WithContext(ctx context.Context) *zap.Logger {
	l := Get()
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			l = l.With(zap.String(string(key), v))
		}
	}
	return l
}

// With creates a child of the global logger
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// ErrorFields describes err as log fields: the error itself, its type and
// one field per detail, sorted by key
func ErrorFields(err error) []zap.Field {
	details := errors.Details(err)
	fields := make([]zap.Field, 0, 2+len(details))
	fields = append(fields, zap.Error(err), zap.String("error_type", string(errors.TypeOf(err))))

	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, details[k]))
	}
	return fields
}

// Sync flushes the global logger
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
