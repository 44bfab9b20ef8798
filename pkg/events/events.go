// Package events opens event files as a stream of arrow record batches.
//
// Every configured path is read in order through objstore, so local files,
// s3:// and gs:// objects are handled alike. A compression suffix such as
// .zst or .gz is decoded before the format reader sees the data.
package events

import (
	"context"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/ajitpratap0/histfill/pkg/compression"
	"github.com/ajitpratap0/histfill/pkg/config"
	"github.com/ajitpratap0/histfill/pkg/errors"
	"github.com/ajitpratap0/histfill/pkg/logger"
	"github.com/ajitpratap0/histfill/pkg/objstore"
)

// Option configures Open
type Option func(*Reader)

// WithAllocator sets the allocator used for decoded batches
func WithAllocator(mem memory.Allocator) Option {
	return func(r *Reader) {
		r.opts.mem = mem
	}
}

// WithStore sets the object store used to fetch paths
func WithStore(s *objstore.Store) Option {
	return func(r *Reader) {
		r.store = s
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) {
		r.logger = l
	}
}

// Reader chains the record batches of all input paths. It implements
// array.RecordReader; each Record is valid until the next call to Next.
type Reader struct {
	ctx    context.Context
	in     config.InputConfig
	store  *objstore.Store
	logger *zap.Logger
	opts   decodeOptions

	refs   int64
	next   int
	path   string
	cur    array.RecordReader
	schema *arrow.Schema
	rec    arrow.Record
	err    error
}

// Open validates in and opens the first path, so Schema is available
// immediately. The remaining paths are opened as the reader reaches them.
func Open(ctx context.Context, in config.InputConfig, opts ...Option) (*Reader, error) {
	r := &Reader{
		ctx:  ctx,
		in:   in,
		refs: 1,
		opts: decodeOptions{batchSize: in.BatchSize},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get()
	}
	r.logger = r.logger.With(zap.String("component", "events"))
	if r.opts.mem == nil {
		r.opts.mem = memory.DefaultAllocator
	}
	if r.store == nil {
		r.store = objstore.New(config.ObjectStoreConfig{}, r.logger)
	}
	if r.opts.batchSize <= 0 {
		r.opts.batchSize = config.Defaults().Input.BatchSize
	}

	if len(in.Paths) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "no input paths")
	}
	if len(in.Schema) > 0 {
		schema, err := Schema(in.Schema)
		if err != nil {
			return nil, err
		}
		r.opts.schema = schema
	}
	for _, p := range in.Paths {
		if _, err := r.format(p); err != nil {
			return nil, err
		}
	}

	if err := r.advance(); err != nil {
		return nil, err
	}
	r.schema = r.cur.Schema()
	return r, nil
}

func (r *Reader) format(p string) (string, error) {
	if r.in.Format != "" {
		if _, ok := decoders[r.in.Format]; !ok {
			return "", errors.Newf(errors.ErrorTypeConfig, "unknown input format %q", r.in.Format)
		}
		return r.in.Format, nil
	}
	return DetectFormat(p)
}

// advance opens the next path
func (r *Reader) advance() error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	p := r.in.Paths[r.next]
	r.next++

	format, err := r.format(p)
	if err != nil {
		return err
	}
	raw, err := r.store.Get(r.ctx, p)
	if err != nil {
		return err
	}
	data := raw
	alg := compression.FromExtension(p)
	if alg != compression.None {
		if data, err = compression.Decompress(alg, raw); err != nil {
			return errors.Wrap(err, "", "cannot decompress input").WithDetail("path", p)
		}
	}

	rr, err := decoders[format](r.ctx, data, r.opts)
	if err != nil {
		return errors.Wrap(err, "", "cannot open input").WithDetail("path", p).WithDetail("format", format)
	}
	r.cur = rr
	r.path = p
	r.logger.Info("input opened",
		zap.String("path", p),
		zap.String("format", format),
		zap.String("compression", string(alg)),
		zap.Int("bytes", len(raw)))
	return nil
}

// Path returns the path the current batch was read from
func (r *Reader) Path() string { return r.path }

// Retain increases the reference count
func (r *Reader) Retain() {
	atomic.AddInt64(&r.refs, 1)
}

// Release decreases the reference count and closes the current input when
// it reaches zero
func (r *Reader) Release() {
	if atomic.AddInt64(&r.refs, -1) == 0 && r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
}

// Schema returns the schema of the first input
func (r *Reader) Schema() *arrow.Schema { return r.schema }

// Next advances to the next batch, moving on to later paths as each one is
// exhausted
func (r *Reader) Next() bool {
	r.rec = nil
	for r.err == nil {
		if r.cur == nil {
			if r.next >= len(r.in.Paths) {
				return false
			}
			if err := r.advance(); err != nil {
				r.err = err
				return false
			}
		}
		if r.cur.Next() {
			r.rec = r.cur.Record()
			return true
		}
		if err := r.cur.Err(); err != nil {
			r.err = errors.Wrap(err, errors.ErrorTypeData, "cannot decode input").WithDetail("path", r.path)
			return false
		}
		r.cur.Release()
		r.cur = nil
	}
	return false
}

// Record returns the current batch
func (r *Reader) Record() arrow.Record { return r.rec }

// Err returns the first error met while reading
func (r *Reader) Err() error { return r.err }

var _ array.RecordReader = (*Reader)(nil)
