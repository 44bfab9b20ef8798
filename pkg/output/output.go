// Package output writes filled histograms to object storage.
//
// Three layouts are supported:
//   - json: one document holding every histogram snapshot keyed by name
//   - arrow: one Arrow IPC file per histogram with a row per cell
//   - parquet: the same bin tables as Parquet files
//
// Bin tables carry one string column per axis holding the bin label, flow
// bins included, followed by the value and variance columns. The storage
// mode and the axis descriptions are kept in the schema metadata.
package output

import (
	"bytes"
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/ajitpratap0/histfill/pkg/compression"
	"github.com/ajitpratap0/histfill/pkg/config"
	"github.com/ajitpratap0/histfill/pkg/errors"
	"github.com/ajitpratap0/histfill/pkg/hist"
	"github.com/ajitpratap0/histfill/pkg/histogram"
	"github.com/ajitpratap0/histfill/pkg/json"
	"github.com/ajitpratap0/histfill/pkg/logger"
)

// Schema metadata keys of bin tables
const (
	MetaStorage = "histfill.storage"
	MetaAxes    = "histfill.axes"
	MetaEntries = "histfill.entries"
)

// Bin table value columns
const (
	ValueColumn    = "value"
	VarianceColumn = "variance"
)

// Store is the object storage used for results
type Store interface {
	Get(ctx context.Context, uri string) ([]byte, error)
	Put(ctx context.Context, uri string, data []byte) error
}

// Result is a named filled histogram
type Result struct {
	Name string
	Hist *hist.Hist
}

// Writer writes results in one configured layout
type Writer struct {
	store  Store
	cfg    config.OutputConfig
	alg    compression.Algorithm
	mem    memory.Allocator
	logger *zap.Logger
}

// Option configures a Writer
type Option func(*Writer)

// WithAllocator sets the allocator used for bin tables
func WithAllocator(mem memory.Allocator) Option {
	return func(w *Writer) {
		w.mem = mem
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(w *Writer) {
		w.logger = l
	}
}

// NewWriter validates cfg and creates a writer
func NewWriter(store Store, cfg config.OutputConfig, opts ...Option) (*Writer, error) {
	alg, err := compression.Parse(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "output path is required")
	}
	switch cfg.Format {
	case "", config.FormatJSON:
	case config.FormatArrow:
		if alg != compression.None && alg != compression.Zstd && alg != compression.LZ4 {
			return nil, errors.Newf(errors.ErrorTypeConfig, "arrow output does not support %s compression", alg)
		}
	case config.FormatParquet:
		if alg == compression.S2 {
			return nil, errors.Newf(errors.ErrorTypeConfig, "parquet output does not support %s compression", alg)
		}
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown output format %q", cfg.Format)
	}

	w := &Writer{store: store, cfg: cfg, alg: alg, mem: memory.DefaultAllocator}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get()
	}
	return w, nil
}

// Write collects the made histograms of col and writes them under the
// analysis name. It returns the URIs written.
func Write(ctx context.Context, store Store, cfg config.OutputConfig, name string, col *histogram.Collection, opts ...Option) ([]string, error) {
	results, err := Results(col)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(store, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return w.Write(ctx, name, results)
}

// Results lists the histograms of col in booking order
func Results(col *histogram.Collection) ([]Result, error) {
	results := make([]Result, 0, col.Len())
	for _, name := range col.Names() {
		h, _ := col.Get(name)
		if !h.Made() {
			return nil, errors.New(errors.ErrorTypeState, "histogram was never made").WithDetail("histogram", name)
		}
		results = append(results, Result{Name: name, Hist: h.Hist()})
	}
	return results, nil
}

// Write writes results and returns the URIs written
func (w *Writer) Write(ctx context.Context, name string, results []Result) ([]string, error) {
	switch w.cfg.Format {
	case config.FormatArrow, config.FormatParquet:
		uris := make([]string, 0, len(results))
		for _, r := range results {
			if err := ctx.Err(); err != nil {
				return uris, err
			}
			uri, err := w.writeTable(ctx, r)
			if err != nil {
				return uris, errors.Wrap(err, "", "cannot write bin table").WithDetail("histogram", r.Name)
			}
			uris = append(uris, uri)
		}
		return uris, nil
	}

	uri, err := w.writeJSON(ctx, NewDocument(name, results))
	if err != nil {
		return nil, err
	}
	return []string{uri}, nil
}

func (w *Writer) writeJSON(ctx context.Context, doc *Document) (string, error) {
	buf, err := json.MarshalToBuffer(doc, true)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "cannot encode results")
	}
	defer json.PutBuffer(buf)

	data := buf.Bytes()
	uri := w.cfg.Path
	if w.alg != compression.None {
		data, err = compression.Compress(w.alg, compression.Default, data)
		if err != nil {
			return "", err
		}
		if compression.FromExtension(uri) != w.alg {
			uri += compression.Extension(w.alg)
		}
	}

	if err := w.store.Put(ctx, uri, data); err != nil {
		return "", err
	}
	w.logger.Info("results written",
		zap.String("uri", uri),
		zap.String("format", config.FormatJSON),
		zap.Int("histograms", len(doc.Names)),
		zap.Int("bytes", len(data)))
	return uri, nil
}

func (w *Writer) writeTable(ctx context.Context, r Result) (string, error) {
	rec, err := BinTable(w.mem, r.Hist)
	if err != nil {
		return "", err
	}
	defer rec.Release()

	var buf bytes.Buffer
	ext := ".arrow"
	if w.cfg.Format == config.FormatParquet {
		ext = ".parquet"
		err = w.encodeParquet(&buf, rec)
	} else {
		err = w.encodeArrow(&buf, rec)
	}
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "cannot encode bin table")
	}

	uri := joinURI(w.cfg.Path, r.Name+ext)
	if err := w.store.Put(ctx, uri, buf.Bytes()); err != nil {
		return "", err
	}
	w.logger.Info("results written",
		zap.String("uri", uri),
		zap.String("format", w.cfg.Format),
		zap.Int64("cells", rec.NumRows()),
		zap.Int("bytes", buf.Len()))
	return uri, nil
}

func (w *Writer) encodeArrow(buf *bytes.Buffer, rec arrow.Record) error {
	opts := []ipc.Option{ipc.WithSchema(rec.Schema()), ipc.WithAllocator(w.mem)}
	switch w.alg {
	case compression.Zstd:
		opts = append(opts, ipc.WithZstd())
	case compression.LZ4:
		opts = append(opts, ipc.WithLZ4())
	}
	fw, err := ipc.NewFileWriter(buf, opts...)
	if err != nil {
		return err
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return err
	}
	return fw.Close()
}

func (w *Writer) encodeParquet(buf *bytes.Buffer, rec arrow.Record) error {
	props := parquet.NewWriterProperties(
		parquet.WithCompression(parquetCodec(w.alg)),
		parquet.WithAllocator(w.mem),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(w.mem),
		pqarrow.WithStoreSchema(),
	)
	fw, err := pqarrow.NewFileWriter(rec.Schema(), buf, props, arrowProps)
	if err != nil {
		return err
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return err
	}
	return fw.Close()
}

func parquetCodec(a compression.Algorithm) compress.Compression {
	switch a {
	case compression.Gzip:
		return compress.Codecs.Gzip
	case compression.Snappy:
		return compress.Codecs.Snappy
	case compression.Zstd:
		return compress.Codecs.Zstd
	case compression.LZ4:
		return compress.Codecs.Lz4Raw
	}
	return compress.Codecs.Uncompressed
}

// BinTable lays out every cell of h, flow cells included, as one row
func BinTable(mem memory.Allocator, h *hist.Hist) (arrow.Record, error) {
	axes := h.Axes()
	snaps := h.Snapshot().Axes
	axesJSON, err := json.Marshal(snaps)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "cannot encode axes")
	}

	fields := make([]arrow.Field, 0, len(axes)+2)
	for _, a := range axes {
		fields = append(fields, arrow.Field{Name: a.Name(), Type: arrow.BinaryTypes.String})
	}
	fields = append(fields,
		arrow.Field{Name: ValueColumn, Type: arrow.PrimitiveTypes.Float64},
		arrow.Field{Name: VarianceColumn, Type: arrow.PrimitiveTypes.Float64},
	)
	md := arrow.NewMetadata(
		[]string{MetaStorage, MetaAxes, MetaEntries},
		[]string{string(h.Storage()), string(axesJSON), strconv.FormatInt(h.Entries(), 10)},
	)
	schema := arrow.NewSchema(fields, &md)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	labels := make([]*array.StringBuilder, len(axes))
	for d := range axes {
		labels[d] = b.Field(d).(*array.StringBuilder)
	}
	values := b.Field(len(axes)).(*array.Float64Builder)
	variances := b.Field(len(axes) + 1).(*array.Float64Builder)

	h.Each(true, func(idx []int, bin hist.Bin) {
		for d, a := range axes {
			labels[d].Append(a.BinLabel(idx[d]))
		}
		values.Append(bin.Value)
		variances.Append(bin.Variance)
	})
	return b.NewRecord(), nil
}

func joinURI(dir, name string) string {
	return strings.TrimSuffix(dir, "/") + "/" + name
}

// Document is the json result layout
type Document struct {
	Name       string                   `json:"name"`
	Names      []string                 `json:"names"`
	Histograms map[string]hist.Snapshot `json:"histograms"`
}

// NewDocument snapshots results into a document
func NewDocument(name string, results []Result) *Document {
	doc := &Document{
		Name:       name,
		Names:      make([]string, 0, len(results)),
		Histograms: make(map[string]hist.Snapshot, len(results)),
	}
	for _, r := range results {
		doc.Names = append(doc.Names, r.Name)
		doc.Histograms[r.Name] = r.Hist.Snapshot()
	}
	return doc
}

// Results restores the histograms of the document in document order
func (d *Document) Results() ([]Result, error) {
	names := d.Names
	if len(names) == 0 {
		for name := range d.Histograms {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	results := make([]Result, 0, len(names))
	for _, name := range names {
		s, ok := d.Histograms[name]
		if !ok {
			return nil, errors.New(errors.ErrorTypeData, "histogram listed but missing").WithDetail("histogram", name)
		}
		h, err := hist.FromSnapshot(s)
		if err != nil {
			return nil, errors.Wrap(err, "", "cannot restore histogram").WithDetail("histogram", name)
		}
		results = append(results, Result{Name: name, Hist: h})
	}
	return results, nil
}

// ReadJSON loads a json result, decompressing by the extension of uri
func ReadJSON(ctx context.Context, store Store, uri string) (*Document, error) {
	data, err := store.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	if alg := compression.FromExtension(uri); alg != compression.None {
		if data, err = compression.Decompress(alg, data); err != nil {
			return nil, errors.Wrap(err, "", "cannot decompress results").WithDetail("uri", uri)
		}
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "cannot decode results").WithDetail("uri", uri)
	}
	return &doc, nil
}

// Merge adds the histograms of docs cell by cell. Every document must hold
// the same histograms with identical axes.
func Merge(docs ...*Document) ([]Result, error) {
	if len(docs) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "nothing to merge")
	}
	merged, err := docs[0].Results()
	if err != nil {
		return nil, err
	}
	for _, doc := range docs[1:] {
		results, err := doc.Results()
		if err != nil {
			return nil, err
		}
		if len(results) != len(merged) {
			return nil, errors.New(errors.ErrorTypeShape, "documents hold different histograms").
				WithDetail("document", doc.Name)
		}
		byName := make(map[string]*hist.Hist, len(results))
		for _, r := range results {
			byName[r.Name] = r.Hist
		}
		for _, m := range merged {
			other, ok := byName[m.Name]
			if !ok {
				return nil, errors.New(errors.ErrorTypeShape, "histogram missing from document").
					WithDetail("histogram", m.Name).
					WithDetail("document", doc.Name)
			}
			if err := m.Hist.Add(other); err != nil {
				return nil, errors.Wrap(err, "", "cannot merge histogram").WithDetail("histogram", m.Name)
			}
		}
	}
	return merged, nil
}
