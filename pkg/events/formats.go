package events

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ajitpratap0/histfill/pkg/compression"
	"github.com/ajitpratap0/histfill/pkg/config"
	"github.com/ajitpratap0/histfill/pkg/errors"
)

var formatExtensions = map[string]string{
	".arrow":   config.FormatArrow,
	".feather": config.FormatArrow,
	".ipc":     config.FormatArrow,
	".arrows":  config.FormatArrowStream,
	".parquet": config.FormatParquet,
	".pq":      config.FormatParquet,
	".csv":     config.FormatCSV,
	".json":    config.FormatJSON,
	".jsonl":   config.FormatJSON,
	".ndjson":  config.FormatJSON,
	".avro":    config.FormatAvro,
}

// DetectFormat returns the input format implied by the extension of p,
// looking past any compression suffix
func DetectFormat(p string) (string, error) {
	ext := strings.ToLower(path.Ext(compression.TrimExtension(p)))
	if f, ok := formatExtensions[ext]; ok {
		return f, nil
	}
	return "", errors.New(errors.ErrorTypeConfig, "cannot detect input format").WithDetail("path", p)
}

type decoder func(ctx context.Context, data []byte, opts decodeOptions) (array.RecordReader, error)

type decodeOptions struct {
	mem       memory.Allocator
	batchSize int
	schema    *arrow.Schema
}

var decoders = map[string]decoder{
	config.FormatArrow:       decodeArrowFile,
	config.FormatArrowStream: decodeArrowStream,
	config.FormatParquet:     decodeParquet,
	config.FormatCSV:         decodeCSV,
	config.FormatJSON:        decodeJSON,
	config.FormatAvro:        decodeAvro,
}

func decodeArrowFile(_ context.Context, data []byte, opts decodeOptions) (array.RecordReader, error) {
	f, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(opts.mem))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid arrow file")
	}
	defer f.Close()

	recs := make([]arrow.Record, 0, f.NumRecords())
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()
	for i := 0; i < f.NumRecords(); i++ {
		rec, err := f.Record(i)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "cannot read arrow record batch").WithDetail("batch", i)
		}
		rec.Retain()
		recs = append(recs, rec)
	}
	return array.NewRecordReader(f.Schema(), recs)
}

func decodeArrowStream(_ context.Context, data []byte, opts decodeOptions) (array.RecordReader, error) {
	r, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(opts.mem))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid arrow stream")
	}
	return r, nil
}

func decodeParquet(ctx context.Context, data []byte, opts decodeOptions) (array.RecordReader, error) {
	fr, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid parquet file")
	}
	props := pqarrow.ArrowReadProperties{BatchSize: int64(opts.batchSize)}
	ar, err := pqarrow.NewFileReader(fr, props, opts.mem)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "cannot map parquet schema to arrow")
	}
	rr, err := ar.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "cannot read parquet row groups")
	}
	return rr, nil
}

func decodeCSV(_ context.Context, data []byte, opts decodeOptions) (array.RecordReader, error) {
	csvOpts := []csv.Option{
		csv.WithHeader(true),
		csv.WithChunk(opts.batchSize),
		csv.WithAllocator(opts.mem),
		csv.WithNullReader(true, ""),
	}
	if opts.schema != nil {
		return csv.NewReader(bytes.NewReader(data), opts.schema, csvOpts...), nil
	}
	return csv.NewInferringReader(bytes.NewReader(data), csvOpts...), nil
}

func decodeJSON(_ context.Context, data []byte, opts decodeOptions) (array.RecordReader, error) {
	if opts.schema == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "json input needs a schema")
	}
	return array.NewJSONReader(bytes.NewReader(data), opts.schema,
		array.WithAllocator(opts.mem),
		array.WithChunk(opts.batchSize)), nil
}
