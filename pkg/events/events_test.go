package events

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/linkedin/goavro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/histfill/pkg/columnar"
	"github.com/ajitpratap0/histfill/pkg/compression"
	"github.com/ajitpratap0/histfill/pkg/config"
	"github.com/ajitpratap0/histfill/pkg/errors"
	"github.com/ajitpratap0/histfill/pkg/hist"
)

var eventSchema = arrow.NewSchema([]arrow.Field{
	{Name: "muon", Type: arrow.ListOf(arrow.StructOf(
		arrow.Field{Name: "pt", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	)), Nullable: true},
	{Name: "ch", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

const eventJSON = `[
	{"muon": [{"pt": 10}, {"pt": 20}], "ch": "mumu"},
	{"muon": [], "ch": "ee"},
	{"muon": [{"pt": 35}], "ch": "mumu"}
]`

func eventRecord(t *testing.T, mem memory.Allocator) arrow.Record {
	t.Helper()
	rec, _, err := array.RecordFromJSON(mem, eventSchema, strings.NewReader(eventJSON))
	require.NoError(t, err)
	return rec
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func input(paths ...string) config.InputConfig {
	return config.InputConfig{Paths: paths, BatchSize: 2}
}

// drain reads every batch, returning the number of rows and the flattened
// muon pt values
func drain(t *testing.T, r *Reader) (int64, hist.Values) {
	t.Helper()
	var rows int64
	var pts hist.Float64s
	for r.Next() {
		rec := r.Record()
		rows += rec.NumRows()
		if len(rec.Schema().FieldIndices("muon")) == 0 {
			continue
		}
		col, err := columnar.Column(rec, "muon.pt")
		require.NoError(t, err)
		v, err := columnar.Flatten(col)
		col.Release()
		require.NoError(t, err)
		pts = append(pts, v.(hist.Float64s)...)
	}
	require.NoError(t, r.Err())
	return rows, pts
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]string{
		"run1.arrow":             config.FormatArrow,
		"run1.feather":           config.FormatArrow,
		"run1.arrows":            config.FormatArrowStream,
		"s3://b/run1.parquet":    config.FormatParquet,
		"run1.parquet.zst":       config.FormatParquet,
		"run1.CSV":               config.FormatCSV,
		"gs://b/events.jsonl.gz": config.FormatJSON,
		"/data/events.avro":      config.FormatAvro,
	}
	for p, want := range tests {
		got, err := DetectFormat(p)
		require.NoError(t, err, p)
		assert.Equal(t, want, got, p)
	}

	_, err := DetectFormat("events.root")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestParseType(t *testing.T) {
	tests := []struct {
		expr string
		want arrow.DataType
	}{
		{"float64", arrow.PrimitiveTypes.Float64},
		{" Int32 ", arrow.PrimitiveTypes.Int32},
		{"bool", arrow.FixedWidthTypes.Boolean},
		{"list<float32>", arrow.ListOf(arrow.PrimitiveTypes.Float32)},
		{"large_list<string>", arrow.LargeListOf(arrow.BinaryTypes.String)},
		{"list<struct<pt:float64, q:int8>>", arrow.ListOf(arrow.StructOf(
			arrow.Field{Name: "pt", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
			arrow.Field{Name: "q", Type: arrow.PrimitiveTypes.Int8, Nullable: true},
		))},
		{"struct<p4:struct<pt:float64,eta:float64>,jets:list<float64>>", arrow.StructOf(
			arrow.Field{Name: "p4", Type: arrow.StructOf(
				arrow.Field{Name: "pt", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
				arrow.Field{Name: "eta", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
			), Nullable: true},
			arrow.Field{Name: "jets", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64), Nullable: true},
		)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ParseType(tt.expr)
			require.NoError(t, err)
			assert.True(t, arrow.TypeEqual(tt.want, got), "got %s", got)
		})
	}

	for _, bad := range []string{"", "float128", "list<>", "struct<pt>", "struct<pt:float64", "map<string,int64>", "struct<a:list<int64>>>"} {
		_, err := ParseType(bad)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), bad)
	}
}

func TestOpenArrowFile(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec := eventRecord(t, mem)
	defer rec.Release()

	var buf bytes.Buffer
	w, err := ipc.NewFileWriter(&buf, ipc.WithSchema(eventSchema), ipc.WithAllocator(mem))
	require.NoError(t, err)
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())

	p := writeFile(t, t.TempDir(), "events.arrow", buf.Bytes())
	r, err := Open(context.Background(), input(p), WithAllocator(mem), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer r.Release()

	assert.True(t, r.Schema().Equal(eventSchema))
	rows, pts := drain(t, r)
	assert.Equal(t, int64(6), rows)
	assert.Equal(t, hist.Float64s{10, 20, 35, 10, 20, 35}, pts)
	assert.Equal(t, p, r.Path())
}

func TestOpenCompressedArrowStream(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec := eventRecord(t, mem)
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(eventSchema), ipc.WithAllocator(mem))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())

	compressed, err := compression.Compress(compression.Zstd, compression.Default, buf.Bytes())
	require.NoError(t, err)
	p := writeFile(t, t.TempDir(), "events.arrows.zst", compressed)

	r, err := Open(context.Background(), input(p), WithAllocator(mem))
	require.NoError(t, err)
	defer r.Release()

	rows, pts := drain(t, r)
	assert.Equal(t, int64(3), rows)
	assert.Equal(t, hist.Float64s{10, 20, 35}, pts)
}

func TestOpenCSVChainsPaths(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	dir := t.TempDir()
	first := writeFile(t, dir, "a.csv", []byte("pt,ch,weight\n10.5,ee,1\n20,mumu,0.5\n31,ee,2\n"))
	second := writeFile(t, dir, "b.csv.gz", mustCompress(t, compression.Gzip, "pt,ch,weight\n7,mumu,1\n"))

	r, err := Open(context.Background(), input(first, second), WithAllocator(mem))
	require.NoError(t, err)
	defer r.Release()

	var pts hist.Float64s
	var chs hist.Strings
	batches := 0
	for r.Next() {
		batches++
		rec := r.Record()
		pt, err := columnar.Column(rec, "pt")
		require.NoError(t, err)
		v, err := columnar.Float64s(pt)
		pt.Release()
		require.NoError(t, err)
		pts = append(pts, v...)

		ch, err := columnar.Column(rec, "ch")
		require.NoError(t, err)
		s, err := columnar.Values(ch)
		ch.Release()
		require.NoError(t, err)
		chs = append(chs, s.(hist.Strings)...)
	}
	require.NoError(t, r.Err())
	assert.Equal(t, 3, batches)
	assert.Equal(t, hist.Float64s{10.5, 20, 31, 7}, pts)
	assert.Equal(t, hist.Strings{"ee", "mumu", "ee", "mumu"}, chs)
	assert.Equal(t, second, r.Path())
}

func mustCompress(t *testing.T, alg compression.Algorithm, s string) []byte {
	t.Helper()
	out, err := compression.Compress(alg, compression.Default, []byte(s))
	require.NoError(t, err)
	return out
}

func TestOpenJSON(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	p := writeFile(t, t.TempDir(), "events.jsonl", []byte(
		`{"muon": [{"pt": 10}, {"pt": 20}], "ch": "mumu"}`+"\n"+
			`{"muon": [], "ch": "ee"}`+"\n"+
			`{"muon": [{"pt": 35}], "ch": "mumu"}`+"\n"))

	in := input(p)
	in.Schema = []config.FieldConfig{
		{Name: "muon", Type: "list<struct<pt:float64>>"},
		{Name: "ch", Type: "string"},
	}
	r, err := Open(context.Background(), in, WithAllocator(mem))
	require.NoError(t, err)
	defer r.Release()

	rows, pts := drain(t, r)
	assert.Equal(t, int64(3), rows)
	assert.Equal(t, hist.Float64s{10, 20, 35}, pts)
}

func TestOpenParquet(t *testing.T) {
	rec := eventRecord(t, memory.DefaultAllocator)
	defer rec.Release()

	var buf bytes.Buffer
	w, err := pqarrow.NewFileWriter(eventSchema, &buf, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
	require.NoError(t, err)
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())

	p := writeFile(t, t.TempDir(), "events.parquet", buf.Bytes())
	r, err := Open(context.Background(), input(p))
	require.NoError(t, err)
	defer r.Release()

	batches := 0
	var rows int64
	var pts hist.Float64s
	for r.Next() {
		batches++
		rows += r.Record().NumRows()
		col, err := columnar.Column(r.Record(), "muon.pt")
		require.NoError(t, err)
		v, err := columnar.Flatten(col)
		col.Release()
		require.NoError(t, err)
		pts = append(pts, v.(hist.Float64s)...)
	}
	require.NoError(t, r.Err())
	assert.Equal(t, 2, batches)
	assert.Equal(t, int64(3), rows)
	assert.Equal(t, hist.Float64s{10, 20, 35}, pts)
}

const avroSchema = `{
	"type": "record", "name": "Event",
	"fields": [
		{"name": "ch", "type": "string"},
		{"name": "weight", "type": ["null", "double"]},
		{"name": "muon", "type": {"type": "array", "items": {
			"type": "record", "name": "Muon",
			"fields": [{"name": "pt", "type": "double"}, {"name": "q", "type": "int"}]
		}}}
	]
}`

func TestOpenAvro(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	codec, err := goavro.NewCodec(avroSchema)
	require.NoError(t, err)
	var buf bytes.Buffer
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: &buf, Codec: codec})
	require.NoError(t, err)
	require.NoError(t, w.Append([]interface{}{
		map[string]interface{}{
			"ch":     "mumu",
			"weight": goavro.Union("double", 2.0),
			"muon": []interface{}{
				map[string]interface{}{"pt": 10.0, "q": int32(1)},
				map[string]interface{}{"pt": 20.0, "q": int32(-1)},
			},
		},
		map[string]interface{}{"ch": "ee", "weight": nil, "muon": []interface{}{}},
		map[string]interface{}{
			"ch":     "mumu",
			"weight": goavro.Union("double", 0.5),
			"muon":   []interface{}{map[string]interface{}{"pt": 35.0, "q": int32(1)}},
		},
	}))

	p := writeFile(t, t.TempDir(), "events.avro", buf.Bytes())
	in := input(p)
	in.Schema = []config.FieldConfig{
		{Name: "ch", Type: "string"},
		{Name: "weight", Type: "float64"},
		{Name: "muon", Type: "list<struct<pt:float64,q:int32>>"},
	}
	r, err := Open(context.Background(), in, WithAllocator(mem))
	require.NoError(t, err)
	defer r.Release()

	require.True(t, r.Next())
	first := r.Record()
	assert.Equal(t, int64(2), first.NumRows())
	weights := first.Column(1).(*array.Float64)
	assert.Equal(t, 2.0, weights.Value(0))
	assert.True(t, weights.IsNull(1))

	q, err := columnar.Column(first, "muon.q")
	require.NoError(t, err)
	qs, err := columnar.Flatten(q)
	q.Release()
	require.NoError(t, err)
	assert.Equal(t, hist.Int64s{1, -1}, qs)

	require.True(t, r.Next())
	assert.Equal(t, int64(1), r.Record().NumRows())
	assert.False(t, r.Next())
	require.NoError(t, r.Err())
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := Open(ctx, config.InputConfig{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = Open(ctx, input(filepath.Join(dir, "events.root")))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = Open(ctx, input(filepath.Join(dir, "missing.arrow")))
	assert.True(t, errors.IsType(err, errors.ErrorTypeIO))

	jsonPath := writeFile(t, dir, "events.json", []byte(`{"pt": 1}`))
	_, err = Open(ctx, input(jsonPath))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	garbage := writeFile(t, dir, "garbage.arrow", []byte("not an arrow file"))
	_, err = Open(ctx, input(garbage))
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))

	in := input(jsonPath)
	in.Format = "root"
	_, err = Open(ctx, in)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestCancelledContextStopsBeforeNextPath(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", []byte("pt\n1\n"))
	b := writeFile(t, dir, "b.csv", []byte("pt\n2\n"))

	ctx, cancel := context.WithCancel(context.Background())
	r, err := Open(ctx, input(a, b))
	require.NoError(t, err)
	defer r.Release()

	require.True(t, r.Next())
	cancel()
	assert.False(t, r.Next())
	assert.ErrorIs(t, r.Err(), context.Canceled)
}
