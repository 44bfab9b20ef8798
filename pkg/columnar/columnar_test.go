package columnar

import (
	"math"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/histfill/pkg/errors"
	"github.com/ajitpratap0/histfill/pkg/hist"
)

func fromJSON(t *testing.T, mem memory.Allocator, dt arrow.DataType, js string) arrow.Array {
	t.Helper()
	arr, _, err := array.FromJSON(mem, dt, strings.NewReader(js))
	require.NoError(t, err)
	return arr
}

var muonSchema = arrow.NewSchema([]arrow.Field{
	{Name: "muon", Type: arrow.ListOf(arrow.StructOf(
		arrow.Field{Name: "pt", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		arrow.Field{Name: "q", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	)), Nullable: true},
	{Name: "ch", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

func muonRecord(t *testing.T, mem memory.Allocator) arrow.Record {
	t.Helper()
	rec, _, err := array.RecordFromJSON(mem, muonSchema, strings.NewReader(`[
		{"muon": [{"pt": 10, "q": 1}, {"pt": 20, "q": -1}], "ch": "mumu"},
		{"muon": [], "ch": "ee"},
		{"muon": [{"pt": 30, "q": 1}], "ch": "mumu"}
	]`))
	require.NoError(t, err)
	return rec
}

func TestFlatten(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	tests := []struct {
		name string
		dt   arrow.DataType
		js   string
		want hist.Values
	}{
		{
			name: "nested floats with empty and null lists",
			dt:   arrow.ListOf(arrow.PrimitiveTypes.Float64),
			js:   `[[1.5, 2.5], [], null, [3.0]]`,
			want: hist.Float64s{1.5, 2.5, 3.0},
		},
		{
			name: "already flat",
			dt:   arrow.PrimitiveTypes.Float64,
			js:   `[1.5, 2.5, 3.0]`,
			want: hist.Float64s{1.5, 2.5, 3.0},
		},
		{
			name: "doubly nested ints",
			dt:   arrow.ListOf(arrow.ListOf(arrow.PrimitiveTypes.Int64)),
			js:   `[[[1], [2, 3]], [[4]]]`,
			want: hist.Int64s{1, 2, 3, 4},
		},
		{
			name: "null leaves dropped",
			dt:   arrow.ListOf(arrow.PrimitiveTypes.Int32),
			js:   `[[1, null], [3]]`,
			want: hist.Int64s{1, 3},
		},
		{
			name: "booleans",
			dt:   arrow.FixedWidthTypes.Boolean,
			js:   `[true, false]`,
			want: hist.Int64s{1, 0},
		},
		{
			name: "strings",
			dt:   arrow.BinaryTypes.String,
			js:   `["ee", "mumu"]`,
			want: hist.Strings{"ee", "mumu"},
		},
		{
			name: "empty",
			dt:   arrow.ListOf(arrow.PrimitiveTypes.Float64),
			js:   `[]`,
			want: hist.Float64s{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arr := fromJSON(t, mem, tt.dt, tt.js)
			defer arr.Release()

			got, err := Flatten(arr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlattenUnsupportedType(t *testing.T) {
	arr := array.NewNull(3)
	defer arr.Release()

	_, err := Flatten(arr)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestFlattenUint64Overflow(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := array.NewUint64Builder(mem)
	defer b.Release()
	b.AppendValues([]uint64{0, math.MaxInt64}, nil)
	fits := b.NewUint64Array()
	defer fits.Release()
	got, err := Flatten(fits)
	require.NoError(t, err)
	assert.Equal(t, hist.Int64s{0, math.MaxInt64}, got)

	b.AppendValues([]uint64{1, math.MaxInt64 + 1}, nil)
	big := b.NewUint64Array()
	defer big.Release()

	_, err = Flatten(big)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestFlattenDictionary(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	dt := &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int8, ValueType: arrow.BinaryTypes.String}
	b := array.NewDictionaryBuilder(mem, dt).(*array.BinaryDictionaryBuilder)
	defer b.Release()
	for _, s := range []string{"ee", "mumu", "ee"} {
		require.NoError(t, b.AppendString(s))
	}
	arr := b.NewDictionaryArray()
	defer arr.Release()

	got, err := Flatten(arr)
	require.NoError(t, err)
	assert.Equal(t, hist.Strings{"ee", "mumu", "ee"}, got)
}

func TestValuesRejectsNested(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	arr := fromJSON(t, mem, arrow.ListOf(arrow.PrimitiveTypes.Float64), `[[1.0]]`)
	defer arr.Release()

	_, err := Values(arr)
	assert.True(t, errors.IsType(err, errors.ErrorTypeShape))
}

func TestColumnProjectsThroughLists(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec := muonRecord(t, mem)
	defer rec.Release()

	pt, err := Column(rec, "muon.pt")
	require.NoError(t, err)
	defer pt.Release()
	assert.Equal(t, arrow.LIST, pt.DataType().ID())
	assert.Equal(t, 3, pt.Len())

	vals, err := Flatten(pt)
	require.NoError(t, err)
	assert.Equal(t, hist.Float64s{10, 20, 30}, vals)

	q, err := Column(rec, "muon.q")
	require.NoError(t, err)
	defer q.Release()
	qs, err := Flatten(q)
	require.NoError(t, err)
	assert.Equal(t, hist.Int64s{1, -1, 1}, qs)

	ch, err := Column(rec, "ch")
	require.NoError(t, err)
	defer ch.Release()
	chs, err := Values(ch)
	require.NoError(t, err)
	assert.Equal(t, hist.Strings{"mumu", "ee", "mumu"}, chs)
}

func TestColumnErrors(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec := muonRecord(t, mem)
	defer rec.Release()

	for _, path := range []string{"electron", "muon.eta", "ch.pt"} {
		_, err := Column(rec, path)
		assert.True(t, errors.IsType(err, errors.ErrorTypeData), path)
	}
}

func TestBroadcast(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	like := fromJSON(t, mem, arrow.ListOf(arrow.PrimitiveTypes.Float64), `[[1, 2], [], [5]]`)
	defer like.Release()

	perEvent := fromJSON(t, mem, arrow.PrimitiveTypes.Float64, `[2, 3, 4]`)
	defer perEvent.Release()
	w, err := Broadcast(perEvent, like)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 4}, w)

	w, err = Broadcast(nil, like)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1}, w)

	scalar := fromJSON(t, mem, arrow.PrimitiveTypes.Float64, `[0.5]`)
	defer scalar.Release()
	w, err = Broadcast(scalar, like)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, w)

	ints := fromJSON(t, mem, arrow.PrimitiveTypes.Int64, `[1, 2, 3]`)
	defer ints.Release()
	w, err = Broadcast(ints, like)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 3}, w)

	nested := fromJSON(t, mem, arrow.ListOf(arrow.PrimitiveTypes.Float64), `[[0.1, 0.2], [], [0.3]]`)
	defer nested.Release()
	w, err = Broadcast(nested, like)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, w)

	short := fromJSON(t, mem, arrow.PrimitiveTypes.Float64, `[1, 2]`)
	defer short.Release()
	_, err = Broadcast(short, like)
	assert.True(t, errors.IsType(err, errors.ErrorTypeShape))

	withNull := fromJSON(t, mem, arrow.PrimitiveTypes.Float64, `[1, null, 2]`)
	defer withNull.Release()
	_, err = Broadcast(withNull, like)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestBroadcastMatchesFlatten(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	like := fromJSON(t, mem, arrow.ListOf(arrow.PrimitiveTypes.Float64), `[[1, null], null, [3, 4, 5]]`)
	defer like.Release()

	assert.Equal(t, []int{1, 0, 3}, LeafCounts(like))

	vals, err := Flatten(like)
	require.NoError(t, err)
	w, err := Broadcast(nil, like)
	require.NoError(t, err)
	assert.Equal(t, vals.Len(), len(w))
}

func TestNum(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	arr := fromJSON(t, mem, arrow.ListOf(arrow.PrimitiveTypes.Float64), `[[1, 2], [], null]`)
	defer arr.Release()

	n, err := Num(mem, arr)
	require.NoError(t, err)
	defer n.Release()

	counts := n.(*array.Int64)
	assert.Equal(t, int64(2), counts.Value(0))
	assert.Equal(t, int64(0), counts.Value(1))
	assert.True(t, counts.IsNull(2))

	flat := fromJSON(t, mem, arrow.PrimitiveTypes.Float64, `[1]`)
	defer flat.Release()
	_, err = Num(mem, flat)
	assert.True(t, errors.IsType(err, errors.ErrorTypeShape))
}

func TestRepeat(t *testing.T) {
	got, err := Repeat(hist.Strings{"ee", "mumu", "ee"}, []int{2, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, hist.Strings{"ee", "ee", "ee"}, got)

	got, err = Repeat(hist.Int64s{7}, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, hist.Int64s{7, 7, 7}, got)

	_, err = Repeat(hist.Float64s{1, 2}, []int{1, 1, 1})
	assert.True(t, errors.IsType(err, errors.ErrorTypeShape))
}

func TestWithConstant(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	schema := arrow.NewSchema([]arrow.Field{{Name: "pt", Type: arrow.PrimitiveTypes.Float64}}, nil)
	rec, _, err := array.RecordFromJSON(mem, schema, strings.NewReader(`[{"pt": 1}, {"pt": 2}]`))
	require.NoError(t, err)
	defer rec.Release()

	out := WithConstant(mem, rec, "ch", "ee")
	defer out.Release()
	assert.Equal(t, int64(2), out.NumCols())

	ch, err := Column(out, "ch")
	require.NoError(t, err)
	defer ch.Release()
	vals, err := Values(ch)
	require.NoError(t, err)
	assert.Equal(t, hist.Strings{"ee", "ee"}, vals)

	same := WithConstant(mem, out, "ch", "mumu")
	defer same.Release()
	assert.Equal(t, int64(2), same.NumCols())
}
