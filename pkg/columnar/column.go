package columnar

import (
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/histfill/pkg/errors"
)

// Column returns the column of rec addressed by a dotted path. The first
// segment names a record column; further segments select struct fields,
// looking through any list levels in between.
func Column(rec arrow.Record, path string) (arrow.Array, error) {
	segs := strings.Split(path, ".")
	idx := rec.Schema().FieldIndices(segs[0])
	if len(idx) == 0 {
		return nil, errors.New(errors.ErrorTypeData, "no such column").
			WithDetail("column", segs[0]).
			WithDetail("path", path)
	}

	col := rec.Column(idx[0])
	col.Retain()
	for _, seg := range segs[1:] {
		next, err := Project(col, seg)
		col.Release()
		if err != nil {
			return nil, errors.Wrap(err, "", "cannot resolve column path").WithDetail("path", path)
		}
		col = next
	}
	return col, nil
}

// Project selects the struct field name from arr. List levels are kept, so
// projecting "pt" out of list<struct<pt, eta>> yields list<pt>.
func Project(arr arrow.Array, name string) (arrow.Array, error) {
	switch a := arr.(type) {
	case *array.Struct:
		st := a.DataType().(*arrow.StructType)
		i, ok := st.FieldIdx(name)
		if !ok {
			return nil, errors.New(errors.ErrorTypeData, "no such struct field").
				WithDetail("field", name).
				WithDetail("type", arr.DataType().String())
		}
		f := a.Field(i)
		f.Retain()
		return f, nil

	case *array.List:
		child, err := Project(a.ListValues(), name)
		if err != nil {
			return nil, err
		}
		defer child.Release()
		return rewrap(a.Data(), arrow.ListOf(child.DataType()), child), nil

	case *array.LargeList:
		child, err := Project(a.ListValues(), name)
		if err != nil {
			return nil, err
		}
		defer child.Release()
		return rewrap(a.Data(), arrow.LargeListOf(child.DataType()), child), nil
	}

	return nil, errors.New(errors.ErrorTypeData, "cannot select a field from this type").
		WithDetail("field", name).
		WithDetail("type", arr.DataType().String())
}

// rewrap builds a list array sharing parent's validity and offsets over a
// new child
func rewrap(parent arrow.ArrayData, dt arrow.DataType, child arrow.Array) arrow.Array {
	data := array.NewData(dt, parent.Len(), parent.Buffers(), []arrow.ArrayData{child.Data()}, parent.NullN(), parent.Offset())
	defer data.Release()
	return array.MakeFromData(data)
}

// Num returns the number of elements of each list in arr, or null where the
// list is null
func Num(mem memory.Allocator, arr arrow.Array) (arrow.Array, error) {
	list, ok := arr.(array.ListLike)
	if !ok {
		return nil, errors.New(errors.ErrorTypeShape, "cannot count elements of a flat array").
			WithDetail("type", arr.DataType().String())
	}

	b := array.NewInt64Builder(mem)
	defer b.Release()
	b.Reserve(list.Len())
	for i := 0; i < list.Len(); i++ {
		if list.IsNull(i) {
			b.AppendNull()
			continue
		}
		start, end := list.ValueOffsets(i)
		b.Append(end - start)
	}
	return b.NewArray(), nil
}

// WithConstant returns rec with a string column name holding value on every
// row. When rec already has the column it is retained and returned as is.
func WithConstant(mem memory.Allocator, rec arrow.Record, name, value string) arrow.Record {
	if len(rec.Schema().FieldIndices(name)) > 0 {
		rec.Retain()
		return rec
	}

	b := array.NewStringBuilder(mem)
	defer b.Release()
	b.Reserve(int(rec.NumRows()))
	for i := int64(0); i < rec.NumRows(); i++ {
		b.Append(value)
	}
	col := b.NewArray()
	defer col.Release()

	fields := append(rec.Schema().Fields(), arrow.Field{Name: name, Type: arrow.BinaryTypes.String})
	cols := append(append([]arrow.Array(nil), rec.Columns()...), col)
	meta := rec.Schema().Metadata()
	return array.NewRecord(arrow.NewSchema(fields, &meta), cols, rec.NumRows())
}
