package columnar

import (
	"math"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/ajitpratap0/histfill/pkg/errors"
	"github.com/ajitpratap0/histfill/pkg/hist"
)

type leafKind int

const (
	leafFloat leafKind = iota
	leafInt
	leafString
)

func kindOf(dt arrow.DataType) (leafKind, error) {
	switch t := dt.(type) {
	case arrow.ListLikeType:
		return kindOf(t.Elem())
	case *arrow.DictionaryType:
		return kindOf(t.ValueType)
	}

	switch dt.ID() {
	case arrow.FLOAT32, arrow.FLOAT64:
		return leafFloat, nil
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64, arrow.BOOL:
		return leafInt, nil
	case arrow.STRING, arrow.LARGE_STRING:
		return leafString, nil
	}
	return 0, errors.New(errors.ErrorTypeData, "unsupported column type").WithDetail("type", dt.String())
}

// Flatten removes all list nesting from arr and drops nulls, returning the
// leaf values in order
func Flatten(arr arrow.Array) (hist.Values, error) {
	kind, err := kindOf(arr.DataType())
	if err != nil {
		return nil, err
	}
	c := &collector{kind: kind}
	if err := walk(arr, 0, arr.Len(), c.add); err != nil {
		return nil, err
	}
	return c.values(), nil
}

// Values converts a flat array to fill values, dropping nulls. Nested
// arrays are rejected.
func Values(arr arrow.Array) (hist.Values, error) {
	if _, nested := arr.DataType().(arrow.ListLikeType); nested {
		return nil, errors.New(errors.ErrorTypeShape, "nested array must be flattened before filling").
			WithDetail("type", arr.DataType().String())
	}
	return Flatten(arr)
}

// Float64s returns the values of a flat numeric array without nulls
func Float64s(arr arrow.Array) ([]float64, error) {
	if arr.NullN() > 0 {
		return nil, errors.New(errors.ErrorTypeData, "numeric array contains nulls").WithDetail("nulls", arr.NullN())
	}
	v, err := Values(arr)
	if err != nil {
		return nil, err
	}
	return numeric(v)
}

func numeric(v hist.Values) ([]float64, error) {
	switch c := v.(type) {
	case hist.Float64s:
		return c, nil
	case hist.Int64s:
		out := make([]float64, len(c))
		for i, n := range c {
			out[i] = float64(n)
		}
		return out, nil
	}
	return nil, errors.Newf(errors.ErrorTypeData, "%T values are not numeric", v)
}

// walk visits every non-null leaf of arr[start:end] in order
func walk(arr arrow.Array, start, end int, visit func(arrow.Array, int) error) error {
	if list, ok := arr.(array.ListLike); ok {
		values := list.ListValues()
		for i := start; i < end; i++ {
			if list.IsNull(i) {
				continue
			}
			s, e := list.ValueOffsets(i)
			if err := walk(values, int(s), int(e), visit); err != nil {
				return err
			}
		}
		return nil
	}

	for i := start; i < end; i++ {
		if arr.IsNull(i) {
			continue
		}
		if err := visit(arr, i); err != nil {
			return err
		}
	}
	return nil
}

type collector struct {
	kind   leafKind
	floats hist.Float64s
	ints   hist.Int64s
	strs   hist.Strings
}

func (c *collector) values() hist.Values {
	switch c.kind {
	case leafFloat:
		if c.floats == nil {
			return hist.Float64s{}
		}
		return c.floats
	case leafInt:
		if c.ints == nil {
			return hist.Int64s{}
		}
		return c.ints
	}
	if c.strs == nil {
		return hist.Strings{}
	}
	return c.strs
}

func (c *collector) add(leaf arrow.Array, i int) error {
	switch a := leaf.(type) {
	case *array.Float64:
		c.floats = append(c.floats, a.Value(i))
	case *array.Float32:
		c.floats = append(c.floats, float64(a.Value(i)))
	case *array.Int64:
		c.ints = append(c.ints, a.Value(i))
	case *array.Int32:
		c.ints = append(c.ints, int64(a.Value(i)))
	case *array.Int16:
		c.ints = append(c.ints, int64(a.Value(i)))
	case *array.Int8:
		c.ints = append(c.ints, int64(a.Value(i)))
	case *array.Uint64:
		u := a.Value(i)
		if u > math.MaxInt64 {
			return errors.New(errors.ErrorTypeData, "uint64 value overflows int64").WithDetail("value", u)
		}
		c.ints = append(c.ints, int64(u))
	case *array.Uint32:
		c.ints = append(c.ints, int64(a.Value(i)))
	case *array.Uint16:
		c.ints = append(c.ints, int64(a.Value(i)))
	case *array.Uint8:
		c.ints = append(c.ints, int64(a.Value(i)))
	case *array.Boolean:
		var n int64
		if a.Value(i) {
			n = 1
		}
		c.ints = append(c.ints, n)
	case *array.String:
		c.strs = append(c.strs, strings.Clone(a.Value(i)))
	case *array.LargeString:
		c.strs = append(c.strs, strings.Clone(a.Value(i)))
	case *array.Dictionary:
		dict := a.Dictionary()
		j := a.GetValueIndex(i)
		if dict.IsNull(j) {
			return nil
		}
		return c.add(dict, j)
	default:
		return errors.New(errors.ErrorTypeData, "unsupported column type").WithDetail("type", leaf.DataType().String())
	}
	return nil
}
