package hist

import (
	"math"

	"github.com/ajitpratap0/histfill/pkg/errors"
)

// Values is a flat column of fill values for one axis.
// A column of length one is broadcast against the other columns.
type Values interface {
	Len() int
}

// Float64s is a column of floating point values
type Float64s []float64

// Len returns the number of values
func (v Float64s) Len() int { return len(v) }

// Int64s is a column of integer values
type Int64s []int64

// Len returns the number of values
func (v Int64s) Len() int { return len(v) }

// Strings is a column of string values
type Strings []string

// Len returns the number of values
func (v Strings) Len() int { return len(v) }

func row(v Values, i int) int {
	if v.Len() == 1 {
		return 0
	}
	return i
}

func floatAt(v Values, i int) (float64, error) {
	switch c := v.(type) {
	case Float64s:
		return c[row(v, i)], nil
	case Int64s:
		return float64(c[row(v, i)]), nil
	default:
		return 0, errors.Newf(errors.ErrorTypeData, "numeric axis cannot be filled with %T", v)
	}
}

func intAt(v Values, i int) (int64, error) {
	switch c := v.(type) {
	case Int64s:
		return c[row(v, i)], nil
	case Float64s:
		x := c[row(v, i)]
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, errors.Newf(errors.ErrorTypeData, "non-integral value %v on integer axis", x)
		}
		return int64(x), nil
	default:
		return 0, errors.Newf(errors.ErrorTypeData, "integer axis cannot be filled with %T", v)
	}
}

func stringAt(v Values, i int) (string, error) {
	c, ok := v.(Strings)
	if !ok {
		return "", errors.Newf(errors.ErrorTypeData, "string axis cannot be filled with %T", v)
	}
	return c[row(v, i)], nil
}
