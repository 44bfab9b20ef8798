package columnar

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/ajitpratap0/histfill/pkg/errors"
	"github.com/ajitpratap0/histfill/pkg/hist"
)

// LeafCounts returns, for each top-level element of arr, how many non-null
// leaves Flatten would produce from it
func LeafCounts(arr arrow.Array) []int {
	counts := make([]int, arr.Len())
	for i := range counts {
		n := 0
		_ = walk(arr, i, i+1, func(arrow.Array, int) error {
			n++
			return nil
		})
		counts[i] = n
	}
	return counts
}

// Broadcast multiplies weights by ones shaped like like and flattens the
// result, yielding one weight per value of Flatten(like).
//
// A nil weights array means unit weights and a length-one array is a
// scalar. A flat array holds one weight per top-level element of like. An
// array nested the same way as like is flattened element-wise.
func Broadcast(weights, like arrow.Array) ([]float64, error) {
	counts := LeafCounts(like)
	total := 0
	for _, n := range counts {
		total += n
	}

	if weights == nil {
		out := make([]float64, total)
		for i := range out {
			out[i] = 1
		}
		return out, nil
	}

	if _, nested := weights.(array.ListLike); nested {
		v, err := Flatten(weights)
		if err != nil {
			return nil, err
		}
		w, err := numeric(v)
		if err != nil {
			return nil, err
		}
		if len(w) != total {
			return nil, errors.New(errors.ErrorTypeShape, "nested weights do not match fill structure").
				WithDetail("weights", len(w)).
				WithDetail("entries", total)
		}
		return w, nil
	}

	w, err := Float64s(weights)
	if err != nil {
		return nil, errors.Wrap(err, "", "invalid event weights")
	}

	out := make([]float64, 0, total)
	switch len(w) {
	case 1:
		for i := 0; i < total; i++ {
			out = append(out, w[0])
		}
	case len(counts):
		for i, n := range counts {
			for j := 0; j < n; j++ {
				out = append(out, w[i])
			}
		}
	default:
		return nil, errors.New(errors.ErrorTypeShape, "event weights do not match number of events").
			WithDetail("weights", len(w)).
			WithDetail("events", len(counts))
	}
	return out, nil
}

// Repeat expands per-event values so element i appears counts[i] times.
// A length-one v is treated as a scalar.
func Repeat(v hist.Values, counts []int) (hist.Values, error) {
	if v.Len() != len(counts) && v.Len() != 1 {
		return nil, errors.New(errors.ErrorTypeShape, "values do not match number of events").
			WithDetail("values", v.Len()).
			WithDetail("events", len(counts))
	}
	src := func(i int) int {
		if v.Len() == 1 {
			return 0
		}
		return i
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	switch c := v.(type) {
	case hist.Float64s:
		out := make(hist.Float64s, 0, total)
		for i, n := range counts {
			for j := 0; j < n; j++ {
				out = append(out, c[src(i)])
			}
		}
		return out, nil
	case hist.Int64s:
		out := make(hist.Int64s, 0, total)
		for i, n := range counts {
			for j := 0; j < n; j++ {
				out = append(out, c[src(i)])
			}
		}
		return out, nil
	case hist.Strings:
		out := make(hist.Strings, 0, total)
		for i, n := range counts {
			for j := 0; j < n; j++ {
				out = append(out, c[src(i)])
			}
		}
		return out, nil
	}
	return nil, errors.Newf(errors.ErrorTypeData, "cannot repeat %T", v)
}
