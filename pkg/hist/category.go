package hist

import (
	"strconv"

	"github.com/ajitpratap0/histfill/pkg/errors"
)

// IntCategory is an axis with one bin per listed integer label
type IntCategory struct {
	base
	labels []int64
	index  map[int64]int
}

// NewIntCategory creates an integer category axis. Unknown labels go to the
// overflow bin, are appended (WithGrowth), or are rejected (WithoutOverflow).
func NewIntCategory(name string, labels []int64, opts ...AxisOption) (*IntCategory, error) {
	if err := requireName(name); err != nil {
		return nil, err
	}
	o := buildOptions(false, opts)
	o.underflow = false
	a := &IntCategory{base: base{name: name, opts: o}, index: make(map[int64]int, len(labels))}
	for _, l := range labels {
		if _, dup := a.index[l]; dup {
			return nil, errors.Newf(errors.ErrorTypeAxis, "category axis %q has duplicate label %d", name, l)
		}
		a.index[l] = len(a.labels)
		a.labels = append(a.labels, l)
	}
	return a, nil
}

func (a *IntCategory) Kind() Kind { return KindIntCategory }
func (a *IntCategory) Size() int  { return len(a.labels) }

// Labels returns a copy of the category labels in bin order
func (a *IntCategory) Labels() []int64 { return append([]int64(nil), a.labels...) }

// Index returns the bin of label
func (a *IntCategory) Index(label int64) (int, bool) {
	i, ok := a.index[label]
	return i, ok
}

func (a *IntCategory) Locate(v Values, i int) (int, error) {
	n, err := intAt(v, i)
	if err != nil {
		return 0, err
	}
	if b, ok := a.index[n]; ok {
		return b, nil
	}
	switch {
	case a.opts.growth:
		a.index[n] = len(a.labels)
		a.labels = append(a.labels, n)
		return len(a.labels) - 1, nil
	case a.opts.overflow:
		return len(a.labels), nil
	}
	return 0, errors.New(errors.ErrorTypeCategory, "value is not a category of the axis").
		WithDetail("axis", a.name).
		WithDetail("value", n)
}

func (a *IntCategory) BinLabel(i int) string {
	if l, ok := a.flowLabel(i, len(a.labels)); ok {
		return l
	}
	return strconv.FormatInt(a.labels[i], 10)
}

func (a *IntCategory) snapshot() AxisSnapshot {
	s := AxisSnapshot{Kind: KindIntCategory, IntCategories: a.Labels()}
	a.fillSnapshot(&s)
	return s
}

func (a *IntCategory) clone() Axis {
	c := &IntCategory{base: a.base, labels: a.Labels(), index: make(map[int64]int, len(a.labels))}
	for k, v := range a.index {
		c.index[k] = v
	}
	return c
}

// StrCategory is an axis with one bin per listed string label
type StrCategory struct {
	base
	labels []string
	index  map[string]int
}

// NewStrCategory creates a string category axis. Unknown labels go to the
// overflow bin, are appended (WithGrowth), or are rejected (WithoutOverflow).
func NewStrCategory(name string, labels []string, opts ...AxisOption) (*StrCategory, error) {
	if err := requireName(name); err != nil {
		return nil, err
	}
	o := buildOptions(false, opts)
	o.underflow = false
	a := &StrCategory{base: base{name: name, opts: o}, index: make(map[string]int, len(labels))}
	for _, l := range labels {
		if _, dup := a.index[l]; dup {
			return nil, errors.Newf(errors.ErrorTypeAxis, "category axis %q has duplicate label %q", name, l)
		}
		a.index[l] = len(a.labels)
		a.labels = append(a.labels, l)
	}
	return a, nil
}

func (a *StrCategory) Kind() Kind { return KindStrCategory }
func (a *StrCategory) Size() int  { return len(a.labels) }

// Labels returns a copy of the category labels in bin order
func (a *StrCategory) Labels() []string { return append([]string(nil), a.labels...) }

// Index returns the bin of label
func (a *StrCategory) Index(label string) (int, bool) {
	i, ok := a.index[label]
	return i, ok
}

func (a *StrCategory) Locate(v Values, i int) (int, error) {
	s, err := stringAt(v, i)
	if err != nil {
		return 0, err
	}
	if b, ok := a.index[s]; ok {
		return b, nil
	}
	switch {
	case a.opts.growth:
		a.index[s] = len(a.labels)
		a.labels = append(a.labels, s)
		return len(a.labels) - 1, nil
	case a.opts.overflow:
		return len(a.labels), nil
	}
	return 0, errors.New(errors.ErrorTypeCategory, "value is not a category of the axis").
		WithDetail("axis", a.name).
		WithDetail("value", s)
}

func (a *StrCategory) BinLabel(i int) string {
	if l, ok := a.flowLabel(i, len(a.labels)); ok {
		return l
	}
	return a.labels[i]
}

func (a *StrCategory) snapshot() AxisSnapshot {
	s := AxisSnapshot{Kind: KindStrCategory, StrCategories: a.Labels()}
	a.fillSnapshot(&s)
	return s
}

func (a *StrCategory) clone() Axis {
	c := &StrCategory{base: a.base, labels: a.Labels(), index: make(map[string]int, len(a.labels))}
	for k, v := range a.index {
		c.index[k] = v
	}
	return c
}
