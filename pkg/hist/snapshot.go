package hist

import (
	"github.com/ajitpratap0/histfill/pkg/errors"
)

// RegularRange holds the binning of a regular axis
type RegularRange struct {
	Bins  int     `json:"bins" yaml:"bins"`
	Start float64 `json:"start" yaml:"start"`
	Stop  float64 `json:"stop" yaml:"stop"`
}

// IntegerRange holds the range of an integer axis
type IntegerRange struct {
	Start int64 `json:"start" yaml:"start"`
	Stop  int64 `json:"stop" yaml:"stop"`
}

// AxisSnapshot is a serialisable axis description
type AxisSnapshot struct {
	Kind          Kind          `json:"kind"`
	Name          string        `json:"name"`
	Label         string        `json:"label,omitempty"`
	Regular       *RegularRange `json:"regular,omitempty"`
	Integer       *IntegerRange `json:"integer,omitempty"`
	Edges         []float64     `json:"edges,omitempty"`
	IntCategories []int64       `json:"int_categories,omitempty"`
	StrCategories []string      `json:"str_categories,omitempty"`
	Underflow     bool          `json:"underflow"`
	Overflow      bool          `json:"overflow"`
	Growth        bool          `json:"growth,omitempty"`
}

// Snapshot is a serialisable histogram, flow cells included
type Snapshot struct {
	Storage   Storage        `json:"storage"`
	Axes      []AxisSnapshot `json:"axes"`
	Shape     []int          `json:"shape"`
	Entries   int64          `json:"entries"`
	Values    []float64      `json:"values"`
	Variances []float64      `json:"variances,omitempty"`
}

// Snapshot captures the axes and contents of h
func (h *Hist) Snapshot() Snapshot {
	s := Snapshot{
		Storage: h.storage,
		Axes:    make([]AxisSnapshot, len(h.axes)),
		Shape:   h.Shape(true),
		Entries: h.entries,
		Values:  append([]float64(nil), h.sumw...),
	}
	for i, a := range h.axes {
		s.Axes[i] = a.snapshot()
	}
	if h.sumw2 != nil {
		s.Variances = append([]float64(nil), h.sumw2...)
	}
	return s
}

// FromSnapshot rebuilds a histogram from a snapshot
func FromSnapshot(s Snapshot) (*Hist, error) {
	axes := make([]Axis, len(s.Axes))
	for i, as := range s.Axes {
		a, err := AxisFromSnapshot(as)
		if err != nil {
			return nil, err
		}
		axes[i] = a
	}
	h, err := New(s.Storage, axes...)
	if err != nil {
		return nil, err
	}
	if len(s.Values) != len(h.sumw) {
		return nil, errors.New(errors.ErrorTypeShape, "snapshot values do not match axes").
			WithDetail("values", len(s.Values)).
			WithDetail("cells", len(h.sumw))
	}
	copy(h.sumw, s.Values)
	if h.sumw2 != nil {
		switch len(s.Variances) {
		case len(h.sumw2):
			copy(h.sumw2, s.Variances)
		case 0:
			copy(h.sumw2, s.Values)
		default:
			return nil, errors.New(errors.ErrorTypeShape, "snapshot variances do not match axes")
		}
	}
	h.entries = s.Entries
	return h, nil
}

// AxisFromSnapshot rebuilds an axis from its description
func AxisFromSnapshot(s AxisSnapshot) (Axis, error) {
	var opts []AxisOption
	if s.Label != "" {
		opts = append(opts, WithLabel(s.Label))
	}
	if !s.Underflow {
		opts = append(opts, WithoutUnderflow())
	}
	if !s.Overflow {
		opts = append(opts, WithoutOverflow())
	}
	if s.Growth {
		opts = append(opts, WithGrowth())
	}

	switch s.Kind {
	case KindRegular:
		if s.Regular == nil {
			return nil, errors.Newf(errors.ErrorTypeAxis, "regular axis %q has no range", s.Name)
		}
		return NewRegular(s.Name, s.Regular.Bins, s.Regular.Start, s.Regular.Stop, opts...)
	case KindVariable:
		return NewVariable(s.Name, s.Edges, opts...)
	case KindInteger:
		if s.Integer == nil {
			return nil, errors.Newf(errors.ErrorTypeAxis, "integer axis %q has no range", s.Name)
		}
		return NewInteger(s.Name, s.Integer.Start, s.Integer.Stop, opts...)
	case KindBoolean:
		return NewBoolean(s.Name, opts...)
	case KindIntCategory:
		return NewIntCategory(s.Name, s.IntCategories, opts...)
	case KindStrCategory:
		return NewStrCategory(s.Name, s.StrCategories, opts...)
	}
	return nil, errors.Newf(errors.ErrorTypeAxis, "unknown axis kind %q", s.Kind)
}
