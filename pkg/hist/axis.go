package hist

import (
	"fmt"
	"math"
	"sort"

	"github.com/ajitpratap0/histfill/pkg/errors"
)

// Kind identifies the binning scheme of an axis
type Kind string

const (
	KindRegular     Kind = "regular"
	KindVariable    Kind = "variable"
	KindInteger     Kind = "integer"
	KindBoolean     Kind = "boolean"
	KindIntCategory Kind = "int_category"
	KindStrCategory Kind = "str_category"
)

// Axis describes one dimension of a histogram.
//
// Bins are addressed from -1 (underflow) to Size() (overflow); the flow bins
// only exist when Underflow or Overflow report true.
type Axis interface {
	Name() string
	Label() string
	Kind() Kind
	Size() int
	Underflow() bool
	Overflow() bool
	// Locate returns the bin of row i of v. Growing axes may extend Size()
	// as a side effect.
	Locate(v Values, i int) (int, error)
	// BinLabel returns a printable label for bin i.
	BinLabel(i int) string

	snapshot() AxisSnapshot
	clone() Axis
	growable() bool
}

// extent is the number of storage cells along the axis, flow bins included
func extent(a Axis) int {
	n := a.Size()
	if a.Underflow() {
		n++
	}
	if a.Overflow() {
		n++
	}
	return n
}

func underflowOffset(a Axis) int {
	if a.Underflow() {
		return 1
	}
	return 0
}

// AxisOption configures an axis
type AxisOption func(*axisOptions)

type axisOptions struct {
	label     string
	underflow bool
	overflow  bool
	growth    bool
}

// WithLabel sets the human readable axis label
func WithLabel(label string) AxisOption {
	return func(o *axisOptions) { o.label = label }
}

// WithoutUnderflow drops values below the axis range instead of counting them
func WithoutUnderflow() AxisOption {
	return func(o *axisOptions) { o.underflow = false }
}

// WithoutOverflow drops values above the axis range, or rejects unknown
// categories, instead of counting them
func WithoutOverflow() AxisOption {
	return func(o *axisOptions) { o.overflow = false }
}

// WithGrowth lets a category axis append unseen labels. A growing axis has
// no overflow bin.
func WithGrowth() AxisOption {
	return func(o *axisOptions) {
		o.growth = true
		o.overflow = false
	}
}

func buildOptions(underflow bool, opts []AxisOption) axisOptions {
	o := axisOptions{underflow: underflow, overflow: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type base struct {
	name string
	opts axisOptions
}

func (b *base) Name() string    { return b.name }
func (b *base) Label() string   { return b.opts.label }
func (b *base) Underflow() bool { return b.opts.underflow }
func (b *base) Overflow() bool  { return b.opts.overflow }

func (b *base) growable() bool { return b.opts.growth }

func (b *base) flowLabel(i, size int) (string, bool) {
	switch {
	case i < 0:
		return "underflow", true
	case i >= size:
		return "overflow", true
	}
	return "", false
}

func (b *base) fillSnapshot(s *AxisSnapshot) {
	s.Name = b.name
	s.Label = b.opts.label
	s.Underflow = b.opts.underflow
	s.Overflow = b.opts.overflow
	s.Growth = b.opts.growth
}

func requireName(name string) error {
	if name == "" {
		return errors.New(errors.ErrorTypeAxis, "axis name is required")
	}
	return nil
}

// Regular is an axis of equal-width bins over [start, stop)
type Regular struct {
	base
	bins        int
	start, stop float64
}

// NewRegular creates a regular axis with bins equal-width bins over [start, stop)
func NewRegular(name string, bins int, start, stop float64, opts ...AxisOption) (*Regular, error) {
	if err := requireName(name); err != nil {
		return nil, err
	}
	if bins <= 0 {
		return nil, errors.Newf(errors.ErrorTypeAxis, "regular axis %q needs at least one bin", name)
	}
	if !(stop > start) || math.IsInf(start, 0) || math.IsInf(stop, 0) {
		return nil, errors.Newf(errors.ErrorTypeAxis, "regular axis %q has invalid range [%v, %v)", name, start, stop)
	}
	o := buildOptions(true, opts)
	o.growth = false
	return &Regular{base: base{name: name, opts: o}, bins: bins, start: start, stop: stop}, nil
}

func (a *Regular) Kind() Kind { return KindRegular }
func (a *Regular) Size() int  { return a.bins }

// Index returns the bin containing x
func (a *Regular) Index(x float64) int {
	if math.IsNaN(x) {
		return a.bins
	}
	z := (x - a.start) / (a.stop - a.start)
	if z < 0 {
		return -1
	}
	if z >= 1 {
		return a.bins
	}
	b := int(z * float64(a.bins))
	if b >= a.bins {
		b = a.bins - 1
	}
	return b
}

func (a *Regular) Locate(v Values, i int) (int, error) {
	x, err := floatAt(v, i)
	if err != nil {
		return 0, err
	}
	return a.Index(x), nil
}

// Edges returns the bins+1 bin edges
func (a *Regular) Edges() []float64 {
	edges := make([]float64, a.bins+1)
	width := (a.stop - a.start) / float64(a.bins)
	for i := range edges {
		edges[i] = a.start + float64(i)*width
	}
	edges[a.bins] = a.stop
	return edges
}

func (a *Regular) BinLabel(i int) string {
	if l, ok := a.flowLabel(i, a.bins); ok {
		return l
	}
	edges := a.Edges()
	return fmt.Sprintf("[%g, %g)", edges[i], edges[i+1])
}

func (a *Regular) snapshot() AxisSnapshot {
	s := AxisSnapshot{Kind: KindRegular, Regular: &RegularRange{Bins: a.bins, Start: a.start, Stop: a.stop}}
	a.fillSnapshot(&s)
	return s
}

func (a *Regular) clone() Axis { c := *a; return &c }

// Variable is an axis with arbitrary increasing bin edges
type Variable struct {
	base
	edges []float64
}

// NewVariable creates an axis from at least two strictly increasing edges
func NewVariable(name string, edges []float64, opts ...AxisOption) (*Variable, error) {
	if err := requireName(name); err != nil {
		return nil, err
	}
	if len(edges) < 2 {
		return nil, errors.Newf(errors.ErrorTypeAxis, "variable axis %q needs at least two edges", name)
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return nil, errors.Newf(errors.ErrorTypeAxis, "variable axis %q edges must be strictly increasing", name)
		}
	}
	o := buildOptions(true, opts)
	o.growth = false
	return &Variable{base: base{name: name, opts: o}, edges: append([]float64(nil), edges...)}, nil
}

func (a *Variable) Kind() Kind { return KindVariable }
func (a *Variable) Size() int  { return len(a.edges) - 1 }

// Edges returns a copy of the bin edges
func (a *Variable) Edges() []float64 { return append([]float64(nil), a.edges...) }

// Index returns the bin containing x
func (a *Variable) Index(x float64) int {
	if math.IsNaN(x) {
		return a.Size()
	}
	if x < a.edges[0] {
		return -1
	}
	if x >= a.edges[len(a.edges)-1] {
		return a.Size()
	}
	return sort.Search(len(a.edges), func(k int) bool { return a.edges[k] > x }) - 1
}

func (a *Variable) Locate(v Values, i int) (int, error) {
	x, err := floatAt(v, i)
	if err != nil {
		return 0, err
	}
	return a.Index(x), nil
}

func (a *Variable) BinLabel(i int) string {
	if l, ok := a.flowLabel(i, a.Size()); ok {
		return l
	}
	return fmt.Sprintf("[%g, %g)", a.edges[i], a.edges[i+1])
}

func (a *Variable) snapshot() AxisSnapshot {
	s := AxisSnapshot{Kind: KindVariable, Edges: a.Edges()}
	a.fillSnapshot(&s)
	return s
}

func (a *Variable) clone() Axis {
	c := *a
	c.edges = a.Edges()
	return &c
}

// Integer is an axis with one bin per integer in [start, stop)
type Integer struct {
	base
	start, stop int64
}

// NewInteger creates an integer axis over [start, stop)
func NewInteger(name string, start, stop int64, opts ...AxisOption) (*Integer, error) {
	if err := requireName(name); err != nil {
		return nil, err
	}
	if stop <= start {
		return nil, errors.Newf(errors.ErrorTypeAxis, "integer axis %q has invalid range [%d, %d)", name, start, stop)
	}
	o := buildOptions(true, opts)
	o.growth = false
	return &Integer{base: base{name: name, opts: o}, start: start, stop: stop}, nil
}

func (a *Integer) Kind() Kind { return KindInteger }
func (a *Integer) Size() int  { return int(a.stop - a.start) }

// Index returns the bin holding n
func (a *Integer) Index(n int64) int {
	if n < a.start {
		return -1
	}
	if n >= a.stop {
		return a.Size()
	}
	return int(n - a.start)
}

func (a *Integer) Locate(v Values, i int) (int, error) {
	if f, ok := v.(Float64s); ok {
		x := f[row(v, i)]
		switch {
		case math.IsNaN(x), x >= float64(a.stop):
			return a.Size(), nil
		case x < float64(a.start):
			return -1, nil
		}
		return a.Index(int64(math.Floor(x))), nil
	}
	n, err := intAt(v, i)
	if err != nil {
		return 0, err
	}
	return a.Index(n), nil
}

func (a *Integer) BinLabel(i int) string {
	if l, ok := a.flowLabel(i, a.Size()); ok {
		return l
	}
	return fmt.Sprintf("%d", a.start+int64(i))
}

func (a *Integer) snapshot() AxisSnapshot {
	s := AxisSnapshot{Kind: KindInteger, Integer: &IntegerRange{Start: a.start, Stop: a.stop}}
	a.fillSnapshot(&s)
	return s
}

func (a *Integer) clone() Axis { c := *a; return &c }

// Boolean is a two-bin axis: false then true
type Boolean struct {
	base
}

// NewBoolean creates a boolean axis. Any non-zero value is true.
func NewBoolean(name string, opts ...AxisOption) (*Boolean, error) {
	if err := requireName(name); err != nil {
		return nil, err
	}
	o := buildOptions(false, opts)
	o.underflow, o.overflow, o.growth = false, false, false
	return &Boolean{base: base{name: name, opts: o}}, nil
}

func (a *Boolean) Kind() Kind { return KindBoolean }
func (a *Boolean) Size() int  { return 2 }

func (a *Boolean) Locate(v Values, i int) (int, error) {
	x, err := floatAt(v, i)
	if err != nil {
		return 0, err
	}
	if x != 0 {
		return 1, nil
	}
	return 0, nil
}

func (a *Boolean) BinLabel(i int) string {
	if i == 1 {
		return "true"
	}
	return "false"
}

func (a *Boolean) snapshot() AxisSnapshot {
	s := AxisSnapshot{Kind: KindBoolean}
	a.fillSnapshot(&s)
	return s
}

func (a *Boolean) clone() Axis { c := *a; return &c }
