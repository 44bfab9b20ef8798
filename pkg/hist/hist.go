package hist

import (
	"fmt"
	"reflect"

	"github.com/ajitpratap0/histfill/pkg/errors"
)

// Bin is the content of one histogram cell
type Bin struct {
	Value    float64 `json:"value"`
	Variance float64 `json:"variance"`
}

// Hist is a multi-dimensional histogram. Cells are stored row-major with the
// last axis varying fastest, flow bins included.
//
// A Hist is not safe for concurrent use.
type Hist struct {
	axes    []Axis
	storage Storage
	extents []int
	strides []int
	sumw    []float64
	sumw2   []float64
	entries int64
}

// New creates an empty histogram over axes
func New(storage Storage, axes ...Axis) (*Hist, error) {
	storage, err := ParseStorage(string(storage))
	if err != nil {
		return nil, err
	}
	if len(axes) == 0 {
		return nil, errors.New(errors.ErrorTypeAxis, "histogram needs at least one axis")
	}
	seen := make(map[string]struct{}, len(axes))
	for _, a := range axes {
		if a == nil {
			return nil, errors.New(errors.ErrorTypeAxis, "nil axis")
		}
		if _, dup := seen[a.Name()]; dup {
			return nil, errors.Newf(errors.ErrorTypeAxis, "duplicate axis name %q", a.Name())
		}
		seen[a.Name()] = struct{}{}
	}

	h := &Hist{axes: make([]Axis, len(axes)), storage: storage}
	for i, a := range axes {
		h.axes[i] = a.clone()
	}
	h.extents, h.strides = layout(h.axes)
	n := cells(h.extents)
	h.sumw = make([]float64, n)
	if storage.tracksVariance() {
		h.sumw2 = make([]float64, n)
	}
	return h, nil
}

func layout(axes []Axis) (extents, strides []int) {
	extents = make([]int, len(axes))
	strides = make([]int, len(axes))
	stride := 1
	for d := len(axes) - 1; d >= 0; d-- {
		extents[d] = extent(axes[d])
		strides[d] = stride
		stride *= extents[d]
	}
	return extents, strides
}

func cells(extents []int) int {
	n := 1
	for _, e := range extents {
		n *= e
	}
	return n
}

// Storage returns the storage mode
func (h *Hist) Storage() Storage { return h.storage }

// Rank returns the number of axes
func (h *Hist) Rank() int { return len(h.axes) }

// Axes returns copies of the axes in order
func (h *Hist) Axes() []Axis {
	axes := make([]Axis, len(h.axes))
	for i, a := range h.axes {
		axes[i] = a.clone()
	}
	return axes
}

// Axis returns a copy of the axis called name and its position
func (h *Hist) Axis(name string) (Axis, int, bool) {
	if i := h.axisIndex(name); i >= 0 {
		return h.axes[i].clone(), i, true
	}
	return nil, -1, false
}

func (h *Hist) axisIndex(name string) int {
	for i, a := range h.axes {
		if a.Name() == name {
			return i
		}
	}
	return -1
}

// AxisNames returns the axis names in order
func (h *Hist) AxisNames() []string {
	names := make([]string, len(h.axes))
	for i, a := range h.axes {
		names[i] = a.Name()
	}
	return names
}

// Entries returns the number of rows counted into any cell
func (h *Hist) Entries() int64 { return h.entries }

// Fill adds one entry per row of the value columns, keyed by axis name.
// Columns and weights must share a length, except that length-one columns
// are broadcast. A nil weights slice fills with unit weights.
//
// Rows outside an axis without the matching flow bin are dropped. No cell
// is modified when an error is returned.
func (h *Hist) Fill(values map[string]Values, weights []float64) error {
	cols := make([]Values, len(h.axes))
	for d, a := range h.axes {
		v, ok := values[a.Name()]
		if !ok || v == nil {
			return errors.New(errors.ErrorTypeAxis, "missing fill values for axis").WithDetail("axis", a.Name())
		}
		cols[d] = v
	}
	if len(values) != len(h.axes) {
		for name := range values {
			if h.axisIndex(name) < 0 {
				return errors.New(errors.ErrorTypeAxis, "fill values for unknown axis").WithDetail("axis", name)
			}
		}
	}

	n, err := fillLength(h.axes, cols, weights)
	if err != nil {
		return err
	}
	if weights != nil && h.storage == StorageInt64 {
		for _, w := range weights {
			if w != 1 {
				return errors.New(errors.ErrorTypeStorage, "int64 storage cannot be filled with weights")
			}
		}
	}
	if n == 0 {
		return nil
	}

	// Growing axes locate against copies so a failed fill leaves the
	// shape untouched.
	work := make([]Axis, len(h.axes))
	for d, a := range h.axes {
		work[d] = a
		if a.growable() {
			work[d] = a.clone()
		}
	}

	bins := make([][]int, len(work))
	for d, a := range work {
		bins[d] = make([]int, n)
		for i := 0; i < n; i++ {
			b, err := a.Locate(cols[d], i)
			if err != nil {
				return errors.Wrap(err, "", "cannot locate fill value").
					WithDetail("axis", a.Name()).
					WithDetail("row", i)
			}
			bins[d][i] = b
		}
	}

	grown := false
	for d, a := range work {
		if a.Size() != h.axes[d].Size() {
			grown = true
		}
	}
	h.axes = work
	if grown {
		h.regrow()
	}

	for i := 0; i < n; i++ {
		idx, ok := h.linear(bins, i)
		if !ok {
			continue
		}
		w := 1.0
		if weights != nil {
			w = weights[row1(len(weights), i)]
		}
		h.sumw[idx] += w
		if h.sumw2 != nil {
			h.sumw2[idx] += w * w
		}
		h.entries++
	}
	return nil
}

func row1(length, i int) int {
	if length == 1 {
		return 0
	}
	return i
}

func fillLength(axes []Axis, cols []Values, weights []float64) (int, error) {
	n := -1
	check := func(name string, l int) error {
		if l == 1 {
			return nil
		}
		if n == -1 {
			n = l
			return nil
		}
		if l != n {
			return errors.New(errors.ErrorTypeShape, "fill arrays have mismatched lengths").
				WithDetail("axis", name).
				WithDetail("length", l).
				WithDetail("expected", n)
		}
		return nil
	}
	for d, c := range cols {
		if err := check(axes[d].Name(), c.Len()); err != nil {
			return 0, err
		}
	}
	if weights != nil {
		if err := check("weight", len(weights)); err != nil {
			return 0, err
		}
	}
	if n == -1 {
		n = 1
	}
	return n, nil
}

func (h *Hist) linear(bins [][]int, i int) (int, bool) {
	idx := 0
	for d, a := range h.axes {
		b := bins[d][i]
		if b < 0 && !a.Underflow() {
			return 0, false
		}
		if b >= a.Size() && !a.Overflow() {
			return 0, false
		}
		idx += (b + underflowOffset(a)) * h.strides[d]
	}
	return idx, true
}

// regrow re-lays out storage after category axes appended bins. Growing
// axes have no flow bins, so existing cells keep their per-axis offsets.
func (h *Hist) regrow() {
	oldExtents, oldStrides := h.extents, h.strides
	h.extents, h.strides = layout(h.axes)
	sumw := make([]float64, cells(h.extents))
	var sumw2 []float64
	if h.sumw2 != nil {
		sumw2 = make([]float64, len(sumw))
	}
	for old := range h.sumw {
		idx := 0
		rem := old
		for d := range oldExtents {
			off := rem / oldStrides[d]
			rem %= oldStrides[d]
			idx += off * h.strides[d]
		}
		sumw[idx] = h.sumw[old]
		if sumw2 != nil {
			sumw2[idx] = h.sumw2[old]
		}
	}
	h.sumw, h.sumw2 = sumw, sumw2
}

// At returns the cell at the given bin indices, -1 addressing underflow and
// Size() addressing overflow
func (h *Hist) At(idx ...int) (Bin, error) {
	i, err := h.offset(idx)
	if err != nil {
		return Bin{}, err
	}
	return h.cell(i), nil
}

// Value returns the content of the cell at idx. It panics if idx does not
// address a cell.
func (h *Hist) Value(idx ...int) float64 {
	b, err := h.At(idx...)
	if err != nil {
		panic(err)
	}
	return b.Value
}

// Variance returns the variance of the cell at idx. It panics if idx does
// not address a cell.
func (h *Hist) Variance(idx ...int) float64 {
	b, err := h.At(idx...)
	if err != nil {
		panic(err)
	}
	return b.Variance
}

func (h *Hist) offset(idx []int) (int, error) {
	if len(idx) != len(h.axes) {
		return 0, errors.Newf(errors.ErrorTypeAxis, "expected %d indices, got %d", len(h.axes), len(idx))
	}
	off := 0
	for d, a := range h.axes {
		b := idx[d]
		lo, hi := 0, a.Size()-1
		if a.Underflow() {
			lo = -1
		}
		if a.Overflow() {
			hi = a.Size()
		}
		if b < lo || b > hi {
			return 0, errors.Newf(errors.ErrorTypeAxis, "index %d out of range for axis %q", b, a.Name())
		}
		off += (b + underflowOffset(a)) * h.strides[d]
	}
	return off, nil
}

func (h *Hist) cell(i int) Bin {
	b := Bin{Value: h.sumw[i], Variance: h.sumw[i]}
	if h.sumw2 != nil {
		b.Variance = h.sumw2[i]
	}
	return b
}

// Shape returns the number of cells along each axis
func (h *Hist) Shape(flow bool) []int {
	shape := make([]int, len(h.axes))
	for d, a := range h.axes {
		if flow {
			shape[d] = h.extents[d]
		} else {
			shape[d] = a.Size()
		}
	}
	return shape
}

// Values returns the cell contents row-major
func (h *Hist) Values(flow bool) []float64 {
	return h.collect(h.sumw, flow)
}

// Variances returns the cell variances row-major. Storages without squared
// weights report Poisson variances.
func (h *Hist) Variances(flow bool) []float64 {
	if h.sumw2 == nil {
		return h.collect(h.sumw, flow)
	}
	return h.collect(h.sumw2, flow)
}

func (h *Hist) collect(src []float64, flow bool) []float64 {
	if flow {
		return append([]float64(nil), src...)
	}
	out := make([]float64, 0, cells(h.Shape(false)))
	for i := range src {
		if h.inRange(i) {
			out = append(out, src[i])
		}
	}
	return out
}

func (h *Hist) inRange(i int) bool {
	for d, a := range h.axes {
		off := (i / h.strides[d]) % h.extents[d]
		b := off - underflowOffset(a)
		if b < 0 || b >= a.Size() {
			return false
		}
	}
	return true
}

// Sum returns the total over all cells
func (h *Hist) Sum(flow bool) Bin {
	var s Bin
	for i := range h.sumw {
		if !flow && !h.inRange(i) {
			continue
		}
		c := h.cell(i)
		s.Value += c.Value
		s.Variance += c.Variance
	}
	return s
}

// Each calls fn for every cell in row-major order with the per-axis bin
// indices, -1 and Size() denoting flow bins. The idx slice is reused
// between calls.
func (h *Hist) Each(flow bool, fn func(idx []int, b Bin)) {
	idx := make([]int, len(h.axes))
	for i := range h.sumw {
		if !flow && !h.inRange(i) {
			continue
		}
		for d, a := range h.axes {
			idx[d] = (i/h.strides[d])%h.extents[d] - underflowOffset(a)
		}
		fn(idx, h.cell(i))
	}
}

// Reset zeroes every cell
func (h *Hist) Reset() {
	for i := range h.sumw {
		h.sumw[i] = 0
	}
	for i := range h.sumw2 {
		h.sumw2[i] = 0
	}
	h.entries = 0
}

// Project sums over every axis not named, keeping the named axes in the
// given order
func (h *Hist) Project(names ...string) (*Hist, error) {
	if len(names) == 0 {
		return nil, errors.New(errors.ErrorTypeAxis, "projection needs at least one axis")
	}
	keep := make([]int, len(names))
	axes := make([]Axis, len(names))
	for i, name := range names {
		a, d, ok := h.Axis(name)
		if !ok {
			return nil, errors.New(errors.ErrorTypeAxis, "unknown axis").WithDetail("axis", name)
		}
		keep[i] = d
		axes[i] = a.clone()
	}
	p, err := New(h.storage, axes...)
	if err != nil {
		return nil, err
	}
	for i := range h.sumw {
		idx := 0
		for j, d := range keep {
			off := (i / h.strides[d]) % h.extents[d]
			idx += off * p.strides[j]
		}
		p.sumw[idx] += h.sumw[i]
		if p.sumw2 != nil {
			p.sumw2[idx] += h.sumw2[i]
		}
	}
	p.entries = h.entries
	return p, nil
}

// Add accumulates other into h. Both histograms must have the same storage
// and identical axes.
func (h *Hist) Add(other *Hist) error {
	if other.storage != h.storage {
		return errors.Newf(errors.ErrorTypeStorage, "cannot add %s storage to %s storage", other.storage, h.storage)
	}
	if len(other.axes) != len(h.axes) {
		return errors.Newf(errors.ErrorTypeAxis, "cannot add rank %d histogram to rank %d", len(other.axes), len(h.axes))
	}
	for d := range h.axes {
		if !reflect.DeepEqual(h.axes[d].snapshot(), other.axes[d].snapshot()) {
			return errors.New(errors.ErrorTypeAxis, "axes differ").WithDetail("axis", h.axes[d].Name())
		}
	}
	for i := range h.sumw {
		h.sumw[i] += other.sumw[i]
	}
	for i := range h.sumw2 {
		h.sumw2[i] += other.sumw2[i]
	}
	h.entries += other.entries
	return nil
}

// Clone returns a deep copy of h
func (h *Hist) Clone() *Hist {
	axes := make([]Axis, len(h.axes))
	for i, a := range h.axes {
		axes[i] = a.clone()
	}
	c := &Hist{
		axes:    axes,
		storage: h.storage,
		extents: append([]int(nil), h.extents...),
		strides: append([]int(nil), h.strides...),
		sumw:    append([]float64(nil), h.sumw...),
		entries: h.entries,
	}
	if h.sumw2 != nil {
		c.sumw2 = append([]float64(nil), h.sumw2...)
	}
	return c
}

// String summarises the histogram layout
func (h *Hist) String() string {
	return fmt.Sprintf("Hist(%v, storage=%s, shape=%v, entries=%d)", h.AxisNames(), h.storage, h.Shape(false), h.entries)
}
