package histogram

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/histfill/pkg/columnar"
	"github.com/ajitpratap0/histfill/pkg/hist"
)

// FillFunc derives the values of one axis from a batch of events. The
// returned array is owned by the caller, which releases it after filling.
type FillFunc func(objs arrow.Record) (arrow.Array, error)

// Axis pairs an axis definition with the function that fills it
type Axis struct {
	def  hist.Axis
	name string
	fill FillFunc
}

// NewAxis creates an Axis named after def. Nothing is validated here;
// mismatches between fill output and def surface when filling.
func NewAxis(def hist.Axis, fill FillFunc) *Axis {
	return &Axis{def: def, name: def.Name(), fill: fill}
}

// Name returns the axis name
func (a *Axis) Name() string { return a.name }

// Def returns the axis definition
func (a *Axis) Def() hist.Axis { return a.def }

// Values runs the fill function on objs
func (a *Axis) Values(objs arrow.Record) (arrow.Array, error) {
	return a.fill(objs)
}

// Field returns a FillFunc reading the column at a dotted path such as
// "muon.pt"
func Field(path string) FillFunc {
	return func(objs arrow.Record) (arrow.Array, error) {
		return columnar.Column(objs, path)
	}
}

// Num returns a FillFunc counting the elements of the list column at path
// for every event
func Num(path string) FillFunc {
	return func(objs arrow.Record) (arrow.Array, error) {
		col, err := columnar.Column(objs, path)
		if err != nil {
			return nil, err
		}
		defer col.Release()
		return columnar.Num(memory.DefaultAllocator, col)
	}
}
