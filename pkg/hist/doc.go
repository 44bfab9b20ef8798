// Package hist implements multi-dimensional histograms with numeric and
// categorical axes.
//
// # Axes
//
// Each axis maps a fill value to a bin:
//   - Regular: equal-width bins over [start, stop)
//   - Variable: arbitrary increasing edges
//   - Integer: one bin per integer in [start, stop)
//   - Boolean: false and true
//   - IntCategory, StrCategory: one bin per label
//
// Numeric axes carry underflow and overflow bins unless disabled. Category
// axes carry an overflow bin for unknown labels unless disabled, in which
// case unknown labels are an error, or unless they grow.
//
// # Storage
//
// StorageWeight keeps sums of weights and squared weights so that
// Variances reflects weighted fills. StorageDouble and StorageInt64 keep
// only the sums and report Poisson variances.
//
// # Usage
//
//	pt, _ := hist.NewRegular("pt", 50, 0, 200, hist.WithLabel("pT [GeV]"))
//	ch, _ := hist.NewStrCategory("channel", []string{"ee", "mumu"})
//	h, _ := hist.New(hist.StorageWeight, ch, pt)
//
//	err := h.Fill(map[string]hist.Values{
//		"channel": hist.Strings{"ee", "mumu", "ee"},
//		"pt":      hist.Float64s{31.5, 44.0, 12.2},
//	}, []float64{1.0, 0.5, 1.0})
package hist
