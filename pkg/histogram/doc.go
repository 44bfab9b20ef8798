// Package histogram binds histogram axes to the event columns that fill
// them.
//
// An Axis pairs a hist.Axis definition with a FillFunc that extracts the
// axis values from a batch of events. A Histogram collects axes and a
// storage mode; the underlying hist.Hist is only built by MakeHist, once
// the channel labels of the run are known:
//
//	pt, _ := hist.NewRegular("pt", 50, 0, 200)
//	h := histogram.New([]*histogram.Axis{
//	    histogram.NewAxis(pt, histogram.Field("muon.pt")),
//	})
//	if err := h.MakeHist([]string{"ee", "mumu"}); err != nil {
//	    return err
//	}
//	if err := h.Fill(batch, weights); err != nil {
//	    return err
//	}
//
// Fill flattens nested list columns, so jagged per-object quantities and
// flat per-event quantities are filled the same way.
package histogram
