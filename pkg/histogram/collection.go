package histogram

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/ajitpratap0/histfill/pkg/errors"
	"github.com/ajitpratap0/histfill/pkg/hist"
)

// Collection keeps the histograms of an analysis in booking order
type Collection struct {
	names []string
	hists map[string]*Histogram
}

// NewCollection creates an empty collection
func NewCollection() *Collection {
	return &Collection{hists: make(map[string]*Histogram)}
}

// Add books h under name
func (c *Collection) Add(name string, h *Histogram) error {
	if name == "" {
		return errors.New(errors.ErrorTypeConfig, "histogram name is required")
	}
	if _, dup := c.hists[name]; dup {
		return errors.New(errors.ErrorTypeConfig, "duplicate histogram").WithDetail("histogram", name)
	}
	c.names = append(c.names, name)
	c.hists[name] = h
	return nil
}

// Get returns the histogram booked under name
func (c *Collection) Get(name string) (*Histogram, bool) {
	h, ok := c.hists[name]
	return h, ok
}

// Names returns the histogram names in booking order
func (c *Collection) Names() []string { return append([]string(nil), c.names...) }

// Len returns the number of histograms
func (c *Collection) Len() int { return len(c.names) }

// MakeHists calls MakeHist on every histogram
func (c *Collection) MakeHists(channels []string) error {
	for _, name := range c.names {
		if err := c.hists[name].MakeHist(channels); err != nil {
			return errors.Wrap(err, "", "cannot make histogram").WithDetail("histogram", name)
		}
	}
	return nil
}

// Fill fills every histogram from objs in booking order and stops at the
// first error
func (c *Collection) Fill(objs arrow.Record, evtWeights arrow.Array) error {
	for _, name := range c.names {
		if err := c.hists[name].Fill(objs, evtWeights); err != nil {
			return errors.Wrap(err, "", "cannot fill histogram").WithDetail("histogram", name)
		}
	}
	return nil
}

// Entries returns the total entries counted over all made histograms
func (c *Collection) Entries() int64 {
	var n int64
	for _, name := range c.names {
		if h := c.hists[name].Hist(); h != nil {
			n += h.Entries()
		}
	}
	return n
}

// Snapshots captures every histogram keyed by name
func (c *Collection) Snapshots() (map[string]hist.Snapshot, error) {
	out := make(map[string]hist.Snapshot, len(c.names))
	for _, name := range c.names {
		s, err := c.hists[name].Snapshot()
		if err != nil {
			return nil, errors.Wrap(err, "", "cannot snapshot histogram").WithDetail("histogram", name)
		}
		out[name] = s
	}
	return out, nil
}
