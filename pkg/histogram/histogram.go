package histogram

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"go.uber.org/zap"

	"github.com/ajitpratap0/histfill/pkg/columnar"
	"github.com/ajitpratap0/histfill/pkg/errors"
	"github.com/ajitpratap0/histfill/pkg/hist"
	"github.com/ajitpratap0/histfill/pkg/logger"
)

const (
	// ChannelAxisName names the category axis prepended by MakeHist
	ChannelAxisName = "channel"
	// ChannelField is the event column holding the channel label
	ChannelField = "ch"
)

// Histogram holds axes and a storage mode, and builds the underlying
// histogram once the channel labels are known
type Histogram struct {
	axes    []*Axis
	storage hist.Storage
	hist    *hist.Hist
	channel bool
	noChan  bool
	logger  *zap.Logger
}

// Option configures a Histogram
type Option func(*Histogram)

// WithStorage sets the storage mode. The default is weight.
func WithStorage(s hist.Storage) Option {
	return func(h *Histogram) {
		h.storage = s
	}
}

// WithoutChannel makes MakeHist ignore channel labels
func WithoutChannel() Option {
	return func(h *Histogram) {
		h.noChan = true
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(h *Histogram) {
		h.logger = l
	}
}

// New creates a Histogram over axes. The underlying histogram does not
// exist until MakeHist is called.
func New(axes []*Axis, opts ...Option) *Histogram {
	h := &Histogram{
		axes:    append([]*Axis(nil), axes...),
		storage: hist.StorageWeight,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get()
	}
	return h
}

// Axes returns the axes in fill order, the channel axis first when present
func (h *Histogram) Axes() []*Axis { return append([]*Axis(nil), h.axes...) }

// Storage returns the storage mode
func (h *Histogram) Storage() hist.Storage { return h.storage }

// Made reports whether MakeHist has succeeded
func (h *Histogram) Made() bool { return h.hist != nil }

// Hist returns the underlying histogram, or nil before MakeHist
func (h *Histogram) Hist() *hist.Hist { return h.hist }

// MakeHist builds the underlying histogram. When channels is non-nil a
// category axis named "channel" holding exactly those labels is prepended,
// filled from the "ch" column of the events.
//
// MakeHist must be called exactly once; later calls return a state error
// and leave the histogram untouched.
func (h *Histogram) MakeHist(channels []string) error {
	if h.hist != nil {
		return errors.New(errors.ErrorTypeState, "histogram already made")
	}

	if h.noChan {
		channels = nil
	}
	axes := h.axes
	if channels != nil {
		def, err := hist.NewStrCategory(ChannelAxisName, channels)
		if err != nil {
			return errors.Wrap(err, "", "cannot create channel axis")
		}
		axes = append([]*Axis{NewAxis(def, Field(ChannelField))}, h.axes...)
	}

	defs := make([]hist.Axis, len(axes))
	for i, a := range axes {
		defs[i] = a.def
	}
	built, err := hist.New(h.storage, defs...)
	if err != nil {
		return errors.Wrap(err, "", "cannot make histogram")
	}

	h.axes = axes
	h.channel = channels != nil
	h.hist = built
	h.logger.Debug("histogram made",
		zap.Strings("axes", built.AxisNames()),
		zap.Ints("shape", built.Shape(false)),
		zap.String("storage", string(h.storage)))
	return nil
}

// Fill evaluates every axis on objs and fills the histogram. Event weights
// are broadcast against the last axis, so each entry of that axis gets the
// weight of its event. A nil evtWeights fills with unit weights and a
// length-one array is applied to every entry.
//
// Axis values are flattened before filling. The channel axis holds one
// label per event and is repeated per entry when the last axis is nested.
func (h *Histogram) Fill(objs arrow.Record, evtWeights arrow.Array) error {
	if h.hist == nil {
		return errors.New(errors.ErrorTypeState, "fill called before MakeHist")
	}

	arrays := make([]arrow.Array, 0, len(h.axes))
	defer func() {
		for _, arr := range arrays {
			arr.Release()
		}
	}()
	for _, a := range h.axes {
		arr, err := a.Values(objs)
		if err != nil {
			return errors.Wrap(err, "", "cannot evaluate axis").WithDetail("axis", a.name)
		}
		arrays = append(arrays, arr)
	}

	last := arrays[len(arrays)-1]
	weights, err := columnar.Broadcast(evtWeights, last)
	if err != nil {
		return errors.Wrap(err, "", "cannot broadcast event weights")
	}

	values := make(map[string]hist.Values, len(h.axes))
	for i, a := range h.axes {
		var v hist.Values
		if h.channel && i == 0 {
			v, err = h.channelValues(arrays[0], last)
		} else {
			v, err = columnar.Flatten(arrays[i])
		}
		if err != nil {
			return errors.Wrap(err, "", "cannot prepare axis values").WithDetail("axis", a.name)
		}
		values[a.name] = v
	}

	before := h.hist.Entries()
	if err := h.hist.Fill(values, weights); err != nil {
		return errors.Wrap(err, "", "fill failed")
	}
	h.logger.Debug("histogram filled",
		zap.Int64("rows", objs.NumRows()),
		zap.Int("values", len(weights)),
		zap.Int64("entries", h.hist.Entries()-before))
	return nil
}

func (h *Histogram) channelValues(ch, last arrow.Array) (hist.Values, error) {
	v, err := columnar.Values(ch)
	if err != nil {
		return nil, err
	}
	if len(h.axes) == 1 {
		return v, nil
	}
	if _, nested := last.(array.ListLike); !nested {
		return v, nil
	}
	return columnar.Repeat(v, columnar.LeafCounts(last))
}

// Snapshot captures the histogram contents
func (h *Histogram) Snapshot() (hist.Snapshot, error) {
	if h.hist == nil {
		return hist.Snapshot{}, errors.New(errors.ErrorTypeState, "snapshot taken before MakeHist")
	}
	return h.hist.Snapshot(), nil
}
