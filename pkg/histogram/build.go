package histogram

import (
	"math"

	"go.uber.org/zap"

	"github.com/ajitpratap0/histfill/pkg/config"
	"github.com/ajitpratap0/histfill/pkg/errors"
	"github.com/ajitpratap0/histfill/pkg/hist"
)

// Build creates a Histogram from its configuration
func Build(cfg config.HistogramConfig, opts ...Option) (*Histogram, error) {
	storage, err := hist.ParseStorage(cfg.Storage)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid storage").WithDetail("histogram", cfg.Name)
	}

	axes := make([]*Axis, 0, len(cfg.Axes))
	for _, ac := range cfg.Axes {
		def, err := buildAxis(ac)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid axis").
				WithDetail("histogram", cfg.Name).
				WithDetail("axis", ac.Name)
		}
		fill := Field(ac.FieldPath())
		if ac.Op == config.OpNum {
			fill = Num(ac.FieldPath())
		}
		axes = append(axes, NewAxis(def, fill))
	}

	base := []Option{WithStorage(storage)}
	if cfg.NoChannel {
		base = append(base, WithoutChannel())
	}
	return New(axes, append(base, opts...)...), nil
}

func buildAxis(ac config.AxisConfig) (hist.Axis, error) {
	var opts []hist.AxisOption
	if ac.Label != "" {
		opts = append(opts, hist.WithLabel(ac.Label))
	}
	if ac.Underflow != nil && !*ac.Underflow {
		opts = append(opts, hist.WithoutUnderflow())
	}
	if ac.Overflow != nil && !*ac.Overflow {
		opts = append(opts, hist.WithoutOverflow())
	}
	if ac.Growth {
		opts = append(opts, hist.WithGrowth())
	}

	switch ac.Type {
	case config.AxisRegular:
		return hist.NewRegular(ac.Name, ac.Bins, ac.Start, ac.Stop, opts...)
	case config.AxisVariable:
		return hist.NewVariable(ac.Name, ac.Edges, opts...)
	case config.AxisInteger:
		if ac.Start != math.Trunc(ac.Start) || ac.Stop != math.Trunc(ac.Stop) {
			return nil, errors.New(errors.ErrorTypeConfig, "integer axis range must be whole numbers")
		}
		return hist.NewInteger(ac.Name, int64(ac.Start), int64(ac.Stop), opts...)
	case config.AxisBoolean:
		return hist.NewBoolean(ac.Name, opts...)
	case config.AxisIntCategory:
		return hist.NewIntCategory(ac.Name, ac.IntCategories, opts...)
	case config.AxisStrCategory:
		return hist.NewStrCategory(ac.Name, ac.StrCategories, opts...)
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unknown axis type %q", ac.Type)
}

// BuildCollection books every configured histogram
func BuildCollection(cfg *config.AnalysisConfig, log *zap.Logger) (*Collection, error) {
	col := NewCollection()
	for _, hc := range cfg.Histograms {
		h, err := Build(hc, WithLogger(log.With(zap.String("histogram", hc.Name))))
		if err != nil {
			return nil, err
		}
		if err := col.Add(hc.Name, h); err != nil {
			return nil, err
		}
	}
	return col, nil
}
