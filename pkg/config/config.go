// Package config provides the analysis configuration for histfill.
// It describes where events come from, which histograms to book and how
// their axes are filled, and where results go.
//
// The configuration is organized into sections:
//   - Input: event files, format, batch size and weight column
//   - Channels: channel labels prepended to every histogram
//   - Histograms: storage mode and axis definitions
//   - Output: result location, format and compression
//   - Log, Metrics, Tracing, ObjectStore: ambient settings
//
// Example usage:
//
//	cfg, err := config.LoadAnalysis("analysis.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"

	"github.com/ajitpratap0/histfill/pkg/errors"
	"github.com/ajitpratap0/histfill/pkg/logger"
)

// Input formats
const (
	FormatArrow       = "arrow"
	FormatArrowStream = "arrows"
	FormatParquet     = "parquet"
	FormatCSV         = "csv"
	FormatJSON        = "json"
	FormatAvro        = "avro"
)

// Axis types
const (
	AxisRegular     = "regular"
	AxisVariable    = "variable"
	AxisInteger     = "integer"
	AxisBoolean     = "boolean"
	AxisIntCategory = "int_category"
	AxisStrCategory = "str_category"
)

// OpNum fills an axis with the number of elements per event
const OpNum = "num"

// ChannelAxisName is reserved for the channel axis added at runtime
const ChannelAxisName = "channel"

// AnalysisConfig is the top-level configuration of a histfill run
type AnalysisConfig struct {
	// Name identifies the analysis in logs and metrics
	Name string `yaml:"name" json:"name"`

	Input       InputConfig       `yaml:"input" json:"input"`
	Channels    []string          `yaml:"channels" json:"channels"`
	Histograms  []HistogramConfig `yaml:"histograms" json:"histograms"`
	Output      OutputConfig      `yaml:"output" json:"output"`
	Log         logger.Config     `yaml:"log" json:"log"`
	Metrics     MetricsConfig     `yaml:"metrics" json:"metrics"`
	Tracing     TracingConfig     `yaml:"tracing" json:"tracing"`
	ObjectStore ObjectStoreConfig `yaml:"object_store" json:"object_store"`
}

// InputConfig describes the event source
type InputConfig struct {
	// Dataset labels the events in logs and metrics
	Dataset string `yaml:"dataset" json:"dataset"`
	// Paths are local files, s3:// or gs:// URIs, read in order
	Paths []string `yaml:"paths" json:"paths"`
	// Format overrides detection from the file extension
	Format string `yaml:"format" json:"format"`
	// BatchSize is the number of events per record batch where the reader supports it
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// WeightField names the per-event weight column; empty means unit weights
	WeightField string `yaml:"weight_field" json:"weight_field"`
	// Channel labels every event of this input when it has no ch column
	Channel string `yaml:"channel" json:"channel"`
	// Schema is required for json and avro inputs
	Schema []FieldConfig `yaml:"schema" json:"schema"`
}

// FieldConfig declares one input column. Types are arrow type names such
// as float64, int32, string, bool, list<float64> or
// list<struct<pt:float64,eta:float64>>.
type FieldConfig struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"`
}

// HistogramConfig books one histogram
type HistogramConfig struct {
	Name string `yaml:"name" json:"name"`
	// Storage is weight, double or int64
	Storage string       `yaml:"storage" json:"storage"`
	Axes    []AxisConfig `yaml:"axes" json:"axes"`
	// NoChannel skips the channel axis for this histogram
	NoChannel bool `yaml:"no_channel" json:"no_channel"`
}

// AxisConfig describes one axis and the column that fills it
type AxisConfig struct {
	Type  string `yaml:"type" json:"type"`
	Name  string `yaml:"name" json:"name"`
	Label string `yaml:"label" json:"label"`
	// Field is the dotted column path; defaults to Name
	Field string `yaml:"field" json:"field"`
	// Op transforms the column before filling; "num" counts list elements
	Op            string    `yaml:"op" json:"op"`
	Bins          int       `yaml:"bins" json:"bins"`
	Start         float64   `yaml:"start" json:"start"`
	Stop          float64   `yaml:"stop" json:"stop"`
	Edges         []float64 `yaml:"edges" json:"edges"`
	IntCategories []int64   `yaml:"int_categories" json:"int_categories"`
	StrCategories []string  `yaml:"str_categories" json:"str_categories"`
	Underflow     *bool     `yaml:"underflow" json:"underflow"`
	Overflow      *bool     `yaml:"overflow" json:"overflow"`
	Growth        bool      `yaml:"growth" json:"growth"`
}

// FieldPath returns the column path filling the axis
func (a *AxisConfig) FieldPath() string {
	if a.Field != "" {
		return a.Field
	}
	return a.Name
}

// OutputConfig describes where results are written
type OutputConfig struct {
	// Path is a file for json output and a directory for arrow and parquet
	Path string `yaml:"path" json:"path"`
	// Format is json, arrow or parquet
	Format string `yaml:"format" json:"format"`
	// Compression is none, gzip, zstd, lz4, snappy or s2. Arrow output
	// supports zstd and lz4, parquet output all but s2.
	Compression string `yaml:"compression" json:"compression"`
}

// MetricsConfig controls Prometheus metrics
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	PushGateway string `yaml:"push_gateway" json:"push_gateway"`
	Job         string `yaml:"job" json:"job"`
}

// TracingConfig controls OpenTelemetry tracing
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	ServiceName string  `yaml:"service_name" json:"service_name"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate"`
}

// ObjectStoreConfig holds credentials for remote paths
type ObjectStoreConfig struct {
	S3Region           string `yaml:"s3_region" json:"s3_region"`
	S3Endpoint         string `yaml:"s3_endpoint" json:"s3_endpoint"`
	GCSCredentialsFile string `yaml:"gcs_credentials_file" json:"gcs_credentials_file"`
	GCSAnonymous       bool   `yaml:"gcs_anonymous" json:"gcs_anonymous"`
}

// Defaults returns a configuration with every optional setting filled in
func Defaults() *AnalysisConfig {
	return &AnalysisConfig{
		Name: "histfill",
		Input: InputConfig{
			BatchSize: 10000,
		},
		Output: OutputConfig{
			Format:      "json",
			Compression: "none",
		},
		Log: logger.Config{
			Level:    "info",
			Encoding: "console",
		},
		Metrics: MetricsConfig{
			Job: "histfill",
		},
		Tracing: TracingConfig{
			ServiceName: "histfill",
			SampleRate:  1.0,
		},
	}
}

// Validate checks the configuration for correctness. It does not touch
// the filesystem.
func (c *AnalysisConfig) Validate() error {
	if len(c.Input.Paths) == 0 {
		return configError("input.paths is required")
	}
	if c.Input.BatchSize <= 0 {
		return configError("input.batch_size must be positive")
	}
	switch c.Input.Format {
	case "", FormatArrow, FormatArrowStream, FormatParquet, FormatCSV:
	case FormatJSON, FormatAvro:
		if len(c.Input.Schema) == 0 {
			return configError(fmt.Sprintf("input.schema is required for %s input", c.Input.Format))
		}
	default:
		return configError(fmt.Sprintf("unknown input.format %q", c.Input.Format))
	}

	seenChannels := make(map[string]struct{}, len(c.Channels))
	for _, ch := range c.Channels {
		if _, dup := seenChannels[ch]; dup {
			return configError(fmt.Sprintf("duplicate channel %q", ch))
		}
		seenChannels[ch] = struct{}{}
	}
	if c.Input.Channel != "" && c.Channels != nil {
		if _, ok := seenChannels[c.Input.Channel]; !ok {
			return configError(fmt.Sprintf("input.channel %q is not a booked channel", c.Input.Channel))
		}
	}

	if len(c.Histograms) == 0 {
		return configError("at least one histogram is required")
	}
	seen := make(map[string]struct{}, len(c.Histograms))
	for i := range c.Histograms {
		h := &c.Histograms[i]
		if h.Name == "" {
			return configError(fmt.Sprintf("histograms[%d].name is required", i))
		}
		if _, dup := seen[h.Name]; dup {
			return configError(fmt.Sprintf("duplicate histogram %q", h.Name))
		}
		seen[h.Name] = struct{}{}
		if err := h.validate(c.Channels != nil); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid histogram").WithDetail("histogram", h.Name)
		}
	}

	if c.Output.Path == "" {
		return configError("output.path is required")
	}
	switch c.Output.Format {
	case "json", "arrow", "parquet":
	default:
		return configError(fmt.Sprintf("unknown output.format %q", c.Output.Format))
	}
	switch c.Output.Compression {
	case "", "none", "gzip", "zstd", "lz4", "snappy", "s2":
	default:
		return configError(fmt.Sprintf("unknown output.compression %q", c.Output.Compression))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return configError("tracing.sample_rate must be within [0, 1]")
	}
	return nil
}

func (h *HistogramConfig) validate(withChannels bool) error {
	switch h.Storage {
	case "", "weight", "double", "int64":
	default:
		return configError(fmt.Sprintf("unknown storage %q", h.Storage))
	}
	if len(h.Axes) == 0 {
		return configError("at least one axis is required")
	}
	seen := make(map[string]struct{}, len(h.Axes))
	for i := range h.Axes {
		a := &h.Axes[i]
		if a.Name == "" {
			return configError(fmt.Sprintf("axes[%d].name is required", i))
		}
		if withChannels && !h.NoChannel && a.Name == ChannelAxisName {
			return configError(fmt.Sprintf("axis name %q is reserved when channels are set", ChannelAxisName))
		}
		if _, dup := seen[a.Name]; dup {
			return configError(fmt.Sprintf("duplicate axis %q", a.Name))
		}
		seen[a.Name] = struct{}{}
		switch a.Type {
		case AxisRegular, AxisVariable, AxisInteger, AxisBoolean, AxisIntCategory, AxisStrCategory:
		default:
			return configError(fmt.Sprintf("axis %q has unknown type %q", a.Name, a.Type))
		}
		switch a.Op {
		case "", OpNum:
		default:
			return configError(fmt.Sprintf("axis %q has unknown op %q", a.Name, a.Op))
		}
	}
	return nil
}

func configError(msg string) error {
	return errors.New(errors.ErrorTypeConfig, msg)
}
