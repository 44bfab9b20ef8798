// Package histfill fills histograms from columnar event data.
//
// An analysis books a set of histograms. Each histogram bundles its axis
// definitions with the functions that extract fill values from an event
// record batch. The concrete histograms are only made once the channel
// labels of a run are known; every histogram then gains a leading channel
// axis. Events are read as Arrow record batches from Arrow, Parquet, CSV,
// JSON or Avro files, locally or on S3 and GCS, and every batch fills every
// histogram.
//
// # Quick Start
//
//	histfill run --config zmumu.yaml
//
// with a configuration such as
//
//	name: zmumu
//	input:
//	  paths: [s3://ntuples/dy/part-0.parquet, s3://ntuples/dy/part-1.parquet]
//	  weight_field: genWeight
//	channels: [ee, mumu]
//	histograms:
//	  - name: lead_pt
//	    axes:
//	      - {type: regular, name: pt, bins: 50, start: 0, stop: 250, field: muon.pt}
//	output:
//	  path: results/zmumu.json.gz
//	  compression: gzip
//
// The same can be driven from Go:
//
//	col, err := histogram.BuildCollection(cfg, log)
//	err = col.MakeHists(cfg.Channels)
//	rdr, err := events.Open(ctx, cfg.Input)
//	stats, err := pipeline.NewRunner(col, pipeline.ConfigFrom(cfg)).Run(ctx, rdr)
//	uris, err := output.Write(ctx, store, cfg.Output, cfg.Name, col)
//
// # Key Packages
//
//	pkg/hist          - Axes, storage modes and the n-dimensional histogram
//	pkg/histogram     - Deferred histograms filled from record batches
//	pkg/columnar      - Field paths, flattening and broadcasting over Arrow arrays
//	pkg/events        - Input decoding into record batch readers
//	pkg/objstore      - Local, S3 and GCS object access
//	pkg/output        - JSON, Arrow and Parquet results and merging
//	pkg/compression   - gzip, zstd, lz4, snappy and s2 codecs
//	pkg/config        - Analysis configuration with ${VAR} substitution
//	pkg/errors        - Typed errors with details
//	pkg/logger        - Structured logging on zap
//	pkg/metrics       - Prometheus metrics with Pushgateway support
//	pkg/observability - OpenTelemetry tracing
//	internal/pipeline - Batch-by-batch fill driver
package histfill
