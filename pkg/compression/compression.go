// Package compression wraps event inputs and result outputs in compressed
// streams.
//
// Supported algorithms are gzip, zstd, snappy and s2 (klauspost/compress)
// and lz4 (pierrec/lz4). The algorithm of an input file is taken from its
// extension:
//
//	r, err := compression.NewReader(compression.FromExtension(path), f)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
package compression

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/histfill/pkg/errors"
)

// Algorithm represents a compression algorithm
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio
	Fastest Level = 1
	// Default balances speed and compression
	Default Level = 5
	// Better improves compression at cost of speed
	Better Level = 7
	// Best maximizes compression ratio
	Best Level = 9
)

var extensions = map[Algorithm]string{
	Gzip:   ".gz",
	Snappy: ".sz",
	LZ4:    ".lz4",
	Zstd:   ".zst",
	S2:     ".s2",
}

// Parse returns the algorithm called name. An empty name means None.
func Parse(name string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(name)); a {
	case "", None:
		return None, nil
	case Gzip, Snappy, LZ4, Zstd, S2:
		return a, nil
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "unknown compression %q", name)
}

// FromExtension returns the algorithm implied by the extension of path, or
// None when the extension is not a compression suffix
func FromExtension(path string) Algorithm {
	ext := strings.ToLower(filepath.Ext(path))
	for a, e := range extensions {
		if e == ext {
			return a
		}
	}
	if ext == ".zstd" {
		return Zstd
	}
	return None
}

// Extension returns the file suffix of an algorithm, empty for None
func Extension(a Algorithm) string {
	return extensions[a]
}

// TrimExtension removes a compression suffix from path
func TrimExtension(path string) string {
	if FromExtension(path) == None {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// NewReader returns a reader decompressing r
func NewReader(a Algorithm, r io.Reader) (io.ReadCloser, error) {
	switch a {
	case "", None:
		return io.NopCloser(r), nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeIO, "cannot open gzip stream")
		}
		return zr, nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeIO, "cannot open zstd stream")
		}
		return dec.IOReadCloser(), nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unknown compression %q", a)
}

// NewWriter returns a writer compressing into w. Close flushes the
// compressed stream but does not close w.
func NewWriter(a Algorithm, level Level, w io.Writer) (io.WriteCloser, error) {
	switch a {
	case "", None:
		return nopWriteCloser{w}, nil
	case Gzip:
		zw, err := gzip.NewWriterLevel(w, mapGzipLevel(level))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "cannot create gzip writer")
		}
		return zw, nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case LZ4:
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.CompressionLevelOption(mapLZ4Level(level))); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "cannot create lz4 writer")
		}
		return zw, nil
	case Zstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(mapZstdLevel(level)))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "cannot create zstd writer")
		}
		return zw, nil
	case S2:
		return s2.NewWriter(w), nil
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unknown compression %q", a)
}

// Compress compresses data in memory
func Compress(a Algorithm, level Level, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := NewWriter(a, level, &buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "compression failed")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "compression failed")
	}
	return buf.Bytes(), nil
}

// Decompress decompresses data in memory
func Decompress(a Algorithm, data []byte) ([]byte, error) {
	r, err := NewReader(a, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "decompression failed")
	}
	return out, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
