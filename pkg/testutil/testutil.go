// Package testutil holds helpers shared by histfill tests: arrow batches
// built from JSON rows, leak-checking allocators and scratch files.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

// CheckedAllocator returns an allocator that fails the test if any buffer
// is still allocated when the test ends
func CheckedAllocator(t *testing.T) *memory.CheckedAllocator {
	t.Helper()
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	t.Cleanup(func() { mem.AssertSize(t, 0) })
	return mem
}

// Record builds a record batch from a JSON array of row objects
func Record(t *testing.T, mem memory.Allocator, schema *arrow.Schema, rows string) arrow.Record {
	t.Helper()
	rec, _, err := array.RecordFromJSON(mem, schema, strings.NewReader(rows))
	require.NoError(t, err)
	return rec
}

// Reader yields one batch per JSON array in batches. The caller releases
// the reader.
func Reader(t *testing.T, mem memory.Allocator, schema *arrow.Schema, batches ...string) array.RecordReader {
	t.Helper()
	recs := make([]arrow.Record, len(batches))
	for i, rows := range batches {
		recs[i] = Record(t, mem, schema, rows)
	}
	rdr, err := array.NewRecordReader(schema, recs)
	require.NoError(t, err)
	for _, rec := range recs {
		rec.Release()
	}
	return rdr
}

// WriteFile writes content to name under dir and returns its path
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
