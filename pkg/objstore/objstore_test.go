package objstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/histfill/pkg/config"
	"github.com/ajitpratap0/histfill/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		uri  string
		want Location
	}{
		{"events.arrow", Location{Scheme: SchemeFile, Key: "events.arrow"}},
		{"/data/run1/events.parquet", Location{Scheme: SchemeFile, Key: "/data/run1/events.parquet"}},
		{"file:///data/events.csv", Location{Scheme: SchemeFile, Key: "/data/events.csv"}},
		{"s3://cms-open-data/2012/DoubleMu.parquet", Location{Scheme: SchemeS3, Bucket: "cms-open-data", Key: "2012/DoubleMu.parquet"}},
		{"gs://analysis/out/hists.json.zst", Location{Scheme: SchemeGCS, Bucket: "analysis", Key: "out/hists.json.zst"}},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := Parse(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "s3://b/k/x", Location{Scheme: SchemeS3, Bucket: "b", Key: "k/x"}.String())

	for _, bad := range []string{"", "s3://bucket-only", "s3:///key", "ftp://host/file"} {
		_, err := Parse(bad)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), bad)
	}
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(config.ObjectStoreConfig{}, zaptest.NewLogger(t))
	defer s.Close()

	path := filepath.Join(t.TempDir(), "nested", "dir", "hists.json")
	require.NoError(t, s.Put(ctx, path, []byte(`{"pt": {}}`)))

	data, err := s.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, `{"pt": {}}`, string(data))

	r, err := s.Open(ctx, "file://"+path)
	require.NoError(t, err)
	defer r.Close()
	streamed, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, streamed)

	require.NoError(t, s.Put(ctx, path, []byte("{}")))
	data, err = s.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestLocalMissingFile(t *testing.T) {
	s := New(config.ObjectStoreConfig{}, nil)
	_, err := s.Get(context.Background(), filepath.Join(t.TempDir(), "missing.arrow"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIO))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
