package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/histfill/pkg/config"
	"github.com/ajitpratap0/histfill/pkg/errors"
	"github.com/ajitpratap0/histfill/pkg/objstore"
	"github.com/ajitpratap0/histfill/pkg/output"
	"github.com/ajitpratap0/histfill/pkg/testutil"
)

const eventsCSV = `pt,w,ch
5,1,ee
15,2,mumu
25,1,mumu
45,0.5,ee
`

const analysisYAML = `name: cli_test
input:
  dataset: dy
  paths: [%s]
  weight_field: w
  schema:
    - {name: pt, type: float64}
    - {name: w, type: float64}
    - {name: ch, type: utf8}
channels: [ee, mumu]
histograms:
  - name: pt
    axes:
      - {type: regular, name: pt, bins: 4, start: 0, stop: 40, field: pt}
output:
  path: %s
  format: json
log:
  level: error
  output_paths: [stderr]
`

func writeAnalysis(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	events := testutil.WriteFile(t, dir, "events.csv", eventsCSV)
	cfgPath = testutil.WriteFile(t, dir, "analysis.yaml",
		fmt.Sprintf(analysisYAML, events, filepath.Join(dir, "result.json")))
	return dir, cfgPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func readResult(t *testing.T, uri string) []output.Result {
	t.Helper()
	doc, err := output.ReadJSON(context.Background(), objstore.New(config.ObjectStoreConfig{}, nil), uri)
	require.NoError(t, err)
	results, err := doc.Results()
	require.NoError(t, err)
	return results
}

func TestRunCommand(t *testing.T) {
	dir, cfgPath := writeAnalysis(t)

	out, err := execute(t, "run", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "filled 1 histograms from 4 events")
	result := filepath.Join(dir, "result.json")
	assert.Contains(t, out, "wrote "+result)

	results := readResult(t, result)
	require.Len(t, results, 1)
	h := results[0].Hist
	assert.Equal(t, []string{"channel", "pt"}, h.AxisNames())
	assert.Equal(t, []float64{1, 0, 0, 0, 0, 2, 1, 0}, h.Values(false))
	assert.Equal(t, 0.5, h.Value(0, 4))
}

func TestRunOutputOverride(t *testing.T) {
	dir, cfgPath := writeAnalysis(t)
	dest := filepath.Join(dir, "override.json")

	out, err := execute(t, "run", "-c", cfgPath, "--output", dest, "--log-level", "warn")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+dest)
	_, err = os.Stat(dest)
	assert.NoError(t, err)
}

func TestRunRequiresConfig(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestDescribeCommand(t *testing.T) {
	_, cfgPath := writeAnalysis(t)

	out, err := execute(t, "describe", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "analysis cli_test: 1 histograms")
	assert.Contains(t, out, "pt [weight] shape (2, 4)")
	assert.Contains(t, out, "str_category")
	assert.Contains(t, out, "[0, 10) .. [30, 40)")
}

func TestMergeCommand(t *testing.T) {
	dir, cfgPath := writeAnalysis(t)
	_, err := execute(t, "run", "--config", cfgPath)
	require.NoError(t, err)

	result := filepath.Join(dir, "result.json")
	dest := filepath.Join(dir, "total.json")
	out, err := execute(t, "merge", "-o", dest, "--compression", "zstd", result, result)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+dest+".zst")

	results := readResult(t, dest+".zst")
	require.Len(t, results, 1)
	assert.Equal(t, []float64{2, 0, 0, 0, 0, 4, 2, 0}, results[0].Hist.Values(false))
	assert.Equal(t, int64(8), results[0].Hist.Entries())
}

func TestMergeRequiresOutput(t *testing.T) {
	_, err := execute(t, "merge", "a.json")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "histfill v"+version)
}
