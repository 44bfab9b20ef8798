package config_test

import (
	"fmt"
	"log"
	"os"

	"github.com/ajitpratap0/histfill/pkg/config"
)

// ExampleDefaults shows the settings every analysis starts from.
func ExampleDefaults() {
	cfg := config.Defaults()

	fmt.Printf("Batch Size: %d\n", cfg.Input.BatchSize)
	fmt.Printf("Output Format: %s\n", cfg.Output.Format)
	fmt.Printf("Log Level: %s\n", cfg.Log.Level)

	// Output:
	// Batch Size: 10000
	// Output Format: json
	// Log Level: info
}

// ExampleParse demonstrates parsing an analysis with environment variable
// substitution.
func ExampleParse() {
	os.Setenv("HISTFILL_EXAMPLE_OUT", "/tmp/out.json")
	defer os.Unsetenv("HISTFILL_EXAMPLE_OUT")

	cfg := config.Defaults()
	err := config.Parse([]byte(`
input:
  paths: [events.parquet]
channels: [ee, mumu]
histograms:
  - name: pt
    axes:
      - {type: regular, name: pt, field: muon.pt, bins: 50, start: 0, stop: 200}
output:
  path: ${HISTFILL_EXAMPLE_OUT}
`), cfg)
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	fmt.Println(cfg.Output.Path)
	fmt.Println(cfg.Histograms[0].Axes[0].FieldPath())

	// Output:
	// /tmp/out.json
	// muon.pt
}
