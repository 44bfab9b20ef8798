// Command histfill fills histograms from columnar event files.
//
//	histfill run --config analysis.yaml
//	histfill describe --config analysis.yaml
//	histfill merge -o total.json a.json b.json
//	histfill version
//
// Every flag can also be set through a HISTFILL_ environment variable, for
// example HISTFILL_LOG_LEVEL=debug.
package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/histfill/pkg/observability"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("HISTFILL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "histfill",
		Short:         "histfill - columnar histogram filling",
		Long:          `histfill reads event files, fills the histograms booked in an analysis configuration and writes the results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to the analysis YAML file")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides log.level")
	root.PersistentFlags().String("log-encoding", "", "Log encoding (json, console); overrides log.encoding")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log-encoding", root.PersistentFlags().Lookup("log-encoding"))

	root.AddCommand(newRunCmd(v), newDescribeCmd(v), newMergeCmd(v), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "histfill v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func init() {
	observability.Version = version
}
