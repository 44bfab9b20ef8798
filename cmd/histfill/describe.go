package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/histfill/pkg/hist"
	"github.com/ajitpratap0/histfill/pkg/histogram"
	"github.com/ajitpratap0/histfill/pkg/logger"
)

func newDescribeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Show the histograms booked by an analysis",
		Long: `Build every histogram of an analysis configuration without reading any
events and print its storage, axes and shape.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			col, err := histogram.BuildCollection(cfg, logger.Get())
			if err != nil {
				return err
			}
			if err := col.MakeHists(cfg.Channels); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "analysis %s: %d histograms\n", cfg.Name, col.Len())
			for _, name := range col.Names() {
				h, _ := col.Get(name)
				describeHist(out, name, h.Hist())
			}
			return nil
		},
	}
}

func describeHist(out io.Writer, name string, h *hist.Hist) {
	shape := make([]string, 0, h.Rank())
	for _, n := range h.Shape(false) {
		shape = append(shape, fmt.Sprint(n))
	}
	fmt.Fprintf(out, "\n%s [%s] shape (%s)\n", name, h.Storage(), strings.Join(shape, ", "))
	for _, a := range h.Axes() {
		var flow []string
		if a.Underflow() {
			flow = append(flow, "underflow")
		}
		if a.Overflow() {
			flow = append(flow, "overflow")
		}
		line := fmt.Sprintf("  %-12s %-12s %4d bins", a.Name(), a.Kind(), a.Size())
		if a.Size() > 0 {
			line += fmt.Sprintf("  %s .. %s", a.BinLabel(0), a.BinLabel(a.Size()-1))
		}
		if len(flow) > 0 {
			line += "  +" + strings.Join(flow, "+")
		}
		fmt.Fprintln(out, line)
	}
}
