package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/histfill/pkg/config"
	"github.com/ajitpratap0/histfill/pkg/errors"
	"github.com/ajitpratap0/histfill/pkg/logger"
	"github.com/ajitpratap0/histfill/pkg/objstore"
	"github.com/ajitpratap0/histfill/pkg/output"
)

func newMergeCmd(v *viper.Viper) *cobra.Command {
	var (
		dest        string
		name        string
		compression string
	)
	cmd := &cobra.Command{
		Use:   "merge [flags] results...",
		Short: "Add json results of the same analysis together",
		Long: `Merge json results written by separate runs, for example one per dataset
or per input shard. Every input must hold the same histograms with the same
axes. Compressed inputs are recognised by their extension.

Example:
  histfill merge -o total.json.gz --compression gzip part1.json part2.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dest == "" {
				return errors.New(errors.ErrorTypeConfig, "--output is required")
			}
			logCfg := config.Defaults().Log
			if l := v.GetString("log-level"); l != "" {
				logCfg.Level = l
			}
			if e := v.GetString("log-encoding"); e != "" {
				logCfg.Encoding = e
			}
			if err := logger.Init(logCfg); err != nil {
				return errors.Wrap(err, errors.ErrorTypeConfig, "invalid log configuration")
			}
			log := logger.With(zap.String("component", "histfill-merge"))
			defer func() { _ = logger.Sync() }()

			store := objstore.New(config.ObjectStoreConfig{}, log)
			defer store.Close()

			ctx := cmd.Context()
			docs := make([]*output.Document, 0, len(args))
			for _, uri := range args {
				doc, err := output.ReadJSON(ctx, store, uri)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
			}
			results, err := output.Merge(docs...)
			if err != nil {
				return err
			}
			if name == "" {
				name = docs[0].Name
			}

			w, err := output.NewWriter(store, config.OutputConfig{
				Path:        dest,
				Format:      config.FormatJSON,
				Compression: compression,
			}, output.WithLogger(log))
			if err != nil {
				return err
			}
			uris, err := w.Write(ctx, name, results)
			if err != nil {
				return err
			}
			log.Info("results merged", zap.Int("inputs", len(docs)), zap.Int("histograms", len(results)))
			for _, uri := range uris {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", uri)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "output", "o", "", "Merged result location (required)")
	cmd.Flags().StringVar(&name, "name", "", "Analysis name of the merged result; defaults to the first input's")
	cmd.Flags().StringVar(&compression, "compression", "none", "Compression of the merged result")
	return cmd
}
