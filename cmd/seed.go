package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/counselstack/veritas/internal/ingest"
)

var seedBatch int

var seedCmd = &cobra.Command{
	Use:   "seed <manifest>",
	Short: "Seed the source corpus from a YAML or XLSX manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("seed"); err != nil {
			return err
		}
		ctx := cmd.Context()

		manifest, err := ingest.LoadManifest(args[0])
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		fetcher := ingest.NewFetcher(ingest.HTTPOptions{
			Timeout:    time.Duration(cfg.Ingest.FetchTimeoutSecs) * time.Second,
			RatePerSec: cfg.Ingest.FetchRPS,
		})
		batch := cfg.Ingest.EmbedBatchSize
		if seedBatch > 0 {
			batch = seedBatch
		}

		seeder := ingest.NewSeeder(st, newEmbedder(), fetcher, batch)
		report, err := seeder.Seed(ctx, manifest)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Seeded %d source(s), skipped %d\n", report.Seeded, report.Skipped)
		for _, title := range report.Failed {
			fmt.Fprintf(out, "  failed: %s\n", title)
		}

		total, err := st.CountSources(ctx)
		if err == nil {
			fmt.Fprintf(out, "Corpus now holds %d source(s)\n", total)
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedBatch, "batch", 0, "embedding batch size (default from config)")
	rootCmd.AddCommand(seedCmd)
}
