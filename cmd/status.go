package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/store"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status [record-id]",
	Short: "Show system status, or one validation record",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("review"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if len(args) == 1 {
			return printRecord(ctx, cmd.OutOrStdout(), st, args[0])
		}
		return printSystemStatus(ctx, cmd.OutOrStdout(), st)
	},
}

func printRecord(ctx context.Context, out io.Writer, st store.Store, id string) error {
	rec, err := st.GetRecord(ctx, id)
	if err != nil {
		return eris.Wrapf(err, "load record %s", id)
	}

	if statusJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	fmt.Fprintf(out, "Record:      %s\n", rec.ID)
	fmt.Fprintf(out, "Created:     %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Query:       %s\n", rec.Query)
	fmt.Fprintf(out, "Confidence:  %.0f/100\n", rec.Confidence.Overall)
	fmt.Fprintf(out, "Citations:   %d\n", len(rec.Citations))
	fmt.Fprintf(out, "Flags:       %d\n", len(rec.Flags))
	fmt.Fprintf(out, "Review:      %s\n", rec.ReviewState)
	fmt.Fprintf(out, "Bundle hash: %s\n", rec.BundleHash)

	// Recompute the bundle hash so tampering shows up in the CLI.
	computed, err := rec.ComputeBundleHash()
	if err == nil && computed != rec.BundleHash {
		fmt.Fprintln(out, "WARNING: bundle hash mismatch, record may have been altered")
	}
	return nil
}

func printSystemStatus(ctx context.Context, out io.Writer, st store.Store) error {
	sources, err := st.CountSources(ctx)
	if err != nil {
		return eris.Wrap(err, "count sources")
	}
	byState, err := st.CountRecordsByState(ctx)
	if err != nil {
		return eris.Wrap(err, "count records")
	}
	dlq, err := st.CountDLQ(ctx)
	if err != nil {
		return eris.Wrap(err, "count dead letters")
	}

	total := 0
	for _, n := range byState {
		total += n
	}

	fmt.Fprintf(out, "Sources:       %d\n", sources)
	fmt.Fprintf(out, "Records:       %d\n", total)
	for _, state := range []model.ReviewState{
		model.ReviewNotReviewed, model.ReviewPending, model.ReviewCompleted, model.ReviewEscalated,
	} {
		if n := byState[state]; n > 0 {
			fmt.Fprintf(out, "  %-13s%d\n", state+":", n)
		}
	}
	fmt.Fprintf(out, "Dead letters:  %d\n", dlq)
	return nil
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the record as JSON")
	rootCmd.AddCommand(statusCmd)
}
