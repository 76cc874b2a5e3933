package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/store"
)

var (
	recordsState string
	recordsLimit int
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List validation records",
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

		records, err := st.ListRecords(ctx, store.RecordFilter{
			ReviewState: model.ReviewState(recordsState),
			Limit:       recordsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list records")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tCONFIDENCE\tFLAGS\tREVIEW\tQUERY")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%.0f\t%d\t%s\t%s\n",
				rec.ID,
				rec.CreatedAt.Format("2006-01-02 15:04"),
				rec.Confidence.Overall,
				len(rec.Flags),
				rec.ReviewState,
				shorten(rec.Query, 48),
			)
		}
		return w.Flush()
	},
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	recordsCmd.Flags().StringVar(&recordsState, "state", "", "filter by review state (not_reviewed, pending_review, completed, escalated)")
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 50, "maximum records to list")
	rootCmd.AddCommand(recordsCmd)
}
