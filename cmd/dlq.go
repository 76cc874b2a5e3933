package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/resilience"
	"github.com/counselstack/veritas/internal/store"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and replay dead-lettered audit writes",
}

var dlqKind string

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered writes",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initReviewEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		entries, err := e.Store.ListDLQ(cmd.Context(), resilience.DLQFilter{Kind: dlqKind})
		if err != nil {
			return eris.Wrap(err, "list dead letters")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tCLASS\tRETRIES\tLAST FAILED\tERROR")
		for _, entry := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
				entry.ID, entry.Kind, entry.ErrorClass,
				entry.RetryCount, entry.MaxRetries,
				entry.LastFailedAt.Format("2006-01-02 15:04"),
				shorten(entry.Error, 60))
		}
		return w.Flush()
	},
}

// retry is the manual face of the background reconciler: each entry's
// payload is replayed against the store and removed on success.
var dlqRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Replay dead-lettered writes against the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initReviewEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		ctx := cmd.Context()

		entries, err := e.Store.ListDLQ(ctx, resilience.DLQFilter{Kind: dlqKind})
		if err != nil {
			return eris.Wrap(err, "list dead letters")
		}

		replayed := 0
		for _, entry := range entries {
			if err := replayEntry(ctx, e.Store, entry); err != nil {
				zap.L().Warn("dead letter replay failed",
					zap.String("dlq_id", entry.ID),
					zap.String("kind", entry.Kind),
					zap.Error(err))
				continue
			}
			if err := e.Store.RemoveDLQ(ctx, entry.ID); err != nil {
				zap.L().Error("dead letter cleanup failed", zap.String("dlq_id", entry.ID), zap.Error(err))
				continue
			}
			replayed++
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d of %d dead letter(s)\n", replayed, len(entries))
		return nil
	},
}

func replayEntry(ctx context.Context, st store.Store, entry resilience.DLQEntry) error {
	switch entry.Kind {
	case resilience.DLQKindValidationRecord:
		var rec model.ValidationRecord
		if err := json.Unmarshal(entry.Payload, &rec); err != nil {
			return eris.Wrap(err, "decode record payload")
		}
		// Insert is idempotent on bundle hash, so replays are safe.
		_, err := st.InsertRecord(ctx, &rec)
		return err
	case resilience.DLQKindReviewTask:
		var task model.ReviewTask
		if err := json.Unmarshal(entry.Payload, &task); err != nil {
			return eris.Wrap(err, "decode task payload")
		}
		return st.CreateTask(ctx, &task)
	default:
		return eris.Errorf("unknown dead letter kind %q", entry.Kind)
	}
}

func init() {
	dlqCmd.PersistentFlags().StringVar(&dlqKind, "kind", "", "filter by kind (validation_record, review_task)")
	dlqCmd.AddCommand(dlqListCmd, dlqRetryCmd)
	rootCmd.AddCommand(dlqCmd)
}
