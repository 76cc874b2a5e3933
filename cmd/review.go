package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/review"
	"github.com/counselstack/veritas/internal/store"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Work the human-review queue",
}

var (
	reviewListStatus   string
	reviewListPriority string
)

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initReviewEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		tasks, err := e.Reviews.List(cmd.Context(), store.TaskFilter{
			Status:   model.TaskStatus(reviewListStatus),
			Priority: model.TaskPriority(reviewListPriority),
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tRECORD\tPRIORITY\tSTATUS\tDEADLINE\tREASON")
		now := time.Now()
		for _, task := range tasks {
			deadline := task.Deadline.Format("2006-01-02 15:04")
			if task.Deadline.Before(now) && !task.Status.Terminal() {
				deadline += " (overdue)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				task.ID, task.RecordID, task.Priority, task.Status, deadline, shorten(task.Reason, 40))
		}
		return w.Flush()
	},
}

var (
	decideDecision string
	decideReviewer string
	decideNotes    string
	decideTextFile string
)

var reviewDecideCmd = &cobra.Command{
	Use:   "decide <task-id>",
	Short: "Apply a reviewer decision (approve, reject, modify, escalate)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initReviewEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		sub := review.Submission{
			Decision: model.ReviewDecision(decideDecision),
			Reviewer: decideReviewer,
			Notes:    decideNotes,
		}
		if decideTextFile != "" {
			b, err := os.ReadFile(decideTextFile)
			if err != nil {
				return eris.Wrap(err, "read modified text")
			}
			sub.ModifiedText = string(b)
		}

		task, err := e.Reviews.Submit(cmd.Context(), args[0], sub)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s\n", task.ID, task.Status)
		return nil
	},
}

var claimReviewer string

var reviewClaimCmd = &cobra.Command{
	Use:   "claim <task-id>",
	Short: "Claim a pending task for review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initReviewEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		task, err := e.Reviews.Claim(cmd.Context(), args[0], claimReviewer)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %s claimed by %s\n", task.ID, task.AssignedTo)
		return nil
	},
}

// sweep is the CLI face of the external SLA timer: every task past its
// deadline escalates.
var reviewSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Escalate tasks past their SLA deadline",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initReviewEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		ctx := cmd.Context()

		overdue, err := e.Reviews.Overdue(ctx)
		if err != nil {
			return err
		}

		escalated := 0
		for _, task := range overdue {
			if _, err := e.Reviews.MarkEscalated(ctx, task.ID, "SLA deadline breached"); err != nil {
				zap.L().Error("escalation failed", zap.String("task_id", task.ID), zap.Error(err))
				continue
			}
			escalated++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Escalated %d of %d overdue task(s)\n", escalated, len(overdue))
		return nil
	},
}

// initReviewEnv wires just the store and review manager; review commands
// never need providers or embeddings.
func initReviewEnv(cmd *cobra.Command) (*env, error) {
	if err := cfg.Validate("review"); err != nil {
		return nil, err
	}
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	board := newBoard()
	return &env{
		Store:   st,
		Reviews: review.NewManager(st, board),
		Board:   board,
	}, nil
}

func init() {
	reviewListCmd.Flags().StringVar(&reviewListStatus, "status", "", "filter by status (pending, in_progress, completed, escalated)")
	reviewListCmd.Flags().StringVar(&reviewListPriority, "priority", "", "filter by priority (low, normal, high, urgent)")

	reviewDecideCmd.Flags().StringVar(&decideDecision, "decision", "", "approve, reject, modify, or escalate")
	reviewDecideCmd.Flags().StringVar(&decideReviewer, "reviewer", "", "reviewer identity")
	reviewDecideCmd.Flags().StringVar(&decideNotes, "notes", "", "reviewer notes")
	reviewDecideCmd.Flags().StringVar(&decideTextFile, "modified-text", "", "file holding the modified answer (for modify)")
	_ = reviewDecideCmd.MarkFlagRequired("decision")

	reviewClaimCmd.Flags().StringVar(&claimReviewer, "reviewer", "", "reviewer identity")
	_ = reviewClaimCmd.MarkFlagRequired("reviewer")

	reviewCmd.AddCommand(reviewListCmd, reviewDecideCmd, reviewClaimCmd, reviewSweepCmd)
	rootCmd.AddCommand(reviewCmd)
}
