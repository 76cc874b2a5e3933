package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/resilience"
	"github.com/counselstack/veritas/pkg/notify"
)

// Gate trigger levels on the overall confidence scale.
const (
	urgentBelow    = 25.0
	highBelow      = 50.0
	highFlagQuorum = 3
)

// reviewTaskType is the only task type the pipeline opens today.
const reviewTaskType = "answer_review"

// GateDecision says whether an answer may ship without human eyes.
type GateDecision struct {
	ReviewRequired bool
	Priority       model.TaskPriority
	Reason         string
}

// EvaluateGate applies the review-gate policy to a scored, flagged
// answer. An answer goes to review when overall confidence sits below
// the configured threshold, when any flag is critical, or when
// high-severity flags reach the quorum of three. Priority escalates with
// how bad things look: urgent below 25 overall, high below 50 or on any
// critical flag, normal otherwise.
func EvaluateGate(conf model.ConfidenceScore, flags []model.FlaggedContent, threshold float64) GateDecision {
	critical := model.CountSeverity(flags, model.SeverityCritical)
	high := model.CountSeverity(flags, model.SeverityHigh)

	var reason string
	switch {
	case conf.Overall < threshold:
		reason = fmt.Sprintf("overall confidence %.0f below threshold %.0f", conf.Overall, threshold)
	case critical > 0:
		reason = fmt.Sprintf("%d critical flag(s) raised", critical)
	case high >= highFlagQuorum:
		reason = fmt.Sprintf("%d high-severity flags raised", high)
	default:
		return GateDecision{}
	}

	priority := model.PriorityNormal
	switch {
	case conf.Overall < urgentBelow:
		priority = model.PriorityUrgent
	case conf.Overall < highBelow || critical > 0:
		priority = model.PriorityHigh
	}

	return GateDecision{ReviewRequired: true, Priority: priority, Reason: reason}
}

// openReview creates the review task for a gated record and publishes the
// reviewer card. A failed task write falls back to the dead-letter queue
// so the review obligation survives a store outage; the card publish is
// best effort. Both writes run concurrently since neither depends on the
// other.
func (p *Pipeline) openReview(ctx context.Context, rec *model.ValidationRecord, decision GateDecision) *model.ReviewTask {
	task := &model.ReviewTask{
		ID:         uuid.New().String(),
		RecordID:   rec.ID,
		TaskType:   reviewTaskType,
		Priority:   decision.Priority,
		Content:    rec.Answer,
		Reason:     decision.Reason,
		Deadline:   p.now().Add(p.cfg.Review.SLA()),
		AssignedTo: p.cfg.Review.DefaultAssignee,
		Status:     model.TaskPending,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := p.store.CreateTask(gctx, task); err != nil {
			zap.L().Error("review task persist failed, dead-lettering",
				zap.String("task_id", task.ID),
				zap.String("record_id", rec.ID),
				zap.Error(err))
			p.deadLetter(gctx, resilience.DLQKindReviewTask, task.ID, task, err)
			return nil
		}
		zap.L().Info("review task opened",
			zap.String("task_id", task.ID),
			zap.String("record_id", rec.ID),
			zap.String("priority", string(task.Priority)),
			zap.Time("deadline", task.Deadline))
		return nil
	})

	if p.board != nil {
		g.Go(func() error {
			card := notify.Card{
				RecordID:   rec.ID,
				Title:      rec.Query,
				Reason:     decision.Reason,
				Priority:   string(decision.Priority),
				Status:     "Pending",
				Confidence: rec.Confidence.Overall,
				Deadline:   task.Deadline,
				Assignee:   task.AssignedTo,
			}
			if _, err := p.board.Publish(gctx, card); err != nil {
				zap.L().Warn("review card publish failed",
					zap.String("record_id", rec.ID),
					zap.Error(err))
			}
			return nil
		})
	}

	// Failures are handled inside each branch.
	_ = g.Wait()
	return task
}
