// Package review manages the human side of the validation pipeline: the
// lifecycle of review tasks opened by the gate. Reviewers approve, reject,
// modify, or escalate; SLA breaches arrive as escalation events from an
// external timer. Completed and escalated tasks are terminal and never
// reopen; a fresh answer always opens a fresh task.
package review

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/store"
	"github.com/counselstack/veritas/pkg/notify"
)

// ErrTerminal is returned when a decision targets a completed or
// escalated task.
var ErrTerminal = errors.New("review task is in a terminal state")

// ErrNotFound is returned when no task exists for the given ID.
var ErrNotFound = errors.New("review task not found")

// Submission is one explicit reviewer action on a pending task.
type Submission struct {
	Decision     model.ReviewDecision `json:"decision"`
	Reviewer     string               `json:"reviewer,omitempty"`
	Notes        string               `json:"notes,omitempty"`
	ModifiedText string               `json:"modified_text,omitempty"`
}

// Manager applies reviewer decisions to tasks and keeps the audit record
// and the reviewer board in step with them.
type Manager struct {
	store store.Store
	board *notify.Board
	now   func() time.Time
}

// NewManager creates a Manager. board may be nil when no reviewer board
// is configured.
func NewManager(st store.Store, board *notify.Board) *Manager {
	return &Manager{store: st, board: board, now: time.Now}
}

// Submit applies one reviewer decision to a task. Approve, reject, and
// modify complete the task; escalate moves it to the escalated state.
// The owning record's review state follows the task, and the board card
// updates best-effort.
func (m *Manager) Submit(ctx context.Context, taskID string, sub Submission) (*model.ReviewTask, error) {
	target, recState, err := outcome(sub.Decision)
	if err != nil {
		return nil, err
	}
	if sub.Decision == model.DecisionModify && sub.ModifiedText == "" {
		return nil, eris.New("review: modify decision requires modified text")
	}

	task, err := m.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.Status.CanTransition(target) {
		if task.Status.Terminal() {
			return nil, eris.Wrap(ErrTerminal, "review: submit decision")
		}
		return nil, eris.Errorf("review: task %s cannot move from %s to %s", taskID, task.Status, target)
	}

	task.Status = target
	task.Decision = sub.Decision
	task.ReviewerNotes = sub.Notes
	task.ModifiedText = sub.ModifiedText
	if sub.Reviewer != "" {
		task.AssignedTo = sub.Reviewer
	}
	task.UpdatedAt = m.now()

	if err := m.store.UpdateTask(ctx, task); err != nil {
		return nil, eris.Wrap(err, "review: persist decision")
	}
	if err := m.store.SetRecordReviewState(ctx, task.RecordID, recState); err != nil {
		zap.L().Error("record review state update failed",
			zap.String("record_id", task.RecordID),
			zap.String("state", string(recState)),
			zap.Error(err))
	}

	m.updateCard(ctx, task)

	zap.L().Info("review decision applied",
		zap.String("task_id", task.ID),
		zap.String("record_id", task.RecordID),
		zap.String("decision", string(sub.Decision)))
	return task, nil
}

// Claim moves a pending task to in_progress for the given reviewer.
func (m *Manager) Claim(ctx context.Context, taskID, reviewer string) (*model.ReviewTask, error) {
	task, err := m.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.Status.CanTransition(model.TaskInProgress) {
		if task.Status.Terminal() {
			return nil, eris.Wrap(ErrTerminal, "review: claim task")
		}
		return nil, eris.Errorf("review: task %s cannot be claimed from %s", taskID, task.Status)
	}

	task.Status = model.TaskInProgress
	task.AssignedTo = reviewer
	task.UpdatedAt = m.now()
	if err := m.store.UpdateTask(ctx, task); err != nil {
		return nil, eris.Wrap(err, "review: persist claim")
	}

	m.updateCard(ctx, task)
	return task, nil
}

// MarkEscalated records an externally observed escalation, typically an
// SLA-deadline breach reported by the deadline timer. Terminal tasks are
// left alone.
func (m *Manager) MarkEscalated(ctx context.Context, taskID, reason string) (*model.ReviewTask, error) {
	task, err := m.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return nil, eris.Wrap(ErrTerminal, "review: escalate task")
	}

	task.Status = model.TaskEscalated
	task.Decision = model.DecisionEscalate
	task.ReviewerNotes = reason
	task.UpdatedAt = m.now()
	if err := m.store.UpdateTask(ctx, task); err != nil {
		return nil, eris.Wrap(err, "review: persist escalation")
	}
	if err := m.store.SetRecordReviewState(ctx, task.RecordID, model.ReviewEscalated); err != nil {
		zap.L().Error("record review state update failed",
			zap.String("record_id", task.RecordID),
			zap.Error(err))
	}

	m.updateCard(ctx, task)

	zap.L().Warn("review task escalated",
		zap.String("task_id", task.ID),
		zap.String("record_id", task.RecordID),
		zap.String("reason", reason))
	return task, nil
}

// loadTask fetches a task, mapping the store's nil-for-missing result to
// ErrNotFound.
func (m *Manager) loadTask(ctx context.Context, taskID string) (*model.ReviewTask, error) {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, eris.Wrap(err, "review: load task")
	}
	if task == nil {
		return nil, eris.Wrapf(ErrNotFound, "review: task %s", taskID)
	}
	return task, nil
}

// List returns tasks matching the filter.
func (m *Manager) List(ctx context.Context, filter store.TaskFilter) ([]model.ReviewTask, error) {
	tasks, err := m.store.ListTasks(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "review: list tasks")
	}
	return tasks, nil
}

// Overdue returns non-terminal tasks whose deadline has passed. The
// caller (the external SLA timer) feeds these back through MarkEscalated.
func (m *Manager) Overdue(ctx context.Context) ([]model.ReviewTask, error) {
	tasks, err := m.store.ListTasks(ctx, store.TaskFilter{
		Status:    model.TaskPending,
		DueBefore: m.now(),
	})
	if err != nil {
		return nil, eris.Wrap(err, "review: list overdue tasks")
	}
	inProgress, err := m.store.ListTasks(ctx, store.TaskFilter{
		Status:    model.TaskInProgress,
		DueBefore: m.now(),
	})
	if err != nil {
		return nil, eris.Wrap(err, "review: list overdue tasks")
	}
	return append(tasks, inProgress...), nil
}

// outcome maps a reviewer decision to the task and record end states.
func outcome(d model.ReviewDecision) (model.TaskStatus, model.ReviewState, error) {
	switch d {
	case model.DecisionApprove, model.DecisionReject, model.DecisionModify:
		return model.TaskCompleted, model.ReviewCompleted, nil
	case model.DecisionEscalate:
		return model.TaskEscalated, model.ReviewEscalated, nil
	default:
		return "", "", eris.Errorf("review: unknown decision %q", d)
	}
}

// updateCard mirrors the task state onto the reviewer board. Board
// failures are logged and swallowed; the store is the source of truth.
func (m *Manager) updateCard(ctx context.Context, task *model.ReviewTask) {
	if m.board == nil {
		return
	}
	pageID, err := m.board.FindByRecord(ctx, task.RecordID)
	if err != nil || pageID == "" {
		if err != nil {
			zap.L().Warn("review card lookup failed",
				zap.String("record_id", task.RecordID),
				zap.Error(err))
		}
		return
	}
	if err := m.board.SetStatus(ctx, pageID, cardStatus(task.Status), task.ReviewerNotes); err != nil {
		zap.L().Warn("review card update failed",
			zap.String("record_id", task.RecordID),
			zap.Error(err))
	}
}

func cardStatus(s model.TaskStatus) string {
	switch s {
	case model.TaskInProgress:
		return "In Progress"
	case model.TaskCompleted:
		return "Completed"
	case model.TaskEscalated:
		return "Escalated"
	default:
		return "Pending"
	}
}
