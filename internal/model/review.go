package model

import "time"

// ReviewState tracks where one answer stands in the human-review flow.
type ReviewState string

const (
	ReviewNotReviewed ReviewState = "not_reviewed"
	ReviewPending     ReviewState = "pending_review"
	ReviewCompleted   ReviewState = "completed"
	ReviewEscalated   ReviewState = "escalated"
)

// TaskStatus is the lifecycle state of a review task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskEscalated  TaskStatus = "escalated"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskEscalated
}

// CanTransition reports whether a task may move from this status to the
// target status. Completed and escalated tasks never reopen.
func (s TaskStatus) CanTransition(to TaskStatus) bool {
	switch s {
	case TaskPending:
		return to == TaskInProgress || to == TaskCompleted || to == TaskEscalated
	case TaskInProgress:
		return to == TaskCompleted || to == TaskEscalated
	default:
		return false
	}
}

// TaskPriority orders review tasks for human attention.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityNormal TaskPriority = "normal"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// ReviewDecision is an explicit reviewer action on a pending task.
type ReviewDecision string

const (
	DecisionApprove  ReviewDecision = "approve"
	DecisionReject   ReviewDecision = "reject"
	DecisionModify   ReviewDecision = "modify"
	DecisionEscalate ReviewDecision = "escalate"
)

// ReviewTask is one unit of human adjudication for a flagged answer.
type ReviewTask struct {
	ID            string         `json:"id"`
	RecordID      string         `json:"record_id"`
	TaskType      string         `json:"task_type"`
	Priority      TaskPriority   `json:"priority"`
	Content       string         `json:"content"`
	Reason        string         `json:"reason"`
	Deadline      time.Time      `json:"deadline"`
	AssignedTo    string         `json:"assigned_to,omitempty"`
	Status        TaskStatus     `json:"status"`
	Decision      ReviewDecision `json:"decision,omitempty"`
	ReviewerNotes string         `json:"reviewer_notes,omitempty"`
	ModifiedText  string         `json:"modified_text,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
