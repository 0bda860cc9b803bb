package models

import "time"

// Submission review states. Transitions are admin-initiated:
// pending -> evaluating -> {passed, failed}, with the evaluating step
// optional.
const (
	SubmissionStatusPending    = "pending"
	SubmissionStatusEvaluating = "evaluating"
	SubmissionStatusPassed     = "passed"
	SubmissionStatusFailed     = "failed"
)

// ValidSubmissionStatus reports whether the value names a known state.
func ValidSubmissionStatus(value string) bool {
	switch value {
	case SubmissionStatusPending, SubmissionStatusEvaluating, SubmissionStatusPassed, SubmissionStatusFailed:
		return true
	default:
		return false
	}
}

// ValidStatusTransition reports whether moving from one review state to
// another is legal. Terminal states cannot be left; re-asserting the
// current state is allowed so reviews stay idempotent.
func ValidStatusTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case SubmissionStatusPending:
		return to == SubmissionStatusEvaluating || to == SubmissionStatusPassed || to == SubmissionStatusFailed
	case SubmissionStatusEvaluating:
		return to == SubmissionStatusPassed || to == SubmissionStatusFailed
	default:
		return false
	}
}

// Submission records a user's solution attempt against a task: a code
// repository link, an optional deployment link, and the admin review
// outcome. The composite unique index closes the duplicate-submission
// race between concurrent create requests.
type Submission struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TaskID      uint      `gorm:"not null;uniqueIndex:uq_submissions_task_user" json:"task_id"`
	UserID      uint      `gorm:"not null;uniqueIndex:uq_submissions_task_user" json:"user_id"`
	CodeURL     string    `gorm:"size:512;not null" json:"code_url"`
	DeployURL   string    `gorm:"size:512" json:"deploy_url,omitempty"`
	Language    string    `gorm:"size:32" json:"language,omitempty"`
	Status      string    `gorm:"size:16;not null;default:pending" json:"status"`
	Score       *float64  `json:"score,omitempty"`
	Feedback    string    `gorm:"type:text" json:"feedback,omitempty"`
	SubmittedAt time.Time `gorm:"index" json:"submitted_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Task        Task      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	User        User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsTerminal reports whether the submission reached a final verdict.
func (s Submission) IsTerminal() bool {
	return s.Status == SubmissionStatusPassed || s.Status == SubmissionStatusFailed
}
