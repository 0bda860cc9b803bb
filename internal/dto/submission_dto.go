package dto

import (
	"time"

	"github.com/codeclash-dev/codeclash-api/internal/models"
)

// SubmissionCreateRequest is the body for submitting a solution.
type SubmissionCreateRequest struct {
	TaskID    uint   `json:"task_id" validate:"required"`
	CodeURL   string `json:"code_url" validate:"required,url"`
	DeployURL string `json:"deploy_url" validate:"omitempty,url"`
	Language  string `json:"language" validate:"omitempty,max=32"`
}

// SubmissionReviewRequest carries the admin review mutation. Only the
// fields present in the body are applied.
type SubmissionReviewRequest struct {
	Status   *string  `json:"status"`
	Score    *float64 `json:"score"`
	Feedback *string  `json:"feedback"`
}

// TaskSummary is the task projection embedded in submission responses.
type TaskSummary struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

// UserSummary is the user projection embedded in submission responses.
type UserSummary struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// SubmissionResponse is the API shape of a submission. Solution links
// are withheld for viewers that fail the owner-or-admin gate.
type SubmissionResponse struct {
	ID          uint         `json:"id"`
	TaskID      uint         `json:"task_id"`
	UserID      uint         `json:"user_id"`
	CodeURL     string       `json:"code_url,omitempty"`
	DeployURL   string       `json:"deploy_url,omitempty"`
	Language    string       `json:"language,omitempty"`
	Status      string       `json:"status"`
	Score       *float64     `json:"score,omitempty"`
	Feedback    string       `json:"feedback,omitempty"`
	SubmittedAt time.Time    `json:"submitted_at"`
	Task        *TaskSummary `json:"task,omitempty"`
	User        *UserSummary `json:"user,omitempty"`
}

// SubmissionListResponse wraps submissions with pagination metadata.
type SubmissionListResponse struct {
	Items      []SubmissionResponse `json:"items"`
	Pagination Pagination           `json:"pagination"`
}

// NewSubmissionResponse builds the response DTO. includeLinks controls
// whether the code and deployment URLs are exposed.
func NewSubmissionResponse(submission models.Submission, includeLinks bool) SubmissionResponse {
	response := SubmissionResponse{
		ID:          submission.ID,
		TaskID:      submission.TaskID,
		UserID:      submission.UserID,
		Language:    submission.Language,
		Status:      submission.Status,
		Score:       submission.Score,
		Feedback:    submission.Feedback,
		SubmittedAt: submission.SubmittedAt,
	}

	if includeLinks {
		response.CodeURL = submission.CodeURL
		response.DeployURL = submission.DeployURL
	}

	if submission.Task.ID != 0 {
		response.Task = &TaskSummary{ID: submission.Task.ID, Title: submission.Task.Title}
	}
	if submission.User.ID != 0 {
		response.User = &UserSummary{ID: submission.User.ID, Name: submission.User.Name, Email: submission.User.Email}
	}

	return response
}

// NewSubmissionResponseSlice maps models into response DTOs.
func NewSubmissionResponseSlice(submissions []models.Submission, includeLinks bool) []SubmissionResponse {
	items := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		items = append(items, NewSubmissionResponse(submission, includeLinks))
	}
	return items
}
