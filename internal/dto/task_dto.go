package dto

import (
	"encoding/json"
	"time"

	"github.com/codeclash-dev/codeclash-api/internal/models"
)

// TaskTestCasePayload carries one test case. Input and expected output
// are arbitrary JSON values supplied by the admin UI.
type TaskTestCasePayload struct {
	Input          json.RawMessage `json:"input"`
	ExpectedOutput json.RawMessage `json:"expected_output"`
	IsHidden       bool            `json:"is_hidden"`
}

// TaskCreateRequest is the JSON body (or multipart form fields) for
// creating a task. File slots travel separately as multipart parts.
type TaskCreateRequest struct {
	Title         string                 `json:"title" form:"title" validate:"required,max=100"`
	Description   string                 `json:"description" form:"description" validate:"required"`
	Difficulty    string                 `json:"difficulty" form:"difficulty"`
	Points        *int                   `json:"points" form:"points"`
	Dependencies  []string               `json:"dependencies"`
	Assets        map[string]interface{} `json:"assets"`
	TestCases     []TaskTestCasePayload  `json:"test_cases"`
	SolutionNotes string                 `json:"solution_notes"`
}

// TaskUpdateRequest applies partial update semantics: only non-nil
// fields are written. Assets shallow-merges into the stored document.
type TaskUpdateRequest struct {
	Title         *string                `json:"title" validate:"omitempty,max=100"`
	Description   *string                `json:"description"`
	Difficulty    *string                `json:"difficulty"`
	Points        *int                   `json:"points"`
	Dependencies  *[]string              `json:"dependencies"`
	Assets        map[string]interface{} `json:"assets"`
	TestCases     *[]TaskTestCasePayload `json:"test_cases"`
	SolutionNotes *string                `json:"solution_notes"`
}

// TaskResponse is the API shape of a task. Optional documents carry
// omitempty so store-level field projection drops them from the body.
type TaskResponse struct {
	ID              uint                   `json:"id"`
	Title           string                 `json:"title,omitempty"`
	Description     string                 `json:"description,omitempty"`
	Difficulty      string                 `json:"difficulty,omitempty"`
	Points          int                    `json:"points"`
	Dependencies    []string               `json:"dependencies,omitempty"`
	Assets          map[string]interface{} `json:"assets,omitempty"`
	TestCases       []TaskTestCasePayload  `json:"test_cases,omitempty"`
	SolutionNotes   string                 `json:"solution_notes,omitempty"`
	SubmissionCount int                    `json:"submission_count"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// TaskListResponse wraps tasks with their pagination block.
type TaskListResponse struct {
	Items      []TaskResponse `json:"items"`
	Pagination Pagination     `json:"pagination"`
}

// TaskDeleteResult reports the outcome of a cascading task delete.
type TaskDeleteResult struct {
	ID                 uint  `json:"id"`
	SubmissionsRemoved int64 `json:"submissions_removed"`
}

// NewTaskResponse builds the response DTO. When includeHidden is false
// the test cases and solution notes are withheld, regardless of what
// the store returned.
func NewTaskResponse(task models.Task, includeHidden bool) TaskResponse {
	response := TaskResponse{
		ID:              task.ID,
		Title:           task.Title,
		Description:     task.Description,
		Difficulty:      task.Difficulty,
		Points:          task.Points,
		Dependencies:    task.DependenciesSlice(),
		Assets:          task.AssetsMap(),
		SubmissionCount: task.SubmissionCount,
		CreatedAt:       task.CreatedAt,
		UpdatedAt:       task.UpdatedAt,
	}

	if includeHidden {
		response.SolutionNotes = task.SolutionNotes
		if len(task.TestCases) > 0 {
			var cases []TaskTestCasePayload
			if err := json.Unmarshal(task.TestCases, &cases); err == nil {
				response.TestCases = cases
			}
		}
	}

	if len(response.Dependencies) == 0 {
		response.Dependencies = nil
	}
	if len(response.Assets) == 0 {
		response.Assets = nil
	}

	return response
}

// NewTaskListResponse builds a list response from models plus its
// pagination block.
func NewTaskListResponse(tasks []models.Task, pagination Pagination, includeHidden bool) TaskListResponse {
	items := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, NewTaskResponse(task, includeHidden))
	}

	return TaskListResponse{Items: items, Pagination: pagination}
}
