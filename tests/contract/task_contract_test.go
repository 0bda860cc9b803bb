package contract_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/codeclash-dev/codeclash-api/internal/dto"
	"github.com/codeclash-dev/codeclash-api/internal/handler"
	"github.com/codeclash-dev/codeclash-api/internal/service"
)

type stubTaskService struct {
	task dto.TaskResponse
}

func (s stubTaskService) List(context.Context, map[string]string, service.Viewer) (dto.TaskListResponse, error) {
	return dto.TaskListResponse{Items: []dto.TaskResponse{s.task}, Pagination: dto.Pagination{Total: 1, Page: 1, Pages: 1, Limit: 25, Count: 1}}, nil
}

func (s stubTaskService) Get(context.Context, uint, []string, service.Viewer) (dto.TaskResponse, error) {
	return s.task, nil
}

func (s stubTaskService) Create(context.Context, dto.TaskCreateRequest, service.TaskAssetFiles) (dto.TaskResponse, error) {
	return s.task, nil
}

func (s stubTaskService) Update(context.Context, uint, dto.TaskUpdateRequest, service.TaskAssetFiles) (dto.TaskResponse, error) {
	return s.task, nil
}

func (s stubTaskService) Delete(context.Context, uint) (dto.TaskDeleteResult, error) {
	return dto.TaskDeleteResult{ID: s.task.ID}, nil
}

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()

	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", name))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)
	return schema
}

func validateBody(t *testing.T, schema *jsonschema.Schema, resp *http.Response) {
	t.Helper()

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

func TestTaskDetailContract(t *testing.T) {
	schema := compileSchema(t, "task.schema.json")

	task := dto.TaskResponse{
		ID:           7,
		Title:        "Pricing Table",
		Description:  "replicate the pricing table pixel-perfect",
		Difficulty:   "medium",
		Points:       25,
		Dependencies: []string{"react"},
		Assets:       map[string]interface{}{"ui_image": "https://cdn.example.com/pricing.png"},
		TestCases: []dto.TaskTestCasePayload{
			{Input: json.RawMessage(`"viewport:1280"`), ExpectedOutput: json.RawMessage(`"match"`), IsHidden: true},
		},
		SolutionNotes:   "css grid with three columns",
		SubmissionCount: 4,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}

	taskHandler := handler.NewTaskHandler(stubTaskService{task: task}, zerolog.Nop())

	app := fiber.New()
	taskHandler.RegisterPublic(app.Group("/api/v1/tasks"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/tasks/7", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	validateBody(t, schema, resp)
}
