package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/codeclash-dev/codeclash-api/internal/config"
	"github.com/codeclash-dev/codeclash-api/internal/dto"
	"github.com/codeclash-dev/codeclash-api/internal/handler"
	"github.com/codeclash-dev/codeclash-api/internal/models"
	"github.com/codeclash-dev/codeclash-api/internal/repository"
	"github.com/codeclash-dev/codeclash-api/internal/router"
	"github.com/codeclash-dev/codeclash-api/internal/service"
)

var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52}

type testStorage struct{}

func (s *testStorage) Upload(_ context.Context, name string, _ io.Reader) (string, error) {
	return "https://cdn.test/" + name, nil
}

func stubAuth(userID uint, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		c.Locals("user_role", role)
		return c.Next()
	}
}

func setupTaskApp(t *testing.T, userID uint, role string) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Task{}, &models.Submission{}))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	taskRepo := repository.NewTaskRepository(db)
	taskService := service.NewTaskService(taskRepo, &testStorage{}, validate, logger, service.TaskServiceConfig{})
	taskHandler := handler.NewTaskHandler(taskService, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		TaskHandler:   taskHandler,
		JWTMiddleware: stubAuth(userID, role),
		OptionalJWT:   stubAuth(userID, role),
	})

	return app, db
}

func decodeResponse(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func createTaskJSON(t *testing.T, app *fiber.App, payload map[string]interface{}) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/v1/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func baseTaskPayload(title string) map[string]interface{} {
	return map[string]interface{}{
		"title":       title,
		"description": "replicate the page pixel-perfect",
		"assets":      map[string]interface{}{"ui_image": "https://cdn.test/ui.png"},
	}
}

func TestTaskCreateAndGetWithETag(t *testing.T) {
	app, _ := setupTaskApp(t, 1, models.RoleAdmin)

	resp := createTaskJSON(t, app, baseTaskPayload("Login Page"))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created struct {
		Success bool             `json:"success"`
		Data    dto.TaskResponse `json:"data"`
	}
	decodeResponse(t, resp, &created)
	require.True(t, created.Success)
	require.NotZero(t, created.Data.ID)
	require.Equal(t, "medium", created.Data.Difficulty)
	require.Equal(t, 10, created.Data.Points)

	id := strconv.FormatUint(uint64(created.Data.ID), 10)
	getReq := httptest.NewRequest("GET", "/api/v1/tasks/"+id, nil)
	getResp, err := app.Test(getReq)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, getResp.StatusCode)

	etag := getResp.Header.Get("Etag")
	require.NotEmpty(t, etag)
	require.Contains(t, getResp.Header.Get("Cache-Control"), "max-age")
	getResp.Body.Close()

	cachedReq := httptest.NewRequest("GET", "/api/v1/tasks/"+id, nil)
	cachedReq.Header.Set("If-None-Match", etag)
	cachedResp, err := app.Test(cachedReq)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotModified, cachedResp.StatusCode)
	cachedResp.Body.Close()
}

func TestTaskCreateDuplicateTitleConflicts(t *testing.T) {
	app, _ := setupTaskApp(t, 1, models.RoleAdmin)

	resp := createTaskJSON(t, app, baseTaskPayload("Login Page"))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	dupe := createTaskJSON(t, app, baseTaskPayload("LOGIN PAGE"))
	require.Equal(t, fiber.StatusConflict, dupe.StatusCode)

	var body struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	decodeResponse(t, dupe, &body)
	require.False(t, body.Success)
	require.Equal(t, "CONFLICT", body.Code)
}

func TestTaskCreateMultipart(t *testing.T) {
	app, _ := setupTaskApp(t, 1, models.RoleAdmin)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("title", "Navbar Clone"))
	require.NoError(t, writer.WriteField("description", "replicate the navbar"))
	require.NoError(t, writer.WriteField("difficulty", "hard"))
	require.NoError(t, writer.WriteField("points", "40"))
	require.NoError(t, writer.WriteField("dependencies", "react, tailwindcss"))
	part, err := writer.CreateFormFile("ui_image", "target.png")
	require.NoError(t, err)
	_, err = part.Write(pngBytes)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/v1/tasks", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created struct {
		Data dto.TaskResponse `json:"data"`
	}
	decodeResponse(t, resp, &created)
	require.Equal(t, "hard", created.Data.Difficulty)
	require.Equal(t, 40, created.Data.Points)
	require.Equal(t, []string{"react", "tailwindcss"}, created.Data.Dependencies)
	require.Equal(t, "https://cdn.test/target.png", created.Data.Assets["ui_image"])
}

func TestTaskMutationsRequireAdmin(t *testing.T) {
	app, _ := setupTaskApp(t, 2, models.RoleUser)

	resp := createTaskJSON(t, app, baseTaskPayload("Login Page"))
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestTaskGetErrors(t *testing.T) {
	app, _ := setupTaskApp(t, 0, "")

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/tasks/abc", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/tasks/999", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestTaskListFilterSortPaginate(t *testing.T) {
	app, db := setupTaskApp(t, 0, "")

	for _, seed := range []models.Task{
		{Title: "Alpha", Description: "d", Difficulty: "easy", Points: 10},
		{Title: "Beta", Description: "d", Difficulty: "medium", Points: 20},
		{Title: "Gamma", Description: "d", Difficulty: "hard", Points: 50},
	} {
		task := seed
		require.NoError(t, db.Create(&task).Error)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/tasks?points[gte]=20&sort=-points", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var list struct {
		Data dto.TaskListResponse `json:"data"`
	}
	decodeResponse(t, resp, &list)
	require.Len(t, list.Data.Items, 2)
	require.Equal(t, "Gamma", list.Data.Items[0].Title)
	require.EqualValues(t, 2, list.Data.Pagination.Total)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/tasks?limit=2&page=2&sort=title", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeResponse(t, resp, &list)
	require.Len(t, list.Data.Items, 1)
	require.NotNil(t, list.Data.Pagination.Prev)
	require.Equal(t, 1, list.Data.Pagination.Prev.Page)
	require.Nil(t, list.Data.Pagination.Next)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/tasks?bogus=1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestTaskUpdatePartial(t *testing.T) {
	app, db := setupTaskApp(t, 1, models.RoleAdmin)

	task := models.Task{Title: "Alpha", Description: "original", Difficulty: "easy", Points: 10}
	require.NoError(t, db.Create(&task).Error)

	payload, err := json.Marshal(map[string]interface{}{"points": 35})
	require.NoError(t, err)

	req := httptest.NewRequest("PUT", "/api/v1/tasks/"+strconv.FormatUint(uint64(task.ID), 10), bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var updated struct {
		Data dto.TaskResponse `json:"data"`
	}
	decodeResponse(t, resp, &updated)
	require.Equal(t, 35, updated.Data.Points)
	require.Equal(t, "original", updated.Data.Description)
}

func TestTaskDeleteCascades(t *testing.T) {
	app, db := setupTaskApp(t, 1, models.RoleAdmin)

	task := models.Task{Title: "Alpha", Description: "d", Difficulty: "easy", Points: 10}
	require.NoError(t, db.Create(&task).Error)
	user := models.User{Name: "Sam", Email: "sam@example.com"}
	require.NoError(t, db.Create(&user).Error)
	submission := models.Submission{TaskID: task.ID, UserID: user.ID, CodeURL: "https://github.com/sam/solution", Status: models.SubmissionStatusPending}
	require.NoError(t, db.Create(&submission).Error)

	req := httptest.NewRequest("DELETE", "/api/v1/tasks/"+strconv.FormatUint(uint64(task.ID), 10), nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var deleted struct {
		Data dto.TaskDeleteResult `json:"data"`
	}
	decodeResponse(t, resp, &deleted)
	require.EqualValues(t, 1, deleted.Data.SubmissionsRemoved)

	var remaining int64
	require.NoError(t, db.Model(&models.Submission{}).Where("task_id = ?", task.ID).Count(&remaining).Error)
	require.Zero(t, remaining)
}

func TestTaskRedactionForAnonymous(t *testing.T) {
	app, db := setupTaskApp(t, 0, "")

	task := models.Task{
		Title:         "Alpha",
		Description:   "d",
		Difficulty:    "easy",
		Points:        10,
		TestCases:     []byte(`[{"input":"a","expected_output":"b","is_hidden":true}]`),
		SolutionNotes: "grid layout",
	}
	require.NoError(t, db.Create(&task).Error)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/tasks/"+strconv.FormatUint(uint64(task.ID), 10), nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data dto.TaskResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Empty(t, body.Data.TestCases)
	require.Empty(t, body.Data.SolutionNotes)
}
