package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
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

type identity struct {
	userID uint
	role   string
}

// setupSubmissionApp wires the submission routes with a switchable
// caller identity so one app can exercise both user and admin paths.
func setupSubmissionApp(t *testing.T) (*fiber.App, *gorm.DB, *identity) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Task{}, &models.Submission{}))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	taskRepo := repository.NewTaskRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	submissionService := service.NewSubmissionService(submissionRepo, taskRepo, nil, nil, validate, logger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, logger)

	caller := &identity{userID: 1, role: models.RoleUser}

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		SubmissionHandler: submissionHandler,
		JWTMiddleware: func(c *fiber.Ctx) error {
			c.Locals("user_id", caller.userID)
			c.Locals("user_role", caller.role)
			return c.Next()
		},
	})

	return app, db, caller
}

func seedTaskAndUsers(t *testing.T, db *gorm.DB) models.Task {
	t.Helper()

	task := models.Task{Title: "Login Page", Description: "d", Difficulty: "easy", Points: 15}
	require.NoError(t, db.Create(&task).Error)
	for _, user := range []models.User{
		{Name: "Alice", Email: "alice@example.com"},
		{Name: "Bob", Email: "bob@example.com"},
		{Name: "Root", Email: "root@example.com", Role: models.RoleAdmin},
	} {
		u := user
		require.NoError(t, db.Create(&u).Error)
	}
	return task
}

func createSubmission(t *testing.T, app *fiber.App, taskID uint) dto.SubmissionResponse {
	t.Helper()

	payload, err := json.Marshal(map[string]interface{}{
		"task_id":  taskID,
		"code_url": "https://github.com/user/solution",
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/v1/submissions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body struct {
		Data dto.SubmissionResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	return body.Data
}

func TestSubmissionCreateAndDuplicate(t *testing.T) {
	app, db, _ := setupSubmissionApp(t)
	task := seedTaskAndUsers(t, db)

	created := createSubmission(t, app, task.ID)
	require.Equal(t, models.SubmissionStatusPending, created.Status)

	var reloaded models.Task
	require.NoError(t, db.First(&reloaded, task.ID).Error)
	require.Equal(t, 1, reloaded.SubmissionCount)

	payload, err := json.Marshal(map[string]interface{}{
		"task_id":  task.ID,
		"code_url": "https://github.com/user/second-try",
	})
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/api/v1/submissions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	var body struct {
		Code string `json:"code"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "CONFLICT", body.Code)
}

func TestSubmissionOwnershipGates(t *testing.T) {
	app, db, caller := setupSubmissionApp(t)
	task := seedTaskAndUsers(t, db)

	created := createSubmission(t, app, task.ID)
	id := strconv.FormatUint(uint64(created.ID), 10)

	// Another authenticated user is rejected with 403, not 401.
	caller.userID = 2
	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/submissions/"+id, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp, err = app.Test(httptest.NewRequest("DELETE", "/api/v1/submissions/"+id, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	caller.userID = 3
	caller.role = models.RoleAdmin
	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/submissions/"+id, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmissionReviewFlow(t *testing.T) {
	app, db, caller := setupSubmissionApp(t)
	task := seedTaskAndUsers(t, db)

	created := createSubmission(t, app, task.ID)
	id := strconv.FormatUint(uint64(created.ID), 10)

	review := func(payload map[string]interface{}) (int, dto.SubmissionResponse) {
		body, err := json.Marshal(payload)
		require.NoError(t, err)
		req := httptest.NewRequest("PUT", "/api/v1/submissions/"+id, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)

		var decoded struct {
			Data dto.SubmissionResponse `json:"data"`
		}
		if resp.StatusCode == fiber.StatusOK {
			decodeResponse(t, resp, &decoded)
		} else {
			resp.Body.Close()
		}
		return resp.StatusCode, decoded.Data
	}

	// The owner cannot review their own submission.
	status, _ := review(map[string]interface{}{"status": "passed"})
	require.Equal(t, fiber.StatusForbidden, status)

	caller.userID = 3
	caller.role = models.RoleAdmin

	status, _ = review(map[string]interface{}{"score": 120})
	require.Equal(t, fiber.StatusBadRequest, status)

	status, reviewed := review(map[string]interface{}{"status": "passed", "score": 92.5, "feedback": "nice work"})
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, models.SubmissionStatusPassed, reviewed.Status)
	require.NotNil(t, reviewed.Score)
	require.Equal(t, 92.5, *reviewed.Score)

	// Terminal states are immutable.
	status, _ = review(map[string]interface{}{"status": "pending"})
	require.Equal(t, fiber.StatusBadRequest, status)
}

func TestSubmissionListScoping(t *testing.T) {
	app, db, caller := setupSubmissionApp(t)
	task := seedTaskAndUsers(t, db)

	createSubmission(t, app, task.ID)
	caller.userID = 2
	createSubmission(t, app, task.ID)

	// Listing everything requires the admin role.
	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/submissions", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/submissions/me", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var mine struct {
		Data []dto.SubmissionResponse `json:"data"`
	}
	decodeResponse(t, resp, &mine)
	require.Len(t, mine.Data, 1)
	require.Equal(t, uint(2), mine.Data[0].UserID)

	// Per-task listing scopes non-admin callers to their own rows.
	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/submissions/task/"+strconv.FormatUint(uint64(task.ID), 10), nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var scoped struct {
		Data dto.SubmissionListResponse `json:"data"`
	}
	decodeResponse(t, resp, &scoped)
	require.Len(t, scoped.Data.Items, 1)

	caller.userID = 3
	caller.role = models.RoleAdmin
	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/submissions", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var all struct {
		Data dto.SubmissionListResponse `json:"data"`
	}
	decodeResponse(t, resp, &all)
	require.Len(t, all.Data.Items, 2)
	require.EqualValues(t, 2, all.Data.Pagination.Total)
}

func TestSubmissionUnknownTask(t *testing.T) {
	app, db, _ := setupSubmissionApp(t)
	seedTaskAndUsers(t, db)

	payload, err := json.Marshal(map[string]interface{}{
		"task_id":  999,
		"code_url": "https://github.com/user/solution",
	})
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/api/v1/submissions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
