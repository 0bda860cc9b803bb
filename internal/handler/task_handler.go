package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codeclash-dev/codeclash-api/internal/dto"
	"github.com/codeclash-dev/codeclash-api/internal/repository"
	"github.com/codeclash-dev/codeclash-api/internal/service"
	"github.com/codeclash-dev/codeclash-api/internal/utils"
)

// TaskHandler manages task endpoints.
type TaskHandler struct {
	service service.TaskService
	logger  zerolog.Logger
}

// NewTaskHandler builds a task handler instance.
func NewTaskHandler(service service.TaskService, logger zerolog.Logger) *TaskHandler {
	return &TaskHandler{
		service: service,
		logger:  logger.With().Str("component", "task_handler").Logger(),
	}
}

// RegisterPublic attaches the read routes.
func (h *TaskHandler) RegisterPublic(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
}

// RegisterAdmin attaches the mutation routes behind the supplied
// guards. Guards are applied per route so the read routes sharing the
// group stay public.
func (h *TaskHandler) RegisterAdmin(router fiber.Router, guards ...fiber.Handler) {
	router.Post("", withGuards(guards, h.create)...)
	router.Put("/:id", withGuards(guards, h.update)...)
	router.Delete("/:id", withGuards(guards, h.delete)...)
}

func withGuards(guards []fiber.Handler, handler fiber.Handler) []fiber.Handler {
	chain := make([]fiber.Handler, 0, len(guards)+1)
	chain = append(chain, guards...)
	return append(chain, handler)
}

func (h *TaskHandler) list(c *fiber.Ctx) error {
	response, err := h.service.List(c.UserContext(), c.Queries(), viewerFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	c.Set(fiber.HeaderCacheControl, "public, max-age=60")
	return utils.SendSuccess(c, "tasks retrieved", response)
}

func (h *TaskHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var fields []string
	if raw := strings.TrimSpace(c.Query("fields")); raw != "" {
		fields = splitAndTrim(raw)
	}

	task, err := h.service.Get(c.UserContext(), id, fields, viewerFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	etag := fmt.Sprintf(`"task-%d-%d"`, task.ID, task.UpdatedAt.Unix())
	c.Set(fiber.HeaderETag, etag)
	c.Set(fiber.HeaderCacheControl, "public, max-age=300")
	if match := strings.TrimSpace(c.Get(fiber.HeaderIfNoneMatch)); match == etag {
		return c.SendStatus(fiber.StatusNotModified)
	}

	return utils.SendSuccess(c, "task retrieved", task)
}

func (h *TaskHandler) create(c *fiber.Ctx) error {
	payload, files, err := h.parseTaskForm(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	task, err := h.service.Create(c.UserContext(), payload, files)
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().Uint("task_id", task.ID).Msg("task created")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "task created", task)
}

func (h *TaskHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.TaskUpdateRequest
	files := service.TaskAssetFiles{}
	if isMultipart(c) {
		payload, files, err = h.parseTaskUpdateForm(c)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
	} else if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	task, err := h.service.Update(c.UserContext(), id, payload, files)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "task updated", task)
}

func (h *TaskHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Delete(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().Uint("task_id", id).Int64("submissions_removed", result.SubmissionsRemoved).Msg("task deleted")
	return utils.SendSuccess(c, "task deleted", result)
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), "multipart/form-data")
}

// parseTaskForm accepts either a JSON body or a multipart form with
// file slots ui_image, logo and images.
func (h *TaskHandler) parseTaskForm(c *fiber.Ctx) (dto.TaskCreateRequest, service.TaskAssetFiles, error) {
	var payload dto.TaskCreateRequest
	files := service.TaskAssetFiles{}

	if !isMultipart(c) {
		if err := c.BodyParser(&payload); err != nil {
			return payload, files, errors.New("invalid request body")
		}
		return payload, files, nil
	}

	payload.Title = c.FormValue("title")
	payload.Description = c.FormValue("description")
	payload.Difficulty = c.FormValue("difficulty")
	if raw := strings.TrimSpace(c.FormValue("points")); raw != "" {
		var points int
		if _, err := fmt.Sscanf(raw, "%d", &points); err != nil {
			return payload, files, errors.New("invalid points")
		}
		payload.Points = &points
	}
	if raw := strings.TrimSpace(c.FormValue("dependencies")); raw != "" {
		payload.Dependencies = splitAndTrim(raw)
	}
	if raw := strings.TrimSpace(c.FormValue("assets")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload.Assets); err != nil {
			return payload, files, errors.New("invalid assets document")
		}
	}
	if raw := strings.TrimSpace(c.FormValue("test_cases")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload.TestCases); err != nil {
			return payload, files, errors.New("invalid test cases document")
		}
	}
	payload.SolutionNotes = c.FormValue("solution_notes")

	files, err := taskFilesFromForm(c)
	return payload, files, err
}

func (h *TaskHandler) parseTaskUpdateForm(c *fiber.Ctx) (dto.TaskUpdateRequest, service.TaskAssetFiles, error) {
	var payload dto.TaskUpdateRequest
	files := service.TaskAssetFiles{}

	if value := c.FormValue("title"); value != "" {
		payload.Title = &value
	}
	if value := c.FormValue("description"); value != "" {
		payload.Description = &value
	}
	if value := c.FormValue("difficulty"); value != "" {
		payload.Difficulty = &value
	}
	if raw := strings.TrimSpace(c.FormValue("points")); raw != "" {
		var points int
		if _, err := fmt.Sscanf(raw, "%d", &points); err != nil {
			return payload, files, errors.New("invalid points")
		}
		payload.Points = &points
	}
	if raw := strings.TrimSpace(c.FormValue("dependencies")); raw != "" {
		deps := splitAndTrim(raw)
		payload.Dependencies = &deps
	}
	if raw := strings.TrimSpace(c.FormValue("assets")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload.Assets); err != nil {
			return payload, files, errors.New("invalid assets document")
		}
	}
	if raw := strings.TrimSpace(c.FormValue("test_cases")); raw != "" {
		var cases []dto.TaskTestCasePayload
		if err := json.Unmarshal([]byte(raw), &cases); err != nil {
			return payload, files, errors.New("invalid test cases document")
		}
		payload.TestCases = &cases
	}
	if value := c.FormValue("solution_notes"); value != "" {
		payload.SolutionNotes = &value
	}

	files, err := taskFilesFromForm(c)
	return payload, files, err
}

func taskFilesFromForm(c *fiber.Ctx) (service.TaskAssetFiles, error) {
	files := service.TaskAssetFiles{}

	files.UIImage = formFileOptional(c, "ui_image", "uiImage")
	files.Logo = formFileOptional(c, "logo")

	form, err := c.MultipartForm()
	if err != nil {
		return files, errors.New("invalid multipart form")
	}
	if form != nil {
		files.Images = form.File["images"]
	}

	return files, nil
}

func formFileOptional(c *fiber.Ctx, names ...string) *multipart.FileHeader {
	for _, name := range names {
		if file, err := c.FormFile(name); err == nil && file != nil {
			return file
		}
	}
	return nil
}

func (h *TaskHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "task not found")
	case errors.Is(err, service.ErrDuplicateTitle):
		return utils.SendError(c, fiber.StatusConflict, "task title already in use")
	case errors.Is(err, repository.ErrInvalidQuery),
		errors.Is(err, service.ErrInvalidDifficulty),
		errors.Is(err, service.ErrInvalidPoints),
		errors.Is(err, service.ErrInvalidTestCases),
		errors.Is(err, service.ErrUIImageRequired),
		errors.Is(err, service.ErrTooManyImages),
		errors.Is(err, service.ErrUploadTypeNotAllowed):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrQueryTimeout):
		return utils.SendError(c, fiber.StatusGatewayTimeout, "query timed out")
	case errors.Is(err, service.ErrAssetUpload):
		return utils.SendError(c, fiber.StatusBadGateway, "asset storage unavailable")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
