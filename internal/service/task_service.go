package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/codeclash-dev/codeclash-api/internal/dto"
	"github.com/codeclash-dev/codeclash-api/internal/models"
	"github.com/codeclash-dev/codeclash-api/internal/repository"
)

// ErrTaskNotFound indicates the requested task does not exist.
var ErrTaskNotFound = errors.New("task not found")

// ErrDuplicateTitle indicates another task already carries the title,
// ignoring case.
var ErrDuplicateTitle = errors.New("task title already in use")

// ErrInvalidDifficulty indicates an unrecognised difficulty value.
var ErrInvalidDifficulty = errors.New("invalid difficulty")

// ErrInvalidPoints indicates a negative points value.
var ErrInvalidPoints = errors.New("points must be zero or greater")

// ErrInvalidTestCases indicates a test case is missing its input or
// expected output.
var ErrInvalidTestCases = errors.New("invalid test cases")

// ErrUIImageRequired indicates task creation was attempted without the
// reference UI image.
var ErrUIImageRequired = errors.New("ui image is required")

// ErrTooManyImages indicates the supplementary image cap was exceeded.
var ErrTooManyImages = errors.New("too many images")

// ErrAssetUpload indicates the storage backend rejected an asset; the
// task was not persisted.
var ErrAssetUpload = errors.New("asset upload failed")

// ErrQueryTimeout indicates the store did not answer within the
// configured deadline.
var ErrQueryTimeout = errors.New("query timed out")

// MaxTaskImages caps the supplementary image slots on a task.
const MaxTaskImages = 10

// Viewer identifies the authenticated caller for redaction decisions.
// A zero Viewer is an anonymous request.
type Viewer struct {
	ID   uint
	Role string
}

// IsAdmin reports whether the viewer holds the admin role.
func (v Viewer) IsAdmin() bool {
	return models.IsAdminRole(v.Role)
}

// TaskAssetFiles carries the multipart file slots of a task mutation.
type TaskAssetFiles struct {
	UIImage *multipart.FileHeader
	Logo    *multipart.FileHeader
	Images  []*multipart.FileHeader
}

// TaskServiceConfig bounds the store deadlines for read paths.
type TaskServiceConfig struct {
	ListTimeout time.Duration
	GetTimeout  time.Duration
}

// TaskService exposes task use cases.
type TaskService interface {
	List(ctx context.Context, params map[string]string, viewer Viewer) (dto.TaskListResponse, error)
	Get(ctx context.Context, id uint, fields []string, viewer Viewer) (dto.TaskResponse, error)
	Create(ctx context.Context, payload dto.TaskCreateRequest, files TaskAssetFiles) (dto.TaskResponse, error)
	Update(ctx context.Context, id uint, payload dto.TaskUpdateRequest, files TaskAssetFiles) (dto.TaskResponse, error)
	Delete(ctx context.Context, id uint) (dto.TaskDeleteResult, error)
}

type taskService struct {
	tasks     repository.TaskRepository
	storage   FileStorage
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	config    TaskServiceConfig
}

// NewTaskService constructs a task service.
func NewTaskService(tasks repository.TaskRepository, storage FileStorage, validate *validator.Validate, logger zerolog.Logger, cfg TaskServiceConfig) TaskService {
	if cfg.ListTimeout <= 0 {
		cfg.ListTimeout = 10 * time.Second
	}
	if cfg.GetTimeout <= 0 {
		cfg.GetTimeout = 5 * time.Second
	}

	return &taskService{
		tasks:     tasks,
		storage:   storage,
		validator: validate,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.With().Str("component", "task_service").Logger(),
		config:    cfg,
	}
}

func (s *taskService) List(ctx context.Context, params map[string]string, viewer Viewer) (dto.TaskListResponse, error) {
	query, err := repository.ParseTaskListQuery(params)
	if err != nil {
		return dto.TaskListResponse{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.ListTimeout)
	defer cancel()

	tasks, total, err := s.tasks.List(ctx, query)
	if err != nil {
		if isDeadline(ctx, err) {
			s.logger.Warn().Dur("timeout", s.config.ListTimeout).Msg("task listing exceeded store deadline")
			return dto.TaskListResponse{}, ErrQueryTimeout
		}
		return dto.TaskListResponse{}, err
	}

	pagination := dto.NewPagination(total, query.Page, query.Limit, len(tasks))
	return dto.NewTaskListResponse(tasks, pagination, viewer.IsAdmin()), nil
}

func (s *taskService) Get(ctx context.Context, id uint, fields []string, viewer Viewer) (dto.TaskResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.GetTimeout)
	defer cancel()

	task, err := s.tasks.GetByID(ctx, id, fields)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TaskResponse{}, ErrTaskNotFound
		}
		if isDeadline(ctx, err) {
			return dto.TaskResponse{}, ErrQueryTimeout
		}
		return dto.TaskResponse{}, err
	}

	return dto.NewTaskResponse(task, viewer.IsAdmin()), nil
}

func (s *taskService) Create(ctx context.Context, payload dto.TaskCreateRequest, files TaskAssetFiles) (dto.TaskResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TaskResponse{}, err
	}

	difficulty := strings.ToLower(strings.TrimSpace(payload.Difficulty))
	if difficulty == "" {
		difficulty = models.TaskDifficultyMedium
	}
	if !models.ValidDifficulty(difficulty) {
		return dto.TaskResponse{}, ErrInvalidDifficulty
	}

	points := models.TaskDefaultPoints
	if payload.Points != nil {
		if *payload.Points < 0 {
			return dto.TaskResponse{}, ErrInvalidPoints
		}
		points = *payload.Points
	}

	if err := validateTestCases(payload.TestCases); err != nil {
		return dto.TaskResponse{}, err
	}

	assets := payload.Assets
	if assets == nil {
		assets = map[string]interface{}{}
	}
	if files.UIImage == nil && assets["ui_image"] == nil {
		return dto.TaskResponse{}, ErrUIImageRequired
	}
	if err := s.attachAssetFiles(ctx, assets, files); err != nil {
		return dto.TaskResponse{}, err
	}

	title := strings.TrimSpace(payload.Title)
	if err := s.ensureTitleFree(ctx, title, 0); err != nil {
		return dto.TaskResponse{}, err
	}

	task := models.Task{
		Title:         title,
		Description:   s.sanitizer.Sanitize(strings.TrimSpace(payload.Description)),
		Difficulty:    difficulty,
		Points:        points,
		SolutionNotes: s.sanitizer.Sanitize(payload.SolutionNotes),
	}

	var err error
	if task.Dependencies, err = marshalDocument(normaliseDependencies(payload.Dependencies)); err != nil {
		return dto.TaskResponse{}, err
	}
	if task.Assets, err = marshalDocument(assets); err != nil {
		return dto.TaskResponse{}, err
	}
	if len(payload.TestCases) > 0 {
		if task.TestCases, err = marshalDocument(payload.TestCases); err != nil {
			return dto.TaskResponse{}, err
		}
	}

	if err := s.tasks.Create(ctx, &task); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.TaskResponse{}, ErrDuplicateTitle
		}
		return dto.TaskResponse{}, err
	}

	s.logger.Info().Uint("task_id", task.ID).Str("title", task.Title).Msg("task created")
	return dto.NewTaskResponse(task, true), nil
}

func (s *taskService) Update(ctx context.Context, id uint, payload dto.TaskUpdateRequest, files TaskAssetFiles) (dto.TaskResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TaskResponse{}, err
	}

	task, err := s.tasks.GetByID(ctx, id, nil)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TaskResponse{}, ErrTaskNotFound
		}
		return dto.TaskResponse{}, err
	}

	if payload.Title != nil {
		title := strings.TrimSpace(*payload.Title)
		if !strings.EqualFold(title, task.Title) {
			if err := s.ensureTitleFree(ctx, title, task.ID); err != nil {
				return dto.TaskResponse{}, err
			}
		}
		task.Title = title
	}
	if payload.Description != nil {
		task.Description = s.sanitizer.Sanitize(strings.TrimSpace(*payload.Description))
	}
	if payload.Difficulty != nil {
		difficulty := strings.ToLower(strings.TrimSpace(*payload.Difficulty))
		if !models.ValidDifficulty(difficulty) {
			return dto.TaskResponse{}, ErrInvalidDifficulty
		}
		task.Difficulty = difficulty
	}
	if payload.Points != nil {
		if *payload.Points < 0 {
			return dto.TaskResponse{}, ErrInvalidPoints
		}
		task.Points = *payload.Points
	}
	if payload.Dependencies != nil {
		if task.Dependencies, err = marshalDocument(normaliseDependencies(*payload.Dependencies)); err != nil {
			return dto.TaskResponse{}, err
		}
	}
	if payload.TestCases != nil {
		if err := validateTestCases(*payload.TestCases); err != nil {
			return dto.TaskResponse{}, err
		}
		if task.TestCases, err = marshalDocument(*payload.TestCases); err != nil {
			return dto.TaskResponse{}, err
		}
	}
	if payload.SolutionNotes != nil {
		task.SolutionNotes = s.sanitizer.Sanitize(*payload.SolutionNotes)
	}

	// Assets shallow-merge: keys in the request overwrite stored keys,
	// everything else survives. Uploaded files win over body values.
	if payload.Assets != nil || files.UIImage != nil || files.Logo != nil || len(files.Images) > 0 {
		assets := task.AssetsMap()
		for key, value := range payload.Assets {
			assets[key] = value
		}
		if err := s.attachAssetFiles(ctx, assets, files); err != nil {
			return dto.TaskResponse{}, err
		}
		if task.Assets, err = marshalDocument(assets); err != nil {
			return dto.TaskResponse{}, err
		}
	}

	if err := s.tasks.Update(ctx, &task); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.TaskResponse{}, ErrDuplicateTitle
		}
		return dto.TaskResponse{}, err
	}

	return dto.NewTaskResponse(task, true), nil
}

func (s *taskService) Delete(ctx context.Context, id uint) (dto.TaskDeleteResult, error) {
	removed, err := s.tasks.DeleteWithSubmissions(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TaskDeleteResult{}, ErrTaskNotFound
		}
		return dto.TaskDeleteResult{}, err
	}

	s.logger.Info().Uint("task_id", id).Int64("submissions_removed", removed).Msg("task deleted")
	return dto.TaskDeleteResult{ID: id, SubmissionsRemoved: removed}, nil
}

func (s *taskService) ensureTitleFree(ctx context.Context, title string, selfID uint) error {
	existing, err := s.tasks.GetByTitleFold(ctx, title)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if existing.ID == selfID {
		return nil
	}
	return ErrDuplicateTitle
}

// attachAssetFiles uploads every supplied file slot and writes the
// resulting URLs into the assets document. Any storage failure aborts
// the whole mutation before persistence.
func (s *taskService) attachAssetFiles(ctx context.Context, assets map[string]interface{}, files TaskAssetFiles) error {
	if len(files.Images) > MaxTaskImages {
		return ErrTooManyImages
	}

	if files.UIImage != nil {
		url, err := s.uploadImage(ctx, files.UIImage)
		if err != nil {
			return err
		}
		assets["ui_image"] = url
	}

	if files.Logo != nil {
		url, err := s.uploadImage(ctx, files.Logo)
		if err != nil {
			return err
		}
		assets["logo"] = url
	}

	if len(files.Images) > 0 {
		urls := make([]string, 0, len(files.Images))
		for _, image := range files.Images {
			url, err := s.uploadImage(ctx, image)
			if err != nil {
				return err
			}
			urls = append(urls, url)
		}
		assets["images"] = urls
	}

	return nil
}

func (s *taskService) uploadImage(ctx context.Context, file *multipart.FileHeader) (string, error) {
	handle, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAssetUpload, err)
	}
	defer handle.Close()

	payload, err := io.ReadAll(handle)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAssetUpload, err)
	}

	if !strings.HasPrefix(mimetype.Detect(payload).String(), "image/") {
		return "", ErrUploadTypeNotAllowed
	}

	url, err := s.storage.Upload(ctx, sanitizeFileName(file.Filename), bytes.NewReader(payload))
	if err != nil {
		s.logger.Error().Err(err).Str("file", file.Filename).Msg("asset upload failed")
		return "", fmt.Errorf("%w: %v", ErrAssetUpload, err)
	}
	return url, nil
}

func validateTestCases(cases []dto.TaskTestCasePayload) error {
	for i, testCase := range cases {
		if emptyJSONValue(testCase.Input) {
			return fmt.Errorf("%w: case %d has no input", ErrInvalidTestCases, i)
		}
		if emptyJSONValue(testCase.ExpectedOutput) {
			return fmt.Errorf("%w: case %d has no expected output", ErrInvalidTestCases, i)
		}
	}
	return nil
}

func emptyJSONValue(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

func normaliseDependencies(deps []string) []string {
	result := make([]string, 0, len(deps))
	seen := make(map[string]struct{})
	for _, dep := range deps {
		trimmed := strings.TrimSpace(dep)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

func marshalDocument(value interface{}) (datatypes.JSON, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(payload), nil
}

func isDeadline(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
