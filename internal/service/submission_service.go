package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/codeclash-dev/codeclash-api/internal/dto"
	"github.com/codeclash-dev/codeclash-api/internal/models"
	"github.com/codeclash-dev/codeclash-api/internal/repository"
)

// ErrSubmissionNotFound indicates the submission cannot be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrSubmissionForbidden indicates the caller is neither the owner nor
// an admin.
var ErrSubmissionForbidden = errors.New("forbidden")

// ErrReviewForbidden indicates a non-admin attempted to change review
// fields, including on their own submission.
var ErrReviewForbidden = errors.New("review requires admin role")

// ErrDuplicateSubmission indicates the user already submitted for the
// task.
var ErrDuplicateSubmission = errors.New("submission already exists for this task")

// ErrInvalidStatus indicates an unknown review status value.
var ErrInvalidStatus = errors.New("invalid submission status")

// ErrInvalidStatusTransition indicates the requested status change is
// not legal from the current state.
var ErrInvalidStatusTransition = errors.New("invalid status transition")

// ErrScoreOutOfRange indicates a score outside the 0-100 band.
var ErrScoreOutOfRange = errors.New("score must be between 0 and 100")

// NATS subjects for submission lifecycle events. Publishing is
// best-effort; evaluation workers subscribe out of band.
const (
	SubjectSubmissionCreated  = "codeclash.submissions.created"
	SubjectSubmissionReviewed = "codeclash.submissions.reviewed"
)

const submissionListDefaultLimit = 25

// SubmissionService exposes submission use cases.
type SubmissionService interface {
	Create(ctx context.Context, userID uint, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error)
	Get(ctx context.Context, id uint, viewer Viewer) (dto.SubmissionResponse, error)
	ListAll(ctx context.Context, page, limit int) (dto.SubmissionListResponse, error)
	ListMine(ctx context.Context, userID uint) ([]dto.SubmissionResponse, error)
	ListForTask(ctx context.Context, taskID uint, viewer Viewer, page, limit int) (dto.SubmissionListResponse, error)
	Review(ctx context.Context, id uint, reviewer Viewer, payload dto.SubmissionReviewRequest) (dto.SubmissionResponse, error)
	Delete(ctx context.Context, id uint, viewer Viewer) error
}

type submissionService struct {
	submissions repository.SubmissionRepository
	tasks       repository.TaskRepository
	nats        *nats.Conn
	redis       *redis.Client
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewSubmissionService constructs a submission service. The NATS and
// Redis handles may be nil; events and cache invalidation degrade to
// no-ops.
func NewSubmissionService(submissionRepo repository.SubmissionRepository, taskRepo repository.TaskRepository, natsConn *nats.Conn, redisClient *redis.Client, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		submissions: submissionRepo,
		tasks:       taskRepo,
		nats:        natsConn,
		redis:       redisClient,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/codeclash-dev/codeclash-api/internal/service/submission"),
	}
}

func (s *submissionService) Create(ctx context.Context, userID uint, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	task, err := s.tasks.GetByID(ctx, payload.TaskID, nil)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrTaskNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if _, err := s.submissions.GetByTaskAndUser(ctx, payload.TaskID, userID); err == nil {
		return dto.SubmissionResponse{}, ErrDuplicateSubmission
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.SubmissionResponse{}, err
	}

	submission := models.Submission{
		TaskID:      payload.TaskID,
		UserID:      userID,
		CodeURL:     strings.TrimSpace(payload.CodeURL),
		DeployURL:   strings.TrimSpace(payload.DeployURL),
		Language:    strings.ToLower(strings.TrimSpace(payload.Language)),
		Status:      models.SubmissionStatusPending,
		SubmittedAt: time.Now().UTC(),
	}

	if err := s.submissions.CreateWithTaskCounter(ctx, &submission); err != nil {
		// The composite unique index closes the race between the
		// duplicate check above and this insert.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.SubmissionResponse{}, ErrDuplicateSubmission
		}
		return dto.SubmissionResponse{}, err
	}

	submission.Task = task
	s.publish(SubjectSubmissionCreated, submission)
	s.invalidateDashboard(ctx, userID)

	s.logger.Info().Uint("submission_id", submission.ID).Uint("task_id", submission.TaskID).Uint("user_id", userID).Msg("submission created")
	return dto.NewSubmissionResponse(submission, true), nil
}

func (s *submissionService) Get(ctx context.Context, id uint, viewer Viewer) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if !s.canView(viewer, submission) {
		return dto.SubmissionResponse{}, ErrSubmissionForbidden
	}

	return dto.NewSubmissionResponse(submission, true), nil
}

func (s *submissionService) ListAll(ctx context.Context, page, limit int) (dto.SubmissionListResponse, error) {
	page, limit = clampWindow(page, limit)

	submissions, total, err := s.submissions.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return dto.SubmissionListResponse{}, err
	}

	return dto.SubmissionListResponse{
		Items:      dto.NewSubmissionResponseSlice(submissions, true),
		Pagination: dto.NewPagination(total, page, limit, len(submissions)),
	}, nil
}

func (s *submissionService) ListMine(ctx context.Context, userID uint) ([]dto.SubmissionResponse, error) {
	submissions, err := s.submissions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionResponseSlice(submissions, true), nil
}

func (s *submissionService) ListForTask(ctx context.Context, taskID uint, viewer Viewer, page, limit int) (dto.SubmissionListResponse, error) {
	if _, err := s.tasks.GetByID(ctx, taskID, []string{"id"}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionListResponse{}, ErrTaskNotFound
		}
		return dto.SubmissionListResponse{}, err
	}

	page, limit = clampWindow(page, limit)

	// Non-admin viewers only see their own rows for the task.
	var owner *uint
	if !viewer.IsAdmin() {
		owner = &viewer.ID
	}

	submissions, total, err := s.submissions.ListByTask(ctx, taskID, owner, (page-1)*limit, limit)
	if err != nil {
		return dto.SubmissionListResponse{}, err
	}

	return dto.SubmissionListResponse{
		Items:      dto.NewSubmissionResponseSlice(submissions, true),
		Pagination: dto.NewPagination(total, page, limit, len(submissions)),
	}, nil
}

func (s *submissionService) Review(ctx context.Context, id uint, reviewer Viewer, payload dto.SubmissionReviewRequest) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.review")
	defer span.End()
	span.SetAttributes(
		attribute.Int("submission.id", int(id)),
		attribute.Int("reviewer.id", int(reviewer.ID)),
	)

	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "not found")
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	if !reviewer.IsAdmin() {
		span.SetStatus(codes.Error, "forbidden")
		if reviewer.ID != submission.UserID {
			return dto.SubmissionResponse{}, ErrSubmissionForbidden
		}
		return dto.SubmissionResponse{}, ErrReviewForbidden
	}

	if payload.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*payload.Status))
		if !models.ValidSubmissionStatus(status) {
			return dto.SubmissionResponse{}, ErrInvalidStatus
		}
		if !models.ValidStatusTransition(submission.Status, status) {
			return dto.SubmissionResponse{}, ErrInvalidStatusTransition
		}
		submission.Status = status
		span.SetAttributes(attribute.String("submission.status", status))
	}
	if payload.Score != nil {
		if *payload.Score < 0 || *payload.Score > 100 {
			return dto.SubmissionResponse{}, ErrScoreOutOfRange
		}
		score := *payload.Score
		submission.Score = &score
	}
	if payload.Feedback != nil {
		submission.Feedback = s.sanitizer.Sanitize(*payload.Feedback)
	}

	if err := s.submissions.Update(ctx, &submission); err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	s.publish(SubjectSubmissionReviewed, submission)
	s.invalidateDashboard(ctx, submission.UserID)
	span.SetStatus(codes.Ok, "reviewed")

	s.logger.Info().Uint("submission_id", submission.ID).Str("status", submission.Status).Uint("reviewer_id", reviewer.ID).Msg("submission reviewed")
	return dto.NewSubmissionResponse(submission, true), nil
}

func (s *submissionService) Delete(ctx context.Context, id uint, viewer Viewer) error {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}

	if !s.canView(viewer, submission) {
		return ErrSubmissionForbidden
	}

	if err := s.submissions.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}

	s.invalidateDashboard(ctx, submission.UserID)
	return nil
}

func (s *submissionService) canView(viewer Viewer, submission models.Submission) bool {
	if viewer.ID != 0 && viewer.ID == submission.UserID {
		return true
	}
	return viewer.IsAdmin()
}

func (s *submissionService) publish(subject string, submission models.Submission) {
	if s.nats == nil {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"submission_id": submission.ID,
		"task_id":       submission.TaskID,
		"user_id":       submission.UserID,
		"status":        submission.Status,
		"submitted_at":  submission.SubmittedAt,
	})
	if err != nil {
		return
	}

	if err := s.nats.Publish(subject, payload); err != nil {
		s.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish submission event")
	}
}

func (s *submissionService) invalidateDashboard(ctx context.Context, userID uint) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, dashboardCacheKey(userID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("user_id", userID).Msg("failed to invalidate dashboard cache")
	}
}

func clampWindow(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = submissionListDefaultLimit
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
