package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/codeclash-dev/codeclash-api/internal/dto"
	"github.com/codeclash-dev/codeclash-api/internal/models"
	"github.com/codeclash-dev/codeclash-api/internal/repository"
)

const dashboardRecentLimit = 5

func dashboardCacheKey(userID uint) string {
	return fmt.Sprintf("dashboard:user:%d", userID)
}

// DashboardService aggregates a user's submission standing.
type DashboardService interface {
	GetDashboard(ctx context.Context, userID uint) (dto.DashboardResponse, error)
}

type dashboardService struct {
	submissions repository.SubmissionRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewDashboardService builds the dashboard aggregator. The cache handle
// may be nil; every request then recomputes from the store.
func NewDashboardService(submissions repository.SubmissionRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) DashboardService {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &dashboardService{
		submissions: submissions,
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "dashboard_service").Logger(),
		now:         time.Now,
	}
}

func (s *dashboardService) GetDashboard(ctx context.Context, userID uint) (dto.DashboardResponse, error) {
	cacheKey := dashboardCacheKey(userID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.DashboardResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Uint("user_id", userID).Msg("dashboard cache hit")
				response.CacheHit = true
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read dashboard cache")
		}
	}

	submissions, err := s.submissions.ListByUser(ctx, userID)
	if err != nil {
		return dto.DashboardResponse{}, err
	}

	response := s.buildResponse(submissions)

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store dashboard cache")
			}
		}
	}

	return response, nil
}

func (s *dashboardService) buildResponse(submissions []models.Submission) dto.DashboardResponse {
	byStatus := map[string]int{
		models.SubmissionStatusPending:    0,
		models.SubmissionStatusEvaluating: 0,
		models.SubmissionStatusPassed:     0,
		models.SubmissionStatusFailed:     0,
	}

	var points int
	var scoreTotal float64
	var scoredCount int

	for _, submission := range submissions {
		byStatus[submission.Status]++
		if submission.Status == models.SubmissionStatusPassed {
			points += submission.Task.Points
		}
		if submission.Score != nil {
			scoreTotal += *submission.Score
			scoredCount++
		}
	}

	var average *float64
	if scoredCount > 0 {
		value := scoreTotal / float64(scoredCount)
		average = &value
	}

	recent := submissions
	if len(recent) > dashboardRecentLimit {
		recent = recent[:dashboardRecentLimit]
	}

	return dto.DashboardResponse{
		TotalSubmissions: len(submissions),
		ByStatus:         byStatus,
		PointsEarned:     points,
		AverageScore:     average,
		Recent:           dto.NewSubmissionResponseSlice(recent, true),
		GeneratedAt:      s.now().UTC(),
	}
}
