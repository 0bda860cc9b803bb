package service_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/codeclash-dev/codeclash-api/internal/dto"
	"github.com/codeclash-dev/codeclash-api/internal/models"
	"github.com/codeclash-dev/codeclash-api/internal/service"
)

func dashboardFixtures() []models.Submission {
	score := 90.0
	return []models.Submission{
		{ID: 1, TaskID: 1, UserID: 5, Status: models.SubmissionStatusPassed, Score: &score, Task: models.Task{ID: 1, Title: "Login Page", Points: 10}},
		{ID: 2, TaskID: 2, UserID: 5, Status: models.SubmissionStatusPassed, Task: models.Task{ID: 2, Title: "Pricing Table", Points: 20}},
		{ID: 3, TaskID: 3, UserID: 5, Status: models.SubmissionStatusFailed, Task: models.Task{ID: 3, Title: "Dashboard", Points: 50}},
		{ID: 4, TaskID: 4, UserID: 5, Status: models.SubmissionStatusPending, Task: models.Task{ID: 4, Title: "Footer", Points: 5}},
	}
}

func TestDashboardAggregation(t *testing.T) {
	repo := newSubmissionRepoStub()
	repo.listByUserResult = dashboardFixtures()
	svc := service.NewDashboardService(repo, nil, time.Minute, zerolog.New(io.Discard))

	dashboard, err := svc.GetDashboard(context.Background(), 5)
	require.NoError(t, err)

	require.Equal(t, 4, dashboard.TotalSubmissions)
	require.Equal(t, 2, dashboard.ByStatus[models.SubmissionStatusPassed])
	require.Equal(t, 1, dashboard.ByStatus[models.SubmissionStatusFailed])
	require.Equal(t, 1, dashboard.ByStatus[models.SubmissionStatusPending])
	require.Equal(t, 30, dashboard.PointsEarned)
	require.NotNil(t, dashboard.AverageScore)
	require.Equal(t, 90.0, *dashboard.AverageScore)
	require.Len(t, dashboard.Recent, 4)
	require.False(t, dashboard.CacheHit)
}

func TestDashboardCaching(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newSubmissionRepoStub()
	repo.listByUserResult = dashboardFixtures()
	svc := service.NewDashboardService(repo, client, time.Minute, zerolog.New(io.Discard))

	first, err := svc.GetDashboard(context.Background(), 5)
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	// Second call must come from Redis even if the store now differs.
	repo.listByUserResult = nil
	second, err := svc.GetDashboard(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Equal(t, first.TotalSubmissions, second.TotalSubmissions)

	server.FastForward(2 * time.Minute)
	third, err := svc.GetDashboard(context.Background(), 5)
	require.NoError(t, err)
	require.False(t, third.CacheHit)
	require.Zero(t, third.TotalSubmissions)
}

func TestDashboardCacheInvalidatedBySubmission(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newSubmissionRepoStub()
	repo.listByUserResult = dashboardFixtures()
	dashboards := service.NewDashboardService(repo, client, time.Minute, zerolog.New(io.Discard))

	warm, err := dashboards.GetDashboard(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, 4, warm.TotalSubmissions)

	submissions := service.NewSubmissionService(repo, taskRepoWithTask(models.Task{ID: 9}), nil, client,
		validator.New(validator.WithRequiredStructEnabled()), zerolog.New(io.Discard))

	_, err = submissions.Create(context.Background(), 5, dto.SubmissionCreateRequest{
		TaskID:  9,
		CodeURL: "https://github.com/user/solution",
	})
	require.NoError(t, err)

	repo.listByUserResult = append(dashboardFixtures(), models.Submission{ID: 5, TaskID: 9, UserID: 5, Status: models.SubmissionStatusPending})
	fresh, err := dashboards.GetDashboard(context.Background(), 5)
	require.NoError(t, err)
	require.False(t, fresh.CacheHit)
	require.Equal(t, 5, fresh.TotalSubmissions)
}
