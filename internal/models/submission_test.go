package models_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeclash-dev/codeclash-api/internal/models"
)

func TestValidStatusTransition(t *testing.T) {
	cases := []struct {
		from    string
		to      string
		allowed bool
	}{
		{models.SubmissionStatusPending, models.SubmissionStatusEvaluating, true},
		{models.SubmissionStatusPending, models.SubmissionStatusPassed, true},
		{models.SubmissionStatusPending, models.SubmissionStatusFailed, true},
		{models.SubmissionStatusEvaluating, models.SubmissionStatusPassed, true},
		{models.SubmissionStatusEvaluating, models.SubmissionStatusFailed, true},
		{models.SubmissionStatusEvaluating, models.SubmissionStatusPending, false},
		{models.SubmissionStatusPassed, models.SubmissionStatusFailed, false},
		{models.SubmissionStatusFailed, models.SubmissionStatusPending, false},
		{models.SubmissionStatusPassed, models.SubmissionStatusPassed, true},
	}

	for _, tc := range cases {
		require.Equal(t, tc.allowed, models.ValidStatusTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestIsTerminal(t *testing.T) {
	require.True(t, models.Submission{Status: models.SubmissionStatusPassed}.IsTerminal())
	require.True(t, models.Submission{Status: models.SubmissionStatusFailed}.IsTerminal())
	require.False(t, models.Submission{Status: models.SubmissionStatusPending}.IsTerminal())
	require.False(t, models.Submission{Status: models.SubmissionStatusEvaluating}.IsTerminal())
}

func TestIsAdminRole(t *testing.T) {
	require.True(t, models.IsAdminRole("admin"))
	require.True(t, models.IsAdminRole(" Admin "))
	require.False(t, models.IsAdminRole("user"))
	require.False(t, models.IsAdminRole(""))
}
