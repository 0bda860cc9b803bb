package dto

import "time"

// DashboardResponse summarises a user's standing across all tasks.
type DashboardResponse struct {
	TotalSubmissions int                  `json:"total_submissions"`
	ByStatus         map[string]int       `json:"by_status"`
	PointsEarned     int                  `json:"points_earned"`
	AverageScore     *float64             `json:"average_score,omitempty"`
	Recent           []SubmissionResponse `json:"recent"`
	GeneratedAt      time.Time            `json:"generated_at"`
	CacheHit         bool                 `json:"cache_hit"`
}
