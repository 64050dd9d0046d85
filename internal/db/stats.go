package db

import (
	"fmt"
	"time"

	"github.com/KurtChenkoyu/lexicraft/internal/srs"
)

// CohortStats aggregates review history and card state for one algorithm
// cohort. Read-only over rows the pipeline produced; no scheduling logic.
type CohortStats struct {
	Algorithm srs.Algorithm `json:"algorithm"`

	Learners     int `json:"learners"`
	CardStates   int `json:"card_states"`
	TotalReviews int `json:"total_reviews"`

	SuccessRate float64 `json:"success_rate"`
	LeechRate   float64 `json:"leech_rate"`

	// AvgReviewsToMastery averages total_reviews over mastered states.
	AvgReviewsToMastery float64 `json:"avg_reviews_to_mastery"`

	// RetentionCalibration is the mean absolute gap between the predicted
	// retention recorded at review time and the observed success rate.
	RetentionCalibration float64 `json:"retention_calibration"`

	// MigratedStates counts states whose payload was estimated during a
	// migration; analytics may exclude them from pure-cohort comparisons.
	MigratedStates int `json:"migrated_states"`
}

// GetCohortStats computes comparison metrics for one algorithm cohort.
func (s *Storage) GetCohortStats(alg srs.Algorithm) (CohortStats, error) {
	stats := CohortStats{Algorithm: alg}

	stateQuery := `
		SELECT COUNT(*),
		       COUNT(DISTINCT learner_id),
		       IFNULL(SUM(CASE WHEN is_leech THEN 1 ELSE 0 END), 0),
		       IFNULL(SUM(CASE WHEN migrated THEN 1 ELSE 0 END), 0),
		       IFNULL(AVG(CASE WHEN mastery = ? THEN total_reviews END), 0)
		FROM card_states
		WHERE algorithm = ?`

	var leeches int
	err := s.db.QueryRow(stateQuery, srs.MasteryMastered, alg).Scan(
		&stats.CardStates,
		&stats.Learners,
		&leeches,
		&stats.MigratedStates,
		&stats.AvgReviewsToMastery,
	)
	if err != nil {
		return stats, fmt.Errorf("error aggregating card states: %w", err)
	}
	if stats.CardStates > 0 {
		stats.LeechRate = float64(leeches) / float64(stats.CardStates)
	}

	reviewQuery := `
		SELECT COUNT(*),
		       IFNULL(AVG(CASE WHEN was_correct THEN 1.0 ELSE 0.0 END), 0),
		       IFNULL(AVG(ABS(retention_estimate - CASE WHEN was_correct THEN 1.0 ELSE 0.0 END)), 0)
		FROM reviews
		WHERE algorithm_used = ?`

	err = s.db.QueryRow(reviewQuery, alg).Scan(
		&stats.TotalReviews,
		&stats.SuccessRate,
		&stats.RetentionCalibration,
	)
	if err != nil {
		return stats, fmt.Errorf("error aggregating reviews: %w", err)
	}

	return stats, nil
}

// LearnerStats summarizes one learner's study activity.
type LearnerStats struct {
	ReviewsToday    int `json:"reviews_today"`
	TotalReviews    int `json:"total_reviews"`
	AvgTimePerMs    int `json:"avg_time_per_card_ms"`
	DueCards        int `json:"due_cards"`
	LeechCount      int `json:"leech_count"`
	MasteredSenses  int `json:"mastered_senses"`
	TrackedSenses   int `json:"tracked_senses"`
}

// GetLearnerStats retrieves study statistics for a learner.
func (s *Storage) GetLearnerStats(learnerID string, now time.Time) (LearnerStats, error) {
	stats := LearnerStats{}

	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	reviewQuery := `
		SELECT COUNT(*),
		       IFNULL(SUM(CASE WHEN reviewed_at >= ? THEN 1 ELSE 0 END), 0),
		       IFNULL(AVG(response_time_ms), 0)
		FROM reviews
		WHERE learner_id = ?`

	var avgTime float64
	err := s.db.QueryRow(reviewQuery, todayStart, learnerID).Scan(
		&stats.TotalReviews,
		&stats.ReviewsToday,
		&avgTime,
	)
	if err != nil {
		return stats, fmt.Errorf("error aggregating learner reviews: %w", err)
	}
	stats.AvgTimePerMs = int(avgTime)

	stateQuery := `
		SELECT COUNT(*),
		       IFNULL(SUM(CASE WHEN next_due <= ? THEN 1 ELSE 0 END), 0),
		       IFNULL(SUM(CASE WHEN is_leech THEN 1 ELSE 0 END), 0),
		       IFNULL(SUM(CASE WHEN mastery = ? THEN 1 ELSE 0 END), 0)
		FROM card_states
		WHERE learner_id = ?`

	err = s.db.QueryRow(stateQuery, now, srs.MasteryMastered, learnerID).Scan(
		&stats.TrackedSenses,
		&stats.DueCards,
		&stats.LeechCount,
		&stats.MasteredSenses,
	)
	if err != nil {
		return stats, fmt.Errorf("error aggregating learner card states: %w", err)
	}

	return stats, nil
}
