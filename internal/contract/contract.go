package contract

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/KurtChenkoyu/lexicraft/internal/db"
	"github.com/KurtChenkoyu/lexicraft/internal/review"
	"github.com/KurtChenkoyu/lexicraft/internal/srs"
)

// JWTClaims is the verified identity the external auth layer issues. UID is
// the stable learner identifier.
type JWTClaims struct {
	jwt.RegisteredClaims
	UID string `json:"uid,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	// Retryable marks transient failures (lock contention, version
	// conflicts) the caller may safely resubmit.
	Retryable bool `json:"retryable,omitempty"`
}

// SubmitReviewRequest is the graded MCQ answer for one sense. IsCorrect is a
// pointer so that an explicit false survives required-validation.
type SubmitReviewRequest struct {
	SenseID        string `json:"sense_id" validate:"required"`
	IsCorrect      *bool  `json:"is_correct" validate:"required"`
	ResponseTimeMs int    `json:"response_time_ms" validate:"min=0"`
}

type MigrateRequest struct {
	Target string `json:"target" validate:"required,oneof=sm2 fsrs"`
}

// DueCardResponse exposes the schedule-facing slice of a card state. The
// algorithm payload stays internal.
type DueCardResponse struct {
	SenseID            string        `json:"sense_id"`
	NextDue            time.Time     `json:"next_due"`
	IntervalDays       int           `json:"interval_days"`
	Mastery            srs.Mastery   `json:"mastery_level"`
	IsLeech            bool          `json:"is_leech"`
	Algorithm          srs.Algorithm `json:"algorithm"`
	ConsecutiveCorrect int           `json:"consecutive_correct"`
	TotalReviews       int           `json:"total_reviews"`
}

func FormatDueCard(cs db.CardState) DueCardResponse {
	return DueCardResponse{
		SenseID:            cs.SenseID,
		NextDue:            cs.NextDue,
		IntervalDays:       cs.IntervalDays,
		Mastery:            cs.Mastery,
		IsLeech:            cs.IsLeech,
		Algorithm:          cs.Algorithm,
		ConsecutiveCorrect: cs.ConsecutiveCorrect,
		TotalReviews:       cs.TotalReviews,
	}
}

type SubmitReviewResponse struct {
	Result *review.Result  `json:"result"`
	Stats  db.LearnerStats `json:"stats"`
}

type CohortComparisonResponse struct {
	Cohorts []db.CohortStats `json:"cohorts"`
}
