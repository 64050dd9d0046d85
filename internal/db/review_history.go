package db

import (
	"database/sql"
	"fmt"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/KurtChenkoyu/lexicraft/internal/srs"
)

// Review is one appended history row. Rows are immutable once written and
// keep the algorithm that actually produced them, even after a migration.
type Review struct {
	ID                string        `json:"id"`
	LearnerID         string        `json:"learner_id"`
	SenseID           string        `json:"sense_id"`
	Rating            srs.Rating    `json:"rating"`
	WasCorrect        bool          `json:"was_correct"`
	ReviewedAt        time.Time     `json:"reviewed_at"`
	ResponseTimeMs    int           `json:"response_time_ms"`
	IntervalBefore    int           `json:"interval_before"`
	IntervalAfter     int           `json:"interval_after"`
	AlgorithmUsed     srs.Algorithm `json:"algorithm_used"`
	RetentionEstimate float64       `json:"retention_estimate"`
}

func insertReview(tx *sql.Tx, r Review) error {
	if r.ID == "" {
		r.ID = nanoid.Must()
	}
	query := `
		INSERT INTO reviews (id, learner_id, sense_id, rating, was_correct,
			reviewed_at, response_time_ms, interval_before, interval_after,
			algorithm_used, retention_estimate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.Exec(query,
		r.ID,
		r.LearnerID,
		r.SenseID,
		r.Rating,
		r.WasCorrect,
		r.ReviewedAt,
		r.ResponseTimeMs,
		r.IntervalBefore,
		r.IntervalAfter,
		r.AlgorithmUsed,
		r.RetentionEstimate,
	)
	if err != nil {
		return fmt.Errorf("error inserting review: %w", err)
	}
	return nil
}

// CountReviews returns the number of history rows for a (learner, sense)
// pair. Equals total_reviews on the matching card state.
func (s *Storage) CountReviews(learnerID, senseID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM reviews WHERE learner_id = ? AND sense_id = ?`
	if err := s.db.QueryRow(query, learnerID, senseID).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting reviews: %w", err)
	}
	return count, nil
}

// CountLearnerReviews returns the learner's review count across all senses,
// the basis of migration eligibility.
func (s *Storage) CountLearnerReviews(learnerID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM reviews WHERE learner_id = ?`
	if err := s.db.QueryRow(query, learnerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting learner reviews: %w", err)
	}
	return count, nil
}

// GetReviews returns a pair's history, oldest first.
func (s *Storage) GetReviews(learnerID, senseID string) ([]Review, error) {
	query := `
		SELECT id, learner_id, sense_id, rating, was_correct, reviewed_at,
		       response_time_ms, interval_before, interval_after,
		       algorithm_used, retention_estimate
		FROM reviews
		WHERE learner_id = ? AND sense_id = ?
		ORDER BY reviewed_at ASC`

	rows, err := s.db.Query(query, learnerID, senseID)
	if err != nil {
		return nil, fmt.Errorf("error getting reviews: %w", err)
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(
			&r.ID,
			&r.LearnerID,
			&r.SenseID,
			&r.Rating,
			&r.WasCorrect,
			&r.ReviewedAt,
			&r.ResponseTimeMs,
			&r.IntervalBefore,
			&r.IntervalAfter,
			&r.AlgorithmUsed,
			&r.RetentionEstimate,
		); err != nil {
			return nil, fmt.Errorf("error scanning review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating review rows: %w", err)
	}
	return reviews, nil
}
