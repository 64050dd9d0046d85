package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/KurtChenkoyu/lexicraft/internal/srs"
)

// CardState is the persisted scheduling record for one (learner, sense)
// pair. Mastery is denormalized from the counters for querying; the version
// column backs optimistic concurrency on the read-modify-write cycle.
type CardState struct {
	srs.State
	Mastery   srs.Mastery `json:"mastery"`
	Version   int64       `json:"-"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

const cardStateColumns = `
	learner_id, sense_id, algorithm, interval_days, next_due,
	consecutive_correct, total_reviews, is_leech, window_bits, mastery,
	last_reviewed_at, ease, stability, difficulty, last_retrievability,
	migrated, version, created_at, updated_at`

func scanCardState(row interface{ Scan(...any) error }) (*CardState, error) {
	var cs CardState
	var windowBits int64
	err := row.Scan(
		&cs.LearnerID,
		&cs.SenseID,
		&cs.Algorithm,
		&cs.IntervalDays,
		&cs.NextDue,
		&cs.ConsecutiveCorrect,
		&cs.TotalReviews,
		&cs.IsLeech,
		&windowBits,
		&cs.Mastery,
		&cs.LastReviewedAt,
		&cs.Ease,
		&cs.Stability,
		&cs.Difficulty,
		&cs.LastRetrievability,
		&cs.Migrated,
		&cs.Version,
		&cs.CreatedAt,
		&cs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cs.WindowBits = uint64(windowBits)
	return &cs, nil
}

// GetCardState fetches the state for a (learner, sense) pair.
func (s *Storage) GetCardState(learnerID, senseID string) (*CardState, error) {
	query := `SELECT ` + cardStateColumns + ` FROM card_states WHERE learner_id = ? AND sense_id = ?`

	cs, err := scanCardState(s.db.QueryRow(query, learnerID, senseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting card state: %w", err)
	}
	return cs, nil
}

// GetDueStates returns the learner's card states due at or before the given
// time, soonest first.
func (s *Storage) GetDueStates(learnerID string, by time.Time, limit int) ([]CardState, error) {
	query := `SELECT ` + cardStateColumns + `
		FROM card_states
		WHERE learner_id = ? AND next_due <= ?
		ORDER BY next_due ASC
		LIMIT ?`

	rows, err := s.db.Query(query, learnerID, by, limit)
	if err != nil {
		return nil, fmt.Errorf("error getting due states: %w", err)
	}
	defer rows.Close()

	var states []CardState
	for rows.Next() {
		cs, err := scanCardState(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning due state: %w", err)
		}
		states = append(states, *cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due state rows: %w", err)
	}
	return states, nil
}

// SaveReview persists one review event atomically: the history row and the
// card state are written in the same transaction, or not at all. For
// existing states the update is guarded by the version read at load time;
// losing the race returns ErrConflict.
func (s *Storage) SaveReview(state CardState, isNew bool, review Review) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}

	if err := insertReview(tx, review); err != nil {
		tx.Rollback()
		return err
	}

	now := time.Now()
	if isNew {
		query := `
			INSERT INTO card_states (` + cardStateColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`
		_, err = tx.Exec(query,
			state.LearnerID,
			state.SenseID,
			state.Algorithm,
			state.IntervalDays,
			state.NextDue,
			state.ConsecutiveCorrect,
			state.TotalReviews,
			state.IsLeech,
			int64(state.WindowBits),
			state.Mastery,
			state.LastReviewedAt,
			state.Ease,
			state.Stability,
			state.Difficulty,
			state.LastRetrievability,
			state.Migrated,
			now,
			now,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error inserting card state: %w", err)
		}
	} else {
		query := `
			UPDATE card_states
			SET algorithm = ?, interval_days = ?, next_due = ?,
			    consecutive_correct = ?, total_reviews = ?, is_leech = ?,
			    window_bits = ?, mastery = ?, last_reviewed_at = ?, ease = ?,
			    stability = ?, difficulty = ?, last_retrievability = ?,
			    version = version + 1, updated_at = ?
			WHERE learner_id = ? AND sense_id = ? AND version = ?`
		res, err := tx.Exec(query,
			state.Algorithm,
			state.IntervalDays,
			state.NextDue,
			state.ConsecutiveCorrect,
			state.TotalReviews,
			state.IsLeech,
			int64(state.WindowBits),
			state.Mastery,
			state.LastReviewedAt,
			state.Ease,
			state.Stability,
			state.Difficulty,
			state.LastRetrievability,
			now,
			state.LearnerID,
			state.SenseID,
			state.Version,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error updating card state: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error checking update result: %w", err)
		}
		if affected == 0 {
			tx.Rollback()
			return ErrConflict
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing review transaction: %w", err)
	}
	return nil
}

// DeleteCardState removes one scheduling record. Support tooling for
// integrity investigations only; the pipeline never deletes states and
// review history is never touched.
func (s *Storage) DeleteCardState(learnerID, senseID string) error {
	_, err := s.db.Exec(`DELETE FROM card_states WHERE learner_id = ? AND sense_id = ?`, learnerID, senseID)
	if err != nil {
		return fmt.Errorf("error deleting card state: %w", err)
	}
	return nil
}

// GetSenseSeed aggregates FSRS parameters for a sense across all learners
// with enough organic (non-migrated) history, for cold-start seeding.
func (s *Storage) GetSenseSeed(senseID string, minReviews int) (stability, difficulty float64, ok bool) {
	query := `
		SELECT AVG(stability), AVG(difficulty), COUNT(*)
		FROM card_states
		WHERE sense_id = ? AND algorithm = ? AND migrated = 0 AND total_reviews >= ?`

	var avgStability, avgDifficulty sql.NullFloat64
	var count int
	err := s.db.QueryRow(query, senseID, srs.AlgorithmFSRS, minReviews).
		Scan(&avgStability, &avgDifficulty, &count)
	if err != nil || count == 0 || !avgStability.Valid || !avgDifficulty.Valid {
		return 0, 0, false
	}
	return avgStability.Float64, avgDifficulty.Float64, true
}
