package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/KurtChenkoyu/lexicraft/internal/srs"
)

// Assignment records which algorithm governs a learner's scheduling.
type Assignment struct {
	LearnerID    string         `json:"learner_id"`
	Algorithm    srs.Algorithm  `json:"algorithm"`
	AssignedAt   time.Time      `json:"assigned_at"`
	MigratedFrom *srs.Algorithm `json:"migrated_from,omitempty"`
	MigratedAt   *time.Time     `json:"migrated_at,omitempty"`
}

// GetAssignment fetches a learner's assignment.
func (s *Storage) GetAssignment(learnerID string) (*Assignment, error) {
	query := `
		SELECT learner_id, algorithm, assigned_at, migrated_from, migrated_at
		FROM algorithm_assignments
		WHERE learner_id = ?`

	var a Assignment
	var migratedFrom sql.NullString
	err := s.db.QueryRow(query, learnerID).Scan(
		&a.LearnerID,
		&a.Algorithm,
		&a.AssignedAt,
		&migratedFrom,
		&a.MigratedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting assignment: %w", err)
	}
	if migratedFrom.Valid {
		alg := srs.Algorithm(migratedFrom.String)
		a.MigratedFrom = &alg
	}
	return &a, nil
}

// EnsureAssignment persists the drawn algorithm for a learner with no
// assignment yet, then reads back whichever row won. The insert-if-absent
// makes concurrent first use converge on a single persisted assignment.
func (s *Storage) EnsureAssignment(learnerID string, drawn srs.Algorithm) (*Assignment, error) {
	query := `
		INSERT INTO algorithm_assignments (learner_id, algorithm, assigned_at)
		VALUES (?, ?, ?)
		ON CONFLICT(learner_id) DO NOTHING`

	if _, err := s.db.Exec(query, learnerID, drawn, time.Now()); err != nil {
		return nil, fmt.Errorf("error ensuring assignment: %w", err)
	}
	return s.GetAssignment(learnerID)
}

// MigrateLearner rewrites all of a learner's card states to the target
// algorithm in one transaction, using the supplied payload estimator. Either
// every state and the assignment row are rewritten or none are. Review
// history is never touched: past rows keep the algorithm that produced them.
func (s *Storage) MigrateLearner(learnerID string, target srs.Algorithm, estimate func(CardState) CardState) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("error starting migration transaction: %w", err)
	}

	var currentAlg srs.Algorithm
	err = tx.QueryRow(`SELECT algorithm FROM algorithm_assignments WHERE learner_id = ?`, learnerID).
		Scan(&currentAlg)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("error getting assignment for migration: %w", err)
	}

	rows, err := tx.Query(`SELECT `+cardStateColumns+` FROM card_states WHERE learner_id = ?`, learnerID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error loading card states for migration: %w", err)
	}

	var states []CardState
	for rows.Next() {
		cs, err := scanCardState(rows)
		if err != nil {
			rows.Close()
			tx.Rollback()
			return fmt.Errorf("error scanning card state for migration: %w", err)
		}
		states = append(states, *cs)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		tx.Rollback()
		return fmt.Errorf("error iterating card states for migration: %w", err)
	}
	rows.Close()

	now := time.Now()
	for _, cs := range states {
		next := estimate(cs)
		_, err := tx.Exec(`
			UPDATE card_states
			SET algorithm = ?, ease = ?, stability = ?, difficulty = ?,
			    last_retrievability = ?, migrated = 1,
			    version = version + 1, updated_at = ?
			WHERE learner_id = ? AND sense_id = ?`,
			next.Algorithm,
			next.Ease,
			next.Stability,
			next.Difficulty,
			next.LastRetrievability,
			now,
			cs.LearnerID,
			cs.SenseID,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating card state %s/%s: %w", cs.LearnerID, cs.SenseID, err)
		}
	}

	_, err = tx.Exec(`
		UPDATE algorithm_assignments
		SET algorithm = ?, migrated_from = ?, migrated_at = ?
		WHERE learner_id = ?`,
		target, currentAlg, now, learnerID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error updating assignment during migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing migration: %w", err)
	}
	return nil
}
