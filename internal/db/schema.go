package db

// UpdateSchema creates the scheduling tables.
func (s *Storage) UpdateSchema() error {
	schema := `
	-- Card states: one scheduling record per (learner, sense). The payload
	-- columns form a discriminated group selected by the algorithm column.
	CREATE TABLE IF NOT EXISTS card_states (
		learner_id TEXT NOT NULL,
		sense_id TEXT NOT NULL,
		algorithm TEXT NOT NULL,
		interval_days INTEGER NOT NULL DEFAULT 0,
		next_due TIMESTAMP NOT NULL,
		consecutive_correct INTEGER NOT NULL DEFAULT 0,
		total_reviews INTEGER NOT NULL DEFAULT 0,
		is_leech BOOLEAN NOT NULL DEFAULT 0,
		window_bits INTEGER NOT NULL DEFAULT 0,
		mastery TEXT NOT NULL DEFAULT 'new',
		last_reviewed_at TIMESTAMP,
		-- SM-2 payload
		ease REAL NOT NULL DEFAULT 2.5,
		-- FSRS payload
		stability REAL NOT NULL DEFAULT 0,
		difficulty REAL NOT NULL DEFAULT 0,
		last_retrievability REAL NOT NULL DEFAULT 0,
		migrated BOOLEAN NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (learner_id, sense_id)
	);

	-- Review history: append-only, one row per review event. Immutable once
	-- written; the source of truth for analytics and state re-derivation.
	CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		learner_id TEXT NOT NULL,
		sense_id TEXT NOT NULL,
		rating INTEGER NOT NULL,
		was_correct BOOLEAN NOT NULL,
		reviewed_at TIMESTAMP NOT NULL,
		response_time_ms INTEGER NOT NULL,
		interval_before INTEGER NOT NULL,
		interval_after INTEGER NOT NULL,
		algorithm_used TEXT NOT NULL,
		retention_estimate REAL NOT NULL
	);

	-- Algorithm assignments: one per learner, created lazily on first
	-- scheduling event, never silently reassigned.
	CREATE TABLE IF NOT EXISTS algorithm_assignments (
		learner_id TEXT PRIMARY KEY,
		algorithm TEXT NOT NULL,
		assigned_at TIMESTAMP NOT NULL,
		migrated_from TEXT,
		migrated_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_card_states_next_due ON card_states(learner_id, next_due);
	CREATE INDEX IF NOT EXISTS idx_card_states_algorithm ON card_states(algorithm);
	CREATE INDEX IF NOT EXISTS idx_reviews_pair ON reviews(learner_id, sense_id, reviewed_at);
	CREATE INDEX IF NOT EXISTS idx_reviews_algorithm ON reviews(algorithm_used);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	return nil
}
