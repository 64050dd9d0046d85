package db

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an optimistic-concurrency write lost the
	// race: the card state changed between read and write. Retryable.
	ErrConflict = errors.New("version conflict")
	// ErrStateMissing is returned when a review arrives for a pair that has
	// history rows but no card state. Recreating the state would erase
	// mastery and leech history, so this surfaces as a data-integrity error.
	ErrStateMissing = errors.New("card state missing for reviewed sense")
)

// Storage wraps the SQLite connection used by the scheduling core.
type Storage struct {
	db *sql.DB
}

func ConnectDB(path string) (*Storage, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids table-lock
	// errors from concurrent transactions in-process.
	conn.SetMaxOpenConns(1)

	return &Storage{db: conn}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}
