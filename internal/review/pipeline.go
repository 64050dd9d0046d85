// Package review orchestrates one review event end to end: rating mapping,
// state load, algorithm dispatch, atomic persistence, learner-facing result.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KurtChenkoyu/lexicraft/internal/assign"
	"github.com/KurtChenkoyu/lexicraft/internal/db"
	"github.com/KurtChenkoyu/lexicraft/internal/srs"
)

// ErrInvalidEvent is returned for events missing required identifiers.
// Rejected before any state is touched.
var ErrInvalidEvent = errors.New("invalid review event")

// Event is the graded answer the MCQ subsystem delivers.
type Event struct {
	LearnerID      string
	SenseID        string
	IsCorrect      bool
	ResponseTimeMs int
}

// Result is the full learner-facing contract. Algorithm payload internals
// (ease, stability, difficulty) never cross this boundary.
type Result struct {
	WasCorrect         bool          `json:"is_correct"`
	Rating             srs.Rating    `json:"rating"`
	NextDueDate        time.Time     `json:"next_due_date"`
	NextIntervalDays   int           `json:"next_interval_days"`
	Mastery            srs.Mastery   `json:"mastery_level"`
	MasteryChanged     bool          `json:"mastery_changed"`
	BecameLeech        bool          `json:"became_leech"`
	IsLeech            bool          `json:"is_leech"`
	AlgorithmUsed      srs.Algorithm `json:"algorithm_used"`
	RetentionEstimate  float64       `json:"retention_probability_estimate"`
	ConsecutiveCorrect int           `json:"consecutive_correct"`
	TotalReviews       int           `json:"total_reviews"`
}

// Config bundles the pipeline tunables.
type Config struct {
	Params     srs.Params
	Thresholds srs.RatingThresholds
	// LockTimeout bounds the wait for the per-card lock; past it the event
	// fails with the retryable ErrBusy instead of blocking.
	LockTimeout time.Duration
	// SeedMinReviews is the organic-history floor for the per-sense FSRS
	// cold-start aggregates.
	SeedMinReviews int
}

func DefaultConfig() Config {
	return Config{
		Params:         srs.DefaultParams(),
		Thresholds:     srs.DefaultRatingThresholds(),
		LockTimeout:    2 * time.Second,
		SeedMinReviews: 5,
	}
}

// Pipeline is safe for concurrent use. Events for distinct (learner, sense)
// pairs proceed in parallel; events for the same pair are serialized by the
// keyed lock, with the store's version check backing it up.
type Pipeline struct {
	store    *db.Storage
	assigner *assign.Service
	cfg      Config
	locks    *keyedMutex
	log      *slog.Logger

	sm2  *srs.SM2
	fsrs *srs.FSRS
}

func New(store *db.Storage, assigner *assign.Service, cfg Config, log *slog.Logger) *Pipeline {
	seed := &senseSeedProvider{store: store, minReviews: cfg.SeedMinReviews}
	return &Pipeline{
		store:    store,
		assigner: assigner,
		cfg:      cfg,
		locks:    newKeyedMutex(),
		log:      log,
		sm2:      srs.NewSM2(cfg.Params),
		fsrs:     srs.NewFSRS(cfg.Params, seed).WithLogger(log),
	}
}

// Submit walks one event through RECEIVED -> RATING_MAPPED -> STATE_LOADED ->
// ALGORITHM_APPLIED -> PERSISTED -> RETURNED. Any failure before PERSISTED
// leaves no writes; the history row and the card state commit together.
func (p *Pipeline) Submit(ctx context.Context, ev Event) (*Result, error) {
	// RECEIVED
	if ev.LearnerID == "" || ev.SenseID == "" {
		return nil, fmt.Errorf("%w: learner and sense ids are required", ErrInvalidEvent)
	}
	if ev.ResponseTimeMs < 0 {
		return nil, fmt.Errorf("%w: negative response time", ErrInvalidEvent)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// RATING_MAPPED
	rating := srs.MapOutcome(ev.IsCorrect, ev.ResponseTimeMs, p.cfg.Thresholds)

	unlock, err := p.locks.Lock(ev.LearnerID+"/"+ev.SenseID, p.cfg.LockTimeout)
	if err != nil {
		p.log.Warn("review lock contention", "learner_id", ev.LearnerID, "sense_id", ev.SenseID)
		return nil, err
	}
	defer unlock()

	// STATE_LOADED
	now := time.Now()
	prior, isNew, err := p.loadState(ev.LearnerID, ev.SenseID, now)
	if err != nil {
		return nil, err
	}

	// ALGORITHM_APPLIED
	next, outcome, err := p.apply(prior.State, rating, now)
	if err != nil {
		return nil, err
	}

	// PERSISTED
	record := db.CardState{
		State:   next,
		Mastery: outcome.Mastery,
		Version: prior.Version,
	}
	history := db.Review{
		LearnerID:         ev.LearnerID,
		SenseID:           ev.SenseID,
		Rating:            rating,
		WasCorrect:        outcome.WasCorrect,
		ReviewedAt:        now,
		ResponseTimeMs:    ev.ResponseTimeMs,
		IntervalBefore:    prior.IntervalDays,
		IntervalAfter:     outcome.NextIntervalDays,
		AlgorithmUsed:     next.Algorithm,
		RetentionEstimate: outcome.RetentionEstimate,
	}
	if err := p.store.SaveReview(record, isNew, history); err != nil {
		return nil, err
	}

	// RETURNED
	return &Result{
		WasCorrect:         outcome.WasCorrect,
		Rating:             rating,
		NextDueDate:        next.NextDue,
		NextIntervalDays:   outcome.NextIntervalDays,
		Mastery:            outcome.Mastery,
		MasteryChanged:     outcome.MasteryChanged,
		BecameLeech:        outcome.BecameLeech,
		IsLeech:            next.IsLeech,
		AlgorithmUsed:      next.Algorithm,
		RetentionEstimate:  outcome.RetentionEstimate,
		ConsecutiveCorrect: next.ConsecutiveCorrect,
		TotalReviews:       next.TotalReviews,
	}, nil
}

// loadState fetches the pair's card state, creating a fresh one on the
// legitimate first-review path. A pair with history rows but no state is a
// data-integrity error, not a reason to recreate: recreating would erase
// mastery and leech history.
func (p *Pipeline) loadState(learnerID, senseID string, now time.Time) (*db.CardState, bool, error) {
	cs, err := p.store.GetCardState(learnerID, senseID)
	if err == nil {
		return cs, false, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, false, err
	}

	count, err := p.store.CountReviews(learnerID, senseID)
	if err != nil {
		return nil, false, err
	}
	if count > 0 {
		return nil, false, fmt.Errorf("%w: %s/%s has %d history rows",
			db.ErrStateMissing, learnerID, senseID, count)
	}

	assignment, err := p.assigner.Assign(learnerID)
	if err != nil {
		return nil, false, err
	}

	fresh := db.CardState{
		State:   srs.NewState(learnerID, senseID, assignment.Algorithm, now),
		Mastery: srs.MasteryNew,
	}
	return &fresh, true, nil
}

// apply dispatches to the assigned scheduler. The switch is exhaustive over
// the closed two-algorithm set.
func (p *Pipeline) apply(prior srs.State, rating srs.Rating, now time.Time) (srs.State, srs.Outcome, error) {
	switch prior.Algorithm {
	case srs.AlgorithmSM2:
		return p.sm2.Next(prior, rating, now)
	case srs.AlgorithmFSRS:
		return p.fsrs.Next(prior, rating, now)
	default:
		return srs.State{}, srs.Outcome{}, fmt.Errorf("card state has unknown algorithm %q", prior.Algorithm)
	}
}

// senseSeedProvider adapts the store's cross-learner aggregates to the FSRS
// cold-start seam.
type senseSeedProvider struct {
	store      *db.Storage
	minReviews int
}

func (s *senseSeedProvider) SenseSeed(senseID string) (float64, float64, bool) {
	return s.store.GetSenseSeed(senseID, s.minReviews)
}
