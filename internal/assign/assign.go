// Package assign owns the algorithm cohort split: lazy random assignment of
// learners to one of the two schedulers, eligibility gating, and supervised
// migration between them.
package assign

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"github.com/KurtChenkoyu/lexicraft/internal/db"
	"github.com/KurtChenkoyu/lexicraft/internal/srs"
)

var (
	// ErrNotEligible is returned when migration is requested before the
	// learner's review count reaches the eligibility threshold.
	ErrNotEligible = errors.New("learner not eligible for migration")
	// ErrAlreadyAssigned is returned when migrating to the algorithm the
	// learner is already on.
	ErrAlreadyAssigned = errors.New("learner already on target algorithm")
)

// Config holds the experiment knobs.
type Config struct {
	// SM2Probability is the chance a new learner lands in the SM-2 cohort.
	SM2Probability float64 `yaml:"sm2_probability"`
	// MigrationThreshold is the minimum review count across all senses
	// before a learner may migrate.
	MigrationThreshold int `yaml:"migration_threshold"`
}

func DefaultConfig() Config {
	return Config{
		SM2Probability:     0.5,
		MigrationThreshold: 100,
	}
}

// Service is stateless between calls; the assignment itself lives in the
// store behind an atomic insert-if-absent.
type Service struct {
	store *db.Storage
	cfg   Config
	log   *slog.Logger

	mu   sync.Mutex
	rand *rand.Rand
}

func New(store *db.Storage, cfg Config, log *slog.Logger, src rand.Source) *Service {
	return &Service{
		store: store,
		cfg:   cfg,
		log:   log,
		rand:  rand.New(src),
	}
}

// Assign returns the learner's algorithm, drawing and persisting one on
// first use. Idempotent: concurrent first calls converge on the single row
// the insert-if-absent kept.
func (s *Service) Assign(learnerID string) (*db.Assignment, error) {
	if a, err := s.store.GetAssignment(learnerID); err == nil {
		return a, nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	drawn := s.draw()
	a, err := s.store.EnsureAssignment(learnerID, drawn)
	if err != nil {
		return nil, err
	}
	if a.Algorithm == drawn {
		s.log.Info("assigned learner to cohort", "learner_id", learnerID, "algorithm", a.Algorithm)
	}
	return a, nil
}

func (s *Service) draw() srs.Algorithm {
	s.mu.Lock()
	roll := s.rand.Float64()
	s.mu.Unlock()
	if roll < s.cfg.SM2Probability {
		return srs.AlgorithmSM2
	}
	return srs.AlgorithmFSRS
}

// MigrationEligible reports whether the learner's total review count across
// all senses meets the migration threshold.
func (s *Service) MigrationEligible(learnerID string) (bool, error) {
	count, err := s.store.CountLearnerReviews(learnerID)
	if err != nil {
		return false, err
	}
	return count >= s.cfg.MigrationThreshold, nil
}

// Migrate moves a learner to the target algorithm, rewriting every card
// state's payload via the estimation heuristics. One-time, explicit, logged;
// review history keeps the algorithm that produced each past row. The
// rewritten states are flagged migrated so analytics can exclude them.
func (s *Service) Migrate(learnerID string, target srs.Algorithm) error {
	if !target.Valid() {
		return fmt.Errorf("unknown target algorithm %q", target)
	}

	current, err := s.store.GetAssignment(learnerID)
	if err != nil {
		return err
	}
	if current.Algorithm == target {
		return ErrAlreadyAssigned
	}

	eligible, err := s.MigrationEligible(learnerID)
	if err != nil {
		return err
	}
	if !eligible {
		return fmt.Errorf("%w: fewer than %d total reviews", ErrNotEligible, s.cfg.MigrationThreshold)
	}

	if err := s.store.MigrateLearner(learnerID, target, func(cs db.CardState) db.CardState {
		return estimatePayload(cs, target)
	}); err != nil {
		return err
	}

	s.log.Info("migrated learner between cohorts",
		"learner_id", learnerID, "from", current.Algorithm, "to", target)
	return nil
}

// estimatePayload maps one algorithm's payload onto the other. These are
// best-effort heuristics, not fitted parameters; the migrated flag marks the
// result as estimated.
//
// SM2 -> FSRS: stability is seeded from the current interval, exact under a
// 0.9 retention target where the solved interval equals stability. Ease maps
// linearly onto difficulty, high ease = low difficulty.
//
// FSRS -> SM2: the inverse ease map; interval and streak counters carry over
// and the multiplicative formula resumes from there.
func estimatePayload(cs db.CardState, target srs.Algorithm) db.CardState {
	next := cs
	next.Algorithm = target
	next.Migrated = true

	switch target {
	case srs.AlgorithmFSRS:
		next.Stability = math.Max(1, float64(cs.IntervalDays))
		next.Difficulty = difficultyFromEase(cs.Ease)
		next.LastRetrievability = cs.LastRetrievability
	case srs.AlgorithmSM2:
		next.Ease = easeFromDifficulty(cs.Difficulty)
	}
	return next
}

func difficultyFromEase(ease float64) float64 {
	if ease < srs.MinEase {
		ease = srs.MinEase
	}
	if ease > srs.MaxEase {
		ease = srs.MaxEase
	}
	// [MinEase, MaxEase] -> [10, 1]
	frac := (ease - srs.MinEase) / (srs.MaxEase - srs.MinEase)
	return 10 - frac*9
}

func easeFromDifficulty(difficulty float64) float64 {
	if difficulty < 1 {
		difficulty = 1
	}
	if difficulty > 10 {
		difficulty = 10
	}
	// [1, 10] -> [MaxEase, MinEase]
	frac := (difficulty - 1) / 9
	return srs.MaxEase - frac*(srs.MaxEase-srs.MinEase)
}
