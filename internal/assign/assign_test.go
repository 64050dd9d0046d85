package assign_test

import (
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KurtChenkoyu/lexicraft/internal/assign"
	"github.com/KurtChenkoyu/lexicraft/internal/db"
	"github.com/KurtChenkoyu/lexicraft/internal/srs"
	"github.com/KurtChenkoyu/lexicraft/internal/testutils"
)

func newService(t *testing.T, storage *db.Storage, cfg assign.Config) *assign.Service {
	t.Helper()
	logr := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return assign.New(storage, cfg, logr, rand.NewSource(1))
}

// seedReviewedSense writes one card state plus one history row for the pair,
// the way the pipeline would.
func seedReviewedSense(t *testing.T, storage *db.Storage, learnerID, senseID string, alg srs.Algorithm, intervalDays int, ease float64) {
	t.Helper()

	now := time.Now()
	state := srs.NewState(learnerID, senseID, alg, now)
	state.IntervalDays = intervalDays
	state.NextDue = now.AddDate(0, 0, intervalDays)
	state.ConsecutiveCorrect = 1
	state.TotalReviews = 1
	state.Ease = ease
	state.LastReviewedAt = &now

	err := storage.SaveReview(
		db.CardState{State: state, Mastery: srs.MasteryLearning},
		true,
		db.Review{
			LearnerID:         learnerID,
			SenseID:           senseID,
			Rating:            srs.RatingGood,
			WasCorrect:        true,
			ReviewedAt:        now,
			IntervalAfter:     intervalDays,
			AlgorithmUsed:     alg,
			RetentionEstimate: 1,
		},
	)
	require.NoError(t, err)
}

func TestAssign_Idempotent(t *testing.T) {
	storage := testutils.SetupDB(t)
	svc := newService(t, storage, assign.DefaultConfig())

	first, err := svc.Assign("learner-1")
	require.NoError(t, err)
	require.True(t, first.Algorithm.Valid())

	second, err := svc.Assign("learner-1")
	require.NoError(t, err)
	assert.Equal(t, first.Algorithm, second.Algorithm)
	assert.Equal(t, first.AssignedAt.Unix(), second.AssignedAt.Unix())
	assert.Nil(t, second.MigratedFrom)
}

func TestAssign_ConcurrentFirstUse(t *testing.T) {
	storage := testutils.SetupDB(t)
	svc := newService(t, storage, assign.DefaultConfig())

	const workers = 8
	results := make([]srs.Algorithm, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := svc.Assign("learner-racy")
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = a.Algorithm
		}(i)
	}
	wg.Wait()

	persisted, err := storage.GetAssignment("learner-racy")
	require.NoError(t, err)
	for _, alg := range results {
		assert.Equal(t, persisted.Algorithm, alg, "every caller must see the single persisted assignment")
	}
}

func TestMigrationEligibility(t *testing.T) {
	storage := testutils.SetupDB(t)
	svc := newService(t, storage, assign.Config{SM2Probability: 1, MigrationThreshold: 3})

	_, err := storage.EnsureAssignment("learner-1", srs.AlgorithmSM2)
	require.NoError(t, err)

	eligible, err := svc.MigrationEligible("learner-1")
	require.NoError(t, err)
	assert.False(t, eligible)

	err = svc.Migrate("learner-1", srs.AlgorithmFSRS)
	require.ErrorIs(t, err, assign.ErrNotEligible)

	for _, sense := range []string{"sense-1", "sense-2", "sense-3"} {
		seedReviewedSense(t, storage, "learner-1", sense, srs.AlgorithmSM2, 10, 2.5)
	}

	eligible, err = svc.MigrationEligible("learner-1")
	require.NoError(t, err)
	assert.True(t, eligible)
}

func TestMigrate_SM2ToFSRS(t *testing.T) {
	storage := testutils.SetupDB(t)
	svc := newService(t, storage, assign.Config{SM2Probability: 1, MigrationThreshold: 2})

	_, err := storage.EnsureAssignment("learner-1", srs.AlgorithmSM2)
	require.NoError(t, err)

	seedReviewedSense(t, storage, "learner-1", "sense-1", srs.AlgorithmSM2, 20, 2.5)
	seedReviewedSense(t, storage, "learner-1", "sense-2", srs.AlgorithmSM2, 1, 1.3)

	require.NoError(t, svc.Migrate("learner-1", srs.AlgorithmFSRS))

	// Assignment now reports the target and remembers the origin.
	a, err := storage.GetAssignment("learner-1")
	require.NoError(t, err)
	assert.Equal(t, srs.AlgorithmFSRS, a.Algorithm)
	require.NotNil(t, a.MigratedFrom)
	assert.Equal(t, srs.AlgorithmSM2, *a.MigratedFrom)
	assert.NotNil(t, a.MigratedAt)

	// Payloads were estimated: stability from interval, difficulty from ease.
	cs, err := storage.GetCardState("learner-1", "sense-1")
	require.NoError(t, err)
	assert.Equal(t, srs.AlgorithmFSRS, cs.Algorithm)
	assert.True(t, cs.Migrated)
	assert.InDelta(t, 20.0, cs.Stability, 0.001)
	assert.Less(t, cs.Difficulty, 5.0, "high ease maps to low difficulty")

	floor, err := storage.GetCardState("learner-1", "sense-2")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, floor.Stability, 0.001, "stability floors at one day")
	assert.InDelta(t, 10.0, floor.Difficulty, 0.001, "minimum ease maps to maximum difficulty")

	// History is untouched and keeps the algorithm that produced it.
	reviews, err := storage.GetReviews("learner-1", "sense-1")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, srs.AlgorithmSM2, reviews[0].AlgorithmUsed)

	// Repeating the migration toward the same target is rejected.
	err = svc.Migrate("learner-1", srs.AlgorithmFSRS)
	require.ErrorIs(t, err, assign.ErrAlreadyAssigned)
}

func TestMigrate_FSRSToSM2(t *testing.T) {
	storage := testutils.SetupDB(t)
	svc := newService(t, storage, assign.Config{SM2Probability: 0, MigrationThreshold: 1})

	_, err := storage.EnsureAssignment("learner-1", srs.AlgorithmFSRS)
	require.NoError(t, err)

	now := time.Now()
	state := srs.NewState("learner-1", "sense-1", srs.AlgorithmFSRS, now)
	state.IntervalDays = 15
	state.NextDue = now.AddDate(0, 0, 15)
	state.TotalReviews = 1
	state.Stability = 15
	state.Difficulty = 1
	state.LastReviewedAt = &now
	require.NoError(t, storage.SaveReview(
		db.CardState{State: state, Mastery: srs.MasteryLearning},
		true,
		db.Review{
			LearnerID:     "learner-1",
			SenseID:       "sense-1",
			Rating:        srs.RatingGood,
			WasCorrect:    true,
			ReviewedAt:    now,
			IntervalAfter: 15,
			AlgorithmUsed: srs.AlgorithmFSRS,
		},
	))

	require.NoError(t, svc.Migrate("learner-1", srs.AlgorithmSM2))

	cs, err := storage.GetCardState("learner-1", "sense-1")
	require.NoError(t, err)
	assert.Equal(t, srs.AlgorithmSM2, cs.Algorithm)
	assert.True(t, cs.Migrated)
	assert.InDelta(t, srs.MaxEase, cs.Ease, 0.001, "minimum difficulty maps to maximum ease")
	assert.Equal(t, 15, cs.IntervalDays, "interval carries over")
}

func TestMigrate_UnknownLearner(t *testing.T) {
	storage := testutils.SetupDB(t)
	svc := newService(t, storage, assign.DefaultConfig())

	err := svc.Migrate("nobody", srs.AlgorithmFSRS)
	require.ErrorIs(t, err, db.ErrNotFound)
}
