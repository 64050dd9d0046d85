package review_test

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KurtChenkoyu/lexicraft/internal/assign"
	"github.com/KurtChenkoyu/lexicraft/internal/db"
	"github.com/KurtChenkoyu/lexicraft/internal/review"
	"github.com/KurtChenkoyu/lexicraft/internal/srs"
	"github.com/KurtChenkoyu/lexicraft/internal/testutils"
)

// newPipeline builds a pipeline whose cohort draw is forced to one algorithm,
// so tests can assert on scheduler behavior without depending on the PRNG.
func newPipeline(t *testing.T, sm2Probability float64) (*review.Pipeline, *db.Storage) {
	t.Helper()

	storage := testutils.SetupDB(t)
	logr := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	assigner := assign.New(storage,
		assign.Config{SM2Probability: sm2Probability, MigrationThreshold: 100},
		logr, rand.NewSource(1))
	return review.New(storage, assigner, review.DefaultConfig(), logr), storage
}

// Response times relative to the default thresholds: < 2000ms Perfect,
// < 5000ms Easy, otherwise Good when correct.
const (
	perfectMs = 1000
	easyMs    = 3000
	goodMs    = 6000
)

func TestSubmit_FirstReviewCreatesState(t *testing.T) {
	p, storage := newPipeline(t, 1)

	res, err := p.Submit(context.Background(), review.Event{
		LearnerID:      "learner-1",
		SenseID:        "sense-1",
		IsCorrect:      true,
		ResponseTimeMs: goodMs,
	})
	require.NoError(t, err)

	assert.True(t, res.WasCorrect)
	assert.Equal(t, srs.RatingGood, res.Rating)
	assert.Equal(t, srs.AlgorithmSM2, res.AlgorithmUsed)
	assert.Equal(t, 1, res.NextIntervalDays)
	assert.Equal(t, srs.MasteryLearning, res.Mastery)
	assert.True(t, res.MasteryChanged)
	assert.Equal(t, 1, res.TotalReviews)

	// The state row, history row and assignment all exist afterwards.
	cs, err := storage.GetCardState("learner-1", "sense-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cs.Version)
	assert.Equal(t, srs.MasteryLearning, cs.Mastery)

	count, err := storage.CountReviews("learner-1", "sense-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	a, err := storage.GetAssignment("learner-1")
	require.NoError(t, err)
	assert.Equal(t, srs.AlgorithmSM2, a.Algorithm)
}

func TestSubmit_SM2Sequence(t *testing.T) {
	p, storage := newPipeline(t, 1)
	ctx := context.Background()

	submit := func(timeMs int) *review.Result {
		res, err := p.Submit(ctx, review.Event{
			LearnerID:      "learner-1",
			SenseID:        "sense-1",
			IsCorrect:      true,
			ResponseTimeMs: timeMs,
		})
		require.NoError(t, err)
		return res
	}

	first := submit(goodMs)
	assert.Equal(t, 1, first.NextIntervalDays)

	second := submit(goodMs)
	assert.Equal(t, 6, second.NextIntervalDays)

	third := submit(easyMs)
	assert.Equal(t, srs.RatingEasy, third.Rating)
	assert.Equal(t, 16, third.NextIntervalDays)
	assert.Equal(t, srs.MasteryFamiliar, third.Mastery)

	// Every processed event left exactly one history row, and the chained
	// intervals line up.
	reviews, err := storage.GetReviews("learner-1", "sense-1")
	require.NoError(t, err)
	require.Len(t, reviews, 3)
	assert.Equal(t, third.TotalReviews, len(reviews))
	for i := 1; i < len(reviews); i++ {
		assert.Equal(t, reviews[i-1].IntervalAfter, reviews[i].IntervalBefore)
	}
}

func TestSubmit_FSRSCohort(t *testing.T) {
	p, _ := newPipeline(t, 0)

	res, err := p.Submit(context.Background(), review.Event{
		LearnerID:      "learner-1",
		SenseID:        "sense-1",
		IsCorrect:      true,
		ResponseTimeMs: goodMs,
	})
	require.NoError(t, err)

	assert.Equal(t, srs.AlgorithmFSRS, res.AlgorithmUsed)
	assert.Equal(t, 3, res.NextIntervalDays, "Good on a cold card seeds a ~3 day stability")
}

func TestSubmit_FailureResponse(t *testing.T) {
	p, _ := newPipeline(t, 1)
	ctx := context.Background()

	_, err := p.Submit(ctx, review.Event{LearnerID: "learner-1", SenseID: "sense-1", IsCorrect: true, ResponseTimeMs: goodMs})
	require.NoError(t, err)

	res, err := p.Submit(ctx, review.Event{LearnerID: "learner-1", SenseID: "sense-1", IsCorrect: false, ResponseTimeMs: perfectMs})
	require.NoError(t, err)

	assert.False(t, res.WasCorrect)
	assert.Equal(t, srs.RatingAgain, res.Rating)
	assert.Equal(t, 0, res.ConsecutiveCorrect)
	assert.LessOrEqual(t, res.NextIntervalDays, 1)
}

func TestSubmit_MissingStateIsIntegrityError(t *testing.T) {
	p, storage := newPipeline(t, 1)
	ctx := context.Background()

	_, err := p.Submit(ctx, review.Event{LearnerID: "learner-1", SenseID: "sense-1", IsCorrect: true, ResponseTimeMs: goodMs})
	require.NoError(t, err)

	// History without a state row must not be silently recreated.
	require.NoError(t, storage.DeleteCardState("learner-1", "sense-1"))

	_, err = p.Submit(ctx, review.Event{LearnerID: "learner-1", SenseID: "sense-1", IsCorrect: true, ResponseTimeMs: goodMs})
	require.ErrorIs(t, err, db.ErrStateMissing)
}

func TestSubmit_RejectsMalformedEvents(t *testing.T) {
	p, _ := newPipeline(t, 1)
	ctx := context.Background()

	tests := []struct {
		name string
		ev   review.Event
	}{
		{"missing learner", review.Event{SenseID: "sense-1"}},
		{"missing sense", review.Event{LearnerID: "learner-1"}},
		{"negative latency", review.Event{LearnerID: "learner-1", SenseID: "sense-1", ResponseTimeMs: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Submit(ctx, tt.ev)
			require.ErrorIs(t, err, review.ErrInvalidEvent)
		})
	}
}

func TestSubmit_CanceledContext(t *testing.T) {
	p, storage := newPipeline(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Submit(ctx, review.Event{LearnerID: "learner-1", SenseID: "sense-1", IsCorrect: true, ResponseTimeMs: goodMs})
	require.ErrorIs(t, err, context.Canceled)

	// Nothing was written.
	count, err := storage.CountReviews("learner-1", "sense-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSubmit_ConcurrentSameCard(t *testing.T) {
	p, storage := newPipeline(t, 1)
	ctx := context.Background()

	const attempts = 5
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			_, err := p.Submit(ctx, review.Event{
				LearnerID:      "learner-1",
				SenseID:        "sense-1",
				IsCorrect:      true,
				ResponseTimeMs: goodMs,
			})
			errs <- err
		}()
	}

	processed := 0
	for i := 0; i < attempts; i++ {
		err := <-errs
		if err == nil {
			processed++
			continue
		}
		// Only the retryable contention errors are acceptable.
		assert.True(t, errors.Is(err, review.ErrBusy) || errors.Is(err, db.ErrConflict),
			"unexpected error: %v", err)
	}
	require.Greater(t, processed, 0)

	// The history-completeness invariant: one row per processed event.
	count, err := storage.CountReviews("learner-1", "sense-1")
	require.NoError(t, err)
	assert.Equal(t, processed, count)

	cs, err := storage.GetCardState("learner-1", "sense-1")
	require.NoError(t, err)
	assert.Equal(t, processed, cs.TotalReviews)
}

func TestSubmit_LeechSurfacedOnce(t *testing.T) {
	p, _ := newPipeline(t, 1)
	ctx := context.Background()

	fail := func() *review.Result {
		res, err := p.Submit(ctx, review.Event{
			LearnerID:      "learner-1",
			SenseID:        "sense-1",
			IsCorrect:      false,
			ResponseTimeMs: perfectMs,
		})
		require.NoError(t, err)
		return res
	}

	var flagged int
	var last *review.Result
	for i := 0; i < 6; i++ {
		last = fail()
		if last.BecameLeech {
			flagged++
		}
	}
	assert.Equal(t, 1, flagged, "the leech transition fires exactly once")
	assert.True(t, last.IsLeech)
}

// ErrConflict is the storage-level backstop under the keyed lock: a write
// carrying a stale version must be rejected, not applied.
func TestSaveReview_StaleVersionRejected(t *testing.T) {
	p, storage := newPipeline(t, 1)
	ctx := context.Background()

	_, err := p.Submit(ctx, review.Event{LearnerID: "learner-1", SenseID: "sense-1", IsCorrect: true, ResponseTimeMs: goodMs})
	require.NoError(t, err)

	cs, err := storage.GetCardState("learner-1", "sense-1")
	require.NoError(t, err)

	stale := *cs
	stale.Version = cs.Version - 1
	err = storage.SaveReview(stale, false, db.Review{
		LearnerID:     "learner-1",
		SenseID:       "sense-1",
		Rating:        srs.RatingGood,
		WasCorrect:    true,
		ReviewedAt:    time.Now(),
		AlgorithmUsed: srs.AlgorithmSM2,
	})
	require.ErrorIs(t, err, db.ErrConflict)

	// The rejected transaction left no history row behind.
	count, err := storage.CountReviews("learner-1", "sense-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
