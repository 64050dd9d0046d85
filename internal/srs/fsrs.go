package srs

import (
	"log/slog"
	"math"
	"time"
)

// FSRS v4 weights. w0-w3 seed initial stability per grade, the rest drive
// the difficulty and stability update rules.
var fsrsWeights = [19]float64{
	0.4072, 1.1829, 3.1262, 15.4722,
	7.2102, 0.5316, 1.0651, 0.0234,
	1.616, 0.1544, 1.0824, 1.9813,
	0.0953, 0.2975, 2.2042, 0.2407,
	2.9466, 0.5034, 0.6567,
}

const (
	// Forgetting-curve shape: R(t, S) = (1 + factor*t/S)^decay. With these
	// values R(S, S) = 0.9, so stability is the interval at 90% retention.
	fsrsDecay  = -0.5
	fsrsFactor = 19.0 / 81.0

	minStability  = 0.1
	minDifficulty = 1.0
	maxDifficulty = 10.0
)

// SeedProvider supplies cold-start stability/difficulty for a sense from
// aggregated data across all learners. Returning ok=false falls back to the
// rating-seeded defaults.
type SeedProvider interface {
	SenseSeed(senseID string) (stability, difficulty float64, ok bool)
}

// FSRS is the memory-model scheduler. Each review updates a per-item
// stability and difficulty estimate; the next interval is solved so that
// predicted retrievability at the due date meets the target retention.
type FSRS struct {
	p    Params
	seed SeedProvider
	log  *slog.Logger
}

func NewFSRS(p Params, seed SeedProvider) *FSRS {
	return &FSRS{p: p, seed: seed}
}

// WithLogger sets the logger used for fallback-path reporting.
func (a *FSRS) WithLogger(log *slog.Logger) *FSRS {
	a.log = log
	return a
}

func (a *FSRS) Next(prior State, rating Rating, now time.Time) (State, Outcome, error) {
	if err := rating.Validate(); err != nil {
		return State{}, Outcome{}, err
	}

	s := prior
	s.Algorithm = AlgorithmFSRS
	grade := fsrsGrade(rating)

	var retrievability float64
	if prior.TotalReviews == 0 {
		retrievability = 1.0
		s.Stability, s.Difficulty = a.seedState(prior.SenseID, grade)
	} else {
		elapsed := elapsedDays(prior.LastReviewedAt, now)
		retrievability = forgettingCurve(elapsed, prior.Stability)
		s.Difficulty = nextDifficulty(prior.Difficulty, grade)
		if rating.Success() {
			s.Stability = nextRecallStability(s.Difficulty, prior.Stability, retrievability, grade)
		} else {
			s.Stability = nextForgetStability(s.Difficulty, prior.Stability, retrievability)
		}
	}
	s.LastRetrievability = retrievability

	if rating.Success() {
		s.ConsecutiveCorrect = prior.ConsecutiveCorrect + 1
		s.IntervalDays = capGrowth(a.solveInterval(s.Stability), prior.IntervalDays, a.p)
	} else {
		s.ConsecutiveCorrect = 0
		if rating == RatingAgain {
			s.IntervalDays = 0
		} else {
			s.IntervalDays = 1
		}
	}

	out := finishReview(&s, prior, rating, now, a.p)
	out.RetentionEstimate = retrievability
	return s, out, nil
}

func (a *FSRS) seedState(senseID string, grade int) (stability, difficulty float64) {
	if a.seed != nil {
		if st, d, ok := a.seed.SenseSeed(senseID); ok {
			return clampStability(st), clampDifficulty(d)
		}
	}
	return initStability(grade), initDifficulty(grade)
}

// solveInterval inverts the forgetting curve: the smallest whole-day interval
// whose predicted retrievability still meets the target retention. The
// closed-form inverse always converges; a non-finite stability (corrupt row)
// falls back to one day and is reported as a fallback, not failure.
func (a *FSRS) solveInterval(stability float64) int {
	ivl := stability / fsrsFactor * (math.Pow(a.p.TargetRetention, 1.0/fsrsDecay) - 1)
	if math.IsNaN(ivl) || math.IsInf(ivl, 0) {
		a.logger().Warn("fsrs interval solve fell back to 1 day",
			"stability", stability, "target_retention", a.p.TargetRetention)
		return 1
	}
	days := int(math.Round(ivl))
	if days < 1 {
		days = 1
	}
	if days > a.p.MaxIntervalDays {
		days = a.p.MaxIntervalDays
	}
	return days
}

func (a *FSRS) logger() *slog.Logger {
	if a.log != nil {
		return a.log
	}
	return slog.Default()
}

// fsrsGrade folds the product's 0-4 rating scale onto the four FSRS grades.
// Both failure ratings land on Again/Hard for the difficulty delta; Easy and
// Perfect share the top grade.
func fsrsGrade(r Rating) int {
	switch r {
	case RatingAgain:
		return 1
	case RatingHard:
		return 2
	case RatingGood:
		return 3
	default:
		return 4
	}
}

func forgettingCurve(elapsedDays, stability float64) float64 {
	if stability < minStability {
		stability = minStability
	}
	if elapsedDays < 0 {
		elapsedDays = 0
	}
	return math.Pow(1+fsrsFactor*elapsedDays/stability, fsrsDecay)
}

func elapsedDays(last *time.Time, now time.Time) float64 {
	if last == nil {
		return 0
	}
	d := now.Sub(*last).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

func initStability(grade int) float64 {
	return clampStability(fsrsWeights[grade-1])
}

func initDifficulty(grade int) float64 {
	return clampDifficulty(fsrsWeights[4] - fsrsWeights[5]*float64(grade-3))
}

// nextDifficulty applies the linear-damped difficulty delta plus mean
// reversion toward the Easy-seed difficulty.
func nextDifficulty(d float64, grade int) float64 {
	deltaD := -fsrsWeights[6] * float64(grade-3)
	dPrime := d + deltaD*(10-d)/9
	d0Easy := fsrsWeights[4] - fsrsWeights[5]
	return clampDifficulty(fsrsWeights[7]*d0Easy + (1-fsrsWeights[7])*dPrime)
}

// nextRecallStability rewards recall that succeeded despite low predicted
// retrievability: the lower R was, the larger the stability gain.
func nextRecallStability(d, s, r float64, grade int) float64 {
	easyBonus := 1.0
	if grade == 4 {
		easyBonus = fsrsWeights[16]
	}
	grow := math.Exp(fsrsWeights[8]) *
		(11 - d) *
		math.Pow(s, -fsrsWeights[9]) *
		(math.Exp((1-r)*fsrsWeights[10]) - 1) *
		easyBonus
	return clampStability(s * (1 + grow))
}

// nextForgetStability shrinks stability after a lapse, more sharply the more
// overdue the review was (low R). Never grows stability.
func nextForgetStability(d, s, r float64) float64 {
	next := fsrsWeights[11] *
		math.Pow(d, -fsrsWeights[12]) *
		(math.Pow(s+1, fsrsWeights[13]) - 1) *
		math.Exp((1-r)*fsrsWeights[14])
	return clampStability(math.Min(next, s))
}

func clampStability(s float64) float64 {
	return math.Max(s, minStability)
}

func clampDifficulty(d float64) float64 {
	return math.Min(math.Max(d, minDifficulty), maxDifficulty)
}
