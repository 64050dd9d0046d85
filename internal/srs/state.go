package srs

import "time"

// Algorithm identifies which scheduler owns a card state. The set is closed:
// the two values are the two arms of the scheduling comparison, not an open
// plugin surface.
type Algorithm string

const (
	AlgorithmSM2  Algorithm = "sm2"
	AlgorithmFSRS Algorithm = "fsrs"
)

func (a Algorithm) Valid() bool {
	return a == AlgorithmSM2 || a == AlgorithmFSRS
}

// Mastery is the coarse, algorithm-independent proficiency tier exposed to
// the UI and analytics. Derived fresh from counters on every review, never
// stored as an independent source of truth.
type Mastery string

const (
	MasteryNew      Mastery = "new"
	MasteryLearning Mastery = "learning"
	MasteryFamiliar Mastery = "familiar"
	MasteryMastered Mastery = "mastered"
)

// rank orders mastery tiers so downgrades can be detected.
func (m Mastery) rank() int {
	switch m {
	case MasteryLearning:
		return 1
	case MasteryFamiliar:
		return 2
	case MasteryMastered:
		return 3
	default:
		return 0
	}
}

// State is the scheduling record for one (learner, sense) pair. It carries
// the algorithm-agnostic fields plus both algorithm payloads; which payload
// is live is discriminated by Algorithm.
type State struct {
	LearnerID string
	SenseID   string
	Algorithm Algorithm

	IntervalDays       int
	NextDue            time.Time
	ConsecutiveCorrect int
	TotalReviews       int
	IsLeech            bool
	LastReviewedAt     *time.Time

	// WindowBits packs the pass/fail outcomes of the most recent reviews,
	// newest in the low bit, failure = 1. Used for leech detection without
	// rescanning history.
	WindowBits uint64

	// SM-2 payload.
	Ease float64

	// FSRS payload.
	Stability          float64
	Difficulty         float64
	LastRetrievability float64

	// Migrated marks states whose payload was estimated from the other
	// algorithm's history rather than accumulated organically.
	Migrated bool
}

// NewState returns the initial state for a sense the learner has never
// reviewed: due immediately, interval 0, mastery NEW.
func NewState(learnerID, senseID string, alg Algorithm, now time.Time) State {
	return State{
		LearnerID: learnerID,
		SenseID:   senseID,
		Algorithm: alg,
		NextDue:   now,
		Ease:      DefaultEase,
	}
}

// Outcome is the derived result of applying a scheduler to one review.
type Outcome struct {
	WasCorrect        bool
	NextIntervalDays  int
	RetentionEstimate float64
	Mastery           Mastery
	MasteryChanged    bool
	BecameLeech       bool
}

// Scheduler is the contract both algorithms implement: prior state plus a
// performance rating produce the successor state and the review outcome.
// Implementations are pure and safe for concurrent use.
type Scheduler interface {
	Next(prior State, rating Rating, now time.Time) (State, Outcome, error)
}

// pushWindow shifts one review outcome into the failure window.
func pushWindow(bits uint64, failed bool) uint64 {
	bits <<= 1
	if failed {
		bits |= 1
	}
	return bits
}

// failuresInWindow counts failures among the last window reviews.
func failuresInWindow(bits uint64, window int) int {
	count := 0
	for i := 0; i < window && i < 64; i++ {
		if bits&(1<<uint(i)) != 0 {
			count++
		}
	}
	return count
}

// updateLeech applies the rolling-window leech rule. The flag is one-way:
// once a sense is a leech it stays flagged, and becameLeech is true only on
// the review that flips it.
func updateLeech(s *State, failed bool, p Params) (becameLeech bool) {
	s.WindowBits = pushWindow(s.WindowBits, failed)
	if s.IsLeech {
		return false
	}
	if failuresInWindow(s.WindowBits, p.LeechWindow) >= p.LeechThreshold {
		s.IsLeech = true
		return true
	}
	return false
}

// capGrowth enforces monotonic growth on success and the global interval
// ceiling. A successful review never shortens the schedule.
func capGrowth(next, prior int, p Params) int {
	if next < prior {
		next = prior
	}
	if next < 1 {
		next = 1
	}
	if next > p.MaxIntervalDays {
		next = p.MaxIntervalDays
	}
	return next
}

// finishReview applies the bookkeeping shared by both schedulers after the
// algorithm-specific fields are updated.
func finishReview(s *State, prior State, rating Rating, now time.Time, p Params) Outcome {
	s.TotalReviews = prior.TotalReviews + 1
	t := now
	s.LastReviewedAt = &t
	s.NextDue = now.AddDate(0, 0, s.IntervalDays)

	becameLeech := updateLeech(s, !rating.Success(), p)

	priorMastery := masteryOf(prior, p)
	mastery := masteryOf(*s, p)

	return Outcome{
		WasCorrect:       rating.Success(),
		NextIntervalDays: s.IntervalDays,
		Mastery:          mastery,
		MasteryChanged:   mastery != priorMastery,
		BecameLeech:      becameLeech,
	}
}

// masteryOf derives the mastery tier from the state. SM-2 states use the
// streak and total-review counters; FSRS states use stability magnitude.
// Both produce the same externally visible enum.
func masteryOf(s State, p Params) Mastery {
	if s.TotalReviews == 0 {
		return MasteryNew
	}
	switch s.Algorithm {
	case AlgorithmFSRS:
		switch {
		case s.Stability >= p.MasteredStability:
			return MasteryMastered
		case s.Stability >= p.FamiliarStability:
			return MasteryFamiliar
		default:
			return MasteryLearning
		}
	default:
		switch {
		case s.ConsecutiveCorrect >= p.MasteredStreak && s.TotalReviews >= p.MasteredMinReviews:
			return MasteryMastered
		case s.ConsecutiveCorrect >= p.FamiliarStreak:
			return MasteryFamiliar
		default:
			return MasteryLearning
		}
	}
}
