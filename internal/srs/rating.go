package srs

import "fmt"

// Rating grades a single review event on the 0-4 scale used across the
// product: 0=Again, 1=Hard, 2=Good, 3=Easy, 4=Perfect. Ratings 0 and 1 are
// failures, 2-4 are successes.
type Rating int

const (
	RatingAgain   Rating = 0
	RatingHard    Rating = 1
	RatingGood    Rating = 2
	RatingEasy    Rating = 3
	RatingPerfect Rating = 4
)

// ErrInvalidRating is returned for ratings outside 0-4. Out-of-range values
// are rejected rather than clamped so that bugs in upstream rating mapping
// surface immediately.
type ErrInvalidRating struct {
	Value int
}

func (e ErrInvalidRating) Error() string {
	return fmt.Sprintf("invalid rating %d: must be between 0 and 4", e.Value)
}

func (r Rating) Validate() error {
	if r < RatingAgain || r > RatingPerfect {
		return ErrInvalidRating{Value: int(r)}
	}
	return nil
}

// Success reports whether the rating counts as a correct recall.
func (r Rating) Success() bool {
	return r >= RatingGood
}

func (r Rating) String() string {
	switch r {
	case RatingAgain:
		return "again"
	case RatingHard:
		return "hard"
	case RatingGood:
		return "good"
	case RatingEasy:
		return "easy"
	case RatingPerfect:
		return "perfect"
	default:
		return fmt.Sprintf("rating(%d)", int(r))
	}
}

// RatingThresholds holds the response-latency cutoffs used to map a raw MCQ
// outcome to a rating. The millisecond values are product-tuned placeholders,
// kept as configuration rather than constants.
type RatingThresholds struct {
	// Incorrect answers given faster than IncorrectSlowMs rate Again;
	// slower ones rate Hard (the learner hesitated toward the right answer).
	IncorrectSlowMs int `yaml:"incorrect_slow_ms"`
	// Correct answers at or under PerfectMs rate Perfect, under EasyMs rate
	// Easy, anything slower rates Good.
	PerfectMs int `yaml:"perfect_ms"`
	EasyMs    int `yaml:"easy_ms"`
}

func DefaultRatingThresholds() RatingThresholds {
	return RatingThresholds{
		IncorrectSlowMs: 8000,
		PerfectMs:       2000,
		EasyMs:          5000,
	}
}

// MapOutcome converts a graded MCQ answer plus its response latency into a
// performance rating. Pure function of its inputs.
func MapOutcome(isCorrect bool, responseTimeMs int, t RatingThresholds) Rating {
	if !isCorrect {
		if responseTimeMs >= t.IncorrectSlowMs {
			return RatingHard
		}
		return RatingAgain
	}
	switch {
	case responseTimeMs <= t.PerfectMs:
		return RatingPerfect
	case responseTimeMs <= t.EasyMs:
		return RatingEasy
	default:
		return RatingGood
	}
}
