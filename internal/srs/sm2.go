package srs

import (
	"math"
	"time"
)

// SM2 is the classical ease-factor scheduler. Intervals grow multiplicatively
// by the ease factor after two fixed bootstrap intervals; failures collapse
// the schedule to a same-day or next-day retest and reset the streak.
type SM2 struct {
	p Params
}

func NewSM2(p Params) *SM2 {
	return &SM2{p: p}
}

func (a *SM2) Next(prior State, rating Rating, now time.Time) (State, Outcome, error) {
	if err := rating.Validate(); err != nil {
		return State{}, Outcome{}, err
	}

	s := prior
	s.Algorithm = AlgorithmSM2
	if s.Ease == 0 {
		s.Ease = DefaultEase
	}

	if rating.Success() {
		s.ConsecutiveCorrect = prior.ConsecutiveCorrect + 1
		s.Ease = clampEase(s.Ease + easeDelta(rating))

		// Fixed bootstrap intervals for the first two successes avoid
		// multiplying the ease factor against an interval of zero.
		var ivl int
		switch s.ConsecutiveCorrect {
		case 1:
			ivl = a.p.FirstIntervalDays
		case 2:
			ivl = a.p.SecondIntervalDays
		default:
			ivl = int(math.Round(float64(prior.IntervalDays) * s.Ease))
		}
		s.IntervalDays = capGrowth(ivl, prior.IntervalDays, a.p)
	} else {
		s.ConsecutiveCorrect = 0
		s.Ease = clampEase(s.Ease + easeDelta(rating))
		if rating == RatingAgain {
			s.IntervalDays = 0 // same-day retest
		} else {
			s.IntervalDays = 1
		}
	}

	out := finishReview(&s, prior, rating, now, a.p)
	out.RetentionEstimate = recentAccuracy(s, a.p)
	return s, out, nil
}

// recentAccuracy is the SM-2 retention proxy: the observed success rate over
// the failure window. SM-2 has no memory model, so recent accuracy stands in
// for a retrievability estimate.
func recentAccuracy(s State, p Params) float64 {
	n := s.TotalReviews
	if n > p.LeechWindow {
		n = p.LeechWindow
	}
	if n == 0 {
		return 0
	}
	return float64(n-failuresInWindow(s.WindowBits, n)) / float64(n)
}

func easeDelta(rating Rating) float64 {
	switch rating {
	case RatingAgain:
		return EaseModFail
	case RatingHard:
		return EaseModHard
	case RatingEasy:
		return EaseModEasy
	case RatingPerfect:
		return EaseModPerfect
	default:
		return EaseModGood
	}
}

func clampEase(ease float64) float64 {
	return math.Min(math.Max(ease, MinEase), MaxEase)
}
