package srs

// Constants for the SM-2 style scheduler.
const (
	MinEase     = 1.3
	MaxEase     = 3.0
	DefaultEase = 2.5

	EaseModFail    = -0.20
	EaseModHard    = -0.15
	EaseModGood    = 0.0
	EaseModEasy    = 0.10
	EaseModPerfect = 0.15
)

// Params holds the tunable scheduling knobs shared by both algorithms.
// Defaults follow the reviewed product values; the leech window and the
// rating-mapping thresholds in particular are heuristics, not invariants.
type Params struct {
	// MaxIntervalDays caps interval growth for both algorithms.
	MaxIntervalDays int `yaml:"max_interval_days"`

	// SM-2 bootstrap intervals for the first two successes, before the
	// multiplicative formula takes over.
	FirstIntervalDays  int `yaml:"first_interval_days"`
	SecondIntervalDays int `yaml:"second_interval_days"`

	// FSRS target retention: next intervals are solved so that predicted
	// retrievability at the due date equals this value.
	TargetRetention float64 `yaml:"target_retention"`

	// Leech rule: a sense becomes a leech once LeechThreshold failures fall
	// within its last LeechWindow reviews.
	LeechWindow    int `yaml:"leech_window"`
	LeechThreshold int `yaml:"leech_threshold"`

	// Mastery tier cutoffs. SM-2 states derive the tier from streak and
	// total-review counters, FSRS states from stability in days.
	FamiliarStreak     int     `yaml:"familiar_streak"`
	MasteredStreak     int     `yaml:"mastered_streak"`
	MasteredMinReviews int     `yaml:"mastered_min_reviews"`
	FamiliarStability  float64 `yaml:"familiar_stability"`
	MasteredStability  float64 `yaml:"mastered_stability"`
}

func DefaultParams() Params {
	return Params{
		MaxIntervalDays:    365,
		FirstIntervalDays:  1,
		SecondIntervalDays: 6,
		TargetRetention:    0.9,
		LeechWindow:        8,
		LeechThreshold:     4,
		FamiliarStreak:     3,
		MasteredStreak:     6,
		MasteredMinReviews: 8,
		FamiliarStability:  7,
		MasteredStability:  30,
	}
}
