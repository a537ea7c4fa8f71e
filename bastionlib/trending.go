package bastionlib

import (
	"math"
	"sort"
	"time"
)

// Defaults of the trending formula. Веса подобраны так, чтобы горстка
// форков перевешивала на порядок большее число пассивных просмотров:
// fork — самый дорогой сигнал вовлечённости.
const (
	DefaultViewWeight    = 1.0
	DefaultVoteWeight    = 3.0
	DefaultCommentWeight = 2.0
	DefaultCopyWeight    = 4.0
	DefaultSaveWeight    = 2.0
	DefaultForkWeight    = 6.0

	DefaultTrendingHalfLife = 48 * time.Hour

	// DefaultDecayFloor keeps old-but-historically-popular content from
	// decaying to exactly zero.
	DefaultDecayFloor = 0.01
)

// Default categorization thresholds.
const (
	DefaultHotThreshold      = 100.0
	DefaultTrendingThreshold = 50.0
	DefaultRisingThreshold   = 20.0
)

// TrendingCategory buckets a score for display.
type TrendingCategory string

const (
	CategoryHot      TrendingCategory = "hot"
	CategoryTrending TrendingCategory = "trending"
	CategoryRising   TrendingCategory = "rising"
	CategoryNormal   TrendingCategory = "normal"
)

// TrendingMetrics is a read-only engagement snapshot supplied by the
// caller. This layer never owns or mutates it.
type TrendingMetrics struct {
	Views     int
	Votes     int
	Comments  int
	Copies    int
	Saves     int
	Forks     int
	CreatedAt time.Time
}

// TrendingWeights are the engagement counter weights.
type TrendingWeights struct {
	Views    float64
	Votes    float64
	Comments float64
	Copies   float64
	Saves    float64
	Forks    float64
}

// DefaultTrendingWeights returns the production defaults.
func DefaultTrendingWeights() TrendingWeights {
	return TrendingWeights{
		Views:    DefaultViewWeight,
		Votes:    DefaultVoteWeight,
		Comments: DefaultCommentWeight,
		Copies:   DefaultCopyWeight,
		Saves:    DefaultSaveWeight,
		Forks:    DefaultForkWeight,
	}
}

// TrendingThresholds are the Categorize cut-offs.
type TrendingThresholds struct {
	Hot      float64
	Trending float64
	Rising   float64
}

// TrendingScorer is a pure scoring function: weighted engagement sum
// multiplied by exponential time decay. It shares no state with the
// protective stores; it lives here because it is the same explainable
// scoring-over-windowed-counters idiom.
type TrendingScorer struct {
	weights    TrendingWeights
	thresholds TrendingThresholds
	halfLife   time.Duration
	floor      float64

	clock func() time.Time
}

// ScorerOpts configures a TrendingScorer. Zero values fall back to the
// package defaults.
type ScorerOpts struct {
	Weights    TrendingWeights
	Thresholds TrendingThresholds
	HalfLife   time.Duration
	DecayFloor float64
}

// NewTrendingScorer builds a scorer.
func NewTrendingScorer(opts ScorerOpts) *TrendingScorer {
	zeroW := TrendingWeights{}
	if opts.Weights == zeroW {
		opts.Weights = DefaultTrendingWeights()
	}

	zeroT := TrendingThresholds{}
	if opts.Thresholds == zeroT {
		opts.Thresholds = TrendingThresholds{
			Hot:      DefaultHotThreshold,
			Trending: DefaultTrendingThreshold,
			Rising:   DefaultRisingThreshold,
		}
	}

	if opts.HalfLife == 0 {
		opts.HalfLife = DefaultTrendingHalfLife
	}

	if opts.DecayFloor == 0 {
		opts.DecayFloor = DefaultDecayFloor
	}

	return &TrendingScorer{
		weights:    opts.Weights,
		thresholds: opts.Thresholds,
		halfLife:   opts.HalfLife,
		floor:      opts.DecayFloor,
		clock:      time.Now,
	}
}

// Score computes the trending score. Zero engagement always yields 0
// regardless of age. The result is rounded to two decimal places for
// stable comparisons.
func (t *TrendingScorer) Score(m TrendingMetrics) float64 {
	raw := t.weights.Views*float64(m.Views) +
		t.weights.Votes*float64(m.Votes) +
		t.weights.Comments*float64(m.Comments) +
		t.weights.Copies*float64(m.Copies) +
		t.weights.Saves*float64(m.Saves) +
		t.weights.Forks*float64(m.Forks)

	if raw == 0 {
		return 0
	}

	ageHours := t.clock().Sub(m.CreatedAt).Hours()
	if ageHours < 0 {
		// createdAt в будущем — рассинхрон часов вызывающей стороны,
		// считаем контент свежим.
		ageHours = 0
	}

	decay := math.Pow(0.5, ageHours/t.halfLife.Hours()) //nolint: gomnd
	if decay < t.floor {
		decay = t.floor
	}

	return math.Round(raw*decay*100) / 100 //nolint: gomnd
}

// Ranked is one scored item of a ranking.
type Ranked struct {
	// ID identifies the content item for the caller.
	ID string

	Metrics TrendingMetrics
	Score   float64
}

// Rank scores every item and sorts the result by descending score.
// Ties keep a stable order by ID so pagination does not flicker.
func (t *TrendingScorer) Rank(items []Ranked) []Ranked {
	rv := make([]Ranked, len(items))
	copy(rv, items)

	for i := range rv {
		rv[i].Score = t.Score(rv[i].Metrics)
	}

	sort.SliceStable(rv, func(i, j int) bool {
		if rv[i].Score != rv[j].Score {
			return rv[i].Score > rv[j].Score
		}

		return rv[i].ID < rv[j].ID
	})

	return rv
}

// Categorize buckets a score by the fixed thresholds.
func (t *TrendingScorer) Categorize(score float64) TrendingCategory {
	switch {
	case score >= t.thresholds.Hot:
		return CategoryHot
	case score >= t.thresholds.Trending:
		return CategoryTrending
	case score >= t.thresholds.Rising:
		return CategoryRising
	default:
		return CategoryNormal
	}
}
