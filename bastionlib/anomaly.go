package bastionlib

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Defaults of the anomaly scoring formula. Все константы ниже —
// эмпирика, подобранная на проде исходной платформы, а не выведенные
// величины. Они вынесены в конфиг именно поэтому: продукт калибрует,
// код не переписывается.
const (
	DefaultBurstWeight       = 0.4
	DefaultDuplicationWeight = 0.3
	DefaultEntropyWeight     = 0.1
	DefaultVelocityWeight    = 0.2

	// DefaultBaselinePerMinute is used for keys with no prior EMA data:
	// avoids a divide-by-zero and keeps the very first burst of a
	// brand-new key from reading as infinitely anomalous.
	DefaultBaselinePerMinute = 5.0

	// DefaultEMAAlpha is the smoothing factor of the per-key baseline.
	DefaultEMAAlpha = 0.1

	// entropyNormalization — делитель нормировки Шенноновской энтропии
	// в [0,1]; 4 бита ≈ 16 равновероятных User-Agent'ов.
	entropyNormalization = 4.0

	// recentWindow is the "last minute" window every component looks at.
	recentWindow = time.Minute
)

// ScoringWeights is the convex combination of the four anomaly
// components. Weights are expected to sum to 1; the overall score is
// clamped to [0,1] regardless.
type ScoringWeights struct {
	Burst       float64
	Duplication float64
	Entropy     float64
	Velocity    float64
}

// DefaultScoringWeights returns the production defaults.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Burst:       DefaultBurstWeight,
		Duplication: DefaultDuplicationWeight,
		Entropy:     DefaultEntropyWeight,
		Velocity:    DefaultVelocityWeight,
	}
}

// AnomalyScore is a derived composite suspicion signal. It is never
// persisted: it is purely a function of the current event list and the
// key's baseline.
type AnomalyScore struct {
	// Overall is the weighted combination of the components, in [0,1].
	Overall float64

	// Burst is the volume-over-baseline component.
	Burst float64

	// Duplication is the identical-tuple repetition component.
	Duplication float64

	// Entropy is the inverted User-Agent diversity component: few
	// distinct UAs driving many events score high.
	Entropy float64

	// Velocity is the acceleration component: events speeding up score
	// high independently of raw volume.
	Velocity float64
}

// AnomalyDetector computes composite suspicion scores over event
// histories and maintains per-key EMA baselines of typical event rates.
// Scores are soft signals (shadow-ban, challenge, alerting), not hard
// blocks.
type AnomalyDetector struct {
	weights         ScoringWeights
	baselineDefault float64
	alpha           float64

	mu        sync.Mutex
	baselines map[string]float64

	clock func() time.Time
}

// DetectorOpts configures an AnomalyDetector. Zero values fall back to
// the package defaults.
type DetectorOpts struct {
	Weights         ScoringWeights
	BaselineDefault float64
	EMAAlpha        float64
}

// NewAnomalyDetector builds a detector.
func NewAnomalyDetector(opts DetectorOpts) *AnomalyDetector {
	zero := ScoringWeights{}
	if opts.Weights == zero {
		opts.Weights = DefaultScoringWeights()
	}

	if opts.BaselineDefault <= 0 {
		opts.BaselineDefault = DefaultBaselinePerMinute
	}

	if opts.EMAAlpha <= 0 {
		opts.EMAAlpha = DefaultEMAAlpha
	}

	return &AnomalyDetector{
		weights:         opts.Weights,
		baselineDefault: opts.BaselineDefault,
		alpha:           opts.EMAAlpha,
		baselines:       make(map[string]float64),
		clock:           time.Now,
	}
}

// Analyze scores the given event history for the key. With zero events
// it returns an all-zero score.
func (d *AnomalyDetector) Analyze(key string, events []AnomalyEvent) AnomalyScore {
	if len(events) == 0 {
		return AnomalyScore{}
	}

	now := d.clock()
	recent := recentEvents(events, now.Add(-recentWindow))

	score := AnomalyScore{
		Burst:       d.burstScore(key, len(recent)),
		Duplication: duplicationScore(recent),
		Entropy:     entropyScore(recent),
		Velocity:    velocityScore(events),
	}

	overall := score.Burst*d.weights.Burst +
		score.Duplication*d.weights.Duplication +
		score.Entropy*d.weights.Entropy +
		score.Velocity*d.weights.Velocity

	score.Overall = clamp01(overall)

	return score
}

// UpdateBaseline feeds one per-minute rate observation into the key's
// exponential moving average.
func (d *AnomalyDetector) UpdateBaseline(key string, value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, ok := d.baselines[key]
	if !ok {
		d.baselines[key] = value

		return
	}

	d.baselines[key] = d.alpha*value + (1-d.alpha)*prev
}

// Baseline returns the key's current EMA baseline, or the configured
// default when no prior data exists.
func (d *AnomalyDetector) Baseline(key string) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if b, ok := d.baselines[key]; ok && b > 0 {
		return b
	}

	return d.baselineDefault
}

// ForgetBaseline drops the key's baseline. Used by cleanup when a key's
// event history disappears entirely.
func (d *AnomalyDetector) ForgetBaseline(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.baselines, key)
}

// burstScore: ratio of last-minute volume to the EMA baseline. 0 below
// baseline, linear ramp over (1x, 3x], сатурация на 3x — дальше рост
// отношения уже ничего не добавляет, компонент зажат единицей.
func (d *AnomalyDetector) burstScore(key string, recentCount int) float64 {
	baseline := d.Baseline(key)

	ratio := float64(recentCount) / baseline

	switch {
	case ratio <= 1:
		return 0
	case ratio <= 3: //nolint: gomnd
		return (ratio - 1) / 2 //nolint: gomnd
	default:
		return 1
	}
}

// duplicationScore: fraction of last-minute events that are "extra"
// occurrences of an identical (type, target, identity) tuple.
func duplicationScore(recent []AnomalyEvent) float64 {
	if len(recent) == 0 {
		return 0
	}

	counts := make(map[string]int, len(recent))
	for _, e := range recent {
		counts[e.tupleDigest()]++
	}

	duplicates := 0

	for _, n := range counts {
		if n > 1 {
			duplicates += n - 1
		}
	}

	return clamp01(float64(duplicates) / float64(len(recent)))
}

// entropyScore: Shannon entropy of the UA hash distribution, inverted
// and normalized so that low diversity (a scripted-client signature)
// scores high. With a single distinct UA hash we fall back to the
// character-level entropy of the hash string itself, so a single-source
// attacker does not trivially read as "entropy 0, therefore safe".
func entropyScore(recent []AnomalyEvent) float64 {
	if len(recent) == 0 {
		return 0
	}

	counts := make(map[string]int, len(recent))
	for _, e := range recent {
		counts[e.UAHash]++
	}

	if len(counts) == 1 {
		var only string
		for ua := range counts {
			only = ua
		}

		return clamp01(1 - charEntropy(only)/entropyNormalization)
	}

	entropy := 0.0
	total := float64(len(recent))

	for _, n := range counts {
		p := float64(n) / total
		entropy -= p * math.Log2(p)
	}

	return clamp01(1 - entropy/entropyNormalization)
}

// velocityScore: acceleration of inter-arrival intervals. For every pair
// of consecutive intervals where the later one is shorter, accumulate
// the relative shrinkage; normalize by the interval count. Постоянный
// темп даёт 0, ускоряющийся поток — тем ближе к 1, чем резче ускорение.
func velocityScore(events []AnomalyEvent) float64 {
	if len(events) < 3 { //nolint: gomnd
		return 0
	}

	sorted := make([]AnomalyEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	intervals := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		intervals = append(intervals,
			sorted[i].Timestamp.Sub(sorted[i-1].Timestamp).Seconds())
	}

	accel := 0.0

	for i := 1; i < len(intervals); i++ {
		prev, curr := intervals[i-1], intervals[i]
		if curr < prev && prev > 0 {
			accel += (prev - curr) / prev
		}
	}

	return clamp01(accel / float64(len(intervals)))
}

// charEntropy is the character-level Shannon entropy of a string.
func charEntropy(s string) float64 {
	if s == "" {
		return 0
	}

	counts := make(map[rune]int, len(s))
	for _, r := range s {
		counts[r]++
	}

	entropy := 0.0
	total := float64(len(s))

	for _, n := range counts {
		p := float64(n) / total
		entropy -= p * math.Log2(p)
	}

	return entropy
}

func recentEvents(events []AnomalyEvent, cutoff time.Time) []AnomalyEvent {
	rv := make([]AnomalyEvent, 0, len(events))

	for _, e := range events {
		if !e.Timestamp.Before(cutoff) {
			rv = append(rv, e)
		}
	}

	return rv
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
