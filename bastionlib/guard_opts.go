package bastionlib

import (
	"net"
	"runtime"
	"time"
)

// Defaults of the guard pipeline.
const (
	DefaultSweepInterval        = time.Minute
	DefaultStoreSizeReportEvery = 10 * time.Second
	DefaultAlertInterval        = 30 * time.Second
	DefaultAlertScoreThreshold  = 0.7
	DefaultChallengeThreshold   = 0.5
	DefaultMaxIdenticalPerMin   = 10
)

// Limit is one named bucket's quota.
type Limit struct {
	// Max is the number of requests allowed per window.
	Max int

	// Window is the fixed window length.
	Window time.Duration
}

// TrustedNets reports whether an IP belongs to a trusted network which
// bypasses the protective pipeline (health checks, office egress). The
// default implementation lives in the ipset package.
type TrustedNets interface {
	Contains(ip net.IP) bool
}

// GuardOpts is a structure with settings to the guard.
//
// This is not required per se, but this is to shorten function
// signatures and give an ability to conveniently provide default
// values.
type GuardOpts struct {
	// IPSalt and UASalt are the hasher secrets. Rotating them
	// invalidates all existing hashed identities.
	//
	// These are mandatory settings.
	IPSalt string
	UASalt string

	// EventStream defines an instance of event stream.
	//
	// This is a mandatory setting.
	EventStream EventStream

	// Logger defines an instance of the logger.
	//
	// This is a mandatory setting.
	Logger Logger

	// Limits maps logical bucket names to their quotas.
	//
	// This is an optional setting: an unknown bucket simply has no
	// fixed-window limit.
	Limits map[string]Limit

	// Breaker configures the circuit breaker. A zero IPQPSMax disables
	// the QPS guard (bans can then only come from burst violations).
	//
	// This is an optional setting.
	Breaker BreakerSettings

	// MaxIdenticalEventsPerMin is the burst threshold for identical
	// (type, target, identity) tuples.
	//
	// This is an optional setting.
	MaxIdenticalEventsPerMin int

	// Collector configures the anomaly event collector.
	//
	// This is an optional setting.
	Collector CollectorOpts

	// Detector configures the anomaly detector.
	//
	// This is an optional setting.
	Detector DetectorOpts

	// Trending configures the engagement trending scorer exposed
	// through the guard.
	//
	// This is an optional setting.
	Trending ScorerOpts

	// TrustedNets, when set, short-circuits the pipeline for trusted
	// source addresses.
	//
	// This is an optional setting, ignored by default.
	TrustedNets TrustedNets

	// ShadowBanEnabled and ShadowBannedUserIDs configure the soft
	// shadow-ban signal.
	//
	// These are optional settings.
	ShadowBanEnabled    bool
	ShadowBannedUserIDs []string

	// ChallengeEnabled, ChallengeProvider and ChallengeScoreThreshold
	// configure the soft challenge signal. The provider string is
	// opaque to this layer; the HTTP layer renders the challenge.
	//
	// These are optional settings.
	ChallengeEnabled        bool
	ChallengeProvider       string
	ChallengeScoreThreshold float64

	// AlertScoreThreshold is the composite anomaly score above which
	// an alert event is emitted.
	//
	// This is an optional setting.
	AlertScoreThreshold float64

	// AlertInterval throttles alert events: at most one per interval.
	//
	// This is an optional setting.
	AlertInterval time.Duration

	// ScoringConcurrency is a size of the worker pool for background
	// anomaly scoring.
	//
	// This is an optional setting.
	ScoringConcurrency int

	// SweepInterval drives the background maintenance of all stores.
	//
	// This is an optional setting.
	SweepInterval time.Duration

	// StoreSizeReportEvery is how often store size gauges are emitted
	// into the event stream. Zero disables the reporter.
	//
	// This is an optional setting.
	StoreSizeReportEvery time.Duration
}

func (g GuardOpts) valid() error {
	switch {
	case g.EventStream == nil:
		return ErrEventStreamIsNotDefined
	case g.Logger == nil:
		return ErrLoggerIsNotDefined
	case g.IPSalt == "" || g.UASalt == "":
		return ErrSaltsAreNotDefined
	}

	return nil
}

func (g GuardOpts) getMaxIdenticalEventsPerMin() int {
	if g.MaxIdenticalEventsPerMin == 0 {
		return DefaultMaxIdenticalPerMin
	}

	return g.MaxIdenticalEventsPerMin
}

func (g GuardOpts) getChallengeScoreThreshold() float64 {
	if g.ChallengeScoreThreshold == 0 {
		return DefaultChallengeThreshold
	}

	return g.ChallengeScoreThreshold
}

func (g GuardOpts) getAlertScoreThreshold() float64 {
	if g.AlertScoreThreshold == 0 {
		return DefaultAlertScoreThreshold
	}

	return g.AlertScoreThreshold
}

func (g GuardOpts) getAlertInterval() time.Duration {
	if g.AlertInterval == 0 {
		return DefaultAlertInterval
	}

	return g.AlertInterval
}

func (g GuardOpts) getScoringConcurrency() int {
	if g.ScoringConcurrency == 0 {
		return runtime.NumCPU()
	}

	return g.ScoringConcurrency
}

func (g GuardOpts) getSweepInterval() time.Duration {
	if g.SweepInterval == 0 {
		return DefaultSweepInterval
	}

	return g.SweepInterval
}

func (g GuardOpts) getCollectorOpts() CollectorOpts {
	opts := g.Collector
	if opts.SweepEvery == 0 {
		opts.SweepEvery = g.getSweepInterval()
	}

	return opts
}

func (g GuardOpts) getLogger(name string) Logger {
	return g.Logger.Named(name)
}
