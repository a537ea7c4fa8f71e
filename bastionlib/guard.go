package bastionlib

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"
)

// Request describes one inbound action to check. Raw identifying data
// (RemoteIP, UserAgent) never leaves Check: it is hashed immediately and
// only the hashes participate in keys, events and logs.
type Request struct {
	// Bucket is a logical name of the protected action. An empty or
	// unconfigured bucket means no fixed-window quota applies.
	Bucket string

	// UserID is the authenticated user, if any.
	UserID string

	// RemoteIP is a raw remote address or forwarded-for header value.
	RemoteIP string

	// UserAgent is a raw User-Agent header value.
	UserAgent string

	// EventType and TargetID identify the action for duplication
	// accounting ("vote" on "rule-42"). Empty EventType skips the
	// identical-events burst check.
	EventType string
	TargetID  string
}

// Stats is an aggregate operator snapshot.
type Stats struct {
	RateWindows     int
	OpenCircuits    int
	Banned          []BanInfo
	AnomalyKeys     int
	IdempotencyKeys int
	FailOpens       uint64
}

// guardSettings is an immutable snapshot of the runtime-adjustable
// limits. Читатели берут снапшот атомарно и работают с ним до конца
// запроса: полуобновлённую конфигурацию увидеть нельзя.
type guardSettings struct {
	limits map[string]Limit
}

// Guard is the protective pipeline in front of the public ingestion
// surface. An inbound request is hashed, checked against the circuit
// breaker, the per-bucket quotas and the identical-events burst
// threshold; the executed action is then recorded for background
// anomaly scoring.
//
// Guard owns its stores and background goroutines: construct with
// NewGuard, dispose with Close. A process-wide instance, if desired,
// belongs to the application's composition root, not to this package.
type Guard struct {
	ctx       context.Context
	ctxCancel context.CancelFunc

	hasher    *Hasher
	rates     *RateLimitStore
	breaker   *CircuitBreaker
	idem      *IdempotencyStore
	collector *EventCollector
	detector  *AnomalyDetector
	scorer    *TrendingScorer

	settings atomic.Pointer[guardSettings]

	trusted     TrustedNets
	eventStream EventStream
	logger      Logger

	shadowMu     sync.RWMutex
	shadowBanned map[string]struct{}
	shadowOn     bool

	challengeOn        bool
	challengeProvider  string
	challengeThreshold float64

	maxIdenticalPerMin int

	scorePool      *ants.PoolWithFunc
	alertLimiter   *rate.Limiter
	alertThreshold float64

	scoresMu   sync.RWMutex
	lastScores map[string]float64

	failOpens atomic.Uint64
}

// NewGuard assembles the pipeline.
func NewGuard(opts GuardOpts) (*Guard, error) {
	if err := opts.valid(); err != nil {
		return nil, fmt.Errorf("invalid guard options: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	rates := NewRateLimitStore(opts.getSweepInterval())

	g := &Guard{
		ctx:                ctx,
		ctxCancel:          cancel,
		hasher:             NewHasher(opts.IPSalt, opts.UASalt),
		rates:              rates,
		breaker:            NewCircuitBreaker(rates, opts.Breaker),
		idem:               NewIdempotencyStore(opts.getSweepInterval()),
		detector:           NewAnomalyDetector(opts.Detector),
		scorer:             NewTrendingScorer(opts.Trending),
		trusted:            opts.TrustedNets,
		eventStream:        opts.EventStream,
		logger:             opts.getLogger("guard"),
		shadowBanned:       make(map[string]struct{}, len(opts.ShadowBannedUserIDs)),
		shadowOn:           opts.ShadowBanEnabled,
		challengeOn:        opts.ChallengeEnabled,
		challengeProvider:  opts.ChallengeProvider,
		challengeThreshold: opts.getChallengeScoreThreshold(),
		maxIdenticalPerMin: opts.getMaxIdenticalEventsPerMin(),
		alertLimiter:       rate.NewLimiter(rate.Every(opts.getAlertInterval()), 1),
		alertThreshold:     opts.getAlertScoreThreshold(),
		lastScores:         make(map[string]float64),
	}

	// Collector создаётся после g: его cleanup выбрасывает производное
	// per-key состояние guard'а (baseline, последний score) вместе с
	// историей.
	collectorOpts := opts.getCollectorOpts()
	collectorOpts.OnKeyDrop = g.forgetKeys
	g.collector = NewEventCollector(collectorOpts)

	g.settings.Store(&guardSettings{limits: copyLimits(opts.Limits)})

	for _, uid := range opts.ShadowBannedUserIDs {
		g.shadowBanned[uid] = struct{}{}
	}

	pool, err := ants.NewPoolWithFunc(opts.getScoringConcurrency(),
		func(arg interface{}) {
			g.scoreKey(arg.(string)) //nolint: forcetypeassert
		},
		ants.WithLogger(opts.getLogger("ants")),
		ants.WithNonblocking(true))
	if err != nil {
		cancel()

		return nil, fmt.Errorf("cannot initialize scoring pool: %w", err)
	}

	g.scorePool = pool

	if opts.StoreSizeReportEvery > 0 {
		go g.reportStoreSizes(opts.StoreSizeReportEvery)
	}

	return g, nil
}

// Check runs the protective pipeline for one request and returns a
// Verdict. Check never returns an error: protective checks fail open —
// an unexpected internal failure is logged and the request is allowed,
// availability over strictness.
func (g *Guard) Check(ctx context.Context, req Request) (verdict Verdict) {
	ipHash := g.hasher.HashIP(req.RemoteIP)

	defer func() {
		if r := recover(); r != nil {
			g.failOpens.Add(1)
			g.logger.BindStr("ip", HashShort(ipHash)).
				WarningError("protective check failed open",
					fmt.Errorf("panic: %v", r))
			g.eventStream.Send(ctx, NewEventFailOpen(ipHash))

			verdict = Verdict{Allowed: true}
		}
	}()

	uaHash := g.hasher.HashUserAgent(req.UserAgent)

	if g.isTrusted(req.RemoteIP) {
		g.eventStream.Send(ctx, NewEventRequestAllowed(ipHash, req.Bucket))

		return g.allowedVerdict(ctx, req, ipHash, -1)
	}

	if g.breaker.IsBanned(ipHash) {
		return g.bannedVerdict(ctx, ipHash)
	}

	if !g.breaker.Guard(ipHash) {
		// Guard только что записал violation; она могла открыть
		// circuit прямо сейчас.
		if until := g.breaker.BannedUntil(ipHash); !until.IsZero() {
			g.eventStream.Send(ctx, NewEventCircuitBanned(ipHash, until))
			g.logger.BindStr("ip", HashShort(ipHash)).
				Warning("circuit opened, identity banned")

			return g.bannedVerdict(ctx, ipHash)
		}

		g.eventStream.Send(ctx, NewEventCircuitRejected(ipHash))

		return Verdict{
			Allowed:    false,
			Reason:     ReasonTooManyRequests,
			Message:    "too many requests, slow down",
			RetryAfter: time.Second,
		}
	}

	remaining := -1

	if limit, ok := g.bucketLimit(req.Bucket); ok {
		key := BucketKey{Bucket: req.Bucket, UserID: req.UserID, IPHash: ipHash}

		decision := g.rates.Consume(key, limit.Window, limit.Max, 1)
		if !decision.Allowed {
			g.eventStream.Send(ctx,
				NewEventRateLimited(ipHash, req.Bucket, decision.RetryIn))

			return Verdict{
				Allowed:    false,
				Reason:     ReasonEndpointRateLimit,
				Message:    fmt.Sprintf("rate limit for %s exceeded", req.Bucket),
				RetryAfter: decision.RetryIn,
				Remaining:  decision.Remaining,
			}
		}

		remaining = decision.Remaining
	}

	if rejected, retryIn := g.checkBurst(ctx, req, ipHash, uaHash); rejected {
		return Verdict{
			Allowed:    false,
			Reason:     ReasonBurstDetected,
			Message:    "burst of identical events detected",
			RetryAfter: retryIn,
		}
	}

	g.eventStream.Send(ctx, NewEventRequestAllowed(ipHash, req.Bucket))

	return g.allowedVerdict(ctx, req, ipHash, remaining)
}

// Observe records an executed action into the anomaly event collector
// and schedules background scoring for its identity. It is meant to be
// called after the underlying action succeeded.
func (g *Guard) Observe(ctx context.Context, req Request) {
	ipHash := g.hasher.HashIP(req.RemoteIP)
	uaHash := g.hasher.HashUserAgent(req.UserAgent)

	event := AnomalyEvent{
		Timestamp: time.Now(),
		Type:      req.EventType,
		UserID:    req.UserID,
		IPHash:    ipHash,
		UAHash:    uaHash,
		RuleID:    req.TargetID,
	}

	g.collector.AddEvent(ipHash, event)

	// Скоринг в фоне и без блокировки: при переполнении пула очередное
	// обновление score просто пропускается, запросный путь не ждёт.
	if err := g.scorePool.Invoke(ipHash); err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			g.logger.Debug("scoring pool is overloaded, skipping")

			return
		}

		if !errors.Is(err, ants.ErrPoolClosed) {
			g.logger.DebugError("cannot schedule scoring", err)
		}
	}
}

// Execute wraps a side-effecting operation with idempotency. An empty
// key opts out of deduplication.
func (g *Guard) Execute(ctx context.Context, key string, ttl time.Duration,
	fn func() (any, error),
) (any, error) {
	result, replayed, err := g.idem.Execute(key, ttl, fn)
	if err != nil {
		return nil, err
	}

	if replayed {
		g.eventStream.Send(ctx, NewEventIdempotentReplay(key))
	}

	return result, nil
}

// Score returns the identity's last computed composite anomaly score.
func (g *Guard) Score(ipHash string) float64 {
	g.scoresMu.RLock()
	defer g.scoresMu.RUnlock()

	return g.lastScores[ipHash]
}

// TrendingScore computes the time-decayed engagement score for one
// content item.
func (g *Guard) TrendingScore(metrics TrendingMetrics) float64 {
	return g.scorer.Score(metrics)
}

// RankTrending scores the given items and returns them sorted by
// descending trending score.
func (g *Guard) RankTrending(items []Ranked) []Ranked {
	return g.scorer.Rank(items)
}

// CategorizeTrending buckets a trending score for display.
func (g *Guard) CategorizeTrending(score float64) TrendingCategory {
	return g.scorer.Categorize(score)
}

// AnalyzeNow synchronously recomputes the anomaly score for an identity
// over its full retained history. Intended for admin tooling, not for
// the request path.
func (g *Guard) AnalyzeNow(ipHash string) AnomalyScore {
	return g.detector.Analyze(ipHash, g.collector.Events(ipHash, 0))
}

// Snapshot returns aggregate stats for the operator surface.
func (g *Guard) Snapshot() Stats {
	return Stats{
		RateWindows:     g.rates.Size(),
		OpenCircuits:    g.breaker.OpenCount(),
		Banned:          g.breaker.Banned(),
		AnomalyKeys:     g.collector.KeyCount(),
		IdempotencyKeys: g.idem.Size(),
		FailOpens:       g.failOpens.Load(),
	}
}

// Unban force-clears a ban by the hashed identity. Returns false if the
// identity was not banned.
func (g *Guard) Unban(ipHash string) bool {
	return g.breaker.Unban(ipHash)
}

// ResetLimits clears all rate-limit state.
func (g *Guard) ResetLimits() {
	g.rates.Reset()
}

// ApplyLimits validates a limits patch and atomically swaps the
// settings snapshot. In-flight requests finish against the snapshot
// they started with.
func (g *Guard) ApplyLimits(limits map[string]Limit) error {
	for name, limit := range limits {
		if limit.Max <= 0 || limit.Window <= 0 {
			return fmt.Errorf("limit %q must have positive max and window", name)
		}
	}

	g.settings.Store(&guardSettings{limits: copyLimits(limits)})

	return nil
}

// ApplyBreakerSettings validates and applies new circuit breaker
// settings. Existing bans keep their expiry.
func (g *Guard) ApplyBreakerSettings(settings BreakerSettings) error {
	if settings.IPQPSMax < 0 || settings.ViolationThreshold < 0 {
		return fmt.Errorf("breaker thresholds must not be negative")
	}

	g.breaker.ApplySettings(settings)

	return nil
}

// Close stops background goroutines and drops all state.
func (g *Guard) Close() {
	g.ctxCancel()
	g.scorePool.Release()
	g.rates.Close()
	g.collector.Close()
	g.idem.Close()
}

func (g *Guard) allowedVerdict(ctx context.Context, req Request, ipHash string, remaining int) Verdict {
	verdict := Verdict{
		Allowed:     true,
		Remaining:   remaining,
		AnomalyHint: g.Score(ipHash),
	}

	if g.shadowOn && req.UserID != "" {
		g.shadowMu.RLock()
		_, banned := g.shadowBanned[req.UserID]
		g.shadowMu.RUnlock()

		if banned {
			verdict.ShadowBanned = true
			g.eventStream.Send(ctx, NewEventShadowBanHit(req.UserID))
		}
	}

	if g.challengeOn && verdict.AnomalyHint >= g.challengeThreshold {
		verdict.ChallengeRequired = true
		verdict.ChallengeProvider = g.challengeProvider
	}

	return verdict
}

// forgetKeys drops the derived per-key state for identities whose event
// history expired entirely.
func (g *Guard) forgetKeys(keys []string) {
	g.scoresMu.Lock()
	for _, key := range keys {
		delete(g.lastScores, key)
	}
	g.scoresMu.Unlock()

	for _, key := range keys {
		g.detector.ForgetBaseline(key)
	}
}

func (g *Guard) bannedVerdict(ctx context.Context, ipHash string) Verdict {
	g.eventStream.Send(ctx, NewEventCircuitRejected(ipHash))

	retryAfter := time.Duration(0)
	if until := g.breaker.BannedUntil(ipHash); !until.IsZero() {
		retryAfter = time.Until(until)
	}

	return Verdict{
		Allowed:    false,
		Reason:     ReasonBanned,
		Message:    "sustained abuse detected, identity is temporarily banned",
		RetryAfter: retryAfter,
	}
}

// checkBurst enforces the identical-events-per-minute threshold. The
// bloom filter screens out first sightings, so one-off tuples never
// allocate a counter window; порог выдерживается с точностью до одного
// события — первое появление tuple в минуте не считается.
func (g *Guard) checkBurst(ctx context.Context, req Request, ipHash, uaHash string) (bool, time.Duration) {
	if g.maxIdenticalPerMin <= 0 || req.EventType == "" {
		return false, 0
	}

	event := AnomalyEvent{
		Type:   req.EventType,
		UserID: req.UserID,
		IPHash: ipHash,
		UAHash: uaHash,
		RuleID: req.TargetID,
	}

	if !g.collector.SeenTupleThisMinute(event) {
		return false, 0
	}

	key := BucketKey{
		Bucket: "_burst|" + req.EventType + "|" + req.TargetID,
		UserID: req.UserID,
		IPHash: ipHash,
	}

	decision := g.rates.Consume(key, time.Minute, g.maxIdenticalPerMin, 1)
	if decision.Allowed {
		return false, 0
	}

	g.breaker.RecordViolation(ipHash)
	g.eventStream.Send(ctx, NewEventBurstDetected(ipHash))
	g.logger.BindStr("ip", HashShort(ipHash)).
		BindStr("type", req.EventType).
		Warning("identical events burst detected")

	return true, decision.RetryIn
}

func (g *Guard) bucketLimit(bucket string) (Limit, bool) {
	if bucket == "" {
		return Limit{}, false
	}

	limit, ok := g.settings.Load().limits[bucket]

	return limit, ok
}

func (g *Guard) isTrusted(remoteIP string) bool {
	if g.trusted == nil {
		return false
	}

	ip := net.ParseIP(normalizeIP(remoteIP))
	if ip == nil {
		return false
	}

	return g.trusted.Contains(ip)
}

// scoreKey runs inside the ants pool.
func (g *Guard) scoreKey(key string) {
	events := g.collector.Events(key, 0)
	score := g.detector.Analyze(key, events)

	recent := 0
	cutoff := time.Now().Add(-recentWindow)

	for _, e := range events {
		if !e.Timestamp.Before(cutoff) {
			recent++
		}
	}

	g.detector.UpdateBaseline(key, float64(recent))

	g.scoresMu.Lock()
	g.lastScores[key] = score.Overall
	g.scoresMu.Unlock()

	if score.Overall >= g.alertThreshold && g.alertLimiter.Allow() {
		g.eventStream.Send(g.ctx, NewEventAnomalyAlert(key, score))
		g.logger.BindStr("key", HashShort(key)).
			BindFloat("score", score.Overall).
			Warning("anomalous activity detected")
	}
}

func (g *Guard) reportStoreSizes(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			stats := g.Snapshot()
			g.eventStream.Send(g.ctx, NewEventStoreSize(
				stats.RateWindows, stats.OpenCircuits,
				stats.AnomalyKeys, stats.IdempotencyKeys))
		}
	}
}

func copyLimits(limits map[string]Limit) map[string]Limit {
	rv := make(map[string]Limit, len(limits))
	for name, limit := range limits {
		rv[name] = limit
	}

	return rv
}
