package bastionlib

import (
	"sort"
	"sync"
	"time"
)

// qpsBucketName — служебный bucket для высокочастотного QPS-счётчика
// breaker'а. Живёт в общем RateLimitStore, но пересечься с прикладными
// bucket'ами не может: имя зарезервировано.
const qpsBucketName = "_cb.qps"

// Defaults of the circuit breaker escalation. IPQPSMax has no default
// here: zero means the QPS guard is disabled.
const (
	DefaultBreakerIPQPSMax           = 25
	DefaultBreakerBan                = 10 * time.Minute
	DefaultBreakerViolationThreshold = 5
	DefaultBreakerViolationWindow    = time.Minute
)

// BreakerSettings are the runtime-adjustable knobs of the circuit
// breaker. The struct is treated as an immutable snapshot: see
// Guard.ApplyBreakerSettings.
type BreakerSettings struct {
	// IPQPSMax is the per-IP requests-per-second threshold. Exceeding
	// it counts as one violation.
	IPQPSMax int

	// Ban is how long an identity stays banned once the breaker opens.
	Ban time.Duration

	// ViolationThreshold is how many violations within ViolationWindow
	// open the circuit.
	ViolationThreshold int

	// ViolationWindow is the rolling observation interval for
	// violations.
	ViolationWindow time.Duration
}

// withDefaults fills the escalation knobs. Нулевой порог или нулевой
// бан сделали бы escalation бессмысленной (мгновенный бан либо никакого
// бана вовсе), поэтому непозитивные значения заменяются дефолтами.
// IPQPSMax не трогаем: ноль там — осознанное отключение QPS guard'а.
func (b BreakerSettings) withDefaults() BreakerSettings {
	if b.Ban <= 0 {
		b.Ban = DefaultBreakerBan
	}

	if b.ViolationThreshold <= 0 {
		b.ViolationThreshold = DefaultBreakerViolationThreshold
	}

	if b.ViolationWindow <= 0 {
		b.ViolationWindow = DefaultBreakerViolationWindow
	}

	return b
}

type circuitState struct {
	violations      int
	violationsSince time.Time
	bannedUntil     time.Time
}

// BanInfo describes one currently banned identity for operator display.
type BanInfo struct {
	// IPHashShort is a truncated identity hash, safe to show in admin
	// tooling.
	IPHashShort string

	// Until is when the ban expires.
	Until time.Time
}

// CircuitBreaker tracks per-identity QPS through the shared fixed-window
// store and escalates sustained overload to a timed ban.
//
// Упрощённая 2-state машина в духе cooldown breaker'а: Available и
// Banned, без HalfOpen — для abuse-защиты полуоткрытое состояние не
// нужно, бан просто истекает по таймеру.
type CircuitBreaker struct {
	mu       sync.Mutex
	states   map[string]*circuitState
	rates    *RateLimitStore
	settings BreakerSettings

	clock func() time.Time
}

// NewCircuitBreaker builds a breaker on top of an existing rate store.
// The store is shared, not owned: closing the breaker's lifecycle is the
// store owner's job.
func NewCircuitBreaker(rates *RateLimitStore, settings BreakerSettings) *CircuitBreaker {
	return &CircuitBreaker{
		states:   make(map[string]*circuitState),
		rates:    rates,
		settings: settings.withDefaults(),
		clock:    time.Now,
	}
}

// Guard reports whether a request from the given identity may proceed.
// A banned identity is rejected without touching the QPS bucket, so the
// ban itself does not generate further bookkeeping. Exceeding the QPS
// bucket rejects the request and records a violation.
func (c *CircuitBreaker) Guard(ipHash string) bool {
	if c.IsBanned(ipHash) {
		return false
	}

	c.mu.Lock()
	settings := c.settings
	c.mu.Unlock()

	if settings.IPQPSMax <= 0 {
		return true
	}

	decision := c.rates.Consume(
		BucketKey{Bucket: qpsBucketName, IPHash: ipHash},
		time.Second, settings.IPQPSMax, 1)
	if decision.Allowed {
		return true
	}

	c.RecordViolation(ipHash)

	return false
}

// IsBanned reports whether the identity is currently banned.
func (c *CircuitBreaker) IsBanned(ipHash string) bool {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.states[ipHash]
	if !ok {
		return false
	}

	if !state.bannedUntil.IsZero() && now.Before(state.bannedUntil) {
		return true
	}

	// Бан истёк — чистим лениво, не дожидаясь sweep'а.
	if !state.bannedUntil.IsZero() {
		delete(c.states, ipHash)
	}

	return false
}

// BannedUntil returns the ban expiry for the identity, zero if it is not
// banned.
func (c *CircuitBreaker) BannedUntil(ipHash string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state, ok := c.states[ipHash]; ok {
		return state.bannedUntil
	}

	return time.Time{}
}

// RecordViolation counts one rate violation against the identity within
// the rolling observation window and promotes it to a ban once the
// threshold is crossed.
//
// A violation while already banned extends the ban: bannedUntil is
// monotonically the latest expiry, never an earlier one.
func (c *CircuitBreaker) RecordViolation(ipHash string) {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.states[ipHash]
	if !ok {
		state = &circuitState{violationsSince: now}
		c.states[ipHash] = state
	}

	if !state.bannedUntil.IsZero() && now.Before(state.bannedUntil) {
		if until := now.Add(c.settings.Ban); until.After(state.bannedUntil) {
			state.bannedUntil = until
		}

		return
	}

	if now.Sub(state.violationsSince) > c.settings.ViolationWindow {
		state.violations = 0
		state.violationsSince = now
	}

	state.violations++

	if c.settings.ViolationThreshold > 0 && state.violations >= c.settings.ViolationThreshold {
		state.bannedUntil = now.Add(c.settings.Ban)
		// Счётчик сбрасывается при открытии: после истечения бана
		// identity начинает с чистого листа.
		state.violations = 0
	}
}

// Unban is an explicit administrative override. It clears the ban and
// the violation counter and reports whether the identity was actually
// banned (false means a no-op).
func (c *CircuitBreaker) Unban(ipHash string) bool {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.states[ipHash]
	if !ok {
		return false
	}

	wasBanned := !state.bannedUntil.IsZero() && now.Before(state.bannedUntil)

	delete(c.states, ipHash)

	return wasBanned
}

// Banned returns the current list of banned identities, hash-truncated
// for operator display, sorted for stable output.
func (c *CircuitBreaker) Banned() []BanInfo {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	rv := make([]BanInfo, 0, len(c.states))

	for ipHash, state := range c.states {
		if !state.bannedUntil.IsZero() && now.Before(state.bannedUntil) {
			rv = append(rv, BanInfo{
				IPHashShort: HashShort(ipHash),
				Until:       state.bannedUntil,
			})
		}
	}

	sort.Slice(rv, func(i, j int) bool {
		return rv[i].IPHashShort < rv[j].IPHashShort
	})

	return rv
}

// OpenCount returns the number of currently open circuits.
func (c *CircuitBreaker) OpenCount() int {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0

	for _, state := range c.states {
		if !state.bannedUntil.IsZero() && now.Before(state.bannedUntil) {
			count++
		}
	}

	return count
}

// ApplySettings atomically replaces the breaker settings snapshot.
// Existing bans keep their original expiry.
func (c *CircuitBreaker) ApplySettings(settings BreakerSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.settings = settings.withDefaults()
}

// Settings returns the current settings snapshot.
func (c *CircuitBreaker) Settings() BreakerSettings {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.settings
}
