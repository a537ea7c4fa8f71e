package bastionlib

import (
	"strconv"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
	boom "github.com/tylertreat/BoomFilters"
)

// Default bounds of a per-key event history.
const (
	DefaultMaxEventsPerKey = 1000
	DefaultMaxEventAge     = 24 * time.Hour
)

// Defaults of the duplicate-sighting bloom filter, same shape as any
// bounded-memory streaming filter: fixed allocation, configured false
// positive rate.
const (
	DefaultDuplicateFilterSize      = 1024 * 1024 // bytes
	DefaultDuplicateFilterErrorRate = 0.01
)

// AnomalyEvent is one observed occurrence on the ingestion surface.
// Events are immutable after creation: the collector appends and drops
// them, never rewrites.
type AnomalyEvent struct {
	// Timestamp is when the event happened.
	Timestamp time.Time

	// Type is the action kind, e.g. "comment.create" or "vote".
	Type string

	// UserID is the acting user, if authenticated.
	UserID string

	// IPHash is the hashed client IP.
	IPHash string

	// UAHash is the hashed client User-Agent.
	UAHash string

	// RuleID is the target entity, if the action has one.
	RuleID string

	// Metadata carries optional free-form details for alerting.
	Metadata map[string]string
}

// tupleDigest identifies an identical (type, target, identity) repeat.
func (e AnomalyEvent) tupleDigest() string {
	identity := e.UserID
	if identity == "" {
		identity = e.IPHash
	}

	return e.Type + "|" + e.RuleID + "|" + identity
}

type collectorShard struct {
	mu     sync.Mutex
	events map[string][]AnomalyEvent
}

// EventCollector maintains rolling per-key event histories bounded both
// by count and by age, plus a stable-bloom fast path answering "has this
// exact (type, target, identity) tuple been seen within this minute
// already". The bloom answer is probabilistic (its false positive rate
// is configured), so it is used only to skip exact counting for
// first-time tuples, never to reject on its own.
type EventCollector struct {
	shards [rateStoreShards]*collectorShard

	maxPerKey int
	maxAge    time.Duration

	filterMu  sync.Mutex
	dupFilter *boom.StableBloomFilter

	sweepEvery time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once

	onKeyDrop func(keys []string)

	clock func() time.Time
}

// CollectorOpts configures an EventCollector. Zero values fall back to
// the package defaults.
type CollectorOpts struct {
	MaxEventsPerKey int
	MaxEventAge     time.Duration

	// DuplicateFilterSize is a memory allocation for the bloom filter
	// in bytes.
	DuplicateFilterSize uint

	// DuplicateFilterErrorRate is a desired false positive rate.
	DuplicateFilterErrorRate float64

	SweepEvery time.Duration

	// OnKeyDrop is called by Cleanup with the keys whose histories
	// expired entirely, so owners of derived per-key state (baselines,
	// cached scores) can drop it too.
	OnKeyDrop func(keys []string)
}

// NewEventCollector builds a collector and starts its cleanup loop.
func NewEventCollector(opts CollectorOpts) *EventCollector {
	if opts.MaxEventsPerKey == 0 {
		opts.MaxEventsPerKey = DefaultMaxEventsPerKey
	}

	if opts.MaxEventAge == 0 {
		opts.MaxEventAge = DefaultMaxEventAge
	}

	if opts.DuplicateFilterSize == 0 {
		opts.DuplicateFilterSize = DefaultDuplicateFilterSize
	}

	if opts.DuplicateFilterErrorRate <= 0 {
		opts.DuplicateFilterErrorRate = DefaultDuplicateFilterErrorRate
	}

	filter := boom.NewDefaultStableBloomFilter(
		opts.DuplicateFilterSize*8, opts.DuplicateFilterErrorRate)
	filter.SetHash(xxhash.New64())

	c := &EventCollector{
		maxPerKey:  opts.MaxEventsPerKey,
		maxAge:     opts.MaxEventAge,
		dupFilter:  filter,
		sweepEvery: opts.SweepEvery,
		stopCh:     make(chan struct{}),
		onKeyDrop:  opts.OnKeyDrop,
		clock:      time.Now,
	}

	for i := range c.shards {
		c.shards[i] = &collectorShard{
			events: make(map[string][]AnomalyEvent),
		}
	}

	if c.sweepEvery > 0 {
		go c.sweepLoop()
	}

	return c
}

// AddEvent appends an event to the key's history and trims the history
// to the configured count and age bounds.
func (c *EventCollector) AddEvent(key string, event AnomalyEvent) {
	shard := c.shard(key)
	now := c.clock()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	events := append(shard.events[key], event)

	// Сначала возрастная граница, потом количественная: старые события
	// выпадают в любом случае, лишние новые — только при переполнении.
	events = trimByAge(events, now.Add(-c.maxAge))

	if extra := len(events) - c.maxPerKey; extra > 0 {
		events = events[extra:]
	}

	shard.events[key] = events
}

// Events returns a copy of the key's history, optionally narrowed to
// events not older than maxAge (0 means the full retained history).
func (c *EventCollector) Events(key string, maxAge time.Duration) []AnomalyEvent {
	shard := c.shard(key)
	now := c.clock()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	events := shard.events[key]

	if maxAge > 0 {
		events = trimByAge(events, now.Add(-maxAge))
	}

	rv := make([]AnomalyEvent, len(events))
	copy(rv, events)

	return rv
}

// SeenTupleThisMinute reports whether an identical (type, target,
// identity) tuple has already been observed within the current minute.
// The very first sighting inserts the tuple and returns false.
func (c *EventCollector) SeenTupleThisMinute(event AnomalyEvent) bool {
	// Минутный суффикс: одинаковый tuple в разных минутах — это разные
	// записи фильтра, иначе дубликаты копились бы навсегда.
	minute := c.clock().Unix() / 60
	digest := event.tupleDigest() + "|" + strconv.FormatInt(minute, 10)

	c.filterMu.Lock()
	defer c.filterMu.Unlock()

	return c.dupFilter.TestAndAdd([]byte(digest))
}

// Cleanup drops events beyond the age bound and removes keys whose
// histories became empty. The removed keys are reported to OnKeyDrop
// and returned.
func (c *EventCollector) Cleanup() []string {
	cutoff := c.clock().Add(-c.maxAge)
	dropped := []string{}

	for _, shard := range c.shards {
		shard.mu.Lock()

		for key, events := range shard.events {
			events = trimByAge(events, cutoff)
			if len(events) == 0 {
				delete(shard.events, key)
				dropped = append(dropped, key)
			} else {
				shard.events[key] = events
			}
		}

		shard.mu.Unlock()
	}

	// Callback вне shard-замков: владелец производного состояния может
	// заходить обратно в collector.
	if len(dropped) > 0 && c.onKeyDrop != nil {
		c.onKeyDrop(dropped)
	}

	return dropped
}

// KeyCount returns the number of keys with retained histories.
func (c *EventCollector) KeyCount() int {
	total := 0

	for _, shard := range c.shards {
		shard.mu.Lock()
		total += len(shard.events)
		shard.mu.Unlock()
	}

	return total
}

// Close stops the cleanup loop.
func (c *EventCollector) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *EventCollector) shard(key string) *collectorShard {
	return c.shards[xxhash.ChecksumString32(key)&(rateStoreShards-1)]
}

func (c *EventCollector) sweepLoop() {
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

// trimByAge drops the leading events older than cutoff. Events arrive in
// append order, so the slice is already sorted by insertion time.
func trimByAge(events []AnomalyEvent, cutoff time.Time) []AnomalyEvent {
	idx := 0
	for idx < len(events) && events[idx].Timestamp.Before(cutoff) {
		idx++
	}

	return events[idx:]
}
