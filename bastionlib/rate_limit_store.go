package bastionlib

import (
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
)

// rateStoreShards — количество шардов. Степень двойки, чтобы выбирать
// шард битовой маской. 16 шардов достаточно: критическая секция — это
// одно чтение и одна запись map, contention на запросном пути при таком
// количестве не наблюдается даже в бенчмарках с GOMAXPROCS ядрами.
const rateStoreShards = 16

// Decision is an outcome of a single Consume call (or a Window peek).
type Decision struct {
	// Allowed tells if the request fits into the current window.
	Allowed bool

	// Remaining is how much budget is left in the window after this
	// call.
	Remaining int

	// ResetIn is the time until the current window ends, regardless of
	// the outcome.
	ResetIn time.Duration

	// RetryIn is meaningful on rejection only: how long the caller
	// should back off before the window resets.
	RetryIn time.Duration
}

type rateWindow struct {
	count  int
	start  time.Time
	window time.Duration
}

type rateStoreShard struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
}

// RateLimitStore is a fixed-window counter store keyed by arbitrary
// composite keys. Each key has exactly one active window; a window is
// created lazily on first Consume and reset when the current time passes
// its end. Keys are fully independent.
//
// The store is safe for concurrent use. Consume is atomic per key.
type RateLimitStore struct {
	shards [rateStoreShards]*rateStoreShard

	sweepEvery time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once

	// clock подменяется только из внутренних тестов.
	clock func() time.Time
}

// NewRateLimitStore builds a store and starts its background sweep.
// sweepEvery bounds memory growth only: correctness never depends on the
// sweep, expired windows are also reset lazily on Consume.
func NewRateLimitStore(sweepEvery time.Duration) *RateLimitStore {
	s := &RateLimitStore{
		sweepEvery: sweepEvery,
		stopCh:     make(chan struct{}),
		clock:      time.Now,
	}

	for i := range s.shards {
		s.shards[i] = &rateStoreShard{
			windows: make(map[string]*rateWindow),
		}
	}

	if sweepEvery > 0 {
		go s.sweepLoop()
	}

	return s
}

// Consume tries to spend cost units of the key's budget within a fixed
// window of the given length and maximum.
//
// Rejected calls do not consume budget: the counter is never incremented
// past a rejection, so a client hammering an exhausted key cannot push
// its own reset further away.
func (s *RateLimitStore) Consume(key BucketKey, window time.Duration, maxRequests, cost int) Decision {
	k := key.String()
	shard := s.shard(k)
	now := s.clock()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	w, ok := shard.windows[k]
	if !ok || now.Sub(w.start) >= window {
		// Свежее окно. cost > maxRequests не может пройти никогда —
		// отклоняем детерминированно и окно не создаём (отказ не
		// тратит бюджет).
		if cost > maxRequests {
			return Decision{
				Allowed:   false,
				Remaining: maxRequests,
				ResetIn:   window,
				RetryIn:   window,
			}
		}

		shard.windows[k] = &rateWindow{
			count:  cost,
			start:  now,
			window: window,
		}

		return Decision{
			Allowed:   true,
			Remaining: maxRequests - cost,
			ResetIn:   window,
		}
	}

	resetIn := w.start.Add(window).Sub(now)

	if w.count+cost > maxRequests {
		return Decision{
			Allowed:   false,
			Remaining: maxRequests - w.count,
			ResetIn:   resetIn,
			RetryIn:   resetIn,
		}
	}

	w.count += cost

	return Decision{
		Allowed:   true,
		Remaining: maxRequests - w.count,
		ResetIn:   resetIn,
	}
}

// Window is a read-only peek at the key's current window. It never
// mutates state: if no window exists yet, a hypothetical full-budget one
// is reported instead of being started.
func (s *RateLimitStore) Window(key BucketKey, window time.Duration, maxRequests int) Decision {
	k := key.String()
	shard := s.shard(k)
	now := s.clock()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	w, ok := shard.windows[k]
	if !ok || now.Sub(w.start) >= window {
		return Decision{
			Allowed:   true,
			Remaining: maxRequests,
			ResetIn:   window,
		}
	}

	return Decision{
		Allowed:   w.count < maxRequests,
		Remaining: maxRequests - w.count,
		ResetIn:   w.start.Add(window).Sub(now),
	}
}

// Reset drops all windows. This is the operator's "clear all rate-limit
// state" override.
func (s *RateLimitStore) Reset() {
	for _, shard := range s.shards {
		shard.mu.Lock()
		shard.windows = make(map[string]*rateWindow)
		shard.mu.Unlock()
	}
}

// Size returns the number of tracked windows across all shards.
func (s *RateLimitStore) Size() int {
	total := 0

	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.windows)
		shard.mu.Unlock()
	}

	return total
}

// Close stops the background sweep. The store remains usable afterwards,
// it just stops bounding its own memory.
func (s *RateLimitStore) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *RateLimitStore) shard(key string) *rateStoreShard {
	return s.shards[xxhash.ChecksumString32(key)&(rateStoreShards-1)]
}

func (s *RateLimitStore) sweepLoop() {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes windows stale beyond their own length. Держим лок только
// на один шард за раз: запросы к остальным 15 шардам идут без задержки.
func (s *RateLimitStore) sweep() {
	now := s.clock()

	for _, shard := range s.shards {
		shard.mu.Lock()

		for k, w := range shard.windows {
			if now.Sub(w.start) >= 2*w.window {
				delete(shard.windows, k)
			}
		}

		shard.mu.Unlock()
	}
}
