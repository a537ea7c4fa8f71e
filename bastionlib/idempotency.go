package bastionlib

import (
	"time"

	cache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// IdempotencyStore maps a client-supplied idempotency key to a
// previously computed result so that a retried request does not
// re-execute a side effect.
//
// Записи write-once: конкурентные вызовы с одним и тем же невиданным
// ключом сериализуются через singleflight — побочный эффект выполняется
// ровно один раз, все вызывающие получают одинаковый результат.
type IdempotencyStore struct {
	cache *cache.Cache
	group singleflight.Group
}

// NewIdempotencyStore builds a store. sweepEvery controls the periodic
// eviction of expired records; expired records are additionally dropped
// lazily on lookup, so the sweep only bounds memory.
func NewIdempotencyStore(sweepEvery time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		// TTL задаётся на каждую запись при Set, дефолт не используется.
		cache: cache.New(cache.NoExpiration, sweepEvery),
	}
}

// Execute runs fn at most once per live key.
//
// If an unexpired record exists for key, its stored result is returned
// without invoking fn and replayed=true. An empty key means the caller
// opted out of deduplication: fn runs unconditionally.
//
// Failed executions are not recorded: a retry after an error runs fn
// again. Only a successful result becomes the key's canonical answer.
func (s *IdempotencyStore) Execute(key string, ttl time.Duration, fn func() (any, error)) (result any, replayed bool, err error) {
	if key == "" {
		result, err = fn()

		return result, false, err
	}

	if v, ok := s.cache.Get(key); ok {
		return v, true, nil
	}

	executed := false

	v, err, _ := s.group.Do(key, func() (any, error) {
		// Double-check: другой вызов мог записать результат между
		// нашим Get и входом в singleflight.
		if v, ok := s.cache.Get(key); ok {
			return v, nil
		}

		v, err := fn()
		if err != nil {
			return nil, err
		}

		executed = true
		s.cache.Set(key, v, ttl)

		return v, nil
	})
	if err != nil {
		return nil, false, err
	}

	return v, !executed, nil
}

// Size returns the number of live records, expired-but-unswept included.
func (s *IdempotencyStore) Size() int {
	return s.cache.ItemCount()
}

// Close drops every record. go-cache владеет своим janitor'ом и
// останавливает его финализатором, отдельного stop-канала здесь нет.
func (s *IdempotencyStore) Close() {
	s.cache.Flush()
}
