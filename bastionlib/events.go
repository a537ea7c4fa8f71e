package bastionlib

import (
	"context"
	"time"
)

// Event is a message emitted by the guard pipeline into an event
// stream.
type Event interface {
	// ShardKey groups related events so a single observer sees all
	// events of one identity in order.
	ShardKey() string

	// Timestamp returns a time when this event was generated.
	Timestamp() time.Time
}

// EventStream is an abstraction which accepts events generated by the
// guard. Its default implementation lives in the events package;
// observers (Prometheus, statsd) attach there.
type EventStream interface {
	// Send delivers an event to observers. Implementations must not
	// block the request path on slow consumers.
	Send(ctx context.Context, evt Event)
}

type eventBase struct {
	shardKey string
	created  time.Time
}

func (e eventBase) ShardKey() string {
	return e.shardKey
}

func (e eventBase) Timestamp() time.Time {
	return e.created
}

// EventRequestAllowed is emitted for every request which passed the
// whole pipeline. Высокочастотное событие: stream режет его первым при
// переполнении.
type EventRequestAllowed struct {
	eventBase

	// Bucket is the consumed quota bucket, empty when no bucket limit
	// applied.
	Bucket string
}

// EventRateLimited is emitted when a bucket's fixed-window quota
// rejected a request.
type EventRateLimited struct {
	eventBase

	Bucket     string
	RetryAfter time.Duration
}

// EventCircuitBanned is emitted when the circuit breaker opens for an
// identity (a new ban, not every rejected request of an already banned
// one).
type EventCircuitBanned struct {
	eventBase

	IPHashShort string
	Until       time.Time
}

// EventCircuitRejected is emitted when a request is rejected because
// its identity is banned or over the QPS guard.
type EventCircuitRejected struct {
	eventBase
}

// EventBurstDetected is emitted when the identical-events-per-minute
// threshold trips.
type EventBurstDetected struct {
	eventBase

	IPHashShort string
}

// EventAnomalyAlert is emitted when a key's composite anomaly score
// crosses the alert threshold. Delivery is throttled by the guard, an
// anomaly flood must not become an alert flood.
type EventAnomalyAlert struct {
	eventBase

	Key   string
	Score AnomalyScore
}

// EventIdempotentReplay is emitted when an idempotency key was answered
// from cache instead of re-executing the side effect.
type EventIdempotentReplay struct {
	eventBase

	Key string
}

// EventShadowBanHit is emitted when a shadow-banned user performed an
// action which will be silently hidden.
type EventShadowBanHit struct {
	eventBase

	UserID string
}

// EventStoreSize is a periodic gauge feed with the sizes of the
// in-memory stores.
type EventStoreSize struct {
	eventBase

	RateWindows     int
	OpenCircuits    int
	AnomalyKeys     int
	IdempotencyKeys int
}

// EventFailOpen is emitted when an internal failure was swallowed and
// the request was allowed through.
type EventFailOpen struct {
	eventBase
}

func newEventBase(shardKey string) eventBase {
	return eventBase{
		shardKey: shardKey,
		created:  time.Now(),
	}
}

// NewEventRequestAllowed builds an EventRequestAllowed event.
func NewEventRequestAllowed(ipHash, bucket string) EventRequestAllowed {
	return EventRequestAllowed{
		eventBase: newEventBase(ipHash),
		Bucket:    bucket,
	}
}

// NewEventRateLimited builds an EventRateLimited event.
func NewEventRateLimited(ipHash, bucket string, retryAfter time.Duration) EventRateLimited {
	return EventRateLimited{
		eventBase:  newEventBase(ipHash),
		Bucket:     bucket,
		RetryAfter: retryAfter,
	}
}

// NewEventCircuitBanned builds an EventCircuitBanned event.
func NewEventCircuitBanned(ipHash string, until time.Time) EventCircuitBanned {
	return EventCircuitBanned{
		eventBase:   newEventBase(ipHash),
		IPHashShort: HashShort(ipHash),
		Until:       until,
	}
}

// NewEventCircuitRejected builds an EventCircuitRejected event.
func NewEventCircuitRejected(ipHash string) EventCircuitRejected {
	return EventCircuitRejected{
		eventBase: newEventBase(ipHash),
	}
}

// NewEventBurstDetected builds an EventBurstDetected event.
func NewEventBurstDetected(ipHash string) EventBurstDetected {
	return EventBurstDetected{
		eventBase:   newEventBase(ipHash),
		IPHashShort: HashShort(ipHash),
	}
}

// NewEventAnomalyAlert builds an EventAnomalyAlert event.
func NewEventAnomalyAlert(key string, score AnomalyScore) EventAnomalyAlert {
	return EventAnomalyAlert{
		eventBase: newEventBase(key),
		Key:       key,
		Score:     score,
	}
}

// NewEventIdempotentReplay builds an EventIdempotentReplay event.
func NewEventIdempotentReplay(key string) EventIdempotentReplay {
	return EventIdempotentReplay{
		eventBase: newEventBase(key),
		Key:       key,
	}
}

// NewEventShadowBanHit builds an EventShadowBanHit event.
func NewEventShadowBanHit(userID string) EventShadowBanHit {
	return EventShadowBanHit{
		eventBase: newEventBase(userID),
		UserID:    userID,
	}
}

// NewEventStoreSize builds an EventStoreSize event.
func NewEventStoreSize(rateWindows, openCircuits, anomalyKeys, idempotencyKeys int) EventStoreSize {
	return EventStoreSize{
		eventBase:       newEventBase(""),
		RateWindows:     rateWindows,
		OpenCircuits:    openCircuits,
		AnomalyKeys:     anomalyKeys,
		IdempotencyKeys: idempotencyKeys,
	}
}

// NewEventFailOpen builds an EventFailOpen event.
func NewEventFailOpen(ipHash string) EventFailOpen {
	return EventFailOpen{
		eventBase: newEventBase(ipHash),
	}
}
