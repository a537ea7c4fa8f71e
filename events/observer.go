package events

import (
	"github.com/promptdeck/bastion/bastionlib"
)

// Observer is a consumer of guard events. One observer instance is
// owned by exactly one stream goroutine, so implementations do not need
// to be thread safe.
type Observer interface {
	EventRequestAllowed(evt bastionlib.EventRequestAllowed)
	EventRateLimited(evt bastionlib.EventRateLimited)
	EventCircuitBanned(evt bastionlib.EventCircuitBanned)
	EventCircuitRejected(evt bastionlib.EventCircuitRejected)
	EventBurstDetected(evt bastionlib.EventBurstDetected)
	EventAnomalyAlert(evt bastionlib.EventAnomalyAlert)
	EventIdempotentReplay(evt bastionlib.EventIdempotentReplay)
	EventShadowBanHit(evt bastionlib.EventShadowBanHit)
	EventStoreSize(evt bastionlib.EventStoreSize)
	EventFailOpen(evt bastionlib.EventFailOpen)

	// Shutdown is called when the stream stops.
	Shutdown()
}

// ObserverFactory makes a new observer instance per stream goroutine.
type ObserverFactory func() Observer

// NewNoopObserver returns an observer which discards everything.
func NewNoopObserver() Observer {
	return noopObserver{}
}

type noopObserver struct{}

func (n noopObserver) EventRequestAllowed(bastionlib.EventRequestAllowed)     {}
func (n noopObserver) EventRateLimited(bastionlib.EventRateLimited)           {}
func (n noopObserver) EventCircuitBanned(bastionlib.EventCircuitBanned)       {}
func (n noopObserver) EventCircuitRejected(bastionlib.EventCircuitRejected)   {}
func (n noopObserver) EventBurstDetected(bastionlib.EventBurstDetected)       {}
func (n noopObserver) EventAnomalyAlert(bastionlib.EventAnomalyAlert)         {}
func (n noopObserver) EventIdempotentReplay(bastionlib.EventIdempotentReplay) {}
func (n noopObserver) EventShadowBanHit(bastionlib.EventShadowBanHit)         {}
func (n noopObserver) EventStoreSize(bastionlib.EventStoreSize)               {}
func (n noopObserver) EventFailOpen(bastionlib.EventFailOpen)                 {}
func (n noopObserver) Shutdown()                                              {}

type multiObserver struct {
	observers []Observer
}

func (m multiObserver) EventRequestAllowed(evt bastionlib.EventRequestAllowed) {
	for _, o := range m.observers {
		o.EventRequestAllowed(evt)
	}
}

func (m multiObserver) EventRateLimited(evt bastionlib.EventRateLimited) {
	for _, o := range m.observers {
		o.EventRateLimited(evt)
	}
}

func (m multiObserver) EventCircuitBanned(evt bastionlib.EventCircuitBanned) {
	for _, o := range m.observers {
		o.EventCircuitBanned(evt)
	}
}

func (m multiObserver) EventCircuitRejected(evt bastionlib.EventCircuitRejected) {
	for _, o := range m.observers {
		o.EventCircuitRejected(evt)
	}
}

func (m multiObserver) EventBurstDetected(evt bastionlib.EventBurstDetected) {
	for _, o := range m.observers {
		o.EventBurstDetected(evt)
	}
}

func (m multiObserver) EventAnomalyAlert(evt bastionlib.EventAnomalyAlert) {
	for _, o := range m.observers {
		o.EventAnomalyAlert(evt)
	}
}

func (m multiObserver) EventIdempotentReplay(evt bastionlib.EventIdempotentReplay) {
	for _, o := range m.observers {
		o.EventIdempotentReplay(evt)
	}
}

func (m multiObserver) EventShadowBanHit(evt bastionlib.EventShadowBanHit) {
	for _, o := range m.observers {
		o.EventShadowBanHit(evt)
	}
}

func (m multiObserver) EventStoreSize(evt bastionlib.EventStoreSize) {
	for _, o := range m.observers {
		o.EventStoreSize(evt)
	}
}

func (m multiObserver) EventFailOpen(evt bastionlib.EventFailOpen) {
	for _, o := range m.observers {
		o.EventFailOpen(evt)
	}
}

func (m multiObserver) Shutdown() {
	for _, o := range m.observers {
		o.Shutdown()
	}
}

func newMultiObserver(factories []ObserverFactory) Observer {
	observers := make([]Observer, len(factories))
	for i, factory := range factories {
		observers[i] = factory()
	}

	return multiObserver{observers: observers}
}
