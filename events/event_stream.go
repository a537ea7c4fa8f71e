package events

import (
	"context"
	"math/rand"
	"runtime"
	"sync/atomic"

	"github.com/OneOfOne/xxhash"
	"github.com/promptdeck/bastion/bastionlib"
)

// EventStream is a default implementation of the
// [bastionlib.EventStream] interface.
//
// EventStream manages a set of goroutines, observers. Main
// responsibility of the event stream is to route an event to relevant
// observer based on some hash so each observer will have all events
// which belong to some identity.
//
// Thus, EventStream can spawn many observers.
type EventStream struct {
	ctx       context.Context
	ctxCancel context.CancelFunc
	chans     []chan bastionlib.Event

	// dropped считает количество потерянных событий при overflow.
	// Указатель — EventStream использует value receiver, atomic.Uint64
	// содержит noCopy.
	dropped *atomic.Uint64
}

// Send delivers an event to its observer.
//
// EventRequestAllowed — высокочастотное событие (каждый пропущенный
// запрос на ingestion surface). При медленном consumer'е (GC pause у
// Prometheus handler'а) буфер заполняется, и блокировка здесь тормозила
// бы запросный путь — недопустимо для защитного слоя. Поэтому такие
// события отбрасываются при переполнении: метрики allowed чуть менее
// точные, зато запрос не ждёт.
//
// Остальные события (баны, burst'ы, аномалии) редкие и критичные для
// метрик и алертов — для них блокирующая доставка.
func (e EventStream) Send(ctx context.Context, evt bastionlib.Event) {
	var chanNo uint32

	if shardKey := evt.ShardKey(); shardKey != "" {
		chanNo = xxhash.ChecksumString32(shardKey)
	} else {
		chanNo = rand.Uint32()
	}

	ch := e.chans[int(chanNo)%len(e.chans)]

	if _, isAllowed := evt.(bastionlib.EventRequestAllowed); isAllowed {
		select {
		case <-ctx.Done():
		case <-e.ctx.Done():
		case ch <- evt:
		default:
			e.dropped.Add(1)
		}

		return
	}

	select {
	case <-ctx.Done():
	case <-e.ctx.Done():
	case ch <- evt:
	}
}

// Dropped возвращает количество отброшенных событий с момента старта.
func (e EventStream) Dropped() uint64 {
	return e.dropped.Load()
}

// Shutdown stops an event stream pipeline.
func (e EventStream) Shutdown() {
	e.ctxCancel()
}

// NewEventStream builds a new default event stream.
//
// If you give an empty array of observers, then NoopObserver is going
// to be used. If you give many observers, then they will process a
// message concurrently.
func NewEventStream(observerFactories []ObserverFactory) EventStream {
	if len(observerFactories) == 0 {
		observerFactories = append(observerFactories, NewNoopObserver)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rv := EventStream{
		ctx:       ctx,
		ctxCancel: cancel,
		chans:     make([]chan bastionlib.Event, runtime.NumCPU()),
		dropped:   &atomic.Uint64{},
	}

	for i := 0; i < runtime.NumCPU(); i++ {
		// Буфер 64: сглаживает всплески, не давая request path
		// дожидаться observer'ов.
		rv.chans[i] = make(chan bastionlib.Event, 64)

		if len(observerFactories) == 1 {
			go eventStreamProcessor(ctx, rv.chans[i], observerFactories[0]())
		} else {
			go eventStreamProcessor(ctx, rv.chans[i], newMultiObserver(observerFactories))
		}
	}

	return rv
}

func eventStreamProcessor(ctx context.Context, eventChan <-chan bastionlib.Event, observer Observer) { //nolint: cyclop
	defer observer.Shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-eventChan:
			switch typedEvt := evt.(type) {
			case bastionlib.EventRequestAllowed:
				observer.EventRequestAllowed(typedEvt)
			case bastionlib.EventRateLimited:
				observer.EventRateLimited(typedEvt)
			case bastionlib.EventCircuitBanned:
				observer.EventCircuitBanned(typedEvt)
			case bastionlib.EventCircuitRejected:
				observer.EventCircuitRejected(typedEvt)
			case bastionlib.EventBurstDetected:
				observer.EventBurstDetected(typedEvt)
			case bastionlib.EventAnomalyAlert:
				observer.EventAnomalyAlert(typedEvt)
			case bastionlib.EventIdempotentReplay:
				observer.EventIdempotentReplay(typedEvt)
			case bastionlib.EventShadowBanHit:
				observer.EventShadowBanHit(typedEvt)
			case bastionlib.EventStoreSize:
				observer.EventStoreSize(typedEvt)
			case bastionlib.EventFailOpen:
				observer.EventFailOpen(typedEvt)
			}
		}
	}
}
