package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/promptdeck/bastion/bastionlib"
	"github.com/stretchr/testify/suite"
)

// recordingObserver разделяется между goroutine'ами stream'а, поэтому
// здесь нужен мьютекс, хотя настоящие observer'ы его не требуют.
type recordingObserver struct {
	mu       sync.Mutex
	banned   int
	limited  int
	allowed  int
	shutdown int
}

func (r *recordingObserver) EventRequestAllowed(bastionlib.EventRequestAllowed) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.allowed++
}

func (r *recordingObserver) EventRateLimited(bastionlib.EventRateLimited) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.limited++
}

func (r *recordingObserver) EventCircuitBanned(bastionlib.EventCircuitBanned) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.banned++
}

func (r *recordingObserver) EventCircuitRejected(bastionlib.EventCircuitRejected)   {}
func (r *recordingObserver) EventBurstDetected(bastionlib.EventBurstDetected)       {}
func (r *recordingObserver) EventAnomalyAlert(bastionlib.EventAnomalyAlert)         {}
func (r *recordingObserver) EventIdempotentReplay(bastionlib.EventIdempotentReplay) {}
func (r *recordingObserver) EventShadowBanHit(bastionlib.EventShadowBanHit)         {}
func (r *recordingObserver) EventStoreSize(bastionlib.EventStoreSize)               {}
func (r *recordingObserver) EventFailOpen(bastionlib.EventFailOpen)                 {}

func (r *recordingObserver) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.shutdown++
}

func (r *recordingObserver) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.allowed, r.limited, r.banned
}

type EventStreamTestSuite struct {
	suite.Suite

	stream   EventStream
	observer *recordingObserver
	ctx      context.Context
}

func (suite *EventStreamTestSuite) SetupTest() {
	suite.observer = &recordingObserver{}
	suite.ctx = context.Background()
	suite.stream = NewEventStream([]ObserverFactory{
		func() Observer { return suite.observer },
	})
}

func (suite *EventStreamTestSuite) TearDownTest() {
	suite.stream.Shutdown()
}

func (suite *EventStreamTestSuite) TestEventsAreRouted() {
	suite.stream.Send(suite.ctx, bastionlib.NewEventRequestAllowed("ip1", "votes"))
	suite.stream.Send(suite.ctx, bastionlib.NewEventRateLimited("ip1", "votes", time.Second))
	suite.stream.Send(suite.ctx, bastionlib.NewEventCircuitBanned("ip1", time.Now()))

	suite.Eventually(func() bool {
		allowed, limited, banned := suite.observer.counts()

		return allowed == 1 && limited == 1 && banned == 1
	}, time.Second, 10*time.Millisecond)
}

func (suite *EventStreamTestSuite) TestSameShardKeyKeepsOrder() {
	for i := 0; i < 100; i++ {
		suite.stream.Send(suite.ctx, bastionlib.NewEventRequestAllowed("ip1", "votes"))
	}

	suite.Eventually(func() bool {
		allowed, _, _ := suite.observer.counts()

		return allowed+int(suite.stream.Dropped()) == 100
	}, time.Second, 10*time.Millisecond)
}

func (suite *EventStreamTestSuite) TestShutdownStopsObservers() {
	suite.stream.Shutdown()

	suite.Eventually(func() bool {
		suite.observer.mu.Lock()
		defer suite.observer.mu.Unlock()

		return suite.observer.shutdown > 0
	}, time.Second, 10*time.Millisecond)
}

func TestEventStream(t *testing.T) {
	t.Parallel()
	suite.Run(t, &EventStreamTestSuite{})
}
