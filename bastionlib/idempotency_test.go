package bastionlib

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type IdempotencyStoreTestSuite struct {
	suite.Suite

	store *IdempotencyStore
}

func (suite *IdempotencyStoreTestSuite) SetupTest() {
	suite.store = NewIdempotencyStore(time.Minute)
}

func (suite *IdempotencyStoreTestSuite) TearDownTest() {
	suite.store.Close()
}

func (suite *IdempotencyStoreTestSuite) TestFirstExecutionRuns() {
	result, replayed, err := suite.store.Execute("key1", time.Minute,
		func() (any, error) { return "created", nil })

	suite.NoError(err)
	suite.False(replayed)
	suite.Equal("created", result)
	suite.Equal(1, suite.store.Size())
}

func (suite *IdempotencyStoreTestSuite) TestRetryReplaysStoredResult() {
	calls := 0
	fn := func() (any, error) {
		calls++

		return "created", nil
	}

	suite.store.Execute("key1", time.Minute, fn) //nolint: errcheck

	result, replayed, err := suite.store.Execute("key1", time.Minute, fn)

	suite.NoError(err)
	suite.True(replayed)
	suite.Equal("created", result)
	suite.Equal(1, calls)
}

func (suite *IdempotencyStoreTestSuite) TestEmptyKeyOptsOut() {
	calls := 0
	fn := func() (any, error) {
		calls++

		return calls, nil
	}

	for i := 0; i < 3; i++ {
		_, replayed, err := suite.store.Execute("", time.Minute, fn)

		suite.NoError(err)
		suite.False(replayed)
	}

	suite.Equal(3, calls)
	suite.Equal(0, suite.store.Size())
}

func (suite *IdempotencyStoreTestSuite) TestErrorsAreNotCached() {
	calls := 0
	failing := func() (any, error) {
		calls++

		return nil, errors.New("downstream unavailable")
	}

	_, _, err := suite.store.Execute("key1", time.Minute, failing)
	suite.Error(err)

	result, replayed, err := suite.store.Execute("key1", time.Minute,
		func() (any, error) { return "recovered", nil })

	suite.NoError(err)
	suite.False(replayed)
	suite.Equal("recovered", result)
	suite.Equal(1, calls)
}

func (suite *IdempotencyStoreTestSuite) TestExpiredKeyReExecutes() {
	calls := 0
	fn := func() (any, error) {
		calls++

		return calls, nil
	}

	suite.store.Execute("key1", 10*time.Millisecond, fn) //nolint: errcheck

	time.Sleep(50 * time.Millisecond)

	_, replayed, err := suite.store.Execute("key1", 10*time.Millisecond, fn)

	suite.NoError(err)
	suite.False(replayed)
	suite.Equal(2, calls)
}

func (suite *IdempotencyStoreTestSuite) TestConcurrentCallersExecuteOnce() {
	calls := atomic.Int64{}
	fn := func() (any, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)

		return "created", nil
	}

	wg := &sync.WaitGroup{}

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			result, _, err := suite.store.Execute("key1", time.Minute, fn)

			suite.NoError(err)
			suite.Equal("created", result)
		}()
	}

	wg.Wait()

	suite.EqualValues(1, calls.Load())
}

func TestIdempotencyStore(t *testing.T) {
	t.Parallel()
	suite.Run(t, &IdempotencyStoreTestSuite{})
}
