package bastionlib

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type CircuitBreakerTestSuite struct {
	suite.Suite

	rates   *RateLimitStore
	breaker *CircuitBreaker
	now     time.Time
}

func (suite *CircuitBreakerTestSuite) SetupTest() {
	suite.now = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return suite.now }

	suite.rates = NewRateLimitStore(0)
	suite.rates.clock = clock

	suite.breaker = NewCircuitBreaker(suite.rates, BreakerSettings{
		IPQPSMax:           5,
		Ban:                10 * time.Minute,
		ViolationThreshold: 3,
		ViolationWindow:    time.Minute,
	})
	suite.breaker.clock = clock
}

func (suite *CircuitBreakerTestSuite) TearDownTest() {
	suite.rates.Close()
}

func (suite *CircuitBreakerTestSuite) advance(d time.Duration) {
	suite.now = suite.now.Add(d)
}

func (suite *CircuitBreakerTestSuite) TestViolationsOpenCircuit() {
	suite.breaker.RecordViolation("ip1")
	suite.breaker.RecordViolation("ip1")
	suite.False(suite.breaker.IsBanned("ip1"))

	suite.breaker.RecordViolation("ip1")

	suite.True(suite.breaker.IsBanned("ip1"))
	suite.Equal(suite.now.Add(10*time.Minute), suite.breaker.BannedUntil("ip1"))
	suite.Equal(1, suite.breaker.OpenCount())
}

func (suite *CircuitBreakerTestSuite) TestViolationWindowRolls() {
	suite.breaker.RecordViolation("ip1")
	suite.breaker.RecordViolation("ip1")

	suite.advance(2 * time.Minute)

	// Счётчик обнулился: эти два нарушения — уже новая серия.
	suite.breaker.RecordViolation("ip1")
	suite.breaker.RecordViolation("ip1")

	suite.False(suite.breaker.IsBanned("ip1"))
}

func (suite *CircuitBreakerTestSuite) TestBanExtendsMonotonically() {
	for i := 0; i < 3; i++ {
		suite.breaker.RecordViolation("ip1")
	}

	firstExpiry := suite.breaker.BannedUntil("ip1")

	suite.advance(5 * time.Minute)
	suite.breaker.RecordViolation("ip1")

	extended := suite.breaker.BannedUntil("ip1")

	suite.True(extended.After(firstExpiry))
	suite.Equal(suite.now.Add(10*time.Minute), extended)
}

func (suite *CircuitBreakerTestSuite) TestBanExpires() {
	for i := 0; i < 3; i++ {
		suite.breaker.RecordViolation("ip1")
	}

	suite.True(suite.breaker.IsBanned("ip1"))

	suite.advance(10*time.Minute + time.Second)

	suite.False(suite.breaker.IsBanned("ip1"))
	suite.Equal(0, suite.breaker.OpenCount())
}

func (suite *CircuitBreakerTestSuite) TestUnban() {
	for i := 0; i < 3; i++ {
		suite.breaker.RecordViolation("ip1")
	}

	suite.True(suite.breaker.Unban("ip1"))
	suite.False(suite.breaker.IsBanned("ip1"))

	// Повторный unban — no-op.
	suite.False(suite.breaker.Unban("ip1"))
	suite.False(suite.breaker.Unban("never-seen"))
}

func (suite *CircuitBreakerTestSuite) TestGuardQPS() {
	for i := 0; i < 5; i++ {
		suite.True(suite.breaker.Guard("ip1"))
	}

	// Шестой запрос в ту же секунду — отказ и первая violation.
	suite.False(suite.breaker.Guard("ip1"))
	suite.False(suite.breaker.IsBanned("ip1"))
}

func (suite *CircuitBreakerTestSuite) TestGuardEscalatesToBan() {
	for second := 0; second < 3; second++ {
		for i := 0; i < 5; i++ {
			suite.True(suite.breaker.Guard("ip1"))
		}

		suite.False(suite.breaker.Guard("ip1"))
		suite.advance(time.Second)
	}

	suite.True(suite.breaker.IsBanned("ip1"))
	suite.False(suite.breaker.Guard("ip1"))
}

func (suite *CircuitBreakerTestSuite) TestGuardDisabledWithoutQPSMax() {
	suite.breaker.ApplySettings(BreakerSettings{
		Ban:                10 * time.Minute,
		ViolationThreshold: 3,
		ViolationWindow:    time.Minute,
	})

	for i := 0; i < 1000; i++ {
		suite.True(suite.breaker.Guard("ip1"))
	}
}

func (suite *CircuitBreakerTestSuite) TestPartialSettingsGetDefaults() {
	breaker := NewCircuitBreaker(suite.rates, BreakerSettings{
		Ban: 10 * time.Minute,
	})
	breaker.clock = suite.breaker.clock

	// Незаданный порог не означает "банить с первого нарушения".
	breaker.RecordViolation("ip1")
	suite.False(breaker.IsBanned("ip1"))

	for i := 0; i < DefaultBreakerViolationThreshold-1; i++ {
		breaker.RecordViolation("ip1")
	}

	suite.True(breaker.IsBanned("ip1"))
}

func (suite *CircuitBreakerTestSuite) TestZeroSettingsStillEscalate() {
	breaker := NewCircuitBreaker(suite.rates, BreakerSettings{})
	breaker.clock = suite.breaker.clock

	for i := 0; i < DefaultBreakerViolationThreshold; i++ {
		breaker.RecordViolation("ip1")
	}

	// Нулевой Ban был бы баном нулевой длительности: применяется дефолт.
	suite.True(breaker.IsBanned("ip1"))
	suite.Equal(suite.now.Add(DefaultBreakerBan), breaker.BannedUntil("ip1"))

	settings := breaker.Settings()
	suite.Equal(DefaultBreakerBan, settings.Ban)
	suite.Equal(DefaultBreakerViolationThreshold, settings.ViolationThreshold)
	suite.Equal(DefaultBreakerViolationWindow, settings.ViolationWindow)
	suite.Zero(settings.IPQPSMax)
}

func (suite *CircuitBreakerTestSuite) TestApplySettingsFillsDefaults() {
	suite.breaker.ApplySettings(BreakerSettings{IPQPSMax: 5})

	suite.breaker.RecordViolation("ip1")
	suite.False(suite.breaker.IsBanned("ip1"))

	suite.Equal(DefaultBreakerViolationThreshold,
		suite.breaker.Settings().ViolationThreshold)
}

func (suite *CircuitBreakerTestSuite) TestBannedList() {
	for i := 0; i < 3; i++ {
		suite.breaker.RecordViolation("bbbb-ip")
		suite.breaker.RecordViolation("aaaa-ip")
	}

	banned := suite.breaker.Banned()

	suite.Len(banned, 2)
	suite.Equal("aaaa-ip", banned[0].IPHashShort)
	suite.Equal("bbbb-ip", banned[1].IPHashShort)
}

func TestCircuitBreaker(t *testing.T) {
	t.Parallel()
	suite.Run(t, &CircuitBreakerTestSuite{})
}
