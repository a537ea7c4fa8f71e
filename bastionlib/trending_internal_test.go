package bastionlib

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type TrendingScorerTestSuite struct {
	suite.Suite

	scorer *TrendingScorer
	now    time.Time
}

func (suite *TrendingScorerTestSuite) SetupTest() {
	suite.now = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	suite.scorer = NewTrendingScorer(ScorerOpts{})
	suite.scorer.clock = func() time.Time { return suite.now }
}

func (suite *TrendingScorerTestSuite) TestZeroEngagementIsZero() {
	suite.Zero(suite.scorer.Score(TrendingMetrics{
		CreatedAt: suite.now.Add(-100 * 24 * time.Hour),
	}))
}

func (suite *TrendingScorerTestSuite) TestFreshContentScoresRawSum() {
	score := suite.scorer.Score(TrendingMetrics{
		Views:     10,
		Votes:     2,
		Comments:  1,
		Copies:    1,
		Saves:     1,
		Forks:     1,
		CreatedAt: suite.now,
	})

	// 10*1 + 2*3 + 1*2 + 1*4 + 1*2 + 1*6 = 30, decay = 1.
	suite.Equal(30.0, score)
}

func (suite *TrendingScorerTestSuite) TestHalfLifeHalvesScore() {
	metrics := TrendingMetrics{Views: 100, CreatedAt: suite.now.Add(-48 * time.Hour)}

	suite.Equal(50.0, suite.scorer.Score(metrics))
}

func (suite *TrendingScorerTestSuite) TestDecayFloor() {
	// Месяц — это 15 периодов полураспада, decay упёрся бы в 3e-5;
	// пол удерживает его на 0.01.
	metrics := TrendingMetrics{Views: 10000, CreatedAt: suite.now.Add(-30 * 24 * time.Hour)}

	suite.Equal(100.0, suite.scorer.Score(metrics))
}

func (suite *TrendingScorerTestSuite) TestFutureCreatedAtTreatedAsFresh() {
	metrics := TrendingMetrics{Views: 100, CreatedAt: suite.now.Add(time.Hour)}

	suite.Equal(100.0, suite.scorer.Score(metrics))
}

func (suite *TrendingScorerTestSuite) TestForksOutweighViews() {
	forks := suite.scorer.Score(TrendingMetrics{Forks: 20, CreatedAt: suite.now})
	views := suite.scorer.Score(TrendingMetrics{Views: 100, CreatedAt: suite.now})

	suite.Equal(120.0, forks)
	suite.Equal(100.0, views)
	suite.Greater(forks, views)
}

func (suite *TrendingScorerTestSuite) TestRecentBeatsStale() {
	metrics := TrendingMetrics{
		Views: 100, Votes: 10, Comments: 5, Copies: 8, Saves: 3, Forks: 2,
	}

	metrics.CreatedAt = suite.now.Add(-24 * time.Hour)
	day := suite.scorer.Score(metrics)

	metrics.CreatedAt = suite.now.Add(-7 * 24 * time.Hour)
	week := suite.scorer.Score(metrics)

	suite.Greater(day, 0.0)
	suite.Greater(day, week)
}

func (suite *TrendingScorerTestSuite) TestRank() {
	ranked := suite.scorer.Rank([]Ranked{
		{ID: "b", Metrics: TrendingMetrics{Views: 10, CreatedAt: suite.now}},
		{ID: "a", Metrics: TrendingMetrics{Views: 10, CreatedAt: suite.now}},
		{ID: "c", Metrics: TrendingMetrics{Forks: 10, CreatedAt: suite.now}},
	})

	suite.Equal("c", ranked[0].ID)
	// Ничья упорядочена по ID, чтобы пагинация не мигала.
	suite.Equal("a", ranked[1].ID)
	suite.Equal("b", ranked[2].ID)
	suite.Equal(60.0, ranked[0].Score)
}

func (suite *TrendingScorerTestSuite) TestCategorize() {
	suite.Equal(CategoryHot, suite.scorer.Categorize(150))
	suite.Equal(CategoryHot, suite.scorer.Categorize(100))
	suite.Equal(CategoryTrending, suite.scorer.Categorize(60))
	suite.Equal(CategoryRising, suite.scorer.Categorize(25))
	suite.Equal(CategoryNormal, suite.scorer.Categorize(5))
}

func TestTrendingScorer(t *testing.T) {
	t.Parallel()
	suite.Run(t, &TrendingScorerTestSuite{})
}
