package bastionlib

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type HasherTestSuite struct {
	suite.Suite

	h *Hasher
}

func (suite *HasherTestSuite) SetupTest() {
	suite.h = NewHasher("ip-salt-0123456789abcdef", "ua-salt-0123456789abcdef")
}

func (suite *HasherTestSuite) TestDeterministic() {
	suite.Equal(suite.h.HashIP("203.0.113.7"), suite.h.HashIP("203.0.113.7"))
	suite.Equal(suite.h.HashUserAgent("curl/8.0"), suite.h.HashUserAgent("curl/8.0"))
}

func (suite *HasherTestSuite) TestDifferentSaltsDiffer() {
	other := NewHasher("another-salt-0123456789", "ua-salt-0123456789abcdef")

	suite.NotEqual(suite.h.HashIP("203.0.113.7"), other.HashIP("203.0.113.7"))
}

func (suite *HasherTestSuite) TestIPAndUASaltsIndependent() {
	suite.NotEqual(suite.h.HashIP("hello"), suite.h.HashUserAgent("hello"))
}

func (suite *HasherTestSuite) TestForwardedForTakesFirstEntry() {
	direct := suite.h.HashIP("203.0.113.7")

	suite.Equal(direct, suite.h.HashIP("203.0.113.7, 10.0.0.1, 10.0.0.2"))
	suite.Equal(direct, suite.h.HashIP("  203.0.113.7 ,10.0.0.1"))
}

func (suite *HasherTestSuite) TestPortStripped() {
	direct := suite.h.HashIP("203.0.113.7")

	suite.Equal(direct, suite.h.HashIP("203.0.113.7:8080"))
}

func (suite *HasherTestSuite) TestIPv6Brackets() {
	bare := suite.h.HashIP("2001:db8::1")

	suite.Equal(bare, suite.h.HashIP("[2001:db8::1]"))
	suite.Equal(bare, suite.h.HashIP("[2001:db8::1]:443"))
}

func (suite *HasherTestSuite) TestBareIPv6Untouched() {
	// Двоеточий больше одного — порт не отрезается.
	suite.NotEqual(suite.h.HashIP("2001:db8::1"), suite.h.HashIP("2001"))
}

func (suite *HasherTestSuite) TestEmptyInputsShareIdentity() {
	suite.Equal(suite.h.HashIP(""), suite.h.HashIP("   "))
	suite.Equal(suite.h.HashUserAgent(""), suite.h.HashUserAgent("  "))
}

func (suite *HasherTestSuite) TestUserAgentVersionCollapsed() {
	a := suite.h.HashUserAgent("Mozilla/5.0 Chrome/120.0.6099.71 Safari/537.36")
	b := suite.h.HashUserAgent("Mozilla/5.0 Chrome/121.0.6167.85 Safari/537.36")

	suite.Equal(a, b)
}

func (suite *HasherTestSuite) TestDifferentFamiliesDiffer() {
	suite.NotEqual(
		suite.h.HashUserAgent("Chrome/120.0"),
		suite.h.HashUserAgent("Firefox/120.0"))
}

func TestHasher(t *testing.T) {
	t.Parallel()
	suite.Run(t, &HasherTestSuite{})
}

func TestHashShort(t *testing.T) {
	t.Parallel()

	if v := HashShort("0123456789abcdef0123"); v != "0123456789ab" {
		t.Errorf("unexpected truncation: %s", v)
	}

	if v := HashShort("short"); v != "short" {
		t.Errorf("short hashes must pass through, got %s", v)
	}
}
