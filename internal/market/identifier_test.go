package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateEquityRoundTrip(t *testing.T) {
	date := time.Date(1998, 1, 2, 0, 0, 0, 0, time.UTC)
	id, err := GenerateEquity(date, "SPY", "USA")
	require.NoError(t, err)

	parsed, err := Parse(id.String())
	require.NoError(t, err)
	assert.True(t, id.Equal(parsed))

	market, err := parsed.Market()
	require.NoError(t, err)
	assert.Equal(t, "usa", market)
	assert.Equal(t, SecurityEquity, parsed.SecurityType())

	got, err := parsed.Date()
	require.NoError(t, err)
	assert.Equal(t, date, got)
}

func TestGenerateOptionFields(t *testing.T) {
	expiry := time.Date(2016, 1, 15, 0, 0, 0, 0, time.UTC)
	id, err := GenerateOption(expiry, "AAPL", "usa", 120, Call, American)
	require.NoError(t, err)

	strike, err := id.StrikePrice()
	require.NoError(t, err)
	assert.Equal(t, 120.0, strike)

	right, err := id.OptionRight()
	require.NoError(t, err)
	assert.Equal(t, Call, right)

	style, err := id.OptionStyle()
	require.NoError(t, err)
	assert.Equal(t, American, style)

	parsed, err := Parse(id.String())
	require.NoError(t, err)
	assert.True(t, id.Equal(parsed))
}

func TestStrikeInvalidOperationOnForex(t *testing.T) {
	id, err := GenerateForex("EURUSD", "fxcm")
	require.NoError(t, err)

	_, err = id.StrikePrice()
	require.Error(t, err)
}

func TestStrikeNormalizationStripsTrailingZeros(t *testing.T) {
	expiry := time.Date(2020, 6, 19, 0, 0, 0, 0, time.UTC)
	id, err := GenerateOption(expiry, "SPY", "usa", 300, Put, European)
	require.NoError(t, err)

	strike, err := id.StrikePrice()
	require.NoError(t, err)
	assert.Equal(t, 300.0, strike)
}

func TestParseRejectsMalformedString(t *testing.T) {
	_, err := Parse("NOSPACEHERE")
	require.Error(t, err)
}

func TestMarketRegistryRoundTrip(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddMarket("bats", 42))

	code, ok := r.Encode("BATS")
	require.True(t, ok)
	assert.Equal(t, 42, code)

	name, ok := r.Decode(42)
	require.True(t, ok)
	assert.Equal(t, "bats", name)
}

func TestMarketRegistryCollision(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddMarket("bats", 42))
	err := r.AddMarket("iex", 42)
	require.Error(t, err)
}
