package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scranton/coretrader/internal/brokerage"
	"github.com/scranton/coretrader/internal/market"
)

func TestResolveUniverseSymbolsUppercasesTickers(t *testing.T) {
	symbols, err := resolveUniverseSymbols([]string{"spy", "QQQ"}, "usa")
	require.NoError(t, err)
	require.Len(t, symbols, 2)
	assert.Equal(t, "SPY", symbols[0].Ticker)
	assert.Equal(t, "QQQ", symbols[1].Ticker)
}

func TestStaticSelectorAlwaysReturnsTheSameSet(t *testing.T) {
	symbols, err := resolveUniverseSymbols([]string{"spy"}, "usa")
	require.NoError(t, err)

	selector := staticSelector(symbols)
	first := selector(time.Now(), nil)
	second := selector(time.Now(), nil)
	assert.Equal(t, first.Symbols(), second.Symbols())
}

func TestBuildBrokerageModelSelectsByName(t *testing.T) {
	alwaysOpen := func() bool { return true }

	_, ok := buildBrokerageModel("fxcm", alwaysOpen).(*brokerage.FXCMBrokerageModel)
	assert.True(t, ok)

	_, ok = buildBrokerageModel("oanda", alwaysOpen).(*brokerage.OandaBrokerageModel)
	assert.True(t, ok)

	_, ok = buildBrokerageModel("Tradier", alwaysOpen).(*brokerage.TradierBrokerageModel)
	assert.True(t, ok)

	_, ok = buildBrokerageModel("unknown", alwaysOpen).(*brokerage.DefaultBrokerageModel)
	assert.True(t, ok)
}

func TestSecurityLookupReturnsUSDEquity(t *testing.T) {
	symbols, err := resolveUniverseSymbols([]string{"spy"}, "usa")
	require.NoError(t, err)

	security, lotSize := securityLookup(symbols[0])
	assert.Equal(t, market.SecurityEquity, security.SecurityType)
	assert.Equal(t, "USD", security.Currency)
	assert.Equal(t, int64(1), lotSize)
}
