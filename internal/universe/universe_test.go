package universe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scranton/coretrader/internal/market"
)

func testSymbol(t *testing.T, ticker string) market.Symbol {
	t.Helper()
	id, err := market.GenerateEquity(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ticker, "usa")
	require.NoError(t, err)
	return market.NewSymbol(id, ticker)
}

func TestUniverseSelectReturnsEmptyDiffOnUnchanged(t *testing.T) {
	selector := func(time.Time, interface{}) SelectionResult { return UnchangedResult() }
	u := New(Settings{}, selector, nil)

	diff := u.Select(time.Now(), nil)
	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Removed)
}

func TestUniverseSelectAddsNewSymbolsAndDefersRemoval(t *testing.T) {
	sym1 := testSymbol(t, "AAA")
	sym2 := testSymbol(t, "BBB")
	start := time.Date(2024, 1, 8, 14, 30, 0, 0, time.UTC)

	tick := 0
	selector := func(time.Time, interface{}) SelectionResult {
		tick++
		if tick == 1 {
			return NewSelection([]market.Symbol{sym1, sym2})
		}
		return NewSelection([]market.Symbol{sym1})
	}

	u := New(Settings{MinimumTimeInUniverse: time.Hour}, selector, nil)

	diff := u.Select(start, nil)
	assert.Len(t, diff.Added, 2)
	assert.Empty(t, diff.Removed)

	// sym2 dropped from selection, but minimum time in universe hasn't
	// elapsed yet: removal must be deferred.
	diff = u.Select(start.Add(time.Minute), nil)
	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Removed)
	assert.Len(t, u.Members(), 2)

	// Past the minimum retention window: sym2 may now be removed.
	diff = u.Select(start.Add(2*time.Hour), nil)
	require.Len(t, diff.Removed, 1)
	assert.True(t, diff.Removed[0].Equal(sym2))
	assert.Len(t, u.Members(), 1)
}

func TestOptionChainUniverseCanRemoveMemberUsesDayBoundaryNotMinimumTime(t *testing.T) {
	underlying := testSymbol(t, "SPY")
	contractSym := testSymbol(t, "SPY")
	start := time.Date(2024, 1, 8, 14, 30, 0, 0, time.UTC)

	filter := func(_ float64, candidates []Contract) []Contract { return candidates }
	// MinimumTimeInUniverse deliberately set high to prove the day-boundary
	// rule, not the base policy, governs removal here.
	ocu := NewOptionChainUniverse(underlying, Settings{MinimumTimeInUniverse: 30 * 24 * time.Hour}, filter, 0)

	coll := &OptionChainUniverseDataCollection{
		UnderlyingPrice: 470,
		Candidates:      []Contract{{Symbol: contractSym, Strike: 470}},
	}
	diff := ocu.Select(start, coll)
	require.Len(t, diff.Added, 1)

	// Same local calendar date, contract dropped from candidates: removal
	// must still be deferred even though minimum time has not elapsed.
	emptyColl := &OptionChainUniverseDataCollection{UnderlyingPrice: 470}
	diff = ocu.Select(start.Add(time.Hour), emptyColl)
	assert.Empty(t, diff.Removed)

	// Local date has advanced past the last-data date: now removable,
	// despite MinimumTimeInUniverse being nowhere near satisfied.
	nextDay := start.Add(24 * time.Hour)
	diff = ocu.Select(nextDay, emptyColl)
	require.Len(t, diff.Removed, 1)
}
