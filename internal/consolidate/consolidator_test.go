package consolidate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scranton/coretrader/internal/feed"
	"github.com/scranton/coretrader/internal/market"
	"github.com/scranton/coretrader/internal/xerrors"
)

func testSymbol(t *testing.T) market.Symbol {
	t.Helper()
	id, err := market.GenerateEquity(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "SPY", "usa")
	require.NoError(t, err)
	return market.NewSymbol(id, "SPY")
}

func TestTimeBarConsolidatorClosesOnPeriodBoundary(t *testing.T) {
	sym := testSymbol(t)
	start := time.Date(2024, 1, 8, 14, 30, 0, 0, time.UTC)

	c := NewTimeBarConsolidator(time.Minute)
	var emitted []feed.BaseData
	c.OnConsolidated(func(b feed.BaseData) { emitted = append(emitted, b) })

	c.Update(&feed.TradeBar{Sym: sym, StartTime: start, EndT: start.Add(10 * time.Second), Close: 100})
	c.Update(&feed.TradeBar{Sym: sym, StartTime: start.Add(20 * time.Second), EndT: start.Add(30 * time.Second), Close: 105})
	assert.Empty(t, emitted)

	next := start.Add(time.Minute)
	c.Update(&feed.TradeBar{Sym: sym, StartTime: next, EndT: next.Add(10 * time.Second), Close: 110})

	require.Len(t, emitted, 1)
	bar := emitted[0].(*feed.TradeBar)
	assert.Equal(t, 100.0, bar.Open)
	assert.Equal(t, 105.0, bar.Close)
}

func TestSequentialConsolidatorRejectsIncompatibleTypes(t *testing.T) {
	first := NewTimeBarConsolidator(time.Minute)
	second := &fakeQuoteConsolidator{}

	_, err := NewSequentialConsolidator(first, second)
	require.Error(t, err)
	var xerr *xerrors.Error
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, xerrors.KindIncompatibleType, xerr.Kind)
}

func TestSequentialConsolidatorChainsOutputToSecond(t *testing.T) {
	sym := testSymbol(t)
	start := time.Date(2024, 1, 8, 14, 30, 0, 0, time.UTC)

	first := NewTimeBarConsolidator(time.Minute)
	second := NewTimeBarConsolidator(5 * time.Minute)

	seq, err := NewSequentialConsolidator(first, second)
	require.NoError(t, err)

	var finalEmitted []feed.BaseData
	seq.OnConsolidated(func(b feed.BaseData) { finalEmitted = append(finalEmitted, b) })

	for i := 0; i < 7; i++ {
		tt := start.Add(time.Duration(i) * time.Minute)
		seq.Update(&feed.TradeBar{Sym: sym, StartTime: tt, EndT: tt.Add(time.Minute), Close: 100 + float64(i)})
	}

	require.Len(t, finalEmitted, 1)
}

// fakeQuoteConsolidator exists only to exercise the IncompatibleType check:
// it declares InputQuote, which TimeBarConsolidator's InputTrade output
// cannot feed.
type fakeQuoteConsolidator struct{}

func (f *fakeQuoteConsolidator) InputType() InputType    { return InputQuote }
func (f *fakeQuoteConsolidator) OutputType() InputType   { return InputQuote }
func (f *fakeQuoteConsolidator) Update(feed.BaseData)    {}
func (f *fakeQuoteConsolidator) OnConsolidated(func(feed.BaseData)) {}
