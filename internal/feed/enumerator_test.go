package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scranton/coretrader/internal/calendar"
	"github.com/scranton/coretrader/internal/clock"
	"github.com/scranton/coretrader/internal/market"
)

func testSymbol(t *testing.T) market.Symbol {
	t.Helper()
	id, err := market.GenerateEquity(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "SPY", "usa")
	require.NoError(t, err)
	return market.NewSymbol(id, "SPY")
}

func minuteBars(sym market.Symbol, start time.Time, n int) []BaseData {
	bars := make([]BaseData, 0, n)
	for i := 0; i < n; i++ {
		s := start.Add(time.Duration(i) * time.Minute)
		bars = append(bars, &TradeBar{
			Sym: sym, StartTime: s, EndT: s.Add(time.Minute),
			Open: 100, High: 101, Low: 99, Close: 100 + float64(i),
		})
	}
	return bars
}

func TestFrontierAwareEmitsOnlyAtOrBeforeFrontier(t *testing.T) {
	sym := testSymbol(t)
	start := time.Date(2024, 1, 8, 14, 30, 0, 0, time.UTC)
	bars := minuteBars(sym, start, 3)
	src := NewSliceSource(bars)

	tp := clock.NewManualTimeProvider(start)
	offset := clock.NewTimeZoneOffsetProvider(time.UTC, start)
	fa := NewFrontierAware(src, tp, offset)

	// Frontier hasn't reached the first bar's end time yet: nothing emits.
	data, ok, err := fa.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, data)

	tp.SetCurrentTime(start.Add(time.Minute))
	data, ok, err = fa.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, data)
	assert.True(t, data.EndTime().Equal(start.Add(time.Minute)))

	// Every emitted endTime must be monotone non-decreasing.
	tp.SetCurrentTime(start.Add(10 * time.Minute))
	var lastEnd time.Time
	for i := 0; i < 5; i++ {
		data, ok, err = fa.Advance()
		require.NoError(t, err)
		if !ok {
			break
		}
		if data == nil {
			continue
		}
		assert.False(t, data.EndTime().Before(lastEnd))
		lastEnd = data.EndTime()
	}
}

func TestFillForwardSynthesizesGapBars(t *testing.T) {
	sym := testSymbol(t)
	start := time.Date(2024, 1, 8, 14, 30, 0, 0, time.UTC) // Monday
	first := &TradeBar{Sym: sym, StartTime: start, EndT: start.Add(time.Minute), Close: 100}
	// Next real bar is 3 minutes later: expect 2 synthesized bars in between.
	gapStart := start.Add(3 * time.Minute)
	second := &TradeBar{Sym: sym, StartTime: gapStart, EndT: gapStart.Add(time.Minute), Close: 105}

	src := NewSliceSource([]BaseData{first, second})

	week := fullOpenWeek()
	cal, err := calendar.New(time.UTC, week, nil)
	require.NoError(t, err)

	ff := NewFillForward(src, time.Minute, cal, false, start.Add(time.Hour))

	data, ok, err := ff.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, data)
	assert.Equal(t, 100.0, data.Value())

	var emitted []BaseData
	for i := 0; i < 3; i++ {
		data, ok, err = ff.Advance()
		require.NoError(t, err)
		require.True(t, ok)
		require.NotNil(t, data)
		emitted = append(emitted, data)
	}

	require.Len(t, emitted, 3)
	assert.True(t, emitted[0].(*TradeBar).IsFillForward)
	assert.Equal(t, 100.0, emitted[0].Value()) // synthesized from prior close
	assert.True(t, emitted[1].(*TradeBar).IsFillForward)
	assert.Equal(t, 105.0, emitted[2].Value()) // the real bar, last
}

func TestRateLimitDropsExtraAdvancesWithinInterval(t *testing.T) {
	sym := testSymbol(t)
	start := time.Date(2024, 1, 8, 14, 30, 0, 0, time.UTC)
	bars := minuteBars(sym, start, 3)
	src := NewSliceSource(bars)

	tp := clock.NewManualTimeProvider(start)
	rl := NewRateLimit(src, tp, time.Minute)

	data, ok, err := rl.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, data)

	// Same interval bucket: must not pull a second item from the source.
	data, ok, err = rl.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, data)

	tp.Advance(time.Minute)
	data, ok, err = rl.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, data)
}

func TestSubscriptionFilterDropsClosedMarketSamples(t *testing.T) {
	sym := testSymbol(t)
	closedTime := time.Date(2024, 1, 8, 2, 0, 0, 0, time.UTC) // outside the single open segment below
	openTime := time.Date(2024, 1, 8, 14, 30, 0, 0, time.UTC)

	week := singleSegmentWeek(9*time.Hour+30*time.Minute, 16*time.Hour)
	cal, err := calendar.New(time.UTC, week, nil)
	require.NoError(t, err)

	closedBar := &TradeBar{Sym: sym, StartTime: closedTime, EndT: closedTime.Add(time.Minute)}
	openBar := &TradeBar{Sym: sym, StartTime: openTime, EndT: openTime.Add(time.Minute)}
	src := NewSliceSource([]BaseData{closedBar, openBar})

	sf := NewSubscriptionFilter(src, nil, cal, false, openTime.Add(time.Hour), nil)

	data, ok, err := sf.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, data)
	assert.True(t, data.Time().Equal(openTime))
}

func fullOpenWeek() [7][]calendar.Segment {
	var week [7][]calendar.Segment
	for d := 0; d < 7; d++ {
		week[d] = []calendar.Segment{{Start: 0, End: 24 * time.Hour, State: calendar.Market}}
	}
	return week
}

func singleSegmentWeek(start, end time.Duration) [7][]calendar.Segment {
	var week [7][]calendar.Segment
	for d := 0; d < 7; d++ {
		week[d] = []calendar.Segment{
			{Start: 0, End: start, State: calendar.Closed},
			{Start: start, End: end, State: calendar.Market},
			{Start: end, End: 24 * time.Hour, State: calendar.Closed},
		}
	}
	return week
}
