package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualTimeProviderAdvance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewManualTimeProvider(start)
	assert.Equal(t, start, p.UtcNow())

	got := p.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), got)
	assert.Equal(t, start.Add(time.Hour), p.UtcNow())
}

func TestTimeZoneOffsetProviderRoundTrip(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	utc := time.Date(2024, 1, 8, 15, 0, 0, 0, time.UTC) // winter, EST = UTC-5
	p := NewTimeZoneOffsetProvider(loc, utc)

	local := p.ConvertFromUtc(utc)
	assert.Equal(t, 10, local.Hour())

	back := p.ConvertToUtc(local)
	assert.True(t, back.Equal(utc))
}

func TestTimeZoneOffsetProviderHandlesDSTTransition(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	before := time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC) // before spring-forward
	after := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)  // after spring-forward

	p := NewTimeZoneOffsetProvider(loc, before)
	localBefore := p.ConvertFromUtc(before)
	localAfter := p.ConvertFromUtc(after)

	assert.True(t, localAfter.After(localBefore))
}
