// Package calendar implements the per-market exchange-hours model (spec
// §4.B): weekly trading-hours segments plus a holiday override, used by the
// fill-forward and subscription-filter enumerators to decide when a
// synthesized or live sample is permitted to be emitted.
package calendar

import (
	"sort"
	"time"

	"github.com/scranton/coretrader/internal/xerrors"
)

// SessionState classifies a segment of the trading day.
type SessionState int

// Recognized session states.
const (
	Closed SessionState = iota
	PreMarket
	Market
	PostMarket
)

// Segment is a contiguous, non-overlapping slice of a trading day.
// Start/End are local clock times expressed as a duration since midnight.
type Segment struct {
	Start time.Duration
	End   time.Duration
	State SessionState
}

// Calendar holds one market's weekly schedule and holiday set.
type Calendar struct {
	// week[d] holds the sorted, contiguous segments for time.Weekday d.
	week     [7][]Segment
	holidays map[string]bool // keyed by "2006-01-02" in the market's local zone
	location *time.Location
}

// New constructs a Calendar. week must have exactly 7 entries, each a
// sorted, contiguous set of segments covering the full 24h day (spec
// §4.B's invariant); holidays are local calendar dates.
func New(location *time.Location, week [7][]Segment, holidays []time.Time) (*Calendar, error) {
	if location == nil {
		return nil, xerrors.New(xerrors.KindOutOfRange, "calendar.New", "location must not be nil")
	}
	for d := 0; d < 7; d++ {
		if err := validateDay(week[d]); err != nil {
			return nil, err
		}
	}

	hset := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		hset[h.In(location).Format("2006-01-02")] = true
	}

	return &Calendar{week: week, holidays: hset, location: location}, nil
}

func validateDay(segments []Segment) error {
	sorted := append([]Segment(nil), segments...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var cursor time.Duration
	for _, seg := range sorted {
		if seg.Start != cursor {
			return xerrors.New(xerrors.KindOutOfRange, "calendar.validateDay",
				"segments must be contiguous starting at midnight")
		}
		if seg.End <= seg.Start {
			return xerrors.New(xerrors.KindOutOfRange, "calendar.validateDay",
				"segment end must be after start")
		}
		cursor = seg.End
	}
	if cursor != 24*time.Hour {
		return xerrors.New(xerrors.KindOutOfRange, "calendar.validateDay",
			"segments must cover the full 24h day")
	}
	return nil
}

// MarketHoursSegments returns the sorted segment list for a weekday.
func (c *Calendar) MarketHoursSegments(day time.Weekday) []Segment {
	return c.week[day]
}

func (c *Calendar) isHoliday(local time.Time) bool {
	return c.holidays[local.Format("2006-01-02")]
}

func (c *Calendar) stateAt(local time.Time) SessionState {
	if c.isHoliday(local) {
		return Closed
	}
	tod := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
	for _, seg := range c.week[local.Weekday()] {
		if tod >= seg.Start && tod < seg.End {
			return seg.State
		}
	}
	return Closed
}

// IsOpen reports whether the market is open at the given local time.
// extendedHours additionally permits PreMarket/PostMarket sessions.
func (c *Calendar) IsOpen(local time.Time, extendedHours bool) bool {
	switch c.stateAt(local) {
	case Market:
		return true
	case PreMarket, PostMarket:
		return extendedHours
	default:
		return false
	}
}

// IsOpenDuringBar reports whether the entire [start, end) interval falls
// within permitted session states, minute-granularity scan.
func (c *Calendar) IsOpenDuringBar(start, end time.Time, extendedHours bool) bool {
	if !end.After(start) {
		return false
	}
	for t := start; t.Before(end); t = t.Add(time.Minute) {
		if !c.IsOpen(t, extendedHours) {
			return false
		}
	}
	return c.IsOpen(end.Add(-time.Nanosecond), extendedHours)
}

// NextOpenAfter returns the next local time at or after `from` at which the
// market is open (regular session only unless extendedHours is set).
func (c *Calendar) NextOpenAfter(from time.Time, extendedHours bool) time.Time {
	t := from
	limit := from.Add(366 * 24 * time.Hour)
	for t.Before(limit) {
		if c.IsOpen(t, extendedHours) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return t
}

// Location returns the calendar's IANA location.
func (c *Calendar) Location() *time.Location { return c.location }
