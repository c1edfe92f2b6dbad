package clock

import "time"

// zoneTransition caches one DST boundary: the UTC instant at which `offset`
// starts applying.
type zoneTransition struct {
	utcStart time.Time
	offset   time.Duration
}

// TimeZoneOffsetProvider converts UTC to a given IANA zone and back. Every
// conversion computes the offset with time.Time.In/Zone; the forward-only
// transition cache only records the offset changes observed so far and is
// not used to skip that lookup.
type TimeZoneOffsetProvider struct {
	loc     *time.Location
	cache   []zoneTransition
	nextIdx int
}

// NewTimeZoneOffsetProvider builds a provider for the given location,
// seeded with the offset at `from`.
func NewTimeZoneOffsetProvider(loc *time.Location, from time.Time) *TimeZoneOffsetProvider {
	p := &TimeZoneOffsetProvider{loc: loc}
	p.cache = append(p.cache, zoneTransition{utcStart: from.UTC(), offset: offsetAt(loc, from)})
	return p
}

func offsetAt(loc *time.Location, utc time.Time) time.Duration {
	_, offsetSeconds := utc.In(loc).Zone()
	return time.Duration(offsetSeconds) * time.Second
}

// ConvertToUtc converts a local time in the provider's zone to UTC.
func (p *TimeZoneOffsetProvider) ConvertToUtc(local time.Time) time.Time {
	return local.Add(-offsetAt(p.loc, local))
}

// ConvertFromUtc converts a UTC time to local in the provider's zone,
// extending the forward-only transition cache as needed.
func (p *TimeZoneOffsetProvider) ConvertFromUtc(utc time.Time) time.Time {
	utc = utc.UTC()

	// Advance the cached cursor forward only; once past a transition, don't
	// rescan earlier entries, matching the "amortized O(1) per advance"
	// requirement for a monotonically advancing frontier.
	for p.nextIdx+1 < len(p.cache) && !utc.Before(p.cache[p.nextIdx+1].utcStart) {
		p.nextIdx++
	}

	offset := offsetAt(p.loc, utc)
	last := p.cache[len(p.cache)-1]
	if offset != last.offset {
		p.cache = append(p.cache, zoneTransition{utcStart: utc, offset: offset})
		p.nextIdx = len(p.cache) - 1
	}

	return utc.Add(offset)
}

// Location returns the provider's IANA location.
func (p *TimeZoneOffsetProvider) Location() *time.Location { return p.loc }
