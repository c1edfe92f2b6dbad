package calendar

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/scranton/coretrader/internal/xerrors"
)

// entryJSON mirrors the on-disk market-hours document shape of spec §6.
type entryJSON struct {
	DataTimeZone     string             `json:"dataTimeZone"`
	ExchangeTimeZone string             `json:"exchangeTimeZone"`
	Monday           []segmentJSON      `json:"monday"`
	Tuesday          []segmentJSON      `json:"tuesday"`
	Wednesday        []segmentJSON      `json:"wednesday"`
	Thursday         []segmentJSON      `json:"thursday"`
	Friday           []segmentJSON      `json:"friday"`
	Saturday         []segmentJSON      `json:"saturday"`
	Sunday           []segmentJSON      `json:"sunday"`
	Holidays         []string           `json:"holidays"`
}

type segmentJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
	State string `json:"state"`
}

// Entry is the decoded, in-memory form of a single key's market-hours entry.
type Entry struct {
	DataTimeZone     string
	ExchangeTimeZone string
	Calendar         *Calendar
}

// Database is a collection of per-key market-hours entries, keyed by
// "SecurityType-Market-Symbol", loaded from a persistent JSON document
// (spec §6). "[*]" is the wildcard for Symbol or Market.
type Database struct {
	mu      sync.RWMutex
	entries map[string]entryJSON
	decoded map[string]*Entry
}

// key builds the lookup key used by both the document and the in-memory map.
func key(securityType, marketName, symbol string) string {
	return fmt.Sprintf("%s-%s-%s", securityType, marketName, symbol)
}

// LoadDatabase reads and parses a market-hours JSON document from path.
func LoadDatabase(path string) (*Database, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-provided config file
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindFormat, "calendar.LoadDatabase", "reading market-hours file", err)
	}

	var raw map[string]entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, xerrors.Wrap(xerrors.KindFormat, "calendar.LoadDatabase", "parsing market-hours JSON", err)
	}

	db := &Database{entries: raw, decoded: make(map[string]*Entry, len(raw))}
	for k, e := range raw {
		entry, err := decodeEntry(e)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindFormat, "calendar.LoadDatabase",
				fmt.Sprintf("decoding entry %q", k), err)
		}
		db.decoded[k] = entry
	}
	return db, nil
}

// Save re-serializes the database to path, bitwise-preserving all segments
// and holidays per spec §6's round-trip law.
func (db *Database) Save(path string) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	data, err := json.MarshalIndent(db.entries, "", "  ")
	if err != nil {
		return xerrors.Wrap(xerrors.KindFormat, "calendar.Save", "marshaling market-hours JSON", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return xerrors.Wrap(xerrors.KindFormat, "calendar.Save", "writing market-hours file", err)
	}
	return nil
}

// Lookup resolves an entry for a (securityType, market, symbol) tuple,
// falling back to the "[*]" wildcard for symbol then market.
func (db *Database) Lookup(securityType, marketName, symbol string) (*Entry, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, k := range []string{
		key(securityType, marketName, symbol),
		key(securityType, marketName, "[*]"),
		key(securityType, "[*]", symbol),
		key(securityType, "[*]", "[*]"),
	} {
		if e, ok := db.decoded[k]; ok {
			return e, true
		}
	}
	return nil, false
}

func decodeEntry(e entryJSON) (*Entry, error) {
	loc, err := time.LoadLocation(e.ExchangeTimeZone)
	if err != nil {
		return nil, err
	}

	rawWeek := [7][]segmentJSON{
		time.Sunday:    e.Sunday,
		time.Monday:    e.Monday,
		time.Tuesday:   e.Tuesday,
		time.Wednesday: e.Wednesday,
		time.Thursday:  e.Thursday,
		time.Friday:    e.Friday,
		time.Saturday:  e.Saturday,
	}

	var decodedWeek [7][]Segment
	for d := 0; d < 7; d++ {
		segs, err := decodeSegments(rawWeek[d])
		if err != nil {
			return nil, err
		}
		decodedWeek[d] = segs
	}

	holidays := make([]time.Time, 0, len(e.Holidays))
	for _, h := range e.Holidays {
		t, err := time.ParseInLocation("1/2/2006", h, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", h, err)
		}
		holidays = append(holidays, t)
	}

	cal, err := New(loc, decodedWeek, holidays)
	if err != nil {
		return nil, err
	}

	return &Entry{
		DataTimeZone:     e.DataTimeZone,
		ExchangeTimeZone: e.ExchangeTimeZone,
		Calendar:         cal,
	}, nil
}

func decodeSegments(raw []segmentJSON) ([]Segment, error) {
	segs := make([]Segment, 0, len(raw))
	for _, s := range raw {
		start, err := parseClock(s.Start)
		if err != nil {
			return nil, err
		}
		end, err := parseClock(s.End)
		if err != nil {
			return nil, err
		}
		state, err := parseState(s.State)
		if err != nil {
			return nil, err
		}
		segs = append(segs, Segment{Start: start, End: end, State: state})
	}
	return segs, nil
}

func parseClock(hms string) (time.Duration, error) {
	t, err := time.Parse("15:04:05", hms)
	if err != nil {
		return 0, fmt.Errorf("invalid HH:MM:SS %q: %w", hms, err)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

func parseState(s string) (SessionState, error) {
	switch strings.ToLower(s) {
	case "closed":
		return Closed, nil
	case "premarket":
		return PreMarket, nil
	case "market":
		return Market, nil
	case "postmarket":
		return PostMarket, nil
	default:
		return Closed, fmt.Errorf("unknown session state %q", s)
	}
}
