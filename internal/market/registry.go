// Package market implements the symbol-identity model: a process-wide
// market-name registry plus the packed SecurityIdentifier/Symbol value
// types built on top of it.
package market

import (
	"strings"
	"sync"

	"github.com/scranton/coretrader/internal/xerrors"
)

// Registry is an extensible, concurrency-safe {name -> numeric code} map
// seeded with well-known venues. Grounded on the teacher's pattern of
// guarding a shared map with a plain sync.RWMutex (internal/storage,
// internal/strategy's chainCache) rather than reaching for a concurrent-map
// dependency.
type Registry struct {
	mu        sync.RWMutex
	nameToNum map[string]int
	numToName map[int]string
}

// NewRegistry creates a registry seeded with the well-known venues named in
// spec §4.I.
func NewRegistry() *Registry {
	r := &Registry{
		nameToNum: make(map[string]int),
		numToName: make(map[int]string),
	}
	for name, code := range defaultMarkets {
		r.nameToNum[name] = code
		r.numToName[code] = name
	}
	return r
}

var defaultMarkets = map[string]int{
	"usa":       0,
	"fxcm":      1,
	"oanda":     2,
	"dukascopy": 3,
	"tradier":   4,
}

// AddMarket registers a new market name/code pair. Fails if the code is
// already taken by a different name.
func (r *Registry) AddMarket(name string, code int) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return xerrors.New(xerrors.KindOutOfRange, "market.AddMarket", "market name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.numToName[code]; ok && existing != name {
		return xerrors.New(xerrors.KindOutOfRange, "market.AddMarket",
			"market code already registered to a different market")
	}
	r.nameToNum[name] = code
	r.numToName[code] = name
	return nil
}

// Encode returns the numeric code for a market name, and whether it was found.
func (r *Registry) Encode(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.nameToNum[strings.ToLower(strings.TrimSpace(name))]
	return code, ok
}

// Decode returns the market name for a numeric code, and whether it was found.
func (r *Registry) Decode(code int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.numToName[code]
	return name, ok
}

// Default is the process-wide registry used by the package-level Generate*
// and Parse helpers (explicit construction is still possible via
// NewRegistry).
var Default = NewRegistry()
