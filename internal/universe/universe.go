// Package universe implements dynamic subscription-set selection (spec
// §4.E): a universe is asked each tick to select symbols, the result is
// diffed against the current membership, and membership retention is governed
// by a pluggable canRemoveMember policy.
package universe

import (
	"sort"
	"sync"
	"time"

	"github.com/scranton/coretrader/internal/market"
)

// Member tracks when a security joined a universe's membership set.
type Member struct {
	AddedAt time.Time
	Symbol  market.Symbol
}

// Settings configures universe-wide retention behavior.
type Settings struct {
	MinimumTimeInUniverse time.Duration
	Resolution            interface{} // feed.Resolution; kept untyped here to avoid an import cycle with feed.
}

// unchangedSentinel is returned by SelectSymbols to signal "no change this
// tick" without allocating a fresh symbol slice.
type unchangedSentinel struct{}

// Unchanged is the sentinel selection result of spec §4.E step 1.
var Unchanged = &unchangedSentinel{}

// SelectionResult is either Unchanged or a concrete selected-symbol set.
type SelectionResult struct {
	sentinel *unchangedSentinel
	symbols  []market.Symbol
}

// IsUnchanged reports whether this result is the Unchanged sentinel.
func (r SelectionResult) IsUnchanged() bool { return r.sentinel != nil }

// Symbols returns the selected set; empty when IsUnchanged is true.
func (r SelectionResult) Symbols() []market.Symbol { return r.symbols }

// NewSelection wraps a concrete symbol set as a non-Unchanged result.
func NewSelection(symbols []market.Symbol) SelectionResult {
	return SelectionResult{symbols: symbols}
}

// UnchangedResult is the Unchanged sentinel as a SelectionResult.
func UnchangedResult() SelectionResult {
	return SelectionResult{sentinel: Unchanged}
}

// SelectorFunc is the user-supplied selection function: given the current
// UTC time and opaque universe data, return the symbols that should be
// members, or UnchangedResult() if membership should not change.
type SelectorFunc func(utcTime time.Time, data interface{}) SelectionResult

// RemovalPolicy decides whether a member may be removed at utcTime; the
// base Universe consults UniverseSettings.MinimumTimeInUniverse, while
// OptionChainUniverse overrides it with a day-boundary rule (spec §9's
// open question: the two policies are kept deliberately distinct, never
// silently unified).
type RemovalPolicy func(utcTime time.Time, member Member) bool

// Diff is the add/remove delta the engine translates into subscription
// changes (spec §4.E step 3).
type Diff struct {
	Added   []market.Symbol
	Removed []market.Symbol
}

// Universe holds a dynamic subscription set: its declarative config,
// settings, and current membership. Grounded on the teacher's chainCache
// pattern (internal/strategy's sync.RWMutex-guarded map) generalized from
// an option-chain cache to a membership map.
type Universe struct {
	mu        sync.RWMutex
	settings  Settings
	selector  SelectorFunc
	canRemove RemovalPolicy

	members map[string]Member
}

// New constructs a Universe. canRemove may be nil, in which case the base
// minimumTimeInUniverse policy is used.
func New(settings Settings, selector SelectorFunc, canRemove RemovalPolicy) *Universe {
	u := &Universe{
		settings: settings,
		selector: selector,
		members:  make(map[string]Member),
	}
	if canRemove != nil {
		u.canRemove = canRemove
	} else {
		u.canRemove = u.defaultCanRemoveMember
	}
	return u
}

// defaultCanRemoveMember defers removal until the security has been a
// member for at least Settings.MinimumTimeInUniverse.
func (u *Universe) defaultCanRemoveMember(utcTime time.Time, member Member) bool {
	return utcTime.Sub(member.AddedAt) >= u.settings.MinimumTimeInUniverse
}

// Select runs one selection tick: ask the selector, diff the result against
// current membership, and return the membership delta. Removal is always
// re-evaluated against every current member regardless of whether the
// selector's target set changed, so a member that failed canRemove on a
// prior tick and has since crossed its retention window is still retired.
// Returns a zero Diff (no adds or removes) when the selector reports
// Unchanged.
func (u *Universe) Select(utcTime time.Time, data interface{}) Diff {
	result := u.selector(utcTime, data)
	if result.IsUnchanged() {
		return Diff{}
	}

	newSet := make(map[string]bool, len(result.Symbols()))
	for _, s := range result.Symbols() {
		newSet[s.ID.String()] = true
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	var diff Diff
	for _, s := range result.Symbols() {
		key := s.ID.String()
		if _, exists := u.members[key]; !exists {
			u.members[key] = Member{AddedAt: utcTime, Symbol: s}
			diff.Added = append(diff.Added, s)
		}
	}

	for key, member := range u.members {
		if newSet[key] {
			continue
		}
		if !u.canRemove(utcTime, member) {
			continue
		}
		delete(u.members, key)
		diff.Removed = append(diff.Removed, member.Symbol)
	}

	sortSymbols(diff.Added)
	sortSymbols(diff.Removed)
	return diff
}

// Members returns a snapshot of the current membership set.
func (u *Universe) Members() []Member {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]Member, 0, len(u.members))
	for _, m := range u.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol.ID.String() < out[j].Symbol.ID.String() })
	return out
}

func sortSymbols(symbols []market.Symbol) {
	sort.Slice(symbols, func(i, j int) bool { return symbols[i].ID.String() < symbols[j].ID.String() })
}
