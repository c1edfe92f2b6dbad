package universe

import (
	"time"

	"github.com/scranton/coretrader/internal/feed"
	"github.com/scranton/coretrader/internal/market"
)

// Contract is one candidate option in an option-chain universe, grounded on
// the teacher's broker.Option (strike/bid/ask/delta over Tradier's chain
// response) but trimmed to the fields contract filters actually consult.
type Contract struct {
	Symbol     market.Symbol
	Strike     float64
	Right      market.OptionRight
	Expiry     time.Time
	Bid, Ask   float64
	Delta      float64
	OpenInterest int64
}

// OptionChainUniverseDataCollection carries the underlying's own data point
// plus the candidate contract set; after filtering, the selected subset is
// written back so downstream consumers see the same filtered chain (spec
// §4.E).
type OptionChainUniverseDataCollection struct {
	Underlying        feed.BaseData
	UnderlyingPrice    float64
	Candidates         []Contract
	SelectedContracts  []Contract
}

// ContractFilter narrows the candidate set to the contracts the strategy
// wants subscriptions for.
type ContractFilter func(underlyingPrice float64, candidates []Contract) []Contract

// OptionChainUniverse specializes Universe for option chains: it applies a
// ContractFilter to each tick's candidate set, writes the selected
// contracts back into the collection, and generates canonical + selected
// subscription configs. Its canRemoveMember overrides the base minimum-
// time-in-universe rule with a day-boundary rule (spec §9: the two
// policies are deliberately kept distinct, not unified).
type OptionChainUniverse struct {
	*Universe
	canonical     market.Symbol
	filter        ContractFilter
	resolution    feed.Resolution
	lastDataDate  map[string]time.Time
}

// NewOptionChainUniverse constructs an option-chain universe over the
// canonical underlying symbol.
func NewOptionChainUniverse(canonical market.Symbol, settings Settings, filter ContractFilter, resolution feed.Resolution) *OptionChainUniverse {
	ocu := &OptionChainUniverse{
		canonical:    canonical,
		filter:       filter,
		resolution:   resolution,
		lastDataDate: make(map[string]time.Time),
	}
	selector := func(utcTime time.Time, data interface{}) SelectionResult {
		coll, ok := data.(*OptionChainUniverseDataCollection)
		if !ok || coll == nil {
			return UnchangedResult()
		}
		selected := ocu.filter(coll.UnderlyingPrice, coll.Candidates)
		coll.SelectedContracts = selected

		symbols := make([]market.Symbol, 0, len(selected))
		for _, c := range selected {
			symbols = append(symbols, c.Symbol)
			ocu.lastDataDate[c.Symbol.ID.String()] = utcTime
		}
		return NewSelection(symbols)
	}

	ocu.Universe = New(settings, selector, ocu.canRemoveMemberByDayBoundary)
	return ocu
}

// canRemoveMemberByDayBoundary defers removal until the UTC calendar date
// has advanced past the security's last-data date (both times are
// truncated to UTC days; no exchange time zone is applied), per spec §4.E's
// Option-chain-specific override; it never consults
// Settings.MinimumTimeInUniverse (spec §9's open question: this is
// intentional and is kept separate from the base policy).
func (o *OptionChainUniverse) canRemoveMemberByDayBoundary(utcTime time.Time, member Member) bool {
	lastData, ok := o.lastDataDate[member.Symbol.ID.String()]
	if !ok {
		return true
	}
	return utcTime.UTC().Truncate(24 * time.Hour).After(lastData.UTC().Truncate(24 * time.Hour))
}

// SubscriptionConfigs generates the canonical-plus-selected-contract
// subscription set: the canonical underlying (its Tick resolution promoted
// to Second, per spec §4.E) as a trade config, and each selected contract
// as both trade and quote configs at the universe's resolution.
func (o *OptionChainUniverse) SubscriptionConfigs(selected []Contract) []feed.SubscriptionDataConfig {
	canonicalRes := o.resolution
	if canonicalRes == feed.ResolutionTick {
		canonicalRes = feed.ResolutionSecond
	}

	configs := []feed.SubscriptionDataConfig{
		{Symbol: o.canonical, Resolution: canonicalRes, TickType: feed.TickTypeTrade},
	}

	for _, c := range selected {
		configs = append(configs,
			feed.SubscriptionDataConfig{Symbol: c.Symbol, Resolution: o.resolution, TickType: feed.TickTypeTrade},
			feed.SubscriptionDataConfig{Symbol: c.Symbol, Resolution: o.resolution, TickType: feed.TickTypeQuote},
		)
	}
	return configs
}
