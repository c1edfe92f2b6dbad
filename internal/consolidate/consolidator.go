// Package consolidate implements the consolidator chain of spec §4.D:
// aggregating a stream of samples into a lower-resolution output bar,
// optionally chaining two consolidators in sequence.
package consolidate

import (
	"time"

	"github.com/scranton/coretrader/internal/feed"
	"github.com/scranton/coretrader/internal/xerrors"
)

// InputType and OutputType classify what a Consolidator accepts and
// produces, used for the SequentialConsolidator compatibility check.
type InputType int

// Recognized consolidator sample types.
const (
	InputTrade InputType = iota
	InputQuote
)

// Consolidator transforms a stream of input samples into a lower-resolution
// output sample, firing OnConsolidated when the working bar closes.
type Consolidator interface {
	InputType() InputType
	OutputType() InputType
	Update(sample feed.BaseData)
	OnConsolidated(func(feed.BaseData))
}

// TimeBarConsolidator closes its working trade bar by elapsed period,
// grounded on the teacher's chainCache entry-expiry pattern (strategy's
// optionChainCacheEntry, keyed by symbol+expiration) generalized here to a
// single rolling bar keyed by period boundary.
type TimeBarConsolidator struct {
	period   time.Duration
	working  *feed.TradeBar
	onBar    func(feed.BaseData)
}

// NewTimeBarConsolidator builds a trade-bar consolidator of the given period.
func NewTimeBarConsolidator(period time.Duration) *TimeBarConsolidator {
	return &TimeBarConsolidator{period: period}
}

// InputType implements Consolidator.
func (c *TimeBarConsolidator) InputType() InputType { return InputTrade }

// OutputType implements Consolidator.
func (c *TimeBarConsolidator) OutputType() InputType { return InputTrade }

// OnConsolidated registers the callback invoked when a working bar closes.
func (c *TimeBarConsolidator) OnConsolidated(fn func(feed.BaseData)) { c.onBar = fn }

// Update folds one sample into the working bar, closing and emitting it
// once the sample falls outside the current period boundary.
func (c *TimeBarConsolidator) Update(sample feed.BaseData) {
	periodStart := sample.Time().Truncate(c.period)
	periodEnd := periodStart.Add(c.period)

	if c.working != nil && !c.working.EndT.Equal(periodEnd) {
		c.emit()
	}

	if c.working == nil {
		c.working = &feed.TradeBar{
			Sym: sample.Symbol(), StartTime: periodStart, EndT: periodEnd,
			Open: sample.Value(), High: sample.Value(), Low: sample.Value(), Close: sample.Value(),
		}
		return
	}

	v := sample.Value()
	if v > c.working.High {
		c.working.High = v
	}
	if v < c.working.Low {
		c.working.Low = v
	}
	c.working.Close = v
}

func (c *TimeBarConsolidator) emit() {
	if c.working == nil || c.onBar == nil {
		c.working = nil
		return
	}
	bar := c.working
	c.working = nil
	c.onBar(bar)
}

// Flush force-closes any working bar, used at subscription end.
func (c *TimeBarConsolidator) Flush() {
	c.emit()
}

// SequentialConsolidator feeds every output of first into second; the
// composite's OnConsolidated callback reflects second's output, matching
// spec §4.D.
type SequentialConsolidator struct {
	first  Consolidator
	second Consolidator
}

// NewSequentialConsolidator composes first and second. Fails with
// IncompatibleType if second does not accept first's output type.
func NewSequentialConsolidator(first, second Consolidator) (*SequentialConsolidator, error) {
	if first.OutputType() != second.InputType() {
		return nil, xerrors.New(xerrors.KindIncompatibleType, "consolidate.NewSequentialConsolidator",
			"second consolidator's input type does not accept first's output type")
	}
	first.OnConsolidated(func(d feed.BaseData) {
		second.Update(d)
	})
	return &SequentialConsolidator{first: first, second: second}, nil
}

// InputType implements Consolidator, delegating to first.
func (s *SequentialConsolidator) InputType() InputType { return s.first.InputType() }

// OutputType implements Consolidator, delegating to second.
func (s *SequentialConsolidator) OutputType() InputType { return s.second.OutputType() }

// Update feeds sample to first; first's own OnConsolidated wiring forwards
// to second.
func (s *SequentialConsolidator) Update(sample feed.BaseData) {
	s.first.Update(sample)
}

// OnConsolidated registers the callback invoked when second's working bar
// closes — the composite's events reflect second, per spec §4.D.
func (s *SequentialConsolidator) OnConsolidated(fn func(feed.BaseData)) {
	s.second.OnConsolidated(fn)
}
