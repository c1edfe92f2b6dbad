// Package feed implements the composable data-enumerator pipeline of spec
// §4.C: single-threaded lazy producers of BaseData, chained so the output
// of one is the input to the next, each subscription forming one leaf-to-
// frontier chain.
package feed

import (
	"time"

	"github.com/scranton/coretrader/internal/market"
)

// DataType discriminates the kind of sample a BaseData instance carries.
type DataType int

// Recognized data types.
const (
	Trade DataType = iota
	Quote
	Auxiliary
)

// Resolution is the bar duration a subscription is configured at.
type Resolution int

// Recognized resolutions.
const (
	ResolutionTick Resolution = iota
	ResolutionSecond
	ResolutionMinute
	ResolutionHour
	ResolutionDaily
)

// Duration returns the bar length implied by a resolution; Tick has no
// fixed duration and returns 0.
func (r Resolution) Duration() time.Duration {
	switch r {
	case ResolutionSecond:
		return time.Second
	case ResolutionMinute:
		return time.Minute
	case ResolutionHour:
		return time.Hour
	case ResolutionDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

// TickType is Trade (last sale) or Quote (bid/ask), per spec's glossary.
type TickType int

// Recognized tick types.
const (
	TickTypeTrade TickType = iota
	TickTypeQuote
)

// BaseData is the abstract data point of spec §3: every concrete sample
// implements this, carrying symbol/time/endTime/value plus a Clone hook
// used by fill-forward to synthesize a copy at a later time.
type BaseData interface {
	Symbol() market.Symbol
	Time() time.Time
	EndTime() time.Time
	Value() float64
	DataType() DataType
	Clone(fillForward bool) BaseData
}

// TradeBar is an OHLCV sample.
type TradeBar struct {
	Sym                    market.Symbol
	StartTime, EndT        time.Time
	Open, High, Low, Close float64
	Volume                 float64
	IsFillForward          bool
}

// Symbol implements BaseData.
func (b *TradeBar) Symbol() market.Symbol { return b.Sym }

// Time implements BaseData.
func (b *TradeBar) Time() time.Time { return b.StartTime }

// EndTime implements BaseData.
func (b *TradeBar) EndTime() time.Time { return b.EndT }

// Value implements BaseData, returning the close price.
func (b *TradeBar) Value() float64 { return b.Close }

// DataType implements BaseData.
func (b *TradeBar) DataType() DataType { return Trade }

// Clone returns a copy; fillForward bars collapse OHLC to the prior close
// and zero volume, matching a synthesized "no trading happened" bar.
func (b *TradeBar) Clone(fillForward bool) BaseData {
	c := *b
	if fillForward {
		c.Open, c.High, c.Low = b.Close, b.Close, b.Close
		c.Volume = 0
		c.IsFillForward = true
	}
	return &c
}

// QuoteBar is a bid/ask sample.
type QuoteBar struct {
	Sym             market.Symbol
	StartTime, EndT time.Time
	Bid, Ask        float64
	BidSize, AskSize float64
	IsFillForward   bool
}

// Symbol implements BaseData.
func (b *QuoteBar) Symbol() market.Symbol { return b.Sym }

// Time implements BaseData.
func (b *QuoteBar) Time() time.Time { return b.StartTime }

// EndTime implements BaseData.
func (b *QuoteBar) EndTime() time.Time { return b.EndT }

// Value implements BaseData, returning the mid price.
func (b *QuoteBar) Value() float64 { return (b.Bid + b.Ask) / 2 }

// DataType implements BaseData.
func (b *QuoteBar) DataType() DataType { return Quote }

// Clone returns a copy, marking fill-forward bars.
func (b *QuoteBar) Clone(fillForward bool) BaseData {
	c := *b
	c.IsFillForward = fillForward
	return &c
}

// AuxiliaryData carries non-tradeable signals (e.g. dividends, splits) that
// share the BaseData shape so they can flow through the same pipeline.
type AuxiliaryData struct {
	Sym             market.Symbol
	StartTime, EndT time.Time
	Val             float64
}

// Symbol implements BaseData.
func (a *AuxiliaryData) Symbol() market.Symbol { return a.Sym }

// Time implements BaseData.
func (a *AuxiliaryData) Time() time.Time { return a.StartTime }

// EndTime implements BaseData.
func (a *AuxiliaryData) EndTime() time.Time { return a.EndT }

// Value implements BaseData.
func (a *AuxiliaryData) Value() float64 { return a.Val }

// DataType implements BaseData.
func (a *AuxiliaryData) DataType() DataType { return Auxiliary }

// Clone returns a copy.
func (a *AuxiliaryData) Clone(bool) BaseData {
	c := *a
	return &c
}

// Collection is a composite BaseData carrying child samples that share
// Symbol/Time/EndTime (spec §3's BaseDataCollection).
type Collection struct {
	Sym             market.Symbol
	StartTime, EndT time.Time
	Children        []BaseData
}

// Symbol implements BaseData.
func (c *Collection) Symbol() market.Symbol { return c.Sym }

// Time implements BaseData.
func (c *Collection) Time() time.Time { return c.StartTime }

// EndTime implements BaseData.
func (c *Collection) EndTime() time.Time { return c.EndT }

// Value implements BaseData, returning the last child's value, or 0.
func (c *Collection) Value() float64 {
	if len(c.Children) == 0 {
		return 0
	}
	return c.Children[len(c.Children)-1].Value()
}

// DataType implements BaseData.
func (c *Collection) DataType() DataType { return Auxiliary }

// Clone returns a shallow copy of the collection (children are not deep
// copied: they are immutable samples already emitted downstream).
func (c *Collection) Clone(bool) BaseData {
	cp := *c
	cp.Children = append([]BaseData(nil), c.Children...)
	return &cp
}

// SubscriptionDataConfig is the declarative feed descriptor of spec §3.
type SubscriptionDataConfig struct {
	Symbol           market.Symbol
	Resolution       Resolution
	DataTimeZone     *time.Location
	ExchangeTimeZone *time.Location
	FillForward      bool
	ExtendedHours    bool
	TickType         TickType
	EndTime          time.Time
}
