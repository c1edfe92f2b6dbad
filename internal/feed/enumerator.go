package feed

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/scranton/coretrader/internal/calendar"
	"github.com/scranton/coretrader/internal/clock"
	"github.com/scranton/coretrader/internal/market"
	"github.com/scranton/coretrader/internal/xerrors"
)

// Source is a single-threaded lazy producer of BaseData. Advance returns
// (data, stillIterating, err): data is nil on a "no data this tick" result
// while stillIterating remains true; stillIterating=false means the
// enumerator has terminated and Advance must not be called again.
type Source interface {
	Advance() (BaseData, bool, error)
}

// SourceFunc adapts a plain function to a Source, used for the small
// in-memory leaf sources in tests.
type SourceFunc func() (BaseData, bool, error)

// Advance implements Source.
func (f SourceFunc) Advance() (BaseData, bool, error) { return f() }

// SliceSource replays a fixed slice of samples, one per Advance call, then
// terminates. Used both in tests and as the simplest possible leaf
// enumerator for an already-materialized backtest data file.
type SliceSource struct {
	items []BaseData
	idx   int
}

// NewSliceSource wraps items for sequential replay.
func NewSliceSource(items []BaseData) *SliceSource {
	return &SliceSource{items: items}
}

// Advance implements Source.
func (s *SliceSource) Advance() (BaseData, bool, error) {
	if s.idx >= len(s.items) {
		return nil, false, nil
	}
	item := s.items[s.idx]
	s.idx++
	return item, true, nil
}

// FrontierAware emits the inner enumerator's current element only once its
// EndTime is at or before the local frontier (UTC frontier converted to
// the subscription's local zone); otherwise it produces a "no data this
// tick" result while remaining non-terminated (spec §4.C).
type FrontierAware struct {
	inner        Source
	timeProvider clock.TimeProvider
	offset       *clock.TimeZoneOffsetProvider
	pending      BaseData
	lastEmitted  BaseData
}

// NewFrontierAware constructs a frontier-gated wrapper around inner.
func NewFrontierAware(inner Source, tp clock.TimeProvider, offset *clock.TimeZoneOffsetProvider) *FrontierAware {
	return &FrontierAware{inner: inner, timeProvider: tp, offset: offset}
}

// Advance implements Source.
func (f *FrontierAware) Advance() (BaseData, bool, error) {
	if f.pending == nil {
		data, ok, err := f.inner.Advance()
		if !ok || err != nil {
			return nil, ok, err
		}
		if data == nil {
			return nil, true, nil
		}
		if f.isDuplicateAuxiliary(data) {
			return nil, true, nil
		}
		f.pending = data
	}

	localFrontier := f.offset.ConvertFromUtc(f.timeProvider.UtcNow())
	if f.pending.EndTime().After(localFrontier) {
		return nil, true, nil
	}

	emitted := f.pending
	f.pending = nil
	f.lastEmitted = emitted
	return emitted, true, nil
}

func (f *FrontierAware) isDuplicateAuxiliary(data BaseData) bool {
	if data.DataType() != Auxiliary || f.lastEmitted == nil {
		return false
	}
	return f.lastEmitted.DataType() == Auxiliary &&
		f.lastEmitted.EndTime().Equal(data.EndTime()) &&
		f.lastEmitted.Value() == data.Value()
}

// FillForward synthesizes a clone of the previous sample at the next
// expected emission time whenever the source falls silent across a
// resolution boundary, respecting exchange-open hours (spec §4.C).
type FillForward struct {
	inner       Source
	delta       time.Duration
	cal         *calendar.Calendar
	extended    bool
	subEnd      time.Time
	last        BaseData
	bufferedSrc BaseData
	haveBuffer  bool
}

// NewFillForward constructs an offline fill-forward wrapper.
func NewFillForward(inner Source, delta time.Duration, cal *calendar.Calendar, extendedHours bool, subscriptionEnd time.Time) *FillForward {
	return &FillForward{inner: inner, delta: delta, cal: cal, extended: extendedHours, subEnd: subscriptionEnd}
}

// Advance implements Source.
func (ff *FillForward) Advance() (BaseData, bool, error) {
	for {
		if !ff.haveBuffer {
			data, ok, err := ff.inner.Advance()
			if !ok || err != nil {
				return nil, ok, err
			}
			if data == nil {
				return nil, true, nil
			}
			ff.bufferedSrc = data
			ff.haveBuffer = true
		}

		if ff.last == nil {
			emitted := ff.bufferedSrc
			ff.haveBuffer = false
			ff.last = emitted
			return emitted, true, nil
		}

		expectedNext := ff.last.EndTime().Add(ff.delta)
		if !ff.bufferedSrc.EndTime().After(expectedNext) {
			emitted := ff.bufferedSrc
			ff.haveBuffer = false
			ff.last = emitted
			return emitted, true, nil
		}

		if expectedNext.After(ff.subEnd) {
			emitted := ff.bufferedSrc
			ff.haveBuffer = false
			ff.last = emitted
			return emitted, true, nil
		}

		synthStart := expectedNext.Add(-ff.delta)
		if ff.cal != nil && !ff.cal.IsOpenDuringBar(synthStart, expectedNext, ff.extended) {
			// Skip this slot without consuming the buffered real sample;
			// advance `last` so the next loop iteration checks the
			// following slot.
			ff.last = forwardClone(ff.last, expectedNext)
			continue
		}

		synthesized := forwardClone(ff.last, expectedNext)
		ff.last = synthesized
		return synthesized, true, nil
	}
}

// forwardClone produces a fill-forward clone of prev positioned to end at
// newEnd, preserving prev's duration.
func forwardClone(prev BaseData, newEnd time.Time) BaseData {
	clone := prev.Clone(true)
	switch b := clone.(type) {
	case *TradeBar:
		dur := b.EndT.Sub(b.StartTime)
		b.EndT = newEnd
		b.StartTime = newEnd.Add(-dur)
	case *QuoteBar:
		dur := b.EndT.Sub(b.StartTime)
		b.EndT = newEnd
		b.StartTime = newEnd.Add(-dur)
	case *AuxiliaryData:
		dur := b.EndT.Sub(b.StartTime)
		b.EndT = newEnd
		b.StartTime = newEnd.Add(-dur)
	}
	return clone
}

// LiveFillForward applies the same contract as FillForward but uses the
// wall-clock TimeProvider to decide whether enough real time has elapsed to
// emit a forward-fill, even when the source returns no new data at all.
type LiveFillForward struct {
	inner Source
	delta time.Duration
	cal   *calendar.Calendar
	tp    clock.TimeProvider
	extended bool
	last  BaseData
}

// NewLiveFillForward constructs a live fill-forward wrapper.
func NewLiveFillForward(inner Source, delta time.Duration, cal *calendar.Calendar, tp clock.TimeProvider, extendedHours bool) *LiveFillForward {
	return &LiveFillForward{inner: inner, delta: delta, cal: cal, tp: tp, extended: extendedHours}
}

// Advance implements Source.
func (lf *LiveFillForward) Advance() (BaseData, bool, error) {
	data, ok, err := lf.inner.Advance()
	if !ok || err != nil {
		return nil, ok, err
	}
	if data != nil {
		lf.last = data
		return data, true, nil
	}

	if lf.last == nil {
		return nil, true, nil
	}

	expectedNext := lf.last.EndTime().Add(lf.delta)
	if lf.tp.UtcNow().Before(expectedNext) {
		return nil, true, nil
	}

	synthStart := expectedNext.Add(-lf.delta)
	if lf.cal != nil && !lf.cal.IsOpenDuringBar(synthStart, expectedNext, lf.extended) {
		lf.last = forwardClone(lf.last, expectedNext)
		return nil, true, nil
	}

	synthesized := forwardClone(lf.last, expectedNext)
	lf.last = synthesized
	return synthesized, true, nil
}

// FastForward drops samples whose age (frontier - endTime) exceeds a
// configured maximum, shedding stale live data on reconnect.
type FastForward struct {
	inner  Source
	tp     clock.TimeProvider
	maxAge time.Duration
}

// NewFastForward constructs a staleness filter.
func NewFastForward(inner Source, tp clock.TimeProvider, maxAge time.Duration) *FastForward {
	return &FastForward{inner: inner, tp: tp, maxAge: maxAge}
}

// Advance implements Source.
func (ff *FastForward) Advance() (BaseData, bool, error) {
	data, ok, err := ff.inner.Advance()
	if !ok || err != nil || data == nil {
		return data, ok, err
	}
	if ff.tp.UtcNow().Sub(data.EndTime()) > ff.maxAge {
		return nil, true, nil
	}
	return data, true, nil
}

// RateLimit permits at most one underlying advance per minimum interval,
// measured against a TimeProvider rounded down to the interval.
type RateLimit struct {
	inner       Source
	tp          clock.TimeProvider
	minInterval time.Duration
	lastBucket  time.Time
	started     bool
}

// NewRateLimit constructs a rate-limited wrapper.
func NewRateLimit(inner Source, tp clock.TimeProvider, minInterval time.Duration) *RateLimit {
	return &RateLimit{inner: inner, tp: tp, minInterval: minInterval}
}

// Advance implements Source.
func (r *RateLimit) Advance() (BaseData, bool, error) {
	bucket := r.tp.UtcNow().Truncate(r.minInterval)
	if r.started && !bucket.After(r.lastBucket) {
		return nil, true, nil
	}
	r.started = true
	r.lastBucket = bucket
	return r.inner.Advance()
}

// Refresh regenerates the inner enumerator on every advance, used when the
// inner represents a one-shot request (e.g. an option chain snapshot) that
// must be re-issued each tick. A singleflight.Group collapses concurrent
// regenerations triggered by overlapping ticks into a single factory call.
type Refresh struct {
	factory func() (Source, error)
	group   singleflight.Group
}

// NewRefresh constructs a Refresh wrapper around a Source factory.
func NewRefresh(factory func() (Source, error)) *Refresh {
	return &Refresh{factory: factory}
}

// Advance implements Source.
func (r *Refresh) Advance() (BaseData, bool, error) {
	v, err, _ := r.group.Do("refresh", func() (interface{}, error) {
		return r.factory()
	})
	if err != nil {
		return nil, true, err
	}
	return v.(Source).Advance()
}

// Enqueueable is a producer-side queue another goroutine writes into; the
// consumer side advances by taking from the queue with a configured
// timeout. Terminated only by an explicit Stop call; after Stop it drains
// remaining items before ending.
type Enqueueable struct {
	queue    chan BaseData
	timeout  time.Duration
	stopped  chan struct{}
	blocking bool
}

// NewEnqueueable constructs a bounded producer/consumer queue. When
// blocking is true, Enqueue blocks on a full queue instead of dropping.
func NewEnqueueable(capacity int, timeout time.Duration, blocking bool) *Enqueueable {
	return &Enqueueable{
		queue:    make(chan BaseData, capacity),
		timeout:  timeout,
		stopped:  make(chan struct{}),
		blocking: blocking,
	}
}

// Enqueue pushes an item from the producer side.
func (e *Enqueueable) Enqueue(item BaseData) {
	if e.blocking {
		e.queue <- item
		return
	}
	select {
	case e.queue <- item:
	default:
	}
}

// Stop signals that no further items will be enqueued; queued items still
// drain via Advance before it reports termination.
func (e *Enqueueable) Stop() {
	select {
	case <-e.stopped:
	default:
		close(e.stopped)
	}
}

// Advance implements Source.
func (e *Enqueueable) Advance() (BaseData, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	select {
	case item := <-e.queue:
		return item, true, nil
	case <-ctx.Done():
		select {
		case <-e.stopped:
			// Drain whatever is left, non-blocking, before terminating.
			select {
			case item := <-e.queue:
				return item, true, nil
			default:
				return nil, false, nil
			}
		default:
			return nil, true, nil
		}
	}
}

// FilterFunc decides whether a sample passes a SubscriptionFilter.
type FilterFunc func(BaseData) (bool, error)

// SubscriptionFilter applies a per-security user filter and an
// exchange-open check to each sample, dropping Auxiliary-kind data from the
// latter; surfaces filter errors via onError and skips the offending
// sample rather than terminating.
type SubscriptionFilter struct {
	inner      Source
	filter     FilterFunc
	cal        *calendar.Calendar
	extended   bool
	endTime    time.Time
	onError    func(error)
}

// NewSubscriptionFilter constructs a filtered wrapper.
func NewSubscriptionFilter(inner Source, filter FilterFunc, cal *calendar.Calendar, extendedHours bool, endTime time.Time, onError func(error)) *SubscriptionFilter {
	if onError == nil {
		onError = func(error) {}
	}
	return &SubscriptionFilter{inner: inner, filter: filter, cal: cal, extended: extendedHours, endTime: endTime, onError: onError}
}

// Advance implements Source.
func (s *SubscriptionFilter) Advance() (BaseData, bool, error) {
	for {
		data, ok, err := s.inner.Advance()
		if !ok || err != nil {
			return nil, ok, err
		}
		if data == nil {
			return nil, true, nil
		}
		if data.Time().After(s.endTime) {
			return nil, false, nil
		}
		if data.DataType() != Auxiliary && s.cal != nil && !s.cal.IsOpen(data.Time(), s.extended) {
			continue
		}
		if s.filter != nil {
			passed, ferr := s.filter(data)
			if ferr != nil {
				s.onError(xerrors.Wrap(xerrors.KindProcessingError, "feed.SubscriptionFilter", "filter error", ferr))
				continue
			}
			if !passed {
				continue
			}
		}
		return data, true, nil
	}
}

// BaseDataCollectionAggregator groups consecutive source samples sharing
// EndTime into a single Collection, emitted when a sample with a different
// EndTime is observed or the source ends.
type BaseDataCollectionAggregator struct {
	inner      Source
	collSymbol market.Symbol
	current    *Collection
	done       bool
}

// NewBaseDataCollectionAggregator constructs an aggregator emitting
// collections tagged with collSymbol.
func NewBaseDataCollectionAggregator(inner Source, collSymbol market.Symbol) *BaseDataCollectionAggregator {
	return &BaseDataCollectionAggregator{inner: inner, collSymbol: collSymbol}
}

// Advance implements Source.
func (a *BaseDataCollectionAggregator) Advance() (BaseData, bool, error) {
	if a.done {
		return nil, false, nil
	}
	for {
		data, ok, err := a.inner.Advance()
		if err != nil {
			return nil, ok, err
		}
		if !ok {
			a.done = true
			return a.flush(), false, nil
		}
		if data == nil {
			return nil, true, nil
		}

		if a.current == nil {
			a.current = &Collection{Sym: a.collSymbol, StartTime: data.Time(), EndT: data.EndTime()}
			a.current.Children = append(a.current.Children, data)
			continue
		}

		if data.EndTime().Equal(a.current.EndT) {
			a.current.Children = append(a.current.Children, data)
			continue
		}

		emitted := a.current
		a.current = &Collection{Sym: a.collSymbol, StartTime: data.Time(), EndT: data.EndTime()}
		a.current.Children = append(a.current.Children, data)
		return emitted, true, nil
	}
}

func (a *BaseDataCollectionAggregator) flush() BaseData {
	if a.current == nil || len(a.current.Children) == 0 {
		return nil
	}
	c := a.current
	a.current = nil
	return c
}

// TradeBarBuilder converts ticks into OHLCV bars of size delta per symbol,
// used for live trade-tick subscriptions (spec §4.C).
type TradeBarBuilder struct {
	delta   time.Duration
	tp      clock.TimeProvider
	working map[string]*TradeBar
	ready   chan *TradeBar
}

// NewTradeBarBuilder constructs a live tick-to-bar aggregator.
func NewTradeBarBuilder(delta time.Duration, tp clock.TimeProvider) *TradeBarBuilder {
	return &TradeBarBuilder{
		delta:   delta,
		tp:      tp,
		working: make(map[string]*TradeBar),
		ready:   make(chan *TradeBar, 256),
	}
}

// ProcessTick folds a tick price into the working bar for its symbol,
// rounding the bar start down to delta, and emits the previous bar once
// its end time has passed the current frontier.
func (b *TradeBarBuilder) ProcessTick(sym market.Symbol, t time.Time, price, size float64) {
	key := sym.ID.String()
	barStart := t.Truncate(b.delta)
	barEnd := barStart.Add(b.delta)

	bar, ok := b.working[key]
	if ok && bar.EndT.Equal(barEnd) {
		bar.High = max(bar.High, price)
		bar.Low = min(bar.Low, price)
		bar.Close = price
		bar.Volume += size
		return
	}

	if ok && !bar.EndT.Equal(barEnd) {
		utcFrontier := b.tp.UtcNow()
		if !bar.EndT.After(utcFrontier) {
			b.ready <- bar
		}
	}

	b.working[key] = &TradeBar{
		Sym: sym, StartTime: barStart, EndT: barEnd,
		Open: price, High: price, Low: price, Close: price, Volume: size,
	}
}

// Advance implements Source, draining completed bars.
func (b *TradeBarBuilder) Advance() (BaseData, bool, error) {
	select {
	case bar := <-b.ready:
		return bar, true, nil
	default:
		return nil, true, nil
	}
}

