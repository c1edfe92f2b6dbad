package execution

import (
	"context"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/scranton/coretrader/internal/brokerage"
	"github.com/scranton/coretrader/internal/clock"
	"github.com/scranton/coretrader/internal/market"
	"github.com/scranton/coretrader/internal/xerrors"
)

// gcOrderLimit is the order-count ceiling that triggers garbage collection
// (spec §4.G: drop all orders with id <= max-10,000).
const gcOrderLimit = 10000

// CashBalance is one currency's brokerage-reported cash figure, as returned
// by Gateway.FetchCashBalances during live reconciliation.
type CashBalance struct {
	Currency       string
	Amount         float64
	ConversionRate float64
}

// Portfolio is the collaborator consulted for buying-power checks and
// mutated on fills and cash-sync; the transaction handler never owns
// account state itself.
type Portfolio interface {
	CheckBuyingPower(order *Order) bool
	ProcessFill(order *Order, fill Fill)
	CashCurrencies() []string
	SetCashEntry(currency string, amount, conversionRate float64)
}

// TradeBuilder receives fills to update running trade statistics.
type TradeBuilder interface {
	ProcessFill(order *Order, fill Fill, conversionRate float64)
}

// Gateway is the brokerage-facing transport the handler drives: placing,
// updating, and canceling orders, plus fetching live cash balances. A
// brokerage.LiveGateway (circuit-breaker wrapped) or a backtest simulator
// both satisfy this.
type Gateway interface {
	PlaceOrder(order *Order) (brokerageIDs []string, err error)
	UpdateOrder(order *Order, update brokerage.UpdateRequest) error
	CancelOrder(order *Order) error
	FetchCashBalances() ([]CashBalance, error)
}

// SecurityLookup resolves a symbol to the brokerage-facing security view and
// its lot size, both needed by the submit-handler policy.
type SecurityLookup func(sym market.Symbol) (security brokerage.Security, lotSize int64)

// OrderEvent is emitted to the result-handler sink and to the optional user
// callback whenever an order's status changes (spec §9: channel-based
// delivery, same contract regardless of mechanism).
type OrderEvent struct {
	OrderID int64
	Status  Status
	Fill    *Fill
}

// Config configures a Handler's collaborators and policy knobs.
type Config struct {
	Portfolio       Portfolio
	Gateway         Gateway
	BrokerageModel  brokerage.BrokerageModel
	Lookup          SecurityLookup
	TradeBuilder    TradeBuilder
	TimeProvider    clock.TimeProvider
	Logger          *log.Logger
	QueueDepth      int
	ExitDrainWait   time.Duration
	SyncDrainWait   time.Duration
	CashSyncLocal   time.Duration // time-of-day, e.g. 7h45m for 07:45
	OnOrderEvent    func(OrderEvent)
}

// normalize fills in defaults the way the teacher's orders.Config does.
func (c Config) normalize() Config {
	if c.QueueDepth <= 0 {
		c.QueueDepth = 256
	}
	if c.ExitDrainWait <= 0 {
		c.ExitDrainWait = 60 * time.Second
	}
	if c.SyncDrainWait <= 0 {
		c.SyncDrainWait = time.Second
	}
	if c.CashSyncLocal == 0 {
		c.CashSyncLocal = 7*time.Hour + 45*time.Minute
	}
	if c.Logger == nil {
		c.Logger = log.New(os.Stderr, "execution: ", log.LstdFlags)
	}
	if c.TimeProvider == nil {
		c.TimeProvider = clock.RealTimeProvider{}
	}
	return c
}

// Handler is the transaction handler of spec §4.G: a single dedicated
// consumer thread driving the order status state machine, shielded against
// brokerage callbacks firing from arbitrary goroutines the way §5
// describes.
type Handler struct {
	cfg Config

	orders  sync.Map // int64 -> *Order
	tickets sync.Map // int64 -> *OrderTicket

	nextOrderID  int64
	requestQueue chan queuedRequest
	fillQueue    chan fillEvent

	lastFillTs int64 // unix nanos, atomic
	lastSyncTs int64 // unix nanos, atomic
	syncDone   int32 // 1 once today's cash-sync has completed, atomic

	// lotSizeWarned tracks, per symbol, whether the generic lot-size
	// rounding warning has already fired, mirroring brokerage.lotSizeWarner
	// for brokerage models that don't track this themselves.
	lotSizeWarned sync.Map // string -> struct{}

	cashSyncMu sync.Mutex // non-reentrant; serializes cash-sync

	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group
}

type queuedRequest struct {
	req    Request
	ticket *OrderTicket
}

// fillEvent carries one execution report from an arbitrary brokerage
// callback goroutine onto the single consumer thread, preserving the §5
// invariant that orders and tickets are mutated only from that thread.
type fillEvent struct {
	orderID        int64
	status         Status
	fill           Fill
	conversionRate float64
}

// New constructs a Handler. Call Run to start the consumer thread; Run
// launches it under an errgroup.Group so a panic recovered there surfaces
// through Exit instead of silently vanishing.
func New(cfg Config) *Handler {
	cfg = cfg.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)
	return &Handler{
		cfg:          cfg,
		requestQueue: make(chan queuedRequest, cfg.QueueDepth),
		fillQueue:    make(chan fillEvent, cfg.QueueDepth),
		ctx:          egCtx,
		cancel:       cancel,
		eg:           eg,
	}
}

// warmingUp reports whether the handler may accept new submissions yet;
// the zero Handler always reports ready since backtest replay supplies its
// own warm-up gating upstream.
func (h *Handler) warmingUp() bool { return false }

// Process classifies the request, creates a ticket for submissions, sets
// the initial response, and pushes it onto the consumer queue. It never
// blocks on the handler thread's processing; it returns the ticket
// immediately (spec §4.G).
func (h *Handler) Process(req Request) *OrderTicket {
	if req.Kind == RequestSubmit && h.warmingUp() {
		t := &OrderTicket{lastResponse: Response{Code: WarmingUp}}
		return t
	}

	var ticket *OrderTicket
	switch req.Kind {
	case RequestSubmit:
		id := atomic.AddInt64(&h.nextOrderID, 1)
		req.OrderID = id
		ticket = newOrderTicket(id, req)
		h.tickets.Store(id, ticket)
	default:
		if v, ok := h.tickets.Load(req.OrderID); ok {
			ticket = v.(*OrderTicket)
		} else {
			ticket = &OrderTicket{OrderID: req.OrderID, lastResponse: Response{Code: UnableToFindOrder}}
			return ticket
		}
	}

	// Blocks if the bounded queue is full, the §5 "blocking enqueue"
	// suspension point; Process itself still returns the ticket without
	// waiting for the request to be dispatched.
	h.requestQueue <- queuedRequest{req: req, ticket: ticket}
	return ticket
}

// Run launches the consumer thread under the handler's errgroup.Group and
// returns immediately; call Exit to block until it stops
// (grounded on the teacher's orders.Manager.PollOrderStatus
// ticker+context+stop-channel shape, generalized to a plain request-queue
// consumer).
func (h *Handler) Run() {
	h.eg.Go(h.runLoop)
}

// runLoop is the consumer loop itself: for each dequeued request, dispatch
// to the matching handler; a panic is recovered, logged, and surfaced as
// the algorithm's fatal runtime error through the errgroup.
func (h *Handler) runLoop() (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.cfg.Logger.Printf("execution: fatal error in consumer loop: %v", r)
			err = xerrors.New(xerrors.KindProcessingError, "execution.Handler.runLoop", "consumer panic")
		}
	}()

	for {
		select {
		case <-h.ctx.Done():
			return nil
		case qr := <-h.requestQueue:
			h.dispatch(qr)
		case fe := <-h.fillQueue:
			h.handleFill(fe)
		}
	}
}

func (h *Handler) dispatch(qr queuedRequest) {
	switch qr.req.Kind {
	case RequestSubmit:
		h.handleSubmit(qr.req, qr.ticket)
	case RequestUpdate:
		h.handleUpdate(qr.req, qr.ticket)
	case RequestCancel:
		h.handleCancel(qr.req, qr.ticket)
	}
	h.maybeGC()
}

// ProcessSynchronousEvents is the backtest-mode hook: block up to the
// configured drain wait for the request queue to empty.
func (h *Handler) ProcessSynchronousEvents() {
	deadline := time.Now().Add(h.cfg.SyncDrainWait)
	for len(h.requestQueue) > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}

// ProcessAsynchronousEvents is the live-mode hook: perform periodic cash
// reconciliation once the TimeProvider's UTC clock passes the configured
// time-of-day. The time-of-day is read from UtcNow with no time-zone
// conversion, so the configured value is a UTC time-of-day.
func (h *Handler) ProcessAsynchronousEvents() {
	h.maybeSyncCash()
}

// Exit waits up to the configured drain wait for the queue to empty, then
// cancels the consumer's context and waits for the consumer thread to
// return.
func (h *Handler) Exit() {
	deadline := time.Now().Add(h.cfg.ExitDrainWait)
	for len(h.requestQueue) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	h.cancel()
	if err := h.eg.Wait(); err != nil {
		h.cfg.Logger.Printf("execution: consumer thread exited with error: %v", err)
	}
}

// warnOnceForLotSize reports whether this is the first time symbolKey has
// had its quantity rounded to a lot size, so the caller warns once per
// security rather than on every subsequent rounding.
func (h *Handler) warnOnceForLotSize(symbolKey string) bool {
	_, alreadyWarned := h.lotSizeWarned.LoadOrStore(symbolKey, struct{}{})
	return !alreadyWarned
}

// submit-handler policy, spec §4.G.
func (h *Handler) handleSubmit(req Request, ticket *OrderTicket) {
	order := &Order{
		ID:         req.OrderID,
		Symbol:     req.Symbol,
		Quantity:   req.Quantity,
		Type:       req.Type,
		LimitPrice: req.Limit,
		StopPrice:  req.Stop,
		Status:     StatusNew,
		Time:       h.cfg.TimeProvider.UtcNow(),
		Tag:        req.Tag,
	}

	security, lotSize := brokerage.Security{Currency: "USD"}, int64(1)
	if h.cfg.Lookup != nil {
		security, lotSize = h.cfg.Lookup(req.Symbol)
	}
	order.PriceCurrency = security.Currency

	if model, ok := h.cfg.BrokerageModel.(*brokerage.FXCMBrokerageModel); ok && lotSize > 1 {
		rounded, shouldWarn := model.RoundToLotSize(req.Symbol.String(), order.Quantity)
		order.Quantity = rounded
		if shouldWarn {
			h.cfg.Logger.Printf("execution: rounded order quantity to FXCM lot size for %s", req.Symbol)
		}
	} else if lotSize > 1 {
		rounded := (order.Quantity / lotSize) * lotSize
		if rounded != order.Quantity && h.warnOnceForLotSize(req.Symbol.String()) {
			h.cfg.Logger.Printf("execution: rounded order quantity to lot size %d for %s", lotSize, req.Symbol)
		}
		order.Quantity = rounded
	}

	if _, loaded := h.loadOrLocalStoreOrder(order); loaded {
		ticket.setResponse(Response{Code: OrderAlreadyExists, Message: "order id collision"}, &req)
		return
	}

	if order.Quantity == 0 {
		order.transitionTo(StatusInvalid, "reject")
		h.orders.Store(order.ID, order)
		ticket.setResponse(Response{Code: ZeroQuantity}, &req)
		return
	}

	if h.cfg.Portfolio != nil && !h.cfg.Portfolio.CheckBuyingPower(order) {
		order.transitionTo(StatusInvalid, "reject")
		h.orders.Store(order.ID, order)
		ticket.setResponse(Response{Code: InsufficientBuyingPower}, &req)
		return
	}

	orderReq := brokerage.OrderRequest{Quantity: order.Quantity, Type: order.Type, LimitPrice: order.LimitPrice, StopPrice: order.StopPrice}
	if h.cfg.BrokerageModel != nil {
		if ok, msg := h.cfg.BrokerageModel.CanSubmitOrder(security, orderReq); !ok {
			order.transitionTo(StatusInvalid, "reject")
			h.orders.Store(order.ID, order)
			text := ""
			if msg != nil {
				text = msg.Text
			}
			ticket.setResponse(Response{Code: BrokerageModelRefusedToSubmitOrder, Message: text}, &req)
			return
		}
	}

	if h.cfg.Gateway != nil {
		ids, err := h.cfg.Gateway.PlaceOrder(order)
		if err != nil {
			order.transitionTo(StatusInvalid, "reject")
			h.orders.Store(order.ID, order)
			ticket.setResponse(Response{Code: BrokerageFailedToSubmitOrder, Message: err.Error()}, &req)
			return
		}
		order.BrokerageIDs = ids
	}

	order.transitionTo(StatusSubmitted, "place-accept")
	h.orders.Store(order.ID, order)
	ticket.setResponse(Response{Code: Success}, &req)
}

// loadOrLocalStoreOrder reserves the order slot without overwriting an
// existing entry, so collisions can be detected before Store.
func (h *Handler) loadOrLocalStoreOrder(order *Order) (existing *Order, loaded bool) {
	v, loaded := h.orders.LoadOrStore(order.ID, order)
	if loaded {
		return v.(*Order), true
	}
	return nil, false
}

// update-handler policy, spec §4.G.
func (h *Handler) handleUpdate(req Request, ticket *OrderTicket) {
	v, ok := h.orders.Load(req.OrderID)
	if !ok {
		ticket.setResponse(Response{Code: UnableToFindOrder}, &req)
		return
	}
	order := v.(*Order)
	if order.Status.IsClosed() {
		ticket.setResponse(Response{Code: InvalidStatus}, &req)
		return
	}

	update := req.Update

	security := brokerage.Security{}
	if h.cfg.Lookup != nil {
		security, _ = h.cfg.Lookup(order.Symbol)
	}
	orderReq := brokerage.OrderRequest{Quantity: order.Quantity, Type: order.Type, LimitPrice: order.LimitPrice, StopPrice: order.StopPrice}
	if h.cfg.BrokerageModel != nil {
		if ok, msg := h.cfg.BrokerageModel.CanUpdateOrder(security, orderReq, update); !ok {
			order.transitionTo(StatusInvalid, "update-reject")
			text := ""
			if msg != nil {
				text = msg.Text
			}
			ticket.setResponse(Response{Code: BrokerageModelRefusedToUpdateOrder, Message: text}, &req)
			return
		}
	}

	if h.cfg.Gateway != nil {
		if err := h.cfg.Gateway.UpdateOrder(order, update); err != nil {
			order.transitionTo(StatusInvalid, "update-reject")
			ticket.setResponse(Response{Code: BrokerageFailedToUpdateOrder, Message: err.Error()}, &req)
			return
		}
	}

	if update.NewQuantity != nil {
		order.Quantity = *update.NewQuantity
	}
	if update.NewLimitPrice != nil {
		order.LimitPrice = *update.NewLimitPrice
	}
	if update.NewStopPrice != nil {
		order.StopPrice = *update.NewStopPrice
	}
	ticket.setResponse(Response{Code: Success}, &req)
}

// cancel-handler policy, spec §4.G. tryStartCancel's atomic flag is what
// makes exactly one of two concurrent cancels for the same ticket proceed
// (spec scenario 5).
func (h *Handler) handleCancel(req Request, ticket *OrderTicket) {
	v, ok := h.orders.Load(req.OrderID)
	if !ok {
		ticket.setResponse(Response{Code: UnableToFindOrder}, &req)
		return
	}
	order := v.(*Order)
	if !ticket.tryStartCancel() {
		ticket.setResponse(Response{Code: InvalidRequest, Message: "cancel already in progress"}, &req)
		return
	}

	if order.Status.IsClosed() {
		ticket.setResponse(Response{Code: InvalidStatus}, &req)
		return
	}

	if h.cfg.Gateway != nil {
		if err := h.cfg.Gateway.CancelOrder(order); err != nil {
			order.transitionTo(StatusInvalid, "cancel-reject")
			ticket.setResponse(Response{Code: BrokerageFailedToCancelOrder, Message: err.Error()}, &req)
			return
		}
	}

	order.transitionTo(StatusCanceled, "cancel-accept")
	if req.Tag != "" {
		order.Tag = req.Tag
	}
	ticket.setResponse(Response{Code: Success}, &req)
	h.emit(OrderEvent{OrderID: order.ID, Status: order.Status})
}

// OnFill is the entry point the brokerage gateway calls from an arbitrary
// goroutine when an execution report arrives. It only enqueues the event;
// the actual fill-handler policy of spec §4.G runs on the consumer thread
// in handleFill, preserving the §5 single-writer invariant over orders and
// tickets.
func (h *Handler) OnFill(orderID int64, status Status, fill Fill, conversionRate float64) {
	h.fillQueue <- fillEvent{orderID: orderID, status: status, fill: fill, conversionRate: conversionRate}
}

// handleFill is the fill-handler policy of spec §4.G, run only from the
// consumer thread.
func (h *Handler) handleFill(fe fillEvent) {
	v, ok := h.orders.Load(fe.orderID)
	if !ok {
		h.cfg.Logger.Printf("execution: fill for unknown order %d discarded", fe.orderID)
		return
	}
	order := v.(*Order)
	event := "fill-partial"
	if fe.status == StatusFilled {
		event = "fill-complete"
	}
	order.transitionTo(fe.status, event)
	order.Price = fe.fill.Price

	if fe.status == StatusFilled || fe.status == StatusPartiallyFilled {
		atomic.StoreInt64(&h.lastFillTs, h.cfg.TimeProvider.UtcNow().UnixNano())
		if h.cfg.Portfolio != nil {
			h.cfg.Portfolio.ProcessFill(order, fe.fill)
		}
		if h.cfg.TradeBuilder != nil {
			h.cfg.TradeBuilder.ProcessFill(order, fe.fill, fe.conversionRate)
		}
	}

	if tv, ok := h.tickets.Load(fe.orderID); ok {
		ticket := tv.(*OrderTicket)
		ticket.recordFill(fe.fill)
	}

	h.emit(OrderEvent{OrderID: fe.orderID, Status: fe.status, Fill: &fe.fill})
}

func (h *Handler) emit(evt OrderEvent) {
	if h.cfg.OnOrderEvent == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.cfg.Logger.Printf("execution: fatal error in order event callback: %v", r)
		}
	}()
	h.cfg.OnOrderEvent(evt)
}

// maybeGC drops all orders with id <= max-gcOrderLimit once the live order
// count exceeds gcOrderLimit (spec §4.G, §8).
func (h *Handler) maybeGC() {
	var ids []int64
	h.orders.Range(func(k, _ interface{}) bool {
		ids = append(ids, k.(int64))
		return true
	})
	if len(ids) <= gcOrderLimit {
		return
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	maxID := ids[len(ids)-1]
	cutoff := maxID - gcOrderLimit
	for _, id := range ids {
		if id <= cutoff {
			h.orders.Delete(id)
			h.tickets.Delete(id)
		}
	}
}

// maybeSyncCash runs the live cash-reconciliation algorithm of spec §4.G,
// at most once per calendar day and guarded by a non-reentrant mutex.
func (h *Handler) maybeSyncCash() {
	if h.cfg.Gateway == nil || h.cfg.Portfolio == nil {
		return
	}
	now := h.cfg.TimeProvider.UtcNow()
	localTOD := time.Duration(now.Hour())*time.Hour + time.Duration(now.Minute())*time.Minute
	if localTOD < h.cfg.CashSyncLocal {
		return
	}
	if atomic.LoadInt32(&h.syncDone) == 1 && sameCalendarDay(lastSyncTime(&h.lastSyncTs), now) {
		return
	}

	if !h.cashSyncMu.TryLock() {
		return
	}
	defer h.cashSyncMu.Unlock()

	balances, err := h.cfg.Gateway.FetchCashBalances()
	if err != nil || len(balances) == 0 {
		return
	}

	known := make(map[string]bool)
	for _, c := range h.cfg.Portfolio.CashCurrencies() {
		known[c] = true
	}
	for _, bal := range balances {
		if !known[bal.Currency] {
			h.cfg.Logger.Printf("execution: adding new cash-book currency %s from brokerage sync", bal.Currency)
		}
		h.cfg.Portfolio.SetCashEntry(bal.Currency, bal.Amount, bal.ConversionRate)
	}

	// Checked once, at sync time; no deferred follow-up check is scheduled.
	// If the last recorded fill lies within 10s of this sync (either side),
	// success is not recorded, so the next cycle syncs again.
	fillTs := atomic.LoadInt64(&h.lastFillTs)
	syncTs := now.UnixNano()
	if fillTs != 0 {
		delta := syncTs - fillTs
		if delta < 0 {
			delta = -delta
		}
		if time.Duration(delta) <= 10*time.Second {
			return
		}
	}

	atomic.StoreInt64(&h.lastSyncTs, syncTs)
	atomic.StoreInt32(&h.syncDone, 1)
}

func lastSyncTime(ts *int64) time.Time {
	n := atomic.LoadInt64(ts)
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Order returns the current snapshot of a tracked order, or false if it is
// unknown or has been garbage-collected.
func (h *Handler) Order(id int64) (Order, bool) {
	v, ok := h.orders.Load(id)
	if !ok {
		return Order{}, false
	}
	return *v.(*Order), true
}

// OrderCount reports how many orders the handler currently tracks, used by
// callers (and tests) to observe the spec §4.G garbage-collection bound.
func (h *Handler) OrderCount() int {
	n := 0
	h.orders.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Orders returns a snapshot of every order the handler currently tracks,
// sorted by id, for read-only surfaces like the dashboard.
func (h *Handler) Orders() []Order {
	out := make([]Order, 0)
	h.orders.Range(func(_, v interface{}) bool {
		out = append(out, *v.(*Order))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ticket returns the ticket for a given order id, or false if unknown.
func (h *Handler) Ticket(id int64) (*OrderTicket, bool) {
	v, ok := h.tickets.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*OrderTicket), true
}

// NewClientOrderID generates a brokerage-facing client order id, used by
// live Gateway implementations that need one distinct from the handler's
// internal int64 id.
func NewClientOrderID() string {
	return uuid.NewString()
}
