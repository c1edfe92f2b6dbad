// Package execution implements the transaction handler of spec §4.G: the
// order/ticket state machine and the single-consumer request pipeline that
// drives it.
package execution

import (
	"sync"
	"time"

	"github.com/scranton/coretrader/internal/brokerage"
	"github.com/scranton/coretrader/internal/market"
)

// Status is a position in the order status state machine.
type Status string

// Recognized order statuses.
const (
	StatusNew             Status = "New"
	StatusSubmitted       Status = "Submitted"
	StatusPartiallyFilled Status = "PartiallyFilled"
	StatusFilled          Status = "Filled"
	StatusCanceled        Status = "Canceled"
	StatusInvalid         Status = "Invalid"
)

// IsClosed reports whether no further transitions are possible from this
// status (spec §4.G: {Filled, Canceled, Invalid}).
func (s Status) IsClosed() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusInvalid
}

// transition is one edge of the order status state machine.
type transition struct {
	From  Status
	To    Status
	Event string
}

// validTransitions enumerates every legal edge of the order status state
// machine diagram in spec §4.G. Grounded on the teacher's
// models.ValidTransitions table, generalized from football-system states to
// order-lifecycle states.
var validTransitions = []transition{
	{StatusNew, StatusSubmitted, "place-accept"},
	{StatusNew, StatusInvalid, "reject"},
	{StatusSubmitted, StatusPartiallyFilled, "fill-partial"},
	{StatusSubmitted, StatusFilled, "fill-complete"},
	{StatusSubmitted, StatusCanceled, "cancel-accept"},
	{StatusPartiallyFilled, StatusFilled, "fill-complete"},
	{StatusPartiallyFilled, StatusCanceled, "cancel-accept"},
	{StatusNew, StatusInvalid, "update-reject"},
	{StatusSubmitted, StatusInvalid, "update-reject"},
	{StatusPartiallyFilled, StatusInvalid, "update-reject"},
	{StatusSubmitted, StatusInvalid, "cancel-reject"},
	{StatusPartiallyFilled, StatusInvalid, "cancel-reject"},
}

// transitionLookup provides O(1) lookup for valid transitions:
// map[fromStatus][toStatus][event]bool, precomputed the same way the
// teacher's transitionLookup is built in its package init.
var transitionLookup map[Status]map[Status]map[string]bool

func init() {
	transitionLookup = make(map[Status]map[Status]map[string]bool)
	for _, tr := range validTransitions {
		if transitionLookup[tr.From] == nil {
			transitionLookup[tr.From] = make(map[Status]map[string]bool)
		}
		if transitionLookup[tr.From][tr.To] == nil {
			transitionLookup[tr.From][tr.To] = make(map[string]bool)
		}
		transitionLookup[tr.From][tr.To][tr.Event] = true
	}
}

// isValidTransition reports whether the (from, to, event) edge is defined.
func isValidTransition(from, to Status, event string) bool {
	toMap, ok := transitionLookup[from]
	if !ok {
		return false
	}
	_, ok = toMap[to][event]
	return ok
}

// ResponseCode is the order-response error code enum of spec §6.
type ResponseCode string

// Recognized response codes.
const (
	Success                            ResponseCode = "Success"
	WarmingUp                          ResponseCode = "WarmingUp"
	ProcessingError                    ResponseCode = "ProcessingError"
	OrderAlreadyExists                 ResponseCode = "OrderAlreadyExists"
	UnableToFindOrder                  ResponseCode = "UnableToFindOrder"
	InvalidStatus                      ResponseCode = "InvalidStatus"
	ZeroQuantity                       ResponseCode = "ZeroQuantity"
	InsufficientBuyingPower            ResponseCode = "InsufficientBuyingPower"
	BrokerageModelRefusedToSubmitOrder ResponseCode = "BrokerageModelRefusedToSubmitOrder"
	BrokerageFailedToSubmitOrder       ResponseCode = "BrokerageFailedToSubmitOrder"
	BrokerageModelRefusedToUpdateOrder ResponseCode = "BrokerageModelRefusedToUpdateOrder"
	BrokerageFailedToUpdateOrder       ResponseCode = "BrokerageFailedToUpdateOrder"
	BrokerageFailedToCancelOrder       ResponseCode = "BrokerageFailedToCancelOrder"
	InvalidRequest                     ResponseCode = "InvalidRequest"
)

// Response is the outcome of processing one request against an order.
type Response struct {
	Code    ResponseCode
	Message string
}

// Order is the transaction handler's aggregate for one submitted order.
type Order struct {
	ID            int64
	Symbol        market.Symbol
	Quantity      int64
	Type          brokerage.OrderType
	LimitPrice    float64
	StopPrice     float64
	Status        Status
	Time          time.Time
	Price         float64
	PriceCurrency string
	Tag           string
	BrokerageIDs  []string
}

// Direction derives the order's direction from the sign of its quantity
// (spec §9: never store direction separately).
func (o *Order) Direction() brokerage.Direction {
	return brokerage.DirectionOf(o.Quantity)
}

// transitionTo moves the order to a new status along the named edge of the
// state machine, refusing (and leaving the order unchanged) if the edge is
// not defined.
func (o *Order) transitionTo(to Status, event string) bool {
	if !isValidTransition(o.Status, to, event) {
		return false
	}
	o.Status = to
	return true
}

// Fill records one (partial or complete) execution against an order.
type Fill struct {
	Quantity int64
	Price    float64
	Time     time.Time
}

// RequestKind classifies a request pushed to the transaction handler.
type RequestKind int

// Recognized request kinds.
const (
	RequestSubmit RequestKind = iota
	RequestUpdate
	RequestCancel
)

// Request is one unit of work submitted to the transaction handler's queue.
type Request struct {
	Kind     RequestKind
	OrderID  int64
	Symbol   market.Symbol
	Quantity int64
	Type     brokerage.OrderType
	Limit    float64
	Stop     float64
	Tag      string
	Update   brokerage.UpdateRequest
}

// OrderTicket is the caller-facing handle returned by process(): its
// lastResponse and fill accumulators tell the full story of an order
// without the caller ever touching the transaction handler's internals.
type OrderTicket struct {
	mu sync.Mutex

	OrderID          int64
	requestHistory   []Request
	lastResponse     Response
	responseHistory  []Response
	fills            []Fill
	averageFillPrice float64
	quantityFilled   int64
	cancelRequested  bool
}

// newOrderTicket starts a ticket's history with its originating request.
func newOrderTicket(orderID int64, req Request) *OrderTicket {
	return &OrderTicket{
		OrderID:        orderID,
		requestHistory: []Request{req},
		lastResponse:   Response{Code: Success},
	}
}

// LastResponse returns the most recent response recorded against this
// ticket.
func (t *OrderTicket) LastResponse() Response {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastResponse
}

// AverageFillPrice returns the quantity-weighted average fill price
// accumulated so far.
func (t *OrderTicket) AverageFillPrice() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.averageFillPrice
}

// QuantityFilled returns the total signed quantity filled so far.
func (t *OrderTicket) QuantityFilled() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quantityFilled
}

// setResponse records a new outcome and appends the originating request to
// history when non-nil.
func (t *OrderTicket) setResponse(resp Response, req *Request) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastResponse = resp
	t.responseHistory = append(t.responseHistory, resp)
	if req != nil {
		t.requestHistory = append(t.requestHistory, *req)
	}
}

// ResponseHistory returns every response recorded against this ticket, in
// order. Used to observe outcomes that lastResponse alone would overwrite,
// e.g. two concurrent cancel requests racing for the same ticket.
func (t *OrderTicket) ResponseHistory() []Response {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Response, len(t.responseHistory))
	copy(out, t.responseHistory)
	return out
}

// tryStartCancel atomically marks this ticket as having an in-flight cancel
// request, returning false if one is already in progress (spec scenario 5:
// exactly one of two concurrent cancels proceeds).
func (t *OrderTicket) tryStartCancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelRequested {
		return false
	}
	t.cancelRequested = true
	return true
}

// recordFill appends a fill and recomputes the running average fill price,
// satisfying the round-trip law in spec §8 (order request -> ticket ->
// order -> fill -> ticket reflects the sum of fills).
func (t *OrderTicket) recordFill(f Fill) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fills = append(t.fills, f)
	prevQty := t.quantityFilled
	newQty := prevQty + f.Quantity
	if newQty == 0 {
		t.averageFillPrice = 0
		t.quantityFilled = 0
		return
	}
	t.averageFillPrice = (t.averageFillPrice*float64(prevQty) + f.Price*float64(f.Quantity)) / float64(newQty)
	t.quantityFilled = newQty
}
