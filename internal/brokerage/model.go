// Package brokerage implements the pluggable per-venue admissibility and
// policy-selection rules of spec §4.F: whether an order may be submitted,
// updated, or executed, and which fill/fee/slippage/settlement models and
// leverage apply.
package brokerage

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/scranton/coretrader/internal/market"
	"github.com/scranton/coretrader/internal/util"
)

// OrderType is the order's execution style.
type OrderType int

// Recognized order types.
const (
	OrderMarket OrderType = iota
	OrderLimit
	OrderStopMarket
	OrderStopLimit
)

// Direction is derived purely from the sign of a request's quantity (spec
// §9: the source's OrderDirection enum conflates "sign of quantity" with
// "buy/sell"; the target derives it, never stores it separately).
type Direction int

// Buy and Sell are the only directions.
const (
	Buy Direction = iota
	Sell
)

// DirectionOf derives a Direction from a signed quantity.
func DirectionOf(quantity int64) Direction {
	if quantity < 0 {
		return Sell
	}
	return Buy
}

// OrderRequest is the brokerage-facing view of an order under
// consideration: just the fields a BrokerageModel needs to rule on,
// decoupled from the transaction handler's full Order aggregate.
type OrderRequest struct {
	Quantity    int64
	Type        OrderType
	LimitPrice  float64
	StopPrice   float64
}

// UpdateRequest describes a proposed mutation to an existing order.
type UpdateRequest struct {
	NewQuantity   *int64
	NewLimitPrice *float64
	NewStopPrice  *float64
}

// AccountType distinguishes cash from margin accounts for settlement model
// selection.
type AccountType int

// Recognized account types.
const (
	AccountCash AccountType = iota
	AccountMargin
)

// Security is the brokerage-facing view of the instrument an order trades.
type Security struct {
	Symbol       market.Symbol
	SecurityType market.SecurityType
	LastPrice    float64
	Currency     string
}

// Message carries a short code and human-readable text explaining a
// brokerage refusal, per spec §4.F.
type Message struct {
	Code string
	Text string
}

// SplitEvent describes a corporate-action split applied to open tickets.
type SplitEvent struct {
	SplitFactor    float64
	IsReverseSplit bool
}

// TicketView is the minimal ticket shape ApplySplit mutates.
type TicketView struct {
	Quantity   int64
	LimitPrice float64
	StopPrice  float64
	Canceled   bool
}

// FillModel computes the fill price/quantity for an order against current
// market data. Left as a policy seam: the transaction handler supplies the
// concrete market price at the call site.
type FillModel interface {
	Fill(security Security, order OrderRequest, marketPrice float64) (fillPrice float64, fillQuantity int64)
}

// FeeModel computes the commission for a fill.
type FeeModel interface {
	Fee(security Security, fillPrice float64, fillQuantity int64) float64
}

// SlippageModel computes the price slippage applied to a fill.
type SlippageModel interface {
	Slippage(security Security, order OrderRequest, marketPrice float64) float64
}

// SettlementModel computes when and how fill proceeds settle.
type SettlementModel interface {
	SettlementDelayDays(accountType AccountType) int
}

// ImmediateFillModel fills the entire requested quantity at the market
// price, used by the Default and Tradier models.
type ImmediateFillModel struct{}

// Fill implements FillModel.
func (ImmediateFillModel) Fill(_ Security, order OrderRequest, marketPrice float64) (float64, int64) {
	return marketPrice, order.Quantity
}

// TickFillModel fills at the market price rounded to the venue's minimum
// price increment, used by pip-quoted FX/CFD venues where a raw float
// price would never actually trade.
type TickFillModel struct {
	Tick float64
}

// Fill implements FillModel.
func (m TickFillModel) Fill(_ Security, order OrderRequest, marketPrice float64) (float64, int64) {
	return util.RoundToTick(marketPrice, m.Tick), order.Quantity
}

// ZeroFeeModel charges no commission.
type ZeroFeeModel struct{}

// Fee implements FeeModel.
func (ZeroFeeModel) Fee(Security, float64, int64) float64 { return 0 }

// NoSlippageModel applies no slippage.
type NoSlippageModel struct{}

// Slippage implements SlippageModel.
func (NoSlippageModel) Slippage(Security, OrderRequest, float64) float64 { return 0 }

// ImmediateSettlementModel settles same-day regardless of account type.
type ImmediateSettlementModel struct{}

// SettlementDelayDays implements SettlementModel.
func (ImmediateSettlementModel) SettlementDelayDays(AccountType) int { return 0 }

// BrokerageModel answers the order-admissibility and policy-selection
// questions of spec §4.F.
type BrokerageModel interface {
	CanSubmitOrder(security Security, order OrderRequest) (bool, *Message)
	CanUpdateOrder(security Security, order OrderRequest, update UpdateRequest) (bool, *Message)
	CanExecuteOrder(security Security, order OrderRequest) bool
	GetLeverage(security Security) decimal.Decimal
	GetFillModel(security Security) FillModel
	GetFeeModel(security Security) FeeModel
	GetSlippageModel(security Security) SlippageModel
	GetSettlementModel(security Security, accountType AccountType) SettlementModel
	ApplySplit(tickets []*TicketView, split SplitEvent)
	DefaultMarkets() map[market.SecurityType]string
}

// lotSizeWarner tracks, per security, whether the rounding-to-lot-size
// warning has already fired, so it is emitted once even across repeated
// roundings of the same security (spec scenario 3).
type lotSizeWarner struct {
	mu     sync.Mutex
	warned map[string]bool
}

func newLotSizeWarner() *lotSizeWarner {
	return &lotSizeWarner{warned: make(map[string]bool)}
}

// roundToLotSize rounds quantity down (toward zero) to the nearest
// multiple of lotSize, returning the rounded quantity and whether this is
// the first time this security has been rounded (i.e. whether to warn).
func (w *lotSizeWarner) roundToLotSize(symbolKey string, quantity int64, lotSize int64) (rounded int64, shouldWarn bool) {
	if lotSize <= 1 {
		return quantity, false
	}
	rounded = (quantity / lotSize) * lotSize
	if rounded == quantity {
		return rounded, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	shouldWarn = !w.warned[symbolKey]
	w.warned[symbolKey] = true
	return rounded, shouldWarn
}

// defaultMarketsFor is the shared DefaultMarkets table handed to every
// concrete variant below; each may still override specific entries.
func defaultMarketsFor() map[market.SecurityType]string {
	return map[market.SecurityType]string{
		market.SecurityEquity: "usa",
		market.SecurityOption: "usa",
		market.SecurityForex:  "oanda",
		market.SecurityCfd:    "oanda",
		market.SecurityBase:   "usa",
	}
}

// applyStandardSplit scales quantity and price levels by 1/splitFactor;
// reverse splits cancel open tickets instead, per spec §4.F.
func applyStandardSplit(tickets []*TicketView, split SplitEvent) {
	if split.IsReverseSplit {
		for _, t := range tickets {
			t.Canceled = true
		}
		return
	}
	for _, t := range tickets {
		factor := 1 / split.SplitFactor
		t.Quantity = int64(float64(t.Quantity) * factor)
		t.LimitPrice *= factor
		t.StopPrice *= factor
	}
}
