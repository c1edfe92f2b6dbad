package brokerage

import (
	"github.com/shopspring/decimal"

	"github.com/scranton/coretrader/internal/market"
)

// DefaultBrokerageModel accepts all orders and applies no lot-size
// constraint; used for backtests against the simulator.
type DefaultBrokerageModel struct{}

// NewDefaultBrokerageModel constructs the permissive baseline model.
func NewDefaultBrokerageModel() *DefaultBrokerageModel { return &DefaultBrokerageModel{} }

// CanSubmitOrder implements BrokerageModel.
func (DefaultBrokerageModel) CanSubmitOrder(Security, OrderRequest) (bool, *Message) { return true, nil }

// CanUpdateOrder implements BrokerageModel.
func (DefaultBrokerageModel) CanUpdateOrder(Security, OrderRequest, UpdateRequest) (bool, *Message) {
	return true, nil
}

// CanExecuteOrder implements BrokerageModel.
func (DefaultBrokerageModel) CanExecuteOrder(Security, OrderRequest) bool { return true }

// GetLeverage implements BrokerageModel.
func (DefaultBrokerageModel) GetLeverage(Security) decimal.Decimal { return decimal.NewFromInt(2) }

// GetFillModel implements BrokerageModel.
func (DefaultBrokerageModel) GetFillModel(Security) FillModel { return ImmediateFillModel{} }

// GetFeeModel implements BrokerageModel.
func (DefaultBrokerageModel) GetFeeModel(Security) FeeModel { return ZeroFeeModel{} }

// GetSlippageModel implements BrokerageModel.
func (DefaultBrokerageModel) GetSlippageModel(Security) SlippageModel { return NoSlippageModel{} }

// GetSettlementModel implements BrokerageModel.
func (DefaultBrokerageModel) GetSettlementModel(Security, AccountType) SettlementModel {
	return ImmediateSettlementModel{}
}

// ApplySplit implements BrokerageModel.
func (DefaultBrokerageModel) ApplySplit(tickets []*TicketView, split SplitEvent) {
	applyStandardSplit(tickets, split)
}

// DefaultMarkets implements BrokerageModel.
func (DefaultBrokerageModel) DefaultMarkets() map[market.SecurityType]string {
	return defaultMarketsFor()
}

// fxcmLotSize is the fixed lot-size multiple FXCM requires on every order.
const fxcmLotSize = 1000

// fxPipTick is the minimum price increment most FX pairs quote in.
const fxPipTick = 0.0001

// FXCMBrokerageModel imposes a fixed lot size and limit/stop price
// relationships specific to FXCM's forex/CFD venue.
type FXCMBrokerageModel struct {
	warner *lotSizeWarner
}

// NewFXCMBrokerageModel constructs the FXCM variant.
func NewFXCMBrokerageModel() *FXCMBrokerageModel {
	return &FXCMBrokerageModel{warner: newLotSizeWarner()}
}

// CanSubmitOrder implements BrokerageModel. Buy-limit orders must sit at or
// below the last price; sell-limit orders must sit at or above it;
// quantities not a multiple of the lot size are refused outright (scenario
// 4). The transaction handler rounds quantities down with RoundToLotSize
// before this check when the security's lot size is greater than 1
// (scenario 3), so the refusal applies to quantities that reach it
// unrounded.
func (f *FXCMBrokerageModel) CanSubmitOrder(security Security, order OrderRequest) (bool, *Message) {
	if order.Quantity%fxcmLotSize != 0 {
		return false, &Message{Code: "NotSupported", Text: "quantity must be a multiple of the FXCM lot size"}
	}

	if order.Type == OrderLimit {
		dir := DirectionOf(order.Quantity)
		if dir == Buy && order.LimitPrice > security.LastPrice {
			return false, &Message{Code: "NotSupported", Text: "buy-limit price may not exceed the last price"}
		}
		if dir == Sell && order.LimitPrice < security.LastPrice {
			return false, &Message{Code: "NotSupported", Text: "sell-limit price may not be below the last price"}
		}
	}

	return true, nil
}

// CanUpdateOrder implements BrokerageModel.
func (f *FXCMBrokerageModel) CanUpdateOrder(security Security, order OrderRequest, update UpdateRequest) (bool, *Message) {
	if update.NewQuantity != nil && *update.NewQuantity%fxcmLotSize != 0 {
		return false, &Message{Code: "NotSupported", Text: "updated quantity must be a multiple of the FXCM lot size"}
	}
	return true, nil
}

// CanExecuteOrder implements BrokerageModel.
func (FXCMBrokerageModel) CanExecuteOrder(Security, OrderRequest) bool { return true }

// GetLeverage implements BrokerageModel.
func (FXCMBrokerageModel) GetLeverage(Security) decimal.Decimal { return decimal.NewFromInt(50) }

// GetFillModel implements BrokerageModel.
func (FXCMBrokerageModel) GetFillModel(Security) FillModel { return TickFillModel{Tick: fxPipTick} }

// GetFeeModel implements BrokerageModel.
func (FXCMBrokerageModel) GetFeeModel(Security) FeeModel { return ZeroFeeModel{} }

// GetSlippageModel implements BrokerageModel.
func (FXCMBrokerageModel) GetSlippageModel(Security) SlippageModel { return NoSlippageModel{} }

// GetSettlementModel implements BrokerageModel.
func (FXCMBrokerageModel) GetSettlementModel(Security, AccountType) SettlementModel {
	return ImmediateSettlementModel{}
}

// ApplySplit implements BrokerageModel. Forex/CFD securities are not
// subject to equity-style splits, so this is a no-op.
func (FXCMBrokerageModel) ApplySplit([]*TicketView, SplitEvent) {}

// DefaultMarkets implements BrokerageModel.
func (FXCMBrokerageModel) DefaultMarkets() map[market.SecurityType]string {
	m := defaultMarketsFor()
	m[market.SecurityForex] = "fxcm"
	m[market.SecurityCfd] = "fxcm"
	return m
}

// RoundToLotSize rounds quantity down to the nearest FXCM lot multiple,
// reporting whether this security's rounding warning should be emitted
// (scenario 3: emitted once, not on every subsequent rounding).
func (f *FXCMBrokerageModel) RoundToLotSize(symbolKey string, quantity int64) (rounded int64, shouldWarn bool) {
	return f.warner.roundToLotSize(symbolKey, quantity, fxcmLotSize)
}

// OandaBrokerageModel restricts to FX/CFD securities and a limited order
// type set.
type OandaBrokerageModel struct{}

// NewOandaBrokerageModel constructs the Oanda variant.
func NewOandaBrokerageModel() *OandaBrokerageModel { return &OandaBrokerageModel{} }

// CanSubmitOrder implements BrokerageModel.
func (OandaBrokerageModel) CanSubmitOrder(security Security, order OrderRequest) (bool, *Message) {
	if security.SecurityType != market.SecurityForex && security.SecurityType != market.SecurityCfd {
		return false, &Message{Code: "NotSupported", Text: "Oanda supports only forex and CFD securities"}
	}
	switch order.Type {
	case OrderLimit, OrderMarket, OrderStopMarket:
	default:
		return false, &Message{Code: "NotSupported", Text: "Oanda supports only limit, market, and stop-market orders"}
	}
	return true, nil
}

// CanUpdateOrder implements BrokerageModel.
func (OandaBrokerageModel) CanUpdateOrder(Security, OrderRequest, UpdateRequest) (bool, *Message) {
	return true, nil
}

// CanExecuteOrder implements BrokerageModel.
func (OandaBrokerageModel) CanExecuteOrder(Security, OrderRequest) bool { return true }

// GetLeverage implements BrokerageModel.
func (OandaBrokerageModel) GetLeverage(Security) decimal.Decimal { return decimal.NewFromInt(50) }

// GetFillModel implements BrokerageModel.
func (OandaBrokerageModel) GetFillModel(Security) FillModel { return TickFillModel{Tick: fxPipTick} }

// GetFeeModel implements BrokerageModel.
func (OandaBrokerageModel) GetFeeModel(Security) FeeModel { return ZeroFeeModel{} }

// GetSlippageModel implements BrokerageModel.
func (OandaBrokerageModel) GetSlippageModel(Security) SlippageModel { return NoSlippageModel{} }

// GetSettlementModel implements BrokerageModel.
func (OandaBrokerageModel) GetSettlementModel(Security, AccountType) SettlementModel {
	return ImmediateSettlementModel{}
}

// ApplySplit implements BrokerageModel; forex/CFD has no split events.
func (OandaBrokerageModel) ApplySplit([]*TicketView, SplitEvent) {}

// DefaultMarkets implements BrokerageModel.
func (OandaBrokerageModel) DefaultMarkets() map[market.SecurityType]string {
	m := defaultMarketsFor()
	m[market.SecurityForex] = "oanda"
	m[market.SecurityCfd] = "oanda"
	return m
}

// TradierBrokerageModel restricts to equities, rejects quantity updates,
// and refuses execution outside regular trading hours. Grounded on the
// teacher's TradierClient, the only concrete broker in the corpus.
type TradierBrokerageModel struct {
	isRegularSession func() bool
}

// NewTradierBrokerageModel constructs the Tradier variant; isRegularSession
// reports whether the current time falls within regular trading hours
// (the engine wires this to the exchange calendar at construction time).
func NewTradierBrokerageModel(isRegularSession func() bool) *TradierBrokerageModel {
	return &TradierBrokerageModel{isRegularSession: isRegularSession}
}

// CanSubmitOrder implements BrokerageModel.
func (t *TradierBrokerageModel) CanSubmitOrder(security Security, order OrderRequest) (bool, *Message) {
	if security.SecurityType != market.SecurityEquity {
		return false, &Message{Code: "NotSupported", Text: "Tradier supports only equities"}
	}
	return true, nil
}

// CanUpdateOrder implements BrokerageModel; Tradier rejects quantity
// updates outright.
func (t *TradierBrokerageModel) CanUpdateOrder(security Security, order OrderRequest, update UpdateRequest) (bool, *Message) {
	if update.NewQuantity != nil {
		return false, &Message{Code: "NotSupported", Text: "Tradier does not support quantity updates"}
	}
	return true, nil
}

// CanExecuteOrder implements BrokerageModel; refuses execution outside
// regular hours.
func (t *TradierBrokerageModel) CanExecuteOrder(Security, OrderRequest) bool {
	if t.isRegularSession == nil {
		return true
	}
	return t.isRegularSession()
}

// GetLeverage implements BrokerageModel.
func (TradierBrokerageModel) GetLeverage(Security) decimal.Decimal { return decimal.NewFromInt(1) }

// GetFillModel implements BrokerageModel.
func (TradierBrokerageModel) GetFillModel(Security) FillModel { return ImmediateFillModel{} }

// GetFeeModel implements BrokerageModel.
func (TradierBrokerageModel) GetFeeModel(Security) FeeModel { return ZeroFeeModel{} }

// GetSlippageModel implements BrokerageModel.
func (TradierBrokerageModel) GetSlippageModel(Security) SlippageModel { return NoSlippageModel{} }

// GetSettlementModel implements BrokerageModel.
func (TradierBrokerageModel) GetSettlementModel(Security, AccountType) SettlementModel {
	return ImmediateSettlementModel{}
}

// ApplySplit implements BrokerageModel.
func (TradierBrokerageModel) ApplySplit(tickets []*TicketView, split SplitEvent) {
	applyStandardSplit(tickets, split)
}

// DefaultMarkets implements BrokerageModel.
func (TradierBrokerageModel) DefaultMarkets() map[market.SecurityType]string {
	m := defaultMarketsFor()
	m[market.SecurityEquity] = "usa"
	m[market.SecurityOption] = "usa"
	return m
}
