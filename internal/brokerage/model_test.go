package brokerage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFXCMBuyLimitAbovePriceRefused(t *testing.T) {
	model := NewFXCMBrokerageModel()
	security := Security{LastPrice: 1.10}

	ok, msg := model.CanSubmitOrder(security, OrderRequest{Quantity: 1000, Type: OrderLimit, LimitPrice: 1.15})
	require.False(t, ok)
	require.NotNil(t, msg)
	assert.Equal(t, "NotSupported", msg.Code)
}

func TestFXCMBuyLimitAtOrBelowPriceAccepted(t *testing.T) {
	model := NewFXCMBrokerageModel()
	security := Security{LastPrice: 1.10}

	ok, msg := model.CanSubmitOrder(security, OrderRequest{Quantity: 1000, Type: OrderLimit, LimitPrice: 1.10})
	assert.True(t, ok)
	assert.Nil(t, msg)
}

func TestFXCMQuantityNotMultipleOfLotSizeRefused(t *testing.T) {
	model := NewFXCMBrokerageModel()
	security := Security{LastPrice: 1.10}

	ok, msg := model.CanSubmitOrder(security, OrderRequest{Quantity: 1500, Type: OrderMarket})
	require.False(t, ok)
	assert.Equal(t, "NotSupported", msg.Code)
}

func TestLotSizeRoundingWarnsOnlyOnce(t *testing.T) {
	model := NewFXCMBrokerageModel()

	rounded, warn := model.RoundToLotSize("EURUSD", 1700)
	assert.Equal(t, int64(1000), rounded)
	assert.True(t, warn)

	rounded, warn = model.RoundToLotSize("EURUSD", 2700)
	assert.Equal(t, int64(2000), rounded)
	assert.False(t, warn)
}

func TestTradierRejectsQuantityUpdates(t *testing.T) {
	model := NewTradierBrokerageModel(nil)
	qty := int64(5)

	ok, msg := model.CanUpdateOrder(Security{}, OrderRequest{}, UpdateRequest{NewQuantity: &qty})
	require.False(t, ok)
	assert.Equal(t, "NotSupported", msg.Code)
}

func TestTradierRefusesExecutionOutsideRegularHours(t *testing.T) {
	model := NewTradierBrokerageModel(func() bool { return false })
	assert.False(t, model.CanExecuteOrder(Security{}, OrderRequest{}))
}

func TestOandaRejectsNonFxSecurity(t *testing.T) {
	model := NewOandaBrokerageModel()
	security := Security{SecurityType: 1} // not Forex/Cfd

	ok, msg := model.CanSubmitOrder(security, OrderRequest{Type: OrderMarket})
	require.False(t, ok)
	assert.Equal(t, "NotSupported", msg.Code)
}

func TestApplySplitScalesQuantityAndReverseSplitCancels(t *testing.T) {
	tickets := []*TicketView{{Quantity: 100, LimitPrice: 50, StopPrice: 45}}
	applyStandardSplit(tickets, SplitEvent{SplitFactor: 2})
	assert.Equal(t, int64(50), tickets[0].Quantity)
	assert.Equal(t, 25.0, tickets[0].LimitPrice)

	reverseTickets := []*TicketView{{Quantity: 100}}
	applyStandardSplit(reverseTickets, SplitEvent{IsReverseSplit: true})
	assert.True(t, reverseTickets[0].Canceled)
}

func TestTickFillModelRoundsToPip(t *testing.T) {
	model := NewFXCMBrokerageModel()
	fill := model.GetFillModel(Security{})

	price, qty := fill.Fill(Security{}, OrderRequest{Quantity: 1000}, 1.23456)
	assert.InDelta(t, 1.2346, price, 0.00001)
	assert.Equal(t, int64(1000), qty)
}
