package main

import (
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/scranton/coretrader/internal/brokerage"
	"github.com/scranton/coretrader/internal/execution"
)

// paperGateway simulates brokerage acknowledgement and fill reporting for
// paper-trading mode: every submitted order fills immediately at its limit
// price (or zero for a market order, since no live quote feed backs this
// simulator yet). Grounded on the teacher's in-memory position bookkeeping
// in cmd/bot, generalized from a single strangle position to arbitrary
// orders reported back through execution.Handler.OnFill.
type paperGateway struct {
	mu      sync.Mutex
	handler *execution.Handler
	logger  *log.Logger
	nextBrk int64
}

func newPaperGateway(logger *log.Logger) *paperGateway {
	return &paperGateway{logger: logger}
}

// bindHandler wires the gateway back to the handler whose orders it fills;
// called once after execution.New, since Config needs a Gateway before the
// Handler it will report fills to exists.
func (g *paperGateway) bindHandler(h *execution.Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handler = h
}

func (g *paperGateway) PlaceOrder(order *execution.Order) ([]string, error) {
	g.mu.Lock()
	g.nextBrk++
	brkID := g.nextBrk
	h := g.handler
	g.mu.Unlock()

	price := order.LimitPrice
	go func() {
		if h == nil {
			return
		}
		h.OnFill(order.ID, execution.StatusFilled, execution.Fill{
			Quantity: order.Quantity,
			Price:    price,
			Time:     time.Now(),
		}, 1.0)
	}()

	return []string{formatBrokerID(brkID)}, nil
}

func (g *paperGateway) UpdateOrder(*execution.Order, brokerage.UpdateRequest) error {
	return nil
}

func (g *paperGateway) CancelOrder(order *execution.Order) error {
	g.mu.Lock()
	h := g.handler
	g.mu.Unlock()
	go func() {
		if h == nil {
			return
		}
		h.OnFill(order.ID, execution.StatusCanceled, execution.Fill{}, 1.0)
	}()
	return nil
}

func (g *paperGateway) FetchCashBalances() ([]execution.CashBalance, error) {
	return []execution.CashBalance{{Currency: "USD", Amount: 100000, ConversionRate: 1}}, nil
}

func formatBrokerID(n int64) string {
	return "paper-" + strconv.FormatInt(n, 10)
}

// paperPortfolio is the in-memory Portfolio collaborator backing paper
// trading: buying power is unconstrained, cash entries are tracked for the
// dashboard and the execution handler's live cash-sync path to exercise.
type paperPortfolio struct {
	mu   sync.Mutex
	cash map[string]float64
}

func newPaperPortfolio() *paperPortfolio {
	return &paperPortfolio{cash: make(map[string]float64)}
}

func (p *paperPortfolio) CheckBuyingPower(*execution.Order) bool { return true }

func (p *paperPortfolio) ProcessFill(*execution.Order, execution.Fill) {}

func (p *paperPortfolio) CashCurrencies() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.cash))
	for c := range p.cash {
		out = append(out, c)
	}
	return out
}

func (p *paperPortfolio) SetCashEntry(currency string, amount, _ float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash[currency] = amount
}
