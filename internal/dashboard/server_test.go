package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scranton/coretrader/internal/execution"
	"github.com/scranton/coretrader/internal/market"
	"github.com/scranton/coretrader/internal/universe"
)

type fakeHandler struct {
	orders []execution.Order
}

func (f *fakeHandler) Orders() []execution.Order { return f.orders }

func (f *fakeHandler) Order(id int64) (execution.Order, bool) {
	for _, o := range f.orders {
		if o.ID == id {
			return o, true
		}
	}
	return execution.Order{}, false
}

func (f *fakeHandler) Ticket(int64) (*execution.OrderTicket, bool) { return nil, false }

func (f *fakeHandler) OrderCount() int { return len(f.orders) }

type fakeUniverse struct {
	members []universe.Member
}

func (f *fakeUniverse) Members() []universe.Member { return f.members }

func testSymbol(t *testing.T) market.Symbol {
	t.Helper()
	id, err := market.GenerateEquity(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "SPY", "usa")
	require.NoError(t, err)
	return market.NewSymbol(id, "SPY")
}

func newTestServer(t *testing.T, authToken string) (*Server, *fakeHandler) {
	t.Helper()
	h := &fakeHandler{orders: []execution.Order{{ID: 1, Symbol: testSymbol(t), Quantity: 10, Status: execution.StatusSubmitted}}}
	u := &fakeUniverse{members: []universe.Member{{Symbol: testSymbol(t), AddedAt: time.Now()}}}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	s := NewServer(Config{Port: 0, AuthToken: authToken}, h, u, logger)
	return s, h
}

func TestHealthEndpointIsAlwaysPublic(t *testing.T) {
	s, _ := newTestServer(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRouteRejectsMissingToken(t *testing.T) {
	s, _ := newTestServer(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRouteAcceptsHeaderToken(t *testing.T) {
	s, _ := newTestServer(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("X-Auth-Token", "secret")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []OrderView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, int64(1), views[0].ID)
}

func TestOrderNotFoundReturns404(t *testing.T) {
	s, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/api/orders/999", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUniverseEndpointListsMembers(t *testing.T) {
	s, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/api/universe", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []MemberView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, "SPY", views[0].Symbol)
}
