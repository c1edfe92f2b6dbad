// Package dashboard implements the engine's read-only HTTP status surface:
// a JSON view over the transaction handler's order book and the active
// universe's membership, adapted from the teacher's position dashboard.
package dashboard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/scranton/coretrader/internal/execution"
	"github.com/scranton/coretrader/internal/universe"
)

// Handler is the subset of *execution.Handler the dashboard reads.
type Handler interface {
	Orders() []execution.Order
	Order(id int64) (execution.Order, bool)
	Ticket(id int64) (*execution.OrderTicket, bool)
	OrderCount() int
}

// Universe is the subset of *universe.Universe the dashboard reads.
type Universe interface {
	Members() []universe.Member
}

// Config configures the dashboard HTTP server.
type Config struct {
	Port      int
	AuthToken string
}

// Server is a small read-only status surface over the engine's live state.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	handler  Handler
	universe Universe
	logger   *logrus.Logger
	port     int
	authToken string
}

// OrderView is the JSON projection of an order plus its ticket summary.
type OrderView struct {
	ID               int64   `json:"id"`
	Symbol           string  `json:"symbol"`
	Status           string  `json:"status"`
	Quantity         int64   `json:"quantity"`
	QuantityFilled   int64   `json:"quantity_filled"`
	AverageFillPrice float64 `json:"average_fill_price"`
	Tag              string  `json:"tag"`
}

// MemberView is the JSON projection of a universe member.
type MemberView struct {
	Symbol  string    `json:"symbol"`
	AddedAt time.Time `json:"added_at"`
}

// Summary is the top-level dashboard payload.
type Summary struct {
	OrderCount   int          `json:"order_count"`
	Orders       []OrderView  `json:"orders"`
	Members      []MemberView `json:"members"`
	GeneratedAt  time.Time    `json:"generated_at"`
}

// NewServer wires routes over handler/universe, matching the teacher's
// chi + logrus + auth-middleware shape.
func NewServer(cfg Config, h Handler, u Universe, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:    chi.NewRouter(),
		handler:   h,
		universe:  u,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLoggerMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(middleware.Compress(5))

	register := func(r chi.Router) {
		r.Get("/", s.handleSummary)
		r.Get("/api/orders", s.handleOrders)
		r.Get("/api/orders/{id}", s.handleOrder)
		r.Get("/api/universe", s.handleUniverse)
	}

	if s.authToken != "" {
		s.router.Route("/", func(r chi.Router) {
			r.Use(s.authMiddleware)
			register(r)
		})
	} else {
		register(s.router)
	}

	s.router.Get("/health", s.handleHealth)
}

func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loggedURL := s.redactTokenFromURL(r.URL)

		logEntry := s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"url":        loggedURL.String(),
			"user_agent": r.UserAgent(),
			"remote_ip":  r.RemoteAddr,
		})

		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)

		logEntry.WithFields(logrus.Fields{
			"status":   wrapped.Status(),
			"bytes":    wrapped.BytesWritten(),
			"duration": time.Since(start),
		}).Info("HTTP Request")
	})
}

func (s *Server) redactTokenFromURL(originalURL *url.URL) *url.URL {
	loggedURL := &url.URL{
		Scheme:   originalURL.Scheme,
		Host:     originalURL.Host,
		Path:     originalURL.Path,
		RawQuery: originalURL.RawQuery,
		Fragment: originalURL.Fragment,
	}

	if originalURL.RawQuery != "" {
		values := originalURL.Query()
		for _, k := range []string{"token", "auth_token"} {
			if values.Has(k) {
				values.Set(k, "[REDACTED]")
			}
		}
		loggedURL.RawQuery = values.Encode()
	}

	return loggedURL
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		var token string
		token = r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			if cookie, err := r.Cookie("auth_token"); err == nil {
				token = cookie.Value
			}
		}

		if !s.isValidToken(token) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) isValidToken(token string) bool {
	if len(token) != len(s.authToken) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) orderView(o execution.Order) OrderView {
	view := OrderView{
		ID:       o.ID,
		Symbol:   o.Symbol.String(),
		Status:   string(o.Status),
		Quantity: o.Quantity,
		Tag:      o.Tag,
	}
	if ticket, ok := s.handler.Ticket(o.ID); ok {
		view.QuantityFilled = ticket.QuantityFilled()
		view.AverageFillPrice = ticket.AverageFillPrice()
	}
	return view
}

func (s *Server) memberViews() []MemberView {
	members := s.universe.Members()
	views := make([]MemberView, 0, len(members))
	for _, m := range members {
		views = append(views, MemberView{Symbol: m.Symbol.String(), AddedAt: m.AddedAt})
	}
	return views
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	orders := s.handler.Orders()
	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, s.orderView(o))
	}

	summary := Summary{
		OrderCount:  s.handler.OrderCount(),
		Orders:      views,
		Members:     s.memberViews(),
		GeneratedAt: time.Now(),
	}

	s.writeJSON(w, summary)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.handler.Orders()
	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, s.orderView(o))
	}
	s.writeJSON(w, views)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	order, ok := s.handler.Order(id)
	if !ok {
		s.logger.WithField("order_id", id).Warn("order not found")
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	s.writeJSON(w, s.orderView(order))
}

func (s *Server) handleUniverse(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.memberViews())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}
