// Package webhook provides an HTTP server to receive order postback
// notifications from a broker gateway. Some broker REST APIs push status
// changes asynchronously (PENDING → FILLED, PENDING → REJECTED) instead of
// requiring the client to poll, which is faster than OrderManager's
// polling fallback when the broker supports it — OrderManager's own
// GetOrderStatus poll loop still runs underneath as a safety net for
// updates a postback drops.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ashare/tradeengine/internal/order"
)

// Config holds webhook server settings.
type Config struct {
	Port    int    `json:"port"`
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
}

// postback is the JSON body a broker gateway posts when an order's status
// changes.
type postback struct {
	OrderID       string  `json:"order_id"`
	BrokerOrderID string  `json:"broker_order_id"`
	Symbol        string  `json:"symbol"`
	Status        string  `json:"status"`
	FilledQty     int     `json:"filled_qty"`
	AvgFillPrice  float64 `json:"avg_fill_price"`
	RejectReason  string  `json:"reject_reason"`
}

// OrderUpdate is the broker-agnostic representation of a postback, handed
// to registered callbacks instead of the raw wire payload.
type OrderUpdate struct {
	OrderID       string
	BrokerOrderID string
	Symbol        string
	Status        order.Status
	FilledQty     int
	AvgFillPrice  float64
	RejectReason  string
	ReceivedAt    time.Time
}

// OrderUpdateHandler is called whenever a valid postback is received.
type OrderUpdateHandler func(update OrderUpdate)

// Server is the HTTP webhook receiver.
type Server struct {
	cfg      Config
	logger   *log.Logger
	srv      *http.Server
	mu       sync.RWMutex
	handlers []OrderUpdateHandler
	updates  []OrderUpdate // ring buffer of recent updates, for status/debug
}

// NewServer creates a new webhook server. It does not start listening
// until Start is called.
func NewServer(cfg Config, logger *log.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// OnOrderUpdate registers a handler called for every validated postback.
// Multiple handlers may be registered.
func (s *Server) OnOrderUpdate(h OrderUpdateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// RecentUpdates returns a copy of the last n order updates.
func (s *Server) RecentUpdates(n int) []OrderUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.updates) {
		n = len(s.updates)
	}
	out := make([]OrderUpdate, n)
	copy(out, s.updates[len(s.updates)-n:])
	return out
}

// Start begins listening for postback HTTP requests in the background.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	path := s.cfg.Path
	if path == "" {
		path = "/webhook/order"
	}
	mux.HandleFunc(path, s.handlePostback)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Printf("webhook: starting server on %s%s", addr, path)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("webhook: server error: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the webhook server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Println("webhook: shutting down server")
	return s.srv.Shutdown(ctx)
}

func (s *Server) handlePostback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var pb postback
	if err := json.NewDecoder(r.Body).Decode(&pb); err != nil {
		s.logger.Printf("webhook: invalid JSON payload: %v", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if pb.OrderID == "" {
		http.Error(w, "missing order_id", http.StatusBadRequest)
		return
	}

	update := OrderUpdate{
		OrderID:       pb.OrderID,
		BrokerOrderID: pb.BrokerOrderID,
		Symbol:        pb.Symbol,
		Status:        mapPostbackStatus(pb.Status),
		FilledQty:     pb.FilledQty,
		AvgFillPrice:  pb.AvgFillPrice,
		RejectReason:  pb.RejectReason,
		ReceivedAt:    time.Now(),
	}

	s.logger.Printf("webhook: postback order=%s symbol=%s status=%s filled=%d price=%.2f",
		update.OrderID, update.Symbol, update.Status, update.FilledQty, update.AvgFillPrice)

	s.mu.Lock()
	s.updates = append(s.updates, update)
	if len(s.updates) > 100 {
		s.updates = s.updates[len(s.updates)-100:]
	}
	handlers := make([]OrderUpdateHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, h := range handlers {
		h(update)
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"received":true}`)
}

func mapPostbackStatus(s string) order.Status {
	switch s {
	case "FILLED", "TRADED", "COMPLETE":
		return order.StatusFilled
	case "PARTIALLY_FILLED", "PART_TRADED":
		return order.StatusPartiallyFilled
	case "CANCELED", "CANCELLED":
		return order.StatusCanceled
	case "REJECTED":
		return order.StatusRejected
	case "ACCEPTED", "OPEN", "PENDING":
		return order.StatusAccepted
	default:
		return order.StatusAccepted
	}
}
