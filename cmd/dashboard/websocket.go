package main

import (
	"context"
	"net/http"
	"time"

	"github.com/ashare/tradeengine/internal/analytics"
	"github.com/ashare/tradeengine/internal/dashboard"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket upgrades to a WebSocket connection and registers the
// client with the broadcaster for push updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	client := &dashboard.Client{
		ID:   r.RemoteAddr,
		Send: make(chan interface{}, 256),
	}

	s.broadcaster.Register(client)
	defer s.broadcaster.Unregister(client)

	s.logger.Printf("websocket: client connected from %s", client.ID)

	go s.writePump(ws, client)
	s.readPump(ws, client)
}

func (s *Server) writePump(ws *websocket.Conn, client *dashboard.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteJSON(message); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.Printf("websocket write error for %s: %v", client.ID, err)
				}
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(ws *websocket.Conn, client *dashboard.Client) {
	defer func() {
		s.broadcaster.Unregister(client)
		s.logger.Printf("websocket: client disconnected from %s", client.ID)
	}()

	ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		messageType, _, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Printf("websocket read error for %s: %v", client.ID, err)
			}
			return
		}
		if messageType == websocket.TextMessage {
			s.logger.Printf("websocket: received text message from %s", client.ID)
		}
	}
}

// broadcastMetrics pushes updated metrics to all connected WebSocket
// clients, reusing the same archive-aggregation path as /api/metrics.
func (s *Server) broadcastMetrics(ctx context.Context) error {
	trades, err := s.ledgerTrades(ctx)
	if err != nil {
		return err
	}
	openTrades, err := s.store.GetOpenTrades(ctx)
	if err != nil {
		return err
	}

	if len(trades) == 0 {
		s.broadcaster.Broadcast(dashboard.WebSocketMessage{
			Type: "metrics",
			Data: MetricsResponse{
				InitialCapital: s.cfg.Capital,
				FinalCapital:   s.cfg.Capital,
				Timestamp:      time.Now(),
			},
			Timestamp: time.Now().Format(time.RFC3339),
		})
		return nil
	}

	capital := decimal.NewFromFloat(s.cfg.Capital)
	report := analytics.Analyze(trades, capital)
	totalPnL, _ := report.TotalPnL.Float64()
	drawdown, _ := report.MaxDrawdown.Float64()
	avgPnL, _ := report.AveragePnL.Float64()
	grossProfit, _ := report.GrossProfit.Float64()
	grossLoss, _ := report.GrossLoss.Float64()

	metricsResp := MetricsResponse{
		TotalPnL:        totalPnL,
		TotalPnLPercent: (totalPnL / s.cfg.Capital) * 100,
		WinRate:         report.WinRate,
		ProfitFactor:    report.ProfitFactor,
		Drawdown:        drawdown,
		DrawdownPercent: report.MaxDrawdownPct,
		SharpeRatio:     report.SharpeRatio,
		TotalTrades:     report.TotalTrades,
		WinningTrades:   report.WinningTrades,
		LosingTrades:    report.LosingTrades,
		AvgPnL:          avgPnL,
		GrossProfit:     grossProfit,
		GrossLoss:       grossLoss,
		AvgHoldDays:     report.AverageHoldDays,
		InitialCapital:  s.cfg.Capital,
		FinalCapital:    s.cfg.Capital + totalPnL,
		Timestamp:       time.Now(),
	}

	s.broadcaster.Broadcast(dashboard.WebSocketMessage{
		Type: "metrics",
		Data: map[string]interface{}{
			"metrics":             metricsResp,
			"open_position_count": len(openTrades),
		},
		Timestamp: time.Now().Format(time.RFC3339),
	})
	return nil
}

// startPeriodicBroadcast sends periodic metric updates to connected clients.
func (s *Server) startPeriodicBroadcast(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.broadcastMetrics(ctx); err != nil {
				s.logger.Printf("failed to broadcast metrics: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
