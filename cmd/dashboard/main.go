package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/ashare/tradeengine/internal/analytics"
	"github.com/ashare/tradeengine/internal/config"
	"github.com/ashare/tradeengine/internal/dashboard"
	"github.com/ashare/tradeengine/internal/market"
	"github.com/ashare/tradeengine/internal/portfolio"
	"github.com/ashare/tradeengine/internal/storage"
	"github.com/shopspring/decimal"
)

// Server holds all dependencies for the dashboard API.
type Server struct {
	store       storage.Store
	cfg         *config.Config
	cal         *market.Calendar
	logger      *log.Logger
	port        string
	broadcaster *dashboard.Broadcaster
	listener    *dashboard.EventBridge
	cancelCtx   context.CancelFunc
}

func main() {
	configPath := flag.String("config", "config/config.json", "Path to config file")
	port := flag.String("port", "8081", "Dashboard server port")
	flag.Parse()

	logger := log.New(os.Stdout, "[dashboard] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	cal, err := market.NewCalendar(cfg.MarketCalendarPath)
	if err != nil {
		logger.Fatalf("failed to load trading calendar: %v", err)
	}

	broadcaster := dashboard.NewBroadcaster(logger)
	eventBridge := dashboard.NewEventBridge(cfg.DatabaseURL, broadcaster, logger)

	server := &Server{
		store:       store,
		cfg:         cfg,
		cal:         cal,
		logger:      logger,
		port:        *port,
		broadcaster: broadcaster,
		listener:    eventBridge,
		cancelCtx:   cancel,
	}

	go broadcaster.Run()
	logger.Println("broadcaster: started")

	eventBridge.Start(ctx)
	logger.Println("event listener: started")

	go server.startPeriodicBroadcast(ctx)
	logger.Println("periodic broadcast: started")

	mux := http.NewServeMux()
	mux.HandleFunc("/api/metrics", server.handleMetrics)
	mux.HandleFunc("/api/positions/open", server.handlePositionsOpen)
	mux.HandleFunc("/api/charts/equity", server.handleChartsEquity)
	mux.HandleFunc("/api/status", server.handleStatus)
	mux.HandleFunc("/health", server.handleHealth)
	mux.HandleFunc("/ws", server.handleWebSocket)

	httpServer := &http.Server{
		Addr:         ":" + *port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		server.logger.Printf("dashboard API starting on port %s", *port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			server.logger.Fatalf("server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	server.logger.Println("shutting down dashboard server...")

	cancel()
	time.Sleep(100 * time.Millisecond)

	eventBridge.Stop()
	time.Sleep(100 * time.Millisecond)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		server.logger.Printf("shutdown error: %v", err)
	}

	broadcaster.Shutdown()

	server.logger.Println("dashboard server stopped")
}

// closedTrades aggregates the trade archive across every configured
// strategy and filters down to rows that have actually closed. Store only
// exposes a per-strategy query, so there is no single "all closed trades"
// call to make.
func (s *Server) closedTrades(ctx context.Context) ([]storage.TradeRecord, error) {
	var out []storage.TradeRecord
	for _, strat := range s.cfg.Strategies {
		rows, err := s.store.GetTradesByStrategy(ctx, strat.ID)
		if err != nil {
			return nil, fmt.Errorf("trades for strategy %s: %w", strat.ID, err)
		}
		for _, row := range rows {
			if row.Status == "closed" {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

// tradeRecordToLedgerTrade converts an archived TradeRecord into the
// decimal-typed portfolio.Trade analytics expects. ok is false for trades
// that haven't closed yet (ExitTime is nil), which callers should skip.
func tradeRecordToLedgerTrade(tr storage.TradeRecord) (portfolio.Trade, bool) {
	if tr.ExitTime == nil {
		return portfolio.Trade{}, false
	}
	return portfolio.Trade{
		Symbol:      tr.Symbol,
		StrategyID:  tr.StrategyID,
		EntryPrice:  decimal.NewFromFloat(tr.EntryPrice),
		ExitPrice:   decimal.NewFromFloat(tr.ExitPrice),
		Quantity:    tr.Quantity,
		EntryDate:   tr.EntryTime,
		ExitDate:    *tr.ExitTime,
		RealizedPnL: decimal.NewFromFloat(tr.PnL),
	}, true
}

func (s *Server) ledgerTrades(ctx context.Context) ([]portfolio.Trade, error) {
	archived, err := s.closedTrades(ctx)
	if err != nil {
		return nil, err
	}
	trades := make([]portfolio.Trade, 0, len(archived))
	for _, tr := range archived {
		if lt, ok := tradeRecordToLedgerTrade(tr); ok {
			trades = append(trades, lt)
		}
	}
	return trades, nil
}

// handleMetrics returns current performance metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	trades, err := s.ledgerTrades(r.Context())
	if err != nil {
		s.logger.Printf("failed to get trades: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to fetch trades")
		return
	}

	capital := decimal.NewFromFloat(s.cfg.Capital)
	report := analytics.Analyze(trades, capital)

	totalPnL, _ := report.TotalPnL.Float64()
	totalPnLPct := 0.0
	if s.cfg.Capital > 0 {
		totalPnLPct = (totalPnL / s.cfg.Capital) * 100
	}
	drawdown, _ := report.MaxDrawdown.Float64()
	avgPnL, _ := report.AveragePnL.Float64()
	grossProfit, _ := report.GrossProfit.Float64()
	grossLoss, _ := report.GrossLoss.Float64()

	resp := MetricsResponse{
		TotalPnL:        totalPnL,
		TotalPnLPercent: totalPnLPct,
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

	s.respondJSON(w, http.StatusOK, resp)
}

// handlePositionsOpen returns all open positions.
func (s *Server) handlePositionsOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	openTrades, err := s.store.GetOpenTrades(ctx)
	if err != nil {
		s.logger.Printf("failed to get open trades: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to fetch positions")
		return
	}

	positions := make([]PositionResponse, 0, len(openTrades))
	totalCapitalUsed := 0.0

	for _, trade := range openTrades {
		positions = append(positions, PositionResponse{
			ID:         trade.ID,
			Symbol:     trade.Symbol,
			Side:       trade.Side,
			Quantity:   trade.Quantity,
			EntryPrice: trade.EntryPrice,
			EntryTime:  trade.EntryTime,
			StrategyID: trade.StrategyID,
		})
		totalCapitalUsed += trade.EntryPrice * float64(trade.Quantity)
	}

	availableCapital := s.cfg.Capital - totalCapitalUsed
	if availableCapital < 0 {
		availableCapital = 0
	}

	utilizationPercent := 0.0
	if s.cfg.Capital > 0 {
		utilizationPercent = (totalCapitalUsed / s.cfg.Capital) * 100
	}

	resp := PositionsResponse{
		Positions:                 positions,
		TotalCapitalUsed:          totalCapitalUsed,
		AvailableCapital:          availableCapital,
		CapitalUtilizationPercent: utilizationPercent,
		OpenPositionCount:         len(openTrades),
		Timestamp:                 time.Now(),
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// handleChartsEquity returns an equity curve built from realized P&L on
// closed trades, ordered by exit date.
func (s *Server) handleChartsEquity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	trades, err := s.ledgerTrades(r.Context())
	if err != nil {
		s.logger.Printf("failed to get trades: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to fetch trades")
		return
	}

	if len(trades) == 0 {
		s.respondJSON(w, http.StatusOK, EquityCurveResponse{
			Points:      []EquityCurvePoint{},
			StartEquity: s.cfg.Capital,
			FinalEquity: s.cfg.Capital,
			Timestamp:   time.Now(),
		})
		return
	}

	sort.Slice(trades, func(i, j int) bool { return trades[i].ExitDate.Before(trades[j].ExitDate) })

	points := make([]EquityCurvePoint, 0, len(trades))
	equity := s.cfg.Capital
	peak := equity
	maxDrawdown := 0.0
	maxDrawdownPct := 0.0

	for _, t := range trades {
		pnl, _ := t.RealizedPnL.Float64()
		equity += pnl
		if equity > peak {
			peak = equity
		}
		drawdown := peak - equity
		ddPct := 0.0
		if peak > 0 {
			ddPct = (drawdown / peak) * 100
		}
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
			maxDrawdownPct = ddPct
		}
		points = append(points, EquityCurvePoint{
			Date:            t.ExitDate,
			Equity:          equity,
			Drawdown:        drawdown,
			DrawdownPercent: ddPct,
		})
	}

	totalReturn := equity - s.cfg.Capital
	totalReturnPct := 0.0
	if s.cfg.Capital > 0 {
		totalReturnPct = (totalReturn / s.cfg.Capital) * 100
	}

	s.respondJSON(w, http.StatusOK, EquityCurveResponse{
		Points:             points,
		StartEquity:        s.cfg.Capital,
		FinalEquity:        equity,
		MaxDrawdown:        maxDrawdown,
		MaxDrawdownPercent: maxDrawdownPct,
		TotalReturn:        totalReturn,
		TotalReturnPercent: totalReturnPct,
		Timestamp:          time.Now(),
	})
}

// handleStatus returns system status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	openTrades, err := s.store.GetOpenTrades(ctx)
	if err != nil {
		s.logger.Printf("failed to get open trades: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to fetch status")
		return
	}

	totalCapitalUsed := 0.0
	for _, trade := range openTrades {
		totalCapitalUsed += trade.EntryPrice * float64(trade.Quantity)
	}

	today := time.Now().Truncate(24 * time.Hour)
	dailyPnL, _ := s.store.GetDailyPnL(ctx, today)

	availableCapital := s.cfg.Capital - totalCapitalUsed
	if availableCapital < 0 {
		availableCapital = 0
	}

	resp := StatusResponse{
		MarketOpen:       s.cal.IsMarketOpen(time.Now()),
		OpenPositions:    len(openTrades),
		AvailableCapital: availableCapital,
		TotalCapital:     s.cfg.Capital,
		DailyPnL:         dailyPnL,
		Message: fmt.Sprintf("%d positions open, %s available",
			len(openTrades), market.FormatCNY(decimal.NewFromFloat(availableCapital))),
		Timestamp: time.Now(),
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// handleHealth returns a liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      status,
		Timestamp: time.Now(),
	})
}
