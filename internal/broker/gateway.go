// Package broker - gateway.go implements a vendor-generic REST broker
// gateway: authenticated HTTP round trips, a symbol/exchange mapping table,
// and order-type/status mapping, all driven by GatewayConfig instead of
// hardcoded to one vendor. A concrete brokerage registers itself under a
// name (see easytrader.go) by supplying its own GatewayConfig.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ashare/tradeengine/internal/order"
	"github.com/shopspring/decimal"
)

// GatewayConfig is the vendor-specific wiring a concrete REST broker
// supplies: base URL, auth header, and the symbol/order mapping tables.
type GatewayConfig struct {
	Name        string
	BaseURL     string
	AuthHeader  string
	AccessToken string
	Timeout     time.Duration

	// ExchangeSegment maps a symbol's MIC ("SH"/"SZ") to the vendor's own
	// segment code.
	ExchangeSegment map[string]string
}

// Gateway is a vendor-generic REST BrokerAdapter.
type Gateway struct {
	cfg    GatewayConfig
	client *http.Client
}

// NewGateway constructs a Gateway from a fully-populated GatewayConfig.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("broker gateway %s: base URL required", cfg.Name)
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("broker gateway %s: access token required", cfg.Name)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (g *Gateway) Connect(ctx context.Context) error {
	_, err := g.doRequest(ctx, http.MethodGet, "/account", nil)
	if err != nil {
		return &ConnectionError{Broker: g.cfg.Name, Cause: err}
	}
	return nil
}

func (g *Gateway) Disconnect(_ context.Context) error { return nil }

func (g *Gateway) IsConnected() bool { return true } // stateless: always re-verified per call

type gatewayOrderReq struct {
	Symbol          string `json:"symbol"`
	ExchangeSegment string `json:"exchange_segment"`
	Side            string `json:"side"`
	OrderType       string `json:"order_type"`
	Quantity        int    `json:"quantity"`
	Price           string `json:"price,omitempty"`
}

type gatewayOrderResp struct {
	OrderID string `json:"order_id"`
	Error   string `json:"error,omitempty"`
}

func (g *Gateway) PlaceOrder(ctx context.Context, req Request) (string, error) {
	segment := g.mapExchangeSegment(req.Symbol)

	body := gatewayOrderReq{
		Symbol:          req.Symbol,
		ExchangeSegment: segment,
		Side:            string(req.Side),
		OrderType:       mapOrderType(req.Type),
		Quantity:        req.Quantity,
	}
	if req.Type == order.TypeLimit {
		body.Price = req.Price.String()
	}

	raw, err := g.doRequest(ctx, http.MethodPost, "/orders", body)
	if err != nil {
		return "", &ConnectionError{Broker: g.cfg.Name, Cause: err}
	}

	var resp gatewayOrderResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("broker gateway %s: decode place-order response: %w", g.cfg.Name, err)
	}
	if resp.Error != "" {
		return "", &OrderRejectedError{OrderID: resp.OrderID, Reason: resp.Error}
	}
	return resp.OrderID, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, brokerOrderID string) error {
	_, err := g.doRequest(ctx, http.MethodDelete, "/orders/"+brokerOrderID, nil)
	if err != nil {
		return &ConnectionError{Broker: g.cfg.Name, Cause: err}
	}
	return nil
}

type gatewayOrderStatusResp struct {
	Status       string `json:"status"`
	FilledQty    int    `json:"filled_qty"`
	AvgFillPrice string `json:"avg_fill_price"`
	Reason       string `json:"reason"`
}

func (g *Gateway) GetOrderStatus(ctx context.Context, brokerOrderID string) (StatusSnapshot, error) {
	raw, err := g.doRequest(ctx, http.MethodGet, "/orders/"+brokerOrderID, nil)
	if err != nil {
		return StatusSnapshot{}, &ConnectionError{Broker: g.cfg.Name, Cause: err}
	}

	var resp gatewayOrderStatusResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return StatusSnapshot{}, fmt.Errorf("broker gateway %s: decode status response: %w", g.cfg.Name, err)
	}

	avgPrice, _ := decimal.NewFromString(resp.AvgFillPrice)
	return StatusSnapshot{
		BrokerOrderID: brokerOrderID,
		Status:        mapVendorStatus(resp.Status),
		FilledQty:     resp.FilledQty,
		AvgFillPrice:  avgPrice,
		RejectReason:  resp.Reason,
		Timestamp:     time.Now(),
	}, nil
}

type gatewayPosition struct {
	Symbol            string `json:"symbol"`
	Quantity          int    `json:"quantity"`
	AvailableQuantity int    `json:"available_quantity"`
	AvgCost           string `json:"avg_cost"`
	LastPrice         string `json:"last_price"`
}

func (g *Gateway) GetPositions(ctx context.Context) ([]Position, error) {
	raw, err := g.doRequest(ctx, http.MethodGet, "/positions", nil)
	if err != nil {
		return nil, &ConnectionError{Broker: g.cfg.Name, Cause: err}
	}

	var resp []gatewayPosition
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("broker gateway %s: decode positions: %w", g.cfg.Name, err)
	}

	out := make([]Position, 0, len(resp))
	for _, p := range resp {
		avgCost, _ := decimal.NewFromString(p.AvgCost)
		lastPrice, _ := decimal.NewFromString(p.LastPrice)
		out = append(out, Position{
			Symbol:            p.Symbol,
			Quantity:          p.Quantity,
			AvailableQuantity: p.AvailableQuantity,
			AvgCost:           avgCost,
			LastPrice:         lastPrice,
		})
	}
	return out, nil
}

type gatewayAccountResp struct {
	CashBalance   string `json:"cash_balance"`
	AvailableCash string `json:"available_cash"`
	StockValue    string `json:"stock_value"`
}

func (g *Gateway) GetAccount(ctx context.Context) (Account, error) {
	raw, err := g.doRequest(ctx, http.MethodGet, "/account", nil)
	if err != nil {
		return Account{}, &ConnectionError{Broker: g.cfg.Name, Cause: err}
	}

	var resp gatewayAccountResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Account{}, fmt.Errorf("broker gateway %s: decode account: %w", g.cfg.Name, err)
	}

	cash, _ := decimal.NewFromString(resp.CashBalance)
	avail, _ := decimal.NewFromString(resp.AvailableCash)
	stock, _ := decimal.NewFromString(resp.StockValue)
	return Account{
		CashBalance:   cash,
		AvailableCash: avail,
		StockValue:    stock,
		TotalAssets:   cash.Add(stock),
	}, nil
}

// SubscribeQuotes/UnsubscribeQuotes/GetQuote are no-ops on the generic REST
// gateway: vendors that offer a realtime stream plug it in as a separate
// DataSource implementation (§4.11), not through the order-execution path.
func (g *Gateway) SubscribeQuotes(_ context.Context, _ []string) error   { return nil }
func (g *Gateway) UnsubscribeQuotes(_ context.Context, _ []string) error { return nil }
func (g *Gateway) GetQuote(_ context.Context, _ string) (decimal.Decimal, bool) {
	return decimal.Zero, false
}

func (g *Gateway) mapExchangeSegment(symbol string) string {
	if len(symbol) < 2 {
		return ""
	}
	mic := symbol[len(symbol)-2:]
	if seg, ok := g.cfg.ExchangeSegment[mic]; ok {
		return seg
	}
	return mic
}

func mapOrderType(t order.Type) string {
	switch t {
	case order.TypeLimit:
		return "LIMIT"
	default:
		return "MARKET"
	}
}

func mapVendorStatus(s string) order.Status {
	switch s {
	case "FILLED", "TRADED":
		return order.StatusFilled
	case "PARTIALLY_FILLED", "PART_TRADED":
		return order.StatusPartiallyFilled
	case "CANCELED", "CANCELLED":
		return order.StatusCanceled
	case "REJECTED":
		return order.StatusRejected
	case "PENDING", "TRANSIT":
		return order.StatusSubmitted
	default:
		return order.StatusAccepted
	}
}

func (g *Gateway) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("broker gateway %s: encode request: %w", g.cfg.Name, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("broker gateway %s: build request: %w", g.cfg.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.AuthHeader != "" {
		req.Header.Set(g.cfg.AuthHeader, g.cfg.AccessToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broker gateway %s: %s %s: %w", g.cfg.Name, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("broker gateway %s: read response: %w", g.cfg.Name, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("broker gateway %s: authentication failed", g.cfg.Name)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("broker gateway %s: rate limited", g.cfg.Name)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("broker gateway %s: %s %s: status %d: %s", g.cfg.Name, method, path, resp.StatusCode, string(raw))
	}

	return raw, nil
}
