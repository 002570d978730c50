package strategy

import (
	"testing"
	"time"

	"github.com/ashare/tradeengine/internal/event"
	"github.com/shopspring/decimal"
)

func bar(symbol string, day int, price float64, volume int64) event.Bar {
	d := decimal.NewFromFloat(price)
	return event.Bar{
		Symbol:    symbol,
		TradeDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day),
		Open:      d,
		High:      d,
		Low:       d,
		Close:     d,
		Volume:    volume,
		PreClose:  d,
	}
}

func series(prices []float64) []event.Bar {
	bars := make([]event.Bar, len(prices))
	for i, p := range prices {
		bars[i] = bar("TEST", i, p, 1000)
	}
	return bars
}

func TestSMA(t *testing.T) {
	bars := series([]float64{1, 2, 3, 4, 5})
	got := SMA(bars, 5)
	if got != 3 {
		t.Fatalf("SMA = %v, want 3", got)
	}
	if got := SMA(bars, 10); got != 0 {
		t.Fatalf("SMA with insufficient data = %v, want 0", got)
	}
}

func TestRSI_AllGains(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 10 + float64(i)
	}
	got := RSI(series(prices), 14)
	if got != 100 {
		t.Fatalf("RSI with monotonic gains = %v, want 100", got)
	}
}

func TestRSI_InsufficientData(t *testing.T) {
	got := RSI(series([]float64{1, 2}), 14)
	if got != 50 {
		t.Fatalf("RSI with insufficient data = %v, want 50 (neutral)", got)
	}
}

func TestBollingerBands_FlatSeries(t *testing.T) {
	bars := series([]float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10})
	middle, upper, lower, bandwidth := BollingerBands(bars, 20, 2.0)
	if middle != 10 || upper != 10 || lower != 10 || bandwidth != 0 {
		t.Fatalf("flat series bands = (%v,%v,%v,%v), want (10,10,10,0)", middle, upper, lower, bandwidth)
	}
}

func TestKDJ_InsufficientData(t *testing.T) {
	k, d, j := KDJ(series([]float64{1, 2}), 9)
	if k != 50 || d != 50 || j != 50 {
		t.Fatalf("KDJ with insufficient data = (%v,%v,%v), want (50,50,50)", k, d, j)
	}
}

func TestAverageVolume(t *testing.T) {
	bars := []event.Bar{
		bar("TEST", 0, 10, 100),
		bar("TEST", 1, 10, 200),
		bar("TEST", 2, 10, 300),
	}
	got := AverageVolume(bars, 3)
	if got != 200 {
		t.Fatalf("AverageVolume = %v, want 200", got)
	}
}
