package strategy

import (
	"testing"

	"github.com/ashare/tradeengine/internal/event"
)

func TestMACrossover_BuysOnGoldenCross(t *testing.T) {
	s := NewMACrossoverStrategy()
	s.FastPeriod = 2
	s.SlowPeriod = 4

	var signals []event.Signal
	publish := func(sig event.Signal) { signals = append(signals, sig) }

	prices := []float64{10, 10, 10, 10, 9, 8, 7, 12, 13}
	for i, p := range prices {
		s.OnMarketData(bar("600000.SSE", i, p, 1000), publish)
	}

	if len(signals) == 0 {
		t.Fatal("expected at least one signal once the fast SMA overtook the slow SMA")
	}
	if signals[0].Kind != event.SignalBuy {
		t.Fatalf("first signal kind = %v, want BUY", signals[0].Kind)
	}
}

func TestMACrossover_NoSignalBeforeWarmup(t *testing.T) {
	s := NewMACrossoverStrategy()
	var signals []event.Signal
	publish := func(sig event.Signal) { signals = append(signals, sig) }

	for i := 0; i < s.SlowPeriod; i++ {
		s.OnMarketData(bar("600000.SSE", i, 10, 1000), publish)
	}
	if len(signals) != 0 {
		t.Fatalf("expected no signals before slow SMA warms up, got %d", len(signals))
	}
}

func TestMACrossover_OnFillTracksPosition(t *testing.T) {
	s := NewMACrossoverStrategy()
	s.OnFill(event.FillSnapshot{Symbol: "600000.SSE", Side: "BUY", Quantity: 100})
	if !s.position["600000.SSE"].Open() {
		t.Fatal("expected position to be open after a BUY fill")
	}
	s.OnFill(event.FillSnapshot{Symbol: "600000.SSE", Side: "SELL", Quantity: 100})
	if s.position["600000.SSE"].Open() {
		t.Fatal("expected position to be flat after a matching SELL fill")
	}
}
