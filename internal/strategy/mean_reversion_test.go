package strategy

import (
	"testing"

	"github.com/ashare/tradeengine/internal/event"
)

func TestMeanReversion_BuysOversoldDip(t *testing.T) {
	s := NewMeanReversionStrategy()
	s.SMAPeriod = 5
	s.RSIPeriod = 4

	var signals []event.Signal
	publish := func(sig event.Signal) { signals = append(signals, sig) }

	prices := []float64{10, 10, 10, 10, 10, 9, 8, 7}
	for i, p := range prices {
		s.OnMarketData(bar("510300.SSE", i, p, 1000), publish)
	}

	found := false
	for _, sig := range signals {
		if sig.Kind == event.SignalBuy {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a BUY signal once price dropped well below the SMA with low RSI")
	}
}

func TestMeanReversion_SellsOnReversionToSMA(t *testing.T) {
	s := NewMeanReversionStrategy()
	s.SMAPeriod = 5
	s.RSIPeriod = 4
	s.position["510300.SSE"] = Position{Quantity: 100, EntryPrice: 9}

	var signals []event.Signal
	publish := func(sig event.Signal) { signals = append(signals, sig) }

	// Feed a flat series so SMA == close, triggering the reversion exit.
	for i, p := range []float64{10, 10, 10, 10, 10, 10} {
		s.OnMarketData(bar("510300.SSE", i, p, 1000), publish)
	}

	found := false
	for _, sig := range signals {
		if sig.Kind == event.SignalSell {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a SELL signal once price reverted back to the SMA")
	}
}
