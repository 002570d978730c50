// Package strategy - breakout.go implements ETF T+1 intraday rotation: a
// three-mode state machine that carves out already-settled shares of an ETF
// position to sell into an intraday pop, then rebuys the same quantity
// later the same day on a dip, booking the spread without touching the
// T+1-locked portion of the position. Unlike individual A-share equities,
// many ETFs settle T+1 for the shares used to calculate NAV but allow same-
// day (T+0) trading of the traded unit itself — this strategy is only
// valid for instruments where that is true, decided outside this package
// by which symbols it is wired to.
//
// Modes, reset to idle at the first bar of each trading day:
//   - idle:     watching for an intraday pop from the day's open.
//   - carved:   sold a slice into the pop; watching for a dip to rebuy.
//   - done:     already completed one round trip today; no further action
//     until the next day's reset.
package strategy

import (
	"fmt"

	"github.com/ashare/tradeengine/internal/event"
)

type etfMode int

const (
	etfIdle etfMode = iota
	etfCarved
	etfDone
)

type etfState struct {
	mode      etfMode
	day       string
	openPrice float64
	peakPrice float64
	carveQty  int
}

// ETFIntradayRotationStrategy implements the three-mode T+1 rotation.
type ETFIntradayRotationStrategy struct {
	PopThreshold  float64 // default 0.015, intraday gain from open that triggers a carve-out
	RebuyDropPct  float64 // default 0.008, drop from the peak that triggers rebuy
	CarveFraction float64 // default 0.3, fraction of the held position carved out

	state    map[string]*etfState
	holdings map[string]int
}

// NewETFIntradayRotationStrategy creates the strategy with sensible
// defaults.
func NewETFIntradayRotationStrategy() *ETFIntradayRotationStrategy {
	return &ETFIntradayRotationStrategy{
		PopThreshold:  0.015,
		RebuyDropPct:  0.008,
		CarveFraction: 0.3,
		state:         make(map[string]*etfState),
		holdings:      make(map[string]int),
	}
}

func (s *ETFIntradayRotationStrategy) ID() string   { return "etf_t1_rotation_v1" }
func (s *ETFIntradayRotationStrategy) Name() string { return "ETF T+1 Intraday Rotation" }

func (s *ETFIntradayRotationStrategy) stateFor(symbol string, day string) *etfState {
	st, ok := s.state[symbol]
	if !ok || st.day != day {
		st = &etfState{mode: etfIdle, day: day}
		s.state[symbol] = st
	}
	return st
}

func (s *ETFIntradayRotationStrategy) OnMarketData(bar event.Bar, publish PublishFunc) {
	day := bar.TradeDate.Format("2006-01-02")
	st := s.stateFor(bar.Symbol, day)
	price, _ := bar.Close.Float64()

	if st.openPrice == 0 {
		st.openPrice = price
	}

	switch st.mode {
	case etfIdle:
		held := s.holdings[bar.Symbol]
		if held <= 0 || st.openPrice == 0 {
			return
		}
		gain := (price - st.openPrice) / st.openPrice
		if gain < s.PopThreshold {
			return
		}
		qty := int(float64(held) * s.CarveFraction)
		if qty <= 0 {
			return
		}
		st.carveQty = qty
		st.peakPrice = price
		st.mode = etfCarved
		publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalSell, s.CarveFraction,
			fmt.Sprintf("intraday gain %.2f%% from open %.3f, carving out %d shares", gain*100, st.openPrice, qty)))

	case etfCarved:
		if price > st.peakPrice {
			st.peakPrice = price
		}
		drop := (st.peakPrice - price) / st.peakPrice
		if drop < s.RebuyDropPct {
			return
		}
		st.mode = etfDone
		publish(event.NewSignal(s.ID(), bar.Symbol, event.SignalBuy, s.CarveFraction,
			fmt.Sprintf("price %.3f dropped %.2f%% from intraday peak %.3f, rebuying carved shares", price, drop*100, st.peakPrice)))

	case etfDone:
		return
	}
}

func (s *ETFIntradayRotationStrategy) OnFill(f event.FillSnapshot) {
	if f.Side == "BUY" {
		s.holdings[f.Symbol] += f.Quantity
	} else {
		s.holdings[f.Symbol] -= f.Quantity
		if s.holdings[f.Symbol] < 0 {
			s.holdings[f.Symbol] = 0
		}
	}
}
