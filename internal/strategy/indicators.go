// Package strategy - indicators.go provides shared technical indicator
// calculations over a rolling bar window. All functions are stateless and
// deterministic — given the same bar slice, they return the same result —
// so strategies can call them directly from OnMarketData against the
// window returned by a History.
package strategy

import (
	"math"

	"github.com/ashare/tradeengine/internal/event"
)

func closes(bars []event.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i], _ = b.Close.Float64()
	}
	return out
}

// SMA computes the simple moving average of closing prices over the last
// period bars. Returns 0 if insufficient data.
func SMA(bars []event.Bar, period int) float64 {
	if len(bars) < period || period <= 0 {
		return 0
	}
	c := closes(bars)
	var sum float64
	for i := len(c) - period; i < len(c); i++ {
		sum += c[i]
	}
	return sum / float64(period)
}

// EMA computes the exponential moving average series of closing prices with
// the given period, returning the full series aligned to bars (len(out) ==
// len(bars)); out[i] is 0 until enough bars have accumulated.
func EMA(bars []event.Bar, period int) []float64 {
	c := closes(bars)
	out := make([]float64, len(c))
	if period <= 0 || len(c) < period {
		return out
	}
	k := 2.0 / float64(period+1)
	var sum float64
	for i := 0; i < period; i++ {
		sum += c[i]
	}
	out[period-1] = sum / float64(period)
	for i := period; i < len(c); i++ {
		out[i] = c[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI computes the Relative Strength Index over period bars using Wilder
// smoothing. Returns 50 (neutral) if insufficient data.
func RSI(bars []event.Bar, period int) float64 {
	c := closes(bars)
	if len(c) < period+1 {
		return 50
	}
	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		change := c[i] - c[i-1]
		if change > 0 {
			gainSum += change
		} else {
			lossSum += math.Abs(change)
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	for i := period + 1; i < len(c); i++ {
		change := c[i] - c[i-1]
		var gain, loss float64
		if change > 0 {
			gain = change
		} else {
			loss = math.Abs(change)
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ATR computes the Average True Range over period bars.
func ATR(bars []event.Bar, period int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if len(bars) < period+1 {
		last := bars[len(bars)-1]
		h, _ := last.High.Float64()
		l, _ := last.Low.Float64()
		return h - l
	}
	var total float64
	for i := len(bars) - period; i < len(bars); i++ {
		curr, prev := bars[i], bars[i-1]
		h, _ := curr.High.Float64()
		l, _ := curr.Low.Float64()
		pc, _ := prev.Close.Float64()
		tr := math.Max(h-l, math.Max(math.Abs(h-pc), math.Abs(l-pc)))
		total += tr
	}
	return total / float64(period)
}

// BollingerBands returns (middle, upper, lower, bandwidth) for the last
// period bars at the given standard-deviation multiplier. bandwidth is
// (upper-lower)/middle, a normalized measure of band width used to detect
// volatility squeezes.
func BollingerBands(bars []event.Bar, period int, mult float64) (middle, upper, lower, bandwidth float64) {
	if len(bars) < period || period <= 0 {
		return 0, 0, 0, 0
	}
	c := closes(bars)
	window := c[len(c)-period:]
	var sum float64
	for _, v := range window {
		sum += v
	}
	middle = sum / float64(period)
	var variance float64
	for _, v := range window {
		variance += (v - middle) * (v - middle)
	}
	stddev := math.Sqrt(variance / float64(period))
	upper = middle + mult*stddev
	lower = middle - mult*stddev
	if middle != 0 {
		bandwidth = (upper - lower) / middle
	}
	return
}

// MACD computes (macdLine, signalLine, histogram) for the last bar using
// standard fast/slow/signal EMA periods.
func MACD(bars []event.Bar, fast, slow, signalPeriod int) (macdLine, signalLine, histogram float64) {
	if len(bars) < slow+signalPeriod {
		return 0, 0, 0
	}
	fastEMA := EMA(bars, fast)
	slowEMA := EMA(bars, slow)
	n := len(bars)
	macdSeries := make([]float64, n)
	for i := 0; i < n; i++ {
		if fastEMA[i] != 0 && slowEMA[i] != 0 {
			macdSeries[i] = fastEMA[i] - slowEMA[i]
		}
	}
	// signal line is an EMA of the MACD series itself.
	k := 2.0 / float64(signalPeriod+1)
	start := slow - 1
	if start < 0 {
		start = 0
	}
	sig := macdSeries[start]
	for i := start + 1; i < n; i++ {
		sig = macdSeries[i]*k + sig*(1-k)
	}
	macdLine = macdSeries[n-1]
	signalLine = sig
	histogram = macdLine - signalLine
	return
}

// KDJ computes the stochastic oscillator (K, D, J) over period bars, the
// standard momentum indicator used alongside MACD/RSI for A-share swing
// entries.
func KDJ(bars []event.Bar, period int) (k, d, j float64) {
	if len(bars) < period || period <= 0 {
		return 50, 50, 50
	}
	window := bars[len(bars)-period:]
	var hh, ll float64
	hh, _ = window[0].High.Float64()
	ll, _ = window[0].Low.Float64()
	for _, b := range window[1:] {
		h, _ := b.High.Float64()
		l, _ := b.Low.Float64()
		if h > hh {
			hh = h
		}
		if l < ll {
			ll = l
		}
	}
	closePx, _ := window[len(window)-1].Close.Float64()
	rsv := 50.0
	if hh != ll {
		rsv = (closePx - ll) / (hh - ll) * 100
	}
	// Simplified recursive smoothing seeded at 50, consistent with the
	// conventional K=D=50 initial condition.
	k, d = 50.0, 50.0
	for i := period; i <= len(bars); i++ {
		w := bars[i-period : i]
		var wh, wl float64
		wh, _ = w[0].High.Float64()
		wl, _ = w[0].Low.Float64()
		for _, b := range w[1:] {
			h, _ := b.High.Float64()
			l, _ := b.Low.Float64()
			if h > wh {
				wh = h
			}
			if l < wl {
				wl = l
			}
		}
		cp, _ := w[len(w)-1].Close.Float64()
		r := 50.0
		if wh != wl {
			r = (cp - wl) / (wh - wl) * 100
		}
		k = (2.0/3.0)*k + (1.0/3.0)*r
		d = (2.0/3.0)*d + (1.0/3.0)*k
	}
	_ = rsv
	j = 3*k - 2*d
	return
}

// ROC computes the rate of change (fraction) over period bars.
func ROC(bars []event.Bar, period int) float64 {
	c := closes(bars)
	if len(c) < period+1 || period <= 0 {
		return 0
	}
	current := c[len(c)-1]
	past := c[len(c)-1-period]
	if past == 0 {
		return 0
	}
	return (current - past) / past
}

// AverageVolume computes the average traded volume over the last period
// bars.
func AverageVolume(bars []event.Bar, period int) float64 {
	if len(bars) == 0 || period <= 0 {
		return 0
	}
	start := len(bars) - period
	if start < 0 {
		start = 0
	}
	var total float64
	count := 0
	for i := start; i < len(bars); i++ {
		total += float64(bars[i].Volume)
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}
