package portfolio

import (
	"testing"
	"time"

	"github.com/ashare/tradeengine/internal/config"
	"github.com/ashare/tradeengine/internal/event"
	"github.com/ashare/tradeengine/internal/market"
	"github.com/ashare/tradeengine/internal/order"
	"github.com/shopspring/decimal"
)

func testCalendar() *market.Calendar {
	return market.NewCalendarFromHolidays(map[string]string{})
}

func newTestLedger(cash float64) *Ledger {
	return New(decimal.NewFromFloat(cash), DefaultSizingConfig(), config.RiskConfig{}, testCalendar())
}

// Monday, kept off a weekend so NextTradingDay lands on Tuesday.
func monday() time.Time {
	return time.Date(2026, 2, 2, 10, 0, 0, 0, market.CST)
}

func TestLedger_BuyLotNotImmediatelyAvailable(t *testing.T) {
	l := newTestLedger(100000)
	buyTime := monday()

	l.ApplyFill(event.FillSnapshot{
		Symbol:    "600000.SH",
		Side:      string(order.SideBuy),
		Quantity:  100,
		Price:     decimal.NewFromInt(10),
		Timestamp: buyTime,
	}, "test")

	pos, ok := l.Position("600000.SH")
	if !ok {
		t.Fatal("expected open position after BUY fill")
	}
	if pos.Quantity != 100 {
		t.Errorf("Quantity = %d, want 100", pos.Quantity)
	}
	if avail := l.AvailableQuantity("600000.SH", buyTime); avail != 0 {
		t.Errorf("AvailableQuantity immediately after BUY = %d, want 0 (T+1 locked)", avail)
	}
}

func TestLedger_BuyLotAvailableAtNextSessionOpen(t *testing.T) {
	l := newTestLedger(100000)
	buyTime := monday()

	l.ApplyFill(event.FillSnapshot{
		Symbol:    "600000.SH",
		Side:      string(order.SideBuy),
		Quantity:  100,
		Price:     decimal.NewFromInt(10),
		Timestamp: buyTime,
	}, "test")

	nextOpen := time.Date(2026, 2, 3, market.Morning.OpenHour, market.Morning.OpenMin, 0, 0, market.CST)
	if avail := l.AvailableQuantity("600000.SH", nextOpen); avail != 100 {
		t.Errorf("AvailableQuantity at T+1 open = %d, want 100", avail)
	}
}

func TestLedger_AvailableQuantityNeverExceedsQuantity(t *testing.T) {
	l := newTestLedger(100000)
	day1 := monday()
	day2 := time.Date(2026, 2, 3, 10, 0, 0, 0, market.CST)

	l.ApplyFill(event.FillSnapshot{Symbol: "600000.SH", Side: string(order.SideBuy), Quantity: 100, Price: decimal.NewFromInt(10), Timestamp: day1}, "test")
	l.ApplyFill(event.FillSnapshot{Symbol: "600000.SH", Side: string(order.SideBuy), Quantity: 50, Price: decimal.NewFromInt(11), Timestamp: day2}, "test")

	pos, _ := l.Position("600000.SH")
	avail := l.AvailableQuantity("600000.SH", day2)
	if avail > pos.Quantity {
		t.Fatalf("available (%d) exceeds total quantity (%d)", avail, pos.Quantity)
	}
	// Day1's lot has settled by day2's open-or-later timestamp used here
	// (10:00 is after the session open), day2's lot has not.
	if avail != 100 {
		t.Errorf("available quantity = %d, want 100 (only day1's lot settled)", avail)
	}
}

func TestLedger_SizeSellCapsToAvailableNotTotalQuantity(t *testing.T) {
	l := newTestLedger(100000)
	buyTime := monday()

	l.ApplyFill(event.FillSnapshot{
		Symbol:    "600000.SH",
		Side:      string(order.SideBuy),
		Quantity:  200,
		Price:     decimal.NewFromInt(10),
		Timestamp: buyTime,
	}, "test")

	// Same-day SELL attempt: nothing has settled yet.
	qty := l.SizeSell("600000.SH", 1.0, buyTime)
	if qty != 0 {
		t.Errorf("SizeSell same-day = %d, want 0 (T+1 locked)", qty)
	}

	nextOpen := time.Date(2026, 2, 3, market.Morning.OpenHour, market.Morning.OpenMin, 0, 0, market.CST)
	qty = l.SizeSell("600000.SH", 1.0, nextOpen)
	if qty != 200 {
		t.Errorf("SizeSell at T+1 open = %d, want 200", qty)
	}
}

func TestLedger_SellFillConsumesLotsFIFO(t *testing.T) {
	l := newTestLedger(100000)
	day1 := monday()
	nextOpen := time.Date(2026, 2, 3, market.Morning.OpenHour, market.Morning.OpenMin, 0, 0, market.CST)

	l.ApplyFill(event.FillSnapshot{Symbol: "600000.SH", Side: string(order.SideBuy), Quantity: 100, Price: decimal.NewFromInt(10), Timestamp: day1}, "test")
	l.ApplyFill(event.FillSnapshot{Symbol: "600000.SH", Side: string(order.SideSell), Quantity: 60, Price: decimal.NewFromInt(12), Timestamp: nextOpen}, "test")

	pos, ok := l.Position("600000.SH")
	if !ok {
		t.Fatal("expected remaining open position after partial SELL")
	}
	if pos.Quantity != 40 {
		t.Errorf("Quantity after partial SELL = %d, want 40", pos.Quantity)
	}
	if avail := l.AvailableQuantity("600000.SH", nextOpen); avail != 40 {
		t.Errorf("AvailableQuantity after partial SELL = %d, want 40", avail)
	}
}

func TestLedger_HoldingsValueSumsMarketValue(t *testing.T) {
	l := newTestLedger(100000)
	buyTime := monday()

	l.ApplyFill(event.FillSnapshot{Symbol: "600000.SH", Side: string(order.SideBuy), Quantity: 100, Price: decimal.NewFromInt(10), Timestamp: buyTime}, "test")
	l.ApplyFill(event.FillSnapshot{Symbol: "000858.SZ", Side: string(order.SideBuy), Quantity: 50, Price: decimal.NewFromInt(20), Timestamp: buyTime}, "test")

	l.OnMarketData(event.Bar{Symbol: "600000.SH", Close: decimal.NewFromInt(12), TradeDate: buyTime})
	l.OnMarketData(event.Bar{Symbol: "000858.SZ", Close: decimal.NewFromInt(22), TradeDate: buyTime})

	want := decimal.NewFromInt(12 * 100).Add(decimal.NewFromInt(22 * 50))
	if got := l.HoldingsValue(); !got.Equal(want) {
		t.Errorf("HoldingsValue = %s, want %s", got, want)
	}
}

func TestLedger_SizeSellZeroWhenNoPosition(t *testing.T) {
	l := newTestLedger(100000)
	if qty := l.SizeSell("600000.SH", 1.0, monday()); qty != 0 {
		t.Errorf("SizeSell with no position = %d, want 0", qty)
	}
}
