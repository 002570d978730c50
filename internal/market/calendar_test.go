package market

import (
	"testing"
	"time"
)

func makeTestCalendar() *Calendar {
	return NewCalendarFromHolidays(map[string]string{
		"2026-01-01": "New Year's Day",
		"2026-02-17": "Spring Festival",
		"2026-10-01": "National Day",
	})
}

func TestCalendar_WeekdayIsTradingDay(t *testing.T) {
	cal := makeTestCalendar()
	// Monday, Feb 2, 2026.
	monday := time.Date(2026, 2, 2, 10, 0, 0, 0, CST)
	if !cal.IsTradingDay(monday) {
		t.Error("expected Monday to be a trading day")
	}
}

func TestCalendar_WeekendIsNotTradingDay(t *testing.T) {
	cal := makeTestCalendar()
	saturday := time.Date(2026, 2, 7, 10, 0, 0, 0, CST)
	sunday := time.Date(2026, 2, 8, 10, 0, 0, 0, CST)

	if cal.IsTradingDay(saturday) {
		t.Error("expected Saturday to not be a trading day")
	}
	if cal.IsTradingDay(sunday) {
		t.Error("expected Sunday to not be a trading day")
	}
}

func TestCalendar_HolidayIsNotTradingDay(t *testing.T) {
	cal := makeTestCalendar()
	springFestival := time.Date(2026, 2, 17, 10, 0, 0, 0, CST)

	if cal.IsTradingDay(springFestival) {
		t.Error("expected Spring Festival to not be a trading day")
	}
	if reason := cal.HolidayReason(springFestival); reason != "Spring Festival" {
		t.Errorf("expected 'Spring Festival', got %q", reason)
	}
}

func TestCalendar_MarketOpenDuringMorningSession(t *testing.T) {
	cal := makeTestCalendar()
	// 10:30 AM CST on a trading day.
	during := time.Date(2026, 2, 2, 10, 30, 0, 0, CST)
	if !cal.IsMarketOpen(during) {
		t.Error("expected market to be open at 10:30 AM CST on trading day")
	}
}

func TestCalendar_MarketOpenDuringAfternoonSession(t *testing.T) {
	cal := makeTestCalendar()
	// 2:00 PM CST on a trading day.
	during := time.Date(2026, 2, 2, 14, 0, 0, 0, CST)
	if !cal.IsMarketOpen(during) {
		t.Error("expected market to be open at 2:00 PM CST on trading day")
	}
}

func TestCalendar_MarketClosedDuringMiddayGap(t *testing.T) {
	cal := makeTestCalendar()
	// 12:15 PM CST — after the morning close, before the afternoon open.
	gap := time.Date(2026, 2, 2, 12, 15, 0, 0, CST)
	if cal.IsMarketOpen(gap) {
		t.Error("expected market to be closed during the midday gap")
	}
	if _, open := cal.CurrentSession(gap); open {
		t.Error("expected no active session during the midday gap")
	}
}

func TestCalendar_MarketClosedBeforeOpen(t *testing.T) {
	cal := makeTestCalendar()
	// 9:00 AM CST (before 9:30 open).
	before := time.Date(2026, 2, 2, 9, 0, 0, 0, CST)
	if cal.IsMarketOpen(before) {
		t.Error("expected market to be closed at 9:00 AM CST")
	}
}

func TestCalendar_MarketClosedAfterClose(t *testing.T) {
	cal := makeTestCalendar()
	// 3:01 PM CST (after 3:00 PM close).
	after := time.Date(2026, 2, 2, 15, 1, 0, 0, CST)
	if cal.IsMarketOpen(after) {
		t.Error("expected market to be closed at 3:01 PM CST")
	}
}

func TestCalendar_MarketClosedOnWeekend(t *testing.T) {
	cal := makeTestCalendar()
	saturday := time.Date(2026, 2, 7, 10, 30, 0, 0, CST)
	if cal.IsMarketOpen(saturday) {
		t.Error("expected market to be closed on Saturday")
	}
}

func TestCalendar_CurrentSessionIdentifiesMorningVsAfternoon(t *testing.T) {
	cal := makeTestCalendar()

	morning := time.Date(2026, 2, 2, 10, 0, 0, 0, CST)
	session, open := cal.CurrentSession(morning)
	if !open || session != Morning {
		t.Errorf("expected Morning session at 10:00 AM, got %+v open=%v", session, open)
	}

	afternoon := time.Date(2026, 2, 2, 14, 0, 0, 0, CST)
	session, open = cal.CurrentSession(afternoon)
	if !open || session != Afternoon {
		t.Errorf("expected Afternoon session at 2:00 PM, got %+v open=%v", session, open)
	}
}

func TestCalendar_TimeUntilNextSession(t *testing.T) {
	cal := makeTestCalendar()

	// After market close on Friday → next session is Monday morning.
	friday := time.Date(2026, 2, 6, 16, 0, 0, 0, CST)
	duration := cal.TimeUntilNextSession(friday)

	if duration <= 0 {
		t.Errorf("expected positive duration, got %v", duration)
	}

	// During market hours → should be 0.
	during := time.Date(2026, 2, 2, 10, 30, 0, 0, CST)
	duration = cal.TimeUntilNextSession(during)
	if duration != 0 {
		t.Errorf("expected 0 during market hours, got %v", duration)
	}

	// In the midday gap → should count down to the 1:00 PM afternoon open.
	gap := time.Date(2026, 2, 2, 12, 0, 0, 0, CST)
	duration = cal.TimeUntilNextSession(gap)
	if duration <= 0 || duration > time.Hour {
		t.Errorf("expected a short wait for the afternoon open, got %v", duration)
	}
}

func TestCalendar_NextTradingDay(t *testing.T) {
	cal := makeTestCalendar()

	// Friday → next trading day is Monday.
	friday := time.Date(2026, 2, 6, 0, 0, 0, 0, CST)
	next := cal.NextTradingDay(friday)

	if next.Weekday() != time.Monday {
		t.Errorf("expected Monday after Friday, got %s", next.Weekday())
	}
}

func TestCalendar_NextTradingDaySkipsHoliday(t *testing.T) {
	cal := makeTestCalendar()

	// National Day, a Thursday in this fixture → next trading day skips it.
	holiday := time.Date(2026, 9, 30, 0, 0, 0, 0, CST)
	next := cal.NextTradingDay(holiday)

	if next.Format("2006-01-02") == "2026-10-01" {
		t.Error("expected National Day to be skipped")
	}
}

func TestCalendar_PreviousTradingDay(t *testing.T) {
	cal := makeTestCalendar()

	// Monday → previous trading day is Friday.
	monday := time.Date(2026, 2, 9, 0, 0, 0, 0, CST)
	prev := cal.PreviousTradingDay(monday)

	if prev.Weekday() != time.Friday {
		t.Errorf("expected Friday before Monday, got %s", prev.Weekday())
	}
}

func TestCalendar_TestCalendarIgnoresTradingHours(t *testing.T) {
	cal := NewTestCalendar(nil)

	sunday := time.Date(2026, 2, 8, 3, 0, 0, 0, CST)
	if !cal.IsTradingDay(sunday) {
		t.Error("NewTestCalendar should treat every day as a trading day")
	}
	if !cal.IsMarketOpen(sunday) {
		t.Error("NewTestCalendar should treat the market as always open")
	}
}
