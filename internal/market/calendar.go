// Package market handles market state awareness: trading calendar, session
// windows, and symbol/board classification for Chinese A-share and HK
// instruments.
//
// Design rules (from the platform spec):
//   - System must know if today is a trading day.
//   - System must know if the market is currently in one of its two sessions.
//   - Do not rely only on time checks. Use exchange calendar data.
//   - One central Calendar module.
package market

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// CST is the China Standard Time location shared by SH/SZ trading sessions.
var CST *time.Location

func init() {
	var err error
	CST, err = time.LoadLocation("Asia/Shanghai")
	if err != nil {
		panic(fmt.Sprintf("market: failed to load Asia/Shanghai timezone: %v", err))
	}
}

// Session marks one of the two disjoint continuous-auction windows an A-share
// exchange runs each trading day. Unlike a single-session market, a time can
// fall in the midday gap and be a trading day with the market still closed.
type Session struct {
	OpenHour, OpenMin   int
	CloseHour, CloseMin int
}

func (s Session) containsMinutes(m int) bool {
	open := s.OpenHour*60 + s.OpenMin
	closeM := s.CloseHour*60 + s.CloseMin
	return m >= open && m < closeM
}

// Morning and Afternoon are the two SH/SZ continuous-auction sessions.
var (
	Morning   = Session{OpenHour: 9, OpenMin: 30, CloseHour: 11, CloseMin: 30}
	Afternoon = Session{OpenHour: 13, OpenMin: 0, CloseHour: 15, CloseMin: 0}
)

// Calendar provides exchange calendar and market session state.
type Calendar struct {
	holidays map[string]string // date (YYYY-MM-DD) -> reason

	// ignoreTradingHours bypasses session/trading-day checks entirely.
	// Per the platform spec this must only ever be set by test harnesses;
	// the live cmd/engine binary has no flag or config key that reaches it.
	ignoreTradingHours bool
}

// HolidayEntry represents a single exchange holiday (CSRC-published calendar).
type HolidayEntry struct {
	Date   string `json:"date"`   // YYYY-MM-DD
	Reason string `json:"reason"` // e.g., "Spring Festival", "National Day"
}

// NewCalendar creates a Calendar from a JSON holiday file.
// The file should contain an array of HolidayEntry objects.
func NewCalendar(holidayFilePath string) (*Calendar, error) {
	data, err := os.ReadFile(holidayFilePath)
	if err != nil {
		return nil, fmt.Errorf("market calendar: read holidays file: %w", err)
	}

	var entries []HolidayEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("market calendar: parse holidays: %w", err)
	}

	holidays := make(map[string]string, len(entries))
	for _, e := range entries {
		holidays[e.Date] = e.Reason
	}

	return &Calendar{holidays: holidays}, nil
}

// NewCalendarFromHolidays creates a Calendar directly from a holiday map.
// Useful for testing.
func NewCalendarFromHolidays(holidays map[string]string) *Calendar {
	return &Calendar{holidays: holidays}
}

// NewTestCalendar returns a Calendar that ignores trading-day/session checks
// entirely. Only test code may construct one; there is no path from
// production config to this constructor.
func NewTestCalendar(holidays map[string]string) *Calendar {
	return &Calendar{holidays: holidays, ignoreTradingHours: true}
}

// IsTradingDay returns true if the given date is a valid trading day:
// a weekday that is not a published exchange holiday.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	if c.ignoreTradingHours {
		return true
	}

	d := date.In(CST)

	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}

	dateStr := d.Format("2006-01-02")
	if _, isHoliday := c.holidays[dateStr]; isHoliday {
		return false
	}

	return true
}

// HolidayReason returns the reason for a holiday, or empty string if not one.
func (c *Calendar) HolidayReason(date time.Time) string {
	dateStr := date.In(CST).Format("2006-01-02")
	return c.holidays[dateStr]
}

// IsMarketOpen returns true if now falls inside the morning or afternoon
// continuous-auction session of a trading day. The midday gap (11:30-13:00)
// and pre/post-market hours are closed even on a trading day.
func (c *Calendar) IsMarketOpen(now time.Time) bool {
	if c.ignoreTradingHours {
		return true
	}

	t := now.In(CST)
	if !c.IsTradingDay(t) {
		return false
	}

	minutes := t.Hour()*60 + t.Minute()
	return Morning.containsMinutes(minutes) || Afternoon.containsMinutes(minutes)
}

// CurrentSession returns the active session and true, or the zero Session
// and false if the market is currently closed.
func (c *Calendar) CurrentSession(now time.Time) (Session, bool) {
	t := now.In(CST)
	if !c.IsTradingDay(t) {
		return Session{}, false
	}
	minutes := t.Hour()*60 + t.Minute()
	if Morning.containsMinutes(minutes) {
		return Morning, true
	}
	if Afternoon.containsMinutes(minutes) {
		return Afternoon, true
	}
	return Session{}, false
}

// TimeUntilNextSession returns the duration until the next session open.
// If the market is currently open, returns 0.
func (c *Calendar) TimeUntilNextSession(now time.Time) time.Duration {
	t := now.In(CST)

	if c.IsMarketOpen(t) {
		return 0
	}

	if c.IsTradingDay(t) {
		minutes := t.Hour()*60 + t.Minute()
		// Before the morning open, or sitting in the midday gap: same day.
		if minutes < Morning.OpenHour*60+Morning.OpenMin {
			open := time.Date(t.Year(), t.Month(), t.Day(), Morning.OpenHour, Morning.OpenMin, 0, 0, CST)
			return open.Sub(t)
		}
		if minutes < Afternoon.OpenHour*60+Afternoon.OpenMin {
			open := time.Date(t.Year(), t.Month(), t.Day(), Afternoon.OpenHour, Afternoon.OpenMin, 0, 0, CST)
			return open.Sub(t)
		}
	}

	candidate := t
	for i := 0; i < 10; i++ { // Look ahead up to 10 days.
		candidate = candidate.AddDate(0, 0, 1)
		if c.IsTradingDay(candidate) {
			nextOpen := time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
				Morning.OpenHour, Morning.OpenMin, 0, 0, CST)
			return nextOpen.Sub(t)
		}
	}

	// Fallback: shouldn't happen with a reasonable holiday calendar.
	return 24 * time.Hour
}

// NextTradingDay returns the next trading day after the given date.
func (c *Calendar) NextTradingDay(date time.Time) time.Time {
	candidate := date.In(CST).AddDate(0, 0, 1)
	for i := 0; i < 10; i++ {
		if c.IsTradingDay(candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// PreviousTradingDay returns the most recent trading day before the given date.
func (c *Calendar) PreviousTradingDay(date time.Time) time.Time {
	candidate := date.In(CST).AddDate(0, 0, -1)
	for i := 0; i < 10; i++ {
		if c.IsTradingDay(candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, -1)
	}
	return candidate
}
