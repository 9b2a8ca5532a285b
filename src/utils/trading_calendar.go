package utils

import (
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// maxCalendarShift bounds how far back a window can be walked to find a trading day.
const maxCalendarShift = 7

// TradingCalendar answers trading-day questions using scmhub/calendar.
type TradingCalendar struct {
	MIC      string
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

// GetCalendar returns the calendar for an exchange MIC (e.g. "xnys", "xcme"),
// falling back to NYSE and then to a plain Mon-Fri calendar (Fallback set).
func GetCalendar(mic string) *TradingCalendar {
	mic = strings.ToLower(strings.TrimSpace(mic))
	if mic == "" {
		mic = "xnys"
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		cal = calendar.GetCalendar("xnys")
	}

	if cal == nil {
		nyLoc, _ := time.LoadLocation("America/New_York")
		if nyLoc == nil {
			nyLoc = time.UTC
		}
		return &TradingCalendar{MIC: mic, Fallback: true, Timezone: nyLoc}
	}

	return &TradingCalendar{MIC: mic, Calendar: cal, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// ShiftBackToTradingDay steps t back one day at a time until it lands on a
// trading day. It returns the number of days shifted.
func (tc *TradingCalendar) ShiftBackToTradingDay(t time.Time) (time.Time, int) {
	shifted := 0
	for shifted < maxCalendarShift && !tc.IsTradingDay(t) {
		t = t.AddDate(0, 0, -1)
		shifted++
	}
	return t, shifted
}
