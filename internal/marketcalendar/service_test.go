package marketcalendar

import (
	"testing"
	"time"

	"github.com/prism-insight/execution-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seoul(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	return loc
}

func newYork(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestIsOpen_KR_DuringSession(t *testing.T) {
	cal := NewCalendar(nil)
	loc := seoul(t)
	// Tuesday 10:00 KST
	open := time.Date(2026, 3, 3, 10, 0, 0, 0, loc)
	assert.True(t, cal.IsOpen(domain.MarketKR, open))
}

func TestIsOpen_KR_ContinuousThroughMidday(t *testing.T) {
	cal := NewCalendar(nil)
	loc := seoul(t)
	midday := time.Date(2026, 3, 3, 12, 0, 0, 0, loc)
	assert.True(t, cal.IsOpen(domain.MarketKR, midday))
}

func TestIsOpen_KR_Weekend(t *testing.T) {
	cal := NewCalendar(nil)
	loc := seoul(t)
	saturday := time.Date(2026, 3, 7, 10, 0, 0, 0, loc)
	assert.False(t, cal.IsOpen(domain.MarketKR, saturday))
}

func TestIsOpen_KR_ExternalHoliday(t *testing.T) {
	loc := seoul(t)
	holiday := time.Date(2026, 3, 3, 0, 0, 0, 0, loc)
	cal := NewCalendar([]time.Time{holiday})

	duringHours := time.Date(2026, 3, 3, 10, 0, 0, 0, loc)
	assert.False(t, cal.IsOpen(domain.MarketKR, duringHours))
}

func TestIsOpen_US_OutsideHours(t *testing.T) {
	cal := NewCalendar(nil)
	loc := newYork(t)
	beforeOpen := time.Date(2026, 3, 3, 8, 0, 0, 0, loc)
	assert.False(t, cal.IsOpen(domain.MarketUS, beforeOpen))
}

func TestIsOpen_US_Holiday(t *testing.T) {
	cal := NewCalendar(nil)
	loc := newYork(t)
	// July 4, 2026 falls on a Saturday; observed Friday July 3
	observed := time.Date(2026, 7, 3, 10, 0, 0, 0, loc)
	assert.False(t, cal.IsOpen(domain.MarketUS, observed))
}

func TestNextOpen_LandsInsideOpenSession(t *testing.T) {
	cal := NewCalendar(nil)
	loc := newYork(t)
	closed := time.Date(2026, 3, 3, 20, 0, 0, 0, loc)

	next := cal.NextOpen(domain.MarketUS, closed)
	assert.True(t, cal.IsOpen(domain.MarketUS, next))
}

func TestNextOpen_SkipsWeekend(t *testing.T) {
	cal := NewCalendar(nil)
	loc := newYork(t)
	friday := time.Date(2026, 3, 6, 20, 0, 0, 0, loc)

	next := cal.NextOpen(domain.MarketUS, friday)
	assert.Equal(t, time.Monday, next.Weekday())
}

func TestLastTradingDay_WeekendRun(t *testing.T) {
	cal := NewCalendar(nil)
	loc := newYork(t)
	sunday := time.Date(2026, 3, 8, 12, 0, 0, 0, loc)

	last := cal.LastTradingDay(domain.MarketUS, sunday)
	assert.Equal(t, time.Friday, last.Weekday())
}

func TestGetStatus_ReportsNextOpenWhenClosed(t *testing.T) {
	cal := NewCalendar(nil)
	loc := newYork(t)
	closed := time.Date(2026, 3, 3, 20, 0, 0, 0, loc)

	status, err := cal.GetStatus(domain.MarketUS, closed)
	require.NoError(t, err)
	assert.False(t, status.Open)
	assert.NotEmpty(t, status.OpensDate)
}
