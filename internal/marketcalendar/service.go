package marketcalendar

import (
	"fmt"
	"sync"
	"time"

	"github.com/prism-insight/execution-core/internal/domain"
)

// Calendar is the authoritative oracle for KR and US trading sessions.
// KR's holiday set is supplied externally (the market's closures are not
// rule-derivable the way NYSE's are); US holidays are compiled in.
type Calendar struct {
	krHolidays map[string]bool // "2026-01-01" style date keys

	mu            sync.Mutex // guards usHolidayYear, filled lazily per year
	usHolidayYear map[int][]time.Time
}

// NewCalendar builds a Calendar. krHolidays is the externally supplied KR
// holiday set for the years this process will run across.
func NewCalendar(krHolidays []time.Time) *Calendar {
	set := make(map[string]bool, len(krHolidays))
	for _, h := range krHolidays {
		set[h.Format("2006-01-02")] = true
	}
	return &Calendar{
		krHolidays:    set,
		usHolidayYear: make(map[int][]time.Time),
	}
}

func (c *Calendar) config(market domain.Market) *ExchangeConfig {
	return getExchangeConfig(string(market))
}

func (c *Calendar) usHolidaysForYear(year int) []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.usHolidayYear[year]; ok {
		return cached
	}
	holidays := CalculateUSHolidays(year)
	c.usHolidayYear[year] = holidays
	return holidays
}

func (c *Calendar) isHoliday(market domain.Market, local time.Time) bool {
	switch market {
	case domain.MarketKR:
		return c.krHolidays[local.Format("2006-01-02")]
	case domain.MarketUS:
		for _, h := range c.usHolidaysForYear(local.Year()) {
			if h.Year() == local.Year() && h.Month() == local.Month() && h.Day() == local.Day() {
				return true
			}
		}
	}
	return false
}

// IsOpen reports whether market is accepting orders at instant t.
func (c *Calendar) IsOpen(market domain.Market, t time.Time) bool {
	config := c.config(market)
	if config == nil {
		return false
	}
	local := t.In(config.Timezone)

	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	if c.isHoliday(market, local) {
		return false
	}

	openMinutes := config.TradingHours.OpenHour*60 + config.TradingHours.OpenMinute
	closeMinutes := config.TradingHours.CloseHour*60 + config.TradingHours.CloseMinute
	nowMinutes := local.Hour()*60 + local.Minute()

	if closeMinutes = c.effectiveCloseMinutes(config, local, closeMinutes); nowMinutes >= closeMinutes {
		return false
	}
	if nowMinutes < openMinutes {
		return false
	}

	if config.LunchBreak != nil {
		lunchStart := config.LunchBreak.StartHour*60 + config.LunchBreak.StartMinute
		lunchEnd := config.LunchBreak.EndHour*60 + config.LunchBreak.EndMinute
		if nowMinutes >= lunchStart && nowMinutes < lunchEnd {
			return false
		}
	}

	return true
}

func (c *Calendar) effectiveCloseMinutes(config *ExchangeConfig, local time.Time, normalClose int) int {
	for _, rule := range config.EarlyCloseRules {
		if rule.DatePattern != nil && rule.DatePattern(local) {
			return rule.CloseHour*60 + rule.CloseMinute
		}
	}
	return normalClose
}

// NextOpen advances from t to the next instant at which market is open,
// skipping weekends and holidays. KR clamps to 09:05 local to tolerate
// startup drift; US clamps to its regular 09:30 open.
func (c *Calendar) NextOpen(market domain.Market, t time.Time) time.Time {
	config := c.config(market)
	if config == nil {
		return t
	}
	local := t.In(config.Timezone)

	openHour, openMinute := config.TradingHours.OpenHour, config.TradingHours.OpenMinute
	if market == domain.MarketKR {
		openMinute = 5
	}

	candidate := time.Date(local.Year(), local.Month(), local.Day(), openHour, openMinute, 0, 0, config.Timezone)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}

	for i := 0; i < 14; i++ {
		if candidate.Weekday() != time.Saturday && candidate.Weekday() != time.Sunday && !c.isHoliday(market, candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}

	return candidate
}

// LastTradingDay returns the most recent trading day on or before date.
func (c *Calendar) LastTradingDay(market domain.Market, date time.Time) time.Time {
	config := c.config(market)
	if config == nil {
		return date
	}
	candidate := date.In(config.Timezone)

	for i := 0; i < 14; i++ {
		if candidate.Weekday() != time.Saturday && candidate.Weekday() != time.Sunday && !c.isHoliday(market, candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, -1)
	}

	return candidate
}

// GetStatus returns a human-readable session summary for the /status
// operational endpoint.
func (c *Calendar) GetStatus(market domain.Market, t time.Time) (*Status, error) {
	config := c.config(market)
	if config == nil {
		return nil, fmt.Errorf("unknown market %q", market)
	}

	open := c.IsOpen(market, t)
	status := &Status{
		Open:     open,
		Market:   string(market),
		Timezone: config.Timezone.String(),
	}

	local := t.In(config.Timezone)
	if open {
		closeMinutes := c.effectiveCloseMinutes(config, local, config.TradingHours.CloseHour*60+config.TradingHours.CloseMinute)
		status.ClosesAt = fmt.Sprintf("%02d:%02d", closeMinutes/60, closeMinutes%60)
	} else {
		next := c.NextOpen(market, t)
		status.OpensAt = next.Format("15:04")
		status.OpensDate = next.Format("2006-01-02")
	}

	return status, nil
}
