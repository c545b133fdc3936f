package marketcalendar

import "time"

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// exchangeConfigs holds the two markets this core trades: a single domestic
// KR venue (weekdays 09:00-15:30 KST, no midday break) and a single US
// venue modeled on NYSE hours (weekdays 09:30-16:00 Eastern). The US broker
// client resolves NASDAQ/NYSE/AMEX per ticker, but all three venues share
// trading hours and the NYSE holiday calendar, so one session definition
// covers them.
var exchangeConfigs = map[string]ExchangeConfig{
	"KR": {
		Code: "KR",
		Name: "Korea Exchange",
		TradingHours: TradingHours{
			OpenHour:   9,
			OpenMinute: 0,
			CloseHour:  15,
			CloseMinute: 30,
		},
		Timezone:    mustLoadLocation("Asia/Seoul"),
		StrictHours: true,
		LunchBreak:  nil,
	},
	"US": {
		Code: "US",
		Name: "New York Stock Exchange",
		TradingHours: TradingHours{
			OpenHour:    9,
			OpenMinute:  30,
			CloseHour:   16,
			CloseMinute: 0,
		},
		Timezone:    mustLoadLocation("America/New_York"),
		EasterType:  Gregorian,
		StrictHours: false,
		EarlyCloseRules: []EarlyCloseRule{
			{
				HolidayName: "Day before Thanksgiving",
				DayOfWeek:   time.Wednesday,
				CloseHour:   13,
				DatePattern: func(t time.Time) bool {
					thanksgiving := findNthWeekday(t.Year(), 11, time.Thursday, 4)
					dayBefore := thanksgiving.AddDate(0, 0, -1)
					return t.Year() == dayBefore.Year() && t.Month() == dayBefore.Month() && t.Day() == dayBefore.Day()
				},
			},
			{
				HolidayName: "Christmas Eve",
				CloseHour:   13,
				DatePattern: func(t time.Time) bool {
					return t.Month() == time.December && t.Day() == 24
				},
			},
		},
	},
}

func getExchangeConfig(code string) *ExchangeConfig {
	if config, ok := exchangeConfigs[code]; ok {
		return &config
	}
	return nil
}
