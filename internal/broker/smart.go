package broker

import (
	"time"

	"github.com/prism-insight/execution-core/internal/domain"
)

// MarketClosedResult is the skip result returned by the smart order variants
// when cal reports the market closed.
func MarketClosedResult() *domain.OrderResult {
	return &domain.OrderResult{Skipped: true, Reason: "market_closed"}
}

// SmartGate reports whether a smart order variant should proceed, given the
// client's bound market and the calendar's current verdict.
func SmartGate(cal Calendar, market domain.Market) bool {
	return cal.IsOpen(market, time.Now())
}
