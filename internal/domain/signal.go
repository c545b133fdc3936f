// Package domain holds the value types shared across the execution core:
// the in-flight Signal, the persisted records derived from it, and the
// error-kind taxonomy every component reports through.
package domain

import (
	"strings"
	"time"
)

// SignalType is the tagged-sum over the three kinds of incoming signal.
type SignalType string

const (
	SignalBuy   SignalType = "BUY"
	SignalSell  SignalType = "SELL"
	SignalEvent SignalType = "EVENT"
)

func (t SignalType) Valid() bool {
	switch t {
	case SignalBuy, SignalSell, SignalEvent:
		return true
	default:
		return false
	}
}

// Market selects calendar, broker client and currency.
type Market string

const (
	MarketKR Market = "KR"
	MarketUS Market = "US"
)

func (m Market) Valid() bool {
	return m == MarketKR || m == MarketUS
}

// Signal is the in-flight representation of an external trade intent. It is
// never persisted directly by the core; ScheduledOrder carries the durable
// projection when replay is required.
type Signal struct {
	Timestamp   time.Time
	Ticker      string
	CompanyName string
	Source      string
	SignalType  SignalType
	Market      Market
	Price       *float64
}

// Normalize upper-cases the ticker and applies the market default, matching
// the wire contract in which a missing market defaults to KR.
func (s *Signal) Normalize() {
	s.Ticker = strings.ToUpper(strings.TrimSpace(s.Ticker))
	if s.Market == "" {
		s.Market = MarketKR
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
}
