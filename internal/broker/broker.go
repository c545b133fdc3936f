// Package broker defines the shared contract that the KR and US venue
// clients implement, plus the HTTP envelope both speak over the wire.
package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prism-insight/execution-core/internal/domain"
)

// Calendar is the slice of marketcalendar.Calendar the smart order variants
// depend on. Defined here, not imported from marketcalendar, so broker has
// no dependency on the calendar package beyond this one method.
type Calendar interface {
	IsOpen(market domain.Market, t time.Time) bool
}

// Client is the contract shared by the KR and US brokerage clients.
// Every operation is parameterized implicitly by the venue the concrete
// client is bound to.
type Client interface {
	CurrentPrice(ctx context.Context, ticker string) (*domain.Quote, error)
	BuyQuantity(ctx context.Context, ticker string, budget float64) (int, error)
	BuyMarket(ctx context.Context, ticker string, budget float64) (*domain.OrderResult, error)
	BuyLimit(ctx context.Context, ticker string, price, budget float64) (*domain.OrderResult, error)
	SellAllMarket(ctx context.Context, ticker string) (*domain.OrderResult, error)
	Holdings(ctx context.Context) ([]Holding, error)
	AccountSummary(ctx context.Context) (*domain.Summary, error)

	// Sector returns the venue catalog's sector classification for ticker,
	// or "" when the venue does not know it. Lookup failures degrade to ""
	// rather than an error; sector data gates portfolio admission, never an
	// order itself.
	Sector(ctx context.Context, ticker string) string

	// SmartBuyMarket returns an OrderResult{Skipped: true, Reason:
	// "market_closed"} without calling the venue when cal reports market
	// closed for this client's market.
	SmartBuyMarket(ctx context.Context, ticker string, budget float64, market domain.Market, cal Calendar) (*domain.OrderResult, error)
	// SmartSellAllMarket is the sell-side counterpart of SmartBuyMarket.
	SmartSellAllMarket(ctx context.Context, ticker string, market domain.Market, cal Calendar) (*domain.OrderResult, error)
}

// Holding is a broker-side position snapshot, distinct from domain.Position
// (the ledger's own view, which additionally carries sector/trigger-type
// metadata the venue has no concept of).
type Holding struct {
	Ticker       string
	Quantity     float64
	AvgPrice     float64
	CurrentPrice float64
	Currency     string
}

// Envelope is the standard response wrapper every broker microservice call
// returns.
type Envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *string         `json:"error"`
	Timestamp string          `json:"timestamp"`
}
