// Package us implements the broker.Client contract for US equities. Unlike
// kr.Client, it resolves a per-ticker exchange code (NASDAQ/NYSE/AMEX)
// before quoting or trading.
package us

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/prism-insight/execution-core/internal/broker"
	"github.com/prism-insight/execution-core/internal/domain"
	"github.com/rs/zerolog"
)

// Client talks to the US brokerage microservice.
type Client struct {
	transport *broker.Transport
	log       zerolog.Logger

	secMu      sync.Mutex
	securities map[string]security
}

// NewClient builds a US brokerage client bound to baseURL.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	l := log.With().Str("component", "broker.us").Logger()
	return &Client{
		transport:  broker.NewTransport(baseURL, l),
		log:        l,
		securities: make(map[string]security),
	}
}

// SetCredentials sets the mode-scoped API credentials for this client.
func (c *Client) SetCredentials(apiKey, apiSecret string) {
	c.transport.SetCredentials(apiKey, apiSecret)
}

// security is the cached per-ticker catalog entry: the exchange code orders
// are routed to and the sector classification the ledger's admission rules
// consume.
type security struct {
	Venue  string
	Sector string
}

type securityLookup struct {
	Found []struct {
		Ticker       string `json:"ticker"`
		ExchangeCode string `json:"exchange_code"`
		Sector       string `json:"sector"`
	} `json:"found"`
}

// lookupSecurity fetches and caches the catalog entry for a ticker. Falls
// back to NASDAQ and an empty sector if the lookup is inconclusive.
func (c *Client) lookupSecurity(ctx context.Context, ticker string) security {
	c.secMu.Lock()
	if s, ok := c.securities[ticker]; ok {
		c.secMu.Unlock()
		return s
	}
	c.secMu.Unlock()

	sec := security{Venue: "NASDAQ"}
	env, err := c.transport.Get(ctx, fmt.Sprintf("/api/securities/find?ticker=%s", ticker))
	if err == nil {
		var lookup securityLookup
		if err := json.Unmarshal(env.Data, &lookup); err == nil && len(lookup.Found) > 0 {
			if lookup.Found[0].ExchangeCode != "" {
				sec.Venue = lookup.Found[0].ExchangeCode
			}
			sec.Sector = lookup.Found[0].Sector
		}
	}

	c.secMu.Lock()
	c.securities[ticker] = sec
	c.secMu.Unlock()
	return sec
}

// resolveVenue returns the NASDAQ/NYSE/AMEX exchange code for a ticker.
func (c *Client) resolveVenue(ctx context.Context, ticker string) string {
	return c.lookupSecurity(ctx, ticker).Venue
}

// Sector returns the catalog's sector classification for ticker, or "" when
// unknown.
func (c *Client) Sector(ctx context.Context, ticker string) string {
	return c.lookupSecurity(ctx, ticker).Sector
}

type quoteResponse struct {
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
	Volume    int64   `json:"volume"`
}

// CurrentPrice returns the last USD price, change percent, volume, and
// resolved venue for ticker.
func (c *Client) CurrentPrice(ctx context.Context, ticker string) (*domain.Quote, error) {
	venue := c.resolveVenue(ctx, ticker)

	env, err := c.transport.Get(ctx, fmt.Sprintf("/api/quotes/%s", ticker))
	if err != nil {
		return nil, domain.PriceUnavailableError(ticker, err)
	}

	var q quoteResponse
	if err := json.Unmarshal(env.Data, &q); err != nil {
		return nil, domain.PriceUnavailableError(ticker, err)
	}

	return &domain.Quote{
		Ticker:    ticker,
		Venue:     venue,
		Price:     q.Price,
		ChangePct: q.ChangePct,
		Volume:    q.Volume,
	}, nil
}

// BuyQuantity computes floor(budget / current price), never negative.
func (c *Client) BuyQuantity(ctx context.Context, ticker string, budget float64) (int, error) {
	quote, err := c.CurrentPrice(ctx, ticker)
	if err != nil {
		return 0, err
	}
	if quote.Price <= 0 || quote.Price > budget {
		return 0, nil
	}
	return int(math.Floor(budget / quote.Price)), nil
}

type orderRequest struct {
	Ticker   string  `json:"ticker"`
	Venue    string  `json:"venue"`
	Side     string  `json:"side"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
	OrderTag string  `json:"order_tag"`
}

type orderResponse struct {
	OrderNo string `json:"order_no"`
}

// BuyMarket places a whole-budget market buy. The returned Price is the
// quote the quantity was sized against, since a market order has no limit
// price of its own.
func (c *Client) BuyMarket(ctx context.Context, ticker string, budget float64) (*domain.OrderResult, error) {
	quote, err := c.CurrentPrice(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if quote.Price <= 0 || quote.Price > budget {
		return &domain.OrderResult{Skipped: true, Reason: "insufficient_budget"}, nil
	}
	qty := int(math.Floor(budget / quote.Price))
	result, err := c.placeOrder(ctx, ticker, "buy", qty, 0)
	if err != nil {
		return nil, err
	}
	result.Price = quote.Price
	return result, nil
}

// BuyLimit places a limit buy sized against the supplied price, not the
// current market price.
func (c *Client) BuyLimit(ctx context.Context, ticker string, price, budget float64) (*domain.OrderResult, error) {
	if price <= 0 || price > budget {
		return &domain.OrderResult{Skipped: true, Reason: "insufficient_budget"}, nil
	}
	qty := int(math.Floor(budget / price))
	if qty <= 0 {
		return &domain.OrderResult{Skipped: true, Reason: "insufficient_budget"}, nil
	}
	return c.placeOrder(ctx, ticker, "buy", qty, price)
}

// SellAllMarket sells the full current position at market, or skips if flat.
func (c *Client) SellAllMarket(ctx context.Context, ticker string) (*domain.OrderResult, error) {
	holdings, err := c.Holdings(ctx)
	if err != nil {
		return nil, err
	}
	var qty, lastPrice float64
	for _, h := range holdings {
		if h.Ticker == ticker {
			qty = h.Quantity
			lastPrice = h.CurrentPrice
			break
		}
	}
	if qty <= 0 {
		return &domain.OrderResult{Skipped: true, Reason: "no_position"}, nil
	}
	result, err := c.placeOrder(ctx, ticker, "sell", int(qty), 0)
	if err != nil {
		return nil, err
	}
	result.Price = lastPrice
	return result, nil
}

func (c *Client) placeOrder(ctx context.Context, ticker, side string, quantity int, price float64) (*domain.OrderResult, error) {
	venue := c.resolveVenue(ctx, ticker)

	env, err := c.transport.Post(ctx, "/api/trading/place-order", orderRequest{
		Ticker:   ticker,
		Venue:    venue,
		Side:     side,
		Quantity: quantity,
		Price:    price,
		OrderTag: uuid.NewString(),
	})
	if err != nil {
		return nil, domain.BrokerRejectedError("place order failed", err)
	}

	var resp orderResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		return nil, domain.BrokerRejectedError("place order response decode failed", err)
	}

	return &domain.OrderResult{
		Success:  true,
		OrderNo:  resp.OrderNo,
		Quantity: float64(quantity),
		Price:    price,
	}, nil
}

type holdingsResponse struct {
	Holdings []struct {
		Ticker       string  `json:"ticker"`
		Quantity     float64 `json:"quantity"`
		AvgPrice     float64 `json:"avg_price"`
		CurrentPrice float64 `json:"current_price"`
	} `json:"holdings"`
}

// Holdings returns the broker-side USD position snapshot.
func (c *Client) Holdings(ctx context.Context) ([]broker.Holding, error) {
	env, err := c.transport.Get(ctx, "/api/portfolio/positions")
	if err != nil {
		return nil, domain.StorageErrorf("us holdings", err)
	}

	var resp holdingsResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		return nil, domain.StorageErrorf("us holdings decode", err)
	}

	out := make([]broker.Holding, 0, len(resp.Holdings))
	for _, h := range resp.Holdings {
		out = append(out, broker.Holding{
			Ticker:       h.Ticker,
			Quantity:     h.Quantity,
			AvgPrice:     h.AvgPrice,
			CurrentPrice: h.CurrentPrice,
			Currency:     "USD",
		})
	}
	return out, nil
}

type summaryResponse struct {
	AvailableCash float64 `json:"available_cash"`
}

// AccountSummary aggregates market value and unrealized P&L from holdings
// and reads available cash from the cash-balance endpoint.
func (c *Client) AccountSummary(ctx context.Context) (*domain.Summary, error) {
	holdings, err := c.Holdings(ctx)
	if err != nil {
		return nil, err
	}

	env, err := c.transport.Get(ctx, "/api/portfolio/cash-balance")
	if err != nil {
		return nil, domain.StorageErrorf("us account summary", err)
	}
	var cash summaryResponse
	if err := json.Unmarshal(env.Data, &cash); err != nil {
		return nil, domain.StorageErrorf("us account summary decode", err)
	}

	var marketValue, unrealized float64
	for _, h := range holdings {
		marketValue += h.Quantity * h.CurrentPrice
		unrealized += h.Quantity * (h.CurrentPrice - h.AvgPrice)
	}

	return &domain.Summary{
		Currency:      "USD",
		AvailableCash: cash.AvailableCash,
		MarketValue:   marketValue,
		UnrealizedPL:  unrealized,
	}, nil
}

// SmartBuyMarket skips with market_closed instead of calling the venue when
// cal reports US closed.
func (c *Client) SmartBuyMarket(ctx context.Context, ticker string, budget float64, market domain.Market, cal broker.Calendar) (*domain.OrderResult, error) {
	if !broker.SmartGate(cal, market) {
		return broker.MarketClosedResult(), nil
	}
	return c.BuyMarket(ctx, ticker, budget)
}

// SmartSellAllMarket is the sell-side counterpart of SmartBuyMarket.
func (c *Client) SmartSellAllMarket(ctx context.Context, ticker string, market domain.Market, cal broker.Calendar) (*domain.OrderResult, error) {
	if !broker.SmartGate(cal, market) {
		return broker.MarketClosedResult(), nil
	}
	return c.SellAllMarket(ctx, ticker)
}
