package us

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prism-insight/execution-core/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

type fakeCalendar struct{ open bool }

func (f fakeCalendar) IsOpen(market domain.Market, t time.Time) bool { return f.open }

func TestCurrentPrice_ResolvesVenue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/securities/find":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"found": []map[string]string{{"ticker": "AAPL", "exchange_code": "NASDAQ"}}},
			})
		default:
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"price": 190.5, "change_pct": 0.5, "volume": 1000},
			})
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, testLogger())
	quote, err := c.CurrentPrice(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, "NASDAQ", quote.Venue)
	assert.Equal(t, 190.5, quote.Price)
}

func TestResolveVenue_CachesResult(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/securities/find" {
			calls++
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"found": []map[string]string{{"ticker": "AAPL", "exchange_code": "NASDAQ"}}, "price": 100.0},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, testLogger())
	_, _ = c.CurrentPrice(context.Background(), "AAPL")
	_, _ = c.CurrentPrice(context.Background(), "AAPL")

	assert.Equal(t, 1, calls)
}

func TestSector_SharesSecurityLookupCache(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/securities/find" {
			calls++
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"found": []map[string]string{{"ticker": "AAPL", "exchange_code": "NASDAQ", "sector": "Technology"}},
				"price": 100.0,
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, testLogger())
	assert.Equal(t, "Technology", c.Sector(context.Background(), "AAPL"))

	// The venue resolution for a subsequent quote reuses the cached entry.
	_, err := c.CurrentPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestSmartSellAllMarket_SkipsWhenMarketClosed(t *testing.T) {
	c := NewClient("http://unused.invalid", testLogger())
	result, err := c.SmartSellAllMarket(context.Background(), "AAPL", domain.MarketUS, fakeCalendar{open: false})

	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "market_closed", result.Reason)
}
