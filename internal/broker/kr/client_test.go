package kr

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

func TestCurrentPrice_ParsesEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/quotes/005930", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"price": 71000.0, "change_pct": 1.2, "volume": 900000},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, testLogger())
	quote, err := c.CurrentPrice(context.Background(), "005930")

	require.NoError(t, err)
	assert.Equal(t, 71000.0, quote.Price)
	assert.Equal(t, "KRX", quote.Venue)
}

func TestCurrentPrice_VenueRejectionIsPriceUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errMsg := "no such ticker"
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": errMsg})
	}))
	defer server.Close()

	c := NewClient(server.URL, testLogger())
	_, err := c.CurrentPrice(context.Background(), "999999")

	require.Error(t, err)
	var domainErr *domain.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.KindPriceUnavailable, domainErr.Kind)
}

func TestBuyMarket_SkipsWhenBudgetBelowPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"price": 71000.0},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, testLogger())
	result, err := c.BuyMarket(context.Background(), "005930", 1000)

	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "insufficient_budget", result.Reason)
}

func TestSellAllMarket_SkipsWhenFlat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"holdings": []interface{}{}},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, testLogger())
	result, err := c.SellAllMarket(context.Background(), "005930")

	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "no_position", result.Reason)
}

func TestSector_ReturnsEmptyOnLookupFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/securities/005930":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"name": "Samsung Electronics", "sector": "Technology"},
			})
		default:
			errMsg := "unknown ticker"
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": errMsg})
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, testLogger())
	assert.Equal(t, "Technology", c.Sector(context.Background(), "005930"))
	assert.Equal(t, "", c.Sector(context.Background(), "999999"))
}

func TestSmartBuyMarket_SkipsWhenMarketClosed(t *testing.T) {
	c := NewClient("http://unused.invalid", testLogger())
	result, err := c.SmartBuyMarket(context.Background(), "005930", 1_000_000, domain.MarketKR, fakeCalendar{open: false})

	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "market_closed", result.Reason)
}
