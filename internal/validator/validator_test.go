package validator

import (
	"testing"
	"time"

	"github.com/prism-insight/execution-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_USSignal(t *testing.T) {
	payload := []byte(`{"ticker":"aapl","company_name":"Apple Inc.","signal_type":"BUY",
	 "price":185.42,"market":"US","timestamp":"2026-01-20T14:03:00Z",
	 "source":"trigger_batch_morning"}`)

	sig, err := Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", sig.Ticker)
	assert.Equal(t, domain.SignalBuy, sig.SignalType)
	assert.Equal(t, domain.MarketUS, sig.Market)
	require.NotNil(t, sig.Price)
	assert.Equal(t, 185.42, *sig.Price)
}

func TestParse_MarketDefaultsToKR(t *testing.T) {
	sig, err := Parse([]byte(`{"ticker":"005930","signal_type":"BUY"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.MarketKR, sig.Market)
}

func TestParse_TimestampDefaultsToNow(t *testing.T) {
	sig, err := Parse([]byte(`{"ticker":"005930","signal_type":"EVENT","market":"KR"}`))
	require.NoError(t, err)
	assert.False(t, sig.Timestamp.IsZero())
}

func TestParse_UnknownSignalTypeFails(t *testing.T) {
	_, err := Parse([]byte(`{"ticker":"005930","signal_type":"HOLD","market":"KR"}`))
	require.Error(t, err)
	var domainErr *domain.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.KindSchemaError, domainErr.Kind)
}

func TestParse_NegativePriceFails(t *testing.T) {
	_, err := Parse([]byte(`{"ticker":"AAPL","signal_type":"BUY","market":"US","price":-1}`))
	require.Error(t, err)
}

func TestParse_InvalidKRTickerFails(t *testing.T) {
	_, err := Parse([]byte(`{"ticker":"AAPL","signal_type":"BUY","market":"KR"}`))
	require.Error(t, err)
}

func TestParse_InvalidJSONFails(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	require.Error(t, err)
}

func TestParse_MissingTickerFails(t *testing.T) {
	_, err := Parse([]byte(`{"signal_type":"BUY","market":"KR"}`))
	require.Error(t, err)
}

func TestMarshalParse_RoundTrip(t *testing.T) {
	price := 70000.0
	original := domain.Signal{
		Ticker:      "005930",
		CompanyName: "Samsung Electronics",
		SignalType:  domain.SignalBuy,
		Price:       &price,
		Market:      domain.MarketKR,
		Source:      "trigger_batch_morning",
	}
	original.Normalize()

	bytes, err := Marshal(original)
	require.NoError(t, err)

	parsed, err := Parse(bytes)
	require.NoError(t, err)

	assert.Equal(t, original.Ticker, parsed.Ticker)
	assert.Equal(t, original.SignalType, parsed.SignalType)
	assert.Equal(t, original.Market, parsed.Market)
	require.NotNil(t, parsed.Price)
	assert.Equal(t, *original.Price, *parsed.Price)
	// RFC3339 serialization drops sub-second precision.
	assert.WithinDuration(t, original.Timestamp, parsed.Timestamp, time.Second)
}
