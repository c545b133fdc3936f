package ledger

import (
	"testing"
	"time"

	"github.com/prism-insight/execution-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBuy_SecondBuyIsNoOp(t *testing.T) {
	r := newTestRepo(t)

	require.NoError(t, r.RecordBuy(domain.Position{Ticker: "005930", Market: domain.MarketKR, BuyPrice: 68000}))
	require.NoError(t, r.RecordBuy(domain.Position{Ticker: "005930", Market: domain.MarketKR, BuyPrice: 99999}))

	pos, err := r.GetPosition(domain.MarketKR, "005930")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 68000.0, pos.BuyPrice)

	positions, err := r.OpenPositions()
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestRecordSell_ComputesProfitRateAndDeletesPosition(t *testing.T) {
	r := newTestRepo(t)

	require.NoError(t, r.RecordBuy(domain.Position{Ticker: "005930", Market: domain.MarketKR, BuyPrice: 68000, Sector: "Technology"}))

	closed, err := r.RecordSell(domain.MarketKR, "005930", 72000)
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.InDelta(t, 0.0588, closed.ProfitRate, 0.0001)
	assert.Equal(t, "Technology", closed.Sector)

	pos, err := r.GetPosition(domain.MarketKR, "005930")
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestRecordSell_NoOpWhenFlat(t *testing.T) {
	r := newTestRepo(t)

	closed, err := r.RecordSell(domain.MarketKR, "005930", 72000)
	require.NoError(t, err)
	assert.Nil(t, closed)
}

func TestAppendTradeLog_RowsAccumulate(t *testing.T) {
	r := newTestRepo(t)

	entry := domain.TradeLog{
		Timestamp: time.Now().UTC(),
		Ticker:    "005930",
		Market:    domain.MarketKR,
		Action:    domain.SignalBuy,
		OrderNo:   "ORD-1",
		Quantity:  14,
		Price:     70000,
		Success:   true,
	}
	entry.TotalAmount = entry.Quantity * entry.Price
	require.NoError(t, r.AppendTradeLog(entry))

	entry.Success = false
	entry.Message = "timeout"
	require.NoError(t, r.AppendTradeLog(entry))

	var count int
	require.NoError(t, r.ledgerDB.QueryRow(`SELECT COUNT(*) FROM trade_logs`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestLastBuyDate_FallsBackToTradeHistory(t *testing.T) {
	r := newTestRepo(t)

	last, err := r.LastBuyDate("005930")
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	require.NoError(t, r.RecordBuy(domain.Position{Ticker: "005930", Market: domain.MarketKR, BuyPrice: 68000}))
	_, err = r.RecordSell(domain.MarketKR, "005930", 72000)
	require.NoError(t, err)

	last, err = r.LastBuyDate("005930")
	require.NoError(t, err)
	assert.False(t, last.IsZero())
}
