// Package ledger is the durable record of what the bot thinks it holds and
// every order it has tried to place, plus the admission rules that gate new
// buys against the open-position snapshot.
package ledger

import (
	"database/sql"
	"strings"
	"time"

	"github.com/prism-insight/execution-core/internal/domain"
	"github.com/rs/zerolog"
)

// Repository persists positions, the trade-execution log, and closed-trade
// history across the positions.db and ledger.db connections.
type Repository struct {
	ledgerDB    *sql.DB // trade_logs, trading_history
	positionsDB *sql.DB // stock_holdings
	log         zerolog.Logger
}

// NewRepository builds a Repository bound to the ledger and positions
// database connections.
func NewRepository(ledgerDB, positionsDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB:    ledgerDB,
		positionsDB: positionsDB,
		log:         log.With().Str("repo", "ledger").Logger(),
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat64Ptr(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// AppendTradeLog records one attempted order, successful or not. Never
// updated after insert.
func (r *Repository) AppendTradeLog(entry domain.TradeLog) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.ledgerDB.Exec(`
		INSERT INTO trade_logs
		(ticker, market, action, quantity, price, total_amount, timestamp, order_no, success, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.ToUpper(entry.Ticker),
		string(entry.Market),
		string(entry.Action),
		entry.Quantity,
		entry.Price,
		entry.TotalAmount,
		entry.Timestamp.UTC().Format(time.RFC3339),
		nullString(entry.OrderNo),
		entry.Success,
		nullString(entry.Message),
		now,
	)
	if err != nil {
		return domain.StorageErrorf("append trade log", err)
	}
	return nil
}

// GetPosition returns the current position for (market, ticker), or nil if
// flat.
func (r *Repository) GetPosition(market domain.Market, ticker string) (*domain.Position, error) {
	row := r.positionsDB.QueryRow(`
		SELECT ticker, market, buy_price, buy_date, current_price, last_updated,
		       target_price, stop_loss, trigger_type, sector, scenario
		FROM stock_holdings WHERE market = ? AND ticker = ?`,
		string(market), strings.ToUpper(ticker))

	return scanPosition(row)
}

// OpenPositions returns the full position snapshot across both markets.
func (r *Repository) OpenPositions() ([]domain.Position, error) {
	rows, err := r.positionsDB.Query(`
		SELECT ticker, market, buy_price, buy_date, current_price, last_updated,
		       target_price, stop_loss, trigger_type, sector, scenario
		FROM stock_holdings`)
	if err != nil {
		return nil, domain.StorageErrorf("list positions", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pos)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row scanner) (*domain.Position, error) {
	var (
		ticker, market, buyDateStr, lastUpdatedStr, triggerType, sector string
		buyPrice, currentPrice                                         float64
		targetPrice, stopLoss                                          sql.NullFloat64
		scenario                                                       []byte
	)
	if err := row.Scan(&ticker, &market, &buyPrice, &buyDateStr, &currentPrice, &lastUpdatedStr,
		&targetPrice, &stopLoss, &triggerType, &sector, &scenario); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, domain.StorageErrorf("scan position", err)
	}

	buyDate, _ := time.Parse(time.RFC3339, buyDateStr)
	lastUpdated, _ := time.Parse(time.RFC3339, lastUpdatedStr)

	pos := &domain.Position{
		Ticker:       ticker,
		Market:       domain.Market(market),
		BuyPrice:     buyPrice,
		BuyDate:      buyDate,
		CurrentPrice: currentPrice,
		LastUpdated:  lastUpdated,
		TriggerType:  triggerType,
		Sector:       sector,
		Scenario:     scenario,
	}
	if targetPrice.Valid {
		pos.TargetPrice = &targetPrice.Float64
	}
	if stopLoss.Valid {
		pos.StopLoss = &stopLoss.Float64
	}
	return pos, nil
}

// RecordBuy inserts a new open position for ticker. No-op if a position
// already exists (the contract forbids averaging down).
func (r *Repository) RecordBuy(pos domain.Position) error {
	existing, err := r.GetPosition(pos.Market, pos.Ticker)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	now := time.Now().UTC()
	_, err = r.positionsDB.Exec(`
		INSERT INTO stock_holdings
		(ticker, market, buy_price, buy_date, current_price, last_updated,
		 target_price, stop_loss, trigger_type, sector, scenario)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.ToUpper(pos.Ticker),
		string(pos.Market),
		pos.BuyPrice,
		now.Format(time.RFC3339),
		pos.CurrentPrice,
		now.Format(time.RFC3339),
		nullFloat64Ptr(pos.TargetPrice),
		nullFloat64Ptr(pos.StopLoss),
		pos.TriggerType,
		pos.Sector,
		pos.Scenario,
	)
	if err != nil {
		return domain.StorageErrorf("record buy", err)
	}
	return nil
}

// ClosedTrade is the result of resolving a sell against an open position:
// the realized profit rate and holding period, persisted to trading_history.
type ClosedTrade struct {
	Ticker      string
	Market      domain.Market
	BuyPrice    float64
	SellPrice   float64
	ProfitRate  float64
	HoldingDays int
	Sector      string
}

// RecordSell closes the open position for ticker, if any, computing
// profit_rate and holding_days, appending to trading_history, and deleting
// from stock_holdings. No-op at ledger level if the ticker isn't held; the
// trade log entry for the broker action is recorded separately via
// AppendTradeLog.
func (r *Repository) RecordSell(market domain.Market, ticker string, sellPrice float64) (*ClosedTrade, error) {
	pos, err := r.GetPosition(market, ticker)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, nil
	}

	profitRate := (sellPrice - pos.BuyPrice) / pos.BuyPrice
	holdingDays := int(time.Since(pos.BuyDate).Hours() / 24)

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.ledgerDB.Exec(`
		INSERT INTO trading_history
		(ticker, market, buy_price, sell_price, profit_rate, holding_days, sector, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.ToUpper(ticker), string(market), pos.BuyPrice, sellPrice, profitRate, holdingDays, pos.Sector, now,
	)
	if err != nil {
		return nil, domain.StorageErrorf("record trade history", err)
	}

	if _, err := r.positionsDB.Exec(`DELETE FROM stock_holdings WHERE market = ? AND ticker = ?`,
		string(market), strings.ToUpper(ticker)); err != nil {
		return nil, domain.StorageErrorf("delete closed position", err)
	}

	return &ClosedTrade{
		Ticker:      ticker,
		Market:      market,
		BuyPrice:    pos.BuyPrice,
		SellPrice:   sellPrice,
		ProfitRate:  profitRate,
		HoldingDays: holdingDays,
		Sector:      pos.Sector,
	}, nil
}

// LastBuyDate returns, for the buy-cooldown admission rule, the buy date of
// the open position in ticker if one exists; otherwise the created_at of the
// most recent trading_history row, which is the time that trade was closed
// (history rows carry no buy date). Returns the zero time if ticker has
// neither.
func (r *Repository) LastBuyDate(ticker string) (time.Time, error) {
	pos, err := r.positionForTickerAnyMarket(ticker)
	if err != nil {
		return time.Time{}, err
	}
	if pos != nil {
		return pos.BuyDate, nil
	}

	var createdAt sql.NullString
	row := r.ledgerDB.QueryRow(`
		SELECT created_at FROM trading_history
		WHERE ticker = ? ORDER BY created_at DESC LIMIT 1`, strings.ToUpper(ticker))
	if err := row.Scan(&createdAt); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, domain.StorageErrorf("last buy date", err)
	}
	if !createdAt.Valid {
		return time.Time{}, nil
	}
	t, _ := time.Parse(time.RFC3339, createdAt.String)
	return t, nil
}

func (r *Repository) positionForTickerAnyMarket(ticker string) (*domain.Position, error) {
	row := r.positionsDB.QueryRow(`
		SELECT ticker, market, buy_price, buy_date, current_price, last_updated,
		       target_price, stop_loss, trigger_type, sector, scenario
		FROM stock_holdings WHERE ticker = ? LIMIT 1`, strings.ToUpper(ticker))
	return scanPosition(row)
}
