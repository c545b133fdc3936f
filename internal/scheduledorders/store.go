// Package scheduledorders is the durable queue of signals deferred to the
// next market open. Rows are written transactionally against
// the scheduler database and replayed by internal/scheduler.
package scheduledorders

import (
	"database/sql"
	"time"

	"github.com/prism-insight/execution-core/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Store persists deferred signals. One pending row exists per deferred
// signal; the dispatcher is responsible for not enqueueing duplicates (the
// store does not dedup).
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore builds a Store bound to the scheduler database connection.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("component", "scheduledorders").Logger()}
}

// payload is the msgpack-encoded envelope stored in signal_payload, carrying
// the full original signal for faithful reconstruction at replay time.
type payload struct {
	Ticker      string
	CompanyName string
	SignalType  string
	Market      string
	Source      string
	Price       *float64
	Timestamp   time.Time
}

func encodePayload(s domain.Signal) ([]byte, error) {
	return msgpack.Marshal(payload{
		Ticker:      s.Ticker,
		CompanyName: s.CompanyName,
		SignalType:  string(s.SignalType),
		Market:      string(s.Market),
		Source:      s.Source,
		Price:       s.Price,
		Timestamp:   s.Timestamp,
	})
}

func decodePayload(raw []byte) (domain.Signal, error) {
	var p payload
	if err := msgpack.Unmarshal(raw, &p); err != nil {
		return domain.Signal{}, err
	}
	return domain.Signal{
		Ticker:      p.Ticker,
		CompanyName: p.CompanyName,
		SignalType:  domain.SignalType(p.SignalType),
		Market:      domain.Market(p.Market),
		Source:      p.Source,
		Price:       p.Price,
		Timestamp:   p.Timestamp,
	}, nil
}

// Enqueue persists a signal for replay at executeAfter, returning the new
// row's id.
func (s *Store) Enqueue(signal domain.Signal, executeAfter time.Time) (int64, error) {
	raw, err := encodePayload(signal)
	if err != nil {
		return 0, domain.StorageErrorf("encode scheduled order payload", err)
	}

	var price sql.NullFloat64
	if signal.Price != nil {
		price = sql.NullFloat64{Float64: *signal.Price, Valid: true}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		INSERT INTO scheduled_orders
		(ticker, company_name, market, signal_type, price, execute_after, status, created_at, signal_payload)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
		signal.Ticker, signal.CompanyName, string(signal.Market), string(signal.SignalType),
		price, executeAfter.UTC().Format(time.RFC3339), now, raw,
	)
	if err != nil {
		return 0, domain.StorageErrorf("enqueue scheduled order", err)
	}
	return res.LastInsertId()
}

// Ready is a pending row whose execute_after has elapsed, with its original
// signal already reconstructed from signal_payload.
type Ready struct {
	ID     int64
	Signal domain.Signal
}

// TakeReady returns every pending row whose execute_after is at or before
// now. It does not itself filter by market-open state or lock rows; the
// caller (the scheduler) is responsible for consulting the market calendar
// before replaying, and for the idempotent pending->terminal transition via
// MarkExecuted/MarkFailed.
func (s *Store) TakeReady(now time.Time) ([]Ready, error) {
	rows, err := s.db.Query(`
		SELECT id, signal_payload FROM scheduled_orders
		WHERE status = 'pending' AND execute_after <= ?
		ORDER BY id ASC`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, domain.StorageErrorf("query ready scheduled orders", err)
	}
	defer rows.Close()

	var out []Ready
	for rows.Next() {
		var id int64
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, domain.StorageErrorf("scan scheduled order", err)
		}
		signal, err := decodePayload(raw)
		if err != nil {
			s.log.Error().Int64("id", id).Err(err).Msg("failed to decode scheduled order payload, skipping")
			continue
		}
		out = append(out, Ready{ID: id, Signal: signal})
	}
	return out, rows.Err()
}

// MarkExecuted transitions row id to executed, recording executed_at. The
// transition is guarded so an already-terminal row is not rewritten;
// invoking it twice leaves executed_at at its first value.
func (s *Store) MarkExecuted(id int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		UPDATE scheduled_orders SET status = 'executed', executed_at = ?
		WHERE id = ? AND status = 'pending'`, now, id)
	if err != nil {
		return domain.StorageErrorf("mark scheduled order executed", err)
	}
	return nil
}

// MarkFailed transitions row id to failed with message. Guarded the same
// way as MarkExecuted.
func (s *Store) MarkFailed(id int64, message string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		UPDATE scheduled_orders SET status = 'failed', executed_at = ?, error_message = ?
		WHERE id = ? AND status = 'pending'`, now, message, id)
	if err != nil {
		return domain.StorageErrorf("mark scheduled order failed", err)
	}
	return nil
}

// PendingCount reports the number of pending rows, used for shutdown
// reporting and the /status operational endpoint.
func (s *Store) PendingCount() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM scheduled_orders WHERE status = 'pending'`).Scan(&count); err != nil {
		return 0, domain.StorageErrorf("count pending scheduled orders", err)
	}
	return count, nil
}
