// Package execution is the business-logic layer between the dispatcher /
// scheduler and the coordinator: it runs ledger admission before a BUY
// reaches a broker, records every attempted order in the trade-execution
// log, and keeps the position set in step with successful fills.
package execution

import (
	"context"
	"time"

	"github.com/prism-insight/execution-core/internal/domain"
	"github.com/prism-insight/execution-core/internal/ledger"
	"github.com/rs/zerolog"
)

// Submitter is the slice of coordinator.Coordinator this service depends on.
type Submitter interface {
	Submit(ctx context.Context, signal domain.Signal) (*domain.OrderResult, error)
}

// SectorResolver maps a ticker to its sector classification for the
// sector-concentration admission rule. An unknown sector resolves to "",
// which skips the sector checks rather than blocking the buy.
type SectorResolver interface {
	Sector(ctx context.Context, market domain.Market, ticker string) string
}

// SectorClient is the slice of broker.Client sector lookups depend on.
type SectorClient interface {
	Sector(ctx context.Context, ticker string) string
}

// BrokerSectorResolver routes sector lookups to the per-market venue client.
type BrokerSectorResolver struct {
	KR SectorClient
	US SectorClient
}

func (r BrokerSectorResolver) Sector(ctx context.Context, market domain.Market, ticker string) string {
	if market == domain.MarketUS {
		return r.US.Sector(ctx, ticker)
	}
	return r.KR.Sector(ctx, ticker)
}

// Ledger is the slice of ledger.Repository this service depends on.
type Ledger interface {
	AdmitBuy(cfg ledger.AdmissionConfig, ticker, sector string) error
	GetPosition(market domain.Market, ticker string) (*domain.Position, error)
	RecordBuy(pos domain.Position) error
	RecordSell(market domain.Market, ticker string, sellPrice float64) (*ledger.ClosedTrade, error)
	AppendTradeLog(entry domain.TradeLog) error
}

// Service wraps a coordinator Submitter with ledger admission and recording.
// It satisfies the same Submitter contract, so the dispatcher and the
// market-hours scheduler both submit through it.
type Service struct {
	coordinator Submitter
	ledger      Ledger
	admission   ledger.AdmissionConfig
	sectors     SectorResolver
	autoTrading bool
	log         zerolog.Logger
}

// New builds a Service. admission carries the slot/sector/cooldown
// thresholds that gate new buys; sectors supplies the classification those
// sector rules run against (nil disables them); autoTrading=false
// short-circuits every BUY/SELL to a skipped result without touching a
// broker.
func New(coordinator Submitter, repo Ledger, admission ledger.AdmissionConfig, sectors SectorResolver, autoTrading bool, log zerolog.Logger) *Service {
	return &Service{
		coordinator: coordinator,
		ledger:      repo,
		admission:   admission,
		sectors:     sectors,
		autoTrading: autoTrading,
		log:         log.With().Str("component", "execution").Logger(),
	}
}

// Submit routes signal through admission, the coordinator, and ledger
// recording. Every BUY/SELL produces exactly one trade-execution log row,
// whether it reached the broker or was refused before the call; EVENT
// signals are observational and produce none.
func (s *Service) Submit(ctx context.Context, signal domain.Signal) (*domain.OrderResult, error) {
	switch signal.SignalType {
	case domain.SignalBuy:
		if !s.autoTrading {
			return s.autoTradingDisabled(signal), nil
		}
		return s.submitBuy(ctx, signal)
	case domain.SignalSell:
		if !s.autoTrading {
			return s.autoTradingDisabled(signal), nil
		}
		return s.submitSell(ctx, signal)
	case domain.SignalEvent:
		s.log.Info().Str("ticker", signal.Ticker).Str("source", signal.Source).
			Msg("event signal observed")
		return &domain.OrderResult{Success: true, Skipped: true, Reason: "event signal, no order placed"}, nil
	default:
		return &domain.OrderResult{Success: false, Reason: "unknown signal_type"}, nil
	}
}

func (s *Service) autoTradingDisabled(signal domain.Signal) *domain.OrderResult {
	s.log.Info().Str("ticker", signal.Ticker).Str("signal_type", string(signal.SignalType)).
		Msg("auto trading disabled, order skipped")
	result := &domain.OrderResult{Success: false, Skipped: true, Reason: "auto_trading disabled"}
	s.appendLog(signal, result)
	return result
}

func (s *Service) submitBuy(ctx context.Context, signal domain.Signal) (*domain.OrderResult, error) {
	held, err := s.ledger.GetPosition(signal.Market, signal.Ticker)
	if err != nil {
		return nil, err
	}
	if held != nil {
		// Already held: a second BUY is a no-op, not an error.
		result := &domain.OrderResult{Success: true, Skipped: true, Reason: "already held"}
		s.appendLog(signal, result)
		return result, nil
	}

	sector := ""
	if s.sectors != nil {
		sector = s.sectors.Sector(ctx, signal.Market, signal.Ticker)
	}

	if err := s.ledger.AdmitBuy(s.admission, signal.Ticker, sector); err != nil {
		s.log.Warn().Err(err).Str("ticker", signal.Ticker).Msg("buy refused by ledger admission")
		result := &domain.OrderResult{Success: false, Reason: err.Error()}
		s.appendLog(signal, result)
		return result, nil
	}

	result, err := s.coordinator.Submit(ctx, signal)
	if err != nil {
		s.appendLog(signal, failureResult(err))
		return nil, err
	}

	if result.Success && !result.Skipped {
		pos := domain.Position{
			Ticker:       signal.Ticker,
			Market:       signal.Market,
			Sector:       sector,
			BuyPrice:     result.Price,
			CurrentPrice: result.Price,
		}
		if err := s.ledger.RecordBuy(pos); err != nil {
			// The order was placed; a recording failure must not turn a
			// filled buy into a reported failure.
			s.log.Error().Err(err).Str("ticker", signal.Ticker).Msg("failed to record position after buy")
		}
	}

	s.appendLog(signal, result)
	return result, nil
}

func (s *Service) submitSell(ctx context.Context, signal domain.Signal) (*domain.OrderResult, error) {
	// The broker attempt always runs: SellAllMarket queries holdings itself
	// and skips when flat, and the attempt is recorded either way. The
	// ledger no-ops if the ticker isn't held.
	result, err := s.coordinator.Submit(ctx, signal)
	if err != nil {
		s.appendLog(signal, failureResult(err))
		return nil, err
	}

	if result.Success && !result.Skipped {
		closed, err := s.ledger.RecordSell(signal.Market, signal.Ticker, result.Price)
		if err != nil {
			s.log.Error().Err(err).Str("ticker", signal.Ticker).Msg("failed to close position after sell")
		} else if closed != nil {
			s.log.Info().Str("ticker", closed.Ticker).
				Float64("profit_rate", closed.ProfitRate).
				Int("holding_days", closed.HoldingDays).
				Msg("position closed")
		}
	}

	s.appendLog(signal, result)
	return result, nil
}

func (s *Service) appendLog(signal domain.Signal, result *domain.OrderResult) {
	entry := domain.TradeLog{
		Timestamp:   time.Now().UTC(),
		Ticker:      signal.Ticker,
		Market:      signal.Market,
		Action:      signal.SignalType,
		OrderNo:     result.OrderNo,
		Message:     result.Reason,
		Quantity:    result.Quantity,
		Price:       result.Price,
		TotalAmount: result.Quantity * result.Price,
		Success:     result.Success && !result.Skipped,
	}
	if err := s.ledger.AppendTradeLog(entry); err != nil {
		s.log.Error().Err(err).Str("ticker", signal.Ticker).Msg("failed to append trade log")
	}
}

func failureResult(err error) *domain.OrderResult {
	return &domain.OrderResult{Success: false, Reason: err.Error()}
}
