// Package validator parses and validates incoming signal payloads at the
// boundary between the pub/sub bus and the rest of the execution core.
// Internal code only ever sees a domain.Signal that has already passed
// through Parse; nothing downstream re-validates.
package validator

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/prism-insight/execution-core/internal/domain"
)

// wireSignal mirrors the JSON shape on the bus. Unknown fields are
// ignored by encoding/json's default decode behavior.
type wireSignal struct {
	Ticker      string   `json:"ticker"`
	CompanyName string   `json:"company_name"`
	SignalType  string   `json:"signal_type"`
	Price       *float64 `json:"price"`
	Market      string   `json:"market"`
	Timestamp   *string  `json:"timestamp"`
	Source      string   `json:"source"`
}

// Parse decodes bytes into a validated domain.Signal, or fails with a
// domain.Error of kind KindSchemaError. It never returns a partially
// constructed Signal alongside an error.
func Parse(payload []byte) (*domain.Signal, error) {
	var w wireSignal
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, domain.SchemaError("invalid JSON payload", err)
	}

	ticker := strings.ToUpper(strings.TrimSpace(w.Ticker))
	if ticker == "" {
		return nil, domain.SchemaError("ticker is required", nil)
	}

	signalType := domain.SignalType(strings.ToUpper(strings.TrimSpace(w.SignalType)))
	if !signalType.Valid() {
		return nil, domain.SchemaError(fmt.Sprintf("unknown signal_type %q", w.SignalType), nil)
	}

	market := domain.Market(strings.ToUpper(strings.TrimSpace(w.Market)))
	if market == "" {
		market = domain.MarketKR
	}
	if !market.Valid() {
		return nil, domain.SchemaError(fmt.Sprintf("unknown market %q", w.Market), nil)
	}

	if market == domain.MarketKR && !isKRTicker(ticker) {
		return nil, domain.SchemaError(fmt.Sprintf("ticker %q is not a valid KR symbol", ticker), nil)
	}
	if market == domain.MarketUS && !isUSTicker(ticker) {
		return nil, domain.SchemaError(fmt.Sprintf("ticker %q is not a valid US symbol", ticker), nil)
	}

	if w.Price != nil {
		if math.IsNaN(*w.Price) || math.IsInf(*w.Price, 0) || *w.Price < 0 {
			return nil, domain.SchemaError("price must be a finite non-negative number", nil)
		}
	}

	timestamp := time.Now().UTC()
	if w.Timestamp != nil && *w.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, *w.Timestamp)
		if err != nil {
			return nil, domain.SchemaError("timestamp is not RFC3339", err)
		}
		timestamp = t
	}

	return &domain.Signal{
		Ticker:      ticker,
		CompanyName: strings.TrimSpace(w.CompanyName),
		SignalType:  signalType,
		Price:       w.Price,
		Market:      market,
		Timestamp:   timestamp,
		Source:      strings.TrimSpace(w.Source),
	}, nil
}

// isKRTicker reports whether s is a six-digit numeric KRX symbol.
func isKRTicker(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isUSTicker reports whether s is 1-5 Latin letters.
func isUSTicker(s string) bool {
	if len(s) < 1 || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Marshal serializes a Signal back to the wire shape; the round-trip tests
// use it. Scheduled replay payloads are encoded by the scheduled-order
// store, not by this function.
func Marshal(s domain.Signal) ([]byte, error) {
	w := wireSignal{
		Ticker:      s.Ticker,
		CompanyName: s.CompanyName,
		SignalType:  string(s.SignalType),
		Price:       s.Price,
		Market:      string(s.Market),
		Source:      s.Source,
	}
	ts := s.Timestamp.UTC().Format(time.RFC3339)
	w.Timestamp = &ts
	return json.Marshal(w)
}
