package ledger

import (
	"fmt"
	"time"
)

// AdmissionConfig carries the slot/sector/cooldown thresholds that gate new
// buys. Values come from config.LedgerConfig.
type AdmissionConfig struct {
	SlotLimit              int
	SectorMaxPositions     int
	SectorConcentrationMax float64
	BuyCooldownDays        int
}

// admissionCheck is one independent validator in the chain run in sequence
// against the open-position snapshot. Each returns a plain error that
// short-circuits the chain.
type admissionCheck func(r *Repository, cfg AdmissionConfig, ticker, sector string) error

var admissionChain = []admissionCheck{
	checkSlotLimit,
	checkSectorConcentration,
	checkBuyCooldown,
}

// AdmitBuy runs every admission rule in sequence and returns the first
// violation, or nil if ticker may be bought. Called before a BUY reaches the
// coordinator so slot/sector/cooldown violations never reach the broker.
func (r *Repository) AdmitBuy(cfg AdmissionConfig, ticker, sector string) error {
	existing, err := r.positionForTickerAnyMarket(ticker)
	if err != nil {
		return err
	}
	if existing != nil {
		// Ticker already held: a second BUY is a no-op, not a refusal -
		// the caller is expected to short-circuit on this case itself.
		return nil
	}

	for _, check := range admissionChain {
		if err := check(r, cfg, ticker, sector); err != nil {
			return err
		}
	}
	return nil
}

// checkSlotLimit refuses a buy once the position set already holds
// cfg.SlotLimit rows.
func checkSlotLimit(r *Repository, cfg AdmissionConfig, ticker, sector string) error {
	if cfg.SlotLimit <= 0 {
		return nil
	}
	positions, err := r.OpenPositions()
	if err != nil {
		return err
	}
	if len(positions) >= cfg.SlotLimit {
		return fmt.Errorf("slot limit: %d positions already held (limit %d)", len(positions), cfg.SlotLimit)
	}
	return nil
}

// checkSectorConcentration refuses a buy that would push a sector past
// cfg.SectorMaxPositions or cfg.SectorConcentrationMax of total positions.
// The concentration ratio is not applied while no position is held.
func checkSectorConcentration(r *Repository, cfg AdmissionConfig, ticker, sector string) error {
	if sector == "" || (cfg.SectorMaxPositions <= 0 && cfg.SectorConcentrationMax <= 0) {
		return nil
	}
	positions, err := r.OpenPositions()
	if err != nil {
		return err
	}

	sectorCount := 0
	for _, p := range positions {
		if p.Sector == sector {
			sectorCount++
		}
	}
	sectorCount++ // account for the candidate buy itself

	if cfg.SectorMaxPositions > 0 && sectorCount > cfg.SectorMaxPositions {
		return fmt.Errorf("sector limit: %s would hold %d positions (limit %d)", sector, sectorCount, cfg.SectorMaxPositions)
	}

	total := len(positions) + 1
	if cfg.SectorConcentrationMax > 0 && len(positions) > 0 {
		ratio := float64(sectorCount) / float64(total)
		if ratio > cfg.SectorConcentrationMax {
			return fmt.Errorf("sector concentration: %s would be %.0f%% of positions (limit %.0f%%)",
				sector, ratio*100, cfg.SectorConcentrationMax*100)
		}
	}
	return nil
}

// checkBuyCooldown refuses a buy within cfg.BuyCooldownDays of the last buy
// for this ticker, as reported by Repository.LastBuyDate (for a closed
// position that is the time the trade was closed).
func checkBuyCooldown(r *Repository, cfg AdmissionConfig, ticker, sector string) error {
	if cfg.BuyCooldownDays <= 0 {
		return nil
	}
	last, err := r.LastBuyDate(ticker)
	if err != nil {
		return err
	}
	if last.IsZero() {
		return nil
	}
	since := time.Since(last)
	if since < time.Duration(cfg.BuyCooldownDays)*24*time.Hour {
		return fmt.Errorf("cooldown: %s last bought %.0f days ago (cooldown %d days)",
			ticker, since.Hours()/24, cfg.BuyCooldownDays)
	}
	return nil
}
