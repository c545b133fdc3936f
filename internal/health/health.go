// Package health exposes the execution core's read-only operational HTTP
// surface: GET /healthz (process up, DB ping, resource gauges)
// and GET /status (scheduled-order pending count, open-position count, last
// scheduler tick, circuit-breaker states). Read-only: no mutation
// endpoints.
package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prism-insight/execution-core/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Databases is the set of connections /healthz pings.
type Databases struct {
	Ledger    *sql.DB
	Positions *sql.DB
	Scheduler *sql.DB
}

// PositionCounter is the slice of ledger.Repository /status depends on.
type PositionCounter interface {
	OpenPositions() ([]domain.Position, error)
}

// PendingCounter is the slice of scheduledorders.Store /status depends on.
type PendingCounter interface {
	PendingCount() (int, error)
}

// BreakerStates is the slice of coordinator.Coordinator /status depends on.
type BreakerStates interface {
	BreakerState(market domain.Market) string
}

// TickReporter is the slice of scheduler.Scheduler /status depends on.
type TickReporter interface {
	LastTick() time.Time
}

// Server builds the chi router for the health/status surface.
type Server struct {
	startedAt time.Time
	dbs       Databases
	positions PositionCounter
	pending   PendingCounter
	breakers  BreakerStates
	scheduler TickReporter
	log       zerolog.Logger
}

// New builds a health Server. Any dependency left nil degrades its /status
// field gracefully rather than panicking.
func New(dbs Databases, positions PositionCounter, pending PendingCounter, breakers BreakerStates, scheduler TickReporter, log zerolog.Logger) *Server {
	return &Server{
		startedAt: time.Now(),
		dbs:       dbs,
		positions: positions,
		pending:   pending,
		breakers:  breakers,
		scheduler: scheduler,
		log:       log.With().Str("component", "health").Logger(),
	}
}

// Router returns the chi.Router serving /healthz and /status.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))
	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	return r
}

type healthzResponse struct {
	Status      string  `json:"status"`
	UptimeSecs  float64 `json:"uptime_seconds"`
	Goroutines  int     `json:"goroutines"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	LedgerOK    bool    `json:"ledger_db_ok"`
	PositionsOK bool    `json:"positions_db_ok"`
	SchedulerOK bool    `json:"scheduler_db_ok"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ledgerOK := pingOK(ctx, s.dbs.Ledger)
	positionsOK := pingOK(ctx, s.dbs.Positions)
	schedulerOK := pingOK(ctx, s.dbs.Scheduler)

	cpuPercent, memPercent := s.resourceGauges()

	status := "healthy"
	code := http.StatusOK
	if !ledgerOK || !positionsOK || !schedulerOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	resp := healthzResponse{
		Status:      status,
		UptimeSecs:  time.Since(s.startedAt).Seconds(),
		Goroutines:  runtime.NumGoroutine(),
		CPUPercent:  cpuPercent,
		MemPercent:  memPercent,
		LedgerOK:    ledgerOK,
		PositionsOK: positionsOK,
		SchedulerOK: schedulerOK,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

func pingOK(ctx context.Context, db *sql.DB) bool {
	if db == nil {
		return false
	}
	return db.PingContext(ctx) == nil
}

func (s *Server) resourceGauges() (cpuPercent, memPercent float64) {
	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	} else if err != nil {
		s.log.Warn().Err(err).Msg("failed to read cpu percent")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		memPercent = vm.UsedPercent
	} else {
		s.log.Warn().Err(err).Msg("failed to read memory stats")
	}
	return cpuPercent, memPercent
}

type statusResponse struct {
	PendingScheduledOrders int               `json:"pending_scheduled_orders"`
	OpenPositions          int               `json:"open_positions"`
	LastSchedulerTick      string            `json:"last_scheduler_tick,omitempty"`
	CircuitBreakers        map[string]string `json:"circuit_breakers,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{}

	if s.pending != nil {
		if n, err := s.pending.PendingCount(); err == nil {
			resp.PendingScheduledOrders = n
		} else {
			s.log.Warn().Err(err).Msg("failed to read pending scheduled order count")
		}
	}

	if s.positions != nil {
		if positions, err := s.positions.OpenPositions(); err == nil {
			resp.OpenPositions = len(positions)
		} else {
			s.log.Warn().Err(err).Msg("failed to read open position count")
		}
	}

	if s.scheduler != nil {
		if last := s.scheduler.LastTick(); !last.IsZero() {
			resp.LastSchedulerTick = last.Format(time.RFC3339)
		}
	}

	if s.breakers != nil {
		resp.CircuitBreakers = map[string]string{
			string(domain.MarketKR): s.breakers.BreakerState(domain.MarketKR),
			string(domain.MarketUS): s.breakers.BreakerState(domain.MarketUS),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
