// Package scheduler replays deferred orders at the earliest eligible time
// their market is open. The poll loop is a single goroutine selecting over a
// time.Ticker and a stop channel, not a cron expression: "every N seconds
// starting now" is not a fixed clock time.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/prism-insight/execution-core/internal/broker"
	"github.com/prism-insight/execution-core/internal/domain"
	"github.com/prism-insight/execution-core/internal/scheduledorders"
	"github.com/rs/zerolog"
)

// Submitter is the slice of coordinator.Coordinator the scheduler depends
// on, narrowed to keep this package decoupled from coordinator internals.
type Submitter interface {
	Submit(ctx context.Context, signal domain.Signal) (*domain.OrderResult, error)
}

// Scheduler replays scheduledorders.Store rows once their execute_after has
// elapsed and their market is open.
type Scheduler struct {
	store        *scheduledorders.Store
	submitter    Submitter
	calendar     broker.Calendar
	pollInterval time.Duration
	log          zerolog.Logger

	stop    chan struct{}
	done    chan struct{}
	running sync.Once

	mu          sync.Mutex
	lastTick    time.Time
	tickRunning bool
}

// New builds a Scheduler bound to store, submitting ready rows through
// submitter once calendar reports their market open.
func New(store *scheduledorders.Store, submitter Submitter, calendar broker.Calendar, pollInterval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:        store,
		submitter:    submitter,
		calendar:     calendar,
		pollInterval: pollInterval,
		log:          log.With().Str("component", "scheduler").Logger(),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start runs one iteration immediately (catches rows whose execute_after
// already elapsed during downtime), then continues on pollInterval. It
// returns immediately; call Stop to shut down.
func (s *Scheduler) Start(ctx context.Context) {
	s.running.Do(func() {
		go s.loop(ctx)
	})
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	s.runIteration(ctx)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// No-overlap guarantee: skip this tick if the previous
			// iteration is still running rather than starting a second
			// concurrent pass.
			s.mu.Lock()
			busy := s.tickRunning
			s.mu.Unlock()
			if busy {
				s.log.Warn().Msg("skipping tick, previous iteration still running")
				continue
			}
			s.runIteration(ctx)
		}
	}
}

func (s *Scheduler) runIteration(ctx context.Context) {
	s.mu.Lock()
	s.tickRunning = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.tickRunning = false
		s.lastTick = time.Now().UTC()
		s.mu.Unlock()
	}()

	now := time.Now().UTC()
	ready, err := s.store.TakeReady(now)
	if err != nil {
		s.log.Error().Err(err).Msg("take_ready failed")
		return
	}

	for _, row := range ready {
		if !s.calendar.IsOpen(row.Signal.Market, now) {
			continue
		}

		result, err := s.submitter.Submit(ctx, row.Signal)
		if err != nil {
			if markErr := s.store.MarkFailed(row.ID, err.Error()); markErr != nil {
				s.log.Error().Err(markErr).Int64("id", row.ID).Msg("mark_failed failed")
			}
			continue
		}
		if !result.Success && !result.Skipped {
			if markErr := s.store.MarkFailed(row.ID, result.Reason); markErr != nil {
				s.log.Error().Err(markErr).Int64("id", row.ID).Msg("mark_failed failed")
			}
			continue
		}
		if markErr := s.store.MarkExecuted(row.ID); markErr != nil {
			s.log.Error().Err(markErr).Int64("id", row.ID).Msg("mark_executed failed")
		}
	}
}

// LastTick reports the UTC time the most recently completed iteration
// finished, for the /status operational endpoint.
func (s *Scheduler) LastTick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}

// Stop signals the loop to finish its current iteration and exit; no new
// iteration is started. Pending rows remain in the store for the next
// process.
func (s *Scheduler) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}
