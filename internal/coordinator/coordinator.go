// Package coordinator sequences brokerage calls safely under concurrency
// and bounds them in time: per-ticker mutual exclusion, a global
// concurrency semaphore, a coarse ordering serializer around the
// price-read/quantity-compute/submit critical section, operation timeouts,
// and inter-call pacing.
package coordinator

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/prism-insight/execution-core/internal/broker"
	"github.com/prism-insight/execution-core/internal/domain"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
)

// ErrShuttingDown is returned by Submit once Shutdown has begun; the
// coordinator fails fast rather than accept new work it cannot finish.
var ErrShuttingDown = errors.New("coordinator: shutting down")

const lockShards = 32

// shard guards the subset of tickers hashing to it with one mutex-protected
// map, the sharded-lock-table pattern for per-key mutual exclusion without a
// single lock over every ticker. Each ticker's lock is a one-slot channel
// semaphore rather than a sync.Mutex so acquisition can race ctx.Done in a
// select: the losing case simply never sends, leaving no dangling locker.
type shard struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// Clients bundles the per-market brokerage clients the coordinator routes
// signals to by domain.Market.
type Clients struct {
	KR broker.Client
	US broker.Client
}

// Config carries the coordinator's concurrency and pacing knobs.
type Config struct {
	GlobalConcurrency int
	Timeout           time.Duration
	QuotePacing       time.Duration // pause between price query and order call
	SettlePacing      time.Duration // pause after order submission
}

// DefaultConfig is the production reference tuning (K=3, 30s, 500ms/100ms).
func DefaultConfig() Config {
	return Config{
		GlobalConcurrency: 3,
		Timeout:           30 * time.Second,
		QuotePacing:       500 * time.Millisecond,
		SettlePacing:      100 * time.Millisecond,
	}
}

// UnitAmounts is the fixed per-order budget used to size a BUY's quantity,
// one amount per currency (DEFAULT_UNIT_AMOUNT / DEFAULT_UNIT_AMOUNT_USD).
type UnitAmounts struct {
	KRW float64
	USD float64
}

// Coordinator is the sole path through which signals reach a brokerage
// client. Submit is safe for concurrent use by the dispatcher and scheduler.
type Coordinator struct {
	cfg      Config
	clients  Clients
	units    UnitAmounts
	calendar broker.Calendar
	log      zerolog.Logger

	shards [lockShards]*shard
	sem    chan struct{} // global concurrency bound
	order  sync.Mutex    // serializer: price-read -> quantity-compute -> submit

	breakers map[domain.Market]*gobreaker.CircuitBreaker

	shuttingDown chan struct{}
	shutdownOnce sync.Once
	inFlight     errgroup.Group
}

// New builds a Coordinator. clients must provide both KR and US; units
// provides the fixed-budget amounts used to size BUY quantities; cal gates
// smart order variants against market hours.
func New(cfg Config, clients Clients, units UnitAmounts, cal broker.Calendar, log zerolog.Logger) *Coordinator {
	c := &Coordinator{
		cfg:          cfg,
		clients:      clients,
		units:        units,
		calendar:     cal,
		log:          log.With().Str("component", "coordinator").Logger(),
		sem:          make(chan struct{}, cfg.GlobalConcurrency),
		shuttingDown: make(chan struct{}),
		breakers:     make(map[domain.Market]*gobreaker.CircuitBreaker, 2),
	}
	for i := range c.shards {
		c.shards[i] = &shard{locks: make(map[string]chan struct{})}
	}
	c.breakers[domain.MarketKR] = newBreaker(domain.MarketKR)
	c.breakers[domain.MarketUS] = newBreaker(domain.MarketUS)
	return c
}

// newBreaker constructs one gobreaker.CircuitBreaker per market client:
// opens after 5 consecutive failures, half-opens after 60s.
func newBreaker(market domain.Market) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    string(market),
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// BreakerState reports the circuit-breaker state for market, for the /status
// operational endpoint.
func (c *Coordinator) BreakerState(market domain.Market) string {
	b, ok := c.breakers[market]
	if !ok {
		return "unknown"
	}
	return b.State().String()
}

// tickerLock returns the one-slot semaphore for ticker, creating it on
// first use.
func (c *Coordinator) tickerLock(ticker string) chan struct{} {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ticker))
	s := c.shards[h.Sum32()%lockShards]

	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[ticker]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[ticker] = l
	}
	return l
}

func (c *Coordinator) client(market domain.Market) broker.Client {
	if market == domain.MarketUS {
		return c.clients.US
	}
	return c.clients.KR
}

func (c *Coordinator) unitAmount(market domain.Market) float64 {
	if market == domain.MarketUS {
		return c.units.USD
	}
	return c.units.KRW
}

// Submit routes signal to the correct brokerage client and signal_type
// handler, returning a terminal OrderResult. It never retries a broker
// failure or a timeout; both are reported as-is.
func (c *Coordinator) Submit(ctx context.Context, signal domain.Signal) (*domain.OrderResult, error) {
	select {
	case <-c.shuttingDown:
		return nil, ErrShuttingDown
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var result *domain.OrderResult
	var runErr error
	done := make(chan struct{})

	c.inFlight.Go(func() error {
		defer close(done)
		result, runErr = c.run(ctx, signal)
		return nil
	})

	select {
	case <-done:
		return result, runErr
	case <-ctx.Done():
		return &domain.OrderResult{Success: false, Reason: "timeout"}, nil
	}
}

func (c *Coordinator) run(ctx context.Context, signal domain.Signal) (*domain.OrderResult, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return &domain.OrderResult{Success: false, Reason: "timeout waiting for concurrency slot"}, nil
	}

	lock := c.tickerLock(signal.Ticker)
	select {
	case lock <- struct{}{}:
		defer func() { <-lock }()
	case <-ctx.Done():
		return &domain.OrderResult{Success: false, Reason: "timeout waiting for ticker lock"}, nil
	}

	switch signal.SignalType {
	case domain.SignalBuy:
		return c.submitBuy(ctx, signal)
	case domain.SignalSell:
		return c.submitSell(ctx, signal)
	case domain.SignalEvent:
		// Observational only: no order, no position mutation.
		return &domain.OrderResult{Success: true, Skipped: true, Reason: "event signal, no order placed"}, nil
	default:
		return &domain.OrderResult{Success: false, Reason: "unknown signal_type"}, nil
	}
}

func (c *Coordinator) submitBuy(ctx context.Context, signal domain.Signal) (*domain.OrderResult, error) {
	client := c.client(signal.Market)
	cb := c.breakers[signal.Market]
	budget := c.unitAmount(signal.Market)

	c.order.Lock()
	defer c.order.Unlock()

	time.Sleep(c.cfg.QuotePacing)

	raw, err := cb.Execute(func() (interface{}, error) {
		return client.SmartBuyMarket(ctx, signal.Ticker, budget, signal.Market, c.calendar)
	})

	time.Sleep(c.cfg.SettlePacing)

	if err != nil {
		return nil, toDomainErr(err)
	}
	return raw.(*domain.OrderResult), nil
}

func (c *Coordinator) submitSell(ctx context.Context, signal domain.Signal) (*domain.OrderResult, error) {
	client := c.client(signal.Market)
	cb := c.breakers[signal.Market]

	c.order.Lock()
	defer c.order.Unlock()

	raw, err := cb.Execute(func() (interface{}, error) {
		return client.SmartSellAllMarket(ctx, signal.Ticker, signal.Market, c.calendar)
	})

	time.Sleep(c.cfg.SettlePacing)

	if err != nil {
		return nil, toDomainErr(err)
	}
	return raw.(*domain.OrderResult), nil
}

func toDomainErr(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	return domain.BrokerRejectedError(err.Error(), err)
}

// Shutdown marks the coordinator closed to new submissions, then waits (up
// to ctx's deadline) for every in-flight Submit call to finish.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() { close(c.shuttingDown) })

	done := make(chan error, 1)
	go func() { done <- c.inFlight.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
