package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prism-insight/execution-core/internal/database"
	"github.com/prism-insight/execution-core/internal/domain"
	"github.com/prism-insight/execution-core/internal/scheduledorders"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *scheduledorders.Store {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    t.TempDir() + "/scheduler.db",
		Profile: database.ProfileStandard,
		Name:    "scheduler",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return scheduledorders.NewStore(db.Conn(), zerolog.Nop())
}

type fakeSubmitter struct {
	calls  int32
	result *domain.OrderResult
	err    error
}

func (f *fakeSubmitter) Submit(ctx context.Context, signal domain.Signal) (*domain.OrderResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type calAlways struct{ open bool }

func (c calAlways) IsOpen(market domain.Market, t time.Time) bool { return c.open }

func readySignal() domain.Signal {
	s := domain.Signal{Ticker: "AAPL", SignalType: domain.SignalBuy, Market: domain.MarketUS}
	s.Normalize()
	return s
}

func TestScheduler_ExecutesReadyRowOnStartupIteration(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Enqueue(readySignal(), time.Now().Add(-time.Minute))
	require.NoError(t, err)

	sub := &fakeSubmitter{result: &domain.OrderResult{Success: true}}
	s := New(store, sub, calAlways{open: true}, time.Hour, zerolog.Nop())

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.EqualValues(t, 1, atomic.LoadInt32(&sub.calls))
	count, err := store.PendingCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestScheduler_SkipsRowWhenMarketClosed(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Enqueue(readySignal(), time.Now().Add(-time.Minute))
	require.NoError(t, err)

	sub := &fakeSubmitter{result: &domain.OrderResult{Success: true}}
	s := New(store, sub, calAlways{open: false}, time.Hour, zerolog.Nop())

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.Zero(t, atomic.LoadInt32(&sub.calls))
	count, err := store.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestScheduler_MarksFailedOnUnsuccessfulResult(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Enqueue(readySignal(), time.Now().Add(-time.Minute))
	require.NoError(t, err)

	sub := &fakeSubmitter{result: &domain.OrderResult{Success: false, Reason: "broker_rejected"}}
	s := New(store, sub, calAlways{open: true}, time.Hour, zerolog.Nop())

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	count, err := store.PendingCount()
	require.NoError(t, err)
	assert.Zero(t, count)

	ready, err := store.TakeReady(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ready) // row is 'failed', no longer pending
}

func TestScheduler_StopFinishesCurrentIterationAndLeavesFutureRowsPending(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Enqueue(readySignal(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	sub := &fakeSubmitter{result: &domain.OrderResult{Success: true}}
	s := New(store, sub, calAlways{open: true}, time.Hour, zerolog.Nop())

	s.Start(context.Background())
	s.Stop()

	assert.Zero(t, atomic.LoadInt32(&sub.calls))
	count, err := store.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
