package health

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prism-insight/execution-core/internal/database"
	"github.com/prism-insight/execution-core/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    t.TempDir() + "/" + name + ".db",
		Profile: database.ProfileStandard,
		Name:    name,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db.Conn()
}

type fakePendingCounter struct{ n int }

func (f fakePendingCounter) PendingCount() (int, error) { return f.n, nil }

type fakePositionCounter struct{ n int }

func (f fakePositionCounter) OpenPositions() ([]domain.Position, error) {
	return make([]domain.Position, f.n), nil
}

type fakeBreakerStates struct{}

func (fakeBreakerStates) BreakerState(market domain.Market) string { return "closed" }

type fakeTickReporter struct{ t time.Time }

func (f fakeTickReporter) LastTick() time.Time { return f.t }

func TestHealthz_ReportsHealthyWhenAllDBsReachable(t *testing.T) {
	dbs := Databases{
		Ledger:    openDB(t, "ledger"),
		Positions: openDB(t, "positions"),
		Scheduler: openDB(t, "scheduler"),
	}
	s := New(dbs, fakePositionCounter{}, fakePendingCounter{}, fakeBreakerStates{}, fakeTickReporter{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp healthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.LedgerOK)
}

func TestHealthz_ReportsUnhealthyWhenDBMissing(t *testing.T) {
	dbs := Databases{Ledger: nil, Positions: openDB(t, "positions"), Scheduler: openDB(t, "scheduler")}
	s := New(dbs, fakePositionCounter{}, fakePendingCounter{}, fakeBreakerStates{}, fakeTickReporter{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatus_ReportsPendingAndPositionCounts(t *testing.T) {
	dbs := Databases{Ledger: openDB(t, "ledger"), Positions: openDB(t, "positions"), Scheduler: openDB(t, "scheduler")}
	s := New(dbs, fakePositionCounter{n: 3}, fakePendingCounter{n: 2}, fakeBreakerStates{}, fakeTickReporter{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.PendingScheduledOrders)
	assert.Equal(t, 3, resp.OpenPositions)
	assert.Equal(t, "closed", resp.CircuitBreakers["KR"])
}
