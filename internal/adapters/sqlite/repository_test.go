package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeKeeper/internal/domain"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var testNow = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "trade-keeper-test-*")
	require.NoError(t, err)

	repo, err := NewRepository(Config{
		DBPath: filepath.Join(tmpDir, "test.db"),
		Logger: &mockLogger{},
		Now:    func() time.Time { return testNow },
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}
	return repo, cleanup
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func record(ticket int64, status domain.Status, profit string) *domain.PositionRecord {
	return &domain.PositionRecord{
		Ticket:        ticket,
		CorrelationID: ticket - 1000,
		Symbol:        "EURUSD",
		Tactic:        domain.TacticStrict,
		Direction:     domain.Down,
		Kind:          domain.OpSell,
		Status:        status,
		Volume:        dec("0.6"),
		OpenPrice:     dec("1.10000"),
		StopLoss:      dec("1.10500"),
		TakeProfit:    dec("1.09000"),
		TotalProfit:   dec(profit),
		OpenTime:      testNow.Add(-time.Hour),
		Predecessor:   ticket - 1,
	}
}

func TestRepository_SaveAndFindPosition(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	rec := record(1002, domain.StatusOpened, "12.5")
	require.NoError(t, repo.SavePosition(ctx, rec))

	got, err := repo.FindByTicket(ctx, 1002)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.CorrelationID)
	assert.Equal(t, domain.TacticStrict, got.Tactic)
	assert.Equal(t, domain.Down, got.Direction)
	assert.Equal(t, domain.OpSell, got.Kind)
	assert.Equal(t, domain.StatusOpened, got.Status)
	assert.True(t, got.Volume.Equal(dec("0.6")))
	assert.True(t, got.StopLoss.Equal(dec("1.105")))
	assert.True(t, got.TotalProfit.Equal(dec("12.5")))
	assert.True(t, got.OpenTime.Equal(testNow.Add(-time.Hour)))
	assert.True(t, got.CloseTime.IsZero())
	assert.True(t, got.UpdatedAt.Equal(testNow))
	assert.Equal(t, int64(1001), got.Predecessor)

	missing, err := repo.FindByTicket(ctx, 4242)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_SavePositionUpserts(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	rec := record(1002, domain.StatusOpened, "0")
	require.NoError(t, repo.SavePosition(ctx, rec))

	rec.Status = domain.StatusClosed
	rec.ClosePrice = dec("1.09500")
	rec.CloseTime = testNow
	rec.TotalProfit = dec("30")
	rec.Successor = 1003
	require.NoError(t, repo.SavePosition(ctx, rec))

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.StatusClosed, all[0].Status)
	assert.True(t, all[0].CloseTime.Equal(testNow))
	assert.Equal(t, int64(1003), all[0].Successor)
}

func TestRepository_SavePositionValidation(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	err := repo.SavePosition(context.Background(), &domain.PositionRecord{})
	assert.Error(t, err)
}

func TestRepository_FindActiveAndTotalProfit(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		ticket int64
		status domain.Status
		profit string
	}{
		{1001, domain.StatusClosed, "10.25"},
		{1002, domain.StatusOpened, "99"},
		{1003, domain.StatusPending, "0"},
		{1004, domain.StatusClosed, "-4.25"},
		{1005, domain.StatusDeleted, "0"},
	}
	for _, tt := range tests {
		require.NoError(t, repo.SavePosition(ctx, record(tt.ticket, tt.status, tt.profit)))
	}

	active, err := repo.FindActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, int64(1002), active[0].Ticket)
	assert.Equal(t, int64(1003), active[1].Ticket)

	total, err := repo.GetTotalProfit(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, total, 1e-9)
}

func TestRepository_Events(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	events := []*domain.JournalEvent{
		{RunID: "run-1", Ticket: 1001, Kind: domain.EventOpened, Message: "opened", CreatedAt: testNow},
		{RunID: "run-1", Ticket: 1001, Kind: domain.EventAnomaly, Message: "lots changed", CreatedAt: testNow.Add(time.Second)},
		{RunID: "run-2", Ticket: 1002, Kind: domain.EventAnomaly, Message: "comment changed"},
	}
	for _, ev := range events {
		id, err := repo.AppendEvent(ctx, ev)
		require.NoError(t, err)
		assert.Len(t, id, 36)
	}

	listed, err := repo.ListEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "lots changed", listed[0].Message)
	assert.Equal(t, domain.EventAnomaly, listed[0].Kind)

	n, err := repo.CountByKind(ctx, "run-1", domain.EventAnomaly)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = repo.CountByKind(ctx, "run-2", domain.EventOpened)
	require.NoError(t, err)
	assert.Zero(t, n)
}
