package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeKeeper/internal/domain"
)

var base = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func closedRecord(ticket int64, tactic domain.Tactic, profit string, openedAgo, closedAt time.Duration) *domain.PositionRecord {
	return &domain.PositionRecord{
		Ticket:      ticket,
		Symbol:      "EURUSD",
		Tactic:      tactic,
		Status:      domain.StatusClosed,
		Volume:      decimal.RequireFromString("0.1"),
		TotalProfit: decimal.RequireFromString(profit),
		OpenTime:    base.Add(closedAt - openedAgo),
		CloseTime:   base.Add(closedAt),
	}
}

func TestAnalyzePerformance(t *testing.T) {
	initial := decimal.NewFromInt(10000)
	records := []*domain.PositionRecord{
		closedRecord(2, domain.TacticStrict, "-1000", 2*time.Hour, 6*time.Hour),
		closedRecord(1, domain.TacticAggressive, "1000", 4*time.Hour, time.Hour),
		{Ticket: 3, Status: domain.StatusOpened, TotalProfit: decimal.NewFromInt(500)},
		{Ticket: 4, Status: domain.StatusDeleted},
	}

	metrics := AnalyzePerformance(records, initial)

	assert.Equal(t, 2, metrics.TotalTrades)
	assert.Equal(t, 1, metrics.WinningTrades)
	assert.Equal(t, 1, metrics.LosingTrades)
	assert.Equal(t, 0.5, metrics.WinRate)
	assert.True(t, metrics.TotalProfit.IsZero())
	assert.True(t, metrics.FinalBalance.Equal(initial))
	assert.True(t, metrics.AverageWin.Equal(decimal.NewFromInt(1000)))
	assert.True(t, metrics.AverageLoss.Equal(decimal.NewFromInt(-1000)))
	assert.Equal(t, 1.0, metrics.ProfitFactor)
	assert.Equal(t, 1, metrics.MaxConsecutiveWins)
	assert.Equal(t, 1, metrics.MaxConsecutiveLosses)
	assert.Equal(t, 3*time.Hour, metrics.AverageTradeDuration)
	assert.True(t, metrics.ByTactic[domain.TacticAggressive].Equal(decimal.NewFromInt(1000)))
	assert.True(t, metrics.ByTactic[domain.TacticStrict].Equal(decimal.NewFromInt(-1000)))

	require.Len(t, metrics.EquityCurve, 2)
	assert.True(t, metrics.EquityCurve[0].Value.Equal(decimal.NewFromInt(11000)), "replayed in close order")

	monthly := metrics.GetMonthlyReturns()
	require.Len(t, monthly, 1)
	assert.True(t, monthly[0].Return.IsZero())
}

func TestAnalyzePerformance_Empty(t *testing.T) {
	metrics := AnalyzePerformance(nil, decimal.NewFromInt(10000))
	assert.Equal(t, 0, metrics.TotalTrades)
	assert.True(t, metrics.FinalBalance.Equal(decimal.NewFromInt(10000)))
	assert.Empty(t, metrics.EquityCurve)
}

func TestAnalyzePerformance_Drawdown(t *testing.T) {
	records := []*domain.PositionRecord{
		closedRecord(1, domain.TacticPeak, "1000", time.Hour, time.Hour),
		closedRecord(2, domain.TacticPeak, "-2200", time.Hour, 3*time.Hour),
		closedRecord(3, domain.TacticPeak, "2400", time.Hour, 5*time.Hour),
	}

	metrics := AnalyzePerformance(records, decimal.NewFromInt(10000))

	assert.Equal(t, 0.2, metrics.MaxDrawdown)
	require.Len(t, metrics.Drawdowns, 1)
	assert.Equal(t, 0.2, metrics.Drawdowns[0].Depth)
	assert.True(t, metrics.Drawdowns[0].StartValue.Equal(decimal.NewFromInt(11000)))
	assert.Equal(t, base.Add(5*time.Hour), metrics.Drawdowns[0].EndTime)
	assert.True(t, metrics.FinalBalance.Equal(decimal.NewFromInt(11200)))
}

func TestAnalyzePerformance_ConsecutiveTrades(t *testing.T) {
	records := []*domain.PositionRecord{
		closedRecord(1, domain.TacticStrict, "100", time.Hour, time.Hour),
		closedRecord(2, domain.TacticStrict, "50", time.Hour, 2*time.Hour),
		closedRecord(3, domain.TacticStrict, "-10", time.Hour, 3*time.Hour),
	}

	metrics := AnalyzePerformance(records, decimal.NewFromInt(1000))

	assert.Equal(t, 2, metrics.MaxConsecutiveWins)
	assert.Equal(t, 1, metrics.MaxConsecutiveLosses)
	assert.Equal(t, 15.0, metrics.ProfitFactor)
	assert.True(t, metrics.Expectancy.Equal(decimal.NewFromInt(140).Div(decimal.NewFromInt(3))))
}
