package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tradeKeeper/internal/domain"
)

// PerformanceMetrics summarizes the closed positions of a journal.
// Every closed part of a partially closed position counts as its own trade.
type PerformanceMetrics struct {
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	WinRate        float64
	TotalProfit    decimal.Decimal
	GrossProfit    decimal.Decimal
	GrossLoss      decimal.Decimal // negative or zero
	AverageWin     decimal.Decimal
	AverageLoss    decimal.Decimal // negative or zero
	ProfitFactor   float64         // zero when there were no losses
	Expectancy     decimal.Decimal
	MaxDrawdown    float64 // fraction of the peak balance
	InitialBalance decimal.Decimal
	FinalBalance   decimal.Decimal

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration
	ByTactic             map[domain.Tactic]decimal.Decimal
	MonthlyReturns       map[string]decimal.Decimal
	Drawdowns            []Drawdown
	EquityCurve          []EquityPoint
}

// Drawdown is one period spent below a balance peak.
type Drawdown struct {
	StartTime  time.Time
	EndTime    time.Time // zero while the drawdown is still open
	StartValue decimal.Decimal
	Depth      float64
}

// EquityPoint is the balance right after one trade was closed.
type EquityPoint struct {
	Time     time.Time
	Value    decimal.Decimal
	Drawdown float64
}

// MonthlyReturn is the profit booked within one calendar month.
type MonthlyReturn struct {
	Month  time.Time
	Return decimal.Decimal
}

// AnalyzePerformance replays the closed records in close order on top of initialBalance.
// Records in any other status are ignored.
func AnalyzePerformance(records []*domain.PositionRecord, initialBalance decimal.Decimal) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		InitialBalance: initialBalance,
		FinalBalance:   initialBalance,
		ByTactic:       make(map[domain.Tactic]decimal.Decimal),
		MonthlyReturns: make(map[string]decimal.Decimal),
		Drawdowns:      make([]Drawdown, 0),
		EquityCurve:    make([]EquityPoint, 0),
	}

	closed := make([]*domain.PositionRecord, 0, len(records))
	for _, r := range records {
		if r != nil && r.Status == domain.StatusClosed {
			closed = append(closed, r)
		}
	}
	if len(closed) == 0 {
		return metrics
	}
	sort.SliceStable(closed, func(i, j int) bool {
		if closed[i].CloseTime.Equal(closed[j].CloseTime) {
			return closed[i].Ticket < closed[j].Ticket
		}
		return closed[i].CloseTime.Before(closed[j].CloseTime)
	})

	balance := initialBalance
	peak := initialBalance
	var current *Drawdown
	var wins, losses int
	var totalDuration time.Duration

	for _, r := range closed {
		pnl := r.TotalProfit
		metrics.TotalTrades++
		if pnl.IsPositive() {
			metrics.WinningTrades++
			metrics.GrossProfit = metrics.GrossProfit.Add(pnl)
			wins++
			losses = 0
		} else {
			metrics.LosingTrades++
			metrics.GrossLoss = metrics.GrossLoss.Add(pnl)
			losses++
			wins = 0
		}
		if wins > metrics.MaxConsecutiveWins {
			metrics.MaxConsecutiveWins = wins
		}
		if losses > metrics.MaxConsecutiveLosses {
			metrics.MaxConsecutiveLosses = losses
		}

		balance = balance.Add(pnl)
		metrics.TotalProfit = metrics.TotalProfit.Add(pnl)
		metrics.ByTactic[r.Tactic] = metrics.ByTactic[r.Tactic].Add(pnl)
		month := r.CloseTime.Format("2006-01")
		metrics.MonthlyReturns[month] = metrics.MonthlyReturns[month].Add(pnl)
		if !r.OpenTime.IsZero() && r.CloseTime.After(r.OpenTime) {
			totalDuration += r.CloseTime.Sub(r.OpenTime)
		}

		depth := 0.0
		if balance.GreaterThanOrEqual(peak) {
			peak = balance
			if current != nil {
				current.EndTime = r.CloseTime
				metrics.Drawdowns = append(metrics.Drawdowns, *current)
				current = nil
			}
		} else {
			depth = ratio(peak.Sub(balance), peak)
			if current == nil {
				current = &Drawdown{StartTime: r.CloseTime, StartValue: peak}
			}
			if depth > current.Depth {
				current.Depth = depth
			}
			if depth > metrics.MaxDrawdown {
				metrics.MaxDrawdown = depth
			}
		}
		metrics.EquityCurve = append(metrics.EquityCurve, EquityPoint{Time: r.CloseTime, Value: balance, Drawdown: depth})
	}
	if current != nil {
		metrics.Drawdowns = append(metrics.Drawdowns, *current)
	}

	metrics.FinalBalance = balance
	metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades)
	if metrics.WinningTrades > 0 {
		metrics.AverageWin = metrics.GrossProfit.Div(decimal.NewFromInt(int64(metrics.WinningTrades)))
	}
	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = metrics.GrossLoss.Div(decimal.NewFromInt(int64(metrics.LosingTrades)))
	}
	if metrics.GrossLoss.IsNegative() {
		metrics.ProfitFactor = ratio(metrics.GrossProfit, metrics.GrossLoss.Neg())
	}
	metrics.Expectancy = metrics.TotalProfit.Div(decimal.NewFromInt(int64(metrics.TotalTrades)))
	metrics.AverageTradeDuration = totalDuration / time.Duration(metrics.TotalTrades)
	return metrics
}

// GetMonthlyReturns returns the monthly returns sorted by month.
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, profit := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{Month: date, Return: profit})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

func ratio(a, b decimal.Decimal) float64 {
	if b.IsZero() {
		return 0
	}
	f, _ := a.Div(b).Float64()
	return f
}
