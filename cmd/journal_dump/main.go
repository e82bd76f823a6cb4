package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"tradeKeeper/config"
	"tradeKeeper/internal/adapters/logger"
	"tradeKeeper/internal/analytics"
	"tradeKeeper/internal/adapters/sqlite"
	"tradeKeeper/internal/domain"
)

type positionOut struct {
	Ticket      int64     `yaml:"ticket"`
	Correlation int64     `yaml:"correlation_id"`
	Tactic      string    `yaml:"tactic"`
	Kind        string    `yaml:"kind"`
	Status      string    `yaml:"status"`
	Volume      string    `yaml:"volume"`
	OpenPrice   string    `yaml:"open_price"`
	ClosePrice  string    `yaml:"close_price,omitempty"`
	StopLoss    string    `yaml:"stop_loss"`
	TakeProfit  string    `yaml:"take_profit"`
	TotalProfit string    `yaml:"total_profit"`
	OpenTime    time.Time `yaml:"open_time,omitempty"`
	CloseTime   time.Time `yaml:"close_time,omitempty"`
	Predecessor int64     `yaml:"predecessor,omitempty"`
	Successor   int64     `yaml:"successor,omitempty"`
	ClosedBy    int64     `yaml:"closed_by,omitempty"`
}

type eventOut struct {
	At      time.Time `yaml:"at"`
	Run     string    `yaml:"run"`
	Ticket  int64     `yaml:"ticket,omitempty"`
	Kind    string    `yaml:"kind"`
	Message string    `yaml:"message"`
}

type performanceOut struct {
	Trades               int               `yaml:"trades"`
	WinRate              float64           `yaml:"win_rate"`
	ProfitFactor         float64           `yaml:"profit_factor"`
	MaxDrawdown          float64           `yaml:"max_drawdown"`
	Expectancy           string            `yaml:"expectancy"`
	FinalBalance         string            `yaml:"final_balance"`
	MaxConsecutiveLosses int               `yaml:"max_consecutive_losses"`
	AverageDuration      string            `yaml:"average_duration"`
	ByTactic             map[string]string `yaml:"by_tactic"`
	Monthly              map[string]string `yaml:"monthly"`
}

type report struct {
	TotalProfit float64         `yaml:"total_profit"`
	Performance *performanceOut `yaml:"performance,omitempty"`
	Positions   []positionOut   `yaml:"positions"`
	Events      []eventOut      `yaml:"events"`
}

func summarize(m *analytics.PerformanceMetrics) *performanceOut {
	out := &performanceOut{
		Trades:               m.TotalTrades,
		WinRate:              m.WinRate,
		ProfitFactor:         m.ProfitFactor,
		MaxDrawdown:          m.MaxDrawdown,
		Expectancy:           m.Expectancy.StringFixed(2),
		FinalBalance:         m.FinalBalance.StringFixed(2),
		MaxConsecutiveLosses: m.MaxConsecutiveLosses,
		AverageDuration:      m.AverageTradeDuration.String(),
		ByTactic:             make(map[string]string),
		Monthly:              make(map[string]string),
	}
	for tactic, profit := range m.ByTactic {
		out.ByTactic[tactic.String()] = profit.StringFixed(2)
	}
	for _, r := range m.GetMonthlyReturns() {
		out.Monthly[r.Month.Format("2006-01")] = r.Return.StringFixed(2)
	}
	return out
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	dbPath := flag.String("db", cfg.DBPath, "journal database path")
	limit := flag.Int("events", 50, "number of most recent events to print")
	activeOnly := flag.Bool("active", false, "print only positions recorded as active")
	balance := flag.String("balance", cfg.InitialBalance.String(), "starting balance for the performance report")
	flag.Parse()

	startBalance, err := decimal.NewFromString(*balance)
	if err != nil {
		log.Fatalf("FATAL: Invalid -balance %q: %v", *balance, err)
	}

	appLogger := logger.NewStdLogger(logger.LevelWarn)
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open journal: %v", err)
	}
	defer repo.Close()

	var (
		positions []*domain.PositionRecord
		events    []*domain.JournalEvent
		out       report
	)
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		var err error
		if *activeOnly {
			positions, err = repo.FindActive(ctx)
		} else {
			positions, err = repo.FindAll(ctx)
		}
		return err
	})
	g.Go(func() error {
		var err error
		events, err = repo.ListEvents(ctx, *limit)
		return err
	})
	g.Go(func() error {
		var err error
		out.TotalProfit, err = repo.GetTotalProfit(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("FATAL: Failed to read journal: %v", err)
	}

	if !*activeOnly {
		out.Performance = summarize(analytics.AnalyzePerformance(positions, startBalance))
	}
	for _, p := range positions {
		po := positionOut{
			Ticket:      p.Ticket,
			Correlation: p.CorrelationID,
			Tactic:      p.Tactic.String(),
			Kind:        p.Kind.String(),
			Status:      p.Status.String(),
			Volume:      p.Volume.String(),
			OpenPrice:   p.OpenPrice.String(),
			StopLoss:    p.StopLoss.String(),
			TakeProfit:  p.TakeProfit.String(),
			TotalProfit: p.TotalProfit.StringFixed(2),
			OpenTime:    p.OpenTime,
			CloseTime:   p.CloseTime,
			Predecessor: p.Predecessor,
			Successor:   p.Successor,
			ClosedBy:    p.ClosedBy,
		}
		if !p.ClosePrice.IsZero() {
			po.ClosePrice = p.ClosePrice.String()
		}
		out.Positions = append(out.Positions, po)
	}
	for _, ev := range events {
		out.Events = append(out.Events, eventOut{At: ev.CreatedAt, Run: ev.RunID, Ticket: ev.Ticket, Kind: string(ev.Kind), Message: ev.Message})
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		log.Fatalf("FATAL: Failed to encode journal: %v", err)
	}
	if err := enc.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
