package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeKeeper/internal/adapters/papervenue"
	"tradeKeeper/internal/broker"
	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/manager"
	"tradeKeeper/internal/ports"
	"tradeKeeper/internal/position"
	"tradeKeeper/internal/risk"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	svc    *TradingService
	venue  *papervenue.Venue
	source *papervenue.StaticSource
	log    *mockLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := &mockLogger{}
	spec := domain.SymbolSpec{
		Symbol:         "EURUSD",
		Point:          d("0.00001"),
		TickSize:       d("0.00001"),
		TickValue:      d("1"),
		LotSize:        d("100000"),
		MinLot:         d("0.01"),
		LotStep:        d("0.01"),
		MaxLot:         d("100"),
		StopLevel:      10,
		FreezeLevel:    5,
		MarginRequired: d("1000"),
	}
	source := papervenue.NewStaticSource(spec, d("1.10000"), d("0.00010"))
	venue, err := papervenue.New(papervenue.Config{
		Spec:           spec,
		InitialBalance: d("10000"),
		FirstTicket:    1001,
	}, source, log)
	require.NoError(t, err)
	require.NoError(t, venue.Refresh(context.Background()))

	exec, err := broker.New(broker.Config{
		Terminal:   venue,
		Logger:     log,
		Budget:     time.Second,
		SmallDelay: time.Millisecond,
		BigDelay:   5 * time.Millisecond,
	})
	require.NoError(t, err)
	rm, err := risk.NewRiskManager(risk.RiskConfig{
		StopoutFold:     d("0.1"),
		MarginCallFold:  d("0.1"),
		MoneyManagement: domain.ConstantRisk,
		CapitalUnit:     d("100"),
	}, log)
	require.NoError(t, err)

	svc, err := NewTradingService(Config{
		Logger:         log,
		Venue:          venue,
		UpdateInterval: 5 * time.Millisecond,
		HarshUnwind:    true,
	}, manager.Config{
		Broker: exec,
		Risk:   rm,
		Logger: log,
		Params: position.Params{
			Symbol:              "EURUSD",
			Magics:              map[domain.Tactic]int64{domain.TacticAggressive: 100, domain.TacticStrict: 200, domain.TacticPeak: 300},
			MaxStopLossLimit:    d("0.5"),
			MaxTakeProfitLimit:  d("2"),
			ExpectedSlippage:    3,
			Leverage:            d("100"),
			LooseSqueezeMinTime: 5 * time.Minute,
			LooseSqueezeMaxTime: 30 * time.Minute,
			TightSqueezeMaxTime: 10 * time.Minute,
			MinSqueezeSpeed:     d("0.00001"),
		},
		OrderCheckDelay: 30 * time.Second,
		AllowedSlippage: 5,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, venue: venue, source: source, log: log}
}

func TestNewTradingService_Validation(t *testing.T) {
	_, err := NewTradingService(Config{}, manager.Config{})
	assert.Error(t, err)

	f := newFixture(t)
	_, err = NewTradingService(Config{Logger: f.log, Venue: f.venue}, manager.Config{})
	assert.Error(t, err, "interval required")

	_, err = NewTradingService(Config{Logger: f.log, Venue: f.venue, UpdateInterval: time.Second}, manager.Config{})
	assert.Error(t, err, "manager dependencies required")
}

func TestStep_FollowsThePrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p, err := f.svc.Manager().Open(ctx, manager.OpenOrder{
		Tactic:    domain.TacticAggressive,
		Direction: domain.Up,
		StopLoss:  d("1.09900"),
		Volume:    decimal.NewNullDecimal(d("1")),
	})
	require.NoError(t, err)

	f.source.Set(d("1.09800"))
	f.svc.step(ctx)

	assert.Equal(t, domain.StatusClosed, p.Status())
	assert.Nil(t, f.svc.Emergency())
	assert.Empty(t, f.log.errorMsgs)
}

func TestStep_EmergencyUnwindsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p, err := f.svc.Manager().Open(ctx, manager.OpenOrder{
		Tactic:    domain.TacticAggressive,
		Direction: domain.Up,
		StopLoss:  d("1.09900"),
		Volume:    decimal.NewNullDecimal(d("1")),
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusOpened, p.Status())

	f.venue.Plant(domain.VenueOrder{Magic: 100, Kind: domain.OpSell, Lots: d("1"), OpenPrice: d("1.1"), Comment: "manual"})
	f.svc.step(ctx)

	assert.ErrorIs(t, f.svc.Emergency(), ports.ErrDesync)
	assert.True(t, f.svc.Manager().Locked())
	assert.Equal(t, 1, f.venue.Calls("Close"))
	assert.Contains(t, f.log.errorMsgs, "Emergency: trading halted, positions will be unwound")

	f.svc.step(ctx)
	assert.Equal(t, 1, f.venue.Calls("Close"))

	_, err = f.svc.Manager().Open(ctx, manager.OpenOrder{Tactic: domain.TacticPeak, Direction: domain.Down, StopLoss: d("1.10200"), Volume: decimal.NewNullDecimal(d("1"))})
	assert.ErrorIs(t, err, ports.ErrTradingLocked)
}

func TestStart_AdoptsAndRunsUntilCancelled(t *testing.T) {
	f := newFixture(t)
	f.venue.Plant(domain.VenueOrder{
		Magic: 200, Kind: domain.OpBuy, Lots: d("0.5"), OpenPrice: d("1.09950"),
		StopLoss: d("1.09000"), Comment: "N: 7 magic: 200",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	require.NoError(t, f.svc.Start(ctx))

	adopted := f.svc.Manager().Active(domain.TacticStrict)
	require.Len(t, adopted, 1)
	assert.Equal(t, int64(1001), adopted[0].Ticket())
	assert.Equal(t, int64(7), adopted[0].CorrelationID())
	assert.Greater(t, f.svc.Manager().Tick(), int64(0))
	assert.Contains(t, f.log.warnMsgs, "Found orders of a previous run, adopting them")
	assert.Contains(t, f.log.infoMsgs, "Trading Service stopped.")
	assert.Nil(t, f.svc.Emergency())
}

func TestAdopt_SettledOrdersOfPreviousRunAreNotUnexplained(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	closedAt := time.Now().Add(-time.Hour)
	f.venue.Plant(domain.VenueOrder{
		Magic: 100, Kind: domain.OpBuy, Lots: d("1"), OpenPrice: d("1.10000"), ClosePrice: d("1.10050"),
		OpenTime: closedAt.Add(-time.Hour), CloseTime: closedAt, Comment: "N: 3 magic: 100",
	})

	require.NoError(t, f.svc.adopt(ctx))
	assert.Contains(t, f.log.infoMsgs, "RememberHistory: settled orders of a previous run recorded")
	assert.NotContains(t, f.log.warnMsgs, "Found orders of a previous run, adopting them")

	p, err := f.svc.Manager().Open(ctx, manager.OpenOrder{
		Tactic:    domain.TacticAggressive,
		Direction: domain.Up,
		StopLoss:  d("1.09900"),
		Volume:    decimal.NewNullDecimal(d("1")),
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Greater(t, p.CorrelationID(), int64(3))

	f.source.Set(d("1.09800"))
	f.svc.step(ctx)

	assert.Equal(t, domain.StatusClosed, p.Status())
	assert.Nil(t, f.svc.Emergency())
	assert.Empty(t, f.log.errorMsgs)
}
