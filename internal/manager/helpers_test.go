package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tradeKeeper/internal/adapters/papervenue"
	"tradeKeeper/internal/broker"
	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/position"
	"tradeKeeper/internal/risk"
)

type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

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

// mockJournal keeps the journal in memory.
type mockJournal struct {
	positions map[int64]*domain.PositionRecord
	events    []*domain.JournalEvent
}

func newMockJournal() *mockJournal {
	return &mockJournal{positions: map[int64]*domain.PositionRecord{}}
}

func (j *mockJournal) SavePosition(ctx context.Context, rec *domain.PositionRecord) error {
	j.positions[rec.Ticket] = rec
	return nil
}

func (j *mockJournal) FindByTicket(ctx context.Context, ticket int64) (*domain.PositionRecord, error) {
	return j.positions[ticket], nil
}

func (j *mockJournal) FindActive(ctx context.Context) ([]*domain.PositionRecord, error) {
	var out []*domain.PositionRecord
	for _, r := range j.positions {
		if r.IsActive() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (j *mockJournal) FindAll(ctx context.Context) ([]*domain.PositionRecord, error) {
	var out []*domain.PositionRecord
	for _, r := range j.positions {
		out = append(out, r)
	}
	return out, nil
}

func (j *mockJournal) GetTotalProfit(ctx context.Context) (float64, error) { return 0, nil }

func (j *mockJournal) AppendEvent(ctx context.Context, ev *domain.JournalEvent) (string, error) {
	j.events = append(j.events, ev)
	return "", nil
}

func (j *mockJournal) ListEvents(ctx context.Context, limit int) ([]*domain.JournalEvent, error) {
	return j.events, nil
}

func (j *mockJournal) CountByKind(ctx context.Context, runID string, kind domain.EventKind) (int, error) {
	n := 0
	for _, ev := range j.events {
		if ev.Kind == kind && ev.RunID == runID {
			n++
		}
	}
	return n, nil
}

func (j *mockJournal) count(kind domain.EventKind) int {
	n := 0
	for _, ev := range j.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type mockEmergency struct {
	reasons []error
	onEnter func(ctx context.Context)
}

func (e *mockEmergency) EnterEmergency(ctx context.Context, reason error) {
	e.reasons = append(e.reasons, reason)
	if e.onEnter != nil {
		e.onEnter(ctx)
	}
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// hidingVenue hides the order book while hide is set, as a venue does
// while it is still processing a request.
type hidingVenue struct {
	*papervenue.Venue
	hide         bool
	historyReads int
}

func (v *hidingVenue) ActiveOrders(ctx context.Context) ([]domain.VenueOrder, error) {
	if v.hide {
		return nil, nil
	}
	return v.Venue.ActiveOrders(ctx)
}

func (v *hidingVenue) HistoryOrders(ctx context.Context) ([]domain.VenueOrder, error) {
	v.historyReads++
	if v.hide {
		return nil, nil
	}
	return v.Venue.HistoryOrders(ctx)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nd(s string) decimal.NullDecimal { return decimal.NewNullDecimal(d(s)) }

func testSpec() domain.SymbolSpec {
	return domain.SymbolSpec{
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
}

type fixture struct {
	m         *Manager
	venue     *hidingVenue
	clock     *fakeClock
	log       *mockLogger
	journal   *mockJournal
	emergency *mockEmergency
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:     &fakeClock{now: time.Date(2024, 3, 4, 10, 0, 30, 0, time.UTC)},
		log:       &mockLogger{},
		journal:   newMockJournal(),
		emergency: &mockEmergency{},
	}
	pv, err := papervenue.New(papervenue.Config{
		Spec:           testSpec(),
		InitialBalance: d("10000"),
		Leverage:       d("100"),
		FirstTicket:    1001,
		Now:            f.clock.Now,
	}, nil, f.log)
	require.NoError(t, err)
	pv.SetQuote(d("1.10000"), d("1.10010"))
	f.venue = &hidingVenue{Venue: pv}

	exec, err := broker.New(broker.Config{
		Terminal:   f.venue,
		Logger:     f.log,
		Budget:     10 * time.Second,
		SmallDelay: 100 * time.Millisecond,
		BigDelay:   time.Second,
		Now:        f.clock.Now,
		Sleep:      f.clock.Sleep,
	})
	require.NoError(t, err)

	rm, err := risk.NewRiskManager(risk.RiskConfig{
		StopoutFold:      d("0.1"),
		MarginCallFold:   d("0.1"),
		MoneyManagement:  domain.ConstantRisk,
		CapitalUnit:      d("100"),
		ExpectedSlippage: 3,
		DepositCurrency:  domain.DepositIsQuote,
	}, f.log)
	require.NoError(t, err)

	f.m, err = New(Config{
		Venue:     f.venue,
		Broker:    exec,
		Risk:      rm,
		Logger:    f.log,
		Journal:   f.journal,
		Emergency: f.emergency,
		Params: position.Params{
			Symbol:              "EURUSD",
			Magics:              map[domain.Tactic]int64{domain.TacticAggressive: 100, domain.TacticStrict: 200, domain.TacticPeak: 300},
			MaxStopLossLimit:    d("0.5"),
			MaxTakeProfitLimit:  d("2"),
			ExpectedSlippage:    3,
			DepositCurrency:     domain.DepositIsQuote,
			CorrectionExponent:  2,
			Leverage:            d("100"),
			LooseSqueezeMinTime: 5 * time.Minute,
			LooseSqueezeMaxTime: 30 * time.Minute,
			TightSqueezeMaxTime: 10 * time.Minute,
			MinSqueezeSpeed:     d("0.00001"),
		},
		OrderCheckDelay:   30 * time.Second,
		MinModifyInterval: time.Minute,
		MinutesPerBar:     1,
		PendingValidBars:  60,
		AllowedSlippage:   5,
		RunID:             "run-1",
		Now:               f.clock.Now,
		Sleep:             f.clock.Sleep,
	})
	require.NoError(t, err)
	return f
}

// openBuy opens an Aggressive long of lots with the stop at 1.09900.
func (f *fixture) openBuy(t *testing.T, lots string) *position.Position {
	t.Helper()
	p, err := f.m.Open(context.Background(), OpenOrder{
		Tactic:    domain.TacticAggressive,
		Direction: domain.Up,
		StopLoss:  d("1.09900"),
		Volume:    nd(lots),
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}
