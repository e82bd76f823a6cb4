package position

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tradeKeeper/internal/broker"
	"tradeKeeper/internal/domain"
)

type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

var errVenueRefused = errors.New("refused")

// mockTrader records trading calls. Calls listed in failNext fail once.
type mockTrader struct {
	nextTicket int64
	sends      []domain.OrderRequest
	modifies   []domain.ModifyRequest
	closes     []domain.CloseRequest
	closeBys   [][2]int64
	deletes    []int64
	failNext   map[string]int
}

func newMockTrader() *mockTrader {
	return &mockTrader{nextTicket: 1000, failNext: map[string]int{}}
}

func (t *mockTrader) fail(op string) error {
	if t.failNext[op] > 0 {
		t.failNext[op]--
		return errVenueRefused
	}
	return nil
}

func (t *mockTrader) Send(ctx context.Context, req domain.OrderRequest) (int64, error) {
	t.sends = append(t.sends, req)
	if err := t.fail("Send"); err != nil {
		return 0, err
	}
	t.nextTicket++
	return t.nextTicket, nil
}

func (t *mockTrader) Modify(ctx context.Context, req domain.ModifyRequest) error {
	t.modifies = append(t.modifies, req)
	return t.fail("Modify")
}

func (t *mockTrader) Close(ctx context.Context, req domain.CloseRequest) error {
	t.closes = append(t.closes, req)
	return t.fail("Close")
}

func (t *mockTrader) CloseBy(ctx context.Context, ticket, opposite int64) error {
	t.closeBys = append(t.closeBys, [2]int64{ticket, opposite})
	return t.fail("CloseBy")
}

func (t *mockTrader) Delete(ctx context.Context, ticket int64) error {
	t.deletes = append(t.deletes, ticket)
	return t.fail("Delete")
}

func (t *mockTrader) FreeMarginCheck(ctx context.Context, symbol string, kind domain.OperationKind, lots decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

// mockBroker runs calls directly. A queued result other than Succeeded is
// returned instead of running the call.
type mockBroker struct {
	queued []broker.Result
	ops    []string
}

func (b *mockBroker) Do(ctx context.Context, op string, call func(ctx context.Context) error) (broker.Result, error) {
	b.ops = append(b.ops, op)
	if len(b.queued) > 0 {
		r := b.queued[0]
		b.queued = b.queued[1:]
		if r != broker.Succeeded {
			return r, nil
		}
	}
	if err := call(ctx); err != nil {
		return broker.Failed, nil
	}
	return broker.Succeeded, nil
}

func (b *mockBroker) DoModify(ctx context.Context, op string, call func(ctx context.Context) error) (broker.Result, error) {
	return b.Do(ctx, op, call)
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testMarket(bid, ask string) domain.Market {
	return domain.Market{
		Spec: domain.SymbolSpec{
			Symbol:      "EURUSD",
			Point:       d("0.00001"),
			TickSize:    d("0.00001"),
			TickValue:   d("1"),
			LotSize:     d("100000"),
			MinLot:      d("0.01"),
			LotStep:     d("0.01"),
			MaxLot:      d("100"),
			StopLevel:   10,
			FreezeLevel: 5,
		},
		Quote: domain.Quote{Bid: d(bid), Ask: d(ask)},
	}
}

type fixture struct {
	env    *Env
	trader *mockTrader
	broker *mockBroker
	log    *mockLogger
	clock  *fakeClock
}

func newFixture() *fixture {
	f := &fixture{
		trader: newMockTrader(),
		broker: &mockBroker{},
		log:    &mockLogger{},
		clock:  &fakeClock{now: time.Date(2024, 3, 4, 10, 0, 30, 0, time.UTC)},
	}
	f.env = &Env{
		Trader: f.trader,
		Broker: f.broker,
		Logger: f.log,
		Params: Params{
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
		Now:  f.clock.Now,
		Tick: func() int64 { return 1 },
	}
	if err := f.env.Validate(); err != nil {
		panic(err)
	}
	return f
}

// observed mirrors the local state of p as the venue would report it.
func observed(p *Position, m domain.Market) domain.VenueOrder {
	o := domain.VenueOrder{
		Ticket:     p.ticket,
		Magic:      p.magic,
		Symbol:     p.symbol,
		Kind:       p.current,
		Lots:       p.volume,
		OpenPrice:  p.openPrice,
		ClosePrice: m.ClosingPrice(p.dir),
		StopLoss:   p.stopLoss,
		TakeProfit: p.takeProfit,
		Commission: p.commission,
		Swap:       p.swap,
		Profit:     p.profit,
		OpenTime:   p.openTime,
		CloseTime:  p.closeTime,
		Expiration: p.expiration,
		Comment:    p.comment,
	}
	if o.OpenTime.IsZero() {
		o.OpenTime = p.createdAt
	}
	return o
}

func (f *fixture) openBuy(m domain.Market, sl string) *Position {
	p, err := Open(context.Background(), f.env, m, OpenRequest{
		Tactic:        domain.TacticAggressive,
		Kind:          domain.OpBuy,
		Volume:        d("1"),
		StopLoss:      d(sl),
		Slippage:      3,
		CorrelationID: 7,
	})
	if err != nil {
		panic(err)
	}
	if !p.Update(context.Background(), m, domain.StatusOpened, observed(p, m)) {
		panic("first update failed")
	}
	return p
}

func (f *fixture) openSell(m domain.Market, sl string) *Position {
	p, err := Open(context.Background(), f.env, m, OpenRequest{
		Tactic:        domain.TacticPeak,
		Kind:          domain.OpSell,
		Volume:        d("1"),
		StopLoss:      d(sl),
		Slippage:      3,
		CorrelationID: 8,
	})
	if err != nil {
		panic(err)
	}
	if !p.Update(context.Background(), m, domain.StatusOpened, observed(p, m)) {
		panic("first update failed")
	}
	return p
}
