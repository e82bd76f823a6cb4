package papervenue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/ports"
)

type mockLogger struct {
	infoMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var start = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

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

func newTestVenue(t *testing.T) (*Venue, *time.Time) {
	t.Helper()
	now := start
	v, err := New(Config{
		Spec:           testSpec(),
		InitialBalance: d("10000"),
		FirstTicket:    100,
		Now:            func() time.Time { return now },
	}, nil, &mockLogger{})
	require.NoError(t, err)
	v.SetQuote(d("1.1000"), d("1.1002"))
	return v, &now
}

func buy(lots string) domain.OrderRequest {
	return domain.OrderRequest{
		Symbol: "EURUSD", Kind: domain.OpBuy, Lots: d(lots), Price: d("1.1002"), Slippage: 3,
		StopLoss: d("1.0950"), TakeProfit: d("1.1100"), Magic: 100, Comment: "N: 1 magic: 100",
	}
}

func codeOf(err error) domain.ErrorCode {
	return ports.ErrorCodeOf(err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Spec: testSpec()}, nil, nil)
	require.Error(t, err)

	_, err = New(Config{Spec: domain.SymbolSpec{Symbol: "EURUSD"}}, nil, &mockLogger{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrConfigurationError))
}

func TestSend_Market(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVenue(t)

	ticket, err := v.Send(ctx, buy("1"))
	require.NoError(t, err)
	assert.Equal(t, int64(100), ticket)

	active, err := v.ActiveOrders(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].OpenPrice.Equal(d("1.1002")))
	assert.True(t, active[0].ClosePrice.Equal(d("1.1000")))
	assert.True(t, active[0].Profit.Equal(d("-20")), "profit %s", active[0].Profit)
	assert.Equal(t, "N: 1 magic: 100", active[0].Comment)

	v.SetQuote(d("1.1012"), d("1.1014"))
	acc, err := v.Account(ctx)
	require.NoError(t, err)
	assert.True(t, acc.Equity.Equal(d("10100")), "equity %s", acc.Equity)
	assert.True(t, acc.Margin.Equal(d("1000")))
	assert.True(t, acc.FreeMargin.Equal(d("9100")))
}

func TestSend_Rejections(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		mod  func(r *domain.OrderRequest)
		code domain.ErrorCode
	}{
		{"unknown symbol", func(r *domain.OrderRequest) { r.Symbol = "GBPUSD" }, domain.CodeUnknownSymbol},
		{"lots off step", func(r *domain.OrderRequest) { r.Lots = d("0.015") }, domain.CodeInvalidTradeVolume},
		{"price moved", func(r *domain.OrderRequest) { r.Price = d("1.0990") }, domain.CodeRequote},
		{"stop too close", func(r *domain.OrderRequest) { r.StopLoss = d("1.09995") }, domain.CodeInvalidStops},
		{"no money", func(r *domain.OrderRequest) { r.Lots = d("11") }, domain.CodeNotEnoughMoney},
		{"limit above ask", func(r *domain.OrderRequest) {
			r.Kind, r.Price = domain.OpBuyLimit, d("1.1003")
		}, domain.CodeInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := newTestVenue(t)
			req := buy("1")
			tt.mod(&req)
			_, err := v.Send(ctx, req)
			require.Error(t, err)
			assert.Equal(t, tt.code, codeOf(err))
			active, _ := v.ActiveOrders(ctx)
			assert.Empty(t, active)
		})
	}
}

func TestPending_TriggerAndStop(t *testing.T) {
	ctx := context.Background()
	v, now := newTestVenue(t)

	req := buy("1")
	req.Kind, req.Price, req.StopLoss = domain.OpBuyLimit, d("1.0980"), d("1.0950")
	ticket, err := v.Send(ctx, req)
	require.NoError(t, err)

	*now = start.Add(time.Minute)
	v.SetQuote(d("1.0978"), d("1.0980"))
	active, _ := v.ActiveOrders(ctx)
	require.Len(t, active, 1)
	assert.Equal(t, domain.OpBuy, active[0].Kind)
	assert.Equal(t, start.Add(time.Minute), active[0].OpenTime)

	v.SetQuote(d("1.0950"), d("1.0952"))
	active, _ = v.ActiveOrders(ctx)
	assert.Empty(t, active)
	history, _ := v.HistoryOrders(ctx)
	require.Len(t, history, 1)
	assert.Equal(t, ticket, history[0].Ticket)
	assert.Equal(t, "N: 1 magic: 100[sl]", history[0].Comment)
	assert.True(t, history[0].ClosePrice.Equal(d("1.0950")))
	assert.True(t, history[0].Profit.Equal(d("-300")), "profit %s", history[0].Profit)
}

func TestPending_Expiration(t *testing.T) {
	ctx := context.Background()
	v, now := newTestVenue(t)

	req := buy("1")
	req.Kind, req.Price, req.Expiration = domain.OpBuyLimit, d("1.0980"), start.Add(time.Hour)
	_, err := v.Send(ctx, req)
	require.NoError(t, err)

	*now = start.Add(time.Hour)
	v.SetQuote(d("1.1000"), d("1.1002"))
	history, _ := v.HistoryOrders(ctx)
	require.Len(t, history, 1)
	assert.Equal(t, commentExpiration, history[0].Comment)
	assert.True(t, history[0].IsSettled())
	assert.True(t, history[0].Profit.IsZero())
}

func TestClose_Partial(t *testing.T) {
	ctx := context.Background()
	v, now := newTestVenue(t)
	ticket, err := v.Send(ctx, buy("1"))
	require.NoError(t, err)

	*now = start.Add(5 * time.Minute)
	require.NoError(t, v.Close(ctx, domain.CloseRequest{Ticket: ticket, Lots: d("0.4"), Price: d("1.1000"), Slippage: 3}))

	history, _ := v.HistoryOrders(ctx)
	require.Len(t, history, 1)
	assert.Equal(t, commentPartialClose, history[0].Comment)
	assert.True(t, history[0].Lots.Equal(d("0.4")))

	active, _ := v.ActiveOrders(ctx)
	require.Len(t, active, 1)
	succ := active[0]
	assert.Equal(t, "from #100", succ.Comment)
	assert.True(t, succ.Lots.Equal(d("0.6")))
	assert.Equal(t, start, succ.OpenTime)
	assert.True(t, succ.OpenPrice.Equal(d("1.1002")))
	assert.True(t, succ.StopLoss.Equal(d("1.0950")))
}

func TestCloseBy_Uneven(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVenue(t)
	long, err := v.Send(ctx, buy("1"))
	require.NoError(t, err)
	sellReq := buy("0.3")
	sellReq.Kind, sellReq.Price, sellReq.StopLoss, sellReq.TakeProfit = domain.OpSell, d("1.1000"), d("1.1050"), d("1.0900")
	short, err := v.Send(ctx, sellReq)
	require.NoError(t, err)

	require.NoError(t, v.CloseBy(ctx, long, short))

	history, _ := v.HistoryOrders(ctx)
	require.Len(t, history, 2)
	assert.Equal(t, "close hedge by #101", history[0].Comment)
	assert.True(t, history[0].Lots.Equal(d("0.3")))
	assert.Equal(t, "close hedge by #100", history[1].Comment)

	active, _ := v.ActiveOrders(ctx)
	require.Len(t, active, 1)
	assert.Equal(t, "from #100", active[0].Comment)
	assert.True(t, active[0].Lots.Equal(d("0.7")))
}

func TestFaults(t *testing.T) {
	ctx := context.Background()

	t.Run("refused call has no effect", func(t *testing.T) {
		v, _ := newTestVenue(t)
		v.InjectFault("Send", Fault{Code: domain.CodeServerBusy})
		_, err := v.Send(ctx, buy("1"))
		assert.Equal(t, domain.CodeServerBusy, codeOf(err))
		assert.Equal(t, domain.CodeServerBusy, v.LastError())
		active, _ := v.ActiveOrders(ctx)
		assert.Empty(t, active)

		v.ClearError(ctx)
		assert.Equal(t, domain.CodeNone, v.LastError())
		_, err = v.Send(ctx, buy("1"))
		require.NoError(t, err)
		assert.Equal(t, 2, v.Calls("Send"))
	})

	t.Run("executed call still reports the error", func(t *testing.T) {
		v, _ := newTestVenue(t)
		v.InjectFault("Send", Fault{Code: domain.CodeTradeTimeout, Executed: true})
		ticket, err := v.Send(ctx, buy("1"))
		assert.Equal(t, domain.CodeTradeTimeout, codeOf(err))
		assert.Zero(t, ticket)
		active, _ := v.ActiveOrders(ctx)
		require.Len(t, active, 1)
		assert.Equal(t, int64(100), active[0].Ticket)
	})
}

func TestModifyAndDelete(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVenue(t)
	ticket, err := v.Send(ctx, buy("1"))
	require.NoError(t, err)

	err = v.Modify(ctx, domain.ModifyRequest{Ticket: ticket, OpenPrice: d("1.1002"), StopLoss: d("1.0950"), TakeProfit: d("1.1100")})
	assert.Equal(t, domain.CodeNoResult, codeOf(err))

	require.NoError(t, v.Modify(ctx, domain.ModifyRequest{Ticket: ticket, StopLoss: d("1.0980"), TakeProfit: d("1.1100")}))
	active, _ := v.ActiveOrders(ctx)
	assert.True(t, active[0].StopLoss.Equal(d("1.0980")))

	err = v.Delete(ctx, ticket)
	assert.Equal(t, domain.CodeInvalidTicket, codeOf(err))

	req := buy("1")
	req.Kind, req.Price = domain.OpBuyLimit, d("1.0980")
	pending, err := v.Send(ctx, req)
	require.NoError(t, err)
	require.NoError(t, v.Delete(ctx, pending))
	history, _ := v.HistoryOrders(ctx)
	require.Len(t, history, 1)
	assert.Equal(t, pending, history[0].Ticket)
}

func TestMarket_StaticSource(t *testing.T) {
	ctx := context.Background()
	src := NewStaticSource(testSpec(), d("1.2000"), d("0.0002"))
	v, err := New(Config{Spec: testSpec(), InitialBalance: d("1000")}, src, &mockLogger{})
	require.NoError(t, err)

	m, err := v.Market(ctx, "EURUSD")
	require.NoError(t, err)
	assert.True(t, m.Quote.Ask.Equal(d("1.2002")))

	src.Set(d("1.2100"))
	m, err = v.Market(ctx, "EURUSD")
	require.NoError(t, err)
	assert.True(t, m.Quote.Bid.Equal(d("1.2100")))

	_, err = v.Market(ctx, "GBPUSD")
	assert.True(t, errors.Is(err, ports.ErrInvalidRequest))
}
