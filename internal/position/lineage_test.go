package position

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/ports"
)

func residualOrder(pred *Position, m domain.Market) domain.VenueOrder {
	o := observed(pred, m)
	o.Ticket = 2000
	o.Lots = d("0.4")
	o.Comment = "from #1001"
	return o
}

func TestNewSuccessor(t *testing.T) {
	f := newFixture()
	m := testMarket("1.10000", "1.10010")
	pred := f.openBuy(m, "1.09900")
	require.Equal(t, int64(1001), pred.Ticket())

	succ, err := NewSuccessor(context.Background(), m, pred, d("0.4"), domain.StatusOpened, residualOrder(pred, m))
	require.NoError(t, err)
	assert.Equal(t, int64(2000), succ.Ticket())
	assert.Equal(t, pred.Ticket(), succ.Predecessor())
	assert.Equal(t, succ.Ticket(), pred.Successor())
	assert.Equal(t, pred.Tactic(), succ.Tactic())
	assert.Equal(t, domain.StatusOpened, succ.Status())
	assert.True(t, succ.Volume().Equal(d("0.4")))
	assert.True(t, succ.MaxLossFromOpen().Equal(d("45.2")), "max loss %s", succ.MaxLossFromOpen())
}

func TestNewSuccessor_Mismatch(t *testing.T) {
	m := testMarket("1.10000", "1.10010")
	tests := []struct {
		name   string
		mutate func(o *domain.VenueOrder)
	}{
		{"lots", func(o *domain.VenueOrder) { o.Lots = d("0.5") }},
		{"direction", func(o *domain.VenueOrder) { o.Kind = domain.OpSell }},
		{"magic", func(o *domain.VenueOrder) { o.Magic = 7 }},
		{"open price", func(o *domain.VenueOrder) { o.OpenPrice = d("1.2") }},
		{"stop loss", func(o *domain.VenueOrder) { o.StopLoss = d("1.0985") }},
		{"symbol", func(o *domain.VenueOrder) { o.Symbol = "GBPUSD" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			pred := f.openBuy(m, "1.09900")
			o := residualOrder(pred, m)
			tt.mutate(&o)
			succ, err := NewSuccessor(context.Background(), m, pred, d("0.4"), domain.StatusOpened, o)
			assert.Nil(t, succ)
			assert.ErrorIs(t, err, ports.ErrDesync)
			assert.Zero(t, pred.Successor())
		})
	}
}

func TestAdopt(t *testing.T) {
	f := newFixture()
	m := testMarket("1.10000", "1.10010")
	o := domain.VenueOrder{
		Ticket:     77,
		Magic:      300,
		Symbol:     "EURUSD",
		Kind:       domain.OpSell,
		Lots:       d("0.2"),
		OpenPrice:  d("1.1"),
		ClosePrice: d("1.1001"),
		StopLoss:   d("1.102"),
		TakeProfit: d("1.09"),
		OpenTime:   f.clock.now,
		Comment:    "N: 42 magic: 300",
	}
	p := Adopt(context.Background(), f.env, m, domain.TacticPeak, o)
	assert.Equal(t, int64(77), p.Ticket())
	assert.Equal(t, int64(42), p.CorrelationID())
	assert.Equal(t, domain.StatusOpened, p.Status())
	assert.Equal(t, domain.Down, p.Direction())
	assert.Contains(t, f.log.infoMsgs, "Adopt: adopted venue order")

	o.Kind = domain.OpSellStop
	assert.Equal(t, domain.StatusPending, Adopt(context.Background(), f.env, m, domain.TacticPeak, o).Status())
}
