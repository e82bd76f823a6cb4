package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SymbolSpec holds the venue-imposed properties of a traded instrument.
type SymbolSpec struct {
	Symbol            string
	Point             decimal.Decimal
	TickSize          decimal.Decimal
	TickValue         decimal.Decimal // value of one tick for one lot, deposit currency
	LotSize           decimal.Decimal // contract size of one lot
	MinLot            decimal.Decimal
	LotStep           decimal.Decimal
	MaxLot            decimal.Decimal
	StopLevel         int64 // points
	FreezeLevel       int64 // points
	MarginInit        decimal.Decimal
	MarginMaintenance decimal.Decimal
	MarginHedged      decimal.Decimal
	MarginRequired    decimal.Decimal
}

// Quote is the current top of book.
type Quote struct {
	Bid  decimal.Decimal
	Ask  decimal.Decimal
	Time time.Time
}

// Spread is Ask minus Bid.
func (q Quote) Spread() decimal.Decimal {
	return q.Ask.Sub(q.Bid)
}

// Mid is the middle of the book.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// Market bundles the instrument spec with a quote taken at one moment.
type Market struct {
	Spec  SymbolSpec
	Quote Quote
}

// StopDistance is the minimal SL/TP distance in price units.
func (m Market) StopDistance() decimal.Decimal {
	return m.Spec.Point.Mul(decimal.NewFromInt(m.Spec.StopLevel))
}

// FreezeDistance is the freeze window in price units.
func (m Market) FreezeDistance() decimal.Decimal {
	return m.Spec.Point.Mul(decimal.NewFromInt(m.Spec.FreezeLevel))
}

// ClosingPrice is the price a position of direction d closes at.
func (m Market) ClosingPrice(d Direction) decimal.Decimal {
	if d == Up {
		return m.Quote.Bid
	}
	return m.Quote.Ask
}

// OpeningPrice is the price a market order of direction d opens at.
func (m Market) OpeningPrice(d Direction) decimal.Decimal {
	if d == Up {
		return m.Quote.Ask
	}
	return m.Quote.Bid
}

// Account holds the account-level money figures.
type Account struct {
	Currency       string
	Balance        decimal.Decimal
	Equity         decimal.Decimal
	Margin         decimal.Decimal
	FreeMargin     decimal.Decimal
	Leverage       decimal.Decimal
	StopoutLevel   decimal.Decimal
	StopoutMode    int // 0 percent of equity, 1 money
	FreeMarginMode int // 0 and 2 measure losses from opening, 1 from current price
}

// Readiness is the terminal state polled before every trading call.
type Readiness struct {
	Connected    bool
	Stopped      bool
	TradeAllowed bool
	ContextBusy  bool
}
