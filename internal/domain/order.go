package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// VenueOrder is one order as the venue reports it, either active or settled.
// For active orders ClosePrice carries the current market price.
type VenueOrder struct {
	Ticket     int64
	Magic      int64
	Symbol     string
	Kind       OperationKind
	Lots       decimal.Decimal
	OpenPrice  decimal.Decimal
	ClosePrice decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Commission decimal.Decimal
	Swap       decimal.Decimal
	Profit     decimal.Decimal
	OpenTime   time.Time
	CloseTime  time.Time
	Expiration time.Time
	Comment    string
}

// IsSettled reports whether the order has left the active list.
func (o VenueOrder) IsSettled() bool {
	return !o.CloseTime.IsZero()
}

// OrderRequest is a new order submission.
type OrderRequest struct {
	Symbol     string
	Kind       OperationKind
	Lots       decimal.Decimal
	Price      decimal.Decimal
	Slippage   int64 // points
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Magic      int64
	Comment    string
	Expiration time.Time
}

// ModifyRequest changes the levels of an active order. OpenPrice and
// Expiration only matter for pending orders.
type ModifyRequest struct {
	Ticket     int64
	OpenPrice  decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Expiration time.Time
}

// CloseRequest closes all or part of an opened order at market.
type CloseRequest struct {
	Ticket   int64
	Lots     decimal.Decimal
	Price    decimal.Decimal
	Slippage int64 // points
}
