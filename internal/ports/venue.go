package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"tradeKeeper/internal/domain"
)

// Trader issues trading calls. Each call either succeeds, returns a
// *VenueError describing the condition, or another error.
type Trader interface {
	// Send submits a new order and returns its ticket.
	Send(ctx context.Context, req domain.OrderRequest) (int64, error)
	// Modify changes levels of an active order.
	Modify(ctx context.Context, req domain.ModifyRequest) error
	// Close closes an opened order fully or partially.
	Close(ctx context.Context, req domain.CloseRequest) error
	// CloseBy closes an opened order against an opposite one.
	CloseBy(ctx context.Context, ticket, opposite int64) error
	// Delete cancels a pending order.
	Delete(ctx context.Context, ticket int64) error
	// FreeMarginCheck returns the free margin that would remain after opening lots.
	FreeMarginCheck(ctx context.Context, symbol string, kind domain.OperationKind, lots decimal.Decimal) (decimal.Decimal, error)
}

// OrderBook enumerates venue orders.
type OrderBook interface {
	// ActiveOrders lists open positions and pending orders.
	ActiveOrders(ctx context.Context) ([]domain.VenueOrder, error)
	// HistoryOrders lists closed positions and deleted orders.
	HistoryOrders(ctx context.Context) ([]domain.VenueOrder, error)
}

// MarketData provides instrument and account figures.
type MarketData interface {
	// Market returns the instrument spec and the current quote.
	Market(ctx context.Context, symbol string) (domain.Market, error)
	// Account returns the account money figures.
	Account(ctx context.Context) (domain.Account, error)
}

// Terminal exposes the readiness flags of the venue connection.
type Terminal interface {
	Readiness(ctx context.Context) (domain.Readiness, error)
	// ClearError resets the venue's last-error indicator.
	ClearError(ctx context.Context)
}

// Venue is the full execution venue.
type Venue interface {
	Trader
	OrderBook
	MarketData
	Terminal
}
