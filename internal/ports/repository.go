package ports

import (
	"context"

	"tradeKeeper/internal/domain"
)

// PositionJournal stores snapshots of tracked positions.
type PositionJournal interface {
	// SavePosition inserts or replaces the snapshot for a ticket.
	SavePosition(ctx context.Context, rec *domain.PositionRecord) error
	// FindByTicket retrieves a snapshot by ticket.
	// Returns nil, nil if not found.
	FindByTicket(ctx context.Context, ticket int64) (*domain.PositionRecord, error)
	// FindActive retrieves snapshots recorded as Pending or Opened.
	FindActive(ctx context.Context) ([]*domain.PositionRecord, error)
	// FindAll retrieves all snapshots, ordered by ticket.
	FindAll(ctx context.Context) ([]*domain.PositionRecord, error)
	// GetTotalProfit sums the total profit of closed positions.
	GetTotalProfit(ctx context.Context) (float64, error)
}

// EventJournal stores the audit trail.
type EventJournal interface {
	// AppendEvent saves an event and returns its id.
	AppendEvent(ctx context.Context, ev *domain.JournalEvent) (string, error)
	// ListEvents retrieves the most recent events, up to a limit.
	ListEvents(ctx context.Context, limit int) ([]*domain.JournalEvent, error)
	// CountByKind counts events of a kind recorded by a run.
	CountByKind(ctx context.Context, runID string, kind domain.EventKind) (int, error)
}

// Journal combines both stores.
type Journal interface {
	PositionJournal
	EventJournal
}
