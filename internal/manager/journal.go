package manager

import (
	"context"

	"tradeKeeper/internal/domain"
)

// record appends an event to the journal. Journal failures are logged only.
func (m *Manager) record(ctx context.Context, ticket int64, kind domain.EventKind, msg string) {
	if m.cfg.Journal == nil {
		return
	}
	ev := &domain.JournalEvent{
		RunID:     m.cfg.RunID,
		Ticket:    ticket,
		Kind:      kind,
		Message:   msg,
		CreatedAt: m.cfg.Now(),
	}
	if _, err := m.cfg.Journal.AppendEvent(ctx, ev); err != nil {
		m.logger.Warn(ctx, "Journal: failed to append event", map[string]interface{}{
			"ticket": ticket, "kind": string(kind), "error": err.Error(),
		})
	}
}

// flushTouched saves the snapshots of the positions touched since the last flush.
func (m *Manager) flushTouched(ctx context.Context) {
	touched := m.touched
	m.touched = make(map[int64]bool)
	if m.cfg.Journal == nil {
		return
	}
	for ticket := range touched {
		p, ok := m.positions[ticket]
		if !ok {
			continue
		}
		if err := m.cfg.Journal.SavePosition(ctx, p.Record()); err != nil {
			m.logger.Warn(ctx, "Journal: failed to save position", map[string]interface{}{
				"ticket": ticket, "error": err.Error(),
			})
		}
	}
}
