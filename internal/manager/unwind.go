package manager

import (
	"context"

	"tradeKeeper/internal/domain"
)

// Unwind gets rid of every active position. The harsh way closes opened
// positions at market; the mild way pulls their levels to the tightest
// window. Pending orders are deleted either way. Failures are logged and
// left to the next reconciliation pass.
func (m *Manager) Unwind(ctx context.Context, harsh bool) {
	m.mu.Lock()
	defer m.unlock(ctx)

	mkt, err := m.market(ctx)
	if err != nil {
		m.logger.Error(ctx, err, "Unwind: can't read the market")
		return
	}
	n := 0
	for _, t := range domain.Tactics {
		for _, p := range sortedByTicket(m.views[t]) {
			if harsh {
				p.CloseHarsh(ctx, mkt)
			} else {
				p.CloseMild(ctx, mkt)
			}
			m.touched[p.Ticket()] = true
			n++
		}
	}
	for _, p := range m.unresolved {
		m.logger.Warn(ctx, "Unwind: unresolved submission left to reconciliation", map[string]interface{}{
			"correlation_id": p.CorrelationID(),
		})
	}
	m.logger.Warn(ctx, "Unwind: done", map[string]interface{}{"positions": n, "harsh": harsh})
	m.flushTouched(ctx)
}
