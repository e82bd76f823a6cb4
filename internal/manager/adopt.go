package manager

import (
	"context"
	"fmt"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/position"
)

// RawPositionsListing reports whether the venue holds active engine orders
// on the symbol, and whether it holds any active orders at all.
func (m *Manager) RawPositionsListing(ctx context.Context) (hasEngine, hasAny bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	orders, err := m.cfg.Venue.ActiveOrders(ctx)
	if err != nil {
		return false, false, fmt.Errorf("RawPositionsListing failed: %w", err)
	}
	for _, o := range orders {
		hasAny = true
		if m.isEngineOrder(o) {
			hasEngine = true
			break
		}
	}
	return hasEngine, hasAny, nil
}

// AdoptRawPositions takes over the active engine orders left by a previous
// run. Settled engine orders found in the history are remembered so that
// reconciliation does not treat them as unexplained.
func (m *Manager) AdoptRawPositions(ctx context.Context) error {
	op := "AdoptRawPositions"
	m.mu.Lock()
	defer m.unlock(ctx)

	mkt, err := m.market(ctx)
	if err != nil {
		return err
	}
	active, err := m.cfg.Venue.ActiveOrders(ctx)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	history, err := m.cfg.Venue.HistoryOrders(ctx)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	adopted := 0
	for _, o := range active {
		if !m.isEngineOrder(o) {
			continue
		}
		m.bumpCorrelation(o.Comment)
		if _, ok := m.positions[o.Ticket]; ok {
			continue
		}
		tactic, _ := m.cfg.Params.TacticForMagic(o.Magic)
		p := position.Adopt(ctx, m.env, mkt, tactic, o)
		m.track(p)
		adopted++
		m.record(ctx, p.Ticket(), domain.EventAdopted, fmt.Sprintf("%s %s %s lots", tactic, o.Kind, o.Lots))
	}
	oldies := m.rememberOldies(history)
	m.logger.Info(ctx, op+": adoption finished", map[string]interface{}{"adopted": adopted, "oldies": oldies})

	err = m.accounting(ctx, mkt, true)
	if merr := m.updateMargin(ctx, mkt); merr != nil {
		m.logger.Warn(ctx, op+": margin not refreshed", map[string]interface{}{"error": merr.Error()})
	}
	m.flushTouched(ctx)
	return err
}

// RememberHistory records the settled engine orders of earlier runs, so
// that reconciliation does not report them as unexplained. It is the part
// of AdoptRawPositions needed when no active engine order is left.
func (m *Manager) RememberHistory(ctx context.Context) error {
	op := "RememberHistory"
	m.mu.Lock()
	defer m.mu.Unlock()

	history, err := m.cfg.Venue.HistoryOrders(ctx)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	if n := m.rememberOldies(history); n > 0 {
		m.logger.Info(ctx, op+": settled orders of a previous run recorded", map[string]interface{}{"oldies": n})
	}
	return nil
}

func (m *Manager) rememberOldies(history []domain.VenueOrder) int {
	n := 0
	for _, o := range history {
		if !m.isEngineOrder(o) {
			continue
		}
		m.bumpCorrelation(o.Comment)
		if _, ok := m.positions[o.Ticket]; ok || m.oldies[o.Ticket] {
			continue
		}
		m.oldies[o.Ticket] = true
		n++
	}
	return n
}

// bumpCorrelation keeps new correlation ids above those already used.
func (m *Manager) bumpCorrelation(comment string) {
	if id, ok := position.CorrelationFromComment(comment); ok && id > m.idCounter {
		m.idCounter = id
	}
}
