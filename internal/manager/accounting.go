package manager

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/position"
	"tradeKeeper/internal/ports"
	"tradeKeeper/internal/risk"
)

const accountingTries = 3

// foundSuccessor is a venue order carrying the residual volume of a
// predecessor. Successors are materialized after both scans so that the
// predecessor is already updated.
type foundSuccessor struct {
	pred   *position.Position
	status domain.Status
	order  domain.VenueOrder
}

// Update runs one reconciliation pass and refreshes the margin figures.
func (m *Manager) Update(ctx context.Context) error {
	m.mu.Lock()
	defer m.unlock(ctx)

	m.tick++
	mkt, err := m.market(ctx)
	if err != nil {
		m.logger.Error(ctx, err, "Update: can't read the market")
		return err
	}
	err = m.accounting(ctx, mkt, false)
	if merr := m.updateMargin(ctx, mkt); merr != nil {
		m.logger.Warn(ctx, "Update: margin not refreshed", map[string]interface{}{"error": merr.Error()})
	}
	m.flushTouched(ctx)
	return err
}

// accounting runs the three phases. A thorough pass also re-observes the
// settled positions that are still tracked.
func (m *Manager) accounting(ctx context.Context, mkt domain.Market, thorough bool) error {
	found, disactivated, err := m.activeAccounting(ctx, mkt)
	if err != nil {
		return m.escalate(ctx, err)
	}
	more, err := m.nonActiveAccounting(ctx, mkt, disactivated, thorough)
	if err != nil {
		return m.escalate(ctx, err)
	}
	if err := m.successorsAccounting(ctx, mkt, append(found, more...)); err != nil {
		return m.escalate(ctx, err)
	}
	return nil
}

// activeAccounting matches every active engine order. It returns the found
// successors and the locally active tickets the venue no longer lists.
func (m *Manager) activeAccounting(ctx context.Context, mkt domain.Market) ([]foundSuccessor, map[int64]bool, error) {
	op := "activeAccounting"
	var found []foundSuccessor
	var seen map[int64]bool
	for try := 1; ; try++ {
		orders, err := m.cfg.Venue.ActiveOrders(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("%s failed: %w", op, err)
		}
		found = found[:0]
		seen = make(map[int64]bool, len(orders))
		unexpected := 0
		for _, o := range orders {
			if !m.isEngineOrder(o) {
				continue
			}
			seen[o.Ticket] = true
			st := domain.ActiveStatusFor(o.Kind)
			if p, ok := m.positions[o.Ticket]; ok {
				m.observe(ctx, mkt, p, st, o)
				continue
			}
			if p, id, ok := m.unresolvedFor(o); ok {
				m.bind(ctx, mkt, p, id, st, o)
				continue
			}
			if pred, ok := m.predecessorFor(o.Comment); ok {
				found = append(found, foundSuccessor{pred: pred, status: st, order: o})
				continue
			}
			unexpected++
			m.logger.Error(ctx, ports.ErrDesync, op+": unexpected position", map[string]interface{}{
				"ticket": o.Ticket, "comment": o.Comment, "try": try,
			})
		}
		if unexpected == 0 {
			break
		}
		if try >= accountingTries {
			m.record(ctx, 0, domain.EventDesync, fmt.Sprintf("%d unexpected active orders", unexpected))
			return nil, nil, fmt.Errorf("%s failed: %w: %d unexpected active orders", op, ports.ErrDesync, unexpected)
		}
		m.pause(ctx)
	}

	disactivated := make(map[int64]bool)
	for _, view := range m.views {
		for t := range view {
			if !seen[t] {
				disactivated[t] = true
			}
		}
	}
	return found, disactivated, nil
}

// nonActiveAccounting matches settled engine orders. Unless thorough, only
// the disactivated positions are updated.
func (m *Manager) nonActiveAccounting(ctx context.Context, mkt domain.Market, disactivated map[int64]bool, thorough bool) ([]foundSuccessor, error) {
	op := "nonActiveAccounting"
	if !thorough && len(disactivated) == 0 && len(m.unresolved) == 0 && len(m.unboundPredecessors) == 0 {
		return nil, nil
	}
	orders, err := m.cfg.Venue.HistoryOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	var found []foundSuccessor
	unexplained := 0
	for _, o := range orders {
		if !m.isEngineOrder(o) {
			continue
		}
		st := domain.HistoryStatusFor(o.Kind)
		if p, ok := m.positions[o.Ticket]; ok {
			if thorough || disactivated[o.Ticket] || p.IsActive() {
				m.observe(ctx, mkt, p, st, o)
				delete(disactivated, o.Ticket)
			}
			continue
		}
		if p, id, ok := m.unresolvedFor(o); ok {
			m.bind(ctx, mkt, p, id, st, o)
			continue
		}
		if pred, ok := m.predecessorFor(o.Comment); ok {
			found = append(found, foundSuccessor{pred: pred, status: st, order: o})
			continue
		}
		if m.oldies[o.Ticket] {
			continue
		}
		unexplained++
		m.logger.Error(ctx, ports.ErrDesync, op+": unexplained settled order", map[string]interface{}{
			"ticket": o.Ticket, "comment": o.Comment, "thorough": thorough,
		})
	}

	for t := range disactivated {
		m.logger.Error(ctx, ports.ErrDesync, op+": position totally lost", map[string]interface{}{"ticket": t})
	}
	if unexplained > 0 || len(disactivated) > 0 {
		m.record(ctx, 0, domain.EventDesync, fmt.Sprintf("%d unexplained settled orders, %d lost positions", unexplained, len(disactivated)))
		return nil, fmt.Errorf("%s failed: %w: %d unexplained, %d lost", op, ports.ErrDesync, unexplained, len(disactivated))
	}
	return found, nil
}

// successorsAccounting materializes the found successors.
func (m *Manager) successorsAccounting(ctx context.Context, mkt domain.Market, found []foundSuccessor) error {
	op := "successorsAccounting"
	for _, f := range found {
		predTicket := f.pred.Ticket()
		residual, ok := m.unboundPredecessors[predTicket]
		if !ok {
			continue
		}
		succ, err := position.NewSuccessor(ctx, mkt, f.pred, residual, f.status, f.order)
		if err != nil {
			m.record(ctx, f.order.Ticket, domain.EventDesync, err.Error())
			return fmt.Errorf("%s failed: %w", op, err)
		}
		succ.SetCorrelationID(f.pred.CorrelationID())
		m.track(succ)
		m.touched[predTicket] = true
		delete(m.unboundPredecessors, predTicket)
		m.logger.Info(ctx, op+": successor found", map[string]interface{}{
			"ticket": succ.Ticket(), "predecessor": predTicket, "lots": residual.String(),
		})
		m.record(ctx, succ.Ticket(), domain.EventSuccessor, fmt.Sprintf("carries %s lots of %d", residual, predTicket))
	}
	return nil
}

// observe applies one venue observation to a tracked position.
func (m *Manager) observe(ctx context.Context, mkt domain.Market, p *position.Position, st domain.Status, o domain.VenueOrder) {
	prev := p.Status()
	if !p.Update(ctx, mkt, st, o) {
		m.record(ctx, p.Ticket(), domain.EventAnomaly, fmt.Sprintf("serious issues observing %s -> %s", prev, st))
	}
	m.touched[p.Ticket()] = true
	if prev == p.Status() {
		return
	}
	m.untrackIfSettled(p)
	switch p.Status() {
	case domain.StatusClosed:
		m.record(ctx, p.Ticket(), domain.EventClosed, fmt.Sprintf("closed at %s, total profit %s", p.ClosePrice(), p.TotalProfit().StringFixed(2)))
	case domain.StatusDeleted:
		m.record(ctx, p.Ticket(), domain.EventDeleted, "deleted: "+p.Comment())
	}
}

// unresolvedFor finds the unresolved submission an order belongs to.
func (m *Manager) unresolvedFor(o domain.VenueOrder) (*position.Position, int64, bool) {
	id, ok := position.CorrelationFromComment(o.Comment)
	if !ok {
		return nil, 0, false
	}
	p, ok := m.unresolved[id]
	return p, id, ok
}

// bind moves an unresolved submission into the collection.
func (m *Manager) bind(ctx context.Context, mkt domain.Market, p *position.Position, id int64, st domain.Status, o domain.VenueOrder) {
	delete(m.unresolved, id)
	if !p.Update(ctx, mkt, st, o) {
		m.record(ctx, o.Ticket, domain.EventAnomaly, "serious issues resolving a submission")
	}
	fields := map[string]interface{}{"ticket": p.Ticket(), "correlation_id": id, "status": p.Status().String()}
	if age := m.cfg.Now().Sub(p.CreatedAt()); age > m.cfg.OrderCheckDelay {
		fields["age"] = age.String()
		m.logger.Warn(ctx, "accounting: belatedly found unresolved position", fields)
	} else {
		m.logger.Info(ctx, "accounting: unresolved position found", fields)
	}
	m.track(p)
	m.record(ctx, p.Ticket(), domain.EventOpened, fmt.Sprintf("submission %d resolved as %s", id, p.Status()))
}

// predecessorFor returns the position awaiting the successor whose comment
// is c. A close-by residual may name the opposite ticket.
func (m *Manager) predecessorFor(c string) (*position.Position, bool) {
	t, ok := position.PredecessorFromComment(c)
	if !ok {
		return nil, false
	}
	if _, ok := m.unboundPredecessors[t]; ok {
		p, ok := m.positions[t]
		return p, ok
	}
	if p, ok := m.positions[t]; ok && p.ClosedBy() != 0 {
		if _, ok := m.unboundPredecessors[p.ClosedBy()]; ok {
			q, ok := m.positions[p.ClosedBy()]
			return q, ok
		}
	}
	return nil, false
}

// checkOrder confirms the outcome of a trading call on one position
// without waiting for the next pass.
func (m *Manager) checkOrder(ctx context.Context, mkt domain.Market, p *position.Position) error {
	op := "checkOrder"
	if p.Ticket() == 0 {
		if err := m.checkUnresolved(ctx, mkt, p); err != nil {
			return err
		}
		return m.updateMargin(ctx, mkt)
	}

	active, err := m.cfg.Venue.ActiveOrders(ctx)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	history, err := m.cfg.Venue.HistoryOrders(ctx)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	if o, ok := findTicket(active, p.Ticket()); ok {
		m.observe(ctx, mkt, p, domain.ActiveStatusFor(o.Kind), o)
	} else if o, ok := findTicket(history, p.Ticket()); ok {
		m.observe(ctx, mkt, p, domain.HistoryStatusFor(o.Kind), o)
	} else {
		m.logger.Warn(ctx, op+": order not found at the venue", map[string]interface{}{"ticket": p.Ticket()})
	}

	if _, awaiting := m.unboundPredecessors[p.Ticket()]; awaiting && !p.IsActive() {
		var found []foundSuccessor
		for _, list := range [][]domain.VenueOrder{active, history} {
			for _, o := range list {
				if _, tracked := m.positions[o.Ticket]; tracked || !m.isEngineOrder(o) {
					continue
				}
				if pred, ok := m.predecessorFor(o.Comment); ok && pred == p {
					st := domain.ActiveStatusFor(o.Kind)
					if o.IsSettled() {
						st = domain.HistoryStatusFor(o.Kind)
					}
					found = append(found, foundSuccessor{pred: pred, status: st, order: o})
				}
			}
		}
		if err := m.successorsAccounting(ctx, mkt, found); err != nil {
			return m.escalate(ctx, err)
		}
	}
	return m.updateMargin(ctx, mkt)
}

func (m *Manager) checkUnresolved(ctx context.Context, mkt domain.Market, p *position.Position) error {
	op := "checkOrder"
	id := p.CorrelationID()
	for try := 1; try <= accountingTries; try++ {
		if try > 1 {
			m.pause(ctx)
		}
		active, err := m.cfg.Venue.ActiveOrders(ctx)
		if err != nil {
			return fmt.Errorf("%s failed: %w", op, err)
		}
		if o, ok := m.findCorrelation(active, id); ok {
			m.bind(ctx, mkt, p, id, domain.ActiveStatusFor(o.Kind), o)
			return nil
		}
		history, err := m.cfg.Venue.HistoryOrders(ctx)
		if err != nil {
			return fmt.Errorf("%s failed: %w", op, err)
		}
		if o, ok := m.findCorrelation(history, id); ok {
			m.bind(ctx, mkt, p, id, domain.HistoryStatusFor(o.Kind), o)
			return nil
		}
	}
	m.logger.Warn(ctx, op+": submission still unresolved", map[string]interface{}{"correlation_id": id})
	return nil
}

func findTicket(orders []domain.VenueOrder, ticket int64) (domain.VenueOrder, bool) {
	for _, o := range orders {
		if o.Ticket == ticket {
			return o, true
		}
	}
	return domain.VenueOrder{}, false
}

func (m *Manager) findCorrelation(orders []domain.VenueOrder, id int64) (domain.VenueOrder, bool) {
	for _, o := range orders {
		if !m.isEngineOrder(o) {
			continue
		}
		if _, tracked := m.positions[o.Ticket]; tracked {
			continue
		}
		if got, ok := position.CorrelationFromComment(o.Comment); ok && got == id {
			return o, true
		}
	}
	return domain.VenueOrder{}, false
}

// updateMargin feeds the exposure of every active and unresolved position
// to the risk manager.
func (m *Manager) updateMargin(ctx context.Context, mkt domain.Market) error {
	acc, err := m.cfg.Venue.Account(ctx)
	if err != nil {
		return fmt.Errorf("updateMargin failed: %w", err)
	}
	var exposures []risk.Exposure
	add := func(p *position.Position) {
		exposures = append(exposures, risk.Exposure{
			Volume:             p.Volume(),
			MaxLossFromOpen:    p.MaxLossFromOpen(),
			MaxLossFromCurrent: p.MaxLossFromCurrent(),
		})
	}
	for _, t := range domain.Tactics {
		for _, p := range sortedByTicket(m.views[t]) {
			add(p)
		}
	}
	for _, p := range m.unresolved {
		add(p)
	}
	m.cfg.Risk.UpdateMargin(ctx, acc, mkt, exposures)
	return nil
}

// expectResidual registers the volume a partial close leaves behind.
func (m *Manager) expectResidual(ticket int64, residual decimal.Decimal) {
	if residual.Sign() > 0 {
		m.unboundPredecessors[ticket] = residual
	}
}
