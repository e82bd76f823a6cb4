package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/money"
	"tradeKeeper/internal/position"
	"tradeKeeper/internal/ports"
)

// OpenOrder is a request from the strategy to open a position.
type OpenOrder struct {
	Tactic     domain.Tactic
	Direction  domain.Direction
	StopLoss   decimal.Decimal
	TakeProfit decimal.NullDecimal // absent: the far sanity bound
	Price      decimal.Decimal     // limit price, Strict only
	Volume     decimal.NullDecimal // absent: sized by the risk manager
	Comment    string
}

// Open submits a new position for a tactic. It returns nil, nil when the
// risk manager sizes the position at zero. A submission whose outcome is
// unknown is returned with status Unknown and resolved by reconciliation.
func (m *Manager) Open(ctx context.Context, o OpenOrder) (*position.Position, error) {
	op := "Open"
	m.mu.Lock()
	defer m.unlock(ctx)

	fields := map[string]interface{}{"tactic": o.Tactic.String(), "direction": o.Direction.String()}
	now := m.cfg.Now()
	if m.locked {
		m.logger.Warn(ctx, op+": opening is locked", fields)
		return nil, fmt.Errorf("%s: %w", op, ports.ErrTradingLocked)
	}
	if now.Before(m.dontOpenUntil) {
		fields["until"] = m.dontOpenUntil
		m.logger.Warn(ctx, op+": cooling down after an unresolved submission", fields)
		return nil, fmt.Errorf("%s: %w: until %s", op, ports.ErrTradingLocked, m.dontOpenUntil.Format(time.RFC3339))
	}
	if n := m.activeCount(o.Tactic); n >= m.cfg.MaxPerTactic {
		fields["active"] = n
		m.logger.Warn(ctx, op+": tactic already has its positions", fields)
		return nil, fmt.Errorf("%s: %w: %d active %s positions", op, ports.ErrRejected, n, o.Tactic)
	}

	mkt, err := m.market(ctx)
	if err != nil {
		return nil, err
	}

	req := position.OpenRequest{
		Tactic:     o.Tactic,
		Kind:       domain.MarketKindFor(o.Direction),
		StopLoss:   o.StopLoss,
		TakeProfit: o.TakeProfit,
		Slippage:   m.cfg.AllowedSlippage,
		Comment:    o.Comment,
	}
	entry := mkt.OpeningPrice(o.Direction)
	if o.Tactic == domain.TacticStrict {
		req.Kind = domain.OpBuyLimit
		if o.Direction == domain.Down {
			req.Kind = domain.OpSellLimit
		}
		req.Price = o.Price
		req.Slippage = 0
		req.ValidFor = time.Duration(m.cfg.PendingValidBars*m.cfg.MinutesPerBar) * time.Minute
		entry = o.Price
	}

	if o.Volume.Valid {
		req.Volume = o.Volume.Decimal
	} else {
		if err := m.updateMargin(ctx, mkt); err != nil {
			return nil, fmt.Errorf("%s failed: %w", op, err)
		}
		req.Volume, err = m.cfg.Risk.PositionSize(ctx, m.cfg.Venue, mkt, o.Direction, entry, o.StopLoss)
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w", op, err)
		}
		if req.Volume.IsZero() {
			m.logger.Info(ctx, op+": no volume available, not opening", fields)
			return nil, nil
		}
	}

	m.idCounter++
	req.CorrelationID = m.idCounter
	p, err := position.Open(ctx, m.env, mkt, req)
	if err != nil {
		return nil, m.escalate(ctx, err)
	}

	if p.Status() == domain.StatusUnknown {
		m.unresolved[req.CorrelationID] = p
		m.dontOpenUntil = now.Add(m.cfg.OrderCheckDelay)
		m.record(ctx, 0, domain.EventUnresolved, fmt.Sprintf("submission %d timed out", req.CorrelationID))
	} else {
		m.track(p)
		m.record(ctx, p.Ticket(), domain.EventOpened, fmt.Sprintf("%s %s lots at %s", p.Kind(), p.Volume(), p.OpenPrice()))
	}
	return p, m.confirm(ctx, p)
}

// ModifyPending changes the price, levels or expiration of a pending order.
func (m *Manager) ModifyPending(ctx context.Context, ticket int64, lv position.Levels) error {
	op := "ModifyPending"
	m.mu.Lock()
	defer m.unlock(ctx)

	p, err := m.lookup(op, ticket)
	if err != nil {
		return err
	}
	if p.Status() != domain.StatusPending {
		return fmt.Errorf("%s: %w: ticket %d is %s", op, ports.ErrRejected, ticket, p.Status())
	}
	return m.modify(ctx, p, lv)
}

// ModifyOpened tightens the levels of an opened position. Calls closer
// than MinModifyInterval to the previous modification are refused.
func (m *Manager) ModifyOpened(ctx context.Context, ticket int64, sl, tp decimal.NullDecimal) error {
	op := "ModifyOpened"
	m.mu.Lock()
	defer m.unlock(ctx)

	p, err := m.lookup(op, ticket)
	if err != nil {
		return err
	}
	if p.Status() != domain.StatusOpened {
		return fmt.Errorf("%s: %w: ticket %d is %s", op, ports.ErrRejected, ticket, p.Status())
	}
	if last := p.LastModification(); !last.IsZero() && m.cfg.Now().Sub(last) < m.cfg.MinModifyInterval {
		m.logger.Warn(ctx, op+": modified too recently", map[string]interface{}{"ticket": ticket, "last": last})
		return fmt.Errorf("%s: %w: ticket %d modified at %s", op, ports.ErrRejected, ticket, last.Format(time.RFC3339))
	}
	return m.modify(ctx, p, position.Levels{StopLoss: sl, TakeProfit: tp})
}

func (m *Manager) modify(ctx context.Context, p *position.Position, lv position.Levels) error {
	mkt, err := m.market(ctx)
	if err != nil {
		return err
	}
	err = p.Modify(ctx, mkt, lv)
	m.touched[p.Ticket()] = true
	if err == nil {
		m.record(ctx, p.Ticket(), domain.EventModified, fmt.Sprintf("sl %s tp %s price %s", p.StopLoss(), p.TakeProfit(), p.OpenPrice()))
	}
	return m.settle(ctx, p, err)
}

// DeletePending cancels a pending order.
func (m *Manager) DeletePending(ctx context.Context, ticket int64) error {
	op := "DeletePending"
	m.mu.Lock()
	defer m.unlock(ctx)

	p, err := m.lookup(op, ticket)
	if err != nil {
		return err
	}
	mkt, err := m.market(ctx)
	if err != nil {
		return err
	}
	return m.settle(ctx, p, p.Delete(ctx, mkt))
}

// Close closes an opened position at market, entirely or lots of it. A
// partial close expects a successor carrying the residual volume.
func (m *Manager) Close(ctx context.Context, ticket int64, lots decimal.NullDecimal) error {
	op := "Close"
	m.mu.Lock()
	defer m.unlock(ctx)

	p, err := m.lookup(op, ticket)
	if err != nil {
		return err
	}
	mkt, err := m.market(ctx)
	if err != nil {
		return err
	}
	volume := p.Volume()
	err = p.Close(ctx, mkt, m.cfg.AllowedSlippage, lots)
	if err == nil || errors.Is(err, ports.ErrOutcomeUnknown) {
		if lots.Valid {
			m.expectResidual(ticket, volume.Sub(money.Normalize(lots.Decimal, mkt.Spec.LotStep)))
		}
	}
	return m.settle(ctx, p, err)
}

// CloseWith closes two opposite positions against each other. The residual
// of uneven volumes is expected on the larger side.
func (m *Manager) CloseWith(ctx context.Context, ticket, opposite int64) error {
	op := "CloseWith"
	m.mu.Lock()
	defer m.unlock(ctx)

	p, err := m.lookup(op, ticket)
	if err != nil {
		return err
	}
	q, err := m.lookup(op, opposite)
	if err != nil {
		return err
	}
	mkt, err := m.market(ctx)
	if err != nil {
		return err
	}
	err = p.CloseBy(ctx, mkt, q)
	if err == nil {
		diff := p.Volume().Sub(q.Volume())
		switch diff.Sign() {
		case 1:
			m.expectResidual(ticket, diff)
		case -1:
			m.expectResidual(opposite, diff.Neg())
		}
		m.touched[opposite] = true
		if cerr := m.confirm(ctx, q); cerr != nil {
			return cerr
		}
	}
	return m.settle(ctx, p, err)
}

func (m *Manager) lookup(op string, ticket int64) (*position.Position, error) {
	p, ok := m.positions[ticket]
	if !ok {
		return nil, fmt.Errorf("%s: %w: ticket %d", op, ports.ErrNotFound, ticket)
	}
	return p, nil
}

// settle confirms a trading call that reached the venue and escalates
// fatal outcomes. Validation rejections are returned as they are.
func (m *Manager) settle(ctx context.Context, p *position.Position, err error) error {
	m.touched[p.Ticket()] = true
	if err != nil && !errors.Is(err, ports.ErrOutcomeUnknown) {
		return m.escalate(ctx, err)
	}
	if cerr := m.confirm(ctx, p); cerr != nil {
		return cerr
	}
	return err
}

// confirm waits DelayAfterOrder and checks the position at the venue.
// Only desync and fatal failures are returned.
func (m *Manager) confirm(ctx context.Context, p *position.Position) error {
	m.pause(ctx)
	mkt, err := m.market(ctx)
	if err != nil {
		m.logger.Warn(ctx, "confirm: can't read the market", map[string]interface{}{"ticket": p.Ticket(), "error": err.Error()})
		return nil
	}
	err = m.checkOrder(ctx, mkt, p)
	m.flushTouched(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, ports.ErrDesync) || errors.Is(err, ports.ErrBrokerFatal) {
		return err
	}
	m.logger.Warn(ctx, "confirm: order check failed", map[string]interface{}{"ticket": p.Ticket(), "error": err.Error()})
	return nil
}
