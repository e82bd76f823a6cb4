package manager

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/position"
	"tradeKeeper/internal/ports"
)

// SetToSqueeze marks an opened position for squeezing.
func (m *Manager) SetToSqueeze(ctx context.Context, ticket int64, tight bool) error {
	m.mu.Lock()
	defer m.unlock(ctx)

	p, err := m.lookup("SetToSqueeze", ticket)
	if err != nil {
		return err
	}
	mkt, err := m.market(ctx)
	if err != nil {
		return err
	}
	if tight {
		p.SetToSqueezeTightly(mkt)
	} else {
		p.SetToSqueeze(mkt)
	}
	m.touched[ticket] = true
	return nil
}

// Squeeze runs one squeezing step for every squeezed position. Loose
// squeezing that stops paying off turns tight; an expired tight squeeze is
// closed at market.
func (m *Manager) Squeeze(ctx context.Context) error {
	op := "Squeeze"
	m.mu.Lock()
	defer m.unlock(ctx)

	mkt, err := m.market(ctx)
	if err != nil {
		return err
	}
	for _, t := range domain.Tactics {
		for _, p := range sortedByTicket(m.views[t]) {
			if !p.IsSqueezed() || p.Status() != domain.StatusOpened {
				continue
			}
			fields := map[string]interface{}{"ticket": p.Ticket()}
			if p.IsTightlySqueezed() {
				if !p.WorthTightlySqueezingFurther() {
					m.logger.Warn(ctx, op+": tight squeezing expired, closing", fields)
					err := p.Close(ctx, mkt, m.cfg.AllowedSlippage, decimal.NullDecimal{})
					if err := m.settle(ctx, p, err); isSevere(err) {
						return err
					}
					continue
				}
			} else if !p.WorthSqueezingFurther(mkt) {
				m.logger.Info(ctx, op+": loose squeezing stalled, squeezing tightly", fields)
				p.SetToSqueezeTightly(mkt)
			}

			if err := m.squeezeOne(ctx, mkt, p); isSevere(err) {
				return err
			}
		}
	}
	m.flushTouched(ctx)
	return nil
}

func (m *Manager) squeezeOne(ctx context.Context, mkt domain.Market, p *position.Position) error {
	op := "Squeeze"
	target, err := p.Squeeze(ctx, mkt)
	m.touched[p.Ticket()] = true
	if !target.Attempted {
		return nil
	}
	if err != nil && !errors.Is(err, ports.ErrOutcomeUnknown) {
		return m.escalate(ctx, err)
	}
	if err == nil {
		m.record(ctx, p.Ticket(), domain.EventModified, "squeezed to sl "+target.StopLoss.String()+" tp "+target.TakeProfit.String())
	}
	if cerr := m.confirm(ctx, p); cerr != nil {
		return cerr
	}
	if !p.StopLoss().Equal(target.StopLoss) || !p.TakeProfit().Equal(target.TakeProfit) {
		m.logger.Warn(ctx, op+": venue levels differ from the squeeze target", map[string]interface{}{
			"ticket":    p.Ticket(),
			"sl":        p.StopLoss().String(),
			"tp":        p.TakeProfit().String(),
			"target_sl": target.StopLoss.String(),
			"target_tp": target.TakeProfit.String(),
		})
	}
	return nil
}

func isSevere(err error) bool {
	return errors.Is(err, ports.ErrDesync) || errors.Is(err, ports.ErrBrokerFatal)
}
