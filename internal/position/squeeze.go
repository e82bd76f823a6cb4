package position

import (
	"context"

	"github.com/shopspring/decimal"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/money"
)

// SqueezeTarget is the modification a squeeze asked for.
type SqueezeTarget struct {
	Attempted  bool
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

func (p *Position) anchor(m domain.Market) squeezeState {
	return squeezeState{
		active: true,
		since:  p.env.Now(),
		tick:   p.env.Tick(),
		price:  m.ClosingPrice(p.dir),
	}
}

// SetToSqueeze starts loose squeezing of an opened position.
func (p *Position) SetToSqueeze(m domain.Market) {
	if p.status != domain.StatusOpened || p.loose.active {
		return
	}
	p.loose = p.anchor(m)
}

// SetToSqueezeTightly starts tight squeezing, and loose squeezing too when
// it was not running.
func (p *Position) SetToSqueezeTightly(m domain.Market) {
	if p.status != domain.StatusOpened || p.tight.active {
		return
	}
	p.tight = p.anchor(m)
	if !p.loose.active {
		p.loose = p.tight
	}
}

// IsSqueezed reports whether any squeezing is running.
func (p *Position) IsSqueezed() bool { return p.loose.active }

// IsTightlySqueezed reports whether tight squeezing is running.
func (p *Position) IsTightlySqueezed() bool { return p.tight.active }

// WorthSqueezingFurther reports whether loose squeezing should go on: within
// the maximum time, and either still within the minimum time or moving in
// the position's favor at least at the minimum speed.
func (p *Position) WorthSqueezingFurther(m domain.Market) bool {
	if !p.loose.active || p.tight.active {
		return false
	}
	params := p.env.Params
	elapsed := p.env.Now().Sub(p.loose.since)
	if elapsed > params.LooseSqueezeMaxTime {
		return false
	}
	if elapsed <= params.LooseSqueezeMinTime {
		return true
	}
	move := m.Quote.Bid.Sub(p.loose.price)
	if p.dir == domain.Down {
		move = p.loose.price.Sub(m.Quote.Ask)
	}
	minutes := decimal.NewFromFloat(elapsed.Minutes())
	return money.Compare(move, params.MinSqueezeSpeed.Mul(minutes), priceTol(m)) >= 0
}

// WorthTightlySqueezingFurther reports whether tight squeezing is still
// within its time limit.
func (p *Position) WorthTightlySqueezingFurther() bool {
	if !p.tight.active {
		return false
	}
	return p.env.Now().Sub(p.tight.since) <= p.env.Params.TightSqueezeMaxTime
}

// Squeeze moves SL (and TP) to the tightest legal window when that is an
// improvement. Rejections are reported through the returned error.
func (p *Position) Squeeze(ctx context.Context, m domain.Market) (SqueezeTarget, error) {
	op := "Squeeze"
	if !p.loose.active || p.status != domain.StatusOpened {
		return SqueezeTarget{}, nil
	}
	point := m.Spec.Point
	sl1 := money.Normalize(p.StopLossLimit(m, decimal.Zero), point)
	sl2 := money.Normalize(p.StopLossLimit2(m, decimal.Zero), point)
	tp1 := money.Normalize(p.TakeProfitLimit(m, decimal.Zero), point)
	tp2 := money.Normalize(p.TakeProfitLimit2(m, decimal.Zero), point)

	slCmp := cmpPrice(m, sl1, p.stopLoss)
	tpCmp := cmpPrice(m, tp1, p.takeProfit)
	var legal, worth bool
	if p.dir == domain.Up {
		legal = cmpPrice(m, sl1, sl2) > 0
		if p.tight.active {
			worth = (slCmp == 0 && tpCmp < 0) || (slCmp > 0 && tpCmp <= 0)
		} else {
			worth = (slCmp == 0 && tpCmp < 0) || slCmp > 0
		}
	} else {
		legal = cmpPrice(m, tp1, tp2) > 0
		if p.tight.active {
			worth = (slCmp == 0 && tpCmp > 0) || (slCmp < 0 && tpCmp >= 0)
		} else {
			worth = (slCmp == 0 && tpCmp > 0) || slCmp < 0
		}
	}

	fields := p.fields()
	fields["price"] = m.ClosingPrice(p.dir).String()
	fields["sl1"], fields["sl2"] = sl1.String(), sl2.String()
	fields["tp1"], fields["tp2"] = tp1.String(), tp2.String()
	if !legal {
		p.env.Logger.Warn(ctx, op+": can't modify, the window is degenerate", fields)
		return SqueezeTarget{}, nil
	}
	if !worth {
		return SqueezeTarget{}, nil
	}

	target := SqueezeTarget{Attempted: true, StopLoss: sl1, TakeProfit: tp1}
	err := p.Modify(ctx, m, Levels{
		StopLoss:   decimal.NewNullDecimal(sl1),
		TakeProfit: decimal.NewNullDecimal(tp1),
	})
	if err != nil {
		p.env.Logger.Warn(ctx, op+": problem in modifying", fields)
	}
	return target, err
}
