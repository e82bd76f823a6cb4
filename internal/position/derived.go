package position

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/money"
	"tradeKeeper/internal/risk"
)

// perTick is the deposit-currency value of one tick for one lot, per price unit.
func perTick(m domain.Market) decimal.Decimal {
	if m.Spec.TickSize.Sign() <= 0 {
		return decimal.Zero
	}
	return m.Spec.TickValue.Div(m.Spec.TickSize)
}

// spreadCost is half the spread paid on lots, as a negative amount.
func spreadCost(m domain.Market, lots decimal.Decimal) decimal.Decimal {
	half := m.Quote.Spread().Div(decimal.NewFromInt(2))
	return half.Neg().Mul(perTick(m)).Mul(lots)
}

// pointsCost converts a slippage in points to deposit currency.
func pointsCost(m domain.Market, points int64, lots decimal.Decimal) decimal.Decimal {
	return money.Points(points, m.Spec.Point).Mul(perTick(m)).Mul(lots)
}

// setIntentFigures computes the figures fixed by the requested levels.
func (p *Position) setIntentFigures(m domain.Market) {
	pt := perTick(m).Mul(p.volume)
	p.initialRisk = p.wantedStopLoss.Sub(p.wantedOpenPrice).Abs().Mul(pt)
	p.notional = pt.Mul(p.wantedOpenPrice).Div(p.env.Params.Leverage)
}

// recomputeDerived refreshes every figure derived from the observed state.
func (p *Position) recomputeDerived(ctx context.Context, m domain.Market) {
	p.totalProfit = p.commission.Add(p.swap).Add(p.profit)

	if !p.profit.IsZero() {
		p.pricePerProfitUnit = p.openPrice.Sub(m.ClosingPrice(p.dir)).Div(p.profit).Abs()
	}
	if !p.pricePerProfitUnit.IsZero() {
		costs := p.swap.Add(p.commission).Mul(p.pricePerProfitUnit)
		p.costsPrice = money.Floor(costs, m.Spec.Point)
	}
	if p.dir == domain.Up {
		p.breakEven = p.openPrice.Sub(p.costsPrice)
	} else {
		p.breakEven = p.openPrice.Add(p.costsPrice)
	}

	prev := p.profitStatus
	p.profitStatus = p.classify(m, p.stopLoss)
	if p.profitStatus != prev && p.profitStatus != domain.Losing {
		p.env.Logger.Info(ctx, fmt.Sprintf("Update: position %d reached %s", p.ticket, p.profitStatus), map[string]interface{}{
			"ticket":     p.ticket,
			"break_even": p.breakEven.String(),
			"sl":         p.stopLoss.String(),
			"open":       p.openPrice.String(),
		})
	}
	price := m.ClosingPrice(p.dir)
	p.liveProfitStatus = p.classify(m, price)

	p.maxLossFromOpen = p.possibleLoss(m, false)
	p.maxLossFromCurrent = p.possibleLoss(m, true)

	p.newLow, p.newHigh = false, false
	if p.status != domain.StatusOpened {
		return
	}
	if p.low.IsZero() && p.high.IsZero() {
		p.low, p.high = p.openPrice, p.openPrice
	}
	switch {
	case price.LessThan(p.low):
		p.low = price
		p.newLow = true
	case price.GreaterThan(p.high):
		p.high = price
		p.newHigh = true
	}
}

// classify places level on the profit scale relative to break-even.
func (p *Position) classify(m domain.Market, level decimal.Decimal) domain.ProfitStatus {
	sign := 1
	pessimistic := level.Sub(p.expectedSlippage(m))
	if p.dir == domain.Down {
		sign = -1
		pessimistic = level.Add(p.expectedSlippage(m))
	}
	switch sign * cmpPrice(m, level, p.breakEven) {
	case 0:
		return domain.BreakEven
	case -1:
		return domain.Losing
	}
	switch sign * cmpPrice(m, pessimistic, p.breakEven) {
	case 0:
		return domain.StrongBreakEven
	case -1:
		return domain.Prospective
	}
	return domain.Profitable
}

// correction inflates the tick value for adverse moves of the conversion rate.
func (p *Position) correction(ratio decimal.Decimal) decimal.Decimal {
	return risk.Correction(p.env.Params.DepositCurrency, p.env.Params.CorrectionExponent, ratio)
}

// possibleLoss is the pessimistic loss if the stop is hit with the expected
// slippage, measured from the opening price or from the current one.
func (p *Position) possibleLoss(m domain.Market, fromCurrent bool) decimal.Decimal {
	if p.status.IsTerminal() || m.Spec.TickSize.Sign() <= 0 {
		return decimal.Zero
	}
	pipValue := p.volume.Mul(m.Spec.TickValue)
	slip := p.expectedSlippage(m)
	cur := p.openPrice

	if p.dir == domain.Up {
		if fromCurrent {
			cur = m.Quote.Bid
		}
		cur = cur.Sub(p.costsPrice)
		stop := p.stopLoss.Sub(slip)
		if cmpPrice(m, stop, decimal.Zero) <= 0 {
			stop = m.Spec.TickSize
		}
		if cmpPrice(m, stop, cur) >= 0 {
			return decimal.Zero
		}
		corr := p.correction(m.Quote.Bid.Sub(stop).Div(stop))
		return cur.Sub(stop).Mul(pipValue).Mul(corr).Div(m.Spec.TickSize)
	}

	if fromCurrent {
		cur = m.Quote.Ask
	}
	cur = cur.Add(p.costsPrice)
	stop := p.stopLoss.Add(slip)
	if cmpPrice(m, stop, cur) <= 0 {
		return decimal.Zero
	}
	corr := p.correction(stop.Sub(m.Quote.Ask).Div(stop))
	return stop.Sub(cur).Mul(pipValue).Mul(corr).Div(m.Spec.TickSize)
}
