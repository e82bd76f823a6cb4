package position

import (
	"github.com/shopspring/decimal"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/money"
)

// Level limits. Limit 1 keeps SL/TP and pending prices outside the venue's
// stop and freeze distances; limit 2 keeps them inside the sanity bounds.

// referencePrice is the side of the book a level of kind k is measured
// from: bid for the buy family, ask for the sell family. A positive
// openPrice overrides it.
func referencePrice(m domain.Market, k domain.OperationKind, openPrice decimal.Decimal) decimal.Decimal {
	if openPrice.Sign() > 0 {
		return openPrice
	}
	if k.Direction() == domain.Up {
		return m.Quote.Bid
	}
	return m.Quote.Ask
}

// below returns price-dist, pushed one point past the freeze window if needed.
func below(m domain.Market, price, dist decimal.Decimal) decimal.Decimal {
	lvl := price.Sub(dist)
	freeze := m.FreezeDistance()
	if cmpPrice(m, price.Sub(lvl), freeze) <= 0 {
		lvl = price.Sub(freeze.Add(m.Spec.Point))
	}
	return lvl
}

// above returns price+dist, pushed one point past the freeze window if needed.
func above(m domain.Market, price, dist decimal.Decimal) decimal.Decimal {
	lvl := price.Add(dist)
	freeze := m.FreezeDistance()
	if cmpPrice(m, lvl.Sub(price), freeze) <= 0 {
		lvl = price.Add(freeze.Add(m.Spec.Point))
	}
	return lvl
}

// OpenPriceLimit is the nearest legal price of a new pending order of kind k.
func OpenPriceLimit(m domain.Market, k domain.OperationKind) decimal.Decimal {
	price := m.Quote.Bid
	if k.Direction() == domain.Up {
		price = m.Quote.Ask
	}
	stop := m.StopDistance()
	switch k {
	case domain.OpBuyLimit, domain.OpSellStop:
		return below(m, price, stop)
	case domain.OpBuyStop, domain.OpSellLimit:
		return above(m, price, stop)
	}
	return price
}

// MinOpenPrice is the lowest price a pending order may be placed at.
func MinOpenPrice(m domain.Market, maxStopLoss decimal.Decimal) decimal.Decimal {
	tick := m.Spec.TickSize
	dif := tick
	if maxStopLoss.Sign() > 0 {
		dif = money.Normalize(tick.Div(maxStopLoss), m.Spec.Point).Add(tick)
	}
	if stop := m.StopDistance(); dif.LessThan(stop) {
		dif = stop
	}
	return tick.Add(dif)
}

// StopLossLimit is the nearest legal SL for kind k.
func StopLossLimit(m domain.Market, k domain.OperationKind, openPrice decimal.Decimal) decimal.Decimal {
	price := referencePrice(m, k, openPrice)
	stop := m.StopDistance()
	switch k {
	case domain.OpBuy:
		return below(m, price, stop)
	case domain.OpSell:
		return above(m, price, stop)
	case domain.OpBuyLimit, domain.OpBuyStop:
		return price.Sub(stop)
	default:
		return price.Add(stop)
	}
}

// TakeProfitLimit is the nearest legal TP for kind k.
func TakeProfitLimit(m domain.Market, k domain.OperationKind, openPrice decimal.Decimal) decimal.Decimal {
	price := referencePrice(m, k, openPrice)
	stop := m.StopDistance()
	switch k {
	case domain.OpBuy:
		return above(m, price, stop)
	case domain.OpSell:
		return below(m, price, stop)
	case domain.OpBuyLimit, domain.OpBuyStop:
		return price.Add(stop)
	default:
		return price.Sub(stop)
	}
}

// StopLossLimit2 is the farthest SL the sanity bound allows for kind k.
func StopLossLimit2(m domain.Market, k domain.OperationKind, openPrice, maxStopLoss decimal.Decimal) decimal.Decimal {
	price := referencePrice(m, k, openPrice)
	dist := price.Sub(m.Spec.TickSize).Mul(maxStopLoss)
	if k.Direction() == domain.Up {
		return dist
	}
	return price.Mul(decimal.NewFromInt(2)).Sub(dist)
}

// TakeProfitLimit2 is the farthest TP the sanity bound allows for kind k.
func TakeProfitLimit2(m domain.Market, k domain.OperationKind, openPrice, maxTakeProfit decimal.Decimal) decimal.Decimal {
	if k.Direction() == domain.Up {
		return referencePrice(m, k, openPrice).Mul(maxTakeProfit)
	}
	return m.Spec.TickSize
}

// OpenPriceLimit of an opened position is its opening price.
func (p *Position) OpenPriceLimit(m domain.Market) decimal.Decimal {
	if p.status == domain.StatusOpened {
		return p.openPrice
	}
	return OpenPriceLimit(m, p.current)
}

// pendingPrice picks the price pending limits are measured from.
func (p *Position) pendingPrice(openPrice decimal.Decimal) decimal.Decimal {
	if openPrice.Sign() > 0 {
		return openPrice
	}
	return p.wantedOpenPrice
}

// StopLossLimit is limit 1 for the SL. Opened positions measure it from
// the market; pending ones from openPrice, or the wanted price when zero.
func (p *Position) StopLossLimit(m domain.Market, openPrice decimal.Decimal) decimal.Decimal {
	if p.status == domain.StatusOpened {
		return StopLossLimit(m, domain.MarketKindFor(p.dir), decimal.Zero)
	}
	return StopLossLimit(m, p.current, p.pendingPrice(openPrice))
}

// TakeProfitLimit is limit 1 for the TP.
func (p *Position) TakeProfitLimit(m domain.Market, openPrice decimal.Decimal) decimal.Decimal {
	if p.status == domain.StatusOpened {
		return TakeProfitLimit(m, domain.MarketKindFor(p.dir), decimal.Zero)
	}
	return TakeProfitLimit(m, p.current, p.pendingPrice(openPrice))
}

// StopLossLimit2 is limit 2 for the SL. For an opened position the current
// SL is kept when it lies beyond the dynamic bound.
func (p *Position) StopLossLimit2(m domain.Market, openPrice decimal.Decimal) decimal.Decimal {
	maxSL := p.env.Params.MaxStopLossLimit
	if p.status == domain.StatusOpened {
		dyn := StopLossLimit2(m, domain.MarketKindFor(p.dir), decimal.Zero, maxSL)
		if dyn.LessThanOrEqual(p.stopLoss) {
			return p.stopLoss
		}
		return dyn
	}
	return StopLossLimit2(m, p.current, p.pendingPrice(openPrice), maxSL)
}

// TakeProfitLimit2 is limit 2 for the TP.
func (p *Position) TakeProfitLimit2(m domain.Market, openPrice decimal.Decimal) decimal.Decimal {
	maxTP := p.env.Params.MaxTakeProfitLimit
	if p.status == domain.StatusOpened {
		return TakeProfitLimit2(m, domain.MarketKindFor(p.dir), decimal.Zero, maxTP)
	}
	return TakeProfitLimit2(m, p.current, p.pendingPrice(openPrice), maxTP)
}
