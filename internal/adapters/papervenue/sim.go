package papervenue

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"tradeKeeper/internal/domain"
)

func (v *Venue) openingPrice(d domain.Direction) decimal.Decimal {
	if d == domain.Up {
		return v.quote.Ask
	}
	return v.quote.Bid
}

func (v *Venue) closingPrice(d domain.Direction) decimal.Decimal {
	if d == domain.Up {
		return v.quote.Bid
	}
	return v.quote.Ask
}

func (v *Venue) points(d decimal.Decimal) int64 {
	return d.Div(v.cfg.Spec.Point).Round(0).IntPart()
}

func (v *Venue) stopDistance() decimal.Decimal {
	return v.cfg.Spec.Point.Mul(decimal.NewFromInt(v.cfg.Spec.StopLevel))
}

func (v *Venue) checkPendingPrice(op string, k domain.OperationKind, price decimal.Decimal) error {
	dist := v.stopDistance()
	var ok bool
	switch k {
	case domain.OpBuyLimit:
		ok = price.LessThanOrEqual(v.quote.Ask.Sub(dist))
	case domain.OpSellLimit:
		ok = price.GreaterThanOrEqual(v.quote.Bid.Add(dist))
	case domain.OpBuyStop:
		ok = price.GreaterThanOrEqual(v.quote.Ask.Add(dist))
	case domain.OpSellStop:
		ok = price.LessThanOrEqual(v.quote.Bid.Sub(dist))
	}
	if !ok || price.Sign() <= 0 {
		return v.fail(op, domain.CodeInvalidPrice, "%s at %s", k, price)
	}
	return nil
}

// checkStops measures SL and TP from the closing price of an opened order
// or from the price of a pending one.
func (v *Venue) checkStops(op string, k domain.OperationKind, price, sl, tp decimal.Decimal) error {
	ref := price
	if k.IsMarket() {
		ref = v.closingPrice(k.Direction())
	}
	dist := v.stopDistance()
	var slOK, tpOK bool
	if k.Direction() == domain.Up {
		slOK = sl.IsZero() || sl.LessThanOrEqual(ref.Sub(dist))
		tpOK = tp.IsZero() || tp.GreaterThanOrEqual(ref.Add(dist))
	} else {
		slOK = sl.IsZero() || sl.GreaterThanOrEqual(ref.Add(dist))
		tpOK = tp.IsZero() || tp.LessThanOrEqual(ref.Sub(dist))
	}
	if !slOK || !tpOK {
		return v.fail(op, domain.CodeInvalidStops, "S/L %s T/P %s against %s", sl, tp, ref)
	}
	return nil
}

func (v *Venue) marginFor(lots decimal.Decimal) decimal.Decimal {
	perLot := v.cfg.Spec.MarginRequired
	if perLot.Sign() <= 0 {
		perLot = v.quote.Mid().Mul(v.cfg.Spec.LotSize).Div(v.cfg.Leverage)
	}
	return perLot.Mul(lots)
}

func (v *Venue) usedMargin() decimal.Decimal {
	total := decimal.Zero
	for _, o := range v.active {
		if o.Kind.IsMarket() {
			total = total.Add(v.marginFor(o.Lots))
		}
	}
	return total
}

func (v *Venue) equity() decimal.Decimal {
	eq := v.balance
	for _, o := range v.active {
		if o.Kind.IsMarket() {
			eq = eq.Add(v.profit(o, v.closingPrice(o.Kind.Direction()))).Add(o.Commission).Add(o.Swap)
		}
	}
	return eq
}

func (v *Venue) freeMargin() decimal.Decimal {
	return v.equity().Sub(v.usedMargin())
}

func (v *Venue) profit(o *domain.VenueOrder, closePrice decimal.Decimal) decimal.Decimal {
	move := closePrice.Sub(o.OpenPrice)
	if o.Kind.Direction() == domain.Down {
		move = move.Neg()
	}
	return move.Div(v.cfg.Spec.TickSize).Mul(v.cfg.Spec.TickValue).Mul(o.Lots).Round(2)
}

// split leaves lots on o and moves the rest to a new order that names o as
// its origin.
func (v *Venue) split(o *domain.VenueOrder, lots decimal.Decimal, comment string) {
	rest := *o
	rest.Ticket = v.newTicket()
	rest.Lots = o.Lots.Sub(lots)
	rest.Comment = fmt.Sprintf("from #%d", o.Ticket)
	if !o.Commission.IsZero() {
		rest.Commission = o.Commission.Mul(rest.Lots).Div(o.Lots).Round(2)
		o.Commission = o.Commission.Sub(rest.Commission)
	}
	v.active[rest.Ticket] = &rest
	o.Lots = lots
	o.Comment = comment
}

// settle moves o to the history.
func (v *Venue) settle(o *domain.VenueOrder, price decimal.Decimal) {
	o.ClosePrice = price
	o.CloseTime = v.cfg.Now()
	if o.Kind.IsMarket() {
		o.Profit = v.profit(o, price)
		v.balance = v.balance.Add(o.Profit).Add(o.Commission).Add(o.Swap)
	}
	delete(v.active, o.Ticket)
	v.history = append(v.history, *o)
}

func (v *Venue) triggered(o *domain.VenueOrder) bool {
	switch o.Kind {
	case domain.OpBuyLimit:
		return v.quote.Ask.LessThanOrEqual(o.OpenPrice)
	case domain.OpSellLimit:
		return v.quote.Bid.GreaterThanOrEqual(o.OpenPrice)
	case domain.OpBuyStop:
		return v.quote.Ask.GreaterThanOrEqual(o.OpenPrice)
	case domain.OpSellStop:
		return v.quote.Bid.LessThanOrEqual(o.OpenPrice)
	}
	return false
}

// process runs expirations, pending triggers and stop hits against the
// current quote.
func (v *Venue) process() {
	now := v.cfg.Now()
	tickets := make([]int64, 0, len(v.active))
	for t := range v.active {
		tickets = append(tickets, t)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i] < tickets[j] })

	for _, t := range tickets {
		o := v.active[t]
		if !o.Kind.IsMarket() {
			if !o.Expiration.IsZero() && !now.Before(o.Expiration) {
				o.Comment = commentExpiration
				v.settle(o, v.closingPrice(o.Kind.Direction()))
				continue
			}
			if !v.triggered(o) {
				continue
			}
			o.Kind = o.Kind.MarketKind()
			o.OpenTime = now
			o.Commission = v.cfg.CommissionPerLot.Mul(o.Lots).Neg()
		}

		if o.Kind.Direction() == domain.Up {
			switch {
			case o.StopLoss.Sign() > 0 && v.quote.Bid.LessThanOrEqual(o.StopLoss):
				o.Comment += "[sl]"
				v.settle(o, o.StopLoss)
			case o.TakeProfit.Sign() > 0 && v.quote.Bid.GreaterThanOrEqual(o.TakeProfit):
				o.Comment += "[tp]"
				v.settle(o, o.TakeProfit)
			}
			continue
		}
		switch {
		case o.StopLoss.Sign() > 0 && v.quote.Ask.GreaterThanOrEqual(o.StopLoss):
			o.Comment += "[sl]"
			v.settle(o, o.StopLoss)
		case o.TakeProfit.Sign() > 0 && v.quote.Ask.LessThanOrEqual(o.TakeProfit):
			o.Comment += "[tp]"
			v.settle(o, o.TakeProfit)
		}
	}
}
