package position

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/money"
	"tradeKeeper/internal/ports"
)

const (
	commentExpiration   = "expiration"
	commentCancelled    = "cancelled"
	commentPartialClose = "partial close"
	commentCloseHedge   = "close hedge by "
)

// IsPartialCloseComment reports whether a venue comment marks volume taken
// away by a partial close or a close-by.
func IsPartialCloseComment(c string) bool {
	return c == commentPartialClose || strings.HasPrefix(c, commentCloseHedge)
}

// report collects the issues found while applying one observation.
type report struct {
	errs  []string
	warns []string
}

func (r *report) err(format string, args ...interface{}) {
	r.errs = append(r.errs, fmt.Sprintf(format, args...))
}

func (r *report) warn(format string, args ...interface{}) {
	r.warns = append(r.warns, fmt.Sprintf(format, args...))
}

// Update applies the venue's view of the order. Observed values are always
// adopted. It returns false when a serious anomaly was found: an illegal
// transition or a fixed field that changed.
func (p *Position) Update(ctx context.Context, m domain.Market, st domain.Status, o domain.VenueOrder) bool {
	op := "Update"
	var r report
	from := p.status
	mask := MutableFields(from, st)
	first := !p.everUpdated

	if IsLegalTransition(from, st) {
		if from != st {
			p.env.Logger.Info(ctx, fmt.Sprintf("%s: position %d status changed from %s to %s", op, o.Ticket, from, st),
				map[string]interface{}{"ticket": o.Ticket, "tick": p.env.Tick()})
		}
	} else {
		r.err("status changed from %s to %s (disallowed)", from, st)
	}
	p.status = st

	if st == domain.StatusOpened && (from != domain.StatusOpened || first) && p.openingSpreadCost.IsZero() {
		p.openingSpreadCost = spreadCost(m, o.Lots)
	}

	if mask.Has(FieldClosePrice) {
		if st == domain.StatusClosed && from != domain.StatusClosed {
			p.settleClosing(m, o, &r)
		}
		p.closePrice = o.ClosePrice
	} else if cmpPrice(m, p.closePrice, o.ClosePrice) != 0 {
		r.err("close price %s instead of %s", o.ClosePrice, p.closePrice)
		p.closePrice = o.ClosePrice
	}

	if !p.closeTime.Equal(o.CloseTime) {
		if !mask.Has(FieldCloseTime) {
			r.err("close time %s instead of %s", o.CloseTime, p.closeTime)
		}
		p.closeTime = o.CloseTime
	}

	if p.comment != o.Comment {
		if mask.Has(FieldComment) {
			p.explainComment(ctx, m, o, &r)
		} else {
			r.err("comment %q instead of %q", o.Comment, p.comment)
		}
		p.comment = o.Comment
	}

	if mask.Has(FieldCommission) {
		closing := st == domain.StatusClosed && from.IsActive()
		if p.everUpdated && !closing && money.Compare(p.commission, o.Commission, money.Epsilon) > 0 {
			r.warn("commission %s increased from %s", o.Commission, p.commission)
		}
		p.commission = o.Commission
	} else if money.Compare(p.commission, o.Commission, money.Epsilon) != 0 {
		r.err("commission %s instead of %s", o.Commission, p.commission)
		p.commission = o.Commission
	}

	if !p.expiration.Equal(o.Expiration) {
		if mask.Has(FieldExpiration) || first {
			r.warn("expiration %s instead of %s", o.Expiration, p.expiration)
		} else {
			r.err("expiration %s instead of %s", o.Expiration, p.expiration)
		}
		p.expiration = o.Expiration
	}

	if mask.Has(FieldLots) {
		switch cmpLots(m, p.volume, o.Lots) {
		case 1:
			if !IsPartialCloseComment(o.Comment) {
				r.err("lots %s instead of %s", o.Lots, p.volume)
			}
		case -1:
			r.err("lots %s increased from %s", o.Lots, p.volume)
		}
		p.volume = o.Lots
	} else if cmpLots(m, p.volume, o.Lots) != 0 {
		r.err("lots %s instead of %s", o.Lots, p.volume)
		p.volume = o.Lots
	}

	if p.magic != o.Magic {
		r.err("magic %d instead of %d", o.Magic, p.magic)
		p.magic = o.Magic
	}

	if mask.Has(FieldOpenPrice) || first {
		p.openingSlippage = p.slippageAgainst(m, p.wantedOpenPrice, o.OpenPrice, true)
		if first && cmpPrice(m, p.wantedOpenPrice, o.OpenPrice) != 0 {
			exceeded := ""
			if -p.openingSlippage > p.allowedOpeningSlippage {
				exceeded = fmt.Sprintf(" and slippage %d exceeded", p.allowedOpeningSlippage)
			}
			r.warn("open price %s instead of %s%s", o.OpenPrice, p.wantedOpenPrice, exceeded)
		}
		p.openingSlippageCost = pointsCost(m, p.openingSlippage, o.Lots)
		p.openPrice = o.OpenPrice
	} else if cmpPrice(m, p.openPrice, o.OpenPrice) != 0 {
		r.err("open price %s instead of %s", o.OpenPrice, p.openPrice)
		p.openPrice = o.OpenPrice
	}

	if !p.openTime.Equal(o.OpenTime) {
		if !mask.Has(FieldOpenTime) && !first {
			r.err("open time %s instead of %s", o.OpenTime, p.openTime)
		}
		p.openTime = o.OpenTime
	}

	if !mask.Has(FieldProfit) && money.Compare(p.profit, o.Profit, money.Epsilon) != 0 {
		r.err("profit %s instead of %s", o.Profit, p.profit)
	}
	p.profit = o.Profit

	if !mask.Has(FieldStopLoss) && cmpPrice(m, p.stopLoss, o.StopLoss) != 0 {
		r.err("stop loss %s instead of %s", o.StopLoss, p.stopLoss)
	}
	p.stopLoss = o.StopLoss

	if !mask.Has(FieldSwap) && money.Compare(p.swap, o.Swap, money.Epsilon) != 0 {
		r.err("swap %s instead of %s", o.Swap, p.swap)
	}
	p.swap = o.Swap

	if p.symbol != o.Symbol {
		r.err("symbol changed from %q to %q", p.symbol, o.Symbol)
		p.symbol = o.Symbol
	}

	if !mask.Has(FieldTakeProfit) && cmpPrice(m, p.takeProfit, o.TakeProfit) != 0 {
		r.err("take profit %s instead of %s", o.TakeProfit, p.takeProfit)
	}
	p.takeProfit = o.TakeProfit

	if p.ticket != o.Ticket {
		if p.ticket == 0 && mask.Has(FieldTicket) {
			p.env.Logger.Info(ctx, fmt.Sprintf("%s: assigning ticket %d to unknown position", op, o.Ticket),
				map[string]interface{}{"ticket": o.Ticket, "correlation_id": p.correlationID})
			p.ticket = o.Ticket
		} else {
			r.err("ticket %d instead of %d", o.Ticket, p.ticket)
		}
	}

	if p.current != o.Kind {
		if mask.Has(FieldType) && !p.current.IsMarket() && o.Kind == p.current.MarketKind() {
			p.current = o.Kind
		} else {
			r.err("type %s obtained from %s", o.Kind, p.current)
			p.current = o.Kind
		}
	}

	p.recomputeDerived(ctx, m)
	p.lastUpdatedTick = p.env.Tick()

	ok := len(r.errs) == 0
	if ok {
		p.everUpdated = true
	}
	if len(r.warns) > 0 {
		p.env.Logger.Warn(ctx, op+": minor issues found", map[string]interface{}{
			"ticket": p.ticket,
			"issues": strings.Join(r.warns, "; "),
		})
	}
	if !ok {
		p.env.Logger.Error(ctx, ports.ErrTrackingAnomaly, op+": serious issues found", map[string]interface{}{
			"ticket": p.ticket,
			"issues": strings.Join(r.errs, "; "),
		})
	}
	return ok
}

// slippageAgainst returns the slippage in points between a wanted and an
// obtained price, positive when the fill was favorable.
func (p *Position) slippageAgainst(m domain.Market, wanted, got decimal.Decimal, opening bool) int64 {
	var diff decimal.Decimal
	buying := p.dir == domain.Up
	if !opening {
		buying = !buying
	}
	if buying {
		diff = wanted.Sub(got)
	} else {
		diff = got.Sub(wanted)
	}
	return money.HalfNormalize(diff, m.Spec.Point)
}

// settleClosing computes the closing slippage and costs on the transition to Closed.
func (p *Position) settleClosing(m domain.Market, o domain.VenueOrder, r *report) {
	if !p.wantedClosePrice.IsZero() {
		p.closingSlippage = p.slippageAgainst(m, p.wantedClosePrice, o.ClosePrice, false)
		if cmpPrice(m, p.wantedClosePrice, o.ClosePrice) != 0 && -p.closingSlippage > p.allowedClosingSlippage && p.closedBy == 0 {
			r.warn("close price %s instead of %s and slippage %d exceeded", o.ClosePrice, p.wantedClosePrice, p.allowedClosingSlippage)
		}
	} else {
		level := nearestLevel(o)
		if cmpPrice(m, o.StopLoss, o.ClosePrice) != 0 && cmpPrice(m, o.TakeProfit, o.ClosePrice) != 0 {
			r.warn("close price %s is neither S/L %s nor T/P %s", o.ClosePrice, o.StopLoss, o.TakeProfit)
		}
		p.closingSlippage = p.slippageAgainst(m, level, o.ClosePrice, false)
	}
	p.closingSpreadCost = spreadCost(m, o.Lots)
	p.closingSlippageCost = pointsCost(m, p.closingSlippage, o.Lots)

	if m.Spec.Point.Sign() > 0 {
		if p.dir == domain.Up {
			p.pips = o.ClosePrice.Sub(o.OpenPrice).Div(m.Spec.Point).Round(0).IntPart()
			p.potentialPip = p.high.Sub(o.OpenPrice).Div(m.Spec.Point).Round(0).IntPart()
		} else {
			p.pips = o.OpenPrice.Sub(o.ClosePrice).Div(m.Spec.Point).Round(0).IntPart()
			p.potentialPip = o.OpenPrice.Sub(p.low).Div(m.Spec.Point).Round(0).IntPart()
		}
	}
}

// nearestLevel returns whichever of SL and TP is closer to the close price.
func nearestLevel(o domain.VenueOrder) decimal.Decimal {
	toTP := o.TakeProfit.Sub(o.ClosePrice).Abs()
	toSL := o.StopLoss.Sub(o.ClosePrice).Abs()
	if toSL.GreaterThanOrEqual(toTP) {
		return o.TakeProfit
	}
	return o.StopLoss
}

// explainComment logs a recognized comment change or records an unexpected one.
func (p *Position) explainComment(ctx context.Context, m domain.Market, o domain.VenueOrder, r *report) {
	op := "Update"
	fields := map[string]interface{}{"ticket": o.Ticket, "tick": p.env.Tick()}
	switch {
	case o.Comment == commentExpiration:
		p.env.Logger.Info(ctx, op+": position expired", fields)
	case o.Comment == commentCancelled:
		p.env.Logger.Info(ctx, op+": position was cancelled", fields)
	case o.Comment == p.comment+"[sl]":
		p.env.Logger.Info(ctx, op+": position hit S/L", fields)
	case o.Comment == p.comment+"[tp]":
		p.env.Logger.Info(ctx, op+": position hit T/P", fields)
	case o.Comment == commentPartialClose:
		var problems []string
		if money.Compare(p.commission, o.Commission, money.Epsilon) > 0 {
			problems = append(problems, fmt.Sprintf("commission changed from %s to %s", p.commission, o.Commission))
		}
		if cmpLots(m, p.volume, o.Lots) < 0 {
			problems = append(problems, fmt.Sprintf("volume changed from %s to %s", p.volume, o.Lots))
		}
		if len(problems) > 0 {
			r.warn("partially closed and %s", strings.Join(problems, " and "))
		} else {
			p.env.Logger.Info(ctx, op+": position partially closed", fields)
		}
	case strings.HasPrefix(o.Comment, commentCloseHedge):
		fields["closed_by"] = p.closedBy
		p.env.Logger.Info(ctx, op+": position closed by an opposite one", fields)
	default:
		if _, ok := PredecessorFromComment(o.Comment); ok {
			p.env.Logger.Info(ctx, op+": position carries a residual volume", fields)
			return
		}
		r.warn("comment changed from %q to %q", p.comment, o.Comment)
	}
}
