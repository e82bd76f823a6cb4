package position

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/ports"
)

// NewSuccessor builds the position that carries the residual volume of
// pred after a partial close. The venue order must match pred in every
// field the venue copies over; any mismatch wraps ports.ErrDesync.
func NewSuccessor(ctx context.Context, m domain.Market, pred *Position, residual decimal.Decimal, st domain.Status, o domain.VenueOrder) (*Position, error) {
	env := pred.env
	mismatch := func(format string, args ...interface{}) error {
		return fmt.Errorf("successor %d of %d: %w: %s", o.Ticket, pred.ticket, ports.ErrDesync, fmt.Sprintf(format, args...))
	}
	switch {
	case cmpLots(m, o.Lots, residual) != 0:
		return nil, mismatch("lots %s instead of %s", o.Lots, residual)
	case o.Kind != domain.MarketKindFor(pred.dir):
		return nil, mismatch("direction %s but operation %s", pred.dir, o.Kind)
	case o.Magic != pred.magic:
		return nil, mismatch("magic %d instead of %d", o.Magic, pred.magic)
	case cmpPrice(m, o.OpenPrice, pred.openPrice) != 0:
		return nil, mismatch("open price %s instead of %s", o.OpenPrice, pred.openPrice)
	case !o.OpenTime.Equal(pred.openTime) && !o.OpenTime.Equal(pred.closeTime):
		return nil, mismatch("open time %s instead of %s or %s", o.OpenTime, pred.openTime, pred.closeTime)
	case cmpPrice(m, o.StopLoss, pred.stopLoss) != 0:
		return nil, mismatch("S/L %s instead of %s", o.StopLoss, pred.stopLoss)
	case cmpPrice(m, o.TakeProfit, pred.takeProfit) != 0:
		return nil, mismatch("T/P %s instead of %s", o.TakeProfit, pred.takeProfit)
	case o.Symbol != pred.symbol:
		return nil, mismatch("symbol %q instead of %q", o.Symbol, pred.symbol)
	}

	p := &Position{
		env:                    env,
		ticket:                 o.Ticket,
		symbol:                 o.Symbol,
		magic:                  o.Magic,
		tactic:                 pred.tactic,
		dir:                    pred.dir,
		kind:                   o.Kind,
		current:                o.Kind,
		status:                 st,
		wantedOpenPrice:        pred.wantedOpenPrice,
		wantedStopLoss:         o.StopLoss,
		wantedTakeProfit:       o.TakeProfit,
		allowedOpeningSlippage: pred.allowedOpeningSlippage,
		expiration:             o.Expiration,
		comment:                o.Comment,
		createdAt:              env.Now(),
		createdTick:            pred.createdTick,
		predecessor:            pred.ticket,
		volume:                 o.Lots,
		openPrice:              o.OpenPrice,
		closePrice:             o.ClosePrice,
		stopLoss:               o.StopLoss,
		takeProfit:             o.TakeProfit,
		openTime:               o.OpenTime,
		closeTime:              o.CloseTime,
		commission:             o.Commission,
		swap:                   o.Swap,
		profit:                 o.Profit,
		everUpdated:            true,
		openingSlippage:        pred.openingSlippage,
		low:                    pred.low,
		high:                   pred.high,
	}
	p.openingSlippageCost = pointsCost(m, pred.openingSlippage, o.Lots)
	if st == domain.StatusClosed {
		var r report
		p.settleClosing(m, o, &r)
		for _, w := range r.warns {
			env.Logger.Warn(ctx, "NewSuccessor: "+w, map[string]interface{}{"ticket": o.Ticket})
		}
	}
	p.setIntentFigures(m)
	p.recomputeDerived(ctx, m)
	pred.successor = p.ticket
	return p, nil
}

// Adopt builds a position for an active venue order the engine did not
// open in this run.
func Adopt(ctx context.Context, env *Env, m domain.Market, tactic domain.Tactic, o domain.VenueOrder) *Position {
	p := &Position{
		env:              env,
		ticket:           o.Ticket,
		symbol:           o.Symbol,
		magic:            o.Magic,
		tactic:           tactic,
		dir:              o.Kind.Direction(),
		kind:             o.Kind,
		current:          o.Kind,
		status:           domain.ActiveStatusFor(o.Kind),
		wantedOpenPrice:  o.OpenPrice,
		wantedStopLoss:   o.StopLoss,
		wantedTakeProfit: o.TakeProfit,
		expiration:       o.Expiration,
		comment:          o.Comment,
		createdAt:        env.Now(),
		createdTick:      env.Tick(),
		volume:           o.Lots,
		openPrice:        o.OpenPrice,
		closePrice:       o.ClosePrice,
		stopLoss:         o.StopLoss,
		takeProfit:       o.TakeProfit,
		openTime:         o.OpenTime,
		closeTime:        o.CloseTime,
		commission:       o.Commission,
		swap:             o.Swap,
		profit:           o.Profit,
		profitStatus:     domain.Losing,
		liveProfitStatus: domain.Losing,
	}
	if id, ok := CorrelationFromComment(o.Comment); ok {
		p.correlationID = id
	}
	p.setIntentFigures(m)
	p.recomputeDerived(ctx, m)
	env.Logger.Info(ctx, "Adopt: adopted venue order", p.fields())
	return p
}
