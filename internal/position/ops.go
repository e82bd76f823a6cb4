package position

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradeKeeper/internal/broker"
	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/money"
	"tradeKeeper/internal/ports"
)

// OpenRequest describes a new position.
type OpenRequest struct {
	Tactic        domain.Tactic
	Kind          domain.OperationKind
	Volume        decimal.Decimal
	StopLoss      decimal.Decimal
	TakeProfit    decimal.NullDecimal // absent: the far sanity bound
	Price         decimal.Decimal     // pending kinds only
	Slippage      int64               // points, market kinds only
	Comment       string
	ValidFor      time.Duration // pending kinds; zero means no expiration
	CorrelationID int64
}

// Levels is a modification request. Absent values keep the current ones.
type Levels struct {
	StopLoss   decimal.NullDecimal
	TakeProfit decimal.NullDecimal
	OpenPrice  decimal.NullDecimal // pending only
	ValidFor   time.Duration       // pending only; zero keeps the current expiration
}

func reject(ctx context.Context, logger ports.Logger, op string, fields map[string]interface{}, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	logger.Warn(ctx, op+": "+msg, fields)
	return fmt.Errorf("%s: %w: %s", op, ports.ErrRejected, msg)
}

// call runs a trading call and maps the broker result to an error.
func (p *Position) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return p.settleCall(ctx, op, p.env.Broker.Do, fn)
}

// modifyCall is call for venue Modify requests.
func (p *Position) modifyCall(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return p.settleCall(ctx, op, p.env.Broker.DoModify, fn)
}

func (p *Position) settleCall(ctx context.Context, op string,
	do func(ctx context.Context, op string, call func(ctx context.Context) error) (broker.Result, error),
	fn func(ctx context.Context) error) error {
	res, err := do(ctx, op, fn)
	if err != nil {
		return err
	}
	switch res {
	case broker.Failed:
		p.env.Logger.Error(ctx, ports.ErrRejected, op+": venue refused the call", p.fields())
		return fmt.Errorf("%s: %w: ticket %d", op, ports.ErrRejected, p.ticket)
	case broker.Unknown:
		p.env.Logger.Error(ctx, ports.ErrOutcomeUnknown, op+": timeout, result unknown", p.fields())
		return fmt.Errorf("%s: %w: ticket %d", op, ports.ErrOutcomeUnknown, p.ticket)
	}
	return nil
}

func expirationIn(now time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return now.Add(d).Truncate(time.Minute)
}

func openComment(req OpenRequest, magic int64) string {
	parts := make([]string, 0, 3)
	if req.CorrelationID != 0 {
		parts = append(parts, CorrelationComment(req.CorrelationID))
	}
	if req.Comment != "" {
		parts = append(parts, req.Comment)
	}
	parts = append(parts, fmt.Sprintf("magic: %d", magic))
	return strings.Join(parts, " ")
}

// Open validates and submits a new order. On success the position is
// Opened or Pending. When the submission timed out the position is returned
// with status Unknown and no ticket; reconciliation resolves it. A failed
// validation or a refused submission returns ports.ErrRejected; a failed
// validation never reaches the venue.
func Open(ctx context.Context, env *Env, m domain.Market, req OpenRequest) (*Position, error) {
	op := "Open"
	logger := env.Logger
	fields := map[string]interface{}{"kind": req.Kind.String(), "tactic": req.Tactic.String()}
	params := env.Params

	if req.Slippage < 0 {
		return nil, reject(ctx, logger, op, fields, "slippage can't be negative")
	}

	price, compl := req.Price, req.Price
	status := domain.StatusPending
	slippage := req.Slippage
	switch req.Kind {
	case domain.OpBuy:
		price, compl = m.Quote.Ask, m.Quote.Bid
		status = domain.StatusOpened
	case domain.OpSell:
		price, compl = m.Quote.Bid, m.Quote.Ask
		status = domain.StatusOpened
	default:
		slippage = 0
		if price.Sign() <= 0 {
			return nil, reject(ctx, logger, op, fields, "pending order needs a price")
		}
	}
	dir := req.Kind.Direction()

	tp := req.TakeProfit.Decimal
	defaultTP := !req.TakeProfit.Valid
	if dir == domain.Up {
		floor := compl.Mul(params.MaxStopLossLimit)
		if cmpPrice(m, req.StopLoss, floor) < 0 {
			return nil, reject(ctx, logger, op, fields, "S/L %s lower than %s", req.StopLoss, floor)
		}
		if defaultTP {
			tp = compl.Mul(params.MaxTakeProfitLimit)
		}
	} else {
		ceiling := compl.Mul(decimal.NewFromInt(2).Sub(params.MaxStopLossLimit))
		if cmpPrice(m, req.StopLoss, ceiling) > 0 {
			return nil, reject(ctx, logger, op, fields, "S/L %s higher than %s", req.StopLoss, ceiling)
		}
		if defaultTP {
			tp = m.Spec.TickSize
		}
	}

	volume := money.Normalize(req.Volume, m.Spec.LotStep)
	if volume.LessThan(m.Spec.MinLot) || volume.GreaterThan(m.Spec.MaxLot) {
		return nil, reject(ctx, logger, op, fields, "volume %s (made of %s) out of bounds %s..%s",
			volume, req.Volume, m.Spec.MinLot, m.Spec.MaxLot)
	}

	point := m.Spec.Point
	price = money.Normalize(price, point)
	sl := money.Normalize(req.StopLoss, point)
	tp = money.Normalize(tp, point)

	var slLim, tpLim, slLim2, tpLim2 decimal.Decimal
	if req.Kind.IsMarket() {
		slLim = money.Normalize(StopLossLimit(m, req.Kind, decimal.Zero), point)
		tpLim = money.Normalize(TakeProfitLimit(m, req.Kind, decimal.Zero), point)
		slLim2 = money.Normalize(StopLossLimit2(m, req.Kind, decimal.Zero, params.MaxStopLossLimit), point)
		tpLim2 = money.Normalize(TakeProfitLimit2(m, req.Kind, decimal.Zero, params.MaxTakeProfitLimit), point)
	} else {
		opLim := money.Normalize(OpenPriceLimit(m, req.Kind), point)
		opMin := money.Normalize(MinOpenPrice(m, params.MaxStopLossLimit), point)
		slLim = money.Normalize(StopLossLimit(m, req.Kind, price), point)
		tpLim = money.Normalize(TakeProfitLimit(m, req.Kind, price), point)
		slLim2 = money.Normalize(StopLossLimit2(m, req.Kind, price, params.MaxStopLossLimit), point)
		tpLim2 = money.Normalize(TakeProfitLimit2(m, req.Kind, price, params.MaxTakeProfitLimit), point)
		if err := checkPendingPrice(ctx, logger, op, fields, m, req.Kind, price, opLim, opMin); err != nil {
			return nil, err
		}
	}

	clampTP := func() error {
		if defaultTP {
			tp = tpLim2
			return nil
		}
		return reject(ctx, logger, op, fields, "T/P %s is beyond border %s", tp, tpLim2)
	}
	if dir == domain.Up {
		switch {
		case cmpPrice(m, sl, slLim) > 0:
			return nil, reject(ctx, logger, op, fields, "S/L %s is greater than border %s", sl, slLim)
		case cmpPrice(m, tp, tpLim) < 0:
			return nil, reject(ctx, logger, op, fields, "T/P %s is lesser than border %s", tp, tpLim)
		case cmpPrice(m, sl, slLim2) < 0:
			return nil, reject(ctx, logger, op, fields, "S/L %s is lesser than border %s", sl, slLim2)
		case cmpPrice(m, tp, tpLim2) > 0:
			if err := clampTP(); err != nil {
				return nil, err
			}
		}
	} else {
		switch {
		case cmpPrice(m, sl, slLim) < 0:
			return nil, reject(ctx, logger, op, fields, "S/L %s is lesser than border %s", sl, slLim)
		case cmpPrice(m, tp, tpLim) > 0:
			return nil, reject(ctx, logger, op, fields, "T/P %s is greater than border %s", tp, tpLim)
		case cmpPrice(m, sl, slLim2) > 0:
			return nil, reject(ctx, logger, op, fields, "S/L %s is greater than border %s", sl, slLim2)
		case cmpPrice(m, tp, tpLim2) < 0:
			if err := clampTP(); err != nil {
				return nil, err
			}
		}
	}

	now := env.Now()
	magic := params.MagicFor(req.Tactic)
	order := domain.OrderRequest{
		Symbol:     params.Symbol,
		Kind:       req.Kind,
		Lots:       volume,
		Price:      price,
		Slippage:   slippage,
		StopLoss:   sl,
		TakeProfit: tp,
		Magic:      magic,
		Comment:    openComment(req, magic),
		Expiration: expirationIn(now, req.ValidFor),
	}

	var ticket int64
	res, err := env.Broker.Do(ctx, "Send", func(ctx context.Context) error {
		t, err := env.Trader.Send(ctx, order)
		if err != nil {
			return err
		}
		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	switch res {
	case broker.Failed:
		logger.Error(ctx, ports.ErrRejected, op+": couldn't create an order", fields)
		return nil, fmt.Errorf("%s: %w: venue refused the order", op, ports.ErrRejected)
	case broker.Unknown:
		logger.Error(ctx, ports.ErrOutcomeUnknown, op+": timeout while creating an order, result unknown", fields)
		status = domain.StatusUnknown
		ticket = 0
	}

	p := &Position{
		env:                    env,
		ticket:                 ticket,
		correlationID:          req.CorrelationID,
		symbol:                 params.Symbol,
		magic:                  magic,
		tactic:                 req.Tactic,
		dir:                    dir,
		kind:                   req.Kind,
		current:                req.Kind,
		status:                 status,
		wantedOpenPrice:        price,
		wantedStopLoss:         sl,
		wantedTakeProfit:       tp,
		allowedOpeningSlippage: slippage,
		expiration:             order.Expiration,
		comment:                order.Comment,
		createdAt:              now,
		createdTick:            env.Tick(),
		volume:                 volume,
		openPrice:              price,
		stopLoss:               sl,
		takeProfit:             tp,
		profitStatus:           domain.Losing,
		liveProfitStatus:       domain.Losing,
	}
	p.setIntentFigures(m)
	p.maxLossFromOpen = p.possibleLoss(m, false)
	p.maxLossFromCurrent = p.possibleLoss(m, true)
	if status != domain.StatusUnknown {
		logger.Info(ctx, op+": order placed", p.fields())
	}
	return p, nil
}

func checkPendingPrice(ctx context.Context, logger ports.Logger, op string, fields map[string]interface{},
	m domain.Market, k domain.OperationKind, price, opLim, opMin decimal.Decimal) error {
	if k == domain.OpBuyStop || k == domain.OpSellLimit {
		if cmpPrice(m, price, opLim) < 0 {
			return reject(ctx, logger, op, fields, "O/P %s is lesser than border %s", price, opLim)
		}
		return nil
	}
	if cmpPrice(m, price, opLim) > 0 {
		return reject(ctx, logger, op, fields, "O/P %s is greater than border %s", price, opLim)
	}
	if cmpPrice(m, price, opMin) < 0 {
		return reject(ctx, logger, op, fields, "O/P %s is lesser than border %s", price, opMin)
	}
	return nil
}

// checkLevels validates SL/TP against both limits in the position's direction.
func (p *Position) checkLevels(ctx context.Context, op string, m domain.Market, sl, tp, slLim, tpLim, slLim2, tpLim2 decimal.Decimal) error {
	f := p.fields()
	if p.dir == domain.Up {
		switch {
		case cmpPrice(m, sl, slLim) > 0:
			return reject(ctx, p.env.Logger, op, f, "S/L %s is greater than border %s", sl, slLim)
		case cmpPrice(m, tp, tpLim) < 0:
			return reject(ctx, p.env.Logger, op, f, "T/P %s is lesser than border %s", tp, tpLim)
		case cmpPrice(m, sl, slLim2) < 0:
			return reject(ctx, p.env.Logger, op, f, "S/L %s is lesser than border %s", sl, slLim2)
		case cmpPrice(m, tp, tpLim2) > 0:
			return reject(ctx, p.env.Logger, op, f, "T/P %s is greater than border %s", tp, tpLim2)
		}
		return nil
	}
	switch {
	case cmpPrice(m, sl, slLim) < 0:
		return reject(ctx, p.env.Logger, op, f, "S/L %s is lesser than border %s", sl, slLim)
	case cmpPrice(m, tp, tpLim) > 0:
		return reject(ctx, p.env.Logger, op, f, "T/P %s is greater than border %s", tp, tpLim)
	case cmpPrice(m, sl, slLim2) > 0:
		return reject(ctx, p.env.Logger, op, f, "S/L %s is greater than border %s", sl, slLim2)
	case cmpPrice(m, tp, tpLim2) < 0:
		return reject(ctx, p.env.Logger, op, f, "T/P %s is lesser than border %s", tp, tpLim2)
	}
	return nil
}

// Modify changes the levels. An opened position may only tighten its SL; a
// pending one may also move its price and expiration. A request that
// changes nothing is rejected without a venue call.
func (p *Position) Modify(ctx context.Context, m domain.Market, lv Levels) error {
	op := "Modify"
	point := m.Spec.Point
	now := p.env.Now()

	switch p.status {
	case domain.StatusOpened:
		sl, tp := p.stopLoss, p.takeProfit
		tpLim2 := p.takeProfit
		if lv.TakeProfit.Valid {
			tp = money.Normalize(lv.TakeProfit.Decimal, point)
			tpLim2 = money.Normalize(p.TakeProfitLimit2(m, decimal.Zero), point)
		}
		if lv.StopLoss.Valid {
			sl = money.Normalize(lv.StopLoss.Decimal, point)
		}
		if cmpPrice(m, tp, p.takeProfit) == 0 && cmpPrice(m, sl, p.stopLoss) == 0 {
			return reject(ctx, p.env.Logger, op, p.fields(), "S/L %s and T/P %s haven't changed", sl, tp)
		}
		loosens := cmpPrice(m, sl, p.stopLoss) < 0
		if p.dir == domain.Down {
			loosens = cmpPrice(m, sl, p.stopLoss) > 0
		}
		if loosens {
			return reject(ctx, p.env.Logger, op, p.fields(), "can't loosen S/L from %s to %s", p.stopLoss, sl)
		}
		slLim := money.Normalize(p.StopLossLimit(m, decimal.Zero), point)
		tpLim := money.Normalize(p.TakeProfitLimit(m, decimal.Zero), point)
		slLim2 := money.Normalize(p.StopLossLimit2(m, decimal.Zero), point)
		if err := p.checkLevels(ctx, op, m, sl, tp, slLim, tpLim, slLim2, tpLim2); err != nil {
			return err
		}

		req := domain.ModifyRequest{Ticket: p.ticket, OpenPrice: p.openPrice, StopLoss: sl, TakeProfit: tp}
		if err := p.modifyCall(ctx, op, func(ctx context.Context) error { return p.env.Trader.Modify(ctx, req) }); err != nil {
			return err
		}
		p.stopLoss, p.takeProfit = sl, tp
		p.history = append(p.history, Modification{Tick: p.env.Tick(), Time: now, StopLoss: sl, TakeProfit: tp})

	case domain.StatusPending:
		if !p.CanBeDeleted(m) {
			p.env.Logger.Warn(ctx, op+": pending order is inside the freeze window", p.fields())
		}
		expiration := p.expiration
		if lv.ValidFor > 0 {
			expiration = expirationIn(now, lv.ValidFor)
		}
		price, sl, tp := p.wantedOpenPrice, p.wantedStopLoss, p.wantedTakeProfit
		if lv.OpenPrice.Valid {
			price = money.Normalize(lv.OpenPrice.Decimal, point)
		}
		if lv.StopLoss.Valid {
			sl = money.Normalize(lv.StopLoss.Decimal, point)
		}
		if lv.TakeProfit.Valid {
			tp = money.Normalize(lv.TakeProfit.Decimal, point)
		}
		if cmpPrice(m, tp, p.wantedTakeProfit) == 0 && cmpPrice(m, sl, p.wantedStopLoss) == 0 &&
			cmpPrice(m, price, p.wantedOpenPrice) == 0 && expiration.Equal(p.expiration) {
			return reject(ctx, p.env.Logger, op, p.fields(), "S/L %s T/P %s O/P %s and expiration haven't changed", sl, tp, price)
		}
		opLim := money.Normalize(OpenPriceLimit(m, p.current), point)
		opMin := money.Normalize(MinOpenPrice(m, p.env.Params.MaxStopLossLimit), point)
		slLim := money.Normalize(p.StopLossLimit(m, price), point)
		tpLim := money.Normalize(p.TakeProfitLimit(m, price), point)
		slLim2 := money.Normalize(p.StopLossLimit2(m, price), point)
		tpLim2 := money.Normalize(p.TakeProfitLimit2(m, price), point)
		if err := p.checkLevels(ctx, op, m, sl, tp, slLim, tpLim, slLim2, tpLim2); err != nil {
			return err
		}
		if err := checkPendingPrice(ctx, p.env.Logger, op, p.fields(), m, p.current, price, opLim, opMin); err != nil {
			return err
		}

		req := domain.ModifyRequest{Ticket: p.ticket, OpenPrice: price, StopLoss: sl, TakeProfit: tp, Expiration: expiration}
		if err := p.modifyCall(ctx, op, func(ctx context.Context) error { return p.env.Trader.Modify(ctx, req) }); err != nil {
			return err
		}
		p.wantedOpenPrice, p.openPrice = price, price
		p.wantedStopLoss, p.stopLoss = sl, sl
		p.wantedTakeProfit, p.takeProfit = tp, tp
		p.expiration = expiration
		p.setIntentFigures(m)

	default:
		return reject(ctx, p.env.Logger, op, p.fields(), "can't be modified due to its status %s", p.status)
	}

	p.lastModification = now
	return nil
}

// CanBeClosed reports whether an opened position is outside the freeze
// window around both its SL and TP.
func (p *Position) CanBeClosed(m domain.Market) bool {
	if p.status != domain.StatusOpened {
		return false
	}
	freeze := m.FreezeDistance()
	if p.dir == domain.Up {
		bid := m.Quote.Bid
		return !(cmpPrice(m, bid.Sub(p.stopLoss), freeze) <= 0 && cmpPrice(m, p.takeProfit.Sub(bid), freeze) <= 0)
	}
	ask := m.Quote.Ask
	return !(cmpPrice(m, p.stopLoss.Sub(ask), freeze) <= 0 && cmpPrice(m, ask.Sub(p.takeProfit), freeze) <= 0)
}

// CanBeDeleted reports whether a pending order is outside the freeze
// distance from its price.
func (p *Position) CanBeDeleted(m domain.Market) bool {
	if p.status != domain.StatusPending {
		return false
	}
	freeze := m.FreezeDistance()
	price := p.wantedOpenPrice
	var dist decimal.Decimal
	switch p.current {
	case domain.OpBuyLimit:
		dist = m.Quote.Ask.Sub(price)
	case domain.OpSellLimit:
		dist = price.Sub(m.Quote.Bid)
	case domain.OpBuyStop:
		dist = price.Sub(m.Quote.Ask)
	case domain.OpSellStop:
		dist = m.Quote.Bid.Sub(price)
	default:
		return true
	}
	return cmpPrice(m, dist, freeze) > 0
}

// Close closes the whole position, or lots of it, at market.
func (p *Position) Close(ctx context.Context, m domain.Market, slippage int64, lots decimal.NullDecimal) error {
	op := "Close"
	if p.status != domain.StatusOpened {
		return reject(ctx, p.env.Logger, op, p.fields(), "can't close a position with status %s", p.status)
	}
	if !p.CanBeClosed(m) {
		return reject(ctx, p.env.Logger, op, p.fields(), "S/L %s and T/P %s are inside the freeze window", p.stopLoss, p.takeProfit)
	}
	price := money.Normalize(m.ClosingPrice(p.dir), m.Spec.Point)
	volume := p.volume
	if lots.Valid {
		volume = money.Normalize(lots.Decimal, m.Spec.LotStep)
	}
	if volume.LessThan(m.Spec.MinLot) || cmpLots(m, volume, p.volume) > 0 {
		return reject(ctx, p.env.Logger, op, p.fields(), "lots %s out of bounds %s..%s", volume, m.Spec.MinLot, p.volume)
	}
	if slippage < 0 {
		slippage = 0
	}
	req := domain.CloseRequest{Ticket: p.ticket, Lots: volume, Price: price, Slippage: slippage}
	if err := p.call(ctx, op, func(ctx context.Context) error { return p.env.Trader.Close(ctx, req) }); err != nil {
		return err
	}
	p.allowedClosingSlippage = slippage
	p.wantedClosePrice = price
	p.lastModification = p.env.Now()
	return nil
}

// CloseBy closes the position against an opposite one. A timeout counts as
// a probable success; reconciliation confirms it.
func (p *Position) CloseBy(ctx context.Context, m domain.Market, other *Position) error {
	op := "CloseBy"
	switch {
	case p.status != domain.StatusOpened:
		return reject(ctx, p.env.Logger, op, p.fields(), "can't close a position with status %s", p.status)
	case other.status != domain.StatusOpened:
		return reject(ctx, p.env.Logger, op, other.fields(), "can't close complementary position with status %s", other.status)
	case other.dir == p.dir:
		return reject(ctx, p.env.Logger, op, p.fields(), "both positions have direction %s", p.dir)
	case !p.CanBeClosed(m):
		return reject(ctx, p.env.Logger, op, p.fields(), "position is inside the freeze window")
	case !other.CanBeClosed(m):
		return reject(ctx, p.env.Logger, op, other.fields(), "complementary position is inside the freeze window")
	}

	res, err := p.env.Broker.Do(ctx, op, func(ctx context.Context) error {
		return p.env.Trader.CloseBy(ctx, p.ticket, other.ticket)
	})
	if err != nil {
		return err
	}
	if res == broker.Failed {
		p.env.Logger.Error(ctx, ports.ErrRejected, op+": venue refused the call", p.fields())
		return fmt.Errorf("%s: %w: tickets %d and %d", op, ports.ErrRejected, p.ticket, other.ticket)
	}
	if res == broker.Unknown {
		p.env.Logger.Error(ctx, ports.ErrOutcomeUnknown, op+": timeout, assuming the positions were closed", p.fields())
	}

	allowed := money.HalfNormalize(m.Quote.Spread(), m.Spec.Point)
	p.allowedClosingSlippage, other.allowedClosingSlippage = allowed, allowed
	p.closedBy, other.closedBy = other.ticket, p.ticket
	p.wantedClosePrice = money.Normalize(m.ClosingPrice(p.dir), m.Spec.Point)
	other.wantedClosePrice = money.Normalize(m.ClosingPrice(other.dir), m.Spec.Point)
	now := p.env.Now()
	p.lastModification, other.lastModification = now, now
	return nil
}

// Delete cancels a pending order.
func (p *Position) Delete(ctx context.Context, m domain.Market) error {
	op := "Delete"
	if p.status != domain.StatusPending {
		return reject(ctx, p.env.Logger, op, p.fields(), "can't delete a position with status %s", p.status)
	}
	if !p.CanBeDeleted(m) {
		return reject(ctx, p.env.Logger, op, p.fields(), "price %s is inside the freeze window", p.wantedOpenPrice)
	}
	if err := p.call(ctx, op, func(ctx context.Context) error { return p.env.Trader.Delete(ctx, p.ticket) }); err != nil {
		return err
	}
	p.lastModification = p.env.Now()
	return nil
}

// deleteAnyway tries to cancel a pending order even inside the freeze window.
func (p *Position) deleteAnyway(ctx context.Context, op string, m domain.Market) error {
	if !p.CanBeDeleted(m) {
		p.env.Logger.Warn(ctx, op+": pending order is inside the freeze window, trying anyway", p.fields())
	}
	err := p.call(ctx, op, func(ctx context.Context) error { return p.env.Trader.Delete(ctx, p.ticket) })
	p.lastModification = p.env.Now()
	return err
}

// CloseMild deletes a pending order, or moves SL and TP of an opened one to
// the tightest legal window. Failures are only logged.
func (p *Position) CloseMild(ctx context.Context, m domain.Market) {
	op := "CloseMild"
	slLim := money.Normalize(p.StopLossLimit(m, decimal.Zero), m.Spec.Point)
	tpLim := money.Normalize(p.TakeProfitLimit(m, decimal.Zero), m.Spec.Point)
	fields := p.fields()
	fields["sl"], fields["tp"] = slLim.String(), tpLim.String()
	p.env.Logger.Warn(ctx, op+": called", fields)

	modify := false
	switch p.status {
	case domain.StatusUnknown:
		p.env.Logger.Error(ctx, ports.ErrTrackingAnomaly, op+": unknown status, can't close a position", fields)
		return
	case domain.StatusPending:
		modify = p.deleteAnyway(ctx, op, m) != nil
	case domain.StatusOpened:
		modify = true
	}
	if !modify {
		return
	}
	price := p.openPrice
	if p.status == domain.StatusPending {
		price = p.wantedOpenPrice
	}
	req := domain.ModifyRequest{Ticket: p.ticket, OpenPrice: price, StopLoss: slLim, TakeProfit: tpLim, Expiration: p.expiration}
	if err := p.modifyCall(ctx, op, func(ctx context.Context) error { return p.env.Trader.Modify(ctx, req) }); err != nil {
		p.env.Logger.Warn(ctx, op+": modification failed", map[string]interface{}{"ticket": p.ticket, "error": err.Error()})
	}
	p.lastModification = p.env.Now()
}

// CloseHarsh deletes a pending order, or closes an opened one at market
// with a generous slippage, retrying once with a wider one. Failures are
// only logged.
func (p *Position) CloseHarsh(ctx context.Context, m domain.Market) {
	op := "CloseHarsh"
	p.env.Logger.Warn(ctx, op+": called", p.fields())

	doClose := false
	switch p.status {
	case domain.StatusUnknown:
		p.env.Logger.Error(ctx, ports.ErrTrackingAnomaly, op+": unknown status, can't close a position", p.fields())
		return
	case domain.StatusPending:
		doClose = p.deleteAnyway(ctx, op, m) != nil
	case domain.StatusOpened:
		doClose = true
	}
	if !doClose {
		return
	}
	if !p.CanBeClosed(m) {
		p.env.Logger.Warn(ctx, op+": position is inside the freeze window, trying anyway", p.fields())
	}

	price := money.Normalize(m.ClosingPrice(p.dir), m.Spec.Point)
	closeWith := func(slippage int64) error {
		req := domain.CloseRequest{Ticket: p.ticket, Lots: p.volume, Price: price, Slippage: slippage}
		err := p.call(ctx, op, func(ctx context.Context) error { return p.env.Trader.Close(ctx, req) })
		p.env.Logger.Warn(ctx, op+": tried to close", map[string]interface{}{"ticket": p.ticket, "slippage": slippage})
		p.lastModification = p.env.Now()
		return err
	}

	slippage := p.env.Params.ExpectedSlippage
	if slippage < 3 {
		slippage = 3
	}
	err := closeWith(slippage)
	if err == nil || errors.Is(err, ports.ErrBrokerFatal) {
		if err != nil {
			p.env.Logger.Error(ctx, err, op+": close failed", p.fields())
		}
		return
	}

	point := m.Spec.Point
	widest := m.Spec.TickSize.Mul(decimal.NewFromInt(3))
	stops := m.Spec.StopLevel
	if m.Spec.FreezeLevel+1 > stops {
		stops = m.Spec.FreezeLevel + 1
	}
	if d := money.Points(stops, point); d.GreaterThan(widest) {
		widest = d
	}
	wide := money.HalfNormalize(widest.Add(p.expectedSlippage(m)), point)
	if err := closeWith(wide); err != nil {
		p.env.Logger.Warn(ctx, op+": close failed", map[string]interface{}{"ticket": p.ticket, "error": err.Error()})
	}
}
