// Package papervenue is an in-memory execution venue. It keeps tickets,
// pending orders, stops and history the way a broker terminal does, and
// can be told to fail calls for testing the recovery paths.
package papervenue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/money"
	"tradeKeeper/internal/ports"
)

const (
	commentExpiration   = "expiration"
	commentPartialClose = "partial close"
)

// Config holds the simulated account settings.
type Config struct {
	Spec             domain.SymbolSpec
	Currency         string
	InitialBalance   decimal.Decimal
	Leverage         decimal.Decimal
	StopoutLevel     decimal.Decimal
	StopoutMode      int
	FreeMarginMode   int
	CommissionPerLot decimal.Decimal // charged when an order is filled
	FirstTicket      int64
	Now              func() time.Time
}

// Fault makes the next call of an operation fail with Code. An Executed
// fault lets the call take effect before reporting the error, which is how
// a timed-out but successful request looks from the outside.
type Fault struct {
	Code     domain.ErrorCode
	Executed bool
}

// Venue is a simulated broker for one symbol.
type Venue struct {
	cfg    Config
	source ports.MarketData // optional live price source
	logger ports.Logger

	mu         sync.Mutex
	quote      domain.Quote
	nextTicket int64
	active     map[int64]*domain.VenueOrder
	history    []domain.VenueOrder
	balance    decimal.Decimal
	faults     map[string][]Fault
	readiness  domain.Readiness
	lastError  domain.ErrorCode
	calls      map[string]int
}

// New creates a paper venue. When source is nil the quote is only moved by
// SetQuote.
func New(cfg Config, source ports.MarketData, logger ports.Logger) (*Venue, error) {
	if logger == nil {
		return nil, fmt.Errorf("missing required dependencies for paper venue")
	}
	if cfg.Spec.Symbol == "" || cfg.Spec.Point.Sign() <= 0 || cfg.Spec.TickSize.Sign() <= 0 {
		return nil, fmt.Errorf("paper venue: %w: symbol spec is incomplete", ports.ErrConfigurationError)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Leverage.Sign() <= 0 {
		cfg.Leverage = decimal.NewFromInt(100)
	}
	if cfg.FirstTicket <= 0 {
		cfg.FirstTicket = 1
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Venue{
		cfg:        cfg,
		source:     source,
		logger:     logger,
		nextTicket: cfg.FirstTicket,
		active:     make(map[int64]*domain.VenueOrder),
		balance:    cfg.InitialBalance,
		faults:     make(map[string][]Fault),
		readiness:  domain.Readiness{Connected: true, TradeAllowed: true},
		calls:      make(map[string]int),
	}, nil
}

// SetQuote moves the market and runs triggers, stops and expirations.
func (v *Venue) SetQuote(bid, ask decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.quote = domain.Quote{Bid: bid, Ask: ask, Time: v.cfg.Now()}
	v.process()
}

// Refresh pulls the quote from the price source.
func (v *Venue) Refresh(ctx context.Context) error {
	if v.source == nil {
		return nil
	}
	m, err := v.source.Market(ctx, v.cfg.Spec.Symbol)
	if err != nil {
		return fmt.Errorf("paper venue refresh failed: %w", err)
	}
	v.SetQuote(m.Quote.Bid, m.Quote.Ask)
	return nil
}

// InjectFault queues faults for the next calls of op ("Send", "Modify",
// "Close", "CloseBy" or "Delete").
func (v *Venue) InjectFault(op string, faults ...Fault) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.faults[op] = append(v.faults[op], faults...)
}

// SetReadiness changes the terminal flags.
func (v *Venue) SetReadiness(r domain.Readiness) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.readiness = r
}

// Calls returns how many times op was issued.
func (v *Venue) Calls(op string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls[op]
}

// Expire deletes a pending order as if its expiration passed.
func (v *Venue) Expire(ticket int64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.active[ticket]
	if !ok || o.Kind.IsMarket() {
		return false
	}
	o.Comment = commentExpiration
	v.settle(o, v.quote.Bid)
	return true
}

// Plant puts an order on the venue as if another client placed it.
func (v *Venue) Plant(o domain.VenueOrder) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	o.Ticket = v.newTicket()
	if o.Symbol == "" {
		o.Symbol = v.cfg.Spec.Symbol
	}
	if o.OpenTime.IsZero() {
		o.OpenTime = v.cfg.Now()
	}
	if o.IsSettled() {
		v.history = append(v.history, o)
		return o.Ticket
	}
	v.active[o.Ticket] = &o
	return o.Ticket
}

func (v *Venue) newTicket() int64 {
	t := v.nextTicket
	v.nextTicket++
	return t
}

// begin counts the call and pops its fault, if any.
func (v *Venue) begin(op string) (Fault, bool) {
	v.calls[op]++
	queue := v.faults[op]
	if len(queue) == 0 {
		return Fault{}, false
	}
	f := queue[0]
	v.faults[op] = queue[1:]
	return f, true
}

func (v *Venue) fail(op string, code domain.ErrorCode, format string, args ...interface{}) error {
	v.lastError = code
	return ports.NewVenueError(op, code, fmt.Sprintf(format, args...))
}

// finish applies an executed fault after the call took effect.
func (v *Venue) finish(op string, f Fault, faulty bool) error {
	if !faulty {
		return nil
	}
	return v.fail(op, f.Code, "injected after execution")
}

func (v *Venue) Send(ctx context.Context, req domain.OrderRequest) (int64, error) {
	op := "Send"
	v.mu.Lock()
	defer v.mu.Unlock()

	f, faulty := v.begin(op)
	if faulty && !f.Executed {
		return 0, v.fail(op, f.Code, "injected")
	}
	spec := v.cfg.Spec
	if req.Symbol != spec.Symbol {
		return 0, v.fail(op, domain.CodeUnknownSymbol, "symbol %q", req.Symbol)
	}
	if req.Lots.LessThan(spec.MinLot) || req.Lots.GreaterThan(spec.MaxLot) || !money.Normalize(req.Lots, spec.LotStep).Equal(req.Lots) {
		return 0, v.fail(op, domain.CodeInvalidTradeVolume, "lots %s", req.Lots)
	}

	now := v.cfg.Now()
	o := &domain.VenueOrder{
		Symbol:     req.Symbol,
		Magic:      req.Magic,
		Kind:       req.Kind,
		Lots:       req.Lots,
		OpenPrice:  req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenTime:   now,
		Expiration: req.Expiration,
		Comment:    req.Comment,
	}
	if req.Kind.IsMarket() {
		fill := v.openingPrice(req.Kind.Direction())
		if v.points(fill.Sub(req.Price).Abs()) > req.Slippage {
			return 0, v.fail(op, domain.CodeRequote, "price %s moved to %s", req.Price, fill)
		}
		o.OpenPrice = fill
		o.Expiration = time.Time{}
	} else if err := v.checkPendingPrice(op, req.Kind, req.Price); err != nil {
		return 0, err
	}
	if err := v.checkStops(op, o.Kind, o.OpenPrice, o.StopLoss, o.TakeProfit); err != nil {
		return 0, err
	}
	if req.Kind.IsMarket() {
		if v.freeMargin().Sub(v.marginFor(req.Lots)).Sign() < 0 {
			return 0, v.fail(op, domain.CodeNotEnoughMoney, "lots %s", req.Lots)
		}
		o.Commission = v.cfg.CommissionPerLot.Mul(req.Lots).Neg()
	}

	o.Ticket = v.newTicket()
	v.active[o.Ticket] = o
	v.logger.Info(ctx, "PaperVenue: order placed", map[string]interface{}{
		"ticket": o.Ticket, "kind": o.Kind.String(), "lots": o.Lots.String(), "price": o.OpenPrice.String(),
	})
	if err := v.finish(op, f, faulty); err != nil {
		return 0, err
	}
	return o.Ticket, nil
}

func (v *Venue) Modify(ctx context.Context, req domain.ModifyRequest) error {
	op := "Modify"
	v.mu.Lock()
	defer v.mu.Unlock()

	f, faulty := v.begin(op)
	if faulty && !f.Executed {
		return v.fail(op, f.Code, "injected")
	}
	o, ok := v.active[req.Ticket]
	if !ok {
		return v.fail(op, domain.CodeInvalidTicket, "ticket %d", req.Ticket)
	}
	price := o.OpenPrice
	if !o.Kind.IsMarket() {
		price = req.OpenPrice
		if err := v.checkPendingPrice(op, o.Kind, price); err != nil {
			return err
		}
	}
	same := o.StopLoss.Equal(req.StopLoss) && o.TakeProfit.Equal(req.TakeProfit) && o.OpenPrice.Equal(price)
	if !o.Kind.IsMarket() {
		same = same && o.Expiration.Equal(req.Expiration)
	}
	if same {
		return v.fail(op, domain.CodeNoResult, "nothing changed")
	}
	if err := v.checkStops(op, o.Kind, price, req.StopLoss, req.TakeProfit); err != nil {
		return err
	}
	o.StopLoss, o.TakeProfit = req.StopLoss, req.TakeProfit
	if !o.Kind.IsMarket() {
		o.OpenPrice = price
		o.Expiration = req.Expiration
	}
	v.logger.Debug(ctx, "PaperVenue: order modified", map[string]interface{}{
		"ticket": o.Ticket, "sl": o.StopLoss.String(), "tp": o.TakeProfit.String(),
	})
	return v.finish(op, f, faulty)
}

func (v *Venue) Close(ctx context.Context, req domain.CloseRequest) error {
	op := "Close"
	v.mu.Lock()
	defer v.mu.Unlock()

	f, faulty := v.begin(op)
	if faulty && !f.Executed {
		return v.fail(op, f.Code, "injected")
	}
	o, ok := v.active[req.Ticket]
	if !ok || !o.Kind.IsMarket() {
		return v.fail(op, domain.CodeInvalidTicket, "ticket %d", req.Ticket)
	}
	if req.Lots.Sign() <= 0 || req.Lots.GreaterThan(o.Lots) {
		return v.fail(op, domain.CodeInvalidTradeVolume, "lots %s of %s", req.Lots, o.Lots)
	}
	price := v.closingPrice(o.Kind.Direction())
	if v.points(price.Sub(req.Price).Abs()) > req.Slippage {
		return v.fail(op, domain.CodeRequote, "price %s moved to %s", req.Price, price)
	}

	if req.Lots.LessThan(o.Lots) {
		v.split(o, req.Lots, commentPartialClose)
	}
	v.settle(o, price)
	v.logger.Info(ctx, "PaperVenue: order closed", map[string]interface{}{
		"ticket": o.Ticket, "lots": o.Lots.String(), "price": price.String(),
	})
	return v.finish(op, f, faulty)
}

func (v *Venue) CloseBy(ctx context.Context, ticket, opposite int64) error {
	op := "CloseBy"
	v.mu.Lock()
	defer v.mu.Unlock()

	f, faulty := v.begin(op)
	if faulty && !f.Executed {
		return v.fail(op, f.Code, "injected")
	}
	a, okA := v.active[ticket]
	b, okB := v.active[opposite]
	if !okA || !okB || !a.Kind.IsMarket() || !b.Kind.IsMarket() {
		return v.fail(op, domain.CodeInvalidTicket, "tickets %d and %d", ticket, opposite)
	}
	if a.Kind.Direction() == b.Kind.Direction() {
		return v.fail(op, domain.CodeInvalidTradeParameters, "tickets %d and %d have the same direction", ticket, opposite)
	}

	lots := decimal.Min(a.Lots, b.Lots)
	for _, pair := range [][2]*domain.VenueOrder{{a, b}, {b, a}} {
		o, other := pair[0], pair[1]
		comment := fmt.Sprintf("close hedge by #%d", other.Ticket)
		if o.Lots.GreaterThan(lots) {
			v.split(o, lots, comment)
		} else {
			o.Comment = comment
		}
		v.settle(o, v.closingPrice(o.Kind.Direction()))
	}
	v.logger.Info(ctx, "PaperVenue: orders closed by each other", map[string]interface{}{
		"ticket": ticket, "opposite": opposite, "lots": lots.String(),
	})
	return v.finish(op, f, faulty)
}

func (v *Venue) Delete(ctx context.Context, ticket int64) error {
	op := "Delete"
	v.mu.Lock()
	defer v.mu.Unlock()

	f, faulty := v.begin(op)
	if faulty && !f.Executed {
		return v.fail(op, f.Code, "injected")
	}
	o, ok := v.active[ticket]
	if !ok || o.Kind.IsMarket() {
		return v.fail(op, domain.CodeInvalidTicket, "ticket %d", ticket)
	}
	v.settle(o, v.closingPrice(o.Kind.Direction()))
	v.logger.Info(ctx, "PaperVenue: order deleted", map[string]interface{}{"ticket": ticket})
	return v.finish(op, f, faulty)
}

func (v *Venue) FreeMarginCheck(ctx context.Context, symbol string, kind domain.OperationKind, lots decimal.Decimal) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if symbol != v.cfg.Spec.Symbol {
		return decimal.Zero, v.fail("FreeMarginCheck", domain.CodeUnknownSymbol, "symbol %q", symbol)
	}
	return v.freeMargin().Sub(v.marginFor(lots)), nil
}

// ActiveOrders lists open and pending orders by ticket. ClosePrice and
// Profit of opened orders follow the market.
func (v *Venue) ActiveOrders(ctx context.Context) ([]domain.VenueOrder, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.VenueOrder, 0, len(v.active))
	for _, o := range v.active {
		c := *o
		c.ClosePrice = v.closingPrice(o.Kind.Direction())
		if o.Kind.IsMarket() {
			c.Profit = v.profit(o, c.ClosePrice)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

// HistoryOrders lists closed and deleted orders in settlement order.
func (v *Venue) HistoryOrders(ctx context.Context) ([]domain.VenueOrder, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.VenueOrder, len(v.history))
	copy(out, v.history)
	return out, nil
}

func (v *Venue) Market(ctx context.Context, symbol string) (domain.Market, error) {
	if symbol != v.cfg.Spec.Symbol {
		return domain.Market{}, fmt.Errorf("paper venue: %w: symbol %q", ports.ErrInvalidRequest, symbol)
	}
	if err := v.Refresh(ctx); err != nil {
		return domain.Market{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return domain.Market{Spec: v.cfg.Spec, Quote: v.quote}, nil
}

func (v *Venue) Account(ctx context.Context) (domain.Account, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	equity := v.equity()
	margin := v.usedMargin()
	return domain.Account{
		Currency:       v.cfg.Currency,
		Balance:        v.balance,
		Equity:         equity,
		Margin:         margin,
		FreeMargin:     equity.Sub(margin),
		Leverage:       v.cfg.Leverage,
		StopoutLevel:   v.cfg.StopoutLevel,
		StopoutMode:    v.cfg.StopoutMode,
		FreeMarginMode: v.cfg.FreeMarginMode,
	}, nil
}

func (v *Venue) Readiness(ctx context.Context) (domain.Readiness, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.readiness, nil
}

func (v *Venue) ClearError(ctx context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastError = domain.CodeNone
}

// LastError returns the code of the last failed call since ClearError.
func (v *Venue) LastError() domain.ErrorCode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastError
}
