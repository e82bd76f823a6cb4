// Package position models one venue order through its whole life: the
// status machine, the field rules applied on every observation, the cost
// and risk figures derived from it, and the trading calls that act on it.
package position

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradeKeeper/internal/broker"
	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/money"
	"tradeKeeper/internal/ports"
)

// Broker runs a trading call under the recovery policy.
type Broker interface {
	Do(ctx context.Context, op string, call func(ctx context.Context) error) (broker.Result, error)
	DoModify(ctx context.Context, op string, call func(ctx context.Context) error) (broker.Result, error)
}

// Params are the engine-wide settings positions consult.
type Params struct {
	Symbol             string
	Magics             map[domain.Tactic]int64
	MaxStopLossLimit   decimal.Decimal // fraction of price an Up SL may not go below
	MaxTakeProfitLimit decimal.Decimal // multiple of price an Up TP may not go above
	ExpectedSlippage   int64           // points
	DepositCurrency    domain.CurrencyRelation
	CorrectionExponent int
	Leverage           decimal.Decimal

	LooseSqueezeMinTime time.Duration
	LooseSqueezeMaxTime time.Duration
	TightSqueezeMaxTime time.Duration
	MinSqueezeSpeed     decimal.Decimal // price units per minute
}

// MagicFor returns the magic number of a tactic.
func (p Params) MagicFor(t domain.Tactic) int64 {
	return p.Magics[t]
}

// TacticForMagic maps a magic number back to its tactic.
func (p Params) TacticForMagic(magic int64) (domain.Tactic, bool) {
	for t, m := range p.Magics {
		if m == magic {
			return t, true
		}
	}
	return domain.TacticAggressive, false
}

// IsEngineMagic reports whether magic belongs to one of the tactics.
func (p Params) IsEngineMagic(magic int64) bool {
	_, ok := p.TacticForMagic(magic)
	return ok
}

// Env carries the collaborators every position needs.
type Env struct {
	Trader ports.Trader
	Broker Broker
	Logger ports.Logger
	Params Params
	Now    func() time.Time
	Tick   func() int64
}

// Validate checks that the required collaborators are set.
func (e *Env) Validate() error {
	if e == nil || e.Trader == nil || e.Broker == nil || e.Logger == nil {
		return fmt.Errorf("missing required dependencies for position env")
	}
	if e.Params.Symbol == "" {
		return fmt.Errorf("position env: symbol is required")
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	if e.Tick == nil {
		e.Tick = func() int64 { return 0 }
	}
	if e.Params.Leverage.Sign() <= 0 {
		e.Params.Leverage = decimal.NewFromInt(1)
	}
	if e.Params.CorrectionExponent <= 0 {
		e.Params.CorrectionExponent = 2
	}
	return nil
}

// Modification is one accepted change of the levels of an opened position.
type Modification struct {
	Tick       int64           `yaml:"tick"`
	Time       time.Time       `yaml:"time"`
	StopLoss   decimal.Decimal `yaml:"sl"`
	TakeProfit decimal.Decimal `yaml:"tp"`
}

type squeezeState struct {
	active bool
	since  time.Time
	tick   int64
	price  decimal.Decimal
}

// Position is one tracked order. It is not safe for concurrent use; the
// manager serializes access.
type Position struct {
	env *Env

	ticket        int64
	correlationID int64
	symbol        string
	magic         int64
	tactic        domain.Tactic
	dir           domain.Direction
	kind          domain.OperationKind // requested
	current       domain.OperationKind // as last observed
	status        domain.Status

	wantedOpenPrice        decimal.Decimal
	wantedStopLoss         decimal.Decimal
	wantedTakeProfit       decimal.Decimal
	allowedOpeningSlippage int64
	expiration             time.Time
	comment                string
	createdAt              time.Time
	createdTick            int64

	predecessor int64
	successor   int64
	closedBy    int64

	volume      decimal.Decimal
	openPrice   decimal.Decimal
	closePrice  decimal.Decimal
	stopLoss    decimal.Decimal
	takeProfit  decimal.Decimal
	openTime    time.Time
	closeTime   time.Time
	commission  decimal.Decimal
	swap        decimal.Decimal
	profit      decimal.Decimal
	totalProfit decimal.Decimal
	history     []Modification

	wantedClosePrice       decimal.Decimal
	allowedClosingSlippage int64
	openingSlippage        int64
	closingSlippage        int64
	lastModification       time.Time
	everUpdated            bool
	lastUpdatedTick        int64

	breakEven          decimal.Decimal
	profitStatus       domain.ProfitStatus
	liveProfitStatus   domain.ProfitStatus
	low, high          decimal.Decimal
	newLow, newHigh    bool
	pips, potentialPip int64
	maxLossFromOpen    decimal.Decimal
	maxLossFromCurrent decimal.Decimal
	pricePerProfitUnit decimal.Decimal
	costsPrice         decimal.Decimal // swap and commission in price units, floored to the point

	openingSpreadCost   decimal.Decimal
	closingSpreadCost   decimal.Decimal
	openingSlippageCost decimal.Decimal
	closingSlippageCost decimal.Decimal
	initialRisk         decimal.Decimal
	notional            decimal.Decimal

	loose squeezeState
	tight squeezeState
}

func (p *Position) Ticket() int64                         { return p.ticket }
func (p *Position) CorrelationID() int64                  { return p.correlationID }
func (p *Position) Symbol() string                        { return p.symbol }
func (p *Position) Magic() int64                          { return p.magic }
func (p *Position) Tactic() domain.Tactic                 { return p.tactic }
func (p *Position) Direction() domain.Direction           { return p.dir }
func (p *Position) Kind() domain.OperationKind            { return p.kind }
func (p *Position) Current() domain.OperationKind         { return p.current }
func (p *Position) Status() domain.Status                 { return p.status }
func (p *Position) Volume() decimal.Decimal               { return p.volume }
func (p *Position) OpenPrice() decimal.Decimal            { return p.openPrice }
func (p *Position) ClosePrice() decimal.Decimal           { return p.closePrice }
func (p *Position) StopLoss() decimal.Decimal             { return p.stopLoss }
func (p *Position) TakeProfit() decimal.Decimal           { return p.takeProfit }
func (p *Position) OpenTime() time.Time                   { return p.openTime }
func (p *Position) CloseTime() time.Time                  { return p.closeTime }
func (p *Position) Expiration() time.Time                 { return p.expiration }
func (p *Position) Comment() string                       { return p.comment }
func (p *Position) CreatedAt() time.Time                  { return p.createdAt }
func (p *Position) Predecessor() int64                    { return p.predecessor }
func (p *Position) Successor() int64                      { return p.successor }
func (p *Position) ClosedBy() int64                       { return p.closedBy }
func (p *Position) TotalProfit() decimal.Decimal          { return p.totalProfit }
func (p *Position) BreakEven() decimal.Decimal            { return p.breakEven }
func (p *Position) ProfitStatus() domain.ProfitStatus     { return p.profitStatus }
func (p *Position) LiveProfitStatus() domain.ProfitStatus { return p.liveProfitStatus }
func (p *Position) MaxLossFromOpen() decimal.Decimal      { return p.maxLossFromOpen }
func (p *Position) MaxLossFromCurrent() decimal.Decimal   { return p.maxLossFromCurrent }
func (p *Position) InitialRisk() decimal.Decimal          { return p.initialRisk }
func (p *Position) Notional() decimal.Decimal             { return p.notional }
func (p *Position) LastModification() time.Time           { return p.lastModification }
func (p *Position) OpeningSlippage() int64                { return p.openingSlippage }
func (p *Position) ClosingSlippage() int64                { return p.closingSlippage }
func (p *Position) Low() decimal.Decimal                  { return p.low }
func (p *Position) High() decimal.Decimal                 { return p.high }
func (p *Position) NewLow() bool                          { return p.newLow }
func (p *Position) NewHigh() bool                         { return p.newHigh }
func (p *Position) Pips() int64                           { return p.pips }
func (p *Position) PotentialPips() int64                  { return p.potentialPip }

// History returns a copy of the accepted modifications.
func (p *Position) History() []Modification {
	out := make([]Modification, len(p.history))
	copy(out, p.history)
	return out
}

// SpreadCosts is the spread paid at opening and closing, as a negative amount.
func (p *Position) SpreadCosts() decimal.Decimal { return p.openingSpreadCost.Add(p.closingSpreadCost) }

// SlippageCosts is the slippage gained (positive) or lost (negative).
func (p *Position) SlippageCosts() decimal.Decimal { return p.openingSlippageCost.Add(p.closingSlippageCost) }

// IsActive reports whether the position is Pending or Opened.
func (p *Position) IsActive() bool { return p.status.IsActive() }

// SetCorrelationID binds the local id carried by the order comment.
func (p *Position) SetCorrelationID(id int64) {
	p.correlationID = id
}

// SetSuccessor links the position carrying the residual volume.
func (p *Position) SetSuccessor(ticket int64) {
	p.successor = ticket
}

// Record returns the persisted snapshot.
func (p *Position) Record() *domain.PositionRecord {
	return &domain.PositionRecord{
		Ticket:        p.ticket,
		CorrelationID: p.correlationID,
		Symbol:        p.symbol,
		Tactic:        p.tactic,
		Direction:     p.dir,
		Kind:          p.current,
		Status:        p.status,
		Volume:        p.volume,
		OpenPrice:     p.openPrice,
		ClosePrice:    p.closePrice,
		StopLoss:      p.stopLoss,
		TakeProfit:    p.takeProfit,
		TotalProfit:   p.totalProfit,
		OpenTime:      p.openTime,
		CloseTime:     p.closeTime,
		Predecessor:   p.predecessor,
		Successor:     p.successor,
		ClosedBy:      p.closedBy,
		UpdatedAt:     p.env.Now(),
	}
}

// priceTol is the tolerance for price comparisons: half a point.
func priceTol(m domain.Market) decimal.Decimal {
	return m.Spec.Point.Div(decimal.NewFromInt(2))
}

func cmpPrice(m domain.Market, a, b decimal.Decimal) int {
	return money.Compare(a, b, priceTol(m))
}

func cmpLots(m domain.Market, a, b decimal.Decimal) int {
	tol := m.Spec.LotStep.Div(decimal.NewFromInt(2))
	if tol.Sign() <= 0 {
		tol = money.Epsilon
	}
	return money.Compare(a, b, tol)
}

// expectedSlippage is the pessimistic slippage in price units.
func (p *Position) expectedSlippage(m domain.Market) decimal.Decimal { return money.Points(p.env.Params.ExpectedSlippage, m.Spec.Point) }

func (p *Position) fields() map[string]interface{} {
	return map[string]interface{}{
		"ticket": p.ticket,
		"status": p.status.String(),
		"kind":   p.current.String(),
	}
}
