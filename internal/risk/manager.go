package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/money"
	"tradeKeeper/internal/ports"
)

// RiskConfig holds configuration for margin and sizing.
type RiskConfig struct {
	StopoutFold        decimal.Decimal // extra equity fraction kept above the stopout level
	MarginCallFold     decimal.Decimal // free margin fraction kept above the current margin
	NewLotsMultiple    decimal.Decimal
	MoneyManagement    domain.MoneyManagement
	CapitalUnit        decimal.Decimal // ConstantRisk budget
	RiskFraction       decimal.Decimal // PercentageRisk budget
	ExpectedSlippage   int64           // points
	DepositCurrency    domain.CurrencyRelation
	CorrectionExponent int
}

// Exposure is what one active or unresolved position contributes to the margin.
type Exposure struct {
	Volume             decimal.Decimal
	MaxLossFromOpen    decimal.Decimal
	MaxLossFromCurrent decimal.Decimal
}

// Margin holds the aggregates of the last UpdateMargin.
type Margin struct {
	Account          domain.Account
	Stopout          decimal.Decimal
	Free             decimal.Decimal // free margin less the projected losses
	Usable           decimal.Decimal // free above the stopout floor
	Remaining        decimal.Decimal // free above the current margin
	NewLotMargin     decimal.Decimal
	CurrentMargin    decimal.Decimal
	TotalVolume      decimal.Decimal
	AllowedNewLots   decimal.Decimal
	StopoutReached   bool
	MarginCallNeared bool
	UpdatedAt        time.Time
}

// FreeMarginChecker asks the venue how much free margin would remain after
// opening lots.
type FreeMarginChecker interface {
	FreeMarginCheck(ctx context.Context, symbol string, kind domain.OperationKind, lots decimal.Decimal) (decimal.Decimal, error)
}

// RiskManager computes margin headroom and sizes new positions.
type RiskManager struct {
	config RiskConfig
	logger ports.Logger
	now    func() time.Time

	mu               sync.Mutex
	margin           Margin
	updated          bool
	stopoutWarned    bool
	marginCallWarned bool
}

// NewRiskManager creates a new risk manager instance
func NewRiskManager(config RiskConfig, logger ports.Logger) (*RiskManager, error) {
	if logger == nil {
		return nil, fmt.Errorf("missing required dependencies for risk manager")
	}
	if config.NewLotsMultiple.Sign() <= 0 {
		config.NewLotsMultiple = decimal.RequireFromString("2.1")
	}
	if config.CorrectionExponent <= 0 {
		config.CorrectionExponent = 2
	}
	return &RiskManager{config: config, logger: logger, now: time.Now}, nil
}

// Correction is the factor that inflates the tick value for adverse moves
// of the conversion rate. ratio is the relative adverse move.
func Correction(rel domain.CurrencyRelation, exponent int, ratio decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	switch rel {
	case domain.DepositIsBase:
		return one.Add(ratio)
	case domain.DepositIsOther:
		base := one.Add(ratio)
		out := one
		for i := 0; i < exponent; i++ {
			out = out.Mul(base)
		}
		return out
	default:
		return one
	}
}

// UpdateMargin recomputes the margin aggregates from the account, the
// instrument and the exposure of every tracked position.
func (r *RiskManager) UpdateMargin(ctx context.Context, acc domain.Account, m domain.Market, exposures []Exposure) Margin {
	op := "UpdateMargin"
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := r.config
	hundred := decimal.NewFromInt(100)
	var stopout decimal.Decimal
	if acc.StopoutMode == 0 {
		stopout = cfg.StopoutFold.Add(acc.StopoutLevel.Div(hundred)).Mul(acc.Equity)
	} else {
		stopout = cfg.StopoutFold.Mul(acc.Equity).Add(acc.StopoutLevel)
	}

	free := acc.FreeMargin
	total := decimal.Zero
	for _, e := range exposures {
		if acc.FreeMarginMode == 0 || acc.FreeMarginMode == 2 {
			free = free.Sub(e.MaxLossFromOpen)
		} else {
			free = free.Sub(e.MaxLossFromCurrent)
		}
		total = total.Add(e.Volume)
	}

	fields := map[string]interface{}{
		"free":    free.StringFixed(2),
		"stopout": stopout.StringFixed(2),
		"equity":  acc.Equity.StringFixed(2),
	}
	stopoutReached := free.LessThanOrEqual(stopout)
	if stopoutReached && !r.stopoutWarned {
		r.logger.Warn(ctx, op+": free margin reached the stopout floor", fields)
	}
	r.stopoutWarned = stopoutReached
	usable := money.NonNegative(free.Sub(stopout))

	spec := m.Spec
	leverage := acc.Leverage
	if leverage.Sign() <= 0 {
		leverage = decimal.NewFromInt(1)
	}
	mcNew := decimal.Max(spec.MarginInit, spec.MarginMaintenance).
		Add(decimal.Max(m.Quote.Mid().Mul(spec.LotSize).Div(leverage), spec.MarginRequired))
	mcCur := spec.MarginMaintenance
	if spec.LotSize.Sign() > 0 && spec.MarginHedged.GreaterThan(spec.LotSize) {
		scale := spec.MarginHedged.Div(spec.LotSize)
		mcNew = mcNew.Mul(scale)
		mcCur = mcCur.Mul(scale)
	}
	mcCur = mcCur.Mul(total)

	one := decimal.NewFromInt(1)
	var remaining decimal.Decimal
	marginCall := mcCur.GreaterThanOrEqual(one.Sub(cfg.MarginCallFold).Mul(free))
	if marginCall {
		if !r.marginCallWarned {
			fields["current_margin"] = mcCur.StringFixed(2)
			r.logger.Warn(ctx, op+": margin call is near", fields)
		}
	} else {
		remaining = free.Sub(mcCur)
	}
	r.marginCallWarned = marginCall

	fm := money.NonNegative(decimal.Min(remaining, usable))
	allowed := decimal.Zero
	if mcNew.Sign() > 0 {
		allowed = decimal.Min(fm.Div(cfg.NewLotsMultiple.Mul(mcNew)), spec.MaxLot)
	}

	r.margin = Margin{
		Account:          acc,
		Stopout:          stopout,
		Free:             free,
		Usable:           usable,
		Remaining:        remaining,
		NewLotMargin:     mcNew,
		CurrentMargin:    mcCur,
		TotalVolume:      total,
		AllowedNewLots:   allowed,
		StopoutReached:   stopoutReached,
		MarginCallNeared: marginCall,
		UpdatedAt:        r.now(),
	}
	r.updated = true
	return r.margin
}

// GetStats returns the aggregates of the last UpdateMargin.
func (r *RiskManager) GetStats() Margin {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.margin
}

// PositionSize returns the volume to open at price with the stop at sl.
// Zero means "do not open".
func (r *RiskManager) PositionSize(ctx context.Context, checker FreeMarginChecker, m domain.Market, dir domain.Direction, price, sl decimal.Decimal) (decimal.Decimal, error) {
	op := "PositionSize"
	r.mu.Lock()
	mg, updated := r.margin, r.updated
	r.mu.Unlock()
	if !updated {
		return decimal.Zero, fmt.Errorf("%s failed: %w: margin was never computed", op, ports.ErrInvalidRequest)
	}

	cfg := r.config
	spec := m.Spec
	if money.Compare(price, sl, spec.Point.Div(decimal.NewFromInt(2))) == 0 {
		return decimal.Zero, nil
	}
	riskDist := price.Sub(sl).Abs().Add(money.Points(2*cfg.ExpectedSlippage, spec.Point))

	var budget decimal.Decimal
	switch cfg.MoneyManagement {
	case domain.PercentageRisk:
		budget = decimal.Min(mg.Account.Equity, mg.Account.Balance).Mul(cfg.RiskFraction)
		if budget.GreaterThan(mg.Free) {
			budget = mg.Free
		}
	default:
		budget = cfg.CapitalUnit
		if budget.GreaterThan(mg.Free) {
			r.logger.Debug(ctx, op+": capital unit exceeds free margin", map[string]interface{}{
				"capital_unit": budget.String(), "free": mg.Free.StringFixed(2),
			})
			budget = decimal.Zero
		}
	}
	if budget.Sign() <= 0 || spec.TickSize.Sign() <= 0 {
		return decimal.Zero, nil
	}

	mid := m.Quote.Mid()
	corr := decimal.NewFromInt(1)
	if mid.Sign() > 0 {
		corr = Correction(cfg.DepositCurrency, cfg.CorrectionExponent, riskDist.Div(mid))
	}
	perLot := riskDist.Div(spec.TickSize).Mul(spec.TickValue).Mul(corr)
	if perLot.Sign() <= 0 {
		return decimal.Zero, nil
	}
	lots := budget.Div(perLot)
	if lots.GreaterThan(mg.AllowedNewLots) {
		lots = mg.AllowedNewLots
	}
	lots = money.Floor(lots, spec.LotStep)
	if lots.LessThan(spec.MinLot) {
		return decimal.Zero, nil
	}

	after, err := checker.FreeMarginCheck(ctx, spec.Symbol, domain.MarketKindFor(dir), lots)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s failed: %w", op, err)
	}
	delta := mg.Account.FreeMargin.Sub(after)
	if delta.GreaterThan(mg.Free) && delta.Sign() > 0 {
		scaled := lots.Mul(decimal.RequireFromString("0.9")).Mul(mg.Free).Div(delta)
		r.logger.Warn(ctx, op+": venue margin check shrank the volume", map[string]interface{}{
			"lots": lots.String(), "scaled": scaled.String(), "required": delta.StringFixed(2),
		})
		lots = money.Floor(scaled, spec.LotStep)
		if lots.LessThan(spec.MinLot) {
			return decimal.Zero, nil
		}
	}
	return lots, nil
}
