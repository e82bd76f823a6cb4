package domain

import (
	"fmt"
	"strings"
)

// Direction is the side of the market a position profits from.
type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "Up"
	}
	return "Down"
}

// OperationKind is the venue order type.
type OperationKind int

const (
	OpBuy OperationKind = iota
	OpSell
	OpBuyLimit
	OpSellLimit
	OpBuyStop
	OpSellStop
)

var operationNames = map[OperationKind]string{
	OpBuy:       "BUY",
	OpSell:      "SELL",
	OpBuyLimit:  "BUY_LIMIT",
	OpSellLimit: "SELL_LIMIT",
	OpBuyStop:   "BUY_STOP",
	OpSellStop:  "SELL_STOP",
}

func (k OperationKind) String() string {
	if s, ok := operationNames[k]; ok {
		return s
	}
	return fmt.Sprintf("OP(%d)", int(k))
}

// Direction returns Up for the buy family and Down for the sell family.
func (k OperationKind) Direction() Direction {
	switch k {
	case OpSell, OpSellLimit, OpSellStop:
		return Down
	default:
		return Up
	}
}

// IsMarket reports whether the kind executes immediately.
func (k OperationKind) IsMarket() bool {
	return k == OpBuy || k == OpSell
}

// MarketKind is the market order a pending kind turns into once triggered.
func (k OperationKind) MarketKind() OperationKind {
	if k.Direction() == Up {
		return OpBuy
	}
	return OpSell
}

// MarketKindFor returns the market operation for a direction.
func MarketKindFor(d Direction) OperationKind {
	if d == Up {
		return OpBuy
	}
	return OpSell
}

// Status is the lifecycle state of a tracked position.
type Status int

const (
	StatusPending Status = iota
	StatusOpened
	StatusClosed
	StatusDeleted
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusOpened:
		return "Opened"
	case StatusClosed:
		return "Closed"
	case StatusDeleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}

// IsActive reports whether the status belongs to a live order.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusOpened
}

// IsTerminal reports whether the status can never change again.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusDeleted
}

// ActiveStatusFor is the status of an active venue order of the given kind.
func ActiveStatusFor(k OperationKind) Status {
	if k.IsMarket() {
		return StatusOpened
	}
	return StatusPending
}

// HistoryStatusFor is the status of a settled venue order of the given kind.
func HistoryStatusFor(k OperationKind) Status {
	if k.IsMarket() {
		return StatusClosed
	}
	return StatusDeleted
}

// Tactic is one of the managed ways of opening and leading a position.
type Tactic int

const (
	TacticAggressive Tactic = iota
	TacticStrict
	TacticPeak
)

// Tactics lists every tactic in view order.
var Tactics = []Tactic{TacticAggressive, TacticStrict, TacticPeak}

func (t Tactic) String() string {
	switch t {
	case TacticStrict:
		return "Strict"
	case TacticPeak:
		return "Peak"
	default:
		return "Aggressive"
	}
}

// ParseTactic converts a name to a Tactic.
func ParseTactic(s string) (Tactic, error) {
	switch strings.ToLower(s) {
	case "aggressive":
		return TacticAggressive, nil
	case "strict":
		return TacticStrict, nil
	case "peak":
		return TacticPeak, nil
	}
	return TacticAggressive, fmt.Errorf("unknown tactic %q", s)
}

// ProfitStatus orders how well protected a position is.
type ProfitStatus int

const (
	Losing ProfitStatus = iota
	BreakEven
	StrongBreakEven
	Prospective
	Profitable
)

func (p ProfitStatus) String() string {
	switch p {
	case BreakEven:
		return "BreakEven"
	case StrongBreakEven:
		return "StrongBreakEven"
	case Prospective:
		return "Prospective"
	case Profitable:
		return "Profitable"
	default:
		return "Losing"
	}
}

// CurrencyRelation says how the deposit currency relates to the traded pair.
type CurrencyRelation int

const (
	DepositIsQuote CurrencyRelation = iota
	DepositIsBase
	DepositIsOther
)

// ParseCurrencyRelation converts a config value to a CurrencyRelation.
func ParseCurrencyRelation(s string) (CurrencyRelation, error) {
	switch strings.ToLower(s) {
	case "quote":
		return DepositIsQuote, nil
	case "base":
		return DepositIsBase, nil
	case "deposit", "other":
		return DepositIsOther, nil
	}
	return DepositIsQuote, fmt.Errorf("unknown deposit currency relation %q", s)
}

// MoneyManagement selects how the risk budget of a new position is computed.
type MoneyManagement int

const (
	ConstantRisk MoneyManagement = iota
	PercentageRisk
)

// ParseMoneyManagement converts a config value to a MoneyManagement.
func ParseMoneyManagement(s string) (MoneyManagement, error) {
	switch strings.ToLower(s) {
	case "constant":
		return ConstantRisk, nil
	case "percentage":
		return PercentageRisk, nil
	}
	return ConstantRisk, fmt.Errorf("unknown money management %q", s)
}
