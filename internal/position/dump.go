package position

import (
	"time"

	"tradeKeeper/internal/domain"
)

// SqueezeSnapshot is the state of one squeezing mode.
type SqueezeSnapshot struct {
	Since time.Time `yaml:"since"`
	Tick  int64     `yaml:"tick"`
	Price string    `yaml:"price"`
}

// Snapshot is the dump view of a position. Successor is filled in by the
// caller walking the lineage.
type Snapshot struct {
	Ticket        int64            `yaml:"ticket"`
	CorrelationID int64            `yaml:"correlation_id,omitempty"`
	Tactic        string           `yaml:"tactic"`
	Direction     string           `yaml:"direction"`
	Kind          string           `yaml:"kind"`
	Status        string           `yaml:"status"`
	Volume        string           `yaml:"volume"`
	OpenPrice     string           `yaml:"open_price"`
	ClosePrice    string           `yaml:"close_price,omitempty"`
	StopLoss      string           `yaml:"sl"`
	TakeProfit    string           `yaml:"tp"`
	OpenTime      time.Time        `yaml:"open_time,omitempty"`
	CloseTime     time.Time        `yaml:"close_time,omitempty"`
	TotalProfit   string           `yaml:"total_profit"`
	BreakEven     string           `yaml:"break_even"`
	ProfitStatus  string           `yaml:"profit_status"`
	LiveStatus    string           `yaml:"live_profit_status"`
	MaxLossOpen   string           `yaml:"max_loss_from_open"`
	MaxLossNow    string           `yaml:"max_loss_from_current"`
	SpreadCosts   string           `yaml:"spread_costs"`
	SlippageCosts string           `yaml:"slippage_costs"`
	InitialRisk   string           `yaml:"initial_risk"`
	ClosedBy      int64            `yaml:"closed_by,omitempty"`
	History       []Modification   `yaml:"history,omitempty"`
	Loose         *SqueezeSnapshot `yaml:"loose_squeeze,omitempty"`
	Tight         *SqueezeSnapshot `yaml:"tight_squeeze,omitempty"`
	Successor     *Snapshot        `yaml:"successor,omitempty"`
}

func squeezeSnapshot(s squeezeState) *SqueezeSnapshot {
	if !s.active {
		return nil
	}
	return &SqueezeSnapshot{Since: s.since, Tick: s.tick, Price: s.price.String()}
}

// Snapshot returns the dump view of the position without its successor.
func (p *Position) Snapshot() Snapshot {
	s := Snapshot{
		Ticket:        p.ticket,
		CorrelationID: p.correlationID,
		Tactic:        p.tactic.String(),
		Direction:     p.dir.String(),
		Kind:          p.current.String(),
		Status:        p.status.String(),
		Volume:        p.volume.String(),
		OpenPrice:     p.openPrice.String(),
		StopLoss:      p.stopLoss.String(),
		TakeProfit:    p.takeProfit.String(),
		OpenTime:      p.openTime,
		CloseTime:     p.closeTime,
		TotalProfit:   p.totalProfit.String(),
		BreakEven:     p.breakEven.String(),
		ProfitStatus:  p.profitStatus.String(),
		LiveStatus:    p.liveProfitStatus.String(),
		MaxLossOpen:   p.maxLossFromOpen.StringFixed(2),
		MaxLossNow:    p.maxLossFromCurrent.StringFixed(2),
		SpreadCosts:   p.SpreadCosts().StringFixed(2),
		SlippageCosts: p.SlippageCosts().StringFixed(2),
		InitialRisk:   p.initialRisk.StringFixed(2),
		ClosedBy:      p.closedBy,
		History:       p.History(),
		Loose:         squeezeSnapshot(p.loose),
		Tight:         squeezeSnapshot(p.tight),
	}
	if p.status == domain.StatusClosed {
		s.ClosePrice = p.closePrice.String()
	}
	return s
}
