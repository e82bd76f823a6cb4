package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionRecord is the persisted snapshot of one tracked position.
type PositionRecord struct {
	Ticket        int64           // Venue ticket
	CorrelationID int64           // Local id carried in the order comment
	Symbol        string          // Traded symbol
	Tactic        Tactic          // Managing tactic
	Direction     Direction       // Up or Down
	Kind          OperationKind   // Current operation
	Status        Status          // Lifecycle status at snapshot time
	Volume        decimal.Decimal // Current volume
	OpenPrice     decimal.Decimal // Actual opening price (wanted price while pending)
	ClosePrice    decimal.Decimal // Zero until closed
	StopLoss      decimal.Decimal
	TakeProfit    decimal.Decimal
	TotalProfit   decimal.Decimal // Profit + swap + commission
	OpenTime      time.Time
	CloseTime     time.Time // Zero value until closed
	Predecessor   int64     // 0 when none
	Successor     int64     // 0 when none
	ClosedBy      int64     // 0 when none
	UpdatedAt     time.Time
}

// IsActive checks if the snapshot was taken while the order was live.
func (p *PositionRecord) IsActive() bool {
	return p.Status.IsActive()
}
