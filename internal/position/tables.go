package position

import "tradeKeeper/internal/domain"

// Field identifies one attribute of a venue order.
type Field uint32

const (
	FieldClosePrice Field = 1 << iota
	FieldCloseTime
	FieldComment
	FieldCommission
	FieldExpiration
	FieldLots
	FieldMagic
	FieldOpenPrice
	FieldOpenTime
	FieldProfit
	FieldStopLoss
	FieldSwap
	FieldSymbol
	FieldTakeProfit
	FieldTicket
	FieldType

	allFields = FieldType<<1 - 1
)

type transition struct {
	from, to domain.Status
}

// legalTransitions lists the observations a position may go through.
// Identity pairs are re-observations; Unknown is never observed as such.
var legalTransitions = map[transition]bool{
	{domain.StatusUnknown, domain.StatusPending}: true,
	{domain.StatusUnknown, domain.StatusOpened}:  true,
	{domain.StatusUnknown, domain.StatusDeleted}: true,
	{domain.StatusPending, domain.StatusPending}: true,
	{domain.StatusPending, domain.StatusOpened}:  true,
	{domain.StatusPending, domain.StatusDeleted}: true,
	{domain.StatusOpened, domain.StatusOpened}:   true,
	{domain.StatusOpened, domain.StatusClosed}:   true,
	{domain.StatusClosed, domain.StatusClosed}:   true,
	{domain.StatusDeleted, domain.StatusDeleted}: true,
}

// IsLegalTransition reports whether from -> to is an expected observation.
func IsLegalTransition(from, to domain.Status) bool {
	return legalTransitions[transition{from, to}]
}

// mutableFields marks, per legal transition, the fields that may change.
// Illegal transitions accept every field so that only the transition
// itself is reported.
var mutableFields = map[transition]Field{
	{domain.StatusUnknown, domain.StatusPending}: FieldClosePrice | FieldCommission | FieldExpiration | FieldLots |
		FieldOpenPrice | FieldOpenTime | FieldProfit | FieldStopLoss | FieldSwap | FieldTakeProfit | FieldTicket,
	{domain.StatusUnknown, domain.StatusOpened}: FieldClosePrice | FieldCommission | FieldExpiration | FieldLots |
		FieldOpenPrice | FieldOpenTime | FieldProfit | FieldStopLoss | FieldSwap | FieldTakeProfit | FieldTicket | FieldType,
	{domain.StatusUnknown, domain.StatusDeleted}: FieldClosePrice | FieldCloseTime | FieldComment | FieldCommission |
		FieldExpiration | FieldLots | FieldOpenPrice | FieldOpenTime | FieldProfit | FieldStopLoss | FieldSwap |
		FieldTakeProfit | FieldTicket,
	{domain.StatusPending, domain.StatusPending}: FieldClosePrice | FieldExpiration | FieldOpenPrice | FieldStopLoss | FieldTakeProfit,
	{domain.StatusPending, domain.StatusOpened}: FieldClosePrice | FieldComment | FieldCommission | FieldExpiration |
		FieldOpenPrice | FieldOpenTime | FieldProfit | FieldStopLoss | FieldSwap | FieldTakeProfit | FieldType,
	{domain.StatusPending, domain.StatusDeleted}: FieldClosePrice | FieldCloseTime | FieldComment | FieldExpiration,
	{domain.StatusOpened, domain.StatusOpened}: FieldClosePrice | FieldComment | FieldCommission | FieldLots | FieldProfit |
		FieldStopLoss | FieldSwap | FieldTakeProfit,
	{domain.StatusOpened, domain.StatusClosed}: FieldClosePrice | FieldCloseTime | FieldComment | FieldCommission |
		FieldLots | FieldProfit | FieldSwap,
	{domain.StatusClosed, domain.StatusClosed}:   0,
	{domain.StatusDeleted, domain.StatusDeleted}: 0,
}

// MutableFields returns the fields that may change on from -> to.
func MutableFields(from, to domain.Status) Field {
	if !IsLegalTransition(from, to) {
		return allFields
	}
	return mutableFields[transition{from, to}]
}

// Has reports whether f includes g.
func (f Field) Has(g Field) bool {
	return f&g != 0
}
