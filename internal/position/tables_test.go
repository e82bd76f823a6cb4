package position

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tradeKeeper/internal/domain"
)

func TestIsLegalTransition(t *testing.T) {
	statuses := []domain.Status{
		domain.StatusUnknown, domain.StatusPending, domain.StatusOpened, domain.StatusClosed, domain.StatusDeleted,
	}
	legal := map[[2]domain.Status]bool{
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
	for _, from := range statuses {
		for _, to := range statuses {
			want := legal[[2]domain.Status{from, to}]
			assert.Equal(t, want, IsLegalTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestMutableFields(t *testing.T) {
	tests := []struct {
		name      string
		from, to  domain.Status
		mutable   []Field
		immutable []Field
	}{
		{
			name:      "opened stays opened",
			from:      domain.StatusOpened,
			to:        domain.StatusOpened,
			mutable:   []Field{FieldStopLoss, FieldTakeProfit, FieldLots, FieldProfit, FieldComment},
			immutable: []Field{FieldOpenPrice, FieldOpenTime, FieldTicket, FieldType, FieldCloseTime, FieldMagic},
		},
		{
			name:      "pending gets triggered",
			from:      domain.StatusPending,
			to:        domain.StatusOpened,
			mutable:   []Field{FieldType, FieldOpenTime, FieldOpenPrice},
			immutable: []Field{FieldLots, FieldTicket, FieldCloseTime},
		},
		{
			name:      "unknown resolves",
			from:      domain.StatusUnknown,
			to:        domain.StatusOpened,
			mutable:   []Field{FieldTicket, FieldType, FieldLots},
			immutable: []Field{FieldComment, FieldMagic, FieldSymbol},
		},
		{
			name:      "closed is frozen",
			from:      domain.StatusClosed,
			to:        domain.StatusClosed,
			immutable: []Field{FieldProfit, FieldClosePrice, FieldCommission, FieldSwap},
		},
		{
			name:    "illegal accepts everything",
			from:    domain.StatusClosed,
			to:      domain.StatusOpened,
			mutable: []Field{FieldProfit, FieldTicket, FieldMagic, FieldType},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mask := MutableFields(tt.from, tt.to)
			for _, f := range tt.mutable {
				assert.True(t, mask.Has(f), "field %b should be mutable", f)
			}
			for _, f := range tt.immutable {
				assert.False(t, mask.Has(f), "field %b should be fixed", f)
			}
		})
	}
}
