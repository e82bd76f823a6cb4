package papervenue

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/ports"
)

// StaticSource is a fixed price source. The ask is the bid plus the spread.
type StaticSource struct {
	mu     sync.Mutex
	spec   domain.SymbolSpec
	bid    decimal.Decimal
	spread decimal.Decimal
}

// NewStaticSource creates a price source that always quotes bid.
func NewStaticSource(spec domain.SymbolSpec, bid, spread decimal.Decimal) *StaticSource {
	return &StaticSource{spec: spec, bid: bid, spread: spread}
}

// Set moves the quoted bid.
func (s *StaticSource) Set(bid decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bid = bid
}

func (s *StaticSource) Market(ctx context.Context, symbol string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if symbol != s.spec.Symbol {
		return domain.Market{}, fmt.Errorf("static source: %w: symbol %q", ports.ErrInvalidRequest, symbol)
	}
	return domain.Market{
		Spec:  s.spec,
		Quote: domain.Quote{Bid: s.bid, Ask: s.bid.Add(s.spread)},
	}, nil
}

// Account is not served by a price source.
func (s *StaticSource) Account(ctx context.Context) (domain.Account, error) {
	return domain.Account{}, fmt.Errorf("static source: %w: no account", ports.ErrNotFound)
}
