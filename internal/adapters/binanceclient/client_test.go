package binanceclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeKeeper/internal/ports"
)

type mockLogger struct {
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	c, err := New(Config{Logger: &mockLogger{}, UseTestnet: true})
	require.NoError(t, err)
	assert.Equal(t, baseURLTestnet, c.futuresClient.BaseURL)
	assert.Equal(t, "USDT", c.cfg.Asset)
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"rate limit", &common.APIError{Code: -1003, Message: "too many"}, ports.ErrRateLimited},
		{"bad signature", &common.APIError{Code: -1022}, ports.ErrAuthFailed},
		{"bad parameter", &common.APIError{Code: -1102}, ports.ErrInvalidRequest},
		{"margin", &common.APIError{Code: -2019}, ports.ErrInsufficientFunds},
		{"order missing", &common.APIError{Code: -2013}, ports.ErrOrderNotFound},
		{"unmapped api", &common.APIError{Code: -9999}, ports.ErrUnknown},
		{"deadline", context.DeadlineExceeded, ports.ErrTimeout},
		{"refused", errors.New("dial tcp: connection refused"), ports.ErrConnectionFailed},
		{"other", errors.New("bad json"), ports.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &mockLogger{}
			c := &Client{logger: log}
			err := c.handleError(context.Background(), tt.err, "Market")
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.err)
			assert.Len(t, log.errorMsgs, 1)
		})
	}
	assert.NoError(t, (&Client{logger: &mockLogger{}}).handleError(context.Background(), nil, "Market"))
}

func TestTranslateBookTicker(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	q, err := translateBookTicker(&futures.BookTicker{Symbol: "BTCUSDT", BidPrice: "64000.10", AskPrice: "64000.20"}, now)
	require.NoError(t, err)
	assert.True(t, q.Bid.Equal(dec("64000.1")))
	assert.True(t, q.Spread().Equal(dec("0.1")))
	assert.Equal(t, now, q.Time)

	_, err = translateBookTicker(&futures.BookTicker{BidPrice: "2", AskPrice: "1"}, now)
	assert.Error(t, err)
	_, err = translateBookTicker(&futures.BookTicker{BidPrice: "x", AskPrice: "1"}, now)
	assert.Error(t, err)
}

func TestTranslateSymbol(t *testing.T) {
	s := futures.Symbol{
		Symbol: "BTCUSDT",
		Filters: []map[string]interface{}{
			{"filterType": "PRICE_FILTER", "tickSize": "0.10", "minPrice": "556.80", "maxPrice": "4529764"},
			{"filterType": "LOT_SIZE", "minQty": "0.001", "maxQty": "1000", "stepSize": "0.001"},
		},
	}
	spec, err := translateSymbol(s, 20, 5)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", spec.Symbol)
	assert.True(t, spec.TickSize.Equal(dec("0.1")))
	assert.True(t, spec.TickValue.Equal(dec("0.1")))
	assert.True(t, spec.MinLot.Equal(dec("0.001")))
	assert.True(t, spec.LotStep.Equal(dec("0.001")))
	assert.True(t, spec.MaxLot.Equal(dec("1000")))
	assert.Equal(t, int64(20), spec.StopLevel)

	_, err = translateSymbol(futures.Symbol{Symbol: "X"}, 0, 0)
	assert.Error(t, err)
}

func TestTranslateAccount(t *testing.T) {
	a := &futures.Account{Assets: []*futures.AccountAsset{
		{Asset: "BNB", WalletBalance: "1", MarginBalance: "1", InitialMargin: "0", AvailableBalance: "1"},
		{Asset: "USDT", WalletBalance: "1000.5", MarginBalance: "1010", InitialMargin: "100", AvailableBalance: "910"},
	}}
	acc, err := translateAccount(a, "USDT", 20)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("1000.5")))
	assert.True(t, acc.Equity.Equal(dec("1010")))
	assert.True(t, acc.Margin.Equal(dec("100")))
	assert.True(t, acc.FreeMargin.Equal(dec("910")))
	assert.True(t, acc.Leverage.Equal(dec("20")))

	_, err = translateAccount(a, "EUR", 20)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}
