package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements ports.MarketData on the Binance futures REST API.
// It prices the paper venue; it never places orders.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	cfg           Config

	mu    sync.Mutex
	specs map[string]domain.SymbolSpec
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string // overrides the production and testnet URLs when set
	Logger     ports.Logger

	Asset       string // margin asset reported by Account, USDT by default
	Leverage    int64
	StopLevel   int64 // points
	FreezeLevel int64 // points
	Now         func() time.Time
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}
	if cfg.Asset == "" {
		cfg.Asset = "USDT"
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL})

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		cfg:           cfg,
		specs:         make(map[string]domain.SymbolSpec),
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022, -2014, -2015: // Signature or API key rejected
			mappedErr = ports.ErrAuthFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -2010, -2022, -4003, -4014, -4015: // Order rejected or outside permissible range
			mappedErr = ports.ErrRejected
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2019, -3005, -3041, -4047: // Margin or balance is insufficient
			mappedErr = ports.ErrInsufficientFunds
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	if _, err := c.futuresClient.NewSetServerTimeService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// Market returns the symbol spec and the current top of book. The spec is
// fetched once per symbol from the exchange info.
func (c *Client) Market(ctx context.Context, symbol string) (domain.Market, error) {
	op := "Market"
	spec, err := c.spec(ctx, symbol)
	if err != nil {
		return domain.Market{}, err
	}

	tickers, err := c.futuresClient.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.Market{}, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		return domain.Market{}, c.handleError(ctx, fmt.Errorf("no book ticker returned for symbol %s: %w", symbol, ports.ErrNotFound), op)
	}
	quote, err := translateBookTicker(tickers[0], c.cfg.Now())
	if err != nil {
		return domain.Market{}, c.handleError(ctx, err, op)
	}
	return domain.Market{Spec: spec, Quote: quote}, nil
}

func (c *Client) spec(ctx context.Context, symbol string) (domain.SymbolSpec, error) {
	op := "ExchangeInfo"
	c.mu.Lock()
	spec, ok := c.specs[symbol]
	c.mu.Unlock()
	if ok {
		return spec, nil
	}

	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return domain.SymbolSpec{}, c.handleError(ctx, err, op)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		spec, err := translateSymbol(s, c.cfg.StopLevel, c.cfg.FreezeLevel)
		if err != nil {
			return domain.SymbolSpec{}, c.handleError(ctx, err, op)
		}
		c.mu.Lock()
		c.specs[symbol] = spec
		c.mu.Unlock()
		c.logger.Info(ctx, op+": symbol spec loaded", map[string]interface{}{
			"symbol": symbol, "tickSize": spec.TickSize.String(), "lotStep": spec.LotStep.String(),
		})
		return spec, nil
	}
	return domain.SymbolSpec{}, c.handleError(ctx, fmt.Errorf("symbol %s not listed: %w", symbol, ports.ErrNotFound), op)
}

// Account reports the futures wallet in the configured margin asset.
func (c *Client) Account(ctx context.Context) (domain.Account, error) {
	op := "Account"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return domain.Account{}, c.handleError(ctx, err, op)
	}
	acc, err := translateAccount(account, c.cfg.Asset, c.cfg.Leverage)
	if err != nil {
		return domain.Account{}, c.handleError(ctx, err, op)
	}
	return acc, nil
}

// --- Translation Helpers ---

func translateBookTicker(t *futures.BookTicker, now time.Time) (domain.Quote, error) {
	if t == nil {
		return domain.Quote{}, errors.New("received nil book ticker")
	}
	bid, err := decimal.NewFromString(t.BidPrice)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parsing bid price '%s': %w", t.BidPrice, err)
	}
	ask, err := decimal.NewFromString(t.AskPrice)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parsing ask price '%s': %w", t.AskPrice, err)
	}
	if ask.LessThan(bid) {
		return domain.Quote{}, fmt.Errorf("crossed book: bid %s ask %s", bid, ask)
	}
	return domain.Quote{Bid: bid, Ask: ask, Time: now}, nil
}

// translateSymbol maps exchange filters onto a spec. One lot is one unit of
// the base asset.
func translateSymbol(s futures.Symbol, stopLevel, freezeLevel int64) (domain.SymbolSpec, error) {
	tick, err := filterValue(s, "PRICE_FILTER", "tickSize")
	if err != nil {
		return domain.SymbolSpec{}, err
	}
	minQty, err := filterValue(s, "LOT_SIZE", "minQty")
	if err != nil {
		return domain.SymbolSpec{}, err
	}
	maxQty, err := filterValue(s, "LOT_SIZE", "maxQty")
	if err != nil {
		return domain.SymbolSpec{}, err
	}
	step, err := filterValue(s, "LOT_SIZE", "stepSize")
	if err != nil {
		return domain.SymbolSpec{}, err
	}
	return domain.SymbolSpec{
		Symbol:      s.Symbol,
		Point:       tick,
		TickSize:    tick,
		TickValue:   tick,
		LotSize:     decimal.NewFromInt(1),
		MinLot:      minQty,
		LotStep:     step,
		MaxLot:      maxQty,
		StopLevel:   stopLevel,
		FreezeLevel: freezeLevel,
	}, nil
}

func filterValue(s futures.Symbol, filterType, key string) (decimal.Decimal, error) {
	for _, f := range s.Filters {
		if t, _ := f["filterType"].(string); t != filterType {
			continue
		}
		raw, ok := f[key].(string)
		if !ok {
			return decimal.Zero, fmt.Errorf("%s: %s filter has no %s", s.Symbol, filterType, key)
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: parsing %s '%s': %w", s.Symbol, key, raw, err)
		}
		return v, nil
	}
	return decimal.Zero, fmt.Errorf("%s: no %s filter", s.Symbol, filterType)
}

func translateAccount(a *futures.Account, asset string, leverage int64) (domain.Account, error) {
	if a == nil {
		return domain.Account{}, errors.New("received nil account")
	}
	for _, bal := range a.Assets {
		if bal.Asset != asset {
			continue
		}
		wallet, err := decimal.NewFromString(bal.WalletBalance)
		if err != nil {
			return domain.Account{}, fmt.Errorf("parsing wallet balance '%s': %w", bal.WalletBalance, err)
		}
		marginBalance, err := decimal.NewFromString(bal.MarginBalance)
		if err != nil {
			return domain.Account{}, fmt.Errorf("parsing margin balance '%s': %w", bal.MarginBalance, err)
		}
		initial, err := decimal.NewFromString(bal.InitialMargin)
		if err != nil {
			return domain.Account{}, fmt.Errorf("parsing initial margin '%s': %w", bal.InitialMargin, err)
		}
		available, err := decimal.NewFromString(bal.AvailableBalance)
		if err != nil {
			return domain.Account{}, fmt.Errorf("parsing available balance '%s': %w", bal.AvailableBalance, err)
		}
		return domain.Account{
			Currency:   asset,
			Balance:    wallet,
			Equity:     marginBalance,
			Margin:     initial,
			FreeMargin: available,
			Leverage:   decimal.NewFromInt(leverage),
		}, nil
	}
	return domain.Account{}, fmt.Errorf("asset %s not found in account balance: %w", asset, ports.ErrNotFound)
}
