package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"tradeKeeper/internal/adapters/logger"
	"tradeKeeper/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Venue
	Venue       string // only "paper" is supported
	PriceSource string // "binance" or "static"
	Symbol      string
	APIKey      string
	SecretKey   string
	IsTestnet   bool

	// Paper venue
	InitialBalance decimal.Decimal
	Leverage       decimal.Decimal
	StaticBid      decimal.Decimal
	StaticSpread   decimal.Decimal
	Point          decimal.Decimal // static source only
	StopLevel      int64           // points
	FreezeLevel    int64           // points
	StopoutLevel   decimal.Decimal // percent of equity

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string // "text", "json" or "console"

	// Tactics
	Magics map[domain.Tactic]int64

	// Limits and slippage
	MaxStopLossLimit   decimal.Decimal
	MaxTakeProfitLimit decimal.Decimal
	ExpectedSlippage   int64 // points
	AllowedSlippage    int64 // points

	// Squeezing
	LooseSqueezeMinTime time.Duration
	LooseSqueezeMaxTime time.Duration
	TightSqueezeMaxTime time.Duration
	MinSqueezeSpeed     decimal.Decimal

	// Margin and sizing
	StopoutFold        decimal.Decimal
	MarginCallFold     decimal.Decimal
	NewLotsMultiple    decimal.Decimal
	MoneyManagement    domain.MoneyManagement
	CapitalUnit        decimal.Decimal
	RiskFraction       decimal.Decimal
	DepositCurrency    domain.CurrencyRelation
	CorrectionExponent int

	// Broker timing
	OrderSumDelay     time.Duration
	OrderSmallDelay   time.Duration
	OrderBigDelay     time.Duration
	DelayAfterOrder   time.Duration
	OrderCheckDelay   time.Duration
	MinModifyInterval time.Duration

	// Bars and cadence
	MinutesPerBar    int
	PendingValidBars int
	UpdateInterval   time.Duration
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	// Venue
	cfg.Venue = strings.ToLower(getEnv("VENUE", "paper"))
	if cfg.Venue != "paper" {
		errs = append(errs, fmt.Sprintf("unsupported VENUE %q", cfg.Venue))
	}
	cfg.PriceSource = strings.ToLower(getEnv("PRICE_SOURCE", "static"))
	cfg.Symbol = getEnv("SYMBOL", "EURUSD")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true)
	switch cfg.PriceSource {
	case "static":
	case "binance":
		if cfg.APIKey == "" || cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set for PRICE_SOURCE=binance")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown PRICE_SOURCE %q", cfg.PriceSource))
	}

	// Paper venue
	positive := func(key, def string) decimal.Decimal {
		v, err := getEnvAsDecimalRequired(key, def)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		} else if v.Sign() <= 0 {
			errs = append(errs, key+" must be positive")
		}
		return v
	}
	nonNegative := func(key, def string) decimal.Decimal {
		v, err := getEnvAsDecimalRequired(key, def)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		} else if v.Sign() < 0 {
			errs = append(errs, key+" cannot be negative")
		}
		return v
	}
	cfg.InitialBalance = positive("PAPER_INITIAL_BALANCE", "10000")
	cfg.Leverage = positive("PAPER_LEVERAGE", "100")
	cfg.StaticBid = positive("PAPER_STATIC_BID", "1.10000")
	cfg.StaticSpread = nonNegative("PAPER_SPREAD", "0.00010")
	cfg.Point = positive("PAPER_POINT", "0.00001")
	cfg.StopoutLevel = nonNegative("PAPER_STOPOUT_LEVEL", "50")
	cfg.StopLevel = int64(getEnvAsInt("PAPER_STOP_LEVEL", 10))
	cfg.FreezeLevel = int64(getEnvAsInt("PAPER_FREEZE_LEVEL", 5))
	if cfg.StopLevel < 0 || cfg.FreezeLevel < 0 {
		errs = append(errs, "PAPER_STOP_LEVEL and PAPER_FREEZE_LEVEL cannot be negative")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/journal.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		errs = append(errs, fmt.Sprintf("unknown LOG_FORMAT %q", cfg.LogFormat))
	}

	// Tactics
	cfg.Magics = map[domain.Tactic]int64{
		domain.TacticAggressive: int64(getEnvAsInt("MAGIC_AGGRESSIVE", 1001)),
		domain.TacticStrict:     int64(getEnvAsInt("MAGIC_STRICT", 1002)),
		domain.TacticPeak:       int64(getEnvAsInt("MAGIC_PEAK", 1003)),
	}
	seen := make(map[int64]bool)
	for _, t := range domain.Tactics {
		magic := cfg.Magics[t]
		if magic <= 0 || seen[magic] {
			errs = append(errs, "magic numbers must be positive and distinct")
			break
		}
		seen[magic] = true
	}

	// Limits and slippage
	cfg.MaxStopLossLimit = positive("MAX_STOPLOSS_LIMIT", "0.5")
	if cfg.MaxStopLossLimit.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "MAX_STOPLOSS_LIMIT must be below 1")
	}
	cfg.MaxTakeProfitLimit = positive("MAX_TAKEPROFIT_LIMIT", "2")
	if cfg.MaxTakeProfitLimit.LessThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "MAX_TAKEPROFIT_LIMIT must be above 1")
	}
	cfg.ExpectedSlippage = int64(getEnvAsInt("EXPECTED_SLIPPAGE_POINTS", 3))
	cfg.AllowedSlippage = int64(getEnvAsInt("ALLOWED_SLIPPAGE_POINTS", 5))
	if cfg.ExpectedSlippage < 0 || cfg.AllowedSlippage < 0 {
		errs = append(errs, "slippage points cannot be negative")
	}

	// Squeezing
	cfg.LooseSqueezeMinTime = time.Duration(getEnvAsInt("LOOSE_SQUEEZE_MIN_MINUTES", 5)) * time.Minute
	cfg.LooseSqueezeMaxTime = time.Duration(getEnvAsInt("LOOSE_SQUEEZE_MAX_MINUTES", 30)) * time.Minute
	cfg.TightSqueezeMaxTime = time.Duration(getEnvAsInt("TIGHT_SQUEEZE_MAX_MINUTES", 10)) * time.Minute
	if cfg.LooseSqueezeMinTime <= 0 || cfg.LooseSqueezeMaxTime < cfg.LooseSqueezeMinTime || cfg.TightSqueezeMaxTime <= 0 {
		errs = append(errs, "squeeze timings must be positive and LOOSE_SQUEEZE_MAX_MINUTES at least LOOSE_SQUEEZE_MIN_MINUTES")
	}
	cfg.MinSqueezeSpeed = nonNegative("MIN_SQUEEZE_SPEED", "0.00001")

	// Margin and sizing
	cfg.StopoutFold = nonNegative("STOPOUT_FOLD", "0.1")
	cfg.MarginCallFold = nonNegative("MARGIN_CALL_FOLD", "0.1")
	cfg.NewLotsMultiple = positive("NEW_LOTS_MULTIPLE", "2.1")
	cfg.MoneyManagement, err = domain.ParseMoneyManagement(getEnv("MONEY_MANAGEMENT", "constant"))
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.CapitalUnit = positive("CAPITAL_UNIT", "100")
	cfg.RiskFraction = positive("RISK_FRACTION", "0.02")
	if cfg.RiskFraction.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "RISK_FRACTION must be below 1")
	}
	cfg.DepositCurrency, err = domain.ParseCurrencyRelation(getEnv("DEPOSIT_CURRENCY", "quote"))
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.CorrectionExponent, err = getEnvAsIntRequired("CORRECTION_EXPONENT", 2)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CORRECTION_EXPONENT: %v", err))
	} else if cfg.CorrectionExponent <= 0 {
		errs = append(errs, "CORRECTION_EXPONENT must be positive")
	}

	// Broker timing
	cfg.OrderSumDelay = time.Duration(getEnvAsInt("ORDER_SUM_DELAY_MS", 60000)) * time.Millisecond
	cfg.OrderSmallDelay = time.Duration(getEnvAsInt("ORDER_SMALL_DELAY_MS", 100)) * time.Millisecond
	cfg.OrderBigDelay = time.Duration(getEnvAsInt("ORDER_BIG_DELAY_MS", 1000)) * time.Millisecond
	cfg.DelayAfterOrder = time.Duration(getEnvAsInt("DELAY_AFTER_ORDER_MS", 500)) * time.Millisecond
	cfg.OrderCheckDelay = time.Duration(getEnvAsInt("ORDER_CHECK_DELAY_SECONDS", 30)) * time.Second
	cfg.MinModifyInterval = time.Duration(getEnvAsInt("MIN_MODIFY_INTERVAL_SECONDS", 30)) * time.Second
	if cfg.OrderSumDelay <= 0 || cfg.OrderSmallDelay <= 0 || cfg.OrderBigDelay < cfg.OrderSmallDelay {
		errs = append(errs, "broker delays must be positive and ORDER_BIG_DELAY_MS at least ORDER_SMALL_DELAY_MS")
	}
	if cfg.DelayAfterOrder < 0 || cfg.OrderCheckDelay < 0 || cfg.MinModifyInterval < 0 {
		errs = append(errs, "order delays cannot be negative")
	}

	// Bars and cadence
	cfg.MinutesPerBar = getEnvAsInt("MINUTES_PER_BAR", 60)
	cfg.PendingValidBars = getEnvAsInt("PENDING_VALID_BARS", 2)
	if cfg.MinutesPerBar <= 0 || cfg.PendingValidBars <= 0 {
		errs = append(errs, "MINUTES_PER_BAR and PENDING_VALID_BARS must be positive")
	}
	cfg.UpdateInterval = time.Duration(getEnvAsInt("UPDATE_INTERVAL_MS", 1000)) * time.Millisecond
	if cfg.UpdateInterval <= 0 {
		errs = append(errs, "UPDATE_INTERVAL_MS must be positive")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsDecimalRequired(key, defaultValue string) (decimal.Decimal, error) {
	valueStr := getEnv(key, defaultValue)
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
