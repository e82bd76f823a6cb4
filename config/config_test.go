package config

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeKeeper/internal/adapters/logger"
	"tradeKeeper/internal/domain"
)

// chdirTemp moves into an empty directory so that no .env file is picked up.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadConfig_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "paper", cfg.Venue)
	assert.Equal(t, "static", cfg.PriceSource)
	assert.Equal(t, "EURUSD", cfg.Symbol)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, int64(1002), cfg.Magics[domain.TacticStrict])
	assert.True(t, cfg.MaxStopLossLimit.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, domain.ConstantRisk, cfg.MoneyManagement)
	assert.Equal(t, domain.DepositIsQuote, cfg.DepositCurrency)
	assert.Equal(t, 30*time.Second, cfg.OrderCheckDelay)
	assert.Equal(t, 5*time.Minute, cfg.LooseSqueezeMinTime)
}

func TestLoadConfig_Overrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("MONEY_MANAGEMENT", "percentage")
	t.Setenv("RISK_FRACTION", "0.05")
	t.Setenv("DEPOSIT_CURRENCY", "base")
	t.Setenv("MAGIC_PEAK", "77")
	t.Setenv("ORDER_SMALL_DELAY_MS", "50")
	t.Setenv("UPDATE_INTERVAL_MS", "250")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, domain.PercentageRisk, cfg.MoneyManagement)
	assert.True(t, cfg.RiskFraction.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, domain.DepositIsBase, cfg.DepositCurrency)
	assert.Equal(t, int64(77), cfg.Magics[domain.TacticPeak])
	assert.Equal(t, 50*time.Millisecond, cfg.OrderSmallDelay)
	assert.Equal(t, 250*time.Millisecond, cfg.UpdateInterval)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unsupported venue", map[string]string{"VENUE": "mt4"}, "unsupported VENUE"},
		{"binance without keys", map[string]string{"PRICE_SOURCE": "binance"}, "BINANCE_API_KEY"},
		{"bad decimal", map[string]string{"CAPITAL_UNIT": "lots"}, "invalid CAPITAL_UNIT"},
		{"sl limit too large", map[string]string{"MAX_STOPLOSS_LIMIT": "1.5"}, "MAX_STOPLOSS_LIMIT must be below 1"},
		{"tp limit too small", map[string]string{"MAX_TAKEPROFIT_LIMIT": "0.9"}, "MAX_TAKEPROFIT_LIMIT must be above 1"},
		{"duplicate magics", map[string]string{"MAGIC_STRICT": "1001"}, "magic numbers"},
		{"unknown money management", map[string]string{"MONEY_MANAGEMENT": "martingale"}, "unknown money management"},
		{"log format", map[string]string{"LOG_FORMAT": "xml"}, "unknown LOG_FORMAT"},
		{"squeeze order", map[string]string{"LOOSE_SQUEEZE_MIN_MINUTES": "40"}, "squeeze timings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdirTemp(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "configuration validation failed")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
