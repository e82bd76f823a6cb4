package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradeKeeper/config"
	"tradeKeeper/internal/adapters/binanceclient"
	"tradeKeeper/internal/adapters/logger"
	"tradeKeeper/internal/adapters/papervenue"
	"tradeKeeper/internal/adapters/sqlite"
	"tradeKeeper/internal/app"
	"tradeKeeper/internal/broker"
	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/manager"
	"tradeKeeper/internal/ports"
	"tradeKeeper/internal/position"
	"tradeKeeper/internal/risk"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, flush := newLogger(cfg)
	defer flush()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Journal (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize journal: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing journal")
		}
	}()

	// 4. Initialize Price Source and Paper Venue
	source, spec, err := newPriceSource(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize price source")
		log.Fatalf("FATAL: Failed to initialize price source: %v", err)
	}
	venue, err := papervenue.New(papervenue.Config{
		Spec:           spec,
		InitialBalance: cfg.InitialBalance,
		Leverage:       cfg.Leverage,
		StopoutLevel:   cfg.StopoutLevel,
	}, source, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize paper venue: %v", err)
	}
	appLogger.Info(ctx, "Paper venue initialized", map[string]interface{}{"symbol": spec.Symbol, "priceSource": cfg.PriceSource})

	// 5. Initialize Broker Executor and Risk Manager
	exec, err := broker.New(broker.Config{
		Terminal:   venue,
		Logger:     appLogger,
		Budget:     cfg.OrderSumDelay,
		SmallDelay: cfg.OrderSmallDelay,
		BigDelay:   cfg.OrderBigDelay,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize broker executor: %v", err)
	}
	riskManager, err := risk.NewRiskManager(risk.RiskConfig{
		StopoutFold:        cfg.StopoutFold,
		MarginCallFold:     cfg.MarginCallFold,
		NewLotsMultiple:    cfg.NewLotsMultiple,
		MoneyManagement:    cfg.MoneyManagement,
		CapitalUnit:        cfg.CapitalUnit,
		RiskFraction:       cfg.RiskFraction,
		ExpectedSlippage:   cfg.ExpectedSlippage,
		DepositCurrency:    cfg.DepositCurrency,
		CorrectionExponent: cfg.CorrectionExponent,
	}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize risk manager: %v", err)
	}

	// 6. Initialize Application Service
	tradingService, err := app.NewTradingService(app.Config{
		Logger:         appLogger,
		Venue:          venue,
		UpdateInterval: cfg.UpdateInterval,
		Signals:        true,
	}, manager.Config{
		Broker:  exec,
		Risk:    riskManager,
		Logger:  appLogger,
		Journal: repo,
		Params: position.Params{
			Symbol:              spec.Symbol,
			Magics:              cfg.Magics,
			MaxStopLossLimit:    cfg.MaxStopLossLimit,
			MaxTakeProfitLimit:  cfg.MaxTakeProfitLimit,
			ExpectedSlippage:    cfg.ExpectedSlippage,
			DepositCurrency:     cfg.DepositCurrency,
			CorrectionExponent:  cfg.CorrectionExponent,
			Leverage:            cfg.Leverage,
			LooseSqueezeMinTime: cfg.LooseSqueezeMinTime,
			LooseSqueezeMaxTime: cfg.LooseSqueezeMaxTime,
			TightSqueezeMaxTime: cfg.TightSqueezeMaxTime,
			MinSqueezeSpeed:     cfg.MinSqueezeSpeed,
		},
		OrderCheckDelay:   cfg.OrderCheckDelay,
		DelayAfterOrder:   cfg.DelayAfterOrder,
		MinModifyInterval: cfg.MinModifyInterval,
		MinutesPerBar:     cfg.MinutesPerBar,
		PendingValidBars:  cfg.PendingValidBars,
		AllowedSlippage:   cfg.AllowedSlippage,
		RunID:             uuid.NewString(),
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}

	// 7. Start the Service
	if err := tradingService.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}
	if reason := tradingService.Emergency(); reason != nil {
		appLogger.Warn(ctx, "Application stopped after an emergency", map[string]interface{}{"reason": reason.Error()})
		return
	}
	appLogger.Info(ctx, "Application finished gracefully.")
}

// Contract figures of a standard FX lot, used with the static price source.
var (
	decimal100k = decimal.NewFromInt(100000)
	minLot      = decimal.RequireFromString("0.01")
	maxLot      = decimal.NewFromInt(100)
)

func newLogger(cfg *config.Config) (ports.Logger, func()) {
	if cfg.LogFormat == "text" {
		return logger.NewStdLogger(cfg.LogLevel), func() {}
	}
	zl, err := logger.NewZapLogger(cfg.LogLevel, cfg.LogFormat, "tradeKeeper")
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	return zl, func() { _ = zl.Sync() }
}

func newPriceSource(ctx context.Context, cfg *config.Config, l ports.Logger) (ports.MarketData, domain.SymbolSpec, error) {
	if cfg.PriceSource == "binance" {
		client, err := binanceclient.New(binanceclient.Config{
			APIKey:      cfg.APIKey,
			SecretKey:   cfg.SecretKey,
			UseTestnet:  cfg.IsTestnet,
			Logger:      l,
			Leverage:    cfg.Leverage.IntPart(),
			StopLevel:   cfg.StopLevel,
			FreezeLevel: cfg.FreezeLevel,
		})
		if err != nil {
			return nil, domain.SymbolSpec{}, err
		}
		if err := client.SetServerTime(ctx); err != nil {
			return nil, domain.SymbolSpec{}, err
		}
		m, err := client.Market(ctx, cfg.Symbol)
		if err != nil {
			return nil, domain.SymbolSpec{}, err
		}
		return client, m.Spec, nil
	}

	spec := domain.SymbolSpec{
		Symbol:      cfg.Symbol,
		Point:       cfg.Point,
		TickSize:    cfg.Point,
		TickValue:   cfg.Point.Mul(decimal100k),
		LotSize:     decimal100k,
		MinLot:      minLot,
		LotStep:     minLot,
		MaxLot:      maxLot,
		StopLevel:   cfg.StopLevel,
		FreezeLevel: cfg.FreezeLevel,
	}
	return papervenue.NewStaticSource(spec, cfg.StaticBid, cfg.StaticSpread), spec, nil
}
