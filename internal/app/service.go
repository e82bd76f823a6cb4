package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tradeKeeper/internal/manager"
	"tradeKeeper/internal/ports"
)

// Venue is the execution venue driven by the service. Refresh pulls a new
// quote before every reconciliation pass.
type Venue interface {
	ports.Venue
	Refresh(ctx context.Context) error
}

// Config holds the service settings.
type Config struct {
	Logger         ports.Logger
	Venue          Venue
	UpdateInterval time.Duration
	HarshUnwind    bool // close at market with the widest slippage on emergency
	Signals        bool // stop on SIGINT and SIGTERM
}

// TradingService runs the reconciliation loop around a position manager and
// halts trading when the manager loses track of the venue.
type TradingService struct {
	cfg     Config
	logger  ports.Logger
	venue   Venue
	manager *manager.Manager

	mu        sync.Mutex
	emergency error
	unwound   bool
}

// NewTradingService creates the service and the manager it drives. The
// service registers itself as the manager's emergency handler.
func NewTradingService(cfg Config, mcfg manager.Config) (*TradingService, error) {
	if cfg.Logger == nil || cfg.Venue == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if cfg.UpdateInterval <= 0 {
		return nil, fmt.Errorf("configuration UpdateInterval must be positive")
	}

	s := &TradingService{cfg: cfg, logger: cfg.Logger, venue: cfg.Venue}
	mcfg.Venue = cfg.Venue
	mcfg.Emergency = s
	m, err := manager.New(mcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create position manager: %w", err)
	}
	s.manager = m
	return s, nil
}

// Manager exposes the position manager to the strategy host.
func (s *TradingService) Manager() *manager.Manager { return s.manager }

// EnterEmergency records the reason. The loop unwinds on its next pass.
func (s *TradingService) EnterEmergency(ctx context.Context, reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emergency != nil {
		return
	}
	s.emergency = reason
	s.logger.Error(ctx, reason, "Emergency: trading halted, positions will be unwound")
}

// Emergency returns the reason trading was halted, or nil.
func (s *TradingService) Emergency() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emergency
}

// Start adopts whatever the previous run left on the venue and then runs the
// update loop until ctx is cancelled or a signal arrives.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...", map[string]interface{}{"runID": s.manager.RunID()})

	if err := s.venue.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to fetch the initial quote: %w", err)
	}
	if err := s.adopt(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if s.cfg.Signals {
		g.Go(func() error {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			select {
			case sig := <-sigCh:
				s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
				cancel()
			case <-ctx.Done():
			}
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.UpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.step(ctx)
			}
		}
	})

	err := g.Wait()
	s.logger.Info(context.Background(), "Trading Service stopped.", map[string]interface{}{"tick": s.manager.Tick()})
	if dump, derr := s.manager.Dump(); derr == nil {
		s.logger.Debug(context.Background(), "Final position tree", map[string]interface{}{"dump": dump})
	}
	return err
}

func (s *TradingService) adopt(ctx context.Context) error {
	hasEngine, hasAny, err := s.manager.RawPositionsListing(ctx)
	if err != nil {
		return fmt.Errorf("failed to list venue orders: %w", err)
	}
	if hasAny && !hasEngine {
		s.logger.Info(ctx, "Venue holds orders of other clients, leaving them alone")
	}
	if !hasEngine {
		if err := s.manager.RememberHistory(ctx); err != nil {
			return fmt.Errorf("failed to read venue history: %w", err)
		}
		return nil
	}
	s.logger.Warn(ctx, "Found orders of a previous run, adopting them")
	if err := s.manager.AdoptRawPositions(ctx); err != nil {
		return fmt.Errorf("failed to adopt venue orders: %w", err)
	}
	return nil
}

// step is one pass of the loop: refresh the quote, reconcile, squeeze, and
// unwind once after an emergency.
func (s *TradingService) step(ctx context.Context) {
	if err := s.venue.Refresh(ctx); err != nil {
		s.logger.Warn(ctx, "step: quote not refreshed", map[string]interface{}{"error": err.Error()})
		return
	}

	if err := s.manager.Update(ctx); err != nil {
		if errors.Is(err, ports.ErrDesync) || errors.Is(err, ports.ErrBrokerFatal) {
			s.logger.Error(ctx, err, "step: reconciliation failed")
		} else {
			s.logger.Warn(ctx, "step: reconciliation incomplete", map[string]interface{}{"error": err.Error()})
		}
	}

	if s.Emergency() == nil {
		if err := s.manager.Squeeze(ctx); err != nil {
			s.logger.Warn(ctx, "step: squeeze failed", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	s.mu.Lock()
	unwound := s.unwound
	s.unwound = true
	s.mu.Unlock()
	if !unwound {
		s.manager.Lock()
		s.manager.Unwind(ctx, s.cfg.HarshUnwind)
	}
}
