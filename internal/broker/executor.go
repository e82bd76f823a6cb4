// Package broker runs venue trading calls under the recovery policy.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/ports"
)

// Result is the final state of a trading call.
type Result int

const (
	Succeeded Result = iota
	Failed
	Unknown
)

func (r Result) String() string {
	switch r {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config holds the executor settings.
type Config struct {
	Terminal   ports.Terminal
	Logger     ports.Logger
	Budget     time.Duration // total time one call may take, waits included
	SmallDelay time.Duration // readiness polling and short pauses
	BigDelay   time.Duration // long pauses
	Now        func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error
}

// Executor runs one venue call at a time until it resolves.
type Executor struct {
	terminal   ports.Terminal
	logger     ports.Logger
	budget     time.Duration
	smallDelay time.Duration
	bigDelay   time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates an Executor.
func New(cfg Config) (*Executor, error) {
	if cfg.Terminal == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for broker executor")
	}
	if cfg.Budget <= 0 {
		return nil, fmt.Errorf("broker budget must be positive")
	}
	e := &Executor{
		terminal:   cfg.Terminal,
		logger:     cfg.Logger,
		budget:     cfg.Budget,
		smallDelay: cfg.SmallDelay,
		bigDelay:   cfg.BigDelay,
		now:        cfg.Now,
		sleep:      cfg.Sleep,
	}
	if e.bigDelay < e.smallDelay {
		e.bigDelay = e.smallDelay
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.sleep == nil {
		e.sleep = Sleep
	}
	return e, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs call until it succeeds, fails definitely, ends with an unknown
// outcome or hits a fatal condition. Only the fatal case returns an error,
// wrapping ports.ErrBrokerFatal.
func (e *Executor) Do(ctx context.Context, op string, call func(ctx context.Context) error) (Result, error) {
	return e.run(ctx, op, call, PolicyFor)
}

// DoModify is Do for modify calls, where "no result" means the levels were
// already in place.
func (e *Executor) DoModify(ctx context.Context, op string, call func(ctx context.Context) error) (Result, error) {
	return e.run(ctx, op, call, ModifyPolicyFor)
}

func (e *Executor) run(ctx context.Context, op string, call func(ctx context.Context) error, policyFor func(domain.ErrorCode) Policy) (Result, error) {
	start := e.now()
	attempt := 0
	for {
		if !e.awaitReady(ctx, op, start) {
			return Failed, nil
		}

		attempt++
		e.terminal.ClearError(ctx)
		err := call(ctx)
		e.terminal.ClearError(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger.Debug(ctx, op+": succeeded after retries", map[string]interface{}{"attempts": attempt})
			}
			return Succeeded, nil
		}

		code := ports.ErrorCodeOf(err)
		policy := policyFor(code)
		fields := map[string]interface{}{"code": code.String(), "outcome": policy.Outcome.String(), "attempt": attempt}

		switch policy.Outcome {
		case Fatal:
			e.logger.Error(ctx, err, op+": fatal venue condition", fields)
			return Failed, fmt.Errorf("%s failed: %w: %w", op, ports.ErrBrokerFatal, err)
		case Resync:
			e.logger.Warn(ctx, op+": outcome unknown, leaving it to reconciliation", fields)
			return Unknown, nil
		case GiveUp:
			e.logger.Warn(ctx, op+": giving up", fields)
			return Failed, nil
		case Accept:
			e.logger.Debug(ctx, op+": nothing to change", fields)
			return Succeeded, nil
		}

		e.logger.Debug(ctx, op+": retrying", fields)
		if err := e.sleep(ctx, e.pauseFor(policy.Pause)); err != nil {
			e.logger.Warn(ctx, op+": canceled while pausing", map[string]interface{}{"error": err.Error()})
			return Failed, nil
		}
		if e.now().Sub(start) > e.budget {
			e.logger.Warn(ctx, op+": retry budget exhausted", fields)
			return Failed, nil
		}
	}
}

func (e *Executor) pauseFor(p Pause) time.Duration {
	switch p {
	case ShortPause:
		return e.smallDelay
	case LongPause:
		return e.bigDelay
	default:
		return 0
	}
}

// awaitReady polls the terminal until it accepts trading calls or the budget runs out.
func (e *Executor) awaitReady(ctx context.Context, op string, start time.Time) bool {
	b := &backoff.Backoff{Min: e.smallDelay, Max: e.bigDelay, Factor: 2}
	for {
		reason := ""
		r, err := e.terminal.Readiness(ctx)
		switch {
		case err != nil:
			reason = err.Error()
		case !r.Connected:
			reason = "not connected"
		case r.Stopped:
			reason = "stopped"
		case !r.TradeAllowed:
			reason = "trade not allowed"
		case r.ContextBusy:
			reason = "trade context busy"
		default:
			return true
		}

		if e.now().Sub(start) > e.budget {
			e.logger.Warn(ctx, op+": venue not ready, giving up", map[string]interface{}{"reason": reason})
			return false
		}
		if err := e.sleep(ctx, b.Duration()); err != nil {
			return false
		}
	}
}
