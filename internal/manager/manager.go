// Package manager owns every tracked position and keeps the collection in
// step with the venue.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradeKeeper/internal/broker"
	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/position"
	"tradeKeeper/internal/ports"
	"tradeKeeper/internal/risk"
)

// Config carries the collaborators and settings of a Manager.
type Config struct {
	Venue     ports.Venue
	Broker    position.Broker
	Risk      *risk.RiskManager
	Logger    ports.Logger
	Journal   ports.Journal          // optional
	Emergency ports.EmergencyHandler // optional
	Params    position.Params

	OrderCheckDelay   time.Duration // cool-down after an unresolved submission
	DelayAfterOrder   time.Duration // pause before confirming a trading call
	MinModifyInterval time.Duration
	MinutesPerBar     int
	PendingValidBars  int
	MaxPerTactic      int
	AllowedSlippage   int64 // points, market orders

	RunID string
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Manager is the aggregate root of the tracked positions. It is safe for
// concurrent use; every entry point runs under one mutex.
type Manager struct {
	cfg    Config
	env    *position.Env
	logger ports.Logger

	mu                  sync.Mutex
	positions           map[int64]*position.Position // every position ever seen, by ticket
	unresolved          map[int64]*position.Position // by correlation id
	unboundPredecessors map[int64]decimal.Decimal    // predecessor ticket -> expected residual
	views               map[domain.Tactic]map[int64]*position.Position
	oldies              map[int64]bool // history tickets found at adoption
	touched             map[int64]bool
	idCounter           int64
	tick                int64
	dontOpenUntil       time.Time
	locked              bool
	inEmergency         bool
	pendingEmergency    error
}

// New creates a Manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Venue == nil || cfg.Broker == nil || cfg.Risk == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Manager")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = broker.Sleep
	}
	if cfg.MaxPerTactic <= 0 {
		cfg.MaxPerTactic = 1
	}
	if cfg.MinutesPerBar <= 0 {
		cfg.MinutesPerBar = 1
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	m := &Manager{
		cfg:                 cfg,
		logger:              cfg.Logger,
		positions:           make(map[int64]*position.Position),
		unresolved:          make(map[int64]*position.Position),
		unboundPredecessors: make(map[int64]decimal.Decimal),
		views:               make(map[domain.Tactic]map[int64]*position.Position),
		oldies:              make(map[int64]bool),
		touched:             make(map[int64]bool),
	}
	for _, t := range domain.Tactics {
		m.views[t] = make(map[int64]*position.Position)
	}
	m.env = &position.Env{
		Trader: cfg.Venue,
		Broker: cfg.Broker,
		Logger: cfg.Logger,
		Params: cfg.Params,
		Now:    cfg.Now,
		Tick:   func() int64 { return m.tick },
	}
	if err := m.env.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// RunID identifies this run in the journal.
func (m *Manager) RunID() string { return m.cfg.RunID }

// Active returns the active positions of a tactic, ordered by ticket.
func (m *Manager) Active(t domain.Tactic) []*position.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedByTicket(m.views[t])
}

// Position returns a tracked position by ticket.
func (m *Manager) Position(ticket int64) (*position.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[ticket]
	return p, ok
}

// Unresolved returns the submissions whose outcome is still unknown.
func (m *Manager) Unresolved() []*position.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unresolvedSorted()
}

func (m *Manager) unresolvedSorted() []*position.Position {
	ids := make([]int64, 0, len(m.unresolved))
	for id := range m.unresolved {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*position.Position, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.unresolved[id])
	}
	return out
}

// Margin returns the aggregates of the last margin update.
func (m *Manager) Margin() risk.Margin {
	return m.cfg.Risk.GetStats()
}

// Tick returns the number of reconciliation passes run so far.
func (m *Manager) Tick() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tick
}

// Lock permanently refuses new positions.
func (m *Manager) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = true
}

// Locked reports whether opening is refused, permanently or for the
// cool-down after an unresolved submission.
func (m *Manager) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked || m.cfg.Now().Before(m.dontOpenUntil)
}

func sortedByTicket(set map[int64]*position.Position) []*position.Position {
	out := make([]*position.Position, 0, len(set))
	for _, p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket() < out[j].Ticket() })
	return out
}

func (m *Manager) isEngineOrder(o domain.VenueOrder) bool {
	return o.Symbol == m.cfg.Params.Symbol && m.cfg.Params.IsEngineMagic(o.Magic)
}

func (m *Manager) market(ctx context.Context) (domain.Market, error) {
	mkt, err := m.cfg.Venue.Market(ctx, m.cfg.Params.Symbol)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market data failed: %w", err)
	}
	return mkt, nil
}

// track inserts a position with a ticket into the collection and its view.
func (m *Manager) track(p *position.Position) {
	m.positions[p.Ticket()] = p
	m.touched[p.Ticket()] = true
	if p.IsActive() {
		m.views[p.Tactic()][p.Ticket()] = p
	}
}

func (m *Manager) untrackIfSettled(p *position.Position) {
	if !p.IsActive() {
		delete(m.views[p.Tactic()], p.Ticket())
		return
	}
	m.views[p.Tactic()][p.Ticket()] = p
}

func (m *Manager) activeCount(t domain.Tactic) int {
	n := len(m.views[t])
	for _, p := range m.unresolved {
		if p.Tactic() == t {
			n++
		}
	}
	return n
}

// emergency locks opening. The strategy host is notified once, after the
// mutex is released.
func (m *Manager) emergency(ctx context.Context, reason error) {
	m.locked = true
	if m.inEmergency {
		m.logger.Error(ctx, reason, "Manager: failure while in emergency mode")
		return
	}
	m.inEmergency = true
	m.logger.Error(ctx, reason, "Manager: entering emergency mode")
	m.record(ctx, 0, domain.EventEmergency, reason.Error())
	m.pendingEmergency = reason
}

// unlock releases the mutex, then notifies the emergency handler of a
// failure raised while it was held.
func (m *Manager) unlock(ctx context.Context) {
	reason := m.pendingEmergency
	m.pendingEmergency = nil
	m.mu.Unlock()
	if reason != nil && m.cfg.Emergency != nil {
		m.cfg.Emergency.EnterEmergency(ctx, reason)
	}
}

// escalate enters emergency mode for desync and fatal broker errors and
// returns err unchanged.
func (m *Manager) escalate(ctx context.Context, err error) error {
	if errors.Is(err, ports.ErrDesync) || errors.Is(err, ports.ErrBrokerFatal) {
		m.emergency(ctx, err)
	}
	return err
}

func (m *Manager) pause(ctx context.Context) {
	if m.cfg.DelayAfterOrder <= 0 {
		return
	}
	_ = m.cfg.Sleep(ctx, m.cfg.DelayAfterOrder)
}
