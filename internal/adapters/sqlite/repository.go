package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradeKeeper/internal/domain"
	"tradeKeeper/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.Journal using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
	now    func() time.Time
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
	Now    func() time.Time
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/journal.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// One writer; the update loop and the dump tool never overlap within a process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger, now: cfg.Now}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS positions (
		ticket INTEGER PRIMARY KEY,
		correlation_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		tactic INTEGER NOT NULL,
		direction INTEGER NOT NULL,
		kind INTEGER NOT NULL,
		status TEXT NOT NULL,
		volume TEXT NOT NULL,
		open_price TEXT NOT NULL,
		close_price TEXT NOT NULL,
		stop_loss TEXT NOT NULL,
		take_profit TEXT NOT NULL,
		total_profit TEXT NOT NULL,
		open_time TIMESTAMP DEFAULT NULL,
		close_time TIMESTAMP DEFAULT NULL,
		predecessor INTEGER NOT NULL DEFAULT 0,
		successor INTEGER NOT NULL DEFAULT 0,
		closed_by INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS journal_events (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		ticket INTEGER NOT NULL DEFAULT 0,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_positions_status ON positions (status);
	CREATE INDEX IF NOT EXISTS idx_journal_events_run_kind ON journal_events (run_id, kind);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w: %w", ports.ErrQueryFailed, err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- PositionJournal Implementation ---

// SavePosition inserts or replaces the snapshot for a ticket.
func (r *Repository) SavePosition(ctx context.Context, rec *domain.PositionRecord) error {
	if rec == nil || rec.Ticket == 0 {
		return fmt.Errorf("SavePosition failed: %w: ticket is required", ports.ErrInvalidRequest)
	}
	const query = `
	INSERT INTO positions (ticket, correlation_id, symbol, tactic, direction, kind, status, volume,
	                       open_price, close_price, stop_loss, take_profit, total_profit,
	                       open_time, close_time, predecessor, successor, closed_by, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(ticket) DO UPDATE SET
		correlation_id = excluded.correlation_id, tactic = excluded.tactic,
		kind = excluded.kind, status = excluded.status, volume = excluded.volume,
		open_price = excluded.open_price, close_price = excluded.close_price,
		stop_loss = excluded.stop_loss, take_profit = excluded.take_profit,
		total_profit = excluded.total_profit, open_time = excluded.open_time,
		close_time = excluded.close_time, predecessor = excluded.predecessor,
		successor = excluded.successor, closed_by = excluded.closed_by,
		updated_at = excluded.updated_at`

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, query,
		rec.Ticket, rec.CorrelationID, rec.Symbol, int(rec.Tactic), int(rec.Direction), int(rec.Kind),
		rec.Status.String(), rec.Volume.String(), rec.OpenPrice.String(), rec.ClosePrice.String(),
		rec.StopLoss.String(), rec.TakeProfit.String(), rec.TotalProfit.String(),
		nullTime(rec.OpenTime), nullTime(rec.CloseTime),
		rec.Predecessor, rec.Successor, rec.ClosedBy, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to save position %d: %w: %w", rec.Ticket, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Position saved", map[string]interface{}{"ticket": rec.Ticket, "status": rec.Status.String()})
	return nil
}

const positionColumns = `
	SELECT ticket, correlation_id, symbol, tactic, direction, kind, status, volume,
	       open_price, close_price, stop_loss, take_profit, total_profit,
	       open_time, close_time, predecessor, successor, closed_by, updated_at
	FROM positions`

// FindByTicket retrieves a snapshot by ticket. Returns nil, nil if not found.
func (r *Repository) FindByTicket(ctx context.Context, ticket int64) (*domain.PositionRecord, error) {
	row := r.db.QueryRowContext(ctx, positionColumns+` WHERE ticket = ?`, ticket)
	rec, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Position not found by ticket", map[string]interface{}{"ticket": ticket})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query position %d: %w: %w", ticket, ports.ErrQueryFailed, err)
	}
	return rec, nil
}

// FindActive retrieves snapshots recorded as Pending or Opened.
func (r *Repository) FindActive(ctx context.Context) ([]*domain.PositionRecord, error) {
	return r.queryPositions(ctx, positionColumns+` WHERE status IN (?, ?) ORDER BY ticket`,
		domain.StatusPending.String(), domain.StatusOpened.String())
}

// FindAll retrieves all snapshots, ordered by ticket.
func (r *Repository) FindAll(ctx context.Context) ([]*domain.PositionRecord, error) {
	return r.queryPositions(ctx, positionColumns+` ORDER BY ticket`)
}

func (r *Repository) queryPositions(ctx context.Context, query string, args ...interface{}) ([]*domain.PositionRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	records := make([]*domain.PositionRecord, 0)
	for rows.Next() {
		rec, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return records, nil
}

// GetTotalProfit sums the total profit of closed positions.
func (r *Repository) GetTotalProfit(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(CAST(total_profit AS REAL)), 0) FROM positions WHERE status = ?`
	var total float64
	err := r.db.QueryRowContext(ctx, query, domain.StatusClosed.String()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate total profit: %w: %w", ports.ErrQueryFailed, err)
	}
	return total, nil
}

// --- EventJournal Implementation ---

// AppendEvent saves an event and returns its id. A missing id is generated.
func (r *Repository) AppendEvent(ctx context.Context, ev *domain.JournalEvent) (string, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	const query = `
	INSERT INTO journal_events (id, run_id, ticket, kind, message, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, ev.ID, ev.RunID, ev.Ticket, string(ev.Kind), ev.Message, ev.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to append %s event: %w: %w", ev.Kind, ports.ErrUpdateFailed, err)
	}
	return ev.ID, nil
}

// ListEvents retrieves the most recent events, up to a limit.
func (r *Repository) ListEvents(ctx context.Context, limit int) ([]*domain.JournalEvent, error) {
	const query = `
	SELECT id, run_id, ticket, kind, message, created_at
	FROM journal_events
	ORDER BY created_at DESC, rowid DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal events: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	events := make([]*domain.JournalEvent, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal event: %w", err)
		}
		events = append(events, ev)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal event rows: %w", err)
	}
	return events, nil
}

// CountByKind counts events of a kind recorded by a run.
func (r *Repository) CountByKind(ctx context.Context, runID string, kind domain.EventKind) (int, error) {
	const query = `SELECT COUNT(*) FROM journal_events WHERE run_id = ? AND kind = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, runID, string(kind)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s events: %w: %w", kind, ports.ErrQueryFailed, err)
	}
	return count, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(s scanner) (*domain.PositionRecord, error) {
	p := &domain.PositionRecord{}
	var tactic, direction, kind int
	var status string
	var volume, openPrice, closePrice, sl, tp, total decimal.Decimal
	var openTime, closeTime sql.NullTime
	err := s.Scan(
		&p.Ticket, &p.CorrelationID, &p.Symbol, &tactic, &direction, &kind, &status, &volume,
		&openPrice, &closePrice, &sl, &tp, &total,
		&openTime, &closeTime, &p.Predecessor, &p.Successor, &p.ClosedBy, &p.UpdatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	st, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	p.Tactic = domain.Tactic(tactic)
	p.Direction = domain.Direction(direction)
	p.Kind = domain.OperationKind(kind)
	p.Status = st
	p.Volume, p.OpenPrice, p.ClosePrice = volume, openPrice, closePrice
	p.StopLoss, p.TakeProfit, p.TotalProfit = sl, tp, total
	if openTime.Valid {
		p.OpenTime = openTime.Time
	}
	if closeTime.Valid {
		p.CloseTime = closeTime.Time
	}
	return p, nil
}

func scanEvent(s scanner) (*domain.JournalEvent, error) {
	ev := &domain.JournalEvent{}
	var kind string
	if err := s.Scan(&ev.ID, &ev.RunID, &ev.Ticket, &kind, &ev.Message, &ev.CreatedAt); err != nil {
		return nil, err
	}
	ev.Kind = domain.EventKind(kind)
	return ev, nil
}

func parseStatus(s string) (domain.Status, error) {
	for _, st := range []domain.Status{domain.StatusPending, domain.StatusOpened, domain.StatusClosed, domain.StatusDeleted, domain.StatusUnknown} {
		if st.String() == s {
			return st, nil
		}
	}
	return domain.StatusUnknown, fmt.Errorf("unknown position status %q", s)
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
