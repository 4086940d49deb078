// Package sqlite provides a single-file position journal for hosts without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
    id                 TEXT PRIMARY KEY,
    token              TEXT    NOT NULL,
    symbol             TEXT    NOT NULL DEFAULT '',
    status             TEXT    NOT NULL,
    entry_venue        TEXT    NOT NULL DEFAULT '',
    venue              TEXT    NOT NULL DEFAULT '',
    pool               TEXT    NOT NULL DEFAULT '',
    entry_cost         TEXT    NOT NULL DEFAULT '0',
    entry_price        REAL    NOT NULL DEFAULT 0,
    entry_token_amount INTEGER NOT NULL DEFAULT 0,
    entry_tx           TEXT    NOT NULL DEFAULT '',
    opened_at          INTEGER NOT NULL DEFAULT 0,
    exit_price         REAL    NOT NULL DEFAULT 0,
    exit_token_amount  INTEGER NOT NULL DEFAULT 0,
    exit_proceeds      TEXT    NOT NULL DEFAULT '0',
    exit_tx            TEXT    NOT NULL DEFAULT '',
    exit_reason        TEXT    NOT NULL DEFAULT '',
    closed_at          INTEGER NOT NULL DEFAULT 0,
    fail_reason        TEXT    NOT NULL DEFAULT '',
    migrated           INTEGER NOT NULL DEFAULT 0,
    last_price         REAL    NOT NULL DEFAULT 0,
    last_liquidity     REAL    NOT NULL DEFAULT 0,
    updated_at         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status, opened_at);
CREATE INDEX IF NOT EXISTS idx_positions_closed ON positions(closed_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS uq_positions_active_token
    ON positions(token) WHERE status IN ('PENDING', 'OPEN', 'EXITING');
`

// Timestamps are stored as unix milliseconds, 0 meaning unset.
const positionColumns = `
	id, token, symbol, status, entry_venue, venue, pool,
	entry_cost, entry_price, entry_token_amount, entry_tx, opened_at,
	exit_price, exit_token_amount, exit_proceeds, exit_tx, exit_reason, closed_at,
	fail_reason, migrated, last_price, last_liquidity, updated_at
`

// PositionStore implements storage.PositionStore using SQLite (pure Go, no CGo).
type PositionStore struct {
	db *sql.DB
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*PositionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &PositionStore{db: db}, nil
}

// Close closes the database.
func (s *PositionStore) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces a position by ID.
// Returns ErrDuplicateKey if another active position holds the same token.
func (s *PositionStore) Upsert(ctx context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" || p.Token == "" {
		return storage.ErrInvalidInput
	}

	migrated := 0
	if p.Migrated {
		migrated = 1
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (`+positionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			symbol             = excluded.symbol,
			status             = excluded.status,
			entry_venue        = excluded.entry_venue,
			venue              = excluded.venue,
			pool               = excluded.pool,
			entry_cost         = excluded.entry_cost,
			entry_price        = excluded.entry_price,
			entry_token_amount = excluded.entry_token_amount,
			entry_tx           = excluded.entry_tx,
			opened_at          = excluded.opened_at,
			exit_price         = excluded.exit_price,
			exit_token_amount  = excluded.exit_token_amount,
			exit_proceeds      = excluded.exit_proceeds,
			exit_tx            = excluded.exit_tx,
			exit_reason        = excluded.exit_reason,
			closed_at          = excluded.closed_at,
			fail_reason        = excluded.fail_reason,
			migrated           = excluded.migrated,
			last_price         = excluded.last_price,
			last_liquidity     = excluded.last_liquidity,
			updated_at         = excluded.updated_at
	`,
		p.ID, p.Token, p.Symbol, string(p.Status), string(p.EntryVenue), string(p.Venue), p.Pool,
		p.EntryCost.String(), p.EntryPrice, int64(p.EntryTokenAmount), p.EntryTx, unixMilli(p.OpenedAt),
		p.ExitPrice, int64(p.ExitTokenAmount), p.ExitProceeds.String(), p.ExitTx, string(p.ExitReason), unixMilli(p.ClosedAt),
		p.FailReason, migrated, p.LastPrice, p.LastLiquidity, unixMilli(updated),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// GetByID retrieves a position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// ListByStatus retrieves positions in any of the given statuses, ordered by opened_at ASC.
func (s *PositionStore) ListByStatus(ctx context.Context, statuses ...domain.PositionStatus) ([]*domain.Position, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE status IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY opened_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query positions by status: %w", err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

// ListClosed retrieves up to limit CLOSED positions, most recently closed first.
func (s *PositionStore) ListClosed(ctx context.Context, limit int) ([]*domain.Position, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE status = ?
		ORDER BY closed_at DESC
		LIMIT ?
	`, string(domain.StatusClosed), limit)
	if err != nil {
		return nil, fmt.Errorf("query closed positions: %w", err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

func collectPositions(rows *sql.Rows) ([]*domain.Position, error) {
	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row scanner) (*domain.Position, error) {
	var (
		p                                     domain.Position
		status, entryVenue, venue, exitReason string
		entryCost, exitProceeds               string
		entryAmount, exitAmount               int64
		openedAt, closedAt, updated           int64
		migrated                              int
	)

	err := row.Scan(
		&p.ID, &p.Token, &p.Symbol, &status, &entryVenue, &venue, &p.Pool,
		&entryCost, &p.EntryPrice, &entryAmount, &p.EntryTx, &openedAt,
		&p.ExitPrice, &exitAmount, &exitProceeds, &p.ExitTx, &exitReason, &closedAt,
		&p.FailReason, &migrated, &p.LastPrice, &p.LastLiquidity, &updated,
	)
	if err != nil {
		return nil, err
	}

	p.Status = domain.PositionStatus(status)
	p.EntryVenue = domain.Venue(entryVenue)
	p.Venue = domain.Venue(venue)
	p.ExitReason = domain.ExitReason(exitReason)
	p.EntryTokenAmount = uint64(entryAmount)
	p.ExitTokenAmount = uint64(exitAmount)
	p.Migrated = migrated != 0
	p.OpenedAt = fromUnixMilli(openedAt)
	p.ClosedAt = fromUnixMilli(closedAt)
	p.UpdatedAt = fromUnixMilli(updated)

	if p.EntryCost, err = decimal.NewFromString(entryCost); err != nil {
		return nil, fmt.Errorf("parse entry_cost %q: %w", entryCost, err)
	}
	if p.ExitProceeds, err = decimal.NewFromString(exitProceeds); err != nil {
		return nil, fmt.Errorf("parse exit_proceeds %q: %w", exitProceeds, err)
	}
	return &p, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
