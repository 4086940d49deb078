package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
// Money columns are NUMERIC and travel as decimal strings.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	id, token, symbol, status, entry_venue, venue, pool,
	entry_cost::text, entry_price, entry_token_amount, entry_tx, opened_at,
	exit_price, exit_token_amount, exit_proceeds::text, exit_tx, exit_reason, closed_at,
	fail_reason, migrated, last_price, last_liquidity, updated_at
`

// Upsert inserts or replaces a position by ID.
// Returns ErrDuplicateKey if another active position holds the same token.
func (s *PositionStore) Upsert(ctx context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" || p.Token == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO positions (
			id, token, symbol, status, entry_venue, venue, pool,
			entry_cost, entry_price, entry_token_amount, entry_tx, opened_at,
			exit_price, exit_token_amount, exit_proceeds, exit_tx, exit_reason, closed_at,
			fail_reason, migrated, last_price, last_liquidity, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23
		)
		ON CONFLICT (id) DO UPDATE SET
			symbol             = EXCLUDED.symbol,
			status             = EXCLUDED.status,
			entry_venue        = EXCLUDED.entry_venue,
			venue              = EXCLUDED.venue,
			pool               = EXCLUDED.pool,
			entry_cost         = EXCLUDED.entry_cost,
			entry_price        = EXCLUDED.entry_price,
			entry_token_amount = EXCLUDED.entry_token_amount,
			entry_tx           = EXCLUDED.entry_tx,
			opened_at          = EXCLUDED.opened_at,
			exit_price         = EXCLUDED.exit_price,
			exit_token_amount  = EXCLUDED.exit_token_amount,
			exit_proceeds      = EXCLUDED.exit_proceeds,
			exit_tx            = EXCLUDED.exit_tx,
			exit_reason        = EXCLUDED.exit_reason,
			closed_at          = EXCLUDED.closed_at,
			fail_reason        = EXCLUDED.fail_reason,
			migrated           = EXCLUDED.migrated,
			last_price         = EXCLUDED.last_price,
			last_liquidity     = EXCLUDED.last_liquidity,
			updated_at         = EXCLUDED.updated_at
	`,
		p.ID, p.Token, p.Symbol, string(p.Status), string(p.EntryVenue), string(p.Venue), p.Pool,
		p.EntryCost.String(), p.EntryPrice, int64(p.EntryTokenAmount), p.EntryTx, nullTime(p.OpenedAt),
		p.ExitPrice, int64(p.ExitTokenAmount), p.ExitProceeds.String(), p.ExitTx, string(p.ExitReason), nullTime(p.ClosedAt),
		p.FailReason, p.Migrated, p.LastPrice, p.LastLiquidity, updatedAt(p.UpdatedAt),
	)
	return mapError("upsert position", err)
}

// GetByID retrieves a position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (*domain.Position, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		return nil, mapError("get position", err)
	}
	return p, nil
}

// ListByStatus retrieves positions in any of the given statuses, ordered by opened_at ASC.
func (s *PositionStore) ListByStatus(ctx context.Context, statuses ...domain.PositionStatus) ([]*domain.Position, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE status = ANY($1)
		ORDER BY opened_at ASC NULLS LAST, id ASC
	`, names)
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

	rows, err := s.pool.Query(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE status = $1
		ORDER BY closed_at DESC
		LIMIT $2
	`, string(domain.StatusClosed), limit)
	if err != nil {
		return nil, fmt.Errorf("query closed positions: %w", err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

func collectPositions(rows pgx.Rows) ([]*domain.Position, error) {
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

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var (
		p                         domain.Position
		status, entryVenue, venue string
		exitReason                string
		entryCost, exitProceeds   string
		entryAmount, exitAmount   int64
		openedAt, closedAt        *time.Time
	)

	err := row.Scan(
		&p.ID, &p.Token, &p.Symbol, &status, &entryVenue, &venue, &p.Pool,
		&entryCost, &p.EntryPrice, &entryAmount, &p.EntryTx, &openedAt,
		&p.ExitPrice, &exitAmount, &exitProceeds, &p.ExitTx, &exitReason, &closedAt,
		&p.FailReason, &p.Migrated, &p.LastPrice, &p.LastLiquidity, &p.UpdatedAt,
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
	if openedAt != nil {
		p.OpenedAt = *openedAt
	}
	if closedAt != nil {
		p.ClosedAt = *closedAt
	}

	if p.EntryCost, err = decimal.NewFromString(entryCost); err != nil {
		return nil, fmt.Errorf("parse entry_cost %q: %w", entryCost, err)
	}
	if p.ExitProceeds, err = decimal.NewFromString(exitProceeds); err != nil {
		return nil, fmt.Errorf("parse exit_proceeds %q: %w", exitProceeds, err)
	}
	return &p, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func updatedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
