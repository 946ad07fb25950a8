package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fnf/trading-core/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertPosition(ctx context.Context, p *model.Position) error {
	var closedAt *time.Time
	if !p.ClosedAt.IsZero() {
		closedAt = &p.ClosedAt
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (id, symbol, quantity, entry_price, status, opened_at, closed_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6, $7)`,
		p.ID, p.Symbol,
		p.Quantity.String(), p.EntryPrice.String(),
		p.Status, p.OpenedAt, closedAt,
	)
	return err
}

func (s *PostgresStore) UpdatePosition(ctx context.Context, p *model.Position) error {
	var closedAt *time.Time
	if !p.ClosedAt.IsZero() {
		closedAt = &p.ClosedAt
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE positions
		 SET quantity = $2::NUMERIC, status = $3, closed_at = $4
		 WHERE id = $1`,
		p.ID, p.Quantity.String(), p.Status, closedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, p.ID)
	}
	return nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, id string) (*model.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx,
		`SELECT id, symbol, quantity::TEXT, entry_price::TEXT, status, opened_at, closed_at
		 FROM positions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get position %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context, status string) ([]model.Position, error) {
	query := `SELECT id, symbol, quantity::TEXT, entry_price::TEXT, status, opened_at, closed_at
	          FROM positions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY opened_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) InsertEvent(ctx context.Context, e *model.LedgerEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_events (id, position_id, symbol, kind, delta, price, quantity_after, related_id, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9)`,
		e.ID, e.PositionID, e.Symbol, e.Kind,
		e.Delta.String(), e.Price.String(), e.QuantityAfter.String(),
		e.RelatedID, e.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetEventsByPosition(ctx context.Context, positionID string) ([]model.LedgerEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, position_id, symbol, kind,
		        delta::TEXT, price::TEXT, quantity_after::TEXT, related_id, timestamp
		 FROM ledger_events WHERE position_id = $1 ORDER BY timestamp`, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.LedgerEvent
	for rows.Next() {
		var e model.LedgerEvent
		var deltaS, priceS, afterS string

		if err := rows.Scan(&e.ID, &e.PositionID, &e.Symbol, &e.Kind,
			&deltaS, &priceS, &afterS, &e.RelatedID, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Delta, _ = decimal.NewFromString(deltaS)
		e.Price, _ = decimal.NewFromString(priceS)
		e.QuantityAfter, _ = decimal.NewFromString(afterS)

		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) GetSymbolExposures(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, COALESCE(SUM(quantity), 0)::TEXT AS net_exposure
		 FROM positions
		 WHERE status = 'OPEN'
		 GROUP BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exposures := make(map[string]decimal.Decimal)
	for rows.Next() {
		var sym, expStr string
		if err := rows.Scan(&sym, &expStr); err != nil {
			return nil, err
		}
		exp, _ := decimal.NewFromString(expStr)
		exposures[sym] = exp
	}

	return exposures, rows.Err()
}

// scanPosition reads one position row, converting NUMERIC text to decimal.
func scanPosition(row pgx.Row) (*model.Position, error) {
	var p model.Position
	var qtyS, entryS string
	var closedAt *time.Time

	if err := row.Scan(&p.ID, &p.Symbol, &qtyS, &entryS,
		&p.Status, &p.OpenedAt, &closedAt); err != nil {
		return nil, err
	}

	p.Quantity, _ = decimal.NewFromString(qtyS)
	p.EntryPrice, _ = decimal.NewFromString(entryS)
	if closedAt != nil {
		p.ClosedAt = *closedAt
	}
	return &p, nil
}
