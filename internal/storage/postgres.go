package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pixelwall/pixelwall/internal/grid"
)

// PostgresStore implements Store using PostgreSQL.
//
// The CAS primitives are INSERT ... ON CONFLICT DO NOTHING against the
// primary keys, so concurrent allocators racing on the same coordinate are
// arbitrated by the database: exactly one insert reports a row affected.
type PostgresStore struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
	txTimeout    time.Duration
}

// NewPostgresStore creates a Store backed by the given pool. queryTimeout
// bounds individual reads, txTimeout bounds a whole allocation transaction;
// zero means no timeout.
func NewPostgresStore(pool *pgxpool.Pool, queryTimeout, txTimeout time.Duration) *PostgresStore {
	return &PostgresStore{
		pool:         pool,
		queryTimeout: queryTimeout,
		txTimeout:    txTimeout,
	}
}

// withTimeout derives a child context with the configured timeout.
// If d is zero, the parent context is returned unchanged.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return ctx, func() {}
}

// InTx runs fn inside one database transaction. Any error from fn, or from
// commit, rolls the whole unit back.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx GridTx) error) error {
	ctx, cancel := withTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgGridTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// pgGridTx is the transaction-scoped GridTx over a pgx.Tx.
type pgGridTx struct {
	tx pgx.Tx
}

func (t *pgGridTx) TryInsertEvent(ctx context.Context, eventID string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO processed_events (event_id)
		VALUES ($1)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgGridTx) TryRevealCell(ctx context.Context, x, y int) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO revealed_cells (x, y)
		VALUES ($1, $2)
		ON CONFLICT (x, y) DO NOTHING
	`, x, y)
	if err != nil {
		return false, fmt.Errorf("reveal cell: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgGridTx) RecordAllocation(ctx context.Context, x, y int, eventID string) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO cell_allocations (x, y, event_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (x, y) DO NOTHING
	`, x, y, eventID)
	if err != nil {
		return fmt.Errorf("record allocation: %w", err)
	}
	return nil
}

func (t *pgGridTx) InsertDonation(ctx context.Context, d grid.Donation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO donations (event_id, amount_minor_units, message, cells_allocated)
		VALUES ($1, $2, $3, $4)
	`, d.EventID, d.AmountMinorUnits, d.Message, d.CellsAllocated)
	if err != nil {
		return fmt.Errorf("insert donation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Snapshot(ctx context.Context, cursor string, limit int) (*SnapshotPage, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	afterX, afterY := -1, -1
	if cursor != "" {
		c, err := DecodeCursor(cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		afterX, afterY = c.X, c.Y
	}

	query := `
		SELECT rc.x, rc.y,
		       COALESCE(ca.event_id, ''),
		       COALESCE(d.amount_minor_units, 0),
		       COALESCE(d.message, '')
		FROM revealed_cells rc
		LEFT JOIN cell_allocations ca ON ca.x = rc.x AND ca.y = rc.y
		LEFT JOIN donations d ON d.event_id = ca.event_id
		WHERE (rc.x, rc.y) > ($1, $2)
		ORDER BY rc.x, rc.y
	`
	args := []any{afterX, afterY}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer rows.Close()

	var cells []grid.SnapshotCell
	for rows.Next() {
		var c grid.SnapshotCell
		if err := rows.Scan(&c.X, &c.Y, &c.EventID, &c.AmountMinorUnits, &c.Message); err != nil {
			return nil, fmt.Errorf("snapshot scan: %w", err)
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot rows: %w", err)
	}

	page := &SnapshotPage{Cells: cells}

	if limit > 0 && len(cells) == limit {
		last := cells[len(cells)-1]
		next := Cursor{X: last.X, Y: last.Y}
		encoded, err := next.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode next cursor: %w", err)
		}
		page.NextCursor = encoded
		page.HasMore = true
	}

	return page, nil
}

func (s *PostgresStore) CellDetail(ctx context.Context, x, y int) (*grid.CellDetail, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	var d grid.CellDetail
	err := s.pool.QueryRow(ctx, `
		SELECT rc.x, rc.y,
		       COALESCE(ca.event_id, ''),
		       COALESCE(d.amount_minor_units, 0),
		       COALESCE(d.message, ''),
		       rc.created_at
		FROM revealed_cells rc
		LEFT JOIN cell_allocations ca ON ca.x = rc.x AND ca.y = rc.y
		LEFT JOIN donations d ON d.event_id = ca.event_id
		WHERE rc.x = $1 AND rc.y = $2
	`, x, y).Scan(&d.X, &d.Y, &d.EventID, &d.AmountMinorUnits, &d.Message, &d.RevealedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCellNotRevealed
		}
		return nil, fmt.Errorf("cell detail: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) RevealedCount(ctx context.Context) (int, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM revealed_cells`).Scan(&n); err != nil {
		return 0, fmt.Errorf("revealed count: %w", err)
	}
	return n, nil
}
