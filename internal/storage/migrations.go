package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunMigrations creates the four campaign tables if they do not exist.
//
// revealed_cells is the grid state; cell_allocations attributes each revealed
// cell to the payment event that revealed it; processed_events is the
// exactly-once ledger; donations is the append-only audit trail. Deleting a
// revealed cell cascades to its allocation, though nothing in normal
// operation ever deletes cells.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS revealed_cells (
			x          INT NOT NULL,
			y          INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

			PRIMARY KEY (x, y)
		);

		CREATE TABLE IF NOT EXISTS processed_events (
			event_id   TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS donations (
			id                 BIGSERIAL PRIMARY KEY,
			event_id           TEXT NOT NULL,
			amount_minor_units BIGINT NOT NULL,
			message            TEXT NOT NULL DEFAULT '',
			cells_allocated    INT NOT NULL DEFAULT 0,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_donations_event
			ON donations (event_id);

		CREATE TABLE IF NOT EXISTS cell_allocations (
			x          INT NOT NULL,
			y          INT NOT NULL,
			event_id   TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

			PRIMARY KEY (x, y),
			FOREIGN KEY (x, y) REFERENCES revealed_cells (x, y) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_cell_allocations_event
			ON cell_allocations (event_id);
	`

	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
