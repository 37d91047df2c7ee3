package storage

import (
	"context"
	"errors"

	"github.com/pixelwall/pixelwall/internal/grid"
)

// ErrCellNotRevealed is returned when a detail lookup finds no matching cell.
var ErrCellNotRevealed = errors.New("cell not revealed")

// GridTx is the transaction-scoped view of the store. All mutations made
// through one GridTx commit together or roll back together — a failed
// allocation run never leaves a partially revealed region behind.
//
// TryInsertEvent and TryRevealCell are constraint-backed compare-and-set
// inserts, never check-then-insert: exactly one caller among any concurrent
// set wins for a given key.
type GridTx interface {
	// TryInsertEvent records a payment event id in the processed-event
	// ledger. Returns true iff this call is the first to record it.
	TryInsertEvent(ctx context.Context, eventID string) (bool, error)

	// TryRevealCell marks (x, y) revealed. Returns true iff this call
	// transitioned it from unrevealed to revealed.
	TryRevealCell(ctx context.Context, x, y int) (bool, error)

	// RecordAllocation attaches the owning event to an already-revealed
	// cell. Duplicate calls for the same cell are harmless no-ops.
	RecordAllocation(ctx context.Context, x, y int, eventID string) error

	// InsertDonation appends a donation audit row.
	InsertDonation(ctx context.Context, d grid.Donation) error
}

// SnapshotPage is one page of the grid snapshot.
type SnapshotPage struct {
	Cells      []grid.SnapshotCell
	NextCursor string
	HasMore    bool
}

// Store is durable, consistent storage for cells, allocations, the
// processed-event ledger, and donation records.
type Store interface {
	// InTx runs fn inside a single atomic unit of work.
	InTx(ctx context.Context, fn func(tx GridTx) error) error

	// Snapshot returns revealed cells ordered by (x, y) ascending, each
	// enriched with allocation/donation metadata where present. A limit
	// <= 0 returns the full grid state in one page; otherwise pages are
	// chained through opaque cursors.
	Snapshot(ctx context.Context, cursor string, limit int) (*SnapshotPage, error)

	// CellDetail joins cell, allocation, and donation for one coordinate.
	// Returns ErrCellNotRevealed when the cell is unrevealed.
	CellDetail(ctx context.Context, x, y int) (*grid.CellDetail, error)

	// RevealedCount reports how many cells are currently revealed.
	RevealedCount(ctx context.Context) (int, error)
}
