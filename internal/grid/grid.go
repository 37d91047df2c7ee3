package grid

import "time"

// Coord identifies a single cell on the campaign grid.
// Valid coordinates satisfy 0 <= X < W and 0 <= Y < H.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Neighbors returns the four axis-aligned neighbors of c.
// Callers are responsible for bounds filtering.
func (c Coord) Neighbors() [4]Coord {
	return [4]Coord{
		{X: c.X + 1, Y: c.Y},
		{X: c.X - 1, Y: c.Y},
		{X: c.X, Y: c.Y + 1},
		{X: c.X, Y: c.Y - 1},
	}
}

// Less orders coordinates by (x, y) ascending. Snapshots use this order
// so consecutive snapshots are diffable by clients.
func (c Coord) Less(o Coord) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	return c.Y < o.Y
}

// RevealedCell is an immutable record of a cell that has been revealed.
// Cells are only ever added, never removed, for the lifetime of a campaign.
type RevealedCell struct {
	X         int       `json:"x"`
	Y         int       `json:"y"`
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotCell is a revealed cell enriched with its allocation and donation
// metadata where present. EventID is empty for cells with no allocation row.
type SnapshotCell struct {
	X                int    `json:"x"`
	Y                int    `json:"y"`
	EventID          string `json:"event_id,omitempty"`
	AmountMinorUnits int64  `json:"amount_minor_units,omitempty"`
	Message          string `json:"message,omitempty"`
}

// CellDetail answers "what/who revealed this cell": the join of a revealed
// cell, its allocation, and the donation recorded for the owning event.
type CellDetail struct {
	X                int       `json:"x"`
	Y                int       `json:"y"`
	EventID          string    `json:"event_id,omitempty"`
	AmountMinorUnits int64     `json:"amount_minor_units,omitempty"`
	Message          string    `json:"message,omitempty"`
	RevealedAt       time.Time `json:"revealed_at"`
}

// Donation is an append-only audit row for one processed payment event.
// CellsAllocated may be zero for message-only donations, and may be lower
// than the amount paid for when the grid runs out of unrevealed cells.
type Donation struct {
	ID               int64     `json:"id"`
	EventID          string    `json:"event_id"`
	AmountMinorUnits int64     `json:"amount_minor_units"`
	Message          string    `json:"message"`
	CellsAllocated   int       `json:"cells_allocated"`
	CreatedAt        time.Time `json:"created_at"`
}

// RevealEvent is broadcast to viewers after an allocation commits.
type RevealEvent struct {
	Type             string  `json:"type"`
	EventID          string  `json:"event_id"`
	AmountMinorUnits int64   `json:"amount_minor_units"`
	Message          string  `json:"message"`
	Cells            []Coord `json:"cells"`
}

// MessageEvent is broadcast for donations that bought no cells.
type MessageEvent struct {
	Type             string    `json:"type"`
	EventID          string    `json:"event_id"`
	AmountMinorUnits int64     `json:"amount_minor_units"`
	Message          string    `json:"message"`
	Timestamp        time.Time `json:"timestamp"`
}

// Broadcast event type tags.
const (
	EventTypeCellsRevealed = "cells_revealed"
	EventTypeMessageOnly   = "message_only"
)
