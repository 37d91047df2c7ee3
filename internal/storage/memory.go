package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pixelwall/pixelwall/internal/grid"
)

// MemoryStore implements Store entirely in process memory. It satisfies the
// same atomicity contract as PostgresStore by holding a single mutex for the
// whole of each transaction and staging tx mutations in an overlay that is
// merged only on success. State does not survive a restart.
type MemoryStore struct {
	mu          sync.Mutex
	cells       map[grid.Coord]time.Time
	allocations map[grid.Coord]string
	events      map[string]time.Time
	donations   []grid.Donation
	byEvent     map[string]int // event id -> index into donations
	nextDonID   int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cells:       make(map[grid.Coord]time.Time),
		allocations: make(map[grid.Coord]string),
		events:      make(map[string]time.Time),
		byEvent:     make(map[string]int),
	}
}

// memGridTx stages mutations against a MemoryStore. Reads consult the base
// maps and the overlay; nothing touches the base until the merge in InTx.
type memGridTx struct {
	store     *MemoryStore
	revealed  map[grid.Coord]time.Time
	allocs    map[grid.Coord]string
	events    map[string]time.Time
	donations []grid.Donation
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx GridTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memGridTx{
		store:    s,
		revealed: make(map[grid.Coord]time.Time),
		allocs:   make(map[grid.Coord]string),
		events:   make(map[string]time.Time),
	}

	if err := fn(tx); err != nil {
		return err
	}

	for c, at := range tx.revealed {
		s.cells[c] = at
	}
	for c, ev := range tx.allocs {
		s.allocations[c] = ev
	}
	for ev, at := range tx.events {
		s.events[ev] = at
	}
	for _, d := range tx.donations {
		s.nextDonID++
		d.ID = s.nextDonID
		if _, seen := s.byEvent[d.EventID]; !seen {
			s.byEvent[d.EventID] = len(s.donations)
		}
		s.donations = append(s.donations, d)
	}
	return nil
}

func (t *memGridTx) TryInsertEvent(ctx context.Context, eventID string) (bool, error) {
	if _, ok := t.store.events[eventID]; ok {
		return false, nil
	}
	if _, ok := t.events[eventID]; ok {
		return false, nil
	}
	t.events[eventID] = time.Now()
	return true, nil
}

func (t *memGridTx) TryRevealCell(ctx context.Context, x, y int) (bool, error) {
	c := grid.Coord{X: x, Y: y}
	if _, ok := t.store.cells[c]; ok {
		return false, nil
	}
	if _, ok := t.revealed[c]; ok {
		return false, nil
	}
	t.revealed[c] = time.Now()
	return true, nil
}

func (t *memGridTx) RecordAllocation(ctx context.Context, x, y int, eventID string) error {
	c := grid.Coord{X: x, Y: y}
	if _, ok := t.store.allocations[c]; ok {
		return nil
	}
	if _, ok := t.allocs[c]; ok {
		return nil
	}
	t.allocs[c] = eventID
	return nil
}

func (t *memGridTx) InsertDonation(ctx context.Context, d grid.Donation) error {
	d.CreatedAt = time.Now()
	t.donations = append(t.donations, d)
	return nil
}

func (s *MemoryStore) Snapshot(ctx context.Context, cursor string, limit int) (*SnapshotPage, error) {
	afterX, afterY := -1, -1
	if cursor != "" {
		c, err := DecodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		afterX, afterY = c.X, c.Y
	}
	after := grid.Coord{X: afterX, Y: afterY}

	s.mu.Lock()
	defer s.mu.Unlock()

	coords := make([]grid.Coord, 0, len(s.cells))
	for c := range s.cells {
		if after.Less(c) {
			coords = append(coords, c)
		}
	}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })

	if limit > 0 && len(coords) > limit {
		coords = coords[:limit]
	}

	cells := make([]grid.SnapshotCell, 0, len(coords))
	for _, c := range coords {
		sc := grid.SnapshotCell{X: c.X, Y: c.Y}
		if ev, ok := s.allocations[c]; ok {
			sc.EventID = ev
			if idx, ok := s.byEvent[ev]; ok {
				sc.AmountMinorUnits = s.donations[idx].AmountMinorUnits
				sc.Message = s.donations[idx].Message
			}
		}
		cells = append(cells, sc)
	}

	page := &SnapshotPage{Cells: cells}
	if limit > 0 && len(cells) == limit {
		last := cells[len(cells)-1]
		next := Cursor{X: last.X, Y: last.Y}
		encoded, err := next.Encode()
		if err != nil {
			return nil, err
		}
		page.NextCursor = encoded
		page.HasMore = true
	}
	return page, nil
}

func (s *MemoryStore) CellDetail(ctx context.Context, x, y int) (*grid.CellDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := grid.Coord{X: x, Y: y}
	at, ok := s.cells[c]
	if !ok {
		return nil, ErrCellNotRevealed
	}

	d := &grid.CellDetail{X: x, Y: y, RevealedAt: at}
	if ev, ok := s.allocations[c]; ok {
		d.EventID = ev
		if idx, ok := s.byEvent[ev]; ok {
			d.AmountMinorUnits = s.donations[idx].AmountMinorUnits
			d.Message = s.donations[idx].Message
		}
	}
	return d, nil
}

// Donations returns a copy of the donation audit trail in insertion order.
// The allocation path never reads this; it exists for inspection and tests.
func (s *MemoryStore) Donations() []grid.Donation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]grid.Donation, len(s.donations))
	copy(out, s.donations)
	return out
}

func (s *MemoryStore) RevealedCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cells), nil
}
