// Package allocator implements the cell allocation core: given a quantity of
// cells to reveal and an owning payment event, it carves that many previously
// unrevealed cells out of the grid as contiguous-ish clusters.
package allocator

import (
	"context"
	"math/rand/v2"

	"github.com/pixelwall/pixelwall/internal/grid"
)

// CellClaimer is the transaction-scoped surface the allocator claims cells
// through. Both methods must be atomic per coordinate; the flood fill relies
// on TryRevealCell to arbitrate races with concurrent allocators.
type CellClaimer interface {
	TryRevealCell(ctx context.Context, x, y int) (bool, error)
	RecordAllocation(ctx context.Context, x, y int, eventID string) error
}

// Allocator selects unrevealed cells by flood-filling outward from random
// seed coordinates, producing organic contiguous reveal clusters rather than
// scattered singletons.
type Allocator struct {
	width  int
	height int
	intn   func(n int) int
}

// New creates an Allocator for a fixed width x height grid.
func New(width, height int) *Allocator {
	return &Allocator{width: width, height: height, intn: rand.IntN}
}

// NewWithRand creates an Allocator with an injected randomness source,
// for deterministic tests.
func NewWithRand(width, height int, intn func(n int) int) *Allocator {
	return &Allocator{width: width, height: height, intn: intn}
}

// Allocate claims up to qty unrevealed cells and attributes them to eventID.
// It returns the cells actually claimed, in claim order, with no duplicates.
//
// Each outer attempt picks a uniformly random seed and breadth-first
// traverses from it. The seed is deliberately not pre-filtered to unrevealed
// cells: an already-revealed seed acts as a pass-through node, and filtering
// it out would change the statistical distribution of reveal shapes. Revealed
// cells encountered mid-traversal are likewise passed through so the fill can
// reach unclaimed pockets beyond claimed territory.
//
// The outer loop is bounded by 2*W*H attempts, so on a nearly full grid the
// call terminates with fewer than qty cells rather than spinning; callers
// must record the returned count, not the requested one.
func (a *Allocator) Allocate(ctx context.Context, claims CellClaimer, qty int, eventID string) ([]grid.Coord, error) {
	if qty <= 0 {
		return nil, nil
	}

	maxAttempts := 2 * a.width * a.height
	allocated := make([]grid.Coord, 0, qty)

	for attempts := 0; len(allocated) < qty && attempts < maxAttempts; attempts++ {
		seed := grid.Coord{X: a.intn(a.width), Y: a.intn(a.height)}

		queue := []grid.Coord{seed}
		visited := make(map[grid.Coord]bool)

		for len(queue) > 0 && len(allocated) < qty {
			c := queue[0]
			queue = queue[1:]

			if visited[c] {
				continue
			}
			visited[c] = true

			claimed, err := claims.TryRevealCell(ctx, c.X, c.Y)
			if err != nil {
				return nil, err
			}
			if claimed {
				if err := claims.RecordAllocation(ctx, c.X, c.Y, eventID); err != nil {
					return nil, err
				}
				allocated = append(allocated, c)
			}

			for _, n := range c.Neighbors() {
				if n.X >= 0 && n.X < a.width && n.Y >= 0 && n.Y < a.height {
					queue = append(queue, n)
				}
			}
		}
	}

	return allocated, nil
}
