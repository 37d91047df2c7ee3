// Package processor orchestrates payment-completion notifications into
// ledger, allocation, donation, and broadcast effects.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pixelwall/pixelwall/internal/allocator"
	"github.com/pixelwall/pixelwall/internal/circuitbreaker"
	"github.com/pixelwall/pixelwall/internal/grid"
	"github.com/pixelwall/pixelwall/internal/metrics"
	"github.com/pixelwall/pixelwall/internal/storage"
)

// ErrAlreadyHandled signals that the processed-event ledger has seen this
// event id before. It is a successful no-op verdict, not a failure: register
// it as ignored on the circuit breaker guarding the store.
var ErrAlreadyHandled = errors.New("event already handled")

// Broadcaster receives fire-and-forget notifications after a transaction
// commits. Implementations must never block the caller.
type Broadcaster interface {
	CellsRevealed(ev grid.RevealEvent)
	MessageOnly(ev grid.MessageEvent)
}

// Processor is the single entry point for payment events, real or simulated.
type Processor struct {
	store        storage.Store
	alloc        *allocator.Allocator
	breaker      *circuitbreaker.Breaker
	bcast        Broadcaster
	centsPerCell int64
	logger       *slog.Logger
}

// New creates a Processor. bcast may be nil, in which case commits are not
// announced to viewers.
func New(store storage.Store, alloc *allocator.Allocator, breaker *circuitbreaker.Breaker, bcast Broadcaster, centsPerCell int64, logger *slog.Logger) *Processor {
	return &Processor{
		store:        store,
		alloc:        alloc,
		breaker:      breaker,
		bcast:        bcast,
		centsPerCell: centsPerCell,
		logger:       logger,
	}
}

// Result reports the outcome of processing one payment event.
type Result struct {
	EventID          string
	AlreadyHandled   bool
	Cells            []grid.Coord
	DonationRecorded bool
}

// HandlePayment processes a verified payment-completion notification exactly
// once. The ledger insert, the allocation, and the donation row commit in a
// single transaction, so a crash mid-run leaves no trace and the gateway's
// redelivery starts over cleanly.
//
// The quantity of cells bought is floor(amountMinorUnits / centsPerCell); a
// donation below the price of one cell takes the message-only path. The
// allocator may return fewer cells than paid for on a nearly full grid — the
// donation records the actual count.
func (p *Processor) HandlePayment(ctx context.Context, eventID string, amountMinorUnits int64, message string) (*Result, error) {
	qty := int(amountMinorUnits / p.centsPerCell)

	cells, err := p.process(ctx, eventID, amountMinorUnits, message, qty, true)
	if errors.Is(err, ErrAlreadyHandled) {
		metrics.DuplicateEventsTotal.Inc()
		p.logger.Info("duplicate payment event ignored", "event_id", eventID)
		return &Result{EventID: eventID, AlreadyHandled: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("handle payment %s: %w", eventID, err)
	}

	p.finish(eventID, amountMinorUnits, message, cells)
	return &Result{EventID: eventID, Cells: cells, DonationRecorded: true}, nil
}

// Simulate runs the same allocate, donate, broadcast path as HandlePayment
// with a synthesized event id. Simulated ids are always novel, so the ledger
// gate is skipped and repeated simulations never deduplicate each other.
func (p *Processor) Simulate(ctx context.Context, amountMinorUnits int64, message string) (*Result, error) {
	eventID := "sim_" + uuid.NewString()
	qty := int(amountMinorUnits / p.centsPerCell)

	cells, err := p.process(ctx, eventID, amountMinorUnits, message, qty, false)
	if err != nil {
		return nil, fmt.Errorf("simulate %s: %w", eventID, err)
	}

	p.finish(eventID, amountMinorUnits, message, cells)
	return &Result{EventID: eventID, Cells: cells, DonationRecorded: true}, nil
}

// process runs the transactional part of one event through the breaker.
func (p *Processor) process(ctx context.Context, eventID string, amountMinorUnits int64, message string, qty int, gate bool) ([]grid.Coord, error) {
	var cells []grid.Coord
	start := time.Now()

	err := p.breaker.Execute(func() error {
		return p.store.InTx(ctx, func(tx storage.GridTx) error {
			if gate {
				fresh, err := tx.TryInsertEvent(ctx, eventID)
				if err != nil {
					return err
				}
				if !fresh {
					return ErrAlreadyHandled
				}
			}

			if qty > 0 {
				var err error
				cells, err = p.alloc.Allocate(ctx, tx, qty, eventID)
				if err != nil {
					return err
				}
			}

			return tx.InsertDonation(ctx, grid.Donation{
				EventID:          eventID,
				AmountMinorUnits: amountMinorUnits,
				Message:          message,
				CellsAllocated:   len(cells),
			})
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.AllocationDuration.Observe(time.Since(start).Seconds())
	return cells, nil
}

// finish records metrics and notifies viewers after a successful commit.
// Broadcasts only ever happen here, so observers never see cells that are
// not durably recorded.
func (p *Processor) finish(eventID string, amountMinorUnits int64, message string, cells []grid.Coord) {
	metrics.DonationsTotal.Inc()
	metrics.CellsRevealedTotal.Add(float64(len(cells)))
	metrics.RevealedCells.Add(float64(len(cells)))

	p.logger.Info("payment event processed",
		"event_id", eventID,
		"amount_minor_units", amountMinorUnits,
		"cells_allocated", len(cells),
	)

	if p.bcast == nil {
		return
	}
	if len(cells) > 0 {
		p.bcast.CellsRevealed(grid.RevealEvent{
			Type:             grid.EventTypeCellsRevealed,
			EventID:          eventID,
			AmountMinorUnits: amountMinorUnits,
			Message:          message,
			Cells:            cells,
		})
		return
	}
	p.bcast.MessageOnly(grid.MessageEvent{
		Type:             grid.EventTypeMessageOnly,
		EventID:          eventID,
		AmountMinorUnits: amountMinorUnits,
		Message:          message,
		Timestamp:        time.Now().UTC(),
	})
}
