package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CellsRevealedTotal counts cells committed by successful allocations.
	CellsRevealedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pixelwall",
			Name:      "cells_revealed_total",
			Help:      "Total number of grid cells revealed.",
		},
	)

	// DonationsTotal counts donation records, including zero-cell ones.
	DonationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pixelwall",
			Name:      "donations_total",
			Help:      "Total number of donation records written.",
		},
	)

	// DuplicateEventsTotal counts payment notifications rejected by the
	// processed-event ledger.
	DuplicateEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pixelwall",
			Name:      "duplicate_events_total",
			Help:      "Total number of payment events already handled.",
		},
	)

	// AllocationDuration observes the wall time of one allocation transaction.
	AllocationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pixelwall",
			Name:      "allocation_duration_seconds",
			Help:      "Duration of one cell allocation transaction.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// RevealedCells is the current number of revealed cells.
	RevealedCells = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pixelwall",
			Name:      "revealed_cells",
			Help:      "Current number of revealed grid cells.",
		},
	)

	// ConnectedViewers is the current number of WebSocket subscribers.
	ConnectedViewers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pixelwall",
			Name:      "connected_viewers",
			Help:      "Current number of connected WebSocket viewers.",
		},
	)
)
