package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/pixelwall/pixelwall/internal/grid"
	"github.com/pixelwall/pixelwall/internal/storage"
)

// --- Huma Input/Output types ---

type SnapshotInput struct {
	Cursor string `query:"cursor" doc:"Opaque pagination cursor from a previous page" required:"false"`
	Limit  int    `query:"limit" doc:"Maximum cells per page; omit or 0 for the full grid" required:"false" minimum:"0"`
}

type SnapshotResponse struct {
	Cells      []grid.SnapshotCell `json:"cells" doc:"Revealed cells ordered by (x, y) ascending"`
	NextCursor string              `json:"next_cursor,omitempty" doc:"Cursor for the next page, when has_more"`
	HasMore    bool                `json:"has_more" doc:"True if another page may exist"`
}

type SnapshotOutput struct {
	Body SnapshotResponse
}

type CellDetailInput struct {
	X int `path:"x" doc:"Cell x coordinate" minimum:"0"`
	Y int `path:"y" doc:"Cell y coordinate" minimum:"0"`
}

type CellDetailResponse struct {
	X                int       `json:"x"`
	Y                int       `json:"y"`
	EventID          string    `json:"event_id,omitempty" doc:"Payment event that revealed this cell"`
	AmountMinorUnits int64     `json:"amount_minor_units,omitempty"`
	Message          string    `json:"message,omitempty"`
	RevealedAt       time.Time `json:"revealed_at"`
}

type CellDetailOutput struct {
	Body CellDetailResponse
}

// --- Handler ---

type GridHandler struct {
	store  storage.Store
	logger *slog.Logger
}

func NewGridHandler(store storage.Store, logger *slog.Logger) *GridHandler {
	return &GridHandler{store: store, logger: logger}
}

func registerGridRoutes(api huma.API, h *GridHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-snapshot",
		Method:      http.MethodGet,
		Path:        "/v1/grid",
		Summary:     "Get the current grid state",
		Tags:        []string{"grid"},
	}, h.GetSnapshot)

	huma.Register(api, huma.Operation{
		OperationID: "get-cell-detail",
		Method:      http.MethodGet,
		Path:        "/v1/grid/{x}/{y}",
		Summary:     "Get one cell with its allocation and donation",
		Tags:        []string{"grid"},
	}, h.GetCellDetail)
}

// GetSnapshot serves the bootstrap read for late-joining viewers. Clients
// must merge it with broadcast events as a union: a cell appearing in both is
// expected and harmless.
func (h *GridHandler) GetSnapshot(ctx context.Context, input *SnapshotInput) (*SnapshotOutput, error) {
	if input.Cursor != "" {
		if _, err := storage.DecodeCursor(input.Cursor); err != nil {
			return nil, huma.Error400BadRequest("invalid cursor")
		}
	}

	page, err := h.store.Snapshot(ctx, input.Cursor, input.Limit)
	if err != nil {
		h.logger.Error("failed to read snapshot", "error", err)
		return nil, huma.Error500InternalServerError("failed to read snapshot")
	}

	cells := page.Cells
	if cells == nil {
		cells = []grid.SnapshotCell{}
	}

	return &SnapshotOutput{Body: SnapshotResponse{
		Cells:      cells,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}}, nil
}

func (h *GridHandler) GetCellDetail(ctx context.Context, input *CellDetailInput) (*CellDetailOutput, error) {
	d, err := h.store.CellDetail(ctx, input.X, input.Y)
	if err != nil {
		if errors.Is(err, storage.ErrCellNotRevealed) {
			return nil, huma.Error404NotFound("cell not revealed")
		}
		h.logger.Error("failed to get cell detail", "x", input.X, "y", input.Y, "error", err)
		return nil, huma.Error500InternalServerError("failed to get cell detail")
	}

	return &CellDetailOutput{Body: CellDetailResponse{
		X:                d.X,
		Y:                d.Y,
		EventID:          d.EventID,
		AmountMinorUnits: d.AmountMinorUnits,
		Message:          d.Message,
		RevealedAt:       d.RevealedAt,
	}}, nil
}
