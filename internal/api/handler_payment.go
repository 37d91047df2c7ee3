package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/pixelwall/pixelwall/internal/circuitbreaker"
	"github.com/pixelwall/pixelwall/internal/grid"
	"github.com/pixelwall/pixelwall/internal/processor"
)

// --- Huma Input/Output types ---

type PaymentEventBody struct {
	EventID          string `json:"event_id" doc:"Globally unique payment event id" required:"true" minLength:"1"`
	AmountMinorUnits int64  `json:"amount_minor_units" doc:"Paid amount in minor currency units" minimum:"0"`
	Message          string `json:"message" doc:"Optional donor message"`
}

type PaymentEventInput struct {
	Body PaymentEventBody
}

type PaymentEventResponse struct {
	EventID          string       `json:"event_id" doc:"Payment event id"`
	AlreadyHandled   bool         `json:"already_handled" doc:"True if this event was processed by an earlier delivery"`
	Cells            []grid.Coord `json:"cells" doc:"Cells newly revealed by this event, in claim order"`
	DonationRecorded bool         `json:"donation_recorded" doc:"True if a donation record was appended"`
}

type PaymentEventOutput struct {
	Body PaymentEventResponse
}

type SimulateBody struct {
	AmountMinorUnits int64  `json:"amount_minor_units" doc:"Simulated amount in minor currency units" minimum:"0"`
	Message          string `json:"message" doc:"Optional donor message"`
}

type SimulateInput struct {
	Body SimulateBody
}

type SimulateOutput struct {
	Body PaymentEventResponse
}

// --- Handler ---

type PaymentHandler struct {
	proc   *processor.Processor
	logger *slog.Logger
}

func NewPaymentHandler(proc *processor.Processor, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{proc: proc, logger: logger}
}

func registerPaymentRoutes(api huma.API, h *PaymentHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "handle-payment-event",
		Method:      http.MethodPost,
		Path:        "/v1/payments/events",
		Summary:     "Process a verified payment-completion event",
		Tags:        []string{"payments"},
	}, h.HandlePaymentEvent)

	huma.Register(api, huma.Operation{
		OperationID: "simulate-donation",
		Method:      http.MethodPost,
		Path:        "/v1/simulate",
		Summary:     "Run a simulated donation",
		Tags:        []string{"payments"},
	}, h.Simulate)
}

// HandlePaymentEvent is the webhook entry point. Signature verification
// happens upstream; the processor performs its own dedupe regardless, so a
// redelivered event is acknowledged without re-allocating. A non-2xx response
// tells the gateway to redeliver later.
func (h *PaymentHandler) HandlePaymentEvent(ctx context.Context, input *PaymentEventInput) (*PaymentEventOutput, error) {
	res, err := h.proc.HandlePayment(ctx, input.Body.EventID, input.Body.AmountMinorUnits, input.Body.Message)
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			return nil, huma.Error503ServiceUnavailable("storage temporarily unavailable")
		}
		h.logger.Error("failed to process payment event", "event_id", input.Body.EventID, "error", err)
		return nil, huma.Error500InternalServerError("failed to process payment event")
	}

	return &PaymentEventOutput{Body: resultToResponse(res)}, nil
}

func (h *PaymentHandler) Simulate(ctx context.Context, input *SimulateInput) (*SimulateOutput, error) {
	res, err := h.proc.Simulate(ctx, input.Body.AmountMinorUnits, input.Body.Message)
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			return nil, huma.Error503ServiceUnavailable("storage temporarily unavailable")
		}
		h.logger.Error("failed to simulate donation", "error", err)
		return nil, huma.Error500InternalServerError("failed to simulate donation")
	}

	return &SimulateOutput{Body: resultToResponse(res)}, nil
}

func resultToResponse(res *processor.Result) PaymentEventResponse {
	cells := res.Cells
	if cells == nil {
		cells = []grid.Coord{}
	}
	return PaymentEventResponse{
		EventID:          res.EventID,
		AlreadyHandled:   res.AlreadyHandled,
		Cells:            cells,
		DonationRecorded: res.DonationRecorded,
	}
}
