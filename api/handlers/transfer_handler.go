// Package handlers provides the transfer engine's HTTP handlers,
// following the handler-struct-holding-its-domain-dependency shape of
// api/handlers/payment_handler.go, generalized from a single payments
// store to the Transfer Engine's full lifecycle.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/selcukyavuz/moneybee/api"
	"github.com/selcukyavuz/moneybee/internal/config"
	"github.com/selcukyavuz/moneybee/internal/engine"
	"github.com/selcukyavuz/moneybee/internal/merr"
	"github.com/selcukyavuz/moneybee/internal/models"
)

// TransferHandler handles the transfer lifecycle endpoints.
type TransferHandler struct {
	eng *engine.Engine
	cfg *config.Config
}

func NewTransferHandler(eng *engine.Engine, cfg *config.Config) *TransferHandler {
	return &TransferHandler{eng: eng, cfg: cfg}
}

type createTransferRequest struct {
	SenderNationalID   string  `json:"sender_national_id"`
	ReceiverNationalID string  `json:"receiver_national_id"`
	Amount             float64 `json:"amount"`
	Currency           string  `json:"currency"`
	Description        string  `json:"description"`
}

// Create handles POST /api/transfers. The idempotency key is required and
// travels in a header rather than the body, matching the header-carried
// X-Idempotency-Key this interface is documented with.
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	idempotencyKey := r.Header.Get(h.cfg.IdempotencyHeader)
	if idempotencyKey == "" {
		api.WriteError(w, merr.NewInvalidArgument("%s header is required", h.cfg.IdempotencyHeader))
		return
	}

	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, merr.NewInvalidArgument("invalid request body"))
		return
	}

	currency := models.Currency(req.Currency)
	if !currency.Valid() {
		api.WriteError(w, merr.NewInvalidArgument("unsupported currency %q", req.Currency))
		return
	}

	transfer, err := h.eng.CreateTransfer(r.Context(), engine.CreateRequest{
		SenderNationalID:   req.SenderNationalID,
		ReceiverNationalID: req.ReceiverNationalID,
		Amount:             req.Amount,
		Currency:           currency,
		Description:        req.Description,
	}, idempotencyKey)

	if err != nil {
		// The fraud-rejection path returns both a persisted Failed
		// transfer and the rejection error; the caller needs to see the
		// Failed row, not just a bare error envelope.
		if transfer != nil && merr.KindOf(err) == merr.FailedPrecondition {
			api.WriteJSON(w, http.StatusUnprocessableEntity, api.Envelope{
				Success: false,
				Data:    transfer,
				Message: strPtr(err.Error()),
				Errors:  []string{err.Error()},
			})
			return
		}
		api.WriteError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, transfer)
}

// Complete handles POST /api/transfers/{code}/complete.
func (h *TransferHandler) Complete(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	var req struct {
		ReceiverNationalID string `json:"receiver_national_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, merr.NewInvalidArgument("invalid request body"))
		return
	}

	transfer, err := h.eng.CompleteTransfer(r.Context(), code, req.ReceiverNationalID)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, transfer)
}

// Cancel handles POST /api/transfers/{code}/cancel.
func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	var req struct {
		Reason string `json:"reason"`
	}
	// A body is optional; an empty or malformed one just means no reason
	// was given.
	_ = json.NewDecoder(r.Body).Decode(&req)

	transfer, err := h.eng.CancelTransfer(r.Context(), code, req.Reason)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, transfer)
}

// Get handles GET /api/transfers/{code}.
func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	transfer, err := h.eng.GetTransferByCode(r.Context(), code)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, transfer)
}

// ListByCustomer handles GET /api/transfers/customer/{id}.
func (h *TransferHandler) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	transfers, err := h.eng.GetCustomerTransfers(r.Context(), id)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, transfers)
}

// DailyLimit handles GET /api/transfers/daily-limit/{id}.
func (h *TransferHandler) DailyLimit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit, err := h.eng.GetDailyLimit(r.Context(), id)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, struct {
		TotalToday float64 `json:"total_today"`
		DailyLimit float64 `json:"daily_limit"`
	}{TotalToday: limit.TotalTodayTRY, DailyLimit: limit.DailyLimitTRY})
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func strPtr(s string) *string { return &s }
