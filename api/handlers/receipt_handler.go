// Package handlers provides the PDF pickup receipt download endpoint,
// adapted from this codebase's receipt handler to serve the completed
// Transfer's receipt instead of a payment transaction's.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/selcukyavuz/moneybee/internal/engine"
	"github.com/selcukyavuz/moneybee/internal/merr"
	"github.com/selcukyavuz/moneybee/internal/models"
	"github.com/selcukyavuz/moneybee/internal/receipts"
)

// ReceiptHandler serves the PDF pickup receipt for a completed transfer.
type ReceiptHandler struct {
	eng       *engine.Engine
	generator *receipts.Generator
}

func NewReceiptHandler(eng *engine.Engine) *ReceiptHandler {
	return &ReceiptHandler{eng: eng, generator: receipts.NewGenerator("MoneyBee")}
}

// Download handles GET /api/transfers/{code}/receipt. Only a Completed
// transfer has a meaningful receipt to hand back.
func (h *ReceiptHandler) Download(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	transfer, err := h.eng.GetTransferByCode(r.Context(), code)
	if err != nil {
		writeReceiptError(w, err)
		return
	}
	if transfer.Status != models.Completed {
		writeReceiptError(w, merr.NewFailedPrecondition("receipt is only available for a completed transfer"))
		return
	}

	pdfBytes, err := h.generator.GeneratePDF(transfer)
	if err != nil {
		writeReceiptError(w, merr.NewInternal(err, "generate receipt"))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", transfer.TransactionCode))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(pdfBytes)))
	w.WriteHeader(http.StatusOK)
	w.Write(pdfBytes)
}

func writeReceiptError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch merr.KindOf(err) {
	case merr.NotFound:
		status = http.StatusNotFound
	case merr.FailedPrecondition:
		status = http.StatusUnprocessableEntity
	}
	http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), status)
}

