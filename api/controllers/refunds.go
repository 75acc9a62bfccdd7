package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cartship/flutterwave-gateway/api/responses"
	"github.com/cartship/flutterwave-gateway/api/validators"
	"github.com/cartship/flutterwave-gateway/internal/payments"
	"github.com/cartship/flutterwave-gateway/internal/refunds"
	pkgerrors "github.com/cartship/flutterwave-gateway/pkg/errors"
	"github.com/cartship/flutterwave-gateway/pkg/logger"
)

type refundRequest struct {
	AmountCents int64 `json:"amount_cents" validate:"required,min=1"`
}

type refundResponse struct {
	RefundID           uuid.UUID `json:"refund_id"`
	TransactionID      uuid.UUID `json:"transaction_id"`
	Status             string    `json:"status"`
	AmountCents        int64     `json:"amount_cents"`
	RefundedTotalCents int64     `json:"refunded_total_cents"`
}

// TransactionRefund issues a partial or full refund against a settled charge.
func TransactionRefund(txns payments.Repository, refundSvc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if txns == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transaction repository unavailable"))
			return
		}
		if refundSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}

		raw := chi.URLParam(r, "transactionId")
		txnID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction id"))
			return
		}

		var req refundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := txns.FindTransactionByID(r.Context(), txnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if txn == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found"))
			return
		}

		refund, err := refundSvc.ProcessRemoteRefund(r.Context(), txn, req.AmountCents)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, refundResponse{
			RefundID:           refund.ID,
			TransactionID:      txn.ID,
			Status:             string(refund.Status),
			AmountCents:        refund.TotalCents,
			RefundedTotalCents: txn.RefundedTotalCents,
		})
	}
}
