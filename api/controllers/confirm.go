package controllers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/cartship/flutterwave-gateway/api/responses"
	"github.com/cartship/flutterwave-gateway/api/validators"
	"github.com/cartship/flutterwave-gateway/internal/orders"
	"github.com/cartship/flutterwave-gateway/internal/reconcile"
	pkgerrors "github.com/cartship/flutterwave-gateway/pkg/errors"
	"github.com/cartship/flutterwave-gateway/pkg/logger"
)

type confirmRequest struct {
	TransactionID *int64 `json:"transaction_id"`
	TxRef         string `json:"tx_ref"`
	ConfirmToken  string `json:"confirm_token" validate:"required"`
}

type confirmOrderRef struct {
	UUID uuid.UUID `json:"uuid"`
}

type confirmResponse struct {
	Status      string          `json:"status"`
	Message     string          `json:"message"`
	RedirectURL string          `json:"redirect_url,omitempty"`
	Order       confirmOrderRef `json:"order"`
}

// PaymentConfirm is the client-side confirmation callback. The provider charge
// is re-verified server side before any state changes, so a forged request can
// at worst trigger a reconciliation that was due anyway. The confirm token only
// gates disclosure of the receipt.
func PaymentConfirm(reconciler reconcile.Service, orderRepo orders.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reconciler == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}
		if orderRepo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order repository unavailable"))
			return
		}

		var req confirmRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.TransactionID == nil && strings.TrimSpace(req.TxRef) == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "transaction_id or tx_ref required"))
			return
		}

		var (
			result *reconcile.Result
			err    error
		)
		if req.TransactionID != nil {
			result, err = reconciler.ConfirmByID(r.Context(), *req.TransactionID, reconcile.PathClient)
		} else {
			result, err = reconciler.ConfirmByReference(r.Context(), strings.TrimSpace(req.TxRef), reconcile.PathClient)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := orderRepo.FindOrderByID(r.Context(), result.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if order == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}
		if subtle.ConstantTimeCompare([]byte(req.ConfirmToken), []byte(order.Hash)) != 1 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "confirm token mismatch"))
			return
		}

		message := "payment confirmed"
		if result.Idempotent {
			message = "payment already confirmed"
		}
		responses.WriteJSON(w, http.StatusOK, confirmResponse{
			Status:      "success",
			Message:     message,
			RedirectURL: result.RedirectURL,
			Order:       confirmOrderRef{UUID: order.ID},
		})
	}
}
