package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/cartship/flutterwave-gateway/api/responses"
	"github.com/cartship/flutterwave-gateway/api/validators"
	"github.com/cartship/flutterwave-gateway/internal/initiation"
	pkgerrors "github.com/cartship/flutterwave-gateway/pkg/errors"
	"github.com/cartship/flutterwave-gateway/pkg/logger"
)

type checkoutRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

// Checkout starts a hosted payment session for an existing order and returns
// the provider checkout link.
func Checkout(svc initiation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "initiation service unavailable"))
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if req.OrderID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order_id required"))
			return
		}

		result, err := svc.Start(r.Context(), req.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
