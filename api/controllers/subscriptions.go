package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cartship/flutterwave-gateway/api/responses"
	"github.com/cartship/flutterwave-gateway/internal/subscriptions"
	pkgerrors "github.com/cartship/flutterwave-gateway/pkg/errors"
	"github.com/cartship/flutterwave-gateway/pkg/logger"
)

// SubscriptionResync replays the provider's transaction history for a
// subscription and adopts charges the webhook path missed.
func SubscriptionResync(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		subID, err := subscriptionIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ResyncFromRemote(r.Context(), subID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SubscriptionCancel cancels recurrence locally and at the provider.
func SubscriptionCancel(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		subID, err := subscriptionIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Cancel(r.Context(), subID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptionStatusResponse{
			ID:         sub.ID,
			Status:     string(sub.Status),
			CanceledAt: sub.CanceledAt,
		})
	}
}

type subscriptionStatusResponse struct {
	ID         uuid.UUID  `json:"id"`
	Status     string     `json:"status"`
	CanceledAt *time.Time `json:"canceled_at,omitempty"`
}

func subscriptionIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "subscriptionId")
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid subscription id")
	}
	return id, nil
}
