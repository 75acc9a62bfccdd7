package webhooks

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/cartship/flutterwave-gateway/api/responses"
	"github.com/cartship/flutterwave-gateway/internal/webhook"
	pkgerrors "github.com/cartship/flutterwave-gateway/pkg/errors"
	"github.com/cartship/flutterwave-gateway/pkg/logger"
)

// maxBodyBytes caps webhook payload reads. Provider events are small.
const maxBodyBytes = 1 << 20

// SignatureHeader carries the shared webhook secret on provider requests.
const SignatureHeader = "verif-hash"

type FlutterwaveWebhookService interface {
	Handled(eventName string) bool
	HandleEvent(ctx context.Context, event webhook.Event) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// FlutterwaveWebhook receives provider notifications. Responses favor 200 for
// processed, ignored, and permanently unresolvable outcomes; non-200 is
// reserved for authenticity and parse failures so the provider does not retry
// conditions that will never resolve.
func FlutterwaveWebhook(svc FlutterwaveWebhookService, guard webhookGuard, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		var event webhook.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		if !verifySignature(r, secret, event, logg) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch"))
			return
		}

		if !svc.Handled(event.Event) {
			responses.WriteJSON(w, http.StatusOK, map[string]string{"message": "event received but not handled"})
			return
		}

		dedupID := event.DedupID()
		if dedupID != "" {
			alreadyProcessed, err := guard.CheckAndMark(ctx, dedupID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if alreadyProcessed {
				responses.WriteJSON(w, http.StatusOK, map[string]string{"message": "event already processed"})
				return
			}
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			if dedupID != "" {
				_ = guard.Delete(ctx, dedupID)
			}
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{"event": event.Event, "dedup_id": dedupID})
				logg.Error(ctx, "webhook event failed", err)
			}
			// 200 regardless: the provider redelivers on its own schedule and
			// a terminal failure here would just loop forever.
			responses.WriteJSON(w, http.StatusOK, map[string]string{"message": "event processing failed"})
			return
		}

		responses.WriteJSON(w, http.StatusOK, map[string]string{"message": "event processed"})
	}
}

// verifySignature compares the shared-secret header. Cancellation events skip
// the check because the provider sends them unsigned; their handler re-verifies
// state against the provider before trusting anything in the payload.
func verifySignature(r *http.Request, secret string, event webhook.Event, logg *logger.Logger) bool {
	if secret == "" {
		if logg != nil {
			logg.Warn(r.Context(), "webhook secret not configured, accepting unsigned event")
		}
		return true
	}

	header := r.Header.Get(SignatureHeader)
	if subtle.ConstantTimeCompare([]byte(header), []byte(secret)) == 1 {
		return true
	}
	return webhook.IsCancellationEvent(event.Event)
}
