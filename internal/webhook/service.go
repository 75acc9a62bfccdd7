package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cartship/flutterwave-gateway/internal/orders"
	"github.com/cartship/flutterwave-gateway/internal/payments"
	"github.com/cartship/flutterwave-gateway/internal/reconcile"
	"github.com/cartship/flutterwave-gateway/internal/subscriptions"
	"github.com/cartship/flutterwave-gateway/pkg/db/models"
	"github.com/cartship/flutterwave-gateway/pkg/enums"
	pkgerrors "github.com/cartship/flutterwave-gateway/pkg/errors"
	"github.com/cartship/flutterwave-gateway/pkg/flutterwave"
	"github.com/cartship/flutterwave-gateway/pkg/logger"
	"github.com/cartship/flutterwave-gateway/pkg/metrics"
	"github.com/cartship/flutterwave-gateway/pkg/txref"
)

// Event is the decoded provider notification envelope. Data stays raw until
// the route decides which shape applies.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DedupID derives a stable deduplication key from the payload. Empty when the
// payload carries nothing usable; callers skip the guard in that case.
func (e Event) DedupID() string {
	var probe struct {
		ID     int64  `json:"id"`
		TxRef  string `json:"tx_ref"`
		FlwRef string `json:"flw_ref"`
	}
	_ = json.Unmarshal(e.Data, &probe)
	name := normalizeEventName(e.Event)
	switch {
	case probe.ID != 0:
		return fmt.Sprintf("%s:%d", name, probe.ID)
	case probe.FlwRef != "":
		return name + ":" + probe.FlwRef
	case probe.TxRef != "":
		return name + ":" + probe.TxRef
	}
	return ""
}

func normalizeEventName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), ".", "_")
}

// IsCancellationEvent reports whether the event is a subscription
// cancellation. The provider sends those unsigned, so transport-level checks
// need to special-case them.
func IsCancellationEvent(name string) bool {
	return normalizeEventName(name) == "subscription_cancelled"
}

type reconciler interface {
	ConfirmByID(ctx context.Context, providerTxID int64, path reconcile.Path) (*reconcile.Result, error)
}

type chargeVerifier interface {
	VerifyTransaction(ctx context.Context, transactionID int64) (*flutterwave.ChargeData, error)
}

type renewalRecorder interface {
	RecordRenewal(ctx context.Context, input orders.RecordRenewalInput) (*models.OrderTransaction, bool, error)
}

type refundUpserter interface {
	CreateOrUpdateIPNRefund(ctx context.Context, refund flutterwave.RefundData, parent *models.OrderTransaction) (*models.OrderTransaction, bool, error)
}

type subscriptionLifecycle interface {
	DiscoverProviderSubscription(ctx context.Context, sub *models.Subscription, firstChargeTxID int64) (*subscriptions.ProviderSubscription, error)
	MarkCanceled(ctx context.Context, sub *models.Subscription, at time.Time) error
}

// Service routes provider notifications to the matching domain handler.
type Service struct {
	reconciler   reconciler
	client       chargeVerifier
	renewals     renewalRecorder
	refunds      refundUpserter
	subs         subscriptions.Repository
	transactions payments.Repository
	lifecycle    subscriptionLifecycle
	metrics      *metrics.GatewayMetrics
	logg         *logger.Logger
}

// ServiceParams wires the webhook dispatcher dependencies.
type ServiceParams struct {
	Reconciler   reconciler
	Client       chargeVerifier
	Renewals     renewalRecorder
	Refunds      refundUpserter
	Subs         subscriptions.Repository
	Transactions payments.Repository
	Lifecycle    subscriptionLifecycle
	Metrics      *metrics.GatewayMetrics
	Logger       *logger.Logger
}

// NewService validates dependencies and returns the dispatcher.
func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	if params.Client == nil {
		return nil, fmt.Errorf("provider client required")
	}
	if params.Renewals == nil {
		return nil, fmt.Errorf("renewal recorder required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund service required")
	}
	if params.Subs == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transaction repository required")
	}
	if params.Lifecycle == nil {
		return nil, fmt.Errorf("subscription lifecycle required")
	}
	return &Service{
		reconciler:   params.Reconciler,
		client:       params.Client,
		renewals:     params.Renewals,
		refunds:      params.Refunds,
		subs:         params.Subs,
		transactions: params.Transactions,
		lifecycle:    params.Lifecycle,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

// Handled reports whether the dispatcher knows the event type. Unknown events
// are acknowledged without running any handler.
func (s *Service) Handled(eventName string) bool {
	switch normalizeEventName(eventName) {
	case "charge_completed", "refund_completed", "subscription_cancelled":
		return true
	}
	return false
}

// HandleEvent runs the handler matching the event type. Unknown events are a
// no-op success.
func (s *Service) HandleEvent(ctx context.Context, event Event) error {
	name := normalizeEventName(event.Event)
	switch name {
	case "charge_completed":
		return s.handleChargeCompleted(ctx, event)
	case "refund_completed":
		return s.handleRefundCompleted(ctx, event)
	case "subscription_cancelled":
		return s.handleSubscriptionCancelled(ctx, event)
	default:
		s.metrics.IncWebhook(name, "ignored")
		return nil
	}
}

type chargeNotification struct {
	ID      int64  `json:"id"`
	TxRef   string `json:"tx_ref"`
	FlwRef  string `json:"flw_ref"`
	Status  string `json:"status"`
	NextDue string `json:"next_due"`
}

// handleChargeCompleted settles a charge through the reconciler. Charges on a
// subscription that has already billed are provider-initiated renewals with no
// pending local row, so those take the renewal path instead.
func (s *Service) handleChargeCompleted(ctx context.Context, event Event) error {
	var payload chargeNotification
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge notification")
	}
	if payload.ID == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge notification carries no transaction id")
	}

	sub, err := s.renewalSubscription(ctx, payload.TxRef)
	if err != nil {
		return err
	}
	if sub != nil {
		if err := s.recordRenewal(ctx, sub, payload); err != nil {
			s.metrics.IncWebhook("charge_completed", "error")
			return err
		}
		s.metrics.IncWebhook("charge_completed", "renewal")
		return nil
	}

	result, err := s.reconciler.ConfirmByID(ctx, payload.ID, reconcile.PathWebhook)
	if err != nil {
		s.metrics.IncWebhook("charge_completed", "error")
		return err
	}
	if result.Idempotent {
		s.metrics.IncWebhook("charge_completed", "idempotent")
		return nil
	}
	s.metrics.IncWebhook("charge_completed", "settled")
	return nil
}

// renewalSubscription resolves the tx_ref to a subscription that has already
// recorded its first charge. Anything else settles via the reconciler.
func (s *Service) renewalSubscription(ctx context.Context, ref string) (*models.Subscription, error) {
	intent, rawID := txref.Decode(ref)
	if intent != txref.IntentSubscription {
		return nil, nil
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, nil
	}
	sub, err := s.subs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.BillCount == 0 {
		return nil, nil
	}
	return sub, nil
}

func (s *Service) recordRenewal(ctx context.Context, sub *models.Subscription, payload chargeNotification) error {
	// The inbound payload is a hint; amounts come from re-verification.
	verified, err := s.client.VerifyTransaction(ctx, payload.ID)
	if err != nil {
		return err
	}
	if !verified.Successful() {
		return pkgerrors.New(pkgerrors.CodeProviderRejected, "renewal charge is not successful").
			WithDetails(map[string]any{"charge_status": verified.Status})
	}

	next := subscriptions.NextBillingDate(sub, time.Now().UTC())
	if due, ok := parseNotificationTime(payload.NextDue); ok {
		next = due
	}

	_, created, err := s.renewals.RecordRenewal(ctx, orders.RecordRenewalInput{
		Sub:              sub,
		ProviderChargeID: strconv.FormatInt(verified.ID, 10),
		AmountCents:      flutterwave.ToMinorUnits(verified.Amount),
		Currency:         verified.Currency,
		FlwRef:           verified.FlwRef,
		TxRef:            verified.TxRef,
		PaymentType:      verified.PaymentType,
		NextBillingDate:  &next,
	})
	if err != nil {
		return err
	}
	if !created && s.logg != nil {
		s.logg.Debug(s.logg.WithSubscriptionID(ctx, sub.ID.String()), "renewal charge already recorded")
	}
	return nil
}

// handleRefundCompleted upserts a provider refund onto its parent charge.
func (s *Service) handleRefundCompleted(ctx context.Context, event Event) error {
	var refund flutterwave.RefundData
	if err := json.Unmarshal(event.Data, &refund); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode refund notification")
	}
	if refund.Status != "completed" && refund.Status != "successful" {
		s.metrics.IncWebhook("refund_completed", "ignored")
		return nil
	}

	parent, err := s.transactions.FindChargeByProviderChargeID(ctx, strconv.FormatInt(refund.TxID, 10))
	if err != nil {
		return err
	}
	if parent == nil {
		parent, err = s.transactions.FindChargeByFlwRef(ctx, refund.FlwRef)
		if err != nil {
			return err
		}
	}
	if parent == nil {
		s.metrics.IncWebhook("refund_completed", "orphan")
		return pkgerrors.New(pkgerrors.CodeNotFound, "no charge matches the refund").
			WithDetails(map[string]any{"tx_id": refund.TxID, "flw_ref": refund.FlwRef})
	}

	_, created, err := s.refunds.CreateOrUpdateIPNRefund(ctx, refund, parent)
	if err != nil {
		s.metrics.IncWebhook("refund_completed", "error")
		return err
	}
	if created {
		s.metrics.IncWebhook("refund_completed", "created")
	} else {
		s.metrics.IncWebhook("refund_completed", "updated")
	}
	return nil
}

type cancellationNotification struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// handleSubscriptionCancelled marks a subscription canceled only after
// confirming the cancellation with the provider. These events bypass the
// signature check, so the payload alone is never trusted.
func (s *Service) handleSubscriptionCancelled(ctx context.Context, event Event) error {
	var payload cancellationNotification
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode cancellation notification")
	}
	if payload.ID == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cancellation carries no subscription id")
	}

	sub, err := s.subs.FindByProviderSubscriptionID(ctx, strconv.FormatInt(payload.ID, 10))
	if err != nil {
		return err
	}
	if sub == nil {
		s.warn(ctx, "", "cancellation for unknown provider subscription")
		s.metrics.IncWebhook("subscription_cancelled", "unknown")
		return nil
	}
	if sub.Status.IsTerminal() {
		s.metrics.IncWebhook("subscription_cancelled", "idempotent")
		return nil
	}

	confirmed, err := s.confirmCancellation(ctx, sub)
	if err != nil {
		s.metrics.IncWebhook("subscription_cancelled", "error")
		return err
	}
	if !confirmed {
		s.warn(ctx, sub.ID.String(), "provider does not confirm cancellation; ignoring event")
		s.metrics.IncWebhook("subscription_cancelled", "unconfirmed")
		return nil
	}

	if err := s.lifecycle.MarkCanceled(ctx, sub, time.Now().UTC()); err != nil {
		s.metrics.IncWebhook("subscription_cancelled", "error")
		return err
	}
	s.metrics.IncWebhook("subscription_cancelled", "canceled")
	return nil
}

// confirmCancellation re-checks the subscription state at the provider via
// the first charge's transaction id.
func (s *Service) confirmCancellation(ctx context.Context, sub *models.Subscription) (bool, error) {
	charge, err := s.transactions.FindChargeByOrderID(ctx, sub.OrderID)
	if err != nil {
		return false, err
	}
	if charge == nil || charge.ProviderChargeID == "" {
		s.warn(ctx, sub.ID.String(), "no verifiable first charge for cancellation check")
		return false, nil
	}
	txID, err := strconv.ParseInt(charge.ProviderChargeID, 10, 64)
	if err != nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "malformed provider charge id")
	}

	discovered, err := s.lifecycle.DiscoverProviderSubscription(ctx, sub, txID)
	if err != nil {
		// Discovery not finding the subscription at all is itself evidence
		// that it no longer runs.
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return true, nil
		}
		return false, err
	}
	mapped, ok := subscriptions.MapProviderStatus(discovered.Status)
	return ok && mapped == enums.SubscriptionStatusCanceled, nil
}

func (s *Service) warn(ctx context.Context, subID, msg string) {
	if s.logg == nil {
		return
	}
	if subID != "" {
		ctx = s.logg.WithSubscriptionID(ctx, subID)
	}
	s.logg.Warn(ctx, msg)
}

func parseNotificationTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
