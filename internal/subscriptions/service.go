package subscriptions

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartship/flutterwave-gateway/internal/ledger"
	"github.com/cartship/flutterwave-gateway/internal/orders"
	"github.com/cartship/flutterwave-gateway/internal/payments"
	"github.com/cartship/flutterwave-gateway/pkg/db/models"
	"github.com/cartship/flutterwave-gateway/pkg/enums"
	pkgerrors "github.com/cartship/flutterwave-gateway/pkg/errors"
	"github.com/cartship/flutterwave-gateway/pkg/flutterwave"
	"github.com/cartship/flutterwave-gateway/pkg/logger"
	"github.com/cartship/flutterwave-gateway/pkg/outbox"
	"github.com/cartship/flutterwave-gateway/pkg/txref"
)

const eventSource = "flutterwave-gateway"

type providerClient interface {
	VerifyTransaction(ctx context.Context, transactionID int64) (*flutterwave.ChargeData, error)
	ListTransactions(ctx context.Context, txRef string, page int) ([]flutterwave.ChargeData, flutterwave.PageInfo, error)
	ListSubscriptions(ctx context.Context, email string, planID int64) ([]flutterwave.SubscriptionData, error)
	CancelSubscription(ctx context.Context, subscriptionID int64) (*flutterwave.SubscriptionData, error)
}

type renewalRecorder interface {
	RecordRenewal(ctx context.Context, input orders.RecordRenewalInput) (*models.OrderTransaction, bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ProviderSubscription is the provider-side state discovered for a local
// subscription.
type ProviderSubscription struct {
	SubscriptionID string
	CustomerID     string
	Status         string
	NextDue        *time.Time
}

// ResyncResult summarizes one manual resync run.
type ResyncResult struct {
	Examined int `json:"examined"`
	Adopted  int `json:"adopted"`
	Filled   int `json:"filled"`
}

// Service owns subscription lifecycle operations past initiation.
type Service interface {
	DiscoverProviderSubscription(ctx context.Context, sub *models.Subscription, firstChargeTxID int64) (*ProviderSubscription, error)
	ResyncFromRemote(ctx context.Context, subID uuid.UUID) (*ResyncResult, error)
	Cancel(ctx context.Context, subID uuid.UUID) (*models.Subscription, error)
	MarkCanceled(ctx context.Context, sub *models.Subscription, at time.Time) error
}

type service struct {
	repo         Repository
	transactions payments.Repository
	renewals     renewalRecorder
	ledger       ledger.Service
	client       providerClient
	tx           txRunner
	outbox       outboxEmitter
	logg         *logger.Logger
}

// ServiceParams wires the subscription service dependencies.
type ServiceParams struct {
	Repo         Repository
	Transactions payments.Repository
	Renewals     renewalRecorder
	Ledger       ledger.Service
	Client       providerClient
	Tx           txRunner
	Outbox       outboxEmitter
	Logger       *logger.Logger
}

// NewService validates dependencies and returns a subscription service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transaction repository required")
	}
	if params.Renewals == nil {
		return nil, fmt.Errorf("renewal recorder required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Client == nil {
		return nil, fmt.Errorf("provider client required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:         params.Repo,
		transactions: params.Transactions,
		renewals:     params.Renewals,
		ledger:       params.Ledger,
		client:       params.Client,
		tx:           params.Tx,
		outbox:       params.Outbox,
		logg:         params.Logger,
	}, nil
}

// DiscoverProviderSubscription finds the provider subscription backing a
// local one by walking from the first charge's transaction id to the
// customer, then matching the customer's subscriptions against our plan.
func (s *service) DiscoverProviderSubscription(ctx context.Context, sub *models.Subscription, firstChargeTxID int64) (*ProviderSubscription, error) {
	if sub == nil {
		return nil, fmt.Errorf("subscription required")
	}
	if firstChargeTxID <= 0 {
		return nil, fmt.Errorf("first charge transaction id required")
	}

	charge, err := s.client.VerifyTransaction(ctx, firstChargeTxID)
	if err != nil {
		return nil, err
	}
	if charge.Customer.Email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider charge carries no customer email")
	}

	planID, _ := strconv.ParseInt(sub.ProviderPlanID, 10, 64)
	remotes, err := s.client.ListSubscriptions(ctx, charge.Customer.Email, planID)
	if err != nil {
		return nil, err
	}
	for _, remote := range remotes {
		if planID != 0 && remote.Plan != planID {
			continue
		}
		discovered := &ProviderSubscription{
			SubscriptionID: strconv.FormatInt(remote.ID, 10),
			CustomerID:     strconv.FormatInt(remote.Customer.ID, 10),
			Status:         remote.Status,
		}
		if due, ok := parseProviderTime(remote.NextDue); ok {
			discovered.NextDue = &due
		}
		return discovered, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no provider subscription matches the plan")
}

// ResyncFromRemote walks the provider's transaction history for the
// subscription's tx_ref and reconciles local rows against it. Pagination is
// bounded by the provider-reported total so a lying page can not loop us.
func (s *service) ResyncFromRemote(ctx context.Context, subID uuid.UUID) (*ResyncResult, error) {
	sub, err := s.repo.FindByID(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}

	ref := txref.Encode(txref.IntentSubscription, sub.ID.String())
	result := &ResyncResult{}
	seen := 0
	for page := 1; ; page++ {
		charges, pageInfo, err := s.client.ListTransactions(ctx, ref, page)
		if err != nil {
			return nil, err
		}
		if len(charges) == 0 {
			break
		}
		for _, charge := range charges {
			seen++
			result.Examined++
			if !charge.Successful() {
				continue
			}
			if err := s.resyncCharge(ctx, sub, charge, result); err != nil {
				return nil, err
			}
			if seen >= pageInfo.Total && pageInfo.Total > 0 {
				break
			}
		}
		if pageInfo.Total > 0 && seen >= pageInfo.Total {
			break
		}
		if pageInfo.TotalPages > 0 && page >= pageInfo.TotalPages {
			break
		}
	}

	if _, err := s.ledger.RecordEvent(ctx, ledger.RecordEventInput{
		OrderID:        sub.OrderID,
		SubscriptionID: &sub.ID,
		Type:           enums.LedgerEventSubscriptionResynced,
		Description:    fmt.Sprintf("resync examined %d, adopted %d, filled %d", result.Examined, result.Adopted, result.Filled),
	}); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) resyncCharge(ctx context.Context, sub *models.Subscription, charge flutterwave.ChargeData, result *ResyncResult) error {
	chargeID := strconv.FormatInt(charge.ID, 10)
	existing, err := s.transactions.FindChargeByProviderChargeID(ctx, chargeID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	// A local row recorded before the provider id was known gets it filled
	// instead of spawning a duplicate.
	amountCents := flutterwave.ToMinorUnits(charge.Amount)
	orphan, err := s.transactions.FindChargeByOrderID(ctx, sub.OrderID)
	if err != nil {
		return err
	}
	if orphan != nil && orphan.ProviderChargeID == "" && orphan.TotalCents == amountCents {
		orphan.ProviderChargeID = chargeID
		if err := s.transactions.UpdateTransaction(ctx, orphan); err != nil {
			return err
		}
		result.Filled++
		return nil
	}

	_, created, err := s.renewals.RecordRenewal(ctx, orders.RecordRenewalInput{
		Sub:              sub,
		ProviderChargeID: chargeID,
		AmountCents:      amountCents,
		Currency:         charge.Currency,
		FlwRef:           charge.FlwRef,
		TxRef:            charge.TxRef,
		PaymentType:      charge.PaymentType,
	})
	if err != nil {
		return err
	}
	if created {
		result.Adopted++
	}
	return nil
}

// Cancel cancels the subscription at the provider and locally. Terminal
// states are a no-op; completed in particular is never regressed.
func (s *service) Cancel(ctx context.Context, subID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	if sub.Status.IsTerminal() {
		return sub, nil
	}

	if sub.ProviderSubscriptionID != "" {
		providerID, err := strconv.ParseInt(sub.ProviderSubscriptionID, 10, 64)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "malformed provider subscription id")
		}
		if _, err := s.client.CancelSubscription(ctx, providerID); err != nil {
			return nil, err
		}
	}

	if err := s.MarkCanceled(ctx, sub, time.Now().UTC()); err != nil {
		return nil, err
	}
	return sub, nil
}

// SubscriptionCanceledEvent is published once per local cancellation.
type SubscriptionCanceledEvent struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	OrderID        uuid.UUID `json:"order_id"`
	CanceledAt     time.Time `json:"canceled_at"`
}

// MarkCanceled records the local cancellation with its audit trail.
func (s *service) MarkCanceled(ctx context.Context, sub *models.Subscription, at time.Time) error {
	if sub == nil {
		return fmt.Errorf("subscription required")
	}
	if sub.Status == enums.SubscriptionStatusCanceled {
		return nil
	}
	if sub.Status == enums.SubscriptionStatusCompleted {
		return nil
	}

	sub.Status = enums.SubscriptionStatusCanceled
	sub.CanceledAt = &at

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		if _, err := s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordEventInput{
			OrderID:        sub.OrderID,
			SubscriptionID: &sub.ID,
			Type:           enums.LedgerEventSubscriptionCanceled,
			Description:    "subscription canceled",
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionCanceled,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   sub.ID,
			Source:        eventSource,
			Data: SubscriptionCanceledEvent{
				SubscriptionID: sub.ID,
				OrderID:        sub.OrderID,
				CanceledAt:     at,
			},
			Version: 1,
		})
	})
}

func parseProviderTime(value string) (time.Time, bool) {
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
