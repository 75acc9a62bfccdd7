package reconcile

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
	"github.com/cartship/flutterwave-gateway/internal/subscriptions"
	"github.com/cartship/flutterwave-gateway/pkg/db/models"
	"github.com/cartship/flutterwave-gateway/pkg/enums"
	pkgerrors "github.com/cartship/flutterwave-gateway/pkg/errors"
	"github.com/cartship/flutterwave-gateway/pkg/flutterwave"
	"github.com/cartship/flutterwave-gateway/pkg/logger"
	"github.com/cartship/flutterwave-gateway/pkg/metrics"
	"github.com/cartship/flutterwave-gateway/pkg/outbox"
	"github.com/cartship/flutterwave-gateway/pkg/txref"
	"github.com/cartship/flutterwave-gateway/pkg/types"
)

const eventSource = "flutterwave-gateway"

// Path tags which entry point drove a reconciliation.
type Path string

const (
	PathClient  Path = "client"
	PathWebhook Path = "webhook"
)

type verifier interface {
	VerifyTransaction(ctx context.Context, transactionID int64) (*flutterwave.ChargeData, error)
	VerifyTransactionByReference(ctx context.Context, txRef string) (*flutterwave.ChargeData, error)
}

type subscriptionDiscoverer interface {
	DiscoverProviderSubscription(ctx context.Context, sub *models.Subscription, firstChargeTxID int64) (*subscriptions.ProviderSubscription, error)
}

type orderCollaborator interface {
	SyncOrderStatus(ctx context.Context, orderID uuid.UUID) error
	RecordRenewal(ctx context.Context, input orders.RecordRenewalInput) (*models.OrderTransaction, bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Result is what a confirmation entry point hands back to its caller.
type Result struct {
	OrderID     uuid.UUID
	RedirectURL string
	// Idempotent marks a short-circuit: the charge had already been
	// reconciled and nothing was written.
	Idempotent bool
}

// Service converges both confirmation paths onto one reconciliation routine.
type Service interface {
	ConfirmByID(ctx context.Context, providerTxID int64, path Path) (*Result, error)
	ConfirmByReference(ctx context.Context, ref string, path Path) (*Result, error)
	Reconcile(ctx context.Context, verified flutterwave.ChargeData, path Path) (*Result, error)
}

type service struct {
	client        verifier
	transactions  payments.Repository
	subs          subscriptions.Repository
	discovery     subscriptionDiscoverer
	orders        orderCollaborator
	orderRepo     orders.Repository
	ledger        ledger.Service
	tx            txRunner
	outbox        outboxEmitter
	metrics       *metrics.GatewayMetrics
	logg          *logger.Logger
	redirectURL   string
}

// ServiceParams wires the reconciler dependencies.
type ServiceParams struct {
	Client       verifier
	Transactions payments.Repository
	Subs         subscriptions.Repository
	Discovery    subscriptionDiscoverer
	Orders       orderCollaborator
	OrderRepo    orders.Repository
	Ledger       ledger.Service
	Tx           txRunner
	Outbox       outboxEmitter
	Metrics      *metrics.GatewayMetrics
	Logger       *logger.Logger
	RedirectURL  string
}

// NewService validates dependencies and returns a reconciler.
func NewService(params ServiceParams) (Service, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("provider client required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transaction repository required")
	}
	if params.Subs == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Discovery == nil {
		return nil, fmt.Errorf("subscription discovery required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order collaborator required")
	}
	if params.OrderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		client:       params.Client,
		transactions: params.Transactions,
		subs:         params.Subs,
		discovery:    params.Discovery,
		orders:       params.Orders,
		orderRepo:    params.OrderRepo,
		ledger:       params.Ledger,
		tx:           params.Tx,
		outbox:       params.Outbox,
		metrics:      params.Metrics,
		logg:         params.Logger,
		redirectURL:  params.RedirectURL,
	}, nil
}

// ConfirmByID re-verifies the charge against the provider before reconciling.
// Inbound payloads are treated as hints only.
func (s *service) ConfirmByID(ctx context.Context, providerTxID int64, path Path) (*Result, error) {
	charge, err := s.client.VerifyTransaction(ctx, providerTxID)
	if err != nil {
		s.metrics.IncReconcile(string(path), "verify_failed")
		return nil, err
	}
	return s.Reconcile(ctx, *charge, path)
}

// ConfirmByReference is ConfirmByID for callers that only hold the tx_ref.
func (s *service) ConfirmByReference(ctx context.Context, ref string, path Path) (*Result, error) {
	charge, err := s.client.VerifyTransactionByReference(ctx, ref)
	if err != nil {
		s.metrics.IncReconcile(string(path), "verify_failed")
		return nil, err
	}
	return s.Reconcile(ctx, *charge, path)
}

// Reconcile settles one verified provider charge into local state. Safe to
// call from both paths concurrently; the loser of the status race gets the
// short-circuit result.
func (s *service) Reconcile(ctx context.Context, verified flutterwave.ChargeData, path Path) (*Result, error) {
	if !verified.Successful() {
		s.metrics.IncReconcile(string(path), "not_successful")
		return nil, pkgerrors.New(pkgerrors.CodeProviderRejected, "charge is not successful").
			WithDetails(map[string]any{"charge_status": verified.Status})
	}

	txn, sub, err := s.resolve(ctx, verified)
	if err != nil {
		s.metrics.IncReconcile(string(path), "not_found")
		return nil, err
	}

	if txn.Status == enums.TransactionStatusSucceeded {
		s.metrics.IncReconcile(string(path), "idempotent")
		return s.result(txn.OrderID, true), nil
	}

	order, err := s.orderRepo.FindOrderByID(ctx, txn.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		s.metrics.IncReconcile(string(path), "not_found")
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order backing the transaction not found")
	}

	var activation *activationPlan
	if sub != nil && sub.Status == enums.SubscriptionStatusPending {
		activation = s.planActivation(ctx, sub, verified)
	}

	claimed := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txns := s.transactions.WithTx(tx)
		won, err := txns.ClaimSucceeded(ctx, txn.ID)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		claimed = true

		s.applyCharge(txn, verified)
		if err := txns.UpdateTransaction(ctx, txn); err != nil {
			return err
		}

		if activation != nil {
			if err := s.applyActivation(ctx, tx, sub, activation); err != nil {
				return err
			}
		}

		if _, err := s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordEventInput{
			OrderID:       txn.OrderID,
			TransactionID: &txn.ID,
			Type:          enums.LedgerEventChargeConfirmed,
			AmountCents:   txn.TotalCents,
			Description:   fmt.Sprintf("charge %s confirmed via %s", txn.ProviderChargeID, path),
		}); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentSucceeded,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Source:        eventSource,
			Data: PaymentSucceededEvent{
				OrderID:          txn.OrderID,
				TransactionID:    txn.ID,
				ProviderChargeID: txn.ProviderChargeID,
				AmountCents:      txn.TotalCents,
				Currency:         txn.Currency,
			},
			Version: 1,
		})
	})
	if err != nil {
		s.metrics.IncReconcile(string(path), "error")
		return nil, err
	}
	if !claimed {
		// Lost the race: the other path already recorded the charge.
		s.metrics.IncReconcile(string(path), "idempotent")
		return s.result(txn.OrderID, true), nil
	}

	if order.Type == enums.OrderTypeRenewal && sub != nil {
		// The claim above already persisted the charge row, so hand it to
		// the recorder; it then applies only the subscription bookkeeping.
		if _, _, err := s.orders.RecordRenewal(ctx, orders.RecordRenewalInput{
			Sub:              sub,
			Txn:              txn,
			ProviderChargeID: txn.ProviderChargeID,
			AmountCents:      txn.TotalCents,
			Currency:         txn.Currency,
			FlwRef:           verified.FlwRef,
			TxRef:            verified.TxRef,
			PaymentType:      verified.PaymentType,
		}); err != nil {
			return nil, err
		}
	} else if err := s.orders.SyncOrderStatus(ctx, txn.OrderID); err != nil {
		return nil, err
	}

	s.metrics.IncReconcile(string(path), "settled")
	return s.result(txn.OrderID, false), nil
}

// PaymentSucceededEvent is published once per settled charge.
type PaymentSucceededEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	TransactionID    uuid.UUID `json:"transaction_id"`
	ProviderChargeID string    `json:"provider_charge_id"`
	AmountCents      int64     `json:"amount_cents"`
	Currency         string    `json:"currency"`
}

// SubscriptionActivatedEvent is published at most once per subscription.
type SubscriptionActivatedEvent struct {
	SubscriptionID  uuid.UUID  `json:"subscription_id"`
	OrderID         uuid.UUID  `json:"order_id"`
	Status          string     `json:"status"`
	NextBillingDate *time.Time `json:"next_billing_date,omitempty"`
}

// resolve walks from the verified charge to the local transaction, decoding
// the tx_ref first and falling back to the embedded transaction hash.
func (s *service) resolve(ctx context.Context, verified flutterwave.ChargeData) (*models.OrderTransaction, *models.Subscription, error) {
	intent, rawID := txref.Decode(verified.TxRef)
	if rawID != "" {
		id, err := uuid.Parse(rawID)
		if err == nil {
			switch intent {
			case txref.IntentOneTime:
				txn, err := s.transactions.FindTransactionByID(ctx, id)
				if err != nil {
					return nil, nil, err
				}
				if txn != nil {
					return txn, nil, nil
				}
			case txref.IntentSubscription:
				sub, err := s.subs.FindByID(ctx, id)
				if err != nil {
					return nil, nil, err
				}
				if sub != nil {
					txn, err := s.transactions.FindChargeByOrderID(ctx, sub.OrderID)
					if err != nil {
						return nil, nil, err
					}
					if txn != nil {
						return txn, sub, nil
					}
				}
			}
		}
	}

	if hash, ok := verified.Meta["transaction_hash"].(string); ok && hash != "" {
		order, err := s.orderRepo.FindOrderByHash(ctx, hash)
		if err != nil {
			return nil, nil, err
		}
		if order != nil {
			txn, err := s.transactions.FindChargeByOrderID(ctx, order.ID)
			if err != nil {
				return nil, nil, err
			}
			if txn != nil {
				sub, err := s.subs.FindByOrderID(ctx, order.ID)
				if err != nil {
					return nil, nil, err
				}
				return txn, sub, nil
			}
		}
	}

	return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "no local transaction matches the charge").
		WithDetails(map[string]any{"tx_ref": verified.TxRef})
}

type activationPlan struct {
	target     enums.SubscriptionStatus
	nextBill   time.Time
	discovered *subscriptions.ProviderSubscription
}

// planActivation gathers everything activation needs before the write
// transaction opens. Discovery failures degrade to activation without
// provider linkage; they never block settlement.
func (s *service) planActivation(ctx context.Context, sub *models.Subscription, verified flutterwave.ChargeData) *activationPlan {
	plan := &activationPlan{
		target:   enums.SubscriptionStatusActive,
		nextBill: subscriptions.NextBillingDate(sub, time.Now().UTC()),
	}
	if sub.TrialDays > 0 {
		plan.target = enums.SubscriptionStatusTrialing
	}

	discovered, err := s.discovery.DiscoverProviderSubscription(ctx, sub, verified.ID)
	if err != nil {
		if s.logg != nil {
			lctx := s.logg.WithSubscriptionID(ctx, sub.ID.String())
			s.logg.Warn(lctx, "provider subscription discovery failed; activating without linkage")
		}
		return plan
	}
	if discovered == nil {
		return plan
	}
	plan.discovered = discovered
	if mapped, ok := subscriptions.MapProviderStatus(discovered.Status); ok && mapped.IsTerminal() {
		// The provider already closed the agreement; record its word
		// instead of activating.
		plan.target = mapped
	}
	return plan
}

func (s *service) applyActivation(ctx context.Context, tx *gorm.DB, sub *models.Subscription, plan *activationPlan) error {
	subsRepo := s.subs.WithTx(tx)
	won, err := subsRepo.ClaimActivation(ctx, sub.ID, plan.target)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	sub.Status = plan.target
	// The settled first charge is the subscription's first bill; renewal
	// routing keys off a non-zero bill count.
	sub.BillCount = 1
	sub.NextBillingDate = &plan.nextBill
	if plan.discovered != nil {
		sub.ProviderSubscriptionID = plan.discovered.SubscriptionID
		sub.ProviderCustomerID = plan.discovered.CustomerID
		if plan.discovered.NextDue != nil {
			sub.NextBillingDate = plan.discovered.NextDue
		}
	}
	if plan.target.IsTerminal() {
		sub.NextBillingDate = nil
	}
	if err := subsRepo.UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	if plan.target.IsTerminal() {
		return nil
	}

	if _, err := s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordEventInput{
		OrderID:        sub.OrderID,
		SubscriptionID: &sub.ID,
		Type:           enums.LedgerEventSubscriptionActivated,
		Description:    fmt.Sprintf("subscription activated as %s", plan.target),
	}); err != nil {
		return err
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionActivated,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Source:        eventSource,
		Data: SubscriptionActivatedEvent{
			SubscriptionID:  sub.ID,
			OrderID:         sub.OrderID,
			Status:          string(plan.target),
			NextBillingDate: sub.NextBillingDate,
		},
		Version: 1,
	})
}

// applyCharge copies the authoritative provider fields onto the local row.
func (s *service) applyCharge(txn *models.OrderTransaction, verified flutterwave.ChargeData) {
	txn.Status = enums.TransactionStatusSucceeded
	txn.TotalCents = flutterwave.ToMinorUnits(verified.Amount)
	if verified.Currency != "" {
		txn.Currency = verified.Currency
	}
	txn.ProviderChargeID = strconv.FormatInt(verified.ID, 10)
	txn.PaymentMethodType = verified.PaymentType
	if verified.Card != nil {
		txn.CardBrand = verified.Card.Type
		txn.CardLast4 = verified.Card.Last4
	}
	txn.Meta = txn.Meta.Merge(types.Meta{
		"flw_ref": verified.FlwRef,
		"tx_ref":  verified.TxRef,
	})
}

func (s *service) result(orderID uuid.UUID, idempotent bool) *Result {
	return &Result{
		OrderID:     orderID,
		RedirectURL: fmt.Sprintf("%s?order=%s", s.redirectURL, orderID),
		Idempotent:  idempotent,
	}
}
