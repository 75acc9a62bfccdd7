package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartship/flutterwave-gateway/internal/ledger"
	"github.com/cartship/flutterwave-gateway/internal/payments"
	dbpkg "github.com/cartship/flutterwave-gateway/pkg/db"
	"github.com/cartship/flutterwave-gateway/pkg/db/models"
	"github.com/cartship/flutterwave-gateway/pkg/enums"
	"github.com/cartship/flutterwave-gateway/pkg/outbox"
	"github.com/cartship/flutterwave-gateway/pkg/types"
)

const eventSource = "flutterwave-gateway"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns order status aggregation and subscription renewal recording.
type Service interface {
	SyncOrderStatus(ctx context.Context, orderID uuid.UUID) error
	RecordRenewal(ctx context.Context, input RecordRenewalInput) (*models.OrderTransaction, bool, error)
}

type service struct {
	repo         Repository
	transactions payments.Repository
	ledger       ledger.Service
	tx           txRunner
	outbox       outboxEmitter
	autoComplete bool
}

// ServiceParams wires the order service dependencies.
type ServiceParams struct {
	Repo              Repository
	Transactions      payments.Repository
	Ledger            ledger.Service
	Tx                txRunner
	Outbox            outboxEmitter
	AutoCompleteOrder bool
}

// NewService validates dependencies and returns an order service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transaction repository required")
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
		repo:         params.Repo,
		transactions: params.Transactions,
		ledger:       params.Ledger,
		tx:           params.Tx,
		outbox:       params.Outbox,
		autoComplete: params.AutoCompleteOrder,
	}, nil
}

// OrderStatusChangedEvent is published when the aggregate status moves.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	Status  enums.OrderStatus `json:"status"`
}

// SyncOrderStatus recomputes the order's aggregate status from its primary
// charge and publishes a status-changed event when it moves.
func (s *service) SyncOrderStatus(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("order %s not found", orderID)
	}

	charge, err := s.transactions.FindChargeByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if charge == nil {
		return nil
	}

	status := deriveOrderStatus(charge, s.autoComplete)
	if status == "" || status == order.Status {
		return nil
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		changed, err := s.repo.WithTx(tx).UpdateOrderStatus(ctx, orderID, status)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Source:        eventSource,
			Data:          OrderStatusChangedEvent{OrderID: orderID, Status: status},
			Version:       1,
		})
	})
}

func deriveOrderStatus(charge *models.OrderTransaction, autoComplete bool) enums.OrderStatus {
	switch charge.Status {
	case enums.TransactionStatusFailed:
		return enums.OrderStatusFailed
	case enums.TransactionStatusRefunded:
		return enums.OrderStatusRefunded
	case enums.TransactionStatusSucceeded:
		if charge.RefundedTotalCents >= charge.TotalCents && charge.TotalCents > 0 {
			return enums.OrderStatusRefunded
		}
		if charge.RefundedTotalCents > 0 {
			return enums.OrderStatusPartiallyRefunded
		}
		if autoComplete {
			return enums.OrderStatusCompleted
		}
		return enums.OrderStatusProcessing
	}
	return ""
}

// SubscriptionRenewedEvent is published once per recorded renewal charge.
type SubscriptionRenewedEvent struct {
	SubscriptionID   uuid.UUID `json:"subscription_id"`
	OrderID          uuid.UUID `json:"order_id"`
	TransactionID    uuid.UUID `json:"transaction_id"`
	ProviderChargeID string    `json:"provider_charge_id"`
	AmountCents      int64     `json:"amount_cents"`
	BillCount        int       `json:"bill_count"`
}

// RecordRenewalInput carries one settled provider charge on a subscription.
// Txn, when set, is the already-persisted charge row; RecordRenewal then
// skips the insert and applies only the subscription bookkeeping.
type RecordRenewalInput struct {
	Sub              *models.Subscription
	Txn              *models.OrderTransaction
	ProviderChargeID string
	AmountCents      int64
	Currency         string
	FlwRef           string
	TxRef            string
	PaymentType      string
	NextBillingDate  *time.Time
}

// RecordRenewal records a renewal charge exactly once per provider charge id.
// It reports whether this call created the row.
func (s *service) RecordRenewal(ctx context.Context, input RecordRenewalInput) (*models.OrderTransaction, bool, error) {
	if input.Sub == nil {
		return nil, false, fmt.Errorf("subscription required")
	}
	if input.ProviderChargeID == "" {
		return nil, false, fmt.Errorf("provider charge id required")
	}

	sub := input.Sub
	txn := input.Txn
	if txn == nil {
		existing, err := s.transactions.FindChargeByProviderChargeID(ctx, input.ProviderChargeID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
		txn = &models.OrderTransaction{
			ID:                uuid.New(),
			OrderID:           sub.OrderID,
			SubscriptionID:    &sub.ID,
			Type:              enums.TransactionTypeCharge,
			Status:            enums.TransactionStatusSucceeded,
			TotalCents:        input.AmountCents,
			Currency:          input.Currency,
			ProviderChargeID:  input.ProviderChargeID,
			PaymentMethodType: input.PaymentType,
			Meta: types.Meta{
				"flw_ref": input.FlwRef,
				"tx_ref":  input.TxRef,
			},
		}
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txns := s.transactions.WithTx(tx)
		if input.Txn == nil {
			if err := txns.CreateTransaction(ctx, txn); err != nil {
				return err
			}
		} else if txn.SubscriptionID == nil {
			txn.SubscriptionID = &sub.ID
			if err := txns.UpdateTransaction(ctx, txn); err != nil {
				return err
			}
		}

		sub.BillCount++
		if input.NextBillingDate != nil {
			sub.NextBillingDate = input.NextBillingDate
		}
		if sub.BillTimes > 0 && sub.BillCount >= sub.BillTimes {
			sub.Status = enums.SubscriptionStatusCompleted
		}
		if err := s.repo.WithTx(tx).UpdateSubscription(ctx, sub); err != nil {
			return err
		}

		if _, err := s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordEventInput{
			OrderID:        sub.OrderID,
			SubscriptionID: &sub.ID,
			TransactionID:  &txn.ID,
			Type:           enums.LedgerEventSubscriptionRenewed,
			AmountCents:    input.AmountCents,
			Description:    fmt.Sprintf("renewal charge %s recorded", input.ProviderChargeID),
		}); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionRenewed,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   sub.ID,
			Source:        eventSource,
			Data: SubscriptionRenewedEvent{
				SubscriptionID:   sub.ID,
				OrderID:          sub.OrderID,
				TransactionID:    txn.ID,
				ProviderChargeID: input.ProviderChargeID,
				AmountCents:      input.AmountCents,
				BillCount:        sub.BillCount,
			},
			Version: 1,
		})
	})
	if err != nil {
		// A concurrent caller inserted the same provider charge first.
		if input.Txn == nil && dbpkg.IsUniqueViolation(err, "ux_order_transactions_charge_provider_id") {
			existing, findErr := s.transactions.FindChargeByProviderChargeID(ctx, input.ProviderChargeID)
			if findErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}
	return txn, true, nil
}
