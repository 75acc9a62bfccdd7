package refunds

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cartship/flutterwave-gateway/internal/ledger"
	"github.com/cartship/flutterwave-gateway/internal/payments"
	"github.com/cartship/flutterwave-gateway/pkg/db/models"
	"github.com/cartship/flutterwave-gateway/pkg/enums"
	pkgerrors "github.com/cartship/flutterwave-gateway/pkg/errors"
	"github.com/cartship/flutterwave-gateway/pkg/flutterwave"
	"github.com/cartship/flutterwave-gateway/pkg/outbox"
	"github.com/cartship/flutterwave-gateway/pkg/types"
)

const eventSource = "flutterwave-gateway"

// acceptedRefundStatuses are the provider refund states treated as accepted.
var acceptedRefundStatuses = map[string]struct{}{
	"pending":      {},
	"pending-void": {},
	"completed":    {},
}

type refundCreator interface {
	CreateRefund(ctx context.Context, transactionID int64, amount *decimal.Decimal) (*flutterwave.RefundData, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns refund issuance and idempotent refund recording.
type Service interface {
	ProcessRemoteRefund(ctx context.Context, txn *models.OrderTransaction, amountCents int64) (*models.OrderTransaction, error)
	CreateOrUpdateIPNRefund(ctx context.Context, refund flutterwave.RefundData, parent *models.OrderTransaction) (*models.OrderTransaction, bool, error)
}

type service struct {
	transactions payments.Repository
	ledger       ledger.Service
	client       refundCreator
	tx           txRunner
	outbox       outboxEmitter
}

// ServiceParams wires the refund service dependencies.
type ServiceParams struct {
	Transactions payments.Repository
	Ledger       ledger.Service
	Client       refundCreator
	Tx           txRunner
	Outbox       outboxEmitter
}

// NewService validates dependencies and returns a refund service.
func NewService(params ServiceParams) (Service, error) {
	if params.Transactions == nil {
		return nil, fmt.Errorf("transaction repository required")
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
		transactions: params.Transactions,
		ledger:       params.Ledger,
		client:       params.Client,
		tx:           params.Tx,
		outbox:       params.Outbox,
	}, nil
}

// ProcessRemoteRefund issues a refund at the provider for a settled charge
// and records it locally. A charge that never got its provider id cannot be
// refunded remotely; that fails before any network call.
func (s *service) ProcessRemoteRefund(ctx context.Context, txn *models.OrderTransaction, amountCents int64) (*models.OrderTransaction, error) {
	if txn == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if txn.ProviderChargeID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnsupported,
			"transaction has no provider charge id; it cannot be refunded at the provider")
	}
	chargeID, err := strconv.ParseInt(txn.ProviderChargeID, 10, 64)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "malformed provider charge id")
	}
	if amountCents <= 0 || amountCents > txn.TotalCents-txn.RefundedTotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeUnsupported, "refund amount exceeds the refundable balance")
	}

	amount := flutterwave.FromMinorUnits(amountCents)
	refund, err := s.client.CreateRefund(ctx, chargeID, &amount)
	if err != nil {
		return nil, err
	}
	if _, ok := acceptedRefundStatuses[refund.Status]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeProviderRejected, "provider reported an unexpected refund status").
			WithDetails(map[string]any{"refund_status": refund.Status})
	}

	row, _, err := s.CreateOrUpdateIPNRefund(ctx, *refund, txn)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// OrderRefundedEvent is published once per recorded refund.
type OrderRefundedEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	TransactionID    uuid.UUID `json:"transaction_id"`
	ProviderRefundID string    `json:"provider_refund_id"`
	AmountCents      int64     `json:"amount_cents"`
}

// CreateOrUpdateIPNRefund records a provider refund exactly once. Matching
// tries the provider refund id first, then an existing same-amount row that
// has no provider id yet. Only a true creation moves the parent's refunded
// total.
func (s *service) CreateOrUpdateIPNRefund(ctx context.Context, refund flutterwave.RefundData, parent *models.OrderTransaction) (*models.OrderTransaction, bool, error) {
	if parent == nil {
		return nil, false, fmt.Errorf("parent charge required")
	}
	providerRefundID := strconv.FormatInt(refund.ID, 10)
	amountCents := flutterwave.ToMinorUnits(refund.AmountRefunded)

	existing, err := s.transactions.FindRefundByProviderRefundID(ctx, providerRefundID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		existing, err = s.transactions.FindRefundByOrderAmountWithoutProviderID(ctx, parent.OrderID, amountCents)
		if err != nil {
			return nil, false, err
		}
	}

	if existing != nil {
		existing.ProviderRefundID = providerRefundID
		if refund.Status == "completed" {
			existing.Status = enums.TransactionStatusSucceeded
		}
		if err := s.transactions.UpdateTransaction(ctx, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	status := enums.TransactionStatusPending
	if refund.Status == "completed" {
		status = enums.TransactionStatusSucceeded
	}
	row := &models.OrderTransaction{
		ID:               uuid.New(),
		OrderID:          parent.OrderID,
		SubscriptionID:   parent.SubscriptionID,
		Type:             enums.TransactionTypeRefund,
		Status:           status,
		TotalCents:       amountCents,
		Currency:         parent.Currency,
		ProviderChargeID: parent.ProviderChargeID,
		ProviderRefundID: providerRefundID,
		Meta: types.Meta{
			"parent_id": parent.ID.String(),
			"flw_ref":   refund.FlwRef,
		},
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txns := s.transactions.WithTx(tx)
		if err := txns.CreateTransaction(ctx, row); err != nil {
			return err
		}

		parent.RefundedTotalCents += amountCents
		if parent.RefundedTotalCents >= parent.TotalCents && parent.TotalCents > 0 {
			parent.Status = enums.TransactionStatusRefunded
		}
		if err := txns.UpdateTransaction(ctx, parent); err != nil {
			return err
		}

		if _, err := s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordEventInput{
			OrderID:       parent.OrderID,
			TransactionID: &row.ID,
			Type:          enums.LedgerEventRefundRecorded,
			AmountCents:   amountCents,
			Description:   fmt.Sprintf("provider refund %s recorded", providerRefundID),
		}); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   parent.OrderID,
			Source:        eventSource,
			Data: OrderRefundedEvent{
				OrderID:          parent.OrderID,
				TransactionID:    row.ID,
				ProviderRefundID: providerRefundID,
				AmountCents:      amountCents,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}
