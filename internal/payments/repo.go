package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartship/flutterwave-gateway/pkg/db/models"
	"github.com/cartship/flutterwave-gateway/pkg/enums"
	"github.com/cartship/flutterwave-gateway/pkg/pagination"
)

// Repository handles order transaction persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateTransaction(ctx context.Context, txn *models.OrderTransaction) error
	UpdateTransaction(ctx context.Context, txn *models.OrderTransaction) error
	FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.OrderTransaction, error)
	FindChargeByProviderChargeID(ctx context.Context, providerChargeID string) (*models.OrderTransaction, error)
	FindChargeByOrderID(ctx context.Context, orderID uuid.UUID) (*models.OrderTransaction, error)
	FindChargeByFlwRef(ctx context.Context, flwRef string) (*models.OrderTransaction, error)
	FindRefundByProviderRefundID(ctx context.Context, providerRefundID string) (*models.OrderTransaction, error)
	FindRefundByOrderAmountWithoutProviderID(ctx context.Context, orderID uuid.UUID, amountCents int64) (*models.OrderTransaction, error)
	ListByOrder(ctx context.Context, params ListTransactionsQuery) ([]models.OrderTransaction, *pagination.Cursor, error)
	ClaimSucceeded(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// ListTransactionsQuery configures order transaction list queries.
type ListTransactionsQuery struct {
	OrderID uuid.UUID
	Limit   int
	Cursor  *pagination.Cursor
	Type    *enums.TransactionType
	Status  *enums.TransactionStatus
}

// NewRepository returns a transaction repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.OrderTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) UpdateTransaction(ctx context.Context, txn *models.OrderTransaction) error {
	return r.db.WithContext(ctx).Save(txn).Error
}

func (r *repository) FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.OrderTransaction, error) {
	var txn models.OrderTransaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindChargeByProviderChargeID(ctx context.Context, providerChargeID string) (*models.OrderTransaction, error) {
	var txn models.OrderTransaction
	if err := r.db.WithContext(ctx).
		Where("type = ?", enums.TransactionTypeCharge).
		Where("provider_charge_id = ?", providerChargeID).
		Order("created_at ASC").
		First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindChargeByOrderID(ctx context.Context, orderID uuid.UUID) (*models.OrderTransaction, error) {
	var txn models.OrderTransaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Where("type = ?", enums.TransactionTypeCharge).
		Order("created_at ASC").
		First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// FindChargeByFlwRef matches a charge by the provider reference retained in
// its meta. Works on both Postgres and SQLite via the JSON ->> operator.
func (r *repository) FindChargeByFlwRef(ctx context.Context, flwRef string) (*models.OrderTransaction, error) {
	if flwRef == "" {
		return nil, nil
	}
	var txn models.OrderTransaction
	if err := r.db.WithContext(ctx).
		Where("type = ?", enums.TransactionTypeCharge).
		Where("meta ->> 'flw_ref' = ?", flwRef).
		Order("created_at ASC").
		First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindRefundByProviderRefundID(ctx context.Context, providerRefundID string) (*models.OrderTransaction, error) {
	var txn models.OrderTransaction
	if err := r.db.WithContext(ctx).
		Where("type = ?", enums.TransactionTypeRefund).
		Where("provider_refund_id = ?", providerRefundID).
		First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindRefundByOrderAmountWithoutProviderID(ctx context.Context, orderID uuid.UUID, amountCents int64) (*models.OrderTransaction, error) {
	var txn models.OrderTransaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Where("type = ?", enums.TransactionTypeRefund).
		Where("total_cents = ?", amountCents).
		Where("(provider_refund_id IS NULL OR provider_refund_id = '')").
		Order("created_at ASC").
		First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) ListByOrder(ctx context.Context, params ListTransactionsQuery) ([]models.OrderTransaction, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).
		Model(&models.OrderTransaction{}).
		Where("order_id = ?", params.OrderID)
	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var txns []models.OrderTransaction
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&txns).Error; err != nil {
		return nil, nil, err
	}

	if len(txns) > limit {
		next := txns[limit]
		txns = txns[:limit]
		return txns, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return txns, nil, nil
}

// ClaimSucceeded flips a transaction to succeeded only if no other writer got
// there first. It reports whether this caller won the transition.
func (r *repository) ClaimSucceeded(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OrderTransaction{}).
		Where("id = ?", id).
		Where("status <> ?", enums.TransactionStatusSucceeded).
		Update("status", enums.TransactionStatusSucceeded)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
