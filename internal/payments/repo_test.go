package payments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cartship/flutterwave-gateway/pkg/db/models"
	"github.com/cartship/flutterwave-gateway/pkg/enums"
	"github.com/cartship/flutterwave-gateway/pkg/types"
)

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	transactions := `
CREATE TABLE IF NOT EXISTS order_transactions (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  subscription_id TEXT,
  type TEXT NOT NULL DEFAULT 'charge',
  status TEXT NOT NULL DEFAULT 'pending',
  total_cents INTEGER NOT NULL,
  refunded_total_cents INTEGER NOT NULL DEFAULT 0,
  currency TEXT NOT NULL,
  provider_charge_id TEXT,
  provider_refund_id TEXT,
  card_brand TEXT,
  card_last4 TEXT,
  payment_method_type TEXT,
  meta TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(transactions).Error)
	return db
}

func createCharge(t *testing.T, db *gorm.DB, orderID uuid.UUID, status enums.TransactionStatus, providerChargeID string, created time.Time) *models.OrderTransaction {
	t.Helper()

	txn := &models.OrderTransaction{
		ID:               uuid.New(),
		OrderID:          orderID,
		Type:             enums.TransactionTypeCharge,
		Status:           status,
		TotalCents:       4999,
		Currency:         "NGN",
		ProviderChargeID: providerChargeID,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
	require.NoError(t, db.Create(txn).Error)
	return txn
}

func TestClaimSucceeded(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	txn := createCharge(t, db, uuid.New(), enums.TransactionStatusPending, "912", time.Now().UTC())

	won, err := repo.ClaimSucceeded(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, won, "first claim should win")

	won, err = repo.ClaimSucceeded(ctx, txn.ID)
	require.NoError(t, err)
	assert.False(t, won, "second claim must lose")

	reloaded, err := repo.FindTransactionByID(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.Equal(t, enums.TransactionStatusSucceeded, reloaded.Status)
}

func TestFindChargeByProviderChargeID(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orderID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)
	first := createCharge(t, db, orderID, enums.TransactionStatusSucceeded, "912", base)
	createCharge(t, db, orderID, enums.TransactionStatusPending, "912", base.Add(time.Minute))

	found, err := repo.FindChargeByProviderChargeID(ctx, "912")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID, "earliest matching charge wins")

	missing, err := repo.FindChargeByProviderChargeID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindChargeByFlwRef(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	txn := createCharge(t, db, uuid.New(), enums.TransactionStatusSucceeded, "912", time.Now().UTC())
	txn.Meta = types.Meta{"flw_ref": "FLW-MOCK-77", "tx_ref": "onetime_x"}
	require.NoError(t, db.Save(txn).Error)

	found, err := repo.FindChargeByFlwRef(ctx, "FLW-MOCK-77")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, txn.ID, found.ID)

	missing, err := repo.FindChargeByFlwRef(ctx, "FLW-MOCK-99")
	require.NoError(t, err)
	assert.Nil(t, missing)

	empty, err := repo.FindChargeByFlwRef(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestFindRefundUpsertLookups(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orderID := uuid.New()
	withID := &models.OrderTransaction{
		ID:               uuid.New(),
		OrderID:          orderID,
		Type:             enums.TransactionTypeRefund,
		Status:           enums.TransactionStatusPending,
		TotalCents:       1000,
		Currency:         "NGN",
		ProviderRefundID: "55",
	}
	require.NoError(t, db.Create(withID).Error)
	withoutID := &models.OrderTransaction{
		ID:         uuid.New(),
		OrderID:    orderID,
		Type:       enums.TransactionTypeRefund,
		Status:     enums.TransactionStatusPending,
		TotalCents: 2500,
		Currency:   "NGN",
	}
	require.NoError(t, db.Create(withoutID).Error)

	found, err := repo.FindRefundByProviderRefundID(ctx, "55")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, withID.ID, found.ID)

	found, err = repo.FindRefundByOrderAmountWithoutProviderID(ctx, orderID, 2500)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, withoutID.ID, found.ID)

	found, err = repo.FindRefundByOrderAmountWithoutProviderID(ctx, orderID, 1000)
	require.NoError(t, err)
	assert.Nil(t, found, "refund with provider id must not match the fallback lookup")
}

func TestListByOrderPagination(t *testing.T) {
	db := setupPaymentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orderID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		createCharge(t, db, orderID, enums.TransactionStatusSucceeded, fmt.Sprintf("9%d", i), base.Add(time.Duration(i)*time.Minute))
	}
	createCharge(t, db, uuid.New(), enums.TransactionStatusSucceeded, "other", base)

	page, cursor, err := repo.ListByOrder(ctx, ListTransactionsQuery{OrderID: orderID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, cursor)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt), "newest first")

	rest, next, err := repo.ListByOrder(ctx, ListTransactionsQuery{OrderID: orderID, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Nil(t, next)

	chargeType := enums.TransactionTypeRefund
	none, _, err := repo.ListByOrder(ctx, ListTransactionsQuery{OrderID: orderID, Type: &chargeType})
	require.NoError(t, err)
	assert.Empty(t, none)
}
