package reconcile

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cartship/flutterwave-gateway/internal/ledger"
	"github.com/cartship/flutterwave-gateway/internal/orders"
	"github.com/cartship/flutterwave-gateway/internal/payments"
	"github.com/cartship/flutterwave-gateway/internal/subscriptions"
	"github.com/cartship/flutterwave-gateway/pkg/db/models"
	"github.com/cartship/flutterwave-gateway/pkg/enums"
	"github.com/cartship/flutterwave-gateway/pkg/flutterwave"
	"github.com/cartship/flutterwave-gateway/pkg/outbox"
	"github.com/cartship/flutterwave-gateway/pkg/pagination"
	"github.com/cartship/flutterwave-gateway/pkg/txref"
)

type stubVerifier struct {
	byID  map[int64]*flutterwave.ChargeData
	byRef map[string]*flutterwave.ChargeData
}

func (s *stubVerifier) VerifyTransaction(ctx context.Context, transactionID int64) (*flutterwave.ChargeData, error) {
	return s.byID[transactionID], nil
}

func (s *stubVerifier) VerifyTransactionByReference(ctx context.Context, txRef string) (*flutterwave.ChargeData, error) {
	return s.byRef[txRef], nil
}

type stubTxns struct {
	byID         map[uuid.UUID]*models.OrderTransaction
	byOrder      map[uuid.UUID]*models.OrderTransaction
	claimResults map[uuid.UUID]bool
	claimCalls   int
	updated      []*models.OrderTransaction
}

func newStubTxns() *stubTxns {
	return &stubTxns{
		byID:         map[uuid.UUID]*models.OrderTransaction{},
		byOrder:      map[uuid.UUID]*models.OrderTransaction{},
		claimResults: map[uuid.UUID]bool{},
	}
}

func (s *stubTxns) WithTx(tx *gorm.DB) payments.Repository { return s }

func (s *stubTxns) CreateTransaction(ctx context.Context, txn *models.OrderTransaction) error {
	return nil
}

func (s *stubTxns) UpdateTransaction(ctx context.Context, txn *models.OrderTransaction) error {
	s.updated = append(s.updated, txn)
	return nil
}

func (s *stubTxns) FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.OrderTransaction, error) {
	return s.byID[id], nil
}

func (s *stubTxns) FindChargeByProviderChargeID(ctx context.Context, providerChargeID string) (*models.OrderTransaction, error) {
	return nil, nil
}

func (s *stubTxns) FindChargeByOrderID(ctx context.Context, orderID uuid.UUID) (*models.OrderTransaction, error) {
	return s.byOrder[orderID], nil
}

func (s *stubTxns) FindChargeByFlwRef(ctx context.Context, flwRef string) (*models.OrderTransaction, error) {
	return nil, nil
}

func (s *stubTxns) FindRefundByProviderRefundID(ctx context.Context, providerRefundID string) (*models.OrderTransaction, error) {
	return nil, nil
}

func (s *stubTxns) FindRefundByOrderAmountWithoutProviderID(ctx context.Context, orderID uuid.UUID, amountCents int64) (*models.OrderTransaction, error) {
	return nil, nil
}

func (s *stubTxns) ListByOrder(ctx context.Context, params payments.ListTransactionsQuery) ([]models.OrderTransaction, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (s *stubTxns) ClaimSucceeded(ctx context.Context, id uuid.UUID) (bool, error) {
	s.claimCalls++
	won, ok := s.claimResults[id]
	if !ok {
		return true, nil
	}
	return won, nil
}

type stubSubs struct {
	byID        map[uuid.UUID]*models.Subscription
	byOrder     map[uuid.UUID]*models.Subscription
	claimedOnce map[uuid.UUID]bool
	updated     []*models.Subscription
}

func newStubSubs() *stubSubs {
	return &stubSubs{
		byID:        map[uuid.UUID]*models.Subscription{},
		byOrder:     map[uuid.UUID]*models.Subscription{},
		claimedOnce: map[uuid.UUID]bool{},
	}
}

func (s *stubSubs) WithTx(tx *gorm.DB) subscriptions.Repository { return s }

func (s *stubSubs) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return nil
}

func (s *stubSubs) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	s.updated = append(s.updated, sub)
	return nil
}

func (s *stubSubs) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return s.byID[id], nil
}

func (s *stubSubs) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Subscription, error) {
	return s.byOrder[orderID], nil
}

func (s *stubSubs) FindByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	return nil, nil
}

func (s *stubSubs) ClaimActivation(ctx context.Context, id uuid.UUID, to enums.SubscriptionStatus) (bool, error) {
	if s.claimedOnce[id] {
		return false, nil
	}
	s.claimedOnce[id] = true
	return true, nil
}

type stubDiscovery struct {
	result *subscriptions.ProviderSubscription
	err    error
}

func (s *stubDiscovery) DiscoverProviderSubscription(ctx context.Context, sub *models.Subscription, firstChargeTxID int64) (*subscriptions.ProviderSubscription, error) {
	return s.result, s.err
}

type stubOrders struct {
	synced   []uuid.UUID
	renewals []orders.RecordRenewalInput
}

func (s *stubOrders) SyncOrderStatus(ctx context.Context, orderID uuid.UUID) error {
	s.synced = append(s.synced, orderID)
	return nil
}

func (s *stubOrders) RecordRenewal(ctx context.Context, input orders.RecordRenewalInput) (*models.OrderTransaction, bool, error) {
	s.renewals = append(s.renewals, input)
	return &models.OrderTransaction{}, true, nil
}

type stubOrderRepo struct {
	byID   map[uuid.UUID]*models.Order
	byHash map[string]*models.Order
}

func newStubOrderRepo() *stubOrderRepo {
	return &stubOrderRepo{byID: map[uuid.UUID]*models.Order{}, byHash: map[string]*models.Order{}}
}

func (s *stubOrderRepo) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrderRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	s.byID[order.ID] = order
	return nil
}

func (s *stubOrderRepo) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.byID[id], nil
}

func (s *stubOrderRepo) FindOrderByHash(ctx context.Context, hash string) (*models.Order, error) {
	return s.byHash[hash], nil
}

func (s *stubOrderRepo) UpdateOrder(ctx context.Context, order *models.Order) error {
	return nil
}

func (s *stubOrderRepo) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) (bool, error) {
	return false, nil
}

func (s *stubOrderRepo) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	return nil
}

type stubLedger struct {
	events []ledger.RecordEventInput
}

func (s *stubLedger) WithTx(tx *gorm.DB) ledger.Service { return s }

func (s *stubLedger) RecordEvent(ctx context.Context, input ledger.RecordEventInput) (*models.LedgerEvent, error) {
	s.events = append(s.events, input)
	return &models.LedgerEvent{}, nil
}

func (s *stubLedger) HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	return false, nil
}

type nopTxRunner struct{}

func (nopTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type fixture struct {
	verifier  *stubVerifier
	txns      *stubTxns
	subs      *stubSubs
	discovery *stubDiscovery
	orders    *stubOrders
	orderRepo *stubOrderRepo
	ledger    *stubLedger
	sink      *recordingOutbox
	svc       Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		verifier:  &stubVerifier{byID: map[int64]*flutterwave.ChargeData{}, byRef: map[string]*flutterwave.ChargeData{}},
		txns:      newStubTxns(),
		subs:      newStubSubs(),
		discovery: &stubDiscovery{},
		orders:    &stubOrders{},
		orderRepo: newStubOrderRepo(),
		ledger:    &stubLedger{},
		sink:      &recordingOutbox{},
	}
	svc, err := NewService(ServiceParams{
		Client:       f.verifier,
		Transactions: f.txns,
		Subs:         f.subs,
		Discovery:    f.discovery,
		Orders:       f.orders,
		OrderRepo:    f.orderRepo,
		Ledger:       f.ledger,
		Tx:           nopTxRunner{},
		Outbox:       f.sink,
		RedirectURL:  "https://shop.example.com/thanks",
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

// seedOneTime creates a pending charge reachable through a onetime tx_ref.
func (f *fixture) seedOneTime() (*models.Order, *models.OrderTransaction, flutterwave.ChargeData) {
	order := &models.Order{ID: uuid.New(), Type: enums.OrderTypePurchase, Currency: "NGN"}
	f.orderRepo.byID[order.ID] = order

	txn := &models.OrderTransaction{
		ID:      uuid.New(),
		OrderID: order.ID,
		Type:    enums.TransactionTypeCharge,
		Status:  enums.TransactionStatusPending,
	}
	f.txns.byID[txn.ID] = txn

	charge := flutterwave.ChargeData{
		ID:          912,
		TxRef:       txref.Encode(txref.IntentOneTime, txn.ID.String()),
		FlwRef:      "FLW-MOCK-1",
		Amount:      decimal.RequireFromString("49.99"),
		Currency:    "NGN",
		Status:      "successful",
		PaymentType: "card",
		Card:        &flutterwave.ChargeCard{Type: "VISA", Last4: "4242"},
	}
	return order, txn, charge
}

func TestReconcileSettlesPendingCharge(t *testing.T) {
	f := newFixture(t)
	order, txn, charge := f.seedOneTime()

	result, err := f.svc.Reconcile(context.Background(), charge, PathClient)
	require.NoError(t, err)
	assert.False(t, result.Idempotent)
	assert.Equal(t, order.ID, result.OrderID)
	assert.Contains(t, result.RedirectURL, order.ID.String())

	assert.Equal(t, enums.TransactionStatusSucceeded, txn.Status)
	assert.Equal(t, int64(4999), txn.TotalCents, "main-unit amount lands as minor units")
	assert.Equal(t, "912", txn.ProviderChargeID)
	assert.Equal(t, "VISA", txn.CardBrand)
	assert.Equal(t, "FLW-MOCK-1", txn.Meta.GetString("flw_ref"))
	assert.Equal(t, charge.TxRef, txn.Meta.GetString("tx_ref"))

	assert.Equal(t, []uuid.UUID{order.ID}, f.orders.synced)
	require.Len(t, f.sink.events, 1)
	assert.Equal(t, enums.EventPaymentSucceeded, f.sink.events[0].EventType)
	require.Len(t, f.ledger.events, 1)
	assert.Equal(t, enums.LedgerEventChargeConfirmed, f.ledger.events[0].Type)
}

func TestReconcileIdempotentShortCircuit(t *testing.T) {
	f := newFixture(t)
	_, txn, charge := f.seedOneTime()
	txn.Status = enums.TransactionStatusSucceeded

	result, err := f.svc.Reconcile(context.Background(), charge, PathWebhook)
	require.NoError(t, err)
	assert.True(t, result.Idempotent)
	assert.Zero(t, f.txns.claimCalls, "terminal rows never reach the claim")
	assert.Empty(t, f.sink.events)
	assert.Empty(t, f.orders.synced)
}

func TestReconcileLostRaceShortCircuits(t *testing.T) {
	f := newFixture(t)
	_, txn, charge := f.seedOneTime()
	f.txns.claimResults[txn.ID] = false

	result, err := f.svc.Reconcile(context.Background(), charge, PathClient)
	require.NoError(t, err)
	assert.True(t, result.Idempotent)
	assert.Empty(t, f.txns.updated, "losing the claim writes nothing")
	assert.Empty(t, f.sink.events)
}

func TestReconcileRejectsUnsuccessfulCharge(t *testing.T) {
	f := newFixture(t)
	_, _, charge := f.seedOneTime()
	charge.Status = "failed"

	_, err := f.svc.Reconcile(context.Background(), charge, PathClient)
	require.Error(t, err)
}

func TestReconcileFallsBackToTransactionHash(t *testing.T) {
	f := newFixture(t)
	order, txn, charge := f.seedOneTime()
	order.Hash = "hsh-1"
	f.orderRepo.byHash["hsh-1"] = order
	f.txns.byOrder[order.ID] = txn

	charge.TxRef = "garbage-without-intent"
	charge.Meta = map[string]any{"transaction_hash": "hsh-1"}

	result, err := f.svc.Reconcile(context.Background(), charge, PathWebhook)
	require.NoError(t, err)
	assert.Equal(t, order.ID, result.OrderID)
	assert.Equal(t, enums.TransactionStatusSucceeded, txn.Status)
}

func TestReconcileUnresolvableChargeIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, _, charge := f.seedOneTime()
	charge.TxRef = "onetime_" + uuid.NewString()
	charge.Meta = nil

	_, err := f.svc.Reconcile(context.Background(), charge, PathClient)
	require.Error(t, err)
}

func TestReconcileActivatesPendingSubscription(t *testing.T) {
	f := newFixture(t)
	order := &models.Order{ID: uuid.New(), Type: enums.OrderTypePurchase, Currency: "NGN"}
	f.orderRepo.byID[order.ID] = order

	sub := &models.Subscription{
		ID:              uuid.New(),
		OrderID:         order.ID,
		Status:          enums.SubscriptionStatusPending,
		BillingInterval: enums.BillingIntervalMonthly,
	}
	f.subs.byID[sub.ID] = sub

	txn := &models.OrderTransaction{
		ID:      uuid.New(),
		OrderID: order.ID,
		Type:    enums.TransactionTypeCharge,
		Status:  enums.TransactionStatusPending,
	}
	f.txns.byOrder[order.ID] = txn

	f.discovery.result = &subscriptions.ProviderSubscription{
		SubscriptionID: "404",
		CustomerID:     "31",
		Status:         "active",
	}

	charge := flutterwave.ChargeData{
		ID:       912,
		TxRef:    txref.Encode(txref.IntentSubscription, sub.ID.String()),
		Amount:   decimal.RequireFromString("49.99"),
		Currency: "NGN",
		Status:   "successful",
	}

	_, err := f.svc.Reconcile(context.Background(), charge, PathClient)
	require.NoError(t, err)

	assert.Equal(t, enums.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "404", sub.ProviderSubscriptionID)
	assert.Equal(t, 1, sub.BillCount, "the settled first charge is the first bill")
	assert.NotNil(t, sub.NextBillingDate)

	var types []enums.OutboxEventType
	for _, event := range f.sink.events {
		types = append(types, event.EventType)
	}
	assert.Contains(t, types, enums.EventSubscriptionActivated)
	assert.Contains(t, types, enums.EventPaymentSucceeded)

	// Redelivery settles idempotently and must not activate again.
	txn.Status = enums.TransactionStatusSucceeded
	_, err = f.svc.Reconcile(context.Background(), charge, PathWebhook)
	require.NoError(t, err)
	count := 0
	for _, event := range f.sink.events {
		if event.EventType == enums.EventSubscriptionActivated {
			count++
		}
	}
	assert.Equal(t, 1, count, "activation event at most once")
}

func TestReconcileTrialSubscriptionActivatesAsTrialing(t *testing.T) {
	f := newFixture(t)
	order := &models.Order{ID: uuid.New(), Type: enums.OrderTypePurchase, Currency: "NGN"}
	f.orderRepo.byID[order.ID] = order

	sub := &models.Subscription{
		ID:              uuid.New(),
		OrderID:         order.ID,
		Status:          enums.SubscriptionStatusPending,
		BillingInterval: enums.BillingIntervalMonthly,
		TrialDays:       14,
		SimulatedTrial:  true,
	}
	f.subs.byID[sub.ID] = sub
	f.txns.byOrder[order.ID] = &models.OrderTransaction{
		ID:      uuid.New(),
		OrderID: order.ID,
		Type:    enums.TransactionTypeCharge,
		Status:  enums.TransactionStatusPending,
	}

	charge := flutterwave.ChargeData{
		ID:     913,
		TxRef:  txref.Encode(txref.IntentSubscription, sub.ID.String()),
		Amount: decimal.RequireFromString("1"),
		Status: "successful",
	}

	_, err := f.svc.Reconcile(context.Background(), charge, PathClient)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusTrialing, sub.Status)
}

func TestReconcileRenewalOrderDelegates(t *testing.T) {
	f := newFixture(t)
	order := &models.Order{ID: uuid.New(), Type: enums.OrderTypeRenewal, Currency: "NGN"}
	f.orderRepo.byID[order.ID] = order

	sub := &models.Subscription{
		ID:      uuid.New(),
		OrderID: order.ID,
		Status:  enums.SubscriptionStatusActive,
	}
	f.subs.byID[sub.ID] = sub
	txn := &models.OrderTransaction{
		ID:      uuid.New(),
		OrderID: order.ID,
		Type:    enums.TransactionTypeCharge,
		Status:  enums.TransactionStatusPending,
	}
	f.txns.byOrder[order.ID] = txn

	charge := flutterwave.ChargeData{
		ID:     914,
		TxRef:  txref.Encode(txref.IntentSubscription, sub.ID.String()),
		Amount: decimal.RequireFromString("49.99"),
		Status: "successful",
	}

	_, err := f.svc.Reconcile(context.Background(), charge, PathWebhook)
	require.NoError(t, err)
	require.Len(t, f.orders.renewals, 1)
	assert.Equal(t, "914", f.orders.renewals[0].ProviderChargeID)
	assert.Same(t, txn, f.orders.renewals[0].Txn, "the claimed row rides along so the recorder does not re-resolve it")
	assert.Empty(t, f.orders.synced, "renewal path skips the plain status sync")
}

func TestReconcileExpiredAtProviderIsNotActivated(t *testing.T) {
	f := newFixture(t)
	order := &models.Order{ID: uuid.New(), Type: enums.OrderTypePurchase, Currency: "NGN"}
	f.orderRepo.byID[order.ID] = order

	sub := &models.Subscription{
		ID:              uuid.New(),
		OrderID:         order.ID,
		Status:          enums.SubscriptionStatusPending,
		BillingInterval: enums.BillingIntervalMonthly,
	}
	f.subs.byID[sub.ID] = sub
	f.txns.byOrder[order.ID] = &models.OrderTransaction{
		ID:      uuid.New(),
		OrderID: order.ID,
		Type:    enums.TransactionTypeCharge,
		Status:  enums.TransactionStatusPending,
	}

	f.discovery.result = &subscriptions.ProviderSubscription{
		SubscriptionID: "404",
		CustomerID:     "31",
		Status:         "expired",
	}

	charge := flutterwave.ChargeData{
		ID:       915,
		TxRef:    txref.Encode(txref.IntentSubscription, sub.ID.String()),
		Amount:   decimal.RequireFromString("49.99"),
		Currency: "NGN",
		Status:   "successful",
	}

	_, err := f.svc.Reconcile(context.Background(), charge, PathClient)
	require.NoError(t, err)

	assert.Equal(t, enums.SubscriptionStatusExpired, sub.Status)
	assert.Nil(t, sub.NextBillingDate, "an expired agreement never bills again")
	for _, event := range f.sink.events {
		assert.NotEqual(t, enums.EventSubscriptionActivated, event.EventType,
			"a provider-expired subscription is never announced as activated")
	}
}

func TestConfirmByIDReVerifies(t *testing.T) {
	f := newFixture(t)
	order, txn, charge := f.seedOneTime()
	f.verifier.byID[912] = &charge

	result, err := f.svc.ConfirmByID(context.Background(), 912, PathClient)
	require.NoError(t, err)
	assert.Equal(t, order.ID, result.OrderID)
	assert.Equal(t, enums.TransactionStatusSucceeded, txn.Status)
}
