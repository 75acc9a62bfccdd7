package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cartship/flutterwave-gateway/internal/ledger"
	"github.com/cartship/flutterwave-gateway/internal/orders"
	"github.com/cartship/flutterwave-gateway/internal/payments"
	"github.com/cartship/flutterwave-gateway/pkg/db/models"
	"github.com/cartship/flutterwave-gateway/pkg/enums"
	"github.com/cartship/flutterwave-gateway/pkg/flutterwave"
	"github.com/cartship/flutterwave-gateway/pkg/outbox"
	"github.com/cartship/flutterwave-gateway/pkg/pagination"
)

type stubRepo struct {
	subs    map[uuid.UUID]*models.Subscription
	updated []*models.Subscription
}

func newStubRepo() *stubRepo {
	return &stubRepo{subs: map[uuid.UUID]*models.Subscription{}}
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	s.subs[sub.ID] = sub
	return nil
}

func (s *stubRepo) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	s.subs[sub.ID] = sub
	s.updated = append(s.updated, sub)
	return nil
}

func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return s.subs[id], nil
}

func (s *stubRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Subscription, error) {
	for _, sub := range s.subs {
		if sub.OrderID == orderID {
			return sub, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) FindByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	for _, sub := range s.subs {
		if sub.ProviderSubscriptionID == providerSubscriptionID {
			return sub, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ClaimActivation(ctx context.Context, id uuid.UUID, to enums.SubscriptionStatus) (bool, error) {
	sub, ok := s.subs[id]
	if !ok || sub.Status != enums.SubscriptionStatusPending {
		return false, nil
	}
	sub.Status = to
	return true, nil
}

type stubTxns struct {
	byProvider map[string]*models.OrderTransaction
	byOrder    map[uuid.UUID]*models.OrderTransaction
	updated    []*models.OrderTransaction
}

func newStubTxns() *stubTxns {
	return &stubTxns{
		byProvider: map[string]*models.OrderTransaction{},
		byOrder:    map[uuid.UUID]*models.OrderTransaction{},
	}
}

func (s *stubTxns) WithTx(tx *gorm.DB) payments.Repository { return s }

func (s *stubTxns) CreateTransaction(ctx context.Context, txn *models.OrderTransaction) error {
	s.byProvider[txn.ProviderChargeID] = txn
	return nil
}

func (s *stubTxns) UpdateTransaction(ctx context.Context, txn *models.OrderTransaction) error {
	s.updated = append(s.updated, txn)
	if txn.ProviderChargeID != "" {
		s.byProvider[txn.ProviderChargeID] = txn
	}
	return nil
}

func (s *stubTxns) FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.OrderTransaction, error) {
	return nil, nil
}

func (s *stubTxns) FindChargeByProviderChargeID(ctx context.Context, providerChargeID string) (*models.OrderTransaction, error) {
	return s.byProvider[providerChargeID], nil
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
	return false, nil
}

type stubRenewals struct {
	inputs []orders.RecordRenewalInput
}

func (s *stubRenewals) RecordRenewal(ctx context.Context, input orders.RecordRenewalInput) (*models.OrderTransaction, bool, error) {
	s.inputs = append(s.inputs, input)
	return &models.OrderTransaction{ID: uuid.New(), ProviderChargeID: input.ProviderChargeID}, true, nil
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

type stubClient struct {
	pages       map[int][]flutterwave.ChargeData
	pageInfo    flutterwave.PageInfo
	listCalls   int
	subs        []flutterwave.SubscriptionData
	verify      *flutterwave.ChargeData
	canceledIDs []int64
}

func (s *stubClient) VerifyTransaction(ctx context.Context, transactionID int64) (*flutterwave.ChargeData, error) {
	return s.verify, nil
}

func (s *stubClient) ListTransactions(ctx context.Context, txRef string, page int) ([]flutterwave.ChargeData, flutterwave.PageInfo, error) {
	s.listCalls++
	info := s.pageInfo
	info.CurrentPage = page
	return s.pages[page], info, nil
}

func (s *stubClient) ListSubscriptions(ctx context.Context, email string, planID int64) ([]flutterwave.SubscriptionData, error) {
	return s.subs, nil
}

func (s *stubClient) CancelSubscription(ctx context.Context, subscriptionID int64) (*flutterwave.SubscriptionData, error) {
	s.canceledIDs = append(s.canceledIDs, subscriptionID)
	return &flutterwave.SubscriptionData{ID: subscriptionID, Status: "cancelled"}, nil
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
	repo     *stubRepo
	txns     *stubTxns
	renewals *stubRenewals
	ledger   *stubLedger
	client   *stubClient
	sink     *recordingOutbox
	svc      Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:     newStubRepo(),
		txns:     newStubTxns(),
		renewals: &stubRenewals{},
		ledger:   &stubLedger{},
		client:   &stubClient{pages: map[int][]flutterwave.ChargeData{}},
		sink:     &recordingOutbox{},
	}
	svc, err := NewService(ServiceParams{
		Repo:         f.repo,
		Transactions: f.txns,
		Renewals:     f.renewals,
		Ledger:       f.ledger,
		Client:       f.client,
		Tx:           nopTxRunner{},
		Outbox:       f.sink,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestDiscoverProviderSubscription(t *testing.T) {
	f := newFixture(t)
	f.client.verify = &flutterwave.ChargeData{
		ID:       912,
		Customer: flutterwave.ChargeCustomer{ID: 31, Email: "buyer@example.com"},
	}
	f.client.subs = []flutterwave.SubscriptionData{
		{ID: 404, Plan: 12, Customer: flutterwave.ChargeCustomer{ID: 31}, Status: "active", NextDue: "2026-04-01T00:00:00Z"},
	}
	sub := &models.Subscription{ID: uuid.New(), ProviderPlanID: "12"}

	discovered, err := f.svc.DiscoverProviderSubscription(context.Background(), sub, 912)
	require.NoError(t, err)
	assert.Equal(t, "404", discovered.SubscriptionID)
	assert.Equal(t, "31", discovered.CustomerID)
	assert.Equal(t, "active", discovered.Status)
	require.NotNil(t, discovered.NextDue)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), discovered.NextDue.UTC())
}

func TestDiscoverProviderSubscriptionPlanMismatch(t *testing.T) {
	f := newFixture(t)
	f.client.verify = &flutterwave.ChargeData{
		ID:       912,
		Customer: flutterwave.ChargeCustomer{Email: "buyer@example.com"},
	}
	f.client.subs = []flutterwave.SubscriptionData{{ID: 404, Plan: 99, Status: "active"}}

	_, err := f.svc.DiscoverProviderSubscription(context.Background(), &models.Subscription{ID: uuid.New(), ProviderPlanID: "12"}, 912)
	require.Error(t, err)
}

func TestResyncAdoptsUnknownCharges(t *testing.T) {
	f := newFixture(t)
	sub := &models.Subscription{ID: uuid.New(), OrderID: uuid.New(), Status: enums.SubscriptionStatusActive}
	f.repo.subs[sub.ID] = sub

	known := &models.OrderTransaction{ID: uuid.New(), ProviderChargeID: "100"}
	f.txns.byProvider["100"] = known
	f.client.pages[1] = []flutterwave.ChargeData{
		{ID: 100, Status: "successful", Amount: decimal.RequireFromString("49.99"), Currency: "NGN"},
		{ID: 101, Status: "successful", Amount: decimal.RequireFromString("49.99"), Currency: "NGN"},
		{ID: 102, Status: "failed", Amount: decimal.RequireFromString("49.99"), Currency: "NGN"},
	}
	f.client.pageInfo = flutterwave.PageInfo{Total: 3, TotalPages: 1}

	result, err := f.svc.ResyncFromRemote(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Examined)
	assert.Equal(t, 1, result.Adopted)
	assert.Equal(t, 0, result.Filled)
	require.Len(t, f.renewals.inputs, 1)
	assert.Equal(t, "101", f.renewals.inputs[0].ProviderChargeID)
	assert.Equal(t, int64(4999), f.renewals.inputs[0].AmountCents)
	require.Len(t, f.ledger.events, 1)
	assert.Equal(t, enums.LedgerEventSubscriptionResynced, f.ledger.events[0].Type)
}

func TestResyncFillsMissingProviderChargeID(t *testing.T) {
	f := newFixture(t)
	sub := &models.Subscription{ID: uuid.New(), OrderID: uuid.New(), Status: enums.SubscriptionStatusActive}
	f.repo.subs[sub.ID] = sub

	orphan := &models.OrderTransaction{
		ID:         uuid.New(),
		OrderID:    sub.OrderID,
		Type:       enums.TransactionTypeCharge,
		TotalCents: 4999,
	}
	f.txns.byOrder[sub.OrderID] = orphan
	f.client.pages[1] = []flutterwave.ChargeData{
		{ID: 200, Status: "successful", Amount: decimal.RequireFromString("49.99"), Currency: "NGN"},
	}
	f.client.pageInfo = flutterwave.PageInfo{Total: 1, TotalPages: 1}

	result, err := f.svc.ResyncFromRemote(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Filled)
	assert.Equal(t, 0, result.Adopted)
	assert.Equal(t, "200", orphan.ProviderChargeID)
	assert.Empty(t, f.renewals.inputs)
}

func TestResyncStopsAtProviderTotal(t *testing.T) {
	f := newFixture(t)
	sub := &models.Subscription{ID: uuid.New(), OrderID: uuid.New(), Status: enums.SubscriptionStatusActive}
	f.repo.subs[sub.ID] = sub

	// The provider keeps returning the same page; the reported total must
	// terminate the walk.
	repeated := []flutterwave.ChargeData{{ID: 300, Status: "failed"}}
	f.client.pages[1] = repeated
	f.client.pages[2] = repeated
	f.client.pages[3] = repeated
	f.client.pageInfo = flutterwave.PageInfo{Total: 2, TotalPages: 0}

	_, err := f.svc.ResyncFromRemote(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, f.client.listCalls, 2)
}

func TestCancelFullFlow(t *testing.T) {
	f := newFixture(t)
	sub := &models.Subscription{
		ID:                     uuid.New(),
		OrderID:                uuid.New(),
		Status:                 enums.SubscriptionStatusActive,
		ProviderSubscriptionID: "404",
	}
	f.repo.subs[sub.ID] = sub

	got, err := f.svc.Cancel(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusCanceled, got.Status)
	require.NotNil(t, got.CanceledAt)
	assert.Equal(t, []int64{404}, f.client.canceledIDs)
	require.Len(t, f.sink.events, 1)
	assert.Equal(t, enums.EventSubscriptionCanceled, f.sink.events[0].EventType)
	require.Len(t, f.ledger.events, 1)
	assert.Equal(t, enums.LedgerEventSubscriptionCanceled, f.ledger.events[0].Type)
}

func TestCancelCompletedIsNoOp(t *testing.T) {
	f := newFixture(t)
	sub := &models.Subscription{
		ID:                     uuid.New(),
		OrderID:                uuid.New(),
		Status:                 enums.SubscriptionStatusCompleted,
		ProviderSubscriptionID: "404",
	}
	f.repo.subs[sub.ID] = sub

	got, err := f.svc.Cancel(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusCompleted, got.Status)
	assert.Empty(t, f.client.canceledIDs, "completed subscriptions never reach the provider")
	assert.Empty(t, f.sink.events)
}

func TestMarkCanceledIdempotent(t *testing.T) {
	f := newFixture(t)
	at := time.Now().UTC()
	sub := &models.Subscription{
		ID:         uuid.New(),
		OrderID:    uuid.New(),
		Status:     enums.SubscriptionStatusCanceled,
		CanceledAt: &at,
	}

	require.NoError(t, f.svc.MarkCanceled(context.Background(), sub, time.Now().UTC()))
	assert.Empty(t, f.sink.events, "already-canceled must not emit again")
}
