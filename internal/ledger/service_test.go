package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartship/flutterwave-gateway/pkg/db/models"
	"github.com/cartship/flutterwave-gateway/pkg/enums"
)

type fakeRepository struct {
	createFn func(ctx context.Context, event *models.LedgerEvent) error
	listFn   func(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, event *models.LedgerEvent) error {
	if f.createFn != nil {
		return f.createFn(ctx, event)
	}
	return nil
}

func (f *fakeRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	if f.listFn != nil {
		return f.listFn(ctx, orderID)
	}
	return nil, nil
}

func TestService_RecordEvent(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	txnID := uuid.New()
	input := RecordEventInput{
		OrderID:       uuid.New(),
		TransactionID: &txnID,
		Type:          enums.LedgerEventChargeConfirmed,
		AmountCents:   4999,
		Description:   "charge confirmed via client confirmation",
	}

	var created *models.LedgerEvent
	repo.createFn = func(ctx context.Context, event *models.LedgerEvent) error {
		created = event
		return nil
	}

	got, err := svc.RecordEvent(context.Background(), input)
	if err != nil {
		t.Fatalf("RecordEvent error: %v", err)
	}
	if created == nil {
		t.Fatal("expected ledger event to be created")
	}
	if created.OrderID != input.OrderID || created.Type != input.Type || created.AmountCents != input.AmountCents {
		t.Fatalf("unexpected ledger event data: %+v", created)
	}
	if created.TransactionID == nil || *created.TransactionID != txnID {
		t.Fatalf("missing transaction reference: %+v", created)
	}
	if got != created {
		t.Fatal("service should return created event")
	}
}

func TestService_RecordEventValidation(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	if _, err := svc.RecordEvent(context.Background(), RecordEventInput{Type: enums.LedgerEventChargeConfirmed}); err == nil {
		t.Fatal("expected missing order id to be rejected")
	}
	if _, err := svc.RecordEvent(context.Background(), RecordEventInput{OrderID: uuid.New(), Type: "bogus"}); err == nil {
		t.Fatal("expected invalid event type to be rejected")
	}
}

func TestService_HasEvent(t *testing.T) {
	orderID := uuid.New()
	repo := &fakeRepository{
		listFn: func(ctx context.Context, id uuid.UUID) ([]models.LedgerEvent, error) {
			return []models.LedgerEvent{
				{OrderID: id, Type: enums.LedgerEventChargeConfirmed},
			}, nil
		},
	}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	found, err := svc.HasEvent(context.Background(), orderID, enums.LedgerEventChargeConfirmed)
	if err != nil {
		t.Fatalf("HasEvent error: %v", err)
	}
	if !found {
		t.Fatal("expected recorded event to be found")
	}

	found, err = svc.HasEvent(context.Background(), orderID, enums.LedgerEventRefundIssued)
	if err != nil {
		t.Fatalf("HasEvent error: %v", err)
	}
	if found {
		t.Fatal("expected unrecorded event type to be absent")
	}
}
