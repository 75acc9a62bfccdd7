package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartship/flutterwave-gateway/pkg/enums"
	"github.com/cartship/flutterwave-gateway/pkg/types"
)

// OrderTransaction is one charge or refund attempt. The UUID doubles as the
// correlation key embedded in tx_ref. Status only moves forward; a row that
// reached succeeded is never re-processed by a duplicate confirmation.
type OrderTransaction struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID            uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	SubscriptionID     *uuid.UUID              `gorm:"column:subscription_id;type:uuid;index"`
	Type               enums.TransactionType   `gorm:"column:type;not null;default:'charge'"`
	Status             enums.TransactionStatus `gorm:"column:status;not null;default:'pending'"`
	TotalCents         int64                   `gorm:"column:total_cents;not null"`
	RefundedTotalCents int64                   `gorm:"column:refunded_total_cents;not null;default:0"`
	Currency           string                  `gorm:"column:currency;not null"`
	ProviderChargeID   string                  `gorm:"column:provider_charge_id;index"`
	ProviderRefundID   string                  `gorm:"column:provider_refund_id;index"`
	CardBrand          string                  `gorm:"column:card_brand"`
	CardLast4          string                  `gorm:"column:card_last4"`
	PaymentMethodType  string                  `gorm:"column:payment_method_type"`
	Meta               types.Meta              `gorm:"column:meta;type:jsonb"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
