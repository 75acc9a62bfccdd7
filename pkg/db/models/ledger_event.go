package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartship/flutterwave-gateway/pkg/enums"
	"github.com/cartship/flutterwave-gateway/pkg/types"
)

// LedgerEvent records an immutable money lifecycle event tied to an order.
type LedgerEvent struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	SubscriptionID *uuid.UUID            `gorm:"column:subscription_id;type:uuid;index"`
	TransactionID  *uuid.UUID            `gorm:"column:transaction_id;type:uuid;index"`
	Type           enums.LedgerEventType `gorm:"column:type;not null"`
	AmountCents    int64                 `gorm:"column:amount_cents;not null;default:0"`
	Description    string                `gorm:"column:description"`
	Meta           types.Meta            `gorm:"column:meta;type:jsonb"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
}
