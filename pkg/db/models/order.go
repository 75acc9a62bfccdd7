package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartship/flutterwave-gateway/pkg/enums"
	"github.com/cartship/flutterwave-gateway/pkg/types"
)

// Order mirrors the order aggregate owned by the wider order-management
// system. The gateway reads and syncs status; it never creates orders.
type Order struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Number        string            `gorm:"column:number;not null;unique"`
	Type          enums.OrderType   `gorm:"column:type;not null;default:'purchase'"`
	Status        enums.OrderStatus `gorm:"column:status;not null;default:'pending'"`
	Currency      string            `gorm:"column:currency;not null"`
	CustomerEmail string            `gorm:"column:customer_email;not null"`
	CustomerName  string            `gorm:"column:customer_name"`
	CustomerPhone string            `gorm:"column:customer_phone"`
	TotalCents    int64             `gorm:"column:total_cents;not null"`
	Mode          enums.PaymentMode `gorm:"column:mode;not null;default:'test'"`
	Hash          string            `gorm:"column:hash;index"`
	Meta          types.Meta        `gorm:"column:meta;type:jsonb"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
