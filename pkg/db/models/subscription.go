package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cartship/flutterwave-gateway/pkg/enums"
	"github.com/cartship/flutterwave-gateway/pkg/types"
)

// Subscription persists Flutterwave recurring billing state per order.
type Subscription struct {
	ID                     uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID                uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index"`
	Status                 enums.SubscriptionStatus `gorm:"column:status;not null;default:'pending'"`
	ProviderPlanID         string                   `gorm:"column:provider_plan_id;index"`
	ProviderSubscriptionID string                   `gorm:"column:provider_subscription_id;index"`
	ProviderCustomerID     string                   `gorm:"column:provider_customer_id"`
	ItemName               string                   `gorm:"column:item_name"`
	BillingInterval        enums.BillingInterval    `gorm:"column:billing_interval;not null;default:'monthly'"`
	BillTimes              int                      `gorm:"column:bill_times;not null;default:0"`
	BillCount              int                      `gorm:"column:bill_count;not null;default:0"`
	RecurringTotalCents    int64                    `gorm:"column:recurring_total_cents;not null"`
	TrialDays              int                      `gorm:"column:trial_days;not null;default:0"`
	SimulatedTrial         bool                     `gorm:"column:simulated_trial;not null;default:false"`
	NextBillingDate        *time.Time               `gorm:"column:next_billing_date"`
	CanceledAt             *time.Time               `gorm:"column:canceled_at"`
	Meta                   types.Meta               `gorm:"column:meta;type:jsonb"`
	CreatedAt              time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
