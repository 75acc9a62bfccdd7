package models

import (
	"time"

	"github.com/lib/pq"
)

// PlanMapping caches deterministic composite keys against provider plan ids
// so resubmitting the same subscription shape reuses the existing plan.
type PlanMapping struct {
	Key            string         `gorm:"column:key;primaryKey"`
	ProviderPlanID string         `gorm:"column:provider_plan_id;not null"`
	Currencies     pq.StringArray `gorm:"column:currencies;type:text[]"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
