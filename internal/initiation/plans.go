package initiation

import (
	"context"

	"gorm.io/gorm"

	"github.com/cartship/flutterwave-gateway/pkg/db/models"
)

// PlanRepository caches provider payment plans by deterministic key.
type PlanRepository interface {
	WithTx(tx *gorm.DB) PlanRepository
	FindMapping(ctx context.Context, key string) (*models.PlanMapping, error)
	CreateMapping(ctx context.Context, mapping *models.PlanMapping) error
}

type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository returns a plan mapping repository bound to the database.
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

func (r *planRepository) WithTx(tx *gorm.DB) PlanRepository {
	if tx == nil {
		return r
	}
	return &planRepository{db: tx}
}

func (r *planRepository) FindMapping(ctx context.Context, key string) (*models.PlanMapping, error) {
	var mapping models.PlanMapping
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&mapping).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &mapping, nil
}

func (r *planRepository) CreateMapping(ctx context.Context, mapping *models.PlanMapping) error {
	return r.db.WithContext(ctx).Create(mapping).Error
}
