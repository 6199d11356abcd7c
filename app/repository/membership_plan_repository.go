package repository

import (
	"github.com/ManuelReschke/SubFox/app/models"
	"gorm.io/gorm"
)

// membershipPlanRepository implements the MembershipPlanRepository interface
type membershipPlanRepository struct {
	db *gorm.DB
}

// NewMembershipPlanRepository creates a new membership plan repository instance
func NewMembershipPlanRepository(db *gorm.DB) MembershipPlanRepository {
	return &membershipPlanRepository{db: db}
}

// GetByID retrieves a plan by its ID
func (r *membershipPlanRepository) GetByID(id uint) (*models.MembershipPlan, error) {
	var plan models.MembershipPlan
	if err := r.db.First(&plan, id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetActive retrieves the plans that can be subscribed to, in catalog order
func (r *membershipPlanRepository) GetActive() ([]models.MembershipPlan, error) {
	var plans []models.MembershipPlan
	err := r.db.Where("active = ?", true).Order("display_order ASC, id ASC").Find(&plans).Error
	return plans, err
}

// GetAll retrieves every plan including deactivated ones
func (r *membershipPlanRepository) GetAll() ([]models.MembershipPlan, error) {
	var plans []models.MembershipPlan
	err := r.db.Order("display_order ASC, id ASC").Find(&plans).Error
	return plans, err
}
