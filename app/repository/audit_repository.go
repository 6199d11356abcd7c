package repository

import (
	"github.com/ManuelReschke/SubFox/app/models"
	"gorm.io/gorm"
)

// auditRepository implements the AuditRepository interface
type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository instance
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

// ListByAccount retrieves the audit trail of an account, newest first
func (r *auditRepository) ListByAccount(accountID uint, offset, limit int) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := r.db.Where("billing_account_id = ?", accountID).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// CountByAccount returns the number of audit entries of an account
func (r *auditRepository) CountByAccount(accountID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.AuditEntry{}).Where("billing_account_id = ?", accountID).Count(&count).Error
	return count, err
}
