package repository

import (
	"strings"
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
	"gorm.io/gorm"
)

// apiKeyRepository implements the APIKeyRepository interface
type apiKeyRepository struct {
	db *gorm.DB
}

// NewAPIKeyRepository creates a new API key repository instance
func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository {
	return &apiKeyRepository{db: db}
}

// Create stores a new API key
func (r *apiKeyRepository) Create(key *models.APIKey) error {
	return r.db.Create(key).Error
}

// GetByHash resolves an unrevoked API key by its hash.
func (r *apiKeyRepository) GetByHash(hash string) (*models.APIKey, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var key models.APIKey
	err := r.db.Where("key_hash = ? AND revoked_at IS NULL", trimmed).First(&key).Error
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// ListByUserID retrieves all keys of a user, newest first
func (r *apiKeyRepository) ListByUserID(userID uint) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := r.db.Where("user_id = ?", userID).Order("id DESC").Find(&keys).Error
	return keys, err
}

// TouchLastUsed records the time a key was last used
func (r *apiKeyRepository) TouchLastUsed(id uint, at time.Time) error {
	return r.db.Model(&models.APIKey{}).Where("id = ?", id).Update("last_used_at", at).Error
}

// Revoke marks a key as revoked. Revoking twice keeps the first timestamp.
func (r *apiKeyRepository) Revoke(id uint, at time.Time) error {
	res := r.db.Model(&models.APIKey{}).Where("id = ? AND revoked_at IS NULL", id).Update("revoked_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.Model(&models.APIKey{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
	}
	return nil
}
