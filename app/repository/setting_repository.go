package repository

import (
	"github.com/ManuelReschke/SubFox/app/models"
)

// settingRepository implements the SettingRepository interface on top of the shared settings store
type settingRepository struct {
	store *models.SettingsStore
}

// NewSettingRepository creates a new setting repository instance
func NewSettingRepository(store *models.SettingsStore) SettingRepository {
	return &settingRepository{store: store}
}

// Get retrieves the current billing settings
func (r *settingRepository) Get() models.BillingSettings {
	return r.store.Get()
}

// Save validates and persists the billing settings
func (r *settingRepository) Save(settings models.BillingSettings) error {
	return r.store.Save(settings)
}

// GetValue retrieves a specific setting value by key
func (r *settingRepository) GetValue(key string) (string, error) {
	return r.store.GetValue(key)
}

// SetValue sets a specific setting value by key
func (r *settingRepository) SetValue(key, value string) error {
	return r.store.SetValue(key, value)
}
