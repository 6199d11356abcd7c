package repository

import (
	"sync"

	"github.com/ManuelReschke/SubFox/app/models"
	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db       *gorm.DB
	settings *models.SettingsStore
	repos    *Repositories
	once     sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB, settings *models.SettingsStore) *Factory {
	return &Factory{
		db:       db,
		settings: settings,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db, f.settings)
	})
	return f.repos
}

// GetBillingAccountRepository returns the billing account repository instance
func (f *Factory) GetBillingAccountRepository() BillingAccountRepository {
	return f.GetRepositories().BillingAccount
}

// GetMembershipPlanRepository returns the membership plan repository instance
func (f *Factory) GetMembershipPlanRepository() MembershipPlanRepository {
	return f.GetRepositories().MembershipPlan
}

// GetUsageRecordRepository returns the usage record repository instance
func (f *Factory) GetUsageRecordRepository() UsageRecordRepository {
	return f.GetRepositories().UsageRecord
}

// GetAuditRepository returns the audit repository instance
func (f *Factory) GetAuditRepository() AuditRepository {
	return f.GetRepositories().Audit
}

// GetAPIKeyRepository returns the API key repository instance
func (f *Factory) GetAPIKeyRepository() APIKeyRepository {
	return f.GetRepositories().APIKey
}

// GetSettingRepository returns the setting repository instance
func (f *Factory) GetSettingRepository() SettingRepository {
	return f.GetRepositories().Setting
}

// GetLockRepository returns the sweep lock repository instance
func (f *Factory) GetLockRepository() LockRepository {
	return f.GetRepositories().Lock
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB, settings *models.SettingsStore) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db, settings)
	})
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}

// GetGlobalRepositories returns the global repositories instance
func GetGlobalRepositories() *Repositories {
	return GetGlobalFactory().GetRepositories()
}
