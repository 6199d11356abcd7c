package repository

import (
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
	"gorm.io/gorm"
)

// AccountFilter narrows billing account listings.
type AccountFilter struct {
	Status            string
	FreeAccessGranted *bool
}

// UsageFilter narrows usage ledger queries. Zero values match everything.
type UsageFilter struct {
	BillingAccountID uint
	Metric           string
	From             time.Time
	To               time.Time
}

// BillingAccountRepository defines read access to billing accounts for listings.
// State changes go through billing.Service.
type BillingAccountRepository interface {
	GetByID(id uint) (*models.BillingAccount, error)
	GetByUserID(userID uint) (*models.BillingAccount, error)
	List(filter AccountFilter, offset, limit int) ([]models.BillingAccount, error)
	Count(filter AccountFilter) (int64, error)
	CountByStatus() (map[string]int64, error)
}

// MembershipPlanRepository defines the interface for plan catalog queries
type MembershipPlanRepository interface {
	GetByID(id uint) (*models.MembershipPlan, error)
	GetActive() ([]models.MembershipPlan, error)
	GetAll() ([]models.MembershipPlan, error)
}

// UsageRecordRepository defines the interface for usage ledger queries
type UsageRecordRepository interface {
	List(filter UsageFilter, offset, limit int) ([]models.UsageRecord, error)
	Count(filter UsageFilter) (int64, error)
	Summarize(filter UsageFilter) ([]models.UsageSummary, error)
	ListOlderThan(cutoff time.Time, afterID uint, limit int) ([]models.UsageRecord, error)
}

// AuditRepository defines the interface for the admin audit trail
type AuditRepository interface {
	ListByAccount(accountID uint, offset, limit int) ([]models.AuditEntry, error)
	CountByAccount(accountID uint) (int64, error)
}

// APIKeyRepository defines the interface for API key operations
type APIKeyRepository interface {
	Create(key *models.APIKey) error
	GetByHash(hash string) (*models.APIKey, error)
	ListByUserID(userID uint) ([]models.APIKey, error)
	TouchLastUsed(id uint, at time.Time) error
	Revoke(id uint, at time.Time) error
}

// SettingRepository defines the interface for application settings
type SettingRepository interface {
	Get() models.BillingSettings
	Save(settings models.BillingSettings) error
	GetValue(key string) (string, error)
	SetValue(key, value string) error
}

// LockRepository inspects the sweep locks held in the cache.
type LockRepository interface {
	List() ([]LockInfo, error)
	ForceRelease(name string) (int64, error)
}

// LockInfo describes one held sweep lock.
type LockInfo struct {
	Key   string        `json:"key"`
	Name  string        `json:"name"`
	Token string        `json:"token"`
	TTL   time.Duration `json:"ttl"`
}

// Repositories struct holds all repository instances
type Repositories struct {
	BillingAccount BillingAccountRepository
	MembershipPlan MembershipPlanRepository
	UsageRecord    UsageRecordRepository
	Audit          AuditRepository
	APIKey         APIKeyRepository
	Setting        SettingRepository
	Lock           LockRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB, settings *models.SettingsStore) *Repositories {
	return &Repositories{
		BillingAccount: NewBillingAccountRepository(db),
		MembershipPlan: NewMembershipPlanRepository(db),
		UsageRecord:    NewUsageRecordRepository(db),
		Audit:          NewAuditRepository(db),
		APIKey:         NewAPIKeyRepository(db),
		Setting:        NewSettingRepository(settings),
		Lock:           NewLockRepository(),
	}
}
