package models

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting represents a persisted key/value setting
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // string, boolean, integer
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BillingSettings holds the runtime-tunable billing policy.
type BillingSettings struct {
	DefaultTrialDays         int  `json:"default_trial_days" validate:"min=0,max=365"`
	DefaultGracePeriodDays   int  `json:"default_grace_period_days" validate:"min=0,max=90"`
	SubscriptionSweepMinutes int  `json:"subscription_sweep_minutes" validate:"min=1,max=10080"`
	GracePeriodSweepMinutes  int  `json:"grace_period_sweep_minutes" validate:"min=1,max=10080"`
	FreeAccessSweepMinutes   int  `json:"free_access_sweep_minutes" validate:"min=1,max=10080"`
	SweepBatchSize           int  `json:"sweep_batch_size" validate:"min=1,max=5000"`
	NotificationsEnabled     bool `json:"notifications_enabled"`
	UsageArchiveEnabled      bool `json:"usage_archive_enabled"`
	UsageArchiveAfterDays    int  `json:"usage_archive_after_days" validate:"min=1,max=3650"`
	UsageArchiveSweepMinutes int  `json:"usage_archive_sweep_minutes" validate:"min=1,max=10080"`
}

// DefaultBillingSettings returns the policy used until settings are saved.
func DefaultBillingSettings() BillingSettings {
	return BillingSettings{
		DefaultTrialDays:         14,
		DefaultGracePeriodDays:   7,
		SubscriptionSweepMinutes: 60,
		GracePeriodSweepMinutes:  60,
		FreeAccessSweepMinutes:   1440,
		SweepBatchSize:           200,
		NotificationsEnabled:     true,
		UsageArchiveEnabled:      false,
		UsageArchiveAfterDays:    90,
		UsageArchiveSweepMinutes: 1440,
	}
}

// Validate validates the settings
func (s BillingSettings) Validate() error {
	return validator.New().Struct(s)
}

type settingField struct {
	key string
	typ string
	get func(*BillingSettings) string
	set func(*BillingSettings, string) error
}

func intField(key string, ptr func(*BillingSettings) *int) settingField {
	return settingField{
		key: key,
		typ: "integer",
		get: func(s *BillingSettings) string { return strconv.Itoa(*ptr(s)) },
		set: func(s *BillingSettings, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("setting %s: %w", key, err)
			}
			*ptr(s) = n
			return nil
		},
	}
}

func boolField(key string, ptr func(*BillingSettings) *bool) settingField {
	return settingField{
		key: key,
		typ: "boolean",
		get: func(s *BillingSettings) string { return strconv.FormatBool(*ptr(s)) },
		set: func(s *BillingSettings, v string) error {
			*ptr(s) = v == "true"
			return nil
		},
	}
}

var billingSettingFields = []settingField{
	intField("billing_default_trial_days", func(s *BillingSettings) *int { return &s.DefaultTrialDays }),
	intField("billing_default_grace_period_days", func(s *BillingSettings) *int { return &s.DefaultGracePeriodDays }),
	intField("billing_subscription_sweep_minutes", func(s *BillingSettings) *int { return &s.SubscriptionSweepMinutes }),
	intField("billing_grace_period_sweep_minutes", func(s *BillingSettings) *int { return &s.GracePeriodSweepMinutes }),
	intField("billing_free_access_sweep_minutes", func(s *BillingSettings) *int { return &s.FreeAccessSweepMinutes }),
	intField("billing_sweep_batch_size", func(s *BillingSettings) *int { return &s.SweepBatchSize }),
	boolField("billing_notifications_enabled", func(s *BillingSettings) *bool { return &s.NotificationsEnabled }),
	boolField("billing_usage_archive_enabled", func(s *BillingSettings) *bool { return &s.UsageArchiveEnabled }),
	intField("billing_usage_archive_after_days", func(s *BillingSettings) *int { return &s.UsageArchiveAfterDays }),
	intField("billing_usage_archive_sweep_minutes", func(s *BillingSettings) *int { return &s.UsageArchiveSweepMinutes }),
}

// SettingsStore owns the loaded BillingSettings. Save is the only write path.
type SettingsStore struct {
	db      *gorm.DB
	mu      sync.RWMutex
	current BillingSettings
}

// NewSettingsStore returns a store primed with defaults. Call Load to read persisted values.
func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db, current: DefaultBillingSettings()}
}

// Get returns a snapshot of the current settings.
func (s *SettingsStore) Get() BillingSettings {
	if s == nil {
		return DefaultBillingSettings()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Load reads persisted settings on top of the defaults.
func (s *SettingsStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := DefaultBillingSettings()
	var rows []Setting
	if err := s.db.Find(&rows).Error; err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	byKey := make(map[string]string, len(rows))
	for _, row := range rows {
		byKey[row.Key] = row.Value
	}
	for _, f := range billingSettingFields {
		if v, ok := byKey[f.key]; ok {
			if err := f.set(&loaded, v); err != nil {
				return err
			}
		}
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("persisted settings invalid: %w", err)
	}
	s.current = loaded
	return nil
}

// Save validates and persists next, then makes it current.
func (s *SettingsStore) Save(next BillingSettings) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, f := range billingSettingFields {
			if err := upsertSetting(tx, f.key, f.get(&next), f.typ); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.current = next
	return nil
}

// GetValue returns a raw setting value, or "" when it was never set.
func (s *SettingsStore) GetValue(key string) (string, error) {
	var row Setting
	err := s.db.Where("setting_key = ?", key).Limit(1).Find(&row).Error
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

// SetValue stores a raw string setting outside of BillingSettings.
func (s *SettingsStore) SetValue(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertSetting(s.db, key, value, "string")
}

func upsertSetting(db *gorm.DB, key, value, typ string) error {
	row := Setting{Key: key, Value: value, Type: typ}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "type", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}
