package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Subscription status values of a billing account.
const (
	SubscriptionStatusTrial       = "trial"
	SubscriptionStatusActive      = "active"
	SubscriptionStatusGracePeriod = "grace_period"
	SubscriptionStatusSuspended   = "suspended"
	SubscriptionStatusCancelled   = "cancelled"
	SubscriptionStatusInactive    = "inactive"
)

// SubscriptionStatuses lists every valid subscription status.
var SubscriptionStatuses = []string{
	SubscriptionStatusTrial,
	SubscriptionStatusActive,
	SubscriptionStatusGracePeriod,
	SubscriptionStatusSuspended,
	SubscriptionStatusCancelled,
	SubscriptionStatusInactive,
}

// IsValidSubscriptionStatus reports whether s is a known subscription status.
func IsValidSubscriptionStatus(s string) bool {
	for _, v := range SubscriptionStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// BillingAccount is the durable subscription state of one user.
type BillingAccount struct {
	ID                 uint   `gorm:"primaryKey" json:"id"`
	UserID             uint   `gorm:"not null;uniqueIndex" json:"user_id"`
	ContactEmail       string `gorm:"type:varchar(200);default:''" json:"contact_email"`
	SubscriptionStatus string `gorm:"type:varchar(20);not null;index:idx_billing_accounts_status_end,priority:1" json:"subscription_status"`
	MembershipPlanID   *uint  `gorm:"index" json:"membership_plan_id"`

	SubscriptionStartDate *time.Time `gorm:"type:timestamp;default:null" json:"subscription_start_date"`
	SubscriptionEndDate   *time.Time `gorm:"type:timestamp;default:null;index:idx_billing_accounts_status_end,priority:2" json:"subscription_end_date"`
	NextBillingDate       *time.Time `gorm:"type:timestamp;default:null" json:"next_billing_date"`
	TrialEndDate          *time.Time `gorm:"type:timestamp;default:null" json:"trial_end_date"`
	GracePeriodEndDate    *time.Time `gorm:"type:timestamp;default:null;index" json:"grace_period_end_date"`
	SuspendedAt           *time.Time `gorm:"type:timestamp;default:null" json:"suspended_at"`
	SuspensionReason      string     `gorm:"type:varchar(500);default:''" json:"suspension_reason"`
	CancelledAt           *time.Time `gorm:"type:timestamp;default:null" json:"cancelled_at"`

	// Admin overrides. BillingEnabled has no gorm default so that false survives inserts.
	BillingEnabled      bool       `gorm:"not null" json:"billing_enabled"`
	FreeAccessGranted   bool       `gorm:"not null;index" json:"free_access_granted"`
	FreeAccessReason    string     `gorm:"type:varchar(500);default:''" json:"free_access_reason"`
	FreeAccessGrantedBy *uint      `json:"free_access_granted_by"`
	FreeAccessGrantedAt *time.Time `gorm:"type:timestamp;default:null" json:"free_access_granted_at"`
	FreeAccessExpiresAt *time.Time `gorm:"type:timestamp;default:null" json:"free_access_expires_at"`

	CurrentPeriodUsage  UsageMap                           `gorm:"type:text" json:"current_period_usage"`
	Balance             decimal.Decimal                    `gorm:"type:decimal(14,4);not null" json:"balance"`
	ProcessorCustomerID string                             `gorm:"type:varchar(191);default:''" json:"processor_customer_id"`
	PaymentMethods      datatypes.JSONSlice[PaymentMethod] `json:"payment_methods"`

	// Version is bumped on every lifecycle save and checked before writing.
	Version   uint      `gorm:"not null" json:"version"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewBillingAccount returns an inactive account with billing enabled.
func NewBillingAccount(userID uint) *BillingAccount {
	return &BillingAccount{
		UserID:             userID,
		SubscriptionStatus: SubscriptionStatusInactive,
		BillingEnabled:     true,
		CurrentPeriodUsage: UsageMap{},
		Balance:            decimal.Zero,
		Version:            1,
	}
}

// HasPlan reports whether a membership plan is assigned.
func (a *BillingAccount) HasPlan() bool {
	return a.MembershipPlanID != nil && *a.MembershipPlanID != 0
}

// ClearSuspension removes suspension markers.
func (a *BillingAccount) ClearSuspension() {
	a.SuspendedAt = nil
	a.SuspensionReason = ""
}

// ClearFreeAccess removes every free access field.
func (a *BillingAccount) ClearFreeAccess() {
	a.FreeAccessGranted = false
	a.FreeAccessReason = ""
	a.FreeAccessGrantedBy = nil
	a.FreeAccessGrantedAt = nil
	a.FreeAccessExpiresAt = nil
}

// Suspend moves the account to suspended with the given reason.
func (a *BillingAccount) Suspend(now time.Time, reason string) {
	t := now
	a.SubscriptionStatus = SubscriptionStatusSuspended
	a.SuspendedAt = &t
	a.SuspensionReason = reason
}

// PaymentMethod is a reference to a payment instrument held by the payment processor.
type PaymentMethod struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Last4     string `json:"last4,omitempty"`
	IsDefault bool   `json:"is_default"`
}

// UsageMap maps a metric name to the amount consumed in the current billing period.
type UsageMap map[string]float64

// Get returns the accumulated amount for metric.
func (m UsageMap) Get(metric string) float64 {
	if m == nil {
		return 0
	}
	return m[metric]
}

// Clone returns an independent copy of m.
func (m UsageMap) Clone() UsageMap {
	out := make(UsageMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Value implements driver.Valuer. Keys are written in sorted order.
func (m UsageMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]float64(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *UsageMap) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = UsageMap{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("usage map: unsupported type %T", value)
	}
	if len(raw) == 0 {
		*m = UsageMap{}
		return nil
	}
	out := UsageMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return errors.Join(errors.New("usage map: invalid json"), err)
	}
	*m = out
	return nil
}
