package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Plan types.
const (
	PlanTypeTimeBased  = "time_based"
	PlanTypeUsageBased = "usage_based"
	PlanTypeHybrid     = "hybrid"
	PlanTypeFree       = "free"
)

// Billing intervals.
const (
	BillingIntervalDaily      = "daily"
	BillingIntervalWeekly     = "weekly"
	BillingIntervalMonthly    = "monthly"
	BillingIntervalQuarterly  = "quarterly"
	BillingIntervalSemiAnnual = "semi_annual"
	BillingIntervalYearly     = "yearly"
)

const (
	DefaultPlanCurrency        = "USD"
	DefaultPlanGracePeriodDays = 7
)

// ErrPlanDefinition is returned by MembershipPlan.Validate for plans whose fields do not fit their type.
var ErrPlanDefinition = errors.New("invalid plan definition")

// UsageLimit caps one metered metric of a plan.
type UsageLimit struct {
	Metric      string           `json:"metric" validate:"required,max=100"`
	Limit       float64          `json:"limit" validate:"gte=0"`
	Unit        string           `json:"unit" validate:"required,max=30"`
	OverageRate *decimal.Decimal `json:"overage_rate,omitempty"`
	HardLimit   bool             `json:"hard_limit"`
}

// PlanFeature is a marketing feature line of a plan.
type PlanFeature struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty" validate:"max=500"`
	Enabled     bool   `json:"enabled"`
}

// MembershipPlan is an admin-managed catalog entry. Plans are deactivated, never deleted.
type MembershipPlan struct {
	ID              uint                             `gorm:"primaryKey" json:"id"`
	Name            string                           `gorm:"type:varchar(100);not null;uniqueIndex" json:"name" validate:"required,max=100"`
	Description     string                           `gorm:"type:text" json:"description" validate:"max=500"`
	PlanType        string                           `gorm:"type:varchar(20);not null" json:"plan_type" validate:"required,oneof=time_based usage_based hybrid free"`
	BillingInterval string                           `gorm:"type:varchar(20);default:''" json:"billing_interval,omitempty" validate:"omitempty,oneof=daily weekly monthly quarterly semi_annual yearly"`
	IntervalCount   int                              `gorm:"not null" json:"interval_count" validate:"min=1,max=36"`
	UsageLimits     datatypes.JSONSlice[UsageLimit]  `json:"usage_limits" validate:"dive"`
	Features        datatypes.JSONSlice[PlanFeature] `json:"features" validate:"dive"`
	Price           decimal.Decimal                  `gorm:"type:decimal(12,2);not null" json:"price"`
	Currency        string                           `gorm:"type:varchar(3);not null" json:"currency" validate:"required,len=3"`
	TrialEnabled    bool                             `gorm:"not null" json:"trial_enabled"`
	TrialDays       int                              `gorm:"not null" json:"trial_days" validate:"min=0,max=365"`
	AutoRenew       bool                             `gorm:"not null" json:"auto_renew"`
	GracePeriodDays int                              `gorm:"not null" json:"grace_period_days" validate:"min=0,max=90"`
	Active          bool                             `gorm:"not null;index" json:"active"`
	DisplayOrder    int                              `gorm:"not null" json:"display_order"`
	CreatedBy       *uint                            `json:"created_by,omitempty"`
	UpdatedBy       *uint                            `json:"updated_by,omitempty"`
	CreatedAt       time.Time                        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time                        `gorm:"autoUpdateTime" json:"updated_at"`
}

// ApplyDefaults fills fields whose zero value is not meaningful.
func (p *MembershipPlan) ApplyDefaults() {
	if p.IntervalCount < 1 {
		p.IntervalCount = 1
	}
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		p.Currency = DefaultPlanCurrency
	}
	p.Name = strings.TrimSpace(p.Name)
}

// RequiresInterval reports whether the plan bills on a calendar interval.
func (p *MembershipPlan) RequiresInterval() bool {
	return p.PlanType == PlanTypeTimeBased || p.PlanType == PlanTypeHybrid
}

// RequiresUsageLimits reports whether the plan must define at least one usage limit.
func (p *MembershipPlan) RequiresUsageLimits() bool {
	return p.PlanType == PlanTypeUsageBased || p.PlanType == PlanTypeHybrid
}

// Validate checks field constraints and the per-type requirements.
func (p *MembershipPlan) Validate() error {
	if err := validator.New().Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrPlanDefinition, err)
	}
	if p.RequiresInterval() && p.BillingInterval == "" {
		return fmt.Errorf("%w: billing interval is required for %s plans", ErrPlanDefinition, p.PlanType)
	}
	if p.RequiresUsageLimits() && len(p.UsageLimits) == 0 {
		return fmt.Errorf("%w: usage limits are required for %s plans", ErrPlanDefinition, p.PlanType)
	}
	if p.TrialEnabled && p.TrialDays <= 0 {
		return fmt.Errorf("%w: trial days must be positive when the trial is enabled", ErrPlanDefinition)
	}
	seen := make(map[string]struct{}, len(p.UsageLimits))
	for _, l := range p.UsageLimits {
		if _, dup := seen[l.Metric]; dup {
			return fmt.Errorf("%w: duplicate usage limit for metric %q", ErrPlanDefinition, l.Metric)
		}
		seen[l.Metric] = struct{}{}
		if l.OverageRate != nil && l.OverageRate.IsNegative() {
			return fmt.Errorf("%w: overage rate for metric %q must not be negative", ErrPlanDefinition, l.Metric)
		}
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrPlanDefinition)
	}
	return nil
}

// UsageLimitFor returns the limit defined for metric, if any.
func (p *MembershipPlan) UsageLimitFor(metric string) (UsageLimit, bool) {
	for _, l := range p.UsageLimits {
		if l.Metric == metric {
			return l, true
		}
	}
	return UsageLimit{}, false
}

// IsPaid reports whether renewals of this plan are charged.
func (p *MembershipPlan) IsPaid() bool {
	return p.PlanType != PlanTypeFree && p.Price.IsPositive()
}
