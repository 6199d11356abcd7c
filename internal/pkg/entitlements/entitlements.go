package entitlements

import (
	"strings"
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
)

// Decision is the outcome of a feature check.
type Decision struct {
	Feature string `json:"feature"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Reasons reported with a Decision in addition to the billing access reasons.
const (
	ReasonFeatureDisabled = "feature_not_in_plan"
	ReasonNoPlan          = "no_plan"
)

// Enabled returns the names of the features plan switches on, lowercased.
func Enabled(plan *models.MembershipPlan) map[string]bool {
	out := map[string]bool{}
	if plan == nil {
		return out
	}
	for _, f := range plan.Features {
		if f.Enabled {
			out[strings.ToLower(strings.TrimSpace(f.Name))] = true
		}
	}
	return out
}

// Check combines the account's access decision with the plan's feature list.
// Free access and disabled billing unlock every feature; otherwise the account
// needs access and a plan that enables the feature.
func Check(account *models.BillingAccount, plan *models.MembershipPlan, feature string, now time.Time) Decision {
	d := Decision{Feature: feature}
	access := billing.EvaluateAccess(account, now)
	if !access.Allowed {
		d.Reason = access.Reason
		return d
	}
	switch access.Reason {
	case billing.AccessReasonFreeAccess, billing.AccessReasonBillingDisabled:
		d.Allowed, d.Reason = true, access.Reason
		return d
	}
	if plan == nil {
		d.Reason = ReasonNoPlan
		return d
	}
	if !Enabled(plan)[strings.ToLower(strings.TrimSpace(feature))] {
		d.Reason = ReasonFeatureDisabled
		return d
	}
	d.Allowed, d.Reason = true, access.Reason
	return d
}
