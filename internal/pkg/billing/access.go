package billing

import (
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
)

// Reasons reported with an AccessDecision.
const (
	AccessReasonFreeAccess      = "free_access"
	AccessReasonBillingDisabled = "billing_disabled"
	AccessReasonSubscription    = "subscription"
	AccessReasonCancelledPeriod = "cancelled_period_remaining"
	AccessReasonNoSubscription  = "no_active_subscription"
	AccessReasonNoAccount       = "no_billing_account"
)

// AccessDecision explains whether an account may use paid features.
type AccessDecision struct {
	Allowed            bool       `json:"allowed"`
	Reason             string     `json:"reason"`
	Status             string     `json:"status,omitempty"`
	SuspensionReason   string     `json:"suspension_reason,omitempty"`
	GracePeriodEndDate *time.Time `json:"grace_period_end_date,omitempty"`
}

// HasActiveSubscription reports whether account grants access at now.
func HasActiveSubscription(account *models.BillingAccount, now time.Time) bool {
	return EvaluateAccess(account, now).Allowed
}

// EvaluateAccess applies the access rules in priority order: an unexpired
// free access grant, then disabled billing, then the subscription status.
// An expired grant falls through to the remaining rules. Cancelled accounts
// keep access until their period ends.
func EvaluateAccess(account *models.BillingAccount, now time.Time) AccessDecision {
	if account == nil {
		return AccessDecision{Reason: AccessReasonNoAccount}
	}
	d := AccessDecision{
		Status:             account.SubscriptionStatus,
		SuspensionReason:   account.SuspensionReason,
		GracePeriodEndDate: account.GracePeriodEndDate,
	}

	if account.FreeAccessGranted && (account.FreeAccessExpiresAt == nil || account.FreeAccessExpiresAt.After(now)) {
		d.Allowed, d.Reason = true, AccessReasonFreeAccess
		return d
	}
	if !account.BillingEnabled {
		d.Allowed, d.Reason = true, AccessReasonBillingDisabled
		return d
	}
	switch account.SubscriptionStatus {
	case statusActive, statusTrial, statusGrace:
		d.Allowed, d.Reason = true, AccessReasonSubscription
	case statusCancelled:
		if account.SubscriptionEndDate != nil && account.SubscriptionEndDate.After(now) {
			d.Allowed, d.Reason = true, AccessReasonCancelledPeriod
		} else {
			d.Reason = AccessReasonNoSubscription
		}
	default:
		d.Reason = AccessReasonNoSubscription
	}
	return d
}
