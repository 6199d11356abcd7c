package billing

import (
	"fmt"

	"github.com/ManuelReschke/SubFox/app/models"
)

const (
	statusTrial     = models.SubscriptionStatusTrial
	statusActive    = models.SubscriptionStatusActive
	statusGrace     = models.SubscriptionStatusGracePeriod
	statusSuspended = models.SubscriptionStatusSuspended
	statusCancelled = models.SubscriptionStatusCancelled
	statusInactive  = models.SubscriptionStatusInactive
)

// allowedTargets lists the statuses lifecycle operations may move an account
// to. Admin overrides bypass this table and are audited instead. Nothing but
// an override returns an account to inactive, and only paying states enter
// the grace period.
var allowedTargets = map[string][]string{
	statusInactive:  {statusTrial, statusActive, statusSuspended, statusCancelled},
	statusTrial:     {statusTrial, statusActive, statusGrace, statusSuspended, statusCancelled},
	statusActive:    {statusTrial, statusActive, statusGrace, statusSuspended, statusCancelled},
	statusGrace:     {statusTrial, statusActive, statusSuspended, statusCancelled},
	statusSuspended: {statusTrial, statusActive, statusSuspended, statusCancelled},
	statusCancelled: {statusTrial, statusActive, statusSuspended, statusCancelled},
}

// CanTransition reports whether a lifecycle operation may move an account from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range allowedTargets[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
