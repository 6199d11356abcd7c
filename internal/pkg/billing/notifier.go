package billing

import (
	"context"
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// Lifecycle events delivered to a Notifier.
const (
	EventRenewed           = "subscription.renewed"
	EventGracePeriod       = "subscription.grace_period"
	EventSuspended         = "subscription.suspended"
	EventCancelled         = "subscription.cancelled"
	EventFreeAccessExpired = "subscription.free_access_expired"
)

// Event describes a lifecycle transition worth telling the account holder about.
type Event struct {
	Type       string
	Account    models.BillingAccount
	Plan       *models.MembershipPlan
	OccurredAt time.Time
}

// Notifier delivers lifecycle events. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes events to the log only.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, event Event) error {
	log.Infof("[Notify] %s for billing account %d (status %s)", event.Type, event.Account.ID, event.Account.SubscriptionStatus)
	return nil
}

func (s *Service) notify(ctx context.Context, eventType string, account *models.BillingAccount, plan *models.MembershipPlan) {
	if s.notifier == nil || !s.settings.Get().NotificationsEnabled {
		return
	}
	event := Event{Type: eventType, Account: *account, Plan: plan, OccurredAt: s.clock.Now()}
	if err := s.notifier.Notify(ctx, event); err != nil {
		log.Warnf("[Billing] Notification %s for account %d failed: %v", eventType, account.ID, err)
	}
}
