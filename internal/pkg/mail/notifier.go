package mail

import (
	"context"
	"fmt"
	"strings"

	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/gofiber/fiber/v2/log"
)

const dateLayout = "2006-01-02"

// Mailer sends a single message.
type Mailer interface {
	SendMail(to, subject, body string) error
}

// Notifier mails lifecycle events to the account's contact address.
type Notifier struct {
	mailer Mailer
}

// NewNotifier creates a billing.Notifier backed by mailer.
func NewNotifier(mailer Mailer) *Notifier {
	return &Notifier{mailer: mailer}
}

// NewNotifierFromEnv returns a mail notifier when SMTP is configured and a
// log-only notifier otherwise.
func NewNotifierFromEnv() billing.Notifier {
	cfg := LoadConfig()
	if !cfg.Configured() {
		log.Info("[Mail] SMTP_HOST not set, lifecycle notifications are logged only")
		return billing.LogNotifier{}
	}
	return NewNotifier(NewSMTPMailer(cfg, nil))
}

// Notify implements billing.Notifier. Accounts without a contact email are skipped.
func (n *Notifier) Notify(ctx context.Context, event billing.Event) error {
	to := strings.TrimSpace(event.Account.ContactEmail)
	if to == "" {
		log.Debugf("[Mail] No contact email for billing account %d, skipping %s", event.Account.ID, event.Type)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body := render(event)
	return n.mailer.SendMail(to, subject, body)
}

func render(event billing.Event) (string, string) {
	a := event.Account
	planName := "your plan"
	if event.Plan != nil {
		planName = event.Plan.Name
	}

	var b strings.Builder
	var subject string
	switch event.Type {
	case billing.EventRenewed:
		subject = "Your subscription was renewed"
		fmt.Fprintf(&b, "Your subscription to %s was renewed.\n", planName)
		if a.SubscriptionEndDate != nil {
			fmt.Fprintf(&b, "The current period ends on %s.\n", a.SubscriptionEndDate.Format(dateLayout))
		}
	case billing.EventGracePeriod:
		subject = "Action required: your subscription payment is overdue"
		b.WriteString("We could not renew your subscription.\n")
		if a.GracePeriodEndDate != nil {
			fmt.Fprintf(&b, "Your access continues until %s. Please update your payment method before then.\n", a.GracePeriodEndDate.Format(dateLayout))
		}
	case billing.EventSuspended:
		subject = "Your subscription was suspended"
		b.WriteString("Your subscription was suspended.\n")
		if a.SuspensionReason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", a.SuspensionReason)
		}
	case billing.EventCancelled:
		subject = "Your subscription was cancelled"
		b.WriteString("Your subscription was cancelled.\n")
		if a.SubscriptionEndDate != nil {
			fmt.Fprintf(&b, "You keep access until %s.\n", a.SubscriptionEndDate.Format(dateLayout))
		}
	case billing.EventFreeAccessExpired:
		subject = "Your free access has ended"
		b.WriteString("The free access granted to your account has ended.\n")
	default:
		subject = "Subscription update"
		fmt.Fprintf(&b, "Your subscription status is now %s.\n", a.SubscriptionStatus)
	}
	return subject, b.String()
}
