package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
)

// PaymentProcessor is the external party that holds payment instruments and collects renewals.
type PaymentProcessor interface {
	// AttachPaymentMethod registers method for the account and returns the processor's customer id.
	AttachPaymentMethod(ctx context.Context, account *models.BillingAccount, method models.PaymentMethod) (string, error)
	// Charge collects the price of one period of plan. key names the period; a
	// processor must collect each key at most once.
	Charge(ctx context.Context, account *models.BillingAccount, plan *models.MembershipPlan, key string) error
}

// ChargeKey identifies the billing period of accountID starting at start.
func ChargeKey(accountID uint, start time.Time) string {
	return fmt.Sprintf("subfox-%d-%s", accountID, start.UTC().Format(time.RFC3339))
}

// NoopProcessor accepts every request without contacting anyone.
type NoopProcessor struct{}

func (NoopProcessor) AttachPaymentMethod(ctx context.Context, account *models.BillingAccount, method models.PaymentMethod) (string, error) {
	if account.ProcessorCustomerID != "" {
		return account.ProcessorCustomerID, nil
	}
	return fmt.Sprintf("cus_local_%d", account.UserID), nil
}

func (NoopProcessor) Charge(ctx context.Context, account *models.BillingAccount, plan *models.MembershipPlan, key string) error {
	return nil
}

// AttachPaymentMethod stores a payment method reference on the account of userID.
func (s *Service) AttachPaymentMethod(ctx context.Context, userID uint, method models.PaymentMethod) (*models.BillingAccount, error) {
	method.ID = strings.TrimSpace(method.ID)
	method.Type = strings.TrimSpace(method.Type)
	if method.ID == "" || method.Type == "" {
		return nil, fmt.Errorf("%w: payment method id and type are required", ErrValidation)
	}

	account, err := s.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.processor.AttachPaymentMethod(ctx, account, method)
	if err != nil {
		return nil, fmt.Errorf("payment processor rejected payment method: %w", err)
	}
	account.ProcessorCustomerID = customerID

	methods := make([]models.PaymentMethod, 0, len(account.PaymentMethods)+1)
	for _, m := range account.PaymentMethods {
		if m.ID == method.ID {
			continue
		}
		if method.IsDefault {
			m.IsDefault = false
		}
		methods = append(methods, m)
	}
	if len(methods) == 0 {
		method.IsDefault = true
	}
	account.PaymentMethods = append(methods, method)

	if err := s.repo.SaveAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}
