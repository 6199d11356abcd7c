package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/internal/pkg/clock"
	"github.com/ManuelReschke/SubFox/internal/pkg/metrics"
	"gorm.io/gorm"
)

// Service applies subscription lifecycle transitions and usage accounting to billing accounts.
type Service struct {
	repo      Repository
	clock     clock.Clock
	settings  *models.SettingsStore
	notifier  Notifier
	processor PaymentProcessor
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithSettings sets the store that supplies trial and grace defaults.
func WithSettings(store *models.SettingsStore) Option {
	return func(s *Service) { s.settings = store }
}

// WithNotifier sets where lifecycle events are delivered.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithPaymentProcessor sets the processor used for payment methods and renewal charges.
func WithPaymentProcessor(p PaymentProcessor) Option {
	return func(s *Service) { s.processor = p }
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		clock:     clock.SystemClock{},
		notifier:  LogNotifier{},
		processor: NoopProcessor{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), opts...)
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

type actorKey struct{}

// WithActor marks ctx as acting on behalf of an administrator. Lifecycle
// operations called with such a context are written to the audit trail.
func WithActor(ctx context.Context, actorID uint) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the administrator stored by WithActor.
func ActorFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(actorKey{}).(uint)
	return id, ok
}

// GetAccount loads an account by id.
func (s *Service) GetAccount(ctx context.Context, accountID uint) (*models.BillingAccount, error) {
	return s.repo.GetAccount(ctx, accountID)
}

// GetPlan loads a plan by id.
func (s *Service) GetPlan(ctx context.Context, planID uint) (*models.MembershipPlan, error) {
	return s.repo.GetPlan(ctx, planID)
}

// GetOrCreateAccount returns the account of userID, creating an inactive one on first use.
func (s *Service) GetOrCreateAccount(ctx context.Context, userID uint) (*models.BillingAccount, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	account, err := s.repo.GetAccountByUserID(ctx, userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	account = models.NewBillingAccount(userID)
	if createErr := s.repo.CreateAccount(ctx, account); createErr != nil {
		// Lost a race against a concurrent first request for the same user.
		if existing, getErr := s.repo.GetAccountByUserID(ctx, userID); getErr == nil {
			return existing, nil
		}
		return nil, createErr
	}
	return account, nil
}

// persist saves account. A non-nil entry is appended to the audit trail in the same transaction.
func (s *Service) persist(ctx context.Context, account *models.BillingAccount, fromStatus string, entry *models.AuditEntry) error {
	var err error
	if entry == nil {
		err = s.repo.SaveAccount(ctx, account)
	} else {
		entry.BillingAccountID = account.ID
		entry.FromStatus = fromStatus
		entry.ToStatus = account.SubscriptionStatus
		err = s.repo.WithinTx(ctx, func(repo Repository) error {
			if err := repo.SaveAccount(ctx, account); err != nil {
				return err
			}
			return repo.AppendAudit(ctx, entry)
		})
	}
	if err != nil {
		return err
	}
	metrics.ObserveTransition(fromStatus, account.SubscriptionStatus)
	return nil
}

// auditEntry returns an entry for action when ctx carries an actor, and nil otherwise.
func auditEntry(ctx context.Context, action, reason string) *models.AuditEntry {
	actorID, ok := ActorFromContext(ctx)
	if !ok {
		return nil
	}
	return &models.AuditEntry{ActorID: &actorID, Action: action, Reason: reason}
}

// CreatePlan validates and stores a new plan.
func (s *Service) CreatePlan(ctx context.Context, plan *models.MembershipPlan) error {
	plan.ApplyDefaults()
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	return s.repo.CreatePlan(ctx, plan)
}

// UpdatePlan validates and stores changes to an existing plan.
func (s *Service) UpdatePlan(ctx context.Context, plan *models.MembershipPlan) error {
	if plan.ID == 0 {
		return fmt.Errorf("%w: plan id is required", ErrValidation)
	}
	if _, err := s.repo.GetPlan(ctx, plan.ID); err != nil {
		return err
	}
	plan.ApplyDefaults()
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	return s.repo.SavePlan(ctx, plan)
}

// DeactivatePlan hides a plan from new assignments. Existing accounts keep their reference.
func (s *Service) DeactivatePlan(ctx context.Context, planID, actorID uint) (*models.MembershipPlan, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	plan.Active = false
	if actorID != 0 {
		plan.UpdatedBy = &actorID
	}
	if err := s.repo.SavePlan(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}
