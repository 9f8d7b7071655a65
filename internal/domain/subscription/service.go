package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pptmaker/pptmaker-api/internal/domain/credit"
	"github.com/pptmaker/pptmaker-api/internal/pkg/logger"
)

const (
	periodMonths = 1
	pendingTTL   = 24 * time.Hour
)

// CreditGranter is the part of the credit ledger activation needs.
type CreditGranter interface {
	GrantTx(ctx context.Context, tx *sqlx.Tx, in credit.GrantInput) (*credit.Result, error)
}

// PaymentCreator opens the pending payment a paid subscription waits on.
type PaymentCreator interface {
	CreateSubscriptionPayment(ctx context.Context, userID uuid.UUID, plan *Plan, subscriptionID uuid.UUID) (*Invoice, error)
}

type Service struct {
	repo     Repository
	credits  CreditGranter
	payments PaymentCreator
	now      func() time.Time
}

func NewService(repo Repository, credits CreditGranter) *Service {
	return &Service{repo: repo, credits: credits, now: time.Now}
}

// SetPayments wires the payment service, which itself depends on this one.
func (s *Service) SetPayments(p PaymentCreator) {
	s.payments = p
}

func (s *Service) GetPlans(ctx context.Context) ([]*Plan, error) {
	return s.repo.ListPlans(ctx)
}

func (s *Service) GetPlan(ctx context.Context, planID PlanID) (*Plan, error) {
	return s.repo.GetPlanByID(ctx, planID)
}

// GetCurrent returns the active subscription and its plan. Users without one
// are on the free plan and get a nil subscription.
func (s *Service) GetCurrent(ctx context.Context, userID uuid.UUID) (*CurrentResponse, error) {
	sub, err := s.repo.GetActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	planID := PlanFree
	if sub != nil {
		planID = sub.PlanID
	}
	plan, err := s.repo.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}

	resp := &CurrentResponse{Plan: plan, Subscription: sub, DaysRemaining: -1}
	if sub != nil {
		resp.DaysRemaining = sub.DaysRemaining(s.now())
	}
	return resp, nil
}

// Subscribe opens a pending subscription and its payment. The subscription
// becomes active when the payment completes.
func (s *Service) Subscribe(ctx context.Context, userID uuid.UUID, planID PlanID) (*SubscribeResponse, error) {
	plan, err := s.repo.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.IsFree() {
		return nil, ErrFreePlan
	}

	existing, err := s.repo.GetActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.PlanID == planID {
		return nil, ErrAlreadySubscribed
	}
	if s.payments == nil {
		return nil, ErrPaymentsUnavailable
	}

	sub := &Subscription{
		ID:     uuid.New(),
		UserID: userID,
		PlanID: planID,
		Status: StatusPending,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	invoice, err := s.payments.CreateSubscriptionPayment(ctx, userID, plan, sub.ID)
	if err != nil {
		return nil, err
	}

	return &SubscribeResponse{Subscription: sub, Invoice: invoice}, nil
}

// ActivateTx activates a paid subscription inside the payment transaction:
// any other active subscription is cancelled and the plan's monthly credits
// are granted, expiring with the term. Activating an active subscription is
// a no-op.
func (s *Service) ActivateTx(ctx context.Context, tx *sqlx.Tx, subscriptionID uuid.UUID) (*Subscription, error) {
	sub, err := s.repo.GetForUpdate(ctx, tx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == StatusActive {
		return sub, nil
	}
	if sub.Status != StatusPending {
		return nil, ErrInvalidState
	}

	plan, err := s.repo.GetPlanByID(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CancelOthers(ctx, tx, sub.UserID, sub.ID, "Upgrade"); err != nil {
		return nil, fmt.Errorf("cancel previous subscription: %w", err)
	}

	started := s.now().UTC()
	expires := started.AddDate(0, periodMonths, 0)
	if err := s.repo.Activate(ctx, tx, sub.ID, started, expires); err != nil {
		return nil, fmt.Errorf("activate subscription: %w", err)
	}
	sub.Status = StatusActive
	sub.StartedAt = &started
	sub.ExpiresAt = &expires

	if plan.MonthlyCredits > 0 {
		_, err := s.credits.GrantTx(ctx, tx, credit.GrantInput{
			UserID:      sub.UserID,
			Amount:      plan.MonthlyCredits,
			Type:        credit.TxTypePurchase,
			Source:      credit.SourceSubscription,
			ExpiresAt:   &expires,
			Description: fmt.Sprintf("%s plan credits", plan.Name),
			ReferenceID: "subscription:" + sub.ID.String(),
		})
		if err != nil {
			return nil, err
		}
	}

	logger.LogInfo(ctx, "subscription activated",
		"subscription_id", sub.ID.String(), "user_id", sub.UserID.String(), "plan", string(sub.PlanID))
	return sub, nil
}

// Cancel stops the active subscription. Credits already granted stay until
// they expire.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID, reason string) error {
	sub, err := s.repo.GetActiveByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrSubscriptionNotFound
	}
	return s.repo.Cancel(ctx, sub.ID, reason)
}

// ExpireOldSubscriptions closes finished terms and abandoned checkouts.
func (s *Service) ExpireOldSubscriptions(ctx context.Context) (int, error) {
	now := s.now()
	return s.repo.ExpireOldSubscriptions(ctx, now, now.Add(-pendingTTL))
}

// CountActive is used by the admin dashboard
func (s *Service) CountActive(ctx context.Context) (int, error) {
	return s.repo.CountActive(ctx)
}
