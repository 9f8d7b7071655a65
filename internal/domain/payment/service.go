package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pptmaker/pptmaker-api/internal/domain/credit"
	"github.com/pptmaker/pptmaker-api/internal/domain/subscription"
	"github.com/pptmaker/pptmaker-api/internal/pkg/logger"
	"github.com/pptmaker/pptmaker-api/internal/pkg/webhook"
)

// CreditGranter is the part of the credit ledger payments need.
type CreditGranter interface {
	GrantTx(ctx context.Context, tx *sqlx.Tx, in credit.GrantInput) (*credit.Result, error)
	NotifyBalance(ctx context.Context, userID uuid.UUID)
}

// SubscriptionActivator activates a paid subscription inside the payment transaction.
type SubscriptionActivator interface {
	ActivateTx(ctx context.Context, tx *sqlx.Tx, subscriptionID uuid.UUID) (*subscription.Subscription, error)
}

// Config holds provider settings
type Config struct {
	WebhookSecret string
	CheckoutURL   string
}

// Service handles payment business logic
type Service struct {
	repo          Repository
	credits       CreditGranter
	subscriptions SubscriptionActivator
	cfg           Config
	now           func() time.Time
}

// NewService creates payment service
func NewService(repo Repository, credits CreditGranter, subscriptions SubscriptionActivator, cfg Config) *Service {
	return &Service{
		repo:          repo,
		credits:       credits,
		subscriptions: subscriptions,
		cfg:           cfg,
		now:           time.Now,
	}
}

// Checkout opens a pending payment for a credit package
func (s *Service) Checkout(ctx context.Context, userID uuid.UUID, packageID string) (*CheckoutResponse, error) {
	pkg, ok := packages[packageID]
	if !ok {
		return nil, ErrUnknownPackage
	}

	p := &Payment{
		ID:       uuid.New(),
		UserID:   userID,
		Kind:     KindCredits,
		Amount:   pkg.Amount,
		Currency: pkg.Currency,
		Credits:  pkg.Credits,
		Status:   StatusPending,
		Provider: ProviderStub,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	return &CheckoutResponse{
		PaymentID:   p.ID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Credits:     p.Credits,
		CheckoutURL: s.checkoutURL(p.ID),
		Status:      p.Status,
	}, nil
}

// CreateSubscriptionPayment opens the payment for a pending subscription
func (s *Service) CreateSubscriptionPayment(ctx context.Context, userID uuid.UUID, plan *subscription.Plan, subscriptionID uuid.UUID) (*subscription.Invoice, error) {
	planID := string(plan.ID)
	p := &Payment{
		ID:             uuid.New(),
		UserID:         userID,
		Kind:           KindSubscription,
		Amount:         plan.PriceMonthly,
		Currency:       plan.Currency,
		PlanID:         &planID,
		SubscriptionID: &subscriptionID,
		Status:         StatusPending,
		Provider:       ProviderStub,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	return &subscription.Invoice{
		PaymentID:   p.ID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		CheckoutURL: s.checkoutURL(p.ID),
	}, nil
}

// HandleWebhook verifies and applies a provider notification. Completing a
// payment and delivering what it bought happen in one transaction; replays of
// an already applied event are accepted without effect.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string, event *WebhookEvent) error {
	if !webhook.VerifySignature(body, signature, s.cfg.WebhookSecret) {
		return ErrInvalidSignature
	}

	var paidUser uuid.UUID
	err := s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		p, err := s.repo.GetForUpdate(ctx, tx, event.PaymentID)
		if err != nil {
			return err
		}

		if Status(event.Status) == StatusFailed {
			switch p.Status {
			case StatusFailed:
				return nil
			case StatusPending:
				return s.repo.UpdateStatus(ctx, tx, p.ID, StatusFailed)
			default:
				return ErrInvalidStatus
			}
		}

		switch p.Status {
		case StatusPaid, StatusRefunded:
			return nil
		case StatusPending:
		default:
			return ErrInvalidStatus
		}
		if event.Amount != p.Amount {
			return ErrAmountMismatch
		}

		if err := s.repo.MarkPaid(ctx, tx, p.ID, event.ExternalID, s.now().UTC()); err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		if err := s.deliver(ctx, tx, p); err != nil {
			return err
		}
		paidUser = p.UserID
		return nil
	})
	if err != nil {
		return err
	}

	if paidUser != uuid.Nil {
		s.credits.NotifyBalance(ctx, paidUser)
		logger.LogInfo(ctx, "payment completed", "payment_id", event.PaymentID.String(), "user_id", paidUser.String())
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, tx *sqlx.Tx, p *Payment) error {
	switch p.Kind {
	case KindCredits:
		_, err := s.credits.GrantTx(ctx, tx, credit.GrantInput{
			UserID:      p.UserID,
			Amount:      p.Credits,
			Type:        credit.TxTypePurchase,
			Source:      credit.SourcePurchase,
			Description: fmt.Sprintf("Purchased %d credits", p.Credits),
			ReferenceID: p.ID.String(),
		})
		return err
	case KindSubscription:
		if p.SubscriptionID == nil {
			return fmt.Errorf("payment %s has no subscription", p.ID)
		}
		_, err := s.subscriptions.ActivateTx(ctx, tx, *p.SubscriptionID)
		return err
	default:
		return fmt.Errorf("unknown payment kind %q", p.Kind)
	}
}

// Refund marks a paid payment refunded. Delivered credits are not clawed back.
func (s *Service) Refund(ctx context.Context, paymentID uuid.UUID, reason string) (*Payment, error) {
	var refunded *Payment
	err := s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		p, err := s.repo.GetForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != StatusPaid {
			return ErrNotRefundable
		}
		if err := s.repo.UpdateStatus(ctx, tx, p.ID, StatusRefunded); err != nil {
			return err
		}
		p.Status = StatusRefunded
		refunded = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.LogInfo(ctx, "payment refunded", "payment_id", paymentID.String(), "reason", reason)
	return refunded, nil
}

// ListForUser returns the user's payments, newest first
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// List is the admin listing
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Payment, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) Revenue(ctx context.Context) ([]Revenue, error) {
	return s.repo.Revenue(ctx)
}

func (s *Service) checkoutURL(id uuid.UUID) string {
	if s.cfg.CheckoutURL == "" {
		return ""
	}
	return s.cfg.CheckoutURL + "/" + id.String()
}
