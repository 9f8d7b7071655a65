package subscription

import (
	"time"

	"github.com/google/uuid"
)

// PlanID represents subscription plan type
type PlanID string

const (
	PlanFree     PlanID = "free"
	PlanPro      PlanID = "pro"
	PlanBusiness PlanID = "business"
)

// Status represents subscription status
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Plan represents a subscription plan. Prices are in minor units.
type Plan struct {
	ID             PlanID `db:"id" json:"id"`
	Name           string `db:"name" json:"name"`
	PriceMonthly   int    `db:"price_monthly" json:"price_monthly"`
	Currency       string `db:"currency" json:"currency"`
	MonthlyCredits int    `db:"monthly_credits" json:"monthly_credits"`
	IsActive       bool   `db:"is_active" json:"is_active"`
}

// IsFree reports whether the plan needs no payment
func (p *Plan) IsFree() bool {
	return p.PriceMonthly == 0
}

// Subscription represents a user's subscription
type Subscription struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	UserID       uuid.UUID  `db:"user_id" json:"user_id"`
	PlanID       PlanID     `db:"plan_id" json:"plan_id"`
	Status       Status     `db:"status" json:"status"`
	StartedAt    *time.Time `db:"started_at" json:"started_at,omitempty"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CancelledAt  *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelReason *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// IsExpired checks if subscription has expired at now
func (s *Subscription) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// DaysRemaining returns days until expiry, -1 when open-ended
func (s *Subscription) DaysRemaining(now time.Time) int {
	if s.ExpiresAt == nil {
		return -1
	}
	remaining := s.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Hours() / 24)
}

// Invoice is the pending payment a paid subscription waits on.
type Invoice struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	Amount      int       `json:"amount"`
	Currency    string    `json:"currency"`
	CheckoutURL string    `json:"checkout_url"`
}
