package payment

import (
	"time"

	"github.com/google/uuid"
)

// Status represents payment status
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

// Kind says what a payment buys
type Kind string

const (
	KindCredits      Kind = "credits"
	KindSubscription Kind = "subscription"
)

const ProviderStub = "stub"

// Payment represents a payment transaction. Amount is in minor units.
type Payment struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	Kind           Kind       `db:"kind" json:"kind"`
	Amount         int        `db:"amount" json:"amount"`
	Currency       string     `db:"currency" json:"currency"`
	Credits        int        `db:"credits" json:"credits"`
	PlanID         *string    `db:"plan_id" json:"plan_id,omitempty"`
	SubscriptionID *uuid.UUID `db:"subscription_id" json:"subscription_id,omitempty"`
	Status         Status     `db:"status" json:"status"`
	Provider       string     `db:"provider" json:"provider"`
	ExternalID     *string    `db:"external_id" json:"external_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	PaidAt         *time.Time `db:"paid_at" json:"paid_at,omitempty"`
}

// IsPaid checks if payment is completed
func (p *Payment) IsPaid() bool {
	return p.Status == StatusPaid
}

// Package is a purchasable bundle of credits
type Package struct {
	ID       string `json:"id"`
	Credits  int    `json:"credits"`
	Amount   int    `json:"amount"`
	Currency string `json:"currency"`
}

var packages = map[string]Package{
	"small":  {ID: "small", Credits: 50, Amount: 499, Currency: "USD"},
	"medium": {ID: "medium", Credits: 200, Amount: 1799, Currency: "USD"},
	"large":  {ID: "large", Credits: 500, Amount: 3999, Currency: "USD"},
}

// Packages lists the credit packages, smallest first
func Packages() []Package {
	return []Package{packages["small"], packages["medium"], packages["large"]}
}

// ListFilter narrows the admin payment list
type ListFilter struct {
	UserID *uuid.UUID
	Status *Status
	Limit  int
	Offset int
}

// Revenue is the paid and refunded totals in minor units, per currency.
type Revenue struct {
	Currency string `db:"currency" json:"currency"`
	Status   Status `db:"status" json:"status"`
	Count    int    `db:"count" json:"count"`
	Amount   int    `db:"amount" json:"amount"`
}
