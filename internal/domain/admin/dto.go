package admin

import "time"

// GrantCreditsRequest for POST /admin/users/{id}/credits
type GrantCreditsRequest struct {
	Amount      int        `json:"amount" validate:"required,min=1,max=1000000"`
	Type        string     `json:"type" validate:"omitempty,grant_type"`
	Source      string     `json:"source" validate:"omitempty,source_type"`
	ExpiresAt   *time.Time `json:"expires_at"`
	Reason      string     `json:"reason" validate:"required,min=3,max=500"`
	ReferenceID string     `json:"reference_id" validate:"max=128"`
}

// BanRequest for POST /admin/users/{id}/ban
type BanRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// RefundRequest for POST /admin/payments/{id}/refund
type RefundRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// GrantResponse reports an admin credit grant
type GrantResponse struct {
	Balance   int  `json:"balance"`
	Duplicate bool `json:"duplicate"`
}
