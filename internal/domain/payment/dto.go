package payment

import "github.com/google/uuid"

// CheckoutRequest for POST /payments/checkout
type CheckoutRequest struct {
	Package string `json:"package" validate:"required,credit_package"`
}

// CheckoutResponse tells the client where to pay
type CheckoutResponse struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	Amount      int       `json:"amount"`
	Currency    string    `json:"currency"`
	Credits     int       `json:"credits"`
	CheckoutURL string    `json:"checkout_url"`
	Status      Status    `json:"status"`
}

// WebhookEvent is the provider notification body
type WebhookEvent struct {
	PaymentID  uuid.UUID `json:"payment_id" validate:"required"`
	ExternalID string    `json:"external_id" validate:"max=128"`
	Status     string    `json:"status" validate:"required,oneof=paid failed"`
	Amount     int       `json:"amount" validate:"min=0"`
}

// RefundRequest for POST /api/admin/payments/{id}/refund
type RefundRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}
