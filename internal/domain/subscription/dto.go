package subscription

// SubscribeRequest for POST /subscriptions
type SubscribeRequest struct {
	PlanID string `json:"plan_id" validate:"required,plan"`
}

// CancelRequest for POST /subscriptions/cancel
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// SubscribeResponse carries the pending subscription and its invoice
type SubscribeResponse struct {
	Subscription *Subscription `json:"subscription"`
	Invoice      *Invoice      `json:"invoice"`
}

// CurrentResponse for GET /subscriptions/current. Subscription is nil on the free plan.
type CurrentResponse struct {
	Plan          *Plan         `json:"plan"`
	Subscription  *Subscription `json:"subscription"`
	DaysRemaining int           `json:"days_remaining"`
}
