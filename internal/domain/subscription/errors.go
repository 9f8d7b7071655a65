package subscription

import (
	"errors"
	"net/http"

	"github.com/pptmaker/pptmaker-api/internal/pkg/errorhandler"
)

var (
	ErrPlanNotFound         = errors.New("plan not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrAlreadySubscribed    = errors.New("user already has active subscription")
	ErrFreePlan             = errors.New("free plan needs no subscription")
	ErrInvalidState         = errors.New("subscription cannot be activated in its current state")
	ErrPaymentsUnavailable  = errors.New("payments are not configured")
)

var errorRules = []errorhandler.Rule{
	errorhandler.Map(ErrPlanNotFound, http.StatusNotFound, "PLAN_NOT_FOUND", "Plan not found"),
	errorhandler.Map(ErrSubscriptionNotFound, http.StatusNotFound, "SUBSCRIPTION_NOT_FOUND", "No active subscription"),
	errorhandler.Map(ErrAlreadySubscribed, http.StatusConflict, "ALREADY_SUBSCRIBED", "Already subscribed to this plan"),
	errorhandler.Map(ErrFreePlan, http.StatusBadRequest, "FREE_PLAN", "The free plan needs no subscription"),
	errorhandler.Map(ErrInvalidState, http.StatusConflict, "INVALID_STATE", "Subscription cannot be activated"),
}
