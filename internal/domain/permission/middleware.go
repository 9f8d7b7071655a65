package permission

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/pptmaker/pptmaker-api/internal/middleware"
	"github.com/pptmaker/pptmaker-api/internal/pkg/logger"
	"github.com/pptmaker/pptmaker-api/internal/pkg/response"
)

// AdminChecker is satisfied by Service.
type AdminChecker interface {
	RequireAdmin(ctx context.Context, userID uuid.UUID) error
}

// RequireAdmin lets the request through only when the authenticated user
// holds the global admin relation. Must run after middleware.Auth.
func RequireAdmin(checker AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := checker.RequireAdmin(r.Context(), middleware.GetUserID(r.Context()))
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrUnauthorized):
				response.Unauthorized(w, "Authentication required")
			case errors.Is(err, ErrForbidden):
				response.Forbidden(w, "Admin access required")
			default:
				logger.FromContext(r.Context()).Error().Err(err).Msg("admin check failed")
				response.InternalError(w)
			}
		})
	}
}
