package auth

import (
	"errors"
	"net/http"

	"github.com/pptmaker/pptmaker-api/internal/pkg/errorhandler"
	"github.com/pptmaker/pptmaker-api/internal/pkg/password"
)

var (
	ErrEmailAlreadyExists   = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrInvalidRefreshToken  = errors.New("invalid or expired refresh token")
	ErrUserNotFound         = errors.New("user not found")
	ErrRefreshTokenRequired = errors.New("refresh token is required")
	ErrUserBanned           = errors.New("user is banned")
)

var errorRules = []errorhandler.Rule{
	errorhandler.Map(ErrEmailAlreadyExists, http.StatusConflict, "EMAIL_EXISTS", "Email already registered"),
	errorhandler.Map(ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"),
	errorhandler.Map(ErrInvalidRefreshToken, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Invalid or expired refresh token"),
	errorhandler.Map(ErrRefreshTokenRequired, http.StatusBadRequest, "REFRESH_TOKEN_REQUIRED", "Refresh token is required"),
	errorhandler.Map(ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND", "User not found"),
	errorhandler.Map(ErrUserBanned, http.StatusForbidden, "USER_BANNED", "Account is banned"),
	errorhandler.Map(password.ErrTooLong, http.StatusBadRequest, "PASSWORD_TOO_LONG", "Password must be at most 72 bytes"),
}
