package errorhandler

import (
	"context"
	"errors"
	"net/http"

	"github.com/pptmaker/pptmaker-api/internal/pkg/logger"
	"github.com/pptmaker/pptmaker-api/internal/pkg/response"
)

// Rule maps a sentinel error to an HTTP response
type Rule struct {
	Err     error
	Status  int
	Code    string
	Message string
}

// Map is a shorthand for building a Rule
func Map(err error, status int, code, message string) Rule {
	return Rule{Err: err, Status: status, Code: code, Message: message}
}

// Handle writes the response of the first rule whose sentinel matches err
// via errors.Is. Unmatched errors are logged and answered with 500.
func Handle(ctx context.Context, w http.ResponseWriter, err error, rules ...Rule) {
	for _, rule := range rules {
		if errors.Is(err, rule.Err) {
			event := logger.FromContext(ctx).Debug()
			if rule.Status >= http.StatusInternalServerError {
				event = logger.FromContext(ctx).Error()
			}
			event.Err(err).
				Str("error_code", rule.Code).
				Int("status_code", rule.Status).
				Msg("Request error")
			response.Error(w, rule.Status, rule.Code, rule.Message)
			return
		}
	}

	logger.FromContext(ctx).Error().
		Err(err).
		Int("status_code", http.StatusInternalServerError).
		Msg("Unhandled request error")
	response.InternalError(w)
}

// HandleValidation logs field errors and sends a 422 response
func HandleValidation(ctx context.Context, w http.ResponseWriter, fieldErrors map[string]string) {
	logger.FromContext(ctx).Warn().
		Interface("validation_errors", fieldErrors).
		Msg("Validation error")
	response.ValidationError(w, fieldErrors)
}

// LogExternalServiceError logs errors from external service calls
func LogExternalServiceError(ctx context.Context, service, endpoint string, statusCode int, err error, body string) {
	logger.FromContext(ctx).Error().
		Str("external_service", service).
		Str("endpoint", endpoint).
		Int("status_code", statusCode).
		Err(err).
		Str("response_body", truncateString(body, 1000)).
		Msg("External service error")
}

func truncateString(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "...<truncated>"
	}
	return s
}
