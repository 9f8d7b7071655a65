package payment

import (
	"errors"
	"net/http"

	"github.com/pptmaker/pptmaker-api/internal/pkg/errorhandler"
)

var (
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrUnknownPackage   = errors.New("unknown credit package")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidStatus    = errors.New("payment is not in a state that allows this")
	ErrAmountMismatch   = errors.New("paid amount does not match")
	ErrNotRefundable    = errors.New("only paid payments can be refunded")
)

// ErrorRules maps payment errors to HTTP responses. Shared with the admin handler.
var ErrorRules = []errorhandler.Rule{
	errorhandler.Map(ErrPaymentNotFound, http.StatusNotFound, "PAYMENT_NOT_FOUND", "Payment not found"),
	errorhandler.Map(ErrUnknownPackage, http.StatusBadRequest, "UNKNOWN_PACKAGE", "Unknown credit package"),
	errorhandler.Map(ErrInvalidSignature, http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid signature"),
	errorhandler.Map(ErrInvalidStatus, http.StatusConflict, "INVALID_STATUS", "Payment status does not allow this"),
	errorhandler.Map(ErrAmountMismatch, http.StatusBadRequest, "AMOUNT_MISMATCH", "Amount mismatch"),
	errorhandler.Map(ErrNotRefundable, http.StatusConflict, "NOT_REFUNDABLE", "Only paid payments can be refunded"),
}
