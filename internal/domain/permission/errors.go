package permission

import (
	"errors"
	"net/http"

	"github.com/pptmaker/pptmaker-api/internal/pkg/errorhandler"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidTuple    = errors.New("invalid relation tuple")
	ErrInvalidRelation = errors.New("invalid relation")
	ErrTupleNotFound   = errors.New("relation tuple not found")
	ErrLastSubject     = errors.New("relation must keep at least one subject")
	ErrNotAdmin        = errors.New("user is not an admin")
	ErrLastAdmin       = errors.New("cannot revoke the last admin")
	ErrInternal        = errors.New("internal error")
)

// ErrorRules maps permission errors to HTTP responses.
var ErrorRules = []errorhandler.Rule{
	errorhandler.Map(ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required"),
	errorhandler.Map(ErrForbidden, http.StatusForbidden, "FORBIDDEN", "Access denied"),
	errorhandler.Map(ErrInvalidTuple, http.StatusBadRequest, "INVALID_TUPLE", "Invalid relation tuple"),
	errorhandler.Map(ErrInvalidRelation, http.StatusBadRequest, "INVALID_RELATION", "Relation must be owner, editor or viewer"),
}
