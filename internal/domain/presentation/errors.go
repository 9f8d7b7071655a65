package presentation

import (
	"errors"
	"net/http"

	"github.com/pptmaker/pptmaker-api/internal/domain/credit"
	"github.com/pptmaker/pptmaker-api/internal/domain/permission"
	"github.com/pptmaker/pptmaker-api/internal/domain/user"
	"github.com/pptmaker/pptmaker-api/internal/pkg/errorhandler"
	"github.com/pptmaker/pptmaker-api/internal/pkg/imaging"
)

var (
	ErrPresentationNotFound = errors.New("presentation not found")
	ErrForbidden            = errors.New("not allowed to modify this presentation")
	ErrGenerationInProgress = errors.New("presentation is being generated")
	ErrNotGenerated         = errors.New("presentation has no generated content")
	ErrGenerationFailed     = errors.New("presentation generation failed")
	ErrGenerationAbandoned  = errors.New("generation run is no longer current")
	ErrCannotShareWithSelf  = errors.New("cannot change your own access")
	ErrOwnerShare           = errors.New("owner access cannot be shared or revoked")
)

var errorRules = []errorhandler.Rule{
	errorhandler.Map(ErrPresentationNotFound, http.StatusNotFound, "PRESENTATION_NOT_FOUND", "Presentation not found"),
	errorhandler.Map(ErrForbidden, http.StatusForbidden, "FORBIDDEN", "Not allowed to modify this presentation"),
	errorhandler.Map(ErrGenerationInProgress, http.StatusConflict, "GENERATION_IN_PROGRESS", "Presentation is being generated"),
	errorhandler.Map(ErrNotGenerated, http.StatusConflict, "NOT_GENERATED", "Generate the presentation first"),
	errorhandler.Map(ErrGenerationFailed, http.StatusBadGateway, "GENERATION_FAILED", "Generation failed, credits were refunded"),
	errorhandler.Map(ErrCannotShareWithSelf, http.StatusBadRequest, "CANNOT_SHARE_WITH_SELF", "Cannot change your own access"),
	errorhandler.Map(ErrOwnerShare, http.StatusBadRequest, "OWNER_SHARE", "Owner access cannot be shared or revoked"),
	errorhandler.Map(credit.ErrInsufficientCredits, http.StatusConflict, "INSUFFICIENT_CREDITS", "Not enough credits"),
	errorhandler.Map(permission.ErrInvalidRelation, http.StatusBadRequest, "INVALID_RELATION", "Invalid relation"),
	errorhandler.Map(user.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND", "User not found"),
	errorhandler.Map(imaging.ErrTooLarge, http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE", "Cover image is too large"),
}
