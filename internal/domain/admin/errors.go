package admin

import (
	"errors"
	"net/http"

	"github.com/pptmaker/pptmaker-api/internal/domain/permission"
	"github.com/pptmaker/pptmaker-api/internal/domain/user"
	"github.com/pptmaker/pptmaker-api/internal/pkg/errorhandler"
)

var (
	ErrCannotBanSelf  = errors.New("cannot ban yourself")
	ErrCannotBanAdmin = errors.New("revoke admin access before banning")
	ErrLastAdmin      = permission.ErrLastAdmin
	ErrAlreadyAdmin   = errors.New("user is already an admin")
	ErrNotAdmin       = permission.ErrNotAdmin
)

var errorRules = []errorhandler.Rule{
	errorhandler.Map(user.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND", "User not found"),
	errorhandler.Map(ErrCannotBanSelf, http.StatusBadRequest, "CANNOT_BAN_SELF", "Cannot ban yourself"),
	errorhandler.Map(ErrCannotBanAdmin, http.StatusConflict, "CANNOT_BAN_ADMIN", "Revoke admin access before banning"),
	errorhandler.Map(ErrLastAdmin, http.StatusConflict, "LAST_ADMIN", "Cannot revoke the last admin"),
	errorhandler.Map(ErrAlreadyAdmin, http.StatusConflict, "ALREADY_ADMIN", "User is already an admin"),
	errorhandler.Map(ErrNotAdmin, http.StatusNotFound, "NOT_ADMIN", "User is not an admin"),
}
