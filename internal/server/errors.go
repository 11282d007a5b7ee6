package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/foodshare/internal/accounts"
	"github.com/MarcoPoloResearchLab/foodshare/internal/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code,omitempty"`
}

// classifyError maps service errors onto an HTTP status and response body.
func classifyError(err error) (int, errorPayload) {
	var (
		validation *ledger.ValidationError
		duplicate  *accounts.DuplicateRegistrationError
		storeErr   *ledger.StoreError
		serviceErr *accounts.ServiceError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, errorPayload{Error: "validation_failed", Message: validation.Error(), Field: validation.Field}
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, errorPayload{Error: "not_found", Message: err.Error()}
	case errors.Is(err, ledger.ErrForbidden):
		return http.StatusForbidden, errorPayload{Error: "forbidden", Message: err.Error()}
	case errors.Is(err, ledger.ErrWrongRole):
		return http.StatusForbidden, errorPayload{Error: "wrong_role", Message: err.Error()}
	case errors.Is(err, ledger.ErrReservationExists):
		return http.StatusConflict, errorPayload{Error: "reservation_exists", Message: err.Error()}
	case errors.Is(err, ledger.ErrInvalidTransition):
		return http.StatusConflict, errorPayload{Error: "invalid_transition", Message: err.Error()}
	case errors.Is(err, ledger.ErrVersionConflict):
		return http.StatusConflict, errorPayload{Error: "version_conflict", Message: err.Error()}
	case errors.Is(err, ledger.ErrAnnouncementUnavailable):
		return http.StatusConflict, errorPayload{Error: "announcement_unavailable", Message: err.Error()}
	case errors.As(err, &duplicate):
		return http.StatusConflict, errorPayload{Error: "duplicate_registration", Message: err.Error(), Field: "registration_number"}
	case errors.Is(err, accounts.ErrEmailTaken):
		return http.StatusConflict, errorPayload{Error: "email_taken", Message: err.Error(), Field: "email"}
	case errors.Is(err, accounts.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorPayload{Error: "invalid_credentials", Message: err.Error()}
	case errors.As(err, &storeErr):
		return http.StatusInternalServerError, errorPayload{Error: "store_failure", Message: "the request could not be completed", Code: storeErr.Code()}
	case errors.As(err, &serviceErr):
		return http.StatusInternalServerError, errorPayload{Error: "store_failure", Message: "the request could not be completed", Code: serviceErr.Code()}
	default:
		return http.StatusInternalServerError, errorPayload{Error: "internal_error", Message: "the request could not be completed"}
	}
}

func (h *httpHandler) writeError(c *gin.Context, err error) {
	status, payload := classifyError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, payload)
}
