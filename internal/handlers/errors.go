package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/harentsoar/clinic-api/internal/services"
)

// errorStatus maps a service error to its HTTP status and the message shown
// to the client. Wrapped driver and relay details are never exposed.
func errorStatus(err error) (int, string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, services.ErrPasswordMismatch):
		return http.StatusBadRequest, services.ErrPasswordMismatch.Error()
	case errors.Is(err, services.ErrEmailTaken):
		return http.StatusConflict, services.ErrEmailTaken.Error()
	case errors.Is(err, services.ErrOtpNotFound):
		return http.StatusBadRequest, services.ErrOtpNotFound.Error()
	case errors.Is(err, services.ErrOtpExpired):
		return http.StatusBadRequest, services.ErrOtpExpired.Error()
	case errors.Is(err, services.ErrOtpMismatch):
		return http.StatusBadRequest, services.ErrOtpMismatch.Error()
	case errors.Is(err, services.ErrOtpTooManyAttempts):
		return http.StatusTooManyRequests, services.ErrOtpTooManyAttempts.Error()
	case errors.Is(err, services.ErrOtpDispatchFailed):
		return http.StatusInternalServerError, services.ErrOtpDispatchFailed.Error()
	case errors.Is(err, services.ErrStaleRegistration):
		return http.StatusBadRequest, services.ErrStaleRegistration.Error()
	case errors.Is(err, services.ErrOtpNotVerified):
		return http.StatusForbidden, services.ErrOtpNotVerified.Error()
	case errors.Is(err, services.ErrPersistenceTimeout):
		return http.StatusGatewayTimeout, services.ErrPersistenceTimeout.Error()
	case errors.Is(err, services.ErrPersistence):
		return http.StatusInternalServerError, services.ErrPersistence.Error()
	}
	return http.StatusInternalServerError, "Internal server error"
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}

// respondResult answers the 2fa endpoints, which always speak
// {success, message}.
func (h *Handler) respondResult(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	_ = c.Error(err)
	c.JSON(status, services.Result{Success: false, Message: msg})
}
