package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/server/platforms"
	"github.com/gin-gonic/gin"
)

// envelope is the uniform body of every response.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func success(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Code: 0, Message: "success", Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope{Code: status, Message: message})
}

// statusOf maps an error from the service layer onto an HTTP status and the
// message safe to show to the caller.
func statusOf(err error) (int, string) {
	var pe *platforms.Error
	switch {
	case errors.Is(err, common.ErrSelfApproval):
		return http.StatusForbidden, common.ErrSelfApproval.Error()
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, common.ErrInvalidTransition), errors.Is(err, common.ErrStatusConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnprocessableEntity, "account token expired, reconnect the account"
	case errors.As(err, &pe) && pe.Kind == platforms.KindPlatform:
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrUnsupportedPlatform),
		errors.Is(err, common.ErrInvalidState):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, common.ErrVaultLocked):
		return http.StatusServiceUnavailable, common.ErrVaultLocked.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), "request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	fail(c, status, msg)
}
