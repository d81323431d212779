package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/internal/service"
	logger "github.com/Gopher0727/BirthdayBox/middleware/log"
)

// statusFor maps a service error to its HTTP status and the short message
// shown to the client. Details stay in the logs.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrMessageMismatch):
		return http.StatusBadRequest, service.ErrMessageMismatch.Error()
	case errors.Is(err, service.ErrPurchaseNotCompleted):
		return http.StatusForbidden, "purchase must be completed first"
	case errors.Is(err, service.ErrBypassDisabled):
		return http.StatusForbidden, service.ErrBypassDisabled.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict, service.ErrInvalidTransition.Error()
	case errors.Is(err, service.ErrDelivery):
		return http.StatusBadGateway, "delivery failed, please try again"
	case errors.Is(err, service.ErrPaymentUnavailable), errors.Is(err, service.ErrChannelUnavailable):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	case errors.Is(err, service.ErrGeneration):
		return http.StatusInternalServerError, "could not generate your message right now, please try again"
	default:
		return http.StatusInternalServerError, "something went wrong, please try again"
	}
}

func writeError(c *gin.Context, log *logger.Logger, err error) {
	status, msg := statusFor(err)
	fields := []zap.Field{
		zap.String("route", c.FullPath()),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		log.ErrorContext(c.Request.Context(), "request failed", fields...)
	} else {
		log.DebugContext(c.Request.Context(), "request rejected", fields...)
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// pathID reads a positive integer path parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}
