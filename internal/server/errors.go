package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	collectordomain "github.com/ratepulse/ratepulse/internal/collector/domain"
	competitordomain "github.com/ratepulse/ratepulse/internal/competitor/domain"
	"github.com/ratepulse/ratepulse/internal/intraday"
	"github.com/ratepulse/ratepulse/internal/provider"
	quotadomain "github.com/ratepulse/ratepulse/internal/quota/domain"
	recdomain "github.com/ratepulse/ratepulse/internal/recommendation/domain"
	snapshotdomain "github.com/ratepulse/ratepulse/internal/snapshot/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrQuotaExceeded  = errors.New("quota_exceeded")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, recdomain.ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "already decided",
		}
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "quota_exceeded",
			Message: "search quota exhausted",
		}
	case errors.Is(err, collectordomain.ErrScanRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "manual scan limit reached",
		}
	case errors.Is(err, collectordomain.ErrScanInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "scan already running",
		}
	case errors.Is(err, provider.ErrRateLimited),
		errors.Is(err, provider.ErrUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_failure",
			Message: "rate provider unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, competitordomain.ErrInvalidHotelID),
		errors.Is(err, competitordomain.ErrInvalidID),
		errors.Is(err, competitordomain.ErrInvalidName),
		errors.Is(err, competitordomain.ErrInvalidToken),
		errors.Is(err, collectordomain.ErrInvalidHotelID),
		errors.Is(err, collectordomain.ErrInvalidCompetitor),
		errors.Is(err, quotadomain.ErrInvalidHotelID),
		errors.Is(err, recdomain.ErrInvalidHotelID),
		errors.Is(err, recdomain.ErrInvalidID),
		errors.Is(err, snapshotdomain.ErrInvalidFrequency),
		errors.Is(err, intraday.ErrInvalidHotelID):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, competitordomain.ErrNotFound),
		errors.Is(err, collectordomain.ErrCompetitorNotFound),
		errors.Is(err, recdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog feeds the request logger's error_type/error_code
// fields without leaking internals into the response path.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status == http.StatusBadGateway:
		return "upstream", payload.Type
	case status >= http.StatusInternalServerError:
		return "internal", payload.Type
	default:
		return "client", payload.Type
	}
}
