package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	jobdomain "github.com/studioordo/backoffice/internal/job/domain"
	ledgerdomain "github.com/studioordo/backoffice/internal/ledger/domain"
	payoutdomain "github.com/studioordo/backoffice/internal/payout/domain"
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
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRequest = errors.New("invalid_request")
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
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, jobdomain.ErrUnknownJobType),
		errors.Is(err, jobdomain.ErrInvalidMaxRetries):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: err.Error()}

	case errors.Is(err, ledgerdomain.ErrConfirmRequired),
		errors.Is(err, payoutdomain.ErrConfirmRequired):
		return http.StatusBadRequest, errorPayload{Type: "confirm_required", Message: "confirm is required"}

	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized"}

	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "forbidden"}

	case errors.Is(err, jobdomain.ErrJobNotFound),
		errors.Is(err, ledgerdomain.ErrDealNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}

	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}
