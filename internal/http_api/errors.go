package http_api

import (
	"errors"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campaigndesk/campaigndesk/internal/guard"
	"github.com/campaigndesk/campaigndesk/internal/models"
	"github.com/campaigndesk/campaigndesk/internal/redistribute"
)

// statusOf maps an error from the console or the guard to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, guard.ErrLocked):
		return http.StatusLocked
	case errors.Is(err, guard.ErrDenied):
		return http.StatusUnauthorized
	case errors.Is(err, guard.ErrAttemptInFlight),
		errors.Is(err, models.ErrConflict),
		errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrUnknownField),
		errors.Is(err, models.ErrInvalidValue),
		errors.Is(err, redistribute.ErrInvalidInput),
		errors.Is(err, redistribute.ErrUndefinedRedistribution):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrExternalStore):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the standard error body. Store and unexpected
// failures are logged and answered with a generic message.
func (s *HTTPServer) respondError(c *gin.Context, err error) {
	status := statusOf(err)
	body := gin.H{"success": false}

	switch status {
	case http.StatusUnauthorized:
		body["error"] = guard.ErrDenied.Error()
	case http.StatusLocked:
		body["error"] = guard.ErrLocked.Error()
		var locked *guard.LockedError
		if errors.As(err, &locked) {
			body["retry_after_seconds"] = retryAfter(locked)
			body["unlock_at"] = locked.UnlockAt
		}
	case http.StatusBadGateway:
		s.logger.Error("Store failure", "path", c.FullPath(), "error", err)
		body["error"] = "storage unavailable, please retry"
	case http.StatusInternalServerError:
		s.logger.Error("Request failed", "path", c.FullPath(), "error", err)
		body["error"] = "internal error"
	default:
		body["error"] = err.Error()
	}
	c.JSON(status, body)
}

func retryAfter(locked *guard.LockedError) int64 {
	return int64(math.Ceil(locked.Remaining.Seconds()))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   msg,
	})
}
