package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/goalforge/internal/auth/domain"
	challengedomain "github.com/smallbiznis/goalforge/internal/challenge/domain"
	habitdomain "github.com/smallbiznis/goalforge/internal/habit/domain"
	progressdomain "github.com/smallbiznis/goalforge/internal/progress/domain"
	"github.com/smallbiznis/goalforge/internal/ratelimit"
	"github.com/smallbiznis/goalforge/internal/realtime"
	"github.com/smallbiznis/goalforge/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
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
		if status == http.StatusTooManyRequests {
			c.Header("Retry-After", retryAfterSeconds(lastErr.Err))
		}
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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, progressdomain.ErrAlreadyRecordedToday):
		return http.StatusBadRequest, errorPayload{
			Type:    "already_recorded_today",
			Message: "already recorded today",
		}
	case errors.Is(err, challengedomain.ErrMessageEmpty):
		return http.StatusBadRequest, errorPayload{
			Type:    "message_empty",
			Message: "message is empty",
		}
	case errors.Is(err, challengedomain.ErrMessageTooLong):
		return http.StatusBadRequest, errorPayload{
			Type:    "message_too_long",
			Message: "message is too long",
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, realtime.ErrUnauthenticated),
		errors.Is(err, authdomain.ErrMissingToken),
		errors.Is(err, authdomain.ErrInvalidToken),
		errors.Is(err, authdomain.ErrTokenExpired),
		errors.Is(err, authdomain.ErrInvalidSubject),
		errors.Is(err, authdomain.ErrNotConfigured):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, progressdomain.ErrNotOwner),
		errors.Is(err, challengedomain.ErrForbidden),
		errors.Is(err, realtime.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, challengedomain.ErrAlreadyJoined),
		errors.Is(err, challengedomain.ErrNotActive):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, realtime.ErrHubClosed),
		errors.Is(err, progressdomain.ErrStoreUnavailable),
		errors.Is(err, challengedomain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, strconv.Itoa(status) + ":" + code
}

func retryAfterSeconds(err error) string {
	wait := ratelimit.RetryAfter(err)
	if wait <= 0 {
		return "1"
	}
	return strconv.Itoa(int(math.Ceil(wait.Seconds())))
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, challengedomain.ErrAlreadyJoined):
		return "already joined"
	case errors.Is(err, challengedomain.ErrNotActive):
		return "challenge is not active"
	default:
		return "conflict"
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, realtime.ErrInvalidChannel):
		return true
	case isHabitValidationError(err),
		isProgressValidationError(err),
		isChallengeValidationError(err):
		return true
	default:
		return false
	}
}

func isHabitValidationError(err error) bool {
	return errors.Is(err, habitdomain.ErrInvalidUser) ||
		errors.Is(err, habitdomain.ErrInvalidID) ||
		errors.Is(err, habitdomain.ErrInvalidTitle) ||
		errors.Is(err, habitdomain.ErrInvalidCategory)
}

func isProgressValidationError(err error) bool {
	return errors.Is(err, progressdomain.ErrInvalidUser) ||
		errors.Is(err, progressdomain.ErrInvalidHabitID) ||
		errors.Is(err, progressdomain.ErrInvalidDays)
}

func isChallengeValidationError(err error) bool {
	return errors.Is(err, challengedomain.ErrInvalidUser) ||
		errors.Is(err, challengedomain.ErrInvalidID) ||
		errors.Is(err, challengedomain.ErrInvalidTitle) ||
		errors.Is(err, challengedomain.ErrInvalidDesc) ||
		errors.Is(err, challengedomain.ErrInvalidGoal) ||
		errors.Is(err, challengedomain.ErrInvalidDates) ||
		errors.Is(err, challengedomain.ErrInvalidScore)
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, habitdomain.ErrNotFound),
		errors.Is(err, progressdomain.ErrNotFound),
		errors.Is(err, challengedomain.ErrNotFound),
		errors.Is(err, realtime.ErrSessionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return pagination.ErrInvalidPageToken.Error()
	case errors.Is(err, realtime.ErrInvalidChannel):
		return realtime.ErrInvalidChannel.Error()
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
