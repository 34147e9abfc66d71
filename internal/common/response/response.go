package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
)

// Envelope is the JSON shape of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta carries pagination details.
type Meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

func Paginated(c *gin.Context, items interface{}, total int64, page, limit int) {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    items,
		Meta:    &Meta{Total: total, Page: page, Limit: limit, TotalPages: totalPages},
	})
}

func BadRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, string(domain.KindValidation), message)
}

// Unauthorized writes a 401 for requests without an authenticated caller.
func Unauthorized(c *gin.Context) {
	abort(c, http.StatusUnauthorized, "unauthenticated", "unauthorized")
}

// Error writes err with the status code of its kind. Errors without a kind are 500s
// and their message is not leaked.
func Error(c *gin.Context, err error) {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		_ = c.Error(err)
		abort(c, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	if appErr.Kind == domain.KindConcurrencyConflict {
		c.Header("Retry-After", "1")
	}
	abort(c, StatusFor(appErr.Kind), string(appErr.Kind), appErr.Message)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation, domain.KindCapacityExceeded, domain.KindRideNotAvailable:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		return http.StatusForbidden
	case domain.KindAlreadyProcessed, domain.KindInvalidTransition:
		return http.StatusConflict
	case domain.KindConcurrencyConflict:
		return http.StatusServiceUnavailable
	case domain.KindPaymentNotAuthorized:
		return http.StatusPaymentRequired
	case domain.KindPaymentCaptureFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message},
	})
}
