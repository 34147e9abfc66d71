package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind domain.Kind
		want int
	}{
		{domain.KindValidation, http.StatusBadRequest},
		{domain.KindCapacityExceeded, http.StatusBadRequest},
		{domain.KindNotFound, http.StatusNotFound},
		{domain.KindUnauthorized, http.StatusForbidden},
		{domain.KindAlreadyProcessed, http.StatusConflict},
		{domain.KindInvalidTransition, http.StatusConflict},
		{domain.KindConcurrencyConflict, http.StatusServiceUnavailable},
		{domain.KindPaymentNotAuthorized, http.StatusPaymentRequired},
		{domain.KindPaymentCaptureFailed, http.StatusBadGateway},
		{domain.Kind("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.kind))
		})
	}
}

func TestError_HidesUnclassifiedErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	Error(c, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestError_ConflictSetsRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	Error(c, domain.NewConflictError("ride is busy"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
