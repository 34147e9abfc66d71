package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Laju-Ride/service-booking/internal/application"
	"github.com/Laju-Ride/service-booking/internal/common/auth"
	"github.com/Laju-Ride/service-booking/internal/common/middleware"
	"github.com/Laju-Ride/service-booking/internal/common/response"
)

// AdminBookingHandler handles admin HTTP requests for booking management.
type AdminBookingHandler struct {
	service *application.BookingService
}

// NewAdminBookingHandler creates a new AdminBookingHandler.
func NewAdminBookingHandler(service *application.BookingService) *AdminBookingHandler {
	return &AdminBookingHandler{service: service}
}

// RegisterRoutes registers admin booking routes.
func (h *AdminBookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	adminRole := middleware.RequireRole(auth.RoleAdmin)

	admin := r.Group("/api/v1/admin")
	admin.Use(authMW, adminRole)
	{
		admin.GET("/bookings", h.ListBookings)
		admin.GET("/stats/bookings", h.BookingStats)
		admin.POST("/bookings/:id/complete", h.CompleteBooking)
		admin.POST("/bookings/:id/refund", h.RefundBooking)
	}
}

// ListBookings handles GET /api/v1/admin/bookings.
func (h *AdminBookingHandler) ListBookings(c *gin.Context) {
	page, limit := parsePagination(c)

	bookings, total, err := h.service.ListAllBookings(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, bookings, total, page, limit)
}

// BookingStats handles GET /api/v1/admin/stats/bookings.
func (h *AdminBookingHandler) BookingStats(c *gin.Context) {
	stats, err := h.service.GetBookingStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, stats)
}

// CompleteBooking handles POST /api/v1/admin/bookings/:id/complete.
func (h *AdminBookingHandler) CompleteBooking(c *gin.Context) {
	bookingID, ok := pathID(c, "booking")
	if !ok {
		return
	}

	result, err := h.service.CompleteBooking(c.Request.Context(), bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// RefundBooking handles POST /api/v1/admin/bookings/:id/refund.
func (h *AdminBookingHandler) RefundBooking(c *gin.Context) {
	bookingID, ok := pathID(c, "booking")
	if !ok {
		return
	}
	adminID, _, ok := caller(c)
	if !ok {
		return
	}

	result, err := h.service.RefundBooking(c.Request.Context(), bookingID, adminID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
