package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Laju-Ride/service-booking/internal/application"
	"github.com/Laju-Ride/service-booking/internal/common/auth"
	"github.com/Laju-Ride/service-booking/internal/common/middleware"
	"github.com/Laju-Ride/service-booking/internal/common/response"
)

// BookingHandler handles HTTP requests for booking operations.
type BookingHandler struct {
	service *application.BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(service *application.BookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

// RegisterRoutes registers all booking routes on the given router group.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	passengerRole := middleware.RequireRole(auth.RolePassenger)
	driverRole := middleware.RequireRole(auth.RoleDriver)

	bookings := r.Group("/api/v1/bookings")
	bookings.Use(authMW)
	{
		bookings.POST("", passengerRole, h.RequestBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.POST("/:id/authorize-payment", passengerRole, h.AuthorizePayment)
		bookings.POST("/:id/accept", driverRole, h.AcceptBooking)
		bookings.POST("/:id/reject", driverRole, h.RejectBooking)
		bookings.POST("/:id/cancel", h.CancelBooking)
	}
}

// RequestBooking handles POST /api/v1/bookings.
func (h *BookingHandler) RequestBooking(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}

	var req application.RequestBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.RequestBooking(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// ListBookings handles GET /api/v1/bookings: the caller's own bookings.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}

	page, limit := parsePagination(c)
	result, err := h.service.GetPassengerBookings(c.Request.Context(), userID, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// GetBooking handles GET /api/v1/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	bookingID, ok := pathID(c, "booking")
	if !ok {
		return
	}
	userID, isAdmin, ok := caller(c)
	if !ok {
		return
	}

	result, err := h.service.GetBooking(c.Request.Context(), bookingID, userID, isAdmin)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// AuthorizePayment handles POST /api/v1/bookings/:id/authorize-payment.
func (h *BookingHandler) AuthorizePayment(c *gin.Context) {
	bookingID, ok := pathID(c, "booking")
	if !ok {
		return
	}
	userID, _, ok := caller(c)
	if !ok {
		return
	}

	result, err := h.service.AuthorizePayment(c.Request.Context(), bookingID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// AcceptBooking handles POST /api/v1/bookings/:id/accept.
func (h *BookingHandler) AcceptBooking(c *gin.Context) {
	bookingID, ok := pathID(c, "booking")
	if !ok {
		return
	}
	driverID, _, ok := caller(c)
	if !ok {
		return
	}

	result, err := h.service.AcceptBooking(c.Request.Context(), bookingID, driverID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// RejectBooking handles POST /api/v1/bookings/:id/reject.
func (h *BookingHandler) RejectBooking(c *gin.Context) {
	bookingID, ok := pathID(c, "booking")
	if !ok {
		return
	}
	driverID, _, ok := caller(c)
	if !ok {
		return
	}
	reason, ok := bindReason(c)
	if !ok {
		return
	}

	result, err := h.service.RejectBooking(c.Request.Context(), bookingID, driverID, reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel. Either the
// passenger or the ride's driver may cancel.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	bookingID, ok := pathID(c, "booking")
	if !ok {
		return
	}
	userID, _, ok := caller(c)
	if !ok {
		return
	}
	reason, ok := bindReason(c)
	if !ok {
		return
	}

	result, err := h.service.CancelBooking(c.Request.Context(), bookingID, userID, reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
