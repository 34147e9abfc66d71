package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Laju-Ride/service-booking/internal/application"
	"github.com/Laju-Ride/service-booking/internal/common/auth"
	"github.com/Laju-Ride/service-booking/internal/common/domain"
	"github.com/Laju-Ride/service-booking/internal/common/middleware"
	"github.com/Laju-Ride/service-booking/internal/common/response"
)

// RideHandler handles HTTP requests for ride inventory operations.
type RideHandler struct {
	rides    *application.RideService
	bookings *application.BookingService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rides *application.RideService, bookings *application.BookingService) *RideHandler {
	return &RideHandler{rides: rides, bookings: bookings}
}

// RegisterRoutes registers all ride routes.
func (h *RideHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	driverRole := middleware.RequireRole(auth.RoleDriver)

	rides := r.Group("/api/v1/rides")
	rides.Use(authMW)
	{
		rides.POST("", driverRole, h.CreateRide)
		rides.GET("", h.ListRides)
		rides.GET("/:id", h.GetRide)
		rides.PATCH("/:id/capacity", driverRole, h.UpdateCapacity)
		rides.POST("/:id/cancel", driverRole, h.CancelRide)
		rides.POST("/:id/complete", driverRole, h.CompleteRide)
		rides.GET("/:id/bookings", driverRole, h.RideBookings)
	}
}

// CreateRide handles POST /api/v1/rides.
func (h *RideHandler) CreateRide(c *gin.Context) {
	driverID, _, ok := caller(c)
	if !ok {
		return
	}

	var req application.CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.rides.CreateRide(c.Request.Context(), driverID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// ListRides handles GET /api/v1/rides. With ?mine=true a driver sees their
// own rides; otherwise active rides are listed by departure.
func (h *RideHandler) ListRides(c *gin.Context) {
	userID, _, ok := caller(c)
	if !ok {
		return
	}
	page, limit := parsePagination(c)

	var (
		result *domain.PaginatedResult[application.RideDTO]
		err    error
	)
	if c.Query("mine") == "true" {
		result, err = h.rides.ListDriverRides(c.Request.Context(), userID, page, limit)
	} else {
		result, err = h.rides.ListActiveRides(c.Request.Context(), page, limit)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// GetRide handles GET /api/v1/rides/:id.
func (h *RideHandler) GetRide(c *gin.Context) {
	rideID, ok := pathID(c, "ride")
	if !ok {
		return
	}

	result, err := h.rides.GetRide(c.Request.Context(), rideID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// UpdateCapacity handles PATCH /api/v1/rides/:id/capacity.
func (h *RideHandler) UpdateCapacity(c *gin.Context) {
	rideID, ok := pathID(c, "ride")
	if !ok {
		return
	}
	driverID, _, ok := caller(c)
	if !ok {
		return
	}

	var req application.UpdateCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.rides.UpdateCapacity(c.Request.Context(), rideID, driverID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// CancelRide handles POST /api/v1/rides/:id/cancel.
func (h *RideHandler) CancelRide(c *gin.Context) {
	rideID, ok := pathID(c, "ride")
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

	result, err := h.rides.CancelRide(c.Request.Context(), rideID, driverID, reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// CompleteRide handles POST /api/v1/rides/:id/complete.
func (h *RideHandler) CompleteRide(c *gin.Context) {
	rideID, ok := pathID(c, "ride")
	if !ok {
		return
	}
	driverID, _, ok := caller(c)
	if !ok {
		return
	}

	result, err := h.rides.CompleteRide(c.Request.Context(), rideID, driverID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// RideBookings handles GET /api/v1/rides/:id/bookings.
func (h *RideHandler) RideBookings(c *gin.Context) {
	rideID, ok := pathID(c, "ride")
	if !ok {
		return
	}
	driverID, isAdmin, ok := caller(c)
	if !ok {
		return
	}

	result, err := h.bookings.GetRideBookings(c.Request.Context(), rideID, driverID, isAdmin)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
