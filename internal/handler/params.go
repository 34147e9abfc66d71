package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Laju-Ride/service-booking/internal/common/auth"
	"github.com/Laju-Ride/service-booking/internal/common/middleware"
	"github.com/Laju-Ride/service-booking/internal/common/response"
)

// reasonBody is the optional JSON body of reject and cancel requests.
type reasonBody struct {
	Reason string `json:"reason" binding:"max=500"`
}

// parsePagination extracts page and limit query parameters with defaults.
func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	return page, limit
}

// pathID parses the :id path parameter, writing a 400 on failure.
func pathID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid "+what+" ID")
		return uuid.Nil, false
	}
	return id, true
}

// caller returns the authenticated user and whether they are an admin.
func caller(c *gin.Context) (uuid.UUID, bool, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c)
		return uuid.Nil, false, false
	}
	role, _ := middleware.GetUserRole(c)
	return userID, role == auth.RoleAdmin, true
}

// bindReason reads an optional reason body. An empty body is allowed.
func bindReason(c *gin.Context) (string, bool) {
	var body reasonBody
	if c.Request.ContentLength == 0 {
		return "", true
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return "", false
	}
	return body.Reason, true
}
