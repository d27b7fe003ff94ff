package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/handler"
	"github.com/iliyamo/parking-reservation/internal/middleware"
	"github.com/iliyamo/parking-reservation/internal/model"
)

// RegisterParking registers the availability listings and the
// reserve/release endpoints.  Listings are readable by any authenticated
// account; reserving and releasing require the USER role.  limit is the
// rate limiter and runs after JWTAuth so it can key on the user id.
func RegisterParking(e *echo.Echo, h *handler.ParkingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret), limit)

	browse := middleware.RequireRole(model.RoleUser, model.RoleAdmin)
	g.GET("/lots", h.ListLots, browse)
	g.GET("/spots", h.ListSpots, browse)

	user := middleware.RequireRole(model.RoleUser)
	g.POST("/reservations", h.Reserve, user)
	g.POST("/reservations/:id/release", h.Release, user)
	g.GET("/my-reservations", h.MyReservations, user)
}
