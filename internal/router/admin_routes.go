package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/handler"
	"github.com/iliyamo/parking-reservation/internal/middleware"
	"github.com/iliyamo/parking-reservation/internal/model"
)

// RegisterAdmin registers lot management and reporting endpoints under
// /v1/admin.  Every route requires a valid JWT and the ADMIN role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
		limit,
	)

	g.POST("/lots", h.CreateLot)
	g.GET("/lots", h.ListLots)
	g.GET("/lots/:id", h.LotDetail)
	g.PUT("/lots/:id", h.UpdateLot)
	g.PUT("/lots/:id/capacity", h.ResizeLot)
	g.DELETE("/lots/:id", h.DeleteLot)

	g.GET("/users", h.ListUsers)
	g.GET("/search", h.Search)
	g.GET("/stats", h.Stats)
}
