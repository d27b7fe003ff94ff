package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports whether the service and its backing stores are
// reachable.  Redis being down degrades caching only, so it never fails
// the check.
type HealthHandler struct {
	DB    Pinger
	Redis *redis.Client
}

func NewHealthHandler(db Pinger, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{DB: db, Redis: rdb}
}

// Health handles GET /healthz.  It answers 503 when the database does not
// respond within two seconds.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	db := "up"
	if h.DB != nil {
		if err := h.DB.PingContext(ctx); err != nil {
			db, status, code = "down", "degraded", http.StatusServiceUnavailable
		}
	}
	cache := "disabled"
	if h.Redis != nil {
		cache = "up"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			cache = "down"
		}
	}
	return c.JSON(code, echo.Map{"status": status, "db": db, "cache": cache})
}
