package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/ledger"
	"github.com/iliyamo/parking-reservation/internal/middleware"
)

var errNoUser = errors.New("invalid user_id in context")

// getUserID returns the authenticated user id set by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, errNoUser
	}
	return id, nil
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}

// ledgerError writes the HTTP response for an error returned by the
// ledger.  Every ledger error kind maps to its own status and message.
func ledgerError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, ledger.ErrReservationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	case errors.Is(err, ledger.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, ledger.ErrDuplicateActiveReservation):
		return c.JSON(http.StatusConflict, echo.Map{"error": "you already have an active reservation"})
	case errors.Is(err, ledger.ErrNoAvailableCapacity):
		return c.JSON(http.StatusConflict, echo.Map{"error": "no spots available in this lot"})
	case errors.Is(err, ledger.ErrCapacityBelowOccupied):
		return c.JSON(http.StatusConflict, echo.Map{"error": "occupied spots prevent this change"})
	case errors.Is(err, ledger.ErrConcurrentModification):
		return c.JSON(http.StatusConflict, echo.Map{"error": "concurrent modification", "retry": true})
	case errors.Is(err, ledger.ErrInvalidTimeRange):
		c.Logger().Errorf("billing failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "invalid time range"})
	}
	c.Logger().Errorf("request failed: %v", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
