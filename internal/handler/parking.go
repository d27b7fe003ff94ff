package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/ledger"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/viewcache"
)

// Occupancy is the part of the ledger used by user-facing endpoints.
type Occupancy interface {
	Reserve(ctx context.Context, userID, lotID uint64) (ledger.Reservation, error)
	Release(ctx context.Context, userID, reservationID uint64) (ledger.Receipt, error)
	ListLots(ctx context.Context) ([]model.LotAvailability, error)
	ListSpots(ctx context.Context, lotID uint64) ([]model.SpotView, error)
	UserReservations(ctx context.Context, userID uint64) ([]model.ReservationView, error)
}

// ParkingHandler serves availability listings and the reserve/release
// endpoints.  Listings are read through the view cache: the handler asks
// the cache first, falls back to the ledger on a miss and stores the
// result unless the ledger invalidated the projection in the meantime.  Passing ?fresh=true skips the cache lookup.
type ParkingHandler struct {
	Ledger Occupancy
	Cache  viewcache.Cache
	TTL    time.Duration
}

func NewParkingHandler(l Occupancy, cache viewcache.Cache, ttl time.Duration) *ParkingHandler {
	if l == nil {
		panic("nil ledger passed to NewParkingHandler")
	}
	if cache == nil {
		cache = viewcache.Nop{}
	}
	return &ParkingHandler{Ledger: l, Cache: cache, TTL: ttl}
}

func wantFresh(c echo.Context) bool {
	fresh, _ := strconv.ParseBool(c.QueryParam("fresh"))
	return fresh
}

func cacheStatus(c echo.Context, hit bool) {
	v := "MISS"
	if hit {
		v = "HIT"
	}
	c.Response().Header().Set("X-Cache", v)
}

// cachedLots returns the availability projection of every lot, from the
// cache when possible.
func cachedLots(c echo.Context, cache viewcache.Cache, ttl time.Duration,
	list func(context.Context) ([]model.LotAvailability, error)) ([]lotDTO, error) {
	ctx := c.Request().Context()
	key := viewcache.Key(viewcache.Lots)
	var out []lotDTO
	if !wantFresh(c) && cache.Get(ctx, key, &out) {
		cacheStatus(c, true)
		return out, nil
	}
	stamp := cache.Stamp(ctx, viewcache.Lots)
	lots, err := list(ctx)
	if err != nil {
		return nil, err
	}
	out = toLotDTOs(lots)
	cache.Put(ctx, stamp, key, out, ttl)
	cacheStatus(c, false)
	return out, nil
}

// ListLots handles GET /v1/lots.
func (h *ParkingHandler) ListLots(c echo.Context) error {
	lots, err := cachedLots(c, h.Cache, h.TTL, h.Ledger.ListLots)
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"lots": lots})
}

// ListSpots handles GET /v1/spots with an optional ?lot_id filter.
func (h *ParkingHandler) ListSpots(c echo.Context) error {
	var lotID uint64
	if raw := c.QueryParam("lot_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lot_id"})
		}
		lotID = id
	}
	key := viewcache.Key(viewcache.Spots)
	if lotID != 0 {
		key = viewcache.Key(viewcache.Spots, lotID)
	}

	ctx := c.Request().Context()
	var out []spotDTO
	if !wantFresh(c) && h.Cache.Get(ctx, key, &out) {
		cacheStatus(c, true)
		return c.JSON(http.StatusOK, echo.Map{"spots": out})
	}
	stamp := h.Cache.Stamp(ctx, viewcache.Spots)
	spots, err := h.Ledger.ListSpots(ctx, lotID)
	if err != nil {
		return ledgerError(c, err)
	}
	out = toSpotDTOs(spots)
	h.Cache.Put(ctx, stamp, key, out, h.TTL)
	cacheStatus(c, false)
	return c.JSON(http.StatusOK, echo.Map{"spots": out})
}

// Reserve handles POST /v1/reservations.  The body names the lot; the
// ledger picks the spot.
func (h *ParkingHandler) Reserve(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		LotID uint64 `json:"lot_id"`
	}
	if err := c.Bind(&body); err != nil || body.LotID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "lot_id is required"})
	}
	res, err := h.Ledger.Reserve(c.Request().Context(), userID, body.LotID)
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"reservation": toReservationDTO(model.ReservationView{
			Reservation: res.Reservation,
			SpotLabel:   res.SpotLabel,
			LotName:     res.LotName,
		}),
		"rate_cents": res.RateCents,
	})
}

// Release handles POST /v1/reservations/:id/release.
func (h *ParkingHandler) Release(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	resID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	receipt, err := h.Ledger.Release(c.Request().Context(), userID, resID)
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(http.StatusOK, toReceiptDTO(receipt))
}

// MyReservations handles GET /v1/my-reservations.
func (h *ParkingHandler) MyReservations(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	views, err := h.Ledger.UserReservations(c.Request().Context(), userID)
	if err != nil {
		return ledgerError(c, err)
	}
	out := make([]reservationDTO, 0, len(views))
	for _, v := range views {
		out = append(out, toReservationDTO(v))
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out})
}
