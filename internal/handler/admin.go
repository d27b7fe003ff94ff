package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/ledger"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/pricing"
	"github.com/iliyamo/parking-reservation/internal/viewcache"
)

// LotAdmin is the part of the ledger used by admin endpoints.
type LotAdmin interface {
	CreateLot(ctx context.Context, in ledger.LotInput) (model.Lot, error)
	UpdateLot(ctx context.Context, lotID uint64, patch ledger.LotPatch) (model.Lot, error)
	ResizeLot(ctx context.Context, lotID uint64, newCapacity int) error
	DeleteLot(ctx context.Context, lotID uint64) error
	LotDetail(ctx context.Context, lotID uint64) (ledger.LotDetail, error)
	ListLots(ctx context.Context) ([]model.LotAvailability, error)
	ListUsers(ctx context.Context) ([]model.UserOverview, error)
	Search(ctx context.Context, scope, term string) (ledger.SearchResult, error)
	Stats(ctx context.Context) (ledger.Dashboard, error)
}

// AdminHandler serves lot management, user listing, search and the
// dashboard.  All routes require the ADMIN role.
type AdminHandler struct {
	Ledger LotAdmin
	Cache  viewcache.Cache
	TTL    time.Duration
}

func NewAdminHandler(l LotAdmin, cache viewcache.Cache, ttl time.Duration) *AdminHandler {
	if l == nil {
		panic("nil ledger passed to NewAdminHandler")
	}
	if cache == nil {
		cache = viewcache.Nop{}
	}
	return &AdminHandler{Ledger: l, Cache: cache, TTL: ttl}
}

// lotBody is accepted by create and update.  The rate may be given in
// cents or as a decimal price per hour; cents win when both are present.
type lotBody struct {
	Name      *string  `json:"name"`
	Address   *string  `json:"address"`
	PinCode   *string  `json:"pin_code"`
	Price     *float64 `json:"price_per_hour"`
	RateCents *int64   `json:"rate_cents"`
	Capacity  *int     `json:"capacity"`
}

func (b lotBody) rate() (*int64, error) {
	if b.RateCents != nil {
		return b.RateCents, nil
	}
	if b.Price == nil {
		return nil, nil
	}
	cents, err := pricing.FloatToCents(*b.Price)
	if err != nil {
		return nil, err
	}
	return &cents, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// CreateLot handles POST /v1/admin/lots.
func (h *AdminHandler) CreateLot(c echo.Context) error {
	var body lotBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	rate, err := body.rate()
	if err != nil || rate == nil || body.Capacity == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name, price_per_hour and capacity are required"})
	}
	lot, err := h.Ledger.CreateLot(c.Request().Context(), ledger.LotInput{
		Name:      deref(body.Name),
		Address:   deref(body.Address),
		PinCode:   deref(body.PinCode),
		RateCents: *rate,
		Capacity:  *body.Capacity,
	})
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(http.StatusCreated, toLotDTO(model.LotAvailability{Lot: lot, Available: lot.Capacity}))
}

// ListLots handles GET /v1/admin/lots; it shares the cached projection
// with the public listing.
func (h *AdminHandler) ListLots(c echo.Context) error {
	lots, err := cachedLots(c, h.Cache, h.TTL, h.Ledger.ListLots)
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"lots": lots})
}

// LotDetail handles GET /v1/admin/lots/:id.
func (h *AdminHandler) LotDetail(c echo.Context) error {
	lotID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lot id"})
	}
	ctx := c.Request().Context()
	key := viewcache.Key(viewcache.Lots, lotID)
	var out lotDetailDTO
	if !wantFresh(c) && h.Cache.Get(ctx, key, &out) {
		cacheStatus(c, true)
		return c.JSON(http.StatusOK, out)
	}
	stamp := h.Cache.Stamp(ctx, viewcache.Lots)
	d, err := h.Ledger.LotDetail(ctx, lotID)
	if err != nil {
		return ledgerError(c, err)
	}
	out = lotDetailDTO{lotDTO: toLotDTO(d.LotAvailability), Spots: toSpotDTOs(d.Spots)}
	h.Cache.Put(ctx, stamp, key, out, h.TTL)
	cacheStatus(c, false)
	return c.JSON(http.StatusOK, out)
}

// UpdateLot handles PUT /v1/admin/lots/:id.  Omitted fields are kept.
// The response carries the lot's counts after the change.
func (h *AdminHandler) UpdateLot(c echo.Context) error {
	lotID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lot id"})
	}
	var body lotBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	rate, err := body.rate()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid price"})
	}
	ctx := c.Request().Context()
	if _, err := h.Ledger.UpdateLot(ctx, lotID, ledger.LotPatch{
		Name:      body.Name,
		Address:   body.Address,
		PinCode:   body.PinCode,
		RateCents: rate,
		Capacity:  body.Capacity,
	}); err != nil {
		return ledgerError(c, err)
	}
	d, err := h.Ledger.LotDetail(ctx, lotID)
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(http.StatusOK, toLotDTO(d.LotAvailability))
}

// ResizeLot handles PUT /v1/admin/lots/:id/capacity.
func (h *AdminHandler) ResizeLot(c echo.Context) error {
	lotID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lot id"})
	}
	var body struct {
		Capacity *int `json:"capacity"`
	}
	if err := c.Bind(&body); err != nil || body.Capacity == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "capacity is required"})
	}
	if err := h.Ledger.ResizeLot(c.Request().Context(), lotID, *body.Capacity); err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": lotID, "capacity": *body.Capacity})
}

// DeleteLot handles DELETE /v1/admin/lots/:id.
func (h *AdminHandler) DeleteLot(c echo.Context) error {
	lotID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lot id"})
	}
	if err := h.Ledger.DeleteLot(c.Request().Context(), lotID); err != nil {
		return ledgerError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListUsers handles GET /v1/admin/users.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	users, err := h.Ledger.ListUsers(c.Request().Context())
	if err != nil {
		return ledgerError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"users": toUserDTOs(users)})
}

// Search handles GET /v1/admin/search?q=term&type=lots|users|spots.
// Without type every kind is searched.
func (h *AdminHandler) Search(c echo.Context) error {
	scope := c.QueryParam("type")
	res, err := h.Ledger.Search(c.Request().Context(), scope, c.QueryParam("q"))
	if err != nil {
		return ledgerError(c, err)
	}
	switch scope {
	case ledger.ScopeLots:
		return c.JSON(http.StatusOK, echo.Map{"lots": toLotDTOs(res.Lots)})
	case ledger.ScopeUsers:
		return c.JSON(http.StatusOK, echo.Map{"users": toUserDTOs(res.Users)})
	case ledger.ScopeSpots:
		return c.JSON(http.StatusOK, echo.Map{"spots": toSpotDTOs(res.Spots)})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"lots":  toLotDTOs(res.Lots),
		"users": toUserDTOs(res.Users),
		"spots": toSpotDTOs(res.Spots),
	})
}

// Stats handles GET /v1/admin/stats.
func (h *AdminHandler) Stats(c echo.Context) error {
	d, err := h.Ledger.Stats(c.Request().Context())
	if err != nil {
		return ledgerError(c, err)
	}
	usage := make([]echo.Map, 0, len(d.Usage))
	for _, u := range d.Usage {
		usage = append(usage, echo.Map{
			"lot_id":   u.LotID,
			"name":     u.Name,
			"capacity": u.Capacity,
			"occupied": u.Occupied,
			"percent":  u.Percent,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"users":         d.Users,
		"lots":          d.Lots,
		"spots":         d.Spots,
		"available":     d.Available,
		"occupied":      d.Occupied,
		"reservations":  d.Reservations,
		"revenue_cents": d.RevenueCents,
		"revenue":       pricing.CentsToFloat(d.RevenueCents),
		"utilisation":   usage,
	})
}
