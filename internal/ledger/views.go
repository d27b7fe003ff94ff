package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/iliyamo/parking-reservation/internal/model"
)

// Search scopes accepted by Search.  An empty scope searches everything.
const (
	ScopeLots  = "lots"
	ScopeUsers = "users"
	ScopeSpots = "spots"
)

// LotDetail is a lot with its occupancy counts and every spot it owns.
type LotDetail struct {
	model.LotAvailability
	Spots []model.SpotView
}

// LotUsage reports how full a lot is.
type LotUsage struct {
	LotID    uint64
	Name     string
	Capacity int
	Occupied int
	Percent  float64
}

// Dashboard is the admin summary.
type Dashboard struct {
	model.Stats
	Usage []LotUsage
}

// SearchResult groups matches by kind.  Kinds outside the requested
// scope are nil.
type SearchResult struct {
	Lots  []model.LotAvailability
	Users []model.UserOverview
	Spots []model.SpotView
}

// The read operations below always go to the record store.  Callers
// that want cached projections compose viewcache around them.

// ListLots returns every lot with its available and occupied counts.
func (l *Ledger) ListLots(ctx context.Context) ([]model.LotAvailability, error) {
	lots, err := l.store.ListLotAvailability(ctx)
	if err != nil {
		return nil, storeError("list lots", err, nil)
	}
	return lots, nil
}

// ListSpots returns the spots of one lot, or of every lot when lotID is 0.
func (l *Ledger) ListSpots(ctx context.Context, lotID uint64) ([]model.SpotView, error) {
	spots, err := l.store.ListSpots(ctx, lotID)
	if err != nil {
		return nil, storeError("list spots", err, nil)
	}
	return spots, nil
}

func (l *Ledger) LotDetail(ctx context.Context, lotID uint64) (LotDetail, error) {
	lot, err := l.store.GetLot(ctx, lotID)
	if err != nil {
		return LotDetail{}, storeError("load lot", err, ErrNotFound)
	}
	spots, err := l.store.ListSpots(ctx, lotID)
	if err != nil {
		return LotDetail{}, storeError("list spots", err, nil)
	}
	d := LotDetail{LotAvailability: model.LotAvailability{Lot: lot}, Spots: spots}
	for _, s := range spots {
		if s.Status == model.SpotOccupied {
			d.Occupied++
		} else {
			d.Available++
		}
	}
	return d, nil
}

// Stats returns the dashboard counters plus per-lot utilisation.
func (l *Ledger) Stats(ctx context.Context) (Dashboard, error) {
	st, err := l.store.Stats(ctx)
	if err != nil {
		return Dashboard{}, storeError("stats", err, nil)
	}
	lots, err := l.store.ListLotAvailability(ctx)
	if err != nil {
		return Dashboard{}, storeError("list lots", err, nil)
	}
	d := Dashboard{Stats: st, Usage: make([]LotUsage, 0, len(lots))}
	for _, lot := range lots {
		u := LotUsage{LotID: lot.ID, Name: lot.Name, Capacity: lot.Capacity, Occupied: lot.Occupied}
		if total := lot.Available + lot.Occupied; total > 0 {
			u.Percent = float64(lot.Occupied) * 100 / float64(total)
		}
		d.Usage = append(d.Usage, u)
	}
	return d, nil
}

// TotalRevenue sums the cost of every closed reservation.
func (l *Ledger) TotalRevenue(ctx context.Context) (int64, error) {
	st, err := l.store.Stats(ctx)
	if err != nil {
		return 0, storeError("stats", err, nil)
	}
	return st.RevenueCents, nil
}

// UserReservations returns the user's reservations, newest first.
func (l *Ledger) UserReservations(ctx context.Context, userID uint64) ([]model.ReservationView, error) {
	out, err := l.store.ListReservationsByUser(ctx, userID)
	if err != nil {
		return nil, storeError("list reservations", err, nil)
	}
	return out, nil
}

// ListUsers returns every USER account with the spot it currently holds.
func (l *Ledger) ListUsers(ctx context.Context) ([]model.UserOverview, error) {
	out, err := l.store.ListUsers(ctx)
	if err != nil {
		return nil, storeError("list users", err, nil)
	}
	return out, nil
}

// Search looks term up in lots, users and spots.  scope restricts the
// search to one kind.
func (l *Ledger) Search(ctx context.Context, scope, term string) (SearchResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return SearchResult{}, fmt.Errorf("%w: search term is required", ErrInvalidInput)
	}
	var (
		res SearchResult
		err error
	)
	switch scope {
	case "", ScopeLots, ScopeUsers, ScopeSpots:
	default:
		return SearchResult{}, fmt.Errorf("%w: unknown search scope %q", ErrInvalidInput, scope)
	}
	if scope == "" || scope == ScopeLots {
		if res.Lots, err = l.store.SearchLots(ctx, term); err != nil {
			return SearchResult{}, storeError("search lots", err, nil)
		}
	}
	if scope == "" || scope == ScopeUsers {
		if res.Users, err = l.store.SearchUsers(ctx, term); err != nil {
			return SearchResult{}, storeError("search users", err, nil)
		}
	}
	if scope == "" || scope == ScopeSpots {
		if res.Spots, err = l.store.SearchSpots(ctx, term); err != nil {
			return SearchResult{}, storeError("search spots", err, nil)
		}
	}
	return res, nil
}
