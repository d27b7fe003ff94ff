package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-reservation/internal/ledger"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/pricing"
	"github.com/iliyamo/parking-reservation/internal/repository"
	"github.com/iliyamo/parking-reservation/internal/viewcache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventLog struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (e *eventLog) Emit(ev ledger.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) all() []ledger.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ledger.Event(nil), e.events...)
}

type fixture struct {
	store  *memStore
	cache  *memCache
	events *eventLog
	clock  *fakeClock
	ledger *ledger.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  newMemStore(),
		cache:  newMemCache(),
		events: &eventLog{},
		clock:  &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.ledger = ledger.New(f.store, f.cache, f.events, nil, ledger.WithClock(f.clock.Now))
	for id := uint64(1); id <= 50; id++ {
		f.store.addUser(id, fmt.Sprintf("user%d", id))
	}
	return f
}

func (f *fixture) lot(t *testing.T, name string, rateCents int64, capacity int) model.Lot {
	t.Helper()
	lot, err := f.ledger.CreateLot(context.Background(), ledger.LotInput{
		Name: name, Address: name + " street", PinCode: "560001", RateCents: rateCents, Capacity: capacity,
	})
	require.NoError(t, err)
	return lot
}

func Test_Reserve_TakesLowestAvailableSpot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, "Central", 10000, 3)

	first, err := f.ledger.Reserve(ctx, 1, lot.ID)
	require.NoError(t, err)
	second, err := f.ledger.Reserve(ctx, 2, lot.ID)
	require.NoError(t, err)

	assert.Equal(t, "A1", first.SpotLabel)
	assert.Equal(t, "A2", second.SpotLabel)
	assert.Equal(t, "Central", first.LotName)
	assert.Equal(t, int64(10000), first.RateCents)
	assert.True(t, first.Open())
	assert.Equal(t, f.clock.Now(), first.StartedAt)

	events := f.events.all()
	require.Len(t, events, 2)
	assert.Equal(t, ledger.KindReserved, events[0].Kind)
	assert.Equal(t, first.ID, events[0].ReservationID)
	assert.Equal(t, first.SpotID, events[0].SpotID)
	assert.Equal(t, "A1", events[0].SpotLabel)
	assert.NotEmpty(t, events[0].ID)
	assert.NotEqual(t, events[0].ID, events[1].ID)

	assert.Contains(t, f.cache.patterns(), viewcache.Lots)
	assert.Contains(t, f.cache.patterns(), viewcache.Spots)
	assertInvariants(t, f.store)
}

func Test_Reserve_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, "Small", 5000, 1)
	other := f.lot(t, "Other", 5000, 2)

	_, err := f.ledger.Reserve(ctx, 1, 999)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.ledger.Reserve(ctx, 999, lot.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.ledger.Reserve(ctx, 1, lot.ID)
	require.NoError(t, err)

	_, err = f.ledger.Reserve(ctx, 2, lot.ID)
	assert.ErrorIs(t, err, ledger.ErrNoAvailableCapacity)

	_, err = f.ledger.Reserve(ctx, 1, lot.ID)
	assert.ErrorIs(t, err, ledger.ErrDuplicateActiveReservation)
	_, err = f.ledger.Reserve(ctx, 1, other.ID)
	assert.ErrorIs(t, err, ledger.ErrDuplicateActiveReservation)

	assert.Len(t, f.events.all(), 1)
	assertInvariants(t, f.store)
}

func Test_Release_Billing(t *testing.T) {
	tests := []struct {
		name       string
		rateCents  int64
		stay       time.Duration
		wantCents  int64
		wantBilled float64
		wantMillis int64
	}{
		{name: "short stay billed as one hour", rateCents: 10000, stay: 10 * time.Minute, wantCents: 10000, wantBilled: 1.0, wantMillis: 3600000},
		{name: "linear above one hour", rateCents: 6000, stay: 150 * time.Minute, wantCents: 15000, wantBilled: 2.5, wantMillis: 9000000},
		{name: "rounded half up", rateCents: 100, stay: 90*time.Minute + 18*time.Second, wantCents: 151, wantBilled: 1.505, wantMillis: 5418000},
		{name: "free lot", rateCents: 0, stay: 5 * time.Hour, wantCents: 0, wantBilled: 5, wantMillis: 18000000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			lot := f.lot(t, "Billing", tt.rateCents, 1)

			res, err := f.ledger.Reserve(ctx, 7, lot.ID)
			require.NoError(t, err)
			f.clock.Advance(tt.stay)

			receipt, err := f.ledger.Release(ctx, 7, res.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCents, receipt.CostCents)
			assert.InDelta(t, tt.wantBilled, receipt.BilledHours, 1e-9)
			assert.Equal(t, tt.wantMillis, receipt.BilledMillis)
			assert.Equal(t, res.StartedAt.Add(tt.stay), receipt.EndedAt)
			assert.Equal(t, "A1", receipt.SpotLabel)

			events := f.events.all()
			require.Len(t, events, 2)
			released := events[1]
			assert.Equal(t, ledger.KindReleased, released.Kind)
			assert.Equal(t, tt.wantCents, released.CostCents)
			assert.InDelta(t, tt.wantBilled, released.BilledHours, 1e-9)
			require.NotNil(t, released.EndedAt)
			assert.Equal(t, receipt.EndedAt, *released.EndedAt)
			assertInvariants(t, f.store)
		})
	}
}

func Test_Release_RejectsForeignUnknownAndClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, "Central", 10000, 2)

	res, err := f.ledger.Reserve(ctx, 1, lot.ID)
	require.NoError(t, err)

	_, err = f.ledger.Release(ctx, 2, res.ID)
	assert.ErrorIs(t, err, ledger.ErrReservationNotFound)
	_, err = f.ledger.Release(ctx, 1, res.ID+100)
	assert.ErrorIs(t, err, ledger.ErrReservationNotFound)

	f.clock.Advance(2 * time.Hour)
	receipt, err := f.ledger.Release(ctx, 1, res.ID)
	require.NoError(t, err)
	closed := f.store.snapshot().res[res.ID]

	f.clock.Advance(5 * time.Hour)
	_, err = f.ledger.Release(ctx, 1, res.ID)
	assert.ErrorIs(t, err, ledger.ErrReservationNotFound)

	after := f.store.snapshot().res[res.ID]
	assert.Equal(t, closed, after)
	require.NotNil(t, after.CostCents)
	assert.Equal(t, receipt.CostCents, *after.CostCents)
	assert.Equal(t, receipt.EndedAt, *after.EndedAt)

	// the spot can be taken again once released
	again, err := f.ledger.Reserve(ctx, 1, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, "A1", again.SpotLabel)
	assertInvariants(t, f.store)
}

func Test_Release_InvalidTimeRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, "Central", 10000, 1)

	res, err := f.ledger.Reserve(ctx, 1, lot.ID)
	require.NoError(t, err)
	f.clock.Advance(-time.Minute)

	_, err = f.ledger.Release(ctx, 1, res.ID)
	assert.ErrorIs(t, err, ledger.ErrInvalidTimeRange)
	assert.True(t, f.store.snapshot().res[res.ID].Open())
	assertInvariants(t, f.store)
}

func Test_FailedTransactionLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, "Central", 10000, 1)
	boom := errors.New("disk on fire")
	f.store.failWith("InsertReservation", boom)

	_, err := f.ledger.Reserve(ctx, 1, lot.ID)
	require.ErrorIs(t, err, boom)

	st := f.store.snapshot()
	assert.Empty(t, st.res)
	for _, sp := range st.spots {
		assert.Equal(t, model.SpotAvailable, sp.Status)
	}
	assert.Empty(t, f.events.all())
	assertInvariants(t, f.store)
}

func Test_StoreConflictMapsToConcurrentModification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, "Central", 10000, 1)
	f.store.failWith("SetSpotStatus", repository.ErrConflict)

	_, err := f.ledger.Reserve(ctx, 1, lot.ID)
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
	assert.Empty(t, f.events.all())

	f.store.failWith("SetSpotStatus", nil)
	_, err = f.ledger.Reserve(ctx, 1, lot.ID)
	assert.NoError(t, err)
}

func Test_ResizeLot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, "Resize", 1000, 5)

	_, err := f.ledger.Reserve(ctx, 1, lot.ID)
	require.NoError(t, err)
	_, err = f.ledger.Reserve(ctx, 2, lot.ID)
	require.NoError(t, err)

	err = f.ledger.ResizeLot(ctx, lot.ID, 1)
	assert.ErrorIs(t, err, ledger.ErrCapacityBelowOccupied)
	assert.Len(t, spotsOf(f.store.snapshot(), lot.ID), 5)

	require.NoError(t, f.ledger.ResizeLot(ctx, lot.ID, 2))
	spots := spotsOf(f.store.snapshot(), lot.ID)
	require.Len(t, spots, 2)
	for _, sp := range spots {
		assert.Equal(t, model.SpotOccupied, sp.Status)
	}
	assert.Equal(t, 2, f.store.snapshot().lots[lot.ID].Capacity)
	assertInvariants(t, f.store)

	_, err = f.ledger.Reserve(ctx, 3, lot.ID)
	assert.ErrorIs(t, err, ledger.ErrNoAvailableCapacity)

	err = f.ledger.ResizeLot(ctx, 999, 3)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	err = f.ledger.ResizeLot(ctx, lot.ID, -1)
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func Test_ResizeLot_RemovesNewestAvailableAndContinuesNumbering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, "Numbering", 1000, 3)

	var ids []uint64
	for user := uint64(1); user <= 3; user++ {
		res, err := f.ledger.Reserve(ctx, user, lot.ID)
		require.NoError(t, err)
		ids = append(ids, res.ID)
	}
	// free A2 only
	_, err := f.ledger.Release(ctx, 2, ids[1])
	require.NoError(t, err)

	require.NoError(t, f.ledger.ResizeLot(ctx, lot.ID, 2))
	labels := func() []string {
		var out []string
		for _, sp := range spotsOf(f.store.snapshot(), lot.ID) {
			out = append(out, sp.Label)
		}
		return out
	}
	assert.Equal(t, []string{"A1", "A3"}, labels())

	require.NoError(t, f.ledger.ResizeLot(ctx, lot.ID, 4))
	assert.Equal(t, []string{"A1", "A3", "A4", "A5"}, labels())
	assertInvariants(t, f.store)
}

func Test_DeleteLot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, "Doomed", 1000, 2)

	res, err := f.ledger.Reserve(ctx, 1, lot.ID)
	require.NoError(t, err)

	err = f.ledger.DeleteLot(ctx, lot.ID)
	assert.ErrorIs(t, err, ledger.ErrCapacityBelowOccupied)
	assert.Len(t, spotsOf(f.store.snapshot(), lot.ID), 2)

	f.clock.Advance(time.Hour)
	_, err = f.ledger.Release(ctx, 1, res.ID)
	require.NoError(t, err)
	require.NoError(t, f.ledger.DeleteLot(ctx, lot.ID))

	st := f.store.snapshot()
	assert.NotContains(t, st.lots, lot.ID)
	assert.Empty(t, spotsOf(st, lot.ID))
	assert.Contains(t, st.res, res.ID, "history is kept")

	events := f.events.all()
	last := events[len(events)-1]
	assert.Equal(t, ledger.KindLotDeleted, last.Kind)
	assert.Equal(t, lot.ID, last.LotID)
	assert.Equal(t, "Doomed", last.LotName)

	assert.ErrorIs(t, f.ledger.DeleteLot(ctx, lot.ID), ledger.ErrNotFound)

	revenue, err := f.ledger.TotalRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), revenue)
	assertInvariants(t, f.store)
}

func Test_CreateAndUpdateLot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.CreateLot(ctx, ledger.LotInput{Name: " ", RateCents: 100, Capacity: 1})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = f.ledger.CreateLot(ctx, ledger.LotInput{Name: "Neg", RateCents: -1, Capacity: 1})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = f.ledger.CreateLot(ctx, ledger.LotInput{Name: "Huge", Capacity: ledger.MaxCapacity + 1})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)

	lot := f.lot(t, "Mall", 2500, 2)
	assert.Equal(t, []string{"A1", "A2"}, []string{
		spotsOf(f.store.snapshot(), lot.ID)[0].Label,
		spotsOf(f.store.snapshot(), lot.ID)[1].Label,
	})

	name := "Mall West"
	rate := int64(3000)
	capacity := 4
	updated, err := f.ledger.UpdateLot(ctx, lot.ID, ledger.LotPatch{Name: &name, RateCents: &rate, Capacity: &capacity})
	require.NoError(t, err)
	assert.Equal(t, "Mall West", updated.Name)
	assert.Equal(t, int64(3000), updated.RateCents)
	assert.Equal(t, 4, updated.Capacity)
	assert.Equal(t, lot.Address, updated.Address)
	assertInvariants(t, f.store)

	_, err = f.ledger.Reserve(ctx, 1, lot.ID)
	require.NoError(t, err)
	zero := 0
	_, err = f.ledger.UpdateLot(ctx, lot.ID, ledger.LotPatch{Name: &name, Capacity: &zero})
	assert.ErrorIs(t, err, ledger.ErrCapacityBelowOccupied)
	assert.Equal(t, 4, f.store.snapshot().lots[lot.ID].Capacity)

	_, err = f.ledger.UpdateLot(ctx, 999, ledger.LotPatch{Name: &name})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assertInvariants(t, f.store)
}

func Test_ConcurrentReservesNeverOverbook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, "Busy", 1000, 5)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for user := uint64(1); user <= 20; user++ {
		wg.Add(1)
		go func(user uint64) {
			defer wg.Done()
			_, err := f.ledger.Reserve(ctx, user, lot.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ledger.ErrNoAvailableCapacity):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(user)
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Equal(t, 15, full)
	assertInvariants(t, f.store)
}

func Test_ConcurrentReservesBySameUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.lot(t, "A", 1000, 5)
	b := f.lot(t, "B", 1000, 5)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, dups int
	)
	for i := 0; i < 10; i++ {
		lotID := a.ID
		if i%2 == 1 {
			lotID = b.ID
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Reserve(ctx, 9, lotID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, ledger.ErrDuplicateActiveReservation) {
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, dups)
	assertInvariants(t, f.store)
}

func Test_ConcurrentReleaseCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, "Race", 1000, 1)
	res, err := f.ledger.Reserve(ctx, 1, lot.ID)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, gone int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Release(ctx, 1, res.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, ledger.ErrReservationNotFound) {
				gone++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, gone)
	lots, err := f.ledger.ListLots(ctx)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, 1, lots[0].Available)
	assert.Equal(t, 0, lots[0].Occupied)
	assertInvariants(t, f.store)
}

// cachedLots composes the cache around the ledger the way the HTTP
// layer does.
func cachedLots(t *testing.T, f *fixture) []model.LotAvailability {
	t.Helper()
	ctx := context.Background()
	key := viewcache.Key(viewcache.Lots)
	var lots []model.LotAvailability
	if f.cache.Get(ctx, key, &lots) {
		return lots
	}
	stamp := f.cache.Stamp(ctx, viewcache.Lots)
	lots, err := f.ledger.ListLots(ctx)
	require.NoError(t, err)
	f.cache.Put(ctx, stamp, key, lots, time.Minute)
	return lots
}

func Test_CachedViewsFollowMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, "Cached", 1000, 2)

	assert.Equal(t, 2, cachedLots(t, f)[0].Available)
	// served from cache
	assert.Equal(t, 2, cachedLots(t, f)[0].Available)

	res, err := f.ledger.Reserve(ctx, 1, lot.ID)
	require.NoError(t, err)
	cached := cachedLots(t, f)
	fresh, err := f.ledger.ListLots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cached[0].Occupied)
	assert.Equal(t, fresh[0].Available, cached[0].Available)
	assert.Equal(t, fresh[0].Occupied, cached[0].Occupied)

	f.clock.Advance(time.Hour)
	_, err = f.ledger.Release(ctx, 1, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, cachedLots(t, f)[0].Occupied)

	require.NoError(t, f.ledger.ResizeLot(ctx, lot.ID, 4))
	assert.Equal(t, 4, cachedLots(t, f)[0].Available)
}

func Test_Reads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	central := f.lot(t, "Central Plaza", 1000, 4)
	f.lot(t, "Harbour", 1000, 2)

	res, err := f.ledger.Reserve(ctx, 3, central.ID)
	require.NoError(t, err)

	detail, err := f.ledger.LotDetail(ctx, central.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, detail.Available)
	assert.Equal(t, 1, detail.Occupied)
	assert.Len(t, detail.Spots, 4)
	_, err = f.ledger.LotDetail(ctx, 999)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	spots, err := f.ledger.ListSpots(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, spots, 6)

	dash, err := f.ledger.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, dash.Lots)
	assert.Equal(t, 6, dash.Spots)
	assert.Equal(t, 1, dash.Occupied)
	require.Len(t, dash.Usage, 2)
	assert.InDelta(t, 25.0, dash.Usage[0].Percent, 1e-9)
	assert.Zero(t, dash.Usage[1].Percent)

	users, err := f.ledger.ListUsers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, users)
	for _, u := range users {
		if u.ID == 3 {
			require.NotNil(t, u.CurrentSpotID)
			assert.Equal(t, res.SpotID, *u.CurrentSpotID)
		} else {
			assert.Nil(t, u.CurrentSpotID)
		}
	}

	history, err := f.ledger.UserReservations(ctx, 3)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "A1", history[0].SpotLabel)
	assert.Equal(t, "Central Plaza", history[0].LotName)

	found, err := f.ledger.Search(ctx, ledger.ScopeLots, "central")
	require.NoError(t, err)
	require.Len(t, found.Lots, 1)
	assert.Nil(t, found.Users)

	found, err = f.ledger.Search(ctx, "", "user3@example")
	require.NoError(t, err)
	require.Len(t, found.Users, 1)
	assert.Empty(t, found.Lots)

	_, err = f.ledger.Search(ctx, "cars", "x")
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = f.ledger.Search(ctx, "", "  ")
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func Test_SlowFillDoesNotOutliveInvalidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lot := f.lot(t, "Slow", 1000, 2)
	key := viewcache.Key(viewcache.Lots)

	// A reader misses and reads the store, then stalls before Put.
	var lots []model.LotAvailability
	require.False(t, f.cache.Get(ctx, key, &lots))
	stamp := f.cache.Stamp(ctx, viewcache.Lots)
	before, err := f.ledger.ListLots(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, before[0].Occupied)

	_, err = f.ledger.Reserve(ctx, 1, lot.ID)
	require.NoError(t, err)

	f.cache.Put(ctx, stamp, key, before, time.Minute)
	assert.False(t, f.cache.Get(ctx, key, &lots), "snapshot taken before the reserve must not be stored")

	cached := cachedLots(t, f)
	assert.Equal(t, 1, cached[0].Occupied)
	assert.Equal(t, 1, cachedLots(t, f)[0].Occupied)
}

func Test_LotRateIsCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.CreateLot(ctx, ledger.LotInput{Name: "Over", RateCents: pricing.MaxRateCents + 1, Capacity: 1})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)

	lot := f.lot(t, "Premium", pricing.MaxRateCents, 1)
	over := pricing.MaxRateCents + 1
	_, err = f.ledger.UpdateLot(ctx, lot.ID, ledger.LotPatch{RateCents: &over})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)

	res, err := f.ledger.Reserve(ctx, 1, lot.ID)
	require.NoError(t, err)
	f.clock.Advance(90 * time.Minute)
	receipt, err := f.ledger.Release(ctx, 1, res.ID)
	require.NoError(t, err)
	assert.Equal(t, pricing.MaxRateCents*3/2, receipt.CostCents)
	assertInvariants(t, f.store)
}
