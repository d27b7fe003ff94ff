package ledger_test

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/repository"
	"github.com/iliyamo/parking-reservation/internal/viewcache"
)

// memState is the whole database.  Transactions work on a clone and
// swap it in on commit, so a failed transaction leaves nothing behind.
type memState struct {
	users    map[uint64]model.User
	lots     map[uint64]model.Lot
	spots    map[uint64]model.Spot
	res      map[uint64]model.Reservation
	nextLot  uint64
	nextSpot uint64
	nextRes  uint64
}

func (s *memState) clone() *memState {
	c := &memState{
		users:    make(map[uint64]model.User, len(s.users)),
		lots:     make(map[uint64]model.Lot, len(s.lots)),
		spots:    make(map[uint64]model.Spot, len(s.spots)),
		res:      make(map[uint64]model.Reservation, len(s.res)),
		nextLot:  s.nextLot,
		nextSpot: s.nextSpot,
		nextRes:  s.nextRes,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.lots {
		c.lots[k] = v
	}
	for k, v := range s.spots {
		c.spots[k] = v
	}
	for k, v := range s.res {
		c.res[k] = v
	}
	return c
}

// memStore is a serialisable in-memory repository.Store.  One mutex
// serialises every transaction and read.
type memStore struct {
	mu     sync.Mutex
	state  *memState
	failOn map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		state: &memState{
			users: map[uint64]model.User{},
			lots:  map[uint64]model.Lot{},
			spots: map[uint64]model.Spot{},
			res:   map[uint64]model.Reservation{},
		},
		failOn: map[string]error{},
	}
}

func (s *memStore) addUser(id uint64, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[id] = model.User{ID: id, Username: username, Email: username + "@example.com", Role: model.RoleUser}
}

// failWith makes the named Tx method return err until cleared.
func (s *memStore) failWith(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOn, op)
		return
	}
	s.failOn[op] = err
}

func (s *memStore) snapshot() *memState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *memStore) WithinTx(_ context.Context, work func(repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{st: s.state.clone(), failOn: s.failOn}
	if err := work(tx); err != nil {
		return err
	}
	s.state = tx.st
	return nil
}

type memTx struct {
	st     *memState
	failOn map[string]error
}

func (t *memTx) LockUser(_ context.Context, userID uint64) (model.User, error) {
	if err := t.failOn["LockUser"]; err != nil {
		return model.User{}, err
	}
	u, ok := t.st.users[userID]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (t *memTx) LotForShare(ctx context.Context, lotID uint64) (model.Lot, error) {
	return t.LotForUpdate(ctx, lotID)
}

func (t *memTx) LotForUpdate(_ context.Context, lotID uint64) (model.Lot, error) {
	l, ok := t.st.lots[lotID]
	if !ok {
		return model.Lot{}, repository.ErrNotFound
	}
	return l, nil
}

func (t *memTx) InsertLot(_ context.Context, lot *model.Lot) error {
	t.st.nextLot++
	lot.ID = t.st.nextLot
	lot.CreatedAt = time.Now().UTC()
	lot.UpdatedAt = lot.CreatedAt
	t.st.lots[lot.ID] = *lot
	return nil
}

func (t *memTx) UpdateLot(_ context.Context, lot model.Lot) error {
	if _, ok := t.st.lots[lot.ID]; !ok {
		return repository.ErrNotFound
	}
	t.st.lots[lot.ID] = lot
	return nil
}

func (t *memTx) DeleteLot(_ context.Context, lotID uint64) error {
	if _, ok := t.st.lots[lotID]; !ok {
		return repository.ErrNotFound
	}
	delete(t.st.lots, lotID)
	return nil
}

func (t *memTx) FirstAvailableSpot(ctx context.Context, lotID uint64) (model.Spot, error) {
	spots, _ := t.SpotsForUpdate(ctx, lotID)
	for _, sp := range spots {
		if sp.Status == model.SpotAvailable {
			return sp, nil
		}
	}
	return model.Spot{}, repository.ErrNotFound
}

func (t *memTx) SpotForUpdate(_ context.Context, spotID uint64) (model.Spot, error) {
	sp, ok := t.st.spots[spotID]
	if !ok {
		return model.Spot{}, repository.ErrNotFound
	}
	return sp, nil
}

func (t *memTx) SpotsForUpdate(_ context.Context, lotID uint64) ([]model.Spot, error) {
	return spotsOf(t.st, lotID), nil
}

func (t *memTx) SetSpotStatus(_ context.Context, spotID uint64, from, to string) error {
	if err := t.failOn["SetSpotStatus"]; err != nil {
		return err
	}
	sp, ok := t.st.spots[spotID]
	if !ok || sp.Status != from {
		return repository.ErrConflict
	}
	sp.Status = to
	sp.Version++
	t.st.spots[spotID] = sp
	return nil
}

func (t *memTx) InsertSpots(_ context.Context, lotID uint64, numbers []int) error {
	for _, n := range numbers {
		t.st.nextSpot++
		t.st.spots[t.st.nextSpot] = model.Spot{
			ID:     t.st.nextSpot,
			LotID:  lotID,
			Number: n,
			Label:  model.SpotLabel(n),
			Status: model.SpotAvailable,
		}
	}
	return nil
}

func (t *memTx) DeleteSpots(_ context.Context, spotIDs []uint64) error {
	for _, id := range spotIDs {
		if sp, ok := t.st.spots[id]; !ok || sp.Status != model.SpotAvailable {
			return repository.ErrConflict
		}
	}
	for _, id := range spotIDs {
		delete(t.st.spots, id)
	}
	return nil
}

func (t *memTx) OpenReservationByUser(_ context.Context, userID uint64) (model.Reservation, error) {
	for _, r := range t.st.res {
		if r.UserID == userID && r.Open() {
			return r, nil
		}
	}
	return model.Reservation{}, repository.ErrNotFound
}

func (t *memTx) OpenReservationForUpdate(_ context.Context, reservationID, userID uint64) (model.Reservation, error) {
	r, ok := t.st.res[reservationID]
	if !ok || r.UserID != userID || !r.Open() {
		return model.Reservation{}, repository.ErrNotFound
	}
	return r, nil
}

func (t *memTx) InsertReservation(_ context.Context, res *model.Reservation) error {
	if err := t.failOn["InsertReservation"]; err != nil {
		return err
	}
	for _, r := range t.st.res {
		if r.Open() && (r.UserID == res.UserID || r.SpotID == res.SpotID) {
			return repository.ErrConflict
		}
	}
	t.st.nextRes++
	res.ID = t.st.nextRes
	t.st.res[res.ID] = *res
	return nil
}

func (t *memTx) CloseReservation(_ context.Context, reservationID uint64, endedAt time.Time, costCents, billedMillis int64) error {
	r, ok := t.st.res[reservationID]
	if !ok || !r.Open() {
		return repository.ErrConflict
	}
	r.EndedAt = &endedAt
	r.CostCents = &costCents
	r.BilledMillis = &billedMillis
	t.st.res[reservationID] = r
	return nil
}

func spotsOf(st *memState, lotID uint64) []model.Spot {
	var out []model.Spot
	for _, sp := range st.spots {
		if lotID == 0 || sp.LotID == lotID {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func availability(st *memState, lot model.Lot) model.LotAvailability {
	a := model.LotAvailability{Lot: lot}
	for _, sp := range spotsOf(st, lot.ID) {
		if sp.Status == model.SpotOccupied {
			a.Occupied++
		} else {
			a.Available++
		}
	}
	return a
}

func sortedLots(st *memState) []model.Lot {
	out := make([]model.Lot, 0, len(st.lots))
	for _, l := range st.lots {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) GetLot(_ context.Context, lotID uint64) (model.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.state.lots[lotID]
	if !ok {
		return model.Lot{}, repository.ErrNotFound
	}
	return l, nil
}

func (s *memStore) ListLotAvailability(_ context.Context) ([]model.LotAvailability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.LotAvailability, 0)
	for _, l := range sortedLots(s.state) {
		out = append(out, availability(s.state, l))
	}
	return out, nil
}

func (s *memStore) SearchLots(_ context.Context, term string) ([]model.LotAvailability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	term = strings.ToLower(term)
	out := make([]model.LotAvailability, 0)
	for _, l := range sortedLots(s.state) {
		if strings.Contains(strings.ToLower(l.Name), term) ||
			strings.Contains(strings.ToLower(l.Address), term) ||
			strings.HasPrefix(l.PinCode, term) {
			out = append(out, availability(s.state, l))
		}
	}
	return out, nil
}

func (s *memStore) spotViews(match func(model.Spot) bool) []model.SpotView {
	out := make([]model.SpotView, 0)
	for _, sp := range spotsOf(s.state, 0) {
		if !match(sp) {
			continue
		}
		l := s.state.lots[sp.LotID]
		out = append(out, model.SpotView{Spot: sp, LotName: l.Name, LotAddress: l.Address})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LotID < out[j].LotID })
	return out
}

func (s *memStore) ListSpots(_ context.Context, lotID uint64) ([]model.SpotView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spotViews(func(sp model.Spot) bool { return lotID == 0 || sp.LotID == lotID }), nil
}

func (s *memStore) SearchSpots(_ context.Context, term string) ([]model.SpotView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	term = strings.ToLower(term)
	return s.spotViews(func(sp model.Spot) bool {
		return strings.Contains(strings.ToLower(sp.Label), term) || strconv.FormatUint(sp.ID, 10) == term
	}), nil
}

func (s *memStore) ListReservationsByUser(_ context.Context, userID uint64) ([]model.ReservationView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ReservationView, 0)
	for _, r := range s.state.res {
		if r.UserID != userID {
			continue
		}
		out = append(out, model.ReservationView{
			Reservation: r,
			SpotLabel:   s.state.spots[r.SpotID].Label,
			LotName:     s.state.lots[r.LotID].Name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memStore) overviews(match func(model.User) bool) []model.UserOverview {
	out := make([]model.UserOverview, 0)
	for _, u := range s.state.users {
		if u.Role != model.RoleUser || !match(u) {
			continue
		}
		ov := model.UserOverview{User: u}
		for _, r := range s.state.res {
			if r.UserID == u.ID && r.Open() {
				spot := r.SpotID
				ov.CurrentSpotID = &spot
			}
		}
		out = append(out, ov)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) ListUsers(_ context.Context) ([]model.UserOverview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overviews(func(model.User) bool { return true }), nil
}

func (s *memStore) SearchUsers(_ context.Context, term string) ([]model.UserOverview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	term = strings.ToLower(term)
	return s.overviews(func(u model.User) bool {
		return strings.Contains(strings.ToLower(u.Username), term) ||
			strings.Contains(strings.ToLower(u.Email), term) ||
			strconv.FormatUint(u.ID, 10) == term
	}), nil
}

func (s *memStore) Stats(_ context.Context) (model.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := model.Stats{Lots: len(s.state.lots), Spots: len(s.state.spots), Reservations: len(s.state.res)}
	for _, u := range s.state.users {
		if u.Role == model.RoleUser {
			st.Users++
		}
	}
	for _, sp := range s.state.spots {
		if sp.Status == model.SpotOccupied {
			st.Occupied++
		} else {
			st.Available++
		}
	}
	for _, r := range s.state.res {
		if r.CostCents != nil {
			st.RevenueCents += *r.CostCents
		}
	}
	return st, nil
}

// assertInvariants checks the occupancy rules that must hold after every
// committed operation.
func assertInvariants(t *testing.T, s *memStore) {
	t.Helper()
	st := s.snapshot()
	for _, l := range st.lots {
		assert.Len(t, spotsOf(st, l.ID), l.Capacity, "lot %d capacity", l.ID)
	}
	openBySpot := map[uint64]int{}
	openByUser := map[uint64]int{}
	for _, r := range st.res {
		if r.Open() {
			openBySpot[r.SpotID]++
			openByUser[r.UserID]++
		}
	}
	for _, sp := range st.spots {
		if sp.Status == model.SpotOccupied {
			assert.Equal(t, 1, openBySpot[sp.ID], "spot %d occupied", sp.ID)
		} else {
			assert.Zero(t, openBySpot[sp.ID], "spot %d available", sp.ID)
		}
	}
	for user, n := range openByUser {
		assert.LessOrEqual(t, n, 1, "user %d open reservations", user)
	}
}

// memCache is a viewcache.Cache backed by a map.  Values round-trip
// through JSON like they do in Redis, and Put honours projection
// generations the same way.
type memCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	gens        map[string]int64
	invalidated []string
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}, gens: map[string]int64{}}
}

func (c *memCache) Get(_ context.Context, key string, dst any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[key]
	if !ok {
		return false
	}
	return jsoniter.Unmarshal(b, dst) == nil
}

func (c *memCache) Stamp(_ context.Context, projection string) viewcache.Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return viewcache.Stamp{Projection: projection, Gen: c.gens[projection], OK: true}
}

func (c *memCache) Put(_ context.Context, s viewcache.Stamp, key string, value any, _ time.Duration) {
	b, err := jsoniter.Marshal(value)
	if err != nil || !s.OK {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[s.Projection] != s.Gen {
		return
	}
	c.entries[key] = b
}

func (c *memCache) Invalidate(_ context.Context, projection string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, projection)
	c.gens[projection]++
	for k := range c.entries {
		if strings.HasPrefix(k, projection) {
			delete(c.entries, k)
		}
	}
}

func (c *memCache) patterns() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.invalidated...)
}
