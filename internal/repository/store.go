package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/parking-reservation/internal/model"
)

// Tx is the transactional handle passed to the work function of
// Store.WithinTx.  Every method runs inside the same database
// transaction; locking reads hold their row locks until commit or
// rollback.  Methods return ErrNotFound when a lookup matches nothing and
// ErrConflict when a guarded update lost a race.
type Tx interface {
	// LockUser locks the user row so that concurrent reservations for the
	// same user serialise.
	LockUser(ctx context.Context, userID uint64) (model.User, error)
	// LotForShare reads a lot holding a shared lock: concurrent reservations
	// proceed, while resize and delete (which use LotForUpdate) wait.
	LotForShare(ctx context.Context, lotID uint64) (model.Lot, error)
	LotForUpdate(ctx context.Context, lotID uint64) (model.Lot, error)
	InsertLot(ctx context.Context, lot *model.Lot) error
	UpdateLot(ctx context.Context, lot model.Lot) error
	DeleteLot(ctx context.Context, lotID uint64) error

	// FirstAvailableSpot locks and returns the available spot with the lowest
	// id in the lot, skipping rows locked by other transactions.
	FirstAvailableSpot(ctx context.Context, lotID uint64) (model.Spot, error)
	SpotForUpdate(ctx context.Context, spotID uint64) (model.Spot, error)
	// SpotsForUpdate locks and returns every spot of the lot ordered by id.
	SpotsForUpdate(ctx context.Context, lotID uint64) ([]model.Spot, error)
	// SetSpotStatus moves a spot from one status to another.  It returns
	// ErrConflict when the spot is not currently in status from.
	SetSpotStatus(ctx context.Context, spotID uint64, from, to string) error
	InsertSpots(ctx context.Context, lotID uint64, numbers []int) error
	DeleteSpots(ctx context.Context, spotIDs []uint64) error

	// OpenReservationByUser returns the user's open reservation or
	// ErrNotFound when the user holds none.
	OpenReservationByUser(ctx context.Context, userID uint64) (model.Reservation, error)
	// OpenReservationForUpdate locks the reservation only when it exists,
	// belongs to userID and is still open.
	OpenReservationForUpdate(ctx context.Context, reservationID, userID uint64) (model.Reservation, error)
	InsertReservation(ctx context.Context, res *model.Reservation) error
	// CloseReservation sets the end time and charge of an open reservation.
	// It returns ErrConflict when the reservation was already closed.
	CloseReservation(ctx context.Context, reservationID uint64, endedAt time.Time, costCents, billedMillis int64) error
}

// Store is the durable record store.  Reads outside WithinTx observe the
// latest committed state and take no locks.
type Store interface {
	// WithinTx runs work inside one transaction, committing when work
	// returns nil and rolling back otherwise.
	WithinTx(ctx context.Context, work func(Tx) error) error

	GetLot(ctx context.Context, lotID uint64) (model.Lot, error)
	ListLotAvailability(ctx context.Context) ([]model.LotAvailability, error)
	SearchLots(ctx context.Context, term string) ([]model.LotAvailability, error)
	ListSpots(ctx context.Context, lotID uint64) ([]model.SpotView, error)
	SearchSpots(ctx context.Context, term string) ([]model.SpotView, error)
	ListReservationsByUser(ctx context.Context, userID uint64) ([]model.ReservationView, error)
	ListUsers(ctx context.Context) ([]model.UserOverview, error)
	SearchUsers(ctx context.Context, term string) ([]model.UserOverview, error)
	Stats(ctx context.Context) (model.Stats, error)
}

// MySQLStore implements Store on top of a MySQL connection pool.
type MySQLStore struct {
	db *sql.DB
}

// NewStore returns a MySQLStore bound to the given database.
func NewStore(db *sql.DB) *MySQLStore { return &MySQLStore{db: db} }

// DB exposes the underlying handle for repositories that share the pool.
func (s *MySQLStore) DB() *sql.DB { return s.db }

// WithinTx begins a READ COMMITTED transaction and hands it to work.
// Row locks taken by the Tx methods provide the isolation the ledger
// relies on; READ COMMITTED avoids gap locks on the spot index.
func (s *MySQLStore) WithinTx(ctx context.Context, work func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := work(&mysqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	committed = true
	return nil
}

// mysqlTx adapts *sql.Tx to the Tx interface.  Its methods live next to
// the queries for each table.
type mysqlTx struct {
	tx *sql.Tx
}

// affectedOne returns ErrConflict unless exactly one row was changed.
func affectedOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrConflict
	}
	return nil
}
