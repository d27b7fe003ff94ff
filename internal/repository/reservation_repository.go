package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/parking-reservation/internal/model"
)

// Reservations are stored in the reservations table.  user_id and
// spot_id are weak references without foreign keys so that history
// survives lot deletion.  Two generated columns, open_user_id and
// open_spot_id, are NULL once a reservation is closed and carry unique
// indexes, which backs the one-open-reservation rules at the schema level.

const reservationColumns = `r.id, r.user_id, r.spot_id, r.lot_id, r.started_at, r.ended_at, r.cost_cents, r.billed_ms`

func scanReservation(row rowScanner, extra ...any) (model.Reservation, error) {
	var (
		res      model.Reservation
		endedAt  sql.NullTime
		cost     sql.NullInt64
		billedMs sql.NullInt64
	)
	dest := append([]any{&res.ID, &res.UserID, &res.SpotID, &res.LotID, &res.StartedAt, &endedAt, &cost, &billedMs}, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.Reservation{}, mapError(err)
	}
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		res.EndedAt = &t
	}
	if cost.Valid {
		c := cost.Int64
		res.CostCents = &c
	}
	if billedMs.Valid {
		b := billedMs.Int64
		res.BilledMillis = &b
	}
	res.StartedAt = res.StartedAt.UTC()
	return res, nil
}

func (t *mysqlTx) OpenReservationByUser(ctx context.Context, userID uint64) (model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations r
	      WHERE r.user_id = ? AND r.ended_at IS NULL
	      LIMIT 1 FOR UPDATE`
	return scanReservation(t.tx.QueryRowContext(ctx, q, userID))
}

// OpenReservationForUpdate matches on id, owner and open state at once so
// that a missing, foreign or closed reservation all yield ErrNotFound.
func (t *mysqlTx) OpenReservationForUpdate(ctx context.Context, reservationID, userID uint64) (model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations r
	      WHERE r.id = ? AND r.user_id = ? AND r.ended_at IS NULL
	      FOR UPDATE`
	return scanReservation(t.tx.QueryRowContext(ctx, q, reservationID, userID))
}

// InsertReservation creates an open reservation and populates its id.
// A duplicate key on the open_* unique indexes maps to ErrConflict.
func (t *mysqlTx) InsertReservation(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations (user_id, spot_id, lot_id, started_at) VALUES (?, ?, ?, ?)`
	result, err := t.tx.ExecContext(ctx, q, res.UserID, res.SpotID, res.LotID, res.StartedAt.UTC())
	if err != nil {
		return mapError(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

func (t *mysqlTx) CloseReservation(ctx context.Context, reservationID uint64, endedAt time.Time, costCents, billedMillis int64) error {
	const q = `UPDATE reservations SET ended_at = ?, cost_cents = ?, billed_ms = ?
	           WHERE id = ? AND ended_at IS NULL`
	res, err := t.tx.ExecContext(ctx, q, endedAt.UTC(), costCents, billedMillis, reservationID)
	if err != nil {
		return mapError(err)
	}
	return affectedOne(res)
}

// ListReservationsByUser returns all reservations for the given user,
// newest first, with the spot label and lot name.  Spots or lots that
// were deleted since leave the labels empty.
func (s *MySQLStore) ListReservationsByUser(ctx context.Context, userID uint64) ([]model.ReservationView, error) {
	q := `SELECT ` + reservationColumns + `, COALESCE(s.label, ''), COALESCE(l.name, '')
	      FROM reservations r
	      LEFT JOIN spots s ON s.id = r.spot_id
	      LEFT JOIN lots l  ON l.id = r.lot_id
	      WHERE r.user_id = ?
	      ORDER BY r.started_at DESC, r.id DESC`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ReservationView, 0)
	for rows.Next() {
		var v model.ReservationView
		res, err := scanReservation(rows, &v.SpotLabel, &v.LotName)
		if err != nil {
			return nil, err
		}
		v.Reservation = res
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
