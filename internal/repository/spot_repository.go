package repository

import (
	"context"
	"strings"

	"github.com/iliyamo/parking-reservation/internal/model"
)

const spotColumns = `s.id, s.lot_id, s.number, s.label, s.status, s.version, s.created_at, s.updated_at`

func scanSpot(row rowScanner) (model.Spot, error) {
	var sp model.Spot
	err := row.Scan(&sp.ID, &sp.LotID, &sp.Number, &sp.Label, &sp.Status, &sp.Version, &sp.CreatedAt, &sp.UpdatedAt)
	return sp, mapError(err)
}

// FirstAvailableSpot uses SKIP LOCKED so two concurrent reservations in
// the same lot pick different spots instead of queueing on one row.
func (t *mysqlTx) FirstAvailableSpot(ctx context.Context, lotID uint64) (model.Spot, error) {
	q := `SELECT ` + spotColumns + ` FROM spots s
	      WHERE s.lot_id = ? AND s.status = 'AVAILABLE'
	      ORDER BY s.id LIMIT 1
	      FOR UPDATE SKIP LOCKED`
	return scanSpot(t.tx.QueryRowContext(ctx, q, lotID))
}

func (t *mysqlTx) SpotForUpdate(ctx context.Context, spotID uint64) (model.Spot, error) {
	q := `SELECT ` + spotColumns + ` FROM spots s WHERE s.id = ? FOR UPDATE`
	return scanSpot(t.tx.QueryRowContext(ctx, q, spotID))
}

func (t *mysqlTx) SpotsForUpdate(ctx context.Context, lotID uint64) ([]model.Spot, error) {
	q := `SELECT ` + spotColumns + ` FROM spots s WHERE s.lot_id = ? ORDER BY s.id FOR UPDATE`
	rows, err := t.tx.QueryContext(ctx, q, lotID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var spots []model.Spot
	for rows.Next() {
		sp, err := scanSpot(rows)
		if err != nil {
			return nil, err
		}
		spots = append(spots, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return spots, nil
}

// SetSpotStatus is a compare-and-swap on the status column.
func (t *mysqlTx) SetSpotStatus(ctx context.Context, spotID uint64, from, to string) error {
	const q = `UPDATE spots SET status = ?, version = version + 1, updated_at = UTC_TIMESTAMP(3)
	           WHERE id = ? AND status = ?`
	res, err := t.tx.ExecContext(ctx, q, to, spotID, from)
	if err != nil {
		return mapError(err)
	}
	return affectedOne(res)
}

// InsertSpots creates AVAILABLE spots with the given numbers in a single
// statement.  Passing an empty slice has no effect.
func (t *mysqlTx) InsertSpots(ctx context.Context, lotID uint64, numbers []int) error {
	if len(numbers) == 0 {
		return nil
	}
	query := `INSERT INTO spots (lot_id, number, label, status) VALUES `
	args := make([]any, 0, len(numbers)*4)
	for i, n := range numbers {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, lotID, n, model.SpotLabel(n), model.SpotAvailable)
	}
	_, err := t.tx.ExecContext(ctx, query, args...)
	return mapError(err)
}

// DeleteSpots removes only spots that are still AVAILABLE; it returns
// ErrConflict if any of the given spots was occupied meanwhile.
func (t *mysqlTx) DeleteSpots(ctx context.Context, spotIDs []uint64) error {
	if len(spotIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(spotIDs))
	args := make([]any, 0, len(spotIDs)+1)
	for i, id := range spotIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	q := `DELETE FROM spots WHERE status = 'AVAILABLE' AND id IN (` + strings.Join(placeholders, ",") + `)`
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) != len(spotIDs) {
		return ErrConflict
	}
	return nil
}

// ListSpots returns spots joined with their lot.  A zero lotID lists the
// spots of every lot.  Ordering is by lot, then spot id.
func (s *MySQLStore) ListSpots(ctx context.Context, lotID uint64) ([]model.SpotView, error) {
	q := `SELECT ` + spotColumns + `, l.name, l.address FROM spots s JOIN lots l ON l.id = s.lot_id`
	var args []any
	if lotID != 0 {
		q += ` WHERE s.lot_id = ?`
		args = append(args, lotID)
	}
	q += ` ORDER BY s.lot_id, s.id`
	return s.querySpotViews(ctx, q, args...)
}

// SearchSpots matches spots by label (case-insensitive) or exact id.
func (s *MySQLStore) SearchSpots(ctx context.Context, term string) ([]model.SpotView, error) {
	term = strings.TrimSpace(term)
	q := `SELECT ` + spotColumns + `, l.name, l.address FROM spots s JOIN lots l ON l.id = s.lot_id
	      WHERE LOWER(s.label) LIKE ? OR CAST(s.id AS CHAR) = ?
	      ORDER BY s.lot_id, s.id`
	return s.querySpotViews(ctx, q, "%"+strings.ToLower(term)+"%", term)
}

func (s *MySQLStore) querySpotViews(ctx context.Context, q string, args ...any) ([]model.SpotView, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.SpotView, 0)
	for rows.Next() {
		var v model.SpotView
		if err := rows.Scan(
			&v.ID, &v.LotID, &v.Number, &v.Label, &v.Status, &v.Version, &v.CreatedAt, &v.UpdatedAt,
			&v.LotName, &v.LotAddress,
		); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
