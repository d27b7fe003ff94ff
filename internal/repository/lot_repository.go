package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/parking-reservation/internal/model"
)

const lotColumns = `l.id, l.name, l.address, l.pin_code, l.rate_cents, l.capacity, l.created_at, l.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLot(row rowScanner) (model.Lot, error) {
	var l model.Lot
	err := row.Scan(&l.ID, &l.Name, &l.Address, &l.PinCode, &l.RateCents, &l.Capacity, &l.CreatedAt, &l.UpdatedAt)
	return l, mapError(err)
}

func (t *mysqlTx) LotForShare(ctx context.Context, lotID uint64) (model.Lot, error) {
	q := `SELECT ` + lotColumns + ` FROM lots l WHERE l.id = ? FOR SHARE`
	return scanLot(t.tx.QueryRowContext(ctx, q, lotID))
}

func (t *mysqlTx) LotForUpdate(ctx context.Context, lotID uint64) (model.Lot, error) {
	q := `SELECT ` + lotColumns + ` FROM lots l WHERE l.id = ? FOR UPDATE`
	return scanLot(t.tx.QueryRowContext(ctx, q, lotID))
}

// InsertLot inserts the lot and reads the row back so timestamps and
// defaults are populated on the passed struct.
func (t *mysqlTx) InsertLot(ctx context.Context, lot *model.Lot) error {
	const q = `INSERT INTO lots (name, address, pin_code, rate_cents, capacity) VALUES (?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q, lot.Name, lot.Address, lot.PinCode, lot.RateCents, lot.Capacity)
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	saved, err := scanLot(t.tx.QueryRowContext(ctx, `SELECT `+lotColumns+` FROM lots l WHERE l.id = ?`, id))
	if err != nil {
		return err
	}
	*lot = saved
	return nil
}

func (t *mysqlTx) UpdateLot(ctx context.Context, lot model.Lot) error {
	const q = `UPDATE lots SET name = ?, address = ?, pin_code = ?, rate_cents = ?, capacity = ?, updated_at = UTC_TIMESTAMP(3)
	           WHERE id = ?`
	res, err := t.tx.ExecContext(ctx, q, lot.Name, lot.Address, lot.PinCode, lot.RateCents, lot.Capacity, lot.ID)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *mysqlTx) DeleteLot(ctx context.Context, lotID uint64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM lots WHERE id = ?`, lotID)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetLot retrieves a lot by id or returns ErrNotFound.
func (s *MySQLStore) GetLot(ctx context.Context, lotID uint64) (model.Lot, error) {
	return scanLot(s.db.QueryRowContext(ctx, `SELECT `+lotColumns+` FROM lots l WHERE l.id = ?`, lotID))
}

// availabilitySQL counts spots per status for each lot in one pass.
const availabilitySQL = `SELECT ` + lotColumns + `,
       COALESCE(SUM(s.status = 'AVAILABLE'), 0) AS available,
       COALESCE(SUM(s.status = 'OCCUPIED'), 0)  AS occupied
FROM lots l
LEFT JOIN spots s ON s.lot_id = l.id`

// ListLotAvailability returns every lot with its available and occupied
// spot counts ordered by id.
func (s *MySQLStore) ListLotAvailability(ctx context.Context) ([]model.LotAvailability, error) {
	q := availabilitySQL + ` GROUP BY l.id ORDER BY l.id`
	return s.queryAvailability(ctx, q)
}

// SearchLots matches lots by name or address (case-insensitive) or by
// pin code prefix.
func (s *MySQLStore) SearchLots(ctx context.Context, term string) ([]model.LotAvailability, error) {
	like := "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
	q := availabilitySQL + `
WHERE LOWER(l.name) LIKE ? OR LOWER(l.address) LIKE ? OR l.pin_code LIKE ?
GROUP BY l.id ORDER BY l.id`
	return s.queryAvailability(ctx, q, like, like, strings.TrimSpace(term)+"%")
}

func (s *MySQLStore) queryAvailability(ctx context.Context, q string, args ...any) ([]model.LotAvailability, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.LotAvailability, 0)
	for rows.Next() {
		var a model.LotAvailability
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Address, &a.PinCode, &a.RateCents, &a.Capacity, &a.CreatedAt, &a.UpdatedAt,
			&a.Available, &a.Occupied,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats computes the dashboard counters.  Each count is an independent
// query; the figures are informational and need not be a snapshot.
func (s *MySQLStore) Stats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	queries := []struct {
		q    string
		dest any
	}{
		{`SELECT COUNT(*) FROM users WHERE role = 'USER'`, &st.Users},
		{`SELECT COUNT(*) FROM lots`, &st.Lots},
		{`SELECT COUNT(*) FROM spots`, &st.Spots},
		{`SELECT COUNT(*) FROM spots WHERE status = 'AVAILABLE'`, &st.Available},
		{`SELECT COUNT(*) FROM spots WHERE status = 'OCCUPIED'`, &st.Occupied},
		{`SELECT COUNT(*) FROM reservations`, &st.Reservations},
	}
	for _, item := range queries {
		if err := s.db.QueryRowContext(ctx, item.q).Scan(item.dest); err != nil {
			return model.Stats{}, err
		}
	}
	var revenue sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT SUM(cost_cents) FROM reservations`).Scan(&revenue); err != nil {
		return model.Stats{}, err
	}
	st.RevenueCents = revenue.Int64
	return st, nil
}
