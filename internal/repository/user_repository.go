package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/utils"
)

const userColumns = `u.id, u.username, u.email, u.phone, u.address, u.pin_code, u.password_hash, u.role, u.created_at`

func scanUser(row rowScanner, extra ...any) (model.User, error) {
	var u model.User
	dest := append([]any{&u.ID, &u.Username, &u.Email, &u.Phone, &u.Address, &u.PinCode, &u.PasswordHash, &u.Role, &u.CreatedAt}, extra...)
	err := row.Scan(dest...)
	return u, mapError(err)
}

// UserRepo handles account persistence for the auth endpoints.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NewUser carries the registration fields.  Password is plain text and is
// hashed by Create.
type NewUser struct {
	Username string
	Email    string
	Phone    string
	Address  string
	PinCode  string
	Password string
	Role     string
}

// Create inserts user and returns its ID.  Username and email are
// normalised to lower case.
func (r *UserRepo) Create(ctx context.Context, nu NewUser, cost int) (uint64, error) {
	username := strings.ToLower(strings.TrimSpace(nu.Username))
	email := strings.ToLower(strings.TrimSpace(nu.Email))
	hash, err := utils.HashPassword(nu.Password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, phone, address, pin_code, password_hash, role) VALUES (?,?,?,?,?,?,?)",
		username, email, nu.Phone, nu.Address, nu.PinCode, hash, nu.Role)
	if err != nil {
		if isDuplicate(err) {
			if strings.Contains(err.Error(), "uq_users_email") {
				return 0, ErrEmailExists
			}
			return 0, ErrUsernameExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByUsername fetches a user by normalized username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users u WHERE u.username=? LIMIT 1", username))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users u WHERE u.id=? LIMIT 1", id))
}

// EmailFor returns the notification address of a user.
func (r *UserRepo) EmailFor(ctx context.Context, id uint64) (string, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

// EnsureAdmin creates the admin account when no user with that username
// exists.  It reports whether a new account was created.
func (r *UserRepo) EnsureAdmin(ctx context.Context, username, email, password string, cost int) (bool, error) {
	if _, err := r.GetByUsername(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	_, err := r.Create(ctx, NewUser{
		Username: username,
		Email:    email,
		Address:  "Admin Office",
		Password: password,
		Role:     model.RoleAdmin,
	}, cost)
	if errors.Is(err, ErrUsernameExists) {
		return false, nil
	}
	return err == nil, err
}

func (t *mysqlTx) LockUser(ctx context.Context, userID uint64) (model.User, error) {
	return scanUser(t.tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users u WHERE u.id=? FOR UPDATE", userID))
}

// overviewSQL joins each USER account with the spot of its open
// reservation, if any.
const overviewSQL = `SELECT ` + userColumns + `, r.spot_id
FROM users u
LEFT JOIN reservations r ON r.user_id = u.id AND r.ended_at IS NULL
WHERE u.role = 'USER'`

// ListUsers returns every USER account with its current spot.
func (s *MySQLStore) ListUsers(ctx context.Context) ([]model.UserOverview, error) {
	return s.queryOverviews(ctx, overviewSQL+` ORDER BY u.id`)
}

// SearchUsers matches USER accounts by username, email or exact id.
func (s *MySQLStore) SearchUsers(ctx context.Context, term string) ([]model.UserOverview, error) {
	term = strings.TrimSpace(term)
	like := "%" + strings.ToLower(term) + "%"
	q := overviewSQL + ` AND (u.username LIKE ? OR u.email LIKE ? OR CAST(u.id AS CHAR) = ?) ORDER BY u.id`
	return s.queryOverviews(ctx, q, like, like, term)
}

func (s *MySQLStore) queryOverviews(ctx context.Context, q string, args ...any) ([]model.UserOverview, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.UserOverview, 0)
	for rows.Next() {
		var spot sql.NullInt64
		u, err := scanUser(rows, &spot)
		if err != nil {
			return nil, err
		}
		ov := model.UserOverview{User: u}
		if spot.Valid {
			id := uint64(spot.Int64)
			ov.CurrentSpotID = &id
		}
		out = append(out, ov)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
