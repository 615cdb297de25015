package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"taskboard/internal/domain"
)

// Repo persists identity records (users and refresh tokens).
type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.UID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

// InsertUser stores a new user. A duplicate email yields ErrConflict.
func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	if u.UID == "" {
		return errors.New("uid required")
	}
	if u.Email == "" {
		return errors.New("email required")
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(uid,email,password_hash,created_at) VALUES (?,?,?,?)`,
		u.UID, u.Email, u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT uid,email,password_hash,created_at FROM users WHERE email=?`, email))
}

func (r Repo) GetUserByID(ctx context.Context, uid string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT uid,email,password_hash,created_at FROM users WHERE uid=?`, uid))
}

func (r Repo) EmailExists(ctx context.Context, email string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM users WHERE email=? LIMIT 1`, email).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
