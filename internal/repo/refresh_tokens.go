package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"

	"taskboard/internal/domain"
)

// HashToken returns a stable SHA-256 hex digest for the provided token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// InsertRefreshToken stores a hashed refresh token. TokenHash must already contain the hashed value.
func (r Repo) InsertRefreshToken(ctx context.Context, tok domain.RefreshToken) error {
	if tok.TokenHash == "" {
		return errors.New("token_hash required")
	}
	if tok.UID == "" {
		return errors.New("uid required")
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO refresh_tokens(token_hash,uid,created_at,expires_at) VALUES (?,?,?,?)`,
		tok.TokenHash, tok.UID, tok.CreatedAt, tok.ExpiresAt)
	return err
}

// GetRefreshToken returns a refresh token by its hashed value.
func (r Repo) GetRefreshToken(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var tok domain.RefreshToken
	err := r.DB.QueryRowContext(ctx, `SELECT token_hash,uid,created_at,expires_at FROM refresh_tokens WHERE token_hash=? LIMIT 1`, hash).
		Scan(&tok.TokenHash, &tok.UID, &tok.CreatedAt, &tok.ExpiresAt)
	if err == sql.ErrNoRows {
		return domain.RefreshToken{}, ErrNotFound
	}
	if err != nil {
		return domain.RefreshToken{}, err
	}
	return tok, nil
}

// DeleteRefreshToken revokes a refresh token by its hashed value.
func (r Repo) DeleteRefreshToken(ctx context.Context, hash string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash=?`, hash)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredRefreshTokens removes tokens whose expiry is at or before now (RFC3339, UTC).
func (r Repo) DeleteExpiredRefreshTokens(ctx context.Context, now string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at<=?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
