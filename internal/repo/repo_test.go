package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/db"
	"taskboard/internal/domain"
	"taskboard/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "identity.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	return Repo{DB: conn}
}

func TestUsers(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	u := domain.User{UID: "u1", Email: "a@x.com", PasswordHash: "hash", CreatedAt: "2026-01-01T00:00:00Z"}
	require.NoError(t, r.InsertUser(ctx, u))

	got, err := r.GetUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, u, got)

	got, err = r.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, u, got)

	exists, err := r.EmailExists(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = r.EmailExists(ctx, "b@x.com")
	require.NoError(t, err)
	assert.False(t, exists)

	dup := u
	dup.UID = "u2"
	assert.ErrorIs(t, r.InsertUser(ctx, dup), ErrConflict)

	_, err = r.GetUserByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRefreshTokens(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, r.InsertUser(ctx, domain.User{UID: "u1", Email: "a@x.com", PasswordHash: "h", CreatedAt: "2026-01-01T00:00:00Z"}))

	live := domain.RefreshToken{TokenHash: HashToken("live"), UID: "u1", CreatedAt: "2026-01-01T00:00:00Z", ExpiresAt: "2026-02-01T00:00:00Z"}
	stale := domain.RefreshToken{TokenHash: HashToken("stale"), UID: "u1", CreatedAt: "2025-01-01T00:00:00Z", ExpiresAt: "2025-02-01T00:00:00Z"}
	require.NoError(t, r.InsertRefreshToken(ctx, live))
	require.NoError(t, r.InsertRefreshToken(ctx, stale))

	got, err := r.GetRefreshToken(ctx, HashToken(" live "))
	require.NoError(t, err)
	assert.Equal(t, live, got)

	n, err := r.DeleteExpiredRefreshTokens(ctx, "2026-01-15T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, r.DeleteRefreshToken(ctx, live.TokenHash))
	assert.ErrorIs(t, r.DeleteRefreshToken(ctx, live.TokenHash), ErrNotFound)
	_, err = r.GetRefreshToken(ctx, live.TokenHash)
	assert.ErrorIs(t, err, ErrNotFound)
}
