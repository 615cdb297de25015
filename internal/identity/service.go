package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"taskboard/internal/domain"
	"taskboard/internal/repo"
)

// User is a registered account.
type User = domain.User

// TokenSet is returned by sign-in and refresh. RefreshToken is empty on refresh.
type TokenSet struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn"`
	UID          string `json:"uid"`
	Email        string `json:"email"`
}

// Provider is the email/password identity provider.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (User, error)
	SignIn(ctx context.Context, email, password string) (TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (TokenSet, error)
	SignOut(ctx context.Context, refreshToken string) error
}

// Config configures a Service.
type Config struct {
	Secret            string
	Issuer            string
	TokenTTL          time.Duration
	RefreshTTL        time.Duration
	MinPasswordLength int
	BcryptCost        int
}

// Service implements Provider and Verifier on the identity repo.
type Service struct {
	repo        repo.Repo
	hasher      *PasswordHasher
	tokens      *TokenManager
	refreshTTL  time.Duration
	minPassword int
	now         func() time.Time
	log         zerolog.Logger
}

var (
	_ Provider = (*Service)(nil)
	_ Verifier = (*Service)(nil)
)

func NewService(r repo.Repo, cfg Config, now func() time.Time, log zerolog.Logger) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.New("identity: signing secret required")
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:        r,
		hasher:      NewPasswordHasher(cfg.BcryptCost),
		tokens:      NewTokenManager(cfg.Secret, cfg.Issuer, cfg.TokenTTL, now),
		refreshTTL:  cfg.RefreshTTL,
		minPassword: cfg.MinPasswordLength,
		now:         now,
		log:         log.With().Str("component", "identity").Logger(),
	}, nil
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func (s *Service) SignUp(ctx context.Context, email, password string) (User, error) {
	email = NormalizeEmail(email)
	if !validEmail(email) {
		return User{}, newError(CodeInvalidEmail, "the email address is badly formatted")
	}
	if len(password) < s.minPassword {
		return User{}, newError(CodeWeakPassword, fmt.Sprintf("password must be at least %d characters", s.minPassword))
	}
	if len(password) > maxPasswordBytes {
		return User{}, newError(CodeWeakPassword, fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return User{}, fmt.Errorf("checking email: %w", err)
	}
	if exists {
		return User{}, newError(CodeEmailInUse, "the email address is already in use")
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}
	u := User{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
	}
	if err := s.repo.InsertUser(ctx, u); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return User{}, newError(CodeEmailInUse, "the email address is already in use")
		}
		return User{}, fmt.Errorf("creating user: %w", err)
	}
	s.log.Info().Str("uid", u.UID).Msg("user registered")
	return u, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (TokenSet, error) {
	email = NormalizeEmail(email)
	u, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return TokenSet{}, newError(CodeInvalidCredential, "invalid email or password")
	}
	if err != nil {
		return TokenSet{}, fmt.Errorf("finding user: %w", err)
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return TokenSet{}, newError(CodeInvalidCredential, "invalid email or password")
	}

	refresh, err := newRefreshToken()
	if err != nil {
		return TokenSet{}, err
	}
	now := s.now().UTC()
	err = s.repo.InsertRefreshToken(ctx, domain.RefreshToken{
		TokenHash: repo.HashToken(refresh),
		UID:       u.UID,
		CreatedAt: now.Format(time.RFC3339),
		ExpiresAt: now.Add(s.refreshTTL).Format(time.RFC3339),
	})
	if err != nil {
		return TokenSet{}, fmt.Errorf("storing refresh token: %w", err)
	}
	set, err := s.issue(u)
	if err != nil {
		return TokenSet{}, err
	}
	set.RefreshToken = refresh
	return set, nil
}

// Refresh exchanges a refresh token for a fresh id token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenSet, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenSet{}, newError(CodeTokenExpired, "refresh token required")
	}
	tok, err := s.repo.GetRefreshToken(ctx, repo.HashToken(refreshToken))
	if errors.Is(err, repo.ErrNotFound) {
		return TokenSet{}, newError(CodeTokenExpired, "refresh token is not valid")
	}
	if err != nil {
		return TokenSet{}, fmt.Errorf("finding refresh token: %w", err)
	}
	exp, err := time.Parse(time.RFC3339, tok.ExpiresAt)
	if err != nil || !s.now().Before(exp) {
		_ = s.repo.DeleteRefreshToken(ctx, tok.TokenHash)
		return TokenSet{}, newError(CodeTokenExpired, "refresh token has expired")
	}
	u, err := s.repo.GetUserByID(ctx, tok.UID)
	if errors.Is(err, repo.ErrNotFound) {
		return TokenSet{}, newError(CodeTokenExpired, "user no longer exists")
	}
	if err != nil {
		return TokenSet{}, fmt.Errorf("finding user: %w", err)
	}
	return s.issue(u)
}

// SignOut revokes the refresh token. Unknown tokens are not an error.
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	err := s.repo.DeleteRefreshToken(ctx, repo.HashToken(refreshToken))
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}

func (s *Service) Verify(ctx context.Context, token string) (Identity, error) {
	return s.tokens.Verify(ctx, token)
}

// PurgeExpired removes expired refresh tokens.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredRefreshTokens(ctx, s.now().UTC().Format(time.RFC3339))
}

func (s *Service) issue(u User) (TokenSet, error) {
	idToken, _, err := s.tokens.Issue(u.UID, u.Email)
	if err != nil {
		return TokenSet{}, err
	}
	return TokenSet{
		IDToken:   idToken,
		ExpiresIn: int64(s.tokens.TTL().Seconds()),
		UID:       u.UID,
		Email:     u.Email,
	}, nil
}

func newRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
