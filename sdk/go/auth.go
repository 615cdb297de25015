package taskboardsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	sessionKey = "session"
	// expirySkew refreshes id tokens slightly before they expire.
	expirySkew = 30 * time.Second
)

// ErrNotSignedIn is returned when an id token is requested without a session.
var ErrNotSignedIn = errors.New("not signed in")

// User is the signed-in account.
type User struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// AuthError is an identity provider failure with a stable code such as
// weak-password or invalid-credential.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s: %s", e.Code, e.Message)
}

// AuthErrorCode returns the provider code of err, or "" if err is not an AuthError.
func AuthErrorCode(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

type storedSession struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	UID          string `json:"uid"`
	Email        string `json:"email"`
}

// Auth is the client side of the identity provider: it signs in, keeps the
// refresh credential in a CredentialStore and hands out fresh id tokens.
type Auth struct {
	client *Client
	store  CredentialStore
	now    func() time.Time

	mu        sync.Mutex
	ready     bool
	user      *User
	refresh   string
	idToken   string
	expiry    time.Time
	listeners map[int]func(*User)
	nextID    int
}

func NewAuth(c *Client, store CredentialStore) *Auth {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Auth{
		client:    c,
		store:     store,
		now:       time.Now,
		listeners: map[int]func(*User){},
	}
}

// SignUp registers an account. It does not sign in.
func (a *Auth) SignUp(ctx context.Context, email, password string) (User, error) {
	var u User
	err := a.client.do(ctx, http.MethodPost, "auth/signup", map[string]string{"email": email, "password": password}, &u)
	return u, authError(err)
}

// SignIn exchanges credentials for tokens and persists the refresh token.
func (a *Auth) SignIn(ctx context.Context, email, password string) (User, error) {
	var resp tokenResponse
	err := a.client.do(ctx, http.MethodPost, "auth/signin", map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return User{}, authError(err)
	}
	u := User{UID: resp.UID, Email: resp.Email}
	data, err := json.Marshal(storedSession{UID: u.UID, Email: u.Email, RefreshToken: resp.RefreshToken})
	if err != nil {
		return User{}, err
	}
	if err := a.store.Set(sessionKey, string(data)); err != nil {
		return User{}, fmt.Errorf("saving session: %w", err)
	}

	a.mu.Lock()
	a.user = &u
	a.refresh = resp.RefreshToken
	a.idToken = resp.IDToken
	a.expiry = a.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	a.mu.Unlock()
	a.emit()
	return u, nil
}

// SignOut revokes the refresh token server-side (best effort) and forgets the session.
func (a *Auth) SignOut(ctx context.Context) error {
	a.mu.Lock()
	refresh := a.refresh
	a.user = nil
	a.refresh = ""
	a.idToken = ""
	a.expiry = time.Time{}
	a.mu.Unlock()

	var revokeErr error
	if refresh != "" {
		revokeErr = a.client.do(ctx, http.MethodPost, "auth/signout", map[string]string{"refreshToken": refresh}, nil)
	}
	err := a.store.Delete(sessionKey)
	if errors.Is(err, ErrNoCredential) {
		err = nil
	}
	a.emit()
	return errors.Join(revokeErr, err)
}

// Restore loads a persisted session and validates it with a token refresh.
// It always ends with an auth-state emission, signed in or not.
func (a *Auth) Restore(ctx context.Context) (*User, error) {
	defer a.emit()

	raw, err := a.store.Get(sessionKey)
	if errors.Is(err, ErrNoCredential) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	var s storedSession
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.RefreshToken == "" {
		_ = a.store.Delete(sessionKey)
		return nil, nil
	}

	a.mu.Lock()
	a.refresh = s.RefreshToken
	a.mu.Unlock()
	if _, err := a.refreshToken(ctx); err != nil {
		if AuthErrorCode(err) != "" {
			_ = a.store.Delete(sessionKey)
			a.mu.Lock()
			a.refresh = ""
			a.mu.Unlock()
			return nil, nil
		}
		return nil, err
	}
	return a.CurrentUser(), nil
}

// CurrentUser returns the signed-in user or nil.
func (a *Auth) CurrentUser() *User {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user == nil {
		return nil
	}
	u := *a.user
	return &u
}

// IDToken returns a valid id token, refreshing it when close to expiry.
func (a *Auth) IDToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.idToken != "" && a.now().Add(expirySkew).Before(a.expiry) {
		tok := a.idToken
		a.mu.Unlock()
		return tok, nil
	}
	a.mu.Unlock()
	return a.refreshToken(ctx)
}

func (a *Auth) refreshToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	refresh := a.refresh
	a.mu.Unlock()
	if refresh == "" {
		return "", ErrNotSignedIn
	}
	var resp tokenResponse
	if err := a.client.do(ctx, http.MethodPost, "auth/token", map[string]string{"refreshToken": refresh}, &resp); err != nil {
		return "", authError(err)
	}

	a.mu.Lock()
	if a.refresh != refresh {
		// Signed out or replaced while the request was in flight.
		a.mu.Unlock()
		return "", ErrNotSignedIn
	}
	a.user = &User{UID: resp.UID, Email: resp.Email}
	a.idToken = resp.IDToken
	a.expiry = a.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	a.mu.Unlock()
	return resp.IDToken, nil
}

// OnAuthStateChanged registers fn for auth-state changes. Once the initial
// state is known (after Restore, SignIn or SignOut) fn is also called
// immediately with the current user.
func (a *Auth) OnAuthStateChanged(fn func(*User)) (unsubscribe func()) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	ready := a.ready
	var current *User
	if a.user != nil {
		u := *a.user
		current = &u
	}
	a.mu.Unlock()

	if ready {
		fn(current)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

func (a *Auth) emit() {
	a.mu.Lock()
	a.ready = true
	var current *User
	if a.user != nil {
		u := *a.user
		current = &u
	}
	fns := make([]func(*User), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn(current)
	}
}

func authError(err error) error {
	var ae *APIError
	if errors.As(err, &ae) && ae.Code != "" && ae.StatusCode < 500 {
		return &AuthError{Code: ae.Code, Message: ae.Message}
	}
	return err
}
