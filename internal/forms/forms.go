// Package forms runs the login and register screens' submit logic and maps
// identity provider failures to user-facing messages.
package forms

import (
	"context"
	"errors"
	"strings"

	taskboardsdk "taskboard/sdk/go"
)

// Screen is the navigation target after a submit.
type Screen int

const (
	ScreenLogin Screen = iota
	ScreenRegister
	ScreenDashboard
)

func (s Screen) String() string {
	switch s {
	case ScreenLogin:
		return "login"
	case ScreenRegister:
		return "register"
	case ScreenDashboard:
		return "dashboard"
	}
	return "unknown"
}

const (
	MsgInvalidCredentials = "Invalid email or password. Try again!"
	MsgWeakPassword       = "Password is too weak. Choose a longer one."
	MsgEmailInUse         = "An account with this email already exists."
	MsgInvalidEmail       = "Please enter a valid email address."
	MsgRegisterFailed     = "Registration failed. Please try again."
	MsgRegistered         = "Account created. Please sign in."
	MsgMissingFields      = "Email and password are required."
)

var errMissingFields = errors.New("email and password are required")

// Authenticator is the identity provider surface the screens use.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (taskboardsdk.User, error)
	SignUp(ctx context.Context, email, password string) (taskboardsdk.User, error)
}

// Result tells the caller where to go and what to show.
type Result struct {
	Next    Screen
	Message string
	Err     error
}

// OK reports whether the submit succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Login signs in. Every failure collapses to one message.
func Login(ctx context.Context, a Authenticator, email, password string) Result {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Result{Next: ScreenLogin, Message: MsgMissingFields, Err: errMissingFields}
	}
	if _, err := a.SignIn(ctx, email, password); err != nil {
		return Result{Next: ScreenLogin, Message: MsgInvalidCredentials, Err: err}
	}
	return Result{Next: ScreenDashboard}
}

// Register creates an account. A fresh sign-in is required afterwards.
func Register(ctx context.Context, a Authenticator, email, password string) Result {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Result{Next: ScreenRegister, Message: MsgMissingFields, Err: errMissingFields}
	}
	if _, err := a.SignUp(ctx, email, password); err != nil {
		return Result{Next: ScreenRegister, Message: RegisterMessage(err), Err: err}
	}
	return Result{Next: ScreenLogin, Message: MsgRegistered}
}

// RegisterMessage maps a sign-up error to its message by provider code.
func RegisterMessage(err error) string {
	switch taskboardsdk.AuthErrorCode(err) {
	case "weak-password":
		return MsgWeakPassword
	case "email-already-in-use":
		return MsgEmailInUse
	case "invalid-email":
		return MsgInvalidEmail
	}
	return MsgRegisterFailed
}
