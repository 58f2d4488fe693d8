// Package auth owns the sign-in screen: the identity service contract, a
// local implementation of it, and the controller driving the screen.
package auth

import (
	"context"
	"errors"
)

var (
	// ErrInvalidCredentials is returned when the email is unknown or the
	// password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken is returned by Register for an existing account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrNotSignedIn is returned by Logout when there is no session.
	ErrNotSignedIn = errors.New("not signed in")
)

// Service is the identity backend. Each call is single-shot.
type Service interface {
	Login(ctx context.Context, email, password string) error
	Register(ctx context.Context, email, password string) error
	Logout(ctx context.Context) error
	CurrentUserID() (string, bool)
}
