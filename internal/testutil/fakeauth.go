// Package testutil provides in-memory fakes of the auth and task backends.
package testutil

import (
	"context"
	"sync"

	"todo/internal/auth"
)

// FakeAuth is an in-memory auth.Service with error injection.
type FakeAuth struct {
	mu     sync.Mutex
	userID string

	loginCalls    int
	registerCalls int
	logoutCalls   int
	lastEmail     string
	lastPassword  string

	// Error injection for testing
	LoginErr    error
	RegisterErr error
	LogoutErr   error

	// Gate, when set, holds every call until it is closed or receives.
	Gate chan struct{}
}

var _ auth.Service = (*FakeAuth)(nil)

// NewFakeAuth returns a FakeAuth with the given user signed in. An empty id
// means nobody is signed in.
func NewFakeAuth(userID string) *FakeAuth {
	return &FakeAuth{userID: userID}
}

func (f *FakeAuth) Login(ctx context.Context, email, password string) error {
	return f.credentialCall(ctx, &f.loginCalls, email, password, f.LoginErr)
}

func (f *FakeAuth) Register(ctx context.Context, email, password string) error {
	return f.credentialCall(ctx, &f.registerCalls, email, password, f.RegisterErr)
}

func (f *FakeAuth) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.logoutCalls++
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return err
	}
	if f.LogoutErr != nil {
		return f.LogoutErr
	}
	f.mu.Lock()
	f.userID = ""
	f.mu.Unlock()
	return nil
}

func (f *FakeAuth) CurrentUserID() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID, f.userID != ""
}

// SetUser replaces the signed-in user.
func (f *FakeAuth) SetUser(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userID = userID
}

func (f *FakeAuth) LoginCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls
}

func (f *FakeAuth) RegisterCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registerCalls
}

func (f *FakeAuth) LogoutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logoutCalls
}

// LastCredentials returns the arguments of the latest Login or Register.
func (f *FakeAuth) LastCredentials() (email, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastEmail, f.lastPassword
}

func (f *FakeAuth) credentialCall(ctx context.Context, counter *int, email, password string, injected error) error {
	f.mu.Lock()
	*counter++
	f.lastEmail, f.lastPassword = email, password
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return err
	}
	if injected != nil {
		return injected
	}
	f.mu.Lock()
	f.userID = "user:" + email
	f.mu.Unlock()
	return nil
}

func (f *FakeAuth) wait(ctx context.Context) error {
	if f.Gate == nil {
		return nil
	}
	select {
	case <-f.Gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
