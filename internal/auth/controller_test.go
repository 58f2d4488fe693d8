package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo/internal/auth"
	"todo/internal/observe"
	"todo/internal/testutil"
	"todo/internal/validate"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newController(t *testing.T, svc auth.Service) *auth.Controller {
	t.Helper()
	c := auth.NewController(svc, quietLog())
	t.Cleanup(c.Close)
	return c
}

func enter(c *auth.Controller, email, password string) {
	c.Dispatch(auth.EmailChanged{Value: email})
	c.Dispatch(auth.PasswordChanged{Value: password})
}

func nextEffect(t *testing.T, c *auth.Controller) auth.Effect {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e, err := c.NextEffect(ctx)
	require.NoError(t, err)
	return e
}

func noEffect(t *testing.T, c *auth.Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	e, err := c.NextEffect(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded, "unexpected effect %v", e)
}

func idle(c *auth.Controller) func() bool {
	return func() bool { return !c.State().Loading }
}

func TestInputChangesClearFieldErrors(t *testing.T) {
	svc := testutil.NewFakeAuth("")
	c := newController(t, svc)

	c.Dispatch(auth.LoginClicked{})
	s := c.State()
	require.Equal(t, validate.EmptyEmail, s.EmailError)
	require.Equal(t, validate.EmptyPassword, s.PasswordError)

	c.Dispatch(auth.EmailChanged{Value: "a@b"})
	s = c.State()
	assert.Equal(t, "a@b", s.Email)
	assert.Empty(t, s.EmailError)
	assert.Equal(t, validate.EmptyPassword, s.PasswordError, "other field untouched")

	c.Dispatch(auth.PasswordChanged{Value: "pw"})
	s = c.State()
	assert.Equal(t, "pw", s.Password)
	assert.Empty(t, s.PasswordError)
}

func TestLogin_InvalidCredentialsSkipService(t *testing.T) {
	svc := testutil.NewFakeAuth("")
	c := newController(t, svc)

	enter(c, "a@b@c", "has space")
	c.Dispatch(auth.LoginClicked{})
	c.Dispatch(auth.RegisterClicked{})

	s := c.State()
	assert.Equal(t, validate.InvalidEmail, s.EmailError)
	assert.Equal(t, validate.PasswordContainsWhitespace, s.PasswordError)
	assert.False(t, s.Loading)
	assert.Equal(t, 0, svc.LoginCalls())
	assert.Equal(t, 0, svc.RegisterCalls())
	noEffect(t, c)
}

func TestLogin_ValidationReplacesBothFieldErrors(t *testing.T) {
	svc := testutil.NewFakeAuth("")
	c := newController(t, svc)

	c.Dispatch(auth.LoginClicked{})
	require.Equal(t, validate.EmptyPassword, c.State().PasswordError)

	// Typing a valid password then failing only on email must clear the
	// stale password error.
	enter(c, "nope", "secret")
	c.Dispatch(auth.LoginClicked{})
	s := c.State()
	assert.Equal(t, validate.InvalidEmail, s.EmailError)
	assert.Empty(t, s.PasswordError)
}

func TestLogin_Success(t *testing.T) {
	svc := testutil.NewFakeAuth("")
	c := newController(t, svc)

	enter(c, "  a@b ", " secret  ")
	c.Dispatch(auth.LoginClicked{})

	assert.Equal(t, auth.LoginSucceeded, nextEffect(t, c))
	require.Eventually(t, idle(c), time.Second, time.Millisecond)
	noEffect(t, c)

	email, password := svc.LastCredentials()
	assert.Equal(t, "a@b", email)
	assert.Equal(t, "secret", password)
	assert.Equal(t, 1, svc.LoginCalls())
	assert.Equal(t, auth.NoError, c.State().Error)
}

func TestLogin_Rejected(t *testing.T) {
	svc := testutil.NewFakeAuth("")
	svc.LoginErr = errors.New("wrong password")
	c := newController(t, svc)

	enter(c, "a@b", "secret")
	c.Dispatch(auth.LoginClicked{})

	require.Eventually(t, func() bool {
		s := c.State()
		return !s.Loading && s.Error == auth.GenericAuthError
	}, time.Second, time.Millisecond)
	noEffect(t, c)
}

func TestLogin_LoadingWhileInFlight(t *testing.T) {
	svc := testutil.NewFakeAuth("")
	svc.Gate = make(chan struct{})
	c := newController(t, svc)

	enter(c, "a@b", "secret")
	c.Dispatch(auth.LoginClicked{})
	assert.True(t, c.State().Loading)

	close(svc.Gate)
	assert.Equal(t, auth.LoginSucceeded, nextEffect(t, c))
	require.Eventually(t, idle(c), time.Second, time.Millisecond)
}

func TestLogin_DuplicateClicksNotSuppressed(t *testing.T) {
	svc := testutil.NewFakeAuth("")
	svc.Gate = make(chan struct{})
	c := newController(t, svc)

	enter(c, "a@b", "secret")
	c.Dispatch(auth.LoginClicked{})
	c.Dispatch(auth.LoginClicked{})

	require.Eventually(t, func() bool { return svc.LoginCalls() == 2 }, time.Second, time.Millisecond)
	close(svc.Gate)

	assert.Equal(t, auth.LoginSucceeded, nextEffect(t, c))
	assert.Equal(t, auth.LoginSucceeded, nextEffect(t, c))
}

func TestRegister_Success(t *testing.T) {
	svc := testutil.NewFakeAuth("")
	c := newController(t, svc)

	enter(c, "new@user", "secret")
	c.Dispatch(auth.RegisterClicked{})

	assert.Equal(t, auth.RegisterSucceeded, nextEffect(t, c))
	require.Eventually(t, idle(c), time.Second, time.Millisecond)
	assert.Equal(t, 1, svc.RegisterCalls())
	assert.Equal(t, 0, svc.LoginCalls())
}

func TestRegister_Rejected(t *testing.T) {
	svc := testutil.NewFakeAuth("")
	svc.RegisterErr = auth.ErrEmailTaken
	c := newController(t, svc)

	enter(c, "a@b", "secret")
	c.Dispatch(auth.RegisterClicked{})

	require.Eventually(t, func() bool {
		s := c.State()
		return !s.Loading && s.Error == auth.GenericAuthError
	}, time.Second, time.Millisecond)
	noEffect(t, c)
}

func TestClose_CancelsInFlight(t *testing.T) {
	svc := testutil.NewFakeAuth("")
	svc.Gate = make(chan struct{})
	c := auth.NewController(svc, quietLog())

	enter(c, "a@b", "secret")
	c.Dispatch(auth.LoginClicked{})
	require.Eventually(t, func() bool { return svc.LoginCalls() == 1 }, time.Second, time.Millisecond)

	c.Close()
	c.Close()

	assert.False(t, c.State().Loading)
	_, err := c.NextEffect(context.Background())
	assert.ErrorIs(t, err, observe.ErrClosed)
}
