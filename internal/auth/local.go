package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"todo/internal/storage"
)

// Accounts is the persistence Local needs. *storage.Store implements it.
type Accounts interface {
	CreateUser(ctx context.Context, u storage.User) error
	UserByEmail(ctx context.Context, email string) (storage.User, error)
	SaveSession(ctx context.Context, userID string) error
	ClearSession(ctx context.Context) error
	CurrentSession(ctx context.Context) (string, error)
}

// Local is a Service backed by the local database. Passwords are stored as
// bcrypt hashes; the signed-in user is persisted so it survives restarts.
type Local struct {
	accounts Accounts
	log      *slog.Logger
	cost     int

	mu     sync.RWMutex
	userID string
}

// NewLocal restores any persisted session from accounts.
func NewLocal(ctx context.Context, accounts Accounts, log *slog.Logger) (*Local, error) {
	if log == nil {
		log = slog.Default()
	}
	l := &Local{
		accounts: accounts,
		log:      log.With("component", "auth"),
		cost:     bcrypt.DefaultCost,
	}
	userID, err := accounts.CurrentSession(ctx)
	switch {
	case err == nil:
		l.userID = userID
		l.log.Debug("session restored", "user", userID)
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("restore session: %w", err)
	}
	return l, nil
}

// SetCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (l *Local) SetCost(cost int) {
	l.cost = cost
}

// Login verifies the credentials and signs the user in.
func (l *Local) Login(ctx context.Context, email, password string) error {
	u, err := l.accounts.UserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return l.signIn(ctx, u.ID)
}

// Register creates an account and signs the new user in.
func (l *Local) Register(ctx context.Context, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u := storage.User{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(email),
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := l.accounts.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			return ErrEmailTaken
		}
		return err
	}
	return l.signIn(ctx, u.ID)
}

// Logout ends the current session.
func (l *Local) Logout(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.userID == "" {
		return ErrNotSignedIn
	}
	if err := l.accounts.ClearSession(ctx); err != nil {
		return err
	}
	l.log.Info("signed out", "user", l.userID)
	l.userID = ""
	return nil
}

// CurrentUserID returns the signed-in user, if any.
func (l *Local) CurrentUserID() (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.userID, l.userID != ""
}

func (l *Local) signIn(ctx context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.accounts.SaveSession(ctx, userID); err != nil {
		return err
	}
	l.userID = userID
	l.log.Info("signed in", "user", userID)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
