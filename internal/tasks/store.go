package tasks

import (
	"context"
	"errors"

	"todo/internal/live"
)

// ErrNotSignedIn is reported to write operations when no session is active.
var ErrNotSignedIn = errors.New("not signed in")

// Store is the per-user document collection backing the task list.
// Every call takes the user id explicitly; the store never looks up a
// session on its own.
type Store interface {
	// Subscribe opens a live view of the user's collection. Each element is
	// the complete ordered list at that point in time. Every successful write
	// made through this Store is followed by at least one snapshot.
	Subscribe(userID string) *live.Stream[[]Task]

	// AddTask creates an incomplete task and returns the assigned id.
	AddTask(ctx context.Context, userID, title string) (string, error)

	// UpdateTask sets the completion flag. It fails if the task is gone.
	UpdateTask(ctx context.Context, userID, id string, completed bool) error

	// DeleteTask removes the task. It fails if the task is gone.
	DeleteTask(ctx context.Context, userID, id string) error
}

// Session is the part of the auth service the task screen depends on.
type Session interface {
	CurrentUserID() (string, bool)
	Logout(ctx context.Context) error
}
