package storage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"todo/internal/live"
	"todo/internal/tasks"
)

type listener struct {
	userID  string
	fn      func([]tasks.Task, error)
	removed atomic.Bool
}

func newID() string {
	return uuid.NewString()
}

// AddSnapshotListener registers fn for the user's collection. fn receives the
// current snapshot before AddSnapshotListener returns, then one snapshot
// after every change. If a snapshot cannot be read, fn receives the error
// once and is dropped. fn must not block.
func (s *Store) AddSnapshotListener(userID string, fn func([]tasks.Task, error)) live.Registration {
	l := &listener{userID: userID, fn: fn}

	s.notifyMu.Lock()
	s.mu.Lock()
	s.listeners[l] = struct{}{}
	s.mu.Unlock()
	s.log.Debug("listener added", "user", userID)
	s.deliver(context.Background(), userID, []*listener{l})
	s.notifyMu.Unlock()

	return live.RegistrationFunc(func() { s.removeListener(l) })
}

// Subscribe opens a live stream over the user's collection. An empty user id
// yields a stream that fails with tasks.ErrNotSignedIn.
func (s *Store) Subscribe(userID string) *live.Stream[[]tasks.Task] {
	if userID == "" {
		return live.Fail[[]tasks.Task](tasks.ErrNotSignedIn)
	}
	return live.Listen(func(l live.Listener[[]tasks.Task]) live.Registration {
		return s.AddSnapshotListener(userID, l)
	})
}

// Watch polls the database for commits made through other connections,
// such as another process sharing the file, and re-delivers snapshots to
// every listener when one is seen. It returns when ctx is done.
func (s *Store) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last, err := s.dataVersion(ctx)
	if err != nil {
		s.log.Warn("read data_version", "err", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		v, err := s.dataVersion(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("read data_version", "err", err)
			}
			continue
		}
		if v == last {
			continue
		}
		last = v
		s.log.Debug("external change detected", "data_version", v)
		s.notifyAll(ctx)
	}
}

func (s *Store) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `PRAGMA data_version;`).Scan(&v)
	return v, err
}

func (s *Store) removeListener(l *listener) {
	if l.removed.Swap(true) {
		return
	}
	s.mu.Lock()
	delete(s.listeners, l)
	s.mu.Unlock()
	s.log.Debug("listener removed", "user", l.userID)
}

func (s *Store) notifyUser(ctx context.Context, userID string) {
	s.notify(ctx, func(id string) bool { return id == userID })
}

func (s *Store) notifyAll(ctx context.Context) {
	s.notify(ctx, func(string) bool { return true })
}

func (s *Store) notify(ctx context.Context, match func(userID string) bool) {
	// The write already committed; deliver even if the caller gave up.
	ctx = context.WithoutCancel(ctx)

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	byUser := map[string][]*listener{}
	s.mu.Lock()
	for l := range s.listeners {
		if match(l.userID) {
			byUser[l.userID] = append(byUser[l.userID], l)
		}
	}
	s.mu.Unlock()

	for userID, ls := range byUser {
		s.deliver(ctx, userID, ls)
	}
}

// deliver must be called with notifyMu held.
func (s *Store) deliver(ctx context.Context, userID string, ls []*listener) {
	snapshot, err := s.FetchTasks(ctx, userID)
	for _, l := range ls {
		if l.removed.Load() {
			continue
		}
		if err != nil {
			s.removeListener(l)
			l.fn(nil, err)
			continue
		}
		l.fn(snapshot, nil)
	}
}
