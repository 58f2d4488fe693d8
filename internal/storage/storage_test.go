package storage_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo/internal/storage"
	"todo/internal/tasks"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(t *testing.T, path string) *storage.Store {
	t.Helper()
	s, err := storage.Open(path, quietLog())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func tempDB(t *testing.T) string {
	return filepath.Join(t.TempDir(), "nested", "todo.db")
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := storage.Open("", quietLog())
	assert.Error(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	path := tempDB(t)
	s, err := storage.Open(path, quietLog())
	require.NoError(t, err)
	_, err = s.AddTask(context.Background(), "u1", "persisted")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2 := openStore(t, path)
	list, err := s2.FetchTasks(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "persisted", list[0].Title)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, tempDB(t))

	u := storage.User{ID: "u1", Email: "a@b", PasswordHash: "hash", CreatedAt: time.Now()}
	require.NoError(t, s.CreateUser(ctx, u))

	err := s.CreateUser(ctx, storage.User{ID: "u2", Email: "a@b", PasswordHash: "x", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, storage.ErrEmailTaken)

	err = s.CreateUser(ctx, storage.User{ID: "u1", Email: "other@b", PasswordHash: "x", CreatedAt: time.Now()})
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrEmailTaken, "id collision reported as duplicate email")

	got, err := s.UserByEmail(ctx, "a@b")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = s.UserByEmail(ctx, "nobody@b")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSession(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, tempDB(t))

	_, err := s.CurrentSession(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.SaveSession(ctx, "u1"))
	require.NoError(t, s.SaveSession(ctx, "u2"))
	id, err := s.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u2", id)

	require.NoError(t, s.ClearSession(ctx))
	_, err = s.CurrentSession(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTasks_CRUD(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, tempDB(t))

	id1, err := s.AddTask(ctx, "u1", "buy milk")
	require.NoError(t, err)
	id2, err := s.AddTask(ctx, "u1", "walk dog")
	require.NoError(t, err)
	_, err = s.AddTask(ctx, "u2", "someone else")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	require.NoError(t, s.UpdateTask(ctx, "u1", id1, true))

	list, err := s.FetchTasks(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []tasks.Task{
		{ID: id1, Title: "buy milk", Completed: true},
		{ID: id2, Title: "walk dog", Completed: false},
	}, list)

	require.NoError(t, s.DeleteTask(ctx, "u1", id1))
	list, err = s.FetchTasks(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []tasks.Task{{ID: id2, Title: "walk dog"}}, list)
}

func TestTasks_WritesFailForMissingDocument(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, tempDB(t))

	id, err := s.AddTask(ctx, "u1", "mine")
	require.NoError(t, err)

	assert.ErrorIs(t, s.UpdateTask(ctx, "u1", "missing", true), storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteTask(ctx, "u1", "missing"), storage.ErrNotFound)
	assert.ErrorIs(t, s.UpdateTask(ctx, "u2", id, true), storage.ErrNotFound, "other user's task")

	require.NoError(t, s.DeleteTask(ctx, "u1", id))
	assert.ErrorIs(t, s.DeleteTask(ctx, "u1", id), storage.ErrNotFound)
}

func TestTasks_EmptyTitleRejected(t *testing.T) {
	s := openStore(t, tempDB(t))
	_, err := s.AddTask(context.Background(), "u1", "  ")
	assert.Error(t, err)
}

// recorder collects listener callbacks.
type recorder struct {
	mu    sync.Mutex
	snaps [][]tasks.Task
	errs  []error
}

func (r *recorder) fn(list []tasks.Task, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errs = append(r.errs, err)
		return
	}
	r.snaps = append(r.snaps, list)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() []tasks.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func TestSnapshotListener(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, tempDB(t))

	var mine, theirs recorder
	reg := s.AddSnapshotListener("u1", mine.fn)
	s.AddSnapshotListener("u2", theirs.fn)

	require.Equal(t, 1, mine.count(), "initial snapshot")
	assert.Empty(t, mine.last())

	id, err := s.AddTask(ctx, "u1", "buy milk")
	require.NoError(t, err)
	require.Equal(t, 2, mine.count())
	assert.Equal(t, []tasks.Task{{ID: id, Title: "buy milk"}}, mine.last())
	assert.Equal(t, 1, theirs.count(), "other user not notified")

	require.NoError(t, s.UpdateTask(ctx, "u1", id, true))
	require.Equal(t, 3, mine.count())
	assert.True(t, mine.last()[0].Completed)

	reg.Remove()
	reg.Remove()
	require.NoError(t, s.DeleteTask(ctx, "u1", id))
	assert.Equal(t, 3, mine.count(), "removed listener still notified")
}

func TestSubscribe_Stream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s := openStore(t, tempDB(t))

	stream := s.Subscribe("u1")
	defer stream.Close()

	first, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, first)

	id, err := s.AddTask(ctx, "u1", "x")
	require.NoError(t, err)

	second, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []tasks.Task{{ID: id, Title: "x"}}, second)
}

func TestWatch_SeesOtherConnectionWrites(t *testing.T) {
	path := tempDB(t)
	reader := openStore(t, path)
	writer := openStore(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reader.Watch(ctx, 10*time.Millisecond)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	var rec recorder
	reader.AddSnapshotListener("u1", rec.fn)
	require.Equal(t, 1, rec.count())

	// Let the watcher take its baseline first.
	time.Sleep(50 * time.Millisecond)

	_, err := writer.AddTask(context.Background(), "u1", "from elsewhere")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		if rec.count() < 2 {
			return false
		}
		last := rec.last()
		return len(last) == 1 && last[0].Title == "from elsewhere"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOpen_MigratesTasksWithoutUpdatedAt(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE tasks (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	completed INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
INSERT INTO tasks (id, user_id, title, created_at) VALUES ('t1', 'u1', 'old', '2024-01-01T00:00:00Z');`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s := openStore(t, path)
	require.NoError(t, s.UpdateTask(ctx, "u1", "t1", true))

	list, err := s.FetchTasks(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []tasks.Task{{ID: "t1", Title: "old", Completed: true}}, list)
}

func TestSubscribe_EmptyUserFails(t *testing.T) {
	s := openStore(t, tempDB(t))
	stream := s.Subscribe("")
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := stream.Next(ctx)
	assert.ErrorIs(t, err, tasks.ErrNotSignedIn)
}

func TestWatch_ReturnsWhenCancelled(t *testing.T) {
	s := openStore(t, tempDB(t))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Watch(ctx, 5*time.Millisecond)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
