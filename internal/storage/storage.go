// Package storage is the sqlite backend: user accounts, the persisted
// session, and each user's task collection with push-based snapshot
// listeners.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"todo/internal/tasks"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned by CreateUser for a duplicate email.
	ErrEmailTaken = errors.New("email already registered")
)

// User is an account row.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Store struct {
	db  *sql.DB
	log *slog.Logger

	mu        sync.Mutex
	listeners map[*listener]struct{}

	// notifyMu orders snapshot delivery so no listener sees an older
	// snapshot after a newer one.
	notifyMu sync.Mutex
}

func Open(dbPath string, log *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("db path is empty")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, err
	}
	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, err
	}
	// data_version is per connection, so every query must share one.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:        db,
		log:       log.With("component", "storage"),
		listeners: make(map[*listener]struct{}),
	}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	for l := range s.listeners {
		l.removed.Store(true)
	}
	s.listeners = make(map[*listener]struct{})
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS session (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	user_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	completed INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT DEFAULT NULL
);
CREATE INDEX IF NOT EXISTS tasks_user_id ON tasks (user_id);`
	if _, err := s.db.Exec(ddl); err != nil {
		return err
	}
	// Files created before updated_at existed only get it through ALTER.
	return s.ensureColumns("tasks", map[string]string{
		"updated_at": "ALTER TABLE tasks ADD COLUMN updated_at TEXT DEFAULT NULL;",
	})
}

func (s *Store) ensureColumns(table string, required map[string]string) error {
	existing := map[string]struct{}{}
	rows, err := s.db.Query(fmt.Sprintf(`PRAGMA table_info(%s);`, table))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		existing[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()
	for col, alter := range required {
		if _, ok := existing[col]; ok {
			continue
		}
		if _, err := s.db.Exec(alter); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?);`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt.UTC().Format(time.RFC3339))
	if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
		return ErrEmailTaken
	}
	return err
}

func (s *Store) UserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	var createdStr string
	err := s.db.QueryRowContext(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email = ?;`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if created, err := time.Parse(time.RFC3339, createdStr); err == nil {
		u.CreatedAt = created
	}
	return u, nil
}

func (s *Store) SaveSession(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO session (id, user_id) VALUES (1, ?)
ON CONFLICT (id) DO UPDATE SET user_id = excluded.user_id;`, userID)
	return err
}

func (s *Store) ClearSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE id = 1;`)
	return err
}

// CurrentSession returns the persisted user id, or ErrNotFound.
func (s *Store) CurrentSession(ctx context.Context) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM session WHERE id = 1;`).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return userID, err
}

// FetchTasks returns the user's tasks in insertion order.
func (s *Store) FetchTasks(ctx context.Context, userID string) ([]tasks.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, completed FROM tasks WHERE user_id = ? ORDER BY seq;`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []tasks.Task{}
	for rows.Next() {
		var t tasks.Task
		var completed int
		if err := rows.Scan(&t.ID, &t.Title, &completed); err != nil {
			return nil, err
		}
		t.Completed = completed == 1
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// AddTask inserts an incomplete task and returns its new id.
func (s *Store) AddTask(ctx context.Context, userID, title string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", errors.New("title is empty")
	}
	id := newID()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `INSERT INTO tasks (id, user_id, title, completed, created_at) VALUES (?, ?, ?, 0, ?);`,
		id, userID, title, now)
	if err != nil {
		return "", err
	}
	s.notifyUser(ctx, userID)
	return id, nil
}

func (s *Store) UpdateTask(ctx context.Context, userID, id string, completed bool) error {
	val := 0
	if completed {
		val = 1
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET completed = ?, updated_at = ? WHERE user_id = ? AND id = ?;`,
		val, now, userID, id)
	if err := affectedOne(res, err); err != nil {
		return err
	}
	s.notifyUser(ctx, userID)
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ? AND id = ?;`, userID, id)
	if err := affectedOne(res, err); err != nil {
		return err
	}
	s.notifyUser(ctx, userID)
	return nil
}

// isConstraint reports whether err is a sqlite constraint violation with the
// given extended code. A primary key collision is SQLITE_CONSTRAINT_PRIMARYKEY,
// not SQLITE_CONSTRAINT_UNIQUE.
func isConstraint(err error, code int) bool {
	var serr *sqlite.Error
	return errors.As(err, &serr) && serr.Code() == code
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	u := url.URL{
		Scheme: "file",
		Path:   path,
	}
	q := u.Query()
	q.Set("mode", "rwc")
	q.Set("_pragma", "busy_timeout(5000)")
	u.RawQuery = q.Encode()
	return u.String()
}
