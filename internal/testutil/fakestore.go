package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"todo/internal/live"
	"todo/internal/tasks"
)

// ErrNotFound is returned for writes to a missing task.
var ErrNotFound = errors.New("not found")

// FakeStore is an in-memory tasks.Store. Like the real store it pushes a
// fresh snapshot to every subscriber of a user after each successful write.
type FakeStore struct {
	mu        sync.Mutex
	tasks     map[string][]tasks.Task // userID -> tasks
	listeners map[*fakeListener]struct{}
	nextID    int

	subscribes int
	releases   int
	addCalls   int
	updates    int
	deletes    int

	// HoldInitial suppresses the snapshot normally pushed on subscription.
	HoldInitial bool

	// Error injection for testing
	AddTaskErr    error
	UpdateTaskErr error
	DeleteTaskErr error

	// Gate, when set, holds every write until it is closed or receives.
	Gate chan struct{}
}

type fakeListener struct {
	userID string
	fn     live.Listener[[]tasks.Task]
}

var _ tasks.Store = (*FakeStore)(nil)

// NewFakeStore creates an empty store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		tasks:     make(map[string][]tasks.Task),
		listeners: make(map[*fakeListener]struct{}),
	}
}

// Seed stores a task directly, without notifying subscribers.
func (f *FakeStore) Seed(userID string, t tasks.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[userID] = append(f.tasks[userID], t)
}

// Push delivers an arbitrary snapshot to the user's subscribers, standing in
// for a write made by another client.
func (f *FakeStore) Push(userID string, snapshot []tasks.Task) {
	for _, l := range f.listenersFor(userID) {
		l.fn(snapshot, nil)
	}
}

// FailSubscriptions delivers err to every subscriber of the user.
func (f *FakeStore) FailSubscriptions(userID string, err error) {
	for _, l := range f.listenersFor(userID) {
		l.fn(nil, err)
	}
}

// Subscribes reports how many listeners were registered.
func (f *FakeStore) Subscribes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

// Releases reports how many listeners were removed.
func (f *FakeStore) Releases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

// Active reports how many listeners are currently registered.
func (f *FakeStore) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *FakeStore) AddCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addCalls
}

func (f *FakeStore) UpdateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

func (f *FakeStore) DeleteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes
}

// Tasks returns a copy of the user's stored tasks.
func (f *FakeStore) Tasks(userID string) []tasks.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tasks.Task(nil), f.tasks[userID]...)
}

// Subscribe implements tasks.Store.
func (f *FakeStore) Subscribe(userID string) *live.Stream[[]tasks.Task] {
	return live.Listen(func(fn live.Listener[[]tasks.Task]) live.Registration {
		l := &fakeListener{userID: userID, fn: fn}
		f.mu.Lock()
		f.listeners[l] = struct{}{}
		f.subscribes++
		hold := f.HoldInitial
		snapshot := append([]tasks.Task{}, f.tasks[userID]...)
		f.mu.Unlock()

		if !hold {
			fn(snapshot, nil)
		}

		var once sync.Once
		return live.RegistrationFunc(func() {
			once.Do(func() {
				f.mu.Lock()
				delete(f.listeners, l)
				f.releases++
				f.mu.Unlock()
			})
		})
	})
}

// AddTask implements tasks.Store.
func (f *FakeStore) AddTask(ctx context.Context, userID, title string) (string, error) {
	f.mu.Lock()
	f.addCalls++
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	if f.AddTaskErr != nil {
		return "", f.AddTaskErr
	}

	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("task-%d", f.nextID)
	f.tasks[userID] = append(f.tasks[userID], tasks.Task{ID: id, Title: title})
	f.mu.Unlock()

	f.notify(userID)
	return id, nil
}

// UpdateTask implements tasks.Store.
func (f *FakeStore) UpdateTask(ctx context.Context, userID, id string, completed bool) error {
	f.mu.Lock()
	f.updates++
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return err
	}
	if f.UpdateTaskErr != nil {
		return f.UpdateTaskErr
	}

	f.mu.Lock()
	found := false
	list := append([]tasks.Task(nil), f.tasks[userID]...)
	for i := range list {
		if list[i].ID == id {
			list[i].Completed = completed
			found = true
		}
	}
	f.tasks[userID] = list
	f.mu.Unlock()

	if !found {
		return ErrNotFound
	}
	f.notify(userID)
	return nil
}

// DeleteTask implements tasks.Store.
func (f *FakeStore) DeleteTask(ctx context.Context, userID, id string) error {
	f.mu.Lock()
	f.deletes++
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return err
	}
	if f.DeleteTaskErr != nil {
		return f.DeleteTaskErr
	}

	f.mu.Lock()
	var kept []tasks.Task
	for _, t := range f.tasks[userID] {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	found := len(kept) != len(f.tasks[userID])
	f.tasks[userID] = kept
	f.mu.Unlock()

	if !found {
		return ErrNotFound
	}
	f.notify(userID)
	return nil
}

func (f *FakeStore) notify(userID string) {
	f.mu.Lock()
	snapshot := append([]tasks.Task{}, f.tasks[userID]...)
	f.mu.Unlock()
	f.Push(userID, snapshot)
}

func (f *FakeStore) listenersFor(userID string) []*fakeListener {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeListener
	for l := range f.listeners {
		if l.userID == userID {
			out = append(out, l)
		}
	}
	return out
}

func (f *FakeStore) wait(ctx context.Context) error {
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
