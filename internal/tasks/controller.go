package tasks

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"todo/internal/live"
	"todo/internal/observe"
)

// Controller owns the task list State, the live subscription feeding it, and
// the Effect queue. State writes are serialized through observe.Value;
// remote calls run on their own goroutines and apply their results
// independently, last write wins.
type Controller struct {
	session Session
	store   Store
	log     *slog.Logger

	state   *observe.Value[State]
	effects *observe.Queue[Effect]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// gen identifies the current subscription. Snapshots from an older one
	// are dropped.
	gen atomic.Uint64

	mu      sync.Mutex
	closed  bool
	stopSub context.CancelFunc
}

// NewController builds a controller and immediately starts loading tasks.
// Close must be called to release the subscription.
func NewController(session Session, store Store, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		session: session,
		store:   store,
		log:     log.With("component", "tasks"),
		state:   observe.NewValue(State{}),
		effects: observe.NewQueue[Effect](),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.loadTasks()
	return c
}

// State returns the latest state.
func (c *Controller) State() State {
	return c.state.Load()
}

// Watch returns the latest state and a channel closed on the next change.
func (c *Controller) Watch() (State, <-chan struct{}) {
	return c.state.Watch()
}

// NextEffect blocks for the next one-shot effect. After Close it drains what
// is left and then returns observe.ErrClosed.
func (c *Controller) NextEffect(ctx context.Context) (Effect, error) {
	return c.effects.Next(ctx)
}

// Dispatch handles one event. It never blocks on remote calls.
func (c *Controller) Dispatch(ev Event) {
	if c.isClosed() {
		return
	}
	switch ev := ev.(type) {
	case LoadTasksClicked:
		c.loadTasks()
	case TaskTitleChanged:
		c.state.Update(func(s State) State {
			s.TitleDraft = ev.Value
			return s
		})
	case AddTaskClicked:
		c.addTask()
	case TaskCompletionToggled:
		c.toggleTask(ev.Task)
	case DeleteTaskClicked:
		c.deleteTask(ev.Task)
	case LogoutClicked:
		c.logout()
	}
}

// Close cancels in-flight calls, releases the subscription and waits for
// every goroutine the controller started. It is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.stopSub != nil {
		c.stopSub()
		c.stopSub = nil
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.effects.Close()
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// launch runs fn on its own goroutine unless the controller is closed.
func (c *Controller) launch(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

// loadTasks reads the signed-in user before returning, so a logout
// dispatched right after cannot turn this load into an empty list.
func (c *Controller) loadTasks() {
	stream := c.subscribe()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		stream.Close()
		return
	}
	if c.stopSub != nil {
		c.stopSub()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.stopSub = cancel
	gen := c.gen.Add(1)
	c.wg.Add(1)
	c.mu.Unlock()

	c.state.Update(func(s State) State {
		s.Loading = true
		return s
	})

	go func() {
		defer c.wg.Done()
		defer cancel()
		c.collect(ctx, gen, stream)
	}()
}

func (c *Controller) collect(ctx context.Context, gen uint64, stream *live.Stream[[]Task]) {
	defer stream.Close()

	for {
		snapshot, err := stream.Next(ctx)
		switch {
		case err == nil:
			c.apply(gen, func(s State) State {
				s.Loading = false
				s.Error = NoError
				s.Tasks = snapshot
				return s
			})
		case errors.Is(err, live.ErrDone), errors.Is(err, live.ErrClosed), ctx.Err() != nil:
			return
		default:
			c.log.Warn("task subscription failed", "err", err)
			c.apply(gen, func(s State) State {
				s.Loading = false
				s.Error = ErrorTaskLoad
				return s
			})
			return
		}
	}
}

func (c *Controller) subscribe() *live.Stream[[]Task] {
	userID, ok := c.session.CurrentUserID()
	if !ok {
		return live.Just([]Task{})
	}
	return c.store.Subscribe(userID)
}

func (c *Controller) apply(gen uint64, fn func(State) State) {
	c.state.Update(func(s State) State {
		if c.gen.Load() != gen {
			return s
		}
		return fn(s)
	})
}

func (c *Controller) addTask() {
	title := strings.TrimSpace(c.state.Load().TitleDraft)
	if title == "" {
		return
	}
	c.launch(func(ctx context.Context) {
		userID, ok := c.session.CurrentUserID()
		if !ok {
			c.fail(AddFailed, "add task failed", ErrNotSignedIn)
			return
		}
		id, err := c.store.AddTask(ctx, userID, title)
		if err != nil {
			c.fail(AddFailed, "add task failed", err)
			return
		}
		c.log.Debug("task added", "id", id)
		c.state.Update(func(s State) State {
			s.TitleDraft = ""
			return s
		})
		c.effects.Push(AddSucceeded)
	})
}

func (c *Controller) toggleTask(t Task) {
	c.launch(func(ctx context.Context) {
		userID, ok := c.session.CurrentUserID()
		if !ok {
			c.fail(ToggleFailed, "toggle task failed", ErrNotSignedIn, "id", t.ID)
			return
		}
		if err := c.store.UpdateTask(ctx, userID, t.ID, !t.Completed); err != nil {
			c.fail(ToggleFailed, "toggle task failed", err, "id", t.ID)
		}
	})
}

func (c *Controller) deleteTask(t Task) {
	c.launch(func(ctx context.Context) {
		userID, ok := c.session.CurrentUserID()
		if !ok {
			c.fail(DeleteFailed, "delete task failed", ErrNotSignedIn, "id", t.ID)
			return
		}
		if err := c.store.DeleteTask(ctx, userID, t.ID); err != nil {
			c.fail(DeleteFailed, "delete task failed", err, "id", t.ID)
			return
		}
		c.effects.Push(DeleteSucceeded)
	})
}

func (c *Controller) logout() {
	c.launch(func(ctx context.Context) {
		if err := c.session.Logout(ctx); err != nil {
			c.fail(LogoutFailed, "logout failed", err)
			return
		}
		c.effects.Push(LogoutSucceeded)
	})
}

func (c *Controller) fail(effect Effect, msg string, err error, attrs ...any) {
	c.log.Warn(msg, append(attrs, "err", err)...)
	c.effects.Push(effect)
}
