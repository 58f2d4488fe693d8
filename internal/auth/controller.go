package auth

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"todo/internal/observe"
	"todo/internal/validate"
)

// Controller owns the sign-in State and Effect queue.
//
// A second LoginClicked or RegisterClicked while a request is in flight
// starts another request; submissions are not deduplicated here.
type Controller struct {
	svc Service
	log *slog.Logger

	state   *observe.Value[State]
	effects *observe.Queue[Effect]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewController returns a controller with empty input.
func NewController(svc Service, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		svc:     svc,
		log:     log.With("component", "auth"),
		state:   observe.NewValue(State{}),
		effects: observe.NewQueue[Effect](),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// State returns the latest state.
func (c *Controller) State() State {
	return c.state.Load()
}

// Watch returns the latest state and a channel closed on the next change.
func (c *Controller) Watch() (State, <-chan struct{}) {
	return c.state.Watch()
}

// NextEffect blocks for the next one-shot effect.
func (c *Controller) NextEffect(ctx context.Context) (Effect, error) {
	return c.effects.Next(ctx)
}

// Dispatch handles one event without blocking on the service.
func (c *Controller) Dispatch(ev Event) {
	switch ev := ev.(type) {
	case EmailChanged:
		c.state.Update(func(s State) State {
			s.Email = ev.Value
			s.EmailError = ""
			return s
		})
	case PasswordChanged:
		c.state.Update(func(s State) State {
			s.Password = ev.Value
			s.PasswordError = ""
			return s
		})
	case LoginClicked:
		c.submit("login", c.svc.Login, LoginSucceeded)
	case RegisterClicked:
		c.submit("register", c.svc.Register, RegisterSucceeded)
	}
}

// Close cancels in-flight requests and waits for them to finish.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.effects.Close()
}

type credentialCall func(ctx context.Context, email, password string) error

func (c *Controller) submit(op string, call credentialCall, success Effect) {
	cur := c.state.Load()
	email := strings.TrimSpace(cur.Email)
	password := strings.TrimSpace(cur.Password)

	if errs := validate.Credentials(email, password); !errs.Valid() {
		c.state.Update(func(s State) State {
			s.EmailError = errs.Get(validate.FieldEmail)
			s.PasswordError = errs.Get(validate.FieldPassword)
			return s
		})
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.state.Update(func(s State) State {
		s.Loading = true
		return s
	})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.state.Update(func(s State) State {
			s.Loading = false
			return s
		})

		if err := call(c.ctx, email, password); err != nil {
			c.log.Warn(op+" failed", "err", err)
			c.state.Update(func(s State) State {
				s.Error = GenericAuthError
				return s
			})
			return
		}
		c.effects.Push(success)
	}()
}
