package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"todo/internal/auth"
	"todo/internal/config"
	"todo/internal/tasks"
)

type screen int

const (
	screenAuth screen = iota
	screenTasks
)

type mode int

const (
	modeList mode = iota
	modeAdd
)

const (
	focusEmail = iota
	focusPassword
)

var (
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
	headerStyle = lipgloss.NewStyle().Bold(true)
)

type Model struct {
	svc   auth.Service
	store tasks.Store
	cfg   config.Config
	log   *slog.Logger

	screen    screen
	authCtrl  *auth.Controller
	authState auth.State

	// taskCtrl exists only on the task screen. taskGen increments every time
	// it is replaced so messages from a disposed controller are ignored.
	taskCtrl  *tasks.Controller
	taskDone  chan struct{}
	taskGen   int
	taskState tasks.State

	email    textinput.Model
	password textinput.Model
	draft    textinput.Model
	focus    int

	cursor     int
	mode       mode
	confirmDel bool
	pendingDel *tasks.Task
	status     string
	statusErr  bool
}

type authStateMsg struct {
	state auth.State
	next  <-chan struct{}
}

type authEffectMsg struct{ effect auth.Effect }

type taskStateMsg struct {
	gen   int
	state tasks.State
	next  <-chan struct{}
}

type taskEffectMsg struct {
	gen    int
	effect tasks.Effect
}

// New builds the root model. A persisted session opens the task screen
// directly.
func New(svc auth.Service, store tasks.Store, cfg config.Config, log *slog.Logger) Model {
	email := textinput.New()
	email.Placeholder = "Email"
	email.CharLimit = 256
	email.Width = 40
	email.Focus()

	password := textinput.New()
	password.Placeholder = "Password"
	password.CharLimit = 128
	password.Width = 40
	password.EchoMode = textinput.EchoPassword

	draft := textinput.New()
	draft.Placeholder = "Task title"
	draft.CharLimit = 256
	draft.Width = 40

	m := Model{
		svc:      svc,
		store:    store,
		cfg:      cfg,
		log:      log,
		authCtrl: auth.NewController(svc, log),
		email:    email,
		password: password,
		draft:    draft,
		screen:   screenAuth,
		status:   "Enter to sign in, " + cfg.Keys.Register + " to register.",
	}
	if _, ok := svc.CurrentUserID(); ok {
		m = m.openTasks()
	}
	return m
}

func Run(svc auth.Service, store tasks.Store, cfg config.Config, log *slog.Logger) error {
	m := New(svc, store, cfg, log)
	program := tea.NewProgram(m)
	final, err := program.Run()
	if fm, ok := final.(Model); ok {
		fm.shutdown()
	} else {
		m.shutdown()
	}
	return err
}

func (m Model) Init() tea.Cmd {
	_, changed := m.authCtrl.Watch()
	cmds := []tea.Cmd{textinput.Blink, watchAuth(m.authCtrl, changed), nextAuthEffect(m.authCtrl)}
	if m.taskCtrl != nil {
		cmds = append(cmds, m.taskCmds()...)
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.screen == screenAuth {
			return m.updateAuth(msg)
		}
		if m.confirmDel {
			return m.updateDeleteConfirm(msg.String())
		}
		if m.mode == modeAdd {
			return m.updateAddMode(msg)
		}
		return m.updateListMode(msg.String())
	case tea.WindowSizeMsg:
		w := msg.Width - 10
		m.email.Width, m.password.Width, m.draft.Width = w, w, w
	case authStateMsg:
		m.authState = msg.state
		return m, watchAuth(m.authCtrl, msg.next)
	case authEffectMsg:
		return m.handleAuthEffect(msg.effect)
	case taskStateMsg:
		if msg.gen != m.taskGen || m.taskCtrl == nil {
			return m, nil
		}
		m.taskState = msg.state
		m.cursor = clampCursor(m.cursor, len(m.taskState.Tasks))
		return m, watchTasks(m.taskCtrl, msg.next, m.taskDone, m.taskGen)
	case taskEffectMsg:
		if msg.gen != m.taskGen || m.taskCtrl == nil {
			return m, nil
		}
		return m.handleTaskEffect(msg.effect)
	}
	return m, nil
}

func (m Model) updateAuth(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case m.cfg.Keys.Cancel:
		return m, tea.Quit
	case m.cfg.Keys.NextField, "shift+tab", "up", "down":
		if m.focus == focusEmail {
			m.focus = focusPassword
			m.email.Blur()
			m.password.Focus()
		} else {
			m.focus = focusEmail
			m.password.Blur()
			m.email.Focus()
		}
		return m, nil
	case m.cfg.Keys.Confirm:
		m.authCtrl.Dispatch(auth.LoginClicked{})
		return m, nil
	case m.cfg.Keys.Register:
		m.authCtrl.Dispatch(auth.RegisterClicked{})
		return m, nil
	}

	var cmd tea.Cmd
	if m.focus == focusEmail {
		before := m.email.Value()
		m.email, cmd = m.email.Update(msg)
		if v := m.email.Value(); v != before {
			m.authCtrl.Dispatch(auth.EmailChanged{Value: v})
		}
	} else {
		before := m.password.Value()
		m.password, cmd = m.password.Update(msg)
		if v := m.password.Value(); v != before {
			m.authCtrl.Dispatch(auth.PasswordChanged{Value: v})
		}
	}
	m.authState = m.authCtrl.State()
	return m, cmd
}

func (m Model) handleAuthEffect(e auth.Effect) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{nextAuthEffect(m.authCtrl)}
	switch e {
	case auth.LoginSucceeded:
		m = m.openTasks()
		m.setStatus("Signed in", false)
		cmds = append(cmds, m.taskCmds()...)
	case auth.RegisterSucceeded:
		m = m.openTasks()
		m.setStatus("Account created", false)
		cmds = append(cmds, m.taskCmds()...)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) updateAddMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case m.cfg.Keys.Cancel:
		m.mode = modeList
		m.draft.SetValue("")
		m.draft.Blur()
		m.taskCtrl.Dispatch(tasks.TaskTitleChanged{Value: ""})
		m.setStatus("Cancelled", false)
		return m, nil
	case m.cfg.Keys.Confirm:
		if strings.TrimSpace(m.draft.Value()) == "" {
			m.setStatus("Title cannot be empty", true)
			return m, nil
		}
		m.taskCtrl.Dispatch(tasks.AddTaskClicked{})
		m.setStatus("Saving…", false)
		return m, nil
	default:
		var cmd tea.Cmd
		before := m.draft.Value()
		m.draft, cmd = m.draft.Update(msg)
		if v := m.draft.Value(); v != before {
			m.taskCtrl.Dispatch(tasks.TaskTitleChanged{Value: v})
		}
		return m, cmd
	}
}

func (m Model) updateListMode(key string) (tea.Model, tea.Cmd) {
	list := m.taskState.Tasks
	switch key {
	case m.cfg.Keys.Quit:
		return m, tea.Quit
	case m.cfg.Keys.Down, "down":
		if len(list) == 0 {
			return m, nil
		}
		m.cursor = clampCursor(m.cursor+1, len(list))
	case m.cfg.Keys.Up, "up":
		if m.cursor > 0 {
			m.cursor = clampCursor(m.cursor-1, len(list))
		}
	case m.cfg.Keys.Add:
		m.mode = modeAdd
		m.draft.SetValue(m.taskState.TitleDraft)
		m.draft.Focus()
		m.setStatus("Add mode: type a title and press Enter", false)
	case m.cfg.Keys.Toggle:
		if len(list) == 0 {
			return m, nil
		}
		m.taskCtrl.Dispatch(tasks.TaskCompletionToggled{Task: list[m.cursor]})
	case m.cfg.Keys.Delete:
		if len(list) == 0 {
			return m, nil
		}
		t := list[m.cursor]
		m.confirmDel = true
		m.pendingDel = &t
		m.setStatus(fmt.Sprintf("Delete \"%s\"? y/n", t.Title), false)
	case m.cfg.Keys.Reload:
		m.taskCtrl.Dispatch(tasks.LoadTasksClicked{})
		m.setStatus("Reloading", false)
	case m.cfg.Keys.Logout:
		m.taskCtrl.Dispatch(tasks.LogoutClicked{})
	}
	return m, nil
}

func (m Model) updateDeleteConfirm(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "n", "N", m.cfg.Keys.Cancel:
		m.setStatus("Delete cancelled", false)
	case "y", "Y":
		if m.pendingDel == nil {
			m.setStatus("Nothing to delete", false)
			break
		}
		m.taskCtrl.Dispatch(tasks.DeleteTaskClicked{Task: *m.pendingDel})
	default:
		return m, nil
	}
	m.confirmDel = false
	m.pendingDel = nil
	return m, nil
}

func (m Model) handleTaskEffect(e tasks.Effect) (tea.Model, tea.Cmd) {
	switch e {
	case tasks.AddSucceeded:
		m.mode = modeList
		m.draft.SetValue("")
		m.draft.Blur()
		m.setStatus("Added task", false)
	case tasks.AddFailed:
		m.setStatus("Could not add the task. Try again.", true)
	case tasks.ToggleFailed:
		m.setStatus("Could not update the task.", true)
	case tasks.DeleteSucceeded:
		m.setStatus("Deleted task", false)
	case tasks.DeleteFailed:
		m.setStatus("Could not delete the task.", true)
	case tasks.LogoutSucceeded:
		m = m.closeTasks()
		m.setStatus("Signed out", false)
		return m, nil
	case tasks.LogoutFailed:
		m.setStatus("Could not sign out.", true)
	}
	return m, nextTaskEffect(m.taskCtrl, m.taskGen)
}

// openTasks creates the task controller, which starts its subscription.
func (m Model) openTasks() Model {
	m = m.closeTasks()
	m.taskGen++
	m.taskCtrl = tasks.NewController(m.svc, m.store, m.log)
	m.taskDone = make(chan struct{})
	m.taskState = m.taskCtrl.State()
	m.screen = screenTasks
	m.mode = modeList
	m.cursor = 0
	return m
}

// closeTasks disposes the task controller, releasing its subscription.
func (m Model) closeTasks() Model {
	if m.taskCtrl != nil {
		select {
		case <-m.taskDone:
		default:
			close(m.taskDone)
		}
		m.taskCtrl.Close()
		m.taskCtrl = nil
	}
	m.taskState = tasks.State{}
	m.confirmDel = false
	m.pendingDel = nil
	m.draft.SetValue("")
	m.screen = screenAuth
	return m
}

func (m Model) shutdown() {
	if m.taskCtrl != nil {
		m.closeTasks()
	}
	m.authCtrl.Close()
}

func (m Model) taskCmds() []tea.Cmd {
	_, changed := m.taskCtrl.Watch()
	return []tea.Cmd{
		func() tea.Msg {
			s, next := m.taskCtrl.Watch()
			return taskStateMsg{gen: m.taskGen, state: s, next: next}
		},
		watchTasks(m.taskCtrl, changed, m.taskDone, m.taskGen),
		nextTaskEffect(m.taskCtrl, m.taskGen),
	}
}

func watchAuth(c *auth.Controller, changed <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-changed
		s, next := c.Watch()
		return authStateMsg{state: s, next: next}
	}
}

func nextAuthEffect(c *auth.Controller) tea.Cmd {
	return func() tea.Msg {
		e, err := c.NextEffect(context.Background())
		if err != nil {
			return nil
		}
		return authEffectMsg{effect: e}
	}
}

func watchTasks(c *tasks.Controller, changed, done <-chan struct{}, gen int) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-changed:
		case <-done:
			return nil
		}
		s, next := c.Watch()
		return taskStateMsg{gen: gen, state: s, next: next}
	}
}

func nextTaskEffect(c *tasks.Controller, gen int) tea.Cmd {
	return func() tea.Msg {
		e, err := c.NextEffect(context.Background())
		if err != nil {
			return nil
		}
		return taskEffectMsg{gen: gen, effect: e}
	}
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}
