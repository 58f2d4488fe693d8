package tasks

// ErrorCode is a persistent, screen-level error shown until the next
// successful load.
type ErrorCode string

const (
	NoError       ErrorCode = ""
	ErrorTaskLoad ErrorCode = "task_load_error"
)

// State drives the task list screen. Tasks mirrors the store's latest
// snapshot and is replaced wholesale; callers must not modify it.
type State struct {
	Loading    bool
	Error      ErrorCode
	Tasks      []Task
	TitleDraft string
}

// Event is an input to the controller.
type Event interface{ isEvent() }

type (
	LoadTasksClicked      struct{}
	LogoutClicked         struct{}
	AddTaskClicked        struct{}
	TaskTitleChanged      struct{ Value string }
	TaskCompletionToggled struct{ Task Task }
	DeleteTaskClicked     struct{ Task Task }
)

func (LoadTasksClicked) isEvent()      {}
func (LogoutClicked) isEvent()         {}
func (AddTaskClicked) isEvent()        {}
func (TaskTitleChanged) isEvent()      {}
func (TaskCompletionToggled) isEvent() {}
func (DeleteTaskClicked) isEvent()     {}

// Effect is a one-shot outcome notification.
type Effect int

const (
	AddSucceeded Effect = iota + 1
	AddFailed
	ToggleFailed
	DeleteSucceeded
	DeleteFailed
	LogoutSucceeded
	LogoutFailed
)

func (e Effect) String() string {
	switch e {
	case AddSucceeded:
		return "AddSucceeded"
	case AddFailed:
		return "AddFailed"
	case ToggleFailed:
		return "ToggleFailed"
	case DeleteSucceeded:
		return "DeleteSucceeded"
	case DeleteFailed:
		return "DeleteFailed"
	case LogoutSucceeded:
		return "LogoutSucceeded"
	case LogoutFailed:
		return "LogoutFailed"
	default:
		return "Effect(?)"
	}
}
