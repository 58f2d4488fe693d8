package auth

import "todo/internal/validate"

// ErrorCode is the screen-level error. The underlying cause is never exposed.
type ErrorCode string

const (
	NoError          ErrorCode = ""
	GenericAuthError ErrorCode = "auth_error"
)

// State drives the sign-in screen.
type State struct {
	Loading       bool
	Error         ErrorCode
	Email         string
	Password      string
	EmailError    validate.Code
	PasswordError validate.Code
}

// Event is an input to the controller.
type Event interface{ isEvent() }

type (
	EmailChanged    struct{ Value string }
	PasswordChanged struct{ Value string }
	LoginClicked    struct{}
	RegisterClicked struct{}
)

func (EmailChanged) isEvent()    {}
func (PasswordChanged) isEvent() {}
func (LoginClicked) isEvent()    {}
func (RegisterClicked) isEvent() {}

// Effect is a one-shot outcome notification.
type Effect int

const (
	LoginSucceeded Effect = iota + 1
	RegisterSucceeded
)

func (e Effect) String() string {
	switch e {
	case LoginSucceeded:
		return "LoginSucceeded"
	case RegisterSucceeded:
		return "RegisterSucceeded"
	default:
		return "Effect(?)"
	}
}
