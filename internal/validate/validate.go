// Package validate checks credential input before any remote call is made.
package validate

import (
	"regexp"
	"strings"
	"unicode"
)

// Code identifies a field-level validation failure.
type Code string

const (
	EmptyEmail                 Code = "empty_email"
	InvalidEmail               Code = "invalid_email"
	EmptyPassword              Code = "empty_password"
	PasswordContainsWhitespace Code = "password_contains_whitespace"
)

// Field names used as keys in FieldErrors.
const (
	FieldEmail    = "email"
	FieldPassword = "password"
)

// FieldErrors maps a field name to its failure. Only failing fields are present.
type FieldErrors map[string]Code

// Valid reports whether no field failed.
func (e FieldErrors) Valid() bool {
	return len(e) == 0
}

// Get returns the code for field, or "" when the field passed.
func (e FieldErrors) Get(field string) Code {
	return e[field]
}

var emailPattern = regexp.MustCompile(`^\w+(\.\w+)*@\w+(\.\w+)*$`)

// Credentials validates an email/password pair.
func Credentials(email, password string) FieldErrors {
	errs := FieldErrors{}

	switch {
	case strings.TrimSpace(email) == "":
		errs[FieldEmail] = EmptyEmail
	case !emailPattern.MatchString(email):
		errs[FieldEmail] = InvalidEmail
	}

	switch {
	case strings.TrimSpace(password) == "":
		errs[FieldPassword] = EmptyPassword
	case strings.IndexFunc(password, unicode.IsSpace) >= 0:
		errs[FieldPassword] = PasswordContainsWhitespace
	}

	return errs
}
