package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"todo/internal/auth"
	"todo/internal/tasks"
	"todo/internal/validate"
)

func (m Model) View() string {
	var body string
	if m.screen == screenAuth {
		body = m.authView()
	} else {
		body = m.tasksView()
	}
	status := m.status
	if m.statusErr {
		status = errorStyle.Render(status)
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, "", status)
}

func (m Model) authView() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Sign in") + "\n\n")
	b.WriteString(m.email.View() + "\n")
	if msg := fieldMessage(m.authState.EmailError); msg != "" {
		b.WriteString(errorStyle.Render(msg) + "\n")
	}
	b.WriteString(m.password.View() + "\n")
	if msg := fieldMessage(m.authState.PasswordError); msg != "" {
		b.WriteString(errorStyle.Render(msg) + "\n")
	}
	b.WriteString("\n")
	switch {
	case m.authState.Loading:
		b.WriteString(dimStyle.Render("Working…") + "\n")
	case m.authState.Error == auth.GenericAuthError:
		b.WriteString(errorStyle.Render("Authentication failed. Check your details and try again.") + "\n")
	}
	k := m.cfg.Keys
	b.WriteString(dimStyle.Render(fmt.Sprintf("%s sign in · %s register · %s next field · %s quit",
		k.Confirm, k.Register, k.NextField, k.Cancel)))
	return b.String()
}

func (m Model) tasksView() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Tasks") + "\n\n")
	switch {
	case m.taskState.Loading:
		b.WriteString(dimStyle.Render("Loading…") + "\n")
	case m.taskState.Error == tasks.ErrorTaskLoad:
		b.WriteString(errorStyle.Render("Could not load tasks. Press "+m.cfg.Keys.Reload+" to retry.") + "\n")
	case len(m.taskState.Tasks) == 0:
		b.WriteString(dimStyle.Render("No tasks yet.") + "\n")
	default:
		b.WriteString(renderTaskList(m.taskState.Tasks, m.cursor))
	}
	if m.mode == modeAdd {
		b.WriteString("\n" + m.draft.View() + "\n")
	}
	k := m.cfg.Keys
	b.WriteString("\n" + dimStyle.Render(fmt.Sprintf("%s add · %q toggle · %s delete · %s reload · %s sign out · %s quit",
		k.Add, k.Toggle, k.Delete, k.Reload, k.Logout, k.Quit)))
	return b.String()
}

func renderTaskList(list []tasks.Task, cursor int) string {
	var b strings.Builder
	for i, t := range list {
		prefix := "  "
		if i == cursor {
			prefix = "> "
		}
		check := "[ ]"
		title := t.Title
		if t.Completed {
			check = "[x]"
			title = dimStyle.Render(title)
		}
		fmt.Fprintf(&b, "%s%s %s\n", prefix, check, title)
	}
	return b.String()
}

func fieldMessage(c validate.Code) string {
	switch c {
	case validate.EmptyEmail:
		return "Email is required."
	case validate.InvalidEmail:
		return "Email address is not valid."
	case validate.EmptyPassword:
		return "Password is required."
	case validate.PasswordContainsWhitespace:
		return "Password must not contain spaces."
	default:
		return ""
	}
}

func clampCursor(cursor, n int) int {
	if n <= 0 || cursor < 0 {
		return 0
	}
	if cursor >= n {
		return n - 1
	}
	return cursor
}
