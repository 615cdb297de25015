package ui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"taskboard/internal/forms"
)

// authResultMsg carries the outcome of a login or register submit.
type authResultMsg struct {
	result forms.Result
}

// authBindings keeps huh's Value pointers valid across model copies.
type authBindings struct {
	email    string
	password string
}

// authModel is the login or register screen.
type authModel struct {
	screen  forms.Screen
	form    *huh.Form
	fb      *authBindings
	message string
	failed  bool
	busy    bool
	width   int
}

func newAuthModel(screen forms.Screen) authModel {
	m := authModel{screen: screen, fb: &authBindings{}, width: 60}
	m.form = m.buildForm()
	return m
}

func (m *authModel) reset(screen forms.Screen, message string, failed bool) tea.Cmd {
	m.screen = screen
	m.message = message
	m.failed = failed
	m.busy = false
	m.fb.password = ""
	m.form = m.buildForm()
	return m.form.Init()
}

func (m *authModel) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("you@example.com").
				Value(&m.fb.email).
				Validate(validateRequired("Email")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(validateRequired("Password")),
		),
	).WithWidth(m.width).WithShowHelp(false)
}

// update forwards msg to the form and submits once it completes.
func (m authModel) update(ctx context.Context, a Authenticator, msg tea.Msg) (authModel, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}
	switch m.form.State {
	case huh.StateCompleted:
		m.busy = true
		email, password, screen := m.fb.email, m.fb.password, m.screen
		return m, func() tea.Msg {
			if screen == forms.ScreenRegister {
				return authResultMsg{forms.Register(ctx, a, email, password)}
			}
			return authResultMsg{forms.Login(ctx, a, email, password)}
		}
	case huh.StateAborted:
		return m, m.reset(m.screen, "", false)
	}
	return m, cmd
}

func (m authModel) view(th Theme, keys KeyMap) string {
	title := "Sign in"
	other := "create an account"
	if m.screen == forms.ScreenRegister {
		title = "Create account"
		other = "sign in instead"
	}
	var b strings.Builder
	b.WriteString(th.Header.Render("Taskboard · "+title) + "\n\n")
	if m.busy {
		b.WriteString(th.Help.Render("working...") + "\n")
	} else {
		b.WriteString(m.form.View())
	}
	if m.message != "" {
		style := th.Notice
		if m.failed {
			style = th.Error
		}
		b.WriteString("\n" + style.Render(m.message) + "\n")
	}
	b.WriteString("\n" + th.Help.Render(fmt.Sprintf("enter submit · %s %s · ctrl+c quit", keys.SwitchScreen.Help().Key, other)))
	return th.Panel.Render(b.String())
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
