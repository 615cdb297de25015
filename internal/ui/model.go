package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"taskboard/internal/dashboard"
	"taskboard/internal/forms"
	"taskboard/internal/session"
	taskboardsdk "taskboard/sdk/go"
)

// Authenticator is the identity provider surface the UI needs.
type Authenticator interface {
	forms.Authenticator
	SignOut(ctx context.Context) error
}

type screen int

const (
	screenLoading screen = iota
	screenAuth
	screenDashboard
	screenTaskForm
)

type (
	sessionMsg       session.Snapshot
	sessionClosedMsg struct{}
	jobResultMsg     struct{ result dashboard.Result }
	signedOutMsg     struct{ err error }
	restoredMsg      struct{ err error }
)

// Deps wires the model to the session and the task dashboard.
type Deps struct {
	Auth      Authenticator
	Sessions  <-chan session.Snapshot
	Dashboard *dashboard.Dashboard
	// Restore loads a persisted session; it must end with an auth-state emission.
	Restore func(ctx context.Context) error
	Logger  zerolog.Logger
}

// Model is the root Bubble Tea model.
type Model struct {
	ctx      context.Context
	auth     Authenticator
	sessions <-chan session.Snapshot
	restore  func(ctx context.Context) error
	dash     *dashboard.Dashboard
	log      zerolog.Logger

	keys      KeyMap
	help      help.Model
	spinner   spinner.Model
	search    textinput.Model
	searching bool

	screen   screen
	authView authModel
	taskForm taskForm
	cursor   int
	status   string
	width    int
	height   int
}

func NewModel(ctx context.Context, deps Deps) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	si := textinput.New()
	si.Placeholder = "search title or description..."
	si.Prompt = "/ "
	si.Width = 40

	return Model{
		ctx:      ctx,
		auth:     deps.Auth,
		sessions: deps.Sessions,
		restore:  deps.Restore,
		dash:     deps.Dashboard,
		log:      deps.Logger.With().Str("component", "ui").Logger(),
		keys:     DefaultKeyMap(),
		help:     help.New(),
		spinner:  sp,
		search:   si,
		screen:   screenLoading,
		authView: newAuthModel(forms.ScreenLogin),
		width:    80,
		height:   24,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.waitSession()}
	if m.restore != nil {
		ctx, restore := m.ctx, m.restore
		cmds = append(cmds, func() tea.Msg { return restoredMsg{err: restore(ctx)} })
	}
	return tea.Batch(cmds...)
}

func (m Model) waitSession() tea.Cmd {
	ch := m.sessions
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return sessionClosedMsg{}
		}
		return sessionMsg(s)
	}
}

func (m Model) runJob(job dashboard.Job) tea.Cmd {
	if job == nil {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg { return jobResultMsg{result: job(ctx)} }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m.forward(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sessionMsg:
		return m.handleSession(session.Snapshot(msg))

	case sessionClosedMsg:
		return m, tea.Quit

	case restoredMsg:
		if msg.err != nil {
			m.log.Warn().Err(msg.err).Msg("restoring session")
			m.status = "could not restore session: " + msg.err.Error()
		}
		return m, nil

	case authResultMsg:
		r := msg.result
		if r.Err != nil {
			m.log.Info().Err(r.Err).Str("screen", m.authView.screen.String()).Msg("auth submit failed")
		}
		if r.Next == forms.ScreenDashboard {
			// The session snapshot switches screens.
			m.status = "signed in"
			return m, nil
		}
		return m, m.authView.reset(r.Next, r.Message, !r.OK())

	case jobResultMsg:
		next := m.dash.Apply(msg.result)
		m.clampCursor()
		return m, m.runJob(next)

	case signedOutMsg:
		if msg.err != nil {
			m.log.Warn().Err(msg.err).Msg("sign out")
		}
		return m, nil

	case taskFormDoneMsg:
		m.screen = screenDashboard
		m.dash.SetForm(msg.form)
		job, err := m.dash.Submit()
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.status = ""
		return m, m.runJob(job)

	case taskFormCancelMsg:
		m.screen = screenDashboard
		m.dash.Cancel()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m.handleKey(msg)
	}
	return m.forward(msg)
}

// forward passes msg to the active form.
func (m Model) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.screen {
	case screenAuth:
		m.authView, cmd = m.authView.update(m.ctx, m.auth, msg)
	case screenTaskForm:
		m.taskForm, cmd = m.taskForm.update(msg)
	}
	return m, cmd
}

func (m Model) handleSession(s session.Snapshot) (tea.Model, tea.Cmd) {
	job := m.dash.HandleSession(s)
	cmds := []tea.Cmd{m.waitSession(), m.runJob(job)}

	switch m.dash.State() {
	case dashboard.StateLoading:
		if m.screen != screenAuth {
			m.screen = screenLoading
			cmds = append(cmds, m.spinner.Tick)
		}
	case dashboard.StateUnauthenticated:
		if m.screen != screenAuth {
			m.screen = screenAuth
			cmds = append(cmds, m.authView.reset(forms.ScreenLogin, "", false))
		}
	case dashboard.StateReady, dashboard.StateEditing:
		if m.screen == screenLoading || m.screen == screenAuth {
			m.screen = screenDashboard
			m.cursor = 0
		}
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.screen {
	case screenLoading:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		return m, nil
	case screenAuth:
		if key.Matches(msg, m.keys.SwitchScreen) && !m.authView.busy {
			next := forms.ScreenRegister
			if m.authView.screen == forms.ScreenRegister {
				next = forms.ScreenLogin
			}
			return m, m.authView.reset(next, "", false)
		}
		return m.forward(msg)
	case screenTaskForm:
		if key.Matches(msg, m.keys.Back) {
			return m, func() tea.Msg { return taskFormCancelMsg{} }
		}
		return m.forward(msg)
	}

	if m.searching {
		switch msg.Type {
		case tea.KeyEsc:
			m.searching = false
			m.search.Blur()
			m.search.SetValue("")
			m.dash.SetSearch("")
			m.clampCursor()
			return m, nil
		case tea.KeyEnter:
			m.searching = false
			m.search.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		m.dash.SetSearch(m.search.Value())
		m.clampCursor()
		return m, cmd
	}

	visible := m.dash.Visible()
	selected := ""
	if m.cursor < len(visible) {
		selected = visible[m.cursor].ID
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(visible)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.New):
		m.dash.Cancel()
		m.taskForm = newTaskForm(m.dash.Form(), false, m.width)
		m.screen = screenTaskForm
		return m, m.taskForm.init()
	case key.Matches(msg, m.keys.Edit):
		if selected == "" {
			return m, nil
		}
		if err := m.dash.Edit(selected); err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.taskForm = newTaskForm(m.dash.Form(), true, m.width)
		m.screen = screenTaskForm
		return m, m.taskForm.init()
	case key.Matches(msg, m.keys.Toggle):
		return m, m.runJob(m.dash.Toggle(selected))
	case key.Matches(msg, m.keys.Delete):
		cmd := m.runJob(m.dash.Delete(selected))
		m.clampCursor()
		return m, cmd
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		m.search.SetValue(m.dash.Search())
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.Filter):
		m.dash.CyclePriorityFilter()
		m.clampCursor()
	case key.Matches(msg, m.keys.Dark):
		m.dash.ToggleDarkMode()
	case key.Matches(msg, m.keys.Reload):
		return m, m.runJob(m.dash.Refresh())
	case key.Matches(msg, m.keys.Logout):
		ctx, a := m.ctx, m.auth
		return m, func() tea.Msg { return signedOutMsg{err: a.SignOut(ctx)} }
	}
	return m, nil
}

func (m *Model) clampCursor() {
	n := len(m.dash.Visible())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) View() string {
	th := ThemeFor(m.dash.DarkMode())
	switch m.screen {
	case screenLoading:
		return th.Panel.Render(m.spinner.View() + " loading session...")
	case screenAuth:
		return m.authView.view(th, m.keys)
	case screenTaskForm:
		return m.taskForm.view(th)
	}
	return m.dashboardView(th)
}

func (m Model) dashboardView(th Theme) string {
	var b strings.Builder

	who := ""
	if u := m.dash.Identity(); u != nil {
		who = " · " + u.Email
	}
	b.WriteString(th.Header.Render("Taskboard"+who) + "\n")

	st := m.dash.Stats()
	b.WriteString(th.Help.Render(fmt.Sprintf("Total %d · Completed %d · Pending %d · Missed %d",
		st.Total, st.Completed, st.Pending, st.Missed)) + "\n")

	filter := "Priority: " + m.dash.PriorityFilter()
	if m.searching || m.dash.Search() != "" {
		b.WriteString(m.search.View() + "   " + filter + "\n\n")
	} else {
		b.WriteString(th.Help.Render(filter) + "\n\n")
	}

	visible := m.dash.Visible()
	if len(visible) == 0 {
		if len(m.dash.Tasks()) == 0 {
			b.WriteString(th.Item.Render("No tasks yet. Press n to add one.") + "\n")
		} else {
			b.WriteString(th.Item.Render("No tasks match.") + "\n")
		}
	}
	for i, t := range visible {
		line := taskLine(th, t)
		if i == m.cursor {
			b.WriteString(th.Selected.Render(line) + "\n")
		} else {
			b.WriteString(th.Item.Render(line) + "\n")
		}
	}

	b.WriteString("\n")
	status := m.status
	if err := m.dash.LastError(); err != nil {
		status = err.Error()
	}
	if status != "" {
		b.WriteString(th.StatusBar.Render(status) + "\n")
	}
	b.WriteString(m.help.View(m.keys))
	return lipgloss.NewStyle().Padding(0, 1).Render(b.String())
}

func taskLine(th Theme, t taskboardsdk.Task) string {
	check := "[ ]"
	if t.Completed {
		check = "[x]"
	}
	title := t.Title
	if t.Completed {
		title = th.Dimmed.Render(title)
	}
	due := ""
	if t.DueDate != nil {
		due = "due " + *t.DueDate
	}
	return strings.Join([]string{
		check,
		th.PriorityStyle(t.Priority).Render(t.Priority),
		th.StatusStyle(t.Status).Render(t.Status),
		title,
		th.Help.Render(due),
	}, " ")
}
