package ui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/dashboard"
	"taskboard/internal/forms"
	"taskboard/internal/session"
	taskboardsdk "taskboard/sdk/go"
)

type memAPI struct {
	tasks []taskboardsdk.Task
}

func (a *memAPI) ListTasks(ctx context.Context) ([]taskboardsdk.Task, error) {
	return append([]taskboardsdk.Task(nil), a.tasks...), nil
}

func (a *memAPI) CreateTask(ctx context.Context, t taskboardsdk.NewTask) (taskboardsdk.Task, error) {
	task := taskboardsdk.Task{ID: "new", Title: t.Title, Priority: t.Priority}
	a.tasks = append(a.tasks, task)
	return task, nil
}

func (a *memAPI) UpdateTask(ctx context.Context, id string, p taskboardsdk.TaskPatch) (taskboardsdk.Task, error) {
	for i := range a.tasks {
		if a.tasks[i].ID == id && p.Completed != nil {
			a.tasks[i].Completed = *p.Completed
		}
	}
	return taskboardsdk.Task{ID: id}, nil
}

func (a *memAPI) DeleteTask(ctx context.Context, id string) error { return nil }

type stubAuth struct{ signedOut bool }

func (s *stubAuth) SignIn(ctx context.Context, email, password string) (taskboardsdk.User, error) {
	return taskboardsdk.User{UID: "u1", Email: email}, nil
}

func (s *stubAuth) SignUp(ctx context.Context, email, password string) (taskboardsdk.User, error) {
	return taskboardsdk.User{}, &taskboardsdk.AuthError{Code: "email-already-in-use"}
}

func (s *stubAuth) SignOut(ctx context.Context) error {
	s.signedOut = true
	return nil
}

func newTestModel(api *memAPI) (Model, *stubAuth) {
	auth := &stubAuth{}
	d := dashboard.New(func(string) dashboard.API { return api }, zerolog.Nop())
	m := NewModel(context.Background(), Deps{
		Auth:      auth,
		Sessions:  make(chan session.Snapshot),
		Dashboard: d,
		Logger:    zerolog.Nop(),
	})
	return m, auth
}

func step(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

// drain runs a job command and feeds results back until no follow-up remains.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	for cmd != nil {
		res, ok := cmd().(jobResultMsg)
		require.True(t, ok, "expected a job command")
		var next tea.Model
		next, cmd = m.Update(res)
		m = next.(Model)
	}
	return m
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "ctrl+n":
		return tea.KeyMsg{Type: tea.KeyCtrlN}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestScreensFollowSession(t *testing.T) {
	m, _ := newTestModel(&memAPI{})
	assert.Equal(t, screenLoading, m.screen)
	assert.Contains(t, m.View(), "loading session")

	m = step(m, sessionMsg(session.Snapshot{}))
	assert.Equal(t, screenAuth, m.screen)
	assert.Contains(t, m.View(), "Sign in")

	next, _ := m.Update(keyMsg("ctrl+n"))
	m = next.(Model)
	assert.Equal(t, forms.ScreenRegister, m.authView.screen)

	next, _ = m.Update(authResultMsg{result: forms.Result{Next: forms.ScreenLogin, Message: forms.MsgRegistered}})
	m = next.(Model)
	assert.Equal(t, forms.ScreenLogin, m.authView.screen)
	assert.Contains(t, m.View(), forms.MsgRegistered)

	user := &taskboardsdk.User{UID: "u1", Email: "a@x.com"}
	next, _ = m.Update(sessionMsg(session.Snapshot{Identity: user, Token: "tok"}))
	m = next.(Model)
	assert.Equal(t, screenDashboard, m.screen)
	assert.Contains(t, m.View(), "a@x.com")

	next, _ = m.Update(sessionMsg(session.Snapshot{}))
	m = next.(Model)
	assert.Equal(t, screenAuth, m.screen)
}

func TestDashboardKeys(t *testing.T) {
	api := &memAPI{tasks: []taskboardsdk.Task{
		{ID: "t1", Title: "Buy milk", Priority: "Low", CreatedAt: "2026-03-01T00:00:00Z"},
		{ID: "t2", Title: "File taxes", Priority: "High", CreatedAt: "2026-03-02T00:00:00Z"},
	}}
	m, auth := newTestModel(api)
	user := &taskboardsdk.User{UID: "u1", Email: "a@x.com"}

	next, cmd := m.Update(sessionMsg(session.Snapshot{Identity: user, Token: "tok"}))
	m = next.(Model)
	require.NotNil(t, cmd)
	m = step(m, jobResultMsg{result: m.dash.Refresh()(context.Background())})
	require.Len(t, m.dash.Visible(), 2)
	view := m.View()
	assert.Contains(t, view, "File taxes")
	assert.Contains(t, view, "Total 2")

	// Newest first: cursor 0 is t2.
	next, cmd = m.Update(keyMsg(" "))
	m = next.(Model)
	assert.True(t, m.dash.Visible()[0].Completed, "patched before the server answers")
	m = drain(t, m, cmd)
	assert.True(t, api.tasks[1].Completed)
	assert.True(t, m.dash.Visible()[0].Completed)

	m = step(m, keyMsg("p"))
	assert.Equal(t, "Low", m.dash.PriorityFilter())
	require.Len(t, m.dash.Visible(), 1)

	m = step(m, keyMsg("t"))
	assert.True(t, m.dash.DarkMode())

	m = step(m, keyMsg("/"))
	assert.True(t, m.searching)
	m = step(m, keyMsg("m"))
	assert.Equal(t, "m", m.dash.Search())
	m = step(m, keyMsg("esc"))
	assert.False(t, m.searching)
	assert.Empty(t, m.dash.Search())

	m = step(m, keyMsg("e"))
	assert.Equal(t, screenTaskForm, m.screen)
	assert.Equal(t, dashboard.StateEditing, m.dash.State())
	_, cmd = m.Update(keyMsg("esc"))
	require.NotNil(t, cmd)
	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.Equal(t, screenDashboard, m.screen)
	assert.Equal(t, dashboard.StateReady, m.dash.State())

	_, cmd = m.Update(keyMsg("L"))
	require.NotNil(t, cmd)
	_, ok := cmd().(signedOutMsg)
	assert.True(t, ok)
	assert.True(t, auth.signedOut)
}

func TestTaskFormSubmit(t *testing.T) {
	api := &memAPI{}
	m, _ := newTestModel(api)
	user := &taskboardsdk.User{UID: "u1", Email: "a@x.com"}
	next, _ := m.Update(sessionMsg(session.Snapshot{Identity: user, Token: "tok"}))
	m = next.(Model)

	next, _ = m.Update(taskFormDoneMsg{form: dashboard.Form{Title: "", Priority: "Low"}})
	m = next.(Model)
	assert.Contains(t, m.status, "title")

	next, cmd := m.Update(taskFormDoneMsg{form: dashboard.Form{Title: "Write report", Priority: "High"}})
	m = next.(Model)
	m = drain(t, m, cmd)
	require.Len(t, api.tasks, 1)
	assert.Equal(t, "Write report", api.tasks[0].Title)
	assert.Len(t, m.dash.Tasks(), 1)
}

func TestTaskLine(t *testing.T) {
	due := "2026-03-09"
	line := taskLine(DarkTheme(), taskboardsdk.Task{Title: "File taxes", Priority: "High", Status: "Missed", DueDate: &due})
	assert.True(t, strings.Contains(line, "[ ]"))
	assert.Contains(t, line, "File taxes")
	assert.Contains(t, line, "due 2026-03-09")

	line = taskLine(LightTheme(), taskboardsdk.Task{Title: "Done", Completed: true, Status: "Completed"})
	assert.Contains(t, line, "[x]")
}
