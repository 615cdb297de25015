package ui

import (
	"errors"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"taskboard/internal/dashboard"
	"taskboard/internal/domain"
)

var errInvalidDate = errors.New("invalid date format, use YYYY-MM-DD")

type taskFormDoneMsg struct {
	form dashboard.Form
}

type taskFormCancelMsg struct{}

// taskForm edits dashboard.Form fields. The bindings live on the heap so
// huh's Value pointers survive Bubble Tea model copies.
type taskForm struct {
	form    *huh.Form
	fb      *dashboard.Form
	editing bool
}

func newTaskForm(initial dashboard.Form, editing bool, width int) taskForm {
	fb := initial
	if fb.Priority == "" {
		fb.Priority = string(domain.PriorityLow)
	}
	tf := taskForm{fb: &fb, editing: editing}
	opts := make([]huh.Option[string], 0, len(domain.Priorities))
	for _, p := range domain.Priorities {
		opts = append(opts, huh.NewOption(string(p), string(p)))
	}
	tf.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Placeholder("What needs to be done?").
				Value(&fb.Title).
				Validate(validateRequired("Title")),
			huh.NewText().
				Title("Description").
				Placeholder("Optional details...").
				Value(&fb.Description),
			huh.NewSelect[string]().
				Title("Priority").
				Options(opts...).
				Value(&fb.Priority),
			huh.NewInput().
				Title("Due Date").
				Placeholder("YYYY-MM-DD (optional)").
				Value(&fb.DueDate).
				Validate(validateOptionalDate),
		),
	).WithWidth(formWidth(width)).WithShowHelp(false)
	return tf
}

func (tf taskForm) init() tea.Cmd {
	return tf.form.Init()
}

func (tf taskForm) update(msg tea.Msg) (taskForm, tea.Cmd) {
	mdl, cmd := tf.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		tf.form = f
	}
	switch tf.form.State {
	case huh.StateCompleted:
		values := *tf.fb
		return tf, func() tea.Msg { return taskFormDoneMsg{form: values} }
	case huh.StateAborted:
		return tf, func() tea.Msg { return taskFormCancelMsg{} }
	}
	return tf, cmd
}

func (tf taskForm) view(th Theme) string {
	title := "New task"
	if tf.editing {
		title = "Edit task"
	}
	return th.Panel.Render(th.Header.Render(title) + "\n\n" + tf.form.View() + "\n" +
		th.Help.Render("enter next · esc cancel"))
}

func validateOptionalDate(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, ok := domain.ParseDueDate(s, time.Local); !ok {
		return errInvalidDate
	}
	return nil
}

func formWidth(width int) int {
	w := width - 8
	if w < 40 {
		w = 40
	}
	if w > 90 {
		w = 90
	}
	return w
}
