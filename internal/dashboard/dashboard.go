package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"taskboard/internal/domain"
	"taskboard/internal/session"
	taskboardsdk "taskboard/sdk/go"
)

// PriorityAll disables the priority filter.
const PriorityAll = "All"

type State int

const (
	StateLoading State = iota
	StateUnauthenticated
	StateReady
	StateEditing
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateReady:
		return "ready"
	case StateEditing:
		return "editing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// API is the subset of the task client the dashboard calls.
type API interface {
	ListTasks(ctx context.Context) ([]taskboardsdk.Task, error)
	CreateTask(ctx context.Context, t taskboardsdk.NewTask) (taskboardsdk.Task, error)
	UpdateTask(ctx context.Context, id string, patch taskboardsdk.TaskPatch) (taskboardsdk.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Connector returns an API authenticated with token.
type Connector func(token string) API

// ClientConnector adapts an SDK client.
func ClientConnector(c *taskboardsdk.Client) Connector {
	return func(token string) API { return c.WithBearer(token) }
}

// Form holds the task editor fields.
type Form struct {
	Title       string
	Description string
	Priority    string
	DueDate     string
}

// Stats summarises the fetched list.
type Stats struct {
	Total     int
	Completed int
	Pending   int
	Missed    int
}

// Job is network work to run off the event loop. Its Result must be passed
// back to Apply on the loop.
type Job func(ctx context.Context) Result

type resultKind int

const (
	fetched resultKind = iota
	mutated
)

// Result is the outcome of a Job.
type Result struct {
	kind  resultKind
	gen   uint64
	op    string
	tasks []taskboardsdk.Task
	err   error
}

// Err returns the job's error, if any.
func (r Result) Err() error { return r.err }

// Dashboard is the task screen's state. It is not safe for concurrent use;
// every method is meant to run on the UI event loop.
type Dashboard struct {
	connect Connector
	now     func() time.Time
	log     zerolog.Logger

	// OnUnauthorized is called when the API rejects the current token.
	OnUnauthorized func()

	state     State
	identity  *taskboardsdk.User
	token     string
	api       API
	tasks     []taskboardsdk.Task
	form      Form
	editingID string
	search    string
	priority  string
	dark      bool
	gen       uint64
	lastErr   error
}

func New(connect Connector, log zerolog.Logger) *Dashboard {
	return &Dashboard{
		connect:  connect,
		now:      time.Now,
		log:      log.With().Str("component", "dashboard").Logger(),
		priority: PriorityAll,
		form:     Form{Priority: string(domain.PriorityLow)},
	}
}

// SetClock overrides the clock used for status derivation.
func (d *Dashboard) SetClock(now func() time.Time) { d.now = now }

func (d *Dashboard) State() State                 { return d.state }
func (d *Dashboard) Identity() *taskboardsdk.User { return d.identity }
func (d *Dashboard) Form() Form                   { return d.form }
func (d *Dashboard) EditingID() string            { return d.editingID }
func (d *Dashboard) Search() string               { return d.search }
func (d *Dashboard) PriorityFilter() string       { return d.priority }
func (d *Dashboard) DarkMode() bool               { return d.dark }
func (d *Dashboard) LastError() error             { return d.lastErr }

// SetForm replaces the editor fields.
func (d *Dashboard) SetForm(f Form) { d.form = f }

// Tasks returns the full fetched list.
func (d *Dashboard) Tasks() []taskboardsdk.Task { return slices.Clone(d.tasks) }

// HandleSession reacts to a session snapshot. It returns a fetch job when the
// session became usable or its token changed.
func (d *Dashboard) HandleSession(s session.Snapshot) Job {
	switch {
	case s.Loading:
		d.state = StateLoading
		return nil
	case s.Identity == nil:
		d.reset()
		d.state = StateUnauthenticated
		return nil
	case s.Token == "":
		if d.identity == nil || d.identity.UID != s.Identity.UID {
			d.reset()
			d.identity = s.Identity
			d.state = StateLoading
		}
		return nil
	}

	sameUser := d.identity != nil && d.identity.UID == s.Identity.UID
	if !sameUser {
		d.reset()
	}
	d.identity = s.Identity
	if s.Token == d.token && d.api != nil {
		return nil
	}
	d.token = s.Token
	d.api = d.connect(s.Token)
	if d.state != StateEditing {
		d.state = StateReady
	}
	return d.Refresh()
}

func (d *Dashboard) reset() {
	d.identity = nil
	d.token = ""
	d.api = nil
	d.tasks = nil
	d.editingID = ""
	d.form = Form{Priority: string(domain.PriorityLow)}
	d.gen++
}

// Refresh issues a fetch of the owner's tasks. Results of older fetches are
// discarded when they arrive.
func (d *Dashboard) Refresh() Job {
	if d.api == nil {
		return nil
	}
	d.gen++
	gen, api := d.gen, d.api
	return func(ctx context.Context) Result {
		tasks, err := api.ListTasks(ctx)
		return Result{kind: fetched, gen: gen, op: "list", tasks: tasks, err: err}
	}
}

// Apply folds a job result into the state and returns the follow-up job, if any.
func (d *Dashboard) Apply(r Result) Job {
	switch r.kind {
	case fetched:
		if r.gen != d.gen {
			d.log.Debug().Uint64("gen", r.gen).Uint64("current", d.gen).Msg("discarding stale fetch")
			return nil
		}
		if r.err != nil {
			d.fail(r.op, r.err)
			return nil
		}
		d.lastErr = nil
		now := d.now()
		tasks := make([]taskboardsdk.Task, 0, len(r.tasks))
		for _, t := range r.tasks {
			t.Status = string(domain.DeriveStatus(t.Completed, t.DueDate, now))
			tasks = append(tasks, t)
		}
		slices.SortStableFunc(tasks, func(a, b taskboardsdk.Task) int {
			return createdAt(b).Compare(createdAt(a))
		})
		d.tasks = tasks
		return nil
	case mutated:
		if r.err != nil {
			d.fail(r.op, r.err)
		}
		// Reconcile the optimistic patch with the server either way.
		return d.Refresh()
	}
	return nil
}

func (d *Dashboard) fail(op string, err error) {
	d.lastErr = fmt.Errorf("%s: %w", op, err)
	d.log.Error().Err(err).Str("op", op).Msg("task request failed")
	if taskboardsdk.IsStatus(err, http.StatusUnauthorized) && d.OnUnauthorized != nil {
		d.OnUnauthorized()
	}
}

// Submit creates a task, or updates the one being edited, from the form.
func (d *Dashboard) Submit() (Job, error) {
	if d.api == nil {
		return nil, errors.New("not signed in")
	}
	f := d.form
	title := strings.TrimSpace(f.Title)
	if title == "" {
		return nil, domain.ValidationError{Field: "title", Reason: "required"}
	}
	priority := domain.Priority(strings.TrimSpace(f.Priority))
	if priority == "" {
		priority = domain.PriorityLow
	}
	if !priority.Valid() {
		return nil, domain.ValidationError{Field: "priority", Reason: "must be Low, Medium or High"}
	}
	due := strings.TrimSpace(f.DueDate)
	if due != "" {
		if _, ok := domain.ParseDueDate(due, d.now().Location()); !ok {
			return nil, domain.ValidationError{Field: "dueDate", Reason: "must be YYYY-MM-DD"}
		}
	}

	api := d.api
	var job Job
	if d.editingID == "" {
		nt := taskboardsdk.NewTask{Title: title, Description: f.Description, Priority: string(priority)}
		if due != "" {
			nt.DueDate = &due
		}
		job = func(ctx context.Context) Result {
			_, err := api.CreateTask(ctx, nt)
			return Result{kind: mutated, op: "create", err: err}
		}
	} else {
		id := d.editingID
		desc, prio := f.Description, string(priority)
		patch := taskboardsdk.TaskPatch{Title: &title, Description: &desc, Priority: &prio}
		if due != "" {
			patch.DueDate = &due
		} else {
			patch.ClearDueDate = true
		}
		job = func(ctx context.Context) Result {
			_, err := api.UpdateTask(ctx, id, patch)
			return Result{kind: mutated, op: "update", err: err}
		}
	}
	d.editingID = ""
	d.form = Form{Priority: string(domain.PriorityLow)}
	d.state = StateReady
	return job, nil
}

// Edit loads task id into the form.
func (d *Dashboard) Edit(id string) error {
	t, ok := d.find(id)
	if !ok {
		return fmt.Errorf("task %s not loaded", id)
	}
	f := Form{Title: t.Title, Description: t.Description, Priority: t.Priority}
	if t.DueDate != nil {
		f.DueDate = dateOnly(*t.DueDate)
	}
	d.form = f
	d.editingID = id
	d.state = StateEditing
	return nil
}

// Cancel abandons an edit and clears the form.
func (d *Dashboard) Cancel() {
	d.editingID = ""
	d.form = Form{Priority: string(domain.PriorityLow)}
	if d.state == StateEditing {
		d.state = StateReady
	}
}

// Toggle flips completion locally and sends the partial update.
func (d *Dashboard) Toggle(id string) Job {
	i := d.index(id)
	if i < 0 || d.api == nil {
		return nil
	}
	completed := !d.tasks[i].Completed
	d.tasks[i].Completed = completed
	d.tasks[i].Status = string(domain.DeriveStatus(completed, d.tasks[i].DueDate, d.now()))
	// In-flight fetches predate the patch.
	d.gen++
	api := d.api
	return func(ctx context.Context) Result {
		_, err := api.UpdateTask(ctx, id, taskboardsdk.TaskPatch{Completed: &completed})
		return Result{kind: mutated, op: "toggle", err: err}
	}
}

// Delete removes the task locally and sends the delete.
func (d *Dashboard) Delete(id string) Job {
	i := d.index(id)
	if i < 0 || d.api == nil {
		return nil
	}
	d.tasks = slices.Delete(d.tasks, i, i+1)
	if d.editingID == id {
		d.Cancel()
	}
	d.gen++
	api := d.api
	return func(ctx context.Context) Result {
		err := api.DeleteTask(ctx, id)
		return Result{kind: mutated, op: "delete", err: err}
	}
}

func (d *Dashboard) SetSearch(q string) { d.search = q }

// SetPriorityFilter accepts a priority or PriorityAll.
func (d *Dashboard) SetPriorityFilter(p string) {
	if p == "" {
		p = PriorityAll
	}
	d.priority = p
}

// CyclePriorityFilter steps All → Low → Medium → High → All.
func (d *Dashboard) CyclePriorityFilter() {
	order := []string{PriorityAll}
	for _, p := range domain.Priorities {
		order = append(order, string(p))
	}
	i := slices.Index(order, d.priority)
	d.priority = order[(i+1)%len(order)]
}

// Visible returns the tasks matching the search and priority filter.
func (d *Dashboard) Visible() []taskboardsdk.Task {
	q := strings.ToLower(strings.TrimSpace(d.search))
	out := make([]taskboardsdk.Task, 0, len(d.tasks))
	for _, t := range d.tasks {
		if d.priority != PriorityAll && t.Priority != d.priority {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(t.Title), q) &&
			!strings.Contains(strings.ToLower(t.Description), q) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (d *Dashboard) Stats() Stats {
	s := Stats{Total: len(d.tasks)}
	for _, t := range d.tasks {
		switch domain.Status(t.Status) {
		case domain.StatusCompleted:
			s.Completed++
		case domain.StatusMissed:
			s.Missed++
		default:
			s.Pending++
		}
	}
	return s
}

func (d *Dashboard) ToggleDarkMode() { d.dark = !d.dark }

// SetDarkMode sets the initial palette.
func (d *Dashboard) SetDarkMode(on bool) { d.dark = on }

func (d *Dashboard) find(id string) (taskboardsdk.Task, bool) {
	i := d.index(id)
	if i < 0 {
		return taskboardsdk.Task{}, false
	}
	return d.tasks[i], true
}

func (d *Dashboard) index(id string) int {
	return slices.IndexFunc(d.tasks, func(t taskboardsdk.Task) bool { return t.ID == id })
}

// createdAt parses the task's creation stamp; unparsable values sort last.
func createdAt(t taskboardsdk.Task) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, t.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func dateOnly(raw string) string {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.Format(domain.DateLayout)
	}
	return raw
}
