package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"taskboard/internal/domain"
	"taskboard/internal/engine/auth"
	"taskboard/internal/store"
)

// ErrTaskIDRequired is returned before any store access when the id is blank.
var ErrTaskIDRequired = errors.New("task id required")

// ErrOwnerRequired guards against calls without a verified caller.
var ErrOwnerRequired = errors.New("owner required")

// Engine applies task rules on top of a Store. Owners are verified emails.
type Engine struct {
	Store store.Store
	Now   func() time.Time
	Log   zerolog.Logger
}

func New(s store.Store, log zerolog.Logger) Engine {
	return Engine{
		Store: s,
		Now:   time.Now,
		Log:   log,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ListTasks returns the owner's tasks with timestamps defaulted and status derived.
func (e Engine) ListTasks(ctx context.Context, owner string) ([]domain.Task, error) {
	if owner == "" {
		return nil, ErrOwnerRequired
	}
	tasks, err := e.Store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	now := e.now()
	stamp := domain.Timestamp(now)
	res := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.CreatedAt == "" {
			t.CreatedAt = stamp
		}
		if t.UpdatedAt == "" {
			t.UpdatedAt = stamp
		}
		res = append(res, t.WithStatus(now))
	}
	return res, nil
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title       string
	Description string
	Priority    domain.Priority
	DueDate     *string
	// CreatedAt is kept when a client re-submits an edited task.
	CreatedAt string
}

func (e Engine) CreateTask(ctx context.Context, owner string, opts TaskCreateOptions) (domain.Task, error) {
	if owner == "" {
		return domain.Task{}, ErrOwnerRequired
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityLow
	}
	if !opts.Priority.Valid() {
		return domain.Task{}, domain.ValidationError{Field: "priority", Reason: "must be one of Low, Medium, High"}
	}
	if opts.DueDate != nil && strings.TrimSpace(*opts.DueDate) == "" {
		opts.DueDate = nil
	}
	if opts.DueDate != nil {
		if _, ok := domain.ParseDueDate(*opts.DueDate, time.UTC); !ok {
			return domain.Task{}, domain.ValidationError{Field: "dueDate", Reason: "must be YYYY-MM-DD or RFC3339"}
		}
	}

	now := e.now()
	stamp := domain.Timestamp(now)
	createdAt := stamp
	if raw := strings.TrimSpace(opts.CreatedAt); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return domain.Task{}, domain.ValidationError{Field: "createdAt", Reason: "must be an RFC3339 timestamp"}
		}
		createdAt = domain.Timestamp(ts)
	}
	t, err := e.Store.Create(ctx, domain.Task{
		Title:       opts.Title,
		Description: opts.Description,
		Priority:    opts.Priority,
		Completed:   false,
		OwnerEmail:  owner,
		CreatedAt:   createdAt,
		UpdatedAt:   stamp,
		DueDate:     opts.DueDate,
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.Log.Debug().Str("task", t.ID).Str("owner", owner).Msg("task created")
	return t.WithStatus(now), nil
}

// UpdateTask merges patch into the caller's task.
func (e Engine) UpdateTask(ctx context.Context, owner, id string, patch domain.TaskPatch) (domain.Task, error) {
	if err := e.authorize(ctx, owner, id); err != nil {
		return domain.Task{}, err
	}
	if err := patch.Validate(); err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	t, err := e.Store.UpdateByID(ctx, id, patch, domain.Timestamp(now))
	if err != nil {
		return domain.Task{}, err
	}
	e.Log.Debug().Str("task", id).Str("owner", owner).Msg("task updated")
	return t.WithStatus(now), nil
}

// DeleteTask removes the caller's task.
func (e Engine) DeleteTask(ctx context.Context, owner, id string) error {
	if err := e.authorize(ctx, owner, id); err != nil {
		return err
	}
	if err := e.Store.DeleteByID(ctx, id); err != nil {
		return err
	}
	e.Log.Debug().Str("task", id).Str("owner", owner).Msg("task deleted")
	return nil
}

func (e Engine) authorize(ctx context.Context, owner, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrTaskIDRequired
	}
	if owner == "" {
		return ErrOwnerRequired
	}
	t, err := e.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.RequireOwner(t, owner); err != nil {
		e.Log.Debug().Str("task", id).Str("caller", owner).Msg("ownership check failed")
		return err
	}
	return nil
}
