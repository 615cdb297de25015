package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"taskboard/internal/domain"
	"taskboard/internal/store"
)

// Store implements store.Store on the migrated SQLite database.
type Store struct {
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// New wraps an open, migrated connection.
func New(conn *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(conn, "sqlite")}
}

type taskRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	Priority    string         `db:"priority"`
	Completed   bool           `db:"completed"`
	OwnerEmail  string         `db:"owner_email"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
	DueDate     sql.NullString `db:"due_date"`
}

func (r taskRow) task() domain.Task {
	t := domain.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Priority:    domain.Priority(r.Priority),
		Completed:   r.Completed,
		OwnerEmail:  r.OwnerEmail,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.DueDate.Valid {
		due := r.DueDate.String
		t.DueDate = &due
	}
	return t
}

const selectColumns = `SELECT id,title,description,priority,completed,owner_email,created_at,updated_at,due_date FROM tasks`

func (s *Store) ListByOwner(ctx context.Context, email string) ([]domain.Task, error) {
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, selectColumns+` WHERE owner_email=? ORDER BY created_at DESC, id DESC`, email); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	res := make([]domain.Task, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.task())
	}
	return res, nil
}

func (s *Store) Create(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO tasks(id,title,description,priority,completed,owner_email,created_at,updated_at,due_date) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Description, string(t.Priority), t.Completed, t.OwnerEmail, t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.DueDate))
	if err != nil {
		return domain.Task{}, fmt.Errorf("creating task: %w", err)
	}
	return t, nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.Task, error) {
	return get(ctx, s.db, id)
}

func get(ctx context.Context, q sqlx.QueryerContext, id string) (domain.Task, error) {
	var r taskRow
	err := sqlx.GetContext(ctx, q, &r, selectColumns+` WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("getting task %s: %w", id, err)
	}
	return r.task(), nil
}

func (s *Store) UpdateByID(ctx context.Context, id string, patch domain.TaskPatch, updatedAt string) (domain.Task, error) {
	fields := []string{"updated_at=?"}
	args := []any{updatedAt}
	if patch.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, *patch.Description)
	}
	if patch.Priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, string(*patch.Priority))
	}
	if patch.Completed != nil {
		fields = append(fields, "completed=?")
		args = append(args, *patch.Completed)
	}
	if patch.ClearDueDate {
		fields = append(fields, "due_date=NULL")
	} else if patch.DueDate != nil {
		fields = append(fields, "due_date=?")
		args = append(args, *patch.DueDate)
	}
	args = append(args, id)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return domain.Task{}, fmt.Errorf("updating task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Task{}, store.ErrNotFound
	}
	t, err := get(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Close is a no-op; the connection is owned by whoever opened it.
func (s *Store) Close() error { return nil }

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
