// Package store defines the task persistence boundary. Implementations live
// in the sqlite and mongo subpackages.
package store

import (
	"context"
	"errors"

	"taskboard/internal/domain"
)

// Collection is the name of the task table/collection in every backend.
const Collection = "tasks"

var ErrNotFound = errors.New("task not found")

// Store persists tasks. Implementations must be safe for concurrent use.
type Store interface {
	// ListByOwner returns every task whose owner equals email. Order is unspecified.
	ListByOwner(ctx context.Context, email string) ([]domain.Task, error)
	// Create stores t and returns it with the assigned id.
	Create(ctx context.Context, t domain.Task) (domain.Task, error)
	Get(ctx context.Context, id string) (domain.Task, error)
	// UpdateByID merges patch into the stored task, sets updatedAt and
	// returns the merged record. ErrNotFound when nothing matched.
	UpdateByID(ctx context.Context, id string, patch domain.TaskPatch, updatedAt string) (domain.Task, error)
	DeleteByID(ctx context.Context, id string) error
	Close() error
}
