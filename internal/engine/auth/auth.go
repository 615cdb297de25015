package auth

import (
	"fmt"
	"strings"

	"taskboard/internal/domain"
)

// ForbiddenError indicates the caller does not own the task.
type ForbiddenError struct {
	TaskID string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("task %s belongs to another user", e.TaskID)
}

// RequireOwner returns ForbiddenError unless caller owns t.
func RequireOwner(t domain.Task, caller string) error {
	if caller == "" || !strings.EqualFold(t.OwnerEmail, caller) {
		return ForbiddenError{TaskID: t.ID}
	}
	return nil
}
