package domain

import (
	"fmt"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Priorities lists the accepted priorities in display order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusMissed    Status = "Missed"
)

// DateLayout is the layout of date-only due dates.
const DateLayout = "2006-01-02"

type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority" enum:"Low,Medium,High"`
	Completed   bool     `json:"completed"`
	Status      Status   `json:"status,omitempty" enum:"Pending,Completed,Missed"`
	OwnerEmail  string   `json:"userEmail"`
	CreatedAt   string   `json:"createdAt" format:"date-time"`
	UpdatedAt   string   `json:"updatedAt" format:"date-time"`
	DueDate     *string  `json:"dueDate,omitempty"`
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title        *string
	Description  *string
	Priority     *Priority
	Completed    *bool
	DueDate      *string
	ClearDueDate bool
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.Completed == nil && p.DueDate == nil && !p.ClearDueDate
}

// Apply merges the patch into t and returns the result.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.ClearDueDate {
		t.DueDate = nil
	} else if p.DueDate != nil {
		due := *p.DueDate
		t.DueDate = &due
	}
	return t
}

func (p TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return ValidationError{Field: "priority", Reason: "must be one of Low, Medium, High"}
	}
	if p.DueDate != nil && !p.ClearDueDate {
		if _, ok := ParseDueDate(*p.DueDate, time.UTC); !ok {
			return ValidationError{Field: "dueDate", Reason: "must be YYYY-MM-DD or RFC3339"}
		}
	}
	return nil
}

// ValidationError reports a rejected field at the API boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ParseDueDate accepts a date-only value (interpreted in loc) or an RFC3339 timestamp.
func ParseDueDate(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if d, err := time.ParseInLocation(DateLayout, raw, loc); err == nil {
		return d, true
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, true
	}
	return time.Time{}, false
}

// DeriveStatus computes the display status. A due date strictly before the
// start of now's day marks an incomplete task as missed; an unparseable due
// date counts as absent.
func DeriveStatus(completed bool, dueDate *string, now time.Time) Status {
	if completed {
		return StatusCompleted
	}
	if dueDate == nil {
		return StatusPending
	}
	due, ok := ParseDueDate(*dueDate, now.Location())
	if !ok {
		return StatusPending
	}
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if due.Before(startOfDay) {
		return StatusMissed
	}
	return StatusPending
}

// WithStatus returns t with its derived status filled in.
func (t Task) WithStatus(now time.Time) Task {
	t.Status = DeriveStatus(t.Completed, t.DueDate, now)
	return t
}

// Timestamp formats ts the way tasks store it.
func Timestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

// User is an account registered with the local identity provider.
type User struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"createdAt"`
}

// RefreshToken is a stored refresh credential. TokenHash holds the digest,
// never the raw value.
type RefreshToken struct {
	TokenHash string
	UID       string
	CreatedAt string
	ExpiresAt string
}
