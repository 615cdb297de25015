package server

import (
	"taskboard/internal/domain"
	"taskboard/internal/engine"
)

// Request payloads

// CreateTaskRequest accepts the fields a client may set. Anything else in the
// body (id, userEmail, completed, updatedAt) is accepted and ignored.
type CreateTaskRequest struct {
	Title       string   `json:"title" doc:"Task title; must not be blank"`
	Description string   `json:"description,omitempty"`
	Priority    string   `json:"priority,omitempty" doc:"Low, Medium or High; defaults to Low"`
	DueDate     *string  `json:"dueDate,omitempty" nullable:"true" doc:"YYYY-MM-DD"`
	CreatedAt   string   `json:"createdAt,omitempty" doc:"Kept when re-submitting an edited task"`
	_           struct{} `json:"-" additionalProperties:"true"`
}

func (r CreateTaskRequest) options() engine.TaskCreateOptions {
	return engine.TaskCreateOptions{
		Title:       r.Title,
		Description: r.Description,
		Priority:    domain.Priority(r.Priority),
		DueDate:     r.DueDate,
		CreatedAt:   r.CreatedAt,
	}
}

// UpdateTaskRequest is a partial update; absent fields are left untouched and
// dueDate: null clears the due date.
type UpdateTaskRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Priority    *string  `json:"priority,omitempty"`
	Completed   *bool    `json:"completed,omitempty"`
	DueDate     *string  `json:"dueDate,omitempty" nullable:"true"`
	_           struct{} `json:"-" additionalProperties:"true"`
}

func (r UpdateTaskRequest) patch(clearDueDate bool) domain.TaskPatch {
	p := domain.TaskPatch{
		Title:        r.Title,
		Description:  r.Description,
		Completed:    r.Completed,
		DueDate:      r.DueDate,
		ClearDueDate: clearDueDate,
	}
	if r.Priority != nil {
		pr := domain.Priority(*r.Priority)
		p.Priority = &pr
	}
	if p.DueDate != nil && *p.DueDate == "" {
		p.DueDate = nil
		p.ClearDueDate = true
	}
	return p
}

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Responses

type MessageResponse struct {
	Message string `json:"message"`
}

type UserResponse struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}
