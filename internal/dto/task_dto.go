package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	CategoryID  *uuid.UUID `json:"category_id"`
}

// UpdateTaskRequest is a PATCH body: nil fields are left untouched.
// Clearing a nullable field requires sending an explicit null, which the
// handler records in the Clear flags.
type UpdateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	IsCompleted *bool      `json:"is_completed"`
	CategoryID  *uuid.UUID `json:"category_id"`

	// The Clear flags are set by the handler when the body carried an
	// explicit null for the field, which a plain pointer cannot
	// distinguish from the key being absent.
	ClearCategory    bool `json:"-"`
	ClearDescription bool `json:"-"`
	ClearDueDate     bool `json:"-"`
}

// TaskResponse embeds the category when the task has one; the category is
// fetched explicitly by the service, never lazily.
type TaskResponse struct {
	ID          uuid.UUID         `json:"id"`
	OwnerID     uuid.UUID         `json:"owner_id"`
	Title       string            `json:"title"`
	Description *string           `json:"description"`
	DueDate     *time.Time        `json:"due_date"`
	IsCompleted bool              `json:"is_completed"`
	CategoryID  *uuid.UUID        `json:"category_id"`
	Category    *CategoryResponse `json:"category"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Total int64          `json:"total"`
	Skip  int            `json:"skip"`
	Limit int            `json:"limit"`
}
