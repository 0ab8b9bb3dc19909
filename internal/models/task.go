package models

import (
	"time"

	"github.com/google/uuid"
)

// Task is a unit of work owned by exactly one user. CategoryID is optional;
// when set it must reference a category with the same owner, a rule enforced
// in the service layer rather than by the foreign key alone.
type Task struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description *string    `gorm:"type:text" json:"description"`
	DueDate     *time.Time `gorm:"index" json:"due_date"`
	IsCompleted bool       `gorm:"default:false" json:"is_completed"`
	CategoryID  *uuid.UUID `gorm:"type:uuid;index" json:"category_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
