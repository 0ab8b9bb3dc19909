package models

import (
	"time"

	"github.com/google/uuid"
)

// Category groups tasks for a single owner. The name is unique per owner,
// not globally; the composite index backs the pre-insert check in the service.
type Category struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_categories_owner_name" json:"owner_id"`
	Name        string    `gorm:"size:100;not null;uniqueIndex:idx_categories_owner_name" json:"name"`
	Description *string   `gorm:"type:text" json:"description"`
	Color       *string   `gorm:"size:7" json:"color"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
