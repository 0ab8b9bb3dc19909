package scope

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OwnedBy returns a GORM scope that filters rows by their owner. Every
// task/category query goes through it; a row owned by someone else is
// invisible, so "not yours" and "does not exist" look identical to callers.
func OwnedBy(ownerID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_id = ?", ownerID)
	}
}

// TaskFilter holds the optional list predicates. Nil fields contribute
// nothing; each present field adds one AND'd condition on top of the
// ownership predicate, so application order does not change the result.
type TaskFilter struct {
	IsCompleted *bool
	DueDateFrom *time.Time
	DueDateTo   *time.Time
	CategoryID  *uuid.UUID
}

// Scope turns the filter into a GORM scope.
func (f TaskFilter) Scope() func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.IsCompleted != nil {
			db = db.Where("is_completed = ?", *f.IsCompleted)
		}
		if f.DueDateFrom != nil {
			db = db.Where("due_date >= ?", *f.DueDateFrom)
		}
		if f.DueDateTo != nil {
			db = db.Where("due_date <= ?", *f.DueDateTo)
		}
		if f.CategoryID != nil {
			db = db.Where("category_id = ?", *f.CategoryID)
		}
		return db
	}
}
