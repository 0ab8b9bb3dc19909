package services

import (
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/taskhub/backend/internal/dto"
	"github.com/taskhub/backend/internal/models"
	"github.com/taskhub/backend/internal/scope"
	"gorm.io/gorm"
)

var (
	ErrCategoryNotFound  = errors.New("category not found")
	ErrCategoryNameTaken = errors.New("category with this name already exists")
	ErrNameRequired      = errors.New("name is required")
	ErrInvalidColor      = errors.New("color must be a hex code like #FF5733")
)

var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// CategoryService is the ownership-scoped data access layer for categories.
type CategoryService struct {
	db *gorm.DB
}

func NewCategoryService(db *gorm.DB) *CategoryService {
	return &CategoryService{db: db}
}

func (s *CategoryService) Create(ownerID uuid.UUID, req dto.CreateCategoryRequest) (*dto.CategoryResponse, error) {
	if req.Name == "" {
		return nil, ErrNameRequired
	}
	if req.Color != nil && !hexColorPattern.MatchString(*req.Color) {
		return nil, ErrInvalidColor
	}

	// Checked before insert so the caller gets a clean message instead of a
	// constraint failure; the composite unique index still backs this up.
	taken, err := s.nameTaken(ownerID, req.Name, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrCategoryNameTaken
	}

	category := models.Category{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
	}

	if err := s.db.Create(&category).Error; err != nil {
		return nil, err
	}

	resp := categoryResponse(&category, nil)
	return &resp, nil
}

func (s *CategoryService) Get(ownerID, categoryID uuid.UUID) (*dto.CategoryResponse, error) {
	category, err := s.fetch(ownerID, categoryID)
	if err != nil {
		return nil, err
	}
	resp := categoryResponse(category, nil)
	return &resp, nil
}

// List returns the owner's categories; withTaskCount annotates each with the
// number of owned tasks referencing it via a single LEFT JOIN query.
func (s *CategoryService) List(ownerID uuid.UUID, skip, limit int, withTaskCount bool) (*dto.CategoryListResponse, error) {
	skip, limit = clampWindow(skip, limit)

	var total int64
	if err := s.db.Model(&models.Category{}).Scopes(scope.OwnedBy(ownerID)).Count(&total).Error; err != nil {
		return nil, err
	}

	var categories []models.Category
	err := s.db.Scopes(scope.OwnedBy(ownerID)).
		Order("created_at DESC").
		Offset(skip).
		Limit(limit).
		Find(&categories).Error
	if err != nil {
		return nil, err
	}

	responses := make([]dto.CategoryResponse, 0, len(categories))

	if withTaskCount {
		counts, err := s.taskCounts(ownerID)
		if err != nil {
			return nil, err
		}
		for i := range categories {
			n := counts[categories[i].ID]
			responses = append(responses, categoryResponse(&categories[i], &n))
		}
	} else {
		for i := range categories {
			responses = append(responses, categoryResponse(&categories[i], nil))
		}
	}

	return &dto.CategoryListResponse{
		Categories: responses,
		Total:      total,
		Skip:       skip,
		Limit:      limit,
	}, nil
}

func (s *CategoryService) Update(ownerID, categoryID uuid.UUID, req dto.UpdateCategoryRequest) (*dto.CategoryResponse, error) {
	category, err := s.fetch(ownerID, categoryID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, ErrNameRequired
		}
		taken, err := s.nameTaken(ownerID, *req.Name, categoryID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrCategoryNameTaken
		}
		category.Name = *req.Name
	}
	if req.Description != nil {
		category.Description = req.Description
	}
	if req.Color != nil {
		if !hexColorPattern.MatchString(*req.Color) {
			return nil, ErrInvalidColor
		}
		category.Color = req.Color
	}

	category.UpdatedAt = time.Now().UTC()

	if err := s.db.Save(category).Error; err != nil {
		return nil, err
	}

	resp := categoryResponse(category, nil)
	return &resp, nil
}

// Delete clears category_id on every owned task referencing the category,
// then removes the category row, all in one transaction. Concurrent readers
// never observe the intermediate state.
func (s *CategoryService) Delete(ownerID, categoryID uuid.UUID) (bool, error) {
	deleted := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Referencing tasks are nulled first: the foreign key is checked
		// immediately, and the task update must never outlive the delete.
		err := tx.Model(&models.Task{}).
			Scopes(scope.OwnedBy(ownerID)).
			Where("category_id = ?", categoryID).
			Update("category_id", nil).Error
		if err != nil {
			return err
		}

		result := tx.Scopes(scope.OwnedBy(ownerID)).Where("id = ?", categoryID).Delete(&models.Category{})
		if result.Error != nil {
			return result.Error
		}

		deleted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (s *CategoryService) fetch(ownerID, categoryID uuid.UUID) (*models.Category, error) {
	var category models.Category
	err := s.db.Scopes(scope.OwnedBy(ownerID)).First(&category, "id = ?", categoryID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return &category, nil
}

func (s *CategoryService) nameTaken(ownerID uuid.UUID, name string, excludeID uuid.UUID) (bool, error) {
	query := s.db.Model(&models.Category{}).
		Scopes(scope.OwnedBy(ownerID)).
		Where("name = ?", name)
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

type categoryCount struct {
	CategoryID uuid.UUID
	N          int64
}

func (s *CategoryService) taskCounts(ownerID uuid.UUID) (map[uuid.UUID]int64, error) {
	var rows []categoryCount
	err := s.db.Model(&models.Task{}).
		Select("category_id, count(*) as n").
		Scopes(scope.OwnedBy(ownerID)).
		Where("category_id IS NOT NULL").
		Group("category_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uuid.UUID]int64, len(rows))
	for _, r := range rows {
		counts[r.CategoryID] = r.N
	}
	return counts, nil
}

func categoryResponse(category *models.Category, taskCount *int64) dto.CategoryResponse {
	return dto.CategoryResponse{
		ID:          category.ID,
		OwnerID:     category.OwnerID,
		Name:        category.Name,
		Description: category.Description,
		Color:       category.Color,
		TaskCount:   taskCount,
		CreatedAt:   category.CreatedAt,
		UpdatedAt:   category.UpdatedAt,
	}
}
