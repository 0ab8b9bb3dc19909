package services

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/taskhub/backend/internal/dto"
	"github.com/taskhub/backend/internal/models"
	"github.com/taskhub/backend/internal/scope"
	"gorm.io/gorm"
)

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrTitleRequired   = errors.New("title is required")
	ErrInvalidCategory = errors.New("category does not exist")
)

// MaxPageSize caps list windows so no request can trigger an unbounded scan.
const MaxPageSize = 100

// TaskService is the ownership-scoped data access layer for tasks. Every
// method takes the requester's user id and never returns or touches rows
// owned by anyone else.
type TaskService struct {
	db *gorm.DB
}

func NewTaskService(db *gorm.DB) *TaskService {
	return &TaskService{db: db}
}

func (s *TaskService) Create(ownerID uuid.UUID, req dto.CreateTaskRequest) (*dto.TaskResponse, error) {
	if req.Title == "" {
		return nil, ErrTitleRequired
	}

	if req.CategoryID != nil {
		if err := s.checkCategoryOwnership(s.db, ownerID, *req.CategoryID); err != nil {
			return nil, err
		}
	}

	task := models.Task{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		CategoryID:  req.CategoryID,
	}

	if err := s.db.Create(&task).Error; err != nil {
		return nil, err
	}

	return s.toResponse(&task)
}

// Get returns the task only if it belongs to ownerID. A row under a
// different owner yields the same ErrTaskNotFound as a missing row.
func (s *TaskService) Get(ownerID, taskID uuid.UUID) (*dto.TaskResponse, error) {
	task, err := s.fetch(ownerID, taskID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(task)
}

func (s *TaskService) List(ownerID uuid.UUID, filter scope.TaskFilter, skip, limit int) (*dto.TaskListResponse, error) {
	skip, limit = clampWindow(skip, limit)

	var total int64
	if err := s.db.Model(&models.Task{}).
		Scopes(scope.OwnedBy(ownerID), filter.Scope()).
		Count(&total).Error; err != nil {
		return nil, err
	}

	var tasks []models.Task
	err := s.db.Scopes(scope.OwnedBy(ownerID), filter.Scope()).
		Order("created_at DESC").
		Offset(skip).
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}

	responses, err := s.toResponses(tasks)
	if err != nil {
		return nil, err
	}

	return &dto.TaskListResponse{
		Tasks: responses,
		Total: total,
		Skip:  skip,
		Limit: limit,
	}, nil
}

// Update applies a PATCH merge: only fields present in the request change.
// Changing the category to a non-null value re-runs the ownership check.
func (s *TaskService) Update(ownerID, taskID uuid.UUID, req dto.UpdateTaskRequest) (*dto.TaskResponse, error) {
	task, err := s.fetch(ownerID, taskID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		if *req.Title == "" {
			return nil, ErrTitleRequired
		}
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = req.Description
	} else if req.ClearDescription {
		task.Description = nil
	}
	if req.DueDate != nil {
		task.DueDate = req.DueDate
	} else if req.ClearDueDate {
		task.DueDate = nil
	}
	if req.IsCompleted != nil {
		task.IsCompleted = *req.IsCompleted
	}
	if req.CategoryID != nil {
		if err := s.checkCategoryOwnership(s.db, ownerID, *req.CategoryID); err != nil {
			return nil, err
		}
		task.CategoryID = req.CategoryID
	} else if req.ClearCategory {
		task.CategoryID = nil
	}

	task.UpdatedAt = time.Now().UTC()

	if err := s.db.Save(task).Error; err != nil {
		return nil, err
	}

	return s.toResponse(task)
}

// Delete reports false, not an error, when nothing owned by this user matched.
func (s *TaskService) Delete(ownerID, taskID uuid.UUID) (bool, error) {
	result := s.db.Scopes(scope.OwnedBy(ownerID)).Where("id = ?", taskID).Delete(&models.Task{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListByCategory returns the owner's tasks under one category. The category
// itself must pass the ownership check first.
func (s *TaskService) ListByCategory(ownerID, categoryID uuid.UUID, skip, limit int) (*dto.TaskListResponse, error) {
	if err := s.checkCategoryOwnership(s.db, ownerID, categoryID); err != nil {
		if errors.Is(err, ErrInvalidCategory) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return s.List(ownerID, scope.TaskFilter{CategoryID: &categoryID}, skip, limit)
}

// OverdueTasks is deliberately unscoped: it feeds the background scanner,
// which reports across all owners. No request handler calls it.
func (s *TaskService) OverdueTasks() ([]models.Task, error) {
	var tasks []models.Task
	err := s.db.
		Where("due_date IS NOT NULL AND due_date < ? AND is_completed = ?", time.Now().UTC(), false).
		Find(&tasks).Error
	return tasks, err
}

func (s *TaskService) fetch(ownerID, taskID uuid.UUID) (*models.Task, error) {
	var task models.Task
	err := s.db.Scopes(scope.OwnedBy(ownerID)).First(&task, "id = ?", taskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

// checkCategoryOwnership verifies the referenced category exists and belongs
// to the same owner. A category under another owner fails identically to a
// nonexistent one.
func (s *TaskService) checkCategoryOwnership(tx *gorm.DB, ownerID, categoryID uuid.UUID) error {
	var count int64
	err := tx.Model(&models.Category{}).
		Scopes(scope.OwnedBy(ownerID)).
		Where("id = ?", categoryID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrInvalidCategory
	}
	return nil
}

// toResponse fetches the task's category explicitly when present; there is
// no lazy relationship loading anywhere in the data layer.
func (s *TaskService) toResponse(task *models.Task) (*dto.TaskResponse, error) {
	resp := taskResponse(task)
	if task.CategoryID != nil {
		var category models.Category
		err := s.db.Scopes(scope.OwnedBy(task.OwnerID)).First(&category, "id = ?", *task.CategoryID).Error
		if err == nil {
			cr := categoryResponse(&category, nil)
			resp.Category = &cr
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return resp, nil
}

// toResponses resolves categories for a page of tasks with a single query.
func (s *TaskService) toResponses(tasks []models.Task) ([]dto.TaskResponse, error) {
	ids := make([]uuid.UUID, 0, len(tasks))
	for _, t := range tasks {
		if t.CategoryID != nil {
			ids = append(ids, *t.CategoryID)
		}
	}

	byID := make(map[uuid.UUID]models.Category, len(ids))
	if len(ids) > 0 {
		var categories []models.Category
		if err := s.db.Where("id IN ?", ids).Find(&categories).Error; err != nil {
			return nil, err
		}
		for _, c := range categories {
			byID[c.ID] = c
		}
	}

	responses := make([]dto.TaskResponse, 0, len(tasks))
	for i := range tasks {
		resp := taskResponse(&tasks[i])
		if tasks[i].CategoryID != nil {
			if c, ok := byID[*tasks[i].CategoryID]; ok {
				cr := categoryResponse(&c, nil)
				resp.Category = &cr
			}
		}
		responses = append(responses, *resp)
	}
	return responses, nil
}

func taskResponse(task *models.Task) *dto.TaskResponse {
	return &dto.TaskResponse{
		ID:          task.ID,
		OwnerID:     task.OwnerID,
		Title:       task.Title,
		Description: task.Description,
		DueDate:     task.DueDate,
		IsCompleted: task.IsCompleted,
		CategoryID:  task.CategoryID,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

func clampWindow(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	return skip, limit
}
