package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/taskhub/backend/internal/models"
	"github.com/taskhub/backend/internal/services"
	"gorm.io/gorm"
)

// OverdueScanner periodically sweeps for tasks past their due date that are
// not completed and logs one reminder line per task. It is observability
// only: it never mutates stored state, runs its own unit of work per tick,
// and keeps ticking after a failed sweep.
type OverdueScanner struct {
	db       *gorm.DB
	tasks    *services.TaskService
	interval time.Duration
	cron     *cron.Cron
}

func NewOverdueScanner(db *gorm.DB, tasks *services.TaskService, interval time.Duration) *OverdueScanner {
	return &OverdueScanner{
		db:       db,
		tasks:    tasks,
		interval: interval,
		cron:     cron.New(cron.WithSeconds()),
	}
}

func (s *OverdueScanner) Start() error {
	seconds := int(s.interval.Seconds())
	if seconds <= 0 {
		seconds = 30
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	if _, err := s.cron.AddFunc(spec, s.Tick); err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("overdue scanner started", "interval", s.interval)
	return nil
}

func (s *OverdueScanner) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("overdue scanner stopped")
}

// Tick runs one sweep. Errors are logged and swallowed so a single failed
// sweep never terminates the scanner.
func (s *OverdueScanner) Tick() {
	tasks, err := s.tasks.OverdueTasks()
	if err != nil {
		slog.Error("overdue scan failed", "error", err)
		return
	}
	if len(tasks) == 0 {
		return
	}

	owners, err := s.resolveOwners(tasks)
	if err != nil {
		slog.Error("overdue scan owner lookup failed", "error", err)
		return
	}

	slog.Info("found overdue tasks", "count", len(tasks))
	now := time.Now().UTC()
	for _, task := range tasks {
		email := ""
		if owner, ok := owners[task.OwnerID]; ok {
			email = owner.Email
		}
		slog.Info("task reminder",
			"task_id", task.ID,
			"title", task.Title,
			"owner_email", email,
			"due_date", task.DueDate,
			"overdue_by", now.Sub(*task.DueDate).String(),
		)
	}
}

// resolveOwners fetches every distinct owner in one query; nothing here
// relies on implicit relationship loading.
func (s *OverdueScanner) resolveOwners(tasks []models.Task) (map[uuid.UUID]models.User, error) {
	seen := make(map[uuid.UUID]struct{}, len(tasks))
	ids := make([]uuid.UUID, 0, len(tasks))
	for _, t := range tasks {
		if _, ok := seen[t.OwnerID]; !ok {
			seen[t.OwnerID] = struct{}{}
			ids = append(ids, t.OwnerID)
		}
	}

	var users []models.User
	if err := s.db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}

	owners := make(map[uuid.UUID]models.User, len(users))
	for _, u := range users {
		owners[u.ID] = u
	}
	return owners, nil
}
