package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bixquest/internal/datastore"
	"bixquest/internal/models"
	"bixquest/internal/pkg/caching"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/samber/do"
	"github.com/uptrace/bun"
)

var ErrTaskInactive = errors.New("task inactive")
var ErrLevelLocked = errors.New("level locked")
var ErrAlreadyCompleted = errors.New("task already completed")
var ErrAlreadyCompletedToday = errors.New("task already completed today")
var ErrNotEligible = errors.New("task requirements not met")

type ServiceTask struct {
	container          *do.Injector
	postgresDB         *bun.DB
	readonlyPostgresDB *bun.DB
	cache              caching.Cache
	readonlyCache      caching.ReadOnlyCache

	serviceLedger *ServiceLedger
	serviceFraud  *ServiceFraud
}

func NewServiceTask(container *do.Injector) (*ServiceTask, error) {
	postgresDB, err := do.Invoke[*bun.DB](container)
	if err != nil {
		return nil, err
	}

	readonlyPostgresDB, err := do.InvokeNamed[*bun.DB](container, "db-readonly")
	if err != nil {
		return nil, err
	}

	cache, err := do.Invoke[caching.Cache](container)
	if err != nil {
		return nil, err
	}

	readonlyCache, err := do.Invoke[caching.ReadOnlyCache](container)
	if err != nil {
		return nil, err
	}

	serviceLedger, err := do.Invoke[*ServiceLedger](container)
	if err != nil {
		return nil, err
	}

	serviceFraud, err := do.Invoke[*ServiceFraud](container)
	if err != nil {
		return nil, err
	}

	return &ServiceTask{container, postgresDB, readonlyPostgresDB, cache, readonlyCache, serviceLedger, serviceFraud}, nil
}

func (service *ServiceTask) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	callback := func() (*models.Task, error) {
		return datastore.GetTask(ctx, service.readonlyPostgresDB, taskID)
	}
	return caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyTask(taskID), CACHE_TTL_5_MINS, callback)
}

func (service *ServiceTask) GetActiveTasks(ctx context.Context) ([]models.Task, error) {
	callback := func() ([]models.Task, error) {
		return datastore.GetActiveTasks(ctx, service.readonlyPostgresDB)
	}
	return caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyActiveTasks(), CACHE_TTL_5_MINS, callback)
}

type TaskResult struct {
	Task       *models.Task `json:"task"`
	Amount     int64        `json:"amount"`
	Multiplier float64      `json:"multiplier"`
	Balance    int64        `json:"balance"`
	Level      int          `json:"level"`
}

func (service *ServiceTask) CompleteTask(ctx context.Context, user *models.User, taskID string, ipHash string) (*TaskResult, error) {
	task, err := service.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errorx.Wrap(fmt.Errorf("task %s not found", taskID), errorx.NotExist)
		}
		return nil, errorx.Wrap(err, errorx.Service)
	}

	if !task.IsActive {
		return nil, errorx.Wrap(ErrTaskInactive, errorx.Invalid)
	}

	score, err := service.serviceFraud.Score(ctx, user, ipHash)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if !score.Allowed {
		return nil, errorx.Wrap(ErrUnderReview, errorx.Invalid)
	}

	amount := score.ApplyMultiplier(task.RewardAmount)

	var result *TaskResult
	err = service.serviceLedger.WithLedgerTx(ctx, user.ID, func(ctx context.Context, tx bun.Tx, locked *models.User) error {
		if locked.Level() < task.RequiredLevel {
			return errorx.Wrap(ErrLevelLocked, errorx.Invalid)
		}

		if err := service.checkEligibilityInTx(ctx, tx, locked, task); err != nil {
			return err
		}

		now := time.Now()
		if err := datastore.InsertUserTask(ctx, tx, &models.UserTask{
			UserID:      locked.ID,
			TaskID:      task.ID,
			Status:      models.UserTaskCompleted,
			CompletedAt: now,
		}); err != nil {
			return err
		}

		if err := service.serviceLedger.GrantInTx(ctx, tx, locked, Grant{
			UserID:      locked.ID,
			Amount:      amount,
			XP:          task.XPReward,
			Category:    models.RewardTask,
			SourceID:    task.ID,
			SourceType:  "task",
			Description: task.Title,
		}); err != nil {
			return err
		}

		result = &TaskResult{
			Task:       task,
			Amount:     amount,
			Multiplier: score.Multiplier,
			Balance:    locked.Balance,
			Level:      locked.Level(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (service *ServiceTask) checkEligibilityInTx(ctx context.Context, tx bun.Tx, user *models.User, task *models.Task) error {
	switch task.TaskType {
	case models.TaskTypeOneTime:
		count, err := datastore.CountUserTasks(ctx, tx, user.ID, task.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			return errorx.Wrap(ErrAlreadyCompleted, errorx.Invalid)
		}
	case models.TaskTypeDaily:
		count, err := datastore.CountUserTasksOnDate(ctx, tx, user.ID, task.ID, time.Now())
		if err != nil {
			return err
		}
		if count > 0 {
			return errorx.Wrap(ErrAlreadyCompletedToday, errorx.Invalid)
		}
	}

	switch task.Category {
	case models.TaskCategoryReferral:
		threshold, ok := taskIDThreshold(task.ID)
		if !ok {
			return errorx.Wrap(ErrNotEligible, errorx.Invalid)
		}
		count, err := datastore.CountReferrals(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		if count < threshold {
			return errorx.Wrap(ErrNotEligible, errorx.Invalid)
		}
	case models.TaskCategoryMilestone:
		if !milestoneSatisfied(task.ID, user) {
			return errorx.Wrap(ErrNotEligible, errorx.Invalid)
		}
	}

	return nil
}

// taskIDThreshold reads the numeric suffix of an id like "referral_5".
func taskIDThreshold(taskID string) (int, bool) {
	idx := strings.LastIndex(taskID, "_")
	if idx < 0 || idx == len(taskID)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(taskID[idx+1:])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// milestoneSatisfied understands "milestone_earned_<n>" (lifetime BIX)
// and "milestone_streak_<n>" (check-in streak) task ids.
func milestoneSatisfied(taskID string, user *models.User) bool {
	threshold, ok := taskIDThreshold(taskID)
	if !ok {
		return false
	}
	switch {
	case strings.HasPrefix(taskID, "milestone_earned_"):
		return user.TotalEarned >= int64(threshold)
	case strings.HasPrefix(taskID, "milestone_streak_"):
		return user.DailyStreak >= threshold
	default:
		return false
	}
}
