package datastore

import (
	"context"
	"time"

	"bixquest/internal/models"

	"github.com/uptrace/bun"
)

func CreateTableTask(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.Task)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateTable().Model((*models.UserTask)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.UserTask)(nil)).Index("index_user_task_user_id_task_id").IfNotExists().Column("user_id", "task_id").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func GetTask(ctx context.Context, db bun.IDB, taskID string) (*models.Task, error) {
	var task models.Task
	err := db.NewSelect().Model(&task).Where("id = ?", taskID).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func GetActiveTasks(ctx context.Context, db bun.IDB) ([]models.Task, error) {
	var tasks []models.Task
	err := db.NewSelect().Model(&tasks).Where("is_active = TRUE").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func CountUserTasks(ctx context.Context, db bun.IDB, userID int64, taskID string) (int, error) {
	return db.NewSelect().Model((*models.UserTask)(nil)).
		Where("user_id = ?", userID).
		Where("task_id = ?", taskID).
		Count(ctx)
}

// CountUserTasksOnDate counts completions on a UTC calendar date; used for
// daily-task eligibility.
func CountUserTasksOnDate(ctx context.Context, db bun.IDB, userID int64, taskID string, day time.Time) (int, error) {
	start := dayStartUTC(day)
	return db.NewSelect().Model((*models.UserTask)(nil)).
		Where("user_id = ?", userID).
		Where("task_id = ?", taskID).
		Where("completed_at >= ?", start).
		Where("completed_at < ?", start.Add(24*time.Hour)).
		Count(ctx)
}

func InsertUserTask(ctx context.Context, db bun.IDB, userTask *models.UserTask) error {
	_, err := db.NewInsert().Model(userTask).Exec(ctx)
	return err
}

func CountCompletedTasks(ctx context.Context, db bun.IDB, userID int64) (int, error) {
	return db.NewSelect().Model((*models.UserTask)(nil)).
		Where("user_id = ?", userID).
		Count(ctx)
}
