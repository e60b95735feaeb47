package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TaskCategory string

const (
	TaskCategorySocial    TaskCategory = "social"
	TaskCategoryDaily     TaskCategory = "daily"
	TaskCategoryWatch     TaskCategory = "watch"
	TaskCategoryQuiz      TaskCategory = "quiz"
	TaskCategoryReferral  TaskCategory = "referral"
	TaskCategoryMilestone TaskCategory = "milestone"
	TaskCategorySponsored TaskCategory = "sponsored"
)

type TaskType string

const (
	TaskTypeOneTime TaskType = "one_time"
	TaskTypeDaily   TaskType = "daily"
)

type Task struct {
	bun.BaseModel `bun:"table:task"`
	ID            string       `bun:"id,pk" json:"id"`
	Title         string       `bun:"title" json:"title"`
	RewardAmount  int64        `bun:"reward_amount" json:"reward_amount"`
	XPReward      int64        `bun:"xp_reward" json:"xp_reward"`
	Category      TaskCategory `bun:"category" json:"category"`
	TaskType      TaskType     `bun:"task_type" json:"task_type"`
	RequiredLevel int          `bun:"required_level" json:"required_level"`
	IsActive      bool         `bun:"is_active" json:"is_active"`
	CreatedAt     time.Time    `bun:"created_at,default:current_timestamp" json:"created_at"`
}

const UserTaskCompleted = "completed"

type UserTask struct {
	bun.BaseModel `bun:"table:user_task"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID        int64     `bun:"user_id" json:"user_id"`
	TaskID        string    `bun:"task_id" json:"task_id"`
	Status        string    `bun:"status" json:"status"`
	CompletedAt   time.Time `bun:"completed_at,default:current_timestamp" json:"completed_at"`
}
