package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Reward categories; each maps to a PlatformMetric counter.
const (
	RewardTask     = "task"
	RewardCode     = "code"
	RewardQuiz     = "quiz"
	RewardReferral = "referral"
	RewardCheckin  = "checkin"
	RewardGame     = "game"
)

// Transaction is the user-facing, append-only balance history. Rows are
// never updated or deleted.
type Transaction struct {
	bun.BaseModel `bun:"table:transaction"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID        int64     `bun:"user_id" json:"user_id"`
	Amount        int64     `bun:"amount" json:"amount"`
	Kind          string    `bun:"kind" json:"kind"`
	Description   string    `bun:"description" json:"description"`
	CreatedAt     time.Time `bun:"created_at,default:current_timestamp" json:"created_at"`
}

// RewardLog parallels Transaction but is keyed for abuse forensics
// (joins on source_id).
type RewardLog struct {
	bun.BaseModel `bun:"table:reward_log"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID        int64     `bun:"user_id" json:"user_id"`
	RewardType    string    `bun:"reward_type" json:"reward_type"`
	Amount        int64     `bun:"amount" json:"amount"`
	SourceID      string    `bun:"source_id" json:"source_id"`
	SourceType    string    `bun:"source_type" json:"source_type"`
	CreatedAt     time.Time `bun:"created_at,default:current_timestamp" json:"created_at"`
}

// PlatformMetric holds one row per UTC calendar day, upserted on every
// grant.
type PlatformMetric struct {
	bun.BaseModel `bun:"table:platform_metric"`
	Day           string `bun:"day,pk" json:"day"`
	TaskBix       int64  `bun:"task_bix" json:"task_bix"`
	CodeBix       int64  `bun:"code_bix" json:"code_bix"`
	QuizBix       int64  `bun:"quiz_bix" json:"quiz_bix"`
	ReferralBix   int64  `bun:"referral_bix" json:"referral_bix"`
	CheckinBix    int64  `bun:"checkin_bix" json:"checkin_bix"`
	GameBix       int64  `bun:"game_bix" json:"game_bix"`
	TotalBix      int64  `bun:"total_bix" json:"total_bix"`
	GrantCount    int64  `bun:"grant_count" json:"grant_count"`
}
